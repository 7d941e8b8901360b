// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package crc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueMatchesPad(t *testing.T) {
	b := []byte("hello world")
	c := New(b)
	require.Equal(t, Pad(uint32(c)), c.Value())
}

func TestUpdateIsIncremental(t *testing.T) {
	whole := New([]byte("hello world"))
	parts := New([]byte("hello")).Update([]byte(" world"))
	require.Equal(t, whole.Value(), parts.Value())
}

func TestDifferentInputsDifferentValues(t *testing.T) {
	require.NotEqual(t, New([]byte("a")).Value(), New([]byte("b")).Value())
}
