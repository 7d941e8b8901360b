// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-lsm/lsm/internal/base"
)

func TestSeekBudgetFloorsAtMinSeeks(t *testing.T) {
	m := NewFileMetadata(1, 1024, base.InternalKey{}, base.InternalKey{})
	require.EqualValues(t, minSeeks, m.SeeksRemaining())
}

func TestSeekBudgetScalesWithSize(t *testing.T) {
	size := uint64(200 * bytesPerSeek)
	m := NewFileMetadata(1, size, base.InternalKey{}, base.InternalKey{})
	require.EqualValues(t, 200, m.SeeksRemaining())
}

func TestRecordSeekExhaustsBudget(t *testing.T) {
	m := NewFileMetadata(1, 0, base.InternalKey{}, base.InternalKey{})
	for i := int64(0); i < minSeeks-1; i++ {
		require.False(t, m.RecordSeek())
	}
	require.True(t, m.RecordSeek())
}

func TestRefCounting(t *testing.T) {
	m := NewFileMetadata(1, 0, base.InternalKey{}, base.InternalKey{})
	m.Ref()
	m.Ref()
	require.EqualValues(t, 2, m.Refs())
	require.False(t, m.Unref())
	require.True(t, m.Unref())
}
