// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeInternalKeyRoundTrip(t *testing.T) {
	k := MakeInternalKey([]byte("hello"), 42, InternalKeyKindSet)
	require.Equal(t, SeqNum(42), k.SeqNum())
	require.Equal(t, InternalKeyKindSet, k.Kind())
	require.True(t, k.Valid())

	buf := make([]byte, k.Size())
	k.Encode(buf)
	decoded := DecodeInternalKey(buf)
	require.Equal(t, k.UserKey, decoded.UserKey)
	require.Equal(t, k.Trailer, decoded.Trailer)
}

func TestDecodeInternalKeyTooShort(t *testing.T) {
	decoded := DecodeInternalKey([]byte("short"))
	require.Equal(t, InternalKeyKindInvalid, decoded.Kind())
	require.False(t, decoded.Valid())
}

func TestInternalCompareOrdersNewerFirst(t *testing.T) {
	older := MakeInternalKey([]byte("a"), 1, InternalKeyKindSet)
	newer := MakeInternalKey([]byte("a"), 2, InternalKeyKindSet)
	require.Less(t, InternalCompare(bytes.Compare, newer, older), 0)
	require.Greater(t, InternalCompare(bytes.Compare, older, newer), 0)
}

func TestInternalCompareOrdersByUserKeyFirst(t *testing.T) {
	a := MakeInternalKey([]byte("a"), 5, InternalKeyKindSet)
	b := MakeInternalKey([]byte("b"), 1, InternalKeyKindSet)
	require.Less(t, InternalCompare(bytes.Compare, a, b), 0)
}

func TestMakeSearchKeySortsBeforeAnyRealKeyWithSameUserKey(t *testing.T) {
	search := MakeSearchKey([]byte("a"))
	real := MakeInternalKey([]byte("a"), 1, InternalKeyKindSet)
	require.Less(t, InternalCompare(bytes.Compare, search, real), 0)
}
