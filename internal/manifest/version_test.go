// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-lsm/lsm/internal/base"
)

func key(s string, seq base.SeqNum) base.InternalKey {
	return base.MakeInternalKey([]byte(s), seq, base.InternalKeyKindSet)
}

func newTestList() *VersionList {
	var mu sync.Mutex
	l := &VersionList{}
	l.Init(&mu)
	return l
}

func TestVersionListPushBackAndUnref(t *testing.T) {
	l := newTestList()
	require.True(t, l.Empty())

	v1 := NewVersion()
	v1.Ref()
	l.PushBack(v1)
	require.False(t, l.Empty())
	require.Equal(t, v1, l.Front())
	require.Equal(t, v1, l.Back())

	v2 := NewVersion()
	v2.Ref()
	l.PushBack(v2)
	require.Equal(t, v1, l.Front())
	require.Equal(t, v2, l.Back())

	v1.Unref()
	require.Equal(t, v2, l.Front())
}

func TestOverlapsL0ExpandsAcrossOverlappingFiles(t *testing.T) {
	v := NewVersion()
	v.Files[0] = []*FileMetadata{
		NewFileMetadata(1, 10, key("c", 1), key("f", 1)),
		NewFileMetadata(2, 10, key("e", 1), key("h", 1)),
		NewFileMetadata(3, 10, key("x", 1), key("z", 1)),
	}
	out := v.Overlaps(0, bytes.Compare, []byte("d"), []byte("d"))
	require.Len(t, out, 2)
}

func TestOverlapsLevelGE1BinarySearch(t *testing.T) {
	v := NewVersion()
	v.Files[1] = []*FileMetadata{
		NewFileMetadata(1, 10, key("a", 1), key("c", 1)),
		NewFileMetadata(2, 10, key("d", 1), key("f", 1)),
		NewFileMetadata(3, 10, key("g", 1), key("i", 1)),
	}
	out := v.Overlaps(1, bytes.Compare, []byte("e"), []byte("e"))
	require.Len(t, out, 1)
	require.EqualValues(t, 2, out[0].FileNum)
}

func TestCheckOrderingAcceptsMultipleL0FilesInDecreasingFileNumOrder(t *testing.T) {
	v := NewVersion()
	v.Files[0] = []*FileMetadata{
		NewFileMetadata(3, 10, key("a", 1), key("m", 1)),
		NewFileMetadata(2, 10, key("c", 1), key("z", 1)),
		NewFileMetadata(1, 10, key("e", 1), key("f", 1)),
	}
	require.NoError(t, v.CheckOrdering(bytes.Compare))
}

func TestCheckOrderingRejectsL0FilesOutOfFileNumOrder(t *testing.T) {
	v := NewVersion()
	v.Files[0] = []*FileMetadata{
		NewFileMetadata(1, 10, key("a", 1), key("m", 1)),
		NewFileMetadata(2, 10, key("c", 1), key("z", 1)),
	}
	require.Error(t, v.CheckOrdering(bytes.Compare))
}

func TestCheckOrderingDetectsOverlapAboveL0(t *testing.T) {
	v := NewVersion()
	v.Files[1] = []*FileMetadata{
		NewFileMetadata(1, 10, key("a", 1), key("m", 1)),
		NewFileMetadata(2, 10, key("h", 1), key("z", 1)),
	}
	require.Error(t, v.CheckOrdering(bytes.Compare))
}

type fakeTableCache struct {
	values map[base.FileNum]string
	opened []base.FileNum
}

func (f *fakeTableCache) Get(fileNum base.FileNum, _ uint64, _ base.InternalKey) ([]byte, LookupResult, error) {
	f.opened = append(f.opened, fileNum)
	v, ok := f.values[fileNum]
	if !ok {
		return nil, LookupNotFound, nil
	}
	if v == "" {
		return nil, LookupDeleted, nil
	}
	return []byte(v), LookupFound, nil
}

func TestVersionGetChecksL0NewestFirst(t *testing.T) {
	v := NewVersion()
	v.Files[0] = []*FileMetadata{
		NewFileMetadata(1, 10, key("a", 1), key("z", 1)),
		NewFileMetadata(2, 10, key("a", 1), key("z", 1)),
	}
	tc := &fakeTableCache{values: map[base.FileNum]string{2: "newer"}}
	value, _, err := v.Get(bytes.Compare, tc, key("m", 1))
	require.NoError(t, err)
	require.Equal(t, "newer", string(value))
	require.Equal(t, []base.FileNum{2}, tc.opened)
}

func TestVersionGetReturnsNotFoundForDeleted(t *testing.T) {
	v := NewVersion()
	v.Files[0] = []*FileMetadata{
		NewFileMetadata(1, 10, key("a", 1), key("z", 1)),
	}
	tc := &fakeTableCache{values: map[base.FileNum]string{1: ""}}
	_, _, err := v.Get(bytes.Compare, tc, key("m", 1))
	require.ErrorIs(t, err, base.ErrNotFound)
}

func TestUpdateStatsAssignsFileToCompactOnce(t *testing.T) {
	v := NewVersion()
	f := NewFileMetadata(1, 0, key("a", 1), key("z", 1))
	for i := int64(0); i < minSeeks-1; i++ {
		require.False(t, v.UpdateStats(GetStats{SeekFile: f}))
	}
	require.True(t, v.UpdateStats(GetStats{SeekFile: f}))
	require.Equal(t, f, v.FileToCompact)

	other := NewFileMetadata(2, 0, key("a", 1), key("z", 1))
	for i := int64(0); i < minSeeks; i++ {
		other.RecordSeek()
	}
	require.False(t, v.UpdateStats(GetStats{SeekFile: other}))
	require.Equal(t, f, v.FileToCompact)
}

func TestPickLevelForMemTableOutputStaysAtZeroOnL0Overlap(t *testing.T) {
	v := NewVersion()
	v.Files[0] = []*FileMetadata{NewFileMetadata(1, 10, key("a", 1), key("z", 1))}
	level := v.PickLevelForMemTableOutput(bytes.Compare, []byte("c"), []byte("d"), 2, 1<<30)
	require.Equal(t, 0, level)
}

func TestPickLevelForMemTableOutputPushesDeeperWhenClear(t *testing.T) {
	v := NewVersion()
	level := v.PickLevelForMemTableOutput(bytes.Compare, []byte("c"), []byte("d"), 2, 1<<30)
	require.Equal(t, 2, level)
}

func TestPickLevelForMemTableOutputStopsAtLevelPlusOneOverlap(t *testing.T) {
	v := NewVersion()
	v.Files[1] = []*FileMetadata{NewFileMetadata(1, 10, key("c", 1), key("d", 1))}
	level := v.PickLevelForMemTableOutput(bytes.Compare, []byte("c"), []byte("d"), 2, 1<<30)
	require.Equal(t, 0, level)
}
