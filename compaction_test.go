// Copyright 2013 The LevelDB-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lsm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-lsm/lsm/internal/base"
	"github.com/go-lsm/lsm/internal/manifest"
	"github.com/go-lsm/lsm/vfs"
)

func ik(s string, seq base.SeqNum) base.InternalKey {
	return base.MakeInternalKey([]byte(s), seq, base.InternalKeyKindSet)
}

func newTestVS() *VersionSet {
	opts := (&Options{FS: vfs.NewMem()}).EnsureDefaults()
	var mu sync.Mutex
	return NewVersionSet("db", opts, &mu)
}

func TestIsTrivialMoveRequiresSingleFileAndNoOverlap(t *testing.T) {
	opts := (&Options{}).EnsureDefaults()
	c := &Compaction{
		Inputs: [3][]*fileMetadata{
			{manifest.NewFileMetadata(1, 10, ik("a", 1), ik("c", 1))},
			nil,
			nil,
		},
	}
	require.True(t, c.IsTrivialMove(opts))

	c.Inputs[1] = []*fileMetadata{manifest.NewFileMetadata(2, 10, ik("b", 1), ik("d", 1))}
	require.False(t, c.IsTrivialMove(opts))
}

func TestIsTrivialMoveRejectsExcessiveGrandparentOverlap(t *testing.T) {
	opts := (&Options{}).EnsureDefaults()
	c := &Compaction{
		Inputs: [3][]*fileMetadata{
			{manifest.NewFileMetadata(1, 10, ik("a", 1), ik("c", 1))},
			nil,
			{manifest.NewFileMetadata(2, uint64(opts.MaxGrandparentOverlapBytes())+1, ik("a", 1), ik("c", 1))},
		},
	}
	require.False(t, c.IsTrivialMove(opts))
}

func TestShouldStopBeforeCutsAfterGrandparentOverlapThreshold(t *testing.T) {
	opts := (&Options{}).EnsureDefaults()
	opts.MaxGrandparentOverlapBytesFactor = 1
	opts.TargetFileSize = 100

	c := &Compaction{
		Inputs: [3][]*fileMetadata{nil, nil, {
			manifest.NewFileMetadata(1, 150, ik("a", 1), ik("m", 1)),
			manifest.NewFileMetadata(2, 150, ik("n", 1), ik("z", 1)),
		}},
	}
	require.False(t, c.ShouldStopBefore(bytesCompare, ik("b", 1), opts))
	require.True(t, c.ShouldStopBefore(bytesCompare, ik("p", 1), opts))
}

func TestIsBaseLevelForKeyFalseWhenDeeperLevelOverlaps(t *testing.T) {
	v := manifest.NewVersion()
	v.Files[2] = []*manifest.FileMetadata{manifest.NewFileMetadata(1, 10, ik("a", 1), ik("z", 1))}
	c := &Compaction{version: v, level: 0}
	require.False(t, c.IsBaseLevelForKey(bytesCompare, []byte("m")))
}

func TestIsBaseLevelForKeyTrueWhenNoDeeperOverlap(t *testing.T) {
	v := manifest.NewVersion()
	c := &Compaction{version: v, level: 0}
	require.True(t, c.IsBaseLevelForKey(bytesCompare, []byte("m")))
}

func TestSetupOtherInputsPullsInGrandparents(t *testing.T) {
	vs := newTestVS()
	v := manifest.NewVersion()
	v.Files[0] = []*manifest.FileMetadata{manifest.NewFileMetadata(1, 10, ik("c", 5), ik("f", 5))}
	v.Files[1] = []*manifest.FileMetadata{manifest.NewFileMetadata(2, 10, ik("d", 3), ik("g", 3))}
	v.Files[2] = []*manifest.FileMetadata{manifest.NewFileMetadata(3, 10, ik("a", 1), ik("z", 1))}
	vs.append(v)

	c := &Compaction{version: v, level: 0, Inputs: [3][]*fileMetadata{v.Files[0], nil, nil}}
	c.setupOtherInputs(vs, vs.opts)

	require.Len(t, c.Inputs[1], 1)
	require.Len(t, c.Inputs[2], 1)
}

func TestPickCompactionPinsVersionAndReleaseInputsUnrefsIt(t *testing.T) {
	vs := newTestVS()
	opts := vs.opts
	opts.L0CompactionThreshold = 1

	v := manifest.NewVersion()
	v.Files[0] = []*manifest.FileMetadata{manifest.NewFileMetadata(1, 10, ik("a", 1), ik("c", 1))}
	vs.append(v)
	vs.Finalize(v)
	require.GreaterOrEqual(t, v.CompactionScore, 1.0)

	require.EqualValues(t, 1, v.Refs())
	c := PickCompaction(vs, opts)
	require.NotNil(t, c)
	require.EqualValues(t, 2, v.Refs())

	c.ReleaseInputs()
	require.EqualValues(t, 1, v.Refs())
}

func TestPickCompactionReturnsNilWithoutLeakingRef(t *testing.T) {
	vs := newTestVS()
	opts := vs.opts

	v := manifest.NewVersion()
	vs.append(v)

	require.EqualValues(t, 1, v.Refs())
	c := PickCompaction(vs, opts)
	require.Nil(t, c)
	require.EqualValues(t, 1, v.Refs())
}

func TestCompactRangePinsVersionAndReleaseInputsUnrefsIt(t *testing.T) {
	vs := newTestVS()
	opts := vs.opts

	v := manifest.NewVersion()
	v.Files[1] = []*manifest.FileMetadata{manifest.NewFileMetadata(1, 10, ik("a", 1), ik("z", 1))}
	vs.append(v)

	require.EqualValues(t, 1, v.Refs())
	c := CompactRange(vs, opts, 1, []byte("a"), []byte("z"))
	require.NotNil(t, c)
	require.EqualValues(t, 2, v.Refs())

	obsolete := c.ReleaseInputs()
	require.Empty(t, obsolete)
	require.EqualValues(t, 1, v.Refs())
}

func TestAddInputDeletionsCoversBothLevels(t *testing.T) {
	c := &Compaction{
		level: 3,
		Inputs: [3][]*fileMetadata{
			{manifest.NewFileMetadata(1, 10, ik("a", 1), ik("c", 1))},
			{manifest.NewFileMetadata(2, 10, ik("d", 1), ik("f", 1))},
			nil,
		},
	}
	var ve versionEdit
	c.AddInputDeletions(&ve)
	require.Len(t, ve.DeletedFiles, 2)
	require.Equal(t, 3, ve.DeletedFiles[0].Level)
	require.Equal(t, 4, ve.DeletedFiles[1].Level)
}

var bytesCompare = base.DefaultComparer.Compare
