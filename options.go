// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsm

import (
	"github.com/go-lsm/lsm/internal/base"
	"github.com/go-lsm/lsm/vfs"
)

// Options holds the tunables that parameterize version management and
// compaction planning. Every field has a sensible default filled in by
// EnsureDefaults, mirroring the defaulting pattern the rest of the ambient
// stack uses for its own configuration structs.
type Options struct {
	// Comparer supplies the user-key ordering. Defaults to byte-wise order.
	Comparer *base.Comparer

	// FS is the virtual filesystem the manifest, CURRENT file, and tables
	// are read from and written to. Defaults to the operating system's.
	FS vfs.FS

	// Logger receives diagnostic output describing manifest rotations and
	// fatal manifest write failures. Defaults to the standard library logger.
	Logger base.Logger

	// L0CompactionThreshold is the number of level-0 files that triggers a
	// size-driven compaction out of level 0, independent of total bytes.
	L0CompactionThreshold int

	// LBaseMaxBytes is the byte budget of level 1; budgets for deeper levels
	// grow geometrically from it.
	LBaseMaxBytes int64

	// LevelMultiplier is the geometric growth factor applied to each
	// level's byte budget relative to the one above it.
	LevelMultiplier int64

	// TargetFileSize is the size a compaction aims to make each output
	// file, before input expansion or grandparent-overlap limits apply.
	TargetFileSize int64

	// ExpandedCompactionByteSizeLimitFactor bounds, as a multiple of
	// TargetFileSize, how large the self-expansion of Inputs[0] in
	// setupOtherInputs is allowed to grow the compaction, at any level.
	ExpandedCompactionByteSizeLimitFactor int64

	// MaxGrandparentOverlapBytesFactor bounds, as a multiple of TargetFileSize,
	// how much of level+2 a single compaction output file may overlap
	// before ShouldStopBefore cuts a new file, and how much overlap
	// IsTrivialMove will tolerate.
	MaxGrandparentOverlapBytesFactor int64

	// MaxMemCompactLevel bounds how deep PickLevelForMemTableOutput will
	// push a flushed memtable's output file.
	MaxMemCompactLevel int

	// BytesPerSeek and MinSeeks describe the seek-budget heuristic: one
	// seek tolerated per BytesPerSeek bytes of file size, floored at
	// MinSeeks. The budget itself is computed by internal/manifest from its
	// own constants with the same default values; these fields are not
	// read when a file's budget is assigned.
	BytesPerSeek int64
	MinSeeks     int64
}

// EnsureDefaults fills in every unset field with its default value. It
// returns opts for convenient chaining and is always safe to call on a nil
// receiver, returning a fresh, fully defaulted Options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	if o.L0CompactionThreshold == 0 {
		o.L0CompactionThreshold = 4
	}
	if o.LBaseMaxBytes == 0 {
		o.LBaseMaxBytes = 10 * 1024 * 1024
	}
	if o.LevelMultiplier == 0 {
		o.LevelMultiplier = 10
	}
	if o.TargetFileSize == 0 {
		o.TargetFileSize = 2 * 1024 * 1024
	}
	if o.ExpandedCompactionByteSizeLimitFactor == 0 {
		o.ExpandedCompactionByteSizeLimitFactor = 25
	}
	if o.MaxGrandparentOverlapBytesFactor == 0 {
		o.MaxGrandparentOverlapBytesFactor = 10
	}
	if o.MaxMemCompactLevel == 0 {
		o.MaxMemCompactLevel = 2
	}
	if o.BytesPerSeek == 0 {
		o.BytesPerSeek = 16 * 1024
	}
	if o.MinSeeks == 0 {
		o.MinSeeks = 100
	}
	return o
}

// ExpandedCompactionByteSizeLimit returns the absolute byte limit derived
// from TargetFileSize and ExpandedCompactionByteSizeLimitFactor.
func (o *Options) ExpandedCompactionByteSizeLimit() int64 {
	return o.ExpandedCompactionByteSizeLimitFactor * o.TargetFileSize
}

// MaxGrandparentOverlapBytes returns the absolute byte limit derived from
// TargetFileSize and MaxGrandparentOverlapBytesFactor.
func (o *Options) MaxGrandparentOverlapBytes() int64 {
	return o.MaxGrandparentOverlapBytesFactor * o.TargetFileSize
}
