// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package manifest holds the version-management data model: file metadata,
// the immutable multi-version Version snapshot, and the VersionEdit delta
// that transitions one Version into the next.
package manifest

import (
	"fmt"
	"sync/atomic"

	"github.com/go-lsm/lsm/internal/base"
)

// NumLevels is the fixed number of levels a Version partitions its files
// into. Level 0 holds files written directly by memtable flushes and may
// overlap; levels 1..NumLevels-1 hold disjoint, sorted runs.
const NumLevels = 7

// bytesPerSeek and minSeeks implement the seek budget described in the data
// model: a file's seek budget is proportional to its size, one seek
// tolerated per ~16KiB, with a floor so that small files aren't compacted
// away immediately.
const (
	bytesPerSeek = 16 * 1024
	minSeeks     = 100
)

// FileMetadata describes one on-disk sorted table. It is shared by every
// Version that references the file: the identity fields never change once
// the file is created, while the accounting fields (Refs, SeeksRemaining)
// are mutated as Versions come and go and as reads charge seeks against it.
type FileMetadata struct {
	// FileNum is the file's unique identifier, drawn from the VersionSet's
	// monotonic allocator.
	FileNum base.FileNum
	// Size is the file's size on disk, in bytes.
	Size uint64
	// Smallest and Largest are the inclusive bounds of the internal keys
	// stored in the table.
	Smallest base.InternalKey
	Largest  base.InternalKey
	// MarkedForCompaction records that a manual request asked for this file
	// to be compacted regardless of score.
	MarkedForCompaction bool

	// refs counts the number of live Versions that reference this file.
	// It is mutated only while the VersionSet's mutex is held (I4).
	refs int32

	// seeksRemaining is the seek budget described in §3: decremented by
	// UpdateStats on the read path without the engine mutex, so it must be
	// atomic.
	seeksRemaining atomic.Int64
}

// NewFileMetadata constructs a FileMetadata and initializes its seek
// budget from its size: one seek per bytesPerSeek bytes, with a floor of
// minSeeks.
func NewFileMetadata(fileNum base.FileNum, size uint64, smallest, largest base.InternalKey) *FileMetadata {
	m := &FileMetadata{
		FileNum:  fileNum,
		Size:     size,
		Smallest: smallest,
		Largest:  largest,
	}
	m.InitSeeksRemaining()
	return m
}

// InitSeeksRemaining (re)computes the seek budget from the file's size.
// Called when a file is first created and when it is reconstructed during
// manifest recovery.
func (m *FileMetadata) InitSeeksRemaining() {
	seeks := int64(m.Size / bytesPerSeek)
	if seeks < minSeeks {
		seeks = minSeeks
	}
	m.seeksRemaining.Store(seeks)
}

// SeeksRemaining returns the file's remaining seek budget.
func (m *FileMetadata) SeeksRemaining() int64 {
	return m.seeksRemaining.Load()
}

// RecordSeek atomically decrements the file's seek budget by one and
// reports whether this call exhausted it (transitioned it to <= 0).
func (m *FileMetadata) RecordSeek() (exhausted bool) {
	return m.seeksRemaining.Add(-1) <= 0
}

// Refs returns the number of live Versions referencing this file.
func (m *FileMetadata) Refs() int32 { return atomic.LoadInt32(&m.refs) }

// Ref increments the file's reference count. Must be called with the
// VersionSet's mutex held.
func (m *FileMetadata) Ref() { atomic.AddInt32(&m.refs, 1) }

// Unref decrements the file's reference count and reports whether it
// reached zero, at which point the file is eligible for deletion (I3). Must
// be called with the VersionSet's mutex held.
func (m *FileMetadata) Unref() (obsolete bool) {
	return atomic.AddInt32(&m.refs, -1) == 0
}

func (m *FileMetadata) String() string {
	return fmt.Sprintf("%s:%s-%s", m.FileNum, m.Smallest, m.Largest)
}

// TotalSize returns the sum of Size over every file in files.
func TotalSize(files []*FileMetadata) (size uint64) {
	for _, f := range files {
		size += f.Size
	}
	return size
}

// KeyRange returns the smallest and largest internal keys spanned by the
// union of f0 and f1.
func KeyRange(cmp base.Compare, f0, f1 []*FileMetadata) (smallest, largest base.InternalKey) {
	first := true
	for _, files := range [2][]*FileMetadata{f0, f1} {
		for _, f := range files {
			if first {
				first = false
				smallest, largest = f.Smallest, f.Largest
				continue
			}
			if base.InternalCompare(cmp, f.Smallest, smallest) < 0 {
				smallest = f.Smallest
			}
			if base.InternalCompare(cmp, f.Largest, largest) > 0 {
				largest = f.Largest
			}
		}
	}
	return smallest, largest
}
