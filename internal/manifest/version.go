// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-lsm/lsm/internal/base"
)

// LookupResult is the outcome of a single candidate file's key lookup, as
// reported by the TableCache collaborator.
type LookupResult int

// The LookupResult enumeration.
const (
	LookupNotFound LookupResult = iota
	LookupFound
	LookupDeleted
)

// TableCache is the external collaborator the core delegates per-file key
// lookups to. The core never reads an SSTable's block format itself.
type TableCache interface {
	// Get looks up key within the table identified by fileNum/fileSize. It
	// returns the stored value on LookupFound, nil otherwise.
	Get(fileNum base.FileNum, fileSize uint64, key base.InternalKey) ([]byte, LookupResult, error)
}

// GetStats records seek-amplification accounting for a single Get call.
type GetStats struct {
	// SeekFile is the first file touched by Get that did not end up
	// producing the hit (or nil if only one file was touched).
	SeekFile      *FileMetadata
	SeekFileLevel int
}

// Version is an immutable snapshot of the on-disk table layout: for each of
// NumLevels levels, the ordered set of files present in that level, plus
// the compaction hints computed by Finalize.
//
// A Version is reference counted and participates in a circular
// doubly-linked list of live Versions (VersionList) so that unreferencing
// it is O(1).
type Version struct {
	refs int32

	Files [NumLevels][]*FileMetadata

	// CompactionLevel is the level Finalize chose as most in need of
	// compaction, or -1 if none.
	CompactionLevel int
	// CompactionScore is that level's pressure metric; >= 1 means a
	// compaction is due.
	CompactionScore float64

	// FileToCompact and FileToCompactLevel record a file whose seek budget
	// has been exhausted, set by UpdateStats.
	FileToCompact      *FileMetadata
	FileToCompactLevel int

	list       *VersionList
	prev, next *Version
}

// NewVersion returns a new, unreferenced, unlisted Version with CompactionLevel
// set to -1 (no compaction due).
func NewVersion() *Version {
	return &Version{CompactionLevel: -1}
}

func (v *Version) String() string {
	var buf bytes.Buffer
	for level := 0; level < NumLevels; level++ {
		if len(v.Files[level]) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "%d:", level)
		for _, f := range v.Files[level] {
			fmt.Fprintf(&buf, " %s-%s", f.Smallest.UserKey, f.Largest.UserKey)
		}
		fmt.Fprintf(&buf, "\n")
	}
	return buf.String()
}

// Refs returns the number of live references to the Version.
func (v *Version) Refs() int32 { return atomic.LoadInt32(&v.refs) }

// Ref increments the Version's reference count.
func (v *Version) Ref() { atomic.AddInt32(&v.refs, 1) }

// Unref decrements the Version's reference count. If it reaches zero, the
// Version is unlinked from its list and every file it referenced is
// unreferenced, returning any that became obsolete as a result. The caller
// must hold the mutex the Version's list was initialized with; Unref does
// not acquire it.
func (v *Version) Unref() (obsoleteFiles []*FileMetadata) {
	if atomic.AddInt32(&v.refs, -1) != 0 {
		return nil
	}
	v.list.remove(v)
	return v.unrefFiles()
}

func (v *Version) unrefFiles() (obsolete []*FileMetadata) {
	for _, files := range v.Files {
		for _, f := range files {
			if f.Unref() {
				obsolete = append(obsolete, f)
			}
		}
	}
	return obsolete
}

// NumFiles returns the number of files at level.
func (v *Version) NumFiles(level int) int { return len(v.Files[level]) }

// Next returns the next-newer Version on the same VersionList, or nil if v
// is the newest (current) one.
func (v *Version) Next() *Version {
	if v.next == &v.list.root {
		return nil
	}
	return v.next
}

// Overlaps returns every file at level whose user-key range intersects the
// inclusive range [start, end]. At level 0, files may overlap each other,
// so the range is expanded to the union of matching ranges and the scan
// restarts until the range stabilizes (§4.3, GetOverlappingInputs). At
// levels >= 1 a single binary-search pass suffices because files are
// disjoint (I1).
func (v *Version) Overlaps(level int, cmp base.Compare, start, end []byte) []*FileMetadata {
	if level == 0 {
		return v.overlapsL0(cmp, start, end)
	}
	files := v.Files[level]
	lower := sort.Search(len(files), func(i int) bool {
		return cmp(files[i].Largest.UserKey, start) >= 0
	})
	upper := sort.Search(len(files), func(i int) bool {
		return cmp(files[i].Smallest.UserKey, end) > 0
	})
	if lower >= upper {
		return nil
	}
	out := make([]*FileMetadata, upper-lower)
	copy(out, files[lower:upper])
	return out
}

func (v *Version) overlapsL0(cmp base.Compare, start, end []byte) []*FileMetadata {
	var ret []*FileMetadata
restart:
	for {
		for _, f := range v.Files[0] {
			smallest, largest := f.Smallest.UserKey, f.Largest.UserKey
			if cmp(largest, start) < 0 || cmp(smallest, end) > 0 {
				continue
			}
			ret = append(ret, f)
			widened := false
			if cmp(smallest, start) < 0 {
				start = smallest
				widened = true
			}
			if cmp(largest, end) > 0 {
				end = largest
				widened = true
			}
			if widened {
				ret = ret[:0]
				continue restart
			}
		}
		return ret
	}
}

// CheckOrdering verifies I1 and I2: level 0 is ordered by strictly
// decreasing file number (newest first), and every level >= 1 is ordered by
// smallest key with pairwise-disjoint ranges.
func (v *Version) CheckOrdering(cmp base.Compare) error {
	for level, files := range v.Files {
		if level == 0 {
			for i := 1; i < len(files); i++ {
				prev, f := files[i-1], files[i]
				if prev.FileNum <= f.FileNum {
					return fmt.Errorf("manifest: level 0 files are not in decreasing file number order: %d, %d",
						prev.FileNum, f.FileNum)
				}
			}
			continue
		}
		for i := 1; i < len(files); i++ {
			prev, f := files[i-1], files[i]
			if base.InternalCompare(cmp, prev.Largest, f.Smallest) >= 0 {
				return fmt.Errorf("manifest: level %d files are not in increasing disjoint order: %s, %s",
					level, prev.Largest, f.Smallest)
			}
			if base.InternalCompare(cmp, f.Smallest, f.Largest) > 0 {
				return fmt.Errorf("manifest: level %d file has inverted bounds: %s, %s", level, f.Smallest, f.Largest)
			}
		}
	}
	return nil
}

// Get looks up key, consulting level 0 (newest file first, by descending
// file number per I2) and then each level >= 1 in turn (at most one
// candidate file per level, by I1). stats.SeekFile records the first file
// touched that was not the one ultimately producing the result, the
// seek-amplification accounting hook consumed by UpdateStats.
func (v *Version) Get(
	cmp base.Compare, tc TableCache, key base.InternalKey,
) (value []byte, stats GetStats, err error) {
	userKey := key.UserKey

	l0 := v.Files[0]
	l0ByFileNumDesc := make([]*FileMetadata, len(l0))
	copy(l0ByFileNumDesc, l0)
	sort.Slice(l0ByFileNumDesc, func(i, j int) bool {
		return l0ByFileNumDesc[i].FileNum > l0ByFileNumDesc[j].FileNum
	})

	var firstTouched *FileMetadata
	var firstTouchedLevel int
	touched := 0
	touch := func(f *FileMetadata, level int) {
		touched++
		if firstTouched == nil {
			firstTouched = f
			firstTouchedLevel = level
		}
	}
	finish := func(hit *FileMetadata) {
		if firstTouched != nil && firstTouched != hit {
			stats.SeekFile = firstTouched
			stats.SeekFileLevel = firstTouchedLevel
		}
	}

	for _, f := range l0ByFileNumDesc {
		if cmp(userKey, f.Smallest.UserKey) < 0 || cmp(userKey, f.Largest.UserKey) > 0 {
			continue
		}
		touch(f, 0)
		v, res, lookupErr := tc.Get(f.FileNum, f.Size, key)
		if lookupErr != nil {
			return nil, stats, lookupErr
		}
		switch res {
		case LookupFound:
			finish(f)
			return v, stats, nil
		case LookupDeleted:
			finish(f)
			return nil, stats, base.ErrNotFound
		}
	}

	for level := 1; level < NumLevels; level++ {
		files := v.Files[level]
		i := sort.Search(len(files), func(i int) bool {
			return cmp(files[i].Largest.UserKey, userKey) >= 0
		})
		if i >= len(files) || cmp(files[i].Smallest.UserKey, userKey) > 0 {
			continue
		}
		f := files[i]
		touch(f, level)
		v, res, lookupErr := tc.Get(f.FileNum, f.Size, key)
		if lookupErr != nil {
			return nil, stats, lookupErr
		}
		switch res {
		case LookupFound:
			finish(f)
			return v, stats, nil
		case LookupDeleted:
			finish(f)
			return nil, stats, base.ErrNotFound
		}
	}
	if touched > 1 {
		finish(nil)
	}
	return nil, stats, base.ErrNotFound
}

// UpdateStats charges the seek recorded in stats against its file's seek
// budget. If the budget is exhausted and no file_to_compact is yet
// recorded on the Version, it assigns this one. Returns true if this call
// made a compaction newly required. Must be called with the VersionSet's
// mutex held, since it mutates FileToCompact, which PickCompaction reads.
func (v *Version) UpdateStats(stats GetStats) (newlyCompactionRequired bool) {
	f := stats.SeekFile
	if f == nil {
		return false
	}
	if !f.RecordSeek() {
		return false
	}
	if v.FileToCompact != nil {
		return false
	}
	v.FileToCompact = f
	v.FileToCompactLevel = stats.SeekFileLevel
	return true
}

// RecordReadSample walks the files overlapping key's user key from level 0
// downward; if two or more distinct files overlap, it charges a seek to
// the first one touched, via UpdateStats. This pulls read-heavy keys in
// low levels into compaction even absent size pressure.
func (v *Version) RecordReadSample(cmp base.Compare, key base.InternalKey) (newlyCompactionRequired bool) {
	userKey := key.UserKey
	var matches []struct {
		f     *FileMetadata
		level int
	}
	for level := 0; level < NumLevels; level++ {
		for _, f := range v.Files[level] {
			if cmp(userKey, f.Smallest.UserKey) < 0 || cmp(userKey, f.Largest.UserKey) > 0 {
				continue
			}
			matches = append(matches, struct {
				f     *FileMetadata
				level int
			}{f, level})
			if len(matches) >= 2 {
				return v.UpdateStats(GetStats{SeekFile: matches[0].f, SeekFileLevel: matches[0].level})
			}
		}
	}
	return false
}

// GetOverlappingInputs is Overlaps exposed under the name used by the
// compaction-selection algorithm.
func (v *Version) GetOverlappingInputs(level int, cmp base.Compare, start, end []byte) []*FileMetadata {
	return v.Overlaps(level, cmp, start, end)
}

// PickLevelForMemTableOutput chooses the level a newly flushed memtable's
// output file should land in. It defaults to level 0, pushing deeper only
// while the candidate level overlaps nothing in the levels it would skip
// past and would not create excessive grandparent overlap.
func (v *Version) PickLevelForMemTableOutput(
	cmp base.Compare, smallestUserKey, largestUserKey []byte, maxMemCompactLevel int, maxGrandparentOverlapBytes uint64,
) int {
	level := 0
	if len(v.Overlaps(0, cmp, smallestUserKey, largestUserKey)) > 0 {
		return level
	}
	for level < maxMemCompactLevel {
		if len(v.Overlaps(level+1, cmp, smallestUserKey, largestUserKey)) > 0 {
			break
		}
		if level+2 < NumLevels {
			overlaps := v.Overlaps(level+2, cmp, smallestUserKey, largestUserKey)
			if TotalSize(overlaps) > maxGrandparentOverlapBytes {
				break
			}
		}
		level++
	}
	return level
}

// VersionList is a circular, doubly-linked list of live Versions, with a
// sentinel root node, allowing Unref to unlink a Version in O(1).
type VersionList struct {
	mu   *sync.Mutex
	root Version
}

// Init initializes (or reinitializes) an empty list. mu is the mutex that
// guards structural changes to the list (the engine-wide VersionSet mutex).
func (l *VersionList) Init(mu *sync.Mutex) {
	l.mu = mu
	l.root.next = &l.root
	l.root.prev = &l.root
}

// Empty reports whether the list has no Versions.
func (l *VersionList) Empty() bool { return l.root.next == &l.root }

// Front returns the oldest Version in the list.
func (l *VersionList) Front() *Version { return l.root.next }

// Back returns the newest (current) Version in the list.
func (l *VersionList) Back() *Version { return l.root.prev }

// PushBack appends v as the new tail of the list (the current Version).
func (l *VersionList) PushBack(v *Version) {
	if v.list != nil || v.prev != nil || v.next != nil {
		panic("manifest: version is already linked")
	}
	v.prev = l.root.prev
	v.prev.next = v
	v.next = &l.root
	v.next.prev = v
	v.list = l
}

func (l *VersionList) remove(v *Version) {
	if v == &l.root {
		panic("manifest: cannot remove version list root")
	}
	if v.list != l {
		panic("manifest: version list is inconsistent")
	}
	v.prev.next = v.next
	v.next.prev = v.prev
	v.next, v.prev, v.list = nil, nil, nil
}
