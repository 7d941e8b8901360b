// Copyright 2013 The LevelDB-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lsm

import (
	"github.com/go-lsm/lsm/internal/base"
	"github.com/go-lsm/lsm/internal/manifest"
)

// Compaction describes one planned merge of files from level into level+1,
// picked against a fixed Version. Inputs[0] holds the files read from
// level, Inputs[1] the overlapping files from level+1, and Inputs[2] the
// grandparent files from level+2 that bound how much a single output file
// is allowed to grow.
type Compaction struct {
	version *version
	level   int

	Inputs [3][]*fileMetadata

	// grandparentIndex and seenKey track ShouldStopBefore's cursor as it
	// walks Inputs[2] in increasing-key order, matching the single forward
	// pass the caller is required to drive it with.
	grandparentIndex        int
	seenKey                 bool
	grandparentOverlapBytes int64

	// baseLevelCursor caches IsBaseLevelForKey's per-level position,
	// exploiting the precondition that callers present keys in strictly
	// increasing order during a single compaction.
	baseLevelCursor [manifest.NumLevels]int
}

// Level returns the level being compacted; Inputs[0] comes from here and
// Inputs[1] from Level()+1.
func (c *Compaction) Level() int { return c.level }

// PickCompaction picks the single best compaction for vs' current Version,
// or returns nil if none is due. Size-driven compactions (compaction_score
// >= 1) take priority over seek-driven ones (a file whose seek budget has
// been exhausted); if neither trigger fires, no compaction is picked.
func PickCompaction(vs *VersionSet, opts *Options) *Compaction {
	cur := vs.CurrentVersion()
	if cur == nil {
		return nil
	}

	var c *Compaction
	switch {
	case cur.CompactionScore >= 1 && cur.CompactionLevel >= 0:
		c = &Compaction{version: cur, level: cur.CompactionLevel}
		c.Inputs[0] = pickSizeCompactionFile(cur, vs, c.level)
	case cur.FileToCompact != nil:
		c = &Compaction{version: cur, level: cur.FileToCompactLevel}
		c.Inputs[0] = []*fileMetadata{cur.FileToCompact}
	default:
		cur.Unref()
		return nil
	}

	// Files in level 0 may overlap each other, so pull in every file that
	// overlaps the initially chosen one(s).
	if c.level == 0 {
		smallest, largest := manifest.KeyRange(vs.cmp, c.Inputs[0], nil)
		c.Inputs[0] = cur.Overlaps(0, vs.cmp, smallest.UserKey, largest.UserKey)
		if len(c.Inputs[0]) == 0 {
			cur.Unref()
			return nil
		}
	}

	c.setupOtherInputs(vs, opts)
	return c
}

// pickSizeCompactionFile selects the first file at level whose largest key
// sorts after the level's compact pointer, wrapping around to the first file
// if no file's largest key is past the pointer (the round-robin rule
// that keeps a single hot level from starving the rest of its files).
func pickSizeCompactionFile(cur *version, vs *VersionSet, level int) []*fileMetadata {
	files := cur.Files[level]
	if len(files) == 0 {
		return nil
	}
	pointer := vs.compactPointers[level]
	if len(pointer.UserKey) > 0 {
		for _, f := range files {
			if base.InternalCompare(vs.cmp, f.Largest, pointer) > 0 {
				return []*fileMetadata{f}
			}
		}
	}
	return []*fileMetadata{files[0]}
}

// setupOtherInputs fills in Inputs[1] and Inputs[2] and attempts to expand
// Inputs[0] without changing the set of Inputs[1] files, following the
// algorithm described for compaction-input expansion: R starts as the
// range of Inputs[0]; Inputs[1] is every level+1 file overlapping R; R' is
// the union with Inputs[1]; a self-expansion of Inputs[0] at level
// overlapping R' is accepted only if it leaves Inputs[1] unchanged and the
// total compaction size stays under the expanded-compaction byte limit.
// The level's compact pointer is advanced to the largest key now in
// Inputs[0].
func (c *Compaction) setupOtherInputs(vs *VersionSet, opts *Options) {
	smallest0, largest0 := manifest.KeyRange(vs.cmp, c.Inputs[0], nil)
	c.Inputs[1] = c.version.Overlaps(c.level+1, vs.cmp, smallest0.UserKey, largest0.UserKey)
	smallest01, largest01 := manifest.KeyRange(vs.cmp, c.Inputs[0], c.Inputs[1])

	if c.grow(vs, opts, smallest01, largest01) {
		smallest01, largest01 = manifest.KeyRange(vs.cmp, c.Inputs[0], c.Inputs[1])
	}

	if c.level+2 < manifest.NumLevels {
		c.Inputs[2] = c.version.Overlaps(c.level+2, vs.cmp, smallest01.UserKey, largest01.UserKey)
	}

	_, largestInput0 := manifest.KeyRange(vs.cmp, c.Inputs[0], nil)
	vs.compactPointers[c.level] = largestInput0
}

// grow attempts to widen Inputs[0] to every level file overlapping
// [sm, la] without changing the number of Inputs[1] files, reporting
// whether it succeeded.
func (c *Compaction) grow(vs *VersionSet, opts *Options, sm, la base.InternalKey) bool {
	if len(c.Inputs[1]) == 0 {
		return false
	}
	grow0 := c.version.Overlaps(c.level, vs.cmp, sm.UserKey, la.UserKey)
	if len(grow0) <= len(c.Inputs[0]) {
		return false
	}
	if int64(manifest.TotalSize(grow0)+manifest.TotalSize(c.Inputs[1])) >= opts.ExpandedCompactionByteSizeLimit() {
		return false
	}
	sm1, la1 := manifest.KeyRange(vs.cmp, grow0, nil)
	grow1 := c.version.Overlaps(c.level+1, vs.cmp, sm1.UserKey, la1.UserKey)
	if len(grow1) != len(c.Inputs[1]) {
		return false
	}
	c.Inputs[0] = grow0
	c.Inputs[1] = grow1
	return true
}

// CompactRange builds a Compaction that forces every file overlapping
// [start, end] at level into level+1, the entry point for a manual,
// user-requested compaction rather than one picked by PickCompaction. For
// level > 0 the set of inputs is truncated to TargetFileSize rather than
// self-expanded, since level > 0 files are already disjoint and expanding
// them has no analogue to level 0's "pull in every overlapping file" step.
func CompactRange(vs *VersionSet, opts *Options, level int, start, end []byte) *Compaction {
	cur := vs.CurrentVersion()
	if cur == nil {
		return nil
	}
	c := &Compaction{version: cur, level: level}
	c.Inputs[0] = cur.Overlaps(level, vs.cmp, start, end)
	if len(c.Inputs[0]) == 0 {
		cur.Unref()
		return nil
	}
	if level > 0 {
		var total uint64
		for i, f := range c.Inputs[0] {
			total += f.Size
			if total > uint64(opts.TargetFileSize) {
				c.Inputs[0] = c.Inputs[0][:i+1]
				break
			}
		}
	}
	c.setupOtherInputs(vs, opts)
	return c
}

// IsTrivialMove reports whether c can be resolved by simply relocating its
// single input file to level+1 without rewriting it: exactly one input
// file, no overlapping level+1 files, and bounded grandparent overlap so
// the move doesn't saddle level+2 with an expensive future merge.
func (c *Compaction) IsTrivialMove(opts *Options) bool {
	return len(c.Inputs[0]) == 1 && len(c.Inputs[1]) == 0 &&
		int64(manifest.TotalSize(c.Inputs[2])) <= opts.MaxGrandparentOverlapBytes()
}

// IsBaseLevelForKey reports whether it is guaranteed that no key/value
// pair at level+2 or deeper carries userKey, which makes it safe to drop
// an obsolete tombstone for userKey found while compacting at c.level.
// Callers must present keys in strictly increasing order within one
// compaction; IsBaseLevelForKey keeps a per-level cursor to make each call
// amortized rather than a full rescan.
func (c *Compaction) IsBaseLevelForKey(cmp base.Compare, userKey []byte) bool {
	for level := c.level + 2; level < manifest.NumLevels; level++ {
		files := c.version.Files[level]
		for i := c.baseLevelCursor[level]; i < len(files); i++ {
			f := files[i]
			if cmp(userKey, f.Largest.UserKey) <= 0 {
				if cmp(userKey, f.Smallest.UserKey) >= 0 {
					return false
				}
				c.baseLevelCursor[level] = i
				break
			}
			c.baseLevelCursor[level] = i + 1
		}
	}
	return true
}

// ShouldStopBefore reports whether the compaction output being built
// should be cut into a new file before including key, because the
// cumulative overlap with grandparent (level+2) files has crossed
// MaxGrandparentOverlapBytes. It must be called with keys in increasing
// order as a single file's worth of output is assembled.
func (c *Compaction) ShouldStopBefore(cmp base.Compare, key base.InternalKey, opts *Options) bool {
	grandparents := c.Inputs[2]
	for c.grandparentIndex < len(grandparents) &&
		base.InternalCompare(cmp, key, grandparents[c.grandparentIndex].Largest) > 0 {
		if c.seenKey {
			c.grandparentOverlapBytes += int64(grandparents[c.grandparentIndex].Size)
		}
		c.grandparentIndex++
	}
	c.seenKey = true
	if c.grandparentOverlapBytes > opts.MaxGrandparentOverlapBytes() {
		c.grandparentOverlapBytes = 0
		return true
	}
	return false
}

// AddInputDeletions records a delete for every input file (levels
// Level() and Level()+1; grandparents in Inputs[2] are read-only context
// and never deleted) into ve.
func (c *Compaction) AddInputDeletions(ve *versionEdit) {
	for i := 0; i < 2; i++ {
		for _, f := range c.Inputs[i] {
			ve.DeletedFiles = append(ve.DeletedFiles, deletedFileEntry{
				Level:   c.level + i,
				FileNum: f.FileNum,
			})
		}
	}
}

// ReleaseInputs drops the reference PickCompaction/CompactRange took on the
// pinned input Version, returning any files that Version's removal made
// obsolete. Individual input files are never unreferenced directly: their
// only reference comes from membership in c.version.Files, so releasing the
// Version itself is what correctly accounts for them.
func (c *Compaction) ReleaseInputs() (obsolete []*fileMetadata) {
	return c.version.Unref()
}
