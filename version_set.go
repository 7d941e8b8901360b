// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsm

import (
	"bytes"
	"io"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/go-lsm/lsm/internal/base"
	"github.com/go-lsm/lsm/internal/manifest"
	"github.com/go-lsm/lsm/internal/record"
	"github.com/go-lsm/lsm/vfs"
)

// maxManifestFileSize bounds how large a single manifest file is allowed to
// grow before LogAndApply starts a new one and rewrites a fresh snapshot.
const maxManifestFileSize = 128 << 20

// Provide short local aliases for the manifest package's exported types,
// matching the convention the rest of the ambient stack uses to keep
// version-management code readable without a manifest. prefix on every
// line.
type bulkVersionEdit = manifest.BulkVersionEdit
type fileMetadata = manifest.FileMetadata
type newFileEntry = manifest.NewFileEntry
type deletedFileEntry = manifest.DeletedFileEntry
type compactPointerEntry = manifest.CompactPointerEntry
type version = manifest.Version
type versionEdit = manifest.VersionEdit
type versionList = manifest.VersionList

// VersionSet manages the collection of immutable Versions that describe a
// database's on-disk table layout over time, and the single mutex that
// guards every transition between them. A new Version is produced from the
// current one by applying a VersionEdit; the edit is first durably logged
// to the manifest, so that replaying the manifest after a crash recovers
// the same sequence of Versions.
type VersionSet struct {
	dirname string
	mu      *sync.Mutex
	opts    *Options
	fs      vfs.FS
	cmp     base.Compare
	cmpName string

	versions versionList

	metrics Metrics

	// nextFileNum is the single counter used to allocate identifiers for
	// every kind of file: logs, manifests, and tables.
	nextFileNum base.FileNum

	// lastSequence is the upper bound on sequence numbers assigned so far.
	lastSequence base.SeqNum

	// logNum is the write-ahead log still needed to recover the current
	// memtable; it is carried through manifest edits but otherwise outside
	// this package's concern.
	logNum base.FileNum

	// compactPointers[level] is the largest key consumed by the most
	// recent size-driven compaction that read from level, so the next one
	// resumes where the last left off instead of always starting at the
	// smallest key.
	compactPointers [manifest.NumLevels]base.InternalKey

	manifestFileNum base.FileNum
	manifestFile    vfs.File
	manifestWriter  *record.Writer

	// writing and writerCond serialize manifest writers: only one
	// LogAndApply call may have a manifest record open for writing at a
	// time, since the manifest must record edits in version order.
	writing    bool
	writerCond sync.Cond
}

// NewVersionSet constructs a VersionSet bound to dirname and mu. mu is the
// engine-wide mutex; callers must hold it across every call into the
// VersionSet (LogAndApply briefly releases and reacquires it around
// manifest I/O).
func NewVersionSet(dirname string, opts *Options, mu *sync.Mutex) *VersionSet {
	vs := &VersionSet{
		dirname:     dirname,
		mu:          mu,
		opts:        opts,
		fs:          opts.FS,
		cmp:         opts.Comparer.Compare,
		cmpName:     opts.Comparer.Name,
		nextFileNum: 1,
		metrics:     *NewMetrics(),
	}
	vs.writerCond.L = mu
	vs.versions.Init(mu)
	return vs
}

// Create initializes a version set for a brand-new, empty database: an
// empty Version, and a manifest file containing a snapshot edit (just the
// comparator name, since there are no files yet), with CURRENT pointed at
// it.
func (vs *VersionSet) Create() error {
	empty := manifest.NewVersion()
	vs.append(empty)
	vs.metrics.updateLevelGauges(empty)

	vs.manifestFileNum = vs.getNextFileNum()
	if err := vs.createManifest(vs.manifestFileNum); err != nil {
		return err
	}
	if err := vs.manifestWriter.Flush(); err != nil {
		return errors.Wrap(err, "lsm: manifest flush failed")
	}
	if err := vs.manifestFile.Sync(); err != nil {
		return errors.Wrap(err, "lsm: manifest sync failed")
	}
	if err := base.SetCurrentFile(vs.dirname, vs.fs, vs.manifestFileNum); err != nil {
		return errors.Wrap(err, "lsm: setting CURRENT failed")
	}
	return nil
}

// Recover loads the version set from the CURRENT file and replays the
// manifest it names, rebuilding the current Version and every counter
// (next file number, last sequence number, compact pointers) from the
// edits recorded there. It rejects a manifest written under a different
// comparator and a manifest that contains no edits at all, reporting both
// as corruption errors.
func (vs *VersionSet) Recover() error {
	current, err := vs.fs.Open(base.MakeFilename(vs.fs, vs.dirname, base.FileTypeCurrent, 0))
	if err != nil {
		return errors.Wrapf(err, "lsm: could not open CURRENT file for %q", vs.dirname)
	}
	defer current.Close()

	stat, err := current.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		return base.CorruptionErrorf("lsm: CURRENT file for %q is empty", vs.dirname)
	}
	b := make([]byte, stat.Size())
	if _, err := current.ReadAt(b, 0); err != nil {
		return err
	}
	if b[len(b)-1] != '\n' {
		return base.CorruptionErrorf("lsm: CURRENT file for %q is malformed", vs.dirname)
	}
	b = bytes.TrimSpace(b)

	_, manifestFileNum, ok := base.ParseFilename(vs.fs, string(b))
	if !ok {
		return base.CorruptionErrorf("lsm: MANIFEST name %q is malformed", b)
	}
	vs.manifestFileNum = manifestFileNum

	manifestFile, err := vs.fs.Open(vs.fs.PathJoin(vs.dirname, string(b)))
	if err != nil {
		return errors.Wrapf(err, "lsm: could not open manifest file %q", b)
	}
	defer manifestFile.Close()

	var bve bulkVersionEdit
	var sawAnyEdit bool
	rr := record.NewReader(manifestFile)
	for {
		r, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if record.IsInvalidRecord(err) {
				break
			}
			return base.MarkCorruptionError(err)
		}
		var ve versionEdit
		if err := ve.Decode(r); err != nil {
			return base.MarkCorruptionError(err)
		}
		if ve.HasComparator {
			if ve.ComparatorName != vs.cmpName {
				return base.CorruptionErrorf(
					"lsm: manifest %q: comparator %q does not match configured comparator %q",
					b, ve.ComparatorName, vs.cmpName)
			}
		}
		if err := bve.Accumulate(&ve); err != nil {
			return base.MarkCorruptionError(err)
		}
		if ve.HasLogNumber {
			vs.logNum = ve.LogNumber
		}
		if ve.HasNextFileNumber {
			vs.markFileNumUsed(ve.NextFileNumber)
		}
		if ve.HasLastSequence {
			vs.lastSequence = ve.LastSequence
		}
		sawAnyEdit = true
	}
	if !sawAnyEdit {
		return base.CorruptionErrorf("lsm: manifest %q for %q contains no edits", b, vs.dirname)
	}
	for _, c := range bve.AccumulatedEdit.CompactPointers {
		vs.compactPointers[c.Level] = c.LargestKey
	}

	newVersion, err := bve.Apply(nil, vs.cmp)
	if err != nil {
		return base.MarkCorruptionError(err)
	}
	if err := newVersion.CheckOrdering(vs.cmp); err != nil {
		return base.MarkCorruptionError(err)
	}
	vs.Finalize(newVersion)
	vs.append(newVersion)
	vs.metrics.updateLevelGauges(newVersion)
	return nil
}

// Close releases the open manifest file, if any.
func (vs *VersionSet) Close() error {
	if vs.manifestFile != nil {
		return vs.manifestFile.Close()
	}
	return nil
}

// logLock acquires the exclusive right to write the next manifest record.
// The caller must hold vs.mu. The lock is released by LogAndApply or by an
// explicit logUnlock.
func (vs *VersionSet) logLock() {
	for vs.writing {
		vs.writerCond.Wait()
	}
	vs.writing = true
}

func (vs *VersionSet) logUnlock() {
	if !vs.writing {
		vs.opts.Logger.Fatalf("lsm: manifest not locked for writing")
	}
	vs.writing = false
	vs.writerCond.Signal()
}

// LogAndApply is the sole way a new Version comes into existence. It fills
// in any counter fields the caller left zero, builds the successor Version
// by applying ve on top of the current one, durably appends ve to the
// manifest (rotating to a fresh manifest file first if the current one has
// grown past maxManifestFileSize), and finally installs the new Version as
// current. vs.mu must be held on entry; it is released for the duration of
// the manifest I/O and reacquired before returning. If applying the edit or
// creating the new manifest file fails, the new Version and that manifest
// file are discarded and the current Version is left unchanged; a failure
// writing, flushing or syncing the edit, or updating CURRENT, is reported
// through Logger.Fatalf.
func (vs *VersionSet) LogAndApply(ve *versionEdit) error {
	vs.logLock()
	defer vs.logUnlock()

	if !ve.HasNextFileNumber {
		ve.NextFileNumber = vs.nextFileNum
		ve.HasNextFileNumber = true
	}
	if !ve.HasLastSequence {
		ve.LastSequence = vs.lastSequence
		ve.HasLastSequence = true
	}
	if !ve.HasLogNumber {
		ve.LogNumber = vs.logNum
		ve.HasLogNumber = true
	}

	currentVersion := vs.currentVersion()
	var newVersion *version

	var newManifestFileNum base.FileNum
	if vs.manifestWriter == nil || vs.manifestWriter.Size() >= maxManifestFileSize {
		newManifestFileNum = vs.getNextFileNum()
	}

	err := func() error {
		var bve bulkVersionEdit
		if err := bve.Accumulate(ve); err != nil {
			return err
		}

		var err error
		newVersion, err = bve.Apply(currentVersion, vs.cmp)
		if err != nil {
			return err
		}
		vs.Finalize(newVersion)

		vs.mu.Unlock()
		defer vs.mu.Lock()

		if newManifestFileNum != 0 {
			if err := vs.createManifest(newManifestFileNum); err != nil {
				vs.fs.Remove(base.MakeFilename(vs.fs, vs.dirname, base.FileTypeManifest, newManifestFileNum))
				return err
			}
		}

		w, err := vs.manifestWriter.Next()
		if err != nil {
			return err
		}
		// Past this point a failure is fatal: we cannot tell whether the
		// manifest write landed, so Recover's replay is the only way back to
		// a consistent state.
		if err := ve.Encode(w); err != nil {
			vs.opts.Logger.Fatalf("lsm: manifest write failed: %v", err)
		}
		if err := vs.manifestWriter.Flush(); err != nil {
			vs.opts.Logger.Fatalf("lsm: manifest flush failed: %v", err)
		}
		if err := vs.manifestFile.Sync(); err != nil {
			vs.opts.Logger.Fatalf("lsm: manifest sync failed: %v", err)
		}
		if newManifestFileNum != 0 {
			if err := base.SetCurrentFile(vs.dirname, vs.fs, newManifestFileNum); err != nil {
				vs.opts.Logger.Fatalf("lsm: setting CURRENT failed: %v", err)
			}
			vs.metrics.ManifestRotations.Inc()
			vs.opts.Logger.Infof("lsm: rotated manifest to %s", base.MakeFilename(vs.fs, vs.dirname, base.FileTypeManifest, newManifestFileNum))
		}
		return nil
	}()
	if err != nil {
		return err
	}

	for _, c := range ve.CompactPointers {
		vs.compactPointers[c.Level] = c.LargestKey
	}
	vs.logNum = ve.LogNumber
	vs.lastSequence = ve.LastSequence
	if newManifestFileNum != 0 {
		vs.manifestFileNum = newManifestFileNum
	}

	vs.append(newVersion)
	vs.metrics.updateLevelGauges(newVersion)
	return nil
}

// Finalize computes each level's compaction_score and records the level
// with the highest score as v.CompactionLevel/v.CompactionScore, the
// trigger a size-driven PickCompaction acts on. Level 0 is scored by file
// count against L0CompactionThreshold; levels >= 1 are scored by total
// byte size against a geometrically growing per-level budget rooted at
// LBaseMaxBytes.
func (vs *VersionSet) Finalize(v *version) {
	bestLevel := -1
	bestScore := -1.0

	l0Score := float64(v.NumFiles(0)) / float64(vs.opts.L0CompactionThreshold)
	if l0Score > bestScore {
		bestLevel, bestScore = 0, l0Score
	}

	levelBytes := vs.opts.LBaseMaxBytes
	for level := 1; level < manifest.NumLevels; level++ {
		score := float64(manifest.TotalSize(v.Files[level])) / float64(levelBytes)
		if score > bestScore {
			bestLevel, bestScore = level, score
		}
		levelBytes *= vs.opts.LevelMultiplier
	}

	v.CompactionLevel = bestLevel
	v.CompactionScore = bestScore
}

// createManifest creates a brand-new manifest file and writes a
// self-contained snapshot edit into it: the comparator name, every current
// compact pointer, and one new_file entry per file currently present at
// every level. No deleted_file entries are ever needed in a snapshot,
// since it describes a Version from scratch.
func (vs *VersionSet) createManifest(fileNum base.FileNum) (err error) {
	filename := base.MakeFilename(vs.fs, vs.dirname, base.FileTypeManifest, fileNum)
	var manifestFile vfs.File
	var manifestWriter *record.Writer
	defer func() {
		if manifestWriter != nil {
			manifestWriter.Close()
		}
		if manifestFile != nil {
			manifestFile.Close()
		}
		if err != nil {
			vs.fs.Remove(filename)
		}
	}()

	manifestFile, err = vs.fs.Create(filename)
	if err != nil {
		return err
	}
	manifestWriter = record.NewWriter(manifestFile)

	snapshot := versionEdit{
		ComparatorName: vs.cmpName,
		HasComparator:  true,
	}
	for level := 0; level < manifest.NumLevels; level++ {
		if t := vs.compactPointers[level]; len(t.UserKey) > 0 {
			snapshot.CompactPointers = append(snapshot.CompactPointers,
				compactPointerEntry{Level: level, LargestKey: t})
		}
	}
	current := vs.currentVersion()
	if current != nil {
		for level, files := range current.Files {
			for _, f := range files {
				snapshot.NewFiles = append(snapshot.NewFiles, newFileEntry{Level: level, Meta: f})
			}
		}
	}

	w, err := manifestWriter.Next()
	if err != nil {
		return err
	}
	if err := snapshot.Encode(w); err != nil {
		return err
	}

	vs.manifestWriter, manifestWriter = manifestWriter, nil
	vs.manifestFile, manifestFile = manifestFile, nil
	return nil
}

func (vs *VersionSet) markFileNumUsed(fileNum base.FileNum) {
	if vs.nextFileNum <= fileNum {
		vs.nextFileNum = fileNum + 1
	}
}

// getNextFileNum allocates and returns the next file number, advancing the
// shared counter used for logs, manifests, and tables alike.
func (vs *VersionSet) getNextFileNum() base.FileNum {
	n := vs.nextFileNum
	vs.nextFileNum++
	return n
}

func (vs *VersionSet) append(v *version) {
	if v.Refs() != 0 {
		panic("lsm: version should be unreferenced before being appended")
	}
	if !vs.versions.Empty() {
		vs.versions.Back().Unref()
	}
	v.Ref()
	vs.versions.PushBack(v)
}

// currentVersion returns the most recently installed Version.
func (vs *VersionSet) currentVersion() *version {
	if vs.versions.Empty() {
		return nil
	}
	return vs.versions.Back()
}

// CurrentVersion returns the most recently installed Version, referenced
// on the caller's behalf; the caller must Unref it when done.
func (vs *VersionSet) CurrentVersion() *version {
	v := vs.currentVersion()
	if v != nil {
		v.Ref()
	}
	return v
}

// AddLiveFileNums adds the file number of every file referenced by any
// Version still on the version list (not just the current one, since older
// Versions may still be in use by open iterators) into m.
func (vs *VersionSet) AddLiveFileNums(m map[base.FileNum]struct{}) {
	if vs.versions.Empty() {
		return
	}
	current := vs.currentVersion()
	for v := vs.versions.Front(); v != nil; v = v.Next() {
		for _, files := range v.Files {
			for _, f := range files {
				m[f.FileNum] = struct{}{}
			}
		}
		if v == current {
			break
		}
	}
}
