// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/go-lsm/lsm/internal/base"
)

// Tags for the fields of an encoded VersionEdit. The numbering and the gap
// at 8 (retired, once reserved for an experimental field) are part of the
// on-disk format and must not change.
const (
	tagComparator     = 1
	tagLogNumber      = 2
	tagNextFileNumber = 3
	tagLastSequence   = 4
	tagCompactPointer = 5
	tagDeletedFile    = 6
	tagNewFile        = 7
	tagPrevLogNumber  = 9
)

// CompactPointerEntry records, for one level, the largest key consumed by
// the most recent compaction that read from it, so the next size-driven
// compaction at that level can pick up where the last one left off.
type CompactPointerEntry struct {
	Level     int
	LargestKey base.InternalKey
}

// DeletedFileEntry identifies a file removed from a level by this edit.
type DeletedFileEntry struct {
	Level   int
	FileNum base.FileNum
}

// NewFileEntry identifies a file added to a level by this edit.
type NewFileEntry struct {
	Level int
	Meta  *FileMetadata
}

// VersionEdit is a set of changes to apply to the latest Version to produce
// the next one. It is both the manifest's wire record and the argument
// passed to VersionSet.LogAndApply.
type VersionEdit struct {
	// ComparatorName, if HasComparator, names the key-ordering function the
	// database was created with; recovery rejects a mismatch.
	ComparatorName string
	HasComparator  bool

	// LogNumber, if HasLogNumber, is the number of the write-ahead log that
	// is still needed to recover the current memtable.
	LogNumber    base.FileNum
	HasLogNumber bool

	// PrevLogNumber, if HasPrevLogNumber, is the number of an additional,
	// obsolete write-ahead log retained for backward compatibility with
	// older manifests. Newly written edits never set it.
	PrevLogNumber    base.FileNum
	HasPrevLogNumber bool

	// NextFileNumber, if HasNextFileNumber, is the next number the file
	// number allocator will hand out.
	NextFileNumber    base.FileNum
	HasNextFileNumber bool

	// LastSequence, if HasLastSequence, is the largest sequence number
	// written to the database as of this edit.
	LastSequence    base.SeqNum
	HasLastSequence bool

	CompactPointers []CompactPointerEntry
	DeletedFiles    []DeletedFileEntry
	NewFiles        []NewFileEntry
}

// Encode appends the tagged-record encoding of e to w.
func (e *VersionEdit) Encode(w io.Writer) error {
	buf := new(bytes.Buffer)

	if e.HasComparator {
		putUvarint(buf, tagComparator)
		putLengthPrefixedString(buf, e.ComparatorName)
	}
	if e.HasLogNumber {
		putUvarint(buf, tagLogNumber)
		putUvarint(buf, uint64(e.LogNumber))
	}
	if e.HasPrevLogNumber {
		putUvarint(buf, tagPrevLogNumber)
		putUvarint(buf, uint64(e.PrevLogNumber))
	}
	if e.HasNextFileNumber {
		putUvarint(buf, tagNextFileNumber)
		putUvarint(buf, uint64(e.NextFileNumber))
	}
	if e.HasLastSequence {
		putUvarint(buf, tagLastSequence)
		putUvarint(buf, uint64(e.LastSequence))
	}
	for _, c := range e.CompactPointers {
		putUvarint(buf, tagCompactPointer)
		putUvarint(buf, uint64(c.Level))
		putLengthPrefixedKey(buf, c.LargestKey)
	}
	for _, d := range e.DeletedFiles {
		putUvarint(buf, tagDeletedFile)
		putUvarint(buf, uint64(d.Level))
		putUvarint(buf, uint64(d.FileNum))
	}
	for _, n := range e.NewFiles {
		putUvarint(buf, tagNewFile)
		putUvarint(buf, uint64(n.Level))
		putUvarint(buf, uint64(n.Meta.FileNum))
		putUvarint(buf, n.Meta.Size)
		putLengthPrefixedKey(buf, n.Meta.Smallest)
		putLengthPrefixedKey(buf, n.Meta.Largest)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// Decode parses a tagged-record encoding of a VersionEdit from r.
func (e *VersionEdit) Decode(r io.Reader) error {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	for {
		tag, err := binary.ReadUvarint(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return base.CorruptionErrorf("manifest: invalid tag: %v", err)
		}
		switch tag {
		case tagComparator:
			s, err := readLengthPrefixedString(br)
			if err != nil {
				return err
			}
			e.ComparatorName = s
			e.HasComparator = true
		case tagLogNumber:
			n, err := readUvarint(br)
			if err != nil {
				return err
			}
			e.LogNumber = base.FileNum(n)
			e.HasLogNumber = true
		case tagPrevLogNumber:
			n, err := readUvarint(br)
			if err != nil {
				return err
			}
			e.PrevLogNumber = base.FileNum(n)
			e.HasPrevLogNumber = true
		case tagNextFileNumber:
			n, err := readUvarint(br)
			if err != nil {
				return err
			}
			e.NextFileNumber = base.FileNum(n)
			e.HasNextFileNumber = true
		case tagLastSequence:
			n, err := readUvarint(br)
			if err != nil {
				return err
			}
			e.LastSequence = base.SeqNum(n)
			e.HasLastSequence = true
		case tagCompactPointer:
			level, err := readLevel(br)
			if err != nil {
				return err
			}
			key, err := readLengthPrefixedKey(br)
			if err != nil {
				return err
			}
			e.CompactPointers = append(e.CompactPointers, CompactPointerEntry{Level: level, LargestKey: key})
		case tagDeletedFile:
			level, err := readLevel(br)
			if err != nil {
				return err
			}
			n, err := readUvarint(br)
			if err != nil {
				return err
			}
			e.DeletedFiles = append(e.DeletedFiles, DeletedFileEntry{Level: level, FileNum: base.FileNum(n)})
		case tagNewFile:
			level, err := readLevel(br)
			if err != nil {
				return err
			}
			fileNum, err := readUvarint(br)
			if err != nil {
				return err
			}
			size, err := readUvarint(br)
			if err != nil {
				return err
			}
			smallest, err := readLengthPrefixedKey(br)
			if err != nil {
				return err
			}
			largest, err := readLengthPrefixedKey(br)
			if err != nil {
				return err
			}
			e.NewFiles = append(e.NewFiles, NewFileEntry{
				Level: level,
				Meta:  NewFileMetadata(base.FileNum(fileNum), size, smallest, largest),
			})
		default:
			return base.CorruptionErrorf("manifest: unknown tag %d", tag)
		}
	}
}

func readLevel(r io.ByteReader) (int, error) {
	n, err := readUvarint(r)
	if err != nil {
		return 0, err
	}
	if n >= NumLevels {
		return 0, base.CorruptionErrorf("manifest: level %d out of range", n)
	}
	return int(n), nil
}

func readUvarint(r io.ByteReader) (uint64, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return 0, base.CorruptionErrorf("manifest: unexpected eof")
		}
		return 0, base.CorruptionErrorf("manifest: invalid varint: %v", err)
	}
	return n, nil
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putLengthPrefixedString(buf *bytes.Buffer, s string) {
	putUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readLengthPrefixedString(r io.ByteReader) (string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	for i := range b {
		c, err := r.ReadByte()
		if err != nil {
			return "", base.CorruptionErrorf("manifest: truncated string: %v", err)
		}
		b[i] = c
	}
	return string(b), nil
}

func putLengthPrefixedKey(buf *bytes.Buffer, k base.InternalKey) {
	putUvarint(buf, uint64(k.Size()))
	tmp := make([]byte, k.Size())
	k.Encode(tmp)
	buf.Write(tmp)
}

func readLengthPrefixedKey(r io.ByteReader) (base.InternalKey, error) {
	n, err := readUvarint(r)
	if err != nil {
		return base.InternalKey{}, err
	}
	b := make([]byte, n)
	for i := range b {
		c, err := r.ReadByte()
		if err != nil {
			return base.InternalKey{}, base.CorruptionErrorf("manifest: truncated key: %v", err)
		}
		b[i] = c
	}
	return base.DecodeInternalKey(b), nil
}

// BulkVersionEdit accumulates a run of VersionEdits (as encountered while
// replaying a manifest, or as about to be applied together) and turns them
// into a single consistent Apply against a base Version. Deleting and then
// re-adding the same file number within one accumulation is treated as a
// bug and rejected rather than silently resolved.
type BulkVersionEdit struct {
	Added   [NumLevels]map[base.FileNum]*FileMetadata
	Deleted [NumLevels]map[base.FileNum]bool

	// AccumulatedEdit carries forward the most recent value of every
	// optional scalar field seen, for callers (manifest replay) that need
	// the final counters after accumulating a whole manifest.
	AccumulatedEdit VersionEdit
}

// Accumulate folds edit into the builder's pending state.
func (b *BulkVersionEdit) Accumulate(edit *VersionEdit) error {
	for _, df := range edit.DeletedFiles {
		if _, ok := b.Added[df.Level][df.FileNum]; ok {
			// Added by an earlier accumulated edit and removed again now.
			delete(b.Added[df.Level], df.FileNum)
			continue
		}
		if b.Deleted[df.Level] == nil {
			b.Deleted[df.Level] = make(map[base.FileNum]bool)
		}
		b.Deleted[df.Level][df.FileNum] = true
	}
	for _, nf := range edit.NewFiles {
		if b.Deleted[nf.Level] != nil && b.Deleted[nf.Level][nf.Meta.FileNum] {
			return base.AssertionFailedf("manifest: file %s added and deleted in the same edit", nf.Meta.FileNum)
		}
		if b.Added[nf.Level] == nil {
			b.Added[nf.Level] = make(map[base.FileNum]*FileMetadata)
		}
		b.Added[nf.Level][nf.Meta.FileNum] = nf.Meta
	}

	if edit.HasComparator {
		b.AccumulatedEdit.ComparatorName = edit.ComparatorName
		b.AccumulatedEdit.HasComparator = true
	}
	if edit.HasLogNumber {
		b.AccumulatedEdit.LogNumber = edit.LogNumber
		b.AccumulatedEdit.HasLogNumber = true
	}
	if edit.HasPrevLogNumber {
		b.AccumulatedEdit.PrevLogNumber = edit.PrevLogNumber
		b.AccumulatedEdit.HasPrevLogNumber = true
	}
	if edit.HasNextFileNumber {
		b.AccumulatedEdit.NextFileNumber = edit.NextFileNumber
		b.AccumulatedEdit.HasNextFileNumber = true
	}
	if edit.HasLastSequence {
		b.AccumulatedEdit.LastSequence = edit.LastSequence
		b.AccumulatedEdit.HasLastSequence = true
	}
	b.AccumulatedEdit.CompactPointers = append(b.AccumulatedEdit.CompactPointers, edit.CompactPointers...)
	return nil
}

// Apply produces the Version that results from applying the builder's
// accumulated adds/deletes on top of curr (which may be nil, denoting the
// empty Version). Level 0 is sorted by descending file number so that the
// newest file is checked first during lookups (I2); levels >= 1 are sorted
// by smallest key and asserted disjoint (I1).
func (b *BulkVersionEdit) Apply(curr *Version, cmp base.Compare) (*Version, error) {
	v := NewVersion()
	for level := 0; level < NumLevels; level++ {
		var baseFiles []*FileMetadata
		if curr != nil {
			baseFiles = curr.Files[level]
		}
		deleted := b.Deleted[level]
		added := b.Added[level]

		files := make([]*FileMetadata, 0, len(baseFiles)+len(added))
		for _, f := range baseFiles {
			if deleted != nil && deleted[f.FileNum] {
				continue
			}
			f.Ref()
			files = append(files, f)
		}
		for _, f := range added {
			f.Ref()
			files = append(files, f)
		}

		if level == 0 {
			sort.Slice(files, func(i, j int) bool { return files[i].FileNum > files[j].FileNum })
		} else {
			sort.Slice(files, func(i, j int) bool {
				return base.InternalCompare(cmp, files[i].Smallest, files[j].Smallest) < 0
			})
			for i := 1; i < len(files); i++ {
				if base.InternalCompare(cmp, files[i-1].Largest, files[i].Smallest) >= 0 {
					return nil, base.AssertionFailedf(
						"manifest: level %d files overlap: %s and %s", level, files[i-1], files[i])
				}
			}
		}
		v.Files[level] = files
	}
	return v, nil
}
