// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-lsm/lsm/vfs"
)

// FileNum is an internal DB identifier for a file. File numbers are drawn
// from a single monotonic space shared by manifests, logs, and tables.
type FileNum uint64

// String returns the zero-padded, six-digit textual form used in filenames.
func (fn FileNum) String() string { return fmt.Sprintf("%06d", uint64(fn)) }

// FileType enumerates the kinds of file found in a database directory.
type FileType int

// The FileType enumeration.
const (
	FileTypeLog FileType = iota
	FileTypeLock
	FileTypeTable
	FileTypeManifest
	FileTypeCurrent
)

var fileTypeNames = [...]string{
	FileTypeLog:      "log",
	FileTypeLock:     "lock",
	FileTypeTable:    "table",
	FileTypeManifest: "manifest",
	FileTypeCurrent:  "current",
}

func (t FileType) String() string {
	if t < 0 || int(t) >= len(fileTypeNames) {
		return "unknown"
	}
	return fileTypeNames[t]
}

// MakeFilename builds a filename from a file type and number, matching the
// layout in the persisted-state table: CURRENT, MANIFEST-<num>, <num>.ldb,
// <num>.log.
func MakeFilename(fs vfs.FS, dirname string, fileType FileType, fileNum FileNum) string {
	var name string
	switch fileType {
	case FileTypeLog:
		name = fmt.Sprintf("%s.log", fileNum)
	case FileTypeLock:
		name = "LOCK"
	case FileTypeTable:
		name = fmt.Sprintf("%s.ldb", fileNum)
	case FileTypeManifest:
		name = fmt.Sprintf("MANIFEST-%s", fileNum)
	case FileTypeCurrent:
		name = "CURRENT"
	default:
		panic("base: unknown file type")
	}
	return fs.PathJoin(dirname, name)
}

// ParseFilename parses the file type and number out of a filename previously
// built by MakeFilename.
func ParseFilename(fs vfs.FS, filename string) (fileType FileType, fileNum FileNum, ok bool) {
	filename = fs.PathBase(filename)
	switch {
	case filename == "CURRENT":
		return FileTypeCurrent, 0, true
	case filename == "LOCK":
		return FileTypeLock, 0, true
	case strings.HasPrefix(filename, "MANIFEST-"):
		u, err := strconv.ParseUint(filename[len("MANIFEST-"):], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeManifest, FileNum(u), true
	default:
		i := strings.IndexByte(filename, '.')
		if i < 0 {
			return 0, 0, false
		}
		u, err := strconv.ParseUint(filename[:i], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		switch filename[i+1:] {
		case "ldb":
			return FileTypeTable, FileNum(u), true
		case "log":
			return FileTypeLog, FileNum(u), true
		}
	}
	return 0, 0, false
}

// SetCurrentFile atomically updates the CURRENT file to name the manifest
// identified by manifestFileNum: it writes the new content to a temporary
// file, fsyncs it, and renames it over CURRENT.
func SetCurrentFile(dirname string, fs vfs.FS, manifestFileNum FileNum) error {
	manifestFilename := fs.PathBase(MakeFilename(fs, dirname, FileTypeManifest, manifestFileNum))
	newFilename := MakeFilename(fs, dirname, FileTypeCurrent, 0)
	tmpFilename := fmt.Sprintf("%s.%s.dbtmp", newFilename, manifestFileNum)

	fs.Remove(tmpFilename)
	f, err := fs.Create(tmpFilename)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s\n", manifestFilename); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fs.Rename(tmpFilename, newFilename)
}
