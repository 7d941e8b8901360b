// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// NewMem returns a new memory-backed FS implementation, used by tests to
// exercise manifest writing and recovery without touching disk.
func NewMem() *MemFS {
	return &MemFS{dirs: map[string]bool{"/": true}}
}

// MemFS implements FS using an in-memory map of file contents. It is not
// safe to share a *MemFS between processes; it exists purely for tests.
type MemFS struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string]*memNode
	locks map[string]bool
}

var _ FS = (*MemFS)(nil)

type memNode struct {
	mu      sync.Mutex
	data    []byte
	modTime time.Time
}

func clean(name string) string {
	if name == "" {
		return "/"
	}
	return path.Clean(strings.ReplaceAll(name, `\`, `/`))
}

func (y *MemFS) getOrCreate(name string) *memNode {
	if y.files == nil {
		y.files = make(map[string]*memNode)
	}
	n := y.files[name]
	if n == nil {
		n = &memNode{modTime: time.Now()}
		y.files[name] = n
	}
	return n
}

// Create implements FS.
func (y *MemFS) Create(name string) (File, error) {
	name = clean(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	n := y.getOrCreate(name)
	n.mu.Lock()
	n.data = nil
	n.modTime = time.Now()
	n.mu.Unlock()
	return &memFile{name: name, n: n, fs: y, writable: true}, nil
}

// Open implements FS.
func (y *MemFS) Open(name string) (File, error) {
	name = clean(name)
	y.mu.Lock()
	n := y.files[name]
	y.mu.Unlock()
	if n == nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &memFile{name: name, n: n, fs: y}, nil
}

// OpenDir implements FS.
func (y *MemFS) OpenDir(name string) (File, error) {
	name = clean(name)
	y.mu.Lock()
	ok := y.dirs[name]
	y.mu.Unlock()
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &memFile{name: name, n: &memNode{}, fs: y, isDir: true}, nil
}

// Remove implements FS.
func (y *MemFS) Remove(name string) error {
	name = clean(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.dirs[name] {
		delete(y.dirs, name)
		return nil
	}
	if _, ok := y.files[name]; !ok {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrNotExist}
	}
	delete(y.files, name)
	return nil
}

// Rename implements FS.
func (y *MemFS) Rename(oldname, newname string) error {
	oldname, newname = clean(oldname), clean(newname)
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.files[oldname]
	if !ok {
		return &os.PathError{Op: "rename", Path: oldname, Err: os.ErrNotExist}
	}
	delete(y.files, oldname)
	y.getOrCreateDirLocked(path.Dir(newname))
	y.files[newname] = n
	return nil
}

func (y *MemFS) getOrCreateDirLocked(dir string) {
	if y.dirs == nil {
		y.dirs = make(map[string]bool)
	}
	y.dirs[dir] = true
}

// MkdirAll implements FS.
func (y *MemFS) MkdirAll(dir string, perm os.FileMode) error {
	dir = clean(dir)
	y.mu.Lock()
	defer y.mu.Unlock()
	for {
		y.getOrCreateDirLocked(dir)
		parent := path.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil
}

// Lock implements FS.
func (y *MemFS) Lock(name string) (io.Closer, error) {
	name = clean(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.locks == nil {
		y.locks = make(map[string]bool)
	}
	if y.locks[name] {
		return nil, errors.Newf("vfs: %s already locked", name)
	}
	y.getOrCreate(name)
	y.locks[name] = true
	return &memLock{fs: y, name: name}, nil
}

type memLock struct {
	fs   *MemFS
	name string
}

func (l *memLock) Close() error {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	delete(l.fs.locks, l.name)
	return nil
}

// List implements FS.
func (y *MemFS) List(dir string) ([]string, error) {
	dir = clean(dir)
	if dir != "/" {
		dir += "/"
	}
	y.mu.Lock()
	defer y.mu.Unlock()
	var names []string
	for name := range y.files {
		if rel, ok := strings.CutPrefix(name, dir); ok && !strings.Contains(rel, "/") {
			names = append(names, rel)
		}
	}
	for name := range y.dirs {
		if name == dir || name+"/" == dir {
			continue
		}
		if rel, ok := strings.CutPrefix(name, dir); ok && rel != "" && !strings.Contains(rel, "/") {
			names = append(names, rel)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Stat implements FS.
func (y *MemFS) Stat(name string) (os.FileInfo, error) {
	name = clean(name)
	y.mu.Lock()
	n, ok := y.files[name]
	y.mu.Unlock()
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return memFileInfo{name: path.Base(name), size: int64(len(n.data)), modTime: n.modTime}, nil
}

// PathBase implements FS.
func (y *MemFS) PathBase(p string) string { return path.Base(clean(p)) }

// PathDir implements FS.
func (y *MemFS) PathDir(p string) string { return path.Dir(clean(p)) }

// PathJoin implements FS.
func (y *MemFS) PathJoin(elem ...string) string { return path.Join(elem...) }

type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (fi memFileInfo) Name() string       { return fi.name }
func (fi memFileInfo) Size() int64        { return fi.size }
func (fi memFileInfo) Mode() os.FileMode  { return 0644 }
func (fi memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi memFileInfo) IsDir() bool        { return false }
func (fi memFileInfo) Sys() interface{}   { return nil }

type memFile struct {
	name     string
	n        *memNode
	fs       *MemFS
	writable bool
	isDir    bool
	rpos     int
}

func (f *memFile) Close() error { return nil }

func (f *memFile) Read(p []byte) (int, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if f.rpos >= len(f.n.data) {
		return 0, io.EOF
	}
	n := copy(p, f.n.data[f.rpos:])
	f.rpos += n
	return n, nil
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if off >= int64(len(f.n.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.isDir {
		return 0, errors.New("vfs: cannot write to a directory handle")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.data = append(f.n.data, p...)
	f.n.modTime = time.Now()
	return len(p), nil
}

func (f *memFile) Stat() (os.FileInfo, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	return memFileInfo{name: path.Base(f.name), size: int64(len(f.n.data)), modTime: f.n.modTime}, nil
}

func (f *memFile) Sync() error { return nil }
