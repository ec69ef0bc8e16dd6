// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

// Package vfs provides the file abstraction all index files are read from and written to.
package vfs

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dchest/safefile"
	"github.com/pkg/errors"
)

// InputFile is a read-only file opened from a FileSystem.
type InputFile interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// AtomicFile is a file being written. Its content becomes visible under the
// final name only after Commit, closing it without commit discards it.
type AtomicFile interface {
	io.Writer
	io.Closer
	Commit() error
}

// FileSystem is a flat directory of named files.
type FileSystem interface {
	fmt.Stringer
	io.Closer

	OpenFile(name string) (InputFile, error)
	CreateAtomicFile(name string) (AtomicFile, error)
	Remove(name string) error
	Exists(name string) bool
	FileSize(name string) (int64, error)
	ListFiles() ([]string, error)
	Lock(name string) Lock
}

var (
	ErrNotDirectory = errors.New("not a directory")
	ErrExist        = os.ErrExist
	ErrNotExist     = os.ErrNotExist
)

func IsExist(err error) bool {
	return os.IsExist(errors.Cause(err))
}

func IsNotExist(err error) bool {
	return os.IsNotExist(errors.Cause(err))
}

type fsDir struct {
	path      string
	temporary bool
}

// OpenDir opens a directory on the filesystem, optionally also create it if it does not exist.
func OpenDir(path string, create bool) (FileSystem, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	if stat, err := os.Stat(path); err != nil {
		if create && os.IsNotExist(err) {
			err = os.MkdirAll(path, 0750)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	} else if !stat.IsDir() {
		return nil, ErrNotDirectory
	}

	return &fsDir{path: path}, nil
}

// CreateTempDir creates a new directory in the system temp location. It is removed on Close.
func CreateTempDir() (FileSystem, error) {
	path, err := os.MkdirTemp("", "textindex")
	if err != nil {
		return nil, err
	}
	log.Printf("created new temp directory at %v", path)
	return &fsDir{path: path, temporary: true}, nil
}

func (d *fsDir) String() string {
	return d.path
}

func (d *fsDir) Close() error {
	if d.temporary {
		return os.RemoveAll(d.path)
	}
	return nil
}

func (d *fsDir) OpenFile(name string) (InputFile, error) {
	return os.Open(filepath.Join(d.path, name))
}

func (d *fsDir) CreateAtomicFile(name string) (AtomicFile, error) {
	return safefile.Create(filepath.Join(d.path, name), 0644)
}

func (d *fsDir) Remove(name string) error {
	err := os.Remove(filepath.Join(d.path, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *fsDir) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(d.path, name))
	return err == nil
}

func (d *fsDir) FileSize(name string) (int64, error) {
	stat, err := os.Stat(filepath.Join(d.path, name))
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

func (d *fsDir) ListFiles() ([]string, error) {
	infos, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

func (d *fsDir) Lock(name string) Lock {
	return &fsLock{name: name, path: filepath.Join(d.path, name)}
}

type memDir struct {
	mu      sync.RWMutex
	entries map[string][]byte
	locks   map[string]string
}

type memFileReader struct {
	*bytes.Reader
}

func (f *memFileReader) Close() error {
	return nil
}

type memFileWriter struct {
	bytes.Buffer
	dir       *memDir
	name      string
	committed bool
}

// CreateMemDir creates a temporary directory that only lives in the memory.
func CreateMemDir() FileSystem {
	return &memDir{
		entries: make(map[string][]byte),
		locks:   make(map[string]string),
	}
}

func (d *memDir) String() string {
	return "memory"
}

func (d *memDir) Close() error {
	return nil
}

func (d *memDir) OpenFile(name string) (InputFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &memFileReader{Reader: bytes.NewReader(entry)}, nil
}

func (d *memDir) CreateAtomicFile(name string) (AtomicFile, error) {
	return &memFileWriter{dir: d, name: name}, nil
}

func (d *memDir) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, name)
	return nil
}

func (d *memDir) Exists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entries[name]
	return ok
}

func (d *memDir) FileSize(name string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[name]
	if !ok {
		return 0, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	return int64(len(entry)), nil
}

func (d *memDir) ListFiles() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *memDir) Lock(name string) Lock {
	return &memLock{dir: d, name: name}
}

func (f *memFileWriter) Commit() error {
	if f.committed {
		return nil
	}
	data := make([]byte, f.Len())
	copy(data, f.Bytes())
	f.dir.mu.Lock()
	f.dir.entries[f.name] = data
	f.dir.mu.Unlock()
	f.committed = true
	return nil
}

func (f *memFileWriter) Close() error {
	return nil
}
