// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"log"
	"strings"

	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
)

// fileDeleter removes index files that are not referenced by any of the most recent
// generations. It must only run while the write lock is held.
//
// Open readers are not tracked. A reader opens or loads every file of its segments up
// front, so it keeps working after its generation is pruned only as long as the file
// system keeps removed files readable through open handles (POSIX, the memory dir).
type fileDeleter struct {
	fs          vfs.FileSystem
	keepCommits int
}

func newFileDeleter(fs vfs.FileSystem, keepCommits int) *fileDeleter {
	if keepCommits < 1 {
		keepCommits = 1
	}
	return &fileDeleter{fs: fs, keepCommits: keepCommits}
}

func isIndexFile(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, segmentsPrefix+"_")
}

// referencedFiles returns the files of the newest keepCommits readable generations.
func (d *fileDeleter) referencedFiles() (map[string]bool, error) {
	gens, err := listGenerations(d.fs)
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]bool)
	kept := 0
	for _, gen := range gens {
		if kept >= d.keepCommits {
			break
		}
		sis, err := readSegmentInfos(d.fs, gen)
		if err != nil {
			log.Printf("ignoring unreadable generation %d: %v", gen, err)
			continue
		}
		for _, name := range sis.Files() {
			referenced[name] = true
		}
		kept++
	}
	if kept == 0 && len(gens) > 0 {
		return nil, errors.Wrap(ErrCorruptIndex, "no readable generation")
	}
	return referenced, nil
}

// deleteUnused removes unreferenced files and returns their names. Files that cannot be
// removed now are picked up again by the next run.
func (d *fileDeleter) deleteUnused() ([]string, error) {
	referenced, err := d.referencedFiles()
	if err != nil {
		log.Printf("skipped removing unused files: %v", err)
		return nil, err
	}
	files, err := d.fs.ListFiles()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list files")
	}
	var deleted []string
	for _, name := range files {
		if !isIndexFile(name) || referenced[name] {
			continue
		}
		err := d.fs.Remove(name)
		if err != nil {
			log.Printf("failed to remove unused file %v: %v", name, err)
			continue
		}
		log.Printf("removed unused file %v", name)
		deleted = append(deleted, name)
	}
	return deleted, nil
}
