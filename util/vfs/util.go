// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package vfs

import (
	"io"

	"github.com/pkg/errors"
)

// WriteFile atomically creates the named file with the content produced by write.
func WriteFile(fs FileSystem, name string, write func(w io.Writer) error) error {
	file, err := fs.CreateAtomicFile(name)
	if err != nil {
		return errors.Wrap(err, "create failed")
	}
	defer file.Close()

	err = write(file)
	if err != nil {
		return errors.Wrap(err, "write failed")
	}

	err = file.Commit()
	if err != nil {
		return errors.Wrap(err, "commit failed")
	}

	return nil
}

// ReadFile returns the whole content of the named file.
func ReadFile(fs FileSystem, name string) ([]byte, error) {
	file, err := fs.OpenFile(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
