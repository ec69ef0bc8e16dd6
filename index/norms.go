// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"io"

	"github.com/acoustid/go-textindex/similarity"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
)

// defaultNorm is the norm of documents that do not contain a field.
var defaultNorm = similarity.EncodeNorm(1.0)

func writeNorms(fs vfs.FileSystem, name string, norms []byte) error {
	return vfs.WriteFile(fs, name, func(w io.Writer) error {
		_, err := w.Write(norms)
		return err
	})
}

func readNorms(fs vfs.FileSystem, name string, maxDoc int) ([]byte, error) {
	norms, err := vfs.ReadFile(fs, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read norms from %v", name)
	}
	if len(norms) != maxDoc {
		return nil, corruptf(name, "expected %d norms, found %d", maxDoc, len(norms))
	}
	return norms, nil
}

func fillNorms(norms []byte) []byte {
	for i := range norms {
		norms[i] = defaultNorm
	}
	return norms
}
