// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrIndexNotFound   = errors.New("no index found")
	ErrCorruptIndex    = errors.New("corrupt index")
	ErrStaleReader     = errors.New("reader is stale, the index was changed since it was opened")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrTermsOutOfOrder = errors.New("terms out of order")
	ErrDocsOutOfOrder  = errors.New("docs out of order")
	ErrInvalidDocID    = errors.New("invalid doc id")
)

// CorruptIndexError reports malformed data in an index file.
type CorruptIndexError struct {
	File   string
	Reason string
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("corrupt index file %s: %s", e.File, e.Reason)
}

func (e *CorruptIndexError) Is(target error) bool {
	return target == ErrCorruptIndex
}

func corruptf(file string, format string, args ...interface{}) error {
	return &CorruptIndexError{File: file, Reason: fmt.Sprintf(format, args...)}
}

// IsCorrupt returns true if err was caused by malformed index data.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptIndex)
}
