// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

// Package intcompress implements the variable-length integer encoding used by the index files.
//
// Values are stored 7 bits per byte, least significant group first, with the high bit
// of each byte set when more bytes follow.
package intcompress

import "errors"

const (
	MaxVarintLen32 = 5
	MaxVarintLen64 = 10
)

var ErrOverflow = errors.New("varint overflows the target type")

// PutUvarint32 encodes x into buf and returns the number of bytes written.
// The buffer must be at least MaxVarintLen32 bytes long.
func PutUvarint32(buf []byte, x uint32) int {
	i := 0
	for x >= 0x80 {
		buf[i] = byte(x) | 0x80
		x >>= 7
		i++
	}
	buf[i] = byte(x)
	return i + 1
}

// Uvarint32 decodes a value from buf and returns it together with the number of bytes read.
// If the buffer is too small, n is 0. If the value does not fit into 32 bits, n is negative.
func Uvarint32(buf []byte) (x uint32, n int) {
	var s uint
	for i, b := range buf {
		if i == MaxVarintLen32 {
			return 0, -(i + 1)
		}
		if b < 0x80 {
			if i == MaxVarintLen32-1 && b > 0x0f {
				return 0, -(i + 1)
			}
			return x | uint32(b)<<s, i + 1
		}
		x |= uint32(b&0x7f) << s
		s += 7
	}
	return 0, 0
}

// PutUvarint64 encodes x into buf and returns the number of bytes written.
// The buffer must be at least MaxVarintLen64 bytes long.
func PutUvarint64(buf []byte, x uint64) int {
	i := 0
	for x >= 0x80 {
		buf[i] = byte(x) | 0x80
		x >>= 7
		i++
	}
	buf[i] = byte(x)
	return i + 1
}

// Uvarint64 is the 64-bit version of Uvarint32.
func Uvarint64(buf []byte) (x uint64, n int) {
	var s uint
	for i, b := range buf {
		if i == MaxVarintLen64 {
			return 0, -(i + 1)
		}
		if b < 0x80 {
			if i == MaxVarintLen64-1 && b > 1 {
				return 0, -(i + 1)
			}
			return x | uint64(b)<<s, i + 1
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, 0
}

// AppendUvarint32 appends the encoded x to buf.
func AppendUvarint32(buf []byte, x uint32) []byte {
	for x >= 0x80 {
		buf = append(buf, byte(x)|0x80)
		x >>= 7
	}
	return append(buf, byte(x))
}

// AppendUvarint64 appends the encoded x to buf.
func AppendUvarint64(buf []byte, x uint64) []byte {
	for x >= 0x80 {
		buf = append(buf, byte(x)|0x80)
		x >>= 7
	}
	return append(buf, byte(x))
}
