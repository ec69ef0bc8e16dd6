// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

// Package bitset implements the growable bit vector used for tracking deleted documents.
package bitset

import (
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/pkg/errors"
)

const wordBits = 64

var ErrInvalidFormat = errors.New("invalid bit vector data")

// BitVector is a set of non-negative ints that grows when bits beyond its size are set.
// It keeps a running count of set bits.
type BitVector struct {
	data  []uint64
	size  int
	count int
}

// New creates a bit vector with room for size bits.
func New(size int) *BitVector {
	return &BitVector{data: make([]uint64, (size+wordBits-1)/wordBits), size: size}
}

func (bv *BitVector) grow(i int) {
	if i < bv.size {
		return
	}
	bv.size = i + 1
	n := (bv.size + wordBits - 1) / wordBits
	if n > cap(bv.data) {
		capacity := 2 * cap(bv.data)
		if capacity < n {
			capacity = n
		}
		data := make([]uint64, n, capacity)
		copy(data, bv.data)
		bv.data = data
	} else {
		bv.data = bv.data[:n]
	}
}

// Size returns the number of bits the vector covers.
func (bv *BitVector) Size() int {
	return bv.size
}

// Set sets bit i, extending the vector if needed.
func (bv *BitVector) Set(i int) {
	if i < 0 {
		panic("bitset: negative index")
	}
	bv.grow(i)
	w, m := i/wordBits, uint64(1)<<uint(i%wordBits)
	if bv.data[w]&m == 0 {
		bv.data[w] |= m
		bv.count++
	}
}

// Clear clears bit i. Bits beyond the size are already clear.
func (bv *BitVector) Clear(i int) {
	if i < 0 || i >= bv.size {
		return
	}
	w, m := i/wordBits, uint64(1)<<uint(i%wordBits)
	if bv.data[w]&m != 0 {
		bv.data[w] &^= m
		bv.count--
	}
}

func (bv *BitVector) Get(i int) bool {
	if i < 0 || i >= bv.size {
		return false
	}
	return bv.data[i/wordBits]&(uint64(1)<<uint(i%wordBits)) != 0
}

// Count returns the number of set bits.
func (bv *BitVector) Count() int {
	return bv.count
}

// Recount counts the set bits by scanning the whole vector.
func (bv *BitVector) Recount() int {
	n := 0
	for _, w := range bv.data {
		n += bits.OnesCount64(w)
	}
	return n
}

// ClearAll removes all bits, keeping the size.
func (bv *BitVector) ClearAll() {
	for i := range bv.data {
		bv.data[i] = 0
	}
	bv.count = 0
}

// NextSet returns the first set bit at or after i, or -1.
func (bv *BitVector) NextSet(i int) int {
	if i < 0 {
		i = 0
	}
	if i >= bv.size {
		return -1
	}
	w := i / wordBits
	word := bv.data[w] >> uint(i%wordBits)
	if word != 0 {
		return i + bits.TrailingZeros64(word)
	}
	for w++; w < len(bv.data); w++ {
		if bv.data[w] != 0 {
			return w*wordBits + bits.TrailingZeros64(bv.data[w])
		}
	}
	return -1
}

// Clone returns an independent copy.
func (bv *BitVector) Clone() *BitVector {
	data := make([]uint64, len(bv.data))
	copy(data, bv.data)
	return &BitVector{data: data, size: bv.size, count: bv.count}
}

// Write serializes the vector as its size, its count and the little-endian words.
func (bv *BitVector) Write(w io.Writer) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:], uint32(bv.size))
	binary.BigEndian.PutUint32(header[4:], uint32(bv.count))
	_, err := w.Write(header[:])
	if err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, bv.data)
}

// Read replaces the content of the vector with data written by Write.
func (bv *BitVector) Read(r io.Reader) error {
	var header [8]byte
	_, err := io.ReadFull(r, header[:])
	if err != nil {
		return errors.Wrap(err, "failed to read header")
	}
	size := int(binary.BigEndian.Uint32(header[0:]))
	count := int(binary.BigEndian.Uint32(header[4:]))
	data := make([]uint64, (size+wordBits-1)/wordBits)
	err = binary.Read(r, binary.LittleEndian, data)
	if err != nil {
		return errors.Wrap(err, "failed to read data")
	}
	bv.data, bv.size, bv.count = data, size, count
	if bv.Recount() != count {
		return ErrInvalidFormat
	}
	return nil
}
