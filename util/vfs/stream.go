// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package vfs

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/acoustid/go-textindex/util/intcompress"
	"github.com/pkg/errors"
)

const inputBufferSize = 1024

var (
	ErrReadPastEOF    = errors.New("read past end of file")
	ErrInvalidVarint  = errors.New("invalid varint")
	ErrStringTooLarge = errors.New("string length exceeds file size")
)

// Input is a buffered, seekable reader of index primitives.
// Clones share the underlying file but keep their own position, only the original closes the file.
type Input struct {
	r        io.ReaderAt
	closer   io.Closer
	length   int64
	buf      []byte
	bufStart int64
	bufLen   int
	pos      int
}

// NewInput creates an Input reading length bytes from r.
func NewInput(r io.ReaderAt, length int64) *Input {
	return &Input{r: r, length: length, buf: make([]byte, inputBufferSize)}
}

// OpenInput opens the named file for reading.
func OpenInput(fs FileSystem, name string) (*Input, error) {
	file, err := fs.OpenFile(name)
	if err != nil {
		return nil, err
	}
	length, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "failed to get size of %v", name)
	}
	in := NewInput(file, length)
	in.closer = file
	return in, nil
}

// Clone returns an independent cursor over the same data, positioned where in is.
func (in *Input) Clone() *Input {
	c := &Input{r: in.r, length: in.length, buf: make([]byte, inputBufferSize)}
	c.bufStart = in.Position()
	return c
}

func (in *Input) Close() error {
	if in.closer == nil {
		return nil
	}
	err := in.closer.Close()
	in.closer = nil
	return err
}

func (in *Input) Length() int64 {
	return in.length
}

// Position returns the offset of the next byte to be read.
func (in *Input) Position() int64 {
	return in.bufStart + int64(in.pos)
}

func (in *Input) Seek(pos int64) error {
	if pos < 0 || pos > in.length {
		return ErrReadPastEOF
	}
	if pos >= in.bufStart && pos <= in.bufStart+int64(in.bufLen) {
		in.pos = int(pos - in.bufStart)
		return nil
	}
	in.bufStart = pos
	in.bufLen = 0
	in.pos = 0
	return nil
}

func (in *Input) refill() error {
	start := in.Position()
	if start >= in.length {
		return ErrReadPastEOF
	}
	n := int64(len(in.buf))
	if start+n > in.length {
		n = in.length - start
	}
	m, err := in.r.ReadAt(in.buf[:n], start)
	if int64(m) < n {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	in.bufStart = start
	in.bufLen = int(n)
	in.pos = 0
	return nil
}

func (in *Input) ReadByte() (byte, error) {
	if in.pos >= in.bufLen {
		err := in.refill()
		if err != nil {
			return 0, err
		}
	}
	b := in.buf[in.pos]
	in.pos++
	return b, nil
}

// ReadFull fills b completely.
func (in *Input) ReadFull(b []byte) error {
	for len(b) > 0 {
		if in.pos >= in.bufLen {
			if len(b) >= len(in.buf) {
				start := in.Position()
				if start+int64(len(b)) > in.length {
					return ErrReadPastEOF
				}
				m, err := in.r.ReadAt(b, start)
				if m < len(b) {
					if err == nil || err == io.EOF {
						err = io.ErrUnexpectedEOF
					}
					return err
				}
				in.bufStart = start + int64(len(b))
				in.bufLen = 0
				in.pos = 0
				return nil
			}
			err := in.refill()
			if err != nil {
				return err
			}
		}
		n := copy(b, in.buf[in.pos:in.bufLen])
		in.pos += n
		b = b[n:]
	}
	return nil
}

func (in *Input) ReadVInt() (uint32, error) {
	if in.bufLen-in.pos >= intcompress.MaxVarintLen32 {
		x, n := intcompress.Uvarint32(in.buf[in.pos:in.bufLen])
		if n <= 0 {
			return 0, ErrInvalidVarint
		}
		in.pos += n
		return x, nil
	}
	var tmp [intcompress.MaxVarintLen32]byte
	for i := range tmp {
		b, err := in.ReadByte()
		if err != nil {
			return 0, err
		}
		tmp[i] = b
		if b < 0x80 {
			x, n := intcompress.Uvarint32(tmp[:i+1])
			if n <= 0 {
				return 0, ErrInvalidVarint
			}
			return x, nil
		}
	}
	return 0, ErrInvalidVarint
}

// ReadVIntAsInt reads a vint that must fit into a non-negative int32.
func (in *Input) ReadVIntAsInt() (int, error) {
	x, err := in.ReadVInt()
	if err != nil {
		return 0, err
	}
	if x > 1<<31-1 {
		return 0, ErrInvalidVarint
	}
	return int(x), nil
}

func (in *Input) ReadVLong() (uint64, error) {
	if in.bufLen-in.pos >= intcompress.MaxVarintLen64 {
		x, n := intcompress.Uvarint64(in.buf[in.pos:in.bufLen])
		if n <= 0 {
			return 0, ErrInvalidVarint
		}
		in.pos += n
		return x, nil
	}
	var tmp [intcompress.MaxVarintLen64]byte
	for i := range tmp {
		b, err := in.ReadByte()
		if err != nil {
			return 0, err
		}
		tmp[i] = b
		if b < 0x80 {
			x, n := intcompress.Uvarint64(tmp[:i+1])
			if n <= 0 {
				return 0, ErrInvalidVarint
			}
			return x, nil
		}
	}
	return 0, ErrInvalidVarint
}

func (in *Input) ReadUint32() (uint32, error) {
	var b [4]byte
	err := in.ReadFull(b[:])
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (in *Input) ReadUint64() (uint64, error) {
	var b [8]byte
	err := in.ReadFull(b[:])
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (in *Input) ReadString() (string, error) {
	n, err := in.ReadVInt()
	if err != nil {
		return "", err
	}
	if int64(n) > in.length-in.Position() {
		return "", ErrStringTooLarge
	}
	b := make([]byte, n)
	err = in.ReadFull(b)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Output is a buffered writer of index primitives that tracks its file position.
// Write errors are sticky, the first one is returned by Err, Flush and Commit.
type Output struct {
	w       *bufio.Writer
	file    AtomicFile
	pos     int64
	err     error
	scratch [intcompress.MaxVarintLen64]byte
}

// NewOutput creates an Output writing to w.
func NewOutput(w io.Writer) *Output {
	return &Output{w: bufio.NewWriter(w)}
}

// CreateOutput creates the named file. The file only becomes visible after Commit.
func CreateOutput(fs FileSystem, name string) (*Output, error) {
	file, err := fs.CreateAtomicFile(name)
	if err != nil {
		return nil, err
	}
	out := NewOutput(file)
	out.file = file
	return out, nil
}

// Position returns the number of bytes written so far.
func (out *Output) Position() int64 {
	return out.pos
}

// Err returns the first error that occurred while writing.
func (out *Output) Err() error {
	return out.err
}

func (out *Output) Write(p []byte) (int, error) {
	if out.err != nil {
		return 0, out.err
	}
	n, err := out.w.Write(p)
	out.pos += int64(n)
	out.err = err
	return n, err
}

func (out *Output) WriteByte(b byte) error {
	if out.err != nil {
		return out.err
	}
	out.err = out.w.WriteByte(b)
	if out.err == nil {
		out.pos++
	}
	return out.err
}

func (out *Output) WriteBytes(b []byte) {
	out.Write(b)
}

func (out *Output) WriteVInt(x uint32) {
	n := intcompress.PutUvarint32(out.scratch[:], x)
	out.Write(out.scratch[:n])
}

func (out *Output) WriteVLong(x uint64) {
	n := intcompress.PutUvarint64(out.scratch[:], x)
	out.Write(out.scratch[:n])
}

func (out *Output) WriteUint32(x uint32) {
	binary.BigEndian.PutUint32(out.scratch[:4], x)
	out.Write(out.scratch[:4])
}

func (out *Output) WriteUint64(x uint64) {
	binary.BigEndian.PutUint64(out.scratch[:8], x)
	out.Write(out.scratch[:8])
}

func (out *Output) WriteString(s string) {
	out.WriteVInt(uint32(len(s)))
	if out.err != nil {
		return
	}
	n, err := out.w.WriteString(s)
	out.pos += int64(n)
	out.err = err
}

func (out *Output) Flush() error {
	if out.err != nil {
		return out.err
	}
	out.err = out.w.Flush()
	return out.err
}

// Commit flushes the buffered data and makes the file visible.
func (out *Output) Commit() error {
	err := out.Flush()
	if err != nil {
		return errors.Wrap(err, "write failed")
	}
	if out.file == nil {
		return nil
	}
	err = out.file.Commit()
	if err != nil {
		return errors.Wrap(err, "commit failed")
	}
	return nil
}

// Close releases the file. Uncommitted data is discarded.
func (out *Output) Close() error {
	if out.file == nil {
		return nil
	}
	err := out.file.Close()
	out.file = nil
	return err
}
