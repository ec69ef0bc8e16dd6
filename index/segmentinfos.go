// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"bytes"
	"encoding/binary"
	"io"
	"log"
	"sort"

	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const (
	segmentsMagic     = 0x53454753
	segmentsVersion   = 1
	segmentsGenMagic  = 0x53474e31
	checksumSize      = 8
	segmentsGenLength = 4 + 8 + 8 + checksumSize
)

// SegmentInfo describes one segment of a generation.
type SegmentInfo struct {
	Name     string
	DocCount int
	// DelGen is the generation of the deletions file, zero if none was ever written.
	// Generations only grow, so a file name is never reused for different content.
	DelGen   int64
	DelCount int
	// HasVectors is set if the segment stores term vectors.
	HasVectors bool
	// NormFields lists the fields with norms.
	NormFields []int
	// NormGens maps field numbers to the generation of their separately written norms.
	NormGens map[int]int64
}

func (si *SegmentInfo) Clone() *SegmentInfo {
	c := *si
	c.NormFields = append([]int(nil), si.NormFields...)
	if si.NormGens != nil {
		c.NormGens = make(map[int]int64, len(si.NormGens))
		for k, v := range si.NormGens {
			c.NormGens[k] = v
		}
	}
	return &c
}

// NumDocs returns the number of live documents.
func (si *SegmentInfo) NumDocs() int {
	return si.DocCount - si.DelCount
}

// HasDeletions returns true if any document of the segment is deleted.
func (si *SegmentInfo) HasDeletions() bool {
	return si.DelCount > 0
}

func (si *SegmentInfo) HasSeparateNorms() bool {
	return len(si.NormGens) > 0
}

// normsFile returns the current norms file of a field.
func (si *SegmentInfo) normsFile(field int) string {
	if gen := si.NormGens[field]; gen > 0 {
		return separateNormsFileName(si.Name, gen, field)
	}
	return normsFileName(si.Name, field)
}

// Files returns the names of all files the segment consists of.
func (si *SegmentInfo) Files() []string {
	files := []string{
		segmentFileName(si.Name, "fnm"),
		segmentFileName(si.Name, "tis"),
		segmentFileName(si.Name, "tii"),
		segmentFileName(si.Name, "frq"),
		segmentFileName(si.Name, "prx"),
		segmentFileName(si.Name, "fdx"),
		segmentFileName(si.Name, "fdt"),
	}
	if si.HasVectors {
		files = append(files, segmentFileName(si.Name, "tvx"), segmentFileName(si.Name, "tvf"))
	}
	for _, field := range si.NormFields {
		files = append(files, si.normsFile(field))
	}
	if si.DelGen > 0 {
		files = append(files, delFileName(si.Name, si.DelGen))
	}
	return files
}

// SegmentInfos is one generation of the index, the ordered list of its segments.
type SegmentInfos struct {
	Generation int64
	// Version is incremented with every commit.
	Version  int64
	Counter  int
	Segments []*SegmentInfo
}

func (sis *SegmentInfos) Clone() *SegmentInfos {
	c := *sis
	c.Segments = make([]*SegmentInfo, len(sis.Segments))
	for i, si := range sis.Segments {
		c.Segments[i] = si.Clone()
	}
	return &c
}

func (sis *SegmentInfos) NumDocs() int {
	n := 0
	for _, si := range sis.Segments {
		n += si.NumDocs()
	}
	return n
}

func (sis *SegmentInfos) MaxDoc() int {
	n := 0
	for _, si := range sis.Segments {
		n += si.DocCount
	}
	return n
}

// Files returns all files referenced by this generation, including its segments file.
func (sis *SegmentInfos) Files() []string {
	files := []string{segmentsFileName(sis.Generation)}
	for _, si := range sis.Segments {
		files = append(files, si.Files()...)
	}
	return files
}

func (sis *SegmentInfos) newSegmentName() string {
	name := segmentName(sis.Counter)
	sis.Counter++
	return name
}

func (sis *SegmentInfos) encode() []byte {
	var buf bytes.Buffer
	out := vfs.NewOutput(&buf)
	out.WriteUint32(segmentsMagic)
	out.WriteUint32(segmentsVersion)
	out.WriteUint64(uint64(sis.Version))
	out.WriteVInt(uint32(sis.Counter))
	out.WriteVInt(uint32(len(sis.Segments)))
	for _, si := range sis.Segments {
		out.WriteString(si.Name)
		out.WriteVInt(uint32(si.DocCount))
		out.WriteVLong(uint64(si.DelGen))
		out.WriteVInt(uint32(si.DelCount))
		if si.HasVectors {
			out.WriteByte(1)
		} else {
			out.WriteByte(0)
		}
		out.WriteVInt(uint32(len(si.NormFields)))
		for _, field := range si.NormFields {
			out.WriteVInt(uint32(field))
			out.WriteVLong(uint64(si.NormGens[field]))
		}
	}
	out.Flush()
	data := buf.Bytes()
	return appendChecksum(data)
}

func appendChecksum(data []byte) []byte {
	var sum [checksumSize]byte
	binary.BigEndian.PutUint64(sum[:], xxhash.Sum64(data))
	return append(data, sum[:]...)
}

func verifyChecksum(name string, data []byte) ([]byte, error) {
	if len(data) < checksumSize {
		return nil, corruptf(name, "file is too short")
	}
	n := len(data) - checksumSize
	if xxhash.Sum64(data[:n]) != binary.BigEndian.Uint64(data[n:]) {
		return nil, corruptf(name, "checksum mismatch")
	}
	return data[:n], nil
}

func decodeSegmentInfos(name string, data []byte) (*SegmentInfos, error) {
	data, err := verifyChecksum(name, data)
	if err != nil {
		return nil, err
	}
	in := vfs.NewInput(bytes.NewReader(data), int64(len(data)))
	fail := func(err error) (*SegmentInfos, error) {
		return nil, corruptf(name, "%v", err)
	}
	magic, err := in.ReadUint32()
	if err != nil {
		return fail(err)
	}
	if magic != segmentsMagic {
		return nil, corruptf(name, "invalid magic 0x%08x", magic)
	}
	version, err := in.ReadUint32()
	if err != nil {
		return fail(err)
	}
	if version != segmentsVersion {
		return nil, corruptf(name, "unsupported version %d", version)
	}
	sis := &SegmentInfos{}
	v, err := in.ReadUint64()
	if err != nil {
		return fail(err)
	}
	sis.Version = int64(v)
	sis.Counter, err = in.ReadVIntAsInt()
	if err != nil {
		return fail(err)
	}
	count, err := in.ReadVIntAsInt()
	if err != nil {
		return fail(err)
	}
	for i := 0; i < count; i++ {
		si := &SegmentInfo{}
		si.Name, err = in.ReadString()
		if err != nil {
			return fail(err)
		}
		si.DocCount, err = in.ReadVIntAsInt()
		if err != nil {
			return fail(err)
		}
		delGen, err := in.ReadVLong()
		if err != nil {
			return fail(err)
		}
		si.DelGen = int64(delGen)
		si.DelCount, err = in.ReadVIntAsInt()
		if err != nil {
			return fail(err)
		}
		hasVectors, err := in.ReadByte()
		if err != nil {
			return fail(err)
		}
		si.HasVectors = hasVectors != 0
		numNorms, err := in.ReadVIntAsInt()
		if err != nil {
			return fail(err)
		}
		for j := 0; j < numNorms; j++ {
			field, err := in.ReadVIntAsInt()
			if err != nil {
				return fail(err)
			}
			gen, err := in.ReadVLong()
			if err != nil {
				return fail(err)
			}
			si.NormFields = append(si.NormFields, field)
			if gen > 0 {
				if si.NormGens == nil {
					si.NormGens = make(map[int]int64)
				}
				si.NormGens[field] = int64(gen)
			}
		}
		sis.Segments = append(sis.Segments, si)
	}
	if in.Position() != in.Length() {
		return nil, corruptf(name, "%d trailing bytes", in.Length()-in.Position())
	}
	return sis, nil
}

// readSegmentInfos reads one specific generation.
func readSegmentInfos(fs vfs.FileSystem, gen int64) (*SegmentInfos, error) {
	name := segmentsFileName(gen)
	data, err := vfs.ReadFile(fs, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %v", name)
	}
	sis, err := decodeSegmentInfos(name, data)
	if err != nil {
		return nil, err
	}
	sis.Generation = gen
	return sis, nil
}

// listGenerations returns the generations of all segments_N files, newest first.
func listGenerations(fs vfs.FileSystem) ([]int64, error) {
	files, err := fs.ListFiles()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list files")
	}
	var gens []int64
	for _, name := range files {
		if gen, ok := parseSegmentsFileName(name); ok {
			gens = append(gens, gen)
		}
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] > gens[j] })
	return gens, nil
}

// readGenPointer returns the generation recorded in segments.gen, or -1 if it is missing or damaged.
func readGenPointer(fs vfs.FileSystem) int64 {
	data, err := vfs.ReadFile(fs, segmentsGenFile)
	if err != nil || len(data) != segmentsGenLength {
		return -1
	}
	data, err = verifyChecksum(segmentsGenFile, data)
	if err != nil {
		return -1
	}
	if binary.BigEndian.Uint32(data[0:]) != segmentsGenMagic {
		return -1
	}
	gen1 := int64(binary.BigEndian.Uint64(data[4:]))
	gen2 := int64(binary.BigEndian.Uint64(data[12:]))
	if gen1 != gen2 {
		return -1
	}
	return gen1
}

func writeGenPointer(fs vfs.FileSystem, gen int64) error {
	data := make([]byte, segmentsGenLength-checksumSize, segmentsGenLength)
	binary.BigEndian.PutUint32(data[0:], segmentsGenMagic)
	binary.BigEndian.PutUint64(data[4:], uint64(gen))
	binary.BigEndian.PutUint64(data[12:], uint64(gen))
	data = appendChecksum(data)
	return vfs.WriteFile(fs, segmentsGenFile, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// LatestGeneration returns the newest generation present in the directory, or -1.
// The segments file of that generation is not checked for validity.
func LatestGeneration(fs vfs.FileSystem) (int64, error) {
	gens, err := listGenerations(fs)
	if err != nil {
		return -1, err
	}
	latest := readGenPointer(fs)
	if len(gens) > 0 && gens[0] > latest {
		latest = gens[0]
	}
	return latest, nil
}

// readLatestSegmentInfos finds the newest readable generation. If the newest segments
// file is damaged, for example by a crash while it was written, older generations are tried.
func readLatestSegmentInfos(fs vfs.FileSystem) (*SegmentInfos, error) {
	gens, err := listGenerations(fs)
	if err != nil {
		return nil, err
	}
	if pointer := readGenPointer(fs); pointer >= 0 && (len(gens) == 0 || pointer > gens[0]) {
		gens = append([]int64{pointer}, gens...)
	}
	if len(gens) == 0 {
		return nil, errors.Wrapf(ErrIndexNotFound, "no segments file in %v", fs)
	}
	var lastErr error
	for i, gen := range gens {
		sis, err := readSegmentInfos(fs, gen)
		if err == nil {
			if i > 0 {
				log.Printf("fell back to generation %d of the index, newer generations are unreadable (latest=%d)", gen, gens[0])
			}
			return sis, nil
		}
		log.Printf("failed to read generation %d of the index: %v", gen, err)
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, "no readable generation")
}

// commit writes the next generation. The previous segments file stays untouched, so a crash
// while writing leaves the index at the previous generation.
func (sis *SegmentInfos) commit(fs vfs.FileSystem) error {
	latest, err := LatestGeneration(fs)
	if err != nil {
		return err
	}
	gen := sis.Generation + 1
	if latest >= gen {
		gen = latest + 1
	}
	sis.Version++
	name := segmentsFileName(gen)
	data := sis.encode()
	err = vfs.WriteFile(fs, name, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		sis.Version--
		return errors.Wrapf(err, "failed to write %v", name)
	}
	sis.Generation = gen
	err = writeGenPointer(fs, gen)
	if err != nil {
		// the segments_N file is authoritative, the pointer is only a hint
		log.Printf("failed to write %v: %v", segmentsGenFile, err)
	}
	return nil
}
