// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package similarity

import (
	"math"
)

// Norms are stored as 8-bit floats with a 3-bit mantissa and a 5-bit exponent.
// The encoding is lossy, only about one significant decimal digit survives.
const (
	normMantissaBits = 3
	normZeroExp      = 15
	normZero         = (63 - normZeroExp) << normMantissaBits
)

var normTable [256]float64

func init() {
	for i := range normTable {
		normTable[i] = decodeNorm(byte(i))
	}
}

// EncodeNorm quantizes a normalization factor to one byte. Values are rounded down.
func EncodeNorm(f float64) byte {
	bits := int32(math.Float32bits(float32(f)))
	small := bits >> (24 - normMantissaBits)
	if small <= normZero {
		if bits <= 0 {
			return 0
		}
		return 1
	}
	if small >= normZero+0x100 {
		return 255
	}
	return byte(small - normZero)
}

func decodeNorm(b byte) float64 {
	if b == 0 {
		return 0
	}
	bits := uint32(b) << (24 - normMantissaBits)
	bits += (63 - normZeroExp) << 24
	return float64(math.Float32frombits(bits))
}

// DecodeNorm returns the normalization factor stored in a norm byte.
func DecodeNorm(b byte) float64 {
	return normTable[b]
}

// NormTable returns the decoding table for all 256 norm values.
func NormTable() *[256]float64 {
	return &normTable
}
