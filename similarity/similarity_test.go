package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeNorm(t *testing.T) {
	assert.Equal(t, byte(0), EncodeNorm(0))
	assert.Equal(t, byte(0), EncodeNorm(-1))
	assert.Equal(t, byte(1), EncodeNorm(1e-20), "tiny positive values do not collapse to zero")
	assert.Equal(t, byte(255), EncodeNorm(1e20))
	assert.Equal(t, byte(124), EncodeNorm(1))
	assert.Equal(t, 1.0, DecodeNorm(124))
	assert.Equal(t, 0.0, DecodeNorm(0))

	for i := 1; i < 256; i++ {
		f := DecodeNorm(byte(i))
		assert.True(t, f > DecodeNorm(byte(i-1)), "table is strictly increasing at %d", i)
		assert.Equal(t, byte(i), EncodeNorm(f), "decoded values encode back to themselves")
	}
}

func TestEncodeNorm_RoundsDown(t *testing.T) {
	for _, f := range []float64{0.1, 0.3, 0.5, 0.7071, 2.5, 17} {
		decoded := DecodeNorm(EncodeNorm(f))
		assert.True(t, decoded <= f, "%v decoded as %v", f, decoded)
		assert.True(t, decoded > f/2, "%v decoded as %v", f, decoded)
	}
}

func TestDefaultSimilarity(t *testing.T) {
	sim := DefaultSimilarity{}
	assert.Equal(t, 2.0, sim.Tf(4))
	assert.Equal(t, 0.5, sim.LengthNorm("body", 4))
	assert.Equal(t, 0.5, sim.SloppyFreq(1))
	assert.Equal(t, 1.0, sim.SloppyFreq(0))
	assert.InDelta(t, math.Log(10.0/3.0)+1, sim.Idf(2, 10), 1e-12)
	assert.Equal(t, 0.5, sim.QueryNorm(4))
	assert.Equal(t, 0.75, sim.Coord(3, 4))
	assert.InDelta(t, sim.Idf(1, 10)+sim.Idf(4, 10), IdfSum(sim, []int{1, 4}, 10), 1e-12)
}
