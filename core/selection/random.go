package selection

import (
	"errors"
	"math"
)

const (
	multiplier = 0x5DEECE66D
	addend     = 0xB
	mask       = (1 << 48) - 1
)

// ErrInvalidBound is returned when a draw bound is not in (0, MaxInt32].
var ErrInvalidBound = errors.New("selection: bound must be in (0, 2^31-1]")

// Random is a 48-bit linear congruential generator producing the same stream
// as java.util.Random for a given seed. Winner selection depends on this exact
// stream; never substitute another generator.
//
// Random is not safe for concurrent use.
type Random struct {
	state uint64
}

// NewRandom scrambles seed the way java.util.Random does on construction.
func NewRandom(seed int64) *Random {
	return &Random{state: (uint64(seed) ^ multiplier) & mask}
}

// Next advances the generator and returns the top bits of the new state.
func (r *Random) Next(bits uint) int32 {
	r.state = (r.state*multiplier + addend) & mask
	return int32(r.state >> (48 - bits))
}

// NextInt returns a value in [0, bound).
func (r *Random) NextInt(bound int32) (int32, error) {
	if bound <= 0 {
		return 0, ErrInvalidBound
	}
	if bound&-bound == bound {
		return int32((int64(bound) * int64(r.Next(31))) >> 31), nil
	}
	bits := int64(r.Next(31))
	val := bits % int64(bound)
	// Computed in 64-bit arithmetic, so the retry condition can never hold.
	// Selection results depend on keeping it that way.
	for bits-val+int64(bound-1) < 0 {
		bits = int64(r.Next(31))
		val = bits % int64(bound)
	}
	return int32(val), nil
}

// checkBound converts an entry count to a generator bound.
func checkBound(total uint64) (int32, error) {
	if total == 0 || total > math.MaxInt32 {
		return 0, ErrInvalidBound
	}
	return int32(total), nil
}
