package selection

import (
	"encoding/binary"
	"fmt"
)

// SeedLength is the size of a revealed randomness value.
const SeedLength = 32

// Counts holds the number of winners drawn per tier.
type Counts struct {
	Tier1 int
	Tier2 int
	Tier3 int
}

// Total returns the number of winner slots.
func (c Counts) Total() int {
	return c.Tier1 + c.Tier2 + c.Tier3
}

// Validate reports whether every tier draws at least one winner.
func (c Counts) Validate() error {
	if c.Tier1 <= 0 || c.Tier2 <= 0 || c.Tier3 <= 0 {
		return fmt.Errorf("selection: tier counts must be positive, got %d/%d/%d", c.Tier1, c.Tier2, c.Tier3)
	}
	return nil
}

// Result lists the winning entry indices per tier in draw order. Indices may
// repeat.
type Result struct {
	Tier1 []uint64
	Tier2 []uint64
	Tier3 []uint64
}

// All concatenates the tiers in slot order.
func (r Result) All() []uint64 {
	out := make([]uint64, 0, len(r.Tier1)+len(r.Tier2)+len(r.Tier3))
	out = append(out, r.Tier1...)
	out = append(out, r.Tier2...)
	return append(out, r.Tier3...)
}

// SeedFromBeacon derives the generator seed from a 32-byte beacon value: the
// first eight bytes read as a big-endian integer.
func SeedFromBeacon(value []byte) (int64, error) {
	if len(value) != SeedLength {
		return 0, fmt.Errorf("selection: seed must be %d bytes, got %d", SeedLength, len(value))
	}
	return int64(binary.BigEndian.Uint64(value[:8])), nil
}

// Draw selects Counts.Total() winning indices out of total entries. Tier 1 is
// drawn first, then tier 2, then tier 3, all from one generator stream.
func Draw(seed int64, total uint64, counts Counts) (Result, error) {
	bound, err := checkBound(total)
	if err != nil {
		return Result{}, err
	}
	if err := counts.Validate(); err != nil {
		return Result{}, err
	}
	rng := NewRandom(seed)
	next := func(n int) ([]uint64, error) {
		out := make([]uint64, n)
		for i := range out {
			v, err := rng.NextInt(bound)
			if err != nil {
				return nil, err
			}
			out[i] = uint64(v)
		}
		return out, nil
	}
	var res Result
	if res.Tier1, err = next(counts.Tier1); err != nil {
		return Result{}, err
	}
	if res.Tier2, err = next(counts.Tier2); err != nil {
		return Result{}, err
	}
	if res.Tier3, err = next(counts.Tier3); err != nil {
		return Result{}, err
	}
	return res, nil
}

// DrawFromBeacon combines SeedFromBeacon and Draw.
func DrawFromBeacon(value []byte, total uint64, counts Counts) (Result, error) {
	seed, err := SeedFromBeacon(value)
	if err != nil {
		return Result{}, err
	}
	return Draw(seed, total, counts)
}
