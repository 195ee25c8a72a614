package lottery

// ClaimBits is a fixed-size little-endian bitset: flag i lives in bit i%8 of
// byte i/8. The byte layout is persisted verbatim after the winner records.
type ClaimBits struct {
	size int
	data []byte
}

// ClaimBitsLen returns the number of bytes needed for n flags.
func ClaimBitsLen(n int) int {
	return (n + 7) / 8
}

// NewClaimBits returns an all-zero bitset holding n flags.
func NewClaimBits(n int) *ClaimBits {
	return &ClaimBits{size: n, data: make([]byte, ClaimBitsLen(n))}
}

// ClaimBitsFromBytes wraps a copy of raw as an n-flag bitset.
func ClaimBitsFromBytes(n int, raw []byte) (*ClaimBits, error) {
	if len(raw) != ClaimBitsLen(n) {
		return nil, ErrInvalidRecords
	}
	return &ClaimBits{size: n, data: append([]byte(nil), raw...)}, nil
}

// Len returns the number of flags.
func (b *ClaimBits) Len() int { return b.size }

// Get reports whether flag i is set.
func (b *ClaimBits) Get(i int) bool {
	if i < 0 || i >= b.size {
		return false
	}
	return (b.data[i/8]>>(uint(i)%8))&1 == 1
}

// Set raises flag i, rewriting only the byte that contains it. It returns the
// index of the rewritten byte.
func (b *ClaimBits) Set(i int) (int, error) {
	if i < 0 || i >= b.size {
		return 0, ErrInvalidIndex
	}
	idx := i / 8
	b.data[idx] |= 1 << (uint(i) % 8)
	return idx, nil
}

// Count returns the number of raised flags.
func (b *ClaimBits) Count() int {
	n := 0
	for i := 0; i < b.size; i++ {
		if b.Get(i) {
			n++
		}
	}
	return n
}

// Bytes returns a copy of the packed representation.
func (b *ClaimBits) Bytes() []byte {
	return append([]byte(nil), b.data...)
}
