package lottery

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"lottochain/core/selection"
	"lottochain/crypto"
)

// SeedRequest is the context handed to a randomness source at reveal.
type SeedRequest struct {
	CycleID         uint64
	Pot             uint64
	Entries         uint64
	CommitmentRound uint64
	CurrentRound    uint64
	Timestamp       int64
	Sender          crypto.Address
}

// RandomnessSource produces the 32-byte seed of a draw.
type RandomnessSource interface {
	ProduceSeed(ctx context.Context, req SeedRequest) ([]byte, error)
}

// Oracle returns the raw beacon output published for a round.
type Oracle interface {
	Value(ctx context.Context, round uint64) ([]byte, error)
}

// DefaultBeaconHeaderLength is the size of the return-value prefix the beacon
// places ahead of the 32-byte output.
const DefaultBeaconHeaderLength = 6

// BeaconSource reads the committed round from an external randomness beacon.
type BeaconSource struct {
	oracle       Oracle
	headerLength int
}

// NewBeaconSource wraps oracle. headerLength bytes are stripped from every
// response before the seed is validated.
func NewBeaconSource(oracle Oracle, headerLength int) *BeaconSource {
	if headerLength < 0 {
		headerLength = 0
	}
	return &BeaconSource{oracle: oracle, headerLength: headerLength}
}

// ProduceSeed implements RandomnessSource.
func (s *BeaconSource) ProduceSeed(ctx context.Context, req SeedRequest) ([]byte, error) {
	if s == nil || s.oracle == nil {
		return nil, ErrNoRandomness
	}
	raw, err := s.oracle.Value(ctx, req.CommitmentRound)
	if err != nil {
		return nil, fmt.Errorf("beacon round %d: %w", req.CommitmentRound, err)
	}
	if len(raw) < s.headerLength {
		return nil, fmt.Errorf("%w: beacon returned %d bytes", ErrInvalidSeed, len(raw))
	}
	seed := raw[s.headerLength:]
	if len(seed) != selection.SeedLength {
		return nil, fmt.Errorf("%w: expected %d bytes after header, got %d", ErrInvalidSeed, selection.SeedLength, len(seed))
	}
	return append([]byte(nil), seed...), nil
}

// HashSource derives the seed from ledger values available at reveal time:
// sha256(timestamp || pot || entries || cycle || sender || round). It exists
// for deployments without a beacon and for reproducing historical draws.
type HashSource struct{}

// ProduceSeed implements RandomnessSource.
func (HashSource) ProduceSeed(_ context.Context, req SeedRequest) ([]byte, error) {
	return LegacySeed(req), nil
}

// LegacySeed computes the direct-hash seed for req.
func LegacySeed(req SeedRequest) []byte {
	buf := make([]byte, 0, 8*5+crypto.AddressLength)
	buf = binary.BigEndian.AppendUint64(buf, uint64(req.Timestamp))
	buf = binary.BigEndian.AppendUint64(buf, req.Pot)
	buf = binary.BigEndian.AppendUint64(buf, req.Entries)
	buf = binary.BigEndian.AppendUint64(buf, req.CycleID)
	buf = append(buf, req.Sender[:]...)
	buf = binary.BigEndian.AppendUint64(buf, req.CurrentRound)
	sum := sha256.Sum256(buf)
	return sum[:]
}
