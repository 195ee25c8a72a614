package beacon

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"lukechampine.com/blake3"
)

var (
	// ErrRoundNotAvailable is returned for rounds the beacon has not reached.
	ErrRoundNotAvailable = errors.New("beacon: round not available")
	// ErrEmptySecret is returned when a local beacon is built without a secret.
	ErrEmptySecret = errors.New("beacon: secret required")
)

// Header is the return-value prefix placed ahead of every 32-byte output: the
// four-byte method return tag followed by the two-byte length of the value.
var Header = []byte{0x15, 0x1f, 0x7c, 0x75, 0x00, 0x20}

// OutputLength is the size of a beacon value after the header.
const OutputLength = 32

// Local is a deterministic beacon for single-operator deployments and tests.
// The value of round r is blake3(secret || r). Values are only served for
// rounds the node has already produced.
type Local struct {
	secret  []byte
	current func() uint64
}

// NewLocal creates a beacon keyed by secret. current reports the latest
// produced round.
func NewLocal(secret []byte, current func() uint64) (*Local, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if current == nil {
		return nil, fmt.Errorf("beacon: round source required")
	}
	return &Local{secret: append([]byte(nil), secret...), current: current}, nil
}

// Value implements lottery.Oracle.
func (l *Local) Value(ctx context.Context, round uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if head := l.current(); round > head {
		return nil, fmt.Errorf("%w: round %d, head %d", ErrRoundNotAvailable, round, head)
	}
	out := make([]byte, 0, len(Header)+OutputLength)
	out = append(out, Header...)
	return append(out, l.Output(round)...), nil
}

// Output returns the 32-byte value of round without the header.
func (l *Local) Output(round uint64) []byte {
	h := blake3.New(OutputLength, nil)
	h.Write(l.secret)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], round)
	h.Write(buf[:])
	return h.Sum(nil)
}
