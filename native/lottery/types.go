package lottery

import (
	"errors"
	"fmt"

	"lottochain/crypto"
)

// DrawStatus tracks the commit-reveal progress of the current draw.
type DrawStatus uint8

const (
	DrawStatusNone DrawStatus = iota
	DrawStatusCommitted
	DrawStatusRevealed
)

func (s DrawStatus) Valid() bool {
	switch s {
	case DrawStatusNone, DrawStatusCommitted, DrawStatusRevealed:
		return true
	default:
		return false
	}
}

func (s DrawStatus) String() string {
	switch s {
	case DrawStatusNone:
		return "none"
	case DrawStatusCommitted:
		return "committed"
	case DrawStatusRevealed:
		return "revealed"
	default:
		return "unknown"
	}
}

// Tier identifies a prize tier.
type Tier uint8

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

func (t Tier) Valid() bool {
	return t >= Tier1 && t <= Tier3
}

var (
	ErrNotInitialized     = errors.New("lottery: not initialized")
	ErrAlreadyInitialized = errors.New("lottery: already initialized")
	ErrUnauthorized       = errors.New("lottery: caller is not the administrator")
	ErrPaused             = errors.New("lottery: paused")
	ErrNotRegistered      = errors.New("lottery: entrant not registered")
	ErrAlreadyRegistered  = errors.New("lottery: entrant already registered")
	ErrCycleEnded         = errors.New("lottery: cycle has ended")
	ErrCycleActive        = errors.New("lottery: cycle has not ended")
	ErrInvalidPayment     = errors.New("lottery: invalid payment")
	ErrNoEntries          = errors.New("lottery: cycle has no entries")
	ErrHasEntries         = errors.New("lottery: cycle has entries")
	ErrInvalidDrawStatus  = errors.New("lottery: invalid draw status")
	ErrRevealTooEarly     = errors.New("lottery: reveal round not reached")
	ErrInvalidSeed        = errors.New("lottery: invalid randomness output")
	ErrNoRandomness       = errors.New("lottery: randomness source not configured")
	ErrRegistryExists     = errors.New("lottery: winners already registered")
	ErrRegistryNotFound   = errors.New("lottery: winners not registered")
	ErrInvalidRecords     = errors.New("lottery: invalid winner records")
	ErrInvalidCycle       = errors.New("lottery: invalid cycle")
	ErrInvalidIndex       = errors.New("lottery: winner index out of range")
	ErrNotWinner          = errors.New("lottery: caller is not the winner")
	ErrAlreadyClaimed     = errors.New("lottery: prize already claimed")
	ErrEmptyPrize         = errors.New("lottery: prize amount is zero")
	ErrAssetNotOptedIn    = errors.New("lottery: reward asset not opted in")
	ErrInvalidParameter   = errors.New("lottery: invalid parameter")
	ErrInsufficientFunds  = errors.New("lottery: insufficient funds")
	ErrUnknownOperation   = errors.New("lottery: unknown operation")
	ErrInvalidArguments   = errors.New("lottery: invalid arguments")
)

// CycleState is the contract-wide ledger. Exactly one exists per deployment.
type CycleState struct {
	Creator           crypto.Address
	CycleID           uint64
	StartTime         int64
	EndTime           int64
	Duration          uint64
	Pot               uint64
	EntryPrice        uint64
	RolloverPool      uint64
	TotalEntries      uint64
	Paused            bool
	TestMode          bool
	CommitmentRound   uint64
	CommitRound       uint64
	DrawStatus        DrawStatus
	RevealedCycle     uint64
	UnclaimedPrizes   uint64
	EngineeringWallet crypto.Address
	TokenDistWallet   crypto.Address
	RewardAssetID     uint64
	RewardRate        uint64
	AssetOptedIn      bool
}

// Clone returns a deep copy of the cycle state.
func (c *CycleState) Clone() *CycleState {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Ended reports whether the purchase window is closed at now.
func (c *CycleState) Ended(now int64) bool {
	return now >= c.EndTime
}

// EntrantState is the per-participant ledger.
type EntrantState struct {
	EntriesCurrent uint64
	EntryStartNum  uint64
	TotalLifetime  uint64
	LastCycle      uint64
}

func (e *EntrantState) Clone() *EntrantState {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// EntryRange returns the entrant's current-cycle range, valid only when the
// entrant participated in cycleID.
func (e *EntrantState) EntryRange(cycleID uint64) (start, count uint64, ok bool) {
	if e == nil || e.LastCycle != cycleID || e.EntriesCurrent == 0 {
		return 0, 0, false
	}
	return e.EntryStartNum, e.EntriesCurrent, true
}

// EntrySegment records a single purchase's contiguous index range.
type EntrySegment struct {
	Start uint64
	Count uint64
	Owner crypto.Address
}

// Contains reports whether the entry index falls inside the segment.
func (s EntrySegment) Contains(index uint64) bool {
	return index >= s.Start && index-s.Start < s.Count
}

// Draw captures the outcome of a reveal.
type Draw struct {
	CycleID         uint64
	Pot             uint64
	Entries         uint64
	CommitmentRound uint64
	RevealRound     uint64
	RevealedAt      int64
	Seed            [32]byte
	Prizes          Prizes
}

func (d *Draw) Clone() *Draw {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

func (d *Draw) String() string {
	if d == nil {
		return "<nil draw>"
	}
	return fmt.Sprintf("draw{cycle=%d entries=%d pot=%d}", d.CycleID, d.Entries, d.Pot)
}
