package lottery

import (
	"fmt"

	"lottochain/core/selection"
)

const (
	// BasisPointsDenominator is the fixed-point base of every share.
	BasisPointsDenominator = 10_000

	DefaultEntryPrice      = 1_000_000
	DefaultCycleDuration   = 86_400
	MinCycleDuration       = 300
	MaxCycleDuration       = 604_800
	DefaultCommitOffset    = 8
	DefaultMinRevealDelay  = 12
	DefaultRewardRate      = 1
	MaxRewardRate          = 1_000
	WinnerRecordSize       = 41
	winnerAddressLength    = 32
	winnerTierOffset       = 32
	winnerAmountOffset     = 33
	defaultTier1Winners    = 1
	defaultTier2Winners    = 5
	defaultTier3Winners    = 20
	defaultTier1Bps        = 4_000
	defaultTier2Bps        = 2_000
	defaultTier3Bps        = 1_500
	defaultEngineeringBps  = 500
	defaultRolloverBps     = 500
	defaultTokenHoldersBps = 1_500
)

// Shares holds the basis-point split applied to the pot at reveal.
type Shares struct {
	Tier1        uint64
	Tier2        uint64
	Tier3        uint64
	Engineering  uint64
	Rollover     uint64
	TokenHolders uint64
}

// Total returns the sum of all shares in basis points.
func (s Shares) Total() uint64 {
	return s.Tier1 + s.Tier2 + s.Tier3 + s.Engineering + s.Rollover + s.TokenHolders
}

// DefaultShares returns the 40/20/15/5/5/15 split.
func DefaultShares() Shares {
	return Shares{
		Tier1:        defaultTier1Bps,
		Tier2:        defaultTier2Bps,
		Tier3:        defaultTier3Bps,
		Engineering:  defaultEngineeringBps,
		Rollover:     defaultRolloverBps,
		TokenHolders: defaultTokenHoldersBps,
	}
}

// Params are the deployment constants the engine enforces. They are not part
// of the persisted ledger.
type Params struct {
	CommitOffset   uint64
	MinRevealDelay uint64
	Winners        selection.Counts
	Shares         Shares
}

// DefaultParams returns the production parameters.
func DefaultParams() Params {
	return Params{
		CommitOffset:   DefaultCommitOffset,
		MinRevealDelay: DefaultMinRevealDelay,
		Winners: selection.Counts{
			Tier1: defaultTier1Winners,
			Tier2: defaultTier2Winners,
			Tier3: defaultTier3Winners,
		},
		Shares: DefaultShares(),
	}
}

// Validate checks internal consistency.
func (p Params) Validate() error {
	if p.CommitOffset == 0 {
		return fmt.Errorf("%w: commit offset must be positive", ErrInvalidParameter)
	}
	if p.MinRevealDelay == 0 {
		return fmt.Errorf("%w: reveal delay must be positive", ErrInvalidParameter)
	}
	if err := p.Winners.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if total := p.Shares.Total(); total != BasisPointsDenominator {
		return fmt.Errorf("%w: shares sum to %d bps, want %d", ErrInvalidParameter, total, BasisPointsDenominator)
	}
	return nil
}

// WinnerCount returns N, the number of registry slots.
func (p Params) WinnerCount() int {
	return p.Winners.Total()
}

// RecordsLength returns the exact size of the winner records argument.
func (p Params) RecordsLength() int {
	return p.WinnerCount() * WinnerRecordSize
}

// ValidateCycleDuration enforces the configurable duration bounds.
func ValidateCycleDuration(seconds uint64) error {
	if seconds < MinCycleDuration || seconds > MaxCycleDuration {
		return fmt.Errorf("%w: cycle duration %d outside [%d, %d]", ErrInvalidParameter, seconds, MinCycleDuration, MaxCycleDuration)
	}
	return nil
}

// ValidateRewardRate enforces the reward tokens minted per entry.
func ValidateRewardRate(rate uint64) error {
	if rate == 0 || rate > MaxRewardRate {
		return fmt.Errorf("%w: reward rate %d outside [1, %d]", ErrInvalidParameter, rate, MaxRewardRate)
	}
	return nil
}
