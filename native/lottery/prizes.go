package lottery

import (
	"github.com/holiman/uint256"
)

// Prizes is the split of a pot computed at reveal.
type Prizes struct {
	Tier1        uint64
	Tier2        uint64
	Tier3        uint64
	Engineering  uint64
	Rollover     uint64
	TokenHolders uint64
}

// Claimable returns the total reserved for registered winners.
func (p Prizes) Claimable() uint64 {
	return p.Tier1 + p.Tier2 + p.Tier3
}

// Sum returns the total of every share. It may fall short of the pot by the
// rounding residue, which stays in the application account.
func (p Prizes) Sum() uint64 {
	return p.Claimable() + p.Engineering + p.Rollover + p.TokenHolders
}

// TierTotal returns the amount reserved for the tier.
func (p Prizes) TierTotal(t Tier) uint64 {
	switch t {
	case Tier1:
		return p.Tier1
	case Tier2:
		return p.Tier2
	case Tier3:
		return p.Tier3
	default:
		return 0
	}
}

// ComputePrizes splits pot by basis points. Each share is floor(pot*bps/10000)
// computed with a 256-bit intermediate, in tier1, tier2, tier3, engineering,
// rollover, token-holder order.
func ComputePrizes(pot uint64, shares Shares) Prizes {
	return Prizes{
		Tier1:        bpsOf(pot, shares.Tier1),
		Tier2:        bpsOf(pot, shares.Tier2),
		Tier3:        bpsOf(pot, shares.Tier3),
		Engineering:  bpsOf(pot, shares.Engineering),
		Rollover:     bpsOf(pot, shares.Rollover),
		TokenHolders: bpsOf(pot, shares.TokenHolders),
	}
}

func bpsOf(amount, bps uint64) uint64 {
	if amount == 0 || bps == 0 {
		return 0
	}
	share := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(bps))
	share.Div(share, uint256.NewInt(BasisPointsDenominator))
	return share.Uint64()
}
