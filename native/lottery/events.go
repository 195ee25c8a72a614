package lottery

import (
	"encoding/hex"
	"strconv"

	"lottochain/core/types"
	"lottochain/crypto"
)

const (
	EventTypePurchase          = "lottery.purchase"
	EventTypeDrawCommitted     = "lottery.draw.committed"
	EventTypeDrawRevealed      = "lottery.draw.revealed"
	EventTypeWinnersRegistered = "lottery.winners.registered"
	EventTypeClaimed           = "lottery.claimed"
	EventTypeCycleSkipped      = "lottery.cycle.skipped"
)

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// NewPurchaseEvent reports entries bought by buyer.
func NewPurchaseEvent(buyer crypto.Address, p *Purchase) *types.Event {
	if p == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypePurchase,
		Attributes: map[string]string{
			"cycle":   formatUint(p.CycleID),
			"buyer":   buyer.String(),
			"start":   formatUint(p.Start),
			"end":     formatUint(p.End()),
			"entries": formatUint(p.Entries),
			"minted":  formatUint(p.Minted),
		},
		Data: PurchaseLog{Cycle: p.CycleID, Start: p.Start, End: p.End()}.Bytes(),
	}
}

// NewDrawCommittedEvent reports the beacon round a draw is bound to.
func NewDrawCommittedEvent(cycleID, commitmentRound uint64) *types.Event {
	return &types.Event{
		Type: EventTypeDrawCommitted,
		Attributes: map[string]string{
			"cycle":           formatUint(cycleID),
			"commitmentRound": formatUint(commitmentRound),
		},
		Data: DrawCommittedLog{Cycle: cycleID, CommitmentRound: commitmentRound}.Bytes(),
	}
}

// NewDrawRevealedEvent reports the outcome of a reveal.
func NewDrawRevealedEvent(d *Draw) *types.Event {
	if d == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeDrawRevealed,
		Attributes: map[string]string{
			"cycle":           formatUint(d.CycleID),
			"pot":             formatUint(d.Pot),
			"entries":         formatUint(d.Entries),
			"commitmentRound": formatUint(d.CommitmentRound),
			"tier1":           formatUint(d.Prizes.Tier1),
			"tier2":           formatUint(d.Prizes.Tier2),
			"tier3":           formatUint(d.Prizes.Tier3),
			"engineering":     formatUint(d.Prizes.Engineering),
			"rollover":        formatUint(d.Prizes.Rollover),
			"tokenHolders":    formatUint(d.Prizes.TokenHolders),
			"seed":            hex.EncodeToString(d.Seed[:]),
		},
		Data: DrawRevealedLog{
			Cycle:           d.CycleID,
			Pot:             d.Pot,
			Entries:         d.Entries,
			CommitmentRound: d.CommitmentRound,
			Tier1:           d.Prizes.Tier1,
			Tier2:           d.Prizes.Tier2,
			Tier3:           d.Prizes.Tier3,
			Seed:            d.Seed,
		}.Bytes(),
	}
}

// NewWinnersRegisteredEvent reports a stored registry.
func NewWinnersRegisteredEvent(cycleID uint64, slots int) *types.Event {
	return &types.Event{
		Type: EventTypeWinnersRegistered,
		Attributes: map[string]string{
			"cycle": formatUint(cycleID),
			"slots": strconv.Itoa(slots),
		},
		Data: WinnersRegisteredLog{Cycle: cycleID}.Bytes(),
	}
}

// NewClaimedEvent reports a paid prize.
func NewClaimedEvent(cycleID, index uint64, slot WinnerSlot) *types.Event {
	return &types.Event{
		Type: EventTypeClaimed,
		Attributes: map[string]string{
			"cycle":  formatUint(cycleID),
			"index":  formatUint(index),
			"winner": slot.Address.String(),
			"tier":   strconv.Itoa(int(slot.Tier)),
			"amount": formatUint(slot.Amount),
		},
		Data: ClaimedLog{Cycle: cycleID, Winner: slot.Address, Tier: slot.Tier, Amount: slot.Amount}.Bytes(),
	}
}

// NewCycleSkippedEvent reports an empty cycle that was closed.
func NewCycleSkippedEvent(cycleID uint64) *types.Event {
	return &types.Event{
		Type:       EventTypeCycleSkipped,
		Attributes: map[string]string{"cycle": formatUint(cycleID)},
		Data:       CycleSkippedLog{Cycle: cycleID}.Bytes(),
	}
}
