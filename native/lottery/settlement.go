package lottery

import (
	"context"
	"fmt"

	"lottochain/core/selection"
	"lottochain/crypto"
)

// OwnerResolver maps an entry index of a cycle to the entrant holding it.
type OwnerResolver interface {
	OwnerOf(cycleID, index uint64) (crypto.Address, error)
}

// Settlement turns a revealed draw into the winner records handed to
// register_winners. The production service runs outside the node.
type Settlement interface {
	Settle(ctx context.Context, draw *Draw) ([]WinnerSlot, error)
}

// Segments resolves owners from a single cycle's purchase segments.
type Segments []EntrySegment

// OwnerOf implements OwnerResolver; the cycle id is ignored.
func (s Segments) OwnerOf(_ uint64, index uint64) (crypto.Address, error) {
	return OwnerFromSegments(s, index)
}

// PlannedWinner is a registry slot together with the entry that won it.
type PlannedWinner struct {
	Entry uint64
	Slot  WinnerSlot
}

// PlanWinners recomputes the winning entries of draw and resolves their
// owners. Each tier total is split evenly across its slots, rounding down.
func PlanWinners(draw *Draw, counts selection.Counts, owners OwnerResolver) ([]PlannedWinner, error) {
	if draw == nil {
		return nil, fmt.Errorf("%w: nil draw", ErrInvalidParameter)
	}
	res, err := selection.DrawFromBeacon(draw.Seed[:], draw.Entries, counts)
	if err != nil {
		return nil, err
	}
	out := make([]PlannedWinner, 0, counts.Total())
	tiers := []struct {
		tier    Tier
		entries []uint64
	}{
		{Tier1, res.Tier1},
		{Tier2, res.Tier2},
		{Tier3, res.Tier3},
	}
	for _, t := range tiers {
		amount := draw.Prizes.TierTotal(t.tier) / uint64(len(t.entries))
		for _, entry := range t.entries {
			owner, err := owners.OwnerOf(draw.CycleID, entry)
			if err != nil {
				return nil, err
			}
			out = append(out, PlannedWinner{
				Entry: entry,
				Slot:  WinnerSlot{Address: owner, Tier: t.tier, Amount: amount},
			})
		}
	}
	return out, nil
}

// PlannedSlots strips the entry numbers from a plan.
func PlannedSlots(plan []PlannedWinner) []WinnerSlot {
	out := make([]WinnerSlot, len(plan))
	for i, p := range plan {
		out[i] = p.Slot
	}
	return out
}

// EngineSettlement settles draws against the engine's own entry segments. It
// is what the node uses in single-operator deployments and tests.
type EngineSettlement struct {
	Engine *Engine
}

// Settle implements Settlement.
func (s EngineSettlement) Settle(_ context.Context, draw *Draw) ([]WinnerSlot, error) {
	if s.Engine == nil {
		return nil, errNilState
	}
	plan, err := PlanWinners(draw, s.Engine.Params().Winners, s.Engine)
	if err != nil {
		return nil, err
	}
	return PlannedSlots(plan), nil
}
