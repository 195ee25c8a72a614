package lottery

import (
	"context"
	"fmt"

	"lottochain/crypto"
)

// Commit closes the cycle to further draws and fixes the beacon round whose
// output will seed the winners.
func (e *Engine) Commit(sender crypto.Address) (*CycleState, error) {
	cycle, err := e.loadCycle()
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(cycle, sender); err != nil {
		return nil, err
	}
	if !cycle.Ended(e.now()) && !cycle.TestMode {
		return nil, ErrCycleActive
	}
	if cycle.TotalEntries == 0 {
		return nil, ErrNoEntries
	}
	if cycle.Paused {
		return nil, ErrPaused
	}
	if cycle.DrawStatus != DrawStatusNone {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDrawStatus, cycle.DrawStatus)
	}

	current := e.round()
	cycle.CommitRound = current
	cycle.CommitmentRound = current + e.params.CommitOffset
	cycle.DrawStatus = DrawStatusCommitted
	if err := e.state.PutLotteryCycle(cycle); err != nil {
		return nil, err
	}
	e.emit(NewDrawCommittedEvent(cycle.CycleID, cycle.CommitmentRound))
	return cycle.Clone(), nil
}

// RevealReady reports whether a committed draw may be revealed at round.
func (e *Engine) RevealReady(cycle *CycleState, round uint64) bool {
	if cycle == nil || cycle.DrawStatus != DrawStatusCommitted {
		return false
	}
	return round > cycle.CommitmentRound && round >= cycle.CommitRound+e.params.MinRevealDelay
}

// Reveal finalizes the committed draw: it obtains the seed, splits the pot,
// pays the engineering and token-holder shares, reserves the tier totals for
// claims and opens the next cycle. A failure leaves the draw committed.
func (e *Engine) Reveal(ctx context.Context, sender crypto.Address) (*Draw, error) {
	cycle, err := e.loadCycle()
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(cycle, sender); err != nil {
		return nil, err
	}
	if cycle.DrawStatus != DrawStatusCommitted {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDrawStatus, cycle.DrawStatus)
	}
	current := e.round()
	if !e.RevealReady(cycle, current) {
		return nil, fmt.Errorf("%w: round %d, commitment round %d", ErrRevealTooEarly, current, cycle.CommitmentRound)
	}
	if e.randomness == nil {
		return nil, ErrNoRandomness
	}
	now := e.now()
	seed, err := e.randomness.ProduceSeed(ctx, SeedRequest{
		CycleID:         cycle.CycleID,
		Pot:             cycle.Pot,
		Entries:         cycle.TotalEntries,
		CommitmentRound: cycle.CommitmentRound,
		CurrentRound:    current,
		Timestamp:       now,
		Sender:          sender,
	})
	if err != nil {
		return nil, err
	}
	if len(seed) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidSeed, len(seed))
	}

	prizes := ComputePrizes(cycle.Pot, e.params.Shares)
	if err := e.requireAppBalance(prizes.Engineering + prizes.TokenHolders); err != nil {
		return nil, err
	}
	if cycle.UnclaimedPrizes+prizes.Claimable() < cycle.UnclaimedPrizes {
		return nil, fmt.Errorf("%w: unclaimed prize overflow", ErrInvalidParameter)
	}

	draw := &Draw{
		CycleID:         cycle.CycleID,
		Pot:             cycle.Pot,
		Entries:         cycle.TotalEntries,
		CommitmentRound: cycle.CommitmentRound,
		RevealRound:     current,
		RevealedAt:      now,
		Prizes:          prizes,
	}
	copy(draw.Seed[:], seed)

	if prizes.Engineering > 0 {
		if err := e.state.Transfer(e.appAddress, cycle.EngineeringWallet, prizes.Engineering); err != nil {
			return nil, err
		}
	}
	if prizes.TokenHolders > 0 {
		if err := e.state.Transfer(e.appAddress, cycle.TokenDistWallet, prizes.TokenHolders); err != nil {
			return nil, err
		}
	}
	cycle.UnclaimedPrizes += prizes.Claimable()

	previousRollover := cycle.RolloverPool
	cycle.RevealedCycle = cycle.CycleID
	cycle.CycleID++
	cycle.StartTime = now
	cycle.EndTime = now + int64(cycle.Duration)
	cycle.TotalEntries = 0
	cycle.Pot = previousRollover + prizes.Rollover
	cycle.RolloverPool = previousRollover + prizes.Rollover
	cycle.DrawStatus = DrawStatusRevealed

	if err := e.state.PutLotteryDraw(draw); err != nil {
		return nil, err
	}
	if err := e.state.PutLotteryCycle(cycle); err != nil {
		return nil, err
	}
	e.emit(NewDrawRevealedEvent(draw))
	return draw.Clone(), nil
}

// EndEmptyCycle skips a cycle that closed without entries. The pot carries
// over unchanged.
func (e *Engine) EndEmptyCycle(sender crypto.Address) (*CycleState, error) {
	cycle, err := e.loadCycle()
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(cycle, sender); err != nil {
		return nil, err
	}
	if cycle.TotalEntries != 0 {
		return nil, ErrHasEntries
	}
	now := e.now()
	if !cycle.Ended(now) && !cycle.TestMode {
		return nil, ErrCycleActive
	}
	if cycle.DrawStatus == DrawStatusCommitted {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDrawStatus, cycle.DrawStatus)
	}
	skipped := cycle.CycleID
	cycle.CycleID++
	cycle.TotalEntries = 0
	cycle.StartTime = now
	cycle.EndTime = now + int64(cycle.Duration)
	if err := e.state.PutLotteryCycle(cycle); err != nil {
		return nil, err
	}
	e.emit(NewCycleSkippedEvent(skipped))
	return cycle.Clone(), nil
}
