package lottery

import (
	"fmt"

	"lottochain/core/types"
	"lottochain/crypto"
)

// Purchase describes the entries issued by a successful Buy.
type Purchase struct {
	CycleID uint64
	Start   uint64
	Entries uint64
	Minted  uint64
}

// End returns the last entry index of the purchase.
func (p Purchase) End() uint64 {
	return p.Start + p.Entries - 1
}

// OptIn registers sender as an entrant with an empty ledger.
func (e *Engine) OptIn(sender crypto.Address) error {
	if _, err := e.loadCycle(); err != nil {
		return err
	}
	if sender.IsZero() {
		return fmt.Errorf("%w: empty sender", ErrInvalidParameter)
	}
	if _, exists, err := e.state.LotteryEntrant(sender); err != nil {
		return err
	} else if exists {
		return ErrAlreadyRegistered
	}
	return e.state.PutLotteryEntrant(sender, &EntrantState{})
}

// Buy converts the grouped payment into entries of the current cycle. The
// payment must already have been applied to the application account by the
// caller as part of the same atomic unit.
func (e *Engine) Buy(sender crypto.Address, payment *types.Payment) (*Purchase, error) {
	cycle, err := e.loadCycle()
	if err != nil {
		return nil, err
	}
	entrant, registered, err := e.state.LotteryEntrant(sender)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, ErrNotRegistered
	}
	if cycle.Paused {
		return nil, ErrPaused
	}
	if cycle.Ended(e.now()) {
		return nil, ErrCycleEnded
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment missing", ErrInvalidPayment)
	}
	if payment.Sender != sender {
		return nil, fmt.Errorf("%w: payment sender differs from caller", ErrInvalidPayment)
	}
	if payment.Receiver != e.appAddress {
		return nil, fmt.Errorf("%w: payment not addressed to the application", ErrInvalidPayment)
	}
	if cycle.EntryPrice == 0 || payment.Amount == 0 || payment.Amount%cycle.EntryPrice != 0 {
		return nil, fmt.Errorf("%w: amount %d is not a positive multiple of %d", ErrInvalidPayment, payment.Amount, cycle.EntryPrice)
	}
	if !cycle.AssetOptedIn {
		return nil, ErrAssetNotOptedIn
	}
	numEntries := payment.Amount / cycle.EntryPrice
	if cycle.Pot+payment.Amount < cycle.Pot || cycle.TotalEntries+numEntries < cycle.TotalEntries {
		return nil, fmt.Errorf("%w: ledger overflow", ErrInvalidPayment)
	}
	minted := numEntries * cycle.RewardRate
	if cycle.RewardRate != 0 && minted/cycle.RewardRate != numEntries {
		return nil, fmt.Errorf("%w: reward overflow", ErrInvalidPayment)
	}

	start := cycle.TotalEntries
	updated := entrant.Clone()
	if updated.LastCycle != cycle.CycleID {
		updated.EntriesCurrent = numEntries
		updated.EntryStartNum = start
	} else {
		updated.EntriesCurrent += numEntries
	}
	updated.TotalLifetime += numEntries
	updated.LastCycle = cycle.CycleID

	cycle.TotalEntries = start + numEntries
	cycle.Pot += payment.Amount

	if err := e.state.PutLotteryCycle(cycle); err != nil {
		return nil, err
	}
	if err := e.state.PutLotteryEntrant(sender, updated); err != nil {
		return nil, err
	}
	if err := e.state.AppendEntrySegment(cycle.CycleID, EntrySegment{Start: start, Count: numEntries, Owner: sender}); err != nil {
		return nil, err
	}
	if minted > 0 {
		if err := e.state.MintReward(cycle.RewardAssetID, sender, minted); err != nil {
			return nil, err
		}
	}
	purchase := &Purchase{CycleID: cycle.CycleID, Start: start, Entries: numEntries, Minted: minted}
	e.emit(NewPurchaseEvent(sender, purchase))
	return purchase, nil
}
