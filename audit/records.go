// Package audit independently recomputes lottery draws from public
// transaction history and checks them against the registered winners.
package audit

import (
	"errors"
	"fmt"

	"lottochain/crypto"
	"lottochain/history"
	"lottochain/native/lottery"
)

// Method selectors read by the auditor. LegacyDrawMethod is the single-phase
// draw of earlier deployments.
const (
	RevealMethod     = "execute_draw_reveal"
	LegacyDrawMethod = "execute_draw"
	PurchaseMethod   = "buy_entries"
	RegisterMethod   = "register_winners"
)

// ErrNoLog is returned when a transaction carries no log of the expected kind.
var ErrNoLog = errors.New("audit: expected log not found")

// Reveal is the finalization record of a cycle.
type Reveal struct {
	TxID            string    `json:"txId"`
	Sender          string    `json:"sender"`
	Round           uint64    `json:"round"`
	RoundTime       int64     `json:"roundTime"`
	Cycle           uint64    `json:"cycle"`
	Pot             uint64    `json:"pot"`
	Entries         uint64    `json:"entries"`
	CommitmentRound uint64    `json:"commitmentRound"`
	Tiers           [3]uint64 `json:"tiers"`
	Seed            [32]byte  `json:"seed"`
	Legacy          bool      `json:"legacy,omitempty"`
}

// Draw converts the record to the engine's draw form.
func (r Reveal) Draw() *lottery.Draw {
	return &lottery.Draw{
		CycleID:         r.Cycle,
		Pot:             r.Pot,
		Entries:         r.Entries,
		CommitmentRound: r.CommitmentRound,
		RevealRound:     r.Round,
		RevealedAt:      r.RoundTime,
		Seed:            r.Seed,
		Prizes:          lottery.Prizes{Tier1: r.Tiers[0], Tier2: r.Tiers[1], Tier3: r.Tiers[2]},
	}
}

// Purchase is one buy_entries transaction of a cycle.
type Purchase struct {
	TxID  string
	Buyer crypto.Address
	Round uint64
	Cycle uint64
	Start uint64
	Count uint64
}

// Registration is the register_winners call of a cycle.
type Registration struct {
	TxID  string
	Round uint64
	Cycle uint64
	Slots []lottery.WinnerSlot
}

// ParseReveal extracts the draw record from a reveal or legacy draw
// transaction.
func ParseReveal(txn history.IndexerTransaction) (Reveal, error) {
	out := Reveal{TxID: txn.ID, Sender: txn.Sender, Round: txn.ConfirmedRound, RoundTime: txn.RoundTime}
	for _, raw := range txn.Logs {
		switch lottery.LogTag(raw) {
		case lottery.LogTagDrawRevealed:
			log, err := lottery.ParseDrawRevealedLog(raw)
			if err != nil {
				return Reveal{}, fmt.Errorf("tx %s: %w", txn.ID, err)
			}
			out.Cycle, out.Pot, out.Entries = log.Cycle, log.Pot, log.Entries
			out.CommitmentRound = log.CommitmentRound
			out.Tiers = [3]uint64{log.Tier1, log.Tier2, log.Tier3}
			out.Seed = log.Seed
			return out, nil
		case lottery.LogTagDrawExecuted:
			log, err := lottery.ParseDrawExecutedLog(raw)
			if err != nil {
				return Reveal{}, fmt.Errorf("tx %s: %w", txn.ID, err)
			}
			out.Cycle, out.Pot, out.Entries = log.Cycle, log.Pot, log.Entries
			out.Tiers = [3]uint64{log.Tier1, log.Tier2, log.Tier3}
			out.Seed = log.Seed
			out.Legacy = true
			return out, nil
		}
	}
	return Reveal{}, fmt.Errorf("%w: tx %s has no draw log", ErrNoLog, txn.ID)
}

// ParsePurchase extracts the entry range bought by a buy_entries transaction.
func ParsePurchase(txn history.IndexerTransaction) (Purchase, error) {
	buyer, err := crypto.ParseAddress(txn.Sender)
	if err != nil {
		return Purchase{}, fmt.Errorf("tx %s: sender: %w", txn.ID, err)
	}
	for _, raw := range txn.Logs {
		tag := lottery.LogTag(raw)
		if tag != lottery.LogTagPurchase && tag != lottery.LogTagEntryPurchased {
			continue
		}
		log, err := lottery.ParsePurchaseLog(raw)
		if err != nil {
			return Purchase{}, fmt.Errorf("tx %s: %w", txn.ID, err)
		}
		return Purchase{
			TxID:  txn.ID,
			Buyer: buyer,
			Round: txn.ConfirmedRound,
			Cycle: log.Cycle,
			Start: log.Start,
			Count: log.Count(),
		}, nil
	}
	return Purchase{}, fmt.Errorf("%w: tx %s has no purchase log", ErrNoLog, txn.ID)
}

// ParseRegistration decodes the cycle and winner records passed to
// register_winners.
func ParseRegistration(txn history.IndexerTransaction) (Registration, error) {
	if txn.ApplicationCall == nil || len(txn.ApplicationCall.ApplicationArgs) != 3 {
		return Registration{}, fmt.Errorf("tx %s: register_winners takes 2 arguments", txn.ID)
	}
	args := txn.ApplicationCall.ApplicationArgs
	cycle, err := lottery.DecodeUint(args[1])
	if err != nil {
		return Registration{}, fmt.Errorf("tx %s: cycle argument: %w", txn.ID, err)
	}
	slots, err := lottery.DecodeWinnerRecords(args[2])
	if err != nil {
		return Registration{}, fmt.Errorf("tx %s: %w", txn.ID, err)
	}
	return Registration{
		TxID:  txn.ID,
		Round: txn.ConfirmedRound,
		Cycle: cycle,
		Slots: slots,
	}, nil
}

// Segments rebuilds the entry ownership of a cycle from its purchases and
// checks that they partition [0, entries) without gaps or overlap.
func Segments(purchases []Purchase, entries uint64) (lottery.Segments, error) {
	byStart := make(map[uint64]Purchase, len(purchases))
	for _, p := range purchases {
		if p.Count == 0 {
			continue
		}
		if prev, dup := byStart[p.Start]; dup {
			return nil, fmt.Errorf("audit: purchases %s and %s both start at entry %d", prev.TxID, p.TxID, p.Start)
		}
		byStart[p.Start] = p
	}
	out := make(lottery.Segments, 0, len(byStart))
	var next uint64
	for next < entries {
		p, ok := byStart[next]
		if !ok {
			return nil, fmt.Errorf("audit: no purchase covers entry %d", next)
		}
		out = append(out, lottery.EntrySegment{Start: p.Start, Count: p.Count, Owner: p.Buyer})
		next += p.Count
	}
	if next != entries || len(out) != len(byStart) {
		return nil, fmt.Errorf("audit: purchases cover %d entries across %d segments, draw reports %d", next, len(byStart), entries)
	}
	return out, nil
}
