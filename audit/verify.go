package audit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"lottochain/core/selection"
	"lottochain/native/lottery"
)

// SlotCheck compares one registry slot with its recomputed winner.
type SlotCheck struct {
	Slot       int    `json:"slot"`
	Tier       uint8  `json:"tier"`
	Entry      uint64 `json:"entry"`
	Expected   string `json:"expected"`
	Registered string `json:"registered"`
	Amount     uint64 `json:"amount"`
	Match      bool   `json:"match"`
}

// Verdict is the outcome of verifying one cycle. A failed verdict is a
// finding, not an error.
type Verdict struct {
	Cycle      uint64      `json:"cycle"`
	Pass       bool        `json:"pass"`
	Reason     string      `json:"reason,omitempty"`
	RevealTx   string      `json:"revealTx,omitempty"`
	RegisterTx string      `json:"registerTx,omitempty"`
	Seed       string      `json:"seed,omitempty"`
	Entries    uint64      `json:"entries"`
	Legacy     bool        `json:"legacy,omitempty"`
	Slots      []SlotCheck `json:"slots,omitempty"`
}

func (v *Verdict) fail(format string, args ...any) *Verdict {
	v.Pass = false
	v.Reason = fmt.Sprintf(format, args...)
	return v
}

// Verifier recomputes winners from a Source.
type Verifier struct {
	source Source
	appID  uint64
	counts selection.Counts
}

// AppID returns the application the verifier audits.
func (v *Verifier) AppID() uint64 { return v.appID }

// NewVerifier builds a verifier for the application appID drawing counts
// winners per tier.
func NewVerifier(source Source, appID uint64, counts selection.Counts) (*Verifier, error) {
	if source == nil {
		return nil, errors.New("audit: source required")
	}
	if appID == 0 {
		return nil, errors.New("audit: application id required")
	}
	if err := counts.Validate(); err != nil {
		return nil, err
	}
	return &Verifier{source: source, appID: appID, counts: counts}, nil
}

// Reveals fetches every finalization record, current and legacy, ordered by
// round. Transactions whose logs cannot be parsed are reported in malformed
// and skipped.
func (v *Verifier) Reveals(ctx context.Context) (reveals []Reveal, malformed []string, err error) {
	for _, method := range []string{RevealMethod, LegacyDrawMethod} {
		txs, err := v.source.Transactions(ctx, TransactionQuery{AppID: v.appID, Method: method})
		if err != nil {
			return nil, nil, fmt.Errorf("fetch %s: %w", method, err)
		}
		for _, txn := range txs {
			reveal, err := ParseReveal(txn)
			if err != nil {
				malformed = append(malformed, err.Error())
				continue
			}
			reveals = append(reveals, reveal)
		}
	}
	sort.SliceStable(reveals, func(i, j int) bool { return reveals[i].Round < reveals[j].Round })
	return reveals, malformed, nil
}

// VerifyCycle fetches the finalization records and verifies cycle.
func (v *Verifier) VerifyCycle(ctx context.Context, cycle uint64) (*Verdict, error) {
	reveals, _, err := v.Reveals(ctx)
	if err != nil {
		return nil, err
	}
	return v.Verify(ctx, reveals, cycle)
}

// Verify checks cycle against the given finalization records: it rebuilds
// entry ownership from the cycle's purchases, recomputes the winning entries
// from the revealed seed and compares them slot by slot with the registered
// winners. Only transport failures are returned as errors.
func (v *Verifier) Verify(ctx context.Context, reveals []Reveal, cycle uint64) (*Verdict, error) {
	verdict := &Verdict{Cycle: cycle}
	var matching []Reveal
	var prevRound uint64
	for _, r := range reveals {
		if r.Cycle == cycle {
			matching = append(matching, r)
		}
	}
	switch len(matching) {
	case 0:
		return verdict.fail("no reveal found"), nil
	case 1:
	default:
		return verdict.fail("cycle revealed %d times", len(matching)), nil
	}
	reveal := matching[0]
	for _, r := range reveals {
		if r.Round < reveal.Round && r.Round > prevRound {
			prevRound = r.Round
		}
	}
	verdict.RevealTx = reveal.TxID
	verdict.Seed = hex.EncodeToString(reveal.Seed[:])
	verdict.Entries = reveal.Entries
	verdict.Legacy = reveal.Legacy
	if reveal.Entries == 0 {
		return verdict.fail("reveal reports no entries"), nil
	}

	buys, err := v.source.Transactions(ctx, TransactionQuery{
		AppID:    v.appID,
		Method:   PurchaseMethod,
		MinRound: prevRound,
		MaxRound: reveal.Round,
	})
	if err != nil {
		return nil, fmt.Errorf("cycle %d: fetch purchases: %w", cycle, err)
	}
	var purchases []Purchase
	for _, txn := range buys {
		p, err := ParsePurchase(txn)
		if err != nil {
			return verdict.fail("malformed purchase: %v", err), nil
		}
		if p.Cycle == cycle {
			purchases = append(purchases, p)
		}
	}
	segments, err := Segments(purchases, reveal.Entries)
	if err != nil {
		return verdict.fail("%v", err), nil
	}

	regs, err := v.source.Transactions(ctx, TransactionQuery{
		AppID:    v.appID,
		Method:   RegisterMethod,
		MinRound: reveal.Round,
	})
	if err != nil {
		return nil, fmt.Errorf("cycle %d: fetch registrations: %w", cycle, err)
	}
	var registration *Registration
	for _, txn := range regs {
		reg, err := ParseRegistration(txn)
		if err != nil {
			return verdict.fail("malformed registration: %v", err), nil
		}
		if reg.Cycle == cycle {
			registration = &reg
			break
		}
	}
	if registration == nil {
		return verdict.fail("winners not registered"), nil
	}
	verdict.RegisterTx = registration.TxID

	plan, err := lottery.PlanWinners(reveal.Draw(), v.counts, segments)
	if err != nil {
		return verdict.fail("recompute winners: %v", err), nil
	}
	if len(plan) != len(registration.Slots) {
		return verdict.fail("registered %d slots, expected %d", len(registration.Slots), len(plan)), nil
	}

	verdict.Pass = true
	verdict.Slots = make([]SlotCheck, len(plan))
	mismatches := 0
	for i, want := range plan {
		got := registration.Slots[i]
		check := SlotCheck{
			Slot:       i,
			Tier:       uint8(want.Slot.Tier),
			Entry:      want.Entry,
			Expected:   want.Slot.Address.String(),
			Registered: got.Address.String(),
			Amount:     got.Amount,
			Match:      got.Address == want.Slot.Address && got.Tier == want.Slot.Tier,
		}
		if !check.Match {
			mismatches++
		}
		verdict.Slots[i] = check
	}
	if mismatches > 0 {
		return verdict.fail("%d of %d slots do not match the recomputed winners", mismatches, len(plan)), nil
	}
	return verdict, nil
}
