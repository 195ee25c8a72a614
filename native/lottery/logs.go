package lottery

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"lottochain/crypto"
)

// Canonical log tags. Logs are an ASCII tag followed by name=value pairs whose
// values are fixed-width big-endian binary; consumers parse them by position.
const (
	LogTagPurchase          = "PURCHASE"
	LogTagDrawCommitted     = "DRAW_COMMITTED"
	LogTagDrawRevealed      = "DRAW_REVEALED"
	LogTagWinnersRegistered = "WINNERS_REGISTERED"
	LogTagClaimed           = "CLAIMED"
	LogTagCycleSkipped      = "CYCLE_SKIPPED"

	// Tags written by earlier deployments. They are parsed, never produced.
	LogTagDrawExecuted   = "DRAW_EXECUTED"
	LogTagEntryPurchased = "ENTRY_PURCHASED"
	LogTagPrizeClaimed   = "PRIZE_CLAIMED"
)

var (
	ErrUnknownLog   = errors.New("lottery: unknown log tag")
	ErrMalformedLog = errors.New("lottery: malformed log")
)

type logField struct {
	name  string
	width int
}

type logLayout struct {
	tag    string
	fields []logField
}

func u64Field(name string) logField          { return logField{name: name, width: 8} }
func bytesField(name string, n int) logField { return logField{name: name, width: n} }

var purchaseLayout = logLayout{LogTagPurchase, []logField{u64Field("cycle"), u64Field("start"), u64Field("end")}}

var entryPurchasedLayout = logLayout{LogTagEntryPurchased, purchaseLayout.fields}

var drawCommittedLayout = logLayout{LogTagDrawCommitted, []logField{u64Field("cycle"), u64Field("commitment_round")}}

var drawRevealedLayout = logLayout{LogTagDrawRevealed, []logField{
	u64Field("cycle"), u64Field("pot"), u64Field("entries"), u64Field("commitment_round"),
	u64Field("t1"), u64Field("t2"), u64Field("t3"), bytesField("seed", 32),
}}

var winnersRegisteredLayout = logLayout{LogTagWinnersRegistered, []logField{u64Field("cycle")}}

var claimedLayout = logLayout{LogTagClaimed, []logField{
	u64Field("cycle"), bytesField("winner", crypto.AddressLength), bytesField("tier", 1), u64Field("amount"),
}}

var prizeClaimedLayout = logLayout{LogTagPrizeClaimed, []logField{
	u64Field("cycle"), bytesField("winner", crypto.AddressLength), u64Field("tier"), u64Field("amount"),
}}

var cycleSkippedLayout = logLayout{LogTagCycleSkipped, []logField{u64Field("cycle")}}

var drawExecutedLayout = logLayout{LogTagDrawExecuted, []logField{
	u64Field("cycle"), u64Field("pot"), u64Field("entries"), bytesField("seed", 32),
	u64Field("t1"), u64Field("t2"), u64Field("t3"), u64Field("lott"),
}}

func (l logLayout) size() int {
	n := len(l.tag) + 1
	for i, f := range l.fields {
		if i > 0 {
			n++
		}
		n += len(f.name) + 1 + f.width
	}
	return n
}

func (l logLayout) encode(values ...[]byte) []byte {
	if len(values) != len(l.fields) {
		panic(fmt.Sprintf("lottery: %s log expects %d values", l.tag, len(l.fields)))
	}
	out := make([]byte, 0, l.size())
	out = append(out, l.tag...)
	out = append(out, ':')
	for i, f := range l.fields {
		if len(values[i]) != f.width {
			panic(fmt.Sprintf("lottery: %s.%s must be %d bytes", l.tag, f.name, f.width))
		}
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, f.name...)
		out = append(out, '=')
		out = append(out, values[i]...)
	}
	return out
}

func (l logLayout) decode(raw []byte) ([][]byte, error) {
	if len(raw) != l.size() {
		return nil, fmt.Errorf("%w: %s log is %d bytes, want %d", ErrMalformedLog, l.tag, len(raw), l.size())
	}
	pos := 0
	expect := func(lit string) error {
		if !bytes.Equal(raw[pos:pos+len(lit)], []byte(lit)) {
			return fmt.Errorf("%w: %s log expected %q at offset %d", ErrMalformedLog, l.tag, lit, pos)
		}
		pos += len(lit)
		return nil
	}
	if err := expect(l.tag + ":"); err != nil {
		return nil, err
	}
	values := make([][]byte, len(l.fields))
	for i, f := range l.fields {
		label := f.name + "="
		if i > 0 {
			label = "," + label
		}
		if err := expect(label); err != nil {
			return nil, err
		}
		values[i] = append([]byte(nil), raw[pos:pos+f.width]...)
		pos += f.width
	}
	return values, nil
}

func itob(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// LogTag returns the tag of a canonical log line.
func LogTag(raw []byte) string {
	idx := bytes.IndexByte(raw, ':')
	if idx <= 0 {
		return ""
	}
	return string(raw[:idx])
}

// PurchaseLog is emitted for every entry purchase.
type PurchaseLog struct {
	Cycle uint64
	Start uint64
	End   uint64
}

func (p PurchaseLog) Bytes() []byte {
	return purchaseLayout.encode(itob(p.Cycle), itob(p.Start), itob(p.End))
}

// Count returns the number of entries covered by the log.
func (p PurchaseLog) Count() uint64 {
	return p.End - p.Start + 1
}

// DrawCommittedLog is emitted when a draw is committed.
type DrawCommittedLog struct {
	Cycle           uint64
	CommitmentRound uint64
}

func (d DrawCommittedLog) Bytes() []byte {
	return drawCommittedLayout.encode(itob(d.Cycle), itob(d.CommitmentRound))
}

// DrawRevealedLog is emitted when a draw is revealed.
type DrawRevealedLog struct {
	Cycle           uint64
	Pot             uint64
	Entries         uint64
	CommitmentRound uint64
	Tier1           uint64
	Tier2           uint64
	Tier3           uint64
	Seed            [32]byte
}

func (d DrawRevealedLog) Bytes() []byte {
	return drawRevealedLayout.encode(itob(d.Cycle), itob(d.Pot), itob(d.Entries), itob(d.CommitmentRound),
		itob(d.Tier1), itob(d.Tier2), itob(d.Tier3), d.Seed[:])
}

// WinnersRegisteredLog is emitted when a registry is stored.
type WinnersRegisteredLog struct {
	Cycle uint64
}

func (w WinnersRegisteredLog) Bytes() []byte {
	return winnersRegisteredLayout.encode(itob(w.Cycle))
}

// ClaimedLog is emitted for every paid prize.
type ClaimedLog struct {
	Cycle  uint64
	Winner crypto.Address
	Tier   Tier
	Amount uint64
}

func (c ClaimedLog) Bytes() []byte {
	return claimedLayout.encode(itob(c.Cycle), c.Winner[:], []byte{byte(c.Tier)}, itob(c.Amount))
}

// CycleSkippedLog is emitted when an empty cycle is closed.
type CycleSkippedLog struct {
	Cycle uint64
}

func (c CycleSkippedLog) Bytes() []byte {
	return cycleSkippedLayout.encode(itob(c.Cycle))
}

// DrawExecutedLog is the single-phase draw log of earlier deployments. Its
// seed is the direct-hash seed.
type DrawExecutedLog struct {
	Cycle        uint64
	Pot          uint64
	Entries      uint64
	Seed         [32]byte
	Tier1        uint64
	Tier2        uint64
	Tier3        uint64
	TokenHolders uint64
}

func (d DrawExecutedLog) Bytes() []byte {
	return drawExecutedLayout.encode(itob(d.Cycle), itob(d.Pot), itob(d.Entries), d.Seed[:],
		itob(d.Tier1), itob(d.Tier2), itob(d.Tier3), itob(d.TokenHolders))
}

// ParseLog decodes any known log line into its typed form. ENTRY_PURCHASED
// decodes to PurchaseLog and PRIZE_CLAIMED to ClaimedLog.
func ParseLog(raw []byte) (any, error) {
	switch LogTag(raw) {
	case LogTagPurchase:
		return parsePurchase(purchaseLayout, raw)
	case LogTagEntryPurchased:
		return parsePurchase(entryPurchasedLayout, raw)
	case LogTagDrawCommitted:
		v, err := drawCommittedLayout.decode(raw)
		if err != nil {
			return nil, err
		}
		return DrawCommittedLog{Cycle: btoi(v[0]), CommitmentRound: btoi(v[1])}, nil
	case LogTagDrawRevealed:
		return ParseDrawRevealedLog(raw)
	case LogTagWinnersRegistered:
		v, err := winnersRegisteredLayout.decode(raw)
		if err != nil {
			return nil, err
		}
		return WinnersRegisteredLog{Cycle: btoi(v[0])}, nil
	case LogTagClaimed:
		v, err := claimedLayout.decode(raw)
		if err != nil {
			return nil, err
		}
		out := ClaimedLog{Cycle: btoi(v[0]), Tier: Tier(v[2][0]), Amount: btoi(v[3])}
		copy(out.Winner[:], v[1])
		return out, nil
	case LogTagPrizeClaimed:
		v, err := prizeClaimedLayout.decode(raw)
		if err != nil {
			return nil, err
		}
		out := ClaimedLog{Cycle: btoi(v[0]), Tier: Tier(btoi(v[2])), Amount: btoi(v[3])}
		copy(out.Winner[:], v[1])
		return out, nil
	case LogTagCycleSkipped:
		v, err := cycleSkippedLayout.decode(raw)
		if err != nil {
			return nil, err
		}
		return CycleSkippedLog{Cycle: btoi(v[0])}, nil
	case LogTagDrawExecuted:
		return ParseDrawExecutedLog(raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLog, LogTag(raw))
	}
}

func parsePurchase(layout logLayout, raw []byte) (PurchaseLog, error) {
	v, err := layout.decode(raw)
	if err != nil {
		return PurchaseLog{}, err
	}
	out := PurchaseLog{Cycle: btoi(v[0]), Start: btoi(v[1]), End: btoi(v[2])}
	if out.End < out.Start {
		return PurchaseLog{}, fmt.Errorf("%w: purchase end %d before start %d", ErrMalformedLog, out.End, out.Start)
	}
	return out, nil
}

// ParsePurchaseLog decodes a PURCHASE or ENTRY_PURCHASED line.
func ParsePurchaseLog(raw []byte) (PurchaseLog, error) {
	if LogTag(raw) == LogTagEntryPurchased {
		return parsePurchase(entryPurchasedLayout, raw)
	}
	return parsePurchase(purchaseLayout, raw)
}

// ParseDrawRevealedLog decodes a DRAW_REVEALED line.
func ParseDrawRevealedLog(raw []byte) (DrawRevealedLog, error) {
	v, err := drawRevealedLayout.decode(raw)
	if err != nil {
		return DrawRevealedLog{}, err
	}
	out := DrawRevealedLog{
		Cycle:           btoi(v[0]),
		Pot:             btoi(v[1]),
		Entries:         btoi(v[2]),
		CommitmentRound: btoi(v[3]),
		Tier1:           btoi(v[4]),
		Tier2:           btoi(v[5]),
		Tier3:           btoi(v[6]),
	}
	copy(out.Seed[:], v[7])
	return out, nil
}

// ParseDrawExecutedLog decodes a DRAW_EXECUTED line.
func ParseDrawExecutedLog(raw []byte) (DrawExecutedLog, error) {
	v, err := drawExecutedLayout.decode(raw)
	if err != nil {
		return DrawExecutedLog{}, err
	}
	out := DrawExecutedLog{
		Cycle:        btoi(v[0]),
		Pot:          btoi(v[1]),
		Entries:      btoi(v[2]),
		Tier1:        btoi(v[4]),
		Tier2:        btoi(v[5]),
		Tier3:        btoi(v[6]),
		TokenHolders: btoi(v[7]),
	}
	copy(out.Seed[:], v[3])
	return out, nil
}
