package lottery

import (
	"encoding/binary"
	"fmt"

	"lottochain/crypto"
)

// WinnerSlot is one decoded registry record.
type WinnerSlot struct {
	Address crypto.Address
	Tier    Tier
	Amount  uint64
}

// WinnerRegistry stores the winner records of a finalized cycle followed by the
// claimed bitset. Records are immutable once stored; only claim flags change.
type WinnerRegistry struct {
	CycleID uint64
	Records []byte
	Claimed []byte
}

// NewWinnerRegistry validates raw records against the expected slot count and
// returns a registry with every claim flag cleared.
func NewWinnerRegistry(cycleID uint64, records []byte, slots int) (*WinnerRegistry, error) {
	if slots <= 0 || len(records) != slots*WinnerRecordSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidRecords, slots*WinnerRecordSize, len(records))
	}
	return &WinnerRegistry{
		CycleID: cycleID,
		Records: append([]byte(nil), records...),
		Claimed: make([]byte, ClaimBitsLen(slots)),
	}, nil
}

// Len returns the number of winner slots.
func (r *WinnerRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Records) / WinnerRecordSize
}

// Slot decodes record i.
func (r *WinnerRegistry) Slot(i int) (WinnerSlot, error) {
	if r == nil || i < 0 || i >= r.Len() {
		return WinnerSlot{}, ErrInvalidIndex
	}
	return decodeWinnerRecord(r.Records[i*WinnerRecordSize : (i+1)*WinnerRecordSize]), nil
}

// Slots decodes every record in slot order.
func (r *WinnerRegistry) Slots() []WinnerSlot {
	out := make([]WinnerSlot, r.Len())
	for i := range out {
		out[i], _ = r.Slot(i)
	}
	return out
}

// Bits returns the claimed flags as a bitset.
func (r *WinnerRegistry) Bits() (*ClaimBits, error) {
	return ClaimBitsFromBytes(r.Len(), r.Claimed)
}

// IsClaimed reports whether slot i has been paid out.
func (r *WinnerRegistry) IsClaimed(i int) bool {
	bits, err := r.Bits()
	if err != nil {
		return false
	}
	return bits.Get(i)
}

// Bytes returns the contiguous storage layout: records followed by the bitset.
func (r *WinnerRegistry) Bytes() []byte {
	out := make([]byte, 0, len(r.Records)+len(r.Claimed))
	out = append(out, r.Records...)
	return append(out, r.Claimed...)
}

func (r *WinnerRegistry) Clone() *WinnerRegistry {
	if r == nil {
		return nil
	}
	return &WinnerRegistry{
		CycleID: r.CycleID,
		Records: append([]byte(nil), r.Records...),
		Claimed: append([]byte(nil), r.Claimed...),
	}
}

func decodeWinnerRecord(rec []byte) WinnerSlot {
	var slot WinnerSlot
	copy(slot.Address[:], rec[:winnerAddressLength])
	slot.Tier = Tier(rec[winnerTierOffset])
	slot.Amount = binary.BigEndian.Uint64(rec[winnerAmountOffset:WinnerRecordSize])
	return slot
}

// EncodeWinnerRecords packs slots into the 41-byte record layout.
func EncodeWinnerRecords(slots []WinnerSlot) []byte {
	out := make([]byte, len(slots)*WinnerRecordSize)
	for i, slot := range slots {
		rec := out[i*WinnerRecordSize : (i+1)*WinnerRecordSize]
		copy(rec[:winnerAddressLength], slot.Address[:])
		rec[winnerTierOffset] = byte(slot.Tier)
		binary.BigEndian.PutUint64(rec[winnerAmountOffset:], slot.Amount)
	}
	return out
}

// DecodeWinnerRecords unpacks raw records.
func DecodeWinnerRecords(raw []byte) ([]WinnerSlot, error) {
	if len(raw)%WinnerRecordSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrInvalidRecords, len(raw), WinnerRecordSize)
	}
	out := make([]WinnerSlot, len(raw)/WinnerRecordSize)
	for i := range out {
		out[i] = decodeWinnerRecord(raw[i*WinnerRecordSize : (i+1)*WinnerRecordSize])
	}
	return out, nil
}

// RegisterWinners stores the winner records for a revealed cycle. The registry
// is write-once; a second registration for the same cycle fails without
// touching the stored records.
func (e *Engine) RegisterWinners(sender crypto.Address, cycleID uint64, records []byte) (*WinnerRegistry, error) {
	cycle, err := e.loadCycle()
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(cycle, sender); err != nil {
		return nil, err
	}
	if cycle.DrawStatus != DrawStatusRevealed {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDrawStatus, cycle.DrawStatus)
	}
	if cycleID != cycle.RevealedCycle {
		return nil, fmt.Errorf("%w: cycle %d was not the last revealed cycle %d", ErrInvalidCycle, cycleID, cycle.RevealedCycle)
	}
	if _, exists, err := e.state.LotteryRegistry(cycleID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrRegistryExists
	}
	reg, err := NewWinnerRegistry(cycleID, records, e.params.WinnerCount())
	if err != nil {
		return nil, err
	}
	for i, slot := range reg.Slots() {
		if !slot.Tier.Valid() {
			return nil, fmt.Errorf("%w: slot %d has tier %d", ErrInvalidRecords, i, slot.Tier)
		}
	}

	if err := e.state.PutLotteryRegistry(reg); err != nil {
		return nil, err
	}
	cycle.DrawStatus = DrawStatusNone
	if err := e.state.PutLotteryCycle(cycle); err != nil {
		return nil, err
	}
	e.emit(NewWinnersRegisteredEvent(cycleID, reg.Len()))
	return reg.Clone(), nil
}

// Claim pays out registry slot index of cycleID to its winner exactly once.
func (e *Engine) Claim(sender crypto.Address, cycleID uint64, index uint64) (WinnerSlot, error) {
	cycle, err := e.loadCycle()
	if err != nil {
		return WinnerSlot{}, err
	}
	if index >= uint64(e.params.WinnerCount()) {
		return WinnerSlot{}, ErrInvalidIndex
	}
	reg, exists, err := e.state.LotteryRegistry(cycleID)
	if err != nil {
		return WinnerSlot{}, err
	}
	if !exists {
		return WinnerSlot{}, ErrRegistryNotFound
	}
	slot, err := reg.Slot(int(index))
	if err != nil {
		return WinnerSlot{}, err
	}
	if slot.Address != sender {
		return WinnerSlot{}, ErrNotWinner
	}
	bits, err := reg.Bits()
	if err != nil {
		return WinnerSlot{}, err
	}
	if bits.Get(int(index)) {
		return WinnerSlot{}, ErrAlreadyClaimed
	}
	if slot.Amount == 0 {
		return WinnerSlot{}, ErrEmptyPrize
	}
	if cycle.UnclaimedPrizes < slot.Amount {
		return WinnerSlot{}, fmt.Errorf("%w: unclaimed prizes %d below %d", ErrInsufficientFunds, cycle.UnclaimedPrizes, slot.Amount)
	}
	if err := e.requireAppBalance(slot.Amount); err != nil {
		return WinnerSlot{}, err
	}

	if err := e.state.Transfer(e.appAddress, sender, slot.Amount); err != nil {
		return WinnerSlot{}, err
	}
	offset, err := bits.Set(int(index))
	if err != nil {
		return WinnerSlot{}, err
	}
	if err := e.state.PutClaimByte(cycleID, offset, bits.Bytes()[offset]); err != nil {
		return WinnerSlot{}, err
	}
	cycle.UnclaimedPrizes -= slot.Amount
	if err := e.state.PutLotteryCycle(cycle); err != nil {
		return WinnerSlot{}, err
	}
	e.emit(NewClaimedEvent(cycleID, index, slot))
	return slot, nil
}
