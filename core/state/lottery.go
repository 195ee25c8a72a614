package state

import (
	"fmt"

	"lottochain/crypto"
	"lottochain/native/lottery"
)

var (
	lotteryCycleKey       = []byte("lottery/cycle")
	lotteryEntrantPrefix  = "lottery/entrant/"
	lotterySegmentsFormat = "lottery/segments/%d"
	lotteryRegistryFormat = "lottery/registry/%d"
	lotteryClaimsFormat   = "lottery/claims/%d"
	lotteryDrawFormat     = "lottery/draw/%d"
)

// RLP has no signed integers, so timestamps are stored as uint64.
type storedCycle struct {
	Creator           [32]byte
	CycleID           uint64
	StartTime         uint64
	EndTime           uint64
	Duration          uint64
	Pot               uint64
	EntryPrice        uint64
	RolloverPool      uint64
	TotalEntries      uint64
	Paused            bool
	TestMode          bool
	CommitmentRound   uint64
	CommitRound       uint64
	DrawStatus        uint8
	RevealedCycle     uint64
	UnclaimedPrizes   uint64
	EngineeringWallet [32]byte
	TokenDistWallet   [32]byte
	RewardAssetID     uint64
	RewardRate        uint64
	AssetOptedIn      bool
}

func newStoredCycle(c *lottery.CycleState) *storedCycle {
	return &storedCycle{
		Creator:           c.Creator,
		CycleID:           c.CycleID,
		StartTime:         uint64(c.StartTime),
		EndTime:           uint64(c.EndTime),
		Duration:          c.Duration,
		Pot:               c.Pot,
		EntryPrice:        c.EntryPrice,
		RolloverPool:      c.RolloverPool,
		TotalEntries:      c.TotalEntries,
		Paused:            c.Paused,
		TestMode:          c.TestMode,
		CommitmentRound:   c.CommitmentRound,
		CommitRound:       c.CommitRound,
		DrawStatus:        uint8(c.DrawStatus),
		RevealedCycle:     c.RevealedCycle,
		UnclaimedPrizes:   c.UnclaimedPrizes,
		EngineeringWallet: c.EngineeringWallet,
		TokenDistWallet:   c.TokenDistWallet,
		RewardAssetID:     c.RewardAssetID,
		RewardRate:        c.RewardRate,
		AssetOptedIn:      c.AssetOptedIn,
	}
}

func (s *storedCycle) toCycle() *lottery.CycleState {
	return &lottery.CycleState{
		Creator:           s.Creator,
		CycleID:           s.CycleID,
		StartTime:         int64(s.StartTime),
		EndTime:           int64(s.EndTime),
		Duration:          s.Duration,
		Pot:               s.Pot,
		EntryPrice:        s.EntryPrice,
		RolloverPool:      s.RolloverPool,
		TotalEntries:      s.TotalEntries,
		Paused:            s.Paused,
		TestMode:          s.TestMode,
		CommitmentRound:   s.CommitmentRound,
		CommitRound:       s.CommitRound,
		DrawStatus:        lottery.DrawStatus(s.DrawStatus),
		RevealedCycle:     s.RevealedCycle,
		UnclaimedPrizes:   s.UnclaimedPrizes,
		EngineeringWallet: s.EngineeringWallet,
		TokenDistWallet:   s.TokenDistWallet,
		RewardAssetID:     s.RewardAssetID,
		RewardRate:        s.RewardRate,
		AssetOptedIn:      s.AssetOptedIn,
	}
}

type storedSegment struct {
	Start uint64
	Count uint64
	Owner [32]byte
}

type storedDraw struct {
	CycleID         uint64
	Pot             uint64
	Entries         uint64
	CommitmentRound uint64
	RevealRound     uint64
	RevealedAt      uint64
	Seed            [32]byte
	Prizes          lottery.Prizes
}

func lotteryEntrantKey(addr crypto.Address) []byte {
	return append([]byte(lotteryEntrantPrefix), addr[:]...)
}

func cycleKey(format string, cycleID uint64) []byte {
	return []byte(fmt.Sprintf(format, cycleID))
}

// LotteryCycle returns the cycle ledger.
func (m *Manager) LotteryCycle() (*lottery.CycleState, bool, error) {
	var stored storedCycle
	ok, err := m.KVGet(lotteryCycleKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toCycle(), true, nil
}

// PutLotteryCycle stores the cycle ledger.
func (m *Manager) PutLotteryCycle(cycle *lottery.CycleState) error {
	if cycle == nil {
		return fmt.Errorf("lottery: nil cycle")
	}
	return m.KVPut(lotteryCycleKey, newStoredCycle(cycle))
}

// LotteryEntrant returns the ledger of an opted-in entrant.
func (m *Manager) LotteryEntrant(addr crypto.Address) (*lottery.EntrantState, bool, error) {
	entrant := new(lottery.EntrantState)
	ok, err := m.KVGet(lotteryEntrantKey(addr), entrant)
	if err != nil || !ok {
		return nil, ok, err
	}
	return entrant, true, nil
}

// PutLotteryEntrant stores the ledger of an entrant.
func (m *Manager) PutLotteryEntrant(addr crypto.Address, entrant *lottery.EntrantState) error {
	if entrant == nil {
		return fmt.Errorf("lottery: nil entrant")
	}
	return m.KVPut(lotteryEntrantKey(addr), entrant)
}

// AppendEntrySegment records a purchase's range for ownership lookups.
func (m *Manager) AppendEntrySegment(cycleID uint64, seg lottery.EntrySegment) error {
	var list []storedSegment
	key := cycleKey(lotterySegmentsFormat, cycleID)
	if err := m.KVGetList(key, &list); err != nil {
		return err
	}
	if n := len(list); n > 0 {
		last := list[n-1]
		if seg.Start != last.Start+last.Count {
			return fmt.Errorf("lottery: segment start %d does not follow %d", seg.Start, last.Start+last.Count)
		}
	}
	list = append(list, storedSegment{Start: seg.Start, Count: seg.Count, Owner: seg.Owner})
	return m.KVPut(key, list)
}

// EntrySegments returns the purchase ranges of a cycle in ascending order.
func (m *Manager) EntrySegments(cycleID uint64) ([]lottery.EntrySegment, error) {
	var list []storedSegment
	if err := m.KVGetList(cycleKey(lotterySegmentsFormat, cycleID), &list); err != nil {
		return nil, err
	}
	out := make([]lottery.EntrySegment, len(list))
	for i, seg := range list {
		out[i] = lottery.EntrySegment{Start: seg.Start, Count: seg.Count, Owner: seg.Owner}
	}
	return out, nil
}

// LotteryRegistry loads the winner records and claim flags of a cycle.
func (m *Manager) LotteryRegistry(cycleID uint64) (*lottery.WinnerRegistry, bool, error) {
	var records []byte
	ok, err := m.KVGet(cycleKey(lotteryRegistryFormat, cycleID), &records)
	if err != nil || !ok {
		return nil, ok, err
	}
	var claimed []byte
	if _, err := m.KVGet(cycleKey(lotteryClaimsFormat, cycleID), &claimed); err != nil {
		return nil, false, err
	}
	return &lottery.WinnerRegistry{CycleID: cycleID, Records: records, Claimed: claimed}, true, nil
}

// PutLotteryRegistry stores a registry. The records of a cycle are written
// once; later calls only replace the claim flags.
func (m *Manager) PutLotteryRegistry(reg *lottery.WinnerRegistry) error {
	if reg == nil {
		return fmt.Errorf("lottery: nil registry")
	}
	key := cycleKey(lotteryRegistryFormat, reg.CycleID)
	exists, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.KVPut(key, reg.Records); err != nil {
			return err
		}
	}
	return m.KVPut(cycleKey(lotteryClaimsFormat, reg.CycleID), reg.Claimed)
}

// PutClaimByte rewrites the claim flag byte at offset of a registered cycle.
// The other bytes are left untouched.
func (m *Manager) PutClaimByte(cycleID uint64, offset int, value byte) error {
	exists, err := m.KVGet(cycleKey(lotteryRegistryFormat, cycleID), nil)
	if err != nil {
		return err
	}
	if !exists {
		return lottery.ErrRegistryNotFound
	}
	key := cycleKey(lotteryClaimsFormat, cycleID)
	var claimed []byte
	if _, err := m.KVGet(key, &claimed); err != nil {
		return err
	}
	if offset < 0 || offset >= len(claimed) {
		return fmt.Errorf("lottery: claim byte %d out of range for cycle %d", offset, cycleID)
	}
	claimed[offset] = value
	return m.KVPut(key, claimed)
}

// LotteryDraw returns the reveal outcome of a cycle.
func (m *Manager) LotteryDraw(cycleID uint64) (*lottery.Draw, bool, error) {
	var stored storedDraw
	ok, err := m.KVGet(cycleKey(lotteryDrawFormat, cycleID), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &lottery.Draw{
		CycleID:         stored.CycleID,
		Pot:             stored.Pot,
		Entries:         stored.Entries,
		CommitmentRound: stored.CommitmentRound,
		RevealRound:     stored.RevealRound,
		RevealedAt:      int64(stored.RevealedAt),
		Seed:            stored.Seed,
		Prizes:          stored.Prizes,
	}, true, nil
}

// PutLotteryDraw stores the reveal outcome of a cycle.
func (m *Manager) PutLotteryDraw(draw *lottery.Draw) error {
	if draw == nil {
		return fmt.Errorf("lottery: nil draw")
	}
	return m.KVPut(cycleKey(lotteryDrawFormat, draw.CycleID), &storedDraw{
		CycleID:         draw.CycleID,
		Pot:             draw.Pot,
		Entries:         draw.Entries,
		CommitmentRound: draw.CommitmentRound,
		RevealRound:     draw.RevealRound,
		RevealedAt:      uint64(draw.RevealedAt),
		Seed:            draw.Seed,
		Prizes:          draw.Prizes,
	})
}
