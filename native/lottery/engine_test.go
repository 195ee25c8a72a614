package lottery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"lottochain/core/events"
	"lottochain/core/types"
	"lottochain/crypto"
)

type mockState struct {
	cycle      *CycleState
	entrants   map[crypto.Address]*EntrantState
	segments   map[uint64][]EntrySegment
	registries map[uint64]*WinnerRegistry
	draws      map[uint64]*Draw
	balances   map[crypto.Address]uint64
	rewards    map[crypto.Address]uint64
	writes     int
	claimBytes []int
}

func newMockState() *mockState {
	return &mockState{
		entrants:   make(map[crypto.Address]*EntrantState),
		segments:   make(map[uint64][]EntrySegment),
		registries: make(map[uint64]*WinnerRegistry),
		draws:      make(map[uint64]*Draw),
		balances:   make(map[crypto.Address]uint64),
		rewards:    make(map[crypto.Address]uint64),
	}
}

func (m *mockState) LotteryCycle() (*CycleState, bool, error) {
	if m.cycle == nil {
		return nil, false, nil
	}
	return m.cycle.Clone(), true, nil
}

func (m *mockState) PutLotteryCycle(c *CycleState) error {
	m.writes++
	m.cycle = c.Clone()
	return nil
}

func (m *mockState) LotteryEntrant(addr crypto.Address) (*EntrantState, bool, error) {
	e, ok := m.entrants[addr]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (m *mockState) PutLotteryEntrant(addr crypto.Address, e *EntrantState) error {
	m.writes++
	m.entrants[addr] = e.Clone()
	return nil
}

func (m *mockState) AppendEntrySegment(cycleID uint64, seg EntrySegment) error {
	m.writes++
	m.segments[cycleID] = append(m.segments[cycleID], seg)
	return nil
}

func (m *mockState) EntrySegments(cycleID uint64) ([]EntrySegment, error) {
	return append([]EntrySegment(nil), m.segments[cycleID]...), nil
}

func (m *mockState) LotteryRegistry(cycleID uint64) (*WinnerRegistry, bool, error) {
	reg, ok := m.registries[cycleID]
	if !ok {
		return nil, false, nil
	}
	return reg.Clone(), true, nil
}

func (m *mockState) PutLotteryRegistry(reg *WinnerRegistry) error {
	m.writes++
	m.registries[reg.CycleID] = reg.Clone()
	return nil
}

func (m *mockState) PutClaimByte(cycleID uint64, offset int, value byte) error {
	reg, ok := m.registries[cycleID]
	if !ok {
		return fmt.Errorf("no registry for cycle %d", cycleID)
	}
	if offset < 0 || offset >= len(reg.Claimed) {
		return fmt.Errorf("claim byte %d out of range", offset)
	}
	m.writes++
	m.claimBytes = append(m.claimBytes, offset)
	reg.Claimed[offset] = value
	return nil
}

func (m *mockState) LotteryDraw(cycleID uint64) (*Draw, bool, error) {
	d, ok := m.draws[cycleID]
	if !ok {
		return nil, false, nil
	}
	return d.Clone(), true, nil
}

func (m *mockState) PutLotteryDraw(d *Draw) error {
	m.writes++
	m.draws[d.CycleID] = d.Clone()
	return nil
}

func (m *mockState) Balance(addr crypto.Address) (uint64, error) {
	return m.balances[addr], nil
}

func (m *mockState) Transfer(from, to crypto.Address, amount uint64) error {
	if m.balances[from] < amount {
		return fmt.Errorf("insufficient balance")
	}
	m.writes++
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

func (m *mockState) MintReward(_ uint64, to crypto.Address, amount uint64) error {
	m.writes++
	m.rewards[to] += amount
	return nil
}

type captureEmitter struct {
	events []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	if typed, ok := evt.(interface{ Event() *types.Event }); ok {
		c.events = append(c.events, typed.Event())
	}
}

func (c *captureEmitter) last() *types.Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

type fixedSource struct {
	seed []byte
	err  error
}

func (f fixedSource) ProduceSeed(context.Context, SeedRequest) ([]byte, error) {
	return f.seed, f.err
}

const testGenesisTime = int64(1_700_000_000)

var (
	testAdmin = newTestAddress(0x01)
	testApp   = newTestAddress(0xAA)
)

func newTestAddress(fill byte) crypto.Address {
	var addr crypto.Address
	copy(addr[:], bytes.Repeat([]byte{fill}, crypto.AddressLength))
	return addr
}

func sequentialSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return seed
}

type testHarness struct {
	state   *mockState
	engine  *Engine
	emitter *captureEmitter
	now     int64
	round   uint64
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		state:   newMockState(),
		emitter: &captureEmitter{},
		now:     testGenesisTime,
		round:   100,
	}
	engine := NewEngine()
	engine.SetState(h.state)
	engine.SetEmitter(h.emitter)
	engine.SetApplicationAddress(testApp)
	engine.SetNowFunc(func() int64 { return h.now })
	engine.SetRoundFunc(func() uint64 { return h.round })
	engine.SetRandomness(fixedSource{seed: sequentialSeed()})
	h.engine = engine
	if _, err := engine.Initialize(testAdmin, 42); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := engine.OptInRewardAsset(testAdmin); err != nil {
		t.Fatalf("opt in asset: %v", err)
	}
	return h
}

// buy funds sender, applies the grouped payment and calls Buy.
func (h *testHarness) buy(t *testing.T, sender crypto.Address, amount uint64) *Purchase {
	t.Helper()
	if _, ok := h.state.entrants[sender]; !ok {
		if err := h.engine.OptIn(sender); err != nil {
			t.Fatalf("opt in: %v", err)
		}
	}
	h.state.balances[sender] += amount
	if err := h.state.Transfer(sender, testApp, amount); err != nil {
		t.Fatalf("payment: %v", err)
	}
	purchase, err := h.engine.Buy(sender, &types.Payment{Sender: sender, Receiver: testApp, Amount: amount})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	return purchase
}

func TestInitializeDefaults(t *testing.T) {
	h := newTestHarness(t)
	cycle := h.state.cycle
	if cycle.CycleID != 1 || cycle.EntryPrice != DefaultEntryPrice || cycle.Duration != DefaultCycleDuration {
		t.Fatalf("unexpected defaults %+v", cycle)
	}
	if cycle.EndTime != testGenesisTime+DefaultCycleDuration {
		t.Fatalf("unexpected end time %d", cycle.EndTime)
	}
	if cycle.EngineeringWallet != testAdmin || cycle.TokenDistWallet != testAdmin {
		t.Fatalf("wallets should default to the creator")
	}
	if _, err := h.engine.Initialize(testAdmin, 42); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestInitializeValidations(t *testing.T) {
	engine := NewEngine()
	engine.SetState(newMockState())
	engine.SetApplicationAddress(testApp)
	if _, err := engine.Initialize(crypto.Address{}, 1); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected zero creator to be rejected, got %v", err)
	}
	if _, err := engine.Initialize(testAdmin, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected zero asset id to be rejected, got %v", err)
	}
}

func TestOptInRejectsDuplicate(t *testing.T) {
	h := newTestHarness(t)
	alice := newTestAddress(0x10)
	if err := h.engine.OptIn(alice); err != nil {
		t.Fatalf("opt in: %v", err)
	}
	if err := h.engine.OptIn(alice); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestBuyValidations(t *testing.T) {
	alice := newTestAddress(0x10)
	bob := newTestAddress(0x11)

	cases := []struct {
		name    string
		setup   func(h *testHarness)
		sender  crypto.Address
		payment *types.Payment
		wantErr error
	}{
		{"not registered", nil, bob, &types.Payment{Sender: bob, Receiver: testApp, Amount: 1_000_000}, ErrNotRegistered},
		{"missing payment", nil, alice, nil, ErrInvalidPayment},
		{"wrong sender", nil, alice, &types.Payment{Sender: bob, Receiver: testApp, Amount: 1_000_000}, ErrInvalidPayment},
		{"wrong receiver", nil, alice, &types.Payment{Sender: alice, Receiver: bob, Amount: 1_000_000}, ErrInvalidPayment},
		{"zero amount", nil, alice, &types.Payment{Sender: alice, Receiver: testApp, Amount: 0}, ErrInvalidPayment},
		{"partial entry", nil, alice, &types.Payment{Sender: alice, Receiver: testApp, Amount: 1_500_000}, ErrInvalidPayment},
		{"below price", nil, alice, &types.Payment{Sender: alice, Receiver: testApp, Amount: 999_999}, ErrInvalidPayment},
		{"paused", func(h *testHarness) { h.state.cycle.Paused = true }, alice, &types.Payment{Sender: alice, Receiver: testApp, Amount: 1_000_000}, ErrPaused},
		{"cycle ended", func(h *testHarness) { h.now = h.state.cycle.EndTime }, alice, &types.Payment{Sender: alice, Receiver: testApp, Amount: 1_000_000}, ErrCycleEnded},
		{"asset not opted in", func(h *testHarness) { h.state.cycle.AssetOptedIn = false }, alice, &types.Payment{Sender: alice, Receiver: testApp, Amount: 1_000_000}, ErrAssetNotOptedIn},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHarness(t)
			if err := h.engine.OptIn(alice); err != nil {
				t.Fatalf("opt in: %v", err)
			}
			if tc.setup != nil {
				tc.setup(h)
			}
			before := h.state.cycle.Clone()
			writes := h.state.writes
			_, err := h.engine.Buy(tc.sender, tc.payment)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if h.state.writes != writes {
				t.Fatalf("rejected purchase must not write state")
			}
			if *h.state.cycle != *before {
				t.Fatalf("cycle mutated on failure")
			}
		})
	}
}

func TestBuyAssignsContiguousRanges(t *testing.T) {
	h := newTestHarness(t)
	alice := newTestAddress(0x10)
	bob := newTestAddress(0x11)
	carol := newTestAddress(0x12)

	purchases := []struct {
		who        crypto.Address
		amount     uint64
		start, end uint64
	}{
		{alice, 2_000_000, 0, 1},
		{bob, 5_000_000, 2, 6},
		{carol, 3_000_000, 7, 9},
	}
	for _, p := range purchases {
		got := h.buy(t, p.who, p.amount)
		if got.Start != p.start || got.End() != p.end {
			t.Fatalf("expected range [%d,%d], got [%d,%d]", p.start, p.end, got.Start, got.End())
		}
	}

	cycle := h.state.cycle
	if cycle.TotalEntries != 10 || cycle.Pot != 10_000_000 {
		t.Fatalf("unexpected totals entries=%d pot=%d", cycle.TotalEntries, cycle.Pot)
	}
	if h.state.balances[testApp] != 10_000_000 {
		t.Fatalf("application balance %d", h.state.balances[testApp])
	}

	// The segments partition [0, total) with no gaps or overlaps.
	var next uint64
	for _, seg := range h.state.segments[1] {
		if seg.Start != next {
			t.Fatalf("gap or overlap at %d", seg.Start)
		}
		next = seg.Start + seg.Count
	}
	if next != cycle.TotalEntries {
		t.Fatalf("segments cover %d entries, want %d", next, cycle.TotalEntries)
	}

	owner, err := h.engine.OwnerOf(1, 6)
	if err != nil || owner != bob {
		t.Fatalf("entry 6 should belong to bob: %v", err)
	}
	if _, err := h.engine.OwnerOf(1, 10); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected out of range entry to fail, got %v", err)
	}

	if h.state.rewards[bob] != 5 {
		t.Fatalf("expected 5 reward tokens for bob, got %d", h.state.rewards[bob])
	}
	evt := h.emitter.last()
	if evt == nil || evt.Type != EventTypePurchase || evt.Attributes["start"] != "7" || evt.Attributes["end"] != "9" {
		t.Fatalf("unexpected purchase event %+v", evt)
	}
	want := PurchaseLog{Cycle: 1, Start: 7, End: 9}.Bytes()
	if !bytes.Equal(evt.Data, want) {
		t.Fatalf("unexpected purchase log %x", evt.Data)
	}
}

func TestBuyExtendsRangeWithinCycleAndRestartsAcrossCycles(t *testing.T) {
	h := newTestHarness(t)
	alice := newTestAddress(0x10)
	bob := newTestAddress(0x11)

	h.buy(t, alice, 2_000_000)
	h.buy(t, bob, 1_000_000)
	h.buy(t, alice, 3_000_000)

	entrant := h.state.entrants[alice]
	if entrant.EntryStartNum != 0 || entrant.EntriesCurrent != 5 || entrant.TotalLifetime != 5 {
		t.Fatalf("unexpected entrant state %+v", entrant)
	}
	if h.state.cycle.TotalEntries != 6 {
		t.Fatalf("expected 6 entries, got %d", h.state.cycle.TotalEntries)
	}
	// The later purchase still owns its own segment.
	owner, err := h.engine.OwnerOf(1, 3)
	if err != nil || owner != alice {
		t.Fatalf("entry 3 should belong to alice")
	}

	h.state.cycle.CycleID = 2
	h.state.cycle.TotalEntries = 0
	h.buy(t, alice, 1_000_000)
	entrant = h.state.entrants[alice]
	if entrant.EntryStartNum != 0 || entrant.EntriesCurrent != 1 || entrant.LastCycle != 2 || entrant.TotalLifetime != 6 {
		t.Fatalf("range should restart in a new cycle: %+v", entrant)
	}
	start, count, ok := entrant.EntryRange(2)
	if !ok || start != 0 || count != 1 {
		t.Fatalf("unexpected entry range %d/%d/%v", start, count, ok)
	}
	if _, _, ok := entrant.EntryRange(1); ok {
		t.Fatalf("stale cycle range must not be reported")
	}
}

func TestBuyUsesRewardRate(t *testing.T) {
	h := newTestHarness(t)
	if _, err := h.engine.SetRewardRate(testAdmin, 10); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	alice := newTestAddress(0x10)
	p := h.buy(t, alice, 3_000_000)
	if p.Minted != 30 || h.state.rewards[alice] != 30 {
		t.Fatalf("expected 30 reward tokens, got %d", h.state.rewards[alice])
	}
}

func TestEngineWithoutStateFails(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.Cycle(); err == nil {
		t.Fatalf("expected error without state")
	}
	engine.SetState(newMockState())
	if _, err := engine.Cycle(); err == nil {
		t.Fatalf("expected error without application address")
	}
	engine.SetApplicationAddress(testApp)
	if _, err := engine.Cycle(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
