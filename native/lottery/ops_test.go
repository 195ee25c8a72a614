package lottery

import (
	"context"
	"errors"
	"testing"

	"lottochain/core/types"
	"lottochain/crypto"
)

func TestParseOpCoversEverySelector(t *testing.T) {
	for op := OpOptIn; op <= OpUnpause; op++ {
		if !op.Valid() {
			t.Fatalf("op %d has no selector", op)
		}
		parsed, err := ParseOp([]byte(op.Selector()))
		if err != nil || parsed != op {
			t.Fatalf("selector %q did not map back to %d", op.Selector(), op)
		}
	}
	if _, err := ParseOp([]byte("execute_draw")); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	if Op(99).Valid() || Op(99).String() != "op(99)" {
		t.Fatalf("unexpected unknown op rendering")
	}
}

func TestDispatchArgumentCounts(t *testing.T) {
	h := newTestHarness(t)
	cases := []struct {
		name string
		args [][]byte
		want error
	}{
		{"no selector", nil, ErrUnknownOperation},
		{"unknown selector", [][]byte{[]byte("nope")}, ErrUnknownOperation},
		{"opt in with extra", Args(OpOptIn, []byte{1}), ErrInvalidArguments},
		{"claim missing index", Args(OpClaimPrize, EncodeUint(1)), ErrInvalidArguments},
		{"register missing records", Args(OpRegisterWinners, EncodeUint(1)), ErrInvalidArguments},
		{"duration missing", Args(OpSetCycleDuration), ErrInvalidArguments},
		{"oversized integer", Args(OpSetCycleDuration, make([]byte, 9)), ErrInvalidArguments},
		{"empty integer", Args(OpSetRewardRate, []byte{}), ErrInvalidArguments},
		{"short wallet", Args(OpSetEngineeringWallet, []byte{1, 2, 3}), ErrInvalidArguments},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.engine.Dispatch(context.Background(), Call{Sender: testAdmin, Args: tc.args}); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDispatchRejectsStrayPayment(t *testing.T) {
	h := newTestHarness(t)
	call := Call{
		Sender:  testAlice,
		Args:    Args(OpOptIn),
		Payment: &types.Payment{Sender: testAlice, Receiver: testApp, Amount: 1},
	}
	if _, err := h.engine.Dispatch(context.Background(), call); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}
	if _, ok := h.state.entrants[testAlice]; ok {
		t.Fatalf("opt in applied despite the payment")
	}
}

func TestDispatchLifecycle(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	dispatch := func(sender crypto.Address, payment *types.Payment, op Op, params ...[]byte) *Result {
		t.Helper()
		res, err := h.engine.Dispatch(ctx, Call{Sender: sender, Args: Args(op, params...), Payment: payment})
		if err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		if res.Op != op {
			t.Fatalf("result op %s, want %s", res.Op, op)
		}
		return res
	}

	dispatch(testAlice, nil, OpOptIn)
	h.state.balances[testAlice] = 3_000_000
	if err := h.state.Transfer(testAlice, testApp, 3_000_000); err != nil {
		t.Fatalf("payment: %v", err)
	}
	res := dispatch(testAlice, &types.Payment{Sender: testAlice, Receiver: testApp, Amount: 3_000_000}, OpBuyEntries)
	if res.Purchase == nil || res.Purchase.Entries != 3 {
		t.Fatalf("unexpected purchase %+v", res.Purchase)
	}

	res = dispatch(testAdmin, nil, OpEndCycle)
	if res.Cycle.EndTime != h.now {
		t.Fatalf("admin end cycle did not close the window")
	}
	res = dispatch(testAdmin, nil, OpCommitDraw)
	if res.Cycle.DrawStatus != DrawStatusCommitted {
		t.Fatalf("commit not applied")
	}
	h.round += 12
	res = dispatch(testAdmin, nil, OpRevealDraw)
	if res.Draw == nil || res.Draw.Entries != 3 {
		t.Fatalf("unexpected draw %+v", res.Draw)
	}

	slots, err := EngineSettlement{Engine: h.engine}.Settle(ctx, res.Draw)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	res = dispatch(testAdmin, nil, OpRegisterWinners, EncodeUint(1), EncodeWinnerRecords(slots))
	if res.Registry == nil || res.Registry.Len() != 26 {
		t.Fatalf("unexpected registry")
	}
	// Alice holds every entry, so she owns every slot.
	res = dispatch(testAlice, nil, OpClaimPrize, EncodeUint(1), EncodeUint(0))
	if res.Slot == nil || res.Slot.Amount != 1_200_000 {
		t.Fatalf("unexpected claim %+v", res.Slot)
	}
}

func TestDispatchAdminSetters(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	wallet := newTestAddress(0x77)
	calls := []struct {
		op     Op
		params [][]byte
		check  func(c *CycleState) bool
	}{
		{OpSetCycleDuration, [][]byte{EncodeUint(3_600)}, func(c *CycleState) bool { return c.Duration == 3_600 }},
		{OpResetCycle, nil, func(c *CycleState) bool { return c.EndTime == h.now+3_600 }},
		{OpSetEngineeringWallet, [][]byte{wallet[:]}, func(c *CycleState) bool { return c.EngineeringWallet == wallet }},
		{OpSetTokenWallet, [][]byte{wallet[:]}, func(c *CycleState) bool { return c.TokenDistWallet == wallet }},
		{OpSetTestMode, [][]byte{{1}}, func(c *CycleState) bool { return c.TestMode }},
		{OpSetRewardRate, [][]byte{{0x03, 0xe8}}, func(c *CycleState) bool { return c.RewardRate == 1_000 }},
		{OpPause, nil, func(c *CycleState) bool { return c.Paused }},
		{OpUnpause, nil, func(c *CycleState) bool { return !c.Paused }},
	}
	for _, call := range calls {
		res, err := h.engine.Dispatch(ctx, Call{Sender: testAdmin, Args: Args(call.op, call.params...)})
		if err != nil {
			t.Fatalf("%s: %v", call.op, err)
		}
		if !call.check(res.Cycle) || !call.check(h.state.cycle) {
			t.Fatalf("%s not applied", call.op)
		}
	}

	rejections := []struct {
		op     Op
		params [][]byte
	}{
		{OpSetCycleDuration, [][]byte{EncodeUint(MinCycleDuration - 1)}},
		{OpSetCycleDuration, [][]byte{EncodeUint(MaxCycleDuration + 1)}},
		{OpSetTestMode, [][]byte{{2}}},
		{OpSetRewardRate, [][]byte{EncodeUint(0)}},
		{OpSetRewardRate, [][]byte{EncodeUint(MaxRewardRate + 1)}},
		{OpSetEngineeringWallet, [][]byte{make([]byte, 32)}},
	}
	for _, call := range rejections {
		if _, err := h.engine.Dispatch(ctx, Call{Sender: testAdmin, Args: Args(call.op, call.params...)}); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("%s: expected ErrInvalidParameter, got %v", call.op, err)
		}
	}

	if _, err := h.engine.Dispatch(ctx, Call{Sender: testAlice, Args: Args(OpPause)}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDecodeUint(t *testing.T) {
	cases := []struct {
		arg  []byte
		want uint64
		ok   bool
	}{
		{[]byte{2}, 2, true},
		{[]byte{0x01, 0x00}, 256, true},
		{EncodeUint(1 << 40), 1 << 40, true},
		{nil, 0, false},
		{make([]byte, 9), 0, false},
	}
	for _, tc := range cases {
		got, err := DecodeUint(tc.arg)
		if tc.ok != (err == nil) {
			t.Fatalf("DecodeUint(%x): unexpected error %v", tc.arg, err)
		}
		if got != tc.want {
			t.Fatalf("DecodeUint(%x) = %d, want %d", tc.arg, got, tc.want)
		}
	}
}
