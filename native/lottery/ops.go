package lottery

import (
	"context"
	"fmt"

	"lottochain/core/types"
	"lottochain/crypto"
)

// Op enumerates the operations an application call can select.
type Op uint8

const (
	OpOptIn Op = iota + 1
	OpBuyEntries
	OpCommitDraw
	OpRevealDraw
	OpRegisterWinners
	OpClaimPrize
	OpEndEmptyCycle
	OpOptInAsset
	OpEndCycle
	OpResetCycle
	OpSetCycleDuration
	OpSetEngineeringWallet
	OpSetTokenWallet
	OpSetTestMode
	OpSetRewardRate
	OpPause
	OpUnpause
)

var opSelectors = map[Op]string{
	OpOptIn:                "opt_in",
	OpBuyEntries:           "buy_entries",
	OpCommitDraw:           "execute_draw_commit",
	OpRevealDraw:           "execute_draw_reveal",
	OpRegisterWinners:      "register_winners",
	OpClaimPrize:           "claim_prize",
	OpEndEmptyCycle:        "end_empty_cycle",
	OpOptInAsset:           "admin_opt_in_asset",
	OpEndCycle:             "admin_end_cycle",
	OpResetCycle:           "admin_reset_cycle",
	OpSetCycleDuration:     "admin_set_cycle_duration",
	OpSetEngineeringWallet: "admin_set_eng_wallet",
	OpSetTokenWallet:       "admin_set_lott_wallet",
	OpSetTestMode:          "admin_set_test_mode",
	OpSetRewardRate:        "admin_set_reward_rate",
	OpPause:                "admin_pause",
	OpUnpause:              "admin_unpause",
}

var selectorOps = func() map[string]Op {
	out := make(map[string]Op, len(opSelectors))
	for op, sel := range opSelectors {
		out[sel] = op
	}
	return out
}()

// Selector returns the wire name of the operation.
func (o Op) Selector() string {
	return opSelectors[o]
}

func (o Op) String() string {
	if sel, ok := opSelectors[o]; ok {
		return sel
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Valid reports whether o is a known operation.
func (o Op) Valid() bool {
	_, ok := opSelectors[o]
	return ok
}

// ParseOp maps a selector argument to its operation.
func ParseOp(selector []byte) (Op, error) {
	op, ok := selectorOps[string(selector)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, selector)
	}
	return op, nil
}

// Call is a decoded application call.
type Call struct {
	Sender  crypto.Address
	Args    [][]byte
	Payment *types.Payment
}

// Result carries whatever the dispatched operation produced.
type Result struct {
	Op       Op
	Cycle    *CycleState
	Purchase *Purchase
	Draw     *Draw
	Registry *WinnerRegistry
	Slot     *WinnerSlot
}

// DecodeUint decodes an integer argument: big-endian, one to eight bytes.
func DecodeUint(arg []byte) (uint64, error) {
	if len(arg) == 0 || len(arg) > 8 {
		return 0, fmt.Errorf("%w: integer argument must be 1-8 bytes", ErrInvalidArguments)
	}
	var v uint64
	for _, b := range arg {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

func argAddress(arg []byte) (crypto.Address, error) {
	addr, err := crypto.BytesToAddress(arg)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return addr, nil
}

// EncodeUint encodes an integer argument.
func EncodeUint(v uint64) []byte {
	return itob(v)
}

// Args builds the argument vector for op.
func Args(op Op, params ...[]byte) [][]byte {
	out := make([][]byte, 0, len(params)+1)
	out = append(out, []byte(op.Selector()))
	return append(out, params...)
}

// Dispatch routes a call to its operation. Only buy_entries accepts a grouped
// payment; every other operation rejects one.
func (e *Engine) Dispatch(ctx context.Context, call Call) (*Result, error) {
	if len(call.Args) == 0 {
		return nil, fmt.Errorf("%w: missing selector", ErrUnknownOperation)
	}
	op, err := ParseOp(call.Args[0])
	if err != nil {
		return nil, err
	}
	params := call.Args[1:]
	want := 0
	switch op {
	case OpRegisterWinners, OpClaimPrize:
		want = 2
	case OpSetCycleDuration, OpSetEngineeringWallet, OpSetTokenWallet, OpSetTestMode, OpSetRewardRate:
		want = 1
	}
	if len(params) != want {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidArguments, op, want, len(params))
	}
	if op != OpBuyEntries && call.Payment != nil {
		return nil, fmt.Errorf("%w: %s does not accept a payment", ErrInvalidPayment, op)
	}

	res := &Result{Op: op}
	sender := call.Sender
	switch op {
	case OpOptIn:
		err = e.OptIn(sender)
	case OpBuyEntries:
		res.Purchase, err = e.Buy(sender, call.Payment)
	case OpCommitDraw:
		res.Cycle, err = e.Commit(sender)
	case OpRevealDraw:
		res.Draw, err = e.Reveal(ctx, sender)
	case OpRegisterWinners:
		var cycleID uint64
		if cycleID, err = DecodeUint(params[0]); err != nil {
			return nil, err
		}
		res.Registry, err = e.RegisterWinners(sender, cycleID, params[1])
	case OpClaimPrize:
		var cycleID, index uint64
		if cycleID, err = DecodeUint(params[0]); err != nil {
			return nil, err
		}
		if index, err = DecodeUint(params[1]); err != nil {
			return nil, err
		}
		var slot WinnerSlot
		if slot, err = e.Claim(sender, cycleID, index); err == nil {
			res.Slot = &slot
		}
	case OpEndEmptyCycle:
		res.Cycle, err = e.EndEmptyCycle(sender)
	case OpOptInAsset:
		res.Cycle, err = e.OptInRewardAsset(sender)
	case OpEndCycle:
		res.Cycle, err = e.EndCycleNow(sender)
	case OpResetCycle:
		res.Cycle, err = e.ResetCycleTiming(sender)
	case OpSetCycleDuration:
		var seconds uint64
		if seconds, err = DecodeUint(params[0]); err != nil {
			return nil, err
		}
		res.Cycle, err = e.SetCycleDuration(sender, seconds)
	case OpSetEngineeringWallet, OpSetTokenWallet:
		var wallet crypto.Address
		if wallet, err = argAddress(params[0]); err != nil {
			return nil, err
		}
		if op == OpSetEngineeringWallet {
			res.Cycle, err = e.SetEngineeringWallet(sender, wallet)
		} else {
			res.Cycle, err = e.SetTokenDistWallet(sender, wallet)
		}
	case OpSetTestMode:
		var mode uint64
		if mode, err = DecodeUint(params[0]); err != nil {
			return nil, err
		}
		res.Cycle, err = e.SetTestMode(sender, mode)
	case OpSetRewardRate:
		var rate uint64
		if rate, err = DecodeUint(params[0]); err != nil {
			return nil, err
		}
		res.Cycle, err = e.SetRewardRate(sender, rate)
	case OpPause:
		res.Cycle, err = e.SetPaused(sender, true)
	case OpUnpause:
		res.Cycle, err = e.SetPaused(sender, false)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
