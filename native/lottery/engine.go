package lottery

import (
	"errors"
	"fmt"
	"time"

	"lottochain/core/events"
	"lottochain/core/types"
	"lottochain/crypto"
)

var (
	errNilState = errors.New("lottery engine: state not configured")
	errNilApp   = errors.New("lottery engine: application address not configured")
)

type engineState interface {
	LotteryCycle() (*CycleState, bool, error)
	PutLotteryCycle(*CycleState) error
	LotteryEntrant(addr crypto.Address) (*EntrantState, bool, error)
	PutLotteryEntrant(addr crypto.Address, entrant *EntrantState) error
	AppendEntrySegment(cycleID uint64, seg EntrySegment) error
	EntrySegments(cycleID uint64) ([]EntrySegment, error)
	LotteryRegistry(cycleID uint64) (*WinnerRegistry, bool, error)
	PutLotteryRegistry(reg *WinnerRegistry) error
	PutClaimByte(cycleID uint64, offset int, value byte) error
	LotteryDraw(cycleID uint64) (*Draw, bool, error)
	PutLotteryDraw(draw *Draw) error
	Balance(addr crypto.Address) (uint64, error)
	Transfer(from, to crypto.Address, amount uint64) error
	MintReward(assetID uint64, to crypto.Address, amount uint64) error
}

type lotteryEvent struct {
	evt *types.Event
}

func (e lotteryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e lotteryEvent) Event() *types.Event { return e.evt }

// Engine implements the lottery state machine on top of an injected state
// backend. Every operation checks all of its preconditions before the first
// write; callers that need all-or-nothing semantics across transfers should
// additionally checkpoint the backend.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	params     Params
	appAddress crypto.Address
	randomness RandomnessSource
	nowFn      func() int64
	roundFn    func() uint64
}

// NewEngine creates an engine with the default parameters and a no-op
// emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		params:  DefaultParams(),
		nowFn:   func() int64 { return time.Now().Unix() },
		roundFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetApplicationAddress configures the account that escrows the pot.
func (e *Engine) SetApplicationAddress(addr crypto.Address) { e.appAddress = addr }

// ApplicationAddress returns the pot account.
func (e *Engine) ApplicationAddress() crypto.Address { return e.appAddress }

// SetParams replaces the engine parameters after validating them.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.params = p
	return nil
}

// Params returns the active parameters.
func (e *Engine) Params() Params { return e.params }

// SetRandomness configures the seed source consumed by reveal.
func (e *Engine) SetRandomness(src RandomnessSource) { e.randomness = src }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetRoundFunc configures the source of the current round number.
func (e *Engine) SetRoundFunc(round func() uint64) {
	if round == nil {
		e.roundFn = func() uint64 { return 0 }
		return
	}
	e.roundFn = round
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(lotteryEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) round() uint64 {
	if e == nil || e.roundFn == nil {
		return 0
	}
	return e.roundFn()
}

func (e *Engine) loadCycle() (*CycleState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.appAddress.IsZero() {
		return nil, errNilApp
	}
	cycle, ok, err := e.state.LotteryCycle()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cycle, nil
}

func (e *Engine) requireAppBalance(amount uint64) error {
	balance, err := e.state.Balance(e.appAddress)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: application holds %d, needs %d", ErrInsufficientFunds, balance, amount)
	}
	return nil
}

func requireAdmin(cycle *CycleState, sender crypto.Address) error {
	if cycle.Creator != sender {
		return ErrUnauthorized
	}
	return nil
}

// Initialize creates the cycle ledger. The creator becomes the administrator
// and the default recipient of the engineering and token-holder shares.
func (e *Engine) Initialize(creator crypto.Address, rewardAssetID uint64) (*CycleState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if creator.IsZero() {
		return nil, fmt.Errorf("%w: creator address required", ErrInvalidParameter)
	}
	if rewardAssetID == 0 {
		return nil, fmt.Errorf("%w: reward asset id must be positive", ErrInvalidParameter)
	}
	if _, exists, err := e.state.LotteryCycle(); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadyInitialized
	}
	now := e.now()
	cycle := &CycleState{
		Creator:           creator,
		CycleID:           1,
		StartTime:         now,
		EndTime:           now + DefaultCycleDuration,
		Duration:          DefaultCycleDuration,
		EntryPrice:        DefaultEntryPrice,
		DrawStatus:        DrawStatusNone,
		EngineeringWallet: creator,
		TokenDistWallet:   creator,
		RewardAssetID:     rewardAssetID,
		RewardRate:        DefaultRewardRate,
	}
	if err := e.state.PutLotteryCycle(cycle); err != nil {
		return nil, err
	}
	return cycle.Clone(), nil
}

// Cycle returns a copy of the cycle ledger.
func (e *Engine) Cycle() (*CycleState, error) {
	return e.loadCycle()
}

// Entrant returns the ledger of addr.
func (e *Engine) Entrant(addr crypto.Address) (*EntrantState, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.LotteryEntrant(addr)
}

// Registry returns the winner registry of cycleID.
func (e *Engine) Registry(cycleID uint64) (*WinnerRegistry, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.LotteryRegistry(cycleID)
}

// Draw returns the reveal outcome of cycleID.
func (e *Engine) Draw(cycleID uint64) (*Draw, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.LotteryDraw(cycleID)
}

// OwnerOf resolves the entrant holding entry index of cycleID.
func (e *Engine) OwnerOf(cycleID, index uint64) (crypto.Address, error) {
	if e == nil || e.state == nil {
		return crypto.Address{}, errNilState
	}
	segments, err := e.state.EntrySegments(cycleID)
	if err != nil {
		return crypto.Address{}, err
	}
	return OwnerFromSegments(segments, index)
}

// OwnerFromSegments finds the owner of index in ascending segments.
func OwnerFromSegments(segments []EntrySegment, index uint64) (crypto.Address, error) {
	lo, hi := 0, len(segments)
	for lo < hi {
		mid := (lo + hi) / 2
		seg := segments[mid]
		switch {
		case index < seg.Start:
			hi = mid
		case seg.Contains(index):
			return seg.Owner, nil
		default:
			lo = mid + 1
		}
	}
	return crypto.Address{}, fmt.Errorf("%w: entry %d has no owner", ErrInvalidIndex, index)
}
