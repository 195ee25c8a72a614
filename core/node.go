package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"lottochain/core/events"
	"lottochain/core/genesis"
	lottostate "lottochain/core/state"
	"lottochain/crypto"
	"lottochain/history"
	"lottochain/native/lottery"
	"lottochain/observability/logging"
	"lottochain/observability/metrics"
	"lottochain/storage"
	"lottochain/storage/trie"
)

var (
	headRootKey  = []byte("head/root")
	headRoundKey = []byte("head/round")
)

// DefaultRoundInterval is the round duration used when Options leaves it
// unset.
const DefaultRoundInterval = 3 * time.Second

// Options configure a Node.
type Options struct {
	AppID         uint64
	Params        lottery.Params
	RoundInterval time.Duration
	Clock         clockwork.Clock
	// Genesis is executed when the database holds no state yet.
	Genesis    *genesis.Spec
	Randomness lottery.RandomnessSource
	History    *history.Store
	Emitter    events.Emitter
	Logger     *slog.Logger
}

// Node is the central controller. It owns the state trie, serializes every
// transaction, advances the round counter and records confirmed transactions.
type Node struct {
	db       storage.Database
	trie     *trie.Trie
	stateMu  sync.Mutex
	clock    clockwork.Clock
	round    atomic.Uint64
	interval time.Duration

	appID      uint64
	appAddress crypto.Address
	params     lottery.Params
	randomness lottery.RandomnessSource

	history *history.Store
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.LotteryMetrics
}

// NewNode opens the state stored in db, running genesis when it is empty.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database must not be nil")
	}
	if opts.AppID == 0 {
		return nil, errors.New("core: application id must be positive")
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	interval := opts.RoundInterval
	if interval <= 0 {
		interval = DefaultRoundInterval
	}
	var emitter events.Emitter = events.NoopEmitter{}
	if opts.Emitter != nil {
		emitter = opts.Emitter
	}
	appAddress := ApplicationAddress(opts.AppID)
	logger := logging.Component(opts.Logger, "node")

	root, err := db.Get(headRootKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if opts.Genesis == nil {
			return nil, errors.New("core: empty database and no genesis spec")
		}
		genesisRoot, buildErr := genesis.Build(opts.Genesis, db, appAddress, opts.Params)
		if buildErr != nil {
			return nil, fmt.Errorf("core: genesis: %w", buildErr)
		}
		root = genesisRoot.Bytes()
		if err := db.Put(headRootKey, root); err != nil {
			return nil, err
		}
		logger.Info("genesis state committed", slog.String("root", genesisRoot.Hex()))
	case err != nil:
		return nil, err
	}

	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, err
	}
	if err := lottostate.EnsureStateVersion(stateTrie); err != nil {
		return nil, err
	}

	n := &Node{
		db:         db,
		trie:       stateTrie,
		clock:      clock,
		interval:   interval,
		appID:      opts.AppID,
		appAddress: appAddress,
		params:     opts.Params,
		randomness: opts.Randomness,
		history:    opts.History,
		emitter:    emitter,
		logger:     logger,
		metrics:    metrics.Lottery(),
	}
	if raw, err := db.Get(headRoundKey); err == nil && len(raw) == 8 {
		n.round.Store(binary.BigEndian.Uint64(raw))
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	// Recorded history must never sit ahead of the round clock.
	if n.history != nil {
		latest, err := n.history.LatestRound(context.Background())
		if err != nil {
			return nil, fmt.Errorf("core: history round: %w", err)
		}
		if latest > n.round.Load() {
			logger.Warn("round clock behind recorded history",
				slog.Uint64("persisted", n.round.Load()),
				slog.Uint64("history", latest))
			n.round.Store(latest)
		}
	}
	n.metrics.SetRound(n.round.Load())
	return n, nil
}

// SetRandomness configures the seed source used by reveal. The local beacon
// needs the node's round counter, so it is wired after construction.
func (n *Node) SetRandomness(src lottery.RandomnessSource) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.randomness = src
}

func (n *Node) newLotteryEngine(manager *lottostate.Manager, emitter events.Emitter) (*lottery.Engine, error) {
	engine := lottery.NewEngine()
	engine.SetState(manager)
	engine.SetApplicationAddress(n.appAddress)
	if err := engine.SetParams(n.params); err != nil {
		return nil, err
	}
	engine.SetRandomness(n.randomness)
	engine.SetNowFunc(func() int64 { return n.clock.Now().Unix() })
	engine.SetRoundFunc(n.Round)
	engine.SetEmitter(emitter)
	return engine, nil
}

// Round returns the current round.
func (n *Node) Round() uint64 {
	return n.round.Load()
}

// AdvanceRounds moves the round counter forward by k and returns the new
// round.
func (n *Node) AdvanceRounds(k uint64) uint64 {
	round := n.round.Add(k)
	n.metrics.SetRound(round)
	if err := n.db.Put(headRoundKey, binary.BigEndian.AppendUint64(nil, round)); err != nil {
		n.logger.Warn("persist round failed", slog.Uint64("round", round), slog.Any("error", err))
	}
	return round
}

// Run advances one round per interval until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	ticker := n.clock.NewTicker(n.interval)
	defer ticker.Stop()
	n.logger.Info("round clock started", slog.Duration("interval", n.interval), slog.Uint64("round", n.Round()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			n.AdvanceRounds(1)
		}
	}
}

// Now returns the node clock's current time.
func (n *Node) Now() time.Time {
	return n.clock.Now()
}

// AppID returns the lottery application id.
func (n *Node) AppID() uint64 { return n.appID }

// ApplicationAddress returns the account escrowing the pot.
func (n *Node) ApplicationAddress() crypto.Address { return n.appAddress }

// StateRoot returns the last committed state root.
func (n *Node) StateRoot() common.Hash {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.trie.Root()
}

// History returns the transaction store, or nil when none is configured.
func (n *Node) History() *history.Store { return n.history }

// Close persists the round counter. The database is owned by the caller.
func (n *Node) Close() error {
	return n.db.Put(headRoundKey, binary.BigEndian.AppendUint64(nil, n.Round()))
}
