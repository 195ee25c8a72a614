package core

import (
	"context"
	"errors"

	lottostate "lottochain/core/state"
	"lottochain/crypto"
	"lottochain/native/lottery"
)

// ErrNotFound is returned by queries for records that do not exist.
var ErrNotFound = errors.New("core: not found")

// Account summarises the balances of an address.
type Account struct {
	Address       crypto.Address `json:"address"`
	Balance       uint64         `json:"balance"`
	RewardBalance uint64         `json:"rewardBalance"`
	Nonce         uint64         `json:"nonce"`
}

// withEngine runs fn against the committed state while holding the state lock.
func (n *Node) withEngine(fn func(*lottery.Engine, *lottostate.Manager) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := lottostate.NewManager(n.trie)
	engine, err := n.newLotteryEngine(manager, nil)
	if err != nil {
		return err
	}
	return fn(engine, manager)
}

// Cycle returns the current cycle ledger.
func (n *Node) Cycle() (*lottery.CycleState, error) {
	var cycle *lottery.CycleState
	err := n.withEngine(func(engine *lottery.Engine, _ *lottostate.Manager) error {
		var err error
		cycle, err = engine.Cycle()
		return err
	})
	return cycle, err
}

// Entrant returns the ledger of addr.
func (n *Node) Entrant(addr crypto.Address) (*lottery.EntrantState, error) {
	var entrant *lottery.EntrantState
	err := n.withEngine(func(engine *lottery.Engine, _ *lottostate.Manager) error {
		record, ok, err := engine.Entrant(addr)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		entrant = record
		return nil
	})
	return entrant, err
}

// Registry returns the winner registry of cycleID.
func (n *Node) Registry(cycleID uint64) (*lottery.WinnerRegistry, error) {
	var reg *lottery.WinnerRegistry
	err := n.withEngine(func(engine *lottery.Engine, _ *lottostate.Manager) error {
		record, ok, err := engine.Registry(cycleID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		reg = record
		return nil
	})
	return reg, err
}

// Draw returns the reveal outcome of cycleID.
func (n *Node) Draw(cycleID uint64) (*lottery.Draw, error) {
	var draw *lottery.Draw
	err := n.withEngine(func(engine *lottery.Engine, _ *lottostate.Manager) error {
		record, ok, err := engine.Draw(cycleID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		draw = record
		return nil
	})
	return draw, err
}

// Account returns the balances and next nonce of addr.
func (n *Node) Account(addr crypto.Address) (*Account, error) {
	var out *Account
	err := n.withEngine(func(engine *lottery.Engine, manager *lottostate.Manager) error {
		balance, err := manager.Balance(addr)
		if err != nil {
			return err
		}
		nonce, err := manager.Nonce(addr)
		if err != nil {
			return err
		}
		acct := &Account{Address: addr, Balance: balance, Nonce: nonce}
		if cycle, err := engine.Cycle(); err == nil {
			if acct.RewardBalance, err = manager.RewardBalance(cycle.RewardAssetID, addr); err != nil {
				return err
			}
		}
		out = acct
		return nil
	})
	return out, err
}

// Settle plans the registry slots of a revealed cycle from the node's own
// purchase segments.
func (n *Node) Settle(ctx context.Context, cycleID uint64) ([]lottery.WinnerSlot, error) {
	var slots []lottery.WinnerSlot
	err := n.withEngine(func(engine *lottery.Engine, _ *lottostate.Manager) error {
		draw, ok, err := engine.Draw(cycleID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		slots, err = lottery.EngineSettlement{Engine: engine}.Settle(ctx, draw)
		return err
	})
	return slots, err
}
