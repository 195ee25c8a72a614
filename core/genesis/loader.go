package genesis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lottochain/core/state"
	"lottochain/crypto"
	"lottochain/native/lottery"
	"lottochain/storage"
	"lottochain/storage/trie"
)

// Build executes the genesis spec against an empty trie and commits it at
// round zero. app is the account escrowing the pot.
func Build(spec *Spec, db storage.Database, app crypto.Address, params lottery.Params) (common.Hash, error) {
	if spec == nil {
		return common.Hash{}, fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return common.Hash{}, fmt.Errorf("database must not be nil")
	}
	if spec.GenesisTimestamp().IsZero() {
		if err := spec.Validate(); err != nil {
			return common.Hash{}, err
		}
	}

	stateTrie, err := trie.NewTrie(db, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("init state trie: %w", err)
	}
	manager := state.NewManager(stateTrie)

	for _, alloc := range spec.Allocations() {
		if err := manager.Credit(alloc.Address, alloc.Amount); err != nil {
			return common.Hash{}, fmt.Errorf("alloc %s: %w", alloc.Address, err)
		}
	}

	engine := lottery.NewEngine()
	engine.SetState(manager)
	engine.SetApplicationAddress(app)
	if err := engine.SetParams(params); err != nil {
		return common.Hash{}, err
	}
	ts := spec.GenesisTimestamp().Unix()
	engine.SetNowFunc(func() int64 { return ts })

	admin := spec.AdminAddress()
	if _, err := engine.Initialize(admin, spec.RewardAssetID); err != nil {
		return common.Hash{}, fmt.Errorf("initialize lottery: %w", err)
	}
	if d := spec.CycleDurationSeconds; d != 0 && d != lottery.DefaultCycleDuration {
		if _, err := engine.SetCycleDuration(admin, d); err != nil {
			return common.Hash{}, err
		}
		if _, err := engine.ResetCycleTiming(admin); err != nil {
			return common.Hash{}, err
		}
	}
	if r := spec.RewardRate; r != 0 && r != lottery.DefaultRewardRate {
		if _, err := engine.SetRewardRate(admin, r); err != nil {
			return common.Hash{}, err
		}
	}
	if _, err := engine.OptInRewardAsset(admin); err != nil {
		return common.Hash{}, err
	}
	if err := manager.SetStateVersion(state.StateVersion); err != nil {
		return common.Hash{}, err
	}

	root, err := stateTrie.Commit(0)
	if err != nil {
		return common.Hash{}, fmt.Errorf("commit genesis state: %w", err)
	}
	return root, nil
}
