package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"lottochain/config"
	"lottochain/core"
	"lottochain/core/beacon"
	"lottochain/core/genesis"
	"lottochain/core/selection"
	"lottochain/crypto"
	"lottochain/native/lottery"
)

func lotteryParams(cfg config.Lottery) lottery.Params {
	return lottery.Params{
		CommitOffset:   cfg.CommitOffset,
		MinRevealDelay: cfg.MinRevealDelay,
		Winners: selection.Counts{
			Tier1: cfg.Tier1Winners,
			Tier2: cfg.Tier2Winners,
			Tier3: cfg.Tier3Winners,
		},
		Shares: lottery.Shares{
			Tier1:        cfg.Shares.Tier1BPS,
			Tier2:        cfg.Shares.Tier2BPS,
			Tier3:        cfg.Shares.Tier3BPS,
			Engineering:  cfg.Shares.EngineeringBPS,
			Rollover:     cfg.Shares.RolloverBPS,
			TokenHolders: cfg.Shares.TokenHoldersBPS,
		},
	}
}

// resolveGenesis loads the genesis file when one is configured. Otherwise the
// spec is derived from the lottery section with admin as administrator and
// no balances.
func resolveGenesis(path string, cfg *config.Config, admin crypto.Address, now time.Time) (*genesis.Spec, error) {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return genesis.LoadSpec(trimmed)
	}
	spec := &genesis.Spec{
		GenesisTime:          now.UTC().Format(time.RFC3339),
		Admin:                admin.String(),
		RewardAssetID:        cfg.Lottery.RewardAssetID,
		CycleDurationSeconds: cfg.Lottery.CycleDuration,
		RewardRate:           cfg.Lottery.RewardRate,
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// randomness builds the reveal seed source. The returned oracle is served on
// /v1/beacon and is nil unless the node runs the local beacon.
func randomness(cfg *config.Config, node *core.Node) (lottery.RandomnessSource, lottery.Oracle, error) {
	switch cfg.Beacon.Mode {
	case "local":
		secret, err := cfg.BeaconSecret()
		if err != nil {
			return nil, nil, err
		}
		local, err := beacon.NewLocal(secret, node.Round)
		if err != nil {
			return nil, nil, err
		}
		return lottery.NewBeaconSource(local, lottery.DefaultBeaconHeaderLength), local, nil
	case "http":
		client, err := beacon.NewClient(beacon.Config{
			BaseURL: cfg.Beacon.URL,
			APIKey:  cfg.Beacon.APIKey,
			Timeout: cfg.BeaconTimeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		return lottery.NewBeaconSource(client, lottery.DefaultBeaconHeaderLength), nil, nil
	case "hash":
		return lottery.HashSource{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("beacon: unknown mode %q", cfg.Beacon.Mode)
	}
}

// resolveAutoDraw applies the precedence flag > environment > config.
func resolveAutoDraw(configured, flagSet, flagValue bool, lookup func(string) (string, bool)) (bool, error) {
	if flagSet {
		return flagValue, nil
	}
	if raw, ok := lookup(autoDrawEnv); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return false, fmt.Errorf("invalid %s value %q", autoDrawEnv, raw)
		}
		return v, nil
	}
	return configured, nil
}
