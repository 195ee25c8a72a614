package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinCycleDurationSeconds = uint64(300)
	MaxCycleDurationSeconds = uint64(604_800)
	MaxRewardRate           = uint64(1_000)
	BasisPointsTotal        = uint64(10_000)
)

// Validate checks every section for values the node cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if c.RoundMillis <= 0 {
		return fmt.Errorf("config: RoundMillis must be positive")
	}
	if c.RPC.InvokeRate < 0 || c.RPC.InvokeBurst < 0 {
		return fmt.Errorf("rpc: InvokeRate and InvokeBurst must not be negative")
	}
	l := c.Lottery
	if l.AppID == 0 {
		return fmt.Errorf("lottery: AppID must be positive")
	}
	if l.RewardAssetID == 0 {
		return fmt.Errorf("lottery: RewardAssetID must be positive")
	}
	if l.CycleDuration < MinCycleDurationSeconds || l.CycleDuration > MaxCycleDurationSeconds {
		return fmt.Errorf("lottery: CycleDurationSeconds %d outside [%d, %d]", l.CycleDuration, MinCycleDurationSeconds, MaxCycleDurationSeconds)
	}
	if l.RewardRate == 0 || l.RewardRate > MaxRewardRate {
		return fmt.Errorf("lottery: RewardRate %d outside [1, %d]", l.RewardRate, MaxRewardRate)
	}
	if l.CommitOffset == 0 {
		return fmt.Errorf("lottery: CommitOffset must be positive")
	}
	if l.MinRevealDelay == 0 {
		return fmt.Errorf("lottery: MinRevealDelay must be positive")
	}
	if l.Tier1Winners < 1 || l.Tier2Winners < 1 || l.Tier3Winners < 1 {
		return fmt.Errorf("lottery: every tier needs at least one winner")
	}
	if total := l.Shares.Total(); total != BasisPointsTotal {
		return fmt.Errorf("lottery: shares sum to %d bps, want %d", total, BasisPointsTotal)
	}
	switch c.Beacon.Mode {
	case "local", "hash":
	case "http":
		if strings.TrimSpace(c.Beacon.URL) == "" {
			return fmt.Errorf("beacon: URL required in http mode")
		}
	default:
		return fmt.Errorf("beacon: unknown mode %q", c.Beacon.Mode)
	}
	switch c.History.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("history: unsupported driver %q", c.History.Driver)
	}
	if strings.TrimSpace(c.History.DSN) == "" {
		return fmt.Errorf("history: DSN required")
	}
	if c.Audit.Workers < 1 {
		return fmt.Errorf("audit: Workers must be at least 1")
	}
	if c.Audit.RequestsPerSecond < 0 {
		return fmt.Errorf("audit: RequestsPerSecond must not be negative")
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: SampleRatio %v outside [0, 1]", r)
	}
	return nil
}

// RoundInterval returns the configured round duration.
func (c *Config) RoundInterval() time.Duration {
	return time.Duration(c.RoundMillis) * time.Millisecond
}

// BeaconTimeout returns the HTTP beacon timeout, defaulting to ten seconds.
func (c *Config) BeaconTimeout() time.Duration {
	if c.Beacon.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Beacon.TimeoutSeconds) * time.Second
}
