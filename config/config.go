package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"lottochain/crypto"
)

type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	DataDir              string `toml:"DataDir"`
	GenesisFile          string `toml:"GenesisFile"`
	AdminKeystorePath    string `toml:"AdminKeystorePath"`
	AdminKeystorePassEnv string `toml:"AdminKeystorePassEnv"`
	RoundMillis          int64  `toml:"RoundMillis"`

	RPC       RPC       `toml:"rpc"`
	Lottery   Lottery   `toml:"lottery"`
	Beacon    Beacon    `toml:"beacon"`
	History   History   `toml:"history"`
	Audit     Audit     `toml:"audit"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Option customises how configuration files are loaded.
type Option func(*loadOptions)

type loadOptions struct {
	passphrase string
}

// WithKeystorePassphrase sets the passphrase used when the admin keystore has
// to be created.
func WithKeystorePassphrase(passphrase string) Option {
	return func(o *loadOptions) { o.passphrase = passphrase }
}

// Load loads the configuration from the given path. A missing file is created
// with defaults and a fresh administrator keystore.
func Load(path string, opts ...Option) (*Config, error) {
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, o)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	if err := ensureKeystore(path, cfg, o); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration of a single-node local deployment.
func Default() *Config {
	return &Config{
		RPCAddress:  ":8080",
		DataDir:     "./lotto-data",
		RoundMillis: 3_000,
		RPC:         RPC{InvokeRate: 5, InvokeBurst: 10},
		Lottery: Lottery{
			AppID:          1,
			RewardAssetID:  1,
			CycleDuration:  86_400,
			RewardRate:     1,
			CommitOffset:   8,
			MinRevealDelay: 12,
			Tier1Winners:   1,
			Tier2Winners:   5,
			Tier3Winners:   20,
			Shares: Shares{
				Tier1BPS:        4_000,
				Tier2BPS:        2_000,
				Tier3BPS:        1_500,
				EngineeringBPS:  500,
				RolloverBPS:     500,
				TokenHoldersBPS: 1_500,
			},
		},
		Beacon: Beacon{Mode: "local", TimeoutSeconds: 10},
		History: History{
			Driver: "sqlite",
			DSN:    "history.db",
		},
		Audit: Audit{
			IndexerURL:        "http://127.0.0.1:8080",
			Workers:           4,
			RequestsPerSecond: 10,
			PageLimit:         1_000,
		},
		Telemetry: Telemetry{
			Environment: "local",
			LogLevel:    "info",
			SampleRatio: 1,
		},
	}
}

func ensureKeystore(configPath string, cfg *Config, o loadOptions) error {
	keystorePath := cfg.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, o.passphrase); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.AdminKeystorePath != keystorePath {
		cfg.AdminKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, o loadOptions) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, o.passphrase); err != nil {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.AdminKeystorePath = keystorePath
	cfg.Beacon.Secret = hex.EncodeToString(secret)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}

// AdminPassphrase returns the keystore passphrase from the configured
// environment variable, or the empty string.
func (c *Config) AdminPassphrase() string {
	name := strings.TrimSpace(c.AdminKeystorePassEnv)
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// BeaconSecret decodes the local beacon secret.
func (c *Config) BeaconSecret() ([]byte, error) {
	raw := strings.TrimSpace(c.Beacon.Secret)
	if raw == "" {
		return nil, fmt.Errorf("beacon: Secret required in local mode")
	}
	secret, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("beacon: decode Secret: %w", err)
	}
	return secret, nil
}

// RPCAuthToken returns the beacon route token from the configured environment
// variable, or the empty string.
func (c *Config) RPCAuthToken() string {
	name := strings.TrimSpace(c.RPC.AuthTokenEnv)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

// ResolvePath joins a relative path onto DataDir.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// HistoryDSN returns the history DSN with relative sqlite files placed under
// DataDir.
func (c *Config) HistoryDSN() string {
	if c.History.Driver != "sqlite" || strings.HasPrefix(c.History.DSN, "file:") {
		return c.History.DSN
	}
	return c.ResolvePath(c.History.DSN)
}
