package config

// RPC tunes the HTTP API.
type RPC struct {
	// AuthTokenEnv names the environment variable holding the bearer token
	// required by /v1/beacon.
	AuthTokenEnv string  `toml:"AuthTokenEnv"`
	InvokeRate   float64 `toml:"InvokeRate"`
	InvokeBurst  int     `toml:"InvokeBurst"`
}

// Lottery holds the deployment constants of the lottery application.
type Lottery struct {
	AppID          uint64 `toml:"AppID"`
	RewardAssetID  uint64 `toml:"RewardAssetID"`
	CycleDuration  uint64 `toml:"CycleDurationSeconds"`
	RewardRate     uint64 `toml:"RewardRate"`
	CommitOffset   uint64 `toml:"CommitOffset"`
	MinRevealDelay uint64 `toml:"MinRevealDelay"`
	Tier1Winners   int    `toml:"Tier1Winners"`
	Tier2Winners   int    `toml:"Tier2Winners"`
	Tier3Winners   int    `toml:"Tier3Winners"`
	Shares         Shares `toml:"shares"`
	// AutoDraw runs the draw keeper, which commits, reveals, registers and
	// skips empty cycles with the administrator key.
	AutoDraw bool `toml:"AutoDraw"`
}

// Shares is the basis-point split of the pot at reveal.
type Shares struct {
	Tier1BPS        uint64 `toml:"Tier1BPS"`
	Tier2BPS        uint64 `toml:"Tier2BPS"`
	Tier3BPS        uint64 `toml:"Tier3BPS"`
	EngineeringBPS  uint64 `toml:"EngineeringBPS"`
	RolloverBPS     uint64 `toml:"RolloverBPS"`
	TokenHoldersBPS uint64 `toml:"TokenHoldersBPS"`
}

// Total returns the sum of all shares.
func (s Shares) Total() uint64 {
	return s.Tier1BPS + s.Tier2BPS + s.Tier3BPS + s.EngineeringBPS + s.RolloverBPS + s.TokenHoldersBPS
}

// Beacon selects the randomness source consumed at reveal.
type Beacon struct {
	// Mode is one of "local", "http" or "hash".
	Mode string `toml:"Mode"`
	// Secret seeds the local beacon. Hex encoded.
	Secret         string `toml:"Secret"`
	URL            string `toml:"URL"`
	APIKey         string `toml:"APIKey"`
	TimeoutSeconds int    `toml:"TimeoutSeconds"`
}

// History configures the transaction history store backing the indexer API.
type History struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Audit configures the verification tooling.
type Audit struct {
	IndexerURL        string  `toml:"IndexerURL"`
	Workers           int     `toml:"Workers"`
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	CachePath         string  `toml:"CachePath"`
	PageLimit         int     `toml:"PageLimit"`
}

// Telemetry configures logging, metrics and tracing.
type Telemetry struct {
	Environment  string  `toml:"Environment"`
	LogLevel     string  `toml:"LogLevel"`
	OTLPEndpoint string  `toml:"OTLPEndpoint"`
	OTLPHeaders  string  `toml:"OTLPHeaders"`
	Insecure     bool    `toml:"Insecure"`
	Metrics      bool    `toml:"Metrics"`
	Traces       bool    `toml:"Traces"`
	SampleRatio  float64 `toml:"SampleRatio"`
}
