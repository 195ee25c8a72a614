package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"lottochain/crypto"
)

// Spec describes the initial ledger of a deployment.
type Spec struct {
	GenesisTime          string            `json:"genesisTime"`
	Admin                string            `json:"admin"`
	RewardAssetID        uint64            `json:"rewardAssetId"`
	CycleDurationSeconds uint64            `json:"cycleDurationSeconds,omitempty"`
	RewardRate           uint64            `json:"rewardRate,omitempty"`
	Alloc                map[string]string `json:"alloc,omitempty"` // addr -> micro-units

	genesisTimestamp time.Time
	admin            crypto.Address
	alloc            []Allocation
}

// Allocation is a parsed balance credited at genesis.
type Allocation struct {
	Address crypto.Address
	Amount  uint64
}

// LoadSpec reads and validates a JSON genesis file.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// Validate parses every field. It must succeed before Build.
func (s *Spec) Validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	if strings.TrimSpace(s.Admin) == "" {
		return fmt.Errorf("admin must be provided")
	}
	admin, err := crypto.ParseAddress(s.Admin)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	s.admin = admin

	if s.RewardAssetID == 0 {
		return fmt.Errorf("rewardAssetId must be positive")
	}

	alloc := make([]Allocation, 0, len(s.Alloc))
	for addrStr, amountStr := range s.Alloc {
		addr, err := crypto.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addrStr, err)
		}
		amount, err := parseAmountString(amountStr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addrStr, err)
		}
		if amount == 0 {
			continue
		}
		alloc = append(alloc, Allocation{Address: addr, Amount: amount})
	}
	sort.Slice(alloc, func(i, j int) bool {
		return bytes.Compare(alloc[i].Address[:], alloc[j].Address[:]) < 0
	})
	s.alloc = alloc
	return nil
}

func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// AdminAddress returns the parsed administrator.
func (s *Spec) AdminAddress() crypto.Address { return s.admin }

// Allocations returns the parsed balances in address order.
func (s *Spec) Allocations() []Allocation {
	return append([]Allocation(nil), s.alloc...)
}

func parseAmountString(value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
