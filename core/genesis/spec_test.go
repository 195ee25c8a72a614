package genesis

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lottochain/core/state"
	"lottochain/crypto"
	"lottochain/native/lottery"
	"lottochain/storage"
	"lottochain/storage/trie"
)

func testAddr(fill byte) crypto.Address {
	return crypto.MustAddress(bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

func TestLoadSpecAndBuild(t *testing.T) {
	admin := testAddr(0x01)
	alice := testAddr(0x10)
	app := testAddr(0xAA)

	spec := Spec{
		GenesisTime:          "2024-01-01T00:00:00Z",
		Admin:                admin.String(),
		RewardAssetID:        42,
		CycleDurationSeconds: 3_600,
		RewardRate:           5,
		Alloc: map[string]string{
			alice.String(): "5000000",
			admin.Hex():    "1000",
		},
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	loaded, err := LoadSpec(path)
	if err != nil {
		t.Fatalf("load spec: %v", err)
	}
	if loaded.AdminAddress() != admin {
		t.Fatalf("unexpected admin %s", loaded.AdminAddress())
	}
	allocs := loaded.Allocations()
	if len(allocs) != 2 || allocs[0].Address != admin || allocs[1].Amount != 5_000_000 {
		t.Fatalf("unexpected allocations %+v", allocs)
	}

	db := storage.NewMemDB()
	defer db.Close()
	root, err := Build(loaded, db, app, lottery.DefaultParams())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	tr, err := trie.NewTrie(db, root.Bytes())
	if err != nil {
		t.Fatalf("open trie: %v", err)
	}
	manager := state.NewManager(tr)
	cycle, ok, err := manager.LotteryCycle()
	if err != nil || !ok {
		t.Fatalf("cycle missing: ok=%v err=%v", ok, err)
	}
	genesisUnix := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	if cycle.Creator != admin || cycle.CycleID != 1 || cycle.RewardAssetID != 42 {
		t.Fatalf("unexpected cycle %+v", cycle)
	}
	if cycle.Duration != 3_600 || cycle.StartTime != genesisUnix || cycle.EndTime != genesisUnix+3_600 {
		t.Fatalf("unexpected timing %+v", cycle)
	}
	if cycle.RewardRate != 5 || !cycle.AssetOptedIn {
		t.Fatalf("unexpected reward settings %+v", cycle)
	}
	balance, err := manager.Balance(alice)
	if err != nil || balance != 5_000_000 {
		t.Fatalf("unexpected alice balance %d err=%v", balance, err)
	}
	if err := state.EnsureStateVersion(tr); err != nil {
		t.Fatalf("state version: %v", err)
	}
}

func TestSpecValidation(t *testing.T) {
	admin := testAddr(0x01).String()
	cases := []struct {
		name string
		spec Spec
	}{
		{"missing time", Spec{Admin: admin, RewardAssetID: 1}},
		{"bad time", Spec{GenesisTime: "yesterday", Admin: admin, RewardAssetID: 1}},
		{"missing admin", Spec{GenesisTime: "2024-01-01T00:00:00Z", RewardAssetID: 1}},
		{"bad admin", Spec{GenesisTime: "2024-01-01T00:00:00Z", Admin: "lot1xyz", RewardAssetID: 1}},
		{"zero asset", Spec{GenesisTime: "2024-01-01T00:00:00Z", Admin: admin}},
		{"bad amount", Spec{GenesisTime: "2024-01-01T00:00:00Z", Admin: admin, RewardAssetID: 1, Alloc: map[string]string{admin: "-1"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := tc.spec
			if err := spec.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadSpecRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(`{"genesisTime":"2024-01-01T00:00:00Z","validators":[]}`), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	if _, err := LoadSpec(path); err == nil {
		t.Fatalf("expected unknown field error")
	}
}
