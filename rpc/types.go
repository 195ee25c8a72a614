package rpc

import (
	"encoding/hex"

	"lottochain/core"
	"lottochain/core/types"
	"lottochain/native/lottery"
)

// ErrorBody is the envelope of every failed request.
type ErrorBody struct {
	Error *RPCError `json:"error"`
}

// RPCError describes a failure. Data carries the rejection reason for
// invocations refused by the node.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CycleResult is the JSON view of the cycle ledger.
type CycleResult struct {
	Creator           string `json:"creator"`
	CycleID           uint64 `json:"cycleId"`
	StartTime         int64  `json:"startTime"`
	EndTime           int64  `json:"endTime"`
	Duration          uint64 `json:"duration"`
	Pot               uint64 `json:"pot"`
	EntryPrice        uint64 `json:"entryPrice"`
	RolloverPool      uint64 `json:"rolloverPool"`
	TotalEntries      uint64 `json:"totalEntries"`
	Paused            bool   `json:"paused"`
	TestMode          bool   `json:"testMode"`
	DrawStatus        string `json:"drawStatus"`
	CommitRound       uint64 `json:"commitRound"`
	CommitmentRound   uint64 `json:"commitmentRound"`
	RevealedCycle     uint64 `json:"revealedCycle"`
	UnclaimedPrizes   uint64 `json:"unclaimedPrizes"`
	EngineeringWallet string `json:"engineeringWallet"`
	TokenDistWallet   string `json:"tokenDistWallet"`
	RewardAssetID     uint64 `json:"rewardAssetId"`
	RewardRate        uint64 `json:"rewardRate"`
	AssetOptedIn      bool   `json:"assetOptedIn"`
	Round             uint64 `json:"round"`
}

func cycleResult(c *lottery.CycleState, round uint64) CycleResult {
	return CycleResult{
		Creator:           c.Creator.String(),
		CycleID:           c.CycleID,
		StartTime:         c.StartTime,
		EndTime:           c.EndTime,
		Duration:          c.Duration,
		Pot:               c.Pot,
		EntryPrice:        c.EntryPrice,
		RolloverPool:      c.RolloverPool,
		TotalEntries:      c.TotalEntries,
		Paused:            c.Paused,
		TestMode:          c.TestMode,
		DrawStatus:        c.DrawStatus.String(),
		CommitRound:       c.CommitRound,
		CommitmentRound:   c.CommitmentRound,
		RevealedCycle:     c.RevealedCycle,
		UnclaimedPrizes:   c.UnclaimedPrizes,
		EngineeringWallet: c.EngineeringWallet.String(),
		TokenDistWallet:   c.TokenDistWallet.String(),
		RewardAssetID:     c.RewardAssetID,
		RewardRate:        c.RewardRate,
		AssetOptedIn:      c.AssetOptedIn,
		Round:             round,
	}
}

// EntrantResult combines the entrant ledger with the account balances.
type EntrantResult struct {
	Address        string `json:"address"`
	EntriesCurrent uint64 `json:"entriesCurrent"`
	EntryStartNum  uint64 `json:"entryStartNum"`
	TotalLifetime  uint64 `json:"totalLifetime"`
	LastCycle      uint64 `json:"lastCycle"`
	Balance        uint64 `json:"balance"`
	RewardBalance  uint64 `json:"rewardBalance"`
	Nonce          uint64 `json:"nonce"`
}

func entrantResult(e *lottery.EntrantState, acct *core.Account) EntrantResult {
	return EntrantResult{
		Address:        acct.Address.String(),
		EntriesCurrent: e.EntriesCurrent,
		EntryStartNum:  e.EntryStartNum,
		TotalLifetime:  e.TotalLifetime,
		LastCycle:      e.LastCycle,
		Balance:        acct.Balance,
		RewardBalance:  acct.RewardBalance,
		Nonce:          acct.Nonce,
	}
}

// SlotResult is one registry slot.
type SlotResult struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Tier    uint8  `json:"tier"`
	Amount  uint64 `json:"amount"`
	Claimed bool   `json:"claimed"`
}

// RegistryResult lists the winners of a cycle.
type RegistryResult struct {
	CycleID uint64       `json:"cycleId"`
	Claimed int          `json:"claimed"`
	Slots   []SlotResult `json:"slots"`
}

func registryResult(reg *lottery.WinnerRegistry) RegistryResult {
	slots := reg.Slots()
	out := RegistryResult{CycleID: reg.CycleID, Slots: make([]SlotResult, len(slots))}
	for i, slot := range slots {
		claimed := reg.IsClaimed(i)
		if claimed {
			out.Claimed++
		}
		out.Slots[i] = SlotResult{
			Index:   i,
			Address: slot.Address.String(),
			Tier:    uint8(slot.Tier),
			Amount:  slot.Amount,
			Claimed: claimed,
		}
	}
	return out
}

// InvokeResult acknowledges a committed invocation.
type InvokeResult struct {
	TxID           string   `json:"txId"`
	ConfirmedRound uint64   `json:"confirmedRound"`
	RoundTime      int64    `json:"roundTime"`
	Logs           []string `json:"logs,omitempty"`
}

func invokeResult(r *types.Receipt) InvokeResult {
	out := InvokeResult{TxID: r.TxID, ConfirmedRound: r.Round, RoundTime: r.Timestamp}
	for _, log := range r.Logs {
		out.Logs = append(out.Logs, hex.EncodeToString(log))
	}
	return out
}
