package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lottochain/core/selection"
	"lottochain/crypto"
	"lottochain/history"
	"lottochain/native/lottery"
)

const testAppID = 7

var testCounts = selection.Counts{Tier1: 1, Tier2: 5, Tier3: 20}

var (
	alice = crypto.MustAddress(bytes.Repeat([]byte{0x10}, crypto.AddressLength))
	bob   = crypto.MustAddress(bytes.Repeat([]byte{0x11}, crypto.AddressLength))
	carol = crypto.MustAddress(bytes.Repeat([]byte{0x12}, crypto.AddressLength))
	admin = crypto.MustAddress(bytes.Repeat([]byte{0x01}, crypto.AddressLength))
)

type buy struct {
	buyer crypto.Address
	count uint64
}

type fixture struct {
	txs []history.IndexerTransaction
}

func appCall(id string, sender crypto.Address, round uint64, args [][]byte, logs ...[]byte) history.IndexerTransaction {
	return history.IndexerTransaction{
		ID:              id,
		Sender:          sender.String(),
		ConfirmedRound:  round,
		RoundTime:       1_700_000_000 + int64(round)*4,
		TxType:          "appl",
		ApplicationCall: &history.ApplicationCall{ApplicationID: testAppID, ApplicationArgs: args},
		Logs:            logs,
	}
}

// addCycle appends the purchases, reveal and registration of an honestly
// settled cycle starting at round.
func (h *fixture) addCycle(t *testing.T, cycle, round uint64, seedByte byte, buys ...buy) {
	t.Helper()
	var entries uint64
	var segments lottery.Segments
	for i, b := range buys {
		log := lottery.PurchaseLog{Cycle: cycle, Start: entries, End: entries + b.count - 1}
		h.txs = append(h.txs, appCall(fmt.Sprintf("buy-%d-%d", cycle, i), b.buyer, round+uint64(i),
			[][]byte{[]byte(PurchaseMethod)}, log.Bytes()))
		segments = append(segments, lottery.EntrySegment{Start: entries, Count: b.count, Owner: b.buyer})
		entries += b.count
	}

	pot := entries * 1_000_000
	prizes := lottery.ComputePrizes(pot, lottery.DefaultShares())
	var seed [32]byte
	for i := range seed {
		seed[i] = seedByte + byte(i)
	}
	revealRound := round + 20
	reveal := lottery.DrawRevealedLog{
		Cycle:           cycle,
		Pot:             pot,
		Entries:         entries,
		CommitmentRound: round + 16,
		Tier1:           prizes.Tier1,
		Tier2:           prizes.Tier2,
		Tier3:           prizes.Tier3,
		Seed:            seed,
	}
	h.txs = append(h.txs, appCall(fmt.Sprintf("reveal-%d", cycle), admin, revealRound,
		[][]byte{[]byte(RevealMethod)}, reveal.Bytes()))

	draw := &lottery.Draw{CycleID: cycle, Pot: pot, Entries: entries, Seed: seed, Prizes: prizes}
	plan, err := lottery.PlanWinners(draw, testCounts, segments)
	require.NoError(t, err)
	records := lottery.EncodeWinnerRecords(lottery.PlannedSlots(plan))
	h.txs = append(h.txs, appCall(fmt.Sprintf("register-%d", cycle), admin, revealRound+2,
		[][]byte{[]byte(RegisterMethod), lottery.EncodeUint(cycle), records},
		lottery.WinnersRegisteredLog{Cycle: cycle}.Bytes()))
}

func (h *fixture) find(t *testing.T, id string) *history.IndexerTransaction {
	t.Helper()
	for i := range h.txs {
		if h.txs[i].ID == id {
			return &h.txs[i]
		}
	}
	t.Fatalf("transaction %s not in fixture", id)
	return nil
}

func (h *fixture) remove(id string) {
	out := h.txs[:0]
	for _, txn := range h.txs {
		if txn.ID != id {
			out = append(out, txn)
		}
	}
	h.txs = out
}

func newFixture(t *testing.T) *fixture {
	h := &fixture{}
	h.addCycle(t, 1, 10, 0x01, buy{alice, 2}, buy{bob, 5}, buy{carol, 3})
	h.addCycle(t, 2, 100, 0x40, buy{carol, 4}, buy{alice, 1})
	return h
}

// sliceSource filters an in-memory history like the indexer does.
type sliceSource struct {
	txs  []history.IndexerTransaction
	fail string
}

func (s *sliceSource) Transactions(_ context.Context, q TransactionQuery) ([]history.IndexerTransaction, error) {
	if s.fail != "" && q.Method == s.fail {
		return nil, errors.New("indexer unavailable")
	}
	var out []history.IndexerTransaction
	for _, txn := range s.txs {
		if q.AppID != 0 && (txn.ApplicationCall == nil || txn.ApplicationCall.ApplicationID != q.AppID) {
			continue
		}
		if q.Method != "" && txn.Method() != q.Method {
			continue
		}
		if q.MinRound != 0 && txn.ConfirmedRound < q.MinRound {
			continue
		}
		if q.MaxRound != 0 && txn.ConfirmedRound > q.MaxRound {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func newVerifier(t *testing.T, src Source) *Verifier {
	t.Helper()
	v, err := NewVerifier(src, testAppID, testCounts)
	require.NoError(t, err)
	return v
}

func TestRunnerPassesHonestCycles(t *testing.T) {
	h := newFixture(t)
	runner := NewRunner(newVerifier(t, &sliceSource{txs: h.txs}), RunnerOptions{Workers: 2})

	report, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, report.Pass(), "report: %+v", report)
	require.NotEmpty(t, report.RunID)
	require.Len(t, report.Verdicts, 2)
	require.Equal(t, uint64(1), report.Verdicts[0].Cycle)
	require.Equal(t, uint64(2), report.Verdicts[1].Cycle)
	for _, v := range report.Verdicts {
		require.Len(t, v.Slots, testCounts.Total())
		require.NotEmpty(t, v.RegisterTx)
	}
	require.Equal(t, uint64(10), report.Verdicts[0].Entries)
	require.Equal(t, uint64(5), report.Verdicts[1].Entries)
	require.Equal(t, 2, report.SingleDraw.Cycles)
}

func TestVerifyFlagsTamperedRegistry(t *testing.T) {
	h := newFixture(t)
	reg := h.find(t, "register-1")
	slots, err := lottery.DecodeWinnerRecords(reg.ApplicationCall.ApplicationArgs[2])
	require.NoError(t, err)
	slots[0].Address = crypto.MustAddress(bytes.Repeat([]byte{0xee}, crypto.AddressLength))
	reg.ApplicationCall.ApplicationArgs[2] = lottery.EncodeWinnerRecords(slots)

	verdict, err := newVerifier(t, &sliceSource{txs: h.txs}).VerifyCycle(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, verdict.Pass)
	require.Contains(t, verdict.Reason, "do not match")
	require.False(t, verdict.Slots[0].Match)
	require.True(t, verdict.Slots[1].Match)
	require.Equal(t, slots[0].Address.String(), verdict.Slots[0].Registered)
}

func TestVerifyFindings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(t *testing.T, h *fixture)
		cycle  uint64
		reason string
	}{
		{
			name:   "no reveal",
			cycle:  9,
			reason: "no reveal found",
		},
		{
			name:   "unregistered",
			mutate: func(_ *testing.T, h *fixture) { h.remove("register-2") },
			cycle:  2,
			reason: "winners not registered",
		},
		{
			name:   "missing purchase",
			mutate: func(_ *testing.T, h *fixture) { h.remove("buy-1-1") },
			cycle:  1,
			reason: "no purchase covers entry 2",
		},
		{
			name: "short registry",
			mutate: func(t *testing.T, h *fixture) {
				reg := h.find(t, "register-1")
				reg.ApplicationCall.ApplicationArgs[2] = reg.ApplicationCall.ApplicationArgs[2][:lottery.WinnerRecordSize]
			},
			cycle:  1,
			reason: "registered 1 slots, expected 26",
		},
		{
			name: "oversized cycle argument",
			mutate: func(t *testing.T, h *fixture) {
				reg := h.find(t, "register-2")
				reg.ApplicationCall.ApplicationArgs[1] = append([]byte{0}, lottery.EncodeUint(2)...)
			},
			cycle:  2,
			reason: "malformed registration",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newFixture(t)
			if tc.mutate != nil {
				tc.mutate(t, h)
			}
			verdict, err := newVerifier(t, &sliceSource{txs: h.txs}).VerifyCycle(context.Background(), tc.cycle)
			require.NoError(t, err)
			require.False(t, verdict.Pass)
			require.Contains(t, verdict.Reason, tc.reason)
		})
	}
}

func TestVerifyAcceptsShortCycleArgument(t *testing.T) {
	h := newFixture(t)
	reg := h.find(t, "register-2")
	reg.ApplicationCall.ApplicationArgs[1] = []byte{2}

	parsed, err := ParseRegistration(*reg)
	require.NoError(t, err)
	require.Equal(t, uint64(2), parsed.Cycle)

	verdict, err := newVerifier(t, &sliceSource{txs: h.txs}).VerifyCycle(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, verdict.Pass, "reason: %s", verdict.Reason)
	require.Equal(t, "register-2", verdict.RegisterTx)
}

func TestLegacyDrawIsRecognised(t *testing.T) {
	log := lottery.DrawExecutedLog{Cycle: 3, Pot: 100, Entries: 4, Tier1: 40, Tier2: 20, Tier3: 15}
	txn := appCall("legacy", admin, 500, [][]byte{[]byte(LegacyDrawMethod)}, log.Bytes())

	reveal, err := ParseReveal(txn)
	require.NoError(t, err)
	require.True(t, reveal.Legacy)
	require.Equal(t, uint64(3), reveal.Cycle)
	require.Equal(t, uint64(500), reveal.Round)

	_, err = ParseReveal(appCall("empty", admin, 1, [][]byte{[]byte(RevealMethod)}))
	require.ErrorIs(t, err, ErrNoLog)
}

func TestRunnerRecordsTransportErrors(t *testing.T) {
	h := newFixture(t)
	runner := NewRunner(newVerifier(t, &sliceSource{txs: h.txs, fail: PurchaseMethod}), RunnerOptions{})

	report, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, report.Pass())
	require.Len(t, report.Errors, 2)
	require.Contains(t, report.Errors[1], "indexer unavailable")
	require.Empty(t, report.Verdicts)
}

func TestRunnerReusesCachedVerdicts(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	h := newFixture(t)
	first, err := NewRunner(newVerifier(t, &sliceSource{txs: h.txs}), RunnerOptions{Cache: cache}).
		Run(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, first.Pass())

	reveal, ok, err := cache.Reveal(testAppID, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "reveal-2", reveal.TxID)

	// Purchases are no longer reachable, so only cached verdicts can pass.
	second, err := NewRunner(newVerifier(t, &sliceSource{txs: h.txs, fail: PurchaseMethod}), RunnerOptions{Cache: cache}).
		Run(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, second.Pass())
	require.NotEqual(t, first.RunID, second.RunID)

	// The same cycles under another application id are not served from cache.
	other := relabel(h.txs, testAppID+1)
	v, err := NewVerifier(&sliceSource{txs: other, fail: PurchaseMethod}, testAppID+1, testCounts)
	require.NoError(t, err)
	third, err := NewRunner(v, RunnerOptions{Cache: cache}).Run(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, third.Pass())
	require.Len(t, third.Errors, 2)

	// A reveal that no longer matches the cached seed is verified again.
	revealTx := h.find(t, "reveal-2")
	log, err := lottery.ParseDrawRevealedLog(revealTx.Logs[0])
	require.NoError(t, err)
	log.Seed[0] ^= 0xff
	revealTx.Logs[0] = log.Bytes()
	fourth, err := NewRunner(newVerifier(t, &sliceSource{txs: h.txs, fail: PurchaseMethod}), RunnerOptions{Cache: cache}).
		Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, fourth.Verdicts, 1)
	require.Equal(t, uint64(1), fourth.Verdicts[0].Cycle)
	require.Contains(t, fourth.Errors, uint64(2))
}

func relabel(txs []history.IndexerTransaction, appID uint64) []history.IndexerTransaction {
	out := make([]history.IndexerTransaction, len(txs))
	for i, txn := range txs {
		call := *txn.ApplicationCall
		call.ApplicationID = appID
		txn.ApplicationCall = &call
		out[i] = txn
	}
	return out
}

func TestCacheMisses(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Verdict(testAppID, 42)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = cache.Reveal(testAppID, 42)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.PutVerdict(testAppID, &Verdict{Cycle: 42, Reason: "winners not registered"}))
	got, ok, err := cache.Verdict(testAppID, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, got.Pass)
	require.Equal(t, "winners not registered", got.Reason)
	_, ok, err = cache.Verdict(testAppID+1, 42)
	require.NoError(t, err)
	require.False(t, ok, "verdicts are scoped by application")
	require.Error(t, cache.PutVerdict(testAppID, nil))
}

func TestSegments(t *testing.T) {
	p := func(id string, start, count uint64) Purchase {
		return Purchase{TxID: id, Buyer: alice, Start: start, Count: count}
	}
	segs, err := Segments([]Purchase{p("b", 3, 2), p("a", 0, 3)}, 5)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	require.Equal(t, uint64(0), segs[0].Start)
	require.Equal(t, uint64(3), segs[1].Start)

	cases := map[string]struct {
		purchases []Purchase
		entries   uint64
	}{
		"gap":       {[]Purchase{p("a", 0, 2), p("b", 3, 2)}, 5},
		"duplicate": {[]Purchase{p("a", 0, 2), p("b", 0, 2)}, 2},
		"overlap":   {[]Purchase{p("a", 0, 3), p("b", 2, 3)}, 5},
		"overrun":   {[]Purchase{p("a", 0, 6)}, 5},
		"extra":     {[]Purchase{p("a", 0, 5), p("b", 9, 1)}, 5},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Segments(tc.purchases, tc.entries); err == nil {
				t.Fatalf("expected partition error")
			}
		})
	}
}

func TestCheckSingleDraw(t *testing.T) {
	reveals := []Reveal{
		{TxID: "a", Cycle: 1, Round: 100, RoundTime: 1000},
		{TxID: "b", Cycle: 2, Round: 200, RoundTime: 1400},
		{TxID: "c", Cycle: 2, Round: 205, RoundTime: 1420},
	}
	report := CheckSingleDraw(reveals)
	require.False(t, report.Pass)
	require.Equal(t, 3, report.Reveals)
	require.Equal(t, 2, report.Cycles)
	require.Equal(t, []string{"b", "c"}, report.Duplicates[2])
	require.Len(t, report.Rapid, 1)
	require.Equal(t, uint64(5), report.Rapid[0].Rounds)
	require.Equal(t, "210s", report.AverageSpacing.String())

	clean := CheckSingleDraw(reveals[:2])
	require.True(t, clean.Pass)
	require.Empty(t, clean.Rapid)
}

func TestIndexerClientPaginates(t *testing.T) {
	h := newFixture(t)
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, indexerRoute, r.URL.Path)
		q := r.URL.Query()
		requests = append(requests, q.Get("next"))
		require.Equal(t, "appl", q.Get("tx-type"))
		require.Equal(t, strconv.Itoa(testAppID), q.Get("application-id"))
		offset := 0
		if next := q.Get("next"); next != "" {
			var err error
			offset, err = strconv.Atoi(next)
			require.NoError(t, err)
		}
		limit, err := strconv.Atoi(q.Get("limit"))
		require.NoError(t, err)
		end := offset + limit
		resp := history.IndexerResponse{CurrentRound: 200}
		if end < len(h.txs) {
			resp.NextToken = strconv.Itoa(end)
		} else {
			end = len(h.txs)
		}
		resp.Transactions = h.txs[offset:end]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := NewIndexerClient(ClientConfig{BaseURL: srv.URL + "/", PageLimit: 3})
	require.NoError(t, err)

	all, err := client.Transactions(context.Background(), TransactionQuery{AppID: testAppID})
	require.NoError(t, err)
	require.Len(t, all, len(h.txs))
	require.Equal(t, []string{"", "3", "6"}, requests)

	reveals, err := client.Transactions(context.Background(), TransactionQuery{AppID: testAppID, Method: RevealMethod})
	require.NoError(t, err)
	require.Len(t, reveals, 2)

	report, err := NewRunner(newVerifier(t, client), RunnerOptions{}).Run(context.Background(), []uint64{2})
	require.NoError(t, err)
	require.True(t, report.Pass())
}

func TestIndexerClientErrors(t *testing.T) {
	_, err := NewIndexerClient(ClientConfig{BaseURL: "  "})
	require.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	client, err := NewIndexerClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = client.Transactions(context.Background(), TransactionQuery{AppID: testAppID})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "503"))
}

func TestStoreSourceVerifies(t *testing.T) {
	store, err := history.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	h := newFixture(t)
	for _, txn := range h.txs {
		require.NoError(t, store.Record(ctx, &history.Transaction{
			TxID:      txn.ID,
			Sender:    txn.Sender,
			Round:     txn.ConfirmedRound,
			RoundTime: txn.RoundTime,
			AppID:     txn.ApplicationCall.ApplicationID,
			TxType:    txn.TxType,
			Method:    txn.Method(),
			Args:      txn.ApplicationCall.ApplicationArgs,
			Logs:      txn.Logs,
		}))
	}

	verifier := newVerifier(t, StoreSource{Store: store})
	for _, cycle := range []uint64{1, 2} {
		verdict, err := verifier.VerifyCycle(ctx, cycle)
		require.NoError(t, err)
		require.True(t, verdict.Pass, "cycle %d: %s", cycle, verdict.Reason)
	}
}
