package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"lottochain/core"
	"lottochain/core/beacon"
	"lottochain/core/genesis"
	"lottochain/core/types"
	"lottochain/crypto"
	"lottochain/history"
	"lottochain/native/lottery"
	"lottochain/storage"
)

const testAppID = 7

type testEnv struct {
	node   *core.Node
	local  *beacon.Local
	server *httptest.Server
	admin  *crypto.PrivateKey
	alice  *crypto.PrivateKey
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	admin, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	alice, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{0x10}, 32))
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0).UTC())
	spec := &genesis.Spec{
		GenesisTime:   clock.Now().Format(time.RFC3339),
		Admin:         admin.Address().String(),
		RewardAssetID: 42,
		Alloc:         map[string]string{alice.Address().String(): "10000000"},
	}
	require.NoError(t, spec.Validate())

	store, err := history.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db, core.Options{
		AppID:   testAppID,
		Params:  lottery.DefaultParams(),
		Clock:   clock,
		Genesis: spec,
		History: store,
	})
	require.NoError(t, err)
	local, err := beacon.NewLocal([]byte("rpc-secret"), node.Round)
	require.NoError(t, err)
	node.SetRandomness(lottery.NewBeaconSource(local, lottery.DefaultBeaconHeaderLength))

	cfg.Beacon = local
	srv := httptest.NewServer(NewServer(node, cfg).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{node: node, local: local, server: srv, admin: admin, alice: alice}
}

func (e *testEnv) invoke(t *testing.T, key *crypto.PrivateKey, payment *types.Payment, op lottery.Op) *http.Response {
	t.Helper()
	acct, err := e.node.Account(key.Address())
	require.NoError(t, err)
	tx := &types.Transaction{
		Type:    types.TxTypeAppCall,
		AppID:   testAppID,
		Sender:  key.Address(),
		Nonce:   acct.Nonce,
		Args:    lottery.Args(op),
		Payment: payment,
	}
	require.NoError(t, tx.Sign(key))
	return e.post(t, tx)
}

func (e *testEnv) post(t *testing.T, tx *types.Transaction) *http.Response {
	t.Helper()
	body, err := json.Marshal(tx)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+"/v1/invoke", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp := env.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvokeAndQuery(t *testing.T) {
	env := newTestEnv(t, Config{})
	alice := env.alice.Address()

	resp := env.invoke(t, env.alice, nil, lottery.OpOptIn)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.invoke(t, env.alice, &types.Payment{Sender: alice, Receiver: env.node.ApplicationAddress(), Amount: 3_000_000}, lottery.OpBuyEntries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ack := decode[InvokeResult](t, resp)
	require.NotEmpty(t, ack.TxID)
	require.Len(t, ack.Logs, 1)

	cycle := decode[CycleResult](t, env.get(t, "/v1/lottery/cycle"))
	require.Equal(t, uint64(1), cycle.CycleID)
	require.Equal(t, uint64(3), cycle.TotalEntries)
	require.Equal(t, uint64(3_000_000), cycle.Pot)
	require.Equal(t, "none", cycle.DrawStatus)

	entrant := decode[EntrantResult](t, env.get(t, "/v1/lottery/entrants/"+alice.String()))
	require.Equal(t, uint64(3), entrant.EntriesCurrent)
	require.Equal(t, uint64(3), entrant.RewardBalance)
	require.Equal(t, uint64(7_000_000), entrant.Balance)
	require.Equal(t, uint64(2), entrant.Nonce)

	page := decode[history.IndexerResponse](t, env.get(t, fmt.Sprintf("/v2/transactions?application-id=%d&tx-type=appl&limit=1", testAppID)))
	require.Len(t, page.Transactions, 1)
	require.NotEmpty(t, page.NextToken)
	require.Equal(t, "opt_in", page.Transactions[0].Method())

	page = decode[history.IndexerResponse](t, env.get(t, "/v2/transactions?method=buy_entries"))
	require.Len(t, page.Transactions, 1)
	txn := page.Transactions[0]
	require.Equal(t, ack.TxID, txn.ID)
	require.NotNil(t, txn.PaymentTransaction)
	require.Equal(t, uint64(3_000_000), txn.PaymentTransaction.Amount)
	require.Len(t, txn.Logs, 1)
	purchase, err := lottery.ParsePurchaseLog(txn.Logs[0])
	require.NoError(t, err)
	require.Equal(t, uint64(3), purchase.Count())
}

func TestInvokeRejections(t *testing.T) {
	env := newTestEnv(t, Config{})

	acct, err := env.node.Account(env.alice.Address())
	require.NoError(t, err)
	tx := &types.Transaction{Type: types.TxTypeAppCall, AppID: testAppID, Sender: env.alice.Address(), Nonce: acct.Nonce, Args: lottery.Args(lottery.OpOptIn)}
	require.NoError(t, tx.Sign(env.alice))
	tx.Nonce++
	resp := env.post(t, tx)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, tx.Sign(env.alice))
	resp = env.post(t, tx)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[ErrorBody](t, resp)
	require.Equal(t, codeRejected, body.Error.Code)
	require.Equal(t, "nonce_mismatch", body.Error.Data)

	resp = env.invoke(t, env.alice, nil, lottery.OpCommitDraw)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	malformed, err := http.Post(env.server.URL+"/v1/invoke", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer malformed.Body.Close()
	require.Equal(t, http.StatusBadRequest, malformed.StatusCode)
}

func TestQueryErrors(t *testing.T) {
	env := newTestEnv(t, Config{})
	require.Equal(t, http.StatusNotFound, env.get(t, "/v1/lottery/registry/1").StatusCode)
	require.Equal(t, http.StatusBadRequest, env.get(t, "/v1/lottery/registry/abc").StatusCode)
	require.Equal(t, http.StatusNotFound, env.get(t, "/v1/lottery/entrants/"+env.alice.Address().Hex()).StatusCode)
	require.Equal(t, http.StatusBadRequest, env.get(t, "/v1/lottery/entrants/nope").StatusCode)
	require.Equal(t, http.StatusBadRequest, env.get(t, "/v2/transactions?next=zz").StatusCode)
	require.Equal(t, http.StatusBadRequest, env.get(t, "/v2/transactions?limit=5000").StatusCode)
}

func TestBeaconServesClient(t *testing.T) {
	env := newTestEnv(t, Config{AuthToken: "s3cret"})
	env.node.AdvanceRounds(3)

	require.Equal(t, http.StatusUnauthorized, env.get(t, "/v1/beacon/2").StatusCode)

	client, err := beacon.NewClient(beacon.Config{BaseURL: env.server.URL, APIKey: "s3cret"})
	require.NoError(t, err)
	value, err := client.Value(context.Background(), 2)
	require.NoError(t, err)
	want, err := env.local.Value(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, want, value)

	_, err = client.Value(context.Background(), 9)
	require.ErrorIs(t, err, beacon.ErrRoundNotAvailable)
}

func TestInvokeRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{InvokeRate: 0.001, InvokeBurst: 1})
	first := env.invoke(t, env.alice, nil, lottery.OpOptIn)
	require.Equal(t, http.StatusOK, first.StatusCode)
	second := env.invoke(t, env.alice, nil, lottery.OpOptIn)
	require.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.get(t, "/healthz")
	resp := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
