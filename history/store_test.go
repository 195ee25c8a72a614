package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func appCall(id string, round uint64, method string, logs ...[]byte) *Transaction {
	return &Transaction{
		TxID:      id,
		Sender:    "lot1sender",
		Round:     round,
		RoundTime: int64(1_700_000_000 + round),
		AppID:     7,
		TxType:    "appl",
		Method:    method,
		Args:      [][]byte{[]byte(method)},
		Logs:      logs,
	}
}

func TestRecordAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := appCall("tx-1", 10, "buy_entries", []byte("PURCHASE:..."))
	tx.PaymentReceiver = "lot1app"
	tx.PaymentAmount = 2_000_000
	require.NoError(t, store.Record(ctx, tx))

	got, err := store.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.Equal(t, "buy_entries", got.Method)
	require.Equal(t, [][]byte{[]byte("buy_entries")}, got.Args)
	require.Equal(t, [][]byte{[]byte("PURCHASE:...")}, got.Logs)
	require.Equal(t, uint64(2_000_000), got.PaymentAmount)

	err = store.Record(ctx, appCall("tx-1", 11, "claim_prize"))
	require.True(t, errors.Is(err, ErrDuplicate))

	_, err = store.Get(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestQueryFiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, appCall(fmt.Sprintf("buy-%d", i), uint64(10+i), "buy_entries")))
	}
	other := appCall("other-app", 12, "buy_entries")
	other.AppID = 8
	require.NoError(t, store.Record(ctx, other))
	require.NoError(t, store.Record(ctx, appCall("reveal", 20, "execute_draw_reveal")))

	rows, next, err := store.Query(ctx, Query{AppID: 7, Method: "buy_entries", Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "buy-0", rows[0].TxID)
	require.NotEmpty(t, next)

	var seen []string
	for _, row := range rows {
		seen = append(seen, row.TxID)
	}
	for next != "" {
		rows, next, err = store.Query(ctx, Query{AppID: 7, Method: "buy_entries", Limit: 2, Next: next})
		require.NoError(t, err)
		for _, row := range rows {
			seen = append(seen, row.TxID)
		}
	}
	require.Equal(t, []string{"buy-0", "buy-1", "buy-2", "buy-3", "buy-4"}, seen)

	rows, next, err = store.Query(ctx, Query{AppID: 7, TxType: "appl", MinRound: 13})
	require.NoError(t, err)
	require.Empty(t, next)
	require.Len(t, rows, 3)
	require.Equal(t, "reveal", rows[2].TxID)

	rows, _, err = store.Query(ctx, Query{AppID: 7, MaxRound: 11})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, _, err = store.Query(ctx, Query{Next: "abc"})
	require.True(t, errors.Is(err, ErrInvalidNext))

	latest, err := store.LatestRound(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(20), latest)
}

func TestLatestRoundEmpty(t *testing.T) {
	store := newTestStore(t)
	latest, err := store.LatestRound(context.Background())
	require.NoError(t, err)
	require.Zero(t, latest)
}

func TestIndexerForm(t *testing.T) {
	row := appCall("tx-9", 30, "claim_prize", []byte("CLAIMED:"))
	row.PaymentReceiver = "lot1app"
	row.PaymentAmount = 5

	page := IndexerPage([]Transaction{*row}, "42", 31)
	require.Equal(t, uint64(31), page.CurrentRound)
	require.Equal(t, "42", page.NextToken)
	require.Len(t, page.Transactions, 1)

	tx := page.Transactions[0]
	require.Equal(t, "claim_prize", tx.Method())
	require.Equal(t, uint64(7), tx.ApplicationCall.ApplicationID)
	require.Equal(t, uint64(5), tx.PaymentTransaction.Amount)
	require.Equal(t, uint64(30), tx.ConfirmedRound)

	payment := Transaction{TxID: "pay", TxType: "pay"}.Indexer()
	require.Nil(t, payment.ApplicationCall)
	require.Equal(t, "", payment.Method())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.True(t, errors.Is(err, ErrUnsupportedType))
}
