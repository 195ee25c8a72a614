package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lottochain/core/events"
	lottostate "lottochain/core/state"
	"lottochain/core/types"
	"lottochain/crypto"
	"lottochain/history"
	"lottochain/native/lottery"
	"lottochain/observability"
	"lottochain/observability/otel"
)

var (
	ErrNilTransaction     = errors.New("core: nil transaction")
	ErrNonceMismatch      = errors.New("core: nonce mismatch")
	ErrUnknownApplication = errors.New("core: unknown application")
	ErrInvalidPayment     = errors.New("core: invalid payment")
	ErrUnsupportedTxType  = errors.New("core: unsupported transaction type")
)

var tracer = otel.Tracer("lottochain/core")

// Submit verifies tx and applies it atomically. The grouped payment and the
// application call either both commit or neither does. On success the state
// root is committed at the current round, the transaction is recorded in
// history and its events are published.
func (n *Node) Submit(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	ctx, span := tracer.Start(ctx, "node.submit")
	defer span.End()
	op := OperationLabel(tx)
	span.SetAttributes(
		attribute.String("tx.type", tx.Type.String()),
		attribute.String("tx.method", op),
	)

	receipt, err := n.submit(ctx, tx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.metrics.ObserveRejected(op, RejectReason(err))
		n.logger.Debug("transaction rejected",
			slog.String("op", op),
			slog.String("sender", tx.Sender.String()),
			slog.Any("error", err))
		return nil, err
	}
	return receipt, nil
}

func (n *Node) submit(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := tx.VerifySignature(); err != nil {
		return nil, err
	}
	txID, err := tx.ID()
	if err != nil {
		return nil, err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	parentRoot := n.trie.Root()
	rollback := func(cause error) error {
		if rbErr := n.trie.Reset(parentRoot); rbErr != nil {
			return fmt.Errorf("%v (rollback failed: %w)", cause, rbErr)
		}
		return cause
	}

	round := n.Round()
	now := n.clock.Now().Unix()
	manager := lottostate.NewManager(n.trie)
	recorder := &events.Recorder{}

	nonce, err := manager.Nonce(tx.Sender)
	if err != nil {
		return nil, err
	}
	if tx.Nonce != nonce {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrNonceMismatch, nonce, tx.Nonce)
	}

	var result *lottery.Result
	switch tx.Type {
	case types.TxTypePayment:
		if tx.Payment == nil || tx.Payment.Sender != tx.Sender {
			return nil, fmt.Errorf("%w: payment must be sent by the signer", ErrInvalidPayment)
		}
		if err := manager.Transfer(tx.Payment.Sender, tx.Payment.Receiver, tx.Payment.Amount); err != nil {
			return nil, rollback(err)
		}
	case types.TxTypeAppCall:
		if tx.AppID != n.appID {
			return nil, fmt.Errorf("%w: %d", ErrUnknownApplication, tx.AppID)
		}
		if tx.Payment != nil {
			if tx.Payment.Sender != tx.Sender {
				return nil, fmt.Errorf("%w: payment sender differs from caller", ErrInvalidPayment)
			}
			if err := manager.Transfer(tx.Payment.Sender, tx.Payment.Receiver, tx.Payment.Amount); err != nil {
				return nil, rollback(err)
			}
		}
		engine, err := n.newLotteryEngine(manager, recorder)
		if err != nil {
			return nil, rollback(err)
		}
		result, err = engine.Dispatch(ctx, lottery.Call{Sender: tx.Sender, Args: tx.Args, Payment: tx.Payment})
		if err != nil {
			recorder.Discard()
			return nil, rollback(err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTxType, tx.Type)
	}

	if err := manager.SetNonce(tx.Sender, nonce+1); err != nil {
		recorder.Discard()
		return nil, rollback(err)
	}
	committed, err := n.trie.Commit(round)
	if err != nil {
		recorder.Discard()
		return nil, rollback(fmt.Errorf("state commit failed: %w", err))
	}
	if err := n.db.Put(headRootKey, committed.Bytes()); err != nil {
		return nil, fmt.Errorf("persist head root: %w", err)
	}

	payloads := recorder.Payloads()
	receipt := &types.Receipt{
		TxID:      txID,
		Round:     round,
		Timestamp: now,
		Events:    payloads,
	}
	for _, evt := range payloads {
		if len(evt.Data) > 0 {
			receipt.Logs = append(receipt.Logs, evt.Data)
		}
	}

	n.recordHistory(ctx, tx, receipt)
	for _, evt := range recorder.Events() {
		observability.Events().RecordPublished(evt.EventType())
	}
	recorder.Flush(n.emitter)
	n.observeResult(result, manager)

	n.logger.Info("transaction committed",
		slog.String("tx", txID),
		slog.String("op", OperationLabel(tx)),
		slog.Uint64("round", round),
		slog.String("root", committed.Hex()))
	return receipt, nil
}

func (n *Node) recordHistory(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) {
	if n.history == nil {
		return
	}
	row := &history.Transaction{
		TxID:      receipt.TxID,
		Sender:    tx.Sender.String(),
		Round:     receipt.Round,
		RoundTime: receipt.Timestamp,
		TxType:    tx.Type.String(),
		Logs:      receipt.Logs,
	}
	if tx.Type == types.TxTypeAppCall {
		row.AppID = tx.AppID
		row.Method = tx.Method()
		row.Args = tx.Args
	}
	if tx.Payment != nil {
		row.PaymentReceiver = tx.Payment.Receiver.String()
		row.PaymentAmount = tx.Payment.Amount
	}
	if err := n.history.Record(ctx, row); err != nil {
		n.logger.Warn("record history failed", slog.String("tx", receipt.TxID), slog.Any("error", err))
	}
}

func (n *Node) observeResult(result *lottery.Result, manager *lottostate.Manager) {
	if result == nil {
		return
	}
	switch result.Op {
	case lottery.OpBuyEntries:
		if result.Purchase != nil {
			n.metrics.ObservePurchase(result.Purchase.Entries)
		}
	case lottery.OpCommitDraw:
		n.metrics.ObserveDrawPhase("committed")
	case lottery.OpRevealDraw:
		n.metrics.ObserveDrawPhase("revealed")
	case lottery.OpRegisterWinners:
		n.metrics.ObserveDrawPhase("registered")
	case lottery.OpEndEmptyCycle:
		n.metrics.ObserveDrawPhase("skipped")
	case lottery.OpClaimPrize:
		if result.Slot != nil {
			n.metrics.ObserveClaim(uint8(result.Slot.Tier), result.Slot.Amount)
		}
	}
	if cycle, ok, err := manager.LotteryCycle(); err == nil && ok {
		n.metrics.SetLedger(cycle.Pot, cycle.UnclaimedPrizes)
	}
}

var rejectionReasons = []error{
	lottery.ErrNotInitialized,
	lottery.ErrUnauthorized,
	lottery.ErrPaused,
	lottery.ErrNotRegistered,
	lottery.ErrAlreadyRegistered,
	lottery.ErrCycleEnded,
	lottery.ErrCycleActive,
	lottery.ErrInvalidPayment,
	lottery.ErrNoEntries,
	lottery.ErrHasEntries,
	lottery.ErrInvalidDrawStatus,
	lottery.ErrRevealTooEarly,
	lottery.ErrInvalidSeed,
	lottery.ErrNoRandomness,
	lottery.ErrRegistryExists,
	lottery.ErrRegistryNotFound,
	lottery.ErrInvalidRecords,
	lottery.ErrInvalidCycle,
	lottery.ErrInvalidIndex,
	lottery.ErrNotWinner,
	lottery.ErrAlreadyClaimed,
	lottery.ErrEmptyPrize,
	lottery.ErrAssetNotOptedIn,
	lottery.ErrInvalidParameter,
	lottery.ErrInsufficientFunds,
	lottery.ErrUnknownOperation,
	lottery.ErrInvalidArguments,
	lottostate.ErrInsufficientBalance,
	ErrNonceMismatch,
	ErrUnknownApplication,
	ErrInvalidPayment,
	ErrUnsupportedTxType,
	types.ErrMissingSignature,
	crypto.ErrInvalidSignature,
}

// OperationLabel names the operation tx invokes for metrics and logs. Payments
// are labelled "pay" and selectors that do not parse collapse to "unknown".
func OperationLabel(tx *types.Transaction) string {
	if tx.Type == types.TxTypePayment {
		return "pay"
	}
	if len(tx.Args) == 0 {
		return "unknown"
	}
	op, err := lottery.ParseOp(tx.Args[0])
	if err != nil {
		return "unknown"
	}
	return op.String()
}

// RejectReason maps err to a bounded label. Unclassified errors map to
// "other".
func RejectReason(err error) string {
	for _, sentinel := range rejectionReasons {
		if errors.Is(err, sentinel) {
			msg := sentinel.Error()
			if i := strings.Index(msg, ": "); i >= 0 {
				msg = msg[i+2:]
			}
			return strings.ReplaceAll(msg, " ", "_")
		}
	}
	return "other"
}
