package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lottochain/core/types"
	"lottochain/crypto"
	"lottochain/native/lottery"
	"lottochain/observability/logging"
)

// nodeSettlement plans registry slots from the node's own purchase segments.
type nodeSettlement struct {
	node *Node
}

func (s nodeSettlement) Settle(ctx context.Context, draw *lottery.Draw) ([]lottery.WinnerSlot, error) {
	if draw == nil {
		return nil, errors.New("core: nil draw")
	}
	return s.node.Settle(ctx, draw.CycleID)
}

// Keeper drives the draw state machine with the administrator key: it commits
// ended cycles, reveals once the beacon round has passed, registers winners
// and skips cycles that closed without entries. At most one transaction is
// submitted per step.
type Keeper struct {
	node       *Node
	key        *crypto.PrivateKey
	settlement lottery.Settlement
	logger     *slog.Logger
}

// NewKeeper creates a keeper. A nil settlement plans winners from the node's
// own state.
func NewKeeper(node *Node, key *crypto.PrivateKey, settlement lottery.Settlement, logger *slog.Logger) (*Keeper, error) {
	if node == nil || key == nil {
		return nil, errors.New("core: keeper needs a node and a key")
	}
	if settlement == nil {
		settlement = nodeSettlement{node: node}
	}
	return &Keeper{
		node:       node,
		key:        key,
		settlement: settlement,
		logger:     logging.Component(logger, "keeper"),
	}, nil
}

// Step inspects the cycle ledger and submits the next draw transaction, if
// any. It returns the operation submitted, or zero when nothing was due.
func (k *Keeper) Step(ctx context.Context) (lottery.Op, error) {
	cycle, err := k.node.Cycle()
	if err != nil {
		return 0, err
	}
	if cycle.Creator != k.key.Address() {
		return 0, lottery.ErrUnauthorized
	}
	if cycle.Paused {
		return 0, nil
	}

	switch cycle.DrawStatus {
	case lottery.DrawStatusRevealed:
		return lottery.OpRegisterWinners, k.register(ctx, cycle.RevealedCycle)
	case lottery.DrawStatusCommitted:
		if !k.revealReady(cycle) {
			return 0, nil
		}
		return lottery.OpRevealDraw, k.invoke(ctx, lottery.OpRevealDraw)
	}

	if !cycle.Ended(k.node.Now().Unix()) && !cycle.TestMode {
		return 0, nil
	}
	if cycle.TotalEntries == 0 {
		return lottery.OpEndEmptyCycle, k.invoke(ctx, lottery.OpEndEmptyCycle)
	}
	return lottery.OpCommitDraw, k.invoke(ctx, lottery.OpCommitDraw)
}

func (k *Keeper) revealReady(cycle *lottery.CycleState) bool {
	round := k.node.Round()
	return round > cycle.CommitmentRound && round >= cycle.CommitRound+k.node.params.MinRevealDelay
}

func (k *Keeper) register(ctx context.Context, cycleID uint64) error {
	draw, err := k.node.Draw(cycleID)
	if err != nil {
		return fmt.Errorf("load draw %d: %w", cycleID, err)
	}
	slots, err := k.settlement.Settle(ctx, draw)
	if err != nil {
		return fmt.Errorf("settle cycle %d: %w", cycleID, err)
	}
	return k.invoke(ctx, lottery.OpRegisterWinners, lottery.EncodeUint(cycleID), lottery.EncodeWinnerRecords(slots))
}

func (k *Keeper) invoke(ctx context.Context, op lottery.Op, params ...[]byte) error {
	sender := k.key.Address()
	acct, err := k.node.Account(sender)
	if err != nil {
		return err
	}
	tx := &types.Transaction{
		Type:   types.TxTypeAppCall,
		AppID:  k.node.AppID(),
		Sender: sender,
		Nonce:  acct.Nonce,
		Args:   lottery.Args(op, params...),
	}
	if err := tx.Sign(k.key); err != nil {
		return err
	}
	receipt, err := k.node.Submit(ctx, tx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	k.logger.Info("draw step submitted", slog.String("op", op.String()), slog.String("tx", receipt.TxID), slog.Uint64("round", receipt.Round))
	return nil
}

// Run steps once per round interval until ctx is cancelled. Step failures are
// logged and retried on the next tick.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := k.node.clock.NewTicker(k.node.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if _, err := k.Step(ctx); err != nil {
				k.logger.Warn("draw step failed", slog.Any("error", err))
			}
		}
	}
}
