/*

This file contains the transaction guard that makes every mutating vault operation atomic.

A single-slot semaphore serializes callers. The in-flight transaction is stored in the context
handed to collaborators; a call arriving with that context is re-entrant and is rejected.
Collaborator calls also publish an outbound call id. A caller that arrives with any other context
queues on the semaphore, but once it has waited ReentryWait behind one and the same collaborator
call it is treated as a call back from that collaborator and rejected.
Vault state changes are journaled and undone in reverse order when the operation fails, and
collaborators implementing collab.Checkpointer are reverted with it. Events are only published
once the operation commits.

*/

package vault

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"

	"github.com/elys-network/hfvault/internal/collab"
	"github.com/elys-network/hfvault/internal/types"
)

type txKey struct{}

type checkpoint struct {
	target collab.Checkpointer
	id     int
}

// tx is the state of one in-flight operation.
type tx struct {
	id          string
	op          string
	vault       *Vault
	caller      sdk.AccAddress
	undo        []func()
	events      []types.Event
	checkpoints []checkpoint
}

func txFrom(ctx context.Context, v *Vault) (*tx, bool) {
	t, ok := ctx.Value(txKey{}).(*tx)
	if !ok || t.vault != v {
		return nil, false
	}
	return t, true
}

// run executes fn as one serialized, all-or-nothing transaction.
func (v *Vault) run(ctx context.Context, op string, caller sdk.AccAddress, fn func(ctx context.Context, t *tx) error) (err error) {
	if err := v.acquire(ctx, op); err != nil {
		return err
	}
	defer func() { <-v.sem }()

	t := &tx{id: uuid.New().String(), op: op, vault: v, caller: caller}
	for _, c := range v.checkpointers() {
		t.checkpoints = append(t.checkpoints, checkpoint{target: c, id: c.Checkpoint()})
	}

	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
		if err != nil {
			t.rollback()
			v.logger.Error().Err(err).Str("op", op).Str("tx_id", t.id).Str("caller", caller.String()).Msg("Vault operation failed and was rolled back")
			return
		}
		t.commit(ctx)
	}()

	return fn(context.WithValue(ctx, txKey{}, t), t)
}

// view runs a read-only fn. Inside an in-flight transaction it reads directly.
func (v *Vault) view(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx, v); ok {
		return fn(ctx)
	}
	if err := v.acquire(ctx, "view"); err != nil {
		return err
	}
	defer func() { <-v.sem }()
	return fn(ctx)
}

// acquire takes the semaphore. Calls carrying the in-flight context are rejected at once.
func (v *Vault) acquire(ctx context.Context, op string) error {
	if inflight, ok := txFrom(ctx, v); ok {
		v.logger.Warn().
			Str("op", op).
			Str("inflight_op", inflight.op).
			Str("tx_id", inflight.id).
			Msg("Rejected re-entrant vault call")
		return errorsmod.Wrapf(ErrReentrantCall, "%s called during %s", op, inflight.op)
	}

	select {
	case v.sem <- struct{}{}:
		return nil
	default:
	}

	ticker := time.NewTicker(max(v.reentryWait/4, time.Millisecond))
	defer ticker.Stop()
	var (
		call  uint64
		since time.Time
	)
	for {
		select {
		case v.sem <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			current := v.outbound.Load()
			if current == 0 || current != call {
				call, since = current, now
				continue
			}
			if now.Sub(since) >= v.reentryWait {
				v.logger.Warn().Str("op", op).Uint64("outbound_call", call).Msg("Rejected vault call blocked behind a collaborator call")
				return errorsmod.Wrapf(ErrReentrantCall, "%s blocked for %s behind a collaborator call", op, v.reentryWait)
			}
		}
	}
}

// callOut runs one collaborator call under a fresh outbound call id. A failure is reported as
// ErrCollaboratorFailure tagged with what.
func (v *Vault) callOut(what string, fn func() error) error {
	prev := v.outbound.Swap(v.calls.Add(1))
	defer v.outbound.Store(prev)
	if err := fn(); err != nil {
		return collaboratorFailure(what, err)
	}
	return nil
}

// onRollback registers an undo step.
func (t *tx) onRollback(undo func()) {
	t.undo = append(t.undo, undo)
}

func (t *tx) emit(ev types.Event) {
	ev.ID = uuid.New().String()
	ev.TxID = t.id
	if ev.Caller == "" {
		ev.Caller = t.caller.String()
	}
	ev.Timestamp = t.vault.clock().UTC()
	t.events = append(t.events, ev)
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	for i := len(t.checkpoints) - 1; i >= 0; i-- {
		t.checkpoints[i].target.RevertTo(t.checkpoints[i].id)
	}
	t.undo = nil
	t.events = nil
}

func (t *tx) commit(ctx context.Context) {
	for i := len(t.checkpoints) - 1; i >= 0; i-- {
		t.checkpoints[i].target.Commit(t.checkpoints[i].id)
	}
	for _, ev := range t.events {
		if err := t.vault.sink.Publish(ctx, ev); err != nil {
			t.vault.logger.Error().Err(err).Str("event_type", string(ev.Type)).Str("tx_id", t.id).Msg("Failed to publish vault event")
		}
	}
}

// checkpointers returns the distinct collaborators that support rollback.
func (v *Vault) checkpointers() []collab.Checkpointer {
	var out []collab.Checkpointer
	add := func(c any) {
		cp, ok := c.(collab.Checkpointer)
		if !ok {
			return
		}
		for _, seen := range out {
			if seen == cp {
				return
			}
		}
		out = append(out, cp)
	}
	add(v.ledger)
	add(v.venue)
	add(v.market)
	return out
}
