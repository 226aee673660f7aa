// Package ledger keeps the custodial balance of every identity. Balances live
// in the shared keyspace under the identity itself and a zero balance is
// stored as an absent key.
package ledger

import (
	"context"
	"fmt"
	"math"

	"sunnyflow/auth"
	"sunnyflow/events"
	"sunnyflow/fault"
	"sunnyflow/store"
)

type Ledger struct {
	kv   store.KV
	sink events.Sink
}

func New(kv store.KV, sink events.Sink) *Ledger {
	return &Ledger{kv: kv, sink: sink}
}

// Balance returns 0 for an identity without an entry.
func (l *Ledger) Balance(ctx context.Context, id auth.Identity) (int64, error) {
	if id == "" {
		return 0, nil
	}
	return store.GetInt(ctx, l.kv, string(id))
}

// Transfer moves amount from one identity to another on behalf of a caller
// that must have signed as the sender.
func (l *Ledger) Transfer(ctx context.Context, caller auth.Witness, from, to auth.Identity, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: cannot transfer %d: %w", amount, fault.ErrInvalidAmount)
	}
	if err := auth.NewGuard(caller, "").Require(auth.RoleSender, from, "transfer funds"); err != nil {
		return err
	}
	return l.move(ctx, from, to, amount)
}

// Disburse pays out of a custodial pool whose owner the calling operation has
// already authorized.
func (l *Ledger) Disburse(ctx context.Context, pool, to auth.Identity, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: cannot disburse %d: %w", amount, fault.ErrInvalidAmount)
	}
	return l.move(ctx, pool, to, amount)
}

// Credit adds externally supplied funds to id.
func (l *Ledger) Credit(ctx context.Context, id auth.Identity, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: cannot credit %d: %w", amount, fault.ErrInvalidAmount)
	}
	if id == "" {
		return fmt.Errorf("ledger: credit needs an identity: %w", fault.ErrBadArguments)
	}
	bal, err := l.Balance(ctx, id)
	if err != nil {
		return fmt.Errorf("ledger: read balance: %w", err)
	}
	if bal > math.MaxInt64-amount {
		return fmt.Errorf("ledger: balance of %s would overflow: %w", id, fault.ErrInvalidAmount)
	}
	return store.PutInt(ctx, l.kv, string(id), bal+amount)
}

func (l *Ledger) move(ctx context.Context, from, to auth.Identity, amount int64) error {
	if from == "" || to == "" {
		return fmt.Errorf("ledger: transfer needs both parties: %w", fault.ErrBadArguments)
	}
	if from == to {
		return nil
	}

	fromBal, err := l.Balance(ctx, from)
	if err != nil {
		return fmt.Errorf("ledger: read sender balance: %w", err)
	}
	if fromBal < amount {
		return fmt.Errorf("ledger: %s holds %d, needs %d: %w", from, fromBal, amount, fault.ErrInsufficientFunds)
	}
	toBal, err := l.Balance(ctx, to)
	if err != nil {
		return fmt.Errorf("ledger: read receiver balance: %w", err)
	}
	if toBal > math.MaxInt64-amount {
		return fmt.Errorf("ledger: balance of %s would overflow: %w", to, fault.ErrInvalidAmount)
	}

	if fromBal == amount {
		err = l.kv.Delete(ctx, string(from))
	} else {
		err = store.PutInt(ctx, l.kv, string(from), fromBal-amount)
	}
	if err != nil {
		return fmt.Errorf("ledger: debit %s: %w", from, err)
	}
	if err := store.PutInt(ctx, l.kv, string(to), toBal+amount); err != nil {
		return fmt.Errorf("ledger: credit %s: %w", to, err)
	}

	if l.sink == nil {
		return nil
	}
	if err := l.sink.Emit(ctx, events.Transfer(string(from), string(to), amount)); err != nil {
		return fmt.Errorf("ledger: emit transfer: %w", err)
	}
	return nil
}
