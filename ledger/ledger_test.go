package ledger

import (
	"context"
	"errors"
	"testing"

	"sunnyflow/auth"
	"sunnyflow/events"
	"sunnyflow/fault"
	"sunnyflow/store"
)

func newLedger(t *testing.T) (*Ledger, *store.Memory, *events.Recorder) {
	t.Helper()
	mem := store.NewMemory()
	rec := &events.Recorder{}
	return New(mem, rec), mem, rec
}

func TestTransfer_Rules(t *testing.T) {
	ctx := context.Background()
	l, mem, rec := newLedger(t)
	if err := l.Credit(ctx, "alice", 50); err != nil {
		t.Fatalf("credit: %v", err)
	}
	alice := auth.NewSigners("alice")

	if err := l.Transfer(ctx, alice, "alice", "bob", 0); !errors.Is(err, fault.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := l.Transfer(ctx, auth.NewSigners("bob"), "alice", "bob", 10); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := l.Transfer(ctx, alice, "alice", "alice", 1000); err != nil {
		t.Fatalf("self transfer is a no-op success, got %v", err)
	}
	if err := l.Transfer(ctx, alice, "alice", "bob", 51); !errors.Is(err, fault.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("failed transfers must not emit")
	}

	if err := l.Transfer(ctx, alice, "alice", "bob", 20); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	a, _ := l.Balance(ctx, "alice")
	b, _ := l.Balance(ctx, "bob")
	if a != 30 || b != 20 {
		t.Fatalf("expected 30/20, got %d/%d", a, b)
	}

	// draining to zero removes the entry
	if err := l.Transfer(ctx, alice, "alice", "bob", 30); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, ok := mem.Snapshot()["alice"]; ok {
		t.Fatalf("zero balance should be absent")
	}
	if a, _ := l.Balance(ctx, "alice"); a != 0 {
		t.Fatalf("absent balance reads as zero, got %d", a)
	}

	evs := rec.Events()
	if len(evs) != 2 || evs[1].Name != events.NameTransfer || evs[1].Data["amount"] != int64(30) {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestDisburse_SkipsCallerCheck(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLedger(t)
	_ = l.Credit(ctx, "owner", 100)

	if err := l.Disburse(ctx, "owner", "insurer", 18); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if err := l.Disburse(ctx, "owner", "customer", 83); !errors.Is(err, fault.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := l.Disburse(ctx, "owner", "customer", -1); !errors.Is(err, fault.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if bal, _ := l.Balance(ctx, "insurer"); bal != 18 {
		t.Fatalf("expected 18, got %d", bal)
	}
}

func TestCredit_Validation(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLedger(t)
	if err := l.Credit(ctx, "x", -5); !errors.Is(err, fault.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := l.Credit(ctx, "", 5); !errors.Is(err, fault.ErrBadArguments) {
		t.Fatalf("expected ErrBadArguments, got %v", err)
	}
}

type failingSink struct{ err error }

func (s failingSink) Emit(context.Context, events.Event) error { return s.err }

func TestTransfer_SinkFailureIsReported(t *testing.T) {
	ctx := context.Background()
	down := errors.New("sink down")
	mem := store.NewMemory()
	l := New(mem, failingSink{err: down})
	if err := l.Credit(ctx, "alice", 50); err != nil {
		t.Fatalf("credit: %v", err)
	}

	err := l.Transfer(ctx, auth.NewSigners("alice"), "alice", "bob", 10)
	if !errors.Is(err, down) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if fault.IsDomain(err) {
		t.Fatalf("a sink failure must not read as a domain rejection: %v", err)
	}
}
