package deployment

import (
	"context"
	"errors"
	"math"
	"testing"

	"sunnyflow/auth"
	"sunnyflow/fault"
	"sunnyflow/store"
)

const owner auth.Identity = "owner"

func ownerGuard() auth.Guard { return auth.NewGuard(auth.NewSigners(owner), owner) }

func TestDeploy_BoundaryValidTriple(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	s := New(mem)

	if err := s.Deploy(ctx, ownerGuard(), "sunny", "oracle", 0, 3600, 3601); err != nil {
		t.Fatalf("expected boundary triple to deploy: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Name != "sunny" || got.Oracle != "oracle" {
		t.Fatalf("unexpected settings %+v", got)
	}
	if got.Window.TimeMargin != 0 || got.Window.MinTime != 3600 || got.Window.MaxTime != 3601 {
		t.Fatalf("unexpected window %+v", got.Window)
	}
	if ok, _ := s.Deployed(ctx); !ok {
		t.Fatal("expected deployed")
	}
}

func TestDeploy_SequentialCommit(t *testing.T) {
	cases := []struct {
		name                         string
		margin, minTime, maxTime     int64
		wantMargin, wantMin, wantMax bool
	}{
		{"negative margin", -1, 7200, 90000, false, false, false},
		{"min below lead time", 100, 3699, 90000, true, false, false},
		{"max not above min+margin", 100, 3700, 3800, true, true, false},
		{"margin too large for any min", math.MaxInt64, 0, 1, true, false, false},
		{"margin past lead time headroom", math.MaxInt64 - 3000, 0, math.MaxInt64, true, false, false},
		{"min plus margin past int64", 1 << 61, 1<<62 + 1<<61, math.MaxInt64, true, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			mem := store.NewMemory()
			s := New(mem)

			err := s.Deploy(ctx, ownerGuard(), "sunny", "oracle", tc.margin, tc.minTime, tc.maxTime)
			if !errors.Is(err, fault.ErrInvalidTimeWindow) {
				t.Fatalf("expected ErrInvalidTimeWindow, got %v", err)
			}

			snap := mem.Snapshot()
			if _, ok := snap[KeyName]; !ok {
				t.Fatalf("name should be written before bounds are checked")
			}
			if _, ok := snap[KeyOracle]; !ok {
				t.Fatalf("oracle should be written before bounds are checked")
			}
			if _, ok := snap[KeyTimeMargin]; ok != tc.wantMargin {
				t.Fatalf("time_margin written=%v, want %v", ok, tc.wantMargin)
			}
			if _, ok := snap[KeyMinTime]; ok != tc.wantMin {
				t.Fatalf("min_time written=%v, want %v", ok, tc.wantMin)
			}
			if _, ok := snap[KeyMaxTime]; ok != tc.wantMax {
				t.Fatalf("max_time written=%v, want %v", ok, tc.wantMax)
			}
		})
	}
}

func TestDeploy_RequiresOwner(t *testing.T) {
	mem := store.NewMemory()
	g := auth.NewGuard(auth.NewSigners("mallory"), owner)

	err := New(mem).Deploy(context.Background(), g, "sunny", "oracle", 0, 3600, 3601)
	if !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(mem.Snapshot()) != 0 {
		t.Fatal("unauthorized deploy must not write")
	}
}

func TestUpdates(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemory())
	g := ownerGuard()

	if err := s.UpdateName(ctx, g, "rainy"); err != nil {
		t.Fatalf("update name: %v", err)
	}
	if err := s.UpdateOracle(ctx, g, "oracle-2"); err != nil {
		t.Fatalf("update oracle: %v", err)
	}
	if err := s.UpdateTimeLimits(ctx, g, KeyMaxTime, 10); err != nil {
		t.Fatalf("update max_time: %v", err)
	}
	if err := s.UpdateTimeLimits(ctx, g, KeyMinTime, -1); !errors.Is(err, fault.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := s.UpdateTimeLimits(ctx, g, "lunch_time", 5); !errors.Is(err, fault.ErrUnknownTimeVariable) {
		t.Fatalf("expected ErrUnknownTimeVariable, got %v", err)
	}
	if err := s.UpdateName(ctx, auth.NewGuard(nil, owner), "x"); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	name, _ := s.Name(ctx)
	oracle, _ := s.Oracle(ctx)
	maxTime, _ := s.MaxTime(ctx)
	if name != "rainy" || oracle != "oracle-2" || maxTime != 10 {
		t.Fatalf("unexpected values name=%q oracle=%q max=%d", name, oracle, maxTime)
	}
}
