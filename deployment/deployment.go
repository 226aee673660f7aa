// Package deployment holds the process-wide dApp settings: name, oracle and
// the three timing bounds new agreements are validated against.
package deployment

import (
	"context"
	"fmt"
	"math"

	"sunnyflow/auth"
	"sunnyflow/fault"
	"sunnyflow/store"
	"sunnyflow/timewindow"
)

// Reserved keys. Agreement keys must not reuse them.
const (
	KeyName       = "dapp_name"
	KeyOracle     = "oracle"
	KeyTimeMargin = "time_margin"
	KeyMinTime    = "min_time"
	KeyMaxTime    = "max_time"
)

// MinLeadTime is the floor on min_time before the margin is added.
const MinLeadTime = 3600

// Settings is a snapshot of every configuration field.
type Settings struct {
	Name   string
	Oracle auth.Identity
	Window timewindow.Window
}

type Store struct {
	kv store.KV
}

func New(kv store.KV) *Store {
	return &Store{kv: kv}
}

// Deploy writes each field as soon as its check passes, so a failing bound
// leaves the fields before it in place.
func (s *Store) Deploy(ctx context.Context, g auth.Guard, name string, oracle auth.Identity, timeMargin, minTime, maxTime int64) error {
	if err := g.RequireOwner("deploy dApp"); err != nil {
		return err
	}
	if err := store.PutString(ctx, s.kv, KeyName, name); err != nil {
		return err
	}
	if err := store.PutString(ctx, s.kv, KeyOracle, string(oracle)); err != nil {
		return err
	}

	if timeMargin < 0 {
		return fmt.Errorf("deployment: time_margin must be positive: %w", fault.ErrInvalidTimeWindow)
	}
	if err := store.PutInt(ctx, s.kv, KeyTimeMargin, timeMargin); err != nil {
		return err
	}

	if timeMargin > math.MaxInt64-MinLeadTime || minTime < MinLeadTime+timeMargin {
		return fmt.Errorf("deployment: min_time must be at least %d + time_margin: %w", MinLeadTime, fault.ErrInvalidTimeWindow)
	}
	if err := store.PutInt(ctx, s.kv, KeyMinTime, minTime); err != nil {
		return err
	}

	if minTime > math.MaxInt64-timeMargin || maxTime <= minTime+timeMargin {
		return fmt.Errorf("deployment: max_time must be greater than min_time + time_margin: %w", fault.ErrInvalidTimeWindow)
	}
	return store.PutInt(ctx, s.kv, KeyMaxTime, maxTime)
}

func (s *Store) UpdateName(ctx context.Context, g auth.Guard, name string) error {
	if err := g.RequireOwner("update name"); err != nil {
		return err
	}
	return store.PutString(ctx, s.kv, KeyName, name)
}

func (s *Store) UpdateOracle(ctx context.Context, g auth.Guard, oracle auth.Identity) error {
	if err := g.RequireOwner("update oracle"); err != nil {
		return err
	}
	return store.PutString(ctx, s.kv, KeyOracle, string(oracle))
}

// UpdateTimeLimits sets one bound without re-checking it against the others.
func (s *Store) UpdateTimeLimits(ctx context.Context, g auth.Guard, variable string, value int64) error {
	if err := g.RequireOwner("update time limits"); err != nil {
		return err
	}
	if value < 0 {
		return fmt.Errorf("deployment: time limit value must be positive: %w", fault.ErrInvalidAmount)
	}
	switch variable {
	case KeyTimeMargin, KeyMinTime, KeyMaxTime:
		return store.PutInt(ctx, s.kv, variable, value)
	default:
		return fmt.Errorf("deployment: time variable %q: %w", variable, fault.ErrUnknownTimeVariable)
	}
}

func (s *Store) Name(ctx context.Context) (string, error) {
	return store.GetString(ctx, s.kv, KeyName)
}

func (s *Store) Oracle(ctx context.Context) (auth.Identity, error) {
	o, err := store.GetString(ctx, s.kv, KeyOracle)
	return auth.Identity(o), err
}

func (s *Store) TimeMargin(ctx context.Context) (int64, error) {
	return store.GetInt(ctx, s.kv, KeyTimeMargin)
}

func (s *Store) MinTime(ctx context.Context) (int64, error) {
	return store.GetInt(ctx, s.kv, KeyMinTime)
}

func (s *Store) MaxTime(ctx context.Context) (int64, error) {
	return store.GetInt(ctx, s.kv, KeyMaxTime)
}

// Deployed reports whether Deploy has written a dApp name.
func (s *Store) Deployed(ctx context.Context) (bool, error) {
	n, err := s.Name(ctx)
	return n != "", err
}

// Load reads every field at once.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	var (
		out Settings
		err error
	)
	if out.Name, err = s.Name(ctx); err != nil {
		return Settings{}, fmt.Errorf("deployment: load name: %w", err)
	}
	if out.Oracle, err = s.Oracle(ctx); err != nil {
		return Settings{}, fmt.Errorf("deployment: load oracle: %w", err)
	}
	if out.Window.TimeMargin, err = s.TimeMargin(ctx); err != nil {
		return Settings{}, fmt.Errorf("deployment: load time_margin: %w", err)
	}
	if out.Window.MinTime, err = s.MinTime(ctx); err != nil {
		return Settings{}, fmt.Errorf("deployment: load min_time: %w", err)
	}
	if out.Window.MaxTime, err = s.MaxTime(ctx); err != nil {
		return Settings{}, fmt.Errorf("deployment: load max_time: %w", err)
	}
	return out, nil
}
