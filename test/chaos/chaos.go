package chaos

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"sunnyflow/store"
)

// ErrInjected is returned by Flaky when it decides to drop a commit.
var ErrInjected = errors.New("chaos: injected commit failure")

// Flaky wraps a backend and fails a share of commits while armed. Reads always
// pass through.
type Flaky struct {
	inner store.Backend
	armed atomic.Bool

	mu  sync.Mutex
	rng *rand.Rand

	dropped atomic.Int64
}

func NewFlaky(inner store.Backend, seed int64) *Flaky {
	return &Flaky{inner: inner, rng: rand.New(rand.NewSource(seed))}
}

func (f *Flaky) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return f.inner.Get(ctx, key)
}

func (f *Flaky) Apply(ctx context.Context, muts []store.Mutation) error {
	if f.armed.Load() && f.roll(3) {
		f.dropped.Add(1)
		return ErrInjected
	}
	return f.inner.Apply(ctx, muts)
}

// Dropped counts the commits refused so far.
func (f *Flaky) Dropped() int64 { return f.dropped.Load() }

func (f *Flaky) Arm(on bool) { f.armed.Store(on) }

func (f *Flaky) roll(n int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Intn(n) == 0
}

// Storm arms and disarms f at random until ctx ends or stop closes.
func Storm(ctx context.Context, f *Flaky, stop <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	defer f.Arm(false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			f.Arm(f.roll(2))
		}
	}
}
