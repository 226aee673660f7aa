package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"sunnyflow/auth"
	"sunnyflow/engine"
	"sunnyflow/test/chaos"
)

// Deployment bounds used by every run.
const (
	DappName = "sunny-stress"
	MinTime  = 3600
	MaxTime  = 7200
)

// Clock is a ledger clock the Ticker actor pushes forward.
type Clock struct{ now atomic.Int64 }

func NewClock(start int64) *Clock {
	c := &Clock{}
	c.now.Store(start)
	return c
}

func (c *Clock) Now() int64 { return c.now.Load() }

func (c *Clock) Advance(sec int64) { c.now.Add(sec) }

// World is the shared state every actor plays against. Actors hold Gate for
// reading around each invocation so invariant checks can freeze the world.
type World struct {
	Engine    *engine.Engine
	Clock     *Clock
	Owner     auth.Identity
	Oracle    auth.Identity
	Customers []auth.Identity
	Insurers  []auth.Identity

	Gate sync.RWMutex

	mu     sync.Mutex
	keys   []string
	next   int
	funded atomic.Int64
}

func NewWorld(eng *engine.Engine, clock *Clock, parties int) *World {
	w := &World{Engine: eng, Clock: clock, Owner: eng.Owner(), Oracle: "stress-oracle"}
	for i := 0; i < parties; i++ {
		w.Customers = append(w.Customers, auth.Identity(fmt.Sprintf("cust-%d", i)))
		w.Insurers = append(w.Insurers, auth.Identity(fmt.Sprintf("ins-%d", i)))
	}
	return w
}

// Identities lists every party that can hold a balance.
func (w *World) Identities() []auth.Identity {
	out := []auth.Identity{w.Owner, w.Oracle}
	out = append(out, w.Customers...)
	return append(out, w.Insurers...)
}

// Keys returns every agreement key handed out so far.
func (w *World) Keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.keys...)
}

// Funded is the total credited from outside the ledger.
func (w *World) Funded() int64 { return w.funded.Load() }

func (w *World) newKey() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	k := fmt.Sprintf("agr-%d", w.next)
	w.keys = append(w.keys, k)
	return k
}

func (w *World) randomKey(rng *rand.Rand) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.keys) == 0 {
		return ""
	}
	return w.keys[rng.Intn(len(w.keys))]
}

// Setup deploys the dApp and seeds the owner pool.
func (w *World) Setup(ctx context.Context, pool int64) error {
	res := w.Engine.Invoke(ctx, auth.NewSigners(w.Owner), engine.OpDeploy,
		[]any{DappName, string(w.Oracle), 0, MinTime, MaxTime, 0})
	if res.Err != nil {
		return fmt.Errorf("deploy: %w", res.Err)
	}
	_, err := w.fund(ctx, w.Owner, pool)
	return err
}

// invoke runs one call and only surfaces failures that are neither domain
// rejections nor injected by chaos.
func (w *World) invoke(ctx context.Context, signer auth.Identity, op string, args ...any) (engine.Result, error) {
	w.Gate.RLock()
	defer w.Gate.RUnlock()
	res := w.Engine.Invoke(ctx, auth.NewSigners(signer), op, args)
	if res.Err != nil && !res.IsRejected() && !errors.Is(res.Err, chaos.ErrInjected) {
		return res, fmt.Errorf("%s: %w", op, res.Err)
	}
	return res, nil
}

func (w *World) fund(ctx context.Context, to auth.Identity, amount int64) (engine.Result, error) {
	w.Gate.RLock()
	defer w.Gate.RUnlock()
	res := w.Engine.Invoke(ctx, auth.NewSigners(w.Owner), engine.OpFund, []any{string(to), amount})
	if res.Err == nil {
		w.funded.Add(amount)
		return res, nil
	}
	if !res.IsRejected() && !errors.Is(res.Err, chaos.ErrInjected) {
		return res, fmt.Errorf("fund: %w", res.Err)
	}
	return res, nil
}

func pick(rng *rand.Rand, ids []auth.Identity) auth.Identity {
	return ids[rng.Intn(len(ids))]
}

func pause(rng *rand.Rand, base, jitter int) {
	time.Sleep(time.Duration(base+rng.Intn(jitter)) * time.Millisecond)
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

// Underwriter keeps writing fresh agreements with events inside the window.
func Underwriter(ctx context.Context, w *World, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		premium := int64(5 + rng.Intn(50))
		event := w.Clock.Now() + MinTime + int64(rng.Intn(MaxTime-MinTime))
		_, err := w.invoke(ctx, w.Owner, engine.OpAgreement,
			w.newKey(), string(pick(rng, w.Customers)), string(pick(rng, w.Insurers)), "Utrecht",
			event, rng.Intn(5)-2, 50+rng.Intn(200), premium, DappName, rng.Int63n(premium+1))
		if err != nil {
			return err
		}
		pause(rng, 5, 10)
	}
}

// WeatherOracle reports outcomes for random agreements, sometimes too early.
func WeatherOracle(ctx context.Context, w *World, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		if key := w.randomKey(rng); key != "" {
			if _, err := w.invoke(ctx, w.Oracle, engine.OpResultNotice, key, rng.Intn(101), rng.Intn(4)); err != nil {
				return err
			}
		}
		pause(rng, 2, 8)
	}
}

// Claimer settles random agreements as a random party, authorized or not.
func Claimer(ctx context.Context, w *World, rng *rand.Rand, stop <-chan struct{}) error {
	parties := w.Identities()
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		if key := w.randomKey(rng); key != "" {
			if _, err := w.invoke(ctx, pick(rng, parties), engine.OpClaim, key); err != nil {
				return err
			}
		}
		pause(rng, 2, 8)
	}
}

// Refunder unwinds random agreements and deletes settled ones.
func Refunder(ctx context.Context, w *World, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		if key := w.randomKey(rng); key != "" {
			op := engine.OpRefundAll
			if rng.Intn(2) == 0 {
				op = engine.OpDeleteAgreement
			}
			if _, err := w.invoke(ctx, w.Owner, op, key); err != nil {
				return err
			}
		}
		pause(rng, 10, 20)
	}
}

// Trader moves funds between parties, signing as the sender or as someone else.
func Trader(ctx context.Context, w *World, rng *rand.Rand, stop <-chan struct{}) error {
	parties := w.Identities()
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		from, to := pick(rng, parties), pick(rng, parties)
		signer := from
		if rng.Intn(4) == 0 {
			signer = pick(rng, parties)
		}
		if _, err := w.invoke(ctx, signer, engine.OpTransfer, string(from), string(to), rng.Intn(30)); err != nil {
			return err
		}
		pause(rng, 2, 6)
	}
}

// Funder tops up the owner pool and random customers.
func Funder(ctx context.Context, w *World, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		to := w.Owner
		if rng.Intn(3) == 0 {
			to = pick(rng, w.Customers)
		}
		if _, err := w.fund(ctx, to, int64(100+rng.Intn(500))); err != nil {
			return err
		}
		pause(rng, 20, 30)
	}
}

// Ticker advances the ledger clock so notices become due.
func Ticker(ctx context.Context, w *World, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		w.Clock.Advance(int64(60 + rng.Intn(240)))
		pause(rng, 5, 5)
	}
}
