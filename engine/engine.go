// Package engine is the single entry point into the settlement core. It
// decodes invocations, runs them one at a time against a staged view of the
// store, and decides what is committed and announced afterwards.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sunnyflow/agreement"
	"sunnyflow/auth"
	"sunnyflow/deployment"
	"sunnyflow/events"
	"sunnyflow/fault"
	"sunnyflow/ledger"
	"sunnyflow/store"
	"sunnyflow/telemetry"
	"sunnyflow/timewindow"
)

const eventSource = "sunnyflow"

// Result is what a caller sees for one invocation. OK is false for every
// failure and also for a sunny-day claim, which settles but pays the
// customer nothing.
type Result struct {
	Operation string
	OK        bool
	Value     any
	Err       error
}

type Engine struct {
	mu      sync.Mutex
	backend store.Backend
	owner   auth.Identity
	clock   timewindow.Clock
	sink    events.Sink
	logger  *slog.Logger
	metrics *telemetry.Instruments
}

func New(backend store.Backend, owner auth.Identity) *Engine {
	return &Engine{
		backend: backend,
		owner:   owner,
		clock:   timewindow.SystemClock{},
		sink:    events.LogSink{},
		logger:  slog.Default(),
	}
}

func (e *Engine) WithClock(c timewindow.Clock) *Engine {
	e.clock = c
	return e
}

func (e *Engine) WithSink(s events.Sink) *Engine {
	e.sink = s
	return e
}

func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.logger = l
	return e
}

func (e *Engine) WithTelemetry(t *telemetry.Instruments) *Engine {
	e.metrics = t
	return e
}

func (e *Engine) Owner() auth.Identity { return e.owner }

// Verify answers the verification trigger: whether the owner signed.
func (e *Engine) Verify(witness auth.Witness) bool {
	return auth.NewGuard(witness, e.owner).IsAuthorized(e.owner)
}

// Invoke decodes and executes one call. A malformed call fails before any
// state is read.
func (e *Engine) Invoke(ctx context.Context, witness auth.Witness, operation string, args []any) Result {
	cmd, err := Decode(operation, args)
	if err != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		_, done := e.track(ctx, operation)
		e.logger.WarnContext(ctx, "invocation rejected", "operation", operation, "error", err)
		done(telemetry.OutcomeRejected, err)
		return Result{Operation: operation, Err: err}
	}
	return e.Execute(ctx, witness, cmd)
}

// Execute runs cmd in isolation. Writes and events are kept on success.
// Deploy and ResultNotice write before they validate, so their domain
// failures keep those writes too. Every other failure discards the batch
// and announces nothing.
func (e *Engine) Execute(ctx context.Context, witness auth.Witness, cmd Command) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := cmd.Operation()
	ctx, done := e.track(ctx, op)

	batch := store.NewBatch(e.backend)
	buf := events.NewBuffer(eventSource)

	value, ok, err := e.dispatch(ctx, witness, batch, buf, cmd)
	if err != nil && !fault.IsDomain(err) {
		batch.Discard()
		e.logger.ErrorContext(ctx, "invocation failed", "operation", op, "error", err)
		done(telemetry.OutcomeFailed, err)
		return Result{Operation: op, Err: err}
	}
	if err != nil && !keepsFailedWrites(cmd) {
		batch.Discard()
		return e.rejected(ctx, op, err, done)
	}

	if cerr := batch.Commit(ctx); cerr != nil {
		batch.Discard()
		e.logger.ErrorContext(ctx, "invocation failed", "operation", op, "error", cerr)
		done(telemetry.OutcomeFailed, cerr)
		return Result{Operation: op, Err: cerr}
	}
	buf.Flush(ctx, e.sink, e.logger)

	if err != nil {
		return e.rejected(ctx, op, err, done)
	}
	res := Result{Operation: op, OK: ok, Value: value}
	e.logger.InfoContext(ctx, "invocation", "operation", op, "ok", res.OK)
	done(telemetry.OutcomeOK, nil)
	return res
}

func (e *Engine) rejected(ctx context.Context, op string, err error, done func(string, error)) Result {
	e.logger.WarnContext(ctx, "invocation rejected", "operation", op, "kind", fault.Kind(err).Error(), "error", err)
	done(telemetry.OutcomeRejected, err)
	return Result{Operation: op, Err: err}
}

// keepsFailedWrites lists the operations whose partial writes survive a
// domain failure.
func keepsFailedWrites(cmd Command) bool {
	switch cmd.(type) {
	case Deploy, ResultNotice:
		return true
	}
	return false
}

func (e *Engine) track(ctx context.Context, op string) (context.Context, func(string, error)) {
	if e.metrics == nil {
		return ctx, func(string, error) {}
	}
	return e.metrics.Track(ctx, op)
}

func (e *Engine) dispatch(ctx context.Context, witness auth.Witness, kv store.KV, sink events.Sink, cmd Command) (any, bool, error) {
	guard := auth.NewGuard(witness, e.owner)
	config := deployment.New(kv)
	book := ledger.New(kv, sink)
	agreements := agreement.NewService(kv, config, book, sink, e.clock)

	switch c := cmd.(type) {
	case Deploy:
		err := config.Deploy(ctx, guard, c.Name, c.Oracle, c.TimeMargin, c.MinTime, c.MaxTime)
		return nil, true, err
	case ReadSetting:
		v, err := readSetting(ctx, config, c.Field)
		return v, true, err
	case UpdateName:
		return nil, true, config.UpdateName(ctx, guard, c.Name)
	case UpdateOracle:
		return nil, true, config.UpdateOracle(ctx, guard, c.Oracle)
	case UpdateTimeLimits:
		return nil, true, config.UpdateTimeLimits(ctx, guard, c.Variable, c.Value)
	case CreateAgreement:
		return nil, true, agreements.Create(ctx, guard, c.Params)
	case ResultNotice:
		return nil, true, agreements.ResultNotice(ctx, guard, c.Key, c.WeatherParam, c.OracleCost)
	case Claim:
		payout, err := agreements.Claim(ctx, guard, c.Key)
		return payout, payout.CustomerPaid, err
	case Transfer:
		return nil, true, book.Transfer(ctx, witness, c.From, c.To, c.Amount)
	case RefundAll:
		return nil, true, agreements.RefundAll(ctx, guard, c.Key)
	case DeleteAgreement:
		return nil, true, agreements.Delete(ctx, guard, c.Key)
	case Fund:
		if err := guard.RequireOwner("fund the ledger"); err != nil {
			return nil, false, err
		}
		return nil, true, book.Credit(ctx, c.To, c.Amount)
	case BalanceOf:
		bal, err := book.Balance(ctx, c.ID)
		return bal, true, err
	case AgreementOf:
		rec, err := agreements.Get(ctx, c.Key)
		return rec, true, err
	default:
		return nil, false, fmt.Errorf("engine: %T: %w", cmd, fault.ErrUnknownOperation)
	}
}

func readSetting(ctx context.Context, config *deployment.Store, field string) (any, error) {
	switch field {
	case OpName:
		return config.Name(ctx)
	case OpOracle:
		return config.Oracle(ctx)
	case OpTimeMargin:
		return config.TimeMargin(ctx)
	case OpMinTime:
		return config.MinTime(ctx)
	case OpMaxTime:
		return config.MaxTime(ctx)
	}
	return nil, fmt.Errorf("engine: setting %q: %w", field, fault.ErrUnknownOperation)
}

// IsRejected reports whether r failed for a domain reason rather than an
// infrastructure fault.
func (r Result) IsRejected() bool {
	return r.Err != nil && fault.IsDomain(r.Err)
}

// Is reports whether r failed with the given taxonomy kind.
func (r Result) Is(kind error) bool {
	return errors.Is(r.Err, kind)
}
