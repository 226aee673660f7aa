package agreement

import (
	"context"
	"fmt"
	"math"

	"sunnyflow/auth"
	"sunnyflow/deployment"
	"sunnyflow/events"
	"sunnyflow/fault"
	"sunnyflow/ledger"
	"sunnyflow/store"
	"sunnyflow/timewindow"
)

// Service runs the agreement lifecycle against one invocation's view of the
// keyspace. Payouts are drawn from the owner's custodial balance.
type Service struct {
	kv     store.KV
	config *deployment.Store
	ledger *ledger.Ledger
	sink   events.Sink
	clock  timewindow.Clock
}

func NewService(kv store.KV, config *deployment.Store, l *ledger.Ledger, sink events.Sink, clock timewindow.Clock) *Service {
	if clock == nil {
		clock = timewindow.SystemClock{}
	}
	return &Service{
		kv:     kv,
		config: config,
		ledger: l,
		sink:   sink,
		clock:  clock,
	}
}

// Get loads the record stored under key.
func (s *Service) Get(ctx context.Context, key string) (Record, error) {
	if key == "" {
		return Record{}, fmt.Errorf("agreement: empty key: %w", fault.ErrBadArguments)
	}
	var rec Record
	ok, err := store.GetJSON(ctx, s.kv, key, &rec)
	if err != nil {
		return Record{}, fmt.Errorf("agreement: load %s: %w", key, err)
	}
	if !ok {
		return Record{}, fmt.Errorf("agreement: %s: %w", key, fault.ErrAgreementNotFound)
	}
	if !rec.Status.Valid() {
		return Record{}, fmt.Errorf("agreement: %s has no lifecycle status: %w", key, fault.ErrAgreementNotFound)
	}
	return rec, nil
}

func (s *Service) put(ctx context.Context, key string, rec Record) error {
	if err := store.PutJSON(ctx, s.kv, key, rec); err != nil {
		return fmt.Errorf("agreement: persist %s: %w", key, err)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, ev events.Event) error {
	if s.sink == nil {
		return nil
	}
	if err := s.sink.Emit(ctx, ev); err != nil {
		return fmt.Errorf("agreement: emit %s: %w", ev.Name, err)
	}
	return nil
}

// Create stores a new agreement under p.Key, replacing whatever was there.
func (s *Service) Create(ctx context.Context, g auth.Guard, p CreateParams) error {
	if err := g.RequireOwner("add an agreement"); err != nil {
		return err
	}
	if p.Key == "" {
		return fmt.Errorf("agreement: empty key: %w", fault.ErrBadArguments)
	}
	if p.Customer == "" || p.Insurer == "" {
		return fmt.Errorf("agreement: customer and insurer are required: %w", fault.ErrBadArguments)
	}
	if p.UTCOffset < -timewindow.MaxUTCOffset || p.UTCOffset > timewindow.MaxUTCOffset {
		return fmt.Errorf("agreement: utc offset %d outside [-%d, %d]: %w", p.UTCOffset, timewindow.MaxUTCOffset, timewindow.MaxUTCOffset, fault.ErrBadArguments)
	}

	settings, err := s.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("agreement: %w", err)
	}
	if settings.Name == "" || settings.Name != p.DappName {
		return fmt.Errorf("agreement: must first deploy %q with the deploy operation: %w", p.DappName, fault.ErrNotDeployed)
	}

	if err := timewindow.CheckCreation(s.clock.Now(), p.Timestamp, p.UTCOffset, settings.Window); err != nil {
		return fmt.Errorf("agreement: %s: %w", p.Key, err)
	}

	switch {
	case p.Amount <= 0:
		return fmt.Errorf("agreement: insured amount %d is zero or negative: %w", p.Amount, fault.ErrInvalidAmount)
	case p.Premium <= 0:
		return fmt.Errorf("agreement: premium %d is zero or negative: %w", p.Premium, fault.ErrInvalidAmount)
	case p.Fee < 0 || p.Fee > p.Premium:
		return fmt.Errorf("agreement: fee %d outside [0, premium]: %w", p.Fee, fault.ErrInvalidAmount)
	}

	rec := Record{
		Customer:  p.Customer,
		Insurer:   p.Insurer,
		Location:  p.Location,
		Timestamp: p.Timestamp,
		UTCOffset: p.UTCOffset,
		Amount:    p.Amount,
		Premium:   p.Premium,
		Fee:       p.Fee,
		Oracle:    settings.Oracle,
		Window:    settings.Window,
		Status:    StatusInitialized,
	}
	if err := s.put(ctx, p.Key, rec); err != nil {
		return err
	}
	return s.emit(ctx, events.Agreement(p.Key))
}

// ResultNotice records the oracle's outcome. The new status is written before
// the insured date is checked, so an early report still leaves the record in
// result-noticed while failing with ErrInvalidTimeWindow.
func (s *Service) ResultNotice(ctx context.Context, g auth.Guard, key string, weatherParam, oracleCost int64) error {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := g.Require(auth.RoleOracle, rec.Oracle, "notice results"); err != nil {
		return err
	}
	if err := validateTransition(key, rec.Status, StatusResultNoticed); err != nil {
		return err
	}
	if oracleCost < 0 {
		return fmt.Errorf("agreement: oracle cost %d is negative: %w", oracleCost, fault.ErrInvalidAmount)
	}

	rec.Status = StatusResultNoticed
	rec.WeatherParam = weatherParam
	rec.OracleCost = oracleCost
	if err := s.put(ctx, key, rec); err != nil {
		return err
	}

	if err := timewindow.CheckResultNotice(s.clock.Now(), rec.Timestamp, rec.UTCOffset); err != nil {
		return fmt.Errorf("agreement: %s: %w", key, err)
	}
	return s.emit(ctx, events.ResultNotice(key, weatherParam, oracleCost))
}

// Claim settles a result-noticed agreement. The insurer always receives the
// net premium and the oracle its cost; the customer receives the insured
// amount only when the day was not sunny.
func (s *Service) Claim(ctx context.Context, g auth.Guard, key string) (Payout, error) {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return Payout{}, err
	}
	err = g.RequireAny(
		[]auth.Role{auth.RoleOwner, auth.RoleCustomer, auth.RoleInsurer},
		[]auth.Identity{g.Owner(), rec.Customer, rec.Insurer},
		"claim",
	)
	if err != nil {
		return Payout{}, err
	}

	switch rec.Status {
	case StatusInitialized:
		return Payout{}, fmt.Errorf("agreement: %s: status must be result-noticed to claim: %w", key, fault.ErrInvalidStatus)
	case StatusClaimed:
		return Payout{}, fmt.Errorf("agreement: %s: pay out already claimed: %w", key, fault.ErrInvalidStatus)
	case StatusRefunded:
		return Payout{}, fmt.Errorf("agreement: %s: already refunded: %w", key, fault.ErrInvalidStatus)
	}
	if err := validateTransition(key, rec.Status, StatusClaimed); err != nil {
		return Payout{}, err
	}

	payout := Payout{
		CustomerPaid: !rec.Sunny(),
		ToInsurer:    rec.NetPremium(),
		ToOracle:     rec.OracleCost,
	}
	if payout.CustomerPaid {
		payout.ToCustomer = rec.Amount
	}
	legs := []leg{
		{to: rec.Insurer, amount: payout.ToInsurer},
		{to: rec.Customer, amount: payout.ToCustomer},
		{to: rec.Oracle, amount: payout.ToOracle},
	}
	if err := s.disburse(ctx, g.Owner(), legs); err != nil {
		return Payout{}, fmt.Errorf("agreement: claim %s: %w", key, err)
	}

	rec.Status = StatusClaimed
	if err := s.put(ctx, key, rec); err != nil {
		return Payout{}, err
	}
	if err := s.emit(ctx, events.PayOut(key)); err != nil {
		return Payout{}, err
	}
	return payout, nil
}

// RefundAll returns the net premium to the insurer and the insured amount to
// the customer when the oracle never delivered. The oracle is not paid.
func (s *Service) RefundAll(ctx context.Context, g auth.Guard, key string) error {
	if err := g.RequireOwner("do a refund to all"); err != nil {
		return err
	}
	rec, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	switch rec.Status {
	case StatusClaimed:
		return fmt.Errorf("agreement: %s: pay out has already been claimed: %w", key, fault.ErrInvalidStatus)
	case StatusRefunded:
		return fmt.Errorf("agreement: %s: refund already took place: %w", key, fault.ErrInvalidStatus)
	}
	if err := validateTransition(key, rec.Status, StatusRefunded); err != nil {
		return err
	}

	legs := []leg{
		{to: rec.Insurer, amount: rec.NetPremium()},
		{to: rec.Customer, amount: rec.Amount},
	}
	if err := s.disburse(ctx, g.Owner(), legs); err != nil {
		return fmt.Errorf("agreement: refund %s: %w", key, err)
	}

	rec.Status = StatusRefunded
	if err := s.put(ctx, key, rec); err != nil {
		return err
	}
	return s.emit(ctx, events.RefundAll(key))
}

// Delete removes a claimed or refunded agreement.
func (s *Service) Delete(ctx context.Context, g auth.Guard, key string) error {
	if err := g.RequireOwner("delete an agreement"); err != nil {
		return err
	}
	rec, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if !rec.Status.Terminal() {
		return fmt.Errorf("agreement: %s: only claimed or refunded agreements can be deleted, status is %s: %w", key, rec.Status, fault.ErrInvalidStatus)
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("agreement: delete %s: %w", key, err)
	}
	return s.emit(ctx, events.Delete(key))
}

type leg struct {
	to     auth.Identity
	amount int64
}

// disburse checks that pool covers every leg and that no receiver would
// overflow before moving anything, then pays the non-zero legs in order.
func (s *Service) disburse(ctx context.Context, pool auth.Identity, legs []leg) error {
	var total int64
	owed := make(map[auth.Identity]int64, len(legs))
	for _, l := range legs {
		if l.amount > 0 && l.to == "" {
			return fmt.Errorf("payout leg of %d has no recipient: %w", l.amount, fault.ErrBadArguments)
		}
		if l.amount < 0 {
			return fmt.Errorf("payout leg to %s is negative: %w", l.to, fault.ErrInvalidAmount)
		}
		if l.to == pool || l.amount == 0 {
			continue
		}
		if total > math.MaxInt64-l.amount || owed[l.to] > math.MaxInt64-l.amount {
			return fmt.Errorf("payout total overflows: %w", fault.ErrInvalidAmount)
		}
		total += l.amount
		owed[l.to] += l.amount
	}
	bal, err := s.ledger.Balance(ctx, pool)
	if err != nil {
		return err
	}
	if bal < total {
		return fmt.Errorf("owner pool holds %d, payout needs %d: %w", bal, total, fault.ErrInsufficientFunds)
	}
	for to, amount := range owed {
		have, err := s.ledger.Balance(ctx, to)
		if err != nil {
			return err
		}
		if have > math.MaxInt64-amount {
			return fmt.Errorf("balance of %s would overflow: %w", to, fault.ErrInvalidAmount)
		}
	}
	for _, l := range legs {
		if l.amount == 0 {
			continue
		}
		if err := s.ledger.Disburse(ctx, pool, l.to, l.amount); err != nil {
			return err
		}
	}
	return nil
}
