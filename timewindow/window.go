// Package timewindow compares an agreement's insured date with the ledger's
// current time, both shifted into the agreement's local timezone.
package timewindow

import (
	"errors"
	"fmt"
	"math"
	"time"

	"sunnyflow/fault"
)

var (
	// ErrTooSoon signals an event date closer than min_time - time_margin.
	ErrTooSoon = fmt.Errorf("timewindow: event too soon: %w", fault.ErrInvalidTimeWindow)
	// ErrTooFar signals an event date beyond max_time + time_margin.
	ErrTooFar = fmt.Errorf("timewindow: event too far ahead: %w", fault.ErrInvalidTimeWindow)
	// ErrPremature signals a result notice before the insured date.
	ErrPremature = fmt.Errorf("timewindow: result notice before insured date: %w", fault.ErrInvalidTimeWindow)
)

const secondsPerHour = 3600

// MaxUTCOffset bounds an agreement's UTC offset in whole hours.
const MaxUTCOffset = 24

// Clock is the ledger time source in epoch seconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// FixedClock always reports the same instant.
type FixedClock int64

func (c FixedClock) Now() int64 { return int64(c) }

// Window bounds how far ahead of now an insured event may lie.
type Window struct {
	TimeMargin int64 `json:"time_margin"`
	MinTime    int64 `json:"min_time"`
	MaxTime    int64 `json:"max_time"`
}

// AdjustedTime shifts epoch by utcOffset hours, pinned to the int64 range.
func AdjustedTime(epoch, utcOffset int64) int64 {
	const limit = math.MaxInt64 / secondsPerHour
	switch {
	case utcOffset > limit:
		return addSat(epoch, math.MaxInt64)
	case utcOffset < -limit:
		return addSat(epoch, math.MinInt64)
	}
	return addSat(epoch, utcOffset*secondsPerHour)
}

// CheckCreation accepts event only if
// min_time - time_margin <= adjusted(event) - adjusted(now) <= max_time + time_margin.
// Both sides share one offset, so the lead is event - now.
func CheckCreation(now, event, utcOffset int64, w Window) error {
	lead := subSat(event, now)
	if lead < subSat(w.MinTime, w.TimeMargin) {
		return fmt.Errorf("%w: lead %ds at local %d", ErrTooSoon, lead, AdjustedTime(event, utcOffset))
	}
	if lead > addSat(w.MaxTime, w.TimeMargin) {
		return fmt.Errorf("%w: lead %ds at local %d", ErrTooFar, lead, AdjustedTime(event, utcOffset))
	}
	return nil
}

// CheckResultNotice rejects a report made before the insured date.
func CheckResultNotice(now, event, utcOffset int64) error {
	if now < event {
		return fmt.Errorf("%w: local now %d, insured date %d",
			ErrPremature, AdjustedTime(now, utcOffset), AdjustedTime(event, utcOffset))
	}
	return nil
}

func addSat(a, b int64) int64 {
	sum := a + b
	switch {
	case b > 0 && sum < a:
		return math.MaxInt64
	case b < 0 && sum > a:
		return math.MinInt64
	}
	return sum
}

func subSat(a, b int64) int64 {
	diff := a - b
	switch {
	case b < 0 && diff < a:
		return math.MaxInt64
	case b > 0 && diff > a:
		return math.MinInt64
	}
	return diff
}

// IsWindowError reports whether err came from one of the checks above.
func IsWindowError(err error) bool {
	return errors.Is(err, fault.ErrInvalidTimeWindow)
}
