package agreement

import (
	"fmt"

	"sunnyflow/fault"
)

// Status is the lifecycle stage of an agreement.
type Status string

const (
	StatusInitialized   Status = "initialized"
	StatusResultNoticed Status = "result-noticed"
	StatusClaimed       Status = "claimed"
	StatusRefunded      Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusInitialized:   {StatusResultNoticed, StatusRefunded},
	StatusResultNoticed: {StatusClaimed, StatusRefunded},
}

// Terminal reports whether only deletion can follow s.
func (s Status) Terminal() bool {
	return s == StatusClaimed || s == StatusRefunded
}

func (s Status) Valid() bool {
	switch s {
	case StatusInitialized, StatusResultNoticed, StatusClaimed, StatusRefunded:
		return true
	}
	return false
}

// CanTransition mirrors the lifecycle graph
// initialized -> result-noticed -> {claimed, refunded}, initialized -> refunded.
func (s Status) CanTransition(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func validateTransition(key string, current, next Status) error {
	if !current.CanTransition(next) {
		return fmt.Errorf("agreement: %s: invalid transition %s -> %s: %w", key, current, next, fault.ErrInvalidStatus)
	}
	return nil
}
