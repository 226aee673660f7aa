// Package fault holds the error taxonomy shared by every settlement operation.
//
// Each kind is a sentinel; packages wrap it with context so callers match with
// errors.Is. None of these are fatal: a failure is scoped to one invocation.
package fault

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotDeployed         = errors.New("dapp not deployed")
	ErrInvalidTimeWindow   = errors.New("invalid time window")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrUnknownOperation    = errors.New("unknown operation")
	ErrUnknownTimeVariable = errors.New("unknown time variable")
	ErrBadArguments        = errors.New("bad arguments")
	ErrAgreementNotFound   = errors.New("agreement not found")
)

var kinds = []error{
	ErrUnauthorized,
	ErrNotDeployed,
	ErrInvalidTimeWindow,
	ErrInvalidAmount,
	ErrInvalidStatus,
	ErrInsufficientFunds,
	ErrUnknownOperation,
	ErrUnknownTimeVariable,
	ErrBadArguments,
	ErrAgreementNotFound,
}

// IsDomain reports whether err belongs to the taxonomy. Anything else is an
// infrastructure failure (storage, codec) and aborts the invocation.
func IsDomain(err error) bool {
	return Kind(err) != nil
}

// Kind returns the taxonomy sentinel wrapped by err, or nil.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
