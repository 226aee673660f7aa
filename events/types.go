// Package events carries lifecycle notifications out of the settlement core.
// The core decides when to emit and with what payload; delivery belongs to
// whichever Sink the host wires in.
package events

import "time"

// Event names.
const (
	NameAgreement    = "agreement"
	NameResultNotice = "result-notice"
	NamePayOut       = "pay-out"
	NameTransfer     = "transfer"
	NameRefundAll    = "refund-all"
	NameDelete       = "delete"
)

// Event is the envelope every notification travels in.
type Event struct {
	ID        string         `json:"event_id"`
	Name      string         `json:"event_type"`
	Source    string         `json:"source,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func Agreement(key string) Event {
	return Event{Name: NameAgreement, Data: map[string]any{"agreement_key": key}}
}

func ResultNotice(key string, weatherParam, oracleCost int64) Event {
	return Event{Name: NameResultNotice, Data: map[string]any{
		"agreement_key": key,
		"weather_param": weatherParam,
		"oracle_cost":   oracleCost,
	}}
}

func PayOut(key string) Event {
	return Event{Name: NamePayOut, Data: map[string]any{"agreement_key": key}}
}

func Transfer(from, to string, amount int64) Event {
	return Event{Name: NameTransfer, Data: map[string]any{
		"from":   from,
		"to":     to,
		"amount": amount,
	}}
}

func RefundAll(key string) Event {
	return Event{Name: NameRefundAll, Data: map[string]any{"agreement_key": key}}
}

func Delete(key string) Event {
	return Event{Name: NameDelete, Data: map[string]any{"agreement_key": key}}
}
