package agreement

import (
	"sunnyflow/auth"
	"sunnyflow/timewindow"
)

// Threshold separates a sunny day (no customer payout) from a triggering one.
const Threshold = 50

// Record is the persisted agreement. Oracle and Window are copied from the
// deployment settings at creation and never follow later updates.
type Record struct {
	Customer     auth.Identity     `json:"customer"`
	Insurer      auth.Identity     `json:"insurer"`
	Location     string            `json:"location"`
	Timestamp    int64             `json:"timestamp"`
	UTCOffset    int64             `json:"utc_offset"`
	Amount       int64             `json:"amount"`
	Premium      int64             `json:"premium"`
	Fee          int64             `json:"fee"`
	Oracle       auth.Identity     `json:"oracle"`
	Window       timewindow.Window `json:"window"`
	Status       Status            `json:"status"`
	WeatherParam int64             `json:"weather_param"`
	OracleCost   int64             `json:"oracle_cost"`
}

// NetPremium is what reaches the insurer after the fee.
func (r Record) NetPremium() int64 {
	return r.Premium - r.Fee
}

// Sunny reports whether the reported outcome withholds the customer payout.
func (r Record) Sunny() bool {
	return r.WeatherParam >= Threshold
}

// CreateParams are the caller-supplied terms of a new agreement.
type CreateParams struct {
	Key       string
	Customer  auth.Identity
	Insurer   auth.Identity
	Location  string
	Timestamp int64
	UTCOffset int64
	Amount    int64
	Premium   int64
	DappName  string
	Fee       int64
}

// Payout describes the disbursements a claim made.
type Payout struct {
	CustomerPaid bool  `json:"customer_paid"`
	ToInsurer    int64 `json:"to_insurer"`
	ToCustomer   int64 `json:"to_customer"`
	ToOracle     int64 `json:"to_oracle"`
}
