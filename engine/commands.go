package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"sunnyflow/agreement"
	"sunnyflow/auth"
	"sunnyflow/fault"
	"sunnyflow/timewindow"
)

// Operation names accepted by Decode.
const (
	OpDeploy           = "deploy"
	OpName             = "name"
	OpOracle           = "oracle"
	OpTimeMargin       = "time_margin"
	OpMinTime          = "min_time"
	OpMaxTime          = "max_time"
	OpUpdateName       = "updateName"
	OpUpdateOracle     = "updateOracle"
	OpUpdateTimeLimits = "updateTimeLimits"
	OpAgreement        = "agreement"
	OpResultNotice     = "resultNotice"
	OpClaim            = "claim"
	OpTransfer         = "transfer"
	OpRefundAll        = "refundAll"
	OpDeleteAgreement  = "deleteAgreement"
	OpFund             = "fund"
	OpBalanceOf        = "balanceOf"
	OpAgreementOf      = "agreementOf"
)

// Command is one decoded invocation. The set of implementations is closed.
type Command interface {
	Operation() string
	command()
}

type Deploy struct {
	Name       string
	Oracle     auth.Identity
	TimeMargin int64
	MinTime    int64
	MaxTime    int64
	// Fee is accepted for call compatibility and not stored.
	Fee int64
}

// ReadSetting returns one deployment field.
type ReadSetting struct {
	Field string
}

type UpdateName struct{ Name string }

type UpdateOracle struct{ Oracle auth.Identity }

type UpdateTimeLimits struct {
	Variable string
	Value    int64
}

type CreateAgreement struct {
	Params agreement.CreateParams
}

type ResultNotice struct {
	Key          string
	WeatherParam int64
	OracleCost   int64
}

type Claim struct{ Key string }

type Transfer struct {
	From   auth.Identity
	To     auth.Identity
	Amount int64
}

type RefundAll struct{ Key string }

type DeleteAgreement struct{ Key string }

// Fund credits the ledger from outside. Owner only.
type Fund struct {
	To     auth.Identity
	Amount int64
}

type BalanceOf struct{ ID auth.Identity }

type AgreementOf struct{ Key string }

func (Deploy) Operation() string           { return OpDeploy }
func (c ReadSetting) Operation() string    { return c.Field }
func (UpdateName) Operation() string       { return OpUpdateName }
func (UpdateOracle) Operation() string     { return OpUpdateOracle }
func (UpdateTimeLimits) Operation() string { return OpUpdateTimeLimits }
func (CreateAgreement) Operation() string  { return OpAgreement }
func (ResultNotice) Operation() string     { return OpResultNotice }
func (Claim) Operation() string            { return OpClaim }
func (Transfer) Operation() string         { return OpTransfer }
func (RefundAll) Operation() string        { return OpRefundAll }
func (DeleteAgreement) Operation() string  { return OpDeleteAgreement }
func (Fund) Operation() string             { return OpFund }
func (BalanceOf) Operation() string        { return OpBalanceOf }
func (AgreementOf) Operation() string      { return OpAgreementOf }

func (Deploy) command()           {}
func (ReadSetting) command()      {}
func (UpdateName) command()       {}
func (UpdateOracle) command()     {}
func (UpdateTimeLimits) command() {}
func (CreateAgreement) command()  {}
func (ResultNotice) command()     {}
func (Claim) command()            {}
func (Transfer) command()         {}
func (RefundAll) command()        {}
func (DeleteAgreement) command()  {}
func (Fund) command()             {}
func (BalanceOf) command()        {}
func (AgreementOf) command()      {}

var arity = map[string]int{
	OpDeploy:           6,
	OpName:             0,
	OpOracle:           0,
	OpTimeMargin:       0,
	OpMinTime:          0,
	OpMaxTime:          0,
	OpUpdateName:       1,
	OpUpdateOracle:     1,
	OpUpdateTimeLimits: 2,
	OpAgreement:        10,
	OpResultNotice:     3,
	OpClaim:            1,
	OpTransfer:         3,
	OpRefundAll:        1,
	OpDeleteAgreement:  1,
	OpFund:             2,
	OpBalanceOf:        1,
	OpAgreementOf:      1,
}

// Decode turns an operation name and positional arguments into a Command.
// Nothing is read or written, so a rejected call cannot touch state.
func Decode(operation string, args []any) (Command, error) {
	want, ok := arity[operation]
	if !ok {
		return nil, fmt.Errorf("engine: %q: %w", operation, fault.ErrUnknownOperation)
	}
	if len(args) != want {
		return nil, fmt.Errorf("engine: %s takes %d arguments, got %d: %w", operation, want, len(args), fault.ErrBadArguments)
	}

	d := decoder{op: operation, args: args}
	var cmd Command
	switch operation {
	case OpDeploy:
		cmd = Deploy{
			Name:       d.str(0),
			Oracle:     d.id(1),
			TimeMargin: d.num(2),
			MinTime:    d.num(3),
			MaxTime:    d.num(4),
			Fee:        d.num(5),
		}
	case OpName, OpOracle, OpTimeMargin, OpMinTime, OpMaxTime:
		cmd = ReadSetting{Field: operation}
	case OpUpdateName:
		cmd = UpdateName{Name: d.str(0)}
	case OpUpdateOracle:
		cmd = UpdateOracle{Oracle: d.id(0)}
	case OpUpdateTimeLimits:
		cmd = UpdateTimeLimits{Variable: d.str(0), Value: d.num(1)}
	case OpAgreement:
		cmd = CreateAgreement{Params: agreement.CreateParams{
			Key:       d.str(0),
			Customer:  d.id(1),
			Insurer:   d.id(2),
			Location:  d.str(3),
			Timestamp: d.num(4),
			UTCOffset: d.offset(5),
			Amount:    d.num(6),
			Premium:   d.num(7),
			DappName:  d.str(8),
			Fee:       d.num(9),
		}}
	case OpResultNotice:
		cmd = ResultNotice{Key: d.str(0), WeatherParam: d.num(1), OracleCost: d.num(2)}
	case OpClaim:
		cmd = Claim{Key: d.str(0)}
	case OpTransfer:
		cmd = Transfer{From: d.id(0), To: d.id(1), Amount: d.num(2)}
	case OpRefundAll:
		cmd = RefundAll{Key: d.str(0)}
	case OpDeleteAgreement:
		cmd = DeleteAgreement{Key: d.str(0)}
	case OpFund:
		cmd = Fund{To: d.id(0), Amount: d.num(1)}
	case OpBalanceOf:
		cmd = BalanceOf{ID: d.id(0)}
	case OpAgreementOf:
		cmd = AgreementOf{Key: d.str(0)}
	}
	if d.err != nil {
		return nil, d.err
	}
	return cmd, nil
}

// decoder records the first conversion failure and returns zero values after it.
type decoder struct {
	op   string
	args []any
	err  error
}

func (d *decoder) fail(i int, want string) {
	if d.err == nil {
		d.err = fmt.Errorf("engine: %s argument %d: want %s, got %T: %w", d.op, i, want, d.args[i], fault.ErrBadArguments)
	}
}

func (d *decoder) str(i int) string {
	switch v := d.args[i].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case auth.Identity:
		return string(v)
	}
	d.fail(i, "string")
	return ""
}

func (d *decoder) id(i int) auth.Identity {
	return auth.Identity(d.str(i))
}

// offset reads a UTC offset in whole hours.
func (d *decoder) offset(i int) int64 {
	n := d.num(i)
	if d.err == nil && (n < -timewindow.MaxUTCOffset || n > timewindow.MaxUTCOffset) {
		d.err = fmt.Errorf("engine: %s argument %d: utc offset %d outside [-%d, %d]: %w",
			d.op, i, n, timewindow.MaxUTCOffset, timewindow.MaxUTCOffset, fault.ErrBadArguments)
	}
	return n
}

func (d *decoder) num(i int) int64 {
	switch v := d.args[i].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	d.fail(i, "integer")
	return 0
}
