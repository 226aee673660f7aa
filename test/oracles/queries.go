package oracles

import (
	"context"
	"errors"
	"fmt"

	"sunnyflow/agreement"
	"sunnyflow/auth"
	"sunnyflow/engine"
	"sunnyflow/events"
	"sunnyflow/fault"
	"sunnyflow/test/actors"
)

// View is a frozen picture of the world taken between invocations.
type View struct {
	Balances   map[auth.Identity]int64
	Funded     int64
	Agreements map[string]agreement.Record
	Keys       []string
	Events     []events.Event
}

type Oracle struct {
	Name  string
	Check func(View) string
}

func All() []Oracle {
	return []Oracle{
		{Name: "O1_funds_conserved", Check: fundsConserved},
		{Name: "O2_no_negative_balance", Check: noNegativeBalance},
		{Name: "O3_settled_at_most_once", Check: settledAtMostOnce},
		{Name: "O4_status_matches_events", Check: statusMatchesEvents},
		{Name: "O5_delete_after_settlement", Check: deleteAfterSettlement},
		{Name: "O6_created_first", Check: createdFirst},
	}
}

// Collect stops every actor, reads balances and agreements through the
// engine, and copies the recorded events.
func Collect(ctx context.Context, w *actors.World, rec *events.Recorder) (View, error) {
	w.Gate.Lock()
	defer w.Gate.Unlock()

	v := View{
		Balances:   make(map[auth.Identity]int64),
		Funded:     w.Funded(),
		Agreements: make(map[string]agreement.Record),
		Keys:       w.Keys(),
		Events:     rec.Events(),
	}
	for _, id := range w.Identities() {
		res := w.Engine.Execute(ctx, nil, engine.BalanceOf{ID: id})
		if res.Err != nil {
			return View{}, fmt.Errorf("balance of %s: %w", id, res.Err)
		}
		v.Balances[id] = res.Value.(int64)
	}
	for _, key := range v.Keys {
		res := w.Engine.Execute(ctx, nil, engine.AgreementOf{Key: key})
		if errors.Is(res.Err, fault.ErrAgreementNotFound) {
			continue
		}
		if res.Err != nil {
			return View{}, fmt.Errorf("agreement %s: %w", key, res.Err)
		}
		v.Agreements[key] = res.Value.(agreement.Record)
	}
	return v, nil
}

// Run collects a view and returns the first failing oracle with its detail,
// or an empty name when every invariant holds.
func Run(ctx context.Context, w *actors.World, rec *events.Recorder) (string, string, error) {
	v, err := Collect(ctx, w, rec)
	if err != nil {
		return "", "", err
	}
	for _, o := range All() {
		if detail := o.Check(v); detail != "" {
			return o.Name, detail, nil
		}
	}
	return "", "", nil
}

func fundsConserved(v View) string {
	var total int64
	for _, b := range v.Balances {
		total += b
	}
	if total != v.Funded {
		return fmt.Sprintf("balances sum to %d, funded %d", total, v.Funded)
	}
	return ""
}

func noNegativeBalance(v View) string {
	for id, b := range v.Balances {
		if b < 0 {
			return fmt.Sprintf("%s=%d", id, b)
		}
	}
	return ""
}

// history groups agreement event names by key in emission order.
func history(evs []events.Event) map[string][]string {
	out := make(map[string][]string)
	for _, ev := range evs {
		key, ok := ev.Data["agreement_key"].(string)
		if !ok {
			continue
		}
		out[key] = append(out[key], ev.Name)
	}
	return out
}

func count(names []string, want string) int {
	n := 0
	for _, name := range names {
		if name == want {
			n++
		}
	}
	return n
}

func settledAtMostOnce(v View) string {
	for key, names := range history(v.Events) {
		if n := count(names, events.NamePayOut) + count(names, events.NameRefundAll); n > 1 {
			return fmt.Sprintf("%s settled %d times: %v", key, n, names)
		}
	}
	return ""
}

func statusMatchesEvents(v View) string {
	h := history(v.Events)
	for key, rec := range v.Agreements {
		paid := count(h[key], events.NamePayOut) == 1
		refunded := count(h[key], events.NameRefundAll) == 1
		if paid != (rec.Status == agreement.StatusClaimed) || refunded != (rec.Status == agreement.StatusRefunded) {
			return fmt.Sprintf("%s status %s with events %v", key, rec.Status, h[key])
		}
	}
	return ""
}

func deleteAfterSettlement(v View) string {
	for key, names := range history(v.Events) {
		settled := false
		for _, name := range names {
			switch name {
			case events.NamePayOut, events.NameRefundAll:
				settled = true
			case events.NameDelete:
				if !settled {
					return fmt.Sprintf("%s deleted before settlement: %v", key, names)
				}
				if _, live := v.Agreements[key]; live {
					return fmt.Sprintf("%s still readable after delete", key)
				}
			}
		}
	}
	return ""
}

func createdFirst(v View) string {
	for key, names := range history(v.Events) {
		if names[0] != events.NameAgreement {
			return fmt.Sprintf("%s first event is %s", key, names[0])
		}
	}
	return ""
}
