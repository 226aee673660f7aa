package ledger

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"sunnyflow/auth"
	"sunnyflow/store"
)

var accounts = []auth.Identity{"owner", "customer", "insurer", "oracle"}

type step struct {
	From, To, Amount int
}

func genStep() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, len(accounts)-1),
		gen.IntRange(0, len(accounts)-1),
		gen.IntRange(-5, 400),
	).Map(func(v []interface{}) step {
		return step{From: v[0].(int), To: v[1].(int), Amount: v[2].(int)}
	})
}

// Property: whatever transfers succeed or fail, the total never changes and
// no stored balance is zero or negative.
func TestTransferConservesTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	everyone := auth.NewSigners(accounts...)

	properties.Property("sum of balances is conserved", prop.ForAll(
		func(seed []int64, steps []step) bool {
			ctx := context.Background()
			mem := store.NewMemory()
			l := New(mem, nil)

			var total int64
			for i, amt := range seed {
				if amt <= 0 {
					continue
				}
				if err := l.Credit(ctx, accounts[i%len(accounts)], amt); err != nil {
					return false
				}
				total += amt
			}

			for _, s := range steps {
				_ = l.Transfer(ctx, everyone, accounts[s.From], accounts[s.To], int64(s.Amount))
			}

			var sum int64
			snap := mem.Snapshot()
			for _, id := range accounts {
				n, err := l.Balance(ctx, id)
				if err != nil || n < 0 {
					return false
				}
				if _, present := snap[string(id)]; present != (n > 0) {
					return false
				}
				sum += n
			}
			return sum == total
		},
		gen.SliceOfN(4, gen.Int64Range(0, 1000)),
		gen.SliceOf(genStep()),
	))

	properties.TestingRun(t)
}

// Property: draining an account to exactly zero leaves no entry behind.
func TestDrainRemovesEntry(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("full drain deletes the sender key", prop.ForAll(
		func(amount int64) bool {
			ctx := context.Background()
			mem := store.NewMemory()
			l := New(mem, nil)
			if err := l.Credit(ctx, "owner", amount); err != nil {
				return false
			}
			if err := l.Disburse(ctx, "owner", "customer", amount); err != nil {
				return false
			}
			_, present := mem.Snapshot()["owner"]
			bal, _ := l.Balance(ctx, "customer")
			return !present && bal == amount
		},
		gen.Int64Range(1, 1_000_000),
	))

	properties.TestingRun(t)
}
