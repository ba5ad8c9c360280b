// Package ledger keeps the running balance column of the transaction ledger
// consistent with the signed amounts.
//
// The ledger is ordered by id. A stored balance whose magnitude is at most
// Tolerance carries no information: zero cannot be told apart from "never
// set". The recalculation picks the nearest informative balance as the
// reference and walks forward from the pivot, so it is a best-effort
// reconciliation and not a proof of correctness for legacy data.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("transaction not found in ledger")

// Tolerance is the largest magnitude treated as "no balance".
var Tolerance = decimal.New(1, -2)

// Entry is the projection of a ledger row the recalculation needs.
type Entry struct {
	ID      int64
	Amount  decimal.Decimal
	Balance *decimal.Decimal
}

type BalanceUpdate struct {
	ID      int64
	Balance decimal.Decimal
}

// Result of one pass. ReferenceID is zero when the base came from summing
// amounts from the start of the ledger.
type Result struct {
	Updates      []BalanceUpdate
	Base         decimal.Decimal
	ReferenceID  int64
	Inconsistent bool
}

// Policy decides which value wins when an explicit balance disagrees with
// the sum of the amounts before it.
type Policy int

const (
	PreferComputed Policy = iota
	PreferExplicit
)

func ParsePolicy(s string) Policy {
	if s == "explicit" {
		return PreferExplicit
	}
	return PreferComputed
}

func (p Policy) String() string {
	if p == PreferExplicit {
		return "explicit"
	}
	return "computed"
}

func informative(b *decimal.Decimal) bool {
	return b != nil && b.Abs().GreaterThan(Tolerance)
}

func indexOf(entries []Entry, id int64) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}

func sumAmounts(entries []Entry, from, to int) decimal.Decimal {
	total := decimal.Zero
	for i := from; i < to; i++ {
		total = total.Add(entries[i].Amount)
	}
	return total
}

// preBalance is the balance right before entries[r] was applied.
func preBalance(e Entry) decimal.Decimal {
	return e.Balance.Sub(e.Amount)
}

// baseBefore returns the balance immediately before entries[p] and the id of
// the reference it was derived from. A stored balance always includes its own
// row's amount, whichever side of the pivot the reference sits on.
func baseBefore(entries []Entry, p int) (decimal.Decimal, int64) {
	for r := p - 1; r >= 0; r-- {
		if informative(entries[r].Balance) {
			return entries[r].Balance.Add(sumAmounts(entries, r+1, p)), entries[r].ID
		}
	}
	for r := p + 1; r < len(entries); r++ {
		if informative(entries[r].Balance) {
			return preBalance(entries[r]).Sub(sumAmounts(entries, p, r)), entries[r].ID
		}
	}
	return sumAmounts(entries, 0, p), 0
}

func walk(entries []Entry, from int, base decimal.Decimal) []BalanceUpdate {
	updates := make([]BalanceUpdate, 0, len(entries)-from)
	running := base
	for i := from; i < len(entries); i++ {
		running = running.Add(entries[i].Amount)
		updates = append(updates, BalanceUpdate{ID: entries[i].ID, Balance: running})
	}
	return updates
}

// RecalculateFrom recomputes the balance of pivotID and every later entry.
// entries must be sorted by id ascending.
func RecalculateFrom(entries []Entry, pivotID int64) (Result, error) {
	p := indexOf(entries, pivotID)
	if p < 0 {
		return Result{}, ErrNotFound
	}
	base, ref := baseBefore(entries, p)
	return Result{Updates: walk(entries, p, base), Base: base, ReferenceID: ref}, nil
}

// RecalculateFromReference treats explicit as the new balance of pivotID and
// walks forward from it. The explicit value is cross-checked against the sum
// of every amount before the pivot; on disagreement the policy picks the base.
func RecalculateFromReference(entries []Entry, pivotID int64, explicit decimal.Decimal, policy Policy) (Result, error) {
	p := indexOf(entries, pivotID)
	if p < 0 {
		return Result{}, ErrNotFound
	}
	base := explicit.Sub(entries[p].Amount)
	computed := sumAmounts(entries, 0, p)
	res := Result{ReferenceID: pivotID}
	if base.Sub(computed).Abs().GreaterThan(Tolerance) {
		res.Inconsistent = true
		if policy == PreferComputed {
			base = computed
			res.ReferenceID = 0
		}
	}
	res.Base = base
	res.Updates = walk(entries, p, base)
	return res, nil
}

// RecalculateAfterDeletion reflows the whole ledger. The first entry may act
// as its own reference.
func RecalculateAfterDeletion(entries []Entry) Result {
	if len(entries) == 0 {
		return Result{}
	}
	base, ref := decimal.Zero, int64(0)
	for r := range entries {
		if informative(entries[r].Balance) {
			base = preBalance(entries[r]).Sub(sumAmounts(entries, 0, r))
			ref = entries[r].ID
			break
		}
	}
	return Result{Updates: walk(entries, 0, base), Base: base, ReferenceID: ref}
}
