package ledger

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dp(v string) *decimal.Decimal {
	x := decimal.RequireFromString(v)
	return &x
}

func entry(id int64, amount string, balance *decimal.Decimal) Entry {
	return Entry{ID: id, Amount: decimal.RequireFromString(amount), Balance: balance}
}

// apply writes the updates into a copy of entries.
func apply(entries []Entry, updates []BalanceUpdate) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	for _, u := range updates {
		i := indexOf(out, u.ID)
		b := u.Balance
		out[i].Balance = &b
	}
	return out
}

func balances(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		if e.Balance == nil {
			out[i] = "nil"
			continue
		}
		out[i] = e.Balance.String()
	}
	return out
}

func randomLedger(r *rand.Rand, n int, withBalances bool) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		cents := r.Int63n(200000) - 100000
		entries[i] = Entry{ID: int64(i*2 + 1), Amount: decimal.New(cents, -2)}
		if withBalances && r.Intn(3) == 0 {
			b := decimal.New(r.Int63n(500000)+100, -2)
			entries[i].Balance = &b
		}
	}
	return entries
}

func TestRecalculateFrom_NoBalancesSet(t *testing.T) {
	ledger := []Entry{
		entry(1, "100", nil),
		entry(2, "-30", nil),
		entry(3, "50", nil),
	}

	res, err := RecalculateFrom(ledger, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"100", "70", "120"}, balances(apply(ledger, res.Updates)))
	assert.Equal(t, int64(0), res.ReferenceID)
	assert.True(t, res.Base.IsZero())
}

func TestRecalculateFrom_AmountChangedAfterReference(t *testing.T) {
	ledger := []Entry{
		entry(1, "100", nil),
		entry(2, "-30", dp("70")),
		entry(3, "80", dp("120")),
	}

	res, err := RecalculateFrom(ledger, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.ReferenceID)
	assert.Equal(t, "70", res.Base.String())
	require.Len(t, res.Updates, 1)
	assert.Equal(t, []string{"nil", "70", "150"}, balances(apply(ledger, res.Updates)))
}

func TestRecalculateFrom_ReferenceSideDoesNotChangeBase(t *testing.T) {
	before := []Entry{
		entry(1, "100", dp("100")),
		entry(2, "-30", nil),
	}
	res, err := RecalculateFrom(before, 2)
	require.NoError(t, err)
	assert.Equal(t, "100", res.Base.String())
	assert.Equal(t, []string{"100", "70"}, balances(apply(before, res.Updates)))

	after := []Entry{
		entry(1, "100", nil),
		entry(2, "-30", dp("70")),
	}
	res, err = RecalculateFrom(after, 1)
	require.NoError(t, err)
	assert.True(t, res.Base.IsZero())
	assert.Equal(t, []string{"100", "70"}, balances(apply(after, res.Updates)))

	res = RecalculateAfterDeletion(after)
	assert.True(t, res.Base.IsZero())
	assert.Equal(t, []string{"100", "70"}, balances(apply(after, res.Updates)))
}

func TestRecalculateFrom_AppendingKeepsRunningBalance(t *testing.T) {
	var ledger []Entry
	for i, v := range []string{"100", "-30", "50", "-20"} {
		ledger = append(ledger, entry(int64(i+1), v, nil))
		res, err := RecalculateFrom(ledger, int64(i+1))
		require.NoError(t, err)
		ledger = apply(ledger, res.Updates)
	}

	assert.Equal(t, []string{"100", "70", "120", "100"}, balances(ledger))
}

func TestRecalculateFrom_NegligibleBalancesIgnored(t *testing.T) {
	ledger := []Entry{
		entry(1, "-200", dp("0")),
		entry(2, "300", nil),
		entry(3, "-50", dp("0.01")),
	}

	res, err := RecalculateFrom(ledger, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"-200", "100", "50"}, balances(apply(ledger, res.Updates)))
}

func TestRecalculateFrom_SumsAmountsBetweenReferenceAndPivot(t *testing.T) {
	ledger := []Entry{
		entry(1, "100", dp("1100")),
		entry(2, "-30", nil),
		entry(3, "10", nil),
		entry(4, "5", nil),
	}

	res, err := RecalculateFrom(ledger, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.ReferenceID)
	assert.Equal(t, "1070", res.Base.String())
	assert.Equal(t, []string{"1100", "nil", "1080", "1085"}, balances(apply(ledger, res.Updates)))
}

func TestRecalculateFrom_FallsBackToLaterReference(t *testing.T) {
	ledger := []Entry{
		entry(1, "100", nil),
		entry(2, "-30", nil),
		entry(3, "50", dp("620")),
	}

	res, err := RecalculateFrom(ledger, 1)
	require.NoError(t, err)

	// 620 - 50 is the balance before id 3; back out ids 1 and 2 from there
	assert.Equal(t, int64(3), res.ReferenceID)
	assert.Equal(t, "500", res.Base.String())
	assert.Equal(t, []string{"600", "570", "620"}, balances(apply(ledger, res.Updates)))
}

func TestRecalculateFrom_UnknownPivot(t *testing.T) {
	_, err := RecalculateFrom([]Entry{entry(1, "10", nil)}, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = RecalculateFrom(nil, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecalculateAfterDeletion_ReflowsFromFirstReference(t *testing.T) {
	// id 2 was deleted from [{1,100,100},{2,-30,70},{3,50,120}]
	ledger := []Entry{
		entry(1, "100", dp("100")),
		entry(3, "50", dp("120")),
	}

	res := RecalculateAfterDeletion(ledger)

	assert.Equal(t, int64(1), res.ReferenceID)
	assert.Equal(t, []string{"100", "150"}, balances(apply(ledger, res.Updates)))
}

func TestRecalculateAfterDeletion_ReferenceLaterInLedger(t *testing.T) {
	ledger := []Entry{
		entry(1, "100", nil),
		entry(2, "20", nil),
		entry(4, "-10", dp("1110")),
	}

	res := RecalculateAfterDeletion(ledger)

	assert.Equal(t, "1000", res.Base.String())
	assert.Equal(t, []string{"1100", "1120", "1110"}, balances(apply(ledger, res.Updates)))
}

func TestRecalculateAfterDeletion_Empty(t *testing.T) {
	res := RecalculateAfterDeletion(nil)
	assert.Empty(t, res.Updates)
	assert.True(t, res.Base.IsZero())
}

func TestRecalculateFromReference_DiscardsInconsistentExplicitBalance(t *testing.T) {
	ledger := []Entry{
		entry(1, "100", dp("100")),
		entry(3, "50", dp("150")),
	}

	res, err := RecalculateFromReference(ledger, 3, decimal.NewFromInt(999), PreferComputed)
	require.NoError(t, err)

	assert.True(t, res.Inconsistent)
	assert.Equal(t, int64(0), res.ReferenceID)
	assert.Equal(t, []string{"100", "150"}, balances(apply(ledger, res.Updates)))
}

func TestRecalculateFromReference_KeepsExplicitBalanceWhenPreferred(t *testing.T) {
	ledger := []Entry{
		entry(1, "100", dp("100")),
		entry(3, "50", dp("150")),
		entry(4, "-9", nil),
	}

	res, err := RecalculateFromReference(ledger, 3, decimal.NewFromInt(999), PreferExplicit)
	require.NoError(t, err)

	assert.True(t, res.Inconsistent)
	assert.Equal(t, int64(3), res.ReferenceID)
	assert.Equal(t, []string{"100", "999", "990"}, balances(apply(ledger, res.Updates)))
}

func TestRecalculateFromReference_ConsistentWithinTolerance(t *testing.T) {
	ledger := []Entry{
		entry(1, "100", nil),
		entry(2, "50", nil),
	}

	res, err := RecalculateFromReference(ledger, 2, decimal.RequireFromString("150.01"), PreferComputed)
	require.NoError(t, err)

	assert.False(t, res.Inconsistent)
	assert.Equal(t, []string{"nil", "150.01"}, balances(apply(ledger, res.Updates)))
}

func TestRecalculateFromReference_UnknownPivot(t *testing.T) {
	_, err := RecalculateFromReference([]Entry{entry(1, "1", nil)}, 7, decimal.Zero, PreferComputed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, PreferExplicit, ParsePolicy("explicit"))
	assert.Equal(t, PreferComputed, ParsePolicy("computed"))
	assert.Equal(t, PreferComputed, ParsePolicy(""))
	assert.Equal(t, "explicit", PreferExplicit.String())
	assert.Equal(t, "computed", PreferComputed.String())
}

func TestRecalculateFrom_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		n := r.Intn(12) + 1
		ledger := randomLedger(r, n, true)
		pivot := ledger[r.Intn(n)].ID
		p := indexOf(ledger, pivot)

		first, err := RecalculateFrom(ledger, pivot)
		require.NoError(t, err)
		after := apply(ledger, first.Updates)

		for i := p; i < n; i++ {
			prev := first.Base
			if i > p {
				prev = *after[i-1].Balance
			}
			require.True(t, after[i].Balance.Equal(prev.Add(after[i].Amount)), "round %d row %d", round, i)
		}

		for i := 0; i < p; i++ {
			assert.Equal(t, ledger[i].Balance, after[i].Balance, "round %d row %d", round, i)
		}
		if p > 0 && informative(ledger[p-1].Balance) {
			require.True(t, first.Base.Equal(*ledger[p-1].Balance), "round %d", round)
		}

		second, err := RecalculateFrom(after, pivot)
		require.NoError(t, err)
		assert.Equal(t, balances(after), balances(apply(after, second.Updates)), "round %d", round)
	}
}

func TestRecalculateFrom_WithoutReferencesMatchesPlainSum(t *testing.T) {
	r := rand.New(rand.NewSource(11))

	for round := 0; round < 100; round++ {
		n := r.Intn(10) + 1
		ledger := randomLedger(r, n, false)
		p := r.Intn(n)

		res, err := RecalculateFrom(ledger, ledger[p].ID)
		require.NoError(t, err)
		after := apply(ledger, res.Updates)

		running := decimal.Zero
		for i := range ledger {
			running = running.Add(ledger[i].Amount)
			if i >= p {
				require.True(t, after[i].Balance.Equal(running), "round %d row %d", round, i)
			}
		}
	}
}

func TestRecalculateAfterDeletion_ReflowMatchesPlainSum(t *testing.T) {
	r := rand.New(rand.NewSource(3))

	for round := 0; round < 100; round++ {
		n := r.Intn(10) + 2
		ledger := randomLedger(r, n, false)
		k := r.Intn(n)
		remaining := append(append([]Entry{}, ledger[:k]...), ledger[k+1:]...)

		after := apply(remaining, RecalculateAfterDeletion(remaining).Updates)

		require.Len(t, after, n-1)
		running := decimal.Zero
		for i := range after {
			running = running.Add(after[i].Amount)
			require.True(t, after[i].Balance.Equal(running), "round %d row %d", round, i)
		}
	}
}
