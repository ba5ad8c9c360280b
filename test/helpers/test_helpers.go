package helpers

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/internal/repository"
	"github.com/nimasrn/finance-ledger/pkg/pg"
	"github.com/nimasrn/finance-ledger/pkg/redis"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var redisSeq atomic.Int64

func SetupTestDB(t *testing.T) *pg.DB {
	return repository.NewTestDB(t)
}

// SetupTestRedis starts miniredis and registers an adapter under a name no
// other test uses, since adapters are cached by name.
func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	name := fmt.Sprintf("test-%d-%d", time.Now().UnixNano(), redisSeq.Add(1))
	adapter, err := redis.NewRedisAdapter(name, "test:", &redis.Options{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	return mr, adapter
}

// Today is the current local calendar date as a UTC date, the way ledger
// dates are stored.
func Today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Decimal(t testing.TB, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// CreateTestTransaction inserts a row directly, bypassing balance
// recalculation.
func CreateTestTransaction(t *testing.T, db *pg.DB, code, amount string, date time.Time, status model.TransactionStatus) *model.Transaction {
	repo := repository.NewTransactionRepository(db)
	txn, err := repo.Create(context.Background(), &model.Transaction{
		Description: "Teste " + code,
		Code:        code,
		CostCenter:  model.DefaultCostCenter,
		Amount:      Decimal(t, amount),
		Status:      status,
		Date:        date,
	})
	require.NoError(t, err)
	return txn
}

// Balances returns the stored balance of every row in ledger order.
func Balances(t *testing.T, db *pg.DB) []string {
	rows, err := repository.NewTransactionRepository(db).FindAll(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Balance == nil {
			out = append(out, "")
			continue
		}
		out = append(out, r.Balance.String())
	}
	return out
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
