package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/nimasrn/finance-ledger/pkg/prom"
	"github.com/shopspring/decimal"
)

const (
	OpFromPivot     = "from_pivot"
	OpFromReference = "from_reference"
	OpFullLedger    = "full_ledger"
)

// PersistenceError wraps a failed balance write. Rows written before the
// failure stay as they are until the next resync.
type PersistenceError struct {
	TransactionID int64
	Err           error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist balance of transaction %d: %v", e.TransactionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type Store interface {
	FindAll(ctx context.Context) ([]*model.Transaction, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Recalculator loads the ledger, runs one of the pure passes and persists the
// result. It does no locking of its own: callers serialize ledger writes.
type Recalculator struct {
	store  Store
	policy Policy
}

func NewRecalculator(store Store, policy Policy) *Recalculator {
	return &Recalculator{store: store, policy: policy}
}

func (r *Recalculator) Policy() Policy {
	return r.policy
}

func (r *Recalculator) FromPivot(ctx context.Context, pivotID int64) (int, error) {
	return r.run(ctx, OpFromPivot, func(entries []Entry) (Result, error) {
		return RecalculateFrom(entries, pivotID)
	})
}

func (r *Recalculator) FromReference(ctx context.Context, pivotID int64, explicit decimal.Decimal) (int, error) {
	return r.run(ctx, OpFromReference, func(entries []Entry) (Result, error) {
		res, err := RecalculateFromReference(entries, pivotID, explicit, r.policy)
		if err == nil && res.Inconsistent {
			logger.Warn("explicit balance disagrees with ledger sum",
				"transaction_id", pivotID,
				"explicit", explicit.String(),
				"base_used", res.Base.String(),
				"policy", r.policy.String())
			prom.IncCounterVec(prom.SystemLedger, prom.MetricLedgerInconsistentReferences, r.policy.String())
		}
		return res, err
	})
}

// FullLedger reflows every row, used after deletes and imports.
func (r *Recalculator) FullLedger(ctx context.Context) (int, error) {
	return r.run(ctx, OpFullLedger, func(entries []Entry) (Result, error) {
		return RecalculateAfterDeletion(entries), nil
	})
}

func (r *Recalculator) run(ctx context.Context, op string, pass func([]Entry) (Result, error)) (int, error) {
	start := time.Now()
	written := 0
	err := r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		rows, err := r.store.FindAll(ctx)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		res, err := pass(Entries(rows))
		if err != nil {
			return err
		}
		for _, u := range res.Updates {
			if err := r.store.UpdateBalance(ctx, u.ID, u.Balance); err != nil {
				return &PersistenceError{TransactionID: u.ID, Err: err}
			}
			written++
		}
		logger.Info("ledger balances recalculated",
			"op", op,
			"updated", len(res.Updates),
			"reference_id", res.ReferenceID,
			"base", res.Base.String())
		return nil
	})

	prom.AddHistogramVec(prom.SystemLedger, prom.MetricLedgerRecalculationDuration, time.Since(start).Seconds(), op)
	if err != nil {
		var pErr *PersistenceError
		if errors.As(err, &pErr) {
			logger.Error("ledger recalculation failed while persisting", "op", op, "transaction_id", pErr.TransactionID, "error", pErr.Err)
		} else if !errors.Is(err, ErrNotFound) {
			logger.Error("ledger recalculation failed", "op", op, "error", err)
		}
		prom.IncCounterVec(prom.SystemLedger, prom.MetricLedgerRecalculations, op, "error")
		return 0, err
	}
	prom.IncCounterVec(prom.SystemLedger, prom.MetricLedgerRecalculations, op, "ok")
	prom.AddCounterVec(prom.SystemLedger, prom.MetricLedgerBalanceUpdates, float64(written), op)
	return written, nil
}

// Entries projects ledger rows for the pure passes. rows must be in id order.
func Entries(rows []*model.Transaction) []Entry {
	entries := make([]Entry, len(rows))
	for i, t := range rows {
		entries[i] = Entry{ID: t.ID, Amount: t.Amount, Balance: t.Balance}
	}
	return entries
}
