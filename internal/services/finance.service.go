package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/internal/repository"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/nimasrn/finance-ledger/pkg/prom"
	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrDuplicateCode            = errors.New("a transaction with this code already exists")
	ErrUnsupportedFile          = errors.New("only .xlsx and .xls files are accepted")
	ErrSpreadsheetNotConfigured = errors.New("spreadsheet path is not configured")
)

// ValidationError is a request the service refuses to apply.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	Save(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	FindByID(ctx context.Context, id int64) (*model.Transaction, error)
	FindByCode(ctx context.Context, code string) (*model.Transaction, error)
	FindAll(ctx context.Context) ([]*model.Transaction, error)
	FindByStatus(ctx context.Context, status model.TransactionStatus) ([]*model.Transaction, error)
	List(ctx context.Context, page, limit int) ([]*model.Transaction, int64, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)
	UpsertByCode(ctx context.Context, txn *model.Transaction) error
	Summary(ctx context.Context) (*model.LedgerSummary, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type BalanceRecalculator interface {
	FromPivot(ctx context.Context, pivotID int64) (int, error)
	FromReference(ctx context.Context, pivotID int64, explicit decimal.Decimal) (int, error)
	FullLedger(ctx context.Context) (int, error)
}

type SheetReader interface {
	Read(r io.Reader, sheet string) ([]model.ImportedTransaction, error)
	ReadFile(path, sheet string) ([]model.ImportedTransaction, error)
}

type SheetWriter interface {
	Append(t *model.Transaction) error
	UpdateByCode(code string, t *model.Transaction) error
}

type FinanceOptions struct {
	DefaultPageLimit int
	SheetPath        string
	SheetName        string
}

// FinanceService owns every ledger mutation. All of them run under one lock
// so the recalculator always sees a stable snapshot.
type FinanceService struct {
	mu     sync.Mutex
	repo   TransactionRepository
	recalc BalanceRecalculator
	reader SheetReader
	writer SheetWriter
	opts   FinanceOptions
	now    func() time.Time
}

// NewFinanceService builds the service. writer may be nil to disable
// spreadsheet writeback.
func NewFinanceService(repo TransactionRepository, recalc BalanceRecalculator, reader SheetReader, writer SheetWriter, opts FinanceOptions) *FinanceService {
	if opts.DefaultPageLimit <= 0 {
		opts.DefaultPageLimit = 5000
	}
	return &FinanceService{
		repo:   repo,
		recalc: recalc,
		reader: reader,
		writer: writer,
		opts:   opts,
		now:    time.Now,
	}
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrTransactionNotFound):
		return ErrTransactionNotFound
	case errors.Is(err, repository.ErrDuplicateCode):
		return ErrDuplicateCode
	}
	return err
}

func (s *FinanceService) Create(ctx context.Context, p model.TransactionCreateRequest) (*model.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}
	status, _ := model.ParseTransactionStatus(p.Status)

	t := &model.Transaction{
		Description: strings.TrimSpace(p.Description),
		Code:        strings.TrimSpace(p.Code),
		CostCenter:  strings.TrimSpace(p.CostCenter),
		DocumentRef: p.DocumentRef,
		Amount:      *p.Amount,
		Status:      status,
		Date:        p.Date,
		Balance:     p.Balance,
	}
	if t.CostCenter == "" {
		t.CostCenter = model.DefaultCostCenter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	if p.Balance != nil {
		_, err = s.recalc.FromReference(ctx, created.ID, *p.Balance)
	} else {
		_, err = s.recalc.FromPivot(ctx, created.ID)
	}
	if err != nil {
		return created, fmt.Errorf("transaction %s saved but balances were not recalculated: %w", created.Code, err)
	}

	created, err = s.repo.FindByID(ctx, created.ID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	s.writeback(func(w SheetWriter) error { return w.Append(created) }, created.Code)
	return created, nil
}

func (s *FinanceService) Update(ctx context.Context, code string, p model.TransactionUpdateRequest) (*model.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	amountChanged := p.Amount != nil && !p.Amount.Equal(t.Amount)
	dateChanged := p.Date != nil && !p.Date.Equal(t.Date)
	balanceChanged := p.Balance != nil && (t.Balance == nil || !p.Balance.Equal(*t.Balance))

	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.CostCenter != nil {
		t.CostCenter = strings.TrimSpace(*p.CostCenter)
		if t.CostCenter == "" {
			t.CostCenter = model.DefaultCostCenter
		}
	}
	if p.DocumentRef != nil {
		t.DocumentRef = p.DocumentRef
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Status != nil {
		t.Status, _ = model.ParseTransactionStatus(*p.Status)
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Balance != nil {
		b := *p.Balance
		t.Balance = &b
	}

	saved, err := s.repo.Save(ctx, t)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	if amountChanged || dateChanged || balanceChanged {
		if balanceChanged {
			_, err = s.recalc.FromReference(ctx, saved.ID, *p.Balance)
		} else {
			_, err = s.recalc.FromPivot(ctx, saved.ID)
		}
		if err != nil {
			return saved, fmt.Errorf("transaction %s saved but balances were not recalculated: %w", saved.Code, err)
		}
		if saved, err = s.repo.FindByID(ctx, saved.ID); err != nil {
			return nil, mapRepoErr(err)
		}
	}

	s.writeback(func(w SheetWriter) error { return w.UpdateByCode(code, saved) }, code)
	return saved, nil
}

// MarkPaid settles a transaction. Balances do not depend on status.
func (s *FinanceService) MarkPaid(ctx context.Context, code string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if t.Status == model.TransactionStatusPaid {
		return t, nil
	}
	t.Status = model.TransactionStatusPaid
	saved, err := s.repo.Save(ctx, t)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	s.writeback(func(w SheetWriter) error { return w.UpdateByCode(code, saved) }, code)
	return saved, nil
}

func (s *FinanceService) DeleteByCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return mapRepoErr(err)
	}
	return s.delete(ctx, t.ID)
}

func (s *FinanceService) DeleteByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(ctx, id)
}

func (s *FinanceService) delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoErr(err)
	}
	remaining, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	if remaining == 0 {
		return nil
	}
	if _, err := s.recalc.FullLedger(ctx); err != nil {
		return fmt.Errorf("transaction %d deleted but balances were not recalculated: %w", id, err)
	}
	return nil
}

func (s *FinanceService) List(ctx context.Context, page, limit int) (*model.TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.opts.DefaultPageLimit
	}
	items, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.Transaction{}
	}
	return &model.TransactionPage{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (s *FinanceService) Summary(ctx context.Context) (*model.LedgerSummary, error) {
	return s.repo.Summary(ctx)
}

func (s *FinanceService) Get(ctx context.Context, id int64) (*model.Transaction, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return t, nil
}

func (s *FinanceService) Pending(ctx context.Context) ([]*model.Transaction, error) {
	return s.repo.FindByStatus(ctx, model.TransactionStatusPending)
}

func (s *FinanceService) All(ctx context.Context) ([]*model.Transaction, error) {
	return s.repo.FindAll(ctx)
}

// Sync reloads the ledger from the configured spreadsheet.
func (s *FinanceService) Sync(ctx context.Context) (int, error) {
	if s.opts.SheetPath == "" {
		return 0, ErrSpreadsheetNotConfigured
	}
	rows, err := s.reader.ReadFile(s.opts.SheetPath, s.opts.SheetName)
	if err != nil {
		return 0, err
	}
	return s.replaceLedger(ctx, rows, "sync")
}

// Import replaces the ledger with the rows of an uploaded workbook.
func (s *FinanceService) Import(ctx context.Context, r io.Reader, filename string) (int, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".xlsx" && ext != ".xls" {
		return 0, ErrUnsupportedFile
	}
	rows, err := s.reader.Read(r, s.opts.SheetName)
	if err != nil {
		return 0, &ValidationError{Err: err}
	}
	return s.replaceLedger(ctx, rows, "upload")
}

func (s *FinanceService) replaceLedger(ctx context.Context, rows []model.ImportedTransaction, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	var stored int64
	err := s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		deleted, err := s.repo.DeleteAll(ctx)
		if err != nil {
			return fmt.Errorf("clear ledger: %w", err)
		}
		for _, row := range rows {
			if err := s.repo.UpsertByCode(ctx, row.ToTransaction()); err != nil {
				return fmt.Errorf("import row %d: %w", row.Row, err)
			}
		}
		// rows sharing a code collapse into one
		if stored, err = s.repo.Count(ctx); err != nil {
			return fmt.Errorf("count imported rows: %w", err)
		}
		logger.Info("ledger replaced", "source", source, "deleted", deleted, "rows", len(rows), "stored", stored, "merged", int64(len(rows))-stored)
		if stored == 0 {
			return nil
		}
		_, err = s.recalc.FullLedger(ctx)
		return err
	})
	if err != nil {
		logger.Error("ledger import failed", "source", source, "error", err)
		return 0, err
	}

	prom.AddCounterVec(prom.SystemLedger, prom.MetricLedgerImportedRows, float64(stored), source)
	logger.Info("ledger import finished", "source", source, "stored", stored, "took", time.Since(start).String())
	return int(stored), nil
}

// writeback mirrors a mutation into the spreadsheet without blocking the
// caller. Failures are only logged.
func (s *FinanceService) writeback(fn func(w SheetWriter) error, code string) {
	if s.writer == nil {
		return
	}
	go func() {
		if err := fn(s.writer); err != nil {
			logger.Warn("spreadsheet writeback failed", "code", code, "error", err)
		}
	}()
}
