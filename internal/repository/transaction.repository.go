package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateCode       = errors.New("transaction code already exists")
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	var n int64
	if err := r.Write(ctx).Model(&TransactionEntity{}).Where("code = ?", txn.Code).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrDuplicateCode
	}

	entity := toTransactionEntity(txn)
	entity.ID = 0
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateCode
		}
		return nil, err
	}

	return toTransactionModel(entity), nil
}

// Save writes every column of an existing row.
func (r *TransactionRepository) Save(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)
	res := r.Write(ctx).Model(&TransactionEntity{}).Where("id = ?", entity.ID).
		Select("description", "cost_center", "document_ref", "amount", "status", "date", "balance", "updated_at").
		Updates(entity)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrTransactionNotFound
	}
	return r.FindByID(ctx, entity.ID)
}

func (r *TransactionRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	res := r.Write(ctx).Model(&TransactionEntity{}).Where("id = ?", id).
		UpdateColumn("balance", decimal.NewNullDecimal(balance))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// UpsertByCode inserts the row or overwrites the one sharing its code.
func (r *TransactionRepository) UpsertByCode(ctx context.Context, txn *model.Transaction) error {
	entity := toTransactionEntity(txn)
	entity.ID = 0
	return r.Write(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "cost_center", "document_ref", "amount", "status", "date", "balance", "updated_at",
		}),
	}).Create(entity).Error
}

func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

func (r *TransactionRepository) FindByCode(ctx context.Context, code string) (*model.Transaction, error) {
	var entity TransactionEntity
	if err := r.Read(ctx).Where("code = ?", code).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// FindAll returns the whole ledger in id order.
func (r *TransactionRepository) FindAll(ctx context.Context) ([]*model.Transaction, error) {
	var entities []*TransactionEntity
	if err := r.Read(ctx).Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toTransactionModels(entities), nil
}

// FindByStatus returns rows with the given status ordered by date, then id.
func (r *TransactionRepository) FindByStatus(ctx context.Context, status model.TransactionStatus) ([]*model.Transaction, error) {
	var entities []*TransactionEntity
	if err := r.Read(ctx).Where("status = ?", string(status)).Order("date ASC, id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toTransactionModels(entities), nil
}

// List pages through the ledger in id order. page starts at 1.
func (r *TransactionRepository) List(ctx context.Context, page, limit int) ([]*model.Transaction, int64, error) {
	q := r.Read(ctx).Model(&TransactionEntity{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	var entities []*TransactionEntity
	if err := q.Order("id ASC").Limit(limit).Offset((page - 1) * limit).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toTransactionModels(entities), total, nil
}

func (r *TransactionRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&TransactionEntity{}).Count(&n).Error
	return n, err
}

func (r *TransactionRepository) Delete(ctx context.Context, id int64) error {
	res := r.Write(ctx).Where("id = ?", id).Delete(&TransactionEntity{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.Write(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&TransactionEntity{})
	return res.RowsAffected, res.Error
}

type summaryRow struct {
	Revenue  decimal.NullDecimal
	Expenses decimal.NullDecimal
	Balance  decimal.NullDecimal
}

// Summary aggregates positive and negative amounts of the whole ledger.
func (r *TransactionRepository) Summary(ctx context.Context) (*model.LedgerSummary, error) {
	var row summaryRow
	err := r.Read(ctx).Model(&TransactionEntity{}).
		Select(`
            SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END)  AS revenue,
            SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END) AS expenses,
            SUM(amount)                                       AS balance
        `).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &model.LedgerSummary{
		Revenue:  row.Revenue.Decimal,
		Expenses: row.Expenses.Decimal,
		Balance:  row.Balance.Decimal,
	}, nil
}
