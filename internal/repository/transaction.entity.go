package repository

import (
	"time"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/shopspring/decimal"
)

type TransactionEntity struct {
	ID          int64               `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	Description string              `db:"description"  gorm:"column:description;not null"`
	Code        string              `db:"code"         gorm:"column:code;not null;uniqueIndex"`
	CostCenter  string              `db:"cost_center"  gorm:"column:cost_center;not null;default:Outros"`
	DocumentRef *string             `db:"document_ref" gorm:"column:document_ref"`
	Amount      decimal.Decimal     `db:"amount"       gorm:"column:amount;type:numeric(15,2);not null"`
	Status      string              `db:"status"       gorm:"column:status;not null;default:pending;index"`
	Date        time.Time           `db:"date"         gorm:"column:date;type:date;not null"`
	Balance     decimal.NullDecimal `db:"balance"      gorm:"column:balance;type:numeric(15,2)"`
	CreatedAt   time.Time           `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `db:"updated_at"   gorm:"column:updated_at;autoUpdateTime"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	e := &TransactionEntity{
		ID:          m.ID,
		Description: m.Description,
		Code:        m.Code,
		CostCenter:  m.CostCenter,
		DocumentRef: m.DocumentRef,
		Amount:      m.Amount,
		Status:      string(m.Status),
		Date:        m.Date,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if e.CostCenter == "" {
		e.CostCenter = model.DefaultCostCenter
	}
	if e.Status == "" {
		e.Status = string(model.TransactionStatusPending)
	}
	if m.Balance != nil {
		e.Balance = decimal.NewNullDecimal(*m.Balance)
	}
	return e
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	m := &model.Transaction{
		ID:          e.ID,
		Description: e.Description,
		Code:        e.Code,
		CostCenter:  e.CostCenter,
		DocumentRef: e.DocumentRef,
		Amount:      e.Amount,
		Status:      model.TransactionStatus(e.Status),
		Date:        e.Date,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.Balance.Valid {
		b := e.Balance.Decimal
		m.Balance = &b
	}
	return m
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
