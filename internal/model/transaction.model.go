package model

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus tells whether a ledger entry was settled.
type TransactionStatus string

const (
	TransactionStatusPaid    TransactionStatus = "paid"
	TransactionStatusPending TransactionStatus = "pending"
)

const DefaultCostCenter = "Outros"

// ParseTransactionStatus accepts the English and Portuguese spellings in any
// case. Empty input means pending.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending", "pendente":
		return TransactionStatusPending, nil
	case "paid", "pago":
		return TransactionStatusPaid, nil
	}
	return "", errors.New("status must be paid or pending")
}

// Transaction is one ledger row. Balance is the running total up to and
// including this row; nil means it was never computed.
type Transaction struct {
	ID          int64             `json:"id"`
	Description string            `json:"description"`
	Code        string            `json:"code"`
	CostCenter  string            `json:"cost_center"`
	DocumentRef *string           `json:"document_ref,omitempty"`
	Amount      decimal.Decimal   `json:"amount"`
	Status      TransactionStatus `json:"status"`
	Date        time.Time         `json:"date"`
	Balance     *decimal.Decimal  `json:"balance"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (t *Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

type TransactionCreateRequest struct {
	Description string
	Code        string
	CostCenter  string
	DocumentRef *string
	Amount      *decimal.Decimal
	Status      string
	Date        time.Time
	Balance     *decimal.Decimal
}

func (p TransactionCreateRequest) Validate() error {
	if strings.TrimSpace(p.Description) == "" {
		return errors.New("description is required")
	}
	if strings.TrimSpace(p.Code) == "" {
		return errors.New("code is required")
	}
	if p.Amount == nil {
		return errors.New("amount is required")
	}
	if p.Date.IsZero() {
		return errors.New("date is required")
	}
	if _, err := ParseTransactionStatus(p.Status); err != nil {
		return err
	}
	return nil
}

// TransactionUpdateRequest is a partial update; nil fields are left alone.
type TransactionUpdateRequest struct {
	Description *string
	CostCenter  *string
	DocumentRef *string
	Amount      *decimal.Decimal
	Status      *string
	Date        *time.Time
	Balance     *decimal.Decimal
}

func (p TransactionUpdateRequest) Validate() error {
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return errors.New("description cannot be empty")
	}
	if p.Status != nil {
		if _, err := ParseTransactionStatus(*p.Status); err != nil {
			return err
		}
	}
	return nil
}

// TransactionPage is one page of the ledger in id order.
type TransactionPage struct {
	Items      []*Transaction `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

// LedgerSummary: Expenses is reported as a positive number.
type LedgerSummary struct {
	Revenue  decimal.Decimal `json:"revenue"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
}

// ImportedTransaction is a spreadsheet row ready to be upserted by code.
type ImportedTransaction struct {
	Row         int
	Description string
	Code        string
	CostCenter  string
	DocumentRef *string
	Amount      decimal.Decimal
	Status      TransactionStatus
	Date        time.Time
	Balance     *decimal.Decimal
}

func (i ImportedTransaction) ToTransaction() *Transaction {
	return &Transaction{
		Description: i.Description,
		Code:        i.Code,
		CostCenter:  i.CostCenter,
		DocumentRef: i.DocumentRef,
		Amount:      i.Amount,
		Status:      i.Status,
		Date:        i.Date,
		Balance:     i.Balance,
	}
}
