package fixtures

import (
	"testing"
	"time"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// SheetHeader is the header row the spreadsheet reader recognises.
var SheetHeader = []interface{}{"Descrição", "Código", "Centro de Custo", "N.DOC", "Valor", "Pago", "Data", "Saldo"}

// Opening, rent and salary rows of a small ledger. Balances follow the
// order they are created in.
var (
	OpeningBalance = model.TransactionCreateRequest{
		Description: "Saldo inicial",
		Code:        "SALDO-INI",
		CostCenter:  "Caixa",
		Amount:      amount("10000"),
		Status:      "pago",
		Date:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	Rent = model.TransactionCreateRequest{
		Description: "Aluguel escritório",
		Code:        "ALUGUEL-01",
		CostCenter:  "Moradia",
		Amount:      amount("-1500.00"),
		Status:      "pendente",
		Date:        time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
	}

	Salary = model.TransactionCreateRequest{
		Description: "Salário equipe",
		Code:        "SALARIO-01",
		CostCenter:  "Pessoal",
		Amount:      amount("-4200.50"),
		Status:      "pendente",
		Date:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
)

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// PendingExpense builds a pending bill due on date.
func PendingExpense(code, value string, date time.Time) model.TransactionCreateRequest {
	return model.TransactionCreateRequest{
		Description: "Conta " + code,
		Code:        code,
		CostCenter:  "Contas",
		Amount:      amount(value),
		Status:      "pendente",
		Date:        date,
	}
}

// Workbook writes the header and rows into sheet and returns xlsx bytes.
func Workbook(t testing.TB, sheet string, rows [][]interface{}) []byte {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName(f.GetSheetName(0), sheet))

	all := append([][]interface{}{SheetHeader}, rows...)
	for i, r := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}
