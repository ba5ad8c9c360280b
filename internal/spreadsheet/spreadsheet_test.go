package spreadsheet

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixedNow = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

func newTestReader() *Reader {
	return &Reader{now: func() time.Time { return fixedNow }}
}

// buildWorkbook writes rows into sheet starting at A1 and returns the bytes.
func buildWorkbook(t *testing.T, sheet string, rows [][]interface{}) []byte {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName(f.GetSheetName(0), sheet))
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseValue(t *testing.T) {
	cases := map[string]string{
		"R$ 1.234,56": "1234.56",
		"-1.500,00":   "-1500",
		"1.234.567":   "1234567",
		"99.9":        "99.9",
		"-250":        "-250",
	}
	for in, want := range cases {
		got, ok := parseValue(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got.String(), in)
	}

	for _, in := range []string{"", "-", "abc"} {
		_, ok := parseValue(in)
		assert.False(t, ok, in)
	}
}

func TestParseDate(t *testing.T) {
	assert.Equal(t, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), parseDate("05/03/25", fixedNow))
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), parseDate("31/12/2024", fixedNow))
	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), parseDate("2025-01-20", fixedNow))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), parseDate("45658", fixedNow))

	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, today, parseDate("", fixedNow))
	assert.Equal(t, today, parseDate("amanhã", fixedNow))
	assert.Equal(t, today, parseDate("40/40/2025", fixedNow))
}

func TestParsePaid(t *testing.T) {
	for _, s := range []string{"Pago", "PAGO", "sim", "*", "pa"} {
		assert.True(t, parsePaid(s), s)
	}
	for _, s := range []string{"", "não", "pendente"} {
		assert.False(t, parsePaid(s), s)
	}
}

func TestDetectHeader(t *testing.T) {
	rows := [][]string{
		{"Relatório financeiro"},
		{},
		{"Descrição", "Código", "Centro de Custo", "N. DOC", "Valor", "Status", "Data", "Saldo"},
	}
	idx, cols, err := detectHeader(rows)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 0, cols[colDescription])
	assert.Equal(t, 3, cols[colDocumentRef])
	assert.Equal(t, 5, cols[colStatus])
	assert.Equal(t, 7, cols[colBalance])

	_, _, err = detectHeader([][]string{{"Valor", "Data"}})
	assert.ErrorIs(t, err, ErrHeaderNotFound)

	_, _, err = detectHeader([][]string{{"foo"}})
	assert.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestReader_Read(t *testing.T) {
	data := buildWorkbook(t, "Dados", [][]interface{}{
		{"Descrição", "Código", "Centro de Custo", "N.DOC", "Valor", "Pago", "Data", "Saldo"},
		{"Aluguel", "ALG", "Moradia", "NF-1", "-1.500,00", "pago", "05/01/2025", "8.500,00"},
		{"Salário", "", "", "", 10000, "", "2025-01-10", ""},
		{"", "X", "", "", 5, "", "", ""},
		{"Internet", "NET", "", "", "R$ 99,90", "pendente", "", ""},
	})

	rows, err := newTestReader().Read(bytes.NewReader(data), "Dados")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	rent := rows[0]
	assert.Equal(t, 2, rent.Row)
	assert.Equal(t, "LINHA-2-ALG", rent.Code)
	assert.Equal(t, "Moradia", rent.CostCenter)
	assert.Equal(t, "NF-1", *rent.DocumentRef)
	assert.Equal(t, "-1500", rent.Amount.String())
	assert.Equal(t, model.TransactionStatusPaid, rent.Status)
	assert.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), rent.Date)
	require.NotNil(t, rent.Balance)
	assert.Equal(t, "8500", rent.Balance.String())

	salary := rows[1]
	assert.Equal(t, "LINHA-3-SEM", salary.Code)
	assert.Equal(t, model.DefaultCostCenter, salary.CostCenter)
	assert.True(t, salary.Amount.Equal(decimal.NewFromInt(10000)))
	assert.Nil(t, salary.Balance)
	assert.Nil(t, salary.DocumentRef)

	internet := rows[2]
	assert.Equal(t, "LINHA-5-NET", internet.Code)
	assert.Equal(t, "NET", internet.CostCenter)
	assert.Equal(t, "99.9", internet.Amount.String())
	assert.Equal(t, model.TransactionStatusPending, internet.Status)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), internet.Date)
}

func TestReader_FallsBackToFirstSheet(t *testing.T) {
	data := buildWorkbook(t, "Planilha1", [][]interface{}{
		{"Descrição", "Código", "Valor"},
		{"Luz", "L1", "-120"},
	})

	rows, err := newTestReader().Read(bytes.NewReader(data), "Dados")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Luz", rows[0].Description)
}

func TestReader_RejectsLegacyWorkbook(t *testing.T) {
	data := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 64)...)
	_, err := newTestReader().Read(bytes.NewReader(data), "Dados")
	assert.ErrorIs(t, err, ErrLegacyWorkbook)
}

func TestReader_MissingHeaders(t *testing.T) {
	data := buildWorkbook(t, "Dados", [][]interface{}{{"a", "b"}, {"1", "2"}})
	_, err := newTestReader().Read(bytes.NewReader(data), "Dados")
	assert.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestWriter_AppendCreatesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "financeiro.xlsx")
	w := NewWriter(path, "Dados")

	bal := decimal.NewFromInt(400)
	require.NoError(t, w.Append(&model.Transaction{
		Description: "Venda",
		Code:        "V-1",
		CostCenter:  "Comercial",
		Amount:      decimal.NewFromInt(400),
		Status:      model.TransactionStatusPaid,
		Date:        time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		Balance:     &bal,
	}))

	rows, err := newTestReader().ReadFile(path, "Dados")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "LINHA-2-V-1", rows[0].Code)
	assert.Equal(t, "Comercial", rows[0].CostCenter)
	assert.Equal(t, model.TransactionStatusPaid, rows[0].Status)
	assert.Equal(t, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(400)))
}

func TestWriter_UpdateByCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "financeiro.xlsx")
	w := NewWriter(path, "Dados")

	base := &model.Transaction{
		Description: "Conta de água",
		Code:        "AGUA",
		Amount:      decimal.NewFromInt(-80),
		Status:      model.TransactionStatusPending,
		Date:        time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, w.Append(base))

	base.Status = model.TransactionStatusPaid
	require.NoError(t, w.UpdateByCode("AGUA", base))

	// imported rows are addressed by their synthesized code
	base.Description = "Água"
	require.NoError(t, w.UpdateByCode("LINHA-2-AGUA", base))

	rows, err := newTestReader().ReadFile(path, "Dados")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Água", rows[0].Description)
	assert.Equal(t, model.TransactionStatusPaid, rows[0].Status)

	assert.ErrorIs(t, w.UpdateByCode("NOPE", base), ErrRowNotFound)
}
