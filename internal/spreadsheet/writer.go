package spreadsheet

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/xuri/excelize/v2"
)

var ErrRowNotFound = errors.New("no spreadsheet row with this code")

// Writer mirrors ledger changes into the workbook at path.
type Writer struct {
	mu    sync.Mutex
	path  string
	sheet string
}

func NewWriter(path, sheet string) *Writer {
	if sheet == "" {
		sheet = "Dados"
	}
	return &Writer{path: path, sheet: sheet}
}

// open loads the workbook or creates one holding only the header row.
func (w *Writer) open() (*excelize.File, string, error) {
	if _, err := os.Stat(w.path); errors.Is(err, os.ErrNotExist) {
		f := excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), w.sheet); err != nil {
			return nil, "", err
		}
		header := make([]interface{}, len(defaultHeaders))
		for i, h := range defaultHeaders {
			header[i] = h
		}
		if err := f.SetSheetRow(w.sheet, "A1", &header); err != nil {
			return nil, "", err
		}
		return f, w.sheet, nil
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, "", fmt.Errorf("open spreadsheet %s: %w", w.path, err)
	}
	return f, pickSheet(f, w.sheet), nil
}

func (w *Writer) layout(f *excelize.File, sheet string) ([][]string, int, columnMap, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, 0, columnMap{}, err
	}
	header, cols, err := detectHeader(rows)
	return rows, header, cols, err
}

func (w *Writer) Append(t *model.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, sheet, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, _, cols, err := w.layout(f, sheet)
	if err != nil {
		return err
	}
	if err := writeRow(f, sheet, len(rows)+1, cols, t); err != nil {
		return err
	}
	return f.SaveAs(w.path)
}

// UpdateByCode rewrites the row whose code cell holds code. Imported rows are
// found by their synthesized LINHA-{row}-{code} form as well.
func (w *Writer) UpdateByCode(code string, t *model.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, sheet, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, header, cols, err := w.layout(f, sheet)
	if err != nil {
		return err
	}
	for i := header + 1; i < len(rows); i++ {
		cell := cols.cell(rows[i], colCode)
		synthesized := fmt.Sprintf("LINHA-%d-%s", i+1, cell)
		if cell == "" {
			synthesized = fmt.Sprintf("LINHA-%d-SEM", i+1)
		}
		if !strings.EqualFold(cell, code) && synthesized != code {
			continue
		}
		if err := writeRow(f, sheet, i+1, cols, t); err != nil {
			return err
		}
		return f.SaveAs(w.path)
	}
	return ErrRowNotFound
}

func writeRow(f *excelize.File, sheet string, row int, cols columnMap, t *model.Transaction) error {
	status := "Pendente"
	if t.Status == model.TransactionStatusPaid {
		status = "Pago"
	}
	values := map[column]interface{}{
		colDescription: t.Description,
		colCostCenter:  t.CostCenter,
		colAmount:      t.Amount.InexactFloat64(),
		colStatus:      status,
		colDate:        formatDate(t.Date),
	}
	// keep the sheet's own code for imported rows
	if !strings.HasPrefix(t.Code, "LINHA-") {
		values[colCode] = t.Code
	}
	if t.DocumentRef != nil {
		values[colDocumentRef] = *t.DocumentRef
	}
	if t.Balance != nil {
		values[colBalance] = t.Balance.InexactFloat64()
	}

	for c, v := range values {
		if !cols.has(c) {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(cols[c]+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
