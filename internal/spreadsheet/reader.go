package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/xuri/excelize/v2"
)

var ErrLegacyWorkbook = errors.New("binary .xls workbooks are not supported, save the file as .xlsx")

// compound document signature of pre-2007 workbooks
var xlsMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}

type Reader struct {
	now func() time.Time
}

func NewReader() *Reader {
	return &Reader{now: time.Now}
}

func (r *Reader) ReadFile(path, sheet string) ([]model.ImportedTransaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet %s: %w", path, err)
	}
	defer f.Close()
	return r.Read(f, sheet)
}

// Read parses the workbook. sheet is used when present, otherwise the first
// sheet is read.
func (r *Reader) Read(src io.Reader, sheet string) ([]model.ImportedTransaction, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, xlsMagic) {
		return nil, ErrLegacyWorkbook
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	defer f.Close()

	name := pickSheet(f, sheet)
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}

	header, cols, err := detectHeader(rows)
	if err != nil {
		return nil, err
	}
	logger.Info("spreadsheet header found", "sheet", name, "row", header+1)

	return r.rowsToTransactions(rows, header, cols), nil
}

func pickSheet(f *excelize.File, want string) string {
	sheets := f.GetSheetList()
	for _, s := range sheets {
		if strings.EqualFold(s, want) {
			return s
		}
	}
	if len(sheets) == 0 {
		return want
	}
	return sheets[0]
}

func (r *Reader) rowsToTransactions(rows [][]string, header int, cols columnMap) []model.ImportedTransaction {
	now := r.now()
	out := make([]model.ImportedTransaction, 0, len(rows)-header)
	skipped := 0

	for i := header + 1; i < len(rows); i++ {
		row := rows[i]
		sheetRow := i + 1

		description := cols.cell(row, colDescription)
		if description == "" {
			skipped++
			continue
		}

		rawCode := cols.cell(row, colCode)
		code := fmt.Sprintf("LINHA-%d-%s", sheetRow, rawCode)
		if rawCode == "" {
			code = fmt.Sprintf("LINHA-%d-SEM", sheetRow)
		}

		costCenter := cols.cell(row, colCostCenter)
		if costCenter == "" {
			costCenter = rawCode
		}
		if costCenter == "" {
			costCenter = model.DefaultCostCenter
		}

		amount, _ := parseValue(cols.cell(row, colAmount))

		t := model.ImportedTransaction{
			Row:         sheetRow,
			Description: description,
			Code:        code,
			CostCenter:  costCenter,
			Amount:      amount,
			Status:      model.TransactionStatusPending,
			Date:        parseDate(cols.cell(row, colDate), now),
		}
		if parsePaid(cols.cell(row, colStatus)) {
			t.Status = model.TransactionStatusPaid
		}
		if doc := cols.cell(row, colDocumentRef); doc != "" {
			t.DocumentRef = &doc
		}
		if b, ok := parseValue(cols.cell(row, colBalance)); ok {
			t.Balance = &b
		}
		out = append(out, t)
	}

	logger.Info("spreadsheet rows parsed", "imported", len(out), "skipped", skipped)
	return out
}
