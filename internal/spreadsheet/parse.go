// Package spreadsheet reads and writes the finance workbook the ledger is
// synchronized with.
package spreadsheet

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var ErrHeaderNotFound = errors.New("could not find the description and code headers in the first 10 rows")

const headerSearchRows = 10

type column int

const (
	colDescription column = iota
	colCode
	colCostCenter
	colDocumentRef
	colAmount
	colStatus
	colDate
	colBalance
	columnCount
)

// headers written when a workbook is created
var defaultHeaders = [columnCount]string{"Descrição", "Código", "Centro de Custo", "N.DOC", "Valor", "Pago", "Data", "Saldo"}

// columnMap holds the zero based index of each known column, -1 when absent.
type columnMap [columnCount]int

func (m columnMap) has(c column) bool {
	return m[c] >= 0
}

func (m columnMap) cell(row []string, c column) string {
	if !m.has(c) || m[c] >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[m[c]])
}

func matchHeader(text string) (column, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case t == "":
		return 0, false
	case strings.Contains(t, "descrição") || strings.Contains(t, "descricao"):
		return colDescription, true
	case strings.Contains(t, "código") || strings.Contains(t, "codigo"):
		return colCode, true
	case strings.Contains(t, "centro de custo"):
		return colCostCenter, true
	case strings.Contains(t, "n.doc") || strings.Contains(t, "ndoc") || strings.Contains(t, "n. doc"):
		return colDocumentRef, true
	case t == "valor":
		return colAmount, true
	case t == "pago" || t == "pa" || strings.Contains(t, "status"):
		return colStatus, true
	case t == "data":
		return colDate, true
	case t == "saldo":
		return colBalance, true
	}
	return 0, false
}

// detectHeader returns the index of the header row and its column map. A
// header row matches at least two known headers.
func detectHeader(rows [][]string) (int, columnMap, error) {
	for i := 0; i < len(rows) && i < headerSearchRows; i++ {
		var m columnMap
		for c := range m {
			m[c] = -1
		}
		found := 0
		for j, text := range rows[i] {
			c, ok := matchHeader(text)
			if !ok || m.has(c) {
				continue
			}
			m[c] = j
			found++
		}
		if found < 2 {
			continue
		}
		if !m.has(colDescription) || !m.has(colCode) {
			return 0, m, ErrHeaderNotFound
		}
		return i, m, nil
	}
	return 0, columnMap{}, ErrHeaderNotFound
}

// parseValue reads amounts written either as plain numbers or in Brazilian
// format ("R$ 1.234,56"). ok is false when nothing numeric remains.
func parseValue(s string) (decimal.Decimal, bool) {
	cleaned := strings.NewReplacer("R$", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, false
	}
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else if strings.Count(cleaned, ".") > 1 {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// parseDate accepts DD/MM/YY, DD/MM/YYYY, ISO dates and Excel serial
// numbers. Anything else falls back to today.
func parseDate(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if s == "" {
		return today
	}

	if parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '-' || r == '.' }); len(parts) == 3 && len(parts[0]) <= 2 {
		day, err1 := strconv.Atoi(parts[0])
		month, err2 := strconv.Atoi(parts[1])
		year, err3 := strconv.Atoi(strings.TrimSpace(strings.SplitN(strings.TrimSpace(parts[2]), " ", 2)[0]))
		if err1 == nil && err2 == nil && err3 == nil {
			if year < 100 {
				year += 2000
			}
			if day >= 1 && day <= 31 && month >= 1 && month <= 12 && year >= 2000 && year <= 2100 {
				return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			}
		}
	}

	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}

	return today
}

func parsePaid(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	return strings.Contains(t, "pago") || t == "sim" || t == "*" || t == "pa"
}

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}
