package assistant

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/pkg/brl"
)

// match finds transactions whose description contains every keyword longer
// than two characters, or the whole query, or whose code equals the query.
func match(items []*model.Transaction, query string) []*model.Transaction {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var keywords []string
	for _, w := range strings.Fields(q) {
		if utf8.RuneCountInString(w) > 2 {
			keywords = append(keywords, w)
		}
	}

	var out []*model.Transaction
	for _, t := range items {
		desc := strings.ToLower(t.Description)
		if strings.Contains(desc, q) || strings.EqualFold(t.Code, q) || containsAll(desc, keywords) {
			out = append(out, t)
		}
	}
	return out
}

func containsAll(s string, words []string) bool {
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

func findByCode(items []*model.Transaction, code string) []*model.Transaction {
	for _, t := range items {
		if strings.EqualFold(t.Code, code) {
			return []*model.Transaction{t}
		}
	}
	return nil
}

func filterStatus(items []*model.Transaction, status model.TransactionStatus) []*model.Transaction {
	var out []*model.Transaction
	for _, t := range items {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func listDescriptions(items []*model.Transaction, withDate bool) string {
	if len(items) == 0 {
		return "Nenhuma"
	}
	lines := make([]string, 0, maxCandidates)
	for i, t := range items {
		if i == maxCandidates {
			break
		}
		line := "- " + t.Description
		if withDate {
			line += " (" + brl.Date(t.Date) + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func listCandidates(items []*model.Transaction, withAmount bool) string {
	lines := make([]string, 0, maxCandidates)
	for i, t := range items {
		if i == maxCandidates {
			lines = append(lines, fmt.Sprintf("... e mais %d", len(items)-maxCandidates))
			break
		}
		line := fmt.Sprintf("%d. %s (%s)", i+1, t.Description, brl.Date(t.Date))
		if withAmount {
			line += " - " + brl.Format(t.Amount.Abs())
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
