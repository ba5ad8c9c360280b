package assistant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/shopspring/decimal"
)

var (
	addPattern       = regexp.MustCompile(`(?i)adicionar\s+(despesa|receita)\s+(.+?)\s*:\s*(.+?)\s*(?:reais|real|r\$)?\s*$`)
	markPaidPattern  = regexp.MustCompile(`(?i)marcar\s+(.+?)\s+como\s+pag[oa]`)
	deletePattern    = regexp.MustCompile(`(?i)(?:excluir|deletar|remover)\s+(?:transa[çc][ãa]o|despesa|receita)\s+(.+)$`)
	remindersPattern = regexp.MustCompile(`(?i)(?:(?:enviar|processar|mandar)\s+lembretes?|lembretes?\s+(?:agora|já|imediato|imediatamente))`)

	numberToken = regexp.MustCompile(`[\d.,]+`)
	allowedExpr = regexp.MustCompile(`^[\d.+\-*/() ]+$`)
)

var errBadAmount = errors.New("invalid amount")

// tryDirectCommand runs the fixed command patterns. ok is false when the
// message matches none of them.
func (s *Service) tryDirectCommand(ctx context.Context, message string) (string, bool) {
	if m := addPattern.FindStringSubmatch(message); m != nil {
		value, err := evalAmount(m[3])
		if err == nil {
			if strings.EqualFold(m[1], "despesa") {
				value = value.Abs().Neg()
			} else {
				value = value.Abs()
			}
			return s.addTransaction(ctx, map[string]any{
				"descricao": strings.TrimSpace(m[2]),
				"valor":     value.InexactFloat64(),
				"categoria": "Outros",
			}), true
		}
	}

	if m := markPaidPattern.FindStringSubmatch(message); m != nil {
		return s.markPaid(ctx, map[string]any{"descricao": strings.TrimSpace(m[1])}), true
	}

	if m := deletePattern.FindStringSubmatch(message); m != nil {
		return s.deleteTransaction(ctx, map[string]any{"descricao": strings.TrimSpace(m[1])}), true
	}

	if remindersPattern.MatchString(message) {
		return s.processReminders(ctx), true
	}

	return "", false
}

// normalizeNumber rewrites one Brazilian formatted number ("1.234,56") into
// a plain decimal literal.
func normalizeNumber(tok string) string {
	if strings.Contains(tok, ",") {
		tok = strings.ReplaceAll(tok, ".", "")
		return strings.Replace(tok, ",", ".", 1)
	}
	if strings.Count(tok, ".") > 1 {
		return strings.ReplaceAll(tok, ".", "")
	}
	return tok
}

// evalAmount evaluates an arithmetic amount such as "1.200,50 + 300" or
// "3*49,90".
func evalAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.NewReplacer("R$", "", "r$", "").Replace(s))
	s = numberToken.ReplaceAllStringFunc(s, normalizeNumber)
	if s == "" || !allowedExpr.MatchString(s) {
		return decimal.Zero, errBadAmount
	}

	prog, err := expr.Compile(s, expr.AsFloat64())
	if err != nil {
		return decimal.Zero, fmt.Errorf("compile: %w", err)
	}
	out, err := expr.Run(prog, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("run: %w", err)
	}
	v, ok := out.(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, errBadAmount
	}
	return decimal.NewFromFloat(v).Round(2), nil
}
