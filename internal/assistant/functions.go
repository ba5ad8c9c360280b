package assistant

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/pkg/brl"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	fnAddTransaction    = "adicionar_transacao"
	fnMarkPaid          = "marcar_como_pago"
	fnRecurring         = "criar_transacao_recorrente"
	fnCreateReminder    = "criar_lembrete"
	fnDeleteTransaction = "excluir_transacao"
	fnProcessReminders  = "processar_lembretes"

	defaultRecurringMonths = 12
	maxCandidates          = 5
)

func (s *Service) execute(ctx context.Context, name string, args map[string]any) string {
	logger.Info("assistant function call", "name", name)
	switch name {
	case fnAddTransaction:
		return s.addTransaction(ctx, args)
	case fnMarkPaid:
		return s.markPaid(ctx, args)
	case fnRecurring:
		return s.createRecurring(ctx, args)
	case fnCreateReminder:
		return s.createReminder(args)
	case fnDeleteTransaction:
		return s.deleteTransaction(ctx, args)
	case fnProcessReminders:
		return s.processReminders(ctx)
	}
	return fmt.Sprintf("Função %s não encontrada.", name)
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func argDecimal(args map[string]any, key string) (decimal.Decimal, bool) {
	switch v := args[key].(type) {
	case float64:
		return decimal.NewFromFloat(v).Round(2), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case string:
		d, err := evalAmount(v)
		return d, err == nil
	}
	return decimal.Zero, false
}

func argDate(args map[string]any, key string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", argString(args, key))
	return t, err == nil
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func statusLabel(st model.TransactionStatus) string {
	if st == model.TransactionStatusPaid {
		return "pago"
	}
	return "pendente"
}

func (s *Service) addTransaction(ctx context.Context, args map[string]any) string {
	value, ok := argDecimal(args, "valor")
	if !ok {
		return "❌ Erro ao adicionar transação: valor inválido"
	}
	date, ok := argDate(args, "data")
	if !ok {
		date = s.today()
	}
	category := argString(args, "categoria")
	if category == "" {
		category = model.DefaultCostCenter
	}

	created, err := s.ledger.Create(ctx, model.TransactionCreateRequest{
		Description: argString(args, "descricao"),
		Code:        fmt.Sprintf("ASSISTENTE-%d-%s", s.now().Unix(), uuid.NewString()[:8]),
		CostCenter:  category,
		Amount:      &value,
		Status:      argString(args, "status"),
		Date:        date,
	})
	if err != nil && created == nil {
		return "❌ Erro ao adicionar transação: " + err.Error()
	}

	reply := fmt.Sprintf("✅ Transação adicionada com sucesso!\n\nDescrição: %s\nValor: %s\nData: %s\nStatus: %s",
		created.Description, brl.Format(created.Amount.Abs()), brl.Date(created.Date), statusLabel(created.Status))
	if created.Balance != nil {
		reply += "\nSaldo: " + brl.Format(*created.Balance)
	}
	return reply
}

func (s *Service) markPaid(ctx context.Context, args map[string]any) string {
	all, err := s.ledger.All(ctx)
	if err != nil {
		return "❌ Erro ao buscar transações: " + err.Error()
	}
	query := argString(args, "descricao")

	pending := filterStatus(all, model.TransactionStatusPending)
	var matching []*model.Transaction
	if code := argString(args, "codigo"); code != "" {
		matching = findByCode(pending, code)
	}
	if len(matching) == 0 {
		matching = match(pending, query)
	}

	if len(matching) == 0 {
		if others := match(all, query); len(others) > 0 {
			statuses := make([]string, len(others))
			for i, t := range others {
				statuses[i] = statusLabel(t.Status)
			}
			return fmt.Sprintf("❌ Encontrada(s) %d transação(ões), mas nenhuma está pendente. Status encontrados: %s",
				len(others), strings.Join(statuses, ", "))
		}
		return fmt.Sprintf("❌ Nenhuma transação pendente encontrada com a descrição \"%s\".\n\nTransações pendentes disponíveis:\n%s",
			query, listDescriptions(pending, false))
	}

	if len(matching) > 1 {
		return fmt.Sprintf("⚠️ Encontradas %d transações pendentes:\n\n%s\n\nPor favor, seja mais específico na descrição.",
			len(matching), listCandidates(matching, false))
	}

	t := matching[0]
	if _, err := s.ledger.MarkPaid(ctx, t.Code); err != nil {
		return "❌ Erro ao marcar como pago: " + err.Error()
	}
	return fmt.Sprintf("✅ Transação \"%s\" marcada como paga!", t.Description)
}

func (s *Service) createRecurring(ctx context.Context, args map[string]any) string {
	value, ok := argDecimal(args, "valor")
	if !ok {
		return "❌ Erro ao criar transações recorrentes: valor inválido"
	}
	months := defaultRecurringMonths
	if n, ok := argDecimal(args, "quantidade_meses"); ok && n.IntPart() > 0 {
		months = int(n.IntPart())
	}
	start, ok := argDate(args, "data_inicio")
	if !ok {
		today := s.today()
		start = time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	}
	description := argString(args, "descricao")
	stamp := s.now().Unix()

	for i := 0; i < months; i++ {
		date := start.AddDate(0, i, 0)
		_, err := s.ledger.Create(ctx, model.TransactionCreateRequest{
			Description: fmt.Sprintf("%s - %s", description, brl.MonthYear(date)),
			Code:        fmt.Sprintf("RECORRENTE-%d-%d", stamp, i),
			CostCenter:  argString(args, "categoria"),
			Amount:      &value,
			Date:        date,
		})
		if err != nil {
			logger.Error("recurring transaction failed", "index", i, "error", err)
			return fmt.Sprintf("❌ Erro ao criar transações recorrentes após %d de %d: %s", i, months, err.Error())
		}
	}

	end := start.AddDate(0, months-1, 0)
	return fmt.Sprintf("✅ Criadas %d transações recorrentes!\n\nDescrição: %s\nValor mensal: %s\nPeríodo: %s até %s",
		months, description, brl.Format(value.Abs()), brl.Date(start), brl.Date(end))
}

func (s *Service) createReminder(args map[string]any) string {
	title := argString(args, "titulo")
	description := argString(args, "descricao")
	date := argString(args, "data")
	logger.Info("assistant reminder noted", "title", title, "description", description, "date", date)

	if d, ok := argDate(args, "data"); ok {
		date = brl.Date(d)
	}
	return fmt.Sprintf("✅ Lembrete criado!\n\nTítulo: %s\nDescrição: %s\nData: %s", title, description, date)
}

func (s *Service) deleteTransaction(ctx context.Context, args map[string]any) string {
	if code := argString(args, "codigo"); code != "" {
		if err := s.ledger.DeleteByCode(ctx, code); err == nil {
			return fmt.Sprintf("✅ Transação com código \"%s\" excluída com sucesso!", code)
		}
	}

	all, err := s.ledger.All(ctx)
	if err != nil {
		return "❌ Erro ao excluir transação: " + err.Error()
	}
	query := argString(args, "descricao")
	matching := match(all, query)

	if len(matching) == 0 {
		return fmt.Sprintf("❌ Nenhuma transação encontrada com a descrição \"%s\".\n\nTransações disponíveis:\n%s",
			query, listDescriptions(all, true))
	}
	if len(matching) > 1 {
		return fmt.Sprintf("⚠️ Encontradas %d transações:\n\n%s\n\nPor favor, seja mais específico na descrição para evitar excluir a transação errada.",
			len(matching), listCandidates(matching, true))
	}

	t := matching[0]
	if err := s.ledger.DeleteByCode(ctx, t.Code); err != nil {
		return "❌ Erro ao excluir transação: " + err.Error()
	}
	return fmt.Sprintf("✅ Transação \"%s\" excluída permanentemente!\n\nValor: %s\nData: %s\n\n⚠️ Os saldos das transações subsequentes foram recalculados automaticamente.",
		t.Description, brl.Format(t.Amount.Abs()), brl.Date(t.Date))
}

func (s *Service) processReminders(ctx context.Context) string {
	if s.reminders == nil {
		return "❌ Lembretes não estão configurados."
	}
	res, err := s.reminders.Process(ctx, true)
	if err != nil {
		return "❌ Erro ao processar lembretes: " + err.Error()
	}

	var b strings.Builder
	b.WriteString("✅ Lembretes processados com sucesso!\n\n")
	fmt.Fprintf(&b, "📊 Transações verificadas: %d\n", res.Processed)
	fmt.Fprintf(&b, "📧 E-mails enviados: %d\n", res.EmailsSent)
	fmt.Fprintf(&b, "📞 Ligações realizadas: %d\n", res.CallsMade)
	if len(res.Errors) > 0 {
		fmt.Fprintf(&b, "\n⚠️ Erros encontrados: %d\n", len(res.Errors))
		for i, e := range res.Errors {
			if i == 3 {
				fmt.Fprintf(&b, "... e mais %d erro(s)\n", len(res.Errors)-3)
				break
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, e)
		}
	}
	if res.Processed == 0 {
		b.WriteString("\nℹ️ Nenhuma transação próxima do vencimento encontrada no momento.")
	}
	return b.String()
}
