package services

import (
	"bytes"
	"fmt"
	"html/template"

	gateway "github.com/nimasrn/finance-ledger/internal/gateways"
	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/pkg/brl"
)

const brandName = "Sistema Financeiro"

var reminderHTML = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #667eea; color: white; padding: 20px; border-radius: 8px 8px 0 0; }
    .content { background: #f9f9f9; padding: 20px; border-radius: 0 0 8px 8px; }
    .detail { background: white; padding: 15px; margin: 15px 0; border-left: 4px solid #667eea; }
    .value { font-size: 24px; font-weight: bold; color: #e74c3c; }
    .footer { text-align: center; margin-top: 20px; color: #666; font-size: 12px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>🔔 Lembrete de Pagamento</h1>
      <p>{{.Brand}}</p>
    </div>
    <div class="content">
      <h2>{{.Title}}</h2>
      <div class="detail">
        <p><strong>Descrição:</strong> {{.Description}}</p>
        <p><strong>Valor:</strong> <span class="value">{{.Amount}}</span></p>
        <p><strong>Data de Vencimento:</strong> {{.DueDate}}</p>
        <p><strong>Dias Restantes:</strong> {{if .DueToday}}<span style="color: red; font-weight: bold;">VENCE HOJE!</span>{{else}}{{.DaysLeft}}{{end}}</p>
      </div>
      {{if .DueToday}}<p style="background: #fee; padding: 15px; border-left: 4px solid #e74c3c;"><strong>⚠️ ATENÇÃO:</strong> Este pagamento vence HOJE! Por favor, efetue o pagamento o quanto antes.</p>{{end}}
      <p>Este é um lembrete automático do {{.Brand}}.</p>
    </div>
    <div class="footer">
      <p>Este e-mail foi enviado automaticamente. Por favor, não responda.</p>
    </div>
  </div>
</body>
</html>
`))

type reminderView struct {
	Brand       string
	Title       string
	Description string
	Amount      string
	DueDate     string
	DaysLeft    int
	DueToday    bool
}

func reminderSubject(item model.UpcomingTransaction) string {
	desc := item.Transaction.Description
	switch item.DaysLeft {
	case 0:
		return "⚠️ URGENTE: Pagamento vence HOJE - " + desc
	case 1:
		return "⚠️ Pagamento vence AMANHÃ - " + desc
	}
	return fmt.Sprintf("📅 Lembrete: Pagamento vence em %d dias - %s", item.DaysLeft, desc)
}

func composeReminderEmail(to string, item model.UpcomingTransaction) (gateway.MailMessage, error) {
	view := reminderView{
		Brand:       brandName,
		Title:       reminderSubject(item),
		Description: item.Transaction.Description,
		Amount:      brl.Format(item.AbsAmount()),
		DueDate:     brl.Date(item.DueDate),
		DaysLeft:    item.DaysLeft,
		DueToday:    item.DaysLeft == 0,
	}

	var html bytes.Buffer
	if err := reminderHTML.Execute(&html, view); err != nil {
		return gateway.MailMessage{}, fmt.Errorf("render reminder email: %w", err)
	}

	text := fmt.Sprintf("%s\n\nDescrição: %s\nValor: %s\nData de Vencimento: %s\n",
		view.Title, view.Description, view.Amount, view.DueDate)
	if view.DueToday {
		text += "\nATENÇÃO: Este pagamento vence HOJE! Por favor, efetue o pagamento o quanto antes.\n"
	}
	text += "\nEste é um lembrete automático do " + brandName + "."

	return gateway.MailMessage{
		To:      to,
		Subject: view.Title,
		Text:    text,
		HTML:    html.String(),
	}, nil
}

func callMessage(item model.UpcomingTransaction) string {
	amount := brl.Format(item.AbsAmount())
	if item.DaysLeft == 0 {
		return fmt.Sprintf("Olá! Este é um lembrete do %s. A transação %s no valor de %s vence HOJE. Por favor, efetue o pagamento o quanto antes.",
			brandName, item.Transaction.Description, amount)
	}
	return fmt.Sprintf("Olá! Este é um lembrete do %s. A transação %s no valor de %s vence em %d dias.",
		brandName, item.Transaction.Description, amount, item.DaysLeft)
}
