// Package assistant turns chat messages in Portuguese into ledger and
// reminder operations, first through fixed command patterns and then through
// an LLM with function calling.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/nimasrn/finance-ledger/pkg/prom"
)

const missingKeyReply = "⚠️ Configure a chave GEMINI_API_KEY no arquivo .env para usar o assistente."

type Ledger interface {
	Create(ctx context.Context, p model.TransactionCreateRequest) (*model.Transaction, error)
	MarkPaid(ctx context.Context, code string) (*model.Transaction, error)
	DeleteByCode(ctx context.Context, code string) error
	All(ctx context.Context) ([]*model.Transaction, error)
}

type ReminderRunner interface {
	Process(ctx context.Context, force bool) (*model.ReminderResult, error)
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	Name string
	Args map[string]any
}

type Reply struct {
	Text  string
	Calls []FunctionCall
}

type LLM interface {
	Generate(ctx context.Context, message string) (*Reply, error)
}

type Service struct {
	ledger    Ledger
	reminders ReminderRunner
	llm       LLM
	now       func() time.Time
}

// NewService builds the assistant. llm may be nil when no API key is
// configured; direct commands keep working.
func NewService(ledger Ledger, reminders ReminderRunner, llm LLM) *Service {
	return &Service{
		ledger:    ledger,
		reminders: reminders,
		llm:       llm,
		now:       time.Now,
	}
}

func (s *Service) Chat(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if reply, ok := s.tryDirectCommand(ctx, message); ok {
		prom.IncAssistantCommand("direct")
		return reply, nil
	}

	if s.llm == nil {
		return missingKeyReply, nil
	}

	reply, err := s.llm.Generate(ctx, message)
	if err != nil {
		logger.Error("assistant model call failed", "error", err)
		return "", err
	}

	if len(reply.Calls) == 0 {
		prom.IncAssistantCommand("chat")
		if strings.TrimSpace(reply.Text) == "" {
			return "Sem resposta do assistente.", nil
		}
		return reply.Text, nil
	}

	prom.IncAssistantCommand("function")
	results := make([]string, 0, len(reply.Calls))
	for _, call := range reply.Calls {
		results = append(results, s.execute(ctx, call.Name, call.Args))
	}
	return strings.Join(results, "\n\n"), nil
}
