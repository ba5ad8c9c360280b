package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gateway "github.com/nimasrn/finance-ledger/internal/gateways"
	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	items []*model.Transaction
}

func (f *fakeSource) Pending(ctx context.Context) ([]*model.Transaction, error) {
	return f.items, nil
}

func (f *fakeSource) Get(ctx context.Context, id int64) (*model.Transaction, error) {
	for _, t := range f.items {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, ErrTransactionNotFound
}

type fakeMailer struct {
	sent []gateway.MailMessage
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg gateway.MailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeCaller struct {
	calls []string
	err   error
}

func (f *fakeCaller) Call(ctx context.Context, to, twiml string) (*gateway.CallResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, twiml)
	return &gateway.CallResponse{Sid: "CA1", Status: "queued", To: to}, nil
}

type memGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (g *memGuard) Claim(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

func (g *memGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

type reminderFixture struct {
	svc    *ReminderService
	repo   *repository.ReminderRepository
	mailer *fakeMailer
	caller *fakeCaller
	guard  *memGuard
}

func day(d int) time.Time {
	return time.Date(2025, time.November, d, 0, 0, 0, 0, time.UTC)
}

func pendingTx(id int64, desc, value string, due time.Time) *model.Transaction {
	return &model.Transaction{
		ID:          id,
		Description: desc,
		Code:        "C" + desc,
		Amount:      decimal.RequireFromString(value),
		Status:      model.TransactionStatusPending,
		Date:        due,
	}
}

func newReminderFixture(t *testing.T, now time.Time) *reminderFixture {
	repo := repository.NewReminderRepository(repository.NewTestDB(t))
	source := &fakeSource{items: []*model.Transaction{
		pendingTx(1, "Aluguel", "-1500", day(22)),
		pendingTx(2, "Conta de luz", "-230.45", day(20)),
		pendingTx(3, "Internet", "-99.90", day(21)),
		pendingTx(4, "Condominio", "-800", day(25)),
	}}
	f := &reminderFixture{
		repo:   repo,
		mailer: &fakeMailer{},
		caller: &fakeCaller{},
		guard:  &memGuard{keys: map[string]bool{}},
	}
	f.svc = NewReminderService(repo, source, f.mailer, f.caller, f.guard, ReminderOptions{Location: time.UTC})
	f.svc.now = func() time.Time { return now }
	return f
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool { return &b }

func (f *reminderFixture) configure(t *testing.T) {
	_, err := f.svc.UpdateConfig(context.Background(), model.ReminderConfigUpdate{
		Email: strPtr("owner@test.com"),
		Phone: strPtr("11987654321"),
	})
	require.NoError(t, err)
}

func TestReminderService_Upcoming(t *testing.T) {
	f := newReminderFixture(t, time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC))

	items, err := f.svc.Upcoming(context.Background(), []int{2, 0})
	require.NoError(t, err)
	require.Len(t, items, 2)

	left := map[int64]int{}
	for _, it := range items {
		left[it.Transaction.ID] = it.DaysLeft
	}
	assert.Equal(t, map[int64]int{1: 2, 2: 0}, left)
}

func TestReminderService_ProcessInactive(t *testing.T) {
	f := newReminderFixture(t, time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC))
	_, err := f.svc.UpdateConfig(context.Background(), model.ReminderConfigUpdate{Active: boolPtr(false)})
	require.NoError(t, err)

	res, err := f.svc.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, []string{"Nenhuma configuração de lembretes ativa"}, res.Errors)
	assert.Empty(t, f.mailer.sent)
}

func TestReminderService_ProcessWithinCallWindow(t *testing.T) {
	f := newReminderFixture(t, time.Date(2025, 11, 20, 9, 10, 0, 0, time.UTC))
	f.configure(t)

	res, err := f.svc.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.EmailsSent)
	assert.Equal(t, 2, res.CallsMade)
	assert.Empty(t, res.Errors)

	subjects := []string{f.mailer.sent[0].Subject, f.mailer.sent[1].Subject}
	assert.Contains(t, subjects, "📅 Lembrete: Pagamento vence em 2 dias - Aluguel")
	assert.Contains(t, subjects, "⚠️ URGENTE: Pagamento vence HOJE - Conta de luz")

	logs, err := f.svc.Logs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	for _, l := range logs {
		assert.Equal(t, model.ReminderLogSuccess, l.Status)
	}
}

func TestReminderService_ProcessOutsideCallWindow(t *testing.T) {
	f := newReminderFixture(t, time.Date(2025, 11, 20, 14, 0, 0, 0, time.UTC))
	f.configure(t)

	res, err := f.svc.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EmailsSent)
	assert.Equal(t, 0, res.CallsMade)

	res, err = f.svc.Process(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EmailsSent)
	assert.Equal(t, 2, res.CallsMade)
	assert.Contains(t, f.caller.calls[0], "Sistema Financeiro")
}

func TestReminderService_DeduplicatesUnlessForced(t *testing.T) {
	f := newReminderFixture(t, time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC))
	f.configure(t)

	_, err := f.svc.Process(context.Background(), false)
	require.NoError(t, err)

	res, err := f.svc.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Equal(t, 0, res.CallsMade)
	assert.Empty(t, res.Errors)

	res, err = f.svc.Process(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EmailsSent)
	assert.Len(t, f.mailer.sent, 4)
}

func TestReminderService_FailureIsLoggedAndRetried(t *testing.T) {
	f := newReminderFixture(t, time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC))
	f.configure(t)
	f.mailer.err = errors.New("smtp down")
	f.caller.err = errors.New("provider down")

	res, err := f.svc.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Equal(t, 0, res.CallsMade)
	require.Len(t, res.Errors, 4)
	assert.Contains(t, res.Errors, "Erro ao enviar e-mail: smtp down")
	assert.Contains(t, res.Errors, "Erro ao fazer ligação: provider down")

	logs, err := f.svc.Logs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Equal(t, model.ReminderLogFailed, logs[0].Status)
	assert.NotEmpty(t, logs[0].Error)

	f.mailer.err = nil
	f.caller.err = nil
	res, err = f.svc.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EmailsSent)
	assert.Equal(t, 2, res.CallsMade)
}

func TestReminderService_SkipsChannelsWithoutRecipient(t *testing.T) {
	f := newReminderFixture(t, time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC))

	res, err := f.svc.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Equal(t, 0, res.CallsMade)
	assert.Empty(t, res.Errors)
}

func TestReminderService_UpdateConfigValidation(t *testing.T) {
	f := newReminderFixture(t, time.Now())

	_, err := f.svc.UpdateConfig(context.Background(), model.ReminderConfigUpdate{CallTime: strPtr("25:99")})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	cfg, err := f.svc.UpdateConfig(context.Background(), model.ReminderConfigUpdate{
		DaysBefore: []int{5, 1},
		CallTime:   strPtr("18:30"),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 1}, cfg.DaysBefore)
	assert.Equal(t, "18:30", cfg.CallTime)
	assert.True(t, cfg.Active)

	got, err := f.svc.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)
	assert.Equal(t, "18:30", got.CallTime)
}

func TestReminderService_TwiML(t *testing.T) {
	f := newReminderFixture(t, time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC))

	out, err := f.svc.TwiML(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, out, "Aluguel")
	assert.Contains(t, out, "vence em 2 dias.")
	assert.Contains(t, out, "R$ 1.500,00")

	_, err = f.svc.TwiML(context.Background(), 99)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestComposeReminderEmail(t *testing.T) {
	item := model.UpcomingTransaction{
		Transaction: pendingTx(7, "Luz <casa>", "-42", day(21)),
		DaysLeft:    1,
		DueDate:     day(21),
	}

	msg, err := composeReminderEmail("owner@test.com", item)
	require.NoError(t, err)
	assert.Equal(t, "owner@test.com", msg.To)
	assert.Equal(t, "⚠️ Pagamento vence AMANHÃ - Luz <casa>", msg.Subject)
	assert.Contains(t, msg.Text, "Valor: R$ 42,00")
	assert.Contains(t, msg.Text, "Data de Vencimento: 21/11/2025")
	assert.Contains(t, msg.HTML, "Luz &lt;casa&gt;")
	assert.False(t, strings.Contains(msg.HTML, "VENCE HOJE!"))
}
