package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	gateway "github.com/nimasrn/finance-ledger/internal/gateways"
	"github.com/nimasrn/finance-ledger/internal/handlers"
	"github.com/nimasrn/finance-ledger/internal/ledger"
	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/internal/processor"
	"github.com/nimasrn/finance-ledger/internal/queue"
	"github.com/nimasrn/finance-ledger/internal/repository"
	"github.com/nimasrn/finance-ledger/internal/services"
	"github.com/nimasrn/finance-ledger/internal/spreadsheet"
	xhttp "github.com/nimasrn/finance-ledger/pkg/http"
	"github.com/nimasrn/finance-ledger/pkg/pg"
	"github.com/nimasrn/finance-ledger/test/fixtures"
	"github.com/nimasrn/finance-ledger/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []gateway.MailMessage
}

func (m *recordingMailer) Send(_ context.Context, msg gateway.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type noCalls struct{}

func (noCalls) Call(context.Context, string, string) (*gateway.CallResponse, error) {
	return nil, gateway.ErrVoiceNotConfigured
}

type TestEnvironment struct {
	DB          *pg.DB
	Idempotency *processor.IdempotencyService
	Finance     *services.FinanceService
	Reminders   *services.ReminderService
	Mailer      *recordingMailer
	Processor   *processor.ProcessorService
	Scheduler   *processor.Scheduler
	Server      *xhttp.Engine
	client      *fasthttp.HostClient
	listener    *fasthttputil.InmemoryListener
	t           *testing.T
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	db := helpers.SetupTestDB(t)
	_, adapter := helpers.SetupTestRedis(t)

	transactions := repository.NewTransactionRepository(db)
	recalc := ledger.NewRecalculator(transactions, ledger.PreferComputed)
	finance := services.NewFinanceService(transactions, recalc, spreadsheet.NewReader(), nil, services.FinanceOptions{})

	idem := processor.NewIdempotencyService(adapter, processor.DefaultIdempotencyConfig())
	mailer := &recordingMailer{}
	reminders := services.NewReminderService(repository.NewReminderRepository(db), finance, mailer, noCalls{}, idem, services.ReminderOptions{})

	queueConfig := queue.QueueConfig{
		Name:              "e2e:reminders",
		ConsumerGroup:     "e2e-workers",
		ConsumerName:      "e2e",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      20 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	}
	proc := processor.NewProcessorService(adapter, processor.NewReminderJobProcessor(reminders, idem), processor.ServiceOptions{
		Queue:             queueConfig,
		Consumers:         1,
		ProcessingTimeout: 10 * time.Second,
	})
	require.NoError(t, proc.Start())

	publisher, err := queue.NewQueue(adapter, queueConfig)
	require.NoError(t, err)

	s := xhttp.CreateServer()
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	g := s.Router.Group("/api/v1")
	handlers.RegisterFinanceRoutes(g, handlers.NewFinanceHandler(finance))
	handlers.RegisterReminderRoutes(g, handlers.NewReminderHandler(reminders, 10*time.Second))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(services.NewHealthService(db)))

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = s.Serve(ln) }()

	env := &TestEnvironment{
		DB:          db,
		Idempotency: idem,
		Finance:     finance,
		Reminders:   reminders,
		Mailer:      mailer,
		Processor:   proc,
		Scheduler:   processor.NewScheduler(publisher, time.Hour, "08:00", time.Local),
		Server:      s,
		listener:    ln,
		t:           t,
		client: &fasthttp.HostClient{
			Addr: "ledger.test",
			Dial: func(string) (net.Conn, error) { return ln.Dial() },
		},
	}
	t.Cleanup(env.Cleanup)
	return env
}

// Cleanup drains in-flight requests before shutting the server down, since
// handlers hand the request context to the database layer.
func (env *TestEnvironment) Cleanup() {
	env.Processor.Stop()
	env.client.CloseIdleConnections()
	_ = env.listener.Close()
	idle := helpers.WaitForCondition(env.t, 5*time.Second, func() bool {
		return env.Server.Server.GetOpenConnectionsCount() == 0
	})
	if !idle {
		env.t.Log("connections still open at shutdown")
	}
	_ = env.Server.Server.Shutdown()
}

func (env *TestEnvironment) do(t *testing.T, method, path, contentType string, body []byte) (int, []byte) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://ledger.test/api/v1" + path)
	req.Header.SetMethod(method)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	req.SetBody(body)
	require.NoError(t, env.client.DoTimeout(req, resp, 10*time.Second))
	return resp.StatusCode(), append([]byte(nil), resp.Body()...)
}

func (env *TestEnvironment) doJSON(t *testing.T, method, path string, payload any) (int, []byte) {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	return env.do(t, method, path, "application/json", body)
}

func transactionBody(p model.TransactionCreateRequest) map[string]any {
	return map[string]any{
		"description": p.Description,
		"code":        p.Code,
		"cost_center": p.CostCenter,
		"amount":      p.Amount.String(),
		"status":      p.Status,
		"date":        p.Date.Format("2006-01-02"),
	}
}

func TestE2E_LedgerKeepsRunningBalance(t *testing.T) {
	env := setupE2EEnvironment(t)

	for _, p := range []model.TransactionCreateRequest{fixtures.OpeningBalance, fixtures.Rent, fixtures.Salary} {
		status, body := env.doJSON(t, "POST", "/finance/transactions", transactionBody(p))
		require.Equal(t, fasthttp.StatusCreated, status, string(body))
	}
	assert.Equal(t, []string{"10000", "8500", "4299.5"}, helpers.Balances(t, env.DB))

	t.Run("duplicate code is rejected", func(t *testing.T) {
		status, _ := env.doJSON(t, "POST", "/finance/transactions", transactionBody(fixtures.Rent))
		assert.Equal(t, fasthttp.StatusConflict, status)
	})

	t.Run("update reflows following rows", func(t *testing.T) {
		status, body := env.doJSON(t, "PUT", "/finance/transactions/ALUGUEL-01", map[string]any{"amount": "-1000"})
		require.Equal(t, fasthttp.StatusOK, status, string(body))
		assert.Equal(t, []string{"10000", "9000", "4799.5"}, helpers.Balances(t, env.DB))
	})

	t.Run("delete reflows the ledger", func(t *testing.T) {
		status, _ := env.doJSON(t, "DELETE", "/finance/transactions/ALUGUEL-01", nil)
		require.Equal(t, fasthttp.StatusOK, status)
		assert.Equal(t, []string{"10000", "5799.5"}, helpers.Balances(t, env.DB))

		status, _ = env.doJSON(t, "DELETE", "/finance/transactions/ALUGUEL-01", nil)
		assert.Equal(t, fasthttp.StatusNotFound, status)
	})

	t.Run("summary and paging", func(t *testing.T) {
		status, body := env.doJSON(t, "GET", "/finance/summary", nil)
		require.Equal(t, fasthttp.StatusOK, status)
		assert.JSONEq(t, `{"revenue":"10000","expenses":"4200.5","balance":"5799.5"}`, string(body))

		status, body = env.doJSON(t, "GET", "/finance/transactions?page=2&limit=1", nil)
		require.Equal(t, fasthttp.StatusOK, status)
		var page model.TransactionPage
		require.NoError(t, json.Unmarshal(body, &page))
		assert.Equal(t, int64(2), page.Total)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Items, 1)
	})

	t.Run("unknown route", func(t *testing.T) {
		status, body := env.doJSON(t, "GET", "/finance/nothing", nil)
		assert.Equal(t, fasthttp.StatusNotFound, status)
		assert.Contains(t, string(body), "error")
	})
}

func TestE2E_UploadReplacesLedger(t *testing.T) {
	env := setupE2EEnvironment(t)

	status, _ := env.doJSON(t, "POST", "/finance/transactions", transactionBody(fixtures.OpeningBalance))
	require.Equal(t, fasthttp.StatusCreated, status)

	data := fixtures.Workbook(t, "Dados", [][]interface{}{
		{"Receita", "REC", "Vendas", "", "2.000,00", "pago", "01/02/2025", ""},
		{"Fornecedor", "FOR", "Compras", "NF-9", "-750,00", "pendente", "03/02/2025", ""},
	})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "financeiro.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	status, body := env.do(t, "POST", "/finance/upload", w.FormDataContentType(), buf.Bytes())
	require.Equal(t, fasthttp.StatusOK, status, string(body))

	var resp struct {
		Success  bool   `json:"success"`
		Imported int    `json:"imported"`
		Filename string `json:"filename"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Imported)
	assert.Equal(t, "financeiro.xlsx", resp.Filename)

	assert.Equal(t, []string{"2000", "1250"}, helpers.Balances(t, env.DB))
}

func TestE2E_ScheduledRemindersAreDeliveredOnce(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	status, body := env.doJSON(t, "PUT", "/reminders/config", map[string]any{
		"email":     "financeiro@example.com",
		"make_call": false,
	})
	require.Equal(t, fasthttp.StatusOK, status, string(body))

	today := helpers.Today()
	dueSoon, err := env.Finance.Create(ctx, fixtures.PendingExpense("LUZ", "-320.45", today.AddDate(0, 0, 2)))
	require.NoError(t, err)
	_, err = env.Finance.Create(ctx, fixtures.PendingExpense("AGUA", "-89.90", today))
	require.NoError(t, err)
	_, err = env.Finance.Create(ctx, fixtures.PendingExpense("GAS", "-50", today.AddDate(0, 0, 5)))
	require.NoError(t, err)

	waitProcessed := func(jobID string) {
		helpers.AssertEventually(t, 5*time.Second, func() bool {
			ok, err := env.Idempotency.IsProcessed(ctx, jobID)
			return err == nil && ok
		}, fmt.Sprintf("job %s was not processed", jobID))
	}

	first, err := env.Scheduler.Trigger(ctx, false)
	require.NoError(t, err)
	waitProcessed(first)
	assert.Equal(t, 2, env.Mailer.count())

	// the next scheduled pass on the same day must not resend
	second, err := env.Scheduler.Trigger(ctx, false)
	require.NoError(t, err)
	waitProcessed(second)
	assert.Equal(t, 2, env.Mailer.count())

	status, body = env.doJSON(t, "GET", "/reminders/logs", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	var logs []model.ReminderLog
	require.NoError(t, json.Unmarshal(body, &logs))
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, model.ReminderChannelEmail, l.Channel)
		assert.Equal(t, model.ReminderLogSuccess, l.Status)
	}

	status, body = env.doJSON(t, "GET", "/reminders/upcoming?days=2", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	var upcoming []model.UpcomingTransaction
	require.NoError(t, json.Unmarshal(body, &upcoming))
	require.Len(t, upcoming, 1)
	assert.Equal(t, "LUZ", upcoming[0].Transaction.Code)

	status, body = env.doJSON(t, "POST", "/reminders/twiml/"+strconv.FormatInt(dueSoon.ID, 10), nil)
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, string(body), "<Response>")
	assert.Contains(t, string(body), "320,45")

	// a forced run resends
	status, body = env.doJSON(t, "POST", "/reminders/process", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	var res model.ReminderResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 2, res.EmailsSent)
	assert.Equal(t, 4, env.Mailer.count())
}

func TestE2E_Health(t *testing.T) {
	env := setupE2EEnvironment(t)
	status, body := env.doJSON(t, "GET", "/health", nil)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}
