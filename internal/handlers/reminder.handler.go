package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	gateway "github.com/nimasrn/finance-ledger/internal/gateways"
	"github.com/nimasrn/finance-ledger/internal/model"
	xhttp "github.com/nimasrn/finance-ledger/pkg/http"
	"github.com/nimasrn/finance-ledger/pkg/logger"
)

const genericCallMessage = "Olá! Este é um lembrete do Sistema Financeiro sobre um pagamento próximo do vencimento. Por favor, verifique seu e-mail para mais detalhes."

type ReminderService interface {
	GetConfig(ctx context.Context) (*model.ReminderConfig, error)
	UpdateConfig(ctx context.Context, u model.ReminderConfigUpdate) (*model.ReminderConfig, error)
	Process(ctx context.Context, force bool) (*model.ReminderResult, error)
	Logs(ctx context.Context, limit int) ([]*model.ReminderLog, error)
	Upcoming(ctx context.Context, days []int) ([]model.UpcomingTransaction, error)
	TwiML(ctx context.Context, transactionID int64) (string, error)
}

type ReminderHandler struct {
	svc            ReminderService
	processTimeout time.Duration
}

func RegisterReminderRoutes(e *router.Group, h *ReminderHandler) {
	g := e.Group("/reminders")
	g.GET("/config", h.GetConfig)
	g.PUT("/config", h.UpdateConfig)
	g.POST("/process", h.Process)
	g.GET("/logs", h.Logs)
	g.GET("/upcoming", h.Upcoming)
	g.POST("/twiml/{id}", h.TwiML)
}

func NewReminderHandler(svc ReminderService, processTimeout time.Duration) *ReminderHandler {
	if processTimeout <= 0 {
		processTimeout = 60 * time.Second
	}
	return &ReminderHandler{svc: svc, processTimeout: processTimeout}
}

func (h *ReminderHandler) GetConfig(ctx *xhttp.RequestCtx) {
	cfg, err := h.svc.GetConfig(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, cfg)
}

func (h *ReminderHandler) UpdateConfig(ctx *xhttp.RequestCtx) {
	var u model.ReminderConfigUpdate
	if err := readJSON(ctx, &u); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	cfg, err := h.svc.UpdateConfig(ctx, u)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, cfg)
}

// Process always answers with a result. Past the timeout the run keeps
// going in the background and the caller gets a timeout result.
func (h *ReminderHandler) Process(ctx *xhttp.RequestCtx) {
	type outcome struct {
		res *model.ReminderResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		// detached: fasthttp recycles ctx once the handler returns
		res, err := h.svc.Process(context.Background(), true)
		done <- outcome{res, err}
	}()

	timer := time.NewTimer(h.processTimeout)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.err != nil {
			logger.Error("reminder processing failed", "error", o.err)
			writeJSON(ctx, xhttp.StatusOK, failedResult(o.err.Error()))
			return
		}
		writeJSON(ctx, xhttp.StatusOK, o.res)
	case <-timer.C:
		logger.Warn("reminder processing still running after timeout", "timeout", h.processTimeout.String())
		writeJSON(ctx, xhttp.StatusOK, failedResult("Timeout: Processamento demorou mais de "+strconv.Itoa(int(h.processTimeout.Seconds()))+" segundos"))
	}
}

func failedResult(msg string) *model.ReminderResult {
	return &model.ReminderResult{Errors: []string{msg}}
}

func (h *ReminderHandler) Logs(ctx *xhttp.RequestCtx) {
	logs, err := h.svc.Logs(ctx, queryInt(ctx, "limit", 50))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if logs == nil {
		logs = []*model.ReminderLog{}
	}
	writeJSON(ctx, xhttp.StatusOK, logs)
}

// parseDays reads a comma separated list, skipping invalid entries. An
// empty list falls back to the default reminder days.
func parseDays(s string) []int {
	var days []int
	for _, p := range strings.Split(s, ",") {
		if d, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return append([]int(nil), model.DefaultReminderDays...)
	}
	return days
}

func (h *ReminderHandler) Upcoming(ctx *xhttp.RequestCtx) {
	raw := query(ctx, "days")
	if raw == "" {
		raw = query(ctx, "dias")
	}
	items, err := h.svc.Upcoming(ctx, parseDays(raw))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if items == nil {
		items = []model.UpcomingTransaction{}
	}
	writeJSON(ctx, xhttp.StatusOK, items)
}

// TwiML serves the voice script the provider fetches. Unknown ids get a
// generic reminder so the call never fails on the provider side.
func (h *ReminderHandler) TwiML(ctx *xhttp.RequestCtx) {
	body := gateway.TwiML(genericCallMessage)
	if id, err := strconv.ParseInt(pathParam(ctx, "id"), 10, 64); err == nil {
		if out, err := h.svc.TwiML(ctx, id); err == nil {
			body = out
		} else {
			logger.Warn("twiml for unknown transaction", "id", id, "error", err)
		}
	}
	ctx.Response.Header.SetContentType("text/xml; charset=utf-8")
	ctx.SetStatusCode(xhttp.StatusOK)
	ctx.SetBodyString(body)
}
