package handlers

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/finance-ledger/internal/model"
	xhttp "github.com/nimasrn/finance-ledger/pkg/http"
	"github.com/shopspring/decimal"
)

type FinanceService interface {
	Create(ctx context.Context, p model.TransactionCreateRequest) (*model.Transaction, error)
	Update(ctx context.Context, code string, p model.TransactionUpdateRequest) (*model.Transaction, error)
	DeleteByCode(ctx context.Context, code string) error
	DeleteByID(ctx context.Context, id int64) error
	List(ctx context.Context, page, limit int) (*model.TransactionPage, error)
	Summary(ctx context.Context) (*model.LedgerSummary, error)
	Sync(ctx context.Context) (int, error)
	Import(ctx context.Context, r io.Reader, filename string) (int, error)
}

type FinanceHandler struct {
	svc FinanceService
}

// RegisterFinanceRoutes registers the id route before the code route so
// "id" is never taken as a code.
func RegisterFinanceRoutes(e *router.Group, h *FinanceHandler) {
	g := e.Group("/finance")
	g.GET("/transactions", h.ListTransactions)
	g.GET("/summary", h.Summary)
	g.POST("/transactions", h.CreateTransaction)
	g.PUT("/transactions/{code}", h.UpdateTransaction)
	g.DELETE("/transactions/id/{id}", h.DeleteTransactionByID)
	g.DELETE("/transactions/{code}", h.DeleteTransaction)
	g.POST("/sync", h.Sync)
	g.POST("/upload", h.Upload)
}

func NewFinanceHandler(svc FinanceService) *FinanceHandler {
	return &FinanceHandler{svc: svc}
}

type transactionRequest struct {
	Description *string          `json:"description"`
	Code        *string          `json:"code"`
	CostCenter  *string          `json:"cost_center"`
	DocumentRef *string          `json:"document_ref"`
	Amount      *decimal.Decimal `json:"amount"`
	Status      *string          `json:"status"`
	Date        *string          `json:"date"`
	Balance     *decimal.Decimal `json:"balance"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r transactionRequest) toCreate() (model.TransactionCreateRequest, error) {
	p := model.TransactionCreateRequest{
		Description: deref(r.Description),
		Code:        deref(r.Code),
		CostCenter:  deref(r.CostCenter),
		DocumentRef: r.DocumentRef,
		Amount:      r.Amount,
		Status:      deref(r.Status),
		Balance:     r.Balance,
	}
	if r.Date != nil && *r.Date != "" {
		d, err := parseDate(*r.Date)
		if err != nil {
			return p, err
		}
		p.Date = d
	}
	return p, nil
}

func (r transactionRequest) toUpdate() (model.TransactionUpdateRequest, error) {
	p := model.TransactionUpdateRequest{
		Description: r.Description,
		CostCenter:  r.CostCenter,
		DocumentRef: r.DocumentRef,
		Amount:      r.Amount,
		Status:      r.Status,
		Balance:     r.Balance,
	}
	if r.Date != nil {
		d, err := parseDate(*r.Date)
		if err != nil {
			return p, err
		}
		p.Date = &d
	}
	return p, nil
}

func (h *FinanceHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	page, err := h.svc.List(ctx, queryInt(ctx, "page", 1), queryInt(ctx, "limit", 0))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, page)
}

func (h *FinanceHandler) Summary(ctx *xhttp.RequestCtx) {
	sum, err := h.svc.Summary(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, sum)
}

func (h *FinanceHandler) CreateTransaction(ctx *xhttp.RequestCtx) {
	var req transactionRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	p, err := req.toCreate()
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	t, err := h.svc.Create(ctx, p)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, t)
}

func (h *FinanceHandler) UpdateTransaction(ctx *xhttp.RequestCtx) {
	code, err := url.PathUnescape(pathParam(ctx, "code"))
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid code")
		return
	}
	var req transactionRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	p, err := req.toUpdate()
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	t, err := h.svc.Update(ctx, code, p)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, t)
}

func (h *FinanceHandler) DeleteTransaction(ctx *xhttp.RequestCtx) {
	code, err := url.PathUnescape(pathParam(ctx, "code"))
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid code")
		return
	}
	if err := h.svc.DeleteByCode(ctx, code); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, messageResponse{Success: true, Message: "Transação excluída com sucesso"})
}

func (h *FinanceHandler) DeleteTransactionByID(ctx *xhttp.RequestCtx) {
	raw := pathParam(ctx, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, fmt.Sprintf("ID inválido: %s", raw))
		return
	}
	if err := h.svc.DeleteByID(ctx, id); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, messageResponse{Success: true, Message: "Transação excluída com sucesso"})
}

func (h *FinanceHandler) Sync(ctx *xhttp.RequestCtx) {
	start := time.Now()
	n, err := h.svc.Sync(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, messageResponse{
		Success:  true,
		Message:  fmt.Sprintf("Sincronização concluída com sucesso em %s", time.Since(start).Round(time.Millisecond)),
		Imported: &n,
	})
}

func (h *FinanceHandler) Upload(ctx *xhttp.RequestCtx) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "Nenhum arquivo foi enviado")
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}
	defer f.Close()

	n, err := h.svc.Import(ctx, f, fh.Filename)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, messageResponse{
		Success:  true,
		Message:  "Planilha enviada e sincronizada com sucesso!",
		Imported: &n,
		Filename: fh.Filename,
	})
}
