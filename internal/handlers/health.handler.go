package handlers

import (
	"github.com/fasthttp/router"
	gateway "github.com/nimasrn/finance-ledger/internal/gateways"
	xhttp "github.com/nimasrn/finance-ledger/pkg/http"
)

type HealthService interface {
	Get() error
	Providers() []gateway.ProviderStats
}
type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
	e.GET("/health/providers", h.GetProviders)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{
		svc: svc,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	if err := h.svc.Get(); err != nil {
		writeJSON(ctx, xhttp.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) GetProviders(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, xhttp.StatusOK, h.svc.Providers())
}
