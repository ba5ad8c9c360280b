package handlers

import (
	"context"
	"strings"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/finance-ledger/pkg/http"
)

type AssistantService interface {
	Chat(ctx context.Context, message string) (string, error)
}

type AssistantHandler struct {
	svc AssistantService
}

func RegisterAssistantRoutes(e *router.Group, h *AssistantHandler) {
	e.POST("/assistant/chat", h.Chat)
}

func NewAssistantHandler(svc AssistantService) *AssistantHandler {
	return &AssistantHandler{svc: svc}
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (h *AssistantHandler) Chat(ctx *xhttp.RequestCtx) {
	var req chatRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(ctx, xhttp.StatusBadRequest, "message is required")
		return
	}
	reply, err := h.svc.Chat(ctx, req.Message)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, chatResponse{Reply: reply})
}
