package handlers

import (
	"context"
	"errors"
	"testing"

	gateway "github.com/nimasrn/finance-ledger/internal/gateways"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/valyala/fasthttp"
)

type MockAssistantService struct {
	mock.Mock
}

func (m *MockAssistantService) Chat(ctx context.Context, message string) (string, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Error(1)
}

type stubHealth struct{ err error }

func (s stubHealth) Get() error { return s.err }

func (s stubHealth) Providers() []gateway.ProviderStats {
	return []gateway.ProviderStats{{Name: "voice", State: "HEALTHY"}}
}

func TestAssistantHandler_Chat(t *testing.T) {
	t.Run("replies", func(t *testing.T) {
		svc := new(MockAssistantService)
		svc.On("Chat", mock.Anything, "saldo").Return("Saldo atual: R$ 10,00", nil)

		ctx := setupTestContext("POST", "/api/v1/assistant/chat", []byte(`{"message":"saldo"}`))
		NewAssistantHandler(svc).Chat(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"reply":"Saldo atual: R$ 10,00"}`, string(ctx.Response.Body()))
	})

	t.Run("empty message", func(t *testing.T) {
		svc := new(MockAssistantService)
		ctx := setupTestContext("POST", "/api/v1/assistant/chat", []byte(`{"message":"  "}`))
		NewAssistantHandler(svc).Chat(ctx)

		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
	})

	t.Run("service failure", func(t *testing.T) {
		svc := new(MockAssistantService)
		svc.On("Chat", mock.Anything, "oi").Return("", errors.New("boom"))

		ctx := setupTestContext("POST", "/api/v1/assistant/chat", []byte(`{"message":"oi"}`))
		NewAssistantHandler(svc).Chat(ctx)

		assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	})
}

func TestHealthHandler(t *testing.T) {
	ctx := setupTestContext("GET", "/api/v1/health", nil)
	NewHealthHandler(stubHealth{}).GetHealth(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"status":"ok"}`, string(ctx.Response.Body()))

	ctx = setupTestContext("GET", "/api/v1/health", nil)
	NewHealthHandler(stubHealth{err: errors.New("db down")}).GetHealth(ctx)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())

	ctx = setupTestContext("GET", "/api/v1/health/providers", nil)
	NewHealthHandler(stubHealth{}).GetProviders(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"name":"voice"`)
}
