package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockReminderService struct {
	mock.Mock
	block chan struct{}
}

func (m *MockReminderService) GetConfig(ctx context.Context) (*model.ReminderConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReminderConfig), args.Error(1)
}

func (m *MockReminderService) UpdateConfig(ctx context.Context, u model.ReminderConfigUpdate) (*model.ReminderConfig, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReminderConfig), args.Error(1)
}

func (m *MockReminderService) Process(ctx context.Context, force bool) (*model.ReminderResult, error) {
	if m.block != nil {
		<-m.block
	}
	args := m.Called(ctx, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReminderResult), args.Error(1)
}

func (m *MockReminderService) Logs(ctx context.Context, limit int) ([]*model.ReminderLog, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ReminderLog), args.Error(1)
}

func (m *MockReminderService) Upcoming(ctx context.Context, days []int) ([]model.UpcomingTransaction, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.UpcomingTransaction), args.Error(1)
}

func (m *MockReminderService) TwiML(ctx context.Context, id int64) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func TestReminderHandler_GetConfig(t *testing.T) {
	svc := new(MockReminderService)
	cfg := model.NewDefaultReminderConfig()
	cfg.ID = 1
	svc.On("GetConfig", mock.Anything).Return(cfg, nil)

	ctx := setupTestContext("GET", "/api/v1/reminders/config", nil)
	NewReminderHandler(svc, time.Second).GetConfig(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var got model.ReminderConfig
	decodeBody(t, ctx, &got)
	assert.True(t, got.Active)
	assert.Equal(t, model.DefaultCallTime, got.CallTime)
}

func TestReminderHandler_UpdateConfig(t *testing.T) {
	t.Run("partial update", func(t *testing.T) {
		svc := new(MockReminderService)
		svc.On("UpdateConfig", mock.Anything, mock.MatchedBy(func(u model.ReminderConfigUpdate) bool {
			return u.Email != nil && *u.Email == "fin@example.com" && u.Phone == nil && u.Active == nil
		})).Return(&model.ReminderConfig{ID: 1, Email: "fin@example.com"}, nil)

		ctx := setupTestContext("PUT", "/api/v1/reminders/config", []byte(`{"email":"fin@example.com"}`))
		NewReminderHandler(svc, time.Second).UpdateConfig(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("invalid call time", func(t *testing.T) {
		svc := new(MockReminderService)
		svc.On("UpdateConfig", mock.Anything, mock.Anything).
			Return(nil, &services.ValidationError{Err: errors.New("call_time must be HH:MM")})

		ctx := setupTestContext("PUT", "/api/v1/reminders/config", []byte(`{"call_time":"25:99"}`))
		NewReminderHandler(svc, time.Second).UpdateConfig(ctx)

		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})
}

func TestReminderHandler_Process(t *testing.T) {
	t.Run("returns the result", func(t *testing.T) {
		svc := new(MockReminderService)
		svc.On("Process", mock.Anything, true).Return(&model.ReminderResult{Processed: 2, EmailsSent: 2, CallsMade: 1}, nil)

		ctx := setupTestContext("POST", "/api/v1/reminders/process", nil)
		NewReminderHandler(svc, time.Second).Process(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		var got model.ReminderResult
		decodeBody(t, ctx, &got)
		assert.Equal(t, 2, got.Processed)
		assert.Equal(t, 1, got.CallsMade)
		svc.AssertExpectations(t)
	})

	t.Run("service error becomes a result", func(t *testing.T) {
		svc := new(MockReminderService)
		svc.On("Process", mock.Anything, true).Return(nil, errors.New("db down"))

		ctx := setupTestContext("POST", "/api/v1/reminders/process", nil)
		NewReminderHandler(svc, time.Second).Process(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		var got model.ReminderResult
		decodeBody(t, ctx, &got)
		assert.Equal(t, []string{"db down"}, got.Errors)
	})

	t.Run("timeout", func(t *testing.T) {
		svc := &MockReminderService{block: make(chan struct{})}
		svc.On("Process", mock.Anything, true).Return(&model.ReminderResult{}, nil)
		defer close(svc.block)

		ctx := setupTestContext("POST", "/api/v1/reminders/process", nil)
		NewReminderHandler(svc, 20*time.Millisecond).Process(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		var got model.ReminderResult
		decodeBody(t, ctx, &got)
		require.Len(t, got.Errors, 1)
		assert.Contains(t, got.Errors[0], "Timeout")
	})
}

func TestReminderHandler_Logs(t *testing.T) {
	svc := new(MockReminderService)
	svc.On("Logs", mock.Anything, 50).Return(nil, nil)

	ctx := setupTestContext("GET", "/api/v1/reminders/logs", nil)
	NewReminderHandler(svc, time.Second).Logs(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "[]", string(ctx.Response.Body()))
	svc.AssertExpectations(t)
}

func TestParseDays(t *testing.T) {
	assert.Equal(t, []int{2, 0}, parseDays(""))
	assert.Equal(t, []int{5, 1}, parseDays("5, 1"))
	assert.Equal(t, []int{3}, parseDays("x,3,"))
	assert.Equal(t, []int{2, 0}, parseDays("a,b"))
}

func TestReminderHandler_Upcoming(t *testing.T) {
	svc := new(MockReminderService)
	svc.On("Upcoming", mock.Anything, []int{7, 1}).Return([]model.UpcomingTransaction{}, nil)

	ctx := setupTestContext("GET", "/api/v1/reminders/upcoming?dias=7,1", nil)
	NewReminderHandler(svc, time.Second).Upcoming(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	svc.AssertExpectations(t)
}

func TestReminderHandler_TwiML(t *testing.T) {
	t.Run("known transaction", func(t *testing.T) {
		svc := new(MockReminderService)
		svc.On("TwiML", mock.Anything, int64(9)).Return("<Response><Say>ok</Say></Response>", nil)

		ctx := setupTestContext("POST", "/api/v1/reminders/twiml/9", nil)
		ctx.SetUserValue("id", "9")
		NewReminderHandler(svc, time.Second).TwiML(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Header.ContentType()), "text/xml")
		assert.Equal(t, "<Response><Say>ok</Say></Response>", string(ctx.Response.Body()))
	})

	t.Run("unknown transaction falls back", func(t *testing.T) {
		svc := new(MockReminderService)
		svc.On("TwiML", mock.Anything, int64(404)).Return("", services.ErrTransactionNotFound)

		ctx := setupTestContext("POST", "/api/v1/reminders/twiml/404", nil)
		ctx.SetUserValue("id", "404")
		NewReminderHandler(svc, time.Second).TwiML(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), "Sistema Financeiro")
	})

	t.Run("non numeric id", func(t *testing.T) {
		svc := new(MockReminderService)

		ctx := setupTestContext("POST", "/api/v1/reminders/twiml/abc", nil)
		ctx.SetUserValue("id", "abc")
		NewReminderHandler(svc, time.Second).TwiML(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "TwiML", mock.Anything, mock.Anything)
	})
}
