package xhttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestRequestIDMiddleware(t *testing.T) {
	h := RequestIDMiddleware(func(ctx *RequestCtx) {
		ctx.SetStatusCode(StatusOK)
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Request-ID", "abc")
	h(ctx)
	assert.Equal(t, "abc", string(ctx.Response.Header.Peek(RequestIDHeader)))

	ctx = &fasthttp.RequestCtx{}
	h(ctx)
	generated := string(ctx.Response.Header.Peek(RequestIDHeader))
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, ctx.UserValue("request_id"))
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(ctx *RequestCtx) {
		panic("boom")
	})

	ctx := &fasthttp.RequestCtx{}
	assert.NotPanics(t, func() { h(ctx) })
	assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
}

func TestEngine_MiddlewareOrder(t *testing.T) {
	e := CreateServer()
	var order []string
	mark := func(name string) MiddlewareFunc {
		return func(next RequestHandler) RequestHandler {
			return func(ctx *RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}
	e.Use(mark("first"))
	e.Use(mark("second"))
	e.GET("/ping", func(ctx *RequestCtx) {
		order = append(order, "handler")
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI("/ping")
	e.Handler()(ctx)

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestNotFoundHandler(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	NotFoundHandler(ctx)
	assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"Not Found"}`, string(ctx.Response.Body()))
}

func TestShouldSkip(t *testing.T) {
	assert.True(t, shouldSkip("/api/v1/health"))
	assert.True(t, shouldSkip("/metrics"))
	assert.False(t, shouldSkip("/api/v1/transactions"))
}
