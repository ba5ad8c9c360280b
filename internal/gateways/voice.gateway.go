package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	ErrVoiceNotConfigured = errors.New("voice provider is not configured")
	ErrCircuitOpen        = errors.New("voice provider circuit is open")
	ErrInvalidPhone       = errors.New("invalid phone number")
)

type VoiceConfig struct {
	BaseURL                 string
	AccountSid              string
	AuthToken               string
	FromNumber              string
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

func (c VoiceConfig) configured() bool {
	return c.AccountSid != "" && c.AuthToken != "" && c.FromNumber != ""
}

type CallResponse struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
	From   string `json:"from"`
}

// providerError is a non-2xx answer from the provider.
type providerError struct {
	status int
	body   string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.status, e.body)
}

func (e *providerError) retryable() bool {
	return e.status == fasthttp.StatusTooManyRequests || e.status >= 500
}

// VoiceClient places outbound calls with inline TwiML through a
// Twilio-compatible REST API.
type VoiceClient struct {
	config  VoiceConfig
	client  *fasthttp.Client
	metrics *ProviderMetrics
	breaker *breaker
}

func NewVoiceClient(config VoiceConfig) *VoiceClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	if config.CircuitBreakerTimeout == 0 {
		config.CircuitBreakerTimeout = time.Minute
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	c := &VoiceClient{
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
		metrics: NewProviderMetrics(),
		breaker: &breaker{
			threshold: int32(config.CircuitBreakerThreshold),
			timeout:   config.CircuitBreakerTimeout,
		},
	}
	if !config.configured() {
		logger.Warn("voice provider not configured; calls will fail", "base_url", config.BaseURL)
	}
	return c
}

// NormalizePhone keeps digits only and prefixes the Brazilian country code
// unless the number already carries it.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, "55") {
		return "+" + digits
	}
	return "+55" + digits
}

// TwiML wraps message in a voice response that says it twice in pt-BR.
func TwiML(message string) string {
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(message))
	say := `<Say language="pt-BR" voice="alice">` + escaped.String() + `</Say>`
	return `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
		"<Response>\n  " + say + "\n  <Pause length=\"2\"/>\n  " + say + "\n</Response>"
}

func (c *VoiceClient) Call(ctx context.Context, to, twiml string) (*CallResponse, error) {
	if !c.config.configured() {
		return nil, ErrVoiceNotConfigured
	}
	phone := NormalizePhone(to)
	if phone == "" {
		return nil, ErrInvalidPhone
	}

	form := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(form)
	form.Set("To", phone)
	form.Set("From", c.config.FromNumber)
	form.Set("Twiml", twiml)
	body := append([]byte(nil), form.QueryString()...)

	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Calls.json", c.config.AccountSid)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
		if !c.breaker.allow(time.Now()) {
			return nil, ErrCircuitOpen
		}

		start := time.Now()
		raw, err := c.doRequest(ctx, path, body)
		if err != nil {
			c.metrics.RecordFailure()
			if c.breaker.record(c.metrics, err, time.Now()) {
				logger.Warn("voice circuit breaker opened", "consecutive_fails", c.metrics.ConsecutiveFails.Load(), "timeout", c.config.CircuitBreakerTimeout)
			}
			lastErr = err
			var pe *providerError
			if errors.As(err, &pe) && !pe.retryable() {
				return nil, err
			}
			logger.Warn("voice call failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}

		latency := time.Since(start).Milliseconds()
		c.metrics.RecordSuccess(latency)
		c.breaker.record(c.metrics, nil, time.Now())

		var resp CallResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		logger.Info("voice call started", "sid", resp.Sid, "status", resp.Status, "latency_ms", latency)
		return &resp, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *VoiceClient) doRequest(ctx context.Context, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.config.AccountSid+":"+c.config.AuthToken)))
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	if status != fasthttp.StatusOK && status != fasthttp.StatusCreated {
		return nil, &providerError{status: status, body: string(resp.Body())}
	}
	return append([]byte(nil), resp.Body()...), nil
}

func (c *VoiceClient) Stats() ProviderStats {
	m := c.metrics
	return ProviderStats{
		Name:             "voice",
		State:            stateString(c.breaker.State()),
		TotalRequests:    m.TotalRequests.Load(),
		SuccessfulReqs:   m.SuccessfulReqs.Load(),
		FailedReqs:       m.FailedReqs.Load(),
		SuccessRate:      m.SuccessRate(),
		AvgLatencyMs:     m.AvgLatencyMs(),
		P95LatencyMs:     m.P95LatencyMs(),
		ConsecutiveFails: m.ConsecutiveFails.Load(),
	}
}
