package main

import (
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CallStatus string

const (
	StatusQueued    CallStatus = "queued"
	StatusCompleted CallStatus = "completed"
	StatusNoAnswer  CallStatus = "no-answer"
	StatusFailed    CallStatus = "failed"
)

// CallResponse mirrors the subset of the Twilio call resource the ledger reads.
type CallResponse struct {
	Sid         string     `json:"sid"`
	AccountSid  string     `json:"account_sid"`
	Status      CallStatus `json:"status"`
	To          string     `json:"to"`
	From        string     `json:"from"`
	DateCreated time.Time  `json:"date_created"`
}

type errorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	MoreInfo string `json:"more_info,omitempty"`
}

// MockProvider accepts outbound call requests and remembers them so the
// status endpoint can answer for them later.
type MockProvider struct {
	mu         sync.RWMutex
	accountSid string
	authToken  string
	answerRate float64
	failRate   float64
	minDelay   time.Duration
	maxDelay   time.Duration
	calls      map[string]*CallResponse
	scripts    map[string]string
}

func NewMockProvider(accountSid, authToken string, answerRate, failRate float64, minDelay, maxDelay time.Duration) *MockProvider {
	return &MockProvider{
		accountSid: accountSid,
		authToken:  authToken,
		answerRate: answerRate,
		failRate:   failRate,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		calls:      make(map[string]*CallResponse),
		scripts:    make(map[string]string),
	}
}

func (m *MockProvider) randomDelay() time.Duration {
	if m.maxDelay <= m.minDelay {
		return m.minDelay
	}
	return m.minDelay + rand.N(m.maxDelay-m.minDelay)
}

func (m *MockProvider) authorized(c *gin.Context) bool {
	if m.accountSid == "" {
		return true
	}
	user, pass, ok := c.Request.BasicAuth()
	return ok && user == m.accountSid && pass == m.authToken && c.Param("account") == m.accountSid
}

// CreateCall handles POST /2010-04-01/Accounts/:account/Calls.json.
func (m *MockProvider) CreateCall(c *gin.Context) {
	if !m.authorized(c) {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: 20003, Message: "Authenticate", Status: http.StatusUnauthorized})
		return
	}

	to := c.PostForm("To")
	from := c.PostForm("From")
	twiml := c.PostForm("Twiml")
	if to == "" || from == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Code: 21201, Message: "To and From are required", Status: http.StatusBadRequest})
		return
	}
	if !strings.HasPrefix(to, "+") {
		c.JSON(http.StatusBadRequest, errorResponse{Code: 21211, Message: "Invalid 'To' Phone Number: " + to, Status: http.StatusBadRequest})
		return
	}

	time.Sleep(m.randomDelay())

	m.mu.RLock()
	failRate := m.failRate
	m.mu.RUnlock()
	if rand.Float64() < failRate {
		log.Warn().Str("to", to).Msg("simulated provider failure")
		c.JSON(http.StatusServiceUnavailable, errorResponse{Code: 20500, Message: "Service temporarily unavailable", Status: http.StatusServiceUnavailable})
		return
	}

	call := &CallResponse{
		Sid:         "CA" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		AccountSid:  c.Param("account"),
		Status:      StatusQueued,
		To:          to,
		From:        from,
		DateCreated: time.Now().UTC(),
	}

	m.mu.Lock()
	m.calls[call.Sid] = call
	m.scripts[call.Sid] = twiml
	m.mu.Unlock()

	log.Info().
		Str("sid", call.Sid).
		Str("to", to).
		Int("twiml_bytes", len(twiml)).
		Msg("call queued")

	c.JSON(http.StatusCreated, call)
}

// GetCall resolves a queued call to a final status on first lookup.
func (m *MockProvider) GetCall(c *gin.Context) {
	sid := strings.TrimSuffix(c.Param("sid"), ".json")

	m.mu.Lock()
	call, ok := m.calls[sid]
	if ok && call.Status == StatusQueued {
		if rand.Float64() < m.answerRate {
			call.Status = StatusCompleted
		} else {
			call.Status = StatusNoAnswer
		}
	}
	m.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Code: 20404, Message: "The requested resource was not found", Status: http.StatusNotFound})
		return
	}
	c.JSON(http.StatusOK, call)
}

// Calls lists every call placed since start, with its script.
func (m *MockProvider) Calls(c *gin.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]gin.H, 0, len(m.calls))
	for sid, call := range m.calls {
		out = append(out, gin.H{"call": call, "twiml": m.scripts[sid]})
	}
	c.JSON(http.StatusOK, out)
}

func (m *MockProvider) HealthCheck(c *gin.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"answer_rate": m.answerRate,
		"fail_rate":   m.failRate,
		"calls":       len(m.calls),
		"timestamp":   time.Now(),
	})
}

// UpdateConfig changes the simulated rates at runtime.
func (m *MockProvider) UpdateConfig(c *gin.Context) {
	var req struct {
		AnswerRate *float64 `json:"answer_rate"`
		FailRate   *float64 `json:"fail_rate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	m.mu.Lock()
	if req.AnswerRate != nil && *req.AnswerRate >= 0 && *req.AnswerRate <= 1 {
		m.answerRate = *req.AnswerRate
	}
	if req.FailRate != nil && *req.FailRate >= 0 && *req.FailRate <= 1 {
		m.failRate = *req.FailRate
	}
	answer, fail := m.answerRate, m.failRate
	m.mu.Unlock()

	log.Info().Float64("answer_rate", answer).Float64("fail_rate", fail).Msg("configuration updated")
	c.JSON(http.StatusOK, gin.H{"answer_rate": answer, "fail_rate": fail})
}

func SetupRouter(m *MockProvider) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	api := router.Group("/2010-04-01/Accounts/:account")
	{
		api.POST("/Calls.json", m.CreateCall)
		api.GET("/Calls/:sid", m.GetCall)
	}

	router.GET("/calls", m.Calls)
	router.GET("/health", m.HealthCheck)
	router.PUT("/config", m.UpdateConfig)
	return router
}
