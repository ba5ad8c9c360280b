// Package app wires the ledger, reminder and assistant services from the
// loaded configuration. The binaries under cmd share it.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/finance-ledger/internal/assistant"
	"github.com/nimasrn/finance-ledger/internal/config"
	gateway "github.com/nimasrn/finance-ledger/internal/gateways"
	"github.com/nimasrn/finance-ledger/internal/ledger"
	"github.com/nimasrn/finance-ledger/internal/processor"
	"github.com/nimasrn/finance-ledger/internal/repository"
	"github.com/nimasrn/finance-ledger/internal/services"
	"github.com/nimasrn/finance-ledger/internal/spreadsheet"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/nimasrn/finance-ledger/pkg/pg"
	"github.com/nimasrn/finance-ledger/pkg/prom"
	"github.com/nimasrn/finance-ledger/pkg/redis"
)

type App struct {
	DB          *pg.DB
	Redis       redis.RedisAdapter
	Idempotency *processor.IdempotencyService
	Finance     *services.FinanceService
	Reminders   *services.ReminderService
	Assistant   *assistant.Service
	Health      *services.HealthService
}

// EnvPath returns the value of a --env=path argument when the file exists.
func EnvPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--env=") {
			p := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(p); err != nil {
				logger.Error("failed to open the passed env file", "path", p, "error", err)
				return ""
			}
			return p
		}
	}
	return ""
}

// Init loads the configuration and applies the log level.
func Init() (*config.Config, error) {
	if err := config.Load(EnvPath()); err != nil {
		return nil, err
	}
	c := config.Get()
	if len(c.LogLevel) > 0 {
		logger.SetLevel(c.LogLevel[0])
	}
	return c, nil
}

func pgConfigs(c *config.Config) (read, write pg.Config) {
	read = pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
	write = pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
	return read, write
}

// WriteConfig is the connection migrations run against.
func WriteConfig(c *config.Config) pg.Config {
	_, w := pgConfigs(c)
	return w
}

func ConnectPostgres(c *config.Config) (*pg.DB, error) {
	read, write := pgConfigs(c)
	db, err := pg.CreateReadWrite(read, write, c.AppEnv == "dev")
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// ConnectRedis returns nil without error when no address is configured.
func ConnectRedis(c *config.Config) (redis.RedisAdapter, error) {
	if c.RedisAddr == "" {
		return nil, nil
	}
	adapter, err := redis.NewRedisAdapter("default", c.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: c.AppName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return adapter, nil
}

func MailConfig(c *config.Config) gateway.MailConfig {
	return gateway.MailConfig{
		Host:     c.EmailHost,
		Port:     c.EmailPort,
		User:     c.EmailUser,
		Password: c.EmailPassword,
		From:     c.EmailFrom,
		Timeout:  c.EmailTimeout,
	}
}

func VoiceConfig(c *config.Config) gateway.VoiceConfig {
	return gateway.VoiceConfig{
		BaseURL:                 c.VoiceBaseUrl,
		AccountSid:              c.VoiceAccountSid,
		AuthToken:               c.VoiceAuthToken,
		FromNumber:              c.VoiceFromNumber,
		Timeout:                 c.VoiceTimeout,
		MaxRetries:              c.VoiceMaxRetries,
		RetryDelay:              c.VoiceRetryDelay,
		CircuitBreakerThreshold: c.VoiceCircuitThreshold,
		CircuitBreakerTimeout:   c.VoiceCircuitTimeout,
	}
}

// Build connects the stores and assembles every service.
func Build(ctx context.Context, c *config.Config) (*App, error) {
	db, err := ConnectPostgres(c)
	if err != nil {
		return nil, err
	}
	rdb, err := ConnectRedis(c)
	if err != nil {
		return nil, err
	}
	return assemble(ctx, c, db, rdb), nil
}

func assemble(ctx context.Context, c *config.Config, db *pg.DB, rdb redis.RedisAdapter) *App {
	transactions := repository.NewTransactionRepository(db)
	reminderRepo := repository.NewReminderRepository(db)

	recalc := ledger.NewRecalculator(transactions, ledger.ParsePolicy(c.LedgerExplicitBalancePolicy))

	var writer services.SheetWriter
	if c.ExcelWriteback && c.ExcelPath != "" {
		writer = spreadsheet.NewWriter(c.ExcelPath, c.ExcelSheet)
	}
	finance := services.NewFinanceService(transactions, recalc, spreadsheet.NewReader(), writer, services.FinanceOptions{
		DefaultPageLimit: c.LedgerDefaultPageLimit,
		SheetPath:        c.ExcelPath,
		SheetName:        c.ExcelSheet,
	})

	voice := gateway.NewVoiceClient(VoiceConfig(c))
	a := &App{DB: db, Redis: rdb, Finance: finance, Health: services.NewHealthService(db, voice)}

	var guard services.DeliveryGuard
	if rdb != nil {
		a.Idempotency = processor.NewIdempotencyService(rdb, processor.DefaultIdempotencyConfig())
		guard = a.Idempotency
	} else {
		logger.Warn("redis not configured; reminder deliveries are not deduplicated across runs")
	}

	a.Reminders = services.NewReminderService(
		reminderRepo,
		finance,
		gateway.NewMailer(MailConfig(c)),
		voice,
		guard,
		services.ReminderOptions{CallWindow: c.ReminderCallWindow},
	)

	var llm assistant.LLM
	if c.LlmApiKey != "" {
		g, err := assistant.NewGeminiClient(ctx, c.LlmApiKey, c.LlmModel)
		if err != nil {
			logger.Error("failed to create gemini client; assistant runs without a model", "error", err)
		} else {
			llm = g
		}
	}
	a.Assistant = assistant.NewService(finance, a.Reminders, llm)
	return a
}

// StartMetrics registers the collectors and serves them on the debug
// address in the background.
func StartMetrics(c *config.Config) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, c.AppEnv, c.PromNamespace); err != nil {
		return fmt.Errorf("create prometheus metrics: %w", err)
	}
	go prom.ListenAndServer(c.AppDebugMetricsAddr, c.AppDebugMetricsURI)
	return nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ShutdownTimeout bounds graceful shutdown in every binary.
const ShutdownTimeout = 30 * time.Second
