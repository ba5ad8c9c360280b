package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"

var config *Config

// Config holds every configuration value of the service. Nothing else should
// read the environment directly.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=finance_ledger"`
	AppDebug            bool   `env:"APP_DEBUG,default=true"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR,default=:9100"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`
	AppBaseUrl          string `env:"APP_BASE_URL,default=http://localhost:4000"`

	HttpListenAddr         string        `env:"HTTP_LISTEN_ADDR,default=:4000"`
	HttpBaseRequestUrl     string        `env:"HTTP_BASE_REQUEST_URI,default=/api/v1"`
	HttpRequestTimeout     time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=90s"`
	HttpServerReadTimeout  time.Duration `env:"HTTP_SERVER_READ_TIMEOUT,default=30s"`
	HttpServerWriteTimeout time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT,default=90s"`
	HttpMaxRequestBodySize int           `env:"HTTP_MAX_REQUEST_BODY_SIZE,default=10485760"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=ledger:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=finance_ledger"`

	LogLevel []string `env:"LOG_LEVEL"`

	// computed | explicit
	LedgerExplicitBalancePolicy string `env:"LEDGER_EXPLICIT_BALANCE_POLICY,default=computed"`
	LedgerDefaultPageLimit      int    `env:"LEDGER_DEFAULT_PAGE_LIMIT,default=5000"`

	ExcelPath      string `env:"PATH_EXCEL"`
	ExcelSheet     string `env:"EXCEL_SHEET,default=Dados"`
	ExcelWriteback bool   `env:"EXCEL_WRITEBACK,default=false"`

	EmailHost     string        `env:"EMAIL_HOST"`
	EmailPort     int           `env:"EMAIL_PORT,default=587"`
	EmailUser     string        `env:"EMAIL_USER"`
	EmailPassword string        `env:"EMAIL_PASSWORD"`
	EmailFrom     string        `env:"EMAIL_FROM"`
	EmailTimeout  time.Duration `env:"EMAIL_TIMEOUT,default=10s"`

	VoiceBaseUrl          string        `env:"TWILIO_BASE_URL,default=https://api.twilio.com"`
	VoiceAccountSid       string        `env:"TWILIO_ACCOUNT_SID"`
	VoiceAuthToken        string        `env:"TWILIO_AUTH_TOKEN"`
	VoiceFromNumber       string        `env:"TWILIO_FROM_NUMBER"`
	VoiceTimeout          time.Duration `env:"TWILIO_TIMEOUT,default=10s"`
	VoiceMaxRetries       int           `env:"TWILIO_MAX_RETRIES,default=2"`
	VoiceRetryDelay       time.Duration `env:"TWILIO_RETRY_DELAY,default=500ms"`
	VoiceCircuitThreshold int           `env:"TWILIO_CIRCUIT_THRESHOLD,default=5"`
	VoiceCircuitTimeout   time.Duration `env:"TWILIO_CIRCUIT_TIMEOUT,default=1m"`

	LlmApiKey string `env:"GEMINI_API_KEY"`
	LlmModel  string `env:"LLM_MODEL,default=gemini-2.5-flash"`

	ReminderProcessTimeout time.Duration `env:"REMINDER_PROCESS_TIMEOUT,default=60s"`
	ReminderCheckInterval  time.Duration `env:"REMINDER_CHECK_INTERVAL,default=1h"`
	ReminderDailyAt        string        `env:"REMINDER_DAILY_AT,default=08:00"`
	ReminderCallWindow     time.Duration `env:"REMINDER_CALL_WINDOW,default=30m"`

	QueueName              string        `env:"QUEUE_NAME,default=reminders"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=reminder-workers"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=2"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=3"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=2m"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=1s"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=1000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Config")
	}

	config = c
	return nil
}

// Set replaces the active configuration. Used by tests and tools that build
// the config in code.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
