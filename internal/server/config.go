// Package server provides configuration helpers that define runtime defaults,
// environment loading and validation for the relay service.
package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/relaychat/internal/audit"
	"github.com/Tyrowin/relaychat/internal/rates"
)

// ErrInvalidConfig wraps every configuration loading or validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `validate:"gt=0"`
	RefillInterval time.Duration `validate:"gt=0"`
}

// RatesConfig configures the upstream queried by the exchange command.
type RatesConfig struct {
	URL        string        `validate:"required,url"`
	ArchiveURL string        `validate:"required,url"`
	Timeout    time.Duration `validate:"gt=0"`
	MaxDays    int           `validate:"gt=0"`
}

// Config holds the server configuration.
type Config struct {
	Port            string `validate:"required"`
	AllowedOrigins  []string
	MaxMessageSize  int64 `validate:"gt=0"`
	SendBufferSize  int   `validate:"gt=0"`
	EchoToSender    bool
	RateLimit       RateLimitConfig
	Rates           RatesConfig
	Audit           audit.Config
	ShutdownTimeout time.Duration `validate:"gt=0"`
	LogLevel        string        `validate:"oneof=debug info warn error"`
	LogFormat       string        `validate:"oneof=json text"`
}

// envConfig mirrors Config as flat environment variables. Unset variables
// keep the value already present in the struct.
type envConfig struct {
	Port                    string        `env:"SERVER_PORT"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS"`
	MaxMessageSize          int           `env:"MAX_MESSAGE_SIZE"`
	SendBufferSize          int           `env:"SEND_BUFFER_SIZE"`
	EchoToSender            bool          `env:"ECHO_TO_SENDER"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`
	RatesURL                string        `env:"RATES_URL"`
	RatesArchiveURL         string        `env:"RATES_ARCHIVE_URL"`
	RateFetchTimeout        time.Duration `env:"RATE_FETCH_TIMEOUT"`
	RateMaxDays             int           `env:"RATE_MAX_DAYS"`
	AuditBackend            string        `env:"AUDIT_BACKEND"`
	AuditFile               string        `env:"AUDIT_FILE"`
	RedisAddr               string        `env:"REDIS_ADDR"`
	RedisPassword           string        `env:"REDIS_PASSWORD"`
	RedisDB                 int           `env:"REDIS_DB"`
	AuditRedisKey           string        `env:"AUDIT_REDIS_KEY"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel                string        `env:"LOG_LEVEL"`
	LogFormat               string        `env:"LOG_FORMAT"`
}

var validate = validator.New()

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 512,
		SendBufferSize: 256,
		EchoToSender:   true,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Rates: RatesConfig{
			URL:        rates.DefaultURL,
			ArchiveURL: rates.DefaultArchiveURL,
			Timeout:    5 * time.Second,
			MaxDays:    rates.DefaultMaxDays,
		},
		Audit: audit.Config{
			Backend:  audit.BackendFile,
			File:     "exchange_logs.txt",
			RedisKey: "relaychat:audit",
		},
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig reads an optional .env file, overlays the process environment
// on the defaults and validates the result.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: load .env: %v", ErrInvalidConfig, err)
	}

	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return ConfigFromEnvSet(es)
}

// ConfigFromEnvSet builds a validated Config from the given variables.
func ConfigFromEnvSet(es env.EnvSet) (*Config, error) {
	cfg := defaultConfig()
	raw := toEnvConfig(cfg)

	if err := env.Unmarshal(es, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg = raw.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func toEnvConfig(cfg Config) envConfig {
	return envConfig{
		Port:                    cfg.Port,
		AllowedOrigins:          strings.Join(cfg.AllowedOrigins, ","),
		MaxMessageSize:          int(cfg.MaxMessageSize),
		SendBufferSize:          cfg.SendBufferSize,
		EchoToSender:            cfg.EchoToSender,
		RateLimitBurst:          cfg.RateLimit.Burst,
		RateLimitRefillInterval: cfg.RateLimit.RefillInterval,
		RatesURL:                cfg.Rates.URL,
		RatesArchiveURL:         cfg.Rates.ArchiveURL,
		RateFetchTimeout:        cfg.Rates.Timeout,
		RateMaxDays:             cfg.Rates.MaxDays,
		AuditBackend:            cfg.Audit.Backend,
		AuditFile:               cfg.Audit.File,
		RedisAddr:               cfg.Audit.RedisAddr,
		RedisPassword:           cfg.Audit.RedisPassword,
		RedisDB:                 cfg.Audit.RedisDB,
		AuditRedisKey:           cfg.Audit.RedisKey,
		ShutdownTimeout:         cfg.ShutdownTimeout,
		LogLevel:                cfg.LogLevel,
		LogFormat:               cfg.LogFormat,
	}
}

func (e envConfig) apply(cfg Config) Config {
	cfg.Port = normalizePort(e.Port)
	cfg.AllowedOrigins = parseOrigins(e.AllowedOrigins)
	cfg.MaxMessageSize = int64(e.MaxMessageSize)
	cfg.SendBufferSize = e.SendBufferSize
	cfg.EchoToSender = e.EchoToSender
	cfg.RateLimit = RateLimitConfig{
		Burst:          e.RateLimitBurst,
		RefillInterval: e.RateLimitRefillInterval,
	}
	cfg.Rates = RatesConfig{
		URL:        e.RatesURL,
		ArchiveURL: e.RatesArchiveURL,
		Timeout:    e.RateFetchTimeout,
		MaxDays:    e.RateMaxDays,
	}
	cfg.Audit = audit.Config{
		Backend:       strings.ToLower(strings.TrimSpace(e.AuditBackend)),
		File:          e.AuditFile,
		RedisAddr:     e.RedisAddr,
		RedisPassword: e.RedisPassword,
		RedisDB:       e.RedisDB,
		RedisKey:      e.AuditRedisKey,
	}
	cfg.ShutdownTimeout = e.ShutdownTimeout
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(e.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(e.LogFormat))
	return cfg
}

// normalizePort accepts both "8080" and ":8080".
func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port != "" && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
