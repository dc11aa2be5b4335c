// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// MigrationConfig provides migration runner settings.
type MigrationConfig interface {
	DatabaseConfig
	GetMigrationsDir() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler and the
// due-sequence dispatcher.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetPollInterval() time.Duration
	GetPollBatchSize() int
}

// ReasoningConfig provides settings for the external reasoning service.
type ReasoningConfig interface {
	GetReasoningAPIURL() string
	GetReasoningAPIKey() string
	GetReasoningModel() string
	GetReasoningTimeout() time.Duration
	IsReasoningEnabled() bool
}

// OutreachConfig provides settings for outbound message delivery.
type OutreachConfig interface {
	GetOutreachSMTPHost() string
	GetOutreachSMTPPort() int
	GetOutreachSMTPUsername() string
	GetOutreachSMTPPassword() string
	GetOutreachFromName() string
	GetOutreachFromAddress() string
	GetStoreBaseURL() string
	IsOutreachSMTPEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	MigrationsDir       string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	PollInterval        time.Duration
	PollBatchSize       int
	ReasoningAPIURL     string
	ReasoningAPIKey     string
	ReasoningModel      string
	ReasoningTimeout    time.Duration
	OutreachSMTPHost    string
	OutreachSMTPPort    int
	OutreachSMTPUser    string
	OutreachSMTPPass    string
	OutreachFromName    string
	OutreachFromAddress string
	StoreBaseURL        string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// MigrationConfig implementation
func (c *Config) GetMigrationsDir() string { return c.MigrationsDir }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }
func (c *Config) GetPollInterval() time.Duration  { return c.PollInterval }
func (c *Config) GetPollBatchSize() int           { return c.PollBatchSize }

// ReasoningConfig implementation
func (c *Config) GetReasoningAPIURL() string        { return c.ReasoningAPIURL }
func (c *Config) GetReasoningAPIKey() string        { return c.ReasoningAPIKey }
func (c *Config) GetReasoningModel() string         { return c.ReasoningModel }
func (c *Config) GetReasoningTimeout() time.Duration { return c.ReasoningTimeout }
func (c *Config) IsReasoningEnabled() bool {
	return c.ReasoningAPIURL != "" && c.ReasoningAPIKey != ""
}

// OutreachConfig implementation
func (c *Config) GetOutreachSMTPHost() string     { return c.OutreachSMTPHost }
func (c *Config) GetOutreachSMTPPort() int        { return c.OutreachSMTPPort }
func (c *Config) GetOutreachSMTPUsername() string { return c.OutreachSMTPUser }
func (c *Config) GetOutreachSMTPPassword() string { return c.OutreachSMTPPass }
func (c *Config) GetOutreachFromName() string     { return c.OutreachFromName }
func (c *Config) GetOutreachFromAddress() string  { return c.OutreachFromAddress }
func (c *Config) GetStoreBaseURL() string         { return c.StoreBaseURL }
func (c *Config) IsOutreachSMTPEnabled() bool     { return c.OutreachSMTPHost != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "migrations"),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "autosales"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		PollInterval:        mustDuration(getEnv("AUTOSALES_POLL_INTERVAL", "5s")),
		PollBatchSize:       mustInt(getEnv("AUTOSALES_POLL_BATCH", "10")),
		ReasoningAPIURL:     getEnv("REASONING_API_URL", ""),
		ReasoningAPIKey:     getEnv("REASONING_API_KEY", ""),
		ReasoningModel:      getEnv("REASONING_MODEL", "kimi-k2-turbo-preview"),
		ReasoningTimeout:    mustDuration(getEnv("REASONING_TIMEOUT", "10s")),
		OutreachSMTPHost:    getEnv("OUTREACH_SMTP_HOST", ""),
		OutreachSMTPPort:    mustInt(getEnv("OUTREACH_SMTP_PORT", "587")),
		OutreachSMTPUser:    getEnv("OUTREACH_SMTP_USERNAME", ""),
		OutreachSMTPPass:    getEnv("OUTREACH_SMTP_PASSWORD", ""),
		OutreachFromName:    getEnv("OUTREACH_FROM_NAME", "Petshop"),
		OutreachFromAddress: getEnv("OUTREACH_FROM_ADDRESS", ""),
		StoreBaseURL:        getEnv("STORE_BASE_URL", "http://localhost:4200"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func mustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
