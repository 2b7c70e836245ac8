package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted in LLM_PROVIDER.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	// NATS configuration
	NatsURL             string
	NatsInboundSubject  string
	NatsOutboundSubject string
	NatsTimeout         time.Duration

	// LLM configuration
	LLMProvider     string
	LLMTimeout      time.Duration
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string

	// Conversation context
	RedisURL         string
	ContextTTL       time.Duration
	InactivityWindow time.Duration
	TranscriptLimit  int

	// Ledger
	DatabasePath        string
	CataloguePath       string
	Partitions          []string
	IncomePartitions    []string
	DuplicateMinOverlap int

	// Service configuration
	ServiceName string
	LogLevel    string
}

func Load() (*Config, error) {
	cfg := &Config{
		// NATS settings
		NatsURL:             getEnv("NATS_URL", "nats://localhost:4222"),
		NatsInboundSubject:  getEnv("NATS_INBOUND_SUBJECT", "ledger.message.in"),
		NatsOutboundSubject: getEnv("NATS_OUTBOUND_SUBJECT", "ledger.message.out"),
		NatsTimeout:         getDurationEnv("NATS_TIMEOUT", 30*time.Second),

		// LLM settings
		LLMProvider: strings.ToLower(getEnv("LLM_PROVIDER", ProviderAnthropic)),
		// ANTHROPIC_TIMEOUT is still honoured for older deployments.
		LLMTimeout:      getDurationEnv("LLM_TIMEOUT", getDurationEnv("ANTHROPIC_TIMEOUT", 60*time.Second)),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		// Conversation context settings
		RedisURL:         getEnv("REDIS_URL", ""),
		ContextTTL:       getDurationEnv("CONTEXT_TTL", 24*time.Hour),
		InactivityWindow: getDurationEnv("INACTIVITY_WINDOW", 30*time.Minute),
		TranscriptLimit:  getIntEnv("TRANSCRIPT_LIMIT", 40),

		// Ledger settings
		DatabasePath:        getEnv("DATABASE_PATH", "ledger.db"),
		CataloguePath:       getEnv("CATALOGUE_PATH", ""),
		Partitions:          getListEnv("LEDGER_PARTITIONS", []string{"fixed_expense", "variable_expense", "income", "investment"}),
		IncomePartitions:    getListEnv("INCOME_PARTITIONS", []string{"income"}),
		DuplicateMinOverlap: getIntEnv("DUPLICATE_MIN_OVERLAP", 3),

		// Service settings
		ServiceName: getEnv("SERVICE_NAME", "ledgerbuddy"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected provider has credentials and that the
// ledger has at least one partition.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (valid: %s, %s)", c.LLMProvider, ProviderAnthropic, ProviderOpenAI)
	}

	if len(c.Partitions) == 0 {
		return fmt.Errorf("LEDGER_PARTITIONS must list at least one partition")
	}
	for _, p := range c.IncomePartitions {
		if !contains(c.Partitions, p) {
			return fmt.Errorf("income partition %q is not in LEDGER_PARTITIONS", p)
		}
	}
	if c.InactivityWindow <= 0 {
		return fmt.Errorf("INACTIVITY_WINDOW must be positive")
	}
	return nil
}

// Model returns the model name for the selected provider.
func (c *Config) Model() string {
	if c.LLMProvider == ProviderOpenAI {
		return c.OpenAIModel
	}
	return c.AnthropicModel
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated variable, dropping blanks.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
