package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the incident dispatch service
type Config struct {
	// Server configuration
	Port               string
	AllowedOrigins     []string
	RateLimitPerMinute int
	MaxUploadBytes     int64

	// LLM configuration
	LLMProvider       string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIVisionModel string
	GeminiAPIKey      string
	GeminiBaseURL     string
	GeminiModel       string

	// Evidence limits
	MaxImages     int
	MaxImageBytes int

	// Concurrency and timeouts
	VisionConcurrency int
	VisionTimeout     time.Duration
	ClassifyTimeout   time.Duration
	RetrievalTimeout  time.Duration
	ExecutorTimeout   time.Duration

	// Municipal (Open311) executor
	Open311URL    string
	Open311APIKey string

	// Emergency call executor
	VapiAPIKey                 string
	VapiBaseURL                string
	VapiPhoneNumberID          string
	EmergencyDestinationNumber string

	// Draft tokens; empty secret keeps the confirm step stateless
	DraftTokenSecret string
	DraftTokenTTL    time.Duration

	// Lifecycle event publishing
	RabbitMQ RabbitMQConfig

	// Dispatch audit log
	AuditEnabled bool
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string

	// Executed dispatch notifications
	SendGridAPIKey    string
	SendGridFromName  string
	SendGridFromEmail string
	NotifyEmails      []string

	// Logging
	LogLevel string
}

// RabbitMQConfig holds the broker settings used to publish lifecycle events
type RabbitMQConfig struct {
	Enabled    bool
	Host       string
	Port       string
	User       string
	Password   string
	Exchange   string
	RoutingKey string
}

// GetAMQPURL returns the AMQP connection URL
func (r RabbitMQConfig) GetAMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

// Load loads configuration from environment variables, reading a .env file first if present
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to load .env file: %v", err)
	}

	config := &Config{
		// Server defaults
		Port:               getEnv("PORT", "8080"),
		AllowedOrigins:     getStringSliceEnv("ALLOWED_ORIGINS", "*"),
		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 30),
		MaxUploadBytes:     int64(getIntEnv("MAX_UPLOAD_MB", 32)) << 20,

		// LLM defaults
		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "o3-mini-2025-01-31"),
		OpenAIVisionModel: getEnv("OPENAI_VISION_MODEL", "o1"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		MaxImages:     getIntEnv("MAX_IMAGES", 8),
		MaxImageBytes: getIntEnv("MAX_IMAGE_BYTES", 10<<20),

		VisionConcurrency: getIntEnv("VISION_CONCURRENCY", 3),
		VisionTimeout:     getDurationEnv("VISION_TIMEOUT", 45*time.Second),
		ClassifyTimeout:   getDurationEnv("CLASSIFY_TIMEOUT", 60*time.Second),
		RetrievalTimeout:  getDurationEnv("RETRIEVAL_TIMEOUT", 5*time.Second),
		ExecutorTimeout:   getDurationEnv("EXECUTOR_TIMEOUT", 30*time.Second),

		Open311URL:    getEnv("OPEN311_URL", "http://localhost:3001/requests"),
		Open311APIKey: getEnv("OPEN311_API_KEY", ""),

		VapiAPIKey:                 getEnv("VAPI_API_KEY", ""),
		VapiBaseURL:                getEnv("VAPI_BASE_URL", "https://api.vapi.ai"),
		VapiPhoneNumberID:          getEnv("VAPI_PHONE_NUMBER_ID", ""),
		EmergencyDestinationNumber: getEnv("EMERGENCY_DESTINATION_NUMBER", ""),

		DraftTokenSecret: getEnv("DRAFT_TOKEN_SECRET", ""),
		DraftTokenTTL:    getDurationEnv("DRAFT_TOKEN_TTL", 15*time.Minute),

		RabbitMQ: RabbitMQConfig{
			Enabled:    getBoolEnv("RABBITMQ_ENABLED", false),
			Host:       getEnv("AMQP_HOST", "localhost"),
			Port:       getEnv("AMQP_PORT", "5672"),
			User:       getEnv("AMQP_USER", "guest"),
			Password:   getEnv("AMQP_PASSWORD", "guest"),
			Exchange:   getEnv("RABBITMQ_EXCHANGE", "dispatch-exchange"),
			RoutingKey: getEnv("RABBITMQ_DISPATCH_ROUTING_KEY", "incident-dispatch"),
		},

		AuditEnabled: getBoolEnv("AUDIT_ENABLED", false),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "3306"),
		DBUser:       getEnv("DB_USER", "server"),
		DBPassword:   getEnv("DB_PASSWORD", "secret_app"),
		DBName:       getEnv("DB_NAME", "incident_dispatch"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Incident Dispatch"),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", "dispatch@localhost"),
		NotifyEmails:      getStringSliceEnv("NOTIFY_EMAILS", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// Validate checks that the selected providers have the credentials they need
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
	case "stub":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (expected openai, gemini or stub)", c.LLMProvider)
	}
	if c.Open311URL == "" {
		return fmt.Errorf("OPEN311_URL environment variable is required")
	}
	if c.VisionConcurrency <= 0 {
		return fmt.Errorf("VISION_CONCURRENCY must be greater than 0")
	}
	if c.MaxImages < 0 {
		return fmt.Errorf("MAX_IMAGES must not be negative")
	}
	return nil
}

// EmergencyConfigured reports whether the emergency call executor can place calls
func (c *Config) EmergencyConfigured() bool {
	return c.VapiAPIKey != "" && c.VapiPhoneNumberID != "" && c.EmergencyDestinationNumber != ""
}

// getStringSliceEnv gets a comma-separated string environment variable and returns it as a string slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv gets a boolean environment variable or returns a default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
