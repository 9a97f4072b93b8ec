package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Prospect-facing scheduling portal
	FrontendURL          string
	SchedulerEmbedURL    string
	SchedulerAPIKey      string
	ReconcileDelays      []time.Duration
	FallbackRevealDelay  time.Duration
	StaleBookingCutoff   time.Duration
	PortalSessionBaseURL string

	// E-signature provider (NDA envelopes)
	ESignBaseURL     string
	ESignAPIKey      string
	ESignTemplateID  string
	ESignSendTimeout time.Duration

	// Partner notifications
	PartnerNotifyEmail string
	EmailFromAddress   string
	EmailFromName      string

	// AWS (SES)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Redis (request-nda dedup lock)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:5173"),
		SchedulerEmbedURL:    getEnv("SCHEDULER_EMBED_URL", ""),
		SchedulerAPIKey:      getEnv("SCHEDULER_API_KEY", ""),
		ReconcileDelays:      getEnvAsDurations("RECONCILE_DELAYS", []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}),
		FallbackRevealDelay:  getEnvAsDuration("FALLBACK_REVEAL_DELAY", 30*time.Second),
		StaleBookingCutoff:   getEnvAsDuration("STALE_BOOKING_CUTOFF", 24*time.Hour),
		PortalSessionBaseURL: getEnv("PORTAL_SESSION_BASE_URL", ""),

		ESignBaseURL:     getEnv("ESIGN_BASE_URL", ""),
		ESignAPIKey:      getEnv("ESIGN_API_KEY", ""),
		ESignTemplateID:  getEnv("ESIGN_TEMPLATE_ID", ""),
		ESignSendTimeout: getEnvAsDuration("ESIGN_SEND_TIMEOUT", 15*time.Second),

		PartnerNotifyEmail: getEnv("PARTNER_NOTIFY_EMAIL", ""),
		EmailFromAddress:   getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "Baxter Labs"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDurations parses a comma-separated list of durations, e.g. "2s,4s,8s".
func getEnvAsDurations(key string, defaultValue []time.Duration) []time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
