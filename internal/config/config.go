package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime configuration values. Read once at startup and
// treated as immutable afterwards.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string
	DatabaseURL string

	// SessionSigningKey signs stateless session tokens. The process refuses
	// to start without it; there is no unsigned fallback mode.
	SessionSigningKey []byte
	Issuer            string

	ClientID            string
	RedirectURIPrefixes []string

	AuthCodeTTL     time.Duration
	DeviceTokenTTL  time.Duration
	SessionTokenTTL time.Duration
	RefreshTokenTTL time.Duration

	SkipLicenseCheck bool
	OpaqueTokenBytes int

	SignInURL  string
	BillingURL string
	ConnectURL string

	AdminKeyHash         string
	BillingWebhookSecret string

	WorkspaceAPIBaseURL string

	TelemetryEndpoint string
	TelemetryInsecure bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		ServiceName:          getEnv("SERVICE_NAME", "assistant-link-auth"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		SessionSigningKey:    []byte(os.Getenv("SESSION_SIGNING_KEY")),
		Issuer:               getEnv("TOKEN_ISSUER", "assistant-link-auth"),
		ClientID:             os.Getenv("LINK_CLIENT_ID"),
		RedirectURIPrefixes:  getList("LINK_REDIRECT_URI_PREFIXES", nil),
		AuthCodeTTL:          getDuration("AUTH_CODE_TTL", 600*time.Second),
		DeviceTokenTTL:       getDuration("DEVICE_TOKEN_TTL", 24*time.Hour),
		SessionTokenTTL:      getDuration("SESSION_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:      getDuration("REFRESH_TOKEN_TTL", 720*time.Hour),
		SkipLicenseCheck:     getBool("LINK_SKIP_LICENSE_CHECK", false),
		OpaqueTokenBytes:     getInt("OPAQUE_TOKEN_BYTES", 32),
		SignInURL:            getEnv("SIGNIN_URL", "/signin"),
		BillingURL:           getEnv("BILLING_URL", "/billing"),
		ConnectURL:           getEnv("CONNECT_URL", "/connect"),
		AdminKeyHash:         os.Getenv("ADMIN_KEY_HASH"),
		BillingWebhookSecret: os.Getenv("BILLING_WEBHOOK_SECRET"),
		WorkspaceAPIBaseURL:  getEnv("WORKSPACE_API_BASE_URL", ""),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if len(cfg.SessionSigningKey) == 0 {
		return Config{}, fmt.Errorf("SESSION_SIGNING_KEY is required")
	}
	if cfg.ClientID == "" {
		return Config{}, fmt.Errorf("LINK_CLIENT_ID is required")
	}
	if len(cfg.RedirectURIPrefixes) == 0 {
		return Config{}, fmt.Errorf("LINK_REDIRECT_URI_PREFIXES is required")
	}
	if cfg.AdminKeyHash == "" {
		return Config{}, fmt.Errorf("ADMIN_KEY_HASH is required")
	}
	if cfg.BillingWebhookSecret == "" {
		return Config{}, fmt.Errorf("BILLING_WEBHOOK_SECRET is required")
	}
	if cfg.WorkspaceAPIBaseURL == "" {
		return Config{}, fmt.Errorf("WORKSPACE_API_BASE_URL is required")
	}

	if cfg.OpaqueTokenBytes < 32 {
		cfg.OpaqueTokenBytes = 32
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
