package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/remixcast/creditledger/pkg/credits"
)

const (
	defaultListenAddr         = ":9090"
	defaultAllowedOrigin      = "http://localhost:8000"
	defaultSessionIssuer      = "creditledger"
	defaultSessionCookie      = "app_session"
	defaultRequestTimeout     = 3 * time.Second
	defaultDailyBonusCredits  = credits.Credits(1)
	defaultGiftListLimit      = 50
	sessionClaimsContextKey   = "auth_claims"
	adminRole                 = "admin"
	authorizationHeader       = "Authorization"
	authorizationBearerPrefix = "Bearer"
	requestIDHeader           = "X-Request-ID"
	requestIDContextKey       = "request_id"
)

// Config aggregates runtime settings for the HTTP API.
type Config struct {
	ListenAddr        string
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	RequestTimeout    time.Duration
	DailyBonusCredits credits.Credits
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if cfg.DailyBonusCredits <= 0 {
		cfg.DailyBonusCredits = defaultDailyBonusCredits
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("session signing key is required")
	}
	if strings.TrimSpace(cfg.SessionIssuer) == "" {
		return fmt.Errorf("session issuer is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
