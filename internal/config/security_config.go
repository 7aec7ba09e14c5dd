package config

import (
	"strings"
)

// SecurityConfig holds HTTP hardening settings
type SecurityConfig struct {
	// Per-IP limits for the caller API
	IPRateLimit float64
	IPRateBurst int

	// Per-IP limits for the vendor webhook endpoint. Vendors retry in bursts.
	WebhookRateLimit float64
	WebhookRateBurst int

	CORSAllowedOrigins []string
}

// DefaultSecurityConfig returns the security configuration from the environment
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		IPRateLimit:        getEnvFloat("RATE_LIMIT_RPS", 10),
		IPRateBurst:        getEnvInt("RATE_LIMIT_BURST", 20),
		WebhookRateLimit:   getEnvFloat("WEBHOOK_RATE_LIMIT_RPS", 50),
		WebhookRateBurst:   getEnvInt("WEBHOOK_RATE_LIMIT_BURST", 100),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
