package config

import (
	"strings"
	"time"
)

// RateLimitConfig configures the Redis token bucket on public write endpoints.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables and normalizes them.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
		Capacity:       getEnvInt("RATE_LIMIT_CAPACITY", 20),
		RefillTokens:   getEnvInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: getEnvDuration("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second),
		TTL:            getEnvDuration("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    strings.ToLower(getEnv("RATE_LIMIT_KEY_STRATEGY", "ip_route")),
		Prefix:         getEnv("RATE_LIMIT_PREFIX", "rl"),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}
