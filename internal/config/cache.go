package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching will be disabled.
// Methods lists the HTTP methods to cache (e.g. GET, HEAD).  TTL defines the
// lifetime of cache entries.  KeyStrategy determines which parts of the request
// contribute to the cache key.
type CacheConfig struct {
	Enabled      bool            `env:"CACHE_ENABLED" envDefault:"true"`
	RawMethods   string          `env:"CACHE_METHODS" envDefault:"GET"`
	Methods      map[string]bool
	TTL          time.Duration   `env:"CACHE_TTL" envDefault:"30s"`
	KeyStrategy  string          `env:"CACHE_KEY_STRATEGY" envDefault:"route_query"`
	Prefix       string          `env:"CACHE_PREFIX" envDefault:"cache"`
	MaxBodyBytes int             `env:"CACHE_MAX_BODY_BYTES" envDefault:"1048576"`
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  All
// methods are upper-cased.
func LoadCacheConfig() (CacheConfig, error) {
	var cfg CacheConfig
	if err := env.Parse(&cfg); err != nil {
		return CacheConfig{}, fmt.Errorf("parse cache env: %w", err)
	}
	cfg.Methods = parseMethods(cfg.RawMethods)
	if cfg.TTL <= 0 {
		cfg.TTL = time.Second
	}
	return cfg, nil
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
