package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the schedule response cache.  When Enabled
// is false or no Redis client is configured, caching is disabled.  Methods
// lists the HTTP methods to cache and TTL the lifetime of entries.
// KeyStrategy determines which parts of the request contribute to the cache
// key.  GenerationKey names the Redis counter that is bumped whenever seat
// availability changes; every cache key embeds its current value so a bump
// invalidates all cached schedule listings at once.
type CacheConfig struct {
	Enabled       bool
	Methods       map[string]bool
	TTL           time.Duration
	KeyStrategy   string
	Prefix        string
	GenerationKey string
	MaxBodyBytes  int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
func LoadCacheConfig() CacheConfig {
	prefix := envStr("CACHE_PREFIX", "cache")
	return CacheConfig{
		Enabled:       envBool("CACHE_ENABLED", true),
		Methods:       parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:           envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:   envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:        prefix,
		GenerationKey: envStr("CACHE_GENERATION_KEY", prefix+":schedules:gen"),
		MaxBodyBytes:  envInt("CACHE_MAX_BODY_BYTES", 1048576),
	}
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
