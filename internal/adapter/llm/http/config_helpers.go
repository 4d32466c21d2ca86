package http

import (
	"time"

	"github.com/sentinelci/pr-sentinel/internal/config"
)

// ParseTimeout resolves a timeout with the fallback chain
// provider override > global > default. Negative values are rejected;
// they would panic inside http.Client.
func ParseTimeout(providerOverride *string, globalTimeout string, defaultVal time.Duration) time.Duration {
	if providerOverride != nil && *providerOverride != "" {
		if d, err := time.ParseDuration(*providerOverride); err == nil && d >= 0 {
			return d
		}
	}
	if globalTimeout != "" {
		if d, err := time.ParseDuration(globalTimeout); err == nil && d >= 0 {
			return d
		}
	}
	if defaultVal < 0 {
		return 60 * time.Second
	}
	return defaultVal
}

// BuildRetryConfig merges provider overrides over global HTTP settings.
func BuildRetryConfig(provider config.ProviderConfig, httpCfg config.HTTPConfig) RetryConfig {
	maxRetries := httpCfg.MaxRetries
	if provider.MaxRetries != nil {
		maxRetries = *provider.MaxRetries
	}

	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: parseDuration(provider.InitialBackoff, httpCfg.InitialBackoff, 2*time.Second),
		MaxBackoff:     parseDuration(provider.MaxBackoff, httpCfg.MaxBackoff, 32*time.Second),
		Multiplier:     httpCfg.BackoffMultiplier,
	}
}

func parseDuration(override *string, global string, defaultVal time.Duration) time.Duration {
	if override != nil && *override != "" {
		if d, err := time.ParseDuration(*override); err == nil && d >= 0 {
			return d
		}
	}
	if global != "" {
		if d, err := time.ParseDuration(global); err == nil && d >= 0 {
			return d
		}
	}
	if defaultVal < 0 {
		return 2 * time.Second
	}
	return defaultVal
}
