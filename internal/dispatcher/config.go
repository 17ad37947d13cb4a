package dispatcher

import (
	"time"

	"forcecode/internal/config"
)

// MemoryConfig tunes the in-memory dispatcher.
type MemoryConfig struct {
	BufferSize       int           // pending events (default 1000)
	Workers          int           // delivery goroutines (default 4)
	HTTPTimeout      time.Duration // per request (default 10s)
	MaxRetries       int           // retries after the first attempt (default 3, negative for none)
	InitialBackoff   time.Duration // first retry delay, doubled each retry (default 100ms)
	MaxBackoff       time.Duration // cap on a single retry delay (default 5s)
	BreakerThreshold int           // consecutive failures that open a host's breaker (default 5)
	BreakerCooldown  time.Duration // open time, also the requeue delay (default 30s)
	MaxRequeues      int           // requeues while a breaker is open before dropping (default 10)
}

// LoadConfigFromEnv reads DISPATCHER_* variables.
func LoadConfigFromEnv() MemoryConfig {
	cfg := MemoryConfig{
		BufferSize:       config.GetIntEnv("DISPATCHER_BUFFER_SIZE", 1000),
		Workers:          config.GetIntEnv("DISPATCHER_WORKERS", 4),
		HTTPTimeout:      config.GetDurationEnv("DISPATCHER_HTTP_TIMEOUT", 10*time.Second),
		MaxRetries:       config.GetIntEnv("DISPATCHER_MAX_RETRIES", 3),
		BreakerThreshold: config.GetIntEnv("DISPATCHER_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  config.GetDurationEnv("DISPATCHER_BREAKER_COOLDOWN", 30*time.Second),
	}
	return cfg.withDefaults()
}

func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.MaxRequeues <= 0 {
		c.MaxRequeues = 10
	}
	return c
}
