// Package config provides configuration loading from force.json and the environment.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the deploy daemon.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	ProjectFile       string        // force.json location
}

// LoadServiceConfig loads daemon configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 0),
		ProjectFile:       GetEnv("FORCE_PROJECT_FILE", DefaultProjectFile),
	}
}
