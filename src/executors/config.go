package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MonitorInterval   time.Duration `envconfig:"MONITOR_INTERVAL" default:"60s"`
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"60s"`
	SignalInterval    time.Duration `envconfig:"SIGNAL_INTERVAL" default:"60s"`

	// DefaultUserIntervalMinutes applies when a user has no per-user analysis
	// interval configured.
	DefaultUserIntervalMinutes int `envconfig:"DEFAULT_USER_INTERVAL_MINUTES" default:"30"`

	// SignalValidityMinutes is the validity window stamped on new signals.
	SignalValidityMinutes int `envconfig:"SIGNAL_VALIDITY_MINUTES" default:"60"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
