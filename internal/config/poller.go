package config

import (
	"errors"
	"time"
)

const defaultWatchInterval = 10 * time.Minute

type PollerConfig struct {
	// WatchInterval is how often the watch daemon reconciles stored epochs.
	WatchInterval time.Duration `mapstructure:"watch-interval"`
	// WatchEpochs bounds how many recent epochs are reconciled per poll.
	WatchEpochs uint64 `mapstructure:"watch-epochs"`
}

func (cfg *PollerConfig) Validate() error {
	if cfg.WatchInterval < 0 {
		return errors.New("watch-interval must not be negative")
	}
	if cfg.WatchInterval == 0 {
		cfg.WatchInterval = defaultWatchInterval
	}
	if cfg.WatchEpochs == 0 {
		return errors.New("watch-epochs must be positive")
	}
	return nil
}
