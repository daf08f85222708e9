package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/stakebonds/bonds-settlement/internal/utils/retry"
)

const (
	defaultSolanaBatchSize = 100
	maxSolanaBatchSize     = 100
	defaultConfirmTimeout  = 90 * time.Second
)

type SolanaConfig struct {
	RPCAddr           string        `mapstructure:"rpc-addr"`
	Commitment        string        `mapstructure:"commitment"`
	Timeout           time.Duration `mapstructure:"timeout"`
	BatchSize         int           `mapstructure:"batch-size"`
	RequestsPerSecond float64       `mapstructure:"requests-per-second"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm-timeout"`
	// Retry applies to reads; sends are retried by the executor.
	Retry retry.Policy `mapstructure:"retry"`
}

func (cfg *SolanaConfig) Validate() error {
	if cfg.RPCAddr == "" {
		return errors.New("solana rpc-addr is required")
	}
	switch cfg.Commitment {
	case "":
		cfg.Commitment = "confirmed"
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid solana commitment %q", cfg.Commitment)
	}
	if cfg.Timeout <= 0 {
		return errors.New("solana timeout must be positive")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSolanaBatchSize
	}
	if cfg.BatchSize > maxSolanaBatchSize {
		return fmt.Errorf("solana batch-size must not exceed %d", maxSolanaBatchSize)
	}
	if cfg.RequestsPerSecond < 0 {
		return errors.New("solana requests-per-second must not be negative")
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if err := cfg.Retry.Validate(); err != nil {
		return fmt.Errorf("solana retry: %w", err)
	}
	return nil
}
