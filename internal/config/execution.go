package config

import (
	"errors"
	"fmt"

	"github.com/stakebonds/bonds-settlement/internal/utils/retry"
)

const defaultParallelism = 30

type ExecutionConfig struct {
	Parallelism int `mapstructure:"parallelism"`
	// Sequential sends transactions of one plan in order, for dependency chains.
	Sequential bool `mapstructure:"sequential"`
	// Strict stops at the first failed transaction.
	Strict                   bool         `mapstructure:"strict"`
	PriorityFeeMicroLamports uint64       `mapstructure:"priority-fee-micro-lamports"`
	ComputeUnitLimit         uint32       `mapstructure:"compute-unit-limit"`
	// Retry resends a whole transaction with a fresh blockhash.
	Retry retry.Policy `mapstructure:"retry"`
}

func (cfg *ExecutionConfig) Validate() error {
	if cfg.Parallelism < 0 {
		return errors.New("execution parallelism must not be negative")
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = defaultParallelism
	}
	if err := cfg.Retry.Validate(); err != nil {
		return fmt.Errorf("execution retry: %w", err)
	}
	return nil
}
