package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Solana      *SolanaConfig     `mapstructure:"solana"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Execution   ExecutionConfig   `mapstructure:"execution"`
	Settlements SettlementsConfig `mapstructure:"settlements"`
	Poller      PollerConfig      `mapstructure:"poller"`
	Db          *DbConfig         `mapstructure:"db"`
	Queue       *QueueConfig      `mapstructure:"queue"`
	Metrics     *MetricsConfig    `mapstructure:"metrics"`
}

func (cfg *Config) Validate() error {
	if err := cfg.Ledger.Validate(); err != nil {
		return err
	}
	if cfg.Ledger.Backend == LedgerBackendRPC {
		if cfg.Solana == nil {
			return fmt.Errorf("solana config is required for the %s ledger backend", LedgerBackendRPC)
		}
		if err := cfg.Solana.Validate(); err != nil {
			return err
		}
	}
	if err := cfg.Execution.Validate(); err != nil {
		return err
	}
	if err := cfg.Settlements.Validate(); err != nil {
		return err
	}
	if err := cfg.Poller.Validate(); err != nil {
		return err
	}

	// db, queue and metrics are optional
	if cfg.Db != nil {
		if err := cfg.Db.Validate(); err != nil {
			return err
		}
	}
	if cfg.Queue != nil {
		if err := cfg.Queue.Validate(); err != nil {
			return err
		}
	}
	if cfg.Metrics != nil {
		if err := cfg.Metrics.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// New returns a fully parsed Config object from a given file directory
func New(cfgFile string) (*Config, error) {
	if _, err := os.Stat(cfgFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(cfgFile)
	v.AutomaticEnv()
	/*
		Below code will replace nested fields in yml into `_` and any `-` into `__` when you try to override this config via env variable
		To give an example:
		1. `solana.rpc-addr` can be overridden by `SOLANA_RPC__ADDR`
		2. `ledger.operator-keypair` can be overridden by `LEDGER_OPERATOR__KEYPAIR`
	*/
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "__"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
