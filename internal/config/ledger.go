package config

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/pkg"
)

const (
	LedgerBackendRPC       = "rpc"
	LedgerBackendSimulated = "simulated"
)

type LedgerConfig struct {
	// Backend is either rpc or simulated. The simulated backend keeps the
	// settlement program in memory, useful for dry runs.
	Backend         string `mapstructure:"backend"`
	ProgramID       string `mapstructure:"program-id"`
	ConfigAddress   string `mapstructure:"config-address"`
	OperatorKeypair string `mapstructure:"operator-keypair"`
	RentCollector   string `mapstructure:"rent-collector"`
}

func (cfg *LedgerConfig) Validate() error {
	switch cfg.Backend {
	case "":
		cfg.Backend = LedgerBackendRPC
	case LedgerBackendRPC, LedgerBackendSimulated:
	default:
		return fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
	if err := pkg.ValidateSolanaAddress(cfg.ProgramID); err != nil {
		return fmt.Errorf("ledger program-id: %w", err)
	}
	if err := pkg.ValidateSolanaAddress(cfg.ConfigAddress); err != nil {
		return fmt.Errorf("ledger config-address: %w", err)
	}
	if cfg.Backend == LedgerBackendRPC && cfg.OperatorKeypair == "" {
		return errors.New("ledger operator-keypair is required for the rpc backend")
	}
	if cfg.RentCollector != "" {
		if err := pkg.ValidateSolanaAddress(cfg.RentCollector); err != nil {
			return fmt.Errorf("ledger rent-collector: %w", err)
		}
	}
	return nil
}

func (cfg *LedgerConfig) ProgramPubkey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(cfg.ProgramID)
}

func (cfg *LedgerConfig) ConfigPubkey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(cfg.ConfigAddress)
}

// RentCollectorPubkey returns the configured rent collector or fallback.
func (cfg *LedgerConfig) RentCollectorPubkey(fallback solana.PublicKey) solana.PublicKey {
	if cfg.RentCollector == "" {
		return fallback
	}
	return solana.MustPublicKeyFromBase58(cfg.RentCollector)
}
