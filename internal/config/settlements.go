package config

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/stakeindex"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/pkg"
)

type BiddingConfig struct {
	MarinadeFeeBps               uint64 `mapstructure:"marinade-fee-bps"`
	MarinadeFeeStakeAuthority    string `mapstructure:"marinade-fee-stake-authority"`
	MarinadeFeeWithdrawAuthority string `mapstructure:"marinade-fee-withdraw-authority"`
}

type FeeDepositConfig struct {
	StakeAccount      string `mapstructure:"stake-account"`
	StakeAuthority    string `mapstructure:"stake-authority"`
	WithdrawAuthority string `mapstructure:"withdraw-authority"`
}

type InstitutionalConfig struct {
	MarinadeFeeDeposit FeeDepositConfig `mapstructure:"marinade-fee-deposit"`
	DaoFeeDeposit      FeeDepositConfig `mapstructure:"dao-fee-deposit"`
}

type SettlementsConfig struct {
	Bidding         BiddingConfig            `mapstructure:"bidding"`
	ProtectedEvents []types.SettlementConfig `mapstructure:"protected-events"`
	Institutional   InstitutionalConfig      `mapstructure:"institutional"`
	// StakeAuthorityWhitelist limits claims to stake controlled by the listed
	// stake authorities. Empty allows every stake authority.
	StakeAuthorityWhitelist []string `mapstructure:"stake-authority-whitelist"`
	// MarinadeFundingWithdrawAuthority owns the stake accounts that fund
	// Marinade funded settlements.
	MarinadeFundingWithdrawAuthority string `mapstructure:"marinade-funding-withdraw-authority"`
}

func (cfg *SettlementsConfig) Validate() error {
	if cfg.Bidding.MarinadeFeeBps > types.BasisPointsMax {
		return fmt.Errorf("bidding marinade-fee-bps must not exceed %d", types.BasisPointsMax)
	}
	if _, err := cfg.BiddingFeeConfig(); err != nil {
		return err
	}
	if _, err := cfg.InstitutionalFeeConfig(); err != nil {
		return err
	}
	for i := range cfg.ProtectedEvents {
		if err := cfg.ProtectedEvents[i].Validate(); err != nil {
			return fmt.Errorf("protected-events[%d]: %w", i, err)
		}
	}
	if _, err := pkg.ParsePublicKeys(cfg.StakeAuthorityWhitelist); err != nil {
		return fmt.Errorf("stake-authority-whitelist: %w", err)
	}
	if _, err := pkg.ParseOptionalPublicKey(cfg.MarinadeFundingWithdrawAuthority); err != nil {
		return fmt.Errorf("marinade-funding-withdraw-authority: %w", err)
	}
	return nil
}

func (cfg *SettlementsConfig) BiddingFeeConfig() (types.BiddingFeeConfig, error) {
	stake, err := parseOrZero(cfg.Bidding.MarinadeFeeStakeAuthority)
	if err != nil {
		return types.BiddingFeeConfig{}, fmt.Errorf("bidding marinade-fee-stake-authority: %w", err)
	}
	withdraw, err := parseOrZero(cfg.Bidding.MarinadeFeeWithdrawAuthority)
	if err != nil {
		return types.BiddingFeeConfig{}, fmt.Errorf("bidding marinade-fee-withdraw-authority: %w", err)
	}
	return types.BiddingFeeConfig{
		MarinadeFeeBps:               cfg.Bidding.MarinadeFeeBps,
		MarinadeFeeStakeAuthority:    stake,
		MarinadeFeeWithdrawAuthority: withdraw,
	}, nil
}

func (cfg *SettlementsConfig) InstitutionalFeeConfig() (types.InstitutionalFeeConfig, error) {
	marinade, err := cfg.Institutional.MarinadeFeeDeposit.parse()
	if err != nil {
		return types.InstitutionalFeeConfig{}, fmt.Errorf("institutional marinade-fee-deposit: %w", err)
	}
	dao, err := cfg.Institutional.DaoFeeDeposit.parse()
	if err != nil {
		return types.InstitutionalFeeConfig{}, fmt.Errorf("institutional dao-fee-deposit: %w", err)
	}
	return types.InstitutionalFeeConfig{MarinadeFeeDeposit: marinade, DaoFeeDeposit: dao}, nil
}

func (cfg *SettlementsConfig) StakeAuthorityFilter() stakeindex.StakeAuthorityFilter {
	keys, err := pkg.ParsePublicKeys(cfg.StakeAuthorityWhitelist)
	if err != nil {
		// Validate rejects such configs
		return stakeindex.AllowAll()
	}
	return stakeindex.FilterFromList(keys)
}

func (cfg *SettlementsConfig) MarinadeFundingAuthority() *solana.PublicKey {
	key, _ := pkg.ParseOptionalPublicKey(cfg.MarinadeFundingWithdrawAuthority)
	return key
}

func (cfg *FeeDepositConfig) parse() (types.FeeDeposit, error) {
	stakeAccount, err := parseOrZero(cfg.StakeAccount)
	if err != nil {
		return types.FeeDeposit{}, err
	}
	stakeAuthority, err := parseOrZero(cfg.StakeAuthority)
	if err != nil {
		return types.FeeDeposit{}, err
	}
	withdrawAuthority, err := parseOrZero(cfg.WithdrawAuthority)
	if err != nil {
		return types.FeeDeposit{}, err
	}
	return types.FeeDeposit{
		StakeAccount:      stakeAccount,
		StakeAuthority:    stakeAuthority,
		WithdrawAuthority: withdrawAuthority,
	}, nil
}

func parseOrZero(address string) (solana.PublicKey, error) {
	if address == "" {
		return solana.PublicKey{}, nil
	}
	return pkg.ParsePublicKey(address)
}
