package types

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const BasisPointsMax = 10_000

type SettlementConfigKind string

const (
	SettlementConfigDowntimeRevenueImpact SettlementConfigKind = "DowntimeRevenueImpact"
	SettlementConfigCommissionIncrease    SettlementConfigKind = "CommissionIncrease"
)

// EventKind is the protected event kind a settlement config is matched against.
func (k SettlementConfigKind) EventKind() ProtectedEventKind {
	switch k {
	case SettlementConfigDowntimeRevenueImpact:
		return ProtectedEventLowCredits
	case SettlementConfigCommissionIncrease:
		return ProtectedEventCommissionIncrease
	default:
		return ""
	}
}

// SettlementConfig makes one settlement responsible for the [lo, hi] basis
// point band of a protected event's EPR loss.
type SettlementConfig struct {
	Kind                  SettlementConfigKind `json:"kind" mapstructure:"kind"`
	Meta                  SettlementMeta       `json:"meta" mapstructure:"meta"`
	MinSettlementLamports uint64               `json:"min_settlement_lamports" mapstructure:"min-settlement-lamports"`
	GraceBps              uint64               `json:"grace_bps" mapstructure:"grace-bps"`
	CoveredRangeBps       [2]uint64            `json:"covered_range_bps" mapstructure:"covered-range-bps"`
}

func (c *SettlementConfig) Validate() error {
	if c.Kind.EventKind() == "" {
		return fmt.Errorf("unknown settlement config kind %q", c.Kind)
	}
	if c.Meta.Funder != FunderValidatorBond && c.Meta.Funder != FunderMarinade {
		return fmt.Errorf("settlement config %s: unknown funder %q", c.Kind, c.Meta.Funder)
	}
	lo, hi := c.CoveredRangeBps[0], c.CoveredRangeBps[1]
	if lo > hi || hi > BasisPointsMax {
		return fmt.Errorf("settlement config %s: invalid covered range [%d, %d]", c.Kind, lo, hi)
	}
	return nil
}

// BiddingFeeConfig identifies the fee claim of bid settlements.
type BiddingFeeConfig struct {
	MarinadeFeeBps               uint64
	MarinadeFeeStakeAuthority    solana.PublicKey
	MarinadeFeeWithdrawAuthority solana.PublicKey
}

type FeeDeposit struct {
	StakeAccount      solana.PublicKey
	StakeAuthority    solana.PublicKey
	WithdrawAuthority solana.PublicKey
}

type InstitutionalFeeConfig struct {
	MarinadeFeeDeposit FeeDeposit
	DaoFeeDeposit      FeeDeposit
}
