package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

// ValidatorBidMeta is the auction outcome of one validator for an epoch.
// Stake targets are in SOL, the effective bid is in lamports per lamport
// of eligible stake.
type ValidatorBidMeta struct {
	VoteAccount       solana.PublicKey   `json:"vote_account"`
	EffectiveBid      sdkmath.LegacyDec  `json:"effective_bid"`
	SamTargetSol      sdkmath.LegacyDec  `json:"sam_target_sol"`
	MndeTargetSol     sdkmath.LegacyDec  `json:"mnde_target_sol"`
	MaxStakeWantedSol *sdkmath.LegacyDec `json:"max_stake_wanted_sol,omitempty"`
}

type BidMetaCollection struct {
	Epoch      uint64             `json:"epoch"`
	Slot       uint64             `json:"slot"`
	Validators []ValidatorBidMeta `json:"validators"`
}

func (c *BidMetaCollection) Ref() SnapshotRef {
	return SnapshotRef{Epoch: c.Epoch, Slot: c.Slot}
}

type ProtectedEventKind string

const (
	ProtectedEventCommissionIncrease ProtectedEventKind = "CommissionIncrease"
	ProtectedEventLowCredits         ProtectedEventKind = "LowCredits"
)

// ProtectedEvent describes a measured revenue loss of the stakers of one
// validator. Expected and actual EPR are rewards per lamport of stake.
type ProtectedEvent struct {
	Kind               ProtectedEventKind `json:"kind"`
	VoteAccount        solana.PublicKey   `json:"vote_account"`
	ExpectedEpr        sdkmath.LegacyDec  `json:"expected_epr"`
	ActualEpr          sdkmath.LegacyDec  `json:"actual_epr"`
	EprLossBps         uint64             `json:"epr_loss_bps"`
	Stake              uint64             `json:"stake"`
	PreviousCommission uint8              `json:"previous_commission,omitempty"`
	CurrentCommission  uint8              `json:"current_commission,omitempty"`
	ExpectedCredits    uint64             `json:"expected_credits,omitempty"`
	ActualCredits      uint64             `json:"actual_credits,omitempty"`
}

// GraceMeasureBps returns the quantity compared against a settlement
// config's grace threshold: missed credits for LowCredits, commission
// increase for CommissionIncrease, both in basis points.
func (e *ProtectedEvent) GraceMeasureBps() uint64 {
	switch e.Kind {
	case ProtectedEventLowCredits:
		if e.ExpectedCredits == 0 || e.ActualCredits >= e.ExpectedCredits {
			return 0
		}
		return (e.ExpectedCredits - e.ActualCredits) * 10_000 / e.ExpectedCredits
	case ProtectedEventCommissionIncrease:
		if e.CurrentCommission <= e.PreviousCommission {
			return 0
		}
		return uint64(e.CurrentCommission-e.PreviousCommission) * 100
	default:
		return 0
	}
}

type ProtectedEventCollection struct {
	Epoch  uint64           `json:"epoch"`
	Slot   uint64           `json:"slot"`
	Events []ProtectedEvent `json:"events"`
}

func (c *ProtectedEventCollection) Ref() SnapshotRef {
	return SnapshotRef{Epoch: c.Epoch, Slot: c.Slot}
}

type DistributorType string

const (
	DistributorMarinade DistributorType = "Marinade"
	DistributorDAO      DistributorType = "DAO"
)

// InstitutionalPayoutStaker is a payout already computed for one stake account.
type InstitutionalPayoutStaker struct {
	StakeAccount      solana.PublicKey `json:"stake_account"`
	WithdrawAuthority solana.PublicKey `json:"withdraw_authority"`
	StakeAuthority    solana.PublicKey `json:"stake_authority"`
	VoteAccount       solana.PublicKey `json:"vote_account"`
	ActiveStake       uint64           `json:"active_stake"`
	PayoutLamports    uint64           `json:"payout_lamports"`
}

type InstitutionalPayoutDistributor struct {
	VoteAccount     solana.PublicKey `json:"vote_account"`
	DistributorType DistributorType  `json:"distributor_type"`
	PayoutLamports  uint64           `json:"payout_lamports"`
}

type InstitutionalPayout struct {
	Epoch              uint64                           `json:"epoch"`
	Slot               uint64                           `json:"slot"`
	PayoutStakers      []InstitutionalPayoutStaker      `json:"payout_stakers"`
	PayoutDistributors []InstitutionalPayoutDistributor `json:"payout_distributors"`
}

func (c *InstitutionalPayout) Ref() SnapshotRef {
	return SnapshotRef{Epoch: c.Epoch, Slot: c.Slot}
}
