package types

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/gagliardetto/solana-go"
)

type SettlementReason string

const (
	SettlementReasonBidding             SettlementReason = "Bidding"
	SettlementReasonProtectedEvent      SettlementReason = "ProtectedEvent"
	SettlementReasonInstitutionalPayout SettlementReason = "InstitutionalPayout"
)

func (r SettlementReason) String() string {
	return string(r)
}

func SettlementReasonFromString(s string) (SettlementReason, error) {
	switch s {
	case "bidding", SettlementReasonBidding.String():
		return SettlementReasonBidding, nil
	case "protected-events", SettlementReasonProtectedEvent.String():
		return SettlementReasonProtectedEvent, nil
	case "institutional", SettlementReasonInstitutionalPayout.String():
		return SettlementReasonInstitutionalPayout, nil
	default:
		return "", fmt.Errorf("invalid settlement reason: %s", s)
	}
}

type SettlementFunder string

const (
	FunderValidatorBond SettlementFunder = "ValidatorBond"
	FunderMarinade      SettlementFunder = "Marinade"
)

func (f SettlementFunder) String() string {
	return string(f)
}

type SettlementMeta struct {
	Funder SettlementFunder `json:"funder"`
}

type SettlementClaim struct {
	WithdrawAuthority solana.PublicKey            `json:"withdraw_authority"`
	StakeAuthority    solana.PublicKey            `json:"stake_authority"`
	StakeAccounts     map[solana.PublicKey]uint64 `json:"stake_accounts"`
	ActiveStake       uint64                      `json:"active_stake"`
	ClaimAmount       uint64                      `json:"claim_amount"`
}

// SettlementDetails keeps the reason specific data a settlement was derived from.
type SettlementDetails struct {
	ProtectedEvent *ProtectedEvent `json:"protected_event,omitempty"`
	ConfigKind     string          `json:"config_kind,omitempty"`
}

type Settlement struct {
	Reason       SettlementReason   `json:"reason"`
	Details      *SettlementDetails `json:"details,omitempty"`
	Meta         SettlementMeta     `json:"meta"`
	VoteAccount  solana.PublicKey   `json:"vote_account"`
	ClaimsCount  int                `json:"claims_count"`
	ClaimsAmount uint64             `json:"claims_amount"`
	Claims       []SettlementClaim  `json:"claims"`
}

type SettlementCollection struct {
	Epoch       uint64       `json:"epoch"`
	Slot        uint64       `json:"slot"`
	Settlements []Settlement `json:"settlements"`
}

// CompareClaims orders claims by withdraw authority, stake authority and amount.
// This is the canonical leaf order of the merkle tree.
func CompareClaims(a, b *SettlementClaim) int {
	if c := bytes.Compare(a.WithdrawAuthority[:], b.WithdrawAuthority[:]); c != 0 {
		return c
	}
	if c := bytes.Compare(a.StakeAuthority[:], b.StakeAuthority[:]); c != 0 {
		return c
	}
	switch {
	case a.ClaimAmount < b.ClaimAmount:
		return -1
	case a.ClaimAmount > b.ClaimAmount:
		return 1
	}
	return 0
}

func SortClaims(claims []SettlementClaim) {
	slices.SortStableFunc(claims, func(a, b SettlementClaim) int {
		return CompareClaims(&a, &b)
	})
}

// Seal sorts the claims canonically and recomputes the aggregates.
func (s *Settlement) Seal() {
	SortClaims(s.Claims)
	s.ClaimsCount = len(s.Claims)
	s.ClaimsAmount = 0
	for _, claim := range s.Claims {
		s.ClaimsAmount += claim.ClaimAmount
	}
}

func (s *Settlement) Validate() error {
	if s.ClaimsCount != len(s.Claims) {
		return fmt.Errorf("settlement %s: claims count %d does not match %d claims", s.VoteAccount, s.ClaimsCount, len(s.Claims))
	}
	var sum uint64
	for i := range s.Claims {
		if err := s.Claims[i].Validate(); err != nil {
			return fmt.Errorf("settlement %s: %w", s.VoteAccount, err)
		}
		sum += s.Claims[i].ClaimAmount
	}
	if sum != s.ClaimsAmount {
		return fmt.Errorf("settlement %s: claims amount %d does not match sum of claims %d", s.VoteAccount, s.ClaimsAmount, sum)
	}
	return nil
}

func (c *SettlementClaim) Validate() error {
	var sum uint64
	for _, amount := range c.StakeAccounts {
		sum += amount
	}
	if sum != c.ActiveStake {
		return fmt.Errorf("claim %s/%s: active stake %d does not match stake accounts sum %d",
			c.WithdrawAuthority, c.StakeAuthority, c.ActiveStake, sum)
	}
	return nil
}
