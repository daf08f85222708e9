package types

import "github.com/gagliardetto/solana-go"

// Clock is the ledger time the settlement windows are evaluated against.
type Clock struct {
	Epoch uint64 `json:"epoch"`
	Slot  uint64 `json:"slot"`
}

// ConfigState is the owning configuration every bond and settlement belongs to.
type ConfigState struct {
	Address                        solana.PublicKey `json:"address"`
	AdminAuthority                 solana.PublicKey `json:"admin_authority"`
	OperatorAuthority              solana.PublicKey `json:"operator_authority"`
	PauseAuthority                 solana.PublicKey `json:"pause_authority"`
	Paused                         bool             `json:"paused"`
	EpochsToClaimSettlement        uint64           `json:"epochs_to_claim_settlement"`
	SlotsToStartSettlementClaiming uint64           `json:"slots_to_start_settlement_claiming"`
	MinimumStakeLamports           uint64           `json:"minimum_stake_lamports"`
}

type BondState struct {
	Address     solana.PublicKey `json:"address"`
	Config      solana.PublicKey `json:"config"`
	VoteAccount solana.PublicKey `json:"vote_account"`
	Authority   solana.PublicKey `json:"authority"`
}

type SettlementLedgerState struct {
	Address            solana.PublicKey  `json:"address"`
	Bond               solana.PublicKey  `json:"bond"`
	StakerAuthority    solana.PublicKey  `json:"staker_authority"`
	MerkleRoot         solana.Hash       `json:"merkle_root"`
	MaxTotalClaim      uint64            `json:"max_total_claim"`
	MaxNumNodes        uint64            `json:"max_num_nodes"`
	TotalFunded        uint64            `json:"total_funded"`
	TotalClaimed       uint64            `json:"total_claimed"`
	NumNodesClaimed    uint64            `json:"num_nodes_claimed"`
	EpochCreatedAt     uint64            `json:"epoch_created_at"`
	SlotCreatedAt      uint64            `json:"slot_created_at"`
	RentCollector      solana.PublicKey  `json:"rent_collector"`
	SplitRentCollector *solana.PublicKey `json:"split_rent_collector,omitempty"`
	SplitRentAmount    uint64            `json:"split_rent_amount"`
}

func (s *SettlementLedgerState) IsFunded() bool {
	return s.TotalFunded >= s.MaxTotalClaim
}

func (s *SettlementLedgerState) IsFullyClaimed() bool {
	return s.MaxNumNodes > 0 && s.NumNodesClaimed >= s.MaxNumNodes
}

type StakeAccount struct {
	Address           solana.PublicKey  `json:"address"`
	StakeAuthority    solana.PublicKey  `json:"stake_authority"`
	WithdrawAuthority solana.PublicKey  `json:"withdraw_authority"`
	Lamports          uint64            `json:"lamports"`
	Voter             *solana.PublicKey `json:"voter,omitempty"`
}
