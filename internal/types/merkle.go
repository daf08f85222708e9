package types

import "github.com/gagliardetto/solana-go"

// TreeNode is one merkle leaf together with the proof needed to claim it.
type TreeNode struct {
	Index             uint64           `json:"index"`
	StakeAuthority    solana.PublicKey `json:"stake_authority"`
	WithdrawAuthority solana.PublicKey `json:"withdraw_authority"`
	ClaimAmount       uint64           `json:"claim"`
	Proof             []solana.Hash    `json:"proof"`
}

type MerkleTreeMeta struct {
	MerkleRoot       solana.Hash      `json:"merkle_root"`
	MaxTotalClaimSum uint64           `json:"max_total_claim_sum"`
	MaxTotalClaims   uint64           `json:"max_total_claims"`
	VoteAccount      solana.PublicKey `json:"vote_account"`
	Reason           SettlementReason `json:"reason"`
	Funder           SettlementFunder `json:"funder"`
	TreeNodes        []TreeNode       `json:"tree_nodes"`
}

type MerkleTreeCollection struct {
	Epoch uint64           `json:"epoch"`
	Slot  uint64           `json:"slot"`
	Trees []MerkleTreeMeta `json:"merkle_trees"`
}
