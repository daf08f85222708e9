package model

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

const MerkleTreesCollection = "merkle_trees"

// MerkleTreesDocument stores the merkle trees computed for one epoch, keyed
// by the epoch. Addresses and hashes are kept base58 encoded.
type MerkleTreesDocument struct {
	Epoch     uint64           `bson:"_id"`
	Slot      uint64           `bson:"slot"`
	Trees     []MerkleTreeMeta `bson:"trees"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

type MerkleTreeMeta struct {
	MerkleRoot       string     `bson:"merkle_root"`
	MaxTotalClaimSum uint64     `bson:"max_total_claim_sum"`
	MaxTotalClaims   uint64     `bson:"max_total_claims"`
	VoteAccount      string     `bson:"vote_account"`
	Reason           string     `bson:"reason"`
	Funder           string     `bson:"funder"`
	TreeNodes        []TreeNode `bson:"tree_nodes"`
}

type TreeNode struct {
	Index             uint64   `bson:"index"`
	StakeAuthority    string   `bson:"stake_authority"`
	WithdrawAuthority string   `bson:"withdraw_authority"`
	ClaimAmount       uint64   `bson:"claim_amount"`
	Proof             []string `bson:"proof"`
}

func FromMerkleTreeCollection(collection *types.MerkleTreeCollection) *MerkleTreesDocument {
	doc := &MerkleTreesDocument{
		Epoch:     collection.Epoch,
		Slot:      collection.Slot,
		Trees:     make([]MerkleTreeMeta, 0, len(collection.Trees)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, tree := range collection.Trees {
		meta := MerkleTreeMeta{
			MerkleRoot:       tree.MerkleRoot.String(),
			MaxTotalClaimSum: tree.MaxTotalClaimSum,
			MaxTotalClaims:   tree.MaxTotalClaims,
			VoteAccount:      tree.VoteAccount.String(),
			Reason:           tree.Reason.String(),
			Funder:           tree.Funder.String(),
			TreeNodes:        make([]TreeNode, 0, len(tree.TreeNodes)),
		}
		for _, node := range tree.TreeNodes {
			proof := make([]string, len(node.Proof))
			for i, hash := range node.Proof {
				proof[i] = hash.String()
			}
			meta.TreeNodes = append(meta.TreeNodes, TreeNode{
				Index:             node.Index,
				StakeAuthority:    node.StakeAuthority.String(),
				WithdrawAuthority: node.WithdrawAuthority.String(),
				ClaimAmount:       node.ClaimAmount,
				Proof:             proof,
			})
		}
		doc.Trees = append(doc.Trees, meta)
	}
	return doc
}

func (d *MerkleTreesDocument) ToMerkleTreeCollection() (*types.MerkleTreeCollection, error) {
	collection := &types.MerkleTreeCollection{
		Epoch: d.Epoch,
		Slot:  d.Slot,
		Trees: make([]types.MerkleTreeMeta, 0, len(d.Trees)),
	}
	for _, meta := range d.Trees {
		tree, err := meta.toMerkleTreeMeta()
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", d.Epoch, err)
		}
		collection.Trees = append(collection.Trees, tree)
	}
	return collection, nil
}

func (m *MerkleTreeMeta) toMerkleTreeMeta() (types.MerkleTreeMeta, error) {
	root, err := solana.HashFromBase58(m.MerkleRoot)
	if err != nil {
		return types.MerkleTreeMeta{}, fmt.Errorf("invalid merkle root %q: %w", m.MerkleRoot, err)
	}
	voteAccount, err := solana.PublicKeyFromBase58(m.VoteAccount)
	if err != nil {
		return types.MerkleTreeMeta{}, fmt.Errorf("invalid vote account %q: %w", m.VoteAccount, err)
	}
	reason, err := types.SettlementReasonFromString(m.Reason)
	if err != nil {
		return types.MerkleTreeMeta{}, err
	}
	tree := types.MerkleTreeMeta{
		MerkleRoot:       root,
		MaxTotalClaimSum: m.MaxTotalClaimSum,
		MaxTotalClaims:   m.MaxTotalClaims,
		VoteAccount:      voteAccount,
		Reason:           reason,
		Funder:           types.SettlementFunder(m.Funder),
		TreeNodes:        make([]types.TreeNode, 0, len(m.TreeNodes)),
	}
	for _, node := range m.TreeNodes {
		stakeAuthority, err := solana.PublicKeyFromBase58(node.StakeAuthority)
		if err != nil {
			return types.MerkleTreeMeta{}, fmt.Errorf("invalid stake authority %q: %w", node.StakeAuthority, err)
		}
		withdrawAuthority, err := solana.PublicKeyFromBase58(node.WithdrawAuthority)
		if err != nil {
			return types.MerkleTreeMeta{}, fmt.Errorf("invalid withdraw authority %q: %w", node.WithdrawAuthority, err)
		}
		proof := make([]solana.Hash, len(node.Proof))
		for i, hash := range node.Proof {
			if proof[i], err = solana.HashFromBase58(hash); err != nil {
				return types.MerkleTreeMeta{}, fmt.Errorf("invalid proof hash %q: %w", hash, err)
			}
		}
		tree.TreeNodes = append(tree.TreeNodes, types.TreeNode{
			Index:             node.Index,
			StakeAuthority:    stakeAuthority,
			WithdrawAuthority: withdrawAuthority,
			ClaimAmount:       node.ClaimAmount,
			Proof:             proof,
		})
	}
	return tree, nil
}
