package merkle

import (
	"context"
	"fmt"
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// BuildTreeMeta builds the merkle manifest of one settlement. Claims are
// sorted canonically first so set-equal claim lists give identical output.
func BuildTreeMeta(settlement *types.Settlement) (types.MerkleTreeMeta, error) {
	claims := slices.Clone(settlement.Claims)
	types.SortClaims(claims)

	leaves := make([]solana.Hash, len(claims))
	var claimSum uint64
	for i, claim := range claims {
		leaves[i] = HashLeaf(HashClaim(claim.StakeAuthority, claim.WithdrawAuthority, claim.ClaimAmount))
		claimSum += claim.ClaimAmount
	}
	tree, err := NewTree(leaves)
	if err != nil {
		return types.MerkleTreeMeta{}, fmt.Errorf("settlement %s: %w", settlement.VoteAccount, err)
	}

	nodes := make([]types.TreeNode, len(claims))
	for i, claim := range claims {
		proof, err := tree.Proof(i)
		if err != nil {
			return types.MerkleTreeMeta{}, err
		}
		nodes[i] = types.TreeNode{
			Index:             uint64(i),
			StakeAuthority:    claim.StakeAuthority,
			WithdrawAuthority: claim.WithdrawAuthority,
			ClaimAmount:       claim.ClaimAmount,
			Proof:             proof,
		}
	}

	return types.MerkleTreeMeta{
		MerkleRoot:       tree.Root(),
		MaxTotalClaimSum: claimSum,
		MaxTotalClaims:   uint64(len(claims)),
		VoteAccount:      settlement.VoteAccount,
		Reason:           settlement.Reason,
		Funder:           settlement.Meta.Funder,
		TreeNodes:        nodes,
	}, nil
}

// BuildCollection builds one manifest per settlement, keeping collection order.
func BuildCollection(ctx context.Context, collection *types.SettlementCollection) (*types.MerkleTreeCollection, error) {
	trees := make([]types.MerkleTreeMeta, 0, len(collection.Settlements))
	for i := range collection.Settlements {
		meta, err := BuildTreeMeta(&collection.Settlements[i])
		if err != nil {
			return nil, types.NewError(types.ValidationError, err)
		}
		log.Ctx(ctx).Debug().
			Stringer("vote_account", meta.VoteAccount).
			Stringer("merkle_root", meta.MerkleRoot).
			Uint64("max_total_claims", meta.MaxTotalClaims).
			Msg("built merkle tree")
		trees = append(trees, meta)
	}
	return &types.MerkleTreeCollection{
		Epoch: collection.Epoch,
		Slot:  collection.Slot,
		Trees: trees,
	}, nil
}

// LeafOf recomputes the leaf hash a tree node proves.
func LeafOf(node *types.TreeNode) solana.Hash {
	return HashLeaf(HashClaim(node.StakeAuthority, node.WithdrawAuthority, node.ClaimAmount))
}

// VerifyTreeNode checks the claim and the index of node against root. The
// index still has to be below the tree's leaf count, see VerifyProof.
func VerifyTreeNode(node *types.TreeNode, root solana.Hash) bool {
	return VerifyProof(node.Proof, root, LeafOf(node), node.Index)
}
