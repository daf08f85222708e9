package merkle

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	leafPrefix = byte(0x00)
	nodePrefix = byte(0x01)
)

var ErrEmptyTree = errors.New("merkle tree needs at least one leaf")

// HashClaim is the hash of the claim data a leaf commits to.
func HashClaim(stakeAuthority, withdrawAuthority solana.PublicKey, claimAmount uint64) solana.Hash {
	var amount [8]byte
	binary.LittleEndian.PutUint64(amount[:], claimAmount)
	h := sha256.New()
	h.Write(stakeAuthority[:])
	h.Write(withdrawAuthority[:])
	h.Write(amount[:])
	return solana.Hash(h.Sum(nil))
}

func HashLeaf(claimHash solana.Hash) solana.Hash {
	return solana.Hash(sha256.Sum256(append([]byte{leafPrefix}, claimHash[:]...)))
}

// hashNodes keeps the positional order of the pair, so a proof only
// verifies for the leaf index it was built for.
func hashNodes(left, right solana.Hash) solana.Hash {
	buf := make([]byte, 0, 1+2*len(left))
	buf = append(buf, nodePrefix)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return solana.Hash(sha256.Sum256(buf))
}

// Tree is a binary merkle tree. A level with an odd number of nodes pairs its
// last node with itself.
type Tree struct {
	levels [][]solana.Hash
}

func NewTree(leaves []solana.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	level := make([]solana.Hash, len(leaves))
	copy(level, leaves)
	levels := [][]solana.Hash{level}
	for len(level) > 1 {
		next := make([]solana.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashNodes(level[i], right))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}, nil
}

func (t *Tree) Root() solana.Hash {
	return t.levels[len(t.levels)-1][0]
}

func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Proof returns the sibling path from the leaf at index up to the root.
func (t *Tree) Proof(index int) ([]solana.Hash, error) {
	if index < 0 || index >= t.LeafCount() {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", index, t.LeafCount())
	}
	proof := make([]solana.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		proof = append(proof, level[sibling])
		index /= 2
	}
	return proof, nil
}

// VerifyProof checks that leaf sits at index of the tree with the given root.
// The bits of index pick the side of every level, lowest bit first. Indexes
// at or beyond the leaf count can still alias a self-paired last node, so
// callers bound index by the number of leaves.
func VerifyProof(proof []solana.Hash, root, leaf solana.Hash, index uint64) bool {
	if len(proof) < 64 && index>>len(proof) != 0 {
		return false
	}
	hash := leaf
	for _, sibling := range proof {
		if index&1 == 0 {
			hash = hashNodes(hash, sibling)
		} else {
			hash = hashNodes(sibling, hash)
		}
		index >>= 1
	}
	return hash == root
}
