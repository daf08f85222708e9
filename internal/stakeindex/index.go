package stakeindex

import (
	"bytes"
	"iter"
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// AuthorityPair is the key stake is grouped by inside one validator.
type AuthorityPair struct {
	Withdraw solana.PublicKey
	Stake    solana.PublicKey
}

func compareAuthorityPairs(a, b AuthorityPair) int {
	if c := bytes.Compare(a.Withdraw[:], b.Withdraw[:]); c != 0 {
		return c
	}
	return bytes.Compare(a.Stake[:], b.Stake[:])
}

type StakeGroup struct {
	Authorities AuthorityPair
	StakeMetas  []*types.StakeMeta
}

func (g *StakeGroup) ActiveStake() uint64 {
	var sum uint64
	for _, meta := range g.StakeMetas {
		sum += meta.ActiveDelegationLamports
	}
	return sum
}

// StakeAccounts returns the active delegation of every member stake account.
func (g *StakeGroup) StakeAccounts() map[solana.PublicKey]uint64 {
	accounts := make(map[solana.PublicKey]uint64, len(g.StakeMetas))
	for _, meta := range g.StakeMetas {
		accounts[meta.Pubkey] += meta.ActiveDelegationLamports
	}
	return accounts
}

// Index groups a stake meta snapshot by validator and authority pair.
type Index struct {
	ref         types.SnapshotRef
	byValidator map[solana.PublicKey]map[AuthorityPair][]*types.StakeMeta
}

func New(collection *types.StakeMetaCollection) *Index {
	idx := &Index{
		ref:         collection.Ref(),
		byValidator: make(map[solana.PublicKey]map[AuthorityPair][]*types.StakeMeta),
	}
	for i := range collection.StakeMetas {
		meta := &collection.StakeMetas[i]
		if meta.Validator == nil {
			continue
		}
		groups, ok := idx.byValidator[*meta.Validator]
		if !ok {
			groups = make(map[AuthorityPair][]*types.StakeMeta)
			idx.byValidator[*meta.Validator] = groups
		}
		key := AuthorityPair{Withdraw: meta.WithdrawAuthority, Stake: meta.StakeAuthority}
		groups[key] = append(groups[key], meta)
	}
	return idx
}

func (i *Index) Ref() types.SnapshotRef {
	return i.ref
}

func (i *Index) Epoch() uint64 {
	return i.ref.Epoch
}

func (i *Index) Slot() uint64 {
	return i.ref.Slot
}

func (i *Index) HasValidator(voteAccount solana.PublicKey) bool {
	_, ok := i.byValidator[voteAccount]
	return ok
}

// Groups yields the stake groups of the validator accepted by filter in
// canonical authority order. Unknown validators yield nothing.
func (i *Index) Groups(voteAccount solana.PublicKey, filter StakeAuthorityFilter) iter.Seq[StakeGroup] {
	return func(yield func(StakeGroup) bool) {
		groups, ok := i.byValidator[voteAccount]
		if !ok {
			return
		}
		keys := make([]AuthorityPair, 0, len(groups))
		for key, metas := range groups {
			if len(metas) == 0 || !filter(key.Stake) {
				continue
			}
			keys = append(keys, key)
		}
		slices.SortFunc(keys, compareAuthorityPairs)
		for _, key := range keys {
			if !yield(StakeGroup{Authorities: key, StakeMetas: groups[key]}) {
				return
			}
		}
	}
}

// FindStakeMeta looks a stake account up inside the validator's groups.
func (i *Index) FindStakeMeta(voteAccount, stakeAccount solana.PublicKey) (*types.StakeMeta, bool) {
	for _, metas := range i.byValidator[voteAccount] {
		for _, meta := range metas {
			if meta.Pubkey == stakeAccount {
				return meta, true
			}
		}
	}
	return nil, false
}
