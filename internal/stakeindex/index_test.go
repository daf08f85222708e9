package stakeindex

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectGroups(idx *Index, vote solana.PublicKey, filter StakeAuthorityFilter) []StakeGroup {
	var groups []StakeGroup
	for group := range idx.Groups(vote, filter) {
		groups = append(groups, group)
	}
	return groups
}

func TestIndex(t *testing.T) {
	validatorA := testutil.RandomPubkey()
	validatorB := testutil.RandomPubkey()
	withdraw := testutil.RandomPubkey()
	stakeX := testutil.RandomPubkey()
	stakeY := testutil.RandomPubkey()

	collection := &types.StakeMetaCollection{
		Epoch: 600,
		Slot:  259_200_000,
		StakeMetas: []types.StakeMeta{
			testutil.StakeMeta(validatorA, withdraw, stakeX, 100),
			testutil.StakeMeta(validatorA, withdraw, stakeX, 50),
			testutil.StakeMeta(validatorA, withdraw, stakeY, 30),
			testutil.StakeMeta(validatorB, withdraw, stakeY, 7),
			{Pubkey: testutil.RandomPubkey(), WithdrawAuthority: withdraw, StakeAuthority: stakeX},
		},
	}
	idx := New(collection)

	t.Run("snapshot reference", func(t *testing.T) {
		assert.Equal(t, uint64(600), idx.Epoch())
		assert.Equal(t, uint64(259_200_000), idx.Slot())
	})

	t.Run("groups by authority pair", func(t *testing.T) {
		groups := collectGroups(idx, validatorA, AllowAll())
		require.Len(t, groups, 2)

		byStake := map[solana.PublicKey]StakeGroup{}
		for _, g := range groups {
			byStake[g.Authorities.Stake] = g
		}
		gx, gy := byStake[stakeX], byStake[stakeY]
		assert.Equal(t, uint64(150), gx.ActiveStake())
		assert.Len(t, gx.StakeAccounts(), 2)
		assert.Equal(t, uint64(30), gy.ActiveStake())
	})

	t.Run("filter restricts stake authorities", func(t *testing.T) {
		groups := collectGroups(idx, validatorA, AllowList(stakeY))
		require.Len(t, groups, 1)
		assert.Equal(t, stakeY, groups[0].Authorities.Stake)
	})

	t.Run("unknown validator yields nothing", func(t *testing.T) {
		assert.Empty(t, collectGroups(idx, testutil.RandomPubkey(), AllowAll()))
		assert.False(t, idx.HasValidator(testutil.RandomPubkey()))
	})

	t.Run("groups come out in canonical order", func(t *testing.T) {
		first := collectGroups(idx, validatorA, AllowAll())
		for range 10 {
			assert.Equal(t, first, collectGroups(idx, validatorA, AllowAll()))
		}
	})

	t.Run("find stake meta", func(t *testing.T) {
		meta, ok := idx.FindStakeMeta(validatorB, collection.StakeMetas[3].Pubkey)
		require.True(t, ok)
		assert.Equal(t, uint64(7), meta.ActiveDelegationLamports)
	})
}

func TestFilterFromList(t *testing.T) {
	key := testutil.RandomPubkey()
	assert.True(t, FilterFromList(nil)(key))
	assert.False(t, FilterFromList([]solana.PublicKey{testutil.RandomPubkey()})(key))
	assert.True(t, FilterFromList([]solana.PublicKey{key})(key))
}
