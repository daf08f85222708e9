package ledger

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/dedup"
	"github.com/stakebonds/bonds-settlement/internal/lifecycle"
	"github.com/stakebonds/bonds-settlement/internal/merkle"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type simFixture struct {
	ledger     *Simulated
	bond       types.BondState
	bondStake  solana.PublicKey
	tree       types.MerkleTreeMeta
	settlement solana.PublicKey
	claimers   []solana.PublicKey
}

func newSimFixture(t *testing.T) *simFixture {
	t.Helper()
	config := types.ConfigState{
		Address:                        testutil.RandomPubkey(),
		EpochsToClaimSettlement:        3,
		SlotsToStartSettlementClaiming: 10,
	}
	l := NewSimulated(testutil.RandomPubkey(), config, types.Clock{Epoch: 100, Slot: 43_200_000})

	vote := testutil.RandomPubkey()
	bond, err := l.AddBond(vote, testutil.RandomPubkey())
	require.NoError(t, err)
	bondStake := testutil.RandomPubkey()
	require.NoError(t, l.AddBondStake(bond, bondStake, 1_000))

	settlement := types.Settlement{VoteAccount: vote}
	var claimers []solana.PublicKey
	for _, amount := range []uint64{100, 200} {
		claim := types.SettlementClaim{
			WithdrawAuthority: testutil.RandomPubkey(),
			StakeAuthority:    testutil.RandomPubkey(),
			StakeAccounts:     map[solana.PublicKey]uint64{},
			ClaimAmount:       amount,
		}
		settlement.Claims = append(settlement.Claims, claim)
	}
	settlement.Seal()
	tree, err := merkle.BuildTreeMeta(&settlement)
	require.NoError(t, err)
	for _, node := range tree.TreeNodes {
		address := testutil.RandomPubkey()
		l.AddStakeAccount(types.StakeAccount{
			Address:           address,
			StakeAuthority:    node.StakeAuthority,
			WithdrawAuthority: node.WithdrawAuthority,
		})
		claimers = append(claimers, address)
	}

	address, err := SettlementAddress(l.ProgramID(), bond.Address, tree.MerkleRoot, 99)
	require.NoError(t, err)
	return &simFixture{ledger: l, bond: bond, bondStake: bondStake, tree: tree, settlement: address, claimers: claimers}
}

func (f *simFixture) initIx() Instruction {
	return Instruction{
		Kind:       InitSettlement,
		Settlement: f.settlement,
		Bond:       f.bond.Address,
		Init: &InitArgs{
			VoteAccount:   f.bond.VoteAccount,
			MerkleRoot:    f.tree.MerkleRoot,
			MaxTotalClaim: f.tree.MaxTotalClaimSum,
			MaxNumNodes:   f.tree.MaxTotalClaims,
			Epoch:         99,
			RentCollector: testutil.RandomPubkey(),
		},
	}
}

func (f *simFixture) claimIx(i int) Instruction {
	return Instruction{
		Kind:       ClaimSettlement,
		Settlement: f.settlement,
		Claim:      &ClaimArgs{Node: f.tree.TreeNodes[i], StakeAccountTo: f.claimers[i]},
	}
}

func TestSimulatedLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	l := f.ledger

	_, err := l.Execute(ctx, NewTransaction("init",
		f.initIx(),
		Instruction{Kind: UpsizeSettlementClaims, Settlement: f.settlement},
	), PriorityFee{})
	require.NoError(t, err)

	settlements, err := l.FindSettlements(ctx)
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, f.settlement, settlements[0].Address)
	assert.Equal(t, uint64(2), settlements[0].MaxNumNodes)

	bitmaps, err := l.ClaimBitmaps(ctx, []solana.PublicKey{f.settlement, testutil.RandomPubkey()})
	require.NoError(t, err)
	require.Len(t, bitmaps, 1)
	assert.True(t, bitmaps[f.settlement].IsFullySized())

	_, err = l.Execute(ctx, NewTransaction("init again", f.initIx()), PriorityFee{})
	require.ErrorIs(t, err, ErrSettlementExists)

	stakes, err := l.BondStakeAccounts(ctx, f.bond)
	require.NoError(t, err)
	require.Len(t, stakes, 1)

	_, err = l.Execute(ctx, NewTransaction("fund", Instruction{
		Kind:       FundSettlement,
		Settlement: f.settlement,
		Fund:       &FundArgs{StakeAccount: f.bondStake, Lamports: 300},
	}), PriorityFee{})
	require.NoError(t, err)
	account, ok := l.StakeAccount(f.bondStake)
	require.True(t, ok)
	assert.Equal(t, uint64(700), account.Lamports)

	l.SetClock(types.Clock{Epoch: 100, Slot: 43_200_010})
	receipt, err := l.Execute(ctx, NewTransaction("claim", f.claimIx(0), f.claimIx(1)), PriorityFee{})
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.ExecutedIxs)

	for i, node := range f.tree.TreeNodes {
		account, ok := l.StakeAccount(f.claimers[i])
		require.True(t, ok)
		assert.Equal(t, node.ClaimAmount, account.Lamports)
	}

	_, err = l.Execute(ctx, NewTransaction("claim again", f.claimIx(0)), PriorityFee{})
	require.ErrorIs(t, err, lifecycle.ErrDuplicateClaim)
	assert.True(t, IsRejected(err))

	_, err = l.Execute(ctx, NewTransaction("close", Instruction{Kind: CloseSettlement, Settlement: f.settlement}), PriorityFee{})
	require.NoError(t, err)
	settlements, err = l.FindSettlements(ctx)
	require.NoError(t, err)
	assert.Empty(t, settlements)
	require.Len(t, l.Refunds(), 1)
	assert.Zero(t, l.Refunds()[0].UnclaimedLamports)
}

func TestSimulatedTransactionIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	l := f.ledger

	_, err := l.Execute(ctx, NewTransaction("init and bad claim", f.initIx(), f.claimIx(0)), PriorityFee{})
	require.Error(t, err)
	// claim fails: the settlement is neither sized nor funded
	assert.True(t, IsRejected(err))

	settlements, err := l.FindSettlements(ctx)
	require.NoError(t, err)
	assert.Empty(t, settlements)
}

func TestSimulatedRejects(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	l := f.ledger

	bad := f.initIx()
	bad.Settlement = testutil.RandomPubkey()
	_, err := l.Execute(ctx, NewTransaction("wrong address", bad), PriorityFee{})
	require.ErrorIs(t, err, ErrSettlementAddressMismatch)

	_, err = l.Execute(ctx, NewTransaction("init", f.initIx(), Instruction{Kind: UpsizeSettlementClaims, Settlement: f.settlement}), PriorityFee{})
	require.NoError(t, err)

	_, err = l.Execute(ctx, NewTransaction("upsize again", Instruction{Kind: UpsizeSettlementClaims, Settlement: f.settlement}), PriorityFee{})
	require.ErrorIs(t, err, dedup.ErrAlreadyInitialized)

	_, err = l.Execute(ctx, NewTransaction("overfund", Instruction{
		Kind:       FundSettlement,
		Settlement: f.settlement,
		Fund:       &FundArgs{StakeAccount: f.bondStake, Lamports: 5_000},
	}), PriorityFee{})
	require.ErrorIs(t, err, ErrInsufficientStake)

	wrongTo := f.claimIx(0)
	wrongTo.Claim.StakeAccountTo = f.claimers[1]
	_, err = l.Execute(ctx, NewTransaction("wrong destination", wrongTo), PriorityFee{})
	require.ErrorIs(t, err, ErrStakeAccountMismatch)

	l.SetPaused(true)
	_, err = l.Execute(ctx, NewTransaction("cancel while paused", Instruction{Kind: CancelSettlement, Settlement: f.settlement}), PriorityFee{})
	require.ErrorIs(t, err, lifecycle.ErrProgramPaused)
	l.SetPaused(false)

	_, err = l.Execute(ctx, NewTransaction("cancel", Instruction{Kind: CancelSettlement, Settlement: f.settlement}), PriorityFee{})
	require.NoError(t, err)

	_, err = l.Execute(ctx, NewTransaction("invalid", Instruction{Kind: FundSettlement, Settlement: f.settlement}), PriorityFee{})
	require.Error(t, err)
}

func TestSimulatedInjectedFailures(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	f.ledger.InjectFailures(1)

	_, err := f.ledger.Execute(ctx, NewTransaction("init", f.initIx()), PriorityFee{})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.RetryableError))
	assert.False(t, IsRejected(err))

	_, err = f.ledger.Execute(ctx, NewTransaction("init", f.initIx()), PriorityFee{})
	require.NoError(t, err)
}

func TestSettlementAddressIsDeterministic(t *testing.T) {
	programID := testutil.RandomPubkey()
	bond := testutil.RandomPubkey()
	root := solana.Hash{7}

	a, err := SettlementAddress(programID, bond, root, 10)
	require.NoError(t, err)
	b, err := SettlementAddress(programID, bond, root, 10)
	require.NoError(t, err)
	c, err := SettlementAddress(programID, bond, root, 11)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
