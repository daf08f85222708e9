//go:build e2e

package e2etest

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/config"
	"github.com/stakebonds/bonds-settlement/internal/ledger"
	"github.com/stakebonds/bonds-settlement/internal/services"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/internal/utils/retry"
	"github.com/stakebonds/bonds-settlement/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	epoch = 600
	slot  = 259_200_000
)

type staker struct {
	withdraw solana.PublicKey
	stake    solana.PublicKey
	active   uint64
	account  solana.PublicKey
}

// TestBiddingEpoch drives one bidding epoch from the snapshots to paid stake
// accounts and a closed settlement.
func TestBiddingEpoch(t *testing.T) {
	ctx := context.Background()
	vote := testutil.RandomPubkey()
	fee := &staker{withdraw: testutil.RandomPubkey(), stake: testutil.RandomPubkey()}
	stakers := []*staker{
		{withdraw: testutil.RandomPubkey(), stake: testutil.RandomPubkey(), active: 600},
		{withdraw: testutil.RandomPubkey(), stake: testutil.RandomPubkey(), active: 400},
	}

	cfg := &config.Config{
		Settlements: config.SettlementsConfig{
			Bidding: config.BiddingConfig{
				MarinadeFeeBps:               1000,
				MarinadeFeeStakeAuthority:    fee.stake.String(),
				MarinadeFeeWithdrawAuthority: fee.withdraw.String(),
			},
		},
		Execution: config.ExecutionConfig{
			Parallelism: 2,
			Retry:       retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		},
	}

	sim := ledger.NewSimulated(testutil.RandomPubkey(), types.ConfigState{
		Address:                 testutil.RandomPubkey(),
		EpochsToClaimSettlement: 2,
	}, types.Clock{Epoch: epoch + 1, Slot: slot + 432_000})
	bond, err := sim.AddBond(vote, testutil.RandomPubkey())
	require.NoError(t, err)
	require.NoError(t, sim.AddBondStake(bond, testutil.RandomPubkey(), 1_000_000))

	service := services.NewService(cfg, sim, testutil.RandomPubkey(), nil, nil)

	stakeMetas := &types.StakeMetaCollection{Epoch: epoch, Slot: slot}
	for _, s := range stakers {
		stakeMetas.StakeMetas = append(stakeMetas.StakeMetas, testutil.StakeMeta(vote, s.withdraw, s.stake, s.active))
	}
	bids := &types.BidMetaCollection{
		Epoch: epoch,
		Slot:  slot,
		Validators: []types.ValidatorBidMeta{{
			VoteAccount:   vote,
			EffectiveBid:  sdkmath.LegacyNewDec(100),
			SamTargetSol:  sdkmath.LegacyMustNewDecFromStr("0.000001"),
			MndeTargetSol: sdkmath.LegacyZeroDec(),
		}},
	}

	settlements, err := service.GenerateSettlements(ctx, types.SettlementReasonBidding, services.GenerateInputs{
		StakeMetas: stakeMetas,
		Bids:       bids,
	})
	require.NoError(t, err)
	require.Len(t, settlements.Settlements, 1)
	assert.Equal(t, uint64(100_000), settlements.Settlements[0].ClaimsAmount)

	trees, err := service.GenerateMerkleTrees(ctx, settlements)
	require.NoError(t, err)
	require.Len(t, trees.Trees, 1)

	addAccount := func(s *staker) {
		s.account = testutil.RandomPubkey()
		sim.AddStakeAccount(types.StakeAccount{
			Address:           s.account,
			StakeAuthority:    s.stake,
			WithdrawAuthority: s.withdraw,
		})
	}
	addAccount(fee)
	addAccount(stakers[0])

	// a transient rpc failure is retried within the run
	sim.InjectFailures(1)
	require.NoError(t, service.RunEpoch(ctx, trees, false))

	paid := map[*staker]uint64{fee: 10_000, stakers[0]: 54_000}
	assertPaid := func() {
		for s, lamports := range paid {
			account, ok := sim.StakeAccount(s.account)
			require.True(t, ok)
			assert.Equal(t, lamports, account.Lamports)
		}
	}
	assertPaid()

	// nothing is paid twice
	require.NoError(t, service.RunEpoch(ctx, trees, false))
	assertPaid()
	open, err := sim.FindSettlements(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, uint64(64_000), open[0].TotalClaimed)

	// the last staker shows up later, paying it completes the settlement
	addAccount(stakers[1])
	paid[stakers[1]] = 36_000
	require.NoError(t, service.RunEpoch(ctx, trees, false))
	assertPaid()

	remaining, err := sim.FindSettlements(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	refunds := sim.Refunds()
	require.Len(t, refunds, 1)
	assert.Zero(t, refunds[0].UnclaimedLamports)

	// once the window is over the closed settlement stays closed
	sim.SetClock(types.Clock{Epoch: epoch + 3, Slot: slot + 3*432_000})
	require.NoError(t, service.RunEpoch(ctx, trees, false))
	remaining, err = sim.FindSettlements(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assertPaid()
}
