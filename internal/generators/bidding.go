package generators

import (
	"context"
	"maps"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/stakeindex"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// GenerateBidSettlements turns the auction results of an epoch into one
// settlement per validator paying its effective bid to the Marinade stakers.
func GenerateBidSettlements(
	ctx context.Context,
	index *stakeindex.Index,
	bids *types.BidMetaCollection,
	filter stakeindex.StakeAuthorityFilter,
	feeConfig types.BiddingFeeConfig,
) ([]types.Settlement, error) {
	if err := types.EnsureSameSnapshot("bid metadata", index.Ref(), bids.Ref()); err != nil {
		return nil, err
	}
	if feeConfig.MarinadeFeeBps > types.BasisPointsMax {
		return nil, types.NewValidationError("marinade fee bps %d exceeds %d", feeConfig.MarinadeFeeBps, types.BasisPointsMax)
	}

	log := log.Ctx(ctx)
	feeAuthorities := stakeindex.AuthorityPair{
		Withdraw: feeConfig.MarinadeFeeWithdrawAuthority,
		Stake:    feeConfig.MarinadeFeeStakeAuthority,
	}

	var settlements []types.Settlement
	for _, bid := range bids.Validators {
		effectiveBid := decOrZero(bid.EffectiveBid)
		if !effectiveBid.IsPositive() {
			continue
		}
		if !index.HasValidator(bid.VoteAccount) {
			log.Debug().Stringer("vote_account", bid.VoteAccount).Msg("validator not found in stake meta index, skipping bid")
			continue
		}

		var groups []stakeindex.StakeGroup
		marinadeStake := sdkmath.ZeroInt()
		for group := range index.Groups(bid.VoteAccount, filter) {
			active := group.ActiveStake()
			if active == 0 {
				continue
			}
			groups = append(groups, group)
			marinadeStake = marinadeStake.Add(sdkmath.NewIntFromUint64(active))
		}
		if marinadeStake.IsZero() {
			continue
		}

		samTarget := solToLamports(bid.SamTargetSol)
		mndeTarget := solToLamports(bid.MndeTargetSol)
		targetSum := samTarget.Add(mndeTarget)
		if !targetSum.IsPositive() {
			log.Warn().Stringer("vote_account", bid.VoteAccount).Msg("sam and mnde targets sum to zero, skipping bid")
			continue
		}

		samStake := sdkmath.LegacyNewDecFromInt(marinadeStake).Mul(samTarget).Quo(targetSum)
		if bid.MaxStakeWantedSol != nil {
			samStake = sdkmath.LegacyMinDec(samStake, solToLamports(*bid.MaxStakeWantedSol))
		}

		effectiveTotalBidClaim := samStake.Mul(effectiveBid).TruncateInt()
		if !effectiveTotalBidClaim.IsPositive() {
			continue
		}
		if !effectiveTotalBidClaim.IsUint64() {
			return nil, types.NewValidationError("bid claim of %s overflows lamports", bid.VoteAccount)
		}

		feeAmount := effectiveTotalBidClaim.Mul(sdkmath.NewIntFromUint64(feeConfig.MarinadeFeeBps)).QuoRaw(types.BasisPointsMax)
		stakersAmount := effectiveTotalBidClaim.Sub(feeAmount)

		feeClaim := types.SettlementClaim{
			WithdrawAuthority: feeAuthorities.Withdraw,
			StakeAuthority:    feeAuthorities.Stake,
			StakeAccounts:     map[solana.PublicKey]uint64{},
			ClaimAmount:       feeAmount.Uint64(),
		}
		claims := make([]types.SettlementClaim, 0, len(groups)+1)
		for _, group := range groups {
			share := stakersAmount.Mul(sdkmath.NewIntFromUint64(group.ActiveStake())).Quo(marinadeStake).Uint64()
			if group.Authorities == feeAuthorities {
				maps.Copy(feeClaim.StakeAccounts, group.StakeAccounts())
				feeClaim.ActiveStake += group.ActiveStake()
				feeClaim.ClaimAmount += share
				continue
			}
			if share == 0 {
				continue
			}
			claims = append(claims, claimFromGroup(group, share))
		}
		if feeClaim.ClaimAmount > 0 {
			claims = append(claims, feeClaim)
		}
		if len(claims) == 0 {
			continue
		}

		settlement := newSettlement(types.SettlementReasonBidding, types.FunderValidatorBond, bid.VoteAccount, claims)
		log.Debug().
			Stringer("vote_account", bid.VoteAccount).
			Stringer("effective_total_bid_claim", effectiveTotalBidClaim).
			Uint64("claims_amount", settlement.ClaimsAmount).
			Int("claims_count", settlement.ClaimsCount).
			Msg("generated bid settlement")
		settlements = append(settlements, settlement)
	}

	return settlements, nil
}
