package generators

import (
	"bytes"
	"context"
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/stakeindex"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// GenerateInstitutionalSettlements converts precomputed institutional payouts
// into one settlement per validator. Distributor payouts are claimed by the
// configured fee deposit of the distributor.
func GenerateInstitutionalSettlements(
	ctx context.Context,
	index *stakeindex.Index,
	payout *types.InstitutionalPayout,
	filter stakeindex.StakeAuthorityFilter,
	feeConfig types.InstitutionalFeeConfig,
) ([]types.Settlement, error) {
	if err := types.EnsureSameSnapshot("institutional payout", index.Ref(), payout.Ref()); err != nil {
		return nil, err
	}

	stakersByVote := make(map[solana.PublicKey][]types.InstitutionalPayoutStaker)
	for _, staker := range payout.PayoutStakers {
		stakersByVote[staker.VoteAccount] = append(stakersByVote[staker.VoteAccount], staker)
	}
	distributorsByVote := make(map[solana.PublicKey][]types.InstitutionalPayoutDistributor)
	for _, distributor := range payout.PayoutDistributors {
		distributorsByVote[distributor.VoteAccount] = append(distributorsByVote[distributor.VoteAccount], distributor)
	}

	votes := make([]solana.PublicKey, 0, len(stakersByVote)+len(distributorsByVote))
	for vote := range stakersByVote {
		votes = append(votes, vote)
	}
	for vote := range distributorsByVote {
		if _, ok := stakersByVote[vote]; !ok {
			votes = append(votes, vote)
		}
	}
	slices.SortFunc(votes, func(a, b solana.PublicKey) int { return bytes.Compare(a[:], b[:]) })

	log := log.Ctx(ctx)
	var settlements []types.Settlement
	for _, vote := range votes {
		if !index.HasValidator(vote) {
			log.Debug().Stringer("vote_account", vote).Msg("validator of institutional payout not found in stake meta index")
			continue
		}

		claims := newClaimSet()
		for _, staker := range stakersByVote[vote] {
			if staker.PayoutLamports == 0 || !filter(staker.StakeAuthority) {
				continue
			}
			active := staker.ActiveStake
			if meta, ok := index.FindStakeMeta(vote, staker.StakeAccount); ok {
				active = meta.ActiveDelegationLamports
			}
			claim := claims.get(stakeindex.AuthorityPair{Withdraw: staker.WithdrawAuthority, Stake: staker.StakeAuthority})
			claim.StakeAccounts[staker.StakeAccount] += active
			claim.ActiveStake += active
			claim.ClaimAmount += staker.PayoutLamports
		}
		for _, distributor := range distributorsByVote[vote] {
			if distributor.PayoutLamports == 0 {
				continue
			}
			var deposit types.FeeDeposit
			switch distributor.DistributorType {
			case types.DistributorMarinade:
				deposit = feeConfig.MarinadeFeeDeposit
			case types.DistributorDAO:
				deposit = feeConfig.DaoFeeDeposit
			default:
				return nil, types.NewValidationError("unknown distributor type %q for %s", distributor.DistributorType, vote)
			}
			claim := claims.get(stakeindex.AuthorityPair{Withdraw: deposit.WithdrawAuthority, Stake: deposit.StakeAuthority})
			if _, ok := claim.StakeAccounts[deposit.StakeAccount]; !ok {
				claim.StakeAccounts[deposit.StakeAccount] = 0
			}
			claim.ClaimAmount += distributor.PayoutLamports
		}
		if claims.len() == 0 {
			continue
		}

		settlement := newSettlement(types.SettlementReasonInstitutionalPayout, types.FunderValidatorBond, vote, claims.list())
		log.Debug().
			Stringer("vote_account", vote).
			Uint64("claims_amount", settlement.ClaimsAmount).
			Int("claims_count", settlement.ClaimsCount).
			Msg("generated institutional settlement")
		settlements = append(settlements, settlement)
	}
	return settlements, nil
}

// claimSet merges claims that share an authority pair.
type claimSet struct {
	order  []stakeindex.AuthorityPair
	claims map[stakeindex.AuthorityPair]*types.SettlementClaim
}

func newClaimSet() *claimSet {
	return &claimSet{claims: make(map[stakeindex.AuthorityPair]*types.SettlementClaim)}
}

func (s *claimSet) get(key stakeindex.AuthorityPair) *types.SettlementClaim {
	if claim, ok := s.claims[key]; ok {
		return claim
	}
	claim := &types.SettlementClaim{
		WithdrawAuthority: key.Withdraw,
		StakeAuthority:    key.Stake,
		StakeAccounts:     map[solana.PublicKey]uint64{},
	}
	s.claims[key] = claim
	s.order = append(s.order, key)
	return claim
}

func (s *claimSet) len() int {
	return len(s.order)
}

func (s *claimSet) list() []types.SettlementClaim {
	claims := make([]types.SettlementClaim, 0, len(s.order))
	for _, key := range s.order {
		claims = append(claims, *s.claims[key])
	}
	return claims
}
