package generators

import (
	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/stakeindex"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

const lamportsPerSol = 1_000_000_000

func solToLamports(sol sdkmath.LegacyDec) sdkmath.LegacyDec {
	return decOrZero(sol).MulInt64(lamportsPerSol)
}

func decOrZero(d sdkmath.LegacyDec) sdkmath.LegacyDec {
	if d.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	return d
}

func claimFromGroup(group stakeindex.StakeGroup, amount uint64) types.SettlementClaim {
	return types.SettlementClaim{
		WithdrawAuthority: group.Authorities.Withdraw,
		StakeAuthority:    group.Authorities.Stake,
		StakeAccounts:     group.StakeAccounts(),
		ActiveStake:       group.ActiveStake(),
		ClaimAmount:       amount,
	}
}

// nullClaim makes the merkle root of a Marinade funded settlement differ from
// a validator funded one with the very same claims.
func nullClaim() types.SettlementClaim {
	return types.SettlementClaim{
		WithdrawAuthority: solana.PublicKey{},
		StakeAuthority:    solana.PublicKey{},
		StakeAccounts:     map[solana.PublicKey]uint64{},
	}
}

func newSettlement(
	reason types.SettlementReason,
	funder types.SettlementFunder,
	voteAccount solana.PublicKey,
	claims []types.SettlementClaim,
) types.Settlement {
	settlement := types.Settlement{
		Reason:      reason,
		Meta:        types.SettlementMeta{Funder: funder},
		VoteAccount: voteAccount,
		Claims:      claims,
	}
	settlement.Seal()
	return settlement
}

// NewSettlementCollection assembles the output of one run. Every settlement is
// validated, a conservation failure is an internal error of the generator.
func NewSettlementCollection(ref types.SnapshotRef, settlements ...[]types.Settlement) (*types.SettlementCollection, error) {
	collection := &types.SettlementCollection{
		Epoch:       ref.Epoch,
		Slot:        ref.Slot,
		Settlements: []types.Settlement{},
	}
	for _, batch := range settlements {
		for i := range batch {
			if err := batch[i].Validate(); err != nil {
				return nil, types.NewError(types.InternalServiceError, err)
			}
			collection.Settlements = append(collection.Settlements, batch[i])
		}
	}
	return collection, nil
}

func sumClaims(claims []types.SettlementClaim) uint64 {
	var sum uint64
	for _, claim := range claims {
		sum += claim.ClaimAmount
	}
	return sum
}
