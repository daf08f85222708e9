package generators

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/stakeindex"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// GenerateProtectedEventSettlements produces one settlement per matching
// (event, config) pair. Each config covers its own band of the EPR loss so
// the settlements of disjoint bands never pay the same loss twice.
func GenerateProtectedEventSettlements(
	ctx context.Context,
	index *stakeindex.Index,
	events *types.ProtectedEventCollection,
	filter stakeindex.StakeAuthorityFilter,
	configs []types.SettlementConfig,
) ([]types.Settlement, error) {
	if err := types.EnsureSameSnapshot("protected events", index.Ref(), events.Ref()); err != nil {
		return nil, err
	}
	for i := range configs {
		if err := configs[i].Validate(); err != nil {
			return nil, types.NewError(types.ValidationError, err)
		}
	}

	log := log.Ctx(ctx)
	var settlements []types.Settlement
	for _, event := range events.Events {
		if !index.HasValidator(event.VoteAccount) {
			log.Debug().Stringer("vote_account", event.VoteAccount).Str("kind", string(event.Kind)).
				Msg("validator of protected event not found in stake meta index")
			continue
		}
		for _, config := range configs {
			if config.Kind.EventKind() != event.Kind {
				continue
			}
			if event.GraceMeasureBps() < config.GraceBps {
				continue
			}
			settlement, ok := protectedEventSettlement(index, event, filter, config)
			if !ok {
				continue
			}
			log.Debug().
				Stringer("vote_account", event.VoteAccount).
				Str("config_kind", string(config.Kind)).
				Uint64("claims_amount", settlement.ClaimsAmount).
				Int("claims_count", settlement.ClaimsCount).
				Msg("generated protected event settlement")
			settlements = append(settlements, settlement)
		}
	}
	return settlements, nil
}

// bandLossBps returns the part of lossBps that falls inside [lo, hi].
func bandLossBps(lossBps uint64, covered [2]uint64) uint64 {
	lo, hi := covered[0], covered[1]
	clamped := min(max(lossBps, lo), hi)
	return clamped - lo
}

func protectedEventSettlement(
	index *stakeindex.Index,
	event types.ProtectedEvent,
	filter stakeindex.StakeAuthorityFilter,
	config types.SettlementConfig,
) (types.Settlement, bool) {
	inBand := bandLossBps(event.EprLossBps, config.CoveredRangeBps)
	if inBand == 0 {
		return types.Settlement{}, false
	}
	perLamport := decOrZero(event.ExpectedEpr).MulInt64(int64(inBand)).QuoInt64(types.BasisPointsMax)
	if !perLamport.IsPositive() {
		return types.Settlement{}, false
	}

	var claims []types.SettlementClaim
	for group := range index.Groups(event.VoteAccount, filter) {
		active := group.ActiveStake()
		if active == 0 {
			continue
		}
		amount := perLamport.MulInt(sdkmath.NewIntFromUint64(active)).TruncateInt()
		if !amount.IsPositive() || !amount.IsUint64() {
			continue
		}
		claims = append(claims, claimFromGroup(group, amount.Uint64()))
	}

	total := sumClaims(claims)
	if total == 0 || total < config.MinSettlementLamports {
		return types.Settlement{}, false
	}
	if config.Meta.Funder == types.FunderMarinade {
		claims = append(claims, nullClaim())
	}

	settlement := newSettlement(types.SettlementReasonProtectedEvent, config.Meta.Funder, event.VoteAccount, claims)
	eventCopy := event
	settlement.Details = &types.SettlementDetails{
		ProtectedEvent: &eventCopy,
		ConfigKind:     string(config.Kind),
	}
	return settlement, true
}
