package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/generators"
	"github.com/stakebonds/bonds-settlement/internal/merkle"
	"github.com/stakebonds/bonds-settlement/internal/observability/metrics"
	"github.com/stakebonds/bonds-settlement/internal/stakeindex"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// GenerateInputs holds the snapshots a generator run reads. Only the
// metadata of the requested reason is required besides the stake metas.
type GenerateInputs struct {
	StakeMetas          *types.StakeMetaCollection
	Bids                *types.BidMetaCollection
	ProtectedEvents     *types.ProtectedEventCollection
	InstitutionalPayout *types.InstitutionalPayout
}

func (s *Service) GenerateSettlements(
	ctx context.Context, reason types.SettlementReason, inputs GenerateInputs,
) (*types.SettlementCollection, error) {
	if inputs.StakeMetas == nil {
		return nil, types.NewValidationError("stake metas are required")
	}
	index := stakeindex.New(inputs.StakeMetas)
	filter := s.cfg.Settlements.StakeAuthorityFilter()

	var (
		settlements []types.Settlement
		err         error
	)
	switch reason {
	case types.SettlementReasonBidding:
		if inputs.Bids == nil {
			return nil, types.NewValidationError("bid metadata is required for %s settlements", reason)
		}
		feeConfig, cfgErr := s.cfg.Settlements.BiddingFeeConfig()
		if cfgErr != nil {
			return nil, types.NewError(types.ValidationError, cfgErr)
		}
		settlements, err = generators.GenerateBidSettlements(ctx, index, inputs.Bids, filter, feeConfig)
	case types.SettlementReasonProtectedEvent:
		if inputs.ProtectedEvents == nil {
			return nil, types.NewValidationError("protected events are required for %s settlements", reason)
		}
		settlements, err = generators.GenerateProtectedEventSettlements(
			ctx, index, inputs.ProtectedEvents, filter, s.cfg.Settlements.ProtectedEvents,
		)
	case types.SettlementReasonInstitutionalPayout:
		if inputs.InstitutionalPayout == nil {
			return nil, types.NewValidationError("institutional payout is required for %s settlements", reason)
		}
		feeConfig, cfgErr := s.cfg.Settlements.InstitutionalFeeConfig()
		if cfgErr != nil {
			return nil, types.NewError(types.ValidationError, cfgErr)
		}
		settlements, err = generators.GenerateInstitutionalSettlements(ctx, index, inputs.InstitutionalPayout, filter, feeConfig)
	default:
		return nil, types.NewValidationError("unknown settlement reason %q", reason)
	}
	if err != nil {
		return nil, err
	}

	collection, err := generators.NewSettlementCollection(index.Ref(), settlements)
	if err != nil {
		return nil, err
	}

	var claimsLamports uint64
	for _, settlement := range collection.Settlements {
		claimsLamports += settlement.ClaimsAmount
	}
	metrics.RecordGeneratedSettlements(reason.String(), len(collection.Settlements), claimsLamports)
	log.Ctx(ctx).Info().
		Stringer("reason", reason).
		Uint64("epoch", collection.Epoch).
		Int("settlements", len(collection.Settlements)).
		Uint64("claims_lamports", claimsLamports).
		Msg("generated settlements")

	if s.db != nil {
		if err := s.db.SaveSettlementSummary(ctx, collection, reason); err != nil {
			return nil, types.NewError(types.InternalServiceError, fmt.Errorf("failed to save settlement summary: %w", err))
		}
	}
	return collection, nil
}

// GenerateMerkleTrees builds the merkle trees of the settlement collections of
// one epoch. Collections of different snapshots are rejected.
func (s *Service) GenerateMerkleTrees(
	ctx context.Context, collections ...*types.SettlementCollection,
) (*types.MerkleTreeCollection, error) {
	if len(collections) == 0 {
		return nil, types.NewValidationError("no settlement collection given")
	}
	merged := &types.SettlementCollection{
		Epoch: collections[0].Epoch,
		Slot:  collections[0].Slot,
	}
	ref := types.SnapshotRef{Epoch: merged.Epoch, Slot: merged.Slot}
	for _, collection := range collections {
		if err := types.EnsureSameSnapshot("settlement collection", ref, types.SnapshotRef{Epoch: collection.Epoch, Slot: collection.Slot}); err != nil {
			return nil, err
		}
		for i := range collection.Settlements {
			if err := collection.Settlements[i].Validate(); err != nil {
				return nil, types.NewError(types.ValidationError, err)
			}
		}
		merged.Settlements = append(merged.Settlements, collection.Settlements...)
	}

	trees, err := merkle.BuildCollection(ctx, merged)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().
		Uint64("epoch", trees.Epoch).
		Int("trees", len(trees.Trees)).
		Msg("generated merkle trees")

	if s.db != nil {
		if err := s.db.SaveMerkleTrees(ctx, trees); err != nil {
			return nil, types.NewError(types.InternalServiceError, fmt.Errorf("failed to save merkle trees: %w", err))
		}
	}
	return trees, nil
}
