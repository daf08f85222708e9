package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/stakebonds/bonds-settlement/internal/observability/tracing"
	"github.com/stakebonds/bonds-settlement/internal/services"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/internal/utils/fileio"
)

// GenerateSettlementsCmd computes the settlements of one reason from the
// epoch snapshots.
// Usage: ./bonds-settlement generate-settlements --reason bidding --stake-metas stake-metas.json --bid-metas bids.json --output settlements.json
func GenerateSettlementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-settlements",
		Short: "Generate settlements of one reason from stake meta and reason metadata snapshots",
		Args:  cobra.NoArgs,
		RunE:  generateSettlements,
	}

	cmd.Flags().String("reason", "", "Settlement reason: bidding, protected-events or institutional")
	cmd.Flags().String("stake-metas", "", "Stake meta collection file (json or yaml)")
	cmd.Flags().String("bid-metas", "", "Bid metadata file, required for bidding")
	cmd.Flags().String("protected-events", "", "Protected events file, required for protected-events")
	cmd.Flags().String("institutional-payout", "", "Institutional payout file, required for institutional")
	cmd.Flags().String("output", "settlements.json", "Output settlement collection file")
	_ = cmd.MarkFlagRequired("reason")
	_ = cmd.MarkFlagRequired("stake-metas")

	return cmd
}

func generateSettlements(cmd *cobra.Command, _ []string) error {
	ctx := tracing.InjectTraceID(cmd.Context())

	reasonFlag, _ := cmd.Flags().GetString("reason")
	reason, err := types.SettlementReasonFromString(reasonFlag)
	if err != nil {
		return types.NewError(types.ValidationError, err)
	}

	var inputs services.GenerateInputs
	inputs.StakeMetas = &types.StakeMetaCollection{}
	if err := readFlagFile(cmd, "stake-metas", inputs.StakeMetas); err != nil {
		return err
	}
	switch reason {
	case types.SettlementReasonBidding:
		inputs.Bids = &types.BidMetaCollection{}
		err = readFlagFile(cmd, "bid-metas", inputs.Bids)
	case types.SettlementReasonProtectedEvent:
		inputs.ProtectedEvents = &types.ProtectedEventCollection{}
		err = readFlagFile(cmd, "protected-events", inputs.ProtectedEvents)
	case types.SettlementReasonInstitutionalPayout:
		inputs.InstitutionalPayout = &types.InstitutionalPayout{}
		err = readFlagFile(cmd, "institutional-payout", inputs.InstitutionalPayout)
	}
	if err != nil {
		return err
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	collection, err := a.service.GenerateSettlements(ctx, reason, inputs)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if err := fileio.WriteJSON(output, collection); err != nil {
		return types.NewError(types.InternalServiceError, err)
	}
	log.Ctx(ctx).Info().
		Str("output", output).
		Int("settlements", len(collection.Settlements)).
		Msg("settlements written")
	return nil
}

// GenerateMerkleTreesCmd builds the merkle trees of settlement collections.
// Usage: ./bonds-settlement generate-merkle-trees --settlements bidding.json --settlements protected.json --output merkle-trees.json
func GenerateMerkleTreesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-merkle-trees",
		Short: "Build merkle trees and proofs of settlement collections of one epoch",
		Args:  cobra.NoArgs,
		RunE:  generateMerkleTrees,
	}

	cmd.Flags().StringArray("settlements", nil, "Settlement collection file (repeatable)")
	cmd.Flags().String("output", "merkle-trees.json", "Output merkle tree collection file")
	_ = cmd.MarkFlagRequired("settlements")

	return cmd
}

func generateMerkleTrees(cmd *cobra.Command, _ []string) error {
	ctx := tracing.InjectTraceID(cmd.Context())

	paths, _ := cmd.Flags().GetStringArray("settlements")
	collections := make([]*types.SettlementCollection, 0, len(paths))
	for _, path := range paths {
		var collection types.SettlementCollection
		if err := fileio.Read(path, &collection); err != nil {
			return types.NewError(types.ValidationError, err)
		}
		collections = append(collections, &collection)
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	trees, err := a.service.GenerateMerkleTrees(ctx, collections...)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if err := fileio.WriteJSON(output, trees); err != nil {
		return types.NewError(types.InternalServiceError, err)
	}
	log.Ctx(ctx).Info().
		Str("output", output).
		Int("trees", len(trees.Trees)).
		Msg("merkle trees written")
	return nil
}

func readFlagFile(cmd *cobra.Command, flag string, out any) error {
	path, _ := cmd.Flags().GetString(flag)
	if path == "" {
		return types.NewValidationError("--%s is required", flag)
	}
	if err := fileio.Read(path, out); err != nil {
		return types.NewError(types.ValidationError, fmt.Errorf("--%s: %w", flag, err))
	}
	return nil
}
