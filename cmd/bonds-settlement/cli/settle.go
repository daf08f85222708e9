package cli

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/stakebonds/bonds-settlement/internal/executor"
	"github.com/stakebonds/bonds-settlement/internal/observability/tracing"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/internal/utils/fileio"
)

type operationFunc func(ctx context.Context, a *app, trees *types.MerkleTreeCollection) (*executor.Result, error)

func InitSettlementsCmd() *cobra.Command {
	return settleCmd("init-settlements", "Create missing settlements and size their claim records",
		func(ctx context.Context, a *app, trees *types.MerkleTreeCollection) (*executor.Result, error) {
			return a.service.InitSettlements(ctx, trees)
		})
}

func FundSettlementsCmd() *cobra.Command {
	return settleCmd("fund-settlements", "Fund initialized settlements from bond or Marinade stake",
		func(ctx context.Context, a *app, trees *types.MerkleTreeCollection) (*executor.Result, error) {
			return a.service.FundSettlements(ctx, trees)
		})
}

func ClaimSettlementsCmd() *cobra.Command {
	return settleCmd("claim-settlements", "Claim unpaid merkle leaves of funded settlements",
		func(ctx context.Context, a *app, trees *types.MerkleTreeCollection) (*executor.Result, error) {
			return a.service.ClaimSettlements(ctx, trees)
		})
}

func CloseSettlementsCmd() *cobra.Command {
	var cancelUnknown bool
	cmd := settleCmd("close-settlements", "Close expired or fully claimed settlements",
		func(ctx context.Context, a *app, trees *types.MerkleTreeCollection) (*executor.Result, error) {
			return a.service.CloseSettlements(ctx, trees, cancelUnknown)
		})
	cmd.Flags().BoolVar(&cancelUnknown, "cancel-unknown", false, "Cancel settlements of the epoch that match no merkle tree")
	return cmd
}

// RunEpochCmd walks the settlements of an epoch through every step.
// Usage: ./bonds-settlement run-epoch --config config.yml --merkle-trees merkle-trees.json [--cancel-unknown]
func RunEpochCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-epoch",
		Short: "Init, fund, claim and close the settlements of an epoch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := tracing.InjectTraceID(cmd.Context())
			a, trees, err := loadTrees(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cancelUnknown, _ := cmd.Flags().GetBool("cancel-unknown")
			return a.service.RunEpoch(ctx, trees, cancelUnknown)
		},
	}
	addTreeFlags(cmd)
	cmd.Flags().Bool("cancel-unknown", false, "Cancel settlements of the epoch that match no merkle tree")
	return cmd
}

func settleCmd(use, short string, run operationFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := tracing.InjectTraceID(cmd.Context())
			a, trees, err := loadTrees(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := run(ctx, a, trees)
			if result != nil {
				log.Ctx(ctx).Info().
					Str("operation", result.Operation).
					Int("executed_txs", result.ExecutedTxs).
					Int("attempted_txs", result.AttemptedTxs).
					Int("executed_ixs", result.ExecutedIxs).
					Int("attempted_ixs", result.AttemptedIxs).
					Msg("operation finished")
			}
			return err
		},
	}
	addTreeFlags(cmd)
	return cmd
}

func addTreeFlags(cmd *cobra.Command) {
	cmd.Flags().String("merkle-trees", "", "Merkle tree collection file")
	cmd.Flags().Uint64("epoch", 0, "Load the merkle trees of the epoch from the db instead of a file")
	cmd.MarkFlagsMutuallyExclusive("merkle-trees", "epoch")
	cmd.MarkFlagsOneRequired("merkle-trees", "epoch")
}

// loadTrees reads the merkle trees from the --merkle-trees file or, for
// --epoch, from the db.
func loadTrees(ctx context.Context, cmd *cobra.Command) (*app, *types.MerkleTreeCollection, error) {
	a, err := newApp(ctx, true)
	if err != nil {
		return nil, nil, err
	}

	if path, _ := cmd.Flags().GetString("merkle-trees"); path != "" {
		var trees types.MerkleTreeCollection
		if err := fileio.Read(path, &trees); err != nil {
			a.Close()
			return nil, nil, types.NewError(types.ValidationError, err)
		}
		return a, &trees, nil
	}

	epoch, _ := cmd.Flags().GetUint64("epoch")
	if a.db == nil {
		a.Close()
		return nil, nil, types.NewError(types.ValidationError, errors.New("--epoch requires the db config"))
	}
	trees, err := a.db.GetMerkleTrees(ctx, epoch)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, trees, nil
}
