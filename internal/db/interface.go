package db

import (
	"context"

	"github.com/stakebonds/bonds-settlement/internal/types"
)

type DbInterface interface {
	Ping(ctx context.Context) error
	// SaveMerkleTrees upserts the merkle trees computed for an epoch.
	SaveMerkleTrees(ctx context.Context, trees *types.MerkleTreeCollection) error
	// GetMerkleTrees returns NotFoundError when the epoch has no stored trees.
	GetMerkleTrees(ctx context.Context, epoch uint64) (*types.MerkleTreeCollection, error)
	// FindMerkleTreeEpochs lists the stored epochs not older than fromEpoch, oldest first.
	FindMerkleTreeEpochs(ctx context.Context, fromEpoch uint64) ([]uint64, error)
	SaveSettlementSummary(ctx context.Context, collection *types.SettlementCollection, reason types.SettlementReason) error
	// SaveRunReport returns DuplicateKeyError when the report id is already stored.
	SaveRunReport(ctx context.Context, report *types.RunReport) error
	// GetRunReports returns the reports of an epoch, newest first.
	GetRunReports(ctx context.Context, epoch uint64) ([]*types.RunReport, error)
}
