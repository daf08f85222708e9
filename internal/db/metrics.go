package db

import (
	"context"
	"time"

	"github.com/stakebonds/bonds-settlement/internal/observability/metrics"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

type DbWithMetrics struct {
	db DbInterface
}

func NewDbWithMetrics(db DbInterface) *DbWithMetrics {
	return &DbWithMetrics{db: db}
}

func (d *DbWithMetrics) Ping(ctx context.Context) error {
	return d.db.Ping(ctx)
}

func (d *DbWithMetrics) SaveMerkleTrees(ctx context.Context, trees *types.MerkleTreeCollection) error {
	return d.run("SaveMerkleTrees", func() error {
		return d.db.SaveMerkleTrees(ctx, trees)
	})
}

func (d *DbWithMetrics) GetMerkleTrees(ctx context.Context, epoch uint64) (result *types.MerkleTreeCollection, err error) {
	//nolint:errcheck
	d.run("GetMerkleTrees", func() error {
		result, err = d.db.GetMerkleTrees(ctx, epoch)
		return err
	})
	return
}

func (d *DbWithMetrics) FindMerkleTreeEpochs(ctx context.Context, fromEpoch uint64) (result []uint64, err error) {
	//nolint:errcheck
	d.run("FindMerkleTreeEpochs", func() error {
		result, err = d.db.FindMerkleTreeEpochs(ctx, fromEpoch)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveSettlementSummary(
	ctx context.Context, collection *types.SettlementCollection, reason types.SettlementReason,
) error {
	return d.run("SaveSettlementSummary", func() error {
		return d.db.SaveSettlementSummary(ctx, collection, reason)
	})
}

func (d *DbWithMetrics) SaveRunReport(ctx context.Context, report *types.RunReport) error {
	return d.run("SaveRunReport", func() error {
		return d.db.SaveRunReport(ctx, report)
	})
}

func (d *DbWithMetrics) GetRunReports(ctx context.Context, epoch uint64) (result []*types.RunReport, err error) {
	//nolint:errcheck
	d.run("GetRunReports", func() error {
		result, err = d.db.GetRunReports(ctx, epoch)
		return err
	})
	return
}

// run is private method that executes passed lambda function and send metrics data with spent time, method name
// and an error if any. It returns the error from the lambda function for convenience
func (d *DbWithMetrics) run(method string, f func() error) error {
	startTime := time.Now()
	err := f()
	duration := time.Since(startTime)

	metrics.RecordDbLatency(duration, method, err != nil)
	return err
}
