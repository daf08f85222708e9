package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/executor"
	"github.com/stakebonds/bonds-settlement/internal/lifecycle"
	"github.com/stakebonds/bonds-settlement/internal/reconcile"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

type planFunc func(ctx context.Context, r *reconcile.Reconciliation) (*reconcile.Plan, error)

func (s *Service) InitSettlements(ctx context.Context, trees *types.MerkleTreeCollection) (*executor.Result, error) {
	return s.runOperation(ctx, reconcile.OperationInit, trees, func(ctx context.Context, r *reconcile.Reconciliation) (*reconcile.Plan, error) {
		return s.planner.PlanInit(ctx, r), nil
	})
}

func (s *Service) FundSettlements(ctx context.Context, trees *types.MerkleTreeCollection) (*executor.Result, error) {
	return s.runOperation(ctx, reconcile.OperationFund, trees, s.planner.PlanFund)
}

func (s *Service) ClaimSettlements(ctx context.Context, trees *types.MerkleTreeCollection) (*executor.Result, error) {
	return s.runOperation(ctx, reconcile.OperationClaim, trees, s.planner.PlanClaims)
}

// CloseSettlements closes settlements past their claim window. With
// cancelUnknown, settlements of the trees' epoch that match no tree are
// cancelled.
func (s *Service) CloseSettlements(
	ctx context.Context, trees *types.MerkleTreeCollection, cancelUnknown bool,
) (*executor.Result, error) {
	return s.runOperation(ctx, reconcile.OperationClose, trees, func(ctx context.Context, r *reconcile.Reconciliation) (*reconcile.Plan, error) {
		return s.planner.PlanClose(ctx, r, cancelUnknown), nil
	})
}

// runOperation reconciles the trees with the ledger, then plans and executes
// one operation. The ledger is read again on every call, so operations can
// be re-run safely.
func (s *Service) runOperation(
	ctx context.Context, operation string, trees *types.MerkleTreeCollection, plan planFunc,
) (*executor.Result, error) {
	startedAt := time.Now().UTC()
	log := log.Ctx(ctx).With().Str("operation", operation).Uint64("epoch", trees.Epoch).Logger()

	r, err := reconcile.BuildRecords(ctx, s.ledger, trees)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile settlements: %w", err)
	}
	if r.Config.Paused {
		log.Warn().Msg("settlement program is paused, skipping")
		return nil, types.NewError(types.WarningError, lifecycle.ErrProgramPaused)
	}

	p, err := plan(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to plan %s: %w", operation, err)
	}
	result := s.executor.Execute(ctx, p)
	resultErr := result.Err()
	s.report(ctx, trees.Epoch, result, resultErr, startedAt)

	if resultErr != nil {
		log.Error().Err(resultErr).Int("failures", len(result.Failures)).Msg("operation finished with failures")
	}
	return result, resultErr
}

// report stores and publishes the outcome of an operation. Failing to do so
// is logged only, the ledger state is the source of truth.
func (s *Service) report(ctx context.Context, epoch uint64, result *executor.Result, resultErr error, startedAt time.Time) {
	report := &types.RunReport{
		ID:           uuid.NewString(),
		Epoch:        epoch,
		Operation:    result.Operation,
		AttemptedTxs: result.AttemptedTxs,
		AttemptedIxs: result.AttemptedIxs,
		ExecutedTxs:  result.ExecutedTxs,
		ExecutedIxs:  result.ExecutedIxs,
		StartedAt:    startedAt,
		FinishedAt:   time.Now().UTC(),
	}
	for _, failure := range result.Failures {
		report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", failure.Description, failure.Err))
	}
	if resultErr != nil {
		report.ErrorCode = types.CodeOf(resultErr)
	}

	if s.db != nil {
		if err := s.db.SaveRunReport(ctx, report); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("report_id", report.ID).Msg("failed to save run report")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRunReport(ctx, report); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("report_id", report.ID).Msg("failed to publish run report")
		}
	}
}
