package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/lifecycle"
	"github.com/stakebonds/bonds-settlement/internal/observability/metrics"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// RunEpoch drives the settlements of the trees through every lifecycle step:
// init, fund, claim and close. Each step reconciles with the ledger again, so
// a failed step only leaves work for the next run. The returned error carries
// the most severe category of all steps.
func (s *Service) RunEpoch(ctx context.Context, trees *types.MerkleTreeCollection, cancelUnknown bool) error {
	startedAt := time.Now()
	log := log.Ctx(ctx)

	steps := []struct {
		name string
		run  func() error
	}{
		{"init", func() error { _, err := s.InitSettlements(ctx, trees); return err }},
		{"fund", func() error { _, err := s.FundSettlements(ctx, trees); return err }},
		{"claim", func() error { _, err := s.ClaimSettlements(ctx, trees); return err }},
		{"close", func() error { _, err := s.CloseSettlements(ctx, trees, cancelUnknown); return err }},
	}

	var errs []error
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, types.NewError(types.RetryableError, err))
			break
		}
		err := step.run()
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if errors.Is(err, lifecycle.ErrProgramPaused) {
			break
		}
		log.Warn().Err(err).Str("step", step.name).Msg("epoch step failed, continuing")
	}

	err := mostSevere(errs)
	metrics.RecordEpochRunDuration(time.Since(startedAt), err != nil)
	log.Info().
		Uint64("epoch", trees.Epoch).
		Dur("duration", time.Since(startedAt)).
		Bool("failed", err != nil).
		Msg("finished epoch run")
	return err
}

var severity = map[types.ErrorCode]int{
	types.WarningError:         1,
	types.ComputationError:     2,
	types.ExecutionError:       3,
	types.InternalServiceError: 4,
	types.RetryableError:       5,
	types.InvariantViolation:   6,
	types.ValidationError:      7,
	types.CriticalError:        8,
}

// mostSevere returns the error whose category ranks highest; ties keep the
// first one.
func mostSevere(errs []error) error {
	var worst error
	for _, err := range errs {
		if worst == nil || severity[types.CodeOf(err)] > severity[types.CodeOf(worst)] {
			worst = err
		}
	}
	if worst == nil || len(errs) == 1 {
		return worst
	}
	return types.NewError(types.CodeOf(worst), errors.Join(errs...))
}
