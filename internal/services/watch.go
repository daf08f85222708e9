package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/lifecycle"
	"github.com/stakebonds/bonds-settlement/internal/observability/metrics"
	"github.com/stakebonds/bonds-settlement/internal/observability/tracing"
	"github.com/stakebonds/bonds-settlement/internal/utils/poller"
)

// StartWatcher blocks, claiming and closing the settlements of the stored
// epochs still inside the watch window on every poll.
func (s *Service) StartWatcher(ctx context.Context) error {
	if s.db == nil {
		return errors.New("watch requires the db config")
	}
	watchPoller := poller.NewPoller(
		"watch",
		s.cfg.Poller.WatchInterval,
		metrics.RecordPollerDuration("watch", func(ctx context.Context) error {
			return s.watchEpochs(tracing.InjectTraceID(ctx))
		}),
	)
	watchPoller.Start(ctx)
	return nil
}

func (s *Service) watchEpochs(ctx context.Context) error {
	log := log.Ctx(ctx)

	clock, err := s.ledger.Clock(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger clock: %w", err)
	}
	fromEpoch := clock.Epoch - min(clock.Epoch, s.cfg.Poller.WatchEpochs)
	epochs, err := s.db.FindMerkleTreeEpochs(ctx, fromEpoch)
	if err != nil {
		return fmt.Errorf("failed to find stored epochs: %w", err)
	}
	if len(epochs) == 0 {
		log.Debug().Uint64("from_epoch", fromEpoch).Msg("no stored epochs to watch")
		return nil
	}

	var errs []error
	for _, epoch := range epochs {
		trees, err := s.db.GetMerkleTrees(ctx, epoch)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load merkle trees of epoch %d: %w", epoch, err))
			continue
		}
		if _, err := s.ClaimSettlements(ctx, trees); err != nil {
			if errors.Is(err, lifecycle.ErrProgramPaused) {
				return nil
			}
			errs = append(errs, fmt.Errorf("epoch %d claims: %w", epoch, err))
		}
		if _, err := s.CloseSettlements(ctx, trees, false); err != nil {
			errs = append(errs, fmt.Errorf("epoch %d close: %w", epoch, err))
		}
	}

	log.Info().
		Uint64("ledger_epoch", clock.Epoch).
		Int("epochs", len(epochs)).
		Int("failures", len(errs)).
		Msg("watched stored epochs")
	return errors.Join(errs...)
}
