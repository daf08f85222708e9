package poller

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Poller struct {
	name       string
	interval   time.Duration
	clock      clockwork.Clock
	quit       chan struct{}
	pollMethod func(ctx context.Context) error
}

func NewPoller(name string, interval time.Duration, pollMethod func(ctx context.Context) error) *Poller {
	return NewPollerWithClock(name, interval, clockwork.NewRealClock(), pollMethod)
}

func NewPollerWithClock(
	name string, interval time.Duration, clock clockwork.Clock, pollMethod func(ctx context.Context) error,
) *Poller {
	return &Poller{
		name:       name,
		interval:   interval,
		clock:      clock,
		quit:       make(chan struct{}),
		pollMethod: pollMethod,
	}
}

// Start blocks until ctx is done or Stop is called. The poll method runs once
// right away and then on every tick.
func (p *Poller) Start(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().Str("poller", p.name).Msgf("Starting poller with interval %s", p.interval)
	p.poll(ctx)

	for {
		select {
		case <-ticker.Chan():
			p.poll(ctx)
		case <-ctx.Done():
			log.Info().Str("poller", p.name).Msg("Poller stopped due to context cancellation")
			return
		case <-p.quit:
			log.Info().Str("poller", p.name).Msg("Poller stopped")
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("poller", p.name).Interface("panic", r).Msg("Poll method panicked")
		}
	}()

	log.Debug().Str("poller", p.name).Msg("Executing poll method")
	if err := p.pollMethod(ctx); err != nil {
		log.Error().Err(err).Str("poller", p.name).Msg("Error polling")
	} else {
		log.Debug().Str("poller", p.name).Msg("Poll method executed successfully")
	}
}

func (p *Poller) Stop() {
	close(p.quit)
}
