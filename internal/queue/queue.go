package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/config"
	"github.com/stakebonds/bonds-settlement/internal/observability/metrics"
	"github.com/stakebonds/bonds-settlement/internal/observability/tracing"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// channel is the part of *amqp.Channel the queue manager publishes with.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// QueueManager publishes run reports to RabbitMQ.
type QueueManager struct {
	cfg     *config.QueueConfig
	conn    *amqp.Connection
	channel channel
}

func NewQueueManager(cfg *config.QueueConfig) (*QueueManager, error) {
	conn, err := amqp.DialConfig(cfg.Url, amqp.Config{
		SASL: []amqp.Authentication{&amqp.PlainAuth{
			Username: cfg.QueueUser,
			Password: cfg.QueuePassword,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to queue: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open queue channel: %w", err)
	}
	// with the default exchange the routing key names the queue
	if cfg.Exchange == "" {
		if _, err := ch.QueueDeclare(cfg.RoutingKey, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.RoutingKey, err)
		}
	}
	return &QueueManager{cfg: cfg, conn: conn, channel: ch}, nil
}

func (qm *QueueManager) PublishRunReport(ctx context.Context, report *types.RunReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, qm.cfg.PublishTimeout)
	defer cancel()

	err = qm.channel.PublishWithContext(ctx, qm.cfg.Exchange, qm.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     report.ID,
		CorrelationId: tracing.TraceID(ctx),
		Timestamp:     report.FinishedAt,
		Type:          report.Operation,
		Body:          body,
	})
	if err != nil {
		metrics.RecordQueueSendError()
		return fmt.Errorf("failed to publish run report %s: %w", report.ID, err)
	}

	log.Ctx(ctx).Debug().
		Str("report_id", report.ID).
		Str("operation", report.Operation).
		Msg("published run report")
	return nil
}

// Shutdown gracefully stops the interaction with the queue, ensuring all resources are properly released.
func (qm *QueueManager) Shutdown() {
	log.Info().Msg("Shutting down queue manager")
	if err := qm.channel.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close queue channel")
	}
	if qm.conn != nil {
		if err := qm.conn.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close queue connection")
		}
	}
}
