package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stakebonds/bonds-settlement/internal/config"
	"github.com/stakebonds/bonds-settlement/internal/observability/tracing"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
	deadline bool
}

type fakeChannel struct {
	messages []published
	err      error
	closed   bool
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	_, deadline := ctx.Deadline()
	c.messages = append(c.messages, published{exchange: exchange, key: key, msg: msg, deadline: deadline})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func newTestManager(ch *fakeChannel) *QueueManager {
	return &QueueManager{
		cfg: &config.QueueConfig{
			Exchange:       "settlements",
			RoutingKey:     "run-reports",
			PublishTimeout: time.Second,
		},
		channel: ch,
	}
}

func TestPublishRunReport(t *testing.T) {
	ch := &fakeChannel{}
	qm := newTestManager(ch)
	report := testutil.RandomRunReport(700)
	ctx := tracing.InjectTraceID(context.Background())

	require.NoError(t, qm.PublishRunReport(ctx, report))
	require.Len(t, ch.messages, 1)
	msg := ch.messages[0]
	assert.Equal(t, "settlements", msg.exchange)
	assert.Equal(t, "run-reports", msg.key)
	assert.True(t, msg.deadline)
	assert.Equal(t, report.ID, msg.msg.MessageId)
	assert.Equal(t, tracing.TraceID(ctx), msg.msg.CorrelationId)
	assert.NotEmpty(t, msg.msg.CorrelationId)
	assert.Equal(t, uint8(amqp.Persistent), msg.msg.DeliveryMode)

	var decoded types.RunReport
	require.NoError(t, json.Unmarshal(msg.msg.Body, &decoded))
	assert.Equal(t, report.ID, decoded.ID)
	assert.Equal(t, report.ExecutedIxs, decoded.ExecutedIxs)

	qm.Shutdown()
	assert.True(t, ch.closed)
}

func TestPublishRunReportError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	err := newTestManager(ch).PublishRunReport(context.Background(), testutil.RandomRunReport(700))
	assert.ErrorContains(t, err, "channel closed")
}
