package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tphakala/logwatch/internal/alerting"
	"github.com/tphakala/logwatch/internal/logger"
	"github.com/tphakala/logwatch/internal/observability"
)

const (
	publishTimeout = 5 * time.Second
	sinkName       = "mqtt"
)

// Publisher forwards alert bus events to a topic as JSON.
type Publisher struct {
	client  Client
	topic   string
	metrics *observability.Metrics
	log     logger.Logger
}

// NewPublisher creates a publisher; subscribe its Handle method to the bus.
func NewPublisher(client Client, topic string, m *observability.Metrics, log logger.Logger) *Publisher {
	return &Publisher{client: client, topic: topic, metrics: m, log: log}
}

// Handle implements alerting.AlertEventHandler. Failures are logged and
// counted; they never reach the producer.
func (p *Publisher) Handle(event *alerting.AlertEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.fail(event, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.topic, string(payload)); err != nil {
		p.fail(event, err)
		return
	}
	p.log.Debug("alert event published to mqtt",
		logger.String("topic", p.topic),
		logger.String("kind", event.Kind))
}

func (p *Publisher) fail(event *alerting.AlertEvent, err error) {
	p.metrics.SinkFailed(sinkName)
	p.log.Error("failed to publish alert event to mqtt",
		logger.String("topic", p.topic),
		logger.String("kind", event.Kind),
		logger.String("event_id", event.ID),
		logger.Error(err))
}
