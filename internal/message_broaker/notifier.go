package message_broaker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Event types published by the engine and the scheduler.
const (
	EventProcessTransition = "process.transition"
	EventJobFinished       = "job.finished"
	EventJobFailed         = "job.failed"
	EventWarStarted        = "war.started"
	EventWarFinished       = "war.finished"
	EventBackupRequested   = "backup.requested"
)

// Event is a fire-and-forget notification. Consumers must tolerate duplicates.
type Event struct {
	Type       string         `json:"type"`
	Subject    string         `json:"subject"`
	State      string         `json:"state,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Notifier hands events to whoever watches the game: the API layer, websockets, audit.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// BrokerNotifier serialises events as JSON and publishes them on a queue.
type BrokerNotifier struct {
	broker MessageBroker
	queue  string
	logger *zap.Logger
}

func NewBrokerNotifier(broker MessageBroker, queue string, logger *zap.Logger) *BrokerNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrokerNotifier{broker: broker, queue: queue, logger: logger}
}

func (n *BrokerNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if err := n.broker.Publish(ctx, n.queue, payload); err != nil {
		n.logger.Warn("event publish failed",
			zap.String("type", event.Type),
			zap.String("subject", event.Subject),
			zap.Error(err))
		return errors.Wrapf(err, "publish %s", event.Type)
	}
	return nil
}
