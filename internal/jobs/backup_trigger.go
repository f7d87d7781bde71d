package jobs

import (
	"context"
	"encoding/json"

	"github.com/hexpgame/hexcron/internal/message_broaker"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
)

// BackupTrigger asks the external backup worker for a snapshot. The worker
// consumes the queue; hexcron only publishes the request.
type BackupTrigger struct {
	broker message_broaker.MessageBroker
	queue  string
}

func NewBackupTrigger(broker message_broaker.MessageBroker, queue string) *BackupTrigger {
	return &BackupTrigger{broker: broker, queue: queue}
}

type backupRequest struct {
	RequestedAt string `json:"requested_at"`
	Scheduled   string `json:"scheduled_at"`
	Source      string `json:"source"`
}

func (b *BackupTrigger) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	payload, err := json.Marshal(backupRequest{
		RequestedAt: jc.Clock.Now().UTC().Format(timeLayout),
		Scheduled:   jc.ScheduledAt.UTC().Format(timeLayout),
		Source:      jc.JobName,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal backup request")
	}
	if err := b.broker.Publish(ctx, b.queue, payload); err != nil {
		return nil, errors.Wrapf(err, "publish backup request on %q", b.queue)
	}

	event := message_broaker.Event{
		Type:       message_broaker.EventBackupRequested,
		Subject:    "backup/" + b.queue,
		OccurredAt: jc.Clock.Now(),
	}
	_ = jc.Notifier.Notify(ctx, event)
	return types.Summary{"requested": 1}, nil
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
