package scheduler

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hexpgame/hexcron/internal/message_broaker"
	"github.com/hexpgame/hexcron/types"
	"go.uber.org/zap"
)

// JobContext is handed to every invocation. Jobs must not keep it after Execute returns.
type JobContext struct {
	JobName     string
	ScheduledAt time.Time
	Clock       clock.Clock
	Logger      *zap.Logger
	Notifier    message_broaker.Notifier
}

// Job is one recurring maintenance routine. Execute should return promptly once
// ctx is done; the scheduler stops waiting for it when its timeout elapses.
type Job interface {
	Execute(ctx context.Context, jc JobContext) (types.Summary, error)
}

// JobFunc adapts a plain function to Job.
type JobFunc func(ctx context.Context, jc JobContext) (types.Summary, error)

func (f JobFunc) Execute(ctx context.Context, jc JobContext) (types.Summary, error) {
	return f(ctx, jc)
}
