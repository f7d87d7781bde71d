package jobs

import (
	"context"

	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
)

type SessionCleanup struct {
	sessions store.SessionStore
}

func NewSessionCleanup(sessions store.SessionStore) *SessionCleanup {
	return &SessionCleanup{sessions: sessions}
}

func (c *SessionCleanup) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	n, err := c.sessions.DeleteExpired(ctx, jc.Clock.Now())
	if err != nil {
		return nil, errors.Wrap(err, "delete expired sessions")
	}
	return types.Summary{"deleted": int(n)}, nil
}
