package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
)

// SafenetUpdate drops expired SafeNet entries and rewrites the NPC's report
// from what is left. An empty list keeps the previous report.
type SafenetUpdate struct {
	safenet store.SafenetStore
}

func NewSafenetUpdate(safenet store.SafenetStore) *SafenetUpdate {
	return &SafenetUpdate{safenet: safenet}
}

func (u *SafenetUpdate) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	now := jc.Clock.Now()

	deleted, err := u.safenet.DeleteExpiredSafenet(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "delete expired safenet entries")
	}
	summary := types.Summary{"deleted": int(deleted), "listed": 0}

	entries, err := u.safenet.ListSafenet(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "list safenet entries")
	}
	if len(entries) == 0 {
		return summary, nil
	}
	summary.Add("listed", len(entries))

	if err := u.safenet.ReplaceSafenetReport(ctx, SafenetReport(entries), now); err != nil {
		return summary, errors.Wrap(err, "write safenet report")
	}
	return summary, nil
}

// SafenetReport renders the brief the SafeNet NPC forwards, one line per entry.
func SafenetReport(entries []types.SafenetEntry) string {
	var b strings.Builder
	b.WriteString("Dolan, send this brief to the FBI please: <br/><br/>")
	for _, e := range entries {
		fmt.Fprintf(&b, "IP [%s] caught for %s<br/>", e.IP, e.Reason)
	}
	return b.String()
}
