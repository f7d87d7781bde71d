package jobs

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PremiumExpiry revokes premium from users whose subscription ran out.
type PremiumExpiry struct {
	premium store.PremiumStore
}

func NewPremiumExpiry(premium store.PremiumStore) *PremiumExpiry {
	return &PremiumExpiry{premium: premium}
}

func (p *PremiumExpiry) Execute(ctx context.Context, jc scheduler.JobContext) (types.Summary, error) {
	summary := types.Summary{"expired": 0, "revoked": 0}

	users, err := p.premium.ExpiredPremiumUsers(ctx, jc.Clock.Now())
	if err != nil {
		return summary, errors.Wrap(err, "list expired premium users")
	}

	var errs *multierror.Error
	for _, userID := range users {
		summary.Inc("expired")
		if err := p.premium.RevokePremium(ctx, userID); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "user %d", userID))
			continue
		}
		summary.Inc("revoked")
	}
	if summary["revoked"] > 0 {
		jc.Logger.Info("premium expired", zap.Int("revoked", summary["revoked"]))
	}
	return summary, errs.ErrorOrNil()
}
