package store

import (
	"context"
	"time"
)

// SessionStore handles expiry of player login sessions.
type SessionStore interface {
	// DeleteExpired removes sessions whose expiry is <= now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PremiumStore handles expiry of premium subscriptions.
type PremiumStore interface {
	// ExpiredPremiumUsers returns users whose premium period ended before now.
	ExpiredPremiumUsers(ctx context.Context, now time.Time) ([]int64, error)

	// RevokePremium clears the premium flag and removes the subscription row.
	RevokePremium(ctx context.Context, userID int64) error
}
