package repository

import (
	"context"
	"time"
)

// ExpiryNoticeSentinel marks "final expiry notice already sent" for a
// subscription. It shares the (subscription id, days-before) key space with the
// horizon reminders, which is what makes the expiry sweep idempotent across
// overlapping runs.
const ExpiryNoticeSentinel = 0

// ReminderRepository tracks reminder bookkeeping for both reminder kinds.
type ReminderRepository interface {
	// WasExpirySent reports whether the (subscription, horizon) reminder went out.
	WasExpirySent(ctx context.Context, tx Tx, subscriptionID string, daysBefore int) (bool, error)
	// MarkExpirySent flags the (subscription, horizon) pair; idempotent.
	MarkExpirySent(ctx context.Context, tx Tx, subscriptionID string, daysBefore int, sentAt time.Time) error

	// StaleReminderInfo returns the last "no active subscription" nudge for the
	// user; zero time and count when none was ever sent.
	StaleReminderInfo(ctx context.Context, tx Tx, userID int64) (lastSentAt time.Time, count int, err error)
	// MarkStaleSent upserts the last-sent timestamp and bumps the counter.
	MarkStaleSent(ctx context.Context, tx Tx, userID int64, sentAt time.Time) error
}
