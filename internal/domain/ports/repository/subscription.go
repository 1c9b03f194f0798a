package repository

import (
	"context"
	"time"

	"telegram-group-access/internal/domain/model"
)

// SubscriptionRepository is the port for entitlement windows.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	// FindActive returns the active subscription for the (user, group) pair.
	FindActive(ctx context.Context, tx Tx, userID int64, chatID string) (*model.Subscription, error)
	// ExtendActive pushes end-at forward and updates the plan code on the
	// existing active row.
	ExtendActive(ctx context.Context, tx Tx, id string, endAt time.Time, planCode model.PlanCode) error
	// Deactivate clears the active flag; reports whether a row changed.
	Deactivate(ctx context.Context, tx Tx, id string) (bool, error)
	// DeactivateForUser revokes every active subscription of the pair.
	DeactivateForUser(ctx context.Context, tx Tx, userID int64, chatID string) (int, error)
	// ListExpiredActive returns active subscriptions with end-at <= now.
	ListExpiredActive(ctx context.Context, tx Tx, now time.Time) ([]*model.Subscription, error)
	// ListEndingBetween returns active subscriptions whose end-at falls in [from, to].
	ListEndingBetween(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Subscription, error)
	CountActive(ctx context.Context, tx Tx, now time.Time) (int, error)
	ListActiveUserIDs(ctx context.Context, tx Tx, now time.Time) ([]int64, error)
}
