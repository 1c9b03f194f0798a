package repository

import (
	"context"
	"time"

	"telegram-group-access/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	// Save upserts the profile; nil fields keep existing column values.
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	RecordJoin(ctx context.Context, tx Tx, tgID int64, joinAt time.Time) error
	// ListKnownIDs enumerates every telegram id seen in users, payments or
	// subscriptions. The group API has no bulk member listing, so audits
	// enumerate candidates from our own ledgers.
	ListKnownIDs(ctx context.Context, tx Tx) ([]int64, error)
	// ListIDsWithoutSuccessfulPayment returns known ids with no success payment.
	ListIDsWithoutSuccessfulPayment(ctx context.Context, tx Tx) ([]int64, error)
	CountUsers(ctx context.Context, tx Tx) (int, error)
}
