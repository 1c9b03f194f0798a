package repository

import (
	"context"
	"time"

	"telegram-group-access/internal/domain/model"
)

// -----------------------------
// Payment validations
// -----------------------------

type ValidationRepository interface {
	// Create inserts the validation row if absent. Reports whether the row was
	// inserted; a duplicate invoice id is a no-op returning false.
	Create(ctx context.Context, tx Tx, v *model.PaymentValidation) (bool, error)
	// LatestPendingByUser returns the most recent pending validation whose
	// deadline has not passed, ordered by paid-at.
	LatestPendingByUser(ctx context.Context, tx Tx, userID int64, now time.Time) (*model.PaymentValidation, error)
	// MarkConfirmed flips pending -> confirmed; reports whether a row changed.
	MarkConfirmed(ctx context.Context, tx Tx, invoiceID string, joinAt, confirmedAt time.Time) (bool, error)
	// MarkFailed flips pending -> failed; reports whether a row changed.
	MarkFailed(ctx context.Context, tx Tx, invoiceID string, failedAt time.Time) (bool, error)
	// HasConfirmed reports whether any confirmed validation exists for the user.
	HasConfirmed(ctx context.Context, tx Tx, userID int64) (bool, error)
	// HasAny reports whether the user has any validation row at all.
	HasAny(ctx context.Context, tx Tx, userID int64) (bool, error)
	ListPendingByUser(ctx context.Context, tx Tx, userID int64) ([]*model.PaymentValidation, error)
}
