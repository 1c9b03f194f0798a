package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/ports/repository"
)

var _ repository.ReminderRepository = (*reminderRepo)(nil)

type reminderRepo struct{ pool *pgxpool.Pool }

func NewReminderRepo(pool *pgxpool.Pool) *reminderRepo {
	return &reminderRepo{pool: pool}
}

func (r *reminderRepo) WasExpirySent(ctx context.Context, tx repository.Tx, subscriptionID string, daysBefore int) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM expiry_reminders WHERE subscription_id=$1 AND days_before=$2);`
	row, err := pickRow(ctx, r.pool, tx, q, subscriptionID, daysBefore)
	if err != nil {
		return false, err
	}
	var sent bool
	if err := row.Scan(&sent); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return sent, nil
}

func (r *reminderRepo) MarkExpirySent(ctx context.Context, tx repository.Tx, subscriptionID string, daysBefore int, sentAt time.Time) error {
	const q = `
INSERT INTO expiry_reminders (subscription_id, days_before, sent_at)
VALUES ($1,$2,$3)
ON CONFLICT (subscription_id, days_before) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, subscriptionID, daysBefore, sentAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *reminderRepo) StaleReminderInfo(ctx context.Context, tx repository.Tx, userID int64) (time.Time, int, error) {
	const q = `SELECT last_sent_at, sent_count FROM stale_reminders WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return time.Time{}, 0, err
	}
	var lastSentAt time.Time
	var count int
	if err := row.Scan(&lastSentAt, &count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Never nudged.
			return time.Time{}, 0, nil
		}
		return time.Time{}, 0, domain.ErrReadDatabaseRow
	}
	return lastSentAt, count, nil
}

func (r *reminderRepo) MarkStaleSent(ctx context.Context, tx repository.Tx, userID int64, sentAt time.Time) error {
	const q = `
INSERT INTO stale_reminders (user_id, last_sent_at, sent_count)
VALUES ($1,$2,1)
ON CONFLICT (user_id) DO UPDATE SET last_sent_at=EXCLUDED.last_sent_at, sent_count=stale_reminders.sent_count+1;`
	_, err := execSQL(ctx, r.pool, tx, q, userID, sentAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
