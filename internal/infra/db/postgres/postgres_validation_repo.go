package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
)

var _ repository.ValidationRepository = (*validationRepo)(nil)

type validationRepo struct{ pool *pgxpool.Pool }

func NewValidationRepo(pool *pgxpool.Pool) *validationRepo {
	return &validationRepo{pool: pool}
}

const validationColumns = `invoice_id, user_id, plan_code, paid_at, deadline_at, status, confirmed_at, join_at`

func scanValidation(row pgx.Row) (*model.PaymentValidation, error) {
	v := &model.PaymentValidation{}
	if err := row.Scan(&v.InvoiceID, &v.UserID, &v.PlanCode, &v.PaidAt, &v.DeadlineAt, &v.Status, &v.ConfirmedAt, &v.JoinAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return v, nil
}

func (r *validationRepo) Create(ctx context.Context, tx repository.Tx, v *model.PaymentValidation) (bool, error) {
	const q = `
INSERT INTO payment_validations (invoice_id, user_id, plan_code, paid_at, deadline_at, status, confirmed_at, join_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (invoice_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, v.InvoiceID, v.UserID, v.PlanCode, v.PaidAt, v.DeadlineAt, v.Status, v.ConfirmedAt, v.JoinAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() > 0, nil
}

func (r *validationRepo) LatestPendingByUser(ctx context.Context, tx repository.Tx, userID int64, now time.Time) (*model.PaymentValidation, error) {
	const q = `SELECT ` + validationColumns + ` FROM payment_validations
WHERE user_id=$1 AND status='pending' AND deadline_at >= $2
ORDER BY paid_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, now)
	if err != nil {
		return nil, err
	}
	return scanValidation(row)
}

// MarkConfirmed is the one-way CAS out of pending. A row already confirmed or
// failed never changes again, whichever trigger races in.
func (r *validationRepo) MarkConfirmed(ctx context.Context, tx repository.Tx, invoiceID string, joinAt, confirmedAt time.Time) (bool, error) {
	const q = `UPDATE payment_validations SET status='confirmed', join_at=$2, confirmed_at=$3
WHERE invoice_id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, invoiceID, joinAt, confirmedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() > 0, nil
}

func (r *validationRepo) MarkFailed(ctx context.Context, tx repository.Tx, invoiceID string, failedAt time.Time) (bool, error) {
	const q = `UPDATE payment_validations SET status='failed', failed_at=$2
WHERE invoice_id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, invoiceID, failedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() > 0, nil
}

func (r *validationRepo) HasConfirmed(ctx context.Context, tx repository.Tx, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM payment_validations WHERE user_id=$1 AND status='confirmed');`
	return r.exists(ctx, tx, q, userID)
}

func (r *validationRepo) HasAny(ctx context.Context, tx repository.Tx, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM payment_validations WHERE user_id=$1);`
	return r.exists(ctx, tx, q, userID)
}

func (r *validationRepo) exists(ctx context.Context, tx repository.Tx, q string, userID int64) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return false, err
	}
	var has bool
	if err := row.Scan(&has); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return has, nil
}

func (r *validationRepo) ListPendingByUser(ctx context.Context, tx repository.Tx, userID int64) ([]*model.PaymentValidation, error) {
	const q = `SELECT ` + validationColumns + ` FROM payment_validations
WHERE user_id=$1 AND status='pending' ORDER BY paid_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PaymentValidation
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
