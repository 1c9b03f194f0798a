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

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, invoice_id, user_id, plan_code, amount, status, created_at, paid_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.InvoiceID, &p.UserID, &p.PlanCode, &p.Amount, &p.Status, &p.CreatedAt, &p.PaidAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (id, invoice_id, user_id, plan_code, amount, status, created_at, paid_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (invoice_id) DO UPDATE SET
  status=EXCLUDED.status, paid_at=EXCLUDED.paid_at;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.InvoiceID, p.UserID, p.PlanCode, p.Amount, p.Status, p.CreatedAt, p.PaidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByInvoiceID(ctx context.Context, tx repository.Tx, invoiceID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, invoiceID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) LastInFlightByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments
WHERE user_id=$1 AND status IN ('created','processing','holded')
ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) ListInFlight(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 500
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments
WHERE status IN ('created','processing','holded')
ORDER BY created_at ASC LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TryMarkSuccess is the single place "payment succeeded" is decided. The
// conditional UPDATE makes the transition atomic: of all concurrent triggers
// (poller, user check, admin) exactly one sees RowsAffected() == 1.
func (r *paymentRepo) TryMarkSuccess(ctx context.Context, tx repository.Tx, invoiceID string, paidAt time.Time) (bool, error) {
	const q = `UPDATE payments SET status='success', paid_at=$2
WHERE invoice_id=$1 AND status IN ('created','processing','holded');`
	tag, err := execSQL(ctx, r.pool, tx, q, invoiceID, paidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() > 0, nil
}

func (r *paymentRepo) MarkTerminal(ctx context.Context, tx repository.Tx, invoiceID string, status model.PaymentStatus) error {
	// Same in-flight guard as the success transition: terminal states are
	// terminal no matter which trigger arrives late.
	const q = `UPDATE payments SET status=$2
WHERE invoice_id=$1 AND status IN ('created','processing','holded');`
	_, err := execSQL(ctx, r.pool, tx, q, invoiceID, status)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) HasSuccessful(ctx context.Context, tx repository.Tx, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM payments WHERE user_id=$1 AND status='success');`
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

func (r *paymentRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments ORDER BY created_at DESC LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *paymentRepo) SumByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM payments WHERE status='success' AND paid_at >= DATE_TRUNC($1, NOW());`
	row, err := pickRow(ctx, r.pool, tx, q, period)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
