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

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

// Save upserts the profile. COALESCE keeps existing column values when the
// incoming field is nil, so partial updates from different handlers never
// erase each other.
func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (telegram_id, username, first_name, last_name, phone, last_join_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (telegram_id) DO UPDATE SET
  username=COALESCE(EXCLUDED.username, users.username),
  first_name=COALESCE(EXCLUDED.first_name, users.first_name),
  last_name=COALESCE(EXCLUDED.last_name, users.last_name),
  phone=COALESCE(EXCLUDED.phone, users.phone),
  last_join_at=COALESCE(EXCLUDED.last_join_at, users.last_join_at),
  updated_at=EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q, u.TelegramID, u.Username, u.FirstName, u.LastName, u.Phone, u.LastJoinAt, u.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *userRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	const q = `SELECT telegram_id, username, first_name, last_name, phone, last_join_at, updated_at
FROM users WHERE telegram_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, tgID)
	if err != nil {
		return nil, err
	}
	u := &model.User{}
	if err := row.Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Phone, &u.LastJoinAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return u, nil
}

func (r *userRepo) RecordJoin(ctx context.Context, tx repository.Tx, tgID int64, joinAt time.Time) error {
	const q = `
INSERT INTO users (telegram_id, last_join_at, updated_at)
VALUES ($1,$2,$2)
ON CONFLICT (telegram_id) DO UPDATE SET last_join_at=EXCLUDED.last_join_at, updated_at=EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q, tgID, joinAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// ListKnownIDs enumerates every telegram id the service has ever seen. The
// group API has no member listing, so audits work off our own ledgers.
func (r *userRepo) ListKnownIDs(ctx context.Context, tx repository.Tx) ([]int64, error) {
	const q = `
SELECT telegram_id FROM users
UNION SELECT user_id FROM payments
UNION SELECT user_id FROM subscriptions;`
	return r.listIDs(ctx, tx, q)
}

func (r *userRepo) ListIDsWithoutSuccessfulPayment(ctx context.Context, tx repository.Tx) ([]int64, error) {
	const q = `
SELECT telegram_id FROM users
UNION SELECT user_id FROM payments
UNION SELECT user_id FROM subscriptions
EXCEPT SELECT user_id FROM payments WHERE status='success';`
	return r.listIDs(ctx, tx, q)
}

func (r *userRepo) listIDs(ctx context.Context, tx repository.Tx, q string) ([]int64, error) {
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *userRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	const q = `SELECT COUNT(*) FROM users;`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
