// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
)

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// Extend stacks one plan duration onto the pair's entitlement window:
	// the new end is max(current end, now) + plan duration. Creates the
	// active row when none exists.
	Extend(ctx context.Context, userID int64, chatID string, code model.PlanCode) (*model.Subscription, error)
	Active(ctx context.Context, userID int64, chatID string) (*model.Subscription, error)
	IsActive(ctx context.Context, userID int64, chatID string) (bool, error)
	// Revoke deactivates every active subscription of the pair.
	Revoke(ctx context.Context, userID int64, chatID string) (int, error)
	CountActive(ctx context.Context) (int, error)
	ListActiveUserIDs(ctx context.Context) ([]int64, error)
}

type subscriptionUC struct {
	subs  repository.SubscriptionRepository
	tm    repository.TransactionManager
	clock adapter.Clock
	log   *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, tm repository.TransactionManager, clock adapter.Clock, logger *zerolog.Logger) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{subs: subs, tm: tm, clock: clock, log: &l}
}

// inTx runs fn transactionally when a manager is configured; the repository
// takes a row lock on the active subscription inside a transaction, which
// serializes concurrent extends of the same pair.
func (u *subscriptionUC) inTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if u.tm == nil {
		return fn(ctx, nil)
	}
	return u.tm.WithTx(ctx, pgx.TxOptions{}, fn)
}

func (u *subscriptionUC) Extend(ctx context.Context, userID int64, chatID string, code model.PlanCode) (*model.Subscription, error) {
	plan, ok := model.PlanByCode(code)
	if !ok {
		return nil, domain.ErrUnknownPlan
	}
	now := u.clock.Now()

	var out *model.Subscription
	err := u.inTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.subs.FindActive(ctx, tx, userID, chatID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if cur != nil {
			base := cur.EndAt
			if base.Before(now) {
				base = now
			}
			cur.EndAt = base.Add(plan.Duration())
			cur.PlanCode = code
			if err := u.subs.ExtendActive(ctx, tx, cur.ID, cur.EndAt, code); err != nil {
				return err
			}
			u.log.Info().Int64("tg_id", userID).Str("plan", string(code)).Time("end_at", cur.EndAt).Msg("subscription extended")
			out = cur
			return nil
		}

		s := &model.Subscription{
			ID:       uuid.NewString(),
			UserID:   userID,
			ChatID:   chatID,
			PlanCode: code,
			StartAt:  now,
			EndAt:    now.Add(plan.Duration()),
			Active:   true,
		}
		if err := u.subs.Save(ctx, tx, s); err != nil {
			return err
		}
		u.log.Info().Int64("tg_id", userID).Str("plan", string(code)).Time("end_at", s.EndAt).Msg("subscription created")
		out = s
		return nil
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		// Lost the insert race against a concurrent extension; fold into the
		// row that won.
		return u.Extend(ctx, userID, chatID, code)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (u *subscriptionUC) Active(ctx context.Context, userID int64, chatID string) (*model.Subscription, error) {
	return u.subs.FindActive(ctx, nil, userID, chatID)
}

func (u *subscriptionUC) IsActive(ctx context.Context, userID int64, chatID string) (bool, error) {
	s, err := u.subs.FindActive(ctx, nil, userID, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.ActiveAt(u.clock.Now()), nil
}

func (u *subscriptionUC) Revoke(ctx context.Context, userID int64, chatID string) (int, error) {
	n, err := u.subs.DeactivateForUser(ctx, nil, userID, chatID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		u.log.Info().Int64("tg_id", userID).Int("revoked", n).Msg("subscriptions revoked")
	}
	return n, nil
}

func (u *subscriptionUC) CountActive(ctx context.Context) (int, error) {
	return u.subs.CountActive(ctx, nil, u.clock.Now())
}

func (u *subscriptionUC) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	return u.subs.ListActiveUserIDs(ctx, nil, u.clock.Now())
}
