// File: internal/usecase/validation_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
)

var _ ValidationUseCase = (*validationUC)(nil)

// ValidationUseCase runs the post-payment validation workflow: a successful
// payment only becomes an entitlement once the payer is observed inside the
// group, either immediately or within the join window.
type ValidationUseCase interface {
	// OnPaymentSuccess runs once per won success transition. If the payer is
	// already in the group the validation is born confirmed and the ledger is
	// extended; otherwise a pending row with a join deadline is recorded.
	// Returns whether the entitlement was extended now.
	OnPaymentSuccess(ctx context.Context, p *model.Payment) (bool, error)
	// ConfirmOnJoin resolves the user's open pending validation, if any, and
	// extends the ledger. Safe to call on every join event and access check.
	ConfirmOnJoin(ctx context.Context, userID int64) (bool, error)
	// HasValidatedAccess evaluates the validation side of the access decision:
	// confirmed row, open pending window, or the grandfather clause (paying
	// user predating validation bookkeeping).
	HasValidatedAccess(ctx context.Context, userID int64) (bool, error)
	// FailPendingForUser flips the user's pending validations to failed so a
	// revocation cannot be undone by an open join window.
	FailPendingForUser(ctx context.Context, userID int64) (int, error)
	// ConfirmManually records a confirmed validation and extends the ledger
	// without a membership check. Used for admin grants.
	ConfirmManually(ctx context.Context, p *model.Payment) error
	// HasOpenWindow reports whether a pending validation with an unexpired
	// join deadline exists for the user.
	HasOpenWindow(ctx context.Context, userID int64) (bool, error)
}

type validationUC struct {
	validations repository.ValidationRepository
	payments    repository.PaymentRepository
	group       adapter.GroupAPI
	subs        SubscriptionUseCase
	clock       adapter.Clock
	chatID      string
	window      time.Duration // join window granted after payment
	log         *zerolog.Logger
}

func NewValidationUseCase(
	validations repository.ValidationRepository,
	payments repository.PaymentRepository,
	group adapter.GroupAPI,
	subs SubscriptionUseCase,
	clock adapter.Clock,
	chatID string,
	window time.Duration,
	logger *zerolog.Logger,
) *validationUC {
	l := logger.With().Str("component", "ValidationUC").Logger()
	return &validationUC{
		validations: validations,
		payments:    payments,
		group:       group,
		subs:        subs,
		clock:       clock,
		chatID:      chatID,
		window:      window,
		log:         &l,
	}
}

func (u *validationUC) OnPaymentSuccess(ctx context.Context, p *model.Payment) (bool, error) {
	now := u.clock.Now()
	paidAt := now
	if p.PaidAt != nil {
		paidAt = *p.PaidAt
	}

	status, err := u.group.MembershipStatus(ctx, u.chatID, p.UserID)
	if err != nil {
		// Membership unknown: fall back to a pending window rather than
		// blocking the entitlement on a transient API failure.
		u.log.Warn().Err(err).Int64("tg_id", p.UserID).Msg("membership lookup failed, recording pending validation")
		status = adapter.MemberStatusLeft
	}

	v := &model.PaymentValidation{
		InvoiceID:  p.InvoiceID,
		UserID:     p.UserID,
		PlanCode:   p.PlanCode,
		PaidAt:     paidAt,
		DeadlineAt: paidAt.Add(u.window),
		Status:     model.ValidationStatusPending,
	}
	if status.InGroup() {
		v.Status = model.ValidationStatusConfirmed
		v.ConfirmedAt = &now
		v.JoinAt = &now
	}
	inserted, err := u.validations.Create(ctx, nil, v)
	if err != nil {
		return false, err
	}
	if !inserted {
		// Replayed delivery; the first one owns the workflow.
		return false, nil
	}

	if v.Status != model.ValidationStatusConfirmed {
		u.log.Info().Int64("tg_id", p.UserID).Str("invoice", p.InvoiceID).Time("deadline", v.DeadlineAt).Msg("validation pending, awaiting join")
		return false, nil
	}

	if _, err := u.subs.Extend(ctx, p.UserID, u.chatID, p.PlanCode); err != nil {
		return false, err
	}
	u.log.Info().Int64("tg_id", p.UserID).Str("invoice", p.InvoiceID).Msg("validation confirmed on payment")
	return true, nil
}

func (u *validationUC) ConfirmOnJoin(ctx context.Context, userID int64) (bool, error) {
	now := u.clock.Now()
	v, err := u.validations.LatestPendingByUser(ctx, nil, userID, now)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	won, err := u.validations.MarkConfirmed(ctx, nil, v.InvoiceID, now, now)
	if err != nil {
		return false, err
	}
	if !won {
		// A concurrent trigger confirmed or an admin failed it first.
		return false, nil
	}
	if _, err := u.subs.Extend(ctx, userID, u.chatID, v.PlanCode); err != nil {
		return false, err
	}
	u.log.Info().Int64("tg_id", userID).Str("invoice", v.InvoiceID).Msg("validation confirmed on join")
	return true, nil
}

func (u *validationUC) HasOpenWindow(ctx context.Context, userID int64) (bool, error) {
	_, err := u.validations.LatestPendingByUser(ctx, nil, userID, u.clock.Now())
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (u *validationUC) HasValidatedAccess(ctx context.Context, userID int64) (bool, error) {
	confirmed, err := u.validations.HasConfirmed(ctx, nil, userID)
	if err != nil {
		return false, err
	}
	if confirmed {
		return true, nil
	}

	if _, err := u.validations.LatestPendingByUser(ctx, nil, userID, u.clock.Now()); err == nil {
		return true, nil // open join window still grants provisional access
	} else if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	any, err := u.validations.HasAny(ctx, nil, userID)
	if err != nil {
		return false, err
	}
	if any {
		return false, nil // only closed/failed rows remain
	}
	// Grandfather clause: users who paid before validation bookkeeping existed
	// have no rows at all and keep access on payment history alone.
	return u.payments.HasSuccessful(ctx, nil, userID)
}

func (u *validationUC) ConfirmManually(ctx context.Context, p *model.Payment) error {
	now := u.clock.Now()
	paidAt := now
	if p.PaidAt != nil {
		paidAt = *p.PaidAt
	}
	v := &model.PaymentValidation{
		InvoiceID:   p.InvoiceID,
		UserID:      p.UserID,
		PlanCode:    p.PlanCode,
		PaidAt:      paidAt,
		DeadlineAt:  paidAt.Add(u.window),
		Status:      model.ValidationStatusConfirmed,
		ConfirmedAt: &now,
	}
	inserted, err := u.validations.Create(ctx, nil, v)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	if _, err := u.subs.Extend(ctx, p.UserID, u.chatID, p.PlanCode); err != nil {
		return err
	}
	u.log.Info().Int64("tg_id", p.UserID).Str("invoice", p.InvoiceID).Msg("validation confirmed manually")
	return nil
}

func (u *validationUC) FailPendingForUser(ctx context.Context, userID int64) (int, error) {
	pending, err := u.validations.ListPendingByUser(ctx, nil, userID)
	if err != nil {
		return 0, err
	}
	now := u.clock.Now()
	n := 0
	for _, v := range pending {
		won, err := u.validations.MarkFailed(ctx, nil, v.InvoiceID, now)
		if err != nil {
			return n, err
		}
		if won {
			n++
		}
	}
	if n > 0 {
		u.log.Info().Int64("tg_id", userID).Int("failed", n).Msg("pending validations failed")
	}
	return n, nil
}
