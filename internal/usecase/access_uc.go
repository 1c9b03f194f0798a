// File: internal/usecase/access_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
)

var _ AccessUseCase = (*accessUC)(nil)

// AccessResult is the outcome of an on-demand access check.
type AccessResult string

const (
	// AccessGranted: the user is entitled right now.
	AccessGranted AccessResult = "granted"
	// AccessProvisional: a successful payment exists and the join window is
	// still open; entitlement lands once the user enters the group.
	AccessProvisional AccessResult = "provisional"
	AccessDenied      AccessResult = "denied"
)

type AccessUseCase interface {
	// HasAccess is the cheap composed decision: admin override, or active
	// subscription AND validated access.
	HasAccess(ctx context.Context, userID int64) (bool, error)
	// CheckNow is the user-triggered deep check: resolves an open pending
	// validation if the user meanwhile joined, then polls the gateway for the
	// latest in-flight payment, racing the background poller through the same
	// atomic success transition.
	CheckNow(ctx context.Context, userID int64) (AccessResult, error)
	IsAdmin(userID int64) bool
}

type accessUC struct {
	subs        SubscriptionUseCase
	validations ValidationUseCase
	payments    PaymentUseCase
	gateway     adapter.PaymentGateway
	group       adapter.GroupAPI
	clock       adapter.Clock
	chatID      string
	adminIDs    map[int64]struct{}
	log         *zerolog.Logger
}

func NewAccessUseCase(
	subs SubscriptionUseCase,
	validations ValidationUseCase,
	payments PaymentUseCase,
	gateway adapter.PaymentGateway,
	group adapter.GroupAPI,
	clock adapter.Clock,
	chatID string,
	adminIDs []int64,
	logger *zerolog.Logger,
) *accessUC {
	l := logger.With().Str("component", "AccessUC").Logger()
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &accessUC{
		subs:        subs,
		validations: validations,
		payments:    payments,
		gateway:     gateway,
		group:       group,
		clock:       clock,
		chatID:      chatID,
		adminIDs:    admins,
		log:         &l,
	}
}

func (u *accessUC) IsAdmin(userID int64) bool {
	_, ok := u.adminIDs[userID]
	return ok
}

func (u *accessUC) HasAccess(ctx context.Context, userID int64) (bool, error) {
	if u.IsAdmin(userID) {
		return true, nil
	}
	active, err := u.subs.IsActive(ctx, userID, u.chatID)
	if err != nil {
		return false, err
	}
	if !active {
		return false, nil
	}
	return u.validations.HasValidatedAccess(ctx, userID)
}

func (u *accessUC) CheckNow(ctx context.Context, userID int64) (AccessResult, error) {
	if u.IsAdmin(userID) {
		return AccessGranted, nil
	}

	// A user poking "check my access" may have joined after paying; resolve
	// the pending window before deciding.
	status, err := u.group.MembershipStatus(ctx, u.chatID, userID)
	if err == nil && status.InGroup() {
		if _, err := u.validations.ConfirmOnJoin(ctx, userID); err != nil {
			return AccessDenied, err
		}
	}

	ok, err := u.HasAccess(ctx, userID)
	if err != nil {
		return AccessDenied, err
	}
	if ok {
		return AccessGranted, nil
	}

	open, err := u.validations.HasOpenWindow(ctx, userID)
	if err != nil {
		return AccessDenied, err
	}
	if open {
		return AccessProvisional, nil
	}

	return u.checkLatestPayment(ctx, userID)
}

// checkLatestPayment polls the gateway for the user's newest in-flight payment
// and finalizes it through the atomic success transition on a success report.
func (u *accessUC) checkLatestPayment(ctx context.Context, userID int64) (AccessResult, error) {
	p, err := u.payments.LastInFlight(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return AccessDenied, nil
	}
	if err != nil {
		return AccessDenied, err
	}

	gwStatus, err := u.gateway.InvoiceStatus(ctx, p.InvoiceID)
	if err != nil {
		u.log.Warn().Err(err).Str("invoice", p.InvoiceID).Msg("gateway status lookup failed")
		return AccessDenied, nil
	}
	if gwStatus != model.PaymentStatusSuccess {
		if gwStatus.Terminal() {
			if err := u.payments.MarkTerminal(ctx, p.InvoiceID, gwStatus); err != nil {
				u.log.Warn().Err(err).Str("invoice", p.InvoiceID).Msg("record terminal status")
			}
		}
		return AccessDenied, nil
	}

	now := u.clock.Now()
	won, err := u.payments.TryMarkSuccess(ctx, p.InvoiceID, now)
	if err != nil {
		return AccessDenied, err
	}
	if won {
		p.Status = model.PaymentStatusSuccess
		p.PaidAt = &now
		granted, err := u.validations.OnPaymentSuccess(ctx, p)
		if err != nil {
			return AccessDenied, err
		}
		if granted {
			return AccessGranted, nil
		}
		return AccessProvisional, nil
	}

	// Lost the race to the poller; re-read the composed decision it produced.
	ok, err := u.HasAccess(ctx, userID)
	if err != nil {
		return AccessDenied, err
	}
	if ok {
		return AccessGranted, nil
	}
	return AccessProvisional, nil
}
