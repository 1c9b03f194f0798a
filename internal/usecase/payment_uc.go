// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// Initiate creates a gateway invoice and records the payment as created.
	Initiate(ctx context.Context, userID int64, code model.PlanCode) (*model.Payment, string, error)
	// TryMarkSuccess is the single atomic transition by which "payment
	// succeeded" is recorded. Exactly one caller observes true per invoice.
	TryMarkSuccess(ctx context.Context, invoiceID string, paidAt time.Time) (bool, error)
	// MarkTerminal records a terminal failure status reported by the gateway.
	MarkTerminal(ctx context.Context, invoiceID string, status model.PaymentStatus) error
	// GrantManual records a synthetic zero-amount success payment so an
	// admin-granted user passes every later payment-history check.
	GrantManual(ctx context.Context, userID int64) (*model.Payment, error)
	LastInFlight(ctx context.Context, userID int64) (*model.Payment, error)
	ListRecent(ctx context.Context, limit int) ([]*model.Payment, error)
	SumByPeriod(ctx context.Context, period string) (int64, error)
}

type paymentUC struct {
	payments repository.PaymentRepository
	gateway  adapter.PaymentGateway
	clock    adapter.Clock
	log      *zerolog.Logger
}

func NewPaymentUseCase(payments repository.PaymentRepository, gateway adapter.PaymentGateway, clock adapter.Clock, logger *zerolog.Logger) *paymentUC {
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{payments: payments, gateway: gateway, clock: clock, log: &l}
}

func (u *paymentUC) Initiate(ctx context.Context, userID int64, code model.PlanCode) (*model.Payment, string, error) {
	plan, ok := model.PlanByCode(code)
	if !ok || plan.PriceMinor <= 0 {
		return nil, "", domain.ErrUnknownPlan
	}

	now := u.clock.Now()
	reference := fmt.Sprintf("tg_%d_%s_%s", userID, code, ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()))
	inv, err := u.gateway.CreateInvoice(ctx, plan.PriceMinor, reference, plan.Title)
	if err != nil {
		return nil, "", fmt.Errorf("create invoice: %w", err)
	}

	p := &model.Payment{
		ID:        uuid.NewString(),
		InvoiceID: inv.InvoiceID,
		UserID:    userID,
		PlanCode:  code,
		Amount:    plan.PriceMinor,
		Status:    model.PaymentStatusCreated,
		CreatedAt: now,
	}
	if err := u.payments.Save(ctx, nil, p); err != nil {
		return nil, "", err
	}
	u.log.Info().Int64("tg_id", userID).Str("invoice", inv.InvoiceID).Str("plan", string(code)).Msg("payment initiated")
	return p, inv.PayURL, nil
}

func (u *paymentUC) TryMarkSuccess(ctx context.Context, invoiceID string, paidAt time.Time) (bool, error) {
	won, err := u.payments.TryMarkSuccess(ctx, nil, invoiceID, paidAt)
	if err != nil {
		return false, err
	}
	if !won {
		// Normal outcome: another caller finalized this invoice first.
		u.log.Debug().Str("invoice", invoiceID).Msg("success transition already taken")
	}
	return won, nil
}

func (u *paymentUC) MarkTerminal(ctx context.Context, invoiceID string, status model.PaymentStatus) error {
	if !status.Terminal() || status == model.PaymentStatusSuccess {
		return domain.ErrInvalidArgument
	}
	return u.payments.MarkTerminal(ctx, nil, invoiceID, status)
}

func (u *paymentUC) GrantManual(ctx context.Context, userID int64) (*model.Payment, error) {
	now := u.clock.Now()
	has, err := u.payments.HasSuccessful(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if has {
		return nil, nil // payment history already grants the grandfather clause
	}
	p := &model.Payment{
		ID:        uuid.NewString(),
		InvoiceID: fmt.Sprintf("manual_%d_%s", userID, ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())),
		UserID:    userID,
		PlanCode:  model.PlanManual,
		Amount:    0,
		Status:    model.PaymentStatusSuccess,
		CreatedAt: now,
		PaidAt:    &now,
	}
	if err := u.payments.Save(ctx, nil, p); err != nil {
		return nil, err
	}
	u.log.Info().Int64("tg_id", userID).Str("invoice", p.InvoiceID).Msg("manual grant payment recorded")
	return p, nil
}

func (u *paymentUC) LastInFlight(ctx context.Context, userID int64) (*model.Payment, error) {
	return u.payments.LastInFlightByUser(ctx, nil, userID)
}

func (u *paymentUC) ListRecent(ctx context.Context, limit int) ([]*model.Payment, error) {
	return u.payments.ListRecent(ctx, nil, limit)
}

func (u *paymentUC) SumByPeriod(ctx context.Context, period string) (int64, error) {
	return u.payments.SumByPeriod(ctx, nil, period)
}
