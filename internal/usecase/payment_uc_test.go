//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
)

func TestPaymentUseCase_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates invoice and records payment as created", func(t *testing.T) {
		d := newUCDeps()

		p, payURL, err := d.paymentUC.Initiate(ctx, 101, model.PlanOneMonth)
		if err != nil {
			t.Fatalf("Initiate: %v", err)
		}
		if payURL == "" {
			t.Fatal("expected a pay URL")
		}
		if p.Status != model.PaymentStatusCreated {
			t.Fatalf("status = %s, want created", p.Status)
		}
		if p.Amount != 70000 {
			t.Fatalf("amount = %d, want 70000", p.Amount)
		}

		stored, err := d.payments.FindByInvoiceID(ctx, nil, p.InvoiceID)
		if err != nil {
			t.Fatalf("payment not persisted: %v", err)
		}
		if stored.UserID != 101 || stored.PlanCode != model.PlanOneMonth {
			t.Fatalf("stored payment mismatch: %+v", stored)
		}
	})

	t.Run("rejects unknown plan", func(t *testing.T) {
		d := newUCDeps()
		if _, _, err := d.paymentUC.Initiate(ctx, 101, "P99"); !errors.Is(err, domain.ErrUnknownPlan) {
			t.Fatalf("err = %v, want ErrUnknownPlan", err)
		}
	})

	t.Run("rejects plan not offered for sale", func(t *testing.T) {
		d := newUCDeps()
		if _, _, err := d.paymentUC.Initiate(ctx, 101, model.PlanManual); !errors.Is(err, domain.ErrUnknownPlan) {
			t.Fatalf("err = %v, want ErrUnknownPlan", err)
		}
	})
}

func TestPaymentUseCase_TryMarkSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("only the first caller wins the transition", func(t *testing.T) {
		d := newUCDeps()
		p, _, err := d.paymentUC.Initiate(ctx, 101, model.PlanOneMonth)
		if err != nil {
			t.Fatalf("Initiate: %v", err)
		}

		paidAt := d.clock.Now()
		won1, err := d.paymentUC.TryMarkSuccess(ctx, p.InvoiceID, paidAt)
		if err != nil || !won1 {
			t.Fatalf("first caller: won=%v err=%v, want win", won1, err)
		}
		won2, err := d.paymentUC.TryMarkSuccess(ctx, p.InvoiceID, paidAt)
		if err != nil || won2 {
			t.Fatalf("second caller: won=%v err=%v, want loss", won2, err)
		}

		stored, _ := d.payments.FindByInvoiceID(ctx, nil, p.InvoiceID)
		if stored.Status != model.PaymentStatusSuccess || stored.PaidAt == nil {
			t.Fatalf("stored = %+v, want success with paid-at", stored)
		}
	})

	t.Run("terminal payment never transitions again", func(t *testing.T) {
		d := newUCDeps()
		p, _, _ := d.paymentUC.Initiate(ctx, 101, model.PlanOneMonth)
		if err := d.paymentUC.MarkTerminal(ctx, p.InvoiceID, model.PaymentStatusExpired); err != nil {
			t.Fatalf("MarkTerminal: %v", err)
		}

		won, err := d.paymentUC.TryMarkSuccess(ctx, p.InvoiceID, d.clock.Now())
		if err != nil || won {
			t.Fatalf("won=%v err=%v, want no transition out of expired", won, err)
		}
		stored, _ := d.payments.FindByInvoiceID(ctx, nil, p.InvoiceID)
		if stored.Status != model.PaymentStatusExpired {
			t.Fatalf("status = %s, want expired", stored.Status)
		}
	})
}

func TestPaymentUseCase_MarkTerminal(t *testing.T) {
	ctx := context.Background()
	d := newUCDeps()
	p, _, _ := d.paymentUC.Initiate(ctx, 101, model.PlanOneMonth)

	if err := d.paymentUC.MarkTerminal(ctx, p.InvoiceID, model.PaymentStatusSuccess); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("success via MarkTerminal: err = %v, want ErrInvalidArgument", err)
	}
	if err := d.paymentUC.MarkTerminal(ctx, p.InvoiceID, model.PaymentStatusProcessing); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("in-flight via MarkTerminal: err = %v, want ErrInvalidArgument", err)
	}
	if err := d.paymentUC.MarkTerminal(ctx, p.InvoiceID, model.PaymentStatusReversed); err != nil {
		t.Fatalf("MarkTerminal reversed: %v", err)
	}
}

func TestPaymentUseCase_GrantManual(t *testing.T) {
	ctx := context.Background()

	t.Run("records a zero amount success payment", func(t *testing.T) {
		d := newUCDeps()
		p, err := d.paymentUC.GrantManual(ctx, 202)
		if err != nil {
			t.Fatalf("GrantManual: %v", err)
		}
		if p == nil {
			t.Fatal("expected a synthetic payment")
		}
		if p.Amount != 0 || p.Status != model.PaymentStatusSuccess || p.PlanCode != model.PlanManual {
			t.Fatalf("synthetic payment = %+v", p)
		}
		has, _ := d.payments.HasSuccessful(ctx, nil, 202)
		if !has {
			t.Fatal("grant must satisfy the payment-history check")
		}
	})

	t.Run("no-op when a successful payment already exists", func(t *testing.T) {
		d := newUCDeps()
		if _, err := d.paymentUC.GrantManual(ctx, 202); err != nil {
			t.Fatalf("first grant: %v", err)
		}
		p, err := d.paymentUC.GrantManual(ctx, 202)
		if err != nil {
			t.Fatalf("second grant: %v", err)
		}
		if p != nil {
			t.Fatalf("second grant recorded %+v, want no-op", p)
		}
	})
}

func TestPaymentUseCase_LastInFlight(t *testing.T) {
	ctx := context.Background()
	d := newUCDeps()

	if _, err := d.paymentUC.LastInFlight(ctx, 101); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	p1, _, _ := d.paymentUC.Initiate(ctx, 101, model.PlanOneMonth)
	d.clock.Advance(time.Minute)
	p2, _, _ := d.paymentUC.Initiate(ctx, 101, model.PlanTwoMonths)

	got, err := d.paymentUC.LastInFlight(ctx, 101)
	if err != nil {
		t.Fatalf("LastInFlight: %v", err)
	}
	if got.InvoiceID != p2.InvoiceID {
		t.Fatalf("got %s, want newest invoice %s (older was %s)", got.InvoiceID, p2.InvoiceID, p1.InvoiceID)
	}
}
