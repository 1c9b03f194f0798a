// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
)

var _ ReconcileUseCase = (*reconcileUC)(nil)

// SweepReport summarizes one expiry sweep run. Per-item failures are collected
// here instead of aborting the batch.
type SweepReport struct {
	Scanned     int
	Removed     int
	Deactivated int
	NoticesSent int
	Errors      []string
}

// AuditReport summarizes one unpaid-member audit run.
type AuditReport struct {
	Scanned int
	Kicked  int
	Errors  []string
}

// PollReport summarizes one payment-status poll run.
type PollReport struct {
	Scanned   int
	Finalized int
	Closed    int // terminal non-success statuses recorded
	Errors    []string
}

// ReconcileUseCase holds the periodic batch operations that converge group
// membership, payment records and the subscription ledger. Every operation
// processes items independently: one bad row never stops the batch.
type ReconcileUseCase interface {
	// SweepExpired removes members whose entitlement window lapsed. A row is
	// deactivated only after the group removal succeeded, so a removal failure
	// leaves the row for the next pass. The expiry notice goes out at most
	// once per subscription.
	SweepExpired(ctx context.Context) (*SweepReport, error)
	// AuditUnpaid kicks group members with no successful payment on record.
	AuditUnpaid(ctx context.Context) (*AuditReport, error)
	// PollPayments reconciles every in-flight payment against the gateway.
	PollPayments(ctx context.Context) (*PollReport, error)
	// SendExpiryReminders notifies subscribers whose window ends near
	// now + daysBefore days. Each (subscription, horizon) pair fires once.
	SendExpiryReminders(ctx context.Context, daysBefore int) (int, error)
	// RemindStale nudges known users without an active subscription, at most
	// once per day per user.
	RemindStale(ctx context.Context) (int, error)
}

type reconcileUC struct {
	subs        repository.SubscriptionRepository
	payments    repository.PaymentRepository
	users       repository.UserRepository
	reminders   repository.ReminderRepository
	validations ValidationUseCase
	subUC       SubscriptionUseCase
	gateway     adapter.PaymentGateway
	group       adapter.GroupAPI
	notifier    adapter.Notifier
	clock       adapter.Clock
	chatID      string
	inviteTTL   time.Duration
	adminIDs    map[int64]struct{}
	log         *zerolog.Logger
}

func NewReconcileUseCase(
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	users repository.UserRepository,
	reminders repository.ReminderRepository,
	validations ValidationUseCase,
	subUC SubscriptionUseCase,
	gateway adapter.PaymentGateway,
	group adapter.GroupAPI,
	notifier adapter.Notifier,
	clock adapter.Clock,
	chatID string,
	inviteTTL time.Duration,
	adminIDs []int64,
	logger *zerolog.Logger,
) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUC").Logger()
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &reconcileUC{
		subs:        subs,
		payments:    payments,
		users:       users,
		reminders:   reminders,
		validations: validations,
		subUC:       subUC,
		gateway:     gateway,
		group:       group,
		notifier:    notifier,
		clock:       clock,
		chatID:      chatID,
		inviteTTL:   inviteTTL,
		adminIDs:    admins,
		log:         &l,
	}
}

func (u *reconcileUC) SweepExpired(ctx context.Context) (*SweepReport, error) {
	now := u.clock.Now()
	expired, err := u.subs.ListExpiredActive(ctx, nil, now)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Scanned: len(expired)}
	for _, s := range expired {
		if err := u.group.RemoveMember(ctx, s.ChatID, s.UserID); err != nil {
			// Leave the row active so the next pass retries the removal.
			report.Errors = append(report.Errors, fmt.Sprintf("remove %d: %v", s.UserID, err))
			u.log.Warn().Err(err).Int64("tg_id", s.UserID).Msg("expiry removal failed, keeping subscription active")
			continue
		}
		report.Removed++

		if _, err := u.subs.Deactivate(ctx, nil, s.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("deactivate %s: %v", s.ID, err))
			continue
		}
		report.Deactivated++

		sent, err := u.reminders.WasExpirySent(ctx, nil, s.ID, repository.ExpiryNoticeSentinel)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("notice check %s: %v", s.ID, err))
			continue
		}
		if sent {
			continue
		}
		if err := u.notifier.NotifyButtons(ctx, s.UserID,
			"Your subscription has expired and access to the group is closed. Renew to come back:",
			planKeyboard()); err != nil {
			// Not marked as sent; the next sweep retries the notice.
			report.Errors = append(report.Errors, fmt.Sprintf("notify %d: %v", s.UserID, err))
			continue
		}
		if err := u.reminders.MarkExpirySent(ctx, nil, s.ID, repository.ExpiryNoticeSentinel, now); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("mark notice %s: %v", s.ID, err))
			continue
		}
		report.NoticesSent++
	}

	u.log.Info().Int("scanned", report.Scanned).Int("removed", report.Removed).
		Int("deactivated", report.Deactivated).Int("errors", len(report.Errors)).Msg("expiry sweep done")
	return report, nil
}

func (u *reconcileUC) AuditUnpaid(ctx context.Context) (*AuditReport, error) {
	ids, err := u.users.ListIDsWithoutSuccessfulPayment(ctx, nil)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{Scanned: len(ids)}
	for _, id := range ids {
		if _, admin := u.adminIDs[id]; admin {
			continue
		}
		status, err := u.group.MembershipStatus(ctx, u.chatID, id)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("status %d: %v", id, err))
			continue
		}
		if !status.InGroup() || status == adapter.MemberStatusCreator || status == adapter.MemberStatusAdministrator {
			continue
		}
		if err := u.group.RemoveMember(ctx, u.chatID, id); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("remove %d: %v", id, err))
			continue
		}
		report.Kicked++
		if err := u.notifier.NotifyButtons(ctx, id,
			"Access to the group requires an active subscription. Pick a plan to join:",
			planKeyboard()); err != nil {
			u.log.Debug().Err(err).Int64("tg_id", id).Msg("audit notice undeliverable")
		}
	}

	u.log.Info().Int("scanned", report.Scanned).Int("kicked", report.Kicked).
		Int("errors", len(report.Errors)).Msg("unpaid audit done")
	return report, nil
}

func (u *reconcileUC) PollPayments(ctx context.Context) (*PollReport, error) {
	inflight, err := u.payments.ListInFlight(ctx, nil, 0)
	if err != nil {
		return nil, err
	}

	report := &PollReport{Scanned: len(inflight)}
	for _, p := range inflight {
		gwStatus, err := u.gateway.InvoiceStatus(ctx, p.InvoiceID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("status %s: %v", p.InvoiceID, err))
			continue
		}
		switch {
		case gwStatus == model.PaymentStatusSuccess:
			if err := u.finalizeSuccess(ctx, p); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("finalize %s: %v", p.InvoiceID, err))
				continue
			}
			report.Finalized++
		case gwStatus.Terminal():
			if err := u.payments.MarkTerminal(ctx, nil, p.InvoiceID, gwStatus); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("close %s: %v", p.InvoiceID, err))
				continue
			}
			report.Closed++
		default:
			// Still in flight on the gateway side; check again next cycle.
		}
	}

	u.log.Info().Int("scanned", report.Scanned).Int("finalized", report.Finalized).
		Int("closed", report.Closed).Int("errors", len(report.Errors)).Msg("payment poll done")
	return report, nil
}

// finalizeSuccess takes the atomic success transition for one invoice and, on
// winning it, runs the validation workflow and tells the user.
func (u *reconcileUC) finalizeSuccess(ctx context.Context, p *model.Payment) error {
	now := u.clock.Now()
	won, err := u.payments.TryMarkSuccess(ctx, nil, p.InvoiceID, now)
	if err != nil {
		return err
	}
	if !won {
		return nil // another trigger already finalized this invoice
	}

	p.Status = model.PaymentStatusSuccess
	p.PaidAt = &now
	granted, err := u.validations.OnPaymentSuccess(ctx, p)
	if err != nil {
		return err
	}

	if granted {
		if err := u.notifier.Notify(ctx, p.UserID, "Payment received. Your subscription has been extended."); err != nil {
			u.log.Debug().Err(err).Int64("tg_id", p.UserID).Msg("success notice undeliverable")
		}
		return nil
	}

	// Payer is not in the group yet: hand them a single-use invite for the
	// join window.
	link, err := u.group.CreateSingleUseInvite(ctx, u.chatID, p.UserID, u.inviteTTL)
	if err != nil {
		u.log.Warn().Err(err).Int64("tg_id", p.UserID).Msg("invite link creation failed")
		return u.notifier.Notify(ctx, p.UserID, "Payment received. Use your group invite to join and activate access.")
	}
	return u.notifier.NotifyButtons(ctx, p.UserID,
		"Payment received. Join the group to activate your subscription:",
		[][]adapter.InlineButton{{{Text: "Join the group", URL: link}}})
}

func (u *reconcileUC) SendExpiryReminders(ctx context.Context, daysBefore int) (int, error) {
	now := u.clock.Now()
	var from, to time.Time
	if daysBefore == 1 {
		// The final reminder covers everything lapsing within a day, so a
		// subscription can never expire unannounced between daily runs.
		from, to = now, now.Add(24*time.Hour)
	} else {
		center := now.Add(time.Duration(daysBefore) * 24 * time.Hour)
		from, to = center.Add(-12*time.Hour), center.Add(12*time.Hour)
	}

	ending, err := u.subs.ListEndingBetween(ctx, nil, from, to)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, s := range ending {
		was, err := u.reminders.WasExpirySent(ctx, nil, s.ID, daysBefore)
		if err != nil {
			u.log.Warn().Err(err).Str("sub_id", s.ID).Msg("reminder check failed")
			continue
		}
		if was {
			continue
		}
		text := fmt.Sprintf("Your subscription ends on %s. Renew in time to keep access:", s.EndAt.Format("02.01.2006"))
		var nerr error
		if daysBefore > 1 {
			nerr = u.notifier.NotifyButtons(ctx, s.UserID, text, planKeyboard())
		} else {
			nerr = u.notifier.Notify(ctx, s.UserID, text+" use /start to renew.")
		}
		if nerr != nil {
			u.log.Debug().Err(nerr).Int64("tg_id", s.UserID).Msg("expiry reminder undeliverable")
			continue
		}
		if err := u.reminders.MarkExpirySent(ctx, nil, s.ID, daysBefore, now); err != nil {
			u.log.Warn().Err(err).Str("sub_id", s.ID).Msg("reminder bookkeeping failed")
			continue
		}
		sent++
	}

	u.log.Info().Int("days_before", daysBefore).Int("candidates", len(ending)).Int("sent", sent).Msg("expiry reminders done")
	return sent, nil
}

func (u *reconcileUC) RemindStale(ctx context.Context) (int, error) {
	ids, err := u.users.ListKnownIDs(ctx, nil)
	if err != nil {
		return 0, err
	}

	now := u.clock.Now()
	sent := 0
	for _, id := range ids {
		if _, admin := u.adminIDs[id]; admin {
			continue
		}
		active, err := u.subUC.IsActive(ctx, id, u.chatID)
		if err != nil {
			u.log.Warn().Err(err).Int64("tg_id", id).Msg("stale check failed")
			continue
		}
		if active {
			continue
		}
		lastSent, _, err := u.reminders.StaleReminderInfo(ctx, nil, id)
		if err != nil {
			u.log.Warn().Err(err).Int64("tg_id", id).Msg("stale bookkeeping read failed")
			continue
		}
		if !lastSent.IsZero() && now.Sub(lastSent) < 24*time.Hour {
			continue
		}
		if err := u.notifier.NotifyButtons(ctx, id,
			"You don't have an active subscription. Pick a plan to get group access:",
			planKeyboard()); err != nil {
			u.log.Debug().Err(err).Int64("tg_id", id).Msg("stale reminder undeliverable")
			continue
		}
		if err := u.reminders.MarkStaleSent(ctx, nil, id, now); err != nil {
			u.log.Warn().Err(err).Int64("tg_id", id).Msg("stale bookkeeping write failed")
			continue
		}
		sent++
	}

	u.log.Info().Int("candidates", len(ids)).Int("sent", sent).Msg("stale reminders done")
	return sent, nil
}

// planKeyboard builds the purchase keyboard used across notifications; the
// callback data matches the bot's buy handler.
func planKeyboard() [][]adapter.InlineButton {
	var rows [][]adapter.InlineButton
	for _, p := range model.PurchasablePlans() {
		rows = append(rows, []adapter.InlineButton{{
			Text: fmt.Sprintf("%s — %d.%02d", p.Title, p.PriceMinor/100, p.PriceMinor%100),
			Data: "buy:" + string(p.Code),
		}})
	}
	return rows
}
