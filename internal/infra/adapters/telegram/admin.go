// File: internal/infra/adapters/telegram/admin.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
)

const (
	stateAwaitingBroadcastText    = "awaiting_broadcast_text"
	stateAwaitingBroadcastConfirm = "awaiting_broadcast_confirm"
)

// handleAdminCommand dispatches operator commands. Returns handled=false for
// anything that should fall through to the regular user flow.
func (b *Bot) handleAdminCommand(ctx context.Context, tgID int64, command string, fields []string, rawText string) (bool, error) {
	switch command {
	case "/grant":
		if len(fields) < 2 {
			return true, b.SendMessage(ctx, tgID, "Usage: /grant <tg_id>")
		}
		target, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return true, b.SendMessage(ctx, tgID, "Bad telegram id: "+fields[1])
		}
		return true, b.adminGrant(ctx, tgID, target)

	case "/revoke":
		if len(fields) < 2 {
			return true, b.SendMessage(ctx, tgID, "Usage: /revoke <tg_id>")
		}
		target, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return true, b.SendMessage(ctx, tgID, "Bad telegram id: "+fields[1])
		}
		return true, b.adminRevoke(ctx, tgID, target)

	case "/sweep":
		rep, err := b.deps.Reconcile.SweepExpired(ctx)
		if err != nil {
			return true, b.SendMessage(ctx, tgID, "Sweep failed: "+err.Error())
		}
		return true, b.SendMessage(ctx, tgID, fmt.Sprintf(
			"Sweep done: scanned %d, removed %d, deactivated %d, notices %d, errors %d",
			rep.Scanned, rep.Removed, rep.Deactivated, rep.NoticesSent, len(rep.Errors)))

	case "/audit":
		rep, err := b.deps.Reconcile.AuditUnpaid(ctx)
		if err != nil {
			return true, b.SendMessage(ctx, tgID, "Audit failed: "+err.Error())
		}
		return true, b.SendMessage(ctx, tgID, fmt.Sprintf(
			"Audit done: scanned %d, kicked %d, errors %d", rep.Scanned, rep.Kicked, len(rep.Errors)))

	case "/poll":
		rep, err := b.deps.Reconcile.PollPayments(ctx)
		if err != nil {
			return true, b.SendMessage(ctx, tgID, "Poll failed: "+err.Error())
		}
		return true, b.SendMessage(ctx, tgID, fmt.Sprintf(
			"Poll done: scanned %d, finalized %d, closed %d, errors %d",
			rep.Scanned, rep.Finalized, rep.Closed, len(rep.Errors)))

	case "/payments":
		limit := 10
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				limit = n
			}
		}
		return true, b.adminListPayments(ctx, tgID, limit)

	case "/diag":
		return true, b.adminDiag(ctx, tgID)

	case "/broadcast":
		if b.deps.States == nil {
			return true, b.SendMessage(ctx, tgID, "Broadcast is unavailable: no state store configured.")
		}
		err := b.deps.States.SetState(ctx, tgID, &repository.ConversationState{Step: stateAwaitingBroadcastText})
		if err != nil {
			return true, b.SendMessage(ctx, tgID, "Could not start the broadcast wizard: "+err.Error())
		}
		return true, b.SendMessage(ctx, tgID, "Send the broadcast text for all active subscribers (or /cancel).")

	case "/cancel":
		if b.deps.States != nil {
			_ = b.deps.States.ClearState(ctx, tgID)
		}
		return true, b.SendMessage(ctx, tgID, "Cancelled.")

	case "message":
		return b.continueWizard(ctx, tgID, rawText)
	}
	return false, nil
}

func (b *Bot) adminGrant(ctx context.Context, adminID, target int64) error {
	p, err := b.deps.Payments.GrantManual(ctx, target)
	if err != nil {
		return b.SendMessage(ctx, adminID, "Grant failed: "+err.Error())
	}
	if p == nil {
		// Payment history already exists; just add entitlement time.
		if _, err := b.deps.Subs.Extend(ctx, target, b.group.ChatID, model.PlanManual); err != nil {
			return b.SendMessage(ctx, adminID, "Grant failed: "+err.Error())
		}
	} else if err := b.deps.Validations.ConfirmManually(ctx, p); err != nil {
		return b.SendMessage(ctx, adminID, "Grant failed: "+err.Error())
	}

	sub, err := b.deps.Subs.Active(ctx, target, b.group.ChatID)
	if err != nil || sub == nil {
		return b.SendMessage(ctx, adminID, fmt.Sprintf("Granted access to %d.", target))
	}
	return b.SendMessage(ctx, adminID, fmt.Sprintf("Granted access to %d until %s.", target, sub.EndAt.Format("02.01.2006")))
}

func (b *Bot) adminRevoke(ctx context.Context, adminID, target int64) error {
	revoked, err := b.deps.Subs.Revoke(ctx, target, b.group.ChatID)
	if err != nil {
		return b.SendMessage(ctx, adminID, "Revoke failed: "+err.Error())
	}
	failed, err := b.deps.Validations.FailPendingForUser(ctx, target)
	if err != nil {
		return b.SendMessage(ctx, adminID, "Revoke failed closing validations: "+err.Error())
	}
	if err := b.deps.Group.RemoveMember(ctx, b.group.ChatID, target); err != nil {
		b.log.Warn().Err(err).Int64("tg_id", target).Msg("revoke: removal failed")
		return b.SendMessage(ctx, adminID, fmt.Sprintf(
			"Revoked %d subscriptions for %d but could not remove them from the group: %v", revoked, target, err))
	}
	return b.SendMessage(ctx, adminID, fmt.Sprintf(
		"Revoked %d subscriptions and %d pending validations for %d; removed from the group.", revoked, failed, target))
}

func (b *Bot) adminListPayments(ctx context.Context, adminID int64, limit int) error {
	items, err := b.deps.Payments.ListRecent(ctx, limit)
	if err != nil {
		return b.SendMessage(ctx, adminID, "Could not list payments: "+err.Error())
	}
	if len(items) == 0 {
		return b.SendMessage(ctx, adminID, "No payments recorded.")
	}
	var sb strings.Builder
	sb.WriteString("Recent payments:\n")
	for _, p := range items {
		fmt.Fprintf(&sb, "%s  %d  %s  %s  %d.%02d\n",
			p.CreatedAt.Format("02.01 15:04"), p.UserID, p.PlanCode, p.Status, p.Amount/100, p.Amount%100)
	}
	return b.SendMessage(ctx, adminID, sb.String())
}

func (b *Bot) adminDiag(ctx context.Context, adminID int64) error {
	var sb strings.Builder
	sb.WriteString("Diagnostics:\n")
	if n, err := b.deps.Users.CountUsers(ctx, nil); err == nil {
		fmt.Fprintf(&sb, "known users: %d\n", n)
	}
	if n, err := b.deps.Subs.CountActive(ctx); err == nil {
		fmt.Fprintf(&sb, "active subscriptions: %d\n", n)
	}
	if sum, err := b.deps.Payments.SumByPeriod(ctx, "month"); err == nil {
		fmt.Fprintf(&sb, "revenue this month: %d.%02d\n", sum/100, sum%100)
	}
	return b.SendMessage(ctx, adminID, sb.String())
}

// continueWizard advances a multi-step admin flow when one is open.
func (b *Bot) continueWizard(ctx context.Context, tgID int64, text string) (bool, error) {
	if b.deps.States == nil {
		return false, nil
	}
	state, err := b.deps.States.GetState(ctx, tgID)
	if errors.Is(err, domain.ErrNotFound) || state == nil {
		return false, nil
	}
	if err != nil {
		return true, b.SendMessage(ctx, tgID, "State store unavailable: "+err.Error())
	}

	switch state.Step {
	case stateAwaitingBroadcastText:
		text = strings.TrimSpace(text)
		if text == "" {
			return true, b.SendMessage(ctx, tgID, "Broadcast text cannot be empty. Send the text or /cancel.")
		}
		next := &repository.ConversationState{
			Step: stateAwaitingBroadcastConfirm,
			Data: map[string]string{"text": text},
		}
		if err := b.deps.States.SetState(ctx, tgID, next); err != nil {
			return true, b.SendMessage(ctx, tgID, "Could not save the draft: "+err.Error())
		}
		rows := [][]adapter.InlineButton{{
			{Text: "✅ Send to all active", Data: "bcast:send"},
			{Text: "✖️ Cancel", Data: "bcast:cancel"},
		}}
		return true, b.SendButtons(ctx, tgID, "Broadcast preview:\n\n"+text, rows)
	}
	return false, nil
}

func (b *Bot) cbBroadcastSend(ctx context.Context, tgID int64, _ string) error {
	if !b.deps.Access.IsAdmin(tgID) || b.deps.States == nil {
		return nil
	}
	state, err := b.deps.States.GetState(ctx, tgID)
	if err != nil || state == nil || state.Step != stateAwaitingBroadcastConfirm {
		return b.SendMessage(ctx, tgID, "No broadcast draft found. Start over with /broadcast.")
	}
	text := state.Data["text"]
	if text == "" {
		_ = b.deps.States.ClearState(ctx, tgID)
		return b.SendMessage(ctx, tgID, "The draft is empty. Start over with /broadcast.")
	}

	ids, err := b.deps.Subs.ListActiveUserIDs(ctx)
	if err != nil {
		return b.SendMessage(ctx, tgID, "Could not list recipients: "+err.Error())
	}
	sent := 0
	for _, id := range ids {
		if err := b.SendMessage(ctx, id, text); err != nil {
			b.log.Debug().Err(err).Int64("tg_id", id).Msg("broadcast undeliverable")
			continue
		}
		sent++
	}
	_ = b.deps.States.ClearState(ctx, tgID)
	return b.SendMessage(ctx, tgID, fmt.Sprintf("Broadcast sent to %d of %d active subscribers.", sent, len(ids)))
}

func (b *Bot) cbBroadcastCancel(ctx context.Context, tgID int64, _ string) error {
	if !b.deps.Access.IsAdmin(tgID) || b.deps.States == nil {
		return nil
	}
	_ = b.deps.States.ClearState(ctx, tgID)
	return b.SendMessage(ctx, tgID, "Broadcast cancelled.")
}
