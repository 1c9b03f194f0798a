// File: internal/infra/adapters/telegram/member_events.go
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/infra/metrics"
)

// handleChatMember reacts to membership transitions in the paid group. A join
// is the moment a pending validation turns into real entitlement; a join
// without entitlement gets reverted on the spot.
func (b *Bot) handleChatMember(ctx context.Context, ev *tgbotapi.ChatMemberUpdated) error {
	chatID, err := parseChatID(b.group.ChatID)
	if err != nil || ev.Chat.ID != chatID {
		return nil
	}

	oldIn := adapter.MembershipStatus(ev.OldChatMember.Status).InGroup()
	newIn := adapter.MembershipStatus(ev.NewChatMember.Status).InGroup()

	if !oldIn && newIn {
		return b.onMemberJoined(ctx, ev.NewChatMember.User)
	}
	if oldIn && !newIn {
		// Leaving does not touch entitlement; the subscription keeps running
		// and the user can rejoin through /check.
		b.log.Info().Int64("tg_id", ev.NewChatMember.User.ID).Msg("member left the group")
	}
	return nil
}

func (b *Bot) onMemberJoined(ctx context.Context, tgUser *tgbotapi.User) error {
	if tgUser == nil || tgUser.IsBot {
		return nil
	}
	tgID := tgUser.ID
	now := b.deps.Clock.Now()

	b.upsertProfile(ctx, tgUser)
	if err := b.deps.Users.RecordJoin(ctx, nil, tgID, now); err != nil {
		b.log.Warn().Err(err).Int64("tg_id", tgID).Msg("record join failed")
	}

	confirmed, err := b.deps.Validations.ConfirmOnJoin(ctx, tgID)
	if err != nil {
		b.log.Error().Err(err).Int64("tg_id", tgID).Msg("confirm on join failed")
	}
	if confirmed {
		text := "Welcome! Your payment is confirmed and the subscription is active."
		if sub, serr := b.deps.Subs.Active(ctx, tgID, b.group.ChatID); serr == nil && sub != nil {
			text = fmt.Sprintf("Welcome! Your payment is confirmed; the subscription runs until %s.", sub.EndAt.Format("02.01.2006"))
		}
		if nerr := b.SendMessage(ctx, tgID, text); nerr != nil {
			b.log.Debug().Err(nerr).Int64("tg_id", tgID).Msg("welcome undeliverable")
		}
		return nil
	}

	ok, err := b.deps.Access.HasAccess(ctx, tgID)
	if err != nil {
		// Better to let a possibly-entitled user stay than to kick on a read error.
		b.log.Error().Err(err).Int64("tg_id", tgID).Msg("access lookup on join failed")
		return nil
	}
	if ok {
		return nil
	}

	if err := b.deps.Group.RemoveMember(ctx, b.group.ChatID, tgID); err != nil {
		b.log.Error().Err(err).Int64("tg_id", tgID).Msg("removing uninvited joiner failed")
		return err
	}
	metrics.AddMembersKicked("no_access", 1)
	b.log.Info().Int64("tg_id", tgID).Msg("removed joiner without entitlement")

	if nerr := b.SendButtons(ctx, tgID,
		"The group is for subscribers only. Pick a plan to join:", plansRows()); nerr != nil {
		b.log.Debug().Err(nerr).Int64("tg_id", tgID).Msg("gate notice undeliverable")
	}
	return nil
}
