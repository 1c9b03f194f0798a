// File: internal/infra/adapters/telegram/group_api.go
package telegram

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-group-access/internal/domain/ports/adapter"
)

var _ adapter.GroupAPI = (*GroupAPI)(nil)

// GroupAPI implements the group-membership port over the Telegram Bot API.
type GroupAPI struct {
	bot *tgbotapi.BotAPI
}

func NewGroupAPI(bot *tgbotapi.BotAPI) *GroupAPI {
	return &GroupAPI{bot: bot}
}

func parseChatID(chatID string) (int64, error) {
	return strconv.ParseInt(chatID, 10, 64)
}

func (g *GroupAPI) MembershipStatus(ctx context.Context, chatID string, userID int64) (adapter.MembershipStatus, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}
	member, err := g.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: id, UserID: userID},
	})
	if err != nil {
		if isNotParticipant(err) {
			return adapter.MemberStatusLeft, nil
		}
		return "", err
	}
	return adapter.MembershipStatus(member.Status), nil
}

// RemoveMember kicks with ban+unban so the user can rejoin through a future
// invite link instead of staying banned.
func (g *GroupAPI) RemoveMember(ctx context.Context, chatID string, userID int64) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	ban := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: id, UserID: userID},
	}
	if _, err := g.bot.Request(ban); err != nil && !isNotParticipant(err) {
		return err
	}
	unban := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: id, UserID: userID},
		OnlyIfBanned:     true,
	}
	if _, err := g.bot.Request(unban); err != nil && !isNotParticipant(err) {
		return err
	}
	return nil
}

func (g *GroupAPI) CreateSingleUseInvite(ctx context.Context, chatID string, userID int64, ttl time.Duration) (string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: id},
		Name:        "access " + strconv.FormatInt(userID, 10),
		MemberLimit: 1,
		ExpireDate:  int(time.Now().Add(ttl).Unix()),
	}
	resp, err := g.bot.Request(cfg)
	if err != nil {
		return "", err
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// isNotParticipant matches the API errors Telegram returns when acting on a
// user who already left; those are fine for our purposes.
func isNotParticipant(err error) bool {
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "USER_NOT_PARTICIPANT") ||
		strings.Contains(msg, "PARTICIPANT_ID_INVALID") ||
		strings.Contains(msg, "USER NOT FOUND")
}
