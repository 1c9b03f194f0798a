// File: internal/infra/adapters/telegram/bot.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/config"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/infra/metrics"
	"telegram-group-access/internal/usecase"
)

// Deps bundles everything the bot dispatches into.
type Deps struct {
	Access      usecase.AccessUseCase
	Payments    usecase.PaymentUseCase
	Subs        usecase.SubscriptionUseCase
	Validations usecase.ValidationUseCase
	Reconcile   usecase.ReconcileUseCase
	Users       repository.UserRepository
	States      repository.StateRepository
	Group       adapter.GroupAPI
	Clock       adapter.Clock
}

// Bot polls Telegram updates and dispatches them to the use cases. It is the
// only inbound surface for users; admins additionally get the web endpoints.
type Bot struct {
	bot   *tgbotapi.BotAPI
	cfg   *config.BotConfig
	group config.GroupConfig
	deps  Deps
	log   *zerolog.Logger

	cancelPolling context.CancelFunc
}

func NewBot(bot *tgbotapi.BotAPI, cfg *config.BotConfig, group config.GroupConfig, deps Deps, logger *zerolog.Logger) (*Bot, error) {
	if bot == nil {
		return nil, errors.New("bot api is nil")
	}
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if deps.Access == nil || deps.Payments == nil || deps.Subs == nil ||
		deps.Validations == nil || deps.Users == nil || deps.Group == nil {
		return nil, errors.New("bot deps incomplete")
	}
	l := logger.With().Str("component", "Bot").Logger()
	return &Bot{bot: bot, cfg: cfg, group: group, deps: deps, log: &l}, nil
}

// StartPolling runs the long-poll loop with a worker pool; chat_member is
// requested explicitly because Telegram omits it from the default update set.
func (b *Bot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query", "chat_member"}
	updates := b.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	b.cancelPolling = cancel

	workers := b.cfg.Workers
	if workers <= 0 {
		workers = 5
	}

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-updateChan:
					if err := b.handleUpdate(ctx, up); err != nil {
						b.log.Warn().Err(err).Int("worker", id).Msg("update handling failed")
					}
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (b *Bot) StopPolling() {
	if b.cancelPolling != nil {
		b.cancelPolling()
	}
}

func (b *Bot) SendMessage(ctx context.Context, tgID int64, text string) error {
	_, err := b.bot.Send(tgbotapi.NewMessage(tgID, text))
	return err
}

func (b *Bot) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewMessage(tgID, text)
	msg.ReplyMarkup = buildKeyboard(rows)
	_, err := b.bot.Send(msg)
	return err
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	// ----- Inline button callbacks -----
	if update.CallbackQuery != nil {
		return b.handleQuery(ctx, update.CallbackQuery)
	}

	// ----- Membership transitions in the paid group -----
	if update.ChatMember != nil {
		return b.handleChatMember(ctx, update.ChatMember)
	}

	// ----- Regular messages -----
	if update.Message == nil {
		return nil
	}
	tgUser := update.Message.From
	if tgUser == nil {
		return nil
	}
	// Commands work in the private chat only; group chatter is none of our business.
	if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
		return nil
	}

	b.upsertProfile(ctx, tgUser)

	fields := strings.Fields(update.Message.Text)
	command := "message"
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		command = strings.TrimSuffix(fields[0], "@"+b.cfg.Username)
		if at := strings.Index(command, "@"); at > 0 {
			command = command[:at]
		}
	}

	if b.deps.Access.IsAdmin(tgUser.ID) {
		if handled, err := b.handleAdminCommand(ctx, tgUser.ID, command, fields, update.Message.Text); handled {
			return err
		}
	}

	switch command {
	case "/start":
		return b.sendMainMenu(ctx, tgUser.ID, "Hi! This bot manages access to the paid group. Pick a plan to join, or check your current access:")

	case "/status":
		return b.sendMainMenu(ctx, tgUser.ID, b.statusText(ctx, tgUser.ID))

	case "/check":
		return b.replyAccessCheck(ctx, tgUser.ID)

	case "/help":
		reply := "Commands:\n/start - plans and menu\n/status - subscription status\n/check - verify your access right now"
		if b.deps.Access.IsAdmin(tgUser.ID) {
			reply += "\n\nAdmin:\n/grant <tg_id>\n/revoke <tg_id>\n/sweep /audit /poll\n/payments [n]\n/diag\n/broadcast"
		}
		return b.SendMessage(ctx, tgUser.ID, reply)

	default:
		if command == "message" && update.Message.Text != "" {
			return b.SendMessage(ctx, tgUser.ID, "Not sure what you mean. Try /start.")
		}
		return nil
	}
}

type cbHandler func(ctx context.Context, tgID int64, data string) error

// Exact-match callbacks
func (b *Bot) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		"cmd:menu": func(ctx context.Context, id int64, _ string) error {
			return b.sendMainMenu(ctx, id, "Choose an action:")
		},
		"cmd:status": func(ctx context.Context, id int64, _ string) error {
			return b.sendMainMenu(ctx, id, b.statusText(ctx, id))
		},
		"cmd:check": func(ctx context.Context, id int64, _ string) error {
			return b.replyAccessCheck(ctx, id)
		},
		"bcast:send":   b.cbBroadcastSend,
		"bcast:cancel": b.cbBroadcastCancel,
	}
}

// Prefix-match callbacks
func (b *Bot) cbPrefixRoutes() []struct {
	Prefix string
	Fn     cbHandler
} {
	return []struct {
		Prefix string
		Fn     cbHandler
	}{
		{Prefix: "buy:", Fn: b.cbBuy},
	}
}

func (b *Bot) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop the telegram spinner when we return
	defer func() { _, _ = b.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	tgID := query.From.ID
	data := strings.TrimSpace(query.Data)

	if fn, ok := b.cbRoutes()[data]; ok {
		return fn(ctx, tgID, data)
	}
	for _, pr := range b.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, tgID, data)
		}
	}
	return fmt.Errorf("unknown callback data %q", data)
}

// cbBuy starts the purchase flow: create a gateway invoice and hand the user
// the payment page link.
func (b *Bot) cbBuy(ctx context.Context, tgID int64, data string) error {
	code := model.PlanCode(strings.TrimPrefix(data, "buy:"))
	p, payURL, err := b.deps.Payments.Initiate(ctx, tgID, code)
	if err != nil {
		b.log.Warn().Err(err).Int64("tg_id", tgID).Str("plan", string(code)).Msg("initiate payment failed")
		return b.SendMessage(ctx, tgID, "Could not create the invoice, please try again in a minute.")
	}
	metrics.IncPayment("initiated")

	plan, _ := model.PlanByCode(p.PlanCode)
	text := fmt.Sprintf("Invoice for %s created. After paying, come back and press the check button (or wait a couple of minutes, the bot polls payments on its own).", plan.Title)
	rows := [][]adapter.InlineButton{
		{{Text: "Pay now", URL: payURL}},
		{{Text: "I've paid, check", Data: "cmd:check"}},
	}
	return b.SendButtons(ctx, tgID, text, rows)
}

// replyAccessCheck runs the deep on-demand check and answers with the
// appropriate next step for each outcome.
func (b *Bot) replyAccessCheck(ctx context.Context, tgID int64) error {
	result, err := b.deps.Access.CheckNow(ctx, tgID)
	if err != nil {
		b.log.Warn().Err(err).Int64("tg_id", tgID).Msg("access check failed")
		return b.SendMessage(ctx, tgID, "Could not check your access right now, please try again.")
	}

	switch result {
	case usecase.AccessGranted:
		status, err := b.deps.Group.MembershipStatus(ctx, b.group.ChatID, tgID)
		if err == nil && status.InGroup() {
			return b.SendMessage(ctx, tgID, "You're all set: your access is active and you are in the group.")
		}
		link, err := b.deps.Group.CreateSingleUseInvite(ctx, b.group.ChatID, tgID, b.group.InviteTTL)
		if err != nil {
			b.log.Warn().Err(err).Int64("tg_id", tgID).Msg("invite creation failed")
			return b.SendMessage(ctx, tgID, "Your access is active but the invite link could not be created. Try /check again shortly.")
		}
		return b.SendButtons(ctx, tgID, "Your access is active. Join the group:",
			[][]adapter.InlineButton{{{Text: "Join the group", URL: link}}})

	case usecase.AccessProvisional:
		return b.SendMessage(ctx, tgID, "Payment received. Join the group with your invite link to activate the subscription; if you lost the link, press /check once more.")

	default:
		return b.SendButtons(ctx, tgID, "No active access found. Pick a plan:", plansRows())
	}
}

func (b *Bot) sendMainMenu(ctx context.Context, tgID int64, intro string) error {
	rows := plansRows()
	rows = append(rows,
		[]adapter.InlineButton{{Text: "📊 Status", Data: "cmd:status"}},
		[]adapter.InlineButton{{Text: "🔄 Check my access", Data: "cmd:check"}},
	)
	if strings.TrimSpace(intro) == "" {
		intro = "Choose an action:"
	}
	return b.SendButtons(ctx, tgID, intro, rows)
}

// statusText composes the /status reply from the subscription and validation
// state; failures degrade to a generic line rather than erroring at the user.
func (b *Bot) statusText(ctx context.Context, tgID int64) string {
	sub, err := b.deps.Subs.Active(ctx, tgID, b.group.ChatID)
	if err == nil && sub != nil && sub.ActiveAt(b.deps.Clock.Now()) {
		validated, verr := b.deps.Validations.HasValidatedAccess(ctx, tgID)
		if verr == nil && !validated {
			return fmt.Sprintf("Subscription paid until %s, but your access is not confirmed yet. Press the check button below.", sub.EndAt.Format("02.01.2006 15:04"))
		}
		return fmt.Sprintf("Your subscription is active until %s.", sub.EndAt.Format("02.01.2006 15:04"))
	}

	open, oerr := b.deps.Validations.HasOpenWindow(ctx, tgID)
	if oerr == nil && open {
		return "Payment received; finish joining the group to activate your subscription."
	}
	if p, perr := b.deps.Payments.LastInFlight(ctx, tgID); perr == nil && p != nil {
		return "Your payment is still processing. Press the check button below in a minute."
	}
	return "No active subscription. Pick a plan to get group access:"
}

// upsertProfile refreshes the stored snapshot on every interaction so audits
// have usernames to log.
func (b *Bot) upsertProfile(ctx context.Context, tgUser *tgbotapi.User) {
	u := &model.User{TelegramID: tgUser.ID, UpdatedAt: b.deps.Clock.Now()}
	if tgUser.UserName != "" {
		v := tgUser.UserName
		u.Username = &v
	}
	if tgUser.FirstName != "" {
		v := tgUser.FirstName
		u.FirstName = &v
	}
	if tgUser.LastName != "" {
		v := tgUser.LastName
		u.LastName = &v
	}
	if err := b.deps.Users.Save(ctx, nil, u); err != nil {
		b.log.Debug().Err(err).Int64("tg_id", tgUser.ID).Msg("profile upsert failed")
	}
}

// plansRows builds the purchase keyboard; callback data matches cbBuy.
func plansRows() [][]adapter.InlineButton {
	var rows [][]adapter.InlineButton
	for _, p := range model.PurchasablePlans() {
		rows = append(rows, []adapter.InlineButton{{
			Text: fmt.Sprintf("%s — %d.%02d", p.Title, p.PriceMinor/100, p.PriceMinor%100),
			Data: "buy:" + string(p.Code),
		}})
	}
	return rows
}
