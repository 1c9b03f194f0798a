// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-group-access/internal/config"
	"telegram-group-access/internal/domain/ports/adapter"
	payAdapters "telegram-group-access/internal/infra/adapters/payment"
	tele "telegram-group-access/internal/infra/adapters/telegram"
	pg "telegram-group-access/internal/infra/db/postgres"
	"telegram-group-access/internal/infra/logging"
	"telegram-group-access/internal/infra/metrics"
	red "telegram-group-access/internal/infra/redis"
	"telegram-group-access/internal/infra/sched"
	"telegram-group-access/internal/infra/web"
	"telegram-group-access/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, fake payment gateway")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	stateRepo := red.NewStateRepo(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewUserRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	valRepo := pg.NewValidationRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	remRepo := pg.NewReminderRepo(pool)

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Runtime.Dev {
		gateway = payAdapters.NewNoopGateway()
		logger.Warn().Msg("payment gateway: noop (every invoice succeeds)")
	} else {
		gateway, err = payAdapters.NewMonoPayGateway(
			cfg.Payment.MonoPay.Token,
			cfg.Payment.MonoPay.BaseURL,
			cfg.Payment.MonoPay.CurrencyCcy,
			"https://t.me/"+cfg.Bot.Username,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("monopay gateway")
		}
	}

	// ---- Telegram client and ports ----
	botAPI, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram")
	}
	groupAPI := tele.NewGroupAPI(botAPI)
	notifier := tele.NewNotifier(botAPI)
	clock := adapter.SystemClock{}

	// ---- Use cases ----
	paymentUC := usecase.NewPaymentUseCase(payRepo, gateway, clock, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, pg.NewTxManager(pool), clock, logger)
	validationUC := usecase.NewValidationUseCase(
		valRepo, payRepo, groupAPI, subUC, clock,
		cfg.Group.ChatID, cfg.Group.ValidationWindow, logger)
	accessUC := usecase.NewAccessUseCase(
		subUC, validationUC, paymentUC, gateway, groupAPI, clock,
		cfg.Group.ChatID, cfg.Bot.AdminIDs, logger)
	reconcileUC := usecase.NewReconcileUseCase(
		subRepo, payRepo, userRepo, remRepo, validationUC, subUC,
		gateway, groupAPI, notifier, clock,
		cfg.Group.ChatID, cfg.Group.InviteTTL, cfg.Bot.AdminIDs, logger)

	// ---- Reconciliation jobs ----
	reconciler, err := sched.NewReconciler(reconcileUC, cfg.Scheduler, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconciler")
	}
	go func() {
		if err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("reconciler stopped")
		}
	}()

	// ---- Telegram bot ----
	bot, err := tele.NewBot(botAPI, &cfg.Bot, cfg.Group, tele.Deps{
		Access:      accessUC,
		Payments:    paymentUC,
		Subs:        subUC,
		Validations: validationUC,
		Reconcile:   reconcileUC,
		Users:       userRepo,
		States:      stateRepo,
		Group:       groupAPI,
		Clock:       clock,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot")
	}
	go func() {
		if err := bot.StartPolling(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- Ops HTTP server ----
	srv := web.NewServer(reconciler, paymentUC, subUC, userRepo, locker,
		cfg.Web.JWTSecret, !cfg.Runtime.Dev, logger)
	go func() {
		if err := srv.Run(ctx, cfg.Web.Port); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("web server stopped")
		}
	}()

	logger.Info().Str("chat_id", cfg.Group.ChatID).Msg("service up")

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	bot.StopPolling()
}
