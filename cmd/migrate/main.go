// File: cmd/migrate/main.go
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"telegram-group-access/internal/config"
	pg "telegram-group-access/internal/infra/db/postgres"
)

// Applies the schema idempotently. Run once before the first start and after
// every deploy that touches the DDL below.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		telegram_id  BIGINT PRIMARY KEY,
		username     TEXT,
		first_name   TEXT,
		last_name    TEXT,
		phone        TEXT,
		last_join_at TIMESTAMPTZ,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,

	`CREATE TABLE IF NOT EXISTS payments (
		id         UUID PRIMARY KEY,
		invoice_id TEXT NOT NULL UNIQUE,
		user_id    BIGINT NOT NULL,
		plan_code  TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		status     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		paid_at    TIMESTAMPTZ
	);`,
	`CREATE INDEX IF NOT EXISTS idx_payments_user_status ON payments (user_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_payments_inflight ON payments (created_at)
		WHERE status IN ('created','processing','holded');`,

	`CREATE TABLE IF NOT EXISTS payment_validations (
		invoice_id   TEXT PRIMARY KEY REFERENCES payments (invoice_id),
		user_id      BIGINT NOT NULL,
		plan_code    TEXT NOT NULL,
		paid_at      TIMESTAMPTZ NOT NULL,
		deadline_at  TIMESTAMPTZ NOT NULL,
		status       TEXT NOT NULL,
		confirmed_at TIMESTAMPTZ,
		join_at      TIMESTAMPTZ,
		failed_at    TIMESTAMPTZ
	);`,
	`CREATE INDEX IF NOT EXISTS idx_validations_user_status ON payment_validations (user_id, status);`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		id        UUID PRIMARY KEY,
		user_id   BIGINT NOT NULL,
		chat_id   TEXT NOT NULL,
		plan_code TEXT NOT NULL,
		start_at  TIMESTAMPTZ NOT NULL,
		end_at    TIMESTAMPTZ NOT NULL,
		active    BOOLEAN NOT NULL DEFAULT TRUE
	);`,
	// One active window per (user, group); concurrent double-inserts fail here
	// and the caller re-extends instead.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_subscriptions_active
		ON subscriptions (user_id, chat_id) WHERE active;`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_active_end ON subscriptions (end_at) WHERE active;`,

	`CREATE TABLE IF NOT EXISTS expiry_reminders (
		subscription_id UUID NOT NULL REFERENCES subscriptions (id),
		days_before     INT NOT NULL,
		sent_at         TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (subscription_id, days_before)
	);`,

	`CREATE TABLE IF NOT EXISTS stale_reminders (
		user_id      BIGINT PRIMARY KEY,
		last_sent_at TIMESTAMPTZ NOT NULL,
		sent_count   INT NOT NULL DEFAULT 0
	);`,
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadStorageConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	for i, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			log.Fatalf("statement %d failed: %v", i+1, err)
		}
	}
	log.Printf("schema up to date (%d statements applied)", len(statements))
}
