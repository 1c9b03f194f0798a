// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"`
	Workers  int     `yaml:"workers"` // polling workers
	AdminIDs []int64 `yaml:"admin_ids"`
}

type GroupConfig struct {
	ChatID           string        `yaml:"chat_id"` // e.g. -1001234567890
	InviteTTL        time.Duration `yaml:"invite_ttl"`
	ValidationWindow time.Duration `yaml:"validation_window"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PaymentConfig struct {
	MonoPay struct {
		Token       string `yaml:"token"` // X-Token merchant credential
		BaseURL     string `yaml:"base_url"`
		CurrencyCcy int    `yaml:"currency_ccy"` // ISO 4217 numeric, 980 = UAH
	} `yaml:"monopay"`
}

type SchedulerConfig struct {
	Timezone       string        `yaml:"timezone"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	AuditInterval  time.Duration `yaml:"audit_interval"`
	ReminderHour3D int           `yaml:"reminder_hour_3d"`
	ReminderHour1D int           `yaml:"reminder_hour_1d"`
	StaleHour      int           `yaml:"stale_hour"`
}

type WebConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Group     GroupConfig     `yaml:"group"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Web       WebConfig       `yaml:"web"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file, applies .env/env overrides for secrets and
// normalizes defaults, then checks the credentials the full service needs.
// Dev mode swaps in the noop gateway, so the merchant token is not required
// there. Missing credentials are fatal here and only here; nothing
// re-validates config at runtime.
func LoadConfig(path string, dev bool) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Group.ChatID == "" {
		return nil, errors.New("group.chat_id is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if !dev && cfg.Payment.MonoPay.Token == "" {
		return nil, errors.New("payment.monopay.token is required")
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// LoadStorageConfig is for tools that only talk to the database (the
// migrator); it skips the bot and gateway credential checks.
func LoadStorageConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	_ = godotenv.Load() // optional .env for local runs

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// env overrides for credentials
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("MONOPAY_TOKEN"); v != "" {
		cfg.Payment.MonoPay.Token = v
	}

	// defaults
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Group.InviteTTL <= 0 {
		cfg.Group.InviteTTL = 24 * time.Hour
	}
	if cfg.Group.ValidationWindow <= 0 {
		cfg.Group.ValidationWindow = 10 * time.Minute
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Payment.MonoPay.BaseURL == "" {
		cfg.Payment.MonoPay.BaseURL = "https://api.monobank.ua/api/merchant"
	}
	if cfg.Payment.MonoPay.CurrencyCcy == 0 {
		cfg.Payment.MonoPay.CurrencyCcy = 980
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Europe/Kyiv"
	}
	if cfg.Scheduler.PollInterval <= 0 {
		cfg.Scheduler.PollInterval = 2 * time.Minute
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		cfg.Scheduler.SweepInterval = 12 * time.Hour
	}
	if cfg.Scheduler.AuditInterval <= 0 {
		cfg.Scheduler.AuditInterval = 24 * time.Hour
	}
	if cfg.Scheduler.ReminderHour3D <= 0 {
		cfg.Scheduler.ReminderHour3D = 11
	}
	if cfg.Scheduler.ReminderHour1D <= 0 {
		cfg.Scheduler.ReminderHour1D = 18
	}
	if cfg.Scheduler.StaleHour <= 0 {
		cfg.Scheduler.StaleHour = 10
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}

	return &cfg, nil
}
