//go:build !integration

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"telegram-group-access/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// Blank the env overrides so host credentials cannot satisfy a check the
// yaml under test deliberately omits.
func clearCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MONOPAY_TOKEN", "")
}

const baseYAML = `
bot:
  token: "123:abc"
  username: "access_bot"
group:
  chat_id: "-1001234567890"
database:
  url: "postgres://localhost/access"
`

func TestLoadConfig_GatewayCredentialScoping(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, baseYAML)

	// Production constructs the real gateway and must refuse to start blind.
	if _, err := config.LoadConfig(path, false); err == nil || !strings.Contains(err.Error(), "monopay.token") {
		t.Fatalf("err = %v, want missing monopay token", err)
	}

	// Dev runs the noop gateway; the merchant credential is not needed.
	cfg, err := config.LoadConfig(path, true)
	if err != nil {
		t.Fatalf("dev load: %v", err)
	}
	if !cfg.Runtime.Dev {
		t.Fatal("dev flag not carried into runtime config")
	}
}

func TestLoadConfig_RequiredFields(t *testing.T) {
	clearCredentialEnv(t)

	path := writeConfig(t, `
group:
  chat_id: "-1001234567890"
database:
  url: "postgres://localhost/access"
`)
	if _, err := config.LoadConfig(path, true); err == nil || !strings.Contains(err.Error(), "bot.token") {
		t.Fatalf("err = %v, want missing bot token", err)
	}

	path = writeConfig(t, `
bot:
  token: "123:abc"
database:
  url: "postgres://localhost/access"
`)
	if _, err := config.LoadConfig(path, true); err == nil || !strings.Contains(err.Error(), "group.chat_id") {
		t.Fatalf("err = %v, want missing chat id", err)
	}
}

func TestLoadStorageConfig_NeedsOnlyDatabase(t *testing.T) {
	clearCredentialEnv(t)

	// No bot token, no group, no merchant token: the migrator does not care.
	cfg, err := config.LoadStorageConfig(writeConfig(t, `
database:
  url: "postgres://localhost/access"
`))
	if err != nil {
		t.Fatalf("storage load: %v", err)
	}
	if cfg.Database.URL == "" {
		t.Fatal("database url lost in load")
	}

	if _, err := config.LoadStorageConfig(writeConfig(t, "bot:\n  token: \"123:abc\"\n")); err == nil {
		t.Fatal("storage load without database.url must fail")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearCredentialEnv(t)
	cfg, err := config.LoadConfig(writeConfig(t, baseYAML), true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bot.Workers <= 0 {
		t.Fatal("worker default not applied")
	}
	if cfg.Group.ValidationWindow <= 0 {
		t.Fatal("validation window default not applied")
	}
	if cfg.Scheduler.Timezone == "" || cfg.Web.Port == 0 {
		t.Fatal("scheduler/web defaults not applied")
	}
}
