package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/optichat/optichat/internal/models"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("OPTICHAT_STATE_DIR", "")
	t.Setenv("MESSAGING_CHANNEL", "")

	c := FromEnv()
	if c.APIAddr != DefaultAPIAddr {
		t.Errorf("APIAddr = %q, want %q", c.APIAddr, DefaultAPIAddr)
	}
	if c.StateDir != DefaultStateDir {
		t.Errorf("StateDir = %q, want %q", c.StateDir, DefaultStateDir)
	}
	if c.Channel != "cloud" {
		t.Errorf("Channel = %q, want cloud", c.Channel)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://opti@localhost/optichat")
	t.Setenv("MESSAGING_CHANNEL", "twilio")

	c := FromEnv()
	if c.APIAddr != ":9090" || c.DBDriver != "postgres" || c.Channel != "twilio" {
		t.Errorf("config = %+v", c)
	}
	if c.DatabaseDSN != "postgres://opti@localhost/optichat" {
		t.Errorf("DatabaseDSN = %q", c.DatabaseDSN)
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots.yml")
	doc := `
bots:
  - name: Tienda Sol
    uuid: bot-1
    phone_number_id: "111222333"
    access_token: tok
    verify_token: verify-me
  - name: Borrador
    is_active: false
ai_keys:
  - name: principal
    api_key: sk-or-aaa
    priority: 1
  - provider: openrouter
    name: respaldo
    api_key: sk-or-bbb
    priority: 2
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if len(seed.Bots) != 2 || len(seed.AIKeys) != 2 {
		t.Fatalf("seed = %d bots, %d keys", len(seed.Bots), len(seed.AIKeys))
	}

	bot := seed.Bots[0].Bot()
	if bot.UUID != "bot-1" || bot.PhoneNumberID != "111222333" || !bot.IsActive {
		t.Errorf("bot = %+v", bot)
	}
	draft := seed.Bots[1].Bot()
	if draft.UUID == "" {
		t.Error("missing uuid should be generated")
	}
	if draft.IsActive {
		t.Error("explicit is_active false ignored")
	}

	key := seed.AIKeys[0].Key()
	if key.Provider != models.ProviderOpenRouter {
		t.Errorf("provider = %q, want the openrouter default", key.Provider)
	}
	if key.APIKey != "sk-or-aaa" || key.Priority != 1 || !key.IsActive {
		t.Errorf("key = %+v", key)
	}
}

func TestLoadSeedMissingFile(t *testing.T) {
	seed, err := LoadSeed(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadSeed(absent) error = %v", err)
	}
	if len(seed.Bots) != 0 || len(seed.AIKeys) != 0 {
		t.Errorf("seed = %+v, want empty", seed)
	}
	if seed, err = LoadSeed(""); err != nil || len(seed.Bots) != 0 {
		t.Errorf("LoadSeed(\"\") = %+v, %v", seed, err)
	}
}

func TestLoadSeedMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("bots: {not: [valid"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSeed(path); err == nil {
		t.Error("expected a parse error")
	}
}
