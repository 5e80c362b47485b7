// Package config loads service configuration from the environment and an
// optional YAML seed file with bots and AI keys.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/optichat/optichat/internal/models"
)

// Default configuration constants.
const (
	// DefaultStateDir holds the SQLite database and legacy flow file.
	DefaultStateDir = "/var/lib/optichat"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "optichat.db"
	// DefaultAPIAddr is the default HTTP listen address.
	DefaultAPIAddr = ":8080"
)

// Config holds environment configuration.
type Config struct {
	APIAddr  string
	StateDir string

	DBDriver    string // sqlite or postgres
	DatabaseDSN string

	LegacyFlowPath string
	BotsSeedPath   string

	// Environment-level messaging fallback, used when a bot has no
	// credentials of its own.
	PhoneNumberID string
	AccessToken   string
	GraphBaseURL  string

	// Channel selects the messaging backend: cloud (default) or twilio.
	Channel          string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	OpenRouterKey     string
	OpenRouterBaseURL string
}

// FromEnv reads the configuration from environment variables. Callers load
// .env beforehand (godotenv in main).
func FromEnv() Config {
	c := Config{
		APIAddr:           os.Getenv("API_ADDR"),
		StateDir:          os.Getenv("OPTICHAT_STATE_DIR"),
		DBDriver:          os.Getenv("DB_DRIVER"),
		DatabaseDSN:       os.Getenv("DATABASE_URL"),
		LegacyFlowPath:    os.Getenv("LEGACY_FLOW_PATH"),
		BotsSeedPath:      os.Getenv("BOTS_SEED_PATH"),
		PhoneNumberID:     os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		AccessToken:       os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		GraphBaseURL:      os.Getenv("GRAPH_BASE_URL"),
		Channel:           os.Getenv("MESSAGING_CHANNEL"),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:        os.Getenv("TWILIO_WHATSAPP_FROM"),
		OpenRouterKey:     os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: os.Getenv("OPENROUTER_BASE_URL"),
	}
	if c.APIAddr == "" {
		c.APIAddr = DefaultAPIAddr
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.Channel == "" {
		c.Channel = "cloud"
	}
	return c
}

// SeedBot is one bot entry in the YAML seed file.
type SeedBot struct {
	Name          string `yaml:"name"`
	UUID          string `yaml:"uuid"`
	PhoneNumberID string `yaml:"phone_number_id"`
	AccessToken   string `yaml:"access_token"`
	VerifyToken   string `yaml:"verify_token"`
	IsActive      *bool  `yaml:"is_active"`
}

// SeedAIKey is one AI key entry in the YAML seed file.
type SeedAIKey struct {
	Provider string `yaml:"provider"`
	Name     string `yaml:"name"`
	APIKey   string `yaml:"api_key"`
	Priority int    `yaml:"priority"`
	IsActive *bool  `yaml:"is_active"`
}

// Seed is the YAML seed document: bots and AI keys provisioned at startup.
type Seed struct {
	Bots   []SeedBot   `yaml:"bots"`
	AIKeys []SeedAIKey `yaml:"ai_keys"`
}

// LoadSeed parses the YAML seed file. A missing path is not an error; it
// returns an empty seed.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return &Seed{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Seed{}, nil
		}
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &s, nil
}

// Bot converts a seed entry to the stored model. A missing uuid gets a fresh
// one; is_active defaults to true.
func (b SeedBot) Bot() models.Bot {
	id := b.UUID
	if id == "" {
		id = uuid.NewString()
	}
	active := true
	if b.IsActive != nil {
		active = *b.IsActive
	}
	return models.Bot{
		Name:          b.Name,
		UUID:          id,
		PhoneNumberID: b.PhoneNumberID,
		AccessToken:   b.AccessToken,
		VerifyToken:   b.VerifyToken,
		IsActive:      active,
	}
}

// Key converts a seed entry to the stored model. The provider defaults to
// openrouter; is_active defaults to true.
func (k SeedAIKey) Key() models.AIKey {
	provider := k.Provider
	if provider == "" {
		provider = models.ProviderOpenRouter
	}
	active := true
	if k.IsActive != nil {
		active = *k.IsActive
	}
	return models.AIKey{
		Provider: provider,
		Name:     k.Name,
		APIKey:   k.APIKey,
		Priority: k.Priority,
		IsActive: active,
	}
}
