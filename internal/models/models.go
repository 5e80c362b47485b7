// Package models defines the core data structures for OptiChat.
//
// It includes the tenant bot record, per-user conversation state, the
// append-only message log, AI credential records and the normalized inbound
// event shape shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Validation constants for input validation
const (
	// MaxButtonTitleLength is the WhatsApp Cloud API limit for reply-button titles.
	MaxButtonTitleLength = 20
	// MaxButtonsPerMessage is the WhatsApp Cloud API limit for reply buttons.
	MaxButtonsPerMessage = 3
	// MaxAssetsPerNode caps how many assets a single node may dispatch.
	MaxAssetsPerNode = 5
	// DefaultHumanTimeoutMin is the default human-handoff window in minutes.
	DefaultHumanTimeoutMin = 15
)

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrEmptyBotToken    = errors.New("bot access token cannot be empty")
	ErrEmptyPhoneID     = errors.New("bot phone number id cannot be empty")
	ErrInvalidEventKind = errors.New("invalid inbound event kind")
	ErrEmptyAPIKey      = errors.New("api key value cannot be empty")
)

// Bot is a tenant: one WhatsApp business number with its credentials.
// The UUID identifies the bot's webhook path and never changes.
type Bot struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	UUID          string    `json:"uuid"`
	PhoneNumberID string    `json:"phone_number_id"`
	AccessToken   string    `json:"-"`
	VerifyToken   string    `json:"-"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks that a bot carries the credentials needed to send messages.
func (b *Bot) Validate() error {
	if b.PhoneNumberID == "" {
		return ErrEmptyPhoneID
	}
	if b.AccessToken == "" {
		return ErrEmptyBotToken
	}
	return nil
}

// Flow is a stored conversation graph owned by a bot. The definition is an
// opaque JSON document; it is only validated at the node-reference level when
// decoded into a FlowDefinition.
type Flow struct {
	ID         int64           `json:"id"`
	BotID      int64           `json:"bot_id"`
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
	IsActive   bool            `json:"is_active"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// WaUser is the per (bot, wa_id) conversation state record.
type WaUser struct {
	BotID           int64      `json:"bot_id"`
	WaID            string     `json:"wa_id"`
	Name            string     `json:"name"`
	FlowNode        string     `json:"flow_node,omitempty"`
	HumanRequested  bool       `json:"human_requested"`
	HumanTimeoutMin int        `json:"human_timeout_min"`
	HumanExpiresAt  *time.Time `json:"human_expires_at,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	LastInAt        *time.Time `json:"last_in_at,omitempty"`
	WelcomedAt      *time.Time `json:"welcomed_at,omitempty"`
}

// HumanActive reports whether the human-handoff window is open at the given
// instant. An unset expiry with human_requested=true counts as open (legacy
// rows toggled from the panel without a timeout).
func (u *WaUser) HumanActive(now time.Time) bool {
	if !u.HumanRequested {
		return false
	}
	if u.HumanExpiresAt == nil {
		return true
	}
	return now.Before(*u.HumanExpiresAt)
}

// MessageDirection labels a message log entry.
type MessageDirection string

const (
	// DirectionIn marks messages received from the messaging provider.
	DirectionIn MessageDirection = "in"
	// DirectionOut marks messages sent to the messaging provider.
	DirectionOut MessageDirection = "out"
)

// MessageLog is one append-only log entry for the live-chat viewer. Outbound
// entries store the provider request and response; inbound entries store the
// raw webhook body.
type MessageLog struct {
	ID          int64            `json:"id"`
	BotID       int64            `json:"bot_id"`
	Direction   MessageDirection `json:"direction"`
	WaFrom      string           `json:"wa_from"`
	WaTo        string           `json:"wa_to"`
	MessageType string           `json:"message_type"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// AIKey is one rotating AI provider credential. failure_count is advisory
// telemetry only; keys are never disabled by the gateway.
type AIKey struct {
	ID           int64      `json:"id"`
	Provider     string     `json:"provider"`
	Name         string     `json:"name,omitempty"`
	APIKey       string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	Priority     int        `json:"priority"`
	FailureCount int        `json:"failure_count"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// ProviderOpenRouter is the only AI provider currently configured.
const ProviderOpenRouter = "openrouter"

// Validate checks an AIKey before it is stored.
func (k *AIKey) Validate() error {
	if strings.TrimSpace(k.APIKey) == "" {
		return ErrEmptyAPIKey
	}
	return nil
}

// EventKind is the normalized type of an inbound webhook event.
type EventKind string

const (
	// EventText is a free-text message.
	EventText EventKind = "text"
	// EventButton is a legacy quick-reply button press carrying a payload.
	EventButton EventKind = "button"
	// EventInteractive is an interactive button or list reply carrying an id.
	EventInteractive EventKind = "interactive_button"
)

// IsValidEventKind checks if the given event kind is supported.
func IsValidEventKind(k EventKind) bool {
	switch k {
	case EventText, EventButton, EventInteractive:
		return true
	default:
		return false
	}
}

// InboundEvent is the normalized inbound shape handed to the flow executor.
// The webhook layer derives it from the provider JSON; the executor never
// parses raw provider payloads.
type InboundEvent struct {
	WaID      string    `json:"wa_id"`
	Kind      EventKind `json:"kind"`
	PayloadID string    `json:"payload_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate performs validation on an inbound event.
func (e *InboundEvent) Validate() error {
	if e.WaID == "" {
		return ErrEmptyRecipient
	}
	if !IsValidEventKind(e.Kind) {
		return ErrInvalidEventKind
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
