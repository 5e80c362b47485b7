// Package messaging renders outbound messages for a messaging provider and
// resolves which account credentials to use.
//
// Two Sender backends exist: the WhatsApp Cloud (Graph) API and a Twilio
// WhatsApp fallback. The Dispatcher wraps a Sender with credential
// resolution, message logging and metrics; callers decide per call site
// whether a failure is best-effort (node assets) or hard (operator sends).
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Error variables shared by senders.
var (
	ErrNoCredentials = errors.New("no messaging credentials available")
	ErrEmptyMessage  = errors.New("message body cannot be empty")
)

// phoneNumberRegex strips every non-digit when canonicalizing recipients.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Account is one set of WhatsApp Cloud API credentials.
type Account struct {
	PhoneNumberID string
	AccessToken   string
}

// IsZero reports whether the account carries no credentials.
func (a Account) IsZero() bool {
	return a.PhoneNumberID == "" && a.AccessToken == ""
}

// Button is one outbound reply button.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Result captures what was sent and what the provider answered, for the
// append-only message log. It is populated even when the send failed.
type Result struct {
	MessageType string
	Request     json.RawMessage
	Response    json.RawMessage
	StatusCode  int
}

// SendError is the structured error surfaced by senders. It carries enough
// context for the caller to log deliberately instead of suppressing blindly.
type SendError struct {
	Op         string
	To         string
	StatusCode int
	Body       string
	Err        error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s to %s failed: %v", e.Op, e.To, e.Err)
	}
	return fmt.Sprintf("%s to %s failed: status %d: %s", e.Op, e.To, e.StatusCode, e.Body)
}

func (e *SendError) Unwrap() error { return e.Err }

// Sender is the provider-specific message builder and transport.
type Sender interface {
	// SendText sends a plain text message.
	SendText(ctx context.Context, acct Account, to, text string) (Result, error)
	// SendButtons sends an interactive reply-button message (max 3 buttons,
	// titles truncated to the provider limit).
	SendButtons(ctx context.Context, acct Account, to, body string, buttons []Button) (Result, error)
	// SendImage sends an image by public link.
	SendImage(ctx context.Context, acct Account, to, link, caption string) (Result, error)
	// SendDocument sends a document by public link.
	SendDocument(ctx context.Context, acct Account, to, link, filename, caption string) (Result, error)
	// SendDocumentByID sends a previously uploaded document by media id.
	SendDocumentByID(ctx context.Context, acct Account, to, mediaID, filename, caption string) (Result, error)
}

// CanonicalizeRecipient strips formatting from a phone-based recipient id.
func CanonicalizeRecipient(recipient string) (string, error) {
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid recipient: no digits found in %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid recipient: %q is too short", canonical)
	}
	return canonical, nil
}
