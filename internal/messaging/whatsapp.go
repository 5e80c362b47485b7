// Package messaging: WhatsApp Cloud (Graph) API sender.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/optichat/optichat/internal/models"
)

// Cloud API defaults.
const (
	// DefaultGraphBaseURL is the Meta Graph API root.
	DefaultGraphBaseURL = "https://graph.facebook.com"
	// DefaultGraphVersion pins the Graph API version used for sends.
	DefaultGraphVersion = "v20.0"
	// DefaultHTTPTimeout bounds every outbound provider call.
	DefaultHTTPTimeout = 15 * time.Second
)

// CloudOpts holds configuration options for the Cloud API sender.
type CloudOpts struct {
	BaseURL      string
	GraphVersion string
	HTTPClient   *http.Client
}

// CloudOption configures the Cloud API sender.
type CloudOption func(*CloudOpts)

// WithBaseURL overrides the Graph API root (used by tests).
func WithBaseURL(u string) CloudOption {
	return func(o *CloudOpts) { o.BaseURL = u }
}

// WithGraphVersion overrides the Graph API version.
func WithGraphVersion(v string) CloudOption {
	return func(o *CloudOpts) { o.GraphVersion = v }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) CloudOption {
	return func(o *CloudOpts) { o.HTTPClient = c }
}

// CloudSender implements Sender against the WhatsApp Cloud API.
type CloudSender struct {
	baseURL      string
	graphVersion string
	httpClient   *http.Client
}

// NewCloudSender creates a Cloud API sender.
func NewCloudSender(opts ...CloudOption) *CloudSender {
	var cfg CloudOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	if cfg.GraphVersion == "" {
		cfg.GraphVersion = DefaultGraphVersion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &CloudSender{baseURL: cfg.BaseURL, graphVersion: cfg.GraphVersion, httpClient: cfg.HTTPClient}
}

func (s *CloudSender) messagesURL(acct Account) string {
	return fmt.Sprintf("%s/%s/%s/messages", s.baseURL, s.graphVersion, acct.PhoneNumberID)
}

// post sends one message payload and returns the log-ready result. The
// returned error, when non-nil, is always a *SendError.
func (s *CloudSender) post(ctx context.Context, op string, acct Account, to string, payload map[string]interface{}) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, &SendError{Op: op, To: to, Err: fmt.Errorf("failed to encode payload: %w", err)}
	}
	res := Result{MessageType: payload["type"].(string), Request: body}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.messagesURL(acct), bytes.NewReader(body))
	if err != nil {
		return res, &SendError{Op: op, To: to, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+acct.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("CloudSender request failed", "error", err, "op", op, "to", to)
		return res, &SendError{Op: op, To: to, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		respBody = []byte(fmt.Sprintf(`{"text":%q}`, err.Error()))
	}
	if !json.Valid(respBody) {
		respBody, _ = json.Marshal(map[string]string{"text": string(respBody)})
	}
	res.Response = respBody
	res.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("CloudSender provider error", "op", op, "to", to, "status", resp.StatusCode)
		return res, &SendError{Op: op, To: to, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	slog.Debug("CloudSender send succeeded", "op", op, "to", to, "status", resp.StatusCode)
	return res, nil
}

// SendText sends a plain text message.
func (s *CloudSender) SendText(ctx context.Context, acct Account, to, text string) (Result, error) {
	if text == "" {
		return Result{}, &SendError{Op: "send_text", To: to, Err: ErrEmptyMessage}
	}
	return s.post(ctx, "send_text", acct, to, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]interface{}{"preview_url": false, "body": text},
	})
}

// SendButtons sends an interactive reply-button message. Buttons beyond the
// provider limit are dropped and titles are truncated.
func (s *CloudSender) SendButtons(ctx context.Context, acct Account, to, body string, buttons []Button) (Result, error) {
	if len(buttons) > models.MaxButtonsPerMessage {
		buttons = buttons[:models.MaxButtonsPerMessage]
	}
	btns := make([]map[string]interface{}, 0, len(buttons))
	for _, b := range buttons {
		if b.ID == "" || b.Title == "" {
			continue
		}
		btns = append(btns, map[string]interface{}{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": TruncateTitle(b.Title)},
		})
	}
	return s.post(ctx, "send_buttons", acct, to, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "button",
			"body":   map[string]string{"text": body},
			"action": map[string]interface{}{"buttons": btns},
		},
	})
}

// SendImage sends an image by public link.
func (s *CloudSender) SendImage(ctx context.Context, acct Account, to, link, caption string) (Result, error) {
	image := map[string]interface{}{"link": link}
	if caption != "" {
		image["caption"] = caption
	}
	return s.post(ctx, "send_image", acct, to, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             image,
	})
}

// SendDocument sends a document by public link.
func (s *CloudSender) SendDocument(ctx context.Context, acct Account, to, link, filename, caption string) (Result, error) {
	doc := map[string]interface{}{"link": link, "filename": filename}
	if caption != "" {
		doc["caption"] = caption
	}
	return s.post(ctx, "send_document", acct, to, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "document",
		"document":          doc,
	})
}

// SendDocumentByID sends a document by a previously uploaded media id.
// Useful when the link's host does not expose a clean Content-Type.
func (s *CloudSender) SendDocumentByID(ctx context.Context, acct Account, to, mediaID, filename, caption string) (Result, error) {
	doc := map[string]interface{}{"id": mediaID, "filename": filename}
	if caption != "" {
		doc["caption"] = caption
	}
	return s.post(ctx, "send_document", acct, to, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "document",
		"document":          doc,
	})
}

// ValidateAccount checks credentials by fetching the phone number resource.
func (s *CloudSender) ValidateAccount(ctx context.Context, acct Account) (int, json.RawMessage, error) {
	url := fmt.Sprintf("%s/%s?fields=display_phone_number,id", s.baseURL, acct.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+acct.AccessToken)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !json.Valid(body) {
		body, _ = json.Marshal(map[string]string{"text": string(body)})
	}
	return resp.StatusCode, body, nil
}

// TruncateTitle clamps a button title to the provider limit.
func TruncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= models.MaxButtonTitleLength {
		return title
	}
	return string(runes[:models.MaxButtonTitleLength])
}
