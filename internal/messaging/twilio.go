// Package messaging: Twilio WhatsApp fallback sender.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/optichat/optichat/internal/models"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender implements Sender over the Twilio WhatsApp channel. Twilio's
// sandbox has no native reply buttons, so button messages render as numbered
// options and the last option set per recipient is remembered to resolve
// numeric replies back into button payloads.
type TwilioSender struct {
	client *twilio.RestClient
	from   string

	mu          sync.Mutex
	lastOptions map[string][]Button
}

// NewTwilioSender creates a Twilio-backed sender. from is the WhatsApp-enabled
// Twilio number in E.164 form (without the whatsapp: prefix).
func NewTwilioSender(accountSID, authToken, from string) (*TwilioSender, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, ErrNoCredentials
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{
		client:      client,
		from:        from,
		lastOptions: make(map[string][]Button),
	}, nil
}

func whatsappAddr(number string) string {
	number = strings.TrimPrefix(number, "whatsapp:")
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return "whatsapp:" + number
}

func (s *TwilioSender) send(ctx context.Context, op, to, body, mediaURL string) (Result, error) {
	_ = ctx // twilio-go v1 does not thread contexts through message creation
	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(whatsappAddr(s.from))
	params.SetTo(whatsappAddr(to))
	params.SetBody(body)
	if mediaURL != "" {
		params.SetMediaUrl([]string{mediaURL})
	}

	reqLog, _ := json.Marshal(map[string]string{
		"from": whatsappAddr(s.from), "to": whatsappAddr(to), "body": body, "media_url": mediaURL,
	})
	msgType := "text"
	if mediaURL != "" {
		msgType = "media"
	}
	res := Result{MessageType: msgType, Request: reqLog}

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioSender send failed", "error", err, "op", op, "to", to)
		res.Response, _ = json.Marshal(map[string]string{"text": err.Error()})
		return res, &SendError{Op: op, To: to, Err: err}
	}
	res.StatusCode = 200
	if resp != nil {
		res.Response, _ = json.Marshal(resp)
	}
	slog.Debug("TwilioSender send succeeded", "op", op, "to", to)
	return res, nil
}

// SendText sends a plain text message.
func (s *TwilioSender) SendText(ctx context.Context, acct Account, to, text string) (Result, error) {
	if text == "" {
		return Result{}, &SendError{Op: "send_text", To: to, Err: ErrEmptyMessage}
	}
	return s.send(ctx, "send_text", to, text, "")
}

// SendButtons renders buttons as numbered options appended to the body and
// records the option order so a later "1"/"2"/"3" reply can be resolved.
func (s *TwilioSender) SendButtons(ctx context.Context, acct Account, to, body string, buttons []Button) (Result, error) {
	if len(buttons) > models.MaxButtonsPerMessage {
		buttons = buttons[:models.MaxButtonsPerMessage]
	}
	kept := make([]Button, 0, len(buttons))
	var b strings.Builder
	b.WriteString(body)
	for _, btn := range buttons {
		if btn.ID == "" || btn.Title == "" {
			continue
		}
		kept = append(kept, btn)
		fmt.Fprintf(&b, "\n%d) %s", len(kept), TruncateTitle(btn.Title))
	}

	res, err := s.send(ctx, "send_buttons", to, b.String(), "")
	res.MessageType = "interactive"
	if err == nil && len(kept) > 0 {
		s.mu.Lock()
		s.lastOptions[to] = kept
		s.mu.Unlock()
	}
	return res, err
}

// SendImage sends an image as a media message.
func (s *TwilioSender) SendImage(ctx context.Context, acct Account, to, link, caption string) (Result, error) {
	res, err := s.send(ctx, "send_image", to, caption, link)
	res.MessageType = "image"
	return res, err
}

// SendDocument sends a document as a media message.
func (s *TwilioSender) SendDocument(ctx context.Context, acct Account, to, link, filename, caption string) (Result, error) {
	body := caption
	if body == "" {
		body = filename
	}
	res, err := s.send(ctx, "send_document", to, body, link)
	res.MessageType = "document"
	return res, err
}

// SendDocumentByID is not supported on the Twilio channel; media must be sent
// by public link.
func (s *TwilioSender) SendDocumentByID(ctx context.Context, acct Account, to, mediaID, filename, caption string) (Result, error) {
	return Result{MessageType: "document"}, &SendError{
		Op: "send_document", To: to,
		Err: fmt.Errorf("twilio channel cannot send media by id %q", mediaID),
	}
}

// ResolveReply maps a numeric reply from a recipient back to the button it
// selected in the most recent option message. ok is false when the reply is
// not a number or no options are pending for the recipient.
func (s *TwilioSender) ResolveReply(to, reply string) (Button, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return Button{}, false
	}
	s.mu.Lock()
	opts := s.lastOptions[to]
	s.mu.Unlock()
	if n < 1 || n > len(opts) {
		return Button{}, false
	}
	return opts[n-1], true
}
