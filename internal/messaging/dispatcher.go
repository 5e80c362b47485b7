// Package messaging: dispatcher tying senders to credentials and the log.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/optichat/optichat/internal/metrics"
	"github.com/optichat/optichat/internal/models"
	"github.com/optichat/optichat/internal/store"
)

// Dispatcher sends messages on behalf of a bot. It resolves which credentials
// to use, records every attempt in the message log (success and failure
// alike) and updates send counters. Failed log writes never fail a send.
type Dispatcher struct {
	sender   Sender
	store    store.Store
	fallback Account
}

// NewDispatcher creates a dispatcher. fallback is the environment-level
// account used when a bot carries no credentials of its own; it may be zero.
func NewDispatcher(sender Sender, st store.Store, fallback Account) *Dispatcher {
	return &Dispatcher{sender: sender, store: st, fallback: fallback}
}

// ResolveAccount picks the credentials for a send: the bot's own when
// present, otherwise the environment fallback.
func (d *Dispatcher) ResolveAccount(bot *models.Bot) (Account, error) {
	if bot != nil && bot.PhoneNumberID != "" && bot.AccessToken != "" {
		return Account{PhoneNumberID: bot.PhoneNumberID, AccessToken: bot.AccessToken}, nil
	}
	if !d.fallback.IsZero() {
		return d.fallback, nil
	}
	return Account{}, ErrNoCredentials
}

func (d *Dispatcher) logSend(bot *models.Bot, acct Account, to string, res Result, sendErr error) {
	payload, err := json.Marshal(map[string]json.RawMessage{
		"request":  emptyToNull(res.Request),
		"response": emptyToNull(res.Response),
	})
	if err != nil {
		payload = []byte("{}")
	}
	entry := models.MessageLog{
		BotID:       botID(bot),
		Direction:   models.DirectionOut,
		WaFrom:      acct.PhoneNumberID,
		WaTo:        to,
		MessageType: res.MessageType,
		Payload:     payload,
		Status:      "sent",
		CreatedAt:   time.Now().UTC(),
	}
	if sendErr != nil {
		entry.Status = "failed"
		entry.Error = sendErr.Error()
	}
	if err := d.store.LogMessage(entry); err != nil {
		slog.Error("Dispatcher failed to log outbound message", "error", err, "to", to)
	}
}

func botID(bot *models.Bot) int64 {
	if bot == nil {
		return 0
	}
	return bot.ID
}

func emptyToNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SendText sends a text message for the bot and logs the attempt.
func (d *Dispatcher) SendText(ctx context.Context, bot *models.Bot, to, text string) error {
	acct, err := d.ResolveAccount(bot)
	if err != nil {
		return err
	}
	res, err := d.sender.SendText(ctx, acct, to, text)
	metrics.OutboundSends.WithLabelValues("text", outcome(err)).Inc()
	d.logSend(bot, acct, to, res, err)
	return err
}

// SendButtons sends an interactive button message for the bot and logs it.
func (d *Dispatcher) SendButtons(ctx context.Context, bot *models.Bot, to, body string, buttons []Button) error {
	acct, err := d.ResolveAccount(bot)
	if err != nil {
		return err
	}
	res, err := d.sender.SendButtons(ctx, acct, to, body, buttons)
	metrics.OutboundSends.WithLabelValues("interactive", outcome(err)).Inc()
	d.logSend(bot, acct, to, res, err)
	return err
}

// SendImage sends an image for the bot and logs the attempt.
func (d *Dispatcher) SendImage(ctx context.Context, bot *models.Bot, to, link, caption string) error {
	acct, err := d.ResolveAccount(bot)
	if err != nil {
		return err
	}
	res, err := d.sender.SendImage(ctx, acct, to, link, caption)
	metrics.OutboundSends.WithLabelValues("image", outcome(err)).Inc()
	d.logSend(bot, acct, to, res, err)
	return err
}

// SendDocument sends a document for the bot and logs the attempt.
func (d *Dispatcher) SendDocument(ctx context.Context, bot *models.Bot, to, link, filename, caption string) error {
	acct, err := d.ResolveAccount(bot)
	if err != nil {
		return err
	}
	res, err := d.sender.SendDocument(ctx, acct, to, link, filename, caption)
	metrics.OutboundSends.WithLabelValues("document", outcome(err)).Inc()
	d.logSend(bot, acct, to, res, err)
	return err
}

// SendAsset sends one flow node asset, routing by asset type. Unknown asset
// types fall back to sending the URL as text so the content still reaches
// the user.
func (d *Dispatcher) SendAsset(ctx context.Context, bot *models.Bot, to string, asset models.Asset) error {
	switch asset.Type {
	case models.AssetImage:
		return d.SendImage(ctx, bot, to, asset.URL, "")
	case models.AssetDocument:
		return d.SendDocument(ctx, bot, to, asset.URL, asset.Name, "")
	default:
		return d.SendText(ctx, bot, to, asset.URL)
	}
}

// LogInbound records one inbound event in the message log.
func (d *Dispatcher) LogInbound(bot *models.Bot, ev models.InboundEvent, raw json.RawMessage) {
	payload, err := json.Marshal(map[string]json.RawMessage{
		"request":  emptyToNull(raw),
		"response": json.RawMessage("null"),
	})
	if err != nil {
		payload = []byte("{}")
	}
	msgType := string(ev.Kind)
	entry := models.MessageLog{
		BotID:       botID(bot),
		Direction:   models.DirectionIn,
		WaFrom:      ev.WaID,
		WaTo:        botPhoneNumberID(bot, d.fallback),
		MessageType: msgType,
		Payload:     payload,
		Status:      "received",
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.store.LogMessage(entry); err != nil {
		slog.Error("Dispatcher failed to log inbound message", "error", err, "wa_id", ev.WaID)
	}
}

func botPhoneNumberID(bot *models.Bot, fallback Account) string {
	if bot != nil && bot.PhoneNumberID != "" {
		return bot.PhoneNumberID
	}
	return fallback.PhoneNumberID
}

// IsHardFailure reports whether the send error should abort the current flow
// step. Credential errors and provider rejections are hard; everything else
// was already logged and may be treated as best effort by the caller.
func IsHardFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoCredentials) {
		return true
	}
	var se *SendError
	return errors.As(err, &se) && se.StatusCode >= 400
}
