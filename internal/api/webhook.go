package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/optichat/optichat/internal/models"
)

// metaWebhookBody mirrors the slice of the WhatsApp Cloud webhook payload the
// service actually reads. Everything else rides along in the raw body for
// the message log.
type metaWebhookBody struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []metaMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type metaMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		ButtonReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
	Button struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
}

func (s *Server) lookupBot(c *gin.Context) *models.Bot {
	bot, err := s.store.GetBotByUUID(c.Param("uuid"))
	if err != nil {
		slog.Error("Failed to look up bot", "error", err, "uuid", c.Param("uuid"))
		c.JSON(http.StatusInternalServerError, models.Error("internal error"))
		return nil
	}
	if bot == nil || !bot.IsActive {
		c.JSON(http.StatusNotFound, models.Error("bot not found"))
		return nil
	}
	return bot
}

// handleWebhookVerify answers the Cloud API subscription handshake.
func (s *Server) handleWebhookVerify(c *gin.Context) {
	bot := s.lookupBot(c)
	if bot == nil {
		return
	}
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")
	if mode == "subscribe" && token != "" && token == bot.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "verification token mismatch")
}

// normalizeMetaEvent extracts the first message of a Cloud webhook body into
// the normalized inbound shape. Returns false when the body carries no
// message (status updates and the like).
func normalizeMetaEvent(raw []byte) (models.InboundEvent, bool) {
	var body metaWebhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		slog.Warn("Malformed webhook body", "error", err)
		return models.InboundEvent{}, false
	}
	if len(body.Entry) == 0 || len(body.Entry[0].Changes) == 0 {
		return models.InboundEvent{}, false
	}
	value := body.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return models.InboundEvent{}, false
	}
	msg := value.Messages[0]

	ev := models.InboundEvent{
		WaID:      msg.From,
		Timestamp: time.Now().UTC(),
	}
	if len(value.Contacts) > 0 {
		ev.Name = value.Contacts[0].Profile.Name
	}
	switch msg.Type {
	case "text":
		ev.Kind = models.EventText
		ev.Text = msg.Text.Body
	case "interactive":
		ev.Kind = models.EventInteractive
		if msg.Interactive.ButtonReply.ID != "" {
			ev.PayloadID = msg.Interactive.ButtonReply.ID
			ev.Text = msg.Interactive.ButtonReply.Title
		} else if msg.Interactive.ListReply.ID != "" {
			ev.PayloadID = msg.Interactive.ListReply.ID
			ev.Text = msg.Interactive.ListReply.Title
		}
	case "button":
		ev.Kind = models.EventButton
		if msg.Button.Payload != "" {
			ev.PayloadID = msg.Button.Payload
		} else {
			ev.PayloadID = msg.Button.Text
		}
		ev.Text = msg.Button.Text
	default:
		// Media and unsupported types are logged but produce no event.
		return models.InboundEvent{}, false
	}
	return ev, true
}

// handleWebhook ingests one Cloud API delivery. It always answers 200 so the
// provider never retry-storms the endpoint; failures are logged instead.
func (s *Server) handleWebhook(c *gin.Context) {
	bot := s.lookupBot(c)
	if bot == nil {
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Error("Failed to read webhook body", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ev, ok := normalizeMetaEvent(raw)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	s.disp.LogInbound(bot, ev, raw)

	if err := s.executor.ProcessEvent(c.Request.Context(), bot, ev); err != nil {
		slog.Error("Event processing failed", "error", err, "bot_id", bot.ID, "wa_id", ev.WaID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleTwilioWebhook ingests a Twilio WhatsApp inbound form post. Numeric
// replies map back to the options of the last button message.
func (s *Server) handleTwilioWebhook(c *gin.Context) {
	bot := s.lookupBot(c)
	if bot == nil {
		return
	}
	from := strings.TrimPrefix(c.PostForm("From"), "whatsapp:")
	from = strings.TrimPrefix(from, "+")
	body := c.PostForm("Body")
	if from == "" {
		c.String(http.StatusOK, "")
		return
	}

	ev := models.InboundEvent{
		WaID:      from,
		Kind:      models.EventText,
		Text:      body,
		Name:      c.PostForm("ProfileName"),
		Timestamp: time.Now().UTC(),
	}
	if btn, ok := s.twilio.ResolveReply(from, body); ok {
		ev.Kind = models.EventInteractive
		ev.PayloadID = btn.ID
		ev.Text = btn.Title
	}

	raw, _ := json.Marshal(gin.H{"from": c.PostForm("From"), "body": body})
	s.disp.LogInbound(bot, ev, raw)

	if err := s.executor.ProcessEvent(c.Request.Context(), bot, ev); err != nil {
		slog.Error("Event processing failed", "error", err, "bot_id", bot.ID, "wa_id", ev.WaID)
	}
	c.String(http.StatusOK, "")
}
