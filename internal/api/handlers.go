package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/optichat/optichat/internal/messaging"
	"github.com/optichat/optichat/internal/models"
)

// findUser looks a conversation up by wa_id across all bots.
func (s *Server) findUser(waID string) (*models.WaUser, *models.Bot, error) {
	bots, err := s.store.ListBots()
	if err != nil {
		return nil, nil, err
	}
	for i := range bots {
		u, err := s.store.GetWaUser(bots[i].ID, waID)
		if err != nil {
			return nil, nil, err
		}
		if u != nil {
			return u, &bots[i], nil
		}
	}
	return nil, nil, nil
}

// handleListConversations lists recent conversations across active bots.
// live=1 filters to open handoffs, live=0 to closed ones.
func (s *Server) handleListConversations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	var live *bool
	switch c.Query("live") {
	case "1":
		v := true
		live = &v
	case "0":
		v := false
		live = &v
	}
	bots, err := s.store.ListBots()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Error("failed to list bots"))
		return
	}
	botNames := make(map[int64]string, len(bots))
	var botIDs []int64
	for _, b := range bots {
		if !b.IsActive {
			continue
		}
		botIDs = append(botIDs, b.ID)
		botNames[b.ID] = b.Name
	}
	users, err := s.store.ListWaUsers(botIDs, live, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Error("failed to list conversations"))
		return
	}
	items := make([]gin.H, 0, len(users))
	for _, u := range users {
		items = append(items, gin.H{
			"wa_id":           u.WaID,
			"name":            u.Name,
			"human_requested": u.HumanRequested,
			"bot_id":          u.BotID,
			"bot_name":        botNames[u.BotID],
			"last_message_at": u.LastMessageAt,
		})
	}
	c.JSON(http.StatusOK, models.Success(gin.H{"items": items}))
}

// renderEntry extracts a display body and button options from a log entry so
// the live-chat viewer does not re-parse provider payloads.
func renderEntry(m models.MessageLog) gin.H {
	entry := gin.H{
		"direction":  m.Direction,
		"type":       m.MessageType,
		"status":     m.Status,
		"created_at": m.CreatedAt,
	}
	var payload struct {
		Request  json.RawMessage `json:"request"`
		Response json.RawMessage `json:"response"`
	}
	_ = json.Unmarshal(m.Payload, &payload)

	if m.Direction == models.DirectionOut {
		var req struct {
			Text struct {
				Body string `json:"body"`
			} `json:"text"`
			Interactive struct {
				Body struct {
					Text string `json:"text"`
				} `json:"body"`
				Action struct {
					Buttons []struct {
						Reply struct {
							Title string `json:"title"`
						} `json:"reply"`
					} `json:"buttons"`
				} `json:"action"`
			} `json:"interactive"`
			Image struct {
				Caption string `json:"caption"`
			} `json:"image"`
			Document struct {
				Filename string `json:"filename"`
			} `json:"document"`
		}
		_ = json.Unmarshal(payload.Request, &req)
		switch m.MessageType {
		case "text":
			entry["body"] = req.Text.Body
		case "interactive":
			entry["body"] = req.Interactive.Body.Text
			var options []string
			for _, b := range req.Interactive.Action.Buttons {
				if b.Reply.Title != "" {
					options = append(options, b.Reply.Title)
				}
			}
			if len(options) > 0 {
				entry["options"] = options
			}
		case "image":
			entry["body"] = "[imagen]"
		case "document":
			entry["body"] = "[documento]"
		}
		return entry
	}

	if ev, ok := normalizeMetaEvent(payload.Request); ok {
		entry["body"] = ev.Text
	}
	return entry
}

// handleGetConversation returns the message history of one conversation,
// oldest first.
func (s *Server) handleGetConversation(c *gin.Context) {
	waID := c.Param("wa_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	user, bot, err := s.findUser(waID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Error("lookup failed"))
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, models.Error("conversation not found"))
		return
	}
	phoneNumberID := bot.PhoneNumberID
	msgs, err := s.store.GetConversation(bot.ID, waID, phoneNumberID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Error("failed to load conversation"))
		return
	}
	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, renderEntry(m))
	}
	c.JSON(http.StatusOK, models.Success(gin.H{
		"wa_id":           waID,
		"name":            user.Name,
		"human_requested": user.HumanRequested,
		"messages":        out,
	}))
}

// handlePanelSend is a human operator's live reply. Unlike node execution
// this is a hard send: provider failures surface to the caller.
func (s *Server) handlePanelSend(c *gin.Context) {
	waID := c.PostForm("wa_id")
	text := c.PostForm("text")
	if waID == "" || text == "" {
		c.JSON(http.StatusBadRequest, models.Error("wa_id and text are required"))
		return
	}
	user, bot, err := s.findUser(waID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Error("lookup failed"))
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, models.Error("conversation not found"))
		return
	}
	if !user.HumanRequested {
		c.JSON(http.StatusForbidden, models.Error("human chat is not active for this user"))
		return
	}
	if err := s.disp.SendText(c.Request.Context(), bot, waID, text); err != nil {
		slog.Error("Panel send failed", "error", err, "wa_id", waID)
		c.JSON(http.StatusBadGateway, models.Error("send failed: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.Success(gin.H{"sent": "text"}))
}

// handlePanelHuman toggles the human-handoff window from the panel.
// POST form: wa_id, on=1|0, timeout_min optional.
func (s *Server) handlePanelHuman(c *gin.Context) {
	waID := c.PostForm("wa_id")
	if waID == "" {
		c.JSON(http.StatusBadRequest, models.Error("wa_id is required"))
		return
	}
	user, _, err := s.findUser(waID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Error("lookup failed"))
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, models.Error("conversation not found"))
		return
	}
	if c.PostForm("on") == "1" {
		tmin, _ := strconv.Atoi(c.DefaultPostForm("timeout_min", "15"))
		if tmin < 1 {
			tmin = 1
		}
		exp := time.Now().UTC().Add(time.Duration(tmin) * time.Minute)
		user.HumanRequested = true
		user.HumanTimeoutMin = tmin
		user.HumanExpiresAt = &exp
	} else {
		user.HumanRequested = false
		user.HumanExpiresAt = nil
	}
	if err := s.store.SaveWaUser(*user); err != nil {
		c.JSON(http.StatusInternalServerError, models.Error("failed to save state"))
		return
	}
	c.JSON(http.StatusOK, models.Success(gin.H{"human_requested": user.HumanRequested}))
}

// flowSaveRequest is the flow persistence payload: the definition replaces
// the stored one wholesale.
type flowSaveRequest struct {
	FlowID     int64           `json:"flow_id"`
	BotID      int64           `json:"bot_id"`
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
	IsActive   *bool           `json:"is_active"`
}

// handleFlowSave stores a flow definition, reports dangling node references
// and invalidates the bot's cached definition.
func (s *Server) handleFlowSave(c *gin.Context) {
	var req flowSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if len(req.Definition) == 0 {
		c.JSON(http.StatusBadRequest, models.Error("definition is required"))
		return
	}
	def, err := models.ParseFlowDefinition(req.Definition)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.Error("invalid definition: "+err.Error()))
		return
	}

	f := &models.Flow{ID: req.FlowID, BotID: req.BotID, Name: req.Name, Definition: req.Definition, IsActive: true}
	if req.FlowID != 0 {
		existing, err := s.store.GetFlow(req.FlowID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.Error("failed to load flow"))
			return
		}
		if existing == nil {
			c.JSON(http.StatusNotFound, models.Error("flow not found"))
			return
		}
		existing.Definition = req.Definition
		if req.Name != "" {
			existing.Name = req.Name
		}
		if req.IsActive != nil {
			existing.IsActive = *req.IsActive
		}
		f = existing
	} else if req.IsActive != nil {
		f.IsActive = *req.IsActive
	}
	if f.BotID == 0 {
		c.JSON(http.StatusBadRequest, models.Error("bot_id is required"))
		return
	}

	if err := s.store.SaveFlow(f); err != nil {
		c.JSON(http.StatusInternalServerError, models.Error("failed to save flow"))
		return
	}
	s.flows.Invalidate(f.BotID)

	c.JSON(http.StatusOK, models.Success(gin.H{
		"id":       f.ID,
		"dangling": def.DanglingReferences(),
	}))
}

// handleBotValidate checks a bot's Cloud API credentials against the Graph
// API. Unavailable on the Twilio channel.
func (s *Server) handleBotValidate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.Error("invalid bot id"))
		return
	}
	bots, err := s.store.ListBots()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Error("failed to list bots"))
		return
	}
	var bot *models.Bot
	for i := range bots {
		if bots[i].ID == id {
			bot = &bots[i]
			break
		}
	}
	if bot == nil {
		c.JSON(http.StatusNotFound, models.Error("bot not found"))
		return
	}
	if s.cloud == nil {
		c.JSON(http.StatusConflict, models.Error("validation requires the cloud channel"))
		return
	}
	if err := bot.Validate(); err != nil {
		c.JSON(http.StatusOK, models.Success(gin.H{"ok": false, "error": err.Error()}))
		return
	}
	acct := messaging.Account{PhoneNumberID: bot.PhoneNumberID, AccessToken: bot.AccessToken}
	status, body, err := s.cloud.ValidateAccount(c.Request.Context(), acct)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.Error("validation request failed: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.Success(gin.H{
		"ok":          status >= 200 && status < 300,
		"status_code": status,
		"data":        json.RawMessage(body),
	}))
}
