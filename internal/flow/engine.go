package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/optichat/optichat/internal/messaging"
	"github.com/optichat/optichat/internal/metrics"
	"github.com/optichat/optichat/internal/models"
	"github.com/optichat/optichat/internal/store"
)

// State machine constants.
const (
	// CloseCommand ends an active flow or human handoff. Matched on the
	// normalized, punctuation-stripped message.
	CloseCommand = "cerrar flujo"
	// InactivityTimeout closes a stale mid-flow cursor.
	InactivityTimeout = 5 * time.Minute

	// PayloadFlowPrefix routes a button press straight to a node.
	PayloadFlowPrefix = "FLOW:"
	// PayloadMainMenu re-executes the graph's start node.
	PayloadMainMenu = "MENU_PRINCIPAL"
	// PayloadPersonaPrefix answers a fixed persona intent (welcome quick links).
	PayloadPersonaPrefix = "PERSONA:"
)

// User-facing fixed messages.
const (
	MsgStepUnavailable = "⚠️ Flujo no disponible en este paso."
	MsgPickOption      = "Por favor, elige una opción del menú."
	MsgAdvisorDefault  = "Te estamos transfiriendo con una asesora humana. Un momento por favor."
	MsgChatClosed      = "Listo ✅ Cerramos este chat y el asistente automático queda activo de nuevo."
	MainMenuButton     = "🔙 Menú principal"
)

// FlowSource yields the active flow definition per bot.
type FlowSource interface {
	ActiveDefinition(botID int64) (*models.FlowDefinition, error)
}

// Dispatcher is what the executor needs from the messaging layer. Every
// method logs its own attempt; errors returned here are informational for
// the executor, which treats node sends as best effort.
type Dispatcher interface {
	SendText(ctx context.Context, bot *models.Bot, to, text string) error
	SendButtons(ctx context.Context, bot *models.Bot, to, body string, buttons []messaging.Button) error
	SendAsset(ctx context.Context, bot *models.Bot, to string, asset models.Asset) error
}

// Executor is the top-level per-event orchestrator: it owns the conversation
// state transitions and ties together the flow graph, trigger matcher,
// handoff window and answer chain.
//
// Events are serialized per (bot, user): a second event for the same user
// waits for the first to finish and observes its state, including handoff
// and inactivity expiries.
type Executor struct {
	store store.Store
	flows FlowSource
	disp  Dispatcher
	ai    AIClient
	chain *AnswerChain

	mu    sync.Mutex
	users map[string]*sync.Mutex

	now func() time.Time
}

// NewExecutor creates a flow executor. ai may be nil; the answer chain then
// runs deterministic-only.
func NewExecutor(st store.Store, flows FlowSource, disp Dispatcher, ai AIClient) *Executor {
	return &Executor{
		store: st,
		flows: flows,
		disp:  disp,
		ai:    ai,
		chain: &AnswerChain{AI: ai},
		users: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (e *Executor) lockUser(botID int64, waID string) func() {
	key := strconv.FormatInt(botID, 10) + "|" + waID
	e.mu.Lock()
	m, ok := e.users[key]
	if !ok {
		m = &sync.Mutex{}
		e.users[key] = m
	}
	e.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (e *Executor) saveUser(u *models.WaUser) {
	if err := e.store.SaveWaUser(*u); err != nil {
		slog.Error("Executor failed to save conversation state", "error", err, "wa_id", u.WaID, "bot_id", u.BotID)
	}
}

// sendText is a best-effort text send: failures are logged, never propagated.
func (e *Executor) sendText(ctx context.Context, bot *models.Bot, to, text string) {
	if err := e.disp.SendText(ctx, bot, to, text); err != nil {
		slog.Error("Executor text send failed", "error", err, "to", to)
	}
}

func isCloseCommand(text string) bool {
	return StripPunctuation(Normalize(text)) == CloseCommand
}

// ProcessEvent runs the state machine for one normalized inbound event. It
// returns an error only for invalid input or state-store failures; provider
// send failures degrade to best effort and never bubble up to the webhook.
func (e *Executor) ProcessEvent(ctx context.Context, bot *models.Bot, ev models.InboundEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid inbound event: %w", err)
	}
	unlock := e.lockUser(bot.ID, ev.WaID)
	defer unlock()

	now := e.now()
	metrics.InboundEvents.WithLabelValues(string(ev.Kind)).Inc()

	user, err := e.store.GetWaUser(bot.ID, ev.WaID)
	if err != nil {
		return fmt.Errorf("failed to load conversation state: %w", err)
	}
	if user == nil {
		user = &models.WaUser{BotID: bot.ID, WaID: ev.WaID}
	}
	if ev.Name != "" && user.Name != ev.Name {
		user.Name = ev.Name
	}
	prevInAt := user.LastInAt
	user.LastMessageAt = &now
	user.LastInAt = &now

	def, err := e.flows.ActiveDefinition(bot.ID)
	if err != nil {
		slog.Error("Executor failed to load flow definition", "error", err, "bot_id", bot.ID)
		def = models.EmptyFlowDefinition()
	}

	// Explicit close: ends flow and handoff with exactly one confirmation.
	if ev.Kind == models.EventText && isCloseCommand(ev.Text) && (user.FlowNode != "" || user.HumanRequested) {
		wasHuman := user.HumanRequested
		user.FlowNode = ""
		user.HumanRequested = false
		user.HumanExpiresAt = nil
		e.saveUser(user)
		if wasHuman {
			metrics.HumanHandoffs.WithLabelValues("closed_command").Inc()
		}
		e.sendText(ctx, bot, ev.WaID, MsgChatClosed)
		return nil
	}

	// Open handoff window: suppress automation, slide the expiry.
	if user.HumanRequested {
		if user.HumanActive(now) {
			tmin := user.HumanTimeoutMin
			if tmin < 1 {
				tmin = models.DefaultHumanTimeoutMin
			}
			exp := now.Add(time.Duration(tmin) * time.Minute)
			user.HumanExpiresAt = &exp
			e.saveUser(user)
			return nil
		}
		user.HumanRequested = false
		user.HumanExpiresAt = nil
		metrics.HumanHandoffs.WithLabelValues("closed_timeout").Inc()
	}

	// Structured payloads bypass trigger matching entirely.
	if pid := strings.TrimSpace(ev.PayloadID); pid != "" {
		upper := strings.ToUpper(pid)
		switch {
		case strings.HasPrefix(upper, PayloadFlowPrefix):
			return e.executeNode(ctx, bot, def, user, now, pid[len(PayloadFlowPrefix):])
		case upper == PayloadMainMenu:
			if def.StartNode != "" {
				return e.executeNode(ctx, bot, def, user, now, def.StartNode)
			}
			e.saveUser(user)
			return nil
		case strings.HasPrefix(upper, PayloadPersonaPrefix):
			e.saveUser(user)
			intent := strings.ToLower(pid[len(PayloadPersonaPrefix):])
			if answer := AnswerIntent(intent, models.FlattenPersona(def.AIConfig)); answer != "" {
				e.sendText(ctx, bot, ev.WaID, answer)
			}
			return nil
		default:
			// Unrecognized payload: acknowledge with no reply.
			e.saveUser(user)
			return nil
		}
	}

	// Stale mid-flow cursor: close the menu before handling the text.
	if user.FlowNode != "" && prevInAt != nil && now.Sub(*prevInAt) > InactivityTimeout {
		user.FlowNode = ""
		e.sendText(ctx, bot, ev.WaID, e.closingNotice(def))
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		e.saveUser(user)
		return nil
	}

	if def.Enabled && len(def.Nodes) > 0 {
		// Mid-flow free text never derails the flow.
		if user.FlowNode != "" {
			e.saveUser(user)
			e.sendText(ctx, bot, ev.WaID, MsgPickOption)
			return nil
		}
		if target := MatchTriggers(def, text); target != "" {
			return e.executeNode(ctx, bot, def, user, now, target)
		}
		if target := MatchAITriggers(def, text); target != "" {
			return e.executeNode(ctx, bot, def, user, now, target)
		}
		if target := ClassifyTrigger(ctx, e.ai, def, text); target != "" {
			return e.executeNode(ctx, bot, def, user, now, target)
		}
	}

	// One-time welcome on a plain greeting, only with a configured profile.
	if def.AIConfig != nil && user.WelcomedAt == nil && IsGreeting(text) {
		user.WelcomedAt = &now
		e.saveUser(user)
		e.sendWelcome(ctx, bot, ev.WaID, def)
		return nil
	}

	if def.AIConfig != nil && def.AIConfig.Enabled {
		e.saveUser(user)
		reply := e.chain.Answer(ctx, def.AIConfig, text)
		e.sendText(ctx, bot, ev.WaID, reply)
		return nil
	}

	// Nothing applies: silent acknowledgment.
	e.saveUser(user)
	return nil
}

// executeNode runs one node and any tail chain it redirects into. A visited
// set bounds the recursion so a cyclic graph aborts instead of looping.
func (e *Executor) executeNode(ctx context.Context, bot *models.Bot, def *models.FlowDefinition, user *models.WaUser, now time.Time, nodeID string) error {
	visited := make(map[string]bool)
	id := strings.TrimSpace(nodeID)
	for {
		if visited[id] {
			e.saveUser(user)
			return fmt.Errorf("flow cycle detected at node %q", id)
		}
		visited[id] = true

		node, ok := def.Lookup(id)
		if !ok {
			e.saveUser(user)
			e.sendText(ctx, bot, user.WaID, MsgStepUnavailable)
			return nil
		}

		// Persist the cursor before sending so a restart resumes here.
		user.FlowNode = id
		e.saveUser(user)

		ntype := node.EffectiveType()
		if ntype == models.NodeAdvisor {
			e.executeAdvisor(ctx, bot, user, now, node)
			return nil
		}
		if (ntype == models.NodeStart || ntype == models.NodeTrigger) && node.Next != "" {
			// Pure redirect, nothing to send.
			id = node.Next
			continue
		}

		// Assets first, best effort: one failure never blocks the rest.
		assets := node.Assets
		if len(assets) > models.MaxAssetsPerNode {
			assets = assets[:models.MaxAssetsPerNode]
		}
		for _, a := range assets {
			if a.URL == "" {
				continue
			}
			if err := e.disp.SendAsset(ctx, bot, user.WaID, a); err != nil {
				slog.Error("Executor asset send failed", "error", err, "node", id, "url", a.URL)
			}
		}

		if buttons := buildButtons(node); len(buttons) > 0 {
			body := node.Text
			if body == "" {
				body = " "
			}
			if err := e.disp.SendButtons(ctx, bot, user.WaID, body, buttons); err != nil {
				slog.Error("Executor button send failed", "error", err, "node", id)
			}
			return nil
		}

		if node.Text != "" {
			e.sendText(ctx, bot, user.WaID, node.Text)
		}
		if ntype == models.NodeAction && node.Next != "" {
			id = node.Next
			continue
		}

		// Terminal node: the flow is done.
		user.FlowNode = ""
		e.saveUser(user)
		return nil
	}
}

// executeAdvisor flips the user into human-handoff mode. This is the sole
// entry point into the handoff window.
func (e *Executor) executeAdvisor(ctx context.Context, bot *models.Bot, user *models.WaUser, now time.Time, node models.Node) {
	lines := []string{MsgAdvisorDefault}
	if node.Text != "" {
		lines = []string{node.Text}
	}
	for _, l := range [][2]string{{"Web", "web"}, {"Facebook", "fb"}, {"Instagram", "ig"}, {"TikTok", "tiktok"}} {
		ent, ok := node.Links[l[1]]
		if ok && ent.Enabled && strings.TrimSpace(ent.URL) != "" {
			lines = append(lines, l[0]+": "+ent.URL)
		}
	}
	if digits := phoneDigits(node.Phone); digits != "" {
		lines = append(lines, "\nChatear: https://wa.me/"+digits)
	}

	tmin := node.TimeoutMin
	if tmin < 1 {
		tmin = models.DefaultHumanTimeoutMin
	}
	exp := now.Add(time.Duration(tmin) * time.Minute)
	user.HumanRequested = true
	user.HumanTimeoutMin = tmin
	user.HumanExpiresAt = &exp
	e.saveUser(user)
	metrics.HumanHandoffs.WithLabelValues("requested").Inc()

	buttons := []messaging.Button{{ID: PayloadMainMenu, Title: MainMenuButton}}
	if err := e.disp.SendButtons(ctx, bot, user.WaID, strings.Join(lines, "\n"), buttons); err != nil {
		slog.Error("Executor advisor send failed", "error", err, "to", user.WaID)
	}
}

func phoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func buildButtons(node models.Node) []messaging.Button {
	raw := node.Buttons
	if len(raw) > models.MaxButtonsPerMessage {
		raw = raw[:models.MaxButtonsPerMessage]
	}
	var out []messaging.Button
	for _, b := range raw {
		payload := b.Payload()
		if payload == "" {
			continue
		}
		title := b.Title
		if title == "" {
			title = "Opción"
		}
		out = append(out, messaging.Button{ID: payload, Title: title})
	}
	return out
}

// closingNotice is sent when a mid-flow conversation goes quiet. Social
// links are appended when the profile has them.
func (e *Executor) closingNotice(def *models.FlowDefinition) string {
	lines := []string{"Cerramos el menú por inactividad. Escríbenos cuando quieras 👋"}
	p := models.FlattenPersona(def.AIConfig)
	if p.Instagram != "" {
		lines = append(lines, "Instagram: "+p.Instagram)
	}
	if p.Facebook != "" {
		lines = append(lines, "Facebook: "+p.Facebook)
	}
	return strings.Join(lines, "\n")
}

// sendWelcome greets a first-time user with quick links for whatever the
// profile actually has data for.
func (e *Executor) sendWelcome(ctx context.Context, bot *models.Bot, to string, def *models.FlowDefinition) {
	p := models.FlattenPersona(def.AIConfig)
	brand := p.Brand
	if brand == "" {
		brand = p.BusinessName
	}
	greeting := "¡Hola! 👋 ¿En qué te puedo ayudar?"
	if p.AgentName != "" && brand != "" {
		greeting = fmt.Sprintf("¡Hola! 👋 Soy %s, de %s. ¿En qué te puedo ayudar?", p.AgentName, brand)
	} else if brand != "" {
		greeting = fmt.Sprintf("¡Hola! 👋 Bienvenida a %s. ¿En qué te puedo ayudar?", brand)
	}

	var buttons []messaging.Button
	if p.CatalogURL != "" || p.Website != "" {
		buttons = append(buttons, messaging.Button{ID: PayloadPersonaPrefix + IntentCatalog, Title: "🛍️ Ver catálogo"})
	}
	if p.HasAnyPayment() {
		buttons = append(buttons, messaging.Button{ID: PayloadPersonaPrefix + IntentPayments, Title: "💳 Métodos de pago"})
	}
	if p.HasAnyShipping() {
		buttons = append(buttons, messaging.Button{ID: PayloadPersonaPrefix + IntentShipping, Title: "📦 Envíos"})
	}

	if len(buttons) == 0 {
		e.sendText(ctx, bot, to, greeting)
		return
	}
	if err := e.disp.SendButtons(ctx, bot, to, greeting, buttons); err != nil {
		slog.Error("Executor welcome send failed", "error", err, "to", to)
	}
}
