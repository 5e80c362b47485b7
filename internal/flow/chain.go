package flow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/optichat/optichat/internal/genai"
	"github.com/optichat/optichat/internal/models"
)

// Completer is the generative side of the AI gateway.
type Completer interface {
	Complete(ctx context.Context, req genai.Request) string
}

// Classifier is the closed-label side of the AI gateway.
type Classifier interface {
	Classify(ctx context.Context, model, instructions, input string, candidates []string) string
}

// AIClient is what the answer chain needs from the gateway. A nil client
// degrades the chain to its deterministic and apologetic layers.
type AIClient interface {
	Completer
	Classifier
}

// FallbackMessage is the apologetic last resort of the answer chain.
const FallbackMessage = "Lo siento, no te entendí bien 🙏 ¿Puedes decirlo de otra forma?"

// factualTokenRegex extracts the tokens a naturalized answer must preserve:
// URLs and digit runs (phone numbers, amounts, account numbers).
var factualTokenRegex = regexp.MustCompile(`https?://\S+|\d[\d\s.\-]{2,}\d|\d+`)

// sectionHeaderRegex matches internal prompt section headers that a model
// sometimes leaks back into its answer.
var sectionHeaderRegex = regexp.MustCompile(`(?m)^\s*(#+\s.*|\[[A-ZÁÉÍÓÚ ]+\]\s*)$`)

// AnswerChain resolves free text that matched no trigger: deterministic
// persona lookup, generative AI, AI-assisted labeling, apologetic fallback.
type AnswerChain struct {
	AI AIClient
}

// BuildSystemPrompt renders the persona into the generative system prompt.
// Sections with no data are omitted entirely.
func BuildSystemPrompt(p models.Persona) string {
	brand := p.Brand
	if brand == "" {
		brand = p.BusinessName
	}
	agent := p.AgentName
	if agent == "" {
		agent = "la asistente virtual"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Eres %q, asistente de WhatsApp de %s. Responde en español latino, amable y concisa (máximo 3 oraciones). Nunca inventes datos: si no conoces un dato, di que no está disponible.\n", agent, brand)
	if p.Description != "" {
		fmt.Fprintf(&b, "Sobre el negocio: %s\n", p.Description)
	}
	if p.Tone != "" {
		fmt.Fprintf(&b, "Tono: %s\n", p.Tone)
	}
	if p.SalesPitch != "" {
		fmt.Fprintf(&b, "Guía de ventas: %s\n", p.SalesPitch)
	}
	writeFacts(&b, "Contacto", [][2]string{
		{"teléfono", p.Phone}, {"whatsapp", p.WhatsApp}, {"correo", p.Email},
		{"web", p.Website}, {"catálogo", p.CatalogURL},
	})
	writeFacts(&b, "Redes", [][2]string{
		{"instagram", p.Instagram}, {"facebook", p.Facebook},
		{"tiktok", p.TikTok}, {"youtube", p.YouTube},
	})
	writeFacts(&b, "Horario", [][2]string{
		{"lunes a viernes", p.HoursWeekdays}, {"sábado", p.HoursSaturday},
		{"domingo", p.HoursSunday}, {"feriados", p.HoursHolidays}, {"notas", p.HoursNotes},
	})
	writeFacts(&b, "Dirección", [][2]string{
		{"dirección", joinNonEmpty(", ", p.AddressLine, p.AddressDistrict, p.AddressCity)},
		{"mapa", p.AddressMapURL},
	})
	payments := [][2]string{
		{"yape", joinNonEmpty(" ", p.YapeNumber, p.YapeHolder)},
		{"plin", joinNonEmpty(" ", p.PlinNumber, p.PlinHolder)},
		{"transferencia", joinNonEmpty(" ", p.TransferBank, p.TransferAcct, p.TransferCCI)},
		{"notas", p.PaymentNotes},
	}
	if p.CardEnabled {
		payments = append(payments, [2]string{"tarjeta", joinNonEmpty(" ", "sí", p.CardMethods)})
	}
	if p.CashOnDelivery {
		payments = append(payments, [2]string{"contra entrega", "sí"})
	}
	writeFacts(&b, "Pagos", payments)
	writeFacts(&b, "Envíos", [][2]string{
		{"local", joinNonEmpty(" ", p.ShippingLocalCourier, p.ShippingLocalCost)},
		{"nacional", joinNonEmpty(" ", p.ShippingNationalCarrier, p.ShippingNationalCost)},
		{"tiempo", p.ShippingDeliveryTimes}, {"gratis desde", p.ShippingFreeThreshold},
		{"recojo", p.ShippingPickup}, {"notas", p.ShippingNotes},
	})
	writeFacts(&b, "Políticas", [][2]string{
		{"cambios", p.ExchangesPolicy}, {"devoluciones", p.ReturnsPolicy},
		{"garantía", p.WarrantyPolicy}, {"ruc", p.TaxID}, {"comprobantes", p.InvoiceTypes},
	})
	return b.String()
}

func writeFacts(b *strings.Builder, section string, facts [][2]string) {
	var kept []string
	for _, f := range facts {
		if strings.TrimSpace(f[1]) != "" {
			kept = append(kept, f[0]+": "+f[1])
		}
	}
	if len(kept) > 0 {
		fmt.Fprintf(b, "%s: %s\n", section, strings.Join(kept, "; "))
	}
}

// stripLeakedHeaders removes internal section headers a model may echo back.
func stripLeakedHeaders(s string) string {
	return strings.TrimSpace(sectionHeaderRegex.ReplaceAllString(s, ""))
}

// preservesFacts checks that every factual token of the original answer
// (URLs, numbers) survived a rewrite, with whitespace ignored inside digit
// runs.
func preservesFacts(original, rewritten string) bool {
	squash := func(s string) string {
		return strings.Map(func(r rune) rune {
			if r == ' ' || r == '-' || r == '.' {
				return -1
			}
			return r
		}, s)
	}
	flat := squash(rewritten)
	for _, tok := range factualTokenRegex.FindAllString(original, -1) {
		if !strings.Contains(flat, squash(tok)) {
			return false
		}
	}
	return true
}

// naturalize rewrites a deterministic answer in the persona's voice. When
// the rewrite drops any factual token or the AI is unavailable, the
// deterministic text is returned unchanged.
func (c *AnswerChain) naturalize(ctx context.Context, model, answer string) string {
	if c.AI == nil {
		return answer
	}
	out := c.AI.Complete(ctx, genai.Request{
		Model:       model,
		System:      "Reformula el mensaje para WhatsApp con un tono cálido y natural, en español latino. Conserva todos los números, URLs y nombres EXACTAMENTE igual. No agregues datos nuevos.",
		User:        answer,
		Temperature: 0.4,
		MaxTokens:   300,
	})
	out = stripLeakedHeaders(out)
	if out == "" || !preservesFacts(answer, out) {
		return answer
	}
	return out
}

// Answer runs the strategy chain for free text that matched no trigger. It
// always returns a non-empty reply.
//
// A confidently detected intent answers deterministically before any AI
// call, so factual questions (payments, shipping, contact) cost zero tokens
// and can never be answered with fabricated data. The generative layer only
// handles text the intent matcher could not place.
func (c *AnswerChain) Answer(ctx context.Context, cfg *models.AIConfig, input string) string {
	persona := models.FlattenPersona(cfg)
	model := ""
	if cfg != nil {
		model = cfg.Model
	}

	if det := AnswerFromPersona(input, persona); det != "" {
		return det
	}

	if c.AI != nil {
		gen := stripLeakedHeaders(c.AI.Complete(ctx, genai.Request{
			Model:       model,
			System:      BuildSystemPrompt(persona),
			User:        input,
			Temperature: 0.5,
			MaxTokens:   300,
		}))
		if gen != "" {
			return gen
		}

		if label := c.classifyIntent(ctx, model, input); label != "" {
			if canonical, ok := IntentLabels[label]; ok {
				if det := AnswerFromPersona(canonical, persona); det != "" {
					return c.naturalize(ctx, model, det)
				}
			}
		}
	}

	fallback := FallbackMessage
	if persona.OrderFields != "" {
		fallback += "\nSi quieres hacer un pedido indícanos: " + persona.OrderFields
	}
	return fallback
}

func (c *AnswerChain) classifyIntent(ctx context.Context, model, input string) string {
	labels := make([]string, 0, len(IntentLabels)+1)
	for label := range IntentLabels {
		labels = append(labels, label)
	}
	labels = append(labels, IntentNone)
	var sb strings.Builder
	sb.WriteString("Clasifica el mensaje del cliente en una de estas categorías y responde solo con la categoría:\n")
	for label, phrase := range IntentLabels {
		fmt.Fprintf(&sb, "- %s (ej: %s)\n", label, phrase)
	}
	fmt.Fprintf(&sb, "- %s\n", IntentNone)
	label := c.AI.Classify(ctx, model, sb.String(), input, labels)
	if label == IntentNone {
		return ""
	}
	if label != "" {
		slog.Debug("AnswerChain classified intent", "label", label)
	}
	return label
}
