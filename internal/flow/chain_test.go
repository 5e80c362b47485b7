package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/optichat/optichat/internal/genai"
	"github.com/optichat/optichat/internal/models"
)

// fakeAI scripts the gateway: completions are popped in order, classification
// is fixed.
type fakeAI struct {
	completions   []string
	label         string
	completeCalls int
	classifyCalls int
	lastRequest   genai.Request
}

func (f *fakeAI) Complete(ctx context.Context, req genai.Request) string {
	f.completeCalls++
	f.lastRequest = req
	if len(f.completions) == 0 {
		return ""
	}
	out := f.completions[0]
	f.completions = f.completions[1:]
	return out
}

func (f *fakeAI) Classify(ctx context.Context, model, instructions, input string, candidates []string) string {
	f.classifyCalls++
	return f.label
}

func yapeConfig() *models.AIConfig {
	return &models.AIConfig{
		Enabled:  true,
		Identity: &models.IdentityConfig{Brand: "Tienda Sol", AgentName: "Luna"},
		Payments: &models.PaymentsConfig{YapeNumber: "999888777", YapeHolder: "Sol SAC"},
		Sales:    &models.SalesConfig{OrderFields: "producto y distrito"},
	}
}

func TestAnswerDeterministicSkipsAI(t *testing.T) {
	ai := &fakeAI{completions: []string{"should not be used"}}
	chain := &AnswerChain{AI: ai}

	got := chain.Answer(context.Background(), yapeConfig(), "¿tienen yape?")
	if !strings.Contains(got, "999888777") || !strings.Contains(got, "Sol SAC") {
		t.Errorf("Answer() = %q, want the yape data", got)
	}
	if ai.completeCalls != 0 || ai.classifyCalls != 0 {
		t.Errorf("AI consulted %d+%d times for a deterministic answer, want 0", ai.completeCalls, ai.classifyCalls)
	}
}

func TestAnswerGenerative(t *testing.T) {
	ai := &fakeAI{completions: []string{"Claro, tenemos varios modelos lindos 😊"}}
	chain := &AnswerChain{AI: ai}

	got := chain.Answer(context.Background(), yapeConfig(), "qué me recomiendas para un regalo")
	if got != "Claro, tenemos varios modelos lindos 😊" {
		t.Errorf("Answer() = %q", got)
	}
	if ai.completeCalls != 1 {
		t.Errorf("complete calls = %d, want 1", ai.completeCalls)
	}
	if !strings.Contains(ai.lastRequest.System, "Tienda Sol") {
		t.Error("system prompt missing brand")
	}
}

func TestAnswerLabelingRecovery(t *testing.T) {
	// Generative layer returns nothing, classification maps the text to the
	// yape intent, and the naturalizer keeps every fact.
	ai := &fakeAI{
		completions: []string{"", "¡Claro que sí! Yapéanos al 999888777 (Sol SAC) 💜"},
		label:       IntentYape,
	}
	chain := &AnswerChain{AI: ai}

	got := chain.Answer(context.Background(), yapeConfig(), "se puede pagar con la app morada?")
	if !strings.Contains(got, "999888777") {
		t.Errorf("Answer() = %q, want the yape number preserved", got)
	}
	if ai.classifyCalls != 1 {
		t.Errorf("classify calls = %d, want 1", ai.classifyCalls)
	}
}

func TestAnswerNaturalizeDropsFactsFallsBack(t *testing.T) {
	ai := &fakeAI{
		completions: []string{"", "puedes yapearnos cuando gustes"},
		label:       IntentYape,
	}
	chain := &AnswerChain{AI: ai}

	got := chain.Answer(context.Background(), yapeConfig(), "se puede pagar con la app morada?")
	if !strings.Contains(got, "999888777") {
		t.Errorf("rewrite without the number must yield the deterministic text, got %q", got)
	}
}

func TestAnswerFallbackWithOrderHint(t *testing.T) {
	ai := &fakeAI{label: IntentNone}
	chain := &AnswerChain{AI: ai}

	got := chain.Answer(context.Background(), yapeConfig(), "asdfgh")
	if !strings.Contains(got, FallbackMessage) {
		t.Errorf("Answer() = %q, want the fallback", got)
	}
	if !strings.Contains(got, "producto y distrito") {
		t.Errorf("Answer() = %q, want the order-fields hint", got)
	}
}

func TestAnswerNilAIDegrades(t *testing.T) {
	chain := &AnswerChain{}

	if got := chain.Answer(context.Background(), yapeConfig(), "¿tienen yape?"); !strings.Contains(got, "999888777") {
		t.Errorf("deterministic layer must work without AI, got %q", got)
	}
	got := chain.Answer(context.Background(), yapeConfig(), "asdfgh")
	if !strings.Contains(got, FallbackMessage) {
		t.Errorf("Answer() = %q, want the fallback without AI", got)
	}
}

func TestAnswerNilConfig(t *testing.T) {
	chain := &AnswerChain{}
	if got := chain.Answer(context.Background(), nil, "hola qué tal todo"); got == "" {
		t.Error("Answer() must never return empty")
	}
}

func TestPreservesFacts(t *testing.T) {
	cases := []struct {
		original, rewritten string
		want                bool
	}{
		{"Yape: 999888777", "yapea al 999888777 porfa", true},
		{"Yape: 999888777", "yapea al 999 888 777 porfa", true},
		{"Yape: 999888777", "yapea cuando quieras", false},
		{"Catálogo: https://tienda.pe/c", "mira https://tienda.pe/c 😊", true},
		{"Catálogo: https://tienda.pe/c", "mira nuestro catálogo", false},
		{"sin datos duros", "reformulado libremente", true},
	}
	for _, tc := range cases {
		if got := preservesFacts(tc.original, tc.rewritten); got != tc.want {
			t.Errorf("preservesFacts(%q, %q) = %v, want %v", tc.original, tc.rewritten, got, tc.want)
		}
	}
}

func TestBuildSystemPromptOmitsEmptySections(t *testing.T) {
	prompt := BuildSystemPrompt(models.Persona{Brand: "Tienda Sol", YapeNumber: "999888777"})
	if !strings.Contains(prompt, "Pagos:") || !strings.Contains(prompt, "999888777") {
		t.Errorf("prompt missing payments section:\n%s", prompt)
	}
	for _, absent := range []string{"Horario:", "Dirección:", "Envíos:", "Redes:"} {
		if strings.Contains(prompt, absent) {
			t.Errorf("prompt contains empty section %q:\n%s", absent, prompt)
		}
	}
	if !strings.Contains(prompt, "Nunca inventes datos") {
		t.Error("prompt missing the no-fabrication instruction")
	}
}

func TestStripLeakedHeaders(t *testing.T) {
	in := "# Pagos\nYapea al 999888777\n[CONTACTO]\n"
	got := stripLeakedHeaders(in)
	if strings.Contains(got, "#") || strings.Contains(got, "[CONTACTO]") {
		t.Errorf("stripLeakedHeaders() = %q", got)
	}
	if !strings.Contains(got, "999888777") {
		t.Errorf("content lost: %q", got)
	}
}
