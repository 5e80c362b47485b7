package flow

import "testing"

func TestRatioIdentical(t *testing.T) {
	if got := Ratio("hacen envios", "hacen envios"); got != 1 {
		t.Errorf("Ratio(identical) = %f, want 1", got)
	}
}

func TestRatioDisjoint(t *testing.T) {
	if got := Ratio("abc", "xyz"); got != 0 {
		t.Errorf("Ratio(disjoint) = %f, want 0", got)
	}
}

func TestRatioEmpty(t *testing.T) {
	if got := Ratio("", ""); got != 1 {
		t.Errorf("Ratio(empty, empty) = %f, want 1", got)
	}
	if got := Ratio("hola", ""); got != 0 {
		t.Errorf("Ratio(text, empty) = %f, want 0", got)
	}
}

func TestRatioSimilarPhrases(t *testing.T) {
	got := Ratio("hacen envios a lima", "hacen envios a provincia")
	if got < 0.72 {
		t.Errorf("Ratio(similar) = %f, want >= 0.72", got)
	}
	got = Ratio("quiero un gato", "horario de atencion")
	if got >= 0.72 {
		t.Errorf("Ratio(unrelated) = %f, want < 0.72", got)
	}
}

func TestSharedTokens(t *testing.T) {
	a := Tokens("quiero saber sobre envios a provincia")
	b := Tokens("¿hacen envios a provincia?")
	if got := sharedTokens(a, b, 3); got < 2 {
		t.Errorf("sharedTokens() = %d, want >= 2", got)
	}
	// Short tokens do not count.
	if got := sharedTokens(Tokens("a de el"), Tokens("a de el"), 3); got != 0 {
		t.Errorf("sharedTokens(short) = %d, want 0", got)
	}
	// Repeated tokens count once.
	if got := sharedTokens(Tokens("envios envios envios"), Tokens("envios envios"), 3); got != 1 {
		t.Errorf("sharedTokens(repeated) = %d, want 1", got)
	}
}
