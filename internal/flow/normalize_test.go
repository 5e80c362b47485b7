package flow

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Hola   MUNDO  ", "hola mundo"},
		{"¿Hacen ENVÍOS?", "¿hacen envios?"},
		{"Atención", "atencion"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStripPunctuation(t *testing.T) {
	if got := StripPunctuation("¿tienen yape?"); got != "tienen yape" {
		t.Errorf("StripPunctuation() = %q", got)
	}
	if got := StripPunctuation("gracias, nos vemos!"); got != "gracias nos vemos" {
		t.Errorf("StripPunctuation() = %q", got)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("¡Hola! ¿Cómo estás?")
	want := []string{"hola", "como", "estas"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestIsGreeting(t *testing.T) {
	greetings := []string{"hola", "Hola!", "buenas tardes", "buenos días", "hey"}
	for _, g := range greetings {
		if !IsGreeting(g) {
			t.Errorf("IsGreeting(%q) = false, want true", g)
		}
	}
	notGreetings := []string{"hola quiero comprar", "precio", "", "hola hola hola hola hola"}
	for _, g := range notGreetings {
		if IsGreeting(g) {
			t.Errorf("IsGreeting(%q) = true, want false", g)
		}
	}
}

func TestIsGoodbye(t *testing.T) {
	if !IsGoodbye("gracias, nos vemos") {
		t.Error("plain farewell not detected")
	}
	if IsGoodbye("gracias, quiero comprar") {
		t.Error("commercial message misread as farewell")
	}
	if IsGoodbye("") {
		t.Error("empty message is not a farewell")
	}
}
