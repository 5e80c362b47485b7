package flow

import (
	"strings"
	"testing"

	"github.com/optichat/optichat/internal/models"
)

func testPersona() models.Persona {
	return models.Persona{
		Brand:        "Tienda Sol",
		BusinessName: "Sol SAC",
		AgentName:    "Luna",
		Phone:        "014445555",
		WhatsApp:     "51999888777",
		Website:      "https://tiendasol.pe",
		CatalogURL:   "https://tiendasol.pe/catalogo",
		Instagram:    "https://instagram.com/tiendasol",
		Facebook:     "https://facebook.com/tiendasol",
		YapeNumber:   "999888777",
		YapeHolder:   "Sol SAC",
		PlinNumber:   "999888777",
		CardEnabled:  true,
		CardMethods:  "Visa y Mastercard",
		TransferBank: "BCP",
		TransferAcct: "191-0000000-0-00",

		ShippingLocalCourier:    "Motorizado en Lima",
		ShippingLocalCost:       "S/ 10",
		ShippingNationalCarrier: "Olva Courier",
		ShippingDeliveryTimes:   "24-48h Lima, 3-5 días provincia",

		HoursWeekdays: "9am - 6pm",
		TaxID:         "20123456789",
		OrderFields:   "producto, talla y distrito",
	}
}

func TestDetectIntent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"¿tienen yape?", IntentYape},
		{"aceptan PLIN?", IntentPlin},
		{"puedo pagar con tarjeta visa", IntentCard},
		{"hacen transferencia al banco", IntentTransfer},
		{"tienen pago contra entrega?", IntentCOD},
		{"¿cuáles son los métodos de pago?", IntentPayments},
		{"hacen envíos a provincia?", IntentShipping},
		{"venden al por mayor?", IntentWholesale},
		{"me dan su ruc", IntentTaxID},
		{"emiten factura?", IntentInvoice},
		{"¿a qué hora atienden?", IntentHours},
		{"dónde están ubicados", IntentAddress},
		{"tienen catálogo?", IntentCatalog},
		{"pásame su instagram", IntentSocial},
		{"¿cuál es su teléfono?", IntentPhone},
		{"¿quién eres?", IntentIdentity},
		{"gracias, nos vemos", IntentGoodbye},
		{"qué me recomiendas para un regalo", IntentNone},
		{"", IntentNone},
	}
	for _, tc := range cases {
		if got := DetectIntent(tc.in); got != tc.want {
			t.Errorf("DetectIntent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDetectIntentPurchaseWinsOverPayment(t *testing.T) {
	// Commercial intent outranks the factual ones it may overlap with.
	if got := DetectIntent("quiero comprar y pagar con yape"); got != IntentPurchase {
		t.Errorf("DetectIntent() = %q, want %q", got, IntentPurchase)
	}
	if got := DetectIntent("cuánto cuesta el envío gratis"); got != IntentPurchase {
		t.Errorf("DetectIntent() = %q, want %q", got, IntentPurchase)
	}
}

func TestAnswerIntentYape(t *testing.T) {
	got := AnswerIntent(IntentYape, testPersona())
	for _, want := range []string{"Yape", "999888777", "Sol SAC"} {
		if !strings.Contains(got, want) {
			t.Errorf("yape answer %q missing %q", got, want)
		}
	}
}

func TestAnswerIntentIdentity(t *testing.T) {
	got := AnswerIntent(IntentIdentity, testPersona())
	if !strings.Contains(got, "Luna") || !strings.Contains(got, "Tienda Sol") {
		t.Errorf("identity answer %q missing agent or brand", got)
	}
}

func TestAnswerIntentShipping(t *testing.T) {
	got := AnswerIntent(IntentShipping, testPersona())
	for _, want := range []string{"Motorizado en Lima", "Olva Courier", "Tiempo típico"} {
		if !strings.Contains(got, want) {
			t.Errorf("shipping answer %q missing %q", got, want)
		}
	}
}

func TestAnswerIntentEmptyFieldsSayUnavailable(t *testing.T) {
	var empty models.Persona
	cases := []string{IntentYape, IntentPlin, IntentCard, IntentTransfer, IntentCOD,
		IntentPayments, IntentShipping, IntentWholesale, IntentTaxID, IntentInvoice,
		IntentHours, IntentAddress, IntentCatalog, IntentSocial, IntentPhone}
	for _, intent := range cases {
		got := AnswerIntent(intent, empty)
		if got == "" {
			t.Errorf("AnswerIntent(%s, empty) returned nothing", intent)
			continue
		}
		if !strings.Contains(got, "no tenemos") {
			t.Errorf("AnswerIntent(%s, empty) = %q, want an explicit unavailable message", intent, got)
		}
	}
}

func TestAnswerIntentNeverFabricates(t *testing.T) {
	p := models.Persona{Brand: "Tienda Sol"}
	got := AnswerIntent(IntentYape, p)
	if strings.ContainsAny(got, "0123456789") {
		t.Errorf("answer without yape data contains digits: %q", got)
	}
}

func TestAnswerIntentOnlineOnlyAddress(t *testing.T) {
	got := AnswerIntent(IntentAddress, models.Persona{OnlineOnly: true})
	if !strings.Contains(got, "online") {
		t.Errorf("online-only address answer = %q", got)
	}
}

func TestAnswerIntentPurchaseUsesOrderFields(t *testing.T) {
	got := AnswerIntent(IntentPurchase, testPersona())
	if !strings.Contains(got, "producto, talla y distrito") {
		t.Errorf("purchase answer %q missing order fields", got)
	}
	if !strings.Contains(got, "https://tiendasol.pe/catalogo") {
		t.Errorf("purchase answer %q missing catalog link", got)
	}
}

func TestAnswerIntentGoodbyeOffersSocials(t *testing.T) {
	got := AnswerIntent(IntentGoodbye, testPersona())
	if !strings.Contains(got, "instagram.com/tiendasol") || !strings.Contains(got, "facebook.com/tiendasol") {
		t.Errorf("goodbye answer %q missing socials", got)
	}
	// Without socials the farewell stands alone.
	bare := AnswerIntent(IntentGoodbye, models.Persona{})
	if strings.Contains(bare, "Síguenos") {
		t.Errorf("goodbye without socials still advertises them: %q", bare)
	}
}

func TestAnswerFromPersona(t *testing.T) {
	p := testPersona()
	if got := AnswerFromPersona("¿tienen yape?", p); !strings.Contains(got, "999888777") {
		t.Errorf("AnswerFromPersona(yape) = %q", got)
	}
	if got := AnswerFromPersona("qué me recomiendas", p); got != "" {
		t.Errorf("AnswerFromPersona(unmatched) = %q, want empty", got)
	}
}

func TestAnswerIntentUnknown(t *testing.T) {
	if got := AnswerIntent("algo-raro", testPersona()); got != "" {
		t.Errorf("AnswerIntent(unknown) = %q, want empty", got)
	}
}
