package flow

import (
	"fmt"
	"strings"

	"github.com/optichat/optichat/internal/models"
)

// Intent labels the deterministic answer layer can resolve. The AI-assisted
// labeling step maps free text onto the same set.
const (
	IntentIdentity  = "identidad"
	IntentPhone     = "contacto"
	IntentCatalog   = "catalogo"
	IntentSocial    = "redes"
	IntentHours     = "horario"
	IntentAddress   = "direccion"
	IntentPayments  = "pagos"
	IntentYape      = "yape"
	IntentPlin      = "plin"
	IntentCard      = "tarjeta"
	IntentTransfer  = "transferencia"
	IntentCOD       = "contraentrega"
	IntentShipping  = "envios"
	IntentWholesale = "mayorista"
	IntentTaxID     = "ruc"
	IntentInvoice   = "facturacion"
	IntentPurchase  = "compra"
	IntentGoodbye   = "despedida"
	IntentNone      = "ninguna"
)

// IntentLabels is the closed label set offered to the AI classifier, mapped
// to the canonical phrase that re-runs the deterministic layer.
var IntentLabels = map[string]string{
	IntentIdentity:  "¿quién eres?",
	IntentPhone:     "¿cuál es su teléfono de contacto?",
	IntentCatalog:   "¿tienen catálogo o página web?",
	IntentSocial:    "¿cuáles son sus redes sociales?",
	IntentHours:     "¿cuál es el horario de atención?",
	IntentAddress:   "¿dónde están ubicados?",
	IntentPayments:  "¿cuáles son los métodos de pago?",
	IntentYape:      "¿tienen yape?",
	IntentPlin:      "¿tienen plin?",
	IntentCard:      "¿aceptan tarjeta?",
	IntentTransfer:  "¿aceptan transferencia bancaria?",
	IntentCOD:       "¿tienen pago contra entrega?",
	IntentShipping:  "¿hacen envíos?",
	IntentWholesale: "¿venden al por mayor?",
	IntentTaxID:     "¿cuál es su ruc?",
	IntentInvoice:   "¿emiten boleta o factura?",
	IntentPurchase:  "quiero comprar",
}

// goodbyeTokens is the farewell whitelist: a message is a goodbye only when
// every token (after punctuation stripping) belongs to this set, so
// "gracias, quiero comprar" never reads as a farewell.
var goodbyeTokens = map[string]bool{
	"gracias": true, "muchas": true, "chau": true, "chao": true, "adios": true,
	"bye": true, "hasta": true, "luego": true, "pronto": true, "manana": true,
	"nos": true, "vemos": true, "cuidate": true, "saludos": true,
	"ok": true, "vale": true, "listo": true, "genial": true, "perfecto": true,
	"buenas": true, "noches": true, "buen": true, "dia": true, "igualmente": true,
}

// greetingTokens mark a plain greeting for the one-time welcome.
var greetingTokens = map[string]bool{
	"hola": true, "ola": true, "hey": true, "alo": true,
	"buenas": true, "buenos": true, "dias": true, "tardes": true, "noches": true,
	"dia": true, "saludos": true, "que": true, "tal": true,
}

// IsGreeting reports whether the message is only a greeting.
func IsGreeting(input string) bool {
	toks := Tokens(input)
	if len(toks) == 0 || len(toks) > 4 {
		return false
	}
	for _, t := range toks {
		if !greetingTokens[t] {
			return false
		}
	}
	return true
}

// IsGoodbye reports whether the whole message is a farewell.
func IsGoodbye(input string) bool {
	toks := Tokens(input)
	if len(toks) == 0 {
		return false
	}
	for _, t := range toks {
		if !goodbyeTokens[t] {
			return false
		}
	}
	return true
}

// DetectIntent pattern-matches the normalized input against the fixed intent
// set. Purchase intent is checked first so commercial messages are never
// misrouted; goodbye is checked last and only on a whole-message basis.
func DetectIntent(input string) string {
	text := StripPunctuation(Normalize(input))
	if text == "" {
		return IntentNone
	}
	switch {
	case containsAny(text, "comprar", "quiero pedir", "hacer un pedido", "precio", "cuanto cuesta", "cuanto esta", "cotiza", "me interesa"):
		return IntentPurchase
	case containsAny(text, "yape"):
		return IntentYape
	case containsAny(text, "plin"):
		return IntentPlin
	case containsAny(text, "tarjeta", "visa", "mastercard", "credito", "debito"):
		return IntentCard
	case containsAny(text, "transferencia", "deposito", "cci", "cuenta bancaria", "banco"):
		return IntentTransfer
	case containsAny(text, "contra entrega", "contraentrega", "pago al recibir", "al recibir"):
		return IntentCOD
	case containsAny(text, "metodos de pago", "medios de pago", "formas de pago", "como pago", "como puedo pagar", "aceptan pagos"):
		return IntentPayments
	case containsAny(text, "envio", "envios", "delivery", "reparto", "hacen llegar", "mandan a", "envian"):
		return IntentShipping
	case containsAny(text, "por mayor", "mayorista", "al por mayor", "docena"):
		return IntentWholesale
	case containsAny(text, "ruc"):
		return IntentTaxID
	case containsAny(text, "boleta", "factura"):
		return IntentInvoice
	case containsAny(text, "horario", "a que hora", "atienden", "abren", "cierran"):
		return IntentHours
	case containsAny(text, "direccion", "donde estan", "donde queda", "ubicacion", "ubicados", "tienda fisica", "showroom"):
		return IntentAddress
	case containsAny(text, "catalogo", "pagina web", "sitio web", "su web", "tienda online", "tienda virtual"):
		return IntentCatalog
	case containsAny(text, "instagram", "facebook", "tiktok", "redes sociales", "sus redes"):
		return IntentSocial
	case containsAny(text, "telefono", "celular", "numero de contacto", "whatsapp de contacto", "como los contacto"):
		return IntentPhone
	case containsAny(text, "quien eres", "como te llamas", "eres un bot", "eres un robot", "con quien hablo"):
		return IntentIdentity
	case IsGoodbye(input):
		return IntentGoodbye
	}
	return IntentNone
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func unavailable(what string) string {
	return fmt.Sprintf("Por el momento no tenemos %s disponible. ¿Te ayudo con algo más?", what)
}

// AnswerIntent builds the templated answer for one intent strictly from
// persona fields. When the relevant fields are empty it returns an explicit
// "not available" message, never a fabricated value. Returns "" only for
// unknown intents.
func AnswerIntent(intent string, p models.Persona) string {
	brand := p.Brand
	if brand == "" {
		brand = p.BusinessName
	}
	switch intent {
	case IntentIdentity:
		who := p.AgentName
		if who == "" {
			who = "la asistente virtual"
		}
		if brand == "" {
			return fmt.Sprintf("Soy %s, tu asistente de compras. ¿En qué te ayudo? 😊", who)
		}
		return fmt.Sprintf("Soy %s, la asistente de %s. ¿En qué te ayudo? 😊", who, brand)

	case IntentPhone:
		if p.Phone == "" && p.WhatsApp == "" && p.Email == "" {
			return unavailable("un teléfono de contacto")
		}
		lines := []string{"Puedes contactarnos por aquí:"}
		if p.Phone != "" {
			lines = append(lines, "📞 Teléfono: "+p.Phone)
		}
		if p.WhatsApp != "" {
			lines = append(lines, "💬 WhatsApp: "+p.WhatsApp)
		}
		if p.Email != "" {
			lines = append(lines, "✉️ Correo: "+p.Email)
		}
		return strings.Join(lines, "\n")

	case IntentCatalog:
		if p.CatalogURL == "" && p.Website == "" {
			return unavailable("catálogo en línea")
		}
		lines := []string{}
		if p.CatalogURL != "" {
			lines = append(lines, "🛍️ Catálogo: "+p.CatalogURL)
		}
		if p.Website != "" && p.Website != p.CatalogURL {
			lines = append(lines, "🌐 Web: "+p.Website)
		}
		return "¡Claro! Aquí puedes ver nuestros productos:\n" + strings.Join(lines, "\n")

	case IntentSocial:
		if p.Instagram == "" && p.Facebook == "" && p.TikTok == "" && p.YouTube == "" {
			return unavailable("redes sociales")
		}
		lines := []string{"Síguenos en nuestras redes:"}
		if p.Instagram != "" {
			lines = append(lines, "Instagram: "+p.Instagram)
		}
		if p.Facebook != "" {
			lines = append(lines, "Facebook: "+p.Facebook)
		}
		if p.TikTok != "" {
			lines = append(lines, "TikTok: "+p.TikTok)
		}
		if p.YouTube != "" {
			lines = append(lines, "YouTube: "+p.YouTube)
		}
		return strings.Join(lines, "\n")

	case IntentHours:
		if p.HoursWeekdays == "" && p.HoursSaturday == "" && p.HoursSunday == "" {
			return unavailable("un horario de atención publicado")
		}
		lines := []string{"Nuestro horario de atención:"}
		if p.HoursWeekdays != "" {
			lines = append(lines, "Lunes a viernes: "+p.HoursWeekdays)
		}
		if p.HoursSaturday != "" {
			lines = append(lines, "Sábados: "+p.HoursSaturday)
		}
		if p.HoursSunday != "" {
			lines = append(lines, "Domingos: "+p.HoursSunday)
		}
		if p.HoursHolidays != "" {
			lines = append(lines, "Feriados: "+p.HoursHolidays)
		}
		if p.HoursNotes != "" {
			lines = append(lines, p.HoursNotes)
		}
		return strings.Join(lines, "\n")

	case IntentAddress:
		if p.AddressLine == "" && p.AddressDistrict == "" && p.AddressCity == "" {
			if p.OnlineOnly {
				return "Somos una tienda 100% online, no contamos con tienda física. 🛒"
			}
			return unavailable("una dirección publicada")
		}
		addr := joinNonEmpty(", ", p.AddressLine, p.AddressDistrict, p.AddressCity, p.AddressRegion, p.AddressCountry)
		lines := []string{"📍 Nos encuentras en: " + addr}
		if p.AddressMapURL != "" {
			lines = append(lines, "Mapa: "+p.AddressMapURL)
		}
		if p.HasShowroom {
			lines = append(lines, "Contamos con showroom para visitas.")
		}
		return strings.Join(lines, "\n")

	case IntentPayments:
		if !p.HasAnyPayment() {
			return unavailable("métodos de pago configurados")
		}
		lines := []string{"Aceptamos estos métodos de pago:"}
		if p.YapeNumber != "" {
			lines = append(lines, "• Yape: "+p.YapeNumber+yapeHolderSuffix(p))
		}
		if p.PlinNumber != "" {
			lines = append(lines, "• Plin: "+p.PlinNumber+plinHolderSuffix(p))
		}
		if p.CardEnabled {
			card := "• Tarjeta"
			if p.CardMethods != "" {
				card += " (" + p.CardMethods + ")"
			}
			lines = append(lines, card)
		}
		if p.TransferBank != "" || p.TransferAcct != "" {
			lines = append(lines, "• Transferencia bancaria")
		}
		if p.CashOnDelivery {
			lines = append(lines, "• Pago contra entrega")
		}
		if p.PaymentNotes != "" {
			lines = append(lines, p.PaymentNotes)
		}
		return strings.Join(lines, "\n")

	case IntentYape:
		if p.YapeNumber == "" {
			return unavailable("Yape")
		}
		lines := []string{fmt.Sprintf("¡Sí! Aceptamos Yape 💜\nNúmero: %s%s", p.YapeNumber, yapeHolderSuffix(p))}
		if p.YapeQRURL != "" {
			lines = append(lines, "QR: "+p.YapeQRURL)
		}
		return strings.Join(lines, "\n")

	case IntentPlin:
		if p.PlinNumber == "" {
			return unavailable("Plin")
		}
		return fmt.Sprintf("¡Sí! Aceptamos Plin 💙\nNúmero: %s%s", p.PlinNumber, plinHolderSuffix(p))

	case IntentCard:
		if !p.CardEnabled {
			return unavailable("pago con tarjeta")
		}
		if p.CardMethods != "" {
			return "Sí aceptamos tarjeta 💳: " + p.CardMethods
		}
		return "Sí aceptamos pago con tarjeta 💳."

	case IntentTransfer:
		if p.TransferBank == "" && p.TransferAcct == "" {
			return unavailable("transferencia bancaria")
		}
		lines := []string{"Sí aceptamos transferencia bancaria 🏦:"}
		if p.TransferBank != "" {
			lines = append(lines, "Banco: "+p.TransferBank)
		}
		if p.TransferHolder != "" {
			lines = append(lines, "Titular: "+p.TransferHolder)
		}
		if p.TransferAcct != "" {
			lines = append(lines, "Cuenta: "+p.TransferAcct)
		}
		if p.TransferCCI != "" {
			lines = append(lines, "CCI: "+p.TransferCCI)
		}
		return strings.Join(lines, "\n")

	case IntentCOD:
		if !p.CashOnDelivery {
			return unavailable("pago contra entrega")
		}
		return "Sí, contamos con pago contra entrega 🚚💵."

	case IntentShipping:
		if !p.HasAnyShipping() {
			return unavailable("información de envíos")
		}
		lines := []string{"¡Sí hacemos envíos! 📦"}
		if p.ShippingLocalCourier != "" || p.ShippingLocalCost != "" {
			lines = append(lines, "Local: "+joinNonEmpty(" — ", p.ShippingLocalCourier, p.ShippingLocalCost))
		}
		if p.ShippingNationalCarrier != "" || p.ShippingNationalCost != "" {
			lines = append(lines, "Nacional: "+joinNonEmpty(" — ", p.ShippingNationalCarrier, p.ShippingNationalCost))
		}
		if p.ShippingDeliveryTimes != "" {
			lines = append(lines, "Tiempo típico: "+p.ShippingDeliveryTimes)
		}
		if p.ShippingFreeThreshold != "" {
			lines = append(lines, "Envío gratis desde: "+p.ShippingFreeThreshold)
		}
		if p.ShippingPickup != "" {
			lines = append(lines, "Recojo: "+p.ShippingPickup)
		}
		if p.ShippingNotes != "" {
			lines = append(lines, p.ShippingNotes)
		}
		return strings.Join(lines, "\n")

	case IntentWholesale:
		if !p.SellsWholesale {
			return unavailable("venta al por mayor")
		}
		if p.WholesaleMinimum != "" {
			return "Sí vendemos al por mayor. Pedido mínimo: " + p.WholesaleMinimum
		}
		return "Sí vendemos al por mayor. Cuéntanos qué necesitas y te cotizamos."

	case IntentTaxID:
		if p.TaxID == "" {
			return unavailable("RUC publicado")
		}
		if p.BusinessName != "" {
			return fmt.Sprintf("RUC: %s (%s)", p.TaxID, p.BusinessName)
		}
		return "RUC: " + p.TaxID

	case IntentInvoice:
		if p.InvoiceTypes == "" {
			return unavailable("información de facturación")
		}
		return "Emitimos: " + p.InvoiceTypes

	case IntentPurchase:
		lines := []string{"¡Genial! 🎉"}
		if p.CatalogURL != "" {
			lines = append(lines, "Mira nuestro catálogo aquí: "+p.CatalogURL)
		} else if p.Website != "" {
			lines = append(lines, "Mira nuestros productos aquí: "+p.Website)
		}
		if p.OrderFields != "" {
			lines = append(lines, "Para tomar tu pedido indícanos: "+p.OrderFields)
		} else {
			lines = append(lines, "Cuéntame qué producto te interesa y te ayudo con tu pedido.")
		}
		return strings.Join(lines, "\n")

	case IntentGoodbye:
		lines := []string{"¡Gracias a ti! 💕 Que tengas un lindo día."}
		var socials []string
		if p.Instagram != "" {
			socials = append(socials, "Instagram: "+p.Instagram)
		}
		if p.Facebook != "" {
			socials = append(socials, "Facebook: "+p.Facebook)
		}
		if p.TikTok != "" {
			socials = append(socials, "TikTok: "+p.TikTok)
		}
		if len(socials) > 0 {
			lines = append(lines, "Síguenos para novedades y ofertas:")
			lines = append(lines, socials...)
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

func yapeHolderSuffix(p models.Persona) string {
	if p.YapeHolder == "" {
		return ""
	}
	return " (a nombre de " + p.YapeHolder + ")"
}

func plinHolderSuffix(p models.Persona) string {
	if p.PlinHolder == "" {
		return ""
	}
	return " (a nombre de " + p.PlinHolder + ")"
}

// AnswerFromPersona is the deterministic answer layer: detect the intent and
// build a templated reply strictly from persona data. Returns "" when no
// intent matches.
func AnswerFromPersona(input string, p models.Persona) string {
	intent := DetectIntent(input)
	if intent == IntentNone {
		return ""
	}
	return AnswerIntent(intent, p)
}
