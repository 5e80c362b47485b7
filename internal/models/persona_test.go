package models

import "testing"

func TestFlattenPersonaNil(t *testing.T) {
	p := FlattenPersona(nil)
	if p.YapeNumber != "" || p.Brand != "" || p.HoursWeekdays != "" {
		t.Error("nil config must flatten to the zero persona")
	}
	if p.HasAnyPayment() {
		t.Error("zero persona reports payment data")
	}
}

func TestFlattenPersonaTrimsAndMaps(t *testing.T) {
	cfg := &AIConfig{
		Identity: &IdentityConfig{Brand: "  Tienda Sol  ", AgentName: "Luna"},
		Payments: &PaymentsConfig{YapeNumber: " 999888777 ", YapeHolder: "Sol SAC"},
		Shipping: &ShippingConfig{DeliveryTimes: "24-48h"},
	}
	p := FlattenPersona(cfg)
	if p.Brand != "Tienda Sol" {
		t.Errorf("Brand = %q, want trimmed", p.Brand)
	}
	if p.YapeNumber != "999888777" || p.YapeHolder != "Sol SAC" {
		t.Errorf("payment fields not mapped: %+v", p)
	}
	if !p.HasAnyPayment() {
		t.Error("expected HasAnyPayment with yape configured")
	}
	if !p.HasAnyShipping() {
		t.Error("expected HasAnyShipping with delivery times configured")
	}
}

func TestFlattenPersonaIdempotent(t *testing.T) {
	cfg := &AIConfig{Contact: &ContactConfig{Website: "https://tiendasol.pe"}}
	first := FlattenPersona(cfg)
	second := FlattenPersona(cfg)
	if first != second {
		t.Error("flattening the same config twice produced different personas")
	}
}
