// Package models: persona knowledge base.
//
// The persona is the flattened, declarative business profile used for
// deterministic question answering. It is assembled fresh from the flow's
// ai_config block on every inbound message; flattening is total, so missing
// keys always come out as empty strings, never null.
package models

import "strings"

// AIConfig is the structured business-profile block an operator attaches to a
// flow definition. All sections are optional.
type AIConfig struct {
	Enabled  bool            `json:"enabled"`
	Model    string          `json:"model,omitempty"`
	Identity *IdentityConfig `json:"identity,omitempty"`
	Contact  *ContactConfig  `json:"contact,omitempty"`
	Social   *SocialConfig   `json:"social,omitempty"`
	Hours    *HoursConfig    `json:"hours,omitempty"`
	Address  *AddressConfig  `json:"address,omitempty"`
	Sales    *SalesConfig    `json:"sales,omitempty"`
	Payments *PaymentsConfig `json:"payments,omitempty"`
	Shipping *ShippingConfig `json:"shipping,omitempty"`
	Policies *PoliciesConfig `json:"policies,omitempty"`
}

type IdentityConfig struct {
	BusinessName string `json:"business_name,omitempty"`
	Brand        string `json:"brand,omitempty"`
	AgentName    string `json:"agent_name,omitempty"`
	Description  string `json:"description,omitempty"`
	Tone         string `json:"tone,omitempty"`
	SalesPitch   string `json:"sales_pitch,omitempty"`
}

type ContactConfig struct {
	Phone      string `json:"phone,omitempty"`
	WhatsApp   string `json:"whatsapp,omitempty"`
	Email      string `json:"email,omitempty"`
	Website    string `json:"website,omitempty"`
	CatalogURL string `json:"catalog_url,omitempty"`
}

type SocialConfig struct {
	Facebook  string `json:"facebook,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	TikTok    string `json:"tiktok,omitempty"`
	YouTube   string `json:"youtube,omitempty"`
}

type HoursConfig struct {
	Weekdays string `json:"weekdays,omitempty"`
	Saturday string `json:"saturday,omitempty"`
	Sunday   string `json:"sunday,omitempty"`
	Holidays string `json:"holidays,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type AddressConfig struct {
	Line        string `json:"line,omitempty"`
	District    string `json:"district,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	Country     string `json:"country,omitempty"`
	MapURL      string `json:"map_url,omitempty"`
	HasShowroom bool   `json:"has_showroom,omitempty"`
}

type SalesConfig struct {
	OnlineOnly       bool   `json:"online_only,omitempty"`
	SellsWholesale   bool   `json:"sells_wholesale,omitempty"`
	WholesaleMinimum string `json:"wholesale_minimum,omitempty"`
	OrderFields      string `json:"order_fields,omitempty"`
}

type PaymentsConfig struct {
	YapeNumber     string `json:"yape_number,omitempty"`
	YapeHolder     string `json:"yape_holder,omitempty"`
	YapeQRURL      string `json:"yape_qr_url,omitempty"`
	PlinNumber     string `json:"plin_number,omitempty"`
	PlinHolder     string `json:"plin_holder,omitempty"`
	CardEnabled    bool   `json:"card_enabled,omitempty"`
	CardMethods    string `json:"card_methods,omitempty"`
	TransferBank   string `json:"transfer_bank,omitempty"`
	TransferHolder string `json:"transfer_holder,omitempty"`
	TransferAcct   string `json:"transfer_account,omitempty"`
	TransferCCI    string `json:"transfer_cci,omitempty"`
	CashOnDelivery bool   `json:"cash_on_delivery,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

type ShippingConfig struct {
	LocalCourier    string `json:"local_courier,omitempty"`
	NationalCarrier string `json:"national_carrier,omitempty"`
	LocalCost       string `json:"local_cost,omitempty"`
	NationalCost    string `json:"national_cost,omitempty"`
	FreeThreshold   string `json:"free_threshold,omitempty"`
	DeliveryTimes   string `json:"delivery_times,omitempty"`
	Pickup          string `json:"pickup,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type PoliciesConfig struct {
	Returns      string `json:"returns,omitempty"`
	Exchanges    string `json:"exchanges,omitempty"`
	Warranty     string `json:"warranty,omitempty"`
	TaxID        string `json:"tax_id,omitempty"`
	InvoiceTypes string `json:"invoice_types,omitempty"`
	Privacy      string `json:"privacy,omitempty"`
}

// Persona is the flat business profile record. Every field is total: an
// unset section flattens to empty strings so answer templates never touch a
// nil pointer or fabricate a value.
type Persona struct {
	BusinessName string
	Brand        string
	AgentName    string
	Description  string
	Tone         string
	SalesPitch   string

	Phone      string
	WhatsApp   string
	Email      string
	Website    string
	CatalogURL string

	Facebook  string
	Instagram string
	TikTok    string
	YouTube   string

	HoursWeekdays string
	HoursSaturday string
	HoursSunday   string
	HoursHolidays string
	HoursNotes    string

	AddressLine     string
	AddressDistrict string
	AddressCity     string
	AddressRegion   string
	AddressCountry  string
	AddressMapURL   string
	HasShowroom     bool

	OnlineOnly       bool
	SellsWholesale   bool
	WholesaleMinimum string
	OrderFields      string

	YapeNumber     string
	YapeHolder     string
	YapeQRURL      string
	PlinNumber     string
	PlinHolder     string
	CardEnabled    bool
	CardMethods    string
	TransferBank   string
	TransferHolder string
	TransferAcct   string
	TransferCCI    string
	CashOnDelivery bool
	PaymentNotes   string

	ShippingLocalCourier    string
	ShippingNationalCarrier string
	ShippingLocalCost       string
	ShippingNationalCost    string
	ShippingFreeThreshold   string
	ShippingDeliveryTimes   string
	ShippingPickup          string
	ShippingNotes           string

	ReturnsPolicy   string
	ExchangesPolicy string
	WarrantyPolicy  string
	TaxID           string
	InvoiceTypes    string
	PrivacyPolicy   string
}

// FlattenPersona builds the flat persona record from a flow's ai_config
// block. It is idempotent and total: a nil config yields the zero persona.
func FlattenPersona(cfg *AIConfig) Persona {
	var p Persona
	if cfg == nil {
		return p
	}
	if id := cfg.Identity; id != nil {
		p.BusinessName = strings.TrimSpace(id.BusinessName)
		p.Brand = strings.TrimSpace(id.Brand)
		p.AgentName = strings.TrimSpace(id.AgentName)
		p.Description = strings.TrimSpace(id.Description)
		p.Tone = strings.TrimSpace(id.Tone)
		p.SalesPitch = strings.TrimSpace(id.SalesPitch)
	}
	if c := cfg.Contact; c != nil {
		p.Phone = strings.TrimSpace(c.Phone)
		p.WhatsApp = strings.TrimSpace(c.WhatsApp)
		p.Email = strings.TrimSpace(c.Email)
		p.Website = strings.TrimSpace(c.Website)
		p.CatalogURL = strings.TrimSpace(c.CatalogURL)
	}
	if s := cfg.Social; s != nil {
		p.Facebook = strings.TrimSpace(s.Facebook)
		p.Instagram = strings.TrimSpace(s.Instagram)
		p.TikTok = strings.TrimSpace(s.TikTok)
		p.YouTube = strings.TrimSpace(s.YouTube)
	}
	if h := cfg.Hours; h != nil {
		p.HoursWeekdays = strings.TrimSpace(h.Weekdays)
		p.HoursSaturday = strings.TrimSpace(h.Saturday)
		p.HoursSunday = strings.TrimSpace(h.Sunday)
		p.HoursHolidays = strings.TrimSpace(h.Holidays)
		p.HoursNotes = strings.TrimSpace(h.Notes)
	}
	if a := cfg.Address; a != nil {
		p.AddressLine = strings.TrimSpace(a.Line)
		p.AddressDistrict = strings.TrimSpace(a.District)
		p.AddressCity = strings.TrimSpace(a.City)
		p.AddressRegion = strings.TrimSpace(a.Region)
		p.AddressCountry = strings.TrimSpace(a.Country)
		p.AddressMapURL = strings.TrimSpace(a.MapURL)
		p.HasShowroom = a.HasShowroom
	}
	if s := cfg.Sales; s != nil {
		p.OnlineOnly = s.OnlineOnly
		p.SellsWholesale = s.SellsWholesale
		p.WholesaleMinimum = strings.TrimSpace(s.WholesaleMinimum)
		p.OrderFields = strings.TrimSpace(s.OrderFields)
	}
	if pay := cfg.Payments; pay != nil {
		p.YapeNumber = strings.TrimSpace(pay.YapeNumber)
		p.YapeHolder = strings.TrimSpace(pay.YapeHolder)
		p.YapeQRURL = strings.TrimSpace(pay.YapeQRURL)
		p.PlinNumber = strings.TrimSpace(pay.PlinNumber)
		p.PlinHolder = strings.TrimSpace(pay.PlinHolder)
		p.CardEnabled = pay.CardEnabled
		p.CardMethods = strings.TrimSpace(pay.CardMethods)
		p.TransferBank = strings.TrimSpace(pay.TransferBank)
		p.TransferHolder = strings.TrimSpace(pay.TransferHolder)
		p.TransferAcct = strings.TrimSpace(pay.TransferAcct)
		p.TransferCCI = strings.TrimSpace(pay.TransferCCI)
		p.CashOnDelivery = pay.CashOnDelivery
		p.PaymentNotes = strings.TrimSpace(pay.Notes)
	}
	if sh := cfg.Shipping; sh != nil {
		p.ShippingLocalCourier = strings.TrimSpace(sh.LocalCourier)
		p.ShippingNationalCarrier = strings.TrimSpace(sh.NationalCarrier)
		p.ShippingLocalCost = strings.TrimSpace(sh.LocalCost)
		p.ShippingNationalCost = strings.TrimSpace(sh.NationalCost)
		p.ShippingFreeThreshold = strings.TrimSpace(sh.FreeThreshold)
		p.ShippingDeliveryTimes = strings.TrimSpace(sh.DeliveryTimes)
		p.ShippingPickup = strings.TrimSpace(sh.Pickup)
		p.ShippingNotes = strings.TrimSpace(sh.Notes)
	}
	if pol := cfg.Policies; pol != nil {
		p.ReturnsPolicy = strings.TrimSpace(pol.Returns)
		p.ExchangesPolicy = strings.TrimSpace(pol.Exchanges)
		p.WarrantyPolicy = strings.TrimSpace(pol.Warranty)
		p.TaxID = strings.TrimSpace(pol.TaxID)
		p.InvoiceTypes = strings.TrimSpace(pol.InvoiceTypes)
		p.PrivacyPolicy = strings.TrimSpace(pol.Privacy)
	}
	return p
}

// HasAnyPayment reports whether at least one payment instrument is configured.
func (p Persona) HasAnyPayment() bool {
	return p.YapeNumber != "" || p.PlinNumber != "" || p.CardEnabled ||
		p.TransferAcct != "" || p.TransferBank != "" || p.CashOnDelivery
}

// HasAnyShipping reports whether any shipping information is configured.
func (p Persona) HasAnyShipping() bool {
	return p.ShippingLocalCourier != "" || p.ShippingNationalCarrier != "" ||
		p.ShippingLocalCost != "" || p.ShippingNationalCost != "" ||
		p.ShippingDeliveryTimes != "" || p.ShippingNotes != ""
}
