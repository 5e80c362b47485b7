package messaging

import "testing"

func TestNewTwilioSenderRequiresCredentials(t *testing.T) {
	if _, err := NewTwilioSender("", "tok", "+14155238886"); err == nil {
		t.Error("expected error without account sid")
	}
	if _, err := NewTwilioSender("AC123", "tok", "+14155238886"); err != nil {
		t.Errorf("NewTwilioSender() error = %v", err)
	}
}

func TestWhatsappAddr(t *testing.T) {
	cases := []struct{ in, want string }{
		{"+14155238886", "whatsapp:+14155238886"},
		{"14155238886", "whatsapp:+14155238886"},
		{"whatsapp:+14155238886", "whatsapp:+14155238886"},
	}
	for _, tc := range cases {
		if got := whatsappAddr(tc.in); got != tc.want {
			t.Errorf("whatsappAddr(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolveReply(t *testing.T) {
	s := &TwilioSender{lastOptions: map[string][]Button{
		"51999888777": {
			{ID: "FLOW:pagos", Title: "Pagos"},
			{ID: "FLOW:envios", Title: "Envíos"},
		},
	}}

	btn, ok := s.ResolveReply("51999888777", " 2 ")
	if !ok || btn.ID != "FLOW:envios" {
		t.Errorf("ResolveReply(2) = %+v, %v", btn, ok)
	}
	if _, ok := s.ResolveReply("51999888777", "3"); ok {
		t.Error("out-of-range reply must not resolve")
	}
	if _, ok := s.ResolveReply("51999888777", "pagos"); ok {
		t.Error("non-numeric reply must not resolve")
	}
	if _, ok := s.ResolveReply("unknown", "1"); ok {
		t.Error("unknown recipient must not resolve")
	}
}
