package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/optichat/optichat/internal/models"
	"github.com/optichat/optichat/internal/store"
)

// fakeSender records calls and returns a scripted result.
type fakeSender struct {
	lastAcct Account
	lastTo   string
	lastText string
	result   Result
	err      error
}

func (f *fakeSender) SendText(ctx context.Context, acct Account, to, text string) (Result, error) {
	f.lastAcct, f.lastTo, f.lastText = acct, to, text
	return f.result, f.err
}

func (f *fakeSender) SendButtons(ctx context.Context, acct Account, to, body string, buttons []Button) (Result, error) {
	f.lastAcct, f.lastTo, f.lastText = acct, to, body
	return f.result, f.err
}

func (f *fakeSender) SendImage(ctx context.Context, acct Account, to, link, caption string) (Result, error) {
	f.lastAcct, f.lastTo = acct, to
	return f.result, f.err
}

func (f *fakeSender) SendDocument(ctx context.Context, acct Account, to, link, filename, caption string) (Result, error) {
	f.lastAcct, f.lastTo = acct, to
	return f.result, f.err
}

func (f *fakeSender) SendDocumentByID(ctx context.Context, acct Account, to, mediaID, filename, caption string) (Result, error) {
	f.lastAcct, f.lastTo = acct, to
	return f.result, f.err
}

func okResult() Result {
	return Result{
		MessageType: "text",
		Request:     json.RawMessage(`{"type":"text"}`),
		Response:    json.RawMessage(`{"messages":[{"id":"wamid.9"}]}`),
		StatusCode:  200,
	}
}

func TestResolveAccountPrefersBot(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, store.NewInMemoryStore(), Account{PhoneNumberID: "env-pn", AccessToken: "env-tok"})
	bot := &models.Bot{ID: 1, PhoneNumberID: "bot-pn", AccessToken: "bot-tok"}
	acct, err := d.ResolveAccount(bot)
	if err != nil {
		t.Fatalf("ResolveAccount() error = %v", err)
	}
	if acct.PhoneNumberID != "bot-pn" {
		t.Errorf("account = %+v, want bot credentials", acct)
	}
}

func TestResolveAccountFallsBackToEnv(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, store.NewInMemoryStore(), Account{PhoneNumberID: "env-pn", AccessToken: "env-tok"})
	acct, err := d.ResolveAccount(&models.Bot{ID: 1})
	if err != nil {
		t.Fatalf("ResolveAccount() error = %v", err)
	}
	if acct.PhoneNumberID != "env-pn" {
		t.Errorf("account = %+v, want env fallback", acct)
	}
}

func TestResolveAccountNoCredentials(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, store.NewInMemoryStore(), Account{})
	if _, err := d.ResolveAccount(&models.Bot{ID: 1}); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("error = %v, want ErrNoCredentials", err)
	}
}

func TestSendTextLogsSuccess(t *testing.T) {
	st := store.NewInMemoryStore()
	d := NewDispatcher(&fakeSender{result: okResult()}, st, Account{})
	bot := &models.Bot{ID: 7, PhoneNumberID: "pn-7", AccessToken: "tok"}

	if err := d.SendText(context.Background(), bot, "user-1", "hola"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	logs, _ := st.GetConversation(7, "user-1", "pn-7", 0)
	if len(logs) != 1 {
		t.Fatalf("log entries = %d, want 1", len(logs))
	}
	m := logs[0]
	if m.Direction != models.DirectionOut || m.Status != "sent" || m.MessageType != "text" {
		t.Errorf("log entry = %+v", m)
	}
	var payload struct {
		Request  json.RawMessage `json:"request"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(m.Payload, &payload); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if len(payload.Request) == 0 || len(payload.Response) == 0 {
		t.Error("payload must carry request and response")
	}
}

func TestSendTextLogsFailure(t *testing.T) {
	st := store.NewInMemoryStore()
	sendErr := &SendError{Op: "send_text", To: "user-1", StatusCode: 500, Body: "boom"}
	d := NewDispatcher(&fakeSender{result: okResult(), err: sendErr}, st, Account{})
	bot := &models.Bot{ID: 7, PhoneNumberID: "pn-7", AccessToken: "tok"}

	err := d.SendText(context.Background(), bot, "user-1", "hola")
	if err == nil {
		t.Fatal("expected the send error to propagate")
	}
	logs, _ := st.GetConversation(7, "user-1", "pn-7", 0)
	if len(logs) != 1 {
		t.Fatalf("log entries = %d, want 1 even on failure", len(logs))
	}
	if logs[0].Status != "failed" || logs[0].Error == "" {
		t.Errorf("log entry = %+v, want failed status with error text", logs[0])
	}
}

func TestSendAssetRouting(t *testing.T) {
	st := store.NewInMemoryStore()
	f := &fakeSender{result: okResult()}
	d := NewDispatcher(f, st, Account{})
	bot := &models.Bot{ID: 1, PhoneNumberID: "pn", AccessToken: "tok"}

	if err := d.SendAsset(context.Background(), bot, "u", models.Asset{Type: models.AssetImage, URL: "https://x/1.png"}); err != nil {
		t.Fatalf("SendAsset(image) error = %v", err)
	}
	if err := d.SendAsset(context.Background(), bot, "u", models.Asset{Type: models.AssetDocument, URL: "https://x/c.pdf", Name: "c.pdf"}); err != nil {
		t.Fatalf("SendAsset(document) error = %v", err)
	}
}

func TestIsHardFailure(t *testing.T) {
	if IsHardFailure(nil) {
		t.Error("nil must not be a hard failure")
	}
	if !IsHardFailure(ErrNoCredentials) {
		t.Error("missing credentials is a hard failure")
	}
	if !IsHardFailure(&SendError{StatusCode: 401}) {
		t.Error("4xx provider rejection is a hard failure")
	}
	if IsHardFailure(&SendError{Err: errors.New("dial tcp: timeout")}) {
		t.Error("transport errors are best effort")
	}
}
