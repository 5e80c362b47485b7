package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testAccount() Account {
	return Account{PhoneNumberID: "111222333", AccessToken: "token-abc"}
}

// captureServer records the last request body and path and answers with the
// given status.
func captureServer(t *testing.T, status int, respBody string) (*httptest.Server, *map[string]interface{}, *string) {
	t.Helper()
	var captured map[string]interface{}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if got := r.Header.Get("Authorization"); got != "Bearer token-abc" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(status)
		w.Write([]byte(respBody))
	}))
	return srv, &captured, &path
}

func TestSendTextPayload(t *testing.T) {
	srv, captured, path := captureServer(t, http.StatusOK, `{"messages":[{"id":"wamid.1"}]}`)
	defer srv.Close()
	s := NewCloudSender(WithBaseURL(srv.URL), WithGraphVersion("v20.0"))

	res, err := s.SendText(context.Background(), testAccount(), "51999888777", "hola")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if *path != "/v20.0/111222333/messages" {
		t.Errorf("path = %q", *path)
	}
	body := *captured
	if body["type"] != "text" || body["to"] != "51999888777" {
		t.Errorf("unexpected payload: %v", body)
	}
	text := body["text"].(map[string]interface{})
	if text["body"] != "hola" || text["preview_url"] != false {
		t.Errorf("unexpected text object: %v", text)
	}
	if res.MessageType != "text" || res.StatusCode != 200 {
		t.Errorf("Result = %+v", res)
	}
	if len(res.Request) == 0 || len(res.Response) == 0 {
		t.Error("Result must carry request and response payloads for the log")
	}
}

func TestSendTextEmpty(t *testing.T) {
	s := NewCloudSender()
	_, err := s.SendText(context.Background(), testAccount(), "519", "")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("error = %v, want ErrEmptyMessage", err)
	}
}

func TestSendButtonsLimitsAndTruncation(t *testing.T) {
	srv, captured, _ := captureServer(t, http.StatusOK, `{}`)
	defer srv.Close()
	s := NewCloudSender(WithBaseURL(srv.URL))

	buttons := []Button{
		{ID: "FLOW:a", Title: "Primera opción con un título larguísimo"},
		{ID: "FLOW:b", Title: "Segunda"},
		{ID: "", Title: "sin id"},
		{ID: "FLOW:d", Title: "Cuarta"},
	}
	if _, err := s.SendButtons(context.Background(), testAccount(), "519", "elige", buttons); err != nil {
		t.Fatalf("SendButtons() error = %v", err)
	}
	inter := (*captured)["interactive"].(map[string]interface{})
	action := inter["action"].(map[string]interface{})
	got := action["buttons"].([]interface{})
	// Button 4 was cut by the max-3 cap, button 3 dropped for missing id.
	if len(got) != 2 {
		t.Fatalf("buttons sent = %d, want 2", len(got))
	}
	first := got[0].(map[string]interface{})["reply"].(map[string]interface{})
	if title := first["title"].(string); len([]rune(title)) > 20 {
		t.Errorf("title %q not truncated to 20 runes", title)
	}
}

func TestSendProviderError(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusUnauthorized, `{"error":{"message":"bad token"}}`)
	defer srv.Close()
	s := NewCloudSender(WithBaseURL(srv.URL))

	res, err := s.SendText(context.Background(), testAccount(), "519", "hola")
	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SendError", err)
	}
	if se.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", se.StatusCode)
	}
	if !strings.Contains(se.Body, "bad token") {
		t.Errorf("Body = %q, want provider error body", se.Body)
	}
	// Result still carries both payloads so the failure is logged.
	if len(res.Request) == 0 || len(res.Response) == 0 || res.StatusCode != 401 {
		t.Errorf("Result = %+v, want populated despite failure", res)
	}
}

func TestSendDocumentByID(t *testing.T) {
	srv, captured, _ := captureServer(t, http.StatusOK, `{}`)
	defer srv.Close()
	s := NewCloudSender(WithBaseURL(srv.URL))

	if _, err := s.SendDocumentByID(context.Background(), testAccount(), "519", "media-77", "catalogo.pdf", ""); err != nil {
		t.Fatalf("SendDocumentByID() error = %v", err)
	}
	doc := (*captured)["document"].(map[string]interface{})
	if doc["id"] != "media-77" || doc["filename"] != "catalogo.pdf" {
		t.Errorf("unexpected document payload: %v", doc)
	}
	if _, ok := doc["link"]; ok {
		t.Error("document-by-id payload must not carry a link")
	}
}

func TestCanonicalizeRecipient(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+51 999-888-777", "51999888777", false},
		{"51999888777", "51999888777", false},
		{"abc", "", true},
		{"123", "", true},
	}
	for _, tc := range cases {
		got, err := CanonicalizeRecipient(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("CanonicalizeRecipient(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("CanonicalizeRecipient(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateTitle(t *testing.T) {
	if got := TruncateTitle("corto"); got != "corto" {
		t.Errorf("TruncateTitle = %q", got)
	}
	long := "título con acentos y más de veinte caracteres"
	if got := TruncateTitle(long); len([]rune(got)) != 20 {
		t.Errorf("TruncateTitle length = %d, want 20 runes", len([]rune(got)))
	}
}
