package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/optichat/optichat/internal/models"
)

func TestInMemoryWaUserUpsert(t *testing.T) {
	s := NewInMemoryStore()
	u, err := s.GetWaUser(1, "51999000111")
	if err != nil {
		t.Fatalf("GetWaUser() error = %v", err)
	}
	if u != nil {
		t.Fatal("expected nil for unknown user")
	}
	if err := s.SaveWaUser(models.WaUser{BotID: 1, WaID: "51999000111", Name: "Ana"}); err != nil {
		t.Fatalf("SaveWaUser() error = %v", err)
	}
	if err := s.SaveWaUser(models.WaUser{BotID: 1, WaID: "51999000111", Name: "Ana", FlowNode: "pagos"}); err != nil {
		t.Fatalf("SaveWaUser() upsert error = %v", err)
	}
	u, _ = s.GetWaUser(1, "51999000111")
	if u == nil || u.FlowNode != "pagos" {
		t.Fatalf("upsert did not replace the record: %+v", u)
	}
	// Same wa_id on another bot is a different conversation.
	if other, _ := s.GetWaUser(2, "51999000111"); other != nil {
		t.Error("conversation state leaked across bots")
	}
}

func TestInMemoryActiveFlowPicksNewest(t *testing.T) {
	s := NewInMemoryStore()
	old := &models.Flow{BotID: 1, Name: "v1", Definition: json.RawMessage(`{}`), IsActive: true}
	if err := s.SaveFlow(old); err != nil {
		t.Fatalf("SaveFlow() error = %v", err)
	}
	newer := &models.Flow{BotID: 1, Name: "v2", Definition: json.RawMessage(`{}`), IsActive: true}
	if err := s.SaveFlow(newer); err != nil {
		t.Fatalf("SaveFlow() error = %v", err)
	}
	inactive := &models.Flow{BotID: 1, Name: "v3", Definition: json.RawMessage(`{}`), IsActive: false}
	if err := s.SaveFlow(inactive); err != nil {
		t.Fatalf("SaveFlow() error = %v", err)
	}
	got, err := s.GetActiveFlow(1)
	if err != nil {
		t.Fatalf("GetActiveFlow() error = %v", err)
	}
	if got == nil || got.Name != "v2" {
		t.Fatalf("GetActiveFlow() = %+v, want v2", got)
	}
}

func TestInMemoryAIKeyOrdering(t *testing.T) {
	s := NewInMemoryStore()
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	keys := []*models.AIKey{
		{Provider: models.ProviderOpenRouter, Name: "low-prio", APIKey: "k1", IsActive: true, Priority: 2},
		{Provider: models.ProviderOpenRouter, Name: "used-recently", APIKey: "k2", IsActive: true, Priority: 1, LastUsedAt: &newer},
		{Provider: models.ProviderOpenRouter, Name: "used-earlier", APIKey: "k3", IsActive: true, Priority: 1, LastUsedAt: &older},
		{Provider: models.ProviderOpenRouter, Name: "never-used", APIKey: "k4", IsActive: true, Priority: 1},
		{Provider: models.ProviderOpenRouter, Name: "inactive", APIKey: "k5", IsActive: false, Priority: 0},
		{Provider: "other", Name: "wrong-provider", APIKey: "k6", IsActive: true, Priority: 0},
	}
	for _, k := range keys {
		if err := s.SaveAIKey(k); err != nil {
			t.Fatalf("SaveAIKey(%s) error = %v", k.Name, err)
		}
	}

	got, err := s.ListActiveAIKeys(models.ProviderOpenRouter)
	if err != nil {
		t.Fatalf("ListActiveAIKeys() error = %v", err)
	}
	var names []string
	for _, k := range got {
		names = append(names, k.Name)
	}
	want := []string{"never-used", "used-earlier", "used-recently", "low-prio"}
	if len(names) != len(want) {
		t.Fatalf("ListActiveAIKeys() order = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("ListActiveAIKeys() order = %v, want %v", names, want)
		}
	}
}

func TestInMemoryRecordAIKeyUse(t *testing.T) {
	s := NewInMemoryStore()
	k := &models.AIKey{Provider: models.ProviderOpenRouter, APIKey: "k", IsActive: true, FailureCount: 3}
	if err := s.SaveAIKey(k); err != nil {
		t.Fatalf("SaveAIKey() error = %v", err)
	}
	now := time.Now().UTC()
	if err := s.RecordAIKeyUse(k.ID, false, now); err != nil {
		t.Fatalf("RecordAIKeyUse() error = %v", err)
	}
	got, _ := s.ListActiveAIKeys(models.ProviderOpenRouter)
	if got[0].FailureCount != 4 {
		t.Errorf("failure_count = %d, want 4 after failure", got[0].FailureCount)
	}
	if err := s.RecordAIKeyUse(k.ID, true, now.Add(time.Minute)); err != nil {
		t.Fatalf("RecordAIKeyUse() error = %v", err)
	}
	got, _ = s.ListActiveAIKeys(models.ProviderOpenRouter)
	if got[0].FailureCount != 0 {
		t.Errorf("failure_count = %d, want 0 after success", got[0].FailureCount)
	}
	if got[0].LastUsedAt == nil {
		t.Error("last_used_at not stamped")
	}
}

func TestInMemoryConversationScoping(t *testing.T) {
	s := NewInMemoryStore()
	logs := []models.MessageLog{
		{BotID: 1, Direction: models.DirectionIn, WaFrom: "user1", WaTo: "pn1", MessageType: "text"},
		{BotID: 1, Direction: models.DirectionOut, WaFrom: "pn1", WaTo: "user1", MessageType: "text"},
		{BotID: 1, Direction: models.DirectionIn, WaFrom: "user2", WaTo: "pn1", MessageType: "text"},
		{BotID: 2, Direction: models.DirectionIn, WaFrom: "user1", WaTo: "pn2", MessageType: "text"},
	}
	for _, m := range logs {
		if err := s.LogMessage(m); err != nil {
			t.Fatalf("LogMessage() error = %v", err)
		}
	}
	got, err := s.GetConversation(1, "user1", "pn1", 0)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetConversation() = %d entries, want 2", len(got))
	}
}

func TestInMemoryListWaUsersLiveFilter(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	earlier := now.Add(-time.Hour)
	s.SaveWaUser(models.WaUser{BotID: 1, WaID: "open", HumanRequested: true, LastMessageAt: &earlier})
	s.SaveWaUser(models.WaUser{BotID: 1, WaID: "closed", LastMessageAt: &now})
	s.SaveWaUser(models.WaUser{BotID: 9, WaID: "other-bot", HumanRequested: true, LastMessageAt: &now})

	live := true
	got, err := s.ListWaUsers([]int64{1}, &live, 10)
	if err != nil {
		t.Fatalf("ListWaUsers() error = %v", err)
	}
	if len(got) != 1 || got[0].WaID != "open" {
		t.Fatalf("ListWaUsers(live) = %+v, want only the open handoff", got)
	}

	all, _ := s.ListWaUsers([]int64{1}, nil, 10)
	if len(all) != 2 || all[0].WaID != "closed" {
		t.Fatalf("ListWaUsers() = %+v, want newest first", all)
	}
}
