package store

import (
	"encoding/json"
	"testing"

	"github.com/optichat/optichat/internal/models"
)

func TestFlowCacheActiveDefinition(t *testing.T) {
	s := NewInMemoryStore()
	f := &models.Flow{
		BotID:      1,
		Name:       "main",
		Definition: json.RawMessage(`{"start_node":"inicio","nodes":{"inicio":{"type":"start"}}}`),
		IsActive:   true,
	}
	if err := s.SaveFlow(f); err != nil {
		t.Fatalf("SaveFlow() error = %v", err)
	}
	c, err := NewFlowCache(s, "")
	if err != nil {
		t.Fatalf("NewFlowCache() error = %v", err)
	}
	def, err := c.ActiveDefinition(1)
	if err != nil {
		t.Fatalf("ActiveDefinition() error = %v", err)
	}
	if def.StartNode != "inicio" {
		t.Errorf("StartNode = %q, want inicio", def.StartNode)
	}
	// Second read is served from cache and must agree.
	again, err := c.ActiveDefinition(1)
	if err != nil {
		t.Fatalf("ActiveDefinition() cached error = %v", err)
	}
	if again.StartNode != def.StartNode || len(again.Nodes) != len(def.Nodes) {
		t.Error("cached definition diverged from stored definition")
	}
}

func TestFlowCacheInvalidate(t *testing.T) {
	s := NewInMemoryStore()
	f := &models.Flow{BotID: 1, Definition: json.RawMessage(`{"nodes":{"a":{}}}`), IsActive: true}
	if err := s.SaveFlow(f); err != nil {
		t.Fatalf("SaveFlow() error = %v", err)
	}
	c, err := NewFlowCache(s, "")
	if err != nil {
		t.Fatalf("NewFlowCache() error = %v", err)
	}
	if _, err := c.ActiveDefinition(1); err != nil {
		t.Fatalf("ActiveDefinition() error = %v", err)
	}

	f.Definition = json.RawMessage(`{"nodes":{"a":{},"b":{}}}`)
	if err := s.SaveFlow(f); err != nil {
		t.Fatalf("SaveFlow() error = %v", err)
	}
	c.Invalidate(1)

	def, err := c.ActiveDefinition(1)
	if err != nil {
		t.Fatalf("ActiveDefinition() after invalidate error = %v", err)
	}
	if len(def.Nodes) != 2 {
		t.Errorf("nodes = %d, want 2 after invalidation", len(def.Nodes))
	}
}

func TestFlowCacheMissingFlow(t *testing.T) {
	c, err := NewFlowCache(NewInMemoryStore(), "")
	if err != nil {
		t.Fatalf("NewFlowCache() error = %v", err)
	}
	def, err := c.ActiveDefinition(42)
	if err != nil {
		t.Fatalf("ActiveDefinition() error = %v", err)
	}
	if def == nil {
		t.Fatal("expected non-nil definition for a bot without flows")
	}
	if def.Enabled {
		t.Error("fallback definition must be disabled")
	}
}
