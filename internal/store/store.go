// Package store provides storage backends for OptiChat.
//
// It persists bots, flow definitions, per-user conversation state, the
// append-only message log and rotating AI keys. SQLite and PostgreSQL
// backends share embedded migrations; the in-memory backend serves tests.
package store

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/optichat/optichat/internal/models"
)

// Store is the persistence abstraction used by the flow executor, the
// message dispatcher and the HTTP surface.
type Store interface {
	// SaveBot inserts or updates a bot. New bots get their ID assigned.
	SaveBot(b *models.Bot) error
	// GetBotByUUID resolves a bot by its webhook UUID. Returns nil when absent.
	GetBotByUUID(uuid string) (*models.Bot, error)
	// ListBots returns all bots, newest first.
	ListBots() ([]models.Bot, error)

	// SaveFlow inserts or updates a flow document wholesale.
	SaveFlow(f *models.Flow) error
	// GetFlow resolves a flow by id. Returns nil when absent.
	GetFlow(id int64) (*models.Flow, error)
	// GetActiveFlow returns the most recently updated active flow of a bot,
	// or nil when the bot has none.
	GetActiveFlow(botID int64) (*models.Flow, error)

	// GetWaUser resolves conversation state by (bot, wa_id). Returns nil when absent.
	GetWaUser(botID int64, waID string) (*models.WaUser, error)
	// SaveWaUser upserts conversation state keyed by (bot, wa_id).
	SaveWaUser(u models.WaUser) error
	// ListWaUsers lists conversation state for the given bots ordered by
	// last_message_at descending. live filters on human_requested when set.
	ListWaUsers(botIDs []int64, live *bool, limit int) ([]models.WaUser, error)

	// LogMessage appends one entry to the message log.
	LogMessage(m models.MessageLog) error
	// GetConversation returns the log entries exchanged between waID and the
	// bot's phone number id, oldest first.
	GetConversation(botID int64, waID, phoneNumberID string, limit int) ([]models.MessageLog, error)

	// ListActiveAIKeys returns active keys for a provider ordered by
	// (priority ascending, last_used_at ascending, unused keys first).
	ListActiveAIKeys(provider string) ([]models.AIKey, error)
	// SaveAIKey inserts or updates a key record.
	SaveAIKey(k *models.AIKey) error
	// RecordAIKeyUse stamps last_used_at and adjusts failure_count: success
	// resets it, failure increments it. Keys are never deactivated here.
	RecordAIKeyUse(id int64, success bool, usedAt time.Time) error

	// Close releases the backend.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string: a file path for SQLite, a
	// connection URL for PostgreSQL.
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is a Store kept entirely in process memory. It backs tests
// and small single-tenant deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	bots     map[int64]models.Bot
	flows    map[int64]models.Flow
	users    map[string]models.WaUser
	logs     []models.MessageLog
	keys     map[int64]models.AIKey
	nextBot  int64
	nextFlow int64
	nextKey  int64
	nextLog  int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		bots:  make(map[int64]models.Bot),
		flows: make(map[int64]models.Flow),
		users: make(map[string]models.WaUser),
		keys:  make(map[int64]models.AIKey),
	}
}

func userKey(botID int64, waID string) string {
	return strconv.FormatInt(botID, 10) + "|" + waID
}

func (s *InMemoryStore) SaveBot(b *models.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		s.nextBot++
		b.ID = s.nextBot
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now()
		}
	}
	s.bots[b.ID] = *b
	return nil
}

func (s *InMemoryStore) GetBotByUUID(uuid string) (*models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bots {
		if b.UUID == uuid {
			cp := b
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListBots() ([]models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Bot, 0, len(s.bots))
	for _, b := range s.bots {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) SaveFlow(f *models.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == 0 {
		s.nextFlow++
		f.ID = s.nextFlow
	}
	f.UpdatedAt = time.Now()
	s.flows[f.ID] = *f
	return nil
}

func (s *InMemoryStore) GetFlow(id int64) (*models.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.flows[id]; ok {
		cp := f
		return &cp, nil
	}
	return nil, nil
}

func (s *InMemoryStore) GetActiveFlow(botID int64) (*models.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Flow
	for id := range s.flows {
		f := s.flows[id]
		if f.BotID != botID || !f.IsActive {
			continue
		}
		if best == nil || f.UpdatedAt.After(best.UpdatedAt) {
			cp := f
			best = &cp
		}
	}
	return best, nil
}

func (s *InMemoryStore) GetWaUser(botID int64, waID string) (*models.WaUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userKey(botID, waID)]; ok {
		cp := u
		return &cp, nil
	}
	return nil, nil
}

func (s *InMemoryStore) SaveWaUser(u models.WaUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userKey(u.BotID, u.WaID)] = u
	return nil
}

func (s *InMemoryStore) ListWaUsers(botIDs []int64, live *bool, limit int) ([]models.WaUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[int64]bool, len(botIDs))
	for _, id := range botIDs {
		want[id] = true
	}
	var out []models.WaUser
	for _, u := range s.users {
		if !want[u.BotID] {
			continue
		}
		if live != nil && u.HumanRequested != *live {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) LogMessage(m models.MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLog++
	m.ID = s.nextLog
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.logs = append(s.logs, m)
	return nil
}

func (s *InMemoryStore) GetConversation(botID int64, waID, phoneNumberID string, limit int) ([]models.MessageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MessageLog
	for _, m := range s.logs {
		if m.BotID != botID {
			continue
		}
		in := m.WaFrom == waID && m.WaTo == phoneNumberID
		outbound := m.WaFrom == phoneNumberID && m.WaTo == waID
		if in || outbound {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListActiveAIKeys(provider string) ([]models.AIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AIKey
	for _, k := range s.keys {
		if k.IsActive && k.Provider == provider {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		ti, tj := out[i].LastUsedAt, out[j].LastUsedAt
		switch {
		case ti == nil && tj == nil:
			return out[i].ID < out[j].ID
		case ti == nil:
			return true
		case tj == nil:
			return false
		default:
			return ti.Before(*tj)
		}
	})
	return out, nil
}

func (s *InMemoryStore) SaveAIKey(k *models.AIKey) error {
	if err := k.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if k.ID == 0 {
		s.nextKey++
		k.ID = s.nextKey
	}
	s.keys[k.ID] = *k
	return nil
}

func (s *InMemoryStore) RecordAIKeyUse(id int64, success bool, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil
	}
	k.LastUsedAt = &usedAt
	if success {
		k.FailureCount = 0
	} else {
		k.FailureCount++
	}
	s.keys[id] = k
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
