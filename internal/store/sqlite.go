// Package store: SQLite backend.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/optichat/optichat/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path; the
// containing directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, ":memory:") {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveBot(b *models.Bot) error {
	if b.ID == 0 {
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now()
		}
		res, err := s.db.Exec(
			`INSERT INTO bots (name, uuid, phone_number_id, access_token, verify_token, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.Name, b.UUID, b.PhoneNumberID, b.AccessToken, b.VerifyToken, b.IsActive, b.CreatedAt,
		)
		if err != nil {
			slog.Error("SQLiteStore SaveBot insert failed", "error", err, "uuid", b.UUID)
			return fmt.Errorf("failed to insert bot: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read bot id: %w", err)
		}
		b.ID = id
		return nil
	}
	_, err := s.db.Exec(
		`UPDATE bots SET name = ?, phone_number_id = ?, access_token = ?, verify_token = ?, is_active = ? WHERE id = ?`,
		b.Name, b.PhoneNumberID, b.AccessToken, b.VerifyToken, b.IsActive, b.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveBot update failed", "error", err, "id", b.ID)
		return fmt.Errorf("failed to update bot %d: %w", b.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetBotByUUID(uuid string) (*models.Bot, error) {
	row := s.db.QueryRow(`SELECT id, name, uuid, phone_number_id, access_token, verify_token, is_active, created_at FROM bots WHERE uuid = ?`, uuid)
	b, err := scanBot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Error("SQLiteStore GetBotByUUID failed", "error", err, "uuid", uuid)
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteStore) ListBots() ([]models.Bot, error) {
	rows, err := s.db.Query(`SELECT id, name, uuid, phone_number_id, access_token, verify_token, is_active, created_at FROM bots ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListBots query failed", "error", err)
		return nil, fmt.Errorf("failed to query bots: %w", err)
	}
	defer rows.Close()
	var out []models.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveFlow(f *models.Flow) error {
	f.UpdatedAt = time.Now()
	if f.ID == 0 {
		res, err := s.db.Exec(
			`INSERT INTO flows (bot_id, name, definition, is_active, updated_at) VALUES (?, ?, ?, ?, ?)`,
			f.BotID, f.Name, string(emptyJSON(f.Definition)), f.IsActive, f.UpdatedAt,
		)
		if err != nil {
			slog.Error("SQLiteStore SaveFlow insert failed", "error", err, "bot_id", f.BotID)
			return fmt.Errorf("failed to insert flow: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read flow id: %w", err)
		}
		f.ID = id
		return nil
	}
	_, err := s.db.Exec(
		`UPDATE flows SET name = ?, definition = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		f.Name, string(emptyJSON(f.Definition)), f.IsActive, f.UpdatedAt, f.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveFlow update failed", "error", err, "id", f.ID)
		return fmt.Errorf("failed to update flow %d: %w", f.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetFlow(id int64) (*models.Flow, error) {
	row := s.db.QueryRow(`SELECT id, bot_id, name, definition, is_active, updated_at FROM flows WHERE id = ?`, id)
	f, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Error("SQLiteStore GetFlow failed", "error", err, "id", id)
		return nil, err
	}
	return &f, nil
}

func (s *SQLiteStore) GetActiveFlow(botID int64) (*models.Flow, error) {
	row := s.db.QueryRow(
		`SELECT id, bot_id, name, definition, is_active, updated_at FROM flows WHERE bot_id = ? AND is_active = 1 ORDER BY updated_at DESC LIMIT 1`,
		botID,
	)
	f, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Error("SQLiteStore GetActiveFlow failed", "error", err, "bot_id", botID)
		return nil, err
	}
	return &f, nil
}

func (s *SQLiteStore) GetWaUser(botID int64, waID string) (*models.WaUser, error) {
	row := s.db.QueryRow(
		`SELECT bot_id, wa_id, name, flow_node, human_requested, human_timeout_min, human_expires_at, last_message_at, last_in_at, welcomed_at FROM wa_users WHERE bot_id = ? AND wa_id = ?`,
		botID, waID,
	)
	u, err := scanWaUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Error("SQLiteStore GetWaUser failed", "error", err, "bot_id", botID, "wa_id", waID)
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) SaveWaUser(u models.WaUser) error {
	_, err := s.db.Exec(
		`INSERT INTO wa_users (bot_id, wa_id, name, flow_node, human_requested, human_timeout_min, human_expires_at, last_message_at, last_in_at, welcomed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(bot_id, wa_id) DO UPDATE SET
		   name = excluded.name,
		   flow_node = excluded.flow_node,
		   human_requested = excluded.human_requested,
		   human_timeout_min = excluded.human_timeout_min,
		   human_expires_at = excluded.human_expires_at,
		   last_message_at = excluded.last_message_at,
		   last_in_at = excluded.last_in_at,
		   welcomed_at = excluded.welcomed_at`,
		u.BotID, u.WaID, u.Name, u.FlowNode, u.HumanRequested, u.HumanTimeoutMin,
		nilIfZero(u.HumanExpiresAt), nilIfZero(u.LastMessageAt), nilIfZero(u.LastInAt), nilIfZero(u.WelcomedAt),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveWaUser failed", "error", err, "bot_id", u.BotID, "wa_id", u.WaID)
		return fmt.Errorf("failed to upsert wa_user %s: %w", u.WaID, err)
	}
	return nil
}

func (s *SQLiteStore) ListWaUsers(botIDs []int64, live *bool, limit int) ([]models.WaUser, error) {
	if len(botIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(botIDs)), ",")
	query := `SELECT bot_id, wa_id, name, flow_node, human_requested, human_timeout_min, human_expires_at, last_message_at, last_in_at, welcomed_at FROM wa_users WHERE bot_id IN (` + placeholders + `)`
	args := make([]interface{}, 0, len(botIDs)+2)
	for _, id := range botIDs {
		args = append(args, id)
	}
	if live != nil {
		query += ` AND human_requested = ?`
		args = append(args, *live)
	}
	query += ` ORDER BY last_message_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListWaUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query wa_users: %w", err)
	}
	return collectWaUsers(rows)
}

func (s *SQLiteStore) LogMessage(m models.MessageLog) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO message_logs (bot_id, direction, wa_from, wa_to, message_type, payload, status, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.BotID, m.Direction, m.WaFrom, m.WaTo, m.MessageType, string(emptyJSON(m.Payload)), m.Status, m.Error, m.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore LogMessage failed", "error", err, "bot_id", m.BotID, "direction", m.Direction)
		return fmt.Errorf("failed to insert message log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(botID int64, waID, phoneNumberID string, limit int) ([]models.MessageLog, error) {
	rows, err := s.db.Query(
		`SELECT id, bot_id, direction, wa_from, wa_to, message_type, payload, status, error, created_at FROM message_logs
		 WHERE bot_id = ? AND ((wa_from = ? AND wa_to = ?) OR (wa_from = ? AND wa_to = ?))
		 ORDER BY created_at ASC LIMIT ?`,
		botID, waID, phoneNumberID, phoneNumberID, waID, limit,
	)
	if err != nil {
		slog.Error("SQLiteStore GetConversation query failed", "error", err, "bot_id", botID, "wa_id", waID)
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return collectMessageLogs(rows)
}

func (s *SQLiteStore) ListActiveAIKeys(provider string) ([]models.AIKey, error) {
	rows, err := s.db.Query(
		`SELECT id, provider, name, api_key, is_active, priority, failure_count, last_used_at FROM ai_keys
		 WHERE is_active = 1 AND provider = ? ORDER BY priority ASC, last_used_at ASC`,
		provider,
	)
	if err != nil {
		slog.Error("SQLiteStore ListActiveAIKeys query failed", "error", err, "provider", provider)
		return nil, fmt.Errorf("failed to query ai keys: %w", err)
	}
	return collectAIKeys(rows)
}

func (s *SQLiteStore) SaveAIKey(k *models.AIKey) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if k.Provider == "" {
		k.Provider = models.ProviderOpenRouter
	}
	if k.ID == 0 {
		res, err := s.db.Exec(
			`INSERT INTO ai_keys (provider, name, api_key, is_active, priority, failure_count, last_used_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			k.Provider, k.Name, k.APIKey, k.IsActive, k.Priority, k.FailureCount, nilIfZero(k.LastUsedAt),
		)
		if err != nil {
			slog.Error("SQLiteStore SaveAIKey insert failed", "error", err)
			return fmt.Errorf("failed to insert ai key: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read ai key id: %w", err)
		}
		k.ID = id
		return nil
	}
	_, err := s.db.Exec(
		`UPDATE ai_keys SET provider = ?, name = ?, api_key = ?, is_active = ?, priority = ?, failure_count = ?, last_used_at = ? WHERE id = ?`,
		k.Provider, k.Name, k.APIKey, k.IsActive, k.Priority, k.FailureCount, nilIfZero(k.LastUsedAt), k.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveAIKey update failed", "error", err, "id", k.ID)
		return fmt.Errorf("failed to update ai key %d: %w", k.ID, err)
	}
	return nil
}

func (s *SQLiteStore) RecordAIKeyUse(id int64, success bool, usedAt time.Time) error {
	var err error
	if success {
		_, err = s.db.Exec(`UPDATE ai_keys SET failure_count = 0, last_used_at = ? WHERE id = ?`, usedAt, id)
	} else {
		_, err = s.db.Exec(`UPDATE ai_keys SET failure_count = failure_count + 1, last_used_at = ? WHERE id = ?`, usedAt, id)
	}
	if err != nil {
		slog.Error("SQLiteStore RecordAIKeyUse failed", "error", err, "id", id, "success", success)
		return fmt.Errorf("failed to record ai key use: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
