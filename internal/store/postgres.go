// Package store: PostgreSQL backend.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "embed"

	"github.com/optichat/optichat/internal/models"

	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store from a connection URL DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveBot(b *models.Bot) error {
	if b.ID == 0 {
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now()
		}
		err := s.db.QueryRow(
			`INSERT INTO bots (name, uuid, phone_number_id, access_token, verify_token, is_active, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			b.Name, b.UUID, b.PhoneNumberID, b.AccessToken, b.VerifyToken, b.IsActive, b.CreatedAt,
		).Scan(&b.ID)
		if err != nil {
			slog.Error("PostgresStore SaveBot insert failed", "error", err, "uuid", b.UUID)
			return fmt.Errorf("failed to insert bot: %w", err)
		}
		return nil
	}
	_, err := s.db.Exec(
		`UPDATE bots SET name = $1, phone_number_id = $2, access_token = $3, verify_token = $4, is_active = $5 WHERE id = $6`,
		b.Name, b.PhoneNumberID, b.AccessToken, b.VerifyToken, b.IsActive, b.ID,
	)
	if err != nil {
		slog.Error("PostgresStore SaveBot update failed", "error", err, "id", b.ID)
		return fmt.Errorf("failed to update bot %d: %w", b.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetBotByUUID(uuid string) (*models.Bot, error) {
	row := s.db.QueryRow(`SELECT id, name, uuid, phone_number_id, access_token, verify_token, is_active, created_at FROM bots WHERE uuid = $1`, uuid)
	b, err := scanBot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Error("PostgresStore GetBotByUUID failed", "error", err, "uuid", uuid)
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) ListBots() ([]models.Bot, error) {
	rows, err := s.db.Query(`SELECT id, name, uuid, phone_number_id, access_token, verify_token, is_active, created_at FROM bots ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListBots query failed", "error", err)
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

func (s *PostgresStore) SaveFlow(f *models.Flow) error {
	f.UpdatedAt = time.Now()
	if f.ID == 0 {
		err := s.db.QueryRow(
			`INSERT INTO flows (bot_id, name, definition, is_active, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			f.BotID, f.Name, string(emptyJSON(f.Definition)), f.IsActive, f.UpdatedAt,
		).Scan(&f.ID)
		if err != nil {
			slog.Error("PostgresStore SaveFlow insert failed", "error", err, "bot_id", f.BotID)
			return fmt.Errorf("failed to insert flow: %w", err)
		}
		return nil
	}
	_, err := s.db.Exec(
		`UPDATE flows SET name = $1, definition = $2, is_active = $3, updated_at = $4 WHERE id = $5`,
		f.Name, string(emptyJSON(f.Definition)), f.IsActive, f.UpdatedAt, f.ID,
	)
	if err != nil {
		slog.Error("PostgresStore SaveFlow update failed", "error", err, "id", f.ID)
		return fmt.Errorf("failed to update flow %d: %w", f.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetFlow(id int64) (*models.Flow, error) {
	row := s.db.QueryRow(`SELECT id, bot_id, name, definition, is_active, updated_at FROM flows WHERE id = $1`, id)
	f, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Error("PostgresStore GetFlow failed", "error", err, "id", id)
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) GetActiveFlow(botID int64) (*models.Flow, error) {
	row := s.db.QueryRow(
		`SELECT id, bot_id, name, definition, is_active, updated_at FROM flows WHERE bot_id = $1 AND is_active = TRUE ORDER BY updated_at DESC LIMIT 1`,
		botID,
	)
	f, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Error("PostgresStore GetActiveFlow failed", "error", err, "bot_id", botID)
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) GetWaUser(botID int64, waID string) (*models.WaUser, error) {
	row := s.db.QueryRow(
		`SELECT bot_id, wa_id, name, flow_node, human_requested, human_timeout_min, human_expires_at, last_message_at, last_in_at, welcomed_at FROM wa_users WHERE bot_id = $1 AND wa_id = $2`,
		botID, waID,
	)
	u, err := scanWaUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Error("PostgresStore GetWaUser failed", "error", err, "bot_id", botID, "wa_id", waID)
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) SaveWaUser(u models.WaUser) error {
	_, err := s.db.Exec(
		`INSERT INTO wa_users (bot_id, wa_id, name, flow_node, human_requested, human_timeout_min, human_expires_at, last_message_at, last_in_at, welcomed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (bot_id, wa_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   flow_node = EXCLUDED.flow_node,
		   human_requested = EXCLUDED.human_requested,
		   human_timeout_min = EXCLUDED.human_timeout_min,
		   human_expires_at = EXCLUDED.human_expires_at,
		   last_message_at = EXCLUDED.last_message_at,
		   last_in_at = EXCLUDED.last_in_at,
		   welcomed_at = EXCLUDED.welcomed_at`,
		u.BotID, u.WaID, u.Name, u.FlowNode, u.HumanRequested, u.HumanTimeoutMin,
		nilIfZero(u.HumanExpiresAt), nilIfZero(u.LastMessageAt), nilIfZero(u.LastInAt), nilIfZero(u.WelcomedAt),
	)
	if err != nil {
		slog.Error("PostgresStore SaveWaUser failed", "error", err, "bot_id", u.BotID, "wa_id", u.WaID)
		return fmt.Errorf("failed to upsert wa_user %s: %w", u.WaID, err)
	}
	return nil
}

func (s *PostgresStore) ListWaUsers(botIDs []int64, live *bool, limit int) ([]models.WaUser, error) {
	if len(botIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(botIDs)+2)
	placeholders := make([]string, 0, len(botIDs))
	for i, id := range botIDs {
		placeholders = append(placeholders, "$"+strconv.Itoa(i+1))
		args = append(args, id)
	}
	query := `SELECT bot_id, wa_id, name, flow_node, human_requested, human_timeout_min, human_expires_at, last_message_at, last_in_at, welcomed_at FROM wa_users WHERE bot_id IN (` + strings.Join(placeholders, ", ") + `)`
	if live != nil {
		args = append(args, *live)
		query += ` AND human_requested = $` + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY last_message_at DESC NULLS LAST LIMIT $` + strconv.Itoa(len(args))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListWaUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query wa_users: %w", err)
	}
	return collectWaUsers(rows)
}

func (s *PostgresStore) LogMessage(m models.MessageLog) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO message_logs (bot_id, direction, wa_from, wa_to, message_type, payload, status, error, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.BotID, m.Direction, m.WaFrom, m.WaTo, m.MessageType, string(emptyJSON(m.Payload)), m.Status, m.Error, m.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore LogMessage failed", "error", err, "bot_id", m.BotID, "direction", m.Direction)
		return fmt.Errorf("failed to insert message log: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(botID int64, waID, phoneNumberID string, limit int) ([]models.MessageLog, error) {
	rows, err := s.db.Query(
		`SELECT id, bot_id, direction, wa_from, wa_to, message_type, payload, status, error, created_at FROM message_logs
		 WHERE bot_id = $1 AND ((wa_from = $2 AND wa_to = $3) OR (wa_from = $3 AND wa_to = $2))
		 ORDER BY created_at ASC LIMIT $4`,
		botID, waID, phoneNumberID, limit,
	)
	if err != nil {
		slog.Error("PostgresStore GetConversation query failed", "error", err, "bot_id", botID, "wa_id", waID)
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return collectMessageLogs(rows)
}

func (s *PostgresStore) ListActiveAIKeys(provider string) ([]models.AIKey, error) {
	rows, err := s.db.Query(
		`SELECT id, provider, name, api_key, is_active, priority, failure_count, last_used_at FROM ai_keys
		 WHERE is_active = TRUE AND provider = $1 ORDER BY priority ASC, last_used_at ASC NULLS FIRST`,
		provider,
	)
	if err != nil {
		slog.Error("PostgresStore ListActiveAIKeys query failed", "error", err, "provider", provider)
		return nil, fmt.Errorf("failed to query ai keys: %w", err)
	}
	return collectAIKeys(rows)
}

func (s *PostgresStore) SaveAIKey(k *models.AIKey) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if k.Provider == "" {
		k.Provider = models.ProviderOpenRouter
	}
	if k.ID == 0 {
		err := s.db.QueryRow(
			`INSERT INTO ai_keys (provider, name, api_key, is_active, priority, failure_count, last_used_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			k.Provider, k.Name, k.APIKey, k.IsActive, k.Priority, k.FailureCount, nilIfZero(k.LastUsedAt),
		).Scan(&k.ID)
		if err != nil {
			slog.Error("PostgresStore SaveAIKey insert failed", "error", err)
			return fmt.Errorf("failed to insert ai key: %w", err)
		}
		return nil
	}
	_, err := s.db.Exec(
		`UPDATE ai_keys SET provider = $1, name = $2, api_key = $3, is_active = $4, priority = $5, failure_count = $6, last_used_at = $7 WHERE id = $8`,
		k.Provider, k.Name, k.APIKey, k.IsActive, k.Priority, k.FailureCount, nilIfZero(k.LastUsedAt), k.ID,
	)
	if err != nil {
		slog.Error("PostgresStore SaveAIKey update failed", "error", err, "id", k.ID)
		return fmt.Errorf("failed to update ai key %d: %w", k.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecordAIKeyUse(id int64, success bool, usedAt time.Time) error {
	var err error
	if success {
		_, err = s.db.Exec(`UPDATE ai_keys SET failure_count = 0, last_used_at = $1 WHERE id = $2`, usedAt, id)
	} else {
		_, err = s.db.Exec(`UPDATE ai_keys SET failure_count = failure_count + 1, last_used_at = $1 WHERE id = $2`, usedAt, id)
	}
	if err != nil {
		slog.Error("PostgresStore RecordAIKeyUse failed", "error", err, "id", id, "success", success)
		return fmt.Errorf("failed to record ai key use: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
