package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/optichat/optichat/internal/models"
)

// nilIfZero returns nil for a nil/zero time so nullable columns stay NULL.
func nilIfZero(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBot(s scanner) (models.Bot, error) {
	var b models.Bot
	err := s.Scan(&b.ID, &b.Name, &b.UUID, &b.PhoneNumberID, &b.AccessToken, &b.VerifyToken, &b.IsActive, &b.CreatedAt)
	if err != nil {
		return b, fmt.Errorf("scan bot failed: %w", err)
	}
	return b, nil
}

func scanFlow(s scanner) (models.Flow, error) {
	var f models.Flow
	var def []byte
	err := s.Scan(&f.ID, &f.BotID, &f.Name, &def, &f.IsActive, &f.UpdatedAt)
	if err != nil {
		return f, fmt.Errorf("scan flow failed: %w", err)
	}
	f.Definition = def
	return f, nil
}

func scanWaUser(s scanner) (models.WaUser, error) {
	var u models.WaUser
	var expires, lastMsg, lastIn, welcomed sql.NullTime
	err := s.Scan(&u.BotID, &u.WaID, &u.Name, &u.FlowNode, &u.HumanRequested, &u.HumanTimeoutMin, &expires, &lastMsg, &lastIn, &welcomed)
	if err != nil {
		return u, fmt.Errorf("scan wa_user failed: %w", err)
	}
	u.HumanExpiresAt = timePtr(expires)
	u.LastMessageAt = timePtr(lastMsg)
	u.LastInAt = timePtr(lastIn)
	u.WelcomedAt = timePtr(welcomed)
	return u, nil
}

func scanMessageLog(s scanner) (models.MessageLog, error) {
	var m models.MessageLog
	var payload []byte
	err := s.Scan(&m.ID, &m.BotID, &m.Direction, &m.WaFrom, &m.WaTo, &m.MessageType, &payload, &m.Status, &m.Error, &m.CreatedAt)
	if err != nil {
		return m, fmt.Errorf("scan message log failed: %w", err)
	}
	m.Payload = payload
	return m, nil
}

func scanAIKey(s scanner) (models.AIKey, error) {
	var k models.AIKey
	var lastUsed sql.NullTime
	err := s.Scan(&k.ID, &k.Provider, &k.Name, &k.APIKey, &k.IsActive, &k.Priority, &k.FailureCount, &lastUsed)
	if err != nil {
		return k, fmt.Errorf("scan ai key failed: %w", err)
	}
	k.LastUsedAt = timePtr(lastUsed)
	return k, nil
}

func collectWaUsers(rows *sql.Rows) ([]models.WaUser, error) {
	defer rows.Close()
	var out []models.WaUser
	for rows.Next() {
		u, err := scanWaUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func collectAIKeys(rows *sql.Rows) ([]models.AIKey, error) {
	defer rows.Close()
	var out []models.AIKey
	for rows.Next() {
		k, err := scanAIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func collectMessageLogs(rows *sql.Rows) ([]models.MessageLog, error) {
	defer rows.Close()
	var out []models.MessageLog
	for rows.Next() {
		m, err := scanMessageLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func emptyJSON(p []byte) []byte {
	if len(p) == 0 {
		return []byte("{}")
	}
	return p
}
