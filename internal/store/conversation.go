package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// UpsertConversation inserts or updates a conversation summary. The stored
// timestamp never moves backwards.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, tlf_name, team_type, channel_name, participants, trust_state, muted, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tlf_name = CASE WHEN excluded.tlf_name != '' THEN excluded.tlf_name ELSE conversations.tlf_name END,
			team_type = excluded.team_type,
			channel_name = CASE WHEN excluded.channel_name != '' THEN excluded.channel_name ELSE conversations.channel_name END,
			participants = CASE WHEN excluded.participants != '' THEN excluded.participants ELSE conversations.participants END,
			trust_state = excluded.trust_state,
			muted = excluded.muted,
			timestamp = MAX(conversations.timestamp, excluded.timestamp),
			updated_at = excluded.updated_at`,
		c.ID, c.TLFName, c.TeamType, c.ChannelName, strings.Join(c.Participants, ","), c.TrustState, c.Muted, c.Timestamp, now)
	return err
}

// ListConversations returns conversations sorted by timestamp descending.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, tlf_name, team_type, channel_name, participants, trust_state, muted, timestamp
		FROM conversations
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation, or nil when unknown.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	row := db.QueryRow(`
		SELECT id, tlf_name, team_type, channel_name, participants, trust_state, muted, timestamp
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteConversation forgets a conversation together with its messages and
// read marker.
func (db *DB) DeleteConversation(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, q := range []string{
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM read_markers WHERE conversation_id = ?`,
		`DELETE FROM conversations WHERE id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*Conversation, error) {
	var c Conversation
	var participants string
	if err := s.Scan(&c.ID, &c.TLFName, &c.TeamType, &c.ChannelName, &participants, &c.TrustState, &c.Muted, &c.Timestamp); err != nil {
		return nil, err
	}
	if participants != "" {
		c.Participants = strings.Split(participants, ",")
	}
	return &c, nil
}
