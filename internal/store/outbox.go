package store

import (
	"database/sql"
	"errors"
	"time"
)

// QueueOutbox records a new outbox action in the queued state. Queueing an
// existing outbox id resets it to queued, which is how retries re-enter.
func (db *DB) QueueOutbox(r *OutboxRecord) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (outbox_id, conversation_id, ordinal, kind, body, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(outbox_id) DO UPDATE SET
			status = 'queued',
			error_message = '',
			updated_at = excluded.updated_at`,
		r.OutboxID, r.ConversationID, r.Ordinal, r.Kind, r.Body, now, now)
	return err
}

// MarkOutboxInFlight updates an outbox entry to 'in_flight'.
func (db *DB) MarkOutboxInFlight(outboxID string) error {
	return db.setOutboxStatus(outboxID, "in_flight", "")
}

// MarkOutboxAcked updates an outbox entry to 'acked' with the server message id.
func (db *DB) MarkOutboxAcked(outboxID string, msgID uint64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'acked', msg_id = ?, error_message = '', updated_at = ? WHERE outbox_id = ?`, msgID, now, outboxID)
	return err
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(outboxID, errMsg string) error {
	return db.setOutboxStatus(outboxID, "failed", errMsg)
}

func (db *DB) setOutboxStatus(outboxID, status, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = ?, error_message = ?, updated_at = ? WHERE outbox_id = ?`, status, errMsg, now, outboxID)
	return err
}

// DeleteOutbox forgets an outbox entry.
func (db *DB) DeleteOutbox(outboxID string) error {
	_, err := db.Exec(`DELETE FROM outbox WHERE outbox_id = ?`, outboxID)
	return err
}

// GetOutbox returns one outbox entry, or nil when unknown.
func (db *DB) GetOutbox(outboxID string) (*OutboxRecord, error) {
	row := db.QueryRow(`
		SELECT outbox_id, conversation_id, ordinal, kind, body, status, error_message, msg_id, created_at, updated_at
		FROM outbox WHERE outbox_id = ?`, outboxID)
	r, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// PendingOutbox returns outbox entries that are queued or in flight, oldest first.
func (db *DB) PendingOutbox() ([]OutboxRecord, error) {
	return db.queryOutbox(`status IN ('queued', 'in_flight')`)
}

// UnackedOutbox returns every entry the server has not acknowledged, failed
// ones included, oldest first.
func (db *DB) UnackedOutbox() ([]OutboxRecord, error) {
	return db.queryOutbox(`status != 'acked'`)
}

func (db *DB) queryOutbox(where string) ([]OutboxRecord, error) {
	rows, err := db.Query(`
		SELECT outbox_id, conversation_id, ordinal, kind, body, status, error_message, msg_id, created_at, updated_at
		FROM outbox WHERE ` + where + ` ORDER BY created_at ASC, outbox_id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []OutboxRecord
	for rows.Next() {
		r, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func scanOutbox(s scanner) (*OutboxRecord, error) {
	var r OutboxRecord
	if err := s.Scan(&r.OutboxID, &r.ConversationID, &r.Ordinal, &r.Kind, &r.Body, &r.Status, &r.ErrorMessage, &r.MsgID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
