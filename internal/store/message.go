package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on conversation_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender, body, message_type, outbox_id, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender = excluded.sender,
			body = excluded.body,
			message_type = excluded.message_type,
			outbox_id = CASE WHEN excluded.outbox_id != '' THEN excluded.outbox_id ELSE messages.outbox_id END`,
		m.ConversationID, m.MsgID, m.Sender, m.Body, m.MessageType, m.OutboxID, m.Timestamp, now)
	return err
}

// UpdateMessageBody replaces the body of an edited message.
func (db *DB) UpdateMessageBody(conversationID string, msgID uint64, body string) error {
	_, err := db.Exec(`UPDATE messages SET body = ? WHERE conversation_id = ? AND msg_id = ?`, body, conversationID, msgID)
	return err
}

// DeleteMessages removes messages by id.
func (db *DB) DeleteMessages(conversationID string, msgIDs []uint64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range msgIDs {
		if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ? AND msg_id = ?`, conversationID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListMessages returns messages of a conversation older than beforeID,
// newest first. A zero beforeID starts at the newest message.
func (db *DB) ListMessages(conversationID string, beforeID uint64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT conversation_id, msg_id, sender, body, message_type, outbox_id, timestamp
		FROM messages
		WHERE conversation_id = ?`
	args := []any{conversationID}
	if beforeID > 0 {
		q += " AND msg_id < ?"
		args = append(args, beforeID)
	}
	q += " ORDER BY msg_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ConversationID, &m.MsgID, &m.Sender, &m.Body, &m.MessageType, &m.OutboxID, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
