package store

import (
	"database/sql"
	"errors"
)

// MarkRead raises the read watermark of a conversation. A lower id leaves
// the stored watermark untouched.
func (db *DB) MarkRead(conversationID string, msgID uint64) error {
	_, err := db.Exec(`
		INSERT INTO read_markers (conversation_id, last_read_id)
		VALUES (?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_read_id = MAX(read_markers.last_read_id, excluded.last_read_id)`,
		conversationID, msgID)
	return err
}

// ReadMarker returns the read watermark of a conversation, zero when none.
func (db *DB) ReadMarker(conversationID string) (uint64, error) {
	var id uint64
	err := db.QueryRow(`SELECT last_read_id FROM read_markers WHERE conversation_id = ?`, conversationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

// ReadMarkers returns every stored watermark.
func (db *DB) ReadMarkers() (map[string]uint64, error) {
	rows, err := db.Query(`SELECT conversation_id, last_read_id FROM read_markers`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]uint64)
	for rows.Next() {
		var conv string
		var id uint64
		if err := rows.Scan(&conv, &id); err != nil {
			return nil, err
		}
		out[conv] = id
	}
	return out, rows.Err()
}
