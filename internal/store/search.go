package store

import "strings"

// SearchMessages finds messages whose body contains query, newest first.
// The snippet marks the first match with << >>.
func (db *DB) SearchMessages(query string, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if query == "" {
		return nil, nil
	}

	q := `
		SELECT conversation_id, msg_id, sender, body, message_type, outbox_id, timestamp
		FROM messages
		WHERE body LIKE ? ESCAPE '\'`
	args := []any{"%" + likeEscaper.Replace(query) + "%"}
	if conversationID != "" {
		q += " AND conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.ConversationID, &r.Message.MsgID, &r.Message.Sender,
			&r.Message.Body, &r.Message.MessageType, &r.Message.OutboxID,
			&r.Message.Timestamp,
		); err != nil {
			return nil, err
		}
		r.Snippet = snippet(r.Message.Body, query, 32)
		results = append(results, r)
	}
	return results, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func snippet(body, query string, radius int) string {
	i := strings.Index(strings.ToLower(body), strings.ToLower(query))
	if i < 0 || i+len(query) > len(body) {
		return body
	}
	start, end := max(i-radius, 0), min(i+len(query)+radius, len(body))
	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(body[start:i])
	b.WriteString("<<")
	b.WriteString(body[i : i+len(query)])
	b.WriteString(">>")
	b.WriteString(body[i+len(query) : end])
	if end < len(body) {
		b.WriteString("...")
	}
	return b.String()
}
