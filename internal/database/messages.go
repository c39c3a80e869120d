package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes a keyword match literally inside a LIKE pattern.
func escapeLike(keyword string) string {
	return likeEscaper.Replace(keyword)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func (db *PgGoPlazaRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, createMessageQuery,
			msg.Scope,
			msg.SenderId,
			nullInt64(msg.ReceiverId),
			nullString(msg.RoomId),
			nullInt64(msg.ChatRoomId),
			msg.Content,
			msg.CreatedAt,
		).Scan(&msg.Id, &msg.CreatedAt)
		if err != nil {
			if isPqError(err, pqForeignKeyViolation) {
				return ErrChatRoomNotFound
			}
			return fmt.Errorf("insert message: %w", err)
		}

		if msg.ChatRoomId != 0 {
			if _, err := tx.ExecContext(ctx, touchChatRoomQuery, msg.ChatRoomId, msg.CreatedAt); err != nil {
				return fmt.Errorf("touch chat room: %w", err)
			}
		}

		return nil
	})

	return msg, err
}

func scanMessages(rows *sql.Rows, capacity int) ([]Message, error) {
	defer rows.Close()

	messages := make([]Message, 0, capacity)
	for rows.Next() {
		var (
			msg    Message
			readAt sql.NullTime
		)
		err := rows.Scan(
			&msg.Id,
			&msg.Scope,
			&msg.SenderId,
			&msg.ReceiverId,
			&msg.RoomId,
			&msg.ChatRoomId,
			&msg.Content,
			&msg.CreatedAt,
			&msg.IsDeleted,
			&msg.IsRead,
			&readAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if readAt.Valid {
			msg.ReadAt = &readAt.Time
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// whereBuilder accumulates AND-ed conditions with positional arguments. Every
// ? in a condition refers to that condition's single argument.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) String() string {
	return strings.Join(w.conds, " AND ")
}

func (db *PgGoPlazaRepository) RecentMessages(ctx context.Context, params RecentParams) ([]Message, error) {
	limit := clampLimit(params.Limit)

	w := &whereBuilder{conds: []string{"NOT is_deleted"}}
	w.add("scope = ?", params.Scope)
	w.add("created_at > ?", params.Since)
	switch params.Scope {
	case "LOCAL_ROOM":
		w.add("room_id = ?", params.RoomId)
	case "CHATROOM":
		w.add("chat_room_id = ?", params.ChatRoomId)
	case "DIRECT":
		w.add("(sender_id = ? OR receiver_id = ?)", params.UserId)
	}
	w.args = append(w.args, limit)

	query := fmt.Sprintf("SELECT %s FROM messages WHERE %s ORDER BY id ASC LIMIT $%d",
		messageColumns, w, len(w.args))

	rows, err := db.conn.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}

	return scanMessages(rows, limit)
}

func (db *PgGoPlazaRepository) PageMessages(ctx context.Context, params PageParams) ([]Message, error) {
	limit := clampLimit(params.Limit)

	w := &whereBuilder{conds: []string{"NOT is_deleted"}}
	if params.Scope != "" {
		w.add("scope = ?", params.Scope)
	}
	if params.SenderId != 0 {
		w.add("sender_id = ?", params.SenderId)
	}
	if params.Keyword != "" {
		w.add(`content ILIKE '%' || ? || '%' ESCAPE '\'`, escapeLike(params.Keyword))
	}
	if params.Before > 0 {
		w.add("id < ?", params.Before)
	}
	w.args = append(w.args, limit)

	query := fmt.Sprintf("SELECT %s FROM messages WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d",
		messageColumns, w, len(w.args))

	rows, err := db.conn.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("page messages: %w", err)
	}

	return scanMessages(rows, limit)
}

func (db *PgGoPlazaRepository) SoftDeleteMessage(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, softDeleteMessageQuery, id)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMessageNotFound
	}

	return nil
}

func (db *PgGoPlazaRepository) MarkDirectRead(ctx context.Context, receiverId, senderId, upto int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx, markDirectReadQuery, receiverId, senderId, upto, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgGoPlazaRepository) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, deleteMessagesBeforeQuery, cutoff)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
