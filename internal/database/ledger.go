package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

func (db *PgGoPlazaRepository) CreateChatRoom(ctx context.Context, params CreateChatRoomParams) (ChatRoom, error) {
	var room ChatRoom
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		err := tx.QueryRowContext(ctx, createChatRoomQuery, params.Kind, now).Scan(
			&room.Id,
			&room.Kind,
			&room.CreatedAt,
			&room.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chat room: %w", err)
		}

		for _, userId := range params.UserIds {
			if _, err := tx.ExecContext(ctx, joinChatRoomQuery, room.Id, userId, now); err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
		}

		return nil
	})

	return room, err
}

func (db *PgGoPlazaRepository) GetChatRoom(ctx context.Context, chatRoomId int64) (ChatRoom, error) {
	var room ChatRoom
	err := db.conn.QueryRowContext(ctx, getChatRoomQuery, chatRoomId).Scan(
		&room.Id,
		&room.Kind,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatRoom{}, ErrChatRoomNotFound
	}

	return room, err
}

func (db *PgGoPlazaRepository) JoinChatRoom(ctx context.Context, chatRoomId, userId int64) error {
	_, err := db.conn.ExecContext(ctx, joinChatRoomQuery, chatRoomId, userId, time.Now().UTC())
	if isPqError(err, pqForeignKeyViolation) {
		return ErrChatRoomNotFound
	}

	return err
}

func (db *PgGoPlazaRepository) ListParticipants(ctx context.Context, chatRoomId int64) ([]Participant, error) {
	rows, err := db.conn.QueryContext(ctx, listParticipantsQuery, chatRoomId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]Participant, 0)
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ChatRoomId, &p.UserId, &p.LastReadMessageId, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (db *PgGoPlazaRepository) ListChatRooms(ctx context.Context, userId int64) ([]ChatRoom, error) {
	rows, err := db.conn.QueryContext(ctx, listChatRoomsQuery, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]ChatRoom, 0)
	for rows.Next() {
		var room ChatRoom
		if err := rows.Scan(&room.Id, &room.Kind, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgGoPlazaRepository) AdvanceWatermark(ctx context.Context, chatRoomId, userId, upto int64) (int64, error) {
	var watermark int64
	err := db.conn.QueryRowContext(ctx, advanceWatermarkQuery, chatRoomId, userId, upto).Scan(&watermark)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotParticipant
	}

	return watermark, err
}

func (db *PgGoPlazaRepository) UnreadCount(ctx context.Context, chatRoomId, userId int64) (int, error) {
	counts, err := db.UnreadCounts(ctx, []int64{chatRoomId}, userId)
	if err != nil {
		return 0, err
	}

	return counts[chatRoomId], nil
}

func (db *PgGoPlazaRepository) UnreadCounts(ctx context.Context, chatRoomIds []int64, userId int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(chatRoomIds))
	if len(chatRoomIds) == 0 {
		return counts, nil
	}

	for _, id := range chatRoomIds {
		counts[id] = 0
	}

	rows, err := db.conn.QueryContext(ctx, unreadCountsQuery, pq.Array(chatRoomIds), userId)
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chatRoomId int64
			count      int
		)
		if err := rows.Scan(&chatRoomId, &count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts[chatRoomId] = count
	}

	return counts, rows.Err()
}
