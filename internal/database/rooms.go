package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (Room, error) {
	var room Room
	err := row.Scan(
		&room.RoomId,
		&room.HostId,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	return room, err
}

func (db *PgGoPlazaRepository) ActiveRoomByHost(ctx context.Context, hostId int64) (Room, error) {
	room, err := scanRoom(db.conn.QueryRowContext(ctx, activeRoomByHostQuery, hostId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, ErrRoomNotFound
		}
		return Room{}, err
	}

	room.Items, err = db.roomItems(ctx, room.RoomId)
	return room, err
}

func (db *PgGoPlazaRepository) CreateRoom(ctx context.Context, roomId string, hostId int64) (Room, error) {
	room, err := scanRoom(db.conn.QueryRowContext(ctx, createRoomQuery, roomId, hostId, time.Now().UTC()))
	if err != nil {
		if isPqError(err, pqUniqueViolation) {
			return Room{}, ErrDuplicateRoom
		}
		return Room{}, err
	}

	room.Items = []RoomItem{}
	return room, nil
}

func (db *PgGoPlazaRepository) GetRoom(ctx context.Context, roomId string) (Room, error) {
	room, err := scanRoom(db.conn.QueryRowContext(ctx, getRoomQuery, roomId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, ErrRoomNotFound
		}
		return Room{}, err
	}

	room.Items, err = db.roomItems(ctx, room.RoomId)
	return room, err
}

func (db *PgGoPlazaRepository) roomItems(ctx context.Context, roomId string) ([]RoomItem, error) {
	rows, err := db.conn.QueryContext(ctx, roomItemsQuery, roomId)
	if err != nil {
		return nil, fmt.Errorf("query room items: %w", err)
	}
	defer rows.Close()

	items := make([]RoomItem, 0)
	for rows.Next() {
		var item RoomItem
		if err := rows.Scan(&item.RoomId, &item.ItemId, &item.IsVisible); err != nil {
			return nil, fmt.Errorf("scan room item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (db *PgGoPlazaRepository) ListActiveRooms(ctx context.Context) ([]Room, error) {
	query := `
		SELECT
				r.room_id,
				r.host_id,
				r.is_active,
				r.created_at,
				r.updated_at,
				i.item_id,
				i.is_visible
		FROM personal_rooms r
		LEFT JOIN room_items i ON i.room_id = r.room_id
		WHERE r.is_active
		ORDER BY r.created_at, r.room_id, i.item_id;
`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		var (
			room      Room
			itemId    sql.NullInt64
			isVisible sql.NullBool
		)

		err := rows.Scan(
			&room.RoomId,
			&room.HostId,
			&room.IsActive,
			&room.CreatedAt,
			&room.UpdatedAt,
			&itemId,
			&isVisible,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		// rows arrive grouped by room, so a new room id starts a new entry
		if n := len(rooms); n == 0 || rooms[n-1].RoomId != room.RoomId {
			room.Items = make([]RoomItem, 0)
			rooms = append(rooms, room)
		}

		if itemId.Valid {
			last := &rooms[len(rooms)-1]
			last.Items = append(last.Items, RoomItem{
				RoomId:    room.RoomId,
				ItemId:    itemId.Int64,
				IsVisible: isVisible.Bool,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rooms, nil
}

func (db *PgGoPlazaRepository) DeactivateRoom(ctx context.Context, roomId string) error {
	res, err := db.conn.ExecContext(ctx, deactivateRoomQuery, roomId, time.Now().UTC())
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRoomNotFound
	}

	return nil
}

func (db *PgGoPlazaRepository) UpsertRoomItem(ctx context.Context, item RoomItem) error {
	_, err := db.conn.ExecContext(ctx, upsertRoomItemQuery, item.RoomId, item.ItemId, item.IsVisible)
	if isPqError(err, pqForeignKeyViolation) {
		return ErrRoomNotFound
	}

	return err
}

func (db *PgGoPlazaRepository) DeleteRoomItem(ctx context.Context, roomId string, itemId int64) error {
	_, err := db.conn.ExecContext(ctx, deleteRoomItemQuery, roomId, itemId)
	return err
}
