package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/npezzotti/go-plaza/internal/database"
	"github.com/npezzotti/go-plaza/internal/types"
	"github.com/teris-io/shortid"
)

var (
	ErrRoomNotFound = database.ErrRoomNotFound
	ErrForbidden    = errors.New("only the host may modify the room")
)

// maxCreateAttempts bounds retries when a generated room id collides with an
// existing one.
const maxCreateAttempts = 3

// Directory owns the durable personal rooms. Rooms are independent of any
// connection: nothing here reacts to a host going offline.
type Directory struct {
	log   *slog.Logger
	store database.RoomStore
	newId func() (string, error)
}

func NewDirectory(logger *slog.Logger, store database.RoomStore) *Directory {
	return &Directory{
		log:   logger,
		store: store,
		newId: shortid.Generate,
	}
}

// GetOrCreateRoom returns the host's active room, creating it on first use.
// Concurrent calls for the same host converge on one room: the store rejects
// a second active room and the loser reads back the winner's.
func (d *Directory) GetOrCreateRoom(ctx context.Context, hostId int64) (types.PersonalRoom, error) {
	room, err := d.store.ActiveRoomByHost(ctx, hostId)
	if err == nil {
		return toPersonalRoom(room), nil
	}
	if !errors.Is(err, database.ErrRoomNotFound) {
		return types.PersonalRoom{}, fmt.Errorf("active room by host: %w", err)
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		roomId, err := d.newId()
		if err != nil {
			return types.PersonalRoom{}, fmt.Errorf("generate room id: %w", err)
		}

		room, err = d.store.CreateRoom(ctx, roomId, hostId)
		if err == nil {
			d.log.Info("created personal room", "room_id", room.RoomId, "host_id", hostId)
			return toPersonalRoom(room), nil
		}
		if !errors.Is(err, database.ErrDuplicateRoom) {
			return types.PersonalRoom{}, fmt.Errorf("create room: %w", err)
		}

		// either another request created the host's room first or the id
		// collided; the read-back tells which
		room, err = d.store.ActiveRoomByHost(ctx, hostId)
		if err == nil {
			d.log.Debug("room creation raced, reusing existing room", "room_id", room.RoomId, "host_id", hostId)
			return toPersonalRoom(room), nil
		}
		if !errors.Is(err, database.ErrRoomNotFound) {
			return types.PersonalRoom{}, fmt.Errorf("active room by host: %w", err)
		}
	}

	return types.PersonalRoom{}, fmt.Errorf("create room for host %d: %w", hostId, database.ErrDuplicateRoom)
}

func (d *Directory) GetRoom(ctx context.Context, roomId string) (types.PersonalRoom, error) {
	room, err := d.store.GetRoom(ctx, roomId)
	if err != nil {
		return types.PersonalRoom{}, err
	}

	return toPersonalRoom(room), nil
}

// ListActiveRooms returns active rooms in creation order.
func (d *Directory) ListActiveRooms(ctx context.Context) ([]types.PersonalRoom, error) {
	dbRooms, err := d.store.ListActiveRooms(ctx)
	if err != nil {
		return nil, err
	}

	rooms := make([]types.PersonalRoom, 0, len(dbRooms))
	for _, r := range dbRooms {
		rooms = append(rooms, toPersonalRoom(r))
	}

	return rooms, nil
}

// DeactivateRoom is the only way a room stops being active.
func (d *Directory) DeactivateRoom(ctx context.Context, roomId string, requesterId int64) error {
	if _, err := d.hostedRoom(ctx, roomId, requesterId); err != nil {
		return err
	}

	if err := d.store.DeactivateRoom(ctx, roomId); err != nil {
		return err
	}

	d.log.Info("deactivated personal room", "room_id", roomId, "host_id", requesterId)
	return nil
}

func (d *Directory) PlaceItem(ctx context.Context, roomId string, requesterId, itemId int64, visible bool) error {
	if _, err := d.hostedRoom(ctx, roomId, requesterId); err != nil {
		return err
	}

	return d.store.UpsertRoomItem(ctx, database.RoomItem{
		RoomId:    roomId,
		ItemId:    itemId,
		IsVisible: visible,
	})
}

func (d *Directory) RemoveItem(ctx context.Context, roomId string, requesterId, itemId int64) error {
	if _, err := d.hostedRoom(ctx, roomId, requesterId); err != nil {
		return err
	}

	return d.store.DeleteRoomItem(ctx, roomId, itemId)
}

func (d *Directory) hostedRoom(ctx context.Context, roomId string, requesterId int64) (database.Room, error) {
	room, err := d.store.GetRoom(ctx, roomId)
	if err != nil {
		return database.Room{}, err
	}

	if room.HostId != requesterId {
		return database.Room{}, ErrForbidden
	}

	return room, nil
}

func toPersonalRoom(r database.Room) types.PersonalRoom {
	items := make([]types.RoomItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = types.RoomItem{ItemId: it.ItemId, IsVisible: it.IsVisible}
	}

	return types.PersonalRoom{
		RoomId:    r.RoomId,
		HostId:    r.HostId,
		IsActive:  r.IsActive,
		Items:     items,
		CreatedAt: r.CreatedAt,
	}
}
