package rooms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/npezzotti/go-plaza/internal/database"
	"github.com/npezzotti/go-plaza/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T, store database.RoomStore) *Directory {
	d := NewDirectory(testutil.TestLogger(t), store)
	var n atomic.Int64
	d.newId = func() (string, error) {
		return fmt.Sprintf("room-%d", n.Add(1)), nil
	}
	return d
}

func TestGetOrCreateRoom_ReusesRoomAcrossReconnects(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t, database.NewMemoryGoPlazaRepository())

	first, err := d.GetOrCreateRoom(ctx, 42)
	require.NoError(t, err)

	second, err := d.GetOrCreateRoom(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, first.RoomId, second.RoomId, "expected the host's existing room to be reused")

	rooms, err := d.ListActiveRooms(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestGetOrCreateRoom_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryGoPlazaRepository()
	d := newTestDirectory(t, repo)

	const callers = 16
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := d.GetOrCreateRoom(ctx, 7)
			assert.NoError(t, err)
			ids[i] = room.RoomId
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id, "expected every caller to observe the same room")
	}

	rooms, err := repo.ListActiveRooms(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1, "expected exactly one room for the host")
}

func TestGetOrCreateRoom_ResolvesDuplicateToExisting(t *testing.T) {
	ctx := context.Background()
	store := &database.MockGoPlazaRepository{}
	defer store.AssertExpectations(t)

	existing := database.Room{RoomId: "winner", HostId: 3, IsActive: true}
	store.On("ActiveRoomByHost", ctx, int64(3)).Return(database.Room{}, database.ErrRoomNotFound).Once()
	store.On("CreateRoom", ctx, "room-1", int64(3)).Return(database.Room{}, database.ErrDuplicateRoom).Once()
	store.On("ActiveRoomByHost", ctx, int64(3)).Return(existing, nil).Once()

	d := newTestDirectory(t, store)
	room, err := d.GetOrCreateRoom(ctx, 3)
	assert.NoError(t, err, "expected the conflict to be hidden from the caller")
	assert.Equal(t, "winner", room.RoomId)
}

func TestGetOrCreateRoom_RetriesIdCollision(t *testing.T) {
	ctx := context.Background()
	store := &database.MockGoPlazaRepository{}
	defer store.AssertExpectations(t)

	store.On("ActiveRoomByHost", ctx, int64(3)).Return(database.Room{}, database.ErrRoomNotFound).Twice()
	store.On("CreateRoom", ctx, "room-1", int64(3)).Return(database.Room{}, database.ErrDuplicateRoom).Once()
	store.On("CreateRoom", ctx, "room-2", int64(3)).Return(database.Room{RoomId: "room-2", HostId: 3, IsActive: true}, nil).Once()

	d := newTestDirectory(t, store)
	room, err := d.GetOrCreateRoom(ctx, 3)
	assert.NoError(t, err)
	assert.Equal(t, "room-2", room.RoomId)
}

func TestGetOrCreateRoom_StorageFailure(t *testing.T) {
	ctx := context.Background()
	store := &database.MockGoPlazaRepository{}
	defer store.AssertExpectations(t)

	dbErr := errors.New("connection refused")
	store.On("ActiveRoomByHost", ctx, int64(3)).Return(database.Room{}, dbErr).Once()

	d := newTestDirectory(t, store)
	_, err := d.GetOrCreateRoom(ctx, 3)
	assert.ErrorIs(t, err, dbErr, "expected storage errors to propagate")
}

func TestDeactivateRoom(t *testing.T) {
	ctx := context.Background()
	tcases := []struct {
		name        string
		requesterId int64
		roomId      string
		expectedErr error
	}{
		{
			name:        "host deactivates",
			requesterId: 1,
			expectedErr: nil,
		},
		{
			name:        "non-host is rejected",
			requesterId: 2,
			expectedErr: ErrForbidden,
		},
		{
			name:        "unknown room",
			requesterId: 1,
			roomId:      "missing",
			expectedErr: ErrRoomNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			d := newTestDirectory(t, database.NewMemoryGoPlazaRepository())
			room, err := d.GetOrCreateRoom(ctx, 1)
			require.NoError(t, err)

			roomId := room.RoomId
			if tc.roomId != "" {
				roomId = tc.roomId
			}

			err = d.DeactivateRoom(ctx, roomId, tc.requesterId)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			assert.NoError(t, err)

			rooms, err := d.ListActiveRooms(ctx)
			require.NoError(t, err)
			assert.Empty(t, rooms, "expected deactivated room to leave the listing")

			next, err := d.GetOrCreateRoom(ctx, 1)
			require.NoError(t, err)
			assert.NotEqual(t, room.RoomId, next.RoomId, "expected a fresh room after deactivation")
		})
	}
}

func TestPlaceAndRemoveItem(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t, database.NewMemoryGoPlazaRepository())

	room, err := d.GetOrCreateRoom(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, d.PlaceItem(ctx, room.RoomId, 1, 10, true))
	require.NoError(t, d.PlaceItem(ctx, room.RoomId, 1, 10, false))
	assert.ErrorIs(t, d.PlaceItem(ctx, room.RoomId, 2, 11, true), ErrForbidden)

	got, err := d.GetRoom(ctx, room.RoomId)
	require.NoError(t, err)
	if assert.Len(t, got.Items, 1) {
		assert.False(t, got.Items[0].IsVisible)
	}

	require.NoError(t, d.RemoveItem(ctx, room.RoomId, 1, 10))
	got, err = d.GetRoom(ctx, room.RoomId)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestDirectory_UsesStoreOnlyThroughContract(t *testing.T) {
	store := &database.MockGoPlazaRepository{}
	defer store.AssertExpectations(t)

	store.On("ListActiveRooms", mock.Anything).Return([]database.Room{
		{RoomId: "a", HostId: 1, IsActive: true, Items: []database.RoomItem{{RoomId: "a", ItemId: 3, IsVisible: true}}},
	}, nil).Once()

	d := newTestDirectory(t, store)
	rooms, err := d.ListActiveRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, int64(3), rooms[0].Items[0].ItemId)
}
