package database

import (
	"context"
	"time"
)

// RoomStore persists personal rooms and the items placed in them.
type RoomStore interface {
	ActiveRoomByHost(ctx context.Context, hostId int64) (Room, error)
	// CreateRoom returns ErrDuplicateRoom when the host already owns an
	// active room.
	CreateRoom(ctx context.Context, roomId string, hostId int64) (Room, error)
	GetRoom(ctx context.Context, roomId string) (Room, error)
	ListActiveRooms(ctx context.Context) ([]Room, error)
	DeactivateRoom(ctx context.Context, roomId string) error
	UpsertRoomItem(ctx context.Context, item RoomItem) error
	DeleteRoomItem(ctx context.Context, roomId string, itemId int64) error
}

// LedgerStore persists chat rooms, participants and their read watermarks.
type LedgerStore interface {
	CreateChatRoom(ctx context.Context, params CreateChatRoomParams) (ChatRoom, error)
	GetChatRoom(ctx context.Context, chatRoomId int64) (ChatRoom, error)
	JoinChatRoom(ctx context.Context, chatRoomId, userId int64) error
	ListParticipants(ctx context.Context, chatRoomId int64) ([]Participant, error)
	ListChatRooms(ctx context.Context, userId int64) ([]ChatRoom, error)
	// AdvanceWatermark moves last_read_message_id forward to upto, capped at
	// the room's newest message id, and returns the stored value, which never
	// decreases.
	AdvanceWatermark(ctx context.Context, chatRoomId, userId, upto int64) (int64, error)
	UnreadCount(ctx context.Context, chatRoomId, userId int64) (int, error)
	UnreadCounts(ctx context.Context, chatRoomIds []int64, userId int64) (map[int64]int, error)
}

// MessageStore is the append-only message log.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg Message) (Message, error)
	RecentMessages(ctx context.Context, params RecentParams) ([]Message, error)
	PageMessages(ctx context.Context, params PageParams) ([]Message, error)
	SoftDeleteMessage(ctx context.Context, id int64) error
	MarkDirectRead(ctx context.Context, receiverId, senderId, upto int64) (int64, error)
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type GoPlazaRepository interface {
	Ping(ctx context.Context) error
	Close() error
	RoomStore
	LedgerStore
	MessageStore
}
