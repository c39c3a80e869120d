package types

import (
	"time"
)

// Identity is the authenticated user bound to a connection at handshake time.
type Identity struct {
	UserId      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type Session struct {
	SessionId   string    `json:"session_id"`
	UserId      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	ConnectedAt time.Time `json:"connected_at"`
}

// PersonalRoom and RoomItem are broadcast on the rooms topic, hence the
// camelCase wire names.
type RoomItem struct {
	ItemId    int64 `json:"itemId"`
	IsVisible bool  `json:"isVisible"`
}

type PersonalRoom struct {
	RoomId    string     `json:"roomId"`
	HostId    int64      `json:"hostId"`
	IsActive  bool       `json:"isActive"`
	Items     []RoomItem `json:"items"`
	CreatedAt time.Time  `json:"-"`
}

type ChatRoomKind string

const (
	ChatRoomDirect ChatRoomKind = "DIRECT"
	ChatRoomGroup  ChatRoomKind = "GROUP"
)

type ChatRoom struct {
	ChatRoomId  int64        `json:"chat_room_id"`
	Kind        ChatRoomKind `json:"kind"`
	UnreadCount int          `json:"unread_count"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type ChatParticipant struct {
	ChatRoomId        int64 `json:"chat_room_id"`
	UserId            int64 `json:"user_id"`
	LastReadMessageId int64 `json:"last_read_message_id"`
}

type Scope string

const (
	ScopePlaza     Scope = "PLAZA"
	ScopeLocalRoom Scope = "LOCAL_ROOM"
	ScopeDirect    Scope = "DIRECT"
	ScopeChatRoom  Scope = "CHATROOM"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopePlaza, ScopeLocalRoom, ScopeDirect, ScopeChatRoom:
		return true
	}
	return false
}

type Message struct {
	Id         int64      `json:"id"`
	Scope      Scope      `json:"scope"`
	SenderId   int64      `json:"sender_id"`
	ReceiverId int64      `json:"receiver_id,omitempty"`
	RoomId     string     `json:"room_id,omitempty"`
	ChatRoomId int64      `json:"chat_room_id,omitempty"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
	IsRead     bool       `json:"is_read,omitempty"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

type PresenceAction string

const (
	ActionJoin  PresenceAction = "join"
	ActionLeave PresenceAction = "leave"
)

// PresenceEvent is published on every session-level join or leave.
// Timestamp is in epoch milliseconds.
type PresenceEvent struct {
	UserId      int64          `json:"userId"`
	DisplayName string         `json:"displayName"`
	Action      PresenceAction `json:"action"`
	Timestamp   int64          `json:"timestamp"`
}
