package database

import "time"

type Room struct {
	RoomId    string
	HostId    int64
	IsActive  bool
	Items     []RoomItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RoomItem struct {
	RoomId    string
	ItemId    int64
	IsVisible bool
}

type ChatRoom struct {
	Id        int64
	Kind      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Participant struct {
	ChatRoomId        int64
	UserId            int64
	LastReadMessageId int64
	JoinedAt          time.Time
}

type Message struct {
	Id         int64
	Scope      string
	SenderId   int64
	ReceiverId int64
	RoomId     string
	ChatRoomId int64
	Content    string
	CreatedAt  time.Time
	IsDeleted  bool
	IsRead     bool
	ReadAt     *time.Time
}

// RecentParams selects non-deleted messages of one scope created after Since.
// RoomId, ChatRoomId and UserId key the LOCAL_ROOM, CHATROOM and DIRECT
// scopes respectively; PLAZA takes no key.
type RecentParams struct {
	Scope      string
	RoomId     string
	ChatRoomId int64
	UserId     int64
	Since      time.Time
	Limit      int
}

// PageParams filters message history. Zero values disable a filter.
// Before is an exclusive message id cursor.
type PageParams struct {
	Scope    string
	SenderId int64
	Keyword  string
	Before   int64
	Limit    int
}

type CreateChatRoomParams struct {
	Kind    string
	UserIds []int64
}
