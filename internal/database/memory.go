package database

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

type participantKey struct {
	chatRoomId int64
	userId     int64
}

// MemoryGoPlazaRepository keeps all state in process memory. It honours the
// same constraints as the Postgres schema and backs the memory driver used
// for local development.
type MemoryGoPlazaRepository struct {
	mu           sync.RWMutex
	rooms        map[string]*Room
	roomOrder    []string
	chatRooms    map[int64]*ChatRoom
	participants map[participantKey]*Participant
	messages     []*Message
	nextChatRoom int64
	nextMessage  int64
	now          func() time.Time
}

func NewMemoryGoPlazaRepository() *MemoryGoPlazaRepository {
	return &MemoryGoPlazaRepository{
		rooms:        make(map[string]*Room),
		chatRooms:    make(map[int64]*ChatRoom),
		participants: make(map[participantKey]*Participant),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryGoPlazaRepository) Ping(context.Context) error { return nil }

func (m *MemoryGoPlazaRepository) Close() error { return nil }

func copyRoom(r *Room) Room {
	room := *r
	room.Items = slices.Clone(r.Items)
	if room.Items == nil {
		room.Items = []RoomItem{}
	}
	return room
}

func (m *MemoryGoPlazaRepository) ActiveRoomByHost(_ context.Context, hostId int64) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r := m.activeRoomByHost(hostId); r != nil {
		return copyRoom(r), nil
	}
	return Room{}, ErrRoomNotFound
}

func (m *MemoryGoPlazaRepository) activeRoomByHost(hostId int64) *Room {
	for _, id := range m.roomOrder {
		if r := m.rooms[id]; r.HostId == hostId && r.IsActive {
			return r
		}
	}
	return nil
}

func (m *MemoryGoPlazaRepository) CreateRoom(_ context.Context, roomId string, hostId int64) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomId]; ok || m.activeRoomByHost(hostId) != nil {
		return Room{}, ErrDuplicateRoom
	}

	now := m.now()
	r := &Room{
		RoomId:    roomId,
		HostId:    hostId,
		IsActive:  true,
		Items:     []RoomItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.rooms[roomId] = r
	m.roomOrder = append(m.roomOrder, roomId)

	return copyRoom(r), nil
}

func (m *MemoryGoPlazaRepository) GetRoom(_ context.Context, roomId string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.rooms[roomId]; ok {
		return copyRoom(r), nil
	}
	return Room{}, ErrRoomNotFound
}

func (m *MemoryGoPlazaRepository) ListActiveRooms(context.Context) ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]Room, 0)
	for _, id := range m.roomOrder {
		if r := m.rooms[id]; r.IsActive {
			rooms = append(rooms, copyRoom(r))
		}
	}
	return rooms, nil
}

func (m *MemoryGoPlazaRepository) DeactivateRoom(_ context.Context, roomId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomId]
	if !ok {
		return ErrRoomNotFound
	}
	r.IsActive = false
	r.UpdatedAt = m.now()
	return nil
}

func (m *MemoryGoPlazaRepository) UpsertRoomItem(_ context.Context, item RoomItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[item.RoomId]
	if !ok {
		return ErrRoomNotFound
	}

	for i := range r.Items {
		if r.Items[i].ItemId == item.ItemId {
			r.Items[i].IsVisible = item.IsVisible
			return nil
		}
	}

	r.Items = append(r.Items, item)
	sort.Slice(r.Items, func(i, j int) bool { return r.Items[i].ItemId < r.Items[j].ItemId })
	return nil
}

func (m *MemoryGoPlazaRepository) DeleteRoomItem(_ context.Context, roomId string, itemId int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[roomId]; ok {
		r.Items = slices.DeleteFunc(r.Items, func(it RoomItem) bool { return it.ItemId == itemId })
	}
	return nil
}

func (m *MemoryGoPlazaRepository) CreateChatRoom(_ context.Context, params CreateChatRoomParams) (ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextChatRoom++
	now := m.now()
	room := &ChatRoom{
		Id:        m.nextChatRoom,
		Kind:      params.Kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.chatRooms[room.Id] = room

	for _, userId := range params.UserIds {
		m.join(room.Id, userId, now)
	}

	return *room, nil
}

func (m *MemoryGoPlazaRepository) join(chatRoomId, userId int64, now time.Time) {
	key := participantKey{chatRoomId, userId}
	if _, ok := m.participants[key]; !ok {
		m.participants[key] = &Participant{
			ChatRoomId: chatRoomId,
			UserId:     userId,
			JoinedAt:   now,
		}
	}
}

func (m *MemoryGoPlazaRepository) GetChatRoom(_ context.Context, chatRoomId int64) (ChatRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if room, ok := m.chatRooms[chatRoomId]; ok {
		return *room, nil
	}
	return ChatRoom{}, ErrChatRoomNotFound
}

func (m *MemoryGoPlazaRepository) JoinChatRoom(_ context.Context, chatRoomId, userId int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chatRooms[chatRoomId]; !ok {
		return ErrChatRoomNotFound
	}
	m.join(chatRoomId, userId, m.now())
	return nil
}

func (m *MemoryGoPlazaRepository) ListParticipants(_ context.Context, chatRoomId int64) ([]Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	participants := make([]Participant, 0)
	for key, p := range m.participants {
		if key.chatRoomId == chatRoomId {
			participants = append(participants, *p)
		}
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].UserId < participants[j].UserId
		}
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
	return participants, nil
}

func (m *MemoryGoPlazaRepository) ListChatRooms(_ context.Context, userId int64) ([]ChatRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]ChatRoom, 0)
	for key := range m.participants {
		if key.userId == userId {
			rooms = append(rooms, *m.chatRooms[key.chatRoomId])
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].UpdatedAt.Equal(rooms[j].UpdatedAt) {
			return rooms[i].Id > rooms[j].Id
		}
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

func (m *MemoryGoPlazaRepository) AdvanceWatermark(_ context.Context, chatRoomId, userId, upto int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[participantKey{chatRoomId, userId}]
	if !ok {
		return 0, ErrNotParticipant
	}
	var newest int64
	for _, msg := range m.messages {
		if msg.Scope == "CHATROOM" && msg.ChatRoomId == chatRoomId {
			newest = max(newest, msg.Id)
		}
	}

	p.LastReadMessageId = max(p.LastReadMessageId, min(upto, newest))
	return p.LastReadMessageId, nil
}

func (m *MemoryGoPlazaRepository) UnreadCount(ctx context.Context, chatRoomId, userId int64) (int, error) {
	counts, err := m.UnreadCounts(ctx, []int64{chatRoomId}, userId)
	if err != nil {
		return 0, err
	}
	return counts[chatRoomId], nil
}

func (m *MemoryGoPlazaRepository) UnreadCounts(_ context.Context, chatRoomIds []int64, userId int64) (map[int64]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[int64]int, len(chatRoomIds))
	floors := make(map[int64]int64, len(chatRoomIds))
	for _, id := range chatRoomIds {
		counts[id] = 0
		if p, ok := m.participants[participantKey{id, userId}]; ok {
			floors[id] = p.LastReadMessageId
		}
	}

	for _, msg := range m.messages {
		if msg.Scope != "CHATROOM" || msg.IsDeleted || msg.SenderId == userId {
			continue
		}
		if _, ok := counts[msg.ChatRoomId]; ok && msg.Id > floors[msg.ChatRoomId] {
			counts[msg.ChatRoomId]++
		}
	}
	return counts, nil
}

func (m *MemoryGoPlazaRepository) CreateMessage(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var chatRoom *ChatRoom
	if msg.ChatRoomId != 0 {
		var ok bool
		if chatRoom, ok = m.chatRooms[msg.ChatRoomId]; !ok {
			return Message{}, ErrChatRoomNotFound
		}
	}

	m.nextMessage++
	msg.Id = m.nextMessage
	msg.IsDeleted = false
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	stored := msg
	m.messages = append(m.messages, &stored)

	if chatRoom != nil {
		chatRoom.UpdatedAt = msg.CreatedAt
	}
	return msg, nil
}

func (m *MemoryGoPlazaRepository) RecentMessages(_ context.Context, params RecentParams) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := clampLimit(params.Limit)
	messages := make([]Message, 0)
	for _, msg := range m.messages {
		if len(messages) == limit {
			break
		}
		if msg.IsDeleted || msg.Scope != params.Scope || !msg.CreatedAt.After(params.Since) {
			continue
		}

		switch params.Scope {
		case "LOCAL_ROOM":
			if msg.RoomId != params.RoomId {
				continue
			}
		case "CHATROOM":
			if msg.ChatRoomId != params.ChatRoomId {
				continue
			}
		case "DIRECT":
			if msg.SenderId != params.UserId && msg.ReceiverId != params.UserId {
				continue
			}
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

func (m *MemoryGoPlazaRepository) PageMessages(_ context.Context, params PageParams) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := clampLimit(params.Limit)
	keyword := strings.ToLower(params.Keyword)

	matched := make([]Message, 0)
	for _, msg := range m.messages {
		switch {
		case msg.IsDeleted,
			params.Scope != "" && msg.Scope != params.Scope,
			params.SenderId != 0 && msg.SenderId != params.SenderId,
			keyword != "" && !strings.Contains(strings.ToLower(msg.Content), keyword),
			params.Before > 0 && msg.Id >= params.Before:
			continue
		}
		matched = append(matched, *msg)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].Id > matched[j].Id
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryGoPlazaRepository) SoftDeleteMessage(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.messages {
		if msg.Id == id {
			msg.IsDeleted = true
			return nil
		}
	}
	return ErrMessageNotFound
}

func (m *MemoryGoPlazaRepository) MarkDirectRead(_ context.Context, receiverId, senderId, upto int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	now := m.now()
	for _, msg := range m.messages {
		if msg.Scope == "DIRECT" && msg.ReceiverId == receiverId && msg.SenderId == senderId &&
			msg.Id <= upto && !msg.IsRead {
			msg.IsRead = true
			msg.ReadAt = &now
			n++
		}
	}
	return n, nil
}

func (m *MemoryGoPlazaRepository) DeleteMessagesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.messages)
	m.messages = slices.DeleteFunc(m.messages, func(msg *Message) bool {
		return msg.CreatedAt.Before(cutoff)
	})
	return int64(before - len(m.messages)), nil
}
