package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockGoPlazaRepository struct {
	mock.Mock
}

func (m *MockGoPlazaRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockGoPlazaRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoPlazaRepository) ActiveRoomByHost(ctx context.Context, hostId int64) (Room, error) {
	args := m.Called(ctx, hostId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoPlazaRepository) CreateRoom(ctx context.Context, roomId string, hostId int64) (Room, error) {
	args := m.Called(ctx, roomId, hostId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoPlazaRepository) GetRoom(ctx context.Context, roomId string) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoPlazaRepository) ListActiveRooms(ctx context.Context) ([]Room, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockGoPlazaRepository) DeactivateRoom(ctx context.Context, roomId string) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}
func (m *MockGoPlazaRepository) UpsertRoomItem(ctx context.Context, item RoomItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}
func (m *MockGoPlazaRepository) DeleteRoomItem(ctx context.Context, roomId string, itemId int64) error {
	args := m.Called(ctx, roomId, itemId)
	return args.Error(0)
}
func (m *MockGoPlazaRepository) CreateChatRoom(ctx context.Context, params CreateChatRoomParams) (ChatRoom, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(ChatRoom), args.Error(1)
}
func (m *MockGoPlazaRepository) GetChatRoom(ctx context.Context, chatRoomId int64) (ChatRoom, error) {
	args := m.Called(ctx, chatRoomId)
	return args.Get(0).(ChatRoom), args.Error(1)
}
func (m *MockGoPlazaRepository) JoinChatRoom(ctx context.Context, chatRoomId, userId int64) error {
	args := m.Called(ctx, chatRoomId, userId)
	return args.Error(0)
}
func (m *MockGoPlazaRepository) ListParticipants(ctx context.Context, chatRoomId int64) ([]Participant, error) {
	args := m.Called(ctx, chatRoomId)
	return args.Get(0).([]Participant), args.Error(1)
}
func (m *MockGoPlazaRepository) ListChatRooms(ctx context.Context, userId int64) ([]ChatRoom, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]ChatRoom), args.Error(1)
}
func (m *MockGoPlazaRepository) AdvanceWatermark(ctx context.Context, chatRoomId, userId, upto int64) (int64, error) {
	args := m.Called(ctx, chatRoomId, userId, upto)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockGoPlazaRepository) UnreadCount(ctx context.Context, chatRoomId, userId int64) (int, error) {
	args := m.Called(ctx, chatRoomId, userId)
	return args.Int(0), args.Error(1)
}
func (m *MockGoPlazaRepository) UnreadCounts(ctx context.Context, chatRoomIds []int64, userId int64) (map[int64]int, error) {
	args := m.Called(ctx, chatRoomIds, userId)
	if counts, ok := args.Get(0).(map[int64]int); ok {
		return counts, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGoPlazaRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoPlazaRepository) RecentMessages(ctx context.Context, params RecentParams) ([]Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockGoPlazaRepository) PageMessages(ctx context.Context, params PageParams) ([]Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockGoPlazaRepository) SoftDeleteMessage(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockGoPlazaRepository) MarkDirectRead(ctx context.Context, receiverId, senderId, upto int64) (int64, error) {
	args := m.Called(ctx, receiverId, senderId, upto)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockGoPlazaRepository) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
