// Package chat implements the chat membership ledger and the message log.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/go-plaza/internal/database"
	"github.com/npezzotti/go-plaza/internal/types"
)

const maxContentLength = 2000

var (
	ErrInvalidMessage   = errors.New("invalid message")
	ErrInvalidChatRoom  = errors.New("invalid chat room")
	ErrChatRoomNotFound = database.ErrChatRoomNotFound
	ErrNotParticipant   = database.ErrNotParticipant
	ErrMessageNotFound  = database.ErrMessageNotFound
)

type Service struct {
	log      *slog.Logger
	ledger   database.LedgerStore
	messages database.MessageStore
}

func NewService(logger *slog.Logger, ledger database.LedgerStore, messages database.MessageStore) *Service {
	return &Service{
		log:      logger,
		ledger:   ledger,
		messages: messages,
	}
}

// OpenChatRoom creates a chat room with the given members. A DIRECT room
// holds exactly two distinct users.
func (s *Service) OpenChatRoom(ctx context.Context, kind types.ChatRoomKind, userIds []int64) (types.ChatRoom, error) {
	members := slices.Clone(userIds)
	slices.Sort(members)
	members = slices.Compact(members)

	switch kind {
	case types.ChatRoomDirect:
		if len(members) != 2 {
			return types.ChatRoom{}, fmt.Errorf("%w: direct chat needs two distinct users", ErrInvalidChatRoom)
		}
	case types.ChatRoomGroup:
		if len(members) == 0 {
			return types.ChatRoom{}, fmt.Errorf("%w: group chat needs members", ErrInvalidChatRoom)
		}
	default:
		return types.ChatRoom{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidChatRoom, kind)
	}

	room, err := s.ledger.CreateChatRoom(ctx, database.CreateChatRoomParams{
		Kind:    string(kind),
		UserIds: members,
	})
	if err != nil {
		return types.ChatRoom{}, err
	}

	return toChatRoom(room, 0), nil
}

// Join adds a participant; joining twice is a no-op.
func (s *Service) Join(ctx context.Context, chatRoomId, userId int64) error {
	return s.admit(ctx, chatRoomId, userId)
}

// admit joins userId to a GROUP room. DIRECT rooms are closed to anyone but
// their two members.
func (s *Service) admit(ctx context.Context, chatRoomId, userId int64) error {
	room, err := s.ledger.GetChatRoom(ctx, chatRoomId)
	if err != nil {
		return err
	}

	if types.ChatRoomKind(room.Kind) == types.ChatRoomDirect {
		return s.RequireParticipant(ctx, chatRoomId, userId)
	}

	return s.ledger.JoinChatRoom(ctx, chatRoomId, userId)
}

// RequireParticipant returns ErrNotParticipant unless userId is a member of
// the chat room.
func (s *Service) RequireParticipant(ctx context.Context, chatRoomId, userId int64) error {
	if _, err := s.ledger.GetChatRoom(ctx, chatRoomId); err != nil {
		return err
	}

	participants, err := s.ledger.ListParticipants(ctx, chatRoomId)
	if err != nil {
		return err
	}

	for _, p := range participants {
		if p.UserId == userId {
			return nil
		}
	}
	return ErrNotParticipant
}

func (s *Service) Participants(ctx context.Context, chatRoomId int64) ([]types.ChatParticipant, error) {
	dbParticipants, err := s.ledger.ListParticipants(ctx, chatRoomId)
	if err != nil {
		return nil, err
	}

	participants := make([]types.ChatParticipant, 0, len(dbParticipants))
	for _, p := range dbParticipants {
		participants = append(participants, types.ChatParticipant{
			ChatRoomId:        p.ChatRoomId,
			UserId:            p.UserId,
			LastReadMessageId: p.LastReadMessageId,
		})
	}

	return participants, nil
}

// ChatRooms lists the user's chat rooms, most recently active first, with
// their unread counts resolved in one batch.
func (s *Service) ChatRooms(ctx context.Context, userId int64) ([]types.ChatRoom, error) {
	dbRooms, err := s.ledger.ListChatRooms(ctx, userId)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(dbRooms))
	for i, r := range dbRooms {
		ids[i] = r.Id
	}

	counts, err := s.UnreadCounts(ctx, ids, userId)
	if err != nil {
		return nil, err
	}

	rooms := make([]types.ChatRoom, 0, len(dbRooms))
	for _, r := range dbRooms {
		rooms = append(rooms, toChatRoom(r, counts[r.Id]))
	}

	return rooms, nil
}

// MarkRead advances the user's read watermark and returns the stored value.
// A smaller uptoMessageId leaves the watermark unchanged; a larger one than
// the room's newest message is clamped to it.
func (s *Service) MarkRead(ctx context.Context, chatRoomId, userId, uptoMessageId int64) (int64, error) {
	if uptoMessageId < 0 {
		return 0, fmt.Errorf("%w: negative message id", ErrInvalidMessage)
	}

	return s.ledger.AdvanceWatermark(ctx, chatRoomId, userId, uptoMessageId)
}

func (s *Service) UnreadCount(ctx context.Context, chatRoomId, userId int64) (int, error) {
	return s.ledger.UnreadCount(ctx, chatRoomId, userId)
}

// UnreadCounts resolves the unread counts of many rooms in a single store
// call. Every requested room is present in the result.
func (s *Service) UnreadCounts(ctx context.Context, chatRoomIds []int64, userId int64) (map[int64]int, error) {
	ids := slices.Clone(chatRoomIds)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	if len(ids) == 0 {
		return map[int64]int{}, nil
	}

	return s.ledger.UnreadCounts(ctx, ids, userId)
}

// Send validates and appends a message. CHATROOM senders join a GROUP room
// if they are not yet participants; DIRECT rooms only accept their members.
func (s *Service) Send(ctx context.Context, msg types.Message) (types.Message, error) {
	if err := validate(&msg); err != nil {
		return types.Message{}, err
	}

	if msg.Scope == types.ScopeChatRoom {
		if err := s.admit(ctx, msg.ChatRoomId, msg.SenderId); err != nil {
			return types.Message{}, err
		}
	}

	stored, err := s.messages.CreateMessage(ctx, database.Message{
		Scope:      string(msg.Scope),
		SenderId:   msg.SenderId,
		ReceiverId: msg.ReceiverId,
		RoomId:     msg.RoomId,
		ChatRoomId: msg.ChatRoomId,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	})
	if err != nil {
		return types.Message{}, err
	}

	return toMessage(stored), nil
}

func validate(msg *types.Message) error {
	msg.Content = strings.TrimSpace(msg.Content)
	switch {
	case !msg.Scope.Valid():
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidMessage, msg.Scope)
	case msg.SenderId == 0:
		return fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	case msg.Content == "":
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	case utf8.RuneCountInString(msg.Content) > maxContentLength:
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidMessage, maxContentLength)
	}

	// keep only the key belonging to the scope
	switch msg.Scope {
	case types.ScopePlaza:
		msg.RoomId, msg.ChatRoomId, msg.ReceiverId = "", 0, 0
	case types.ScopeLocalRoom:
		if msg.RoomId == "" {
			return fmt.Errorf("%w: missing room id", ErrInvalidMessage)
		}
		msg.ChatRoomId, msg.ReceiverId = 0, 0
	case types.ScopeDirect:
		if msg.ReceiverId == 0 || msg.ReceiverId == msg.SenderId {
			return fmt.Errorf("%w: invalid receiver", ErrInvalidMessage)
		}
		msg.RoomId, msg.ChatRoomId = "", 0
	case types.ScopeChatRoom:
		if msg.ChatRoomId == 0 {
			return fmt.Errorf("%w: missing chat room id", ErrInvalidMessage)
		}
		msg.RoomId, msg.ReceiverId = "", 0
	}

	return nil
}

// RecentQuery selects the messages of one scope newer than Since.
type RecentQuery struct {
	Scope      types.Scope
	RoomId     string
	ChatRoomId int64
	UserId     int64
	Since      time.Time
	Limit      int
}

// Recent returns messages of one scope newer than since, oldest first.
func (s *Service) Recent(ctx context.Context, q RecentQuery) ([]types.Message, error) {
	if !q.Scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidMessage, q.Scope)
	}

	dbMessages, err := s.messages.RecentMessages(ctx, database.RecentParams{
		Scope:      string(q.Scope),
		RoomId:     q.RoomId,
		ChatRoomId: q.ChatRoomId,
		UserId:     q.UserId,
		Since:      q.Since,
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, err
	}

	return toMessages(dbMessages), nil
}

type PageQuery struct {
	Scope    types.Scope
	SenderId int64
	Keyword  string
	Before   int64
	Limit    int
}

// Page returns history newest first.
func (s *Service) Page(ctx context.Context, q PageQuery) ([]types.Message, error) {
	if q.Scope != "" && !q.Scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidMessage, q.Scope)
	}

	dbMessages, err := s.messages.PageMessages(ctx, database.PageParams{
		Scope:    string(q.Scope),
		SenderId: q.SenderId,
		Keyword:  strings.TrimSpace(q.Keyword),
		Before:   q.Before,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, err
	}

	return toMessages(dbMessages), nil
}

// Delete soft-deletes a message for moderation.
func (s *Service) Delete(ctx context.Context, messageId int64) error {
	if err := s.messages.SoftDeleteMessage(ctx, messageId); err != nil {
		return err
	}

	s.log.Info("message soft-deleted", "message_id", messageId)
	return nil
}

// MarkDirectRead flags the direct messages from senderId to receiverId up to
// uptoMessageId as read.
func (s *Service) MarkDirectRead(ctx context.Context, receiverId, senderId, uptoMessageId int64) (int64, error) {
	return s.messages.MarkDirectRead(ctx, receiverId, senderId, uptoMessageId)
}

// RetentionSweep hard-deletes every message created before cutoff.
func (s *Service) RetentionSweep(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.messages.DeleteMessagesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep: %w", err)
	}

	if n > 0 {
		s.log.Info("retention sweep removed messages", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func toChatRoom(r database.ChatRoom, unread int) types.ChatRoom {
	return types.ChatRoom{
		ChatRoomId:  r.Id,
		Kind:        types.ChatRoomKind(r.Kind),
		UnreadCount: unread,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:         m.Id,
		Scope:      types.Scope(m.Scope),
		SenderId:   m.SenderId,
		ReceiverId: m.ReceiverId,
		RoomId:     m.RoomId,
		ChatRoomId: m.ChatRoomId,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		IsRead:     m.IsRead,
		ReadAt:     m.ReadAt,
	}
}

func toMessages(dbMessages []database.Message) []types.Message {
	messages := make([]types.Message, 0, len(dbMessages))
	for _, m := range dbMessages {
		messages = append(messages, toMessage(m))
	}
	return messages
}
