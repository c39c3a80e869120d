package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/npezzotti/go-plaza/internal/chat"
	"github.com/npezzotti/go-plaza/internal/types"
)

type PresenceResponse struct {
	Online int              `json:"online"`
	Users  []types.Identity `json:"users"`
}

type PlaceItemRequest struct {
	IsVisible bool `json:"is_visible"`
}

type OpenChatRoomRequest struct {
	Kind    types.ChatRoomKind `json:"kind"`
	UserIds []int64            `json:"user_ids"`
}

type ReadRequest struct {
	MessageId int64 `json:"message_id"`
}

type DirectReadRequest struct {
	SenderId  int64 `json:"sender_id"`
	MessageId int64 `json:"message_id"`
}

type ReadResponse struct {
	LastReadMessageId int64 `json:"last_read_message_id"`
}

type SendMessageRequest struct {
	Scope      types.Scope `json:"scope"`
	RoomId     string      `json:"room_id"`
	ChatRoomId int64       `json:"chat_room_id"`
	ReceiverId int64       `json:"receiver_id"`
	Content    string      `json:"content"`
}

func (s *GoPlazaApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("json encode", "error", err)
	}
}

func (s *GoPlazaApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Error("request failed", "error", errResp)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *GoPlazaApp) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, NewBadRequestError())
		return false
	}
	return true
}

func int64Param(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt64 returns 0 when the parameter is absent.
func queryInt64(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// queryLimit returns 0 when absent; the store applies its default and cap.
func queryLimit(r *http.Request) (int, error) {
	n, err := queryInt64(r, "limit")
	if err != nil || n < 0 {
		return 0, errors.New("invalid limit")
	}
	return int(n), nil
}

func (s *GoPlazaApp) isModerator(userId int64) bool {
	return slices.Contains(s.moderators, userId)
}

// checkLocalRoom requires an active room that the sender currently occupies
// over a websocket session, the same rule websocket publishes follow.
func (s *GoPlazaApp) checkLocalRoom(r *http.Request, roomId string, userId int64) *ApiError {
	if roomId == "" {
		return NewValidationError(fmt.Errorf("%w: missing room id", chat.ErrInvalidMessage))
	}

	room, err := s.rooms.GetRoom(r.Context(), roomId)
	if err != nil {
		return errorFor(err)
	}
	if !room.IsActive {
		return NewNotFoundError()
	}

	in, err := s.cs.InRoom(r.Context(), roomId, userId)
	if err != nil {
		return NewInternalServerError(err)
	}
	if !in {
		return NewForbiddenError()
	}

	return nil
}

func (s *GoPlazaApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", "error", err)
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *GoPlazaApp) getPresence(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, PresenceResponse{
		Online: s.registry.ActiveUserCount(),
		Users:  s.registry.OnlineUsers(),
	})
}

func (s *GoPlazaApp) listRooms(w http.ResponseWriter, r *http.Request) {
	listing, err := s.rooms.ListActiveRooms(r.Context())
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, listing)
}

// createRoom returns the caller's active room, creating it on first use.
func (s *GoPlazaApp) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	room, err := s.rooms.GetOrCreateRoom(r.Context(), userId)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.cs.RefreshRooms()
	s.writeJson(w, http.StatusOK, room)
}

func (s *GoPlazaApp) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.rooms.GetRoom(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *GoPlazaApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	if err := s.rooms.DeactivateRoom(r.Context(), chi.URLParam(r, "roomId"), userId); err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.cs.RefreshRooms()
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoPlazaApp) placeItem(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	itemId, ok := int64Param(r, "itemId")
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	var req PlaceItemRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.rooms.PlaceItem(r.Context(), chi.URLParam(r, "roomId"), userId, itemId, req.IsVisible); err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.cs.RefreshRooms()
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoPlazaApp) removeItem(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	itemId, ok := int64Param(r, "itemId")
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := s.rooms.RemoveItem(r.Context(), chi.URLParam(r, "roomId"), userId, itemId); err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.cs.RefreshRooms()
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoPlazaApp) openChatRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req OpenChatRoomRequest
	if !s.decode(w, r, &req) {
		return
	}

	if !slices.Contains(req.UserIds, userId) {
		req.UserIds = append(req.UserIds, userId)
	}

	room, err := s.chat.OpenChatRoom(r.Context(), req.Kind, req.UserIds)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *GoPlazaApp) listChatRooms(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	chatRooms, err := s.chat.ChatRooms(r.Context(), userId)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, chatRooms)
}

// unreadCounts takes a comma separated ids query parameter.
func (s *GoPlazaApp) unreadCounts(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var ids []int64
	if raw := r.URL.Query().Get("ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || id <= 0 {
				s.writeError(w, NewBadRequestError())
				return
			}
			ids = append(ids, id)
		}
	}

	counts, err := s.chat.UnreadCounts(r.Context(), ids, userId)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	resp := make(map[string]int, len(counts))
	for id, n := range counts {
		resp[strconv.FormatInt(id, 10)] = n
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *GoPlazaApp) unreadCount(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	chatRoomId, ok := int64Param(r, "chatRoomId")
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	n, err := s.chat.UnreadCount(r.Context(), chatRoomId, userId)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"unread_count": n})
}

func (s *GoPlazaApp) markRead(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	chatRoomId, ok := int64Param(r, "chatRoomId")
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	var req ReadRequest
	if !s.decode(w, r, &req) {
		return
	}

	watermark, err := s.chat.MarkRead(r.Context(), chatRoomId, userId, req.MessageId)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, ReadResponse{LastReadMessageId: watermark})
}

func (s *GoPlazaApp) joinChatRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	chatRoomId, ok := int64Param(r, "chatRoomId")
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := s.chat.Join(r.Context(), chatRoomId, userId); err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GoPlazaApp) getParticipants(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	chatRoomId, ok := int64Param(r, "chatRoomId")
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := s.chat.RequireParticipant(r.Context(), chatRoomId, userId); err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	participants, err := s.chat.Participants(r.Context(), chatRoomId)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, participants)
}

func (s *GoPlazaApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req SendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Scope == types.ScopeLocalRoom {
		if errResp := s.checkLocalRoom(r, req.RoomId, userId); errResp != nil {
			s.writeError(w, errResp)
			return
		}
	}

	msg, err := s.chat.Send(r.Context(), types.Message{
		Scope:      req.Scope,
		SenderId:   userId,
		RoomId:     req.RoomId,
		ChatRoomId: req.ChatRoomId,
		ReceiverId: req.ReceiverId,
		Content:    req.Content,
	})
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	// The message is stored; a failed fan-out only costs live delivery.
	if err := s.cs.Broadcast(r.Context(), msg); err != nil {
		s.log.Warn("failed to broadcast message", "error", err, "message_id", msg.Id)
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *GoPlazaApp) recentMessages(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	q := r.URL.Query()

	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, NewValidationError(err))
		return
	}

	chatRoomId, err := queryInt64(r, "chat_room_id")
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	var since time.Time
	if v := q.Get("since"); v != "" {
		since, err = time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, NewValidationError(errors.New("since must be RFC 3339")))
			return
		}
	}

	query := chat.RecentQuery{
		Scope:      types.Scope(q.Get("scope")),
		RoomId:     q.Get("room_id"),
		ChatRoomId: chatRoomId,
		Since:      since,
		Limit:      limit,
	}
	switch query.Scope {
	case types.ScopeDirect:
		query.UserId = userId
	case types.ScopeChatRoom:
		if err := s.chat.RequireParticipant(r.Context(), chatRoomId, userId); err != nil {
			s.writeError(w, errorFor(err))
			return
		}
	}

	msgs, err := s.chat.Recent(r.Context(), query)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

// pageMessages searches history. Moderators may search every scope; other
// callers only the public PLAZA and LOCAL_ROOM scopes.
func (s *GoPlazaApp) pageMessages(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	q := r.URL.Query()

	scope := types.Scope(q.Get("scope"))
	if !s.isModerator(userId) && scope != types.ScopePlaza && scope != types.ScopeLocalRoom {
		s.writeError(w, NewForbiddenError())
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, NewValidationError(err))
		return
	}

	senderId, err := queryInt64(r, "sender_id")
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	before, err := queryInt64(r, "before")
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	msgs, err := s.chat.Page(r.Context(), chat.PageQuery{
		Scope:    scope,
		SenderId: senderId,
		Keyword:  q.Get("q"),
		Before:   before,
		Limit:    limit,
	})
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *GoPlazaApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	if !s.isModerator(userId) {
		s.writeError(w, NewForbiddenError())
		return
	}

	messageId, ok := int64Param(r, "messageId")
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := s.chat.Delete(r.Context(), messageId); err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GoPlazaApp) markDirectRead(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req DirectReadRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.SenderId <= 0 || req.MessageId < 0 {
		s.writeError(w, NewBadRequestError())
		return
	}

	n, err := s.chat.MarkDirectRead(r.Context(), userId, req.SenderId, req.MessageId)
	if err != nil {
		s.writeError(w, errorFor(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int64{"updated": n})
}
