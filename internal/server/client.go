package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-plaza/internal/chat"
	"github.com/npezzotti/go-plaza/internal/rooms"
	"github.com/npezzotti/go-plaza/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
	requestTimeout = 5 * time.Second
)

type Client struct {
	sessionId  string
	identity   *types.Identity
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *slog.Logger
	send       chan *ServerMessage
	room       string
	roomLock   sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewClient wraps an upgraded connection. A nil identity makes the client a
// read-only observer.
func NewClient(identity *types.Identity, conn *websocket.Conn, cs *ChatServer, l *slog.Logger) *Client {
	sessionId := uuid.NewString()
	logger := l.With("session_id", sessionId)
	if identity != nil {
		logger = logger.With("user_id", identity.UserId)
	}

	return &Client{
		sessionId:  sessionId,
		identity:   identity,
		conn:       conn,
		chatServer: cs,
		log:        logger,
		send:       make(chan *ServerMessage, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) SessionId() string {
	return c.sessionId
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error("failed to serialize message", "error", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn("ws: read", "error", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug("error parsing message", "error", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.Timestamp = Now()
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	if c.identity == nil {
		c.queueMessage(ErrUnauthorized(msg.Id))
		return
	}

	switch {
	case msg.Publish != nil:
		c.publish(msg)
	case msg.Read != nil:
		c.markRead(msg)
	case msg.Enter != nil:
		c.enterRoom(msg)
	case msg.Exit != nil:
		c.exitRoom(msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) publish(msg *ClientMessage) {
	p := msg.Publish
	roomId := p.RoomId
	if p.Scope == types.ScopeLocalRoom {
		current := c.currentRoom()
		if roomId == "" {
			roomId = current
		}
		if roomId == "" || roomId != current {
			c.queueMessage(ErrForbidden(msg.Id))
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	stored, err := c.chatServer.chat.Send(ctx, types.Message{
		Scope:      p.Scope,
		SenderId:   c.identity.UserId,
		ReceiverId: p.ReceiverId,
		RoomId:     roomId,
		ChatRoomId: p.ChatRoomId,
		Content:    p.Content,
		CreatedAt:  msg.Timestamp,
	})
	if err != nil {
		c.queueMessage(c.errorResponse(msg.Id, err))
		return
	}
	c.queueMessage(NoErrAccepted(msg.Id, map[string]any{"message_id": stored.Id}))

	if err := c.chatServer.Broadcast(ctx, stored); err != nil {
		c.log.Error("deliver message", "message_id", stored.Id, "error", err)
	}
}

func (c *Client) markRead(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	watermark, err := c.chatServer.chat.MarkRead(ctx, msg.Read.ChatRoomId, c.identity.UserId, msg.Read.MessageId)
	if err != nil {
		c.queueMessage(c.errorResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, map[string]any{
		"chat_room_id":         msg.Read.ChatRoomId,
		"last_read_message_id": watermark,
	}))
}

func (c *Client) enterRoom(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	room, err := c.chatServer.rooms.GetRoom(ctx, msg.Enter.RoomId)
	if err != nil {
		c.queueMessage(c.errorResponse(msg.Id, err))
		return
	}
	if !room.IsActive {
		c.queueMessage(ErrRoomNotFound(msg.Id))
		return
	}

	select {
	case c.chatServer.enterChan <- msg:
	default:
		c.log.Warn("enterChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) exitRoom(msg *ClientMessage) {
	select {
	case c.chatServer.exitChan <- msg:
	default:
		c.log.Warn("exitChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) errorResponse(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, chat.ErrInvalidMessage), errors.Is(err, chat.ErrInvalidChatRoom):
		return ErrBadRequest(id, err.Error())
	case errors.Is(err, chat.ErrNotParticipant):
		return ErrForbidden(id)
	case errors.Is(err, chat.ErrChatRoomNotFound):
		return ErrChatRoomNotFound(id)
	case errors.Is(err, rooms.ErrRoomNotFound):
		return ErrRoomNotFound(id)
	default:
		c.log.Error("request failed", "error", err)
		return ErrInternalError(id)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn("write message", "error", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.chatServer.Disconnect(c)
	c.stopClient()
}

func (c *Client) currentRoom() string {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()
	return c.room
}

func (c *Client) setRoom(roomId string) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()
	c.room = roomId
}
