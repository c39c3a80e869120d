package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/go-plaza/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Publish *Publish `json:"publish,omitempty"`
	Read    *Read    `json:"read,omitempty"`
	Enter   *Enter   `json:"enter,omitempty"`
	Exit    *Exit    `json:"exit,omitempty"`
	client  *Client  `json:"-"`
}

type Publish struct {
	Scope      types.Scope `json:"scope"`
	RoomId     string      `json:"room_id,omitempty"`
	ChatRoomId int64       `json:"chat_room_id,omitempty"`
	ReceiverId int64       `json:"receiver_id,omitempty"`
	Content    string      `json:"content"`
}

type Read struct {
	ChatRoomId int64 `json:"chat_room_id"`
	MessageId  int64 `json:"message_id"`
}

type Enter struct {
	RoomId string `json:"room_id"`
}

type Exit struct{}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	// routing, never serialized
	UserIds    []int64 `json:"-"`
	RoomId     string  `json:"-"`
	SkipClient *Client `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// Notification carries one broadcast topic: presence events, the online
// count or the active room listing.
type Notification struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

func newNotification(topic string, payload any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Topic:   topic,
			Payload: payload,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
			Data:         data,
		},
	}
}

func errResponse(id, code int, text string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return errResponse(id, http.StatusNotFound, "room not found")
}

func ErrChatRoomNotFound(id int) *ServerMessage {
	return errResponse(id, http.StatusNotFound, "chat room not found")
}

func ErrUnauthorized(id int) *ServerMessage {
	return errResponse(id, http.StatusUnauthorized, "authentication required")
}

func ErrForbidden(id int) *ServerMessage {
	return errResponse(id, http.StatusForbidden, "forbidden")
}

func ErrBadRequest(id int, reason string) *ServerMessage {
	return errResponse(id, http.StatusBadRequest, reason)
}

func ErrInternalError(id int) *ServerMessage {
	return errResponse(id, http.StatusInternalServerError, "internal server error")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return errResponse(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := errResponse(0, http.StatusBadRequest, "invalid message format")
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
