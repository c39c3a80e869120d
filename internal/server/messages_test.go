package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoErrOk(t *testing.T) {
	result := NoErrOK(1, map[string]any{
		"testkey": "testvalue",
	})

	assert.NotNil(t, result, "expected result to be non-nil")
	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.WithinDuration(t, Now(), result.Timestamp, time.Second, "expected Timestamp to be within 1 second")
	assert.Equal(t, http.StatusOK, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, map[string]any{"testkey": "testvalue"}, result.Response.Data, "expected Data to match")
}

func TestNoErrAccepted(t *testing.T) {
	result := NoErrAccepted(1, nil)

	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusAccepted, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Nil(t, result.Response.Data, "expected no data")
}

func TestErrorMessages(t *testing.T) {
	tcases := []struct {
		name string
		msg  *ServerMessage
		code int
		text string
	}{
		{"room not found", ErrRoomNotFound(1), http.StatusNotFound, "room not found"},
		{"chat room not found", ErrChatRoomNotFound(1), http.StatusNotFound, "chat room not found"},
		{"unauthorized", ErrUnauthorized(1), http.StatusUnauthorized, "authentication required"},
		{"forbidden", ErrForbidden(1), http.StatusForbidden, "forbidden"},
		{"bad request", ErrBadRequest(1, "invalid message: empty content"), http.StatusBadRequest, "invalid message: empty content"},
		{"internal error", ErrInternalError(1), http.StatusInternalServerError, "internal server error"},
		{"service unavailable", ErrServiceUnavailable(1), http.StatusServiceUnavailable, "service unavailable"},
		{"invalid message", ErrInvalidMessage(1), http.StatusBadRequest, "invalid message format"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, 1, tc.msg.Id)
			assert.Equal(t, tc.code, tc.msg.Response.ResponseCode)
			assert.Equal(t, tc.text, tc.msg.Response.Error)
		})
	}
}

func TestErrInvalidMessage_NoId(t *testing.T) {
	msg := ErrInvalidMessage(-1)
	assert.Zero(t, msg.Id, "expected negative ids to be dropped")
}

func TestNewNotification(t *testing.T) {
	msg := newNotification("online", 3)
	assert.Equal(t, "online", msg.Notification.Topic)
	assert.Equal(t, 3, msg.Notification.Payload)
	assert.Nil(t, msg.Response)
}
