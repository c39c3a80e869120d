package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-plaza/internal/broadcast"
	"github.com/npezzotti/go-plaza/internal/chat"
	"github.com/npezzotti/go-plaza/internal/server"
	"github.com/npezzotti/go-plaza/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, userId int64, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	header := http.Header{}
	if userId != 0 {
		header.Set("Authorization", "Bearer "+tokenFor(t, userId))
	}
	if origin != "" {
		header.Set("Origin", origin)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

// readUntil reads server messages until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(server.ServerMessage) bool) server.ServerMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg server.ServerMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		if match(msg) {
			return msg
		}
	}
}

func isTopic(topic string) func(server.ServerMessage) bool {
	return func(m server.ServerMessage) bool {
		return m.Notification != nil && m.Notification.Topic == topic
	}
}

func Test_serveWs(t *testing.T) {
	ta := newTestApp(t)
	srv := httptest.NewServer(ta.handler)
	defer srv.Close()

	t.Run("disallowed origin", func(t *testing.T) {
		_, resp, err := dial(t, srv, 1, "http://evil.example")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("authenticated session registers presence", func(t *testing.T) {
		conn, _, err := dial(t, srv, 1, "http://localhost:3000")
		require.NoError(t, err)

		readUntil(t, conn, isTopic(broadcast.TopicPresence))
		online := readUntil(t, conn, isTopic(broadcast.TopicOnline))
		assert.EqualValues(t, 1, online.Notification.Payload)
		assert.True(t, ta.registry.IsOnline(1))

		conn.Close()
		assert.Eventually(t, func() bool { return !ta.registry.IsOnline(1) }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("anonymous observer receives plaza messages", func(t *testing.T) {
		observer, _, err := dial(t, srv, 0, "")
		require.NoError(t, err)
		defer observer.Close()

		readUntil(t, observer, isTopic(broadcast.TopicRooms))
		assert.Equal(t, 0, ta.registry.SessionCount())

		rr := ta.do(t, http.MethodPost, "/api/messages", 2, SendMessageRequest{Scope: types.ScopePlaza, Content: "hello"})
		require.Equal(t, http.StatusCreated, rr.Code)

		got := readUntil(t, observer, func(m server.ServerMessage) bool { return m.Message != nil })
		assert.Equal(t, "hello", got.Message.Content)

		// actions need an identity
		require.NoError(t, observer.WriteJSON(map[string]any{
			"id":      1,
			"publish": map[string]any{"scope": "PLAZA", "content": "sneaky"},
		}))
		resp := readUntil(t, observer, func(m server.ServerMessage) bool { return m.Response != nil })
		assert.Equal(t, http.StatusUnauthorized, resp.Response.ResponseCode)

		recent, err := ta.app.chat.Recent(context.Background(), chat.RecentQuery{Scope: types.ScopePlaza})
		require.NoError(t, err)
		assert.Len(t, recent, 1)
	})
	t.Run("http local room send requires occupancy", func(t *testing.T) {
		rr := ta.do(t, http.MethodPost, "/api/rooms", 5, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		room := decodeBody[types.PersonalRoom](t, rr)

		conn, _, err := dial(t, srv, 5, "")
		require.NoError(t, err)
		defer conn.Close()
		readUntil(t, conn, isTopic(broadcast.TopicOnline))

		send := SendMessageRequest{Scope: types.ScopeLocalRoom, RoomId: room.RoomId, Content: "welcome"}
		rr = ta.do(t, http.MethodPost, "/api/messages", 5, send)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		require.NoError(t, conn.WriteJSON(map[string]any{
			"id":    7,
			"enter": map[string]any{"room_id": room.RoomId},
		}))
		entered := readUntil(t, conn, func(m server.ServerMessage) bool { return m.Response != nil && m.Id == 7 })
		require.Equal(t, http.StatusOK, entered.Response.ResponseCode)

		rr = ta.do(t, http.MethodPost, "/api/messages", 5, send)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		got := readUntil(t, conn, func(m server.ServerMessage) bool { return m.Message != nil })
		assert.Equal(t, "welcome", got.Message.Content)
		assert.Equal(t, room.RoomId, got.Message.RoomId)
	})
}
