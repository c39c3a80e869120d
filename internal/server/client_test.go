package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/npezzotti/go-plaza/internal/chat"
	"github.com/npezzotti/go-plaza/internal/rooms"
	"github.com/npezzotti/go-plaza/internal/testutil"
	"github.com/npezzotti/go-plaza/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: 200,
			Data:         "test data",
		},
		UserIds: []int64{1, 2},
		RoomId:  "hidden",
	}

	expected := `{"id":1,"timestamp":"` + message.Timestamp.Format(time.RFC3339Nano) +
		`","response":{"response_code":200,"data":"test data"}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected routing fields to stay off the wire")
}

func Test_serializeNotification(t *testing.T) {
	msg := newNotification("presence", types.PresenceEvent{
		UserId:      3,
		DisplayName: "cat",
		Action:      types.ActionLeave,
		Timestamp:   1700000000000,
	})

	bytes, err := serializeMessage(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"timestamp": "`+msg.Timestamp.Format(time.RFC3339Nano)+`",
		"notification": {
			"topic": "presence",
			"payload": {"userId": 3, "displayName": "cat", "action": "leave", "timestamp": 1700000000000}
		}
	}`, string(bytes))
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	assert.NotPanics(t, c.stopClient, "expected stopping twice to be safe")

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func TestNewClient(t *testing.T) {
	env := newTestEnv(t)
	identity := &types.Identity{UserId: 4, DisplayName: "dee"}

	a := NewClient(identity, nil, env.cs, testutil.TestLogger(t))
	b := NewClient(identity, nil, env.cs, testutil.TestLogger(t))

	assert.NotEmpty(t, a.SessionId())
	assert.NotEqual(t, a.SessionId(), b.SessionId(), "expected a fresh session id per connection")
	assert.Equal(t, identity, a.identity)
	assert.Equal(t, 256, cap(a.send))
}

func Test_handleMessage_Anonymous(t *testing.T) {
	env := newTestEnv(t)
	c := newTestClient(env.cs, nil)

	c.handleMessage(&ClientMessage{
		BaseMessage: BaseMessage{Id: 5},
		Publish:     &Publish{Scope: types.ScopePlaza, Content: "hi"},
		client:      c,
	})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, 5, msgs[0].Id)
	assert.Equal(t, http.StatusUnauthorized, msgs[0].Response.ResponseCode)
}

func Test_handleMessage_Empty(t *testing.T) {
	env := newTestEnv(t)
	c := newTestClient(env.cs, &types.Identity{UserId: 1})

	c.handleMessage(&ClientMessage{BaseMessage: BaseMessage{Id: 2}, client: c})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, http.StatusBadRequest, msgs[0].Response.ResponseCode)
}

func Test_publish(t *testing.T) {
	ctx := context.Background()

	t.Run("plaza goes to everyone", func(t *testing.T) {
		env := newTestEnv(t)
		c := newTestClient(env.cs, &types.Identity{UserId: 1})

		c.handleMessage(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Publish:     &Publish{Scope: types.ScopePlaza, Content: "hello plaza"},
			client:      c,
		})

		reply := drain(c)
		require.Len(t, reply, 1)
		assert.Equal(t, http.StatusAccepted, reply[0].Response.ResponseCode)

		out := <-env.cs.broadcastChan
		require.NotNil(t, out.Message)
		assert.Equal(t, "hello plaza", out.Message.Content)
		assert.Empty(t, out.UserIds)
		assert.Empty(t, out.RoomId)
	})

	t.Run("direct goes to both users", func(t *testing.T) {
		env := newTestEnv(t)
		c := newTestClient(env.cs, &types.Identity{UserId: 1})

		c.handleMessage(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Publish:     &Publish{Scope: types.ScopeDirect, ReceiverId: 2, Content: "psst"},
			client:      c,
		})

		out := <-env.cs.broadcastChan
		assert.ElementsMatch(t, []int64{1, 2}, out.UserIds)
	})

	t.Run("chat room goes to participants", func(t *testing.T) {
		env := newTestEnv(t)
		room, err := env.chat.OpenChatRoom(ctx, types.ChatRoomGroup, []int64{2, 3})
		require.NoError(t, err)

		c := newTestClient(env.cs, &types.Identity{UserId: 1})
		c.handleMessage(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Publish:     &Publish{Scope: types.ScopeChatRoom, ChatRoomId: room.ChatRoomId, Content: "hi all"},
			client:      c,
		})

		out := <-env.cs.broadcastChan
		assert.ElementsMatch(t, []int64{1, 2, 3}, out.UserIds, "expected the sender to have joined")

		count, err := env.chat.UnreadCount(ctx, room.ChatRoomId, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("direct chat room rejects outsiders", func(t *testing.T) {
		env := newTestEnv(t)
		room, err := env.chat.OpenChatRoom(ctx, types.ChatRoomDirect, []int64{2, 3})
		require.NoError(t, err)

		c := newTestClient(env.cs, &types.Identity{UserId: 1})
		c.handleMessage(&ClientMessage{
			BaseMessage: BaseMessage{Id: 4, Timestamp: Now()},
			Publish:     &Publish{Scope: types.ScopeChatRoom, ChatRoomId: room.ChatRoomId, Content: "psst"},
			client:      c,
		})

		reply := drain(c)
		require.Len(t, reply, 1)
		assert.Equal(t, http.StatusForbidden, reply[0].Response.ResponseCode)
		assert.Empty(t, env.cs.broadcastChan)

		participants, err := env.chat.Participants(ctx, room.ChatRoomId)
		require.NoError(t, err)
		assert.Len(t, participants, 2)
	})

	t.Run("local room requires entering", func(t *testing.T) {
		env := newTestEnv(t)
		c := newTestClient(env.cs, &types.Identity{UserId: 1})

		c.handleMessage(&ClientMessage{
			BaseMessage: BaseMessage{Id: 9},
			Publish:     &Publish{Scope: types.ScopeLocalRoom, RoomId: "r1", Content: "knock"},
			client:      c,
		})

		reply := drain(c)
		require.Len(t, reply, 1)
		assert.Equal(t, http.StatusForbidden, reply[0].Response.ResponseCode)
		assert.Empty(t, env.cs.broadcastChan)
	})

	t.Run("local room defaults to the current room", func(t *testing.T) {
		env := newTestEnv(t)
		c := newTestClient(env.cs, &types.Identity{UserId: 1})
		c.setRoom("r1")

		c.handleMessage(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Publish:     &Publish{Scope: types.ScopeLocalRoom, Content: "hi room"},
			client:      c,
		})

		out := <-env.cs.broadcastChan
		assert.Equal(t, "r1", out.RoomId)
		assert.Equal(t, "r1", out.Message.RoomId)
	})

	t.Run("invalid content", func(t *testing.T) {
		env := newTestEnv(t)
		c := newTestClient(env.cs, &types.Identity{UserId: 1})

		c.handleMessage(&ClientMessage{
			BaseMessage: BaseMessage{Id: 3},
			Publish:     &Publish{Scope: types.ScopePlaza, Content: "   "},
			client:      c,
		})

		reply := drain(c)
		require.Len(t, reply, 1)
		assert.Equal(t, http.StatusBadRequest, reply[0].Response.ResponseCode)
		assert.Empty(t, env.cs.broadcastChan)
	})
}

func Test_markRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.chat.OpenChatRoom(ctx, types.ChatRoomDirect, []int64{1, 2})
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		_, err := env.chat.Send(ctx, types.Message{Scope: types.ScopeChatRoom, SenderId: 2, ChatRoomId: room.ChatRoomId, Content: "m"})
		require.NoError(t, err)
	}

	c := newTestClient(env.cs, &types.Identity{UserId: 1})
	c.handleMessage(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		Read:        &Read{ChatRoomId: room.ChatRoomId, MessageId: 12},
		client:      c,
	})
	c.handleMessage(&ClientMessage{
		BaseMessage: BaseMessage{Id: 2},
		Read:        &Read{ChatRoomId: room.ChatRoomId, MessageId: 4},
		client:      c,
	})

	replies := drain(c)
	require.Len(t, replies, 2)
	for _, reply := range replies {
		assert.Equal(t, http.StatusOK, reply.Response.ResponseCode)
		assert.Equal(t, int64(12), reply.Response.Data.(map[string]any)["last_read_message_id"])
	}

	outsider := newTestClient(env.cs, &types.Identity{UserId: 3})
	outsider.handleMessage(&ClientMessage{
		BaseMessage: BaseMessage{Id: 3},
		Read:        &Read{ChatRoomId: room.ChatRoomId, MessageId: 1},
		client:      outsider,
	})
	reply := drain(outsider)
	require.Len(t, reply, 1)
	assert.Equal(t, http.StatusForbidden, reply[0].Response.ResponseCode)
}

func Test_enterRoom_exitRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.dir.GetOrCreateRoom(ctx, 10)
	require.NoError(t, err)

	c := newTestClient(env.cs, &types.Identity{UserId: 1})
	env.cs.addClient(c)

	t.Run("unknown room", func(t *testing.T) {
		c.handleMessage(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Enter: &Enter{RoomId: "missing"}, client: c})

		reply := drain(c)
		require.Len(t, reply, 1)
		assert.Equal(t, http.StatusNotFound, reply[0].Response.ResponseCode)
		assert.Empty(t, env.cs.enterChan)
	})

	t.Run("enter and exit", func(t *testing.T) {
		c.handleMessage(&ClientMessage{BaseMessage: BaseMessage{Id: 2}, Enter: &Enter{RoomId: room.RoomId}, client: c})
		require.Len(t, env.cs.enterChan, 1)
		env.cs.handleEnter(<-env.cs.enterChan)

		assert.Equal(t, room.RoomId, c.currentRoom())
		assert.Equal(t, 1, env.cs.occupants(room.RoomId))

		c.handleMessage(&ClientMessage{BaseMessage: BaseMessage{Id: 3}, Exit: &Exit{}, client: c})
		require.Len(t, env.cs.exitChan, 1)
		env.cs.handleExit(<-env.cs.exitChan)

		assert.Empty(t, c.currentRoom())
		assert.Equal(t, 0, env.cs.occupants(room.RoomId))

		replies := drain(c)
		require.Len(t, replies, 2)
		assert.Equal(t, 2, replies[0].Id)
		assert.Equal(t, 3, replies[1].Id)
	})

	t.Run("deactivated room", func(t *testing.T) {
		require.NoError(t, env.dir.DeactivateRoom(ctx, room.RoomId, 10))

		c.handleMessage(&ClientMessage{BaseMessage: BaseMessage{Id: 4}, Enter: &Enter{RoomId: room.RoomId}, client: c})
		reply := drain(c)
		require.Len(t, reply, 1)
		assert.Equal(t, http.StatusNotFound, reply[0].Response.ResponseCode)
	})
}

func Test_errorResponse(t *testing.T) {
	c := &Client{log: testutil.TestLogger(t)}

	tcases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: empty content", chat.ErrInvalidMessage), http.StatusBadRequest},
		{chat.ErrInvalidChatRoom, http.StatusBadRequest},
		{chat.ErrNotParticipant, http.StatusForbidden},
		{chat.ErrChatRoomNotFound, http.StatusNotFound},
		{rooms.ErrRoomNotFound, http.StatusNotFound},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			msg := c.errorResponse(7, tc.err)
			assert.Equal(t, 7, msg.Id)
			assert.Equal(t, tc.code, msg.Response.ResponseCode)
		})
	}
}
