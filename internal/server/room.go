package server

import "context"

// Local rooms are the personal rooms clients are currently standing in.
// Occupancy is owned by the Run loop; clients only mirror their current room
// for reads from their own goroutine.

func (cs *ChatServer) handleEnter(msg *ClientMessage) {
	c := msg.client
	if _, ok := cs.clients[c]; !ok {
		cs.log.Debug("enter from unregistered client ignored", "session_id", c.sessionId)
		return
	}

	roomId := msg.Enter.RoomId
	cs.leaveLocalRoom(c)

	if cs.localRooms[roomId] == nil {
		cs.localRooms[roomId] = make(map[*Client]struct{})
	}
	cs.localRooms[roomId][c] = struct{}{}
	c.setRoom(roomId)

	cs.log.Debug("client entered room", "session_id", c.sessionId, "room_id", roomId,
		"occupants", cs.occupants(roomId))
	c.queueMessage(NoErrOK(msg.Id, map[string]any{
		"room_id":   roomId,
		"occupants": cs.occupants(roomId),
	}))
}

func (cs *ChatServer) handleExit(msg *ClientMessage) {
	c := msg.client
	cs.leaveLocalRoom(c)
	c.queueMessage(NoErrOK(msg.Id, nil))
}

func (cs *ChatServer) leaveLocalRoom(c *Client) {
	roomId := c.currentRoom()
	if roomId == "" {
		return
	}

	if occupants, ok := cs.localRooms[roomId]; ok {
		delete(occupants, c)
		if len(occupants) == 0 {
			delete(cs.localRooms, roomId)
		}
	}
	c.setRoom("")

	cs.log.Debug("client left room", "session_id", c.sessionId, "room_id", roomId)
}

func (cs *ChatServer) occupants(roomId string) int {
	return len(cs.localRooms[roomId])
}

// inLocalRoom reports whether any session of userId stands in roomId.
func (cs *ChatServer) inLocalRoom(roomId string, userId int64) bool {
	for c := range cs.localRooms[roomId] {
		if c.identity != nil && c.identity.UserId == userId {
			return true
		}
	}
	return false
}

// InRoom asks the loop whether userId currently occupies roomId through any
// of its websocket sessions.
func (cs *ChatServer) InRoom(ctx context.Context, roomId string, userId int64) (bool, error) {
	req := occupancyReq{roomId: roomId, userId: userId, reply: make(chan bool, 1)}

	select {
	case cs.occupancyChan <- req:
	case <-cs.done:
		return false, errStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case in := <-req.reply:
		return in, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
