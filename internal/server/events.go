package server

import "github.com/npezzotti/go-plaza/internal/types"

// Event is a connection lifecycle transition, decoupled from the websocket
// transport. Identity is nil when the handshake carried no authenticated user.
type Event interface {
	sessionID() string
}

type Connected struct {
	SessionId string
	Identity  *types.Identity
	Client    *Client
}

type Disconnected struct {
	SessionId string
	Identity  *types.Identity
	Client    *Client
}

func (e Connected) sessionID() string    { return e.SessionId }
func (e Disconnected) sessionID() string { return e.SessionId }
