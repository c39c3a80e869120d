package api

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-plaza/internal/server"
	"github.com/npezzotti/go-plaza/internal/types"
)

// serveWs upgrades the request. Connections without an identity observe
// broadcasts but are never registered as present.
func (s *GoPlazaApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("error upgrading connection", "error", err)
		return
	}

	var identity *types.Identity
	if id, ok := IdentityFrom(r.Context()); ok {
		identity = &id
	}

	client := server.NewClient(identity, conn, s.cs, s.log)
	s.cs.Connect(client)

	go client.Write()
	go client.Read()
}
