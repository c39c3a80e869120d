// Package presence tracks which users currently hold live connections.
//
// The Registry only records state. Publishing join/leave notifications is
// left to the caller so the registry can be exercised without a transport.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/npezzotti/go-plaza/internal/types"
)

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]types.Session
	// users is a reverse index of userId to its live session ids.
	users map[int64]map[string]struct{}
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]types.Session),
		users:    make(map[int64]map[string]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddSession registers a session. Adding an existing session id overwrites
// the previous entry, moving it to the new user if the id was reused.
func (r *Registry) AddSession(userId int64, sessionId, displayName string) types.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[sessionId]; ok {
		r.unindex(prev)
	}

	s := types.Session{
		SessionId:   sessionId,
		UserId:      userId,
		DisplayName: displayName,
		ConnectedAt: r.now(),
	}
	r.sessions[sessionId] = s

	if r.users[userId] == nil {
		r.users[userId] = make(map[string]struct{})
	}
	r.users[userId][sessionId] = struct{}{}

	return s
}

// RemoveSession drops a session and reports the removed entry. Unknown ids
// are ignored.
func (r *Registry) RemoveSession(sessionId string) (types.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionId]
	if !ok {
		return types.Session{}, false
	}

	delete(r.sessions, sessionId)
	r.unindex(s)

	return s, true
}

func (r *Registry) unindex(s types.Session) {
	if ids, ok := r.users[s.UserId]; ok {
		delete(ids, s.SessionId)
		if len(ids) == 0 {
			delete(r.users, s.UserId)
		}
	}
}

// ActiveUserCount returns the number of distinct users with at least one
// live session.
func (r *Registry) ActiveUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users)
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

func (r *Registry) IsOnline(userId int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users[userId]) > 0
}

func (r *Registry) Session(sessionId string) (types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionId]
	return s, ok
}

// Sessions returns the live sessions of a user, oldest first.
func (r *Registry) Sessions(userId int64) []types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]types.Session, 0, len(r.users[userId]))
	for id := range r.users[userId] {
		sessions = append(sessions, r.sessions[id])
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt)
	})

	return sessions
}

// OnlineUsers lists one identity per online user ordered by user id. The
// display name is taken from the user's most recent session.
func (r *Registry) OnlineUsers() []types.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]types.Identity, 0, len(r.users))
	for userId, ids := range r.users {
		var latest types.Session
		for id := range ids {
			if s := r.sessions[id]; !s.ConnectedAt.Before(latest.ConnectedAt) {
				latest = s
			}
		}
		users = append(users, types.Identity{UserId: userId, DisplayName: latest.DisplayName})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserId < users[j].UserId })

	return users
}

// Drain discards every session and returns how many were dropped.
func (r *Registry) Drain() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.sessions)
	r.sessions = make(map[string]types.Session)
	r.users = make(map[int64]map[string]struct{})

	return n
}
