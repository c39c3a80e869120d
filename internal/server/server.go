package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/npezzotti/go-plaza/internal/broadcast"
	"github.com/npezzotti/go-plaza/internal/presence"
	"github.com/npezzotti/go-plaza/internal/stats"
	"github.com/npezzotti/go-plaza/internal/types"
)

const listRoomsTimeout = 5 * time.Second

// RoomLister is the part of the room directory the coordinator reads.
type RoomLister interface {
	GetRoom(ctx context.Context, roomId string) (types.PersonalRoom, error)
	ListActiveRooms(ctx context.Context) ([]types.PersonalRoom, error)
}

// ChatService is the part of the chat ledger and message log reachable from
// websocket clients.
type ChatService interface {
	Send(ctx context.Context, msg types.Message) (types.Message, error)
	MarkRead(ctx context.Context, chatRoomId, userId, uptoMessageId int64) (int64, error)
	Participants(ctx context.Context, chatRoomId int64) ([]types.ChatParticipant, error)
	RetentionSweep(ctx context.Context, cutoff time.Time) (int64, error)
}

type stopReq struct {
	done chan struct{}
}

type occupancyReq struct {
	roomId string
	userId int64
	reply  chan bool
}

type roomListing struct {
	seq    int64
	rooms  []types.PersonalRoom
	target *Client
}

// ChatServer coordinates connection lifecycles. A single goroutine running
// Run owns the client set and the local room occupancy; the presence
// registry is shared and safe for concurrent readers.
type ChatServer struct {
	log           *slog.Logger
	registry      *presence.Registry
	rooms         RoomLister
	chat          ChatService
	publisher     broadcast.Publisher
	stats         stats.StatsProvider
	clients       map[*Client]struct{}
	userMap       map[int64]map[*Client]struct{}
	localRooms    map[string]map[*Client]struct{}
	events        chan Event
	broadcastChan chan *ServerMessage
	enterChan     chan *ClientMessage
	exitChan      chan *ClientMessage
	roomsChan     chan roomListing
	occupancyChan chan occupancyReq
	roomsSeq      atomic.Int64
	lastRoomsSeq  int64
	stop          chan stopReq
	done          chan struct{}
}

func NewChatServer(logger *slog.Logger, registry *presence.Registry, rooms RoomLister, chat ChatService,
	publisher broadcast.Publisher, su stats.StatsProvider) *ChatServer {
	if publisher == nil {
		publisher = broadcast.NopPublisher{}
	}

	for _, metric := range []string{
		stats.NumSessions,
		stats.NumOnlineUsers,
		stats.NumActiveClients,
		stats.NumMessages,
		stats.NumSweptMessages,
	} {
		su.RegisterMetric(metric)
	}

	return &ChatServer{
		log:           logger,
		registry:      registry,
		rooms:         rooms,
		chat:          chat,
		publisher:     publisher,
		stats:         su,
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int64]map[*Client]struct{}),
		localRooms:    make(map[string]map[*Client]struct{}),
		events:        make(chan Event, 256),
		broadcastChan: make(chan *ServerMessage, 256),
		enterChan:     make(chan *ClientMessage, 256),
		exitChan:      make(chan *ClientMessage, 256),
		roomsChan:     make(chan roomListing, 16),
		occupancyChan: make(chan occupancyReq),
		stop:          make(chan stopReq),
		done:          make(chan struct{}),
	}
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case e := <-cs.events:
			cs.HandleEvent(e)
		case msg := <-cs.broadcastChan:
			cs.handleBroadcast(msg)
		case msg := <-cs.enterChan:
			cs.handleEnter(msg)
		case msg := <-cs.exitChan:
			cs.handleExit(msg)
		case listing := <-cs.roomsChan:
			cs.handleRoomListing(listing)
		case req := <-cs.occupancyChan:
			req.reply <- cs.inLocalRoom(req.roomId, req.userId)
		case req := <-cs.stop:
			cs.handleStop(req)
			return
		}
	}
}

// Connect hands a new connection to the coordinator.
func (cs *ChatServer) Connect(c *Client) {
	cs.submit(Connected{SessionId: c.sessionId, Identity: c.identity, Client: c})
}

// Disconnect reports a closed connection. It is safe to call after Shutdown.
func (cs *ChatServer) Disconnect(c *Client) {
	cs.submit(Disconnected{SessionId: c.sessionId, Identity: c.identity, Client: c})
}

func (cs *ChatServer) submit(e Event) {
	select {
	case cs.events <- e:
	case <-cs.done:
		cs.log.Debug("chat server stopped, dropping event", "session_id", e.sessionID())
	}
}

// HandleEvent applies one connection event. Registry mutations happen before
// the notifications they cause are queued, so observers never receive an
// online count older than a join or leave they already saw.
func (cs *ChatServer) HandleEvent(e Event) {
	switch e := e.(type) {
	case Connected:
		cs.handleConnected(e)
	case Disconnected:
		cs.handleDisconnected(e)
	default:
		cs.log.Warn("unknown event type", "event", e)
	}
}

func (cs *ChatServer) handleConnected(e Connected) {
	if e.Client != nil {
		cs.addClient(e.Client)
	}

	if e.Identity == nil {
		cs.log.Info("connection without identity, not registering presence", "session_id", e.SessionId)
	} else {
		cs.registry.AddSession(e.Identity.UserId, e.SessionId, e.Identity.DisplayName)
		cs.stats.Incr(stats.NumSessions)
		cs.log.Info("session connected",
			"session_id", e.SessionId,
			"user_id", e.Identity.UserId,
			"sessions", cs.registry.SessionCount(),
		)

		cs.notify(broadcast.TopicPresence, types.PresenceEvent{
			UserId:      e.Identity.UserId,
			DisplayName: e.Identity.DisplayName,
			Action:      types.ActionJoin,
			Timestamp:   time.Now().UnixMilli(),
		})
		cs.publishOnlineCount()
	}

	// snapshot for the new subscriber
	if e.Client != nil {
		e.Client.queueMessage(newNotification(broadcast.TopicOnline, cs.registry.ActiveUserCount()))
		cs.listRooms(e.Client)
	}
}

func (cs *ChatServer) handleDisconnected(e Disconnected) {
	if e.Client != nil {
		cs.removeClient(e.Client)
	}

	if e.Identity == nil {
		cs.log.Debug("disconnect without identity ignored", "session_id", e.SessionId)
		return
	}

	session, ok := cs.registry.RemoveSession(e.SessionId)
	if !ok {
		cs.log.Debug("disconnect for unknown session ignored", "session_id", e.SessionId)
		return
	}
	cs.stats.Decr(stats.NumSessions)
	cs.log.Info("session disconnected",
		"session_id", session.SessionId,
		"user_id", session.UserId,
		"connected_for", time.Since(session.ConnectedAt).Round(time.Second),
	)

	cs.notify(broadcast.TopicPresence, types.PresenceEvent{
		UserId:      session.UserId,
		DisplayName: session.DisplayName,
		Action:      types.ActionLeave,
		Timestamp:   time.Now().UnixMilli(),
	})
	cs.publishOnlineCount()
	cs.listRooms(nil)
}

func (cs *ChatServer) publishOnlineCount() {
	count := cs.registry.ActiveUserCount()
	cs.stats.Set(stats.NumOnlineUsers, int64(count))
	cs.notify(broadcast.TopicOnline, count)
}

// notify fans a topic payload out to every local client, then mirrors it.
func (cs *ChatServer) notify(topic string, payload any) {
	cs.handleBroadcast(newNotification(topic, payload))

	if err := cs.publisher.Publish(topic, payload); err != nil {
		cs.log.Warn("mirror notification", "topic", topic, "error", err)
	}
}

// RefreshRooms republishes the active room listing. Call it after any
// explicit room mutation.
func (cs *ChatServer) RefreshRooms() {
	cs.listRooms(nil)
}

// listRooms queries the directory off the loop. A nil target broadcasts the
// listing to everyone.
func (cs *ChatServer) listRooms(target *Client) {
	seq := cs.roomsSeq.Add(1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), listRoomsTimeout)
		defer cancel()

		rooms, err := cs.rooms.ListActiveRooms(ctx)
		if err != nil {
			cs.log.Error("list active rooms", "error", err)
			return
		}

		select {
		case cs.roomsChan <- roomListing{seq: seq, rooms: rooms, target: target}:
		case <-cs.done:
		}
	}()
}

func (cs *ChatServer) handleRoomListing(listing roomListing) {
	if listing.rooms == nil {
		listing.rooms = []types.PersonalRoom{}
	}

	if listing.target != nil {
		if _, ok := cs.clients[listing.target]; ok {
			listing.target.queueMessage(newNotification(broadcast.TopicRooms, listing.rooms))
		}
		return
	}

	// a slower query must not overwrite a newer listing
	if listing.seq < cs.lastRoomsSeq {
		cs.log.Debug("dropping stale room listing", "seq", listing.seq, "last", cs.lastRoomsSeq)
		return
	}
	cs.lastRoomsSeq = listing.seq
	cs.notify(broadcast.TopicRooms, listing.rooms)
}

var errStopped = errors.New("chat server stopped")

// Broadcast delivers a stored message to its audience: everyone for PLAZA,
// the occupants of the room for LOCAL_ROOM, both users' sessions for DIRECT
// and every participant's sessions for CHATROOM.
func (cs *ChatServer) Broadcast(ctx context.Context, msg types.Message) error {
	cs.stats.Incr(stats.NumMessages)

	out := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: msg.CreatedAt,
		},
		Message: &msg,
	}

	switch msg.Scope {
	case types.ScopeLocalRoom:
		out.RoomId = msg.RoomId
	case types.ScopeDirect:
		out.UserIds = []int64{msg.SenderId, msg.ReceiverId}
	case types.ScopeChatRoom:
		participants, err := cs.chat.Participants(ctx, msg.ChatRoomId)
		if err != nil {
			return fmt.Errorf("list participants of chat room %d: %w", msg.ChatRoomId, err)
		}
		for _, p := range participants {
			out.UserIds = append(out.UserIds, p.UserId)
		}
	}

	if !cs.deliver(out) {
		return errStopped
	}
	return nil
}

// deliver queues a message for fan-out from outside the loop.
func (cs *ChatServer) deliver(msg *ServerMessage) bool {
	select {
	case cs.broadcastChan <- msg:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) handleBroadcast(msg *ServerMessage) {
	for _, c := range cs.recipients(msg) {
		if c == msg.SkipClient {
			continue
		}

		// a full queue drops the message for that client only
		c.queueMessage(msg)
	}
}

func (cs *ChatServer) recipients(msg *ServerMessage) []*Client {
	var clients []*Client
	switch {
	case len(msg.UserIds) > 0:
		seen := make(map[int64]bool, len(msg.UserIds))
		for _, userId := range msg.UserIds {
			if seen[userId] {
				continue
			}
			seen[userId] = true
			clients = append(clients, cs.getClients(userId)...)
		}
	case msg.RoomId != "":
		for c := range cs.localRooms[msg.RoomId] {
			clients = append(clients, c)
		}
	default:
		for c := range cs.clients {
			clients = append(clients, c)
		}
	}
	return clients
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clients[c] = struct{}{}
	if c.identity != nil {
		if cs.userMap[c.identity.UserId] == nil {
			cs.userMap[c.identity.UserId] = make(map[*Client]struct{})
		}
		cs.userMap[c.identity.UserId][c] = struct{}{}
	}
	cs.stats.Incr(stats.NumActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	if c.identity != nil {
		if userClients, ok := cs.userMap[c.identity.UserId]; ok {
			delete(userClients, c)
			if len(userClients) == 0 {
				delete(cs.userMap, c.identity.UserId)
			}
		}
	}
	cs.leaveLocalRoom(c)
	cs.stats.Decr(stats.NumActiveClients)
}

func (cs *ChatServer) getClients(userId int64) []*Client {
	var clients []*Client
	for c := range cs.userMap[userId] {
		clients = append(clients, c)
	}
	return clients
}

// Shutdown stops every client and discards presence state. It returns the
// context error if the loop does not finish in time.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("shutting down chat server")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) handleStop(req stopReq) {
	for c := range cs.clients {
		c.stopClient()
	}
	clear(cs.clients)
	clear(cs.userMap)
	clear(cs.localRooms)

	n := cs.registry.Drain()
	cs.log.Info("presence registry drained", "sessions", n)
	close(req.done)
}

// RunRetention hard-deletes messages older than maxAge every interval until
// ctx is cancelled.
func (cs *ChatServer) RunRetention(ctx context.Context, maxAge, interval time.Duration) {
	if maxAge <= 0 || interval <= 0 {
		cs.log.Info("message retention disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cs.log.Info("message retention started", "max_age", maxAge, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := cs.chat.RetentionSweep(ctx, now.Add(-maxAge))
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					cs.log.Error("retention sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				cs.stats.Add(stats.NumSweptMessages, n)
			}
		}
	}
}
