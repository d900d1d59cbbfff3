package realtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	ErrNoSubscribers = errors.New("realtime: no subscribers in room")
	ErrQueueFull     = errors.New("realtime: dispatch queue full")
)

const (
	userRoomPrefix  = "user:"
	ideaRoomPrefix  = "idea:"
	groupRoomPrefix = "group:"
)

func UserRoom(userID string) string   { return userRoomPrefix + userID }
func IdeaRoom(ideaID string) string   { return ideaRoomPrefix + ideaID }
func GroupRoom(groupID string) string { return groupRoomPrefix + groupID }

// ValidRoom reports whether key names one of the known room kinds with a
// non-empty id.
func ValidRoom(key string) bool {
	for _, prefix := range []string{userRoomPrefix, ideaRoomPrefix, groupRoomPrefix} {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return true
		}
	}
	return false
}

// Message is one realtime event addressed to a room.
type Message struct {
	Room   string    `json:"room"`
	Type   string    `json:"type"`
	Data   any       `json:"data,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// Publisher delivers a message to whoever is currently joined to its room.
// Implementations never block on slow consumers.
type Publisher interface {
	Push(ctx context.Context, msg Message) error
}

// Hub keeps room membership in memory and fans messages out from a single
// dispatch goroutine, so messages to one room arrive in the order they were
// pushed.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}

	queue  chan Message
	logger *slog.Logger
}

func NewHub(queueSize int, logger *slog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:   map[string]map[*Client]struct{}{},
		clients: map[*Client]map[string]struct{}{},
		queue:   make(chan Message, queueSize),
		logger:  logger,
	}
}

// Run drains the dispatch queue until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.queue:
			h.dispatch(msg)
		}
	}
}

func (h *Hub) dispatch(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[msg.Room] {
		if client.deliver(msg) {
			pushesTotal.WithLabelValues("delivered").Inc()
			continue
		}
		pushesTotal.WithLabelValues("dropped").Inc()
		h.logger.Warn("realtime message dropped", "room", msg.Room, "type", msg.Type, "client", client.ID)
	}
}

func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = map[*Client]struct{}{}
		h.rooms[room] = members
	}
	members[client] = struct{}{}

	joined := h.clients[client]
	if joined == nil {
		joined = map[string]struct{}{}
		h.clients[client] = joined
	}
	joined[room] = struct{}{}
}

func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, room)
}

func (h *Hub) leaveLocked(client *Client, room string) {
	if members := h.rooms[room]; members != nil {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if joined := h.clients[client]; joined != nil {
		delete(joined, room)
		if len(joined) == 0 {
			delete(h.clients, client)
		}
	}
}

// Disconnect removes the client from every room and closes its outbound
// channel.
func (h *Hub) Disconnect(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.clients[client] {
		h.leaveLocked(client, room)
	}
	delete(h.clients, client)
	if !client.closed {
		client.closed = true
		close(client.send)
	}
}

func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms lists the rooms a client has joined.
func (h *Hub) Rooms(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.clients[client]))
	for room := range h.clients[client] {
		out = append(out, room)
	}
	return out
}

// Push enqueues msg for its room. It returns ErrNoSubscribers when nobody is
// joined and ErrQueueFull when the dispatcher is saturated; both are safe to
// ignore.
func (h *Hub) Push(_ context.Context, msg Message) error {
	if h.Members(msg.Room) == 0 {
		pushesTotal.WithLabelValues("no_subscribers").Inc()
		return ErrNoSubscribers
	}
	return h.enqueue(msg)
}

// Broadcast enqueues a message without checking membership.
func (h *Hub) Broadcast(room, msgType string, data any) error {
	return h.enqueue(Message{Room: room, Type: msgType, Data: data})
}

func (h *Hub) enqueue(msg Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	select {
	case h.queue <- msg:
		return nil
	default:
		pushesTotal.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

// Send delivers msg to a single client, bypassing rooms.
func (h *Hub) Send(client *Client, msg Message) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.closed {
		return false
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	return client.deliver(msg)
}
