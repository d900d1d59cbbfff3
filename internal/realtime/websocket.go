package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 4096
	clientBuffer   = 32
	ActionJoin     = "join"
	ActionLeave    = "leave"
	frameJoined    = "room.joined"
	frameLeft      = "room.left"
	frameError     = "error"
	frameConnected = "connected"
)

// Frame is what a websocket client sends to manage its topic rooms.
type Frame struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// Server upgrades HTTP requests to websocket connections bound to a hub.
type Server struct {
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer accepts connections from allowedOrigin, or from any origin when
// it is empty or "*".
func NewServer(hub *Hub, allowedOrigin string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if allowedOrigin == "" || allowedOrigin == "*" || origin == "" {
					return true
				}
				return strings.EqualFold(origin, allowedOrigin)
			},
		},
	}
}

// Serve upgrades the request for an already authenticated user and blocks
// until the connection closes. The connection starts joined to the user's
// personal room.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	client := NewClient(userID, clientBuffer)
	s.hub.Join(client, UserRoom(userID))
	connectionsActive.Inc()
	s.logger.Info("realtime connected", "user_id", userID, "client", client.ID)

	ctx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(ctx, conn, client)
	}()

	s.hub.Send(client, Message{Room: UserRoom(userID), Type: frameConnected, Data: map[string]any{"client": client.ID}})
	s.readPump(conn, client)

	cancel()
	s.hub.Disconnect(client)
	<-done
	_ = conn.Close()
	connectionsActive.Dec()
	s.logger.Info("realtime disconnected", "user_id", userID, "client", client.ID)
}

func (s *Server) readPump(conn *websocket.Conn, client *Client) {
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err, "client", client.ID)
			}
			return
		}
		s.handleFrame(client, frame)
	}
}

func (s *Server) handleFrame(client *Client, frame Frame) {
	room := strings.TrimSpace(frame.Room)
	if err := authorizeRoom(client.UserID, room); err != "" {
		s.hub.Send(client, Message{Room: room, Type: frameError, Data: map[string]any{"error": err}})
		return
	}

	switch frame.Action {
	case ActionJoin:
		s.hub.Join(client, room)
		s.hub.Send(client, Message{Room: room, Type: frameJoined})
	case ActionLeave:
		s.hub.Leave(client, room)
		s.hub.Send(client, Message{Room: room, Type: frameLeft})
	default:
		s.hub.Send(client, Message{Room: room, Type: frameError, Data: map[string]any{"error": "unknown action"}})
	}
}

// authorizeRoom returns a non-empty reason when the user may not use room.
func authorizeRoom(userID, room string) string {
	if !ValidRoom(room) {
		return "unknown room"
	}
	if strings.HasPrefix(room, userRoomPrefix) && room != UserRoom(userID) {
		return "cannot join another user's room"
	}
	return ""
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Warn("websocket write failed", "error", err, "client", client.ID)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
