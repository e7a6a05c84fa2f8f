// Package ws serves the live change feed to subscribed clients.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"chatrelay/auth"
	"chatrelay/config"
	"chatrelay/hub"
	"chatrelay/protocol"
	"chatrelay/store"
)

// Server handles WebSocket feed connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	store    store.Store
	resolver auth.Resolver
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket feed server.
func NewServer(cfg *config.Config, h *hub.Hub, st store.Store, resolver auth.Resolver) *Server {
	return &Server{
		cfg:      cfg,
		hub:      h,
		store:    st,
		resolver: resolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run subscribes to the store's insert feed and fans committed inserts out to
// the owning user's connections. It returns when ctx is cancelled; the
// subscription is released on every exit path.
func (s *Server) Run(ctx context.Context) {
	inserts, cancel := s.store.SubscribeInserts()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inserts:
			if !ok {
				return
			}
			event := protocol.MessageEvent{
				BaseMessage: protocol.BaseMessage{
					Type: protocol.TypeMessage,
					Ts:   time.Now().UnixMilli(),
				},
				ID:        msg.ID,
				OwnerID:   msg.OwnerID,
				Text:      msg.Text,
				IsBot:     msg.IsBot,
				CreatedAt: msg.CreatedAt,
			}
			if err := s.hub.BroadcastJSON(msg.OwnerID, event); err != nil {
				log.Printf("ERROR: failed to broadcast insert: %v", err)
			}
		}
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
// GET /ws
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeHello:
		s.handleHello(conn, data)
	default:
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello authenticates the subscription and binds the connection to the
// session's owner.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	identity, err := s.resolver.Resolve(ctx, msg.Token)
	if err != nil {
		log.Printf("ERROR: failed to resolve session: %v", err)
		s.sendError(conn, protocol.ErrorCodeUnauthorized, "session lookup failed")
		return
	}
	if identity == nil {
		s.sendError(conn, protocol.ErrorCodeUnauthorized, "invalid session token")
		return
	}

	s.hub.BindOwner(conn, identity.UserID)

	ack := protocol.HelloAckMessage{
		BaseMessage: protocol.BaseMessage{
			Type: protocol.TypeHelloAck,
			Ts:   time.Now().UnixMilli(),
		},
		UserID: identity.UserID,
	}
	s.hub.SendJSONToConnection(conn, ack)

	log.Printf("Feed subscription established for user: %s", identity.UserID)
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, code, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type: protocol.TypeError,
			Ts:   time.Now().UnixMilli(),
		},
		Code:    code,
		Message: message,
	}
	s.hub.SendJSONToConnection(conn, errMsg)
}
