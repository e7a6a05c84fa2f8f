// Package hub provides connection management for WebSocket feed clients.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection represents a single WebSocket connection. A connection carries
// events for at most one owner, bound after a successful hello.
type Connection struct {
	ID      string
	OwnerID string
	Conn    *websocket.Conn
	Send    chan []byte
	mu      sync.Mutex
}

// Hub manages all WebSocket connections, indexed by owner.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// owners maps owner_id to set of connection IDs
	owners map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *OwnerMessage

	mu sync.RWMutex
}

// OwnerMessage is used to broadcast a message to all of an owner's
// connections.
type OwnerMessage struct {
	OwnerID string
	Data    []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		owners:      make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *OwnerMessage, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if conn.OwnerID != "" && h.owners[conn.OwnerID] != nil {
					delete(h.owners[conn.OwnerID], conn.ID)
					if len(h.owners[conn.OwnerID]) == 0 {
						delete(h.owners, conn.OwnerID)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("Connection unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if connIDs, ok := h.owners[msg.OwnerID]; ok {
				for connID := range connIDs {
					if conn, exists := h.connections[connID]; exists {
						select {
						case conn.Send <- msg.Data:
						default:
							// Buffer full, close the connection
							log.Printf("Connection %s buffer full, closing", connID)
							go h.Unregister(conn)
						}
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a new unbound connection.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, 256),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BindOwner binds a connection to an owner so it receives that owner's feed.
func (h *Hub) BindOwner(conn *Connection, ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn.OwnerID != "" && h.owners[conn.OwnerID] != nil {
		delete(h.owners[conn.OwnerID], conn.ID)
		if len(h.owners[conn.OwnerID]) == 0 {
			delete(h.owners, conn.OwnerID)
		}
	}

	conn.OwnerID = ownerID
	if h.owners[ownerID] == nil {
		h.owners[ownerID] = make(map[string]bool)
	}
	h.owners[ownerID][conn.ID] = true
}

// Broadcast sends a message to all connections of an owner.
func (h *Hub) Broadcast(ownerID string, data []byte) {
	h.broadcast <- &OwnerMessage{
		OwnerID: ownerID,
		Data:    data,
	}
}

// BroadcastJSON sends a JSON message to all connections of an owner.
func (h *Hub) BroadcastJSON(ownerID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(ownerID, data)
	return nil
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
