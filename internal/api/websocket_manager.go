package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/pubsub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by the CORS layer and token auth
	},
}

type Client struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string
}

type WebSocketManager struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	// Map userID to list of active clients (for multi-device support)
	userClients map[string]map[*Client]bool
	done        chan struct{}
	mu          sync.RWMutex
	logger      *zap.Logger
}

func NewWebSocketManager(logger *zap.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		userClients: make(map[string]map[*Client]bool),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run serialises client registration until ctx ends, then drops every
// remaining connection. Their read loops tear the sessions down.
func (m *WebSocketManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(m.done)
			m.mu.Lock()
			for client := range m.clients {
				client.Conn.Close()
			}
			m.mu.Unlock()
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			if _, ok := m.userClients[client.UserID]; !ok {
				m.userClients[client.UserID] = make(map[*Client]bool)
			}
			m.userClients[client.UserID][client] = true
			m.mu.Unlock()
			m.logger.Debug("Client registered", zap.String("userID", client.UserID))

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				if userMap, ok := m.userClients[client.UserID]; ok {
					delete(userMap, client)
					if len(userMap) == 0 {
						delete(m.userClients, client.UserID)
					}
				}
				close(client.Send)
				m.logger.Debug("Client unregistered", zap.String("userID", client.UserID))
			}
			m.mu.Unlock()
		}
	}
}

// add registers c unless the manager has shut down.
func (m *WebSocketManager) add(c *Client) bool {
	select {
	case m.register <- c:
		return true
	case <-m.done:
		return false
	}
}

// Connected returns how many connections userID currently has.
func (m *WebSocketManager) Connected(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.userClients[userID])
}

// SendToUser sends a message to a specific user's connected clients
func (m *WebSocketManager) SendToUser(userID string, message interface{}) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		m.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for client := range m.userClients[userID] {
		select {
		case client.Send <- jsonMsg:
		default:
			// slow client; its read loop notices the dead connection
		}
	}
}

// ConsumeEvents forwards bus events to the local connections of their user
// until ctx ends.
func (m *WebSocketManager) ConsumeEvents(ctx context.Context, bus pubsub.Bus) {
	err := bus.Subscribe(ctx, func(e pubsub.Event) {
		m.SendToUser(e.User, WSEvent{Type: e.Type, Payload: e.Payload})
	})
	if err != nil {
		m.logger.Error("Event subscription stopped", zap.Error(err))
	}
}

// WebSocket Event types
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ReadPump reads client actions until the connection drops. The session is
// torn down before the client is unregistered so nothing writes to a closed
// Send channel.
func (c *Client) ReadPump(manager *WebSocketManager, sess *session) {
	defer func() {
		sess.close()
		select {
		case manager.unregister <- c:
		case <-manager.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sess.start()
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				manager.logger.Debug("WebSocket closed unexpectedly", zap.String("userID", c.UserID), zap.Error(err))
			}
			break
		}
		sess.handle(data)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one event per frame so clients can parse each as JSON
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
