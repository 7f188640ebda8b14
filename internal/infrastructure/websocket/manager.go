package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"petadopt/internal/domain/entity"
	"petadopt/internal/infrastructure/ratelimit"
	"petadopt/internal/metrics"
	"petadopt/internal/usecase"
	"petadopt/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
	sendBuffer     = 64
)

// SessionFactory builds the messaging session a connection drives. onUpdate
// must be wired to the session's update callback.
type SessionFactory func(user *entity.User, onUpdate func()) *usecase.MessagingSession

// Client is one WebSocket connection and the session behind it.
type Client struct {
	ID      string
	User    *entity.User
	Conn    *websocket.Conn
	Send    chan []byte
	Session *usecase.MessagingSession

	// dirty holds at most one pending state push; bursts of session updates
	// collapse into a single snapshot.
	dirty chan struct{}
}

// Manager tracks active connections.
type Manager struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
	done       chan struct{}

	newSession SessionFactory
	limiter    *ratelimit.RateLimiter
	log        zerolog.Logger
}

func NewManager(newSession SessionFactory, limiter *ratelimit.RateLimiter) *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		newSession: newSession,
		limiter:    limiter,
		log:        logger.Component("websocket"),
	}
}

// Start runs the manager's main loop until ctx is done, then closes every
// remaining session.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client.ID] = client
				m.mutex.Unlock()
				metrics.ActiveSessions.Inc()
				m.log.Info().Str("client", client.ID).Str("user", client.User.ID).Msg("client registered")

			case client := <-m.Unregister:
				m.remove(client)

			case <-ctx.Done():
				close(m.done)
				m.mutex.RLock()
				clients := make([]*Client, 0, len(m.clients))
				for _, client := range m.clients {
					clients = append(clients, client)
				}
				m.mutex.RUnlock()
				for _, client := range clients {
					m.remove(client)
				}
				return
			}
		}
	}()
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	_, ok := m.clients[client.ID]
	if ok {
		delete(m.clients, client.ID)
		close(client.Send)
	}
	m.mutex.Unlock()

	if !ok {
		return
	}
	client.Session.Close()
	metrics.ActiveSessions.Dec()
	m.log.Info().Str("client", client.ID).Str("user", client.User.ID).Msg("client unregistered")
}

// ClientCount returns the number of registered connections.
func (m *Manager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// Serve attaches an upgraded connection for user and returns once its pumps
// are running.
func (m *Manager) Serve(ctx context.Context, conn *websocket.Conn, user *entity.User) *Client {
	client := &Client{
		ID:    uuid.New().String(),
		User:  user,
		Conn:  conn,
		Send:  make(chan []byte, sendBuffer),
		dirty: make(chan struct{}, 1),
	}
	client.Session = m.newSession(user, client.markDirty)

	select {
	case m.Register <- client:
	case <-m.done:
		client.Session.Close()
		conn.Close()
		return client
	}
	go client.WritePump()

	client.Session.Start(ctx)
	go client.ReadPump(m)

	return client
}

func (c *Client) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// ReadPump reads frames from the connection until it fails or closes.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		select {
		case m.Unregister <- c:
		case <-m.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.log.Warn().Err(err).Str("client", c.ID).Msg("unexpected close")
			}
			break
		}

		m.HandleClientMessage(context.Background(), c, message)
	}
}

// WritePump owns all writes to the connection: queued frames, coalesced
// session state and keepalive pings.
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
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.dirty:
			frame, err := json.Marshal(WSMessage{
				Type:      MessageTypeState,
				Data:      c.Session.Snapshot(),
				Timestamp: time.Now().Format(time.RFC3339),
			})
			if err != nil {
				logger.Error("WritePump Error: Failed to encode state for client %s: %v", c.ID, err)
				continue
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
