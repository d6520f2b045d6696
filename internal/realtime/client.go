package realtime

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Axshuman/live-polling-system/internal/engine"
	"github.com/Axshuman/live-polling-system/internal/registry"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Client is one WebSocket connection. Its ID is the connection identity the
// rest of the system keys on: it becomes the coordinator id when the client
// creates a session and the student id when it joins one.
type Client struct {
	ID       string
	JoinedAt time.Time

	// session membership, guarded by hub.mu
	sessionID string
	role      string

	hub              *Hub
	engine           *engine.Engine
	registry         *registry.Registry
	defaultTimeLimit int
	conn             *websocket.Conn
	send             chan Message
	logger           *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The
// connection needs no credentials: its freshly issued client id is the only
// identity the session layer uses.
func ServeWs(hub *Hub, eng *engine.Engine, reg *registry.Registry, defaultTimeLimit int, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:               uuid.New().String(),
			JoinedAt:         time.Now(),
			hub:              hub,
			engine:           eng,
			registry:         reg,
			defaultTimeLimit: defaultTimeLimit,
			conn:             conn,
			send:             make(chan Message, 256),
			logger:           logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.handleDisconnect()
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case IntentCreateSession:
			c.handleCreateSession()
		case IntentJoinSession:
			c.handleJoinSession(msg.Data)
		case IntentStartPoll:
			c.handleStartPoll(msg.Data)
		case IntentSubmitAnswer:
			c.handleSubmitAnswer(msg.Data)
		case IntentRemoveStudent:
			c.handleRemoveStudent(msg.Data)
		case IntentGetSession:
			c.handleGetSession(msg.Data)
		default:
			c.nack(msg.Event, errUnknownIntent)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a message to the write pump without blocking; a client whose
// buffer is full misses the message rather than stalling the broadcast.
func (c *Client) enqueue(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}
