package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/Axshuman/live-polling-system/internal/models"
)

// Client roles within a session.
const (
	RoleCoordinator = "coordinator"
	RoleStudent     = "student"
)

// Message is the WebSocket envelope in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub tracks every connected client and the session each one belongs to, and
// fans engine transitions out to the right audience: the whole session, the
// students only, the coordinator only, or one client. It holds no poll state.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client            // all connections by client id
	sessions map[string]map[string]*Client // session id -> member clients
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		sessions: make(map[string]map[string]*Client),
		logger:   logger,
	}
}

// Register adds a freshly upgraded connection. The client belongs to no
// session until it creates or joins one.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID))
}

// Unregister drops a connection and its session membership, if any.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	if c.sessionID != "" {
		if members, ok := h.sessions[c.sessionID]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.sessions, c.sessionID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
}

// Bind attaches a client to a session under a role. Called when a session is
// created (coordinator) or joined (student).
func (h *Hub) Bind(c *Client, sessionID, role string) {
	h.mu.Lock()
	c.sessionID = sessionID
	c.role = role
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]*Client)
	}
	h.sessions[sessionID][c.ID] = c
	h.mu.Unlock()
}

// Unbind detaches one client from its session without closing the
// connection. Used when the coordinator removes a student.
func (h *Hub) Unbind(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if ok && c.sessionID != "" {
		if members, okm := h.sessions[c.sessionID]; okm {
			delete(members, clientID)
			if len(members) == 0 {
				delete(h.sessions, c.sessionID)
			}
		}
		c.sessionID = ""
		c.role = ""
	}
	h.mu.Unlock()
}

// Release detaches every member of a torn-down session. The connections stay
// open; the terminal notice has already been delivered.
func (h *Hub) Release(sessionID string) {
	h.mu.Lock()
	for _, c := range h.sessions[sessionID] {
		c.sessionID = ""
		c.role = ""
	}
	delete(h.sessions, sessionID)
	h.mu.Unlock()
}

// SessionOf returns the session a client is currently bound to.
func (h *Hub) SessionOf(clientID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[clientID]; ok {
		return c.sessionID
	}
	return ""
}

// BroadcastToSession sends an event to every member of a session.
func (h *Hub) BroadcastToSession(sessionID, event string, payload interface{}) {
	h.fanOut(sessionID, event, payload, func(*Client) bool { return true })
}

// BroadcastToStudents sends an event to the students of a session only.
func (h *Hub) BroadcastToStudents(sessionID, event string, payload interface{}) {
	h.fanOut(sessionID, event, payload, func(c *Client) bool { return c.role == RoleStudent })
}

// SendToCoordinator sends an event to the session's coordinator only.
func (h *Hub) SendToCoordinator(sessionID, event string, payload interface{}) {
	h.fanOut(sessionID, event, payload, func(c *Client) bool { return c.role == RoleCoordinator })
}

// SendToClient sends an event to one connection, session member or not.
func (h *Hub) SendToClient(clientID, event string, payload interface{}) {
	msg, err := envelope(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c != nil {
		c.enqueue(msg)
	}
}

// CloseClient tears one connection down. The close error surfaces in the
// client's read pump, which runs the normal disconnect path.
func (h *Hub) CloseClient(clientID string) {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c != nil {
		_ = c.conn.Close()
	}
}

// PollUpdated implements engine.Notifier: live results go to the coordinator
// only while the poll runs.
func (h *Hub) PollUpdated(sessionID string, results *models.PollResults) {
	h.SendToCoordinator(sessionID, EventPollUpdate, results)
}

// PollClosed implements engine.Notifier: the final snapshot goes to every
// session member, whichever trigger closed the poll.
func (h *Hub) PollClosed(sessionID string, results *models.PollResults) {
	h.BroadcastToSession(sessionID, EventPollResults, results)
}

func (h *Hub) fanOut(sessionID, event string, payload interface{}, want func(*Client) bool) {
	msg, err := envelope(event, payload)
	if err != nil {
		h.logger.Warn("drop unencodable payload", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	members := h.sessions[sessionID]
	targets := make([]*Client, 0, len(members))
	for _, c := range members {
		if want(c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(msg)
	}
}

func envelope(event string, payload interface{}) (Message, error) {
	var data json.RawMessage
	switch v := payload.(type) {
	case nil:
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		data = b
	}
	return Message{Event: event, Data: data}, nil
}
