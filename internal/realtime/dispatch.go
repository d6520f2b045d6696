package realtime

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/Axshuman/live-polling-system/internal/models"
)

var (
	errUnknownIntent    = errors.New("unknown event")
	errBadPayload       = errors.New("malformed payload")
	errAlreadyInSession = errors.New("connection already belongs to a session")
)

// ack is the payload of an intent reply.
type ack map[string]interface{}

type joinSessionRequest struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

type startPollRequest struct {
	SessionID string   `json:"sessionId"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	// pointer so an omitted limit takes the configured default while an
	// explicit zero is rejected as invalid
	TimeLimit *int `json:"timeLimit"`
}

type submitAnswerRequest struct {
	SessionID string `json:"sessionId"`
	PollID    string `json:"pollId"`
	// pointer so a missing index is distinguishable from option 0
	OptionIndex *int `json:"optionIndex"`
}

type removeStudentRequest struct {
	SessionID string `json:"sessionId"`
	StudentID string `json:"studentId"`
}

type getSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type pollActivePayload struct {
	Poll *models.PollPrompt `json:"poll"`
}

type pollCreatedPayload struct {
	Poll *models.PollResults `json:"poll"`
}

func (c *Client) reply(event string, payload interface{}) {
	msg, err := envelope(event, payload)
	if err != nil {
		c.logger.Warn("drop unencodable ack", zap.String("event", event), zap.Error(err))
		return
	}
	c.enqueue(msg)
}

func (c *Client) okAck(event string, fields ack) {
	if fields == nil {
		fields = ack{}
	}
	fields["success"] = true
	c.reply(event, fields)
}

// nack converts any engine/registry error into the {success: false, error}
// boundary shape. Nothing crosses this boundary as a panic or a dropped
// connection.
func (c *Client) nack(event string, err error) {
	c.reply(event, ack{"success": false, "error": err.Error()})
}

func (c *Client) handleCreateSession() {
	if _, in := c.registry.SessionOf(c.ID); in {
		c.nack(IntentCreateSession, errAlreadyInSession)
		return
	}
	s := c.registry.Create(c.ID)
	c.hub.Bind(c, s.ID, RoleCoordinator)
	c.okAck(IntentCreateSession, ack{"sessionId": s.ID})
}

func (c *Client) handleJoinSession(data json.RawMessage) {
	var req joinSessionRequest
	if err := json.Unmarshal(data, &req); err != nil || req.SessionID == "" || req.Name == "" {
		c.nack(IntentJoinSession, errBadPayload)
		return
	}
	if _, in := c.registry.SessionOf(c.ID); in {
		c.nack(IntentJoinSession, errAlreadyInSession)
		return
	}
	s, st, err := c.registry.Join(req.SessionID, c.ID, req.Name)
	if err != nil {
		c.nack(IntentJoinSession, err)
		return
	}
	c.hub.Bind(c, s.ID, RoleStudent)

	s.Lock()
	roster := s.StudentList()
	var prompt *models.PollPrompt
	if p := s.CurrentPoll; p != nil && p.Active {
		prompt = p.Prompt()
	}
	s.Unlock()

	c.hub.SendToCoordinator(s.ID, EventStudentJoined, ack{
		"studentId":   st.ID,
		"studentName": st.Name,
		"students":    roster,
	})
	// A student joining mid-poll gets the running question right away.
	if prompt != nil {
		c.hub.SendToClient(c.ID, EventPollActive, pollActivePayload{Poll: prompt})
	}
	c.okAck(IntentJoinSession, ack{
		"sessionId": s.ID,
		"studentId": st.ID,
		"students":  roster,
	})
}

func (c *Client) handleStartPoll(data json.RawMessage) {
	var req startPollRequest
	if err := json.Unmarshal(data, &req); err != nil || req.SessionID == "" {
		c.nack(IntentStartPoll, errBadPayload)
		return
	}
	timeLimit := c.defaultTimeLimit
	if req.TimeLimit != nil {
		timeLimit = *req.TimeLimit
	}
	started, err := c.engine.StartPoll(req.SessionID, c.ID, req.Question, req.Options, timeLimit)
	if err != nil {
		c.nack(IntentStartPoll, err)
		return
	}
	c.hub.BroadcastToStudents(req.SessionID, EventPollActive, pollActivePayload{Poll: started.Prompt})
	c.hub.SendToCoordinator(req.SessionID, EventPollCreated, pollCreatedPayload{Poll: started.Results})
	c.okAck(IntentStartPoll, ack{"pollId": started.PollID})
}

func (c *Client) handleSubmitAnswer(data json.RawMessage) {
	var req submitAnswerRequest
	if err := json.Unmarshal(data, &req); err != nil || req.SessionID == "" || req.PollID == "" || req.OptionIndex == nil {
		c.nack(IntentSubmitAnswer, errBadPayload)
		return
	}
	if err := c.engine.SubmitAnswer(req.SessionID, req.PollID, c.ID, *req.OptionIndex); err != nil {
		c.nack(IntentSubmitAnswer, err)
		return
	}
	c.okAck(IntentSubmitAnswer, nil)
}

func (c *Client) handleRemoveStudent(data json.RawMessage) {
	var req removeStudentRequest
	if err := json.Unmarshal(data, &req); err != nil || req.SessionID == "" || req.StudentID == "" {
		c.nack(IntentRemoveStudent, errBadPayload)
		return
	}
	if err := c.registry.AuthorizeCoordinator(req.SessionID, c.ID); err != nil {
		c.nack(IntentRemoveStudent, err)
		return
	}
	roster, err := c.registry.Remove(req.SessionID, req.StudentID)
	if err != nil {
		c.nack(IntentRemoveStudent, err)
		return
	}
	// Tell the student first, then drop the connection. The registry entry
	// is already gone, so the disconnect path won't double-report a leave.
	c.hub.SendToClient(req.StudentID, EventRemoved, nil)
	c.hub.Unbind(req.StudentID)
	c.hub.CloseClient(req.StudentID)
	c.hub.SendToCoordinator(req.SessionID, EventStudentRemoved, ack{
		"studentId": req.StudentID,
		"students":  roster,
	})
	c.okAck(IntentRemoveStudent, nil)
}

func (c *Client) handleGetSession(data json.RawMessage) {
	var req getSessionRequest
	if err := json.Unmarshal(data, &req); err != nil || req.SessionID == "" {
		c.nack(IntentGetSession, errBadPayload)
		return
	}
	snap, err := c.engine.Snapshot(req.SessionID)
	if err != nil {
		c.nack(IntentGetSession, err)
		return
	}
	c.okAck(IntentGetSession, ack{"session": snap})
}

// handleDisconnect runs when the connection drops for any reason. Losing the
// coordinator ends the session for everyone; losing a student only shrinks
// the roster.
func (c *Client) handleDisconnect() {
	res := c.engine.HandleDisconnect(c.ID)
	if res.TornDown != nil {
		c.hub.BroadcastToStudents(res.TornDown.ID, EventSessionEnded, nil)
		c.hub.Release(res.TornDown.ID)
		c.logger.Info("coordinator disconnected, session ended",
			zap.String("session_id", res.TornDown.ID))
	}
	if res.Left != nil && res.Student != nil {
		c.hub.SendToCoordinator(res.Left.ID, EventStudentLeft, ack{
			"studentId":   res.Student.ID,
			"studentName": res.Student.Name,
			"students":    res.Roster,
		})
	}
}
