package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Axshuman/live-polling-system/internal/models"
	"github.com/Axshuman/live-polling-system/internal/registry"
	"github.com/Axshuman/live-polling-system/internal/scheduler"
)

// Notifier receives the poll transitions the engine itself decides: the
// per-vote update for the coordinator and the closure broadcast for the
// whole session. Closure can fire without an inbound intent (deadline), so
// it cannot live in the request path. Implemented by the realtime hub.
//
// Callbacks run with the session lock held, which is what keeps updates in
// vote order and guarantees no update lands after the closure broadcast.
// Implementations must enqueue and return; they must not call back into the
// engine.
type Notifier interface {
	PollUpdated(sessionID string, results *models.PollResults)
	PollClosed(sessionID string, results *models.PollResults)
}

// Engine enforces the single-active-poll rule and orchestrates poll closure.
// All mutation of one session happens under that session's lock, so the only
// real race, a deadline firing against a final accepted vote, reduces to lock
// ordering plus the idempotent Close guard.
type Engine struct {
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	notifier  Notifier
	logger    *zap.Logger
}

// New wires the engine to its collaborators.
func New(reg *registry.Registry, sched *scheduler.Scheduler, n Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		registry:  reg,
		scheduler: sched,
		notifier:  n,
		logger:    logger,
	}
}

// StartedPoll is the result of a successful StartPoll: the student-facing
// prompt and the coordinator-facing zero-vote results view, both taken under
// the session lock before any vote can arrive.
type StartedPoll struct {
	PollID  string
	Prompt  *models.PollPrompt
	Results *models.PollResults
}

// StartPoll starts a new poll on the session. It fails with ErrPollConflict
// while the previous poll is active and unresolved, and with a validation
// error for a malformed definition. A still-active previous poll whose
// students have all answered (possible only with an empty session) is
// finalized first so its deadline cannot fire on a replaced poll.
func (e *Engine) StartPoll(sessionID, callerID, question string, options []string, timeLimit int) (*StartedPoll, error) {
	if err := e.registry.AuthorizeCoordinator(sessionID, callerID); err != nil {
		return nil, err
	}
	s, err := e.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	s.Lock()
	var replaced *models.PollResults
	if cur := s.CurrentPoll; cur != nil && cur.Active {
		if !s.AllAnswered() {
			s.Unlock()
			return nil, models.ErrPollConflict
		}
		replaced = e.closeLocked(s, cur)
	}
	poll, err := models.NewPoll(sessionID, question, options, timeLimit)
	if err != nil {
		s.Unlock()
		return nil, err
	}
	s.ResetAnswers()
	s.CurrentPoll = poll
	started := &StartedPoll{PollID: poll.ID, Prompt: poll.Prompt(), Results: poll.Results()}
	if replaced != nil {
		e.notifier.PollClosed(sessionID, replaced)
	}
	s.Unlock()

	e.scheduler.Arm(poll.ID, time.Duration(timeLimit)*time.Second, func() {
		e.expire(sessionID, poll.ID)
	})
	e.logger.Info("poll started",
		zap.String("session_id", sessionID),
		zap.String("poll_id", poll.ID),
		zap.Int("time_limit_sec", timeLimit),
		zap.Int("options", len(options)),
	)
	return started, nil
}

// SubmitAnswer records a student's vote on the session's current poll. On
// acceptance the coordinator gets an updated results view; when this was the
// last outstanding answer and the session is non-empty, the poll is closed
// synchronously before returning.
func (e *Engine) SubmitAnswer(sessionID, pollID, studentID string, optionIndex int) error {
	s, err := e.registry.Get(sessionID)
	if err != nil {
		return err
	}

	s.Lock()
	poll := s.CurrentPoll
	if poll == nil || poll.ID != pollID {
		s.Unlock()
		return models.ErrPollNotFound
	}
	st, ok := s.Students[studentID]
	if !ok {
		s.Unlock()
		return models.ErrStudentNotFound
	}
	if st.HasAnswered {
		s.Unlock()
		return models.ErrAlreadyAnswered
	}
	if !poll.Active {
		s.Unlock()
		return models.ErrPollClosed
	}
	if optionIndex < 0 || optionIndex >= len(poll.Options) {
		s.Unlock()
		return fmt.Errorf("%w: option index %d out of range", models.ErrValidation, optionIndex)
	}
	if !poll.RecordVote(studentID, optionIndex) {
		// RecordVote is the admission gate of record; anything it still
		// rejects here is a duplicate slipping past the flag check.
		s.Unlock()
		return models.ErrAlreadyAnswered
	}
	st.HasAnswered = true
	e.notifier.PollUpdated(sessionID, poll.Results())
	var final *models.PollResults
	if len(s.Students) > 0 && s.AllAnswered() {
		if final = e.closeLocked(s, poll); final != nil {
			e.notifier.PollClosed(sessionID, final)
		}
	}
	s.Unlock()

	if final != nil {
		e.logger.Info("poll closed, all answered",
			zap.String("session_id", sessionID),
			zap.String("poll_id", pollID),
			zap.Int("total_votes", final.TotalVotes),
		)
	}
	return nil
}

// closeLocked finalizes a poll: cancel its deadline, close it, snapshot the
// results and append them to history. Callers hold the session lock. Returns
// nil when the poll is already closed, making the loser of the closure race
// a no-op.
func (e *Engine) closeLocked(s *models.Session, poll *models.Poll) *models.PollResults {
	if !poll.Active {
		return nil
	}
	e.scheduler.Cancel(poll.ID)
	poll.Close()
	results := poll.Results()
	s.History = append(s.History, results)
	return results
}

// expire is the deadline trigger. The session may have been torn down or the
// poll replaced since the timer was armed; both cases are a silent no-op.
func (e *Engine) expire(sessionID, pollID string) {
	s, err := e.registry.Get(sessionID)
	if err != nil {
		return
	}
	s.Lock()
	poll := s.CurrentPoll
	if poll == nil || poll.ID != pollID {
		s.Unlock()
		return
	}
	final := e.closeLocked(s, poll)
	if final != nil {
		e.notifier.PollClosed(sessionID, final)
	}
	s.Unlock()

	if final != nil {
		e.logger.Info("poll closed, deadline elapsed",
			zap.String("session_id", sessionID),
			zap.String("poll_id", pollID),
			zap.Int("total_votes", final.TotalVotes),
		)
	}
}

// Snapshot is the read-only view of a session handed to late consumers: the
// roster, the current poll's results view (nil when none) and the history.
// Everything in it is a copy, safe to marshal after the lock is released.
type Snapshot struct {
	ID          string                `json:"id"`
	Students    []models.Student      `json:"students"`
	CurrentPoll *models.PollResults   `json:"currentPoll"`
	History     []*models.PollResults `json:"pollHistory"`
}

// Snapshot returns a consistent view of the session.
func (e *Engine) Snapshot(sessionID string) (*Snapshot, error) {
	s, err := e.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()
	snap := &Snapshot{
		ID:       s.ID,
		Students: s.StudentList(),
		History:  append(make([]*models.PollResults, 0, len(s.History)), s.History...),
	}
	if s.CurrentPoll != nil {
		snap.CurrentPoll = s.CurrentPoll.Results()
	}
	return snap, nil
}

// HandleDisconnect routes a dropped connection through the registry and, when
// the loss tears a session down, disarms its poll deadline so the timer
// cannot fire on a dead session. A student who leaves mid-poll simply stops
// counting toward the all-answered condition; the poll still closes on its
// deadline, matching the live behavior students observe.
func (e *Engine) HandleDisconnect(connID string) registry.Disconnect {
	res := e.registry.HandleDisconnect(connID)
	if res.TornDown != nil {
		if p := res.TornDown.CurrentPoll; p != nil {
			e.scheduler.Cancel(p.ID)
		}
	}
	return res
}
