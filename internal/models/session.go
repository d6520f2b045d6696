package models

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Student is a connected respondent within a session. Its ID equals the
// identity of the underlying connection.
type Student struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	HasAnswered bool      `json:"hasAnswered"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Session is one coordinator's polling context: its student set, the current
// poll (nil when none) and the results of every closed poll in closure order.
// Mutators do not lock; callers serialize per session via Lock/Unlock.
type Session struct {
	ID            string
	CoordinatorID string
	Students      map[string]*Student
	CurrentPoll   *Poll
	History       []*PollResults
	CreatedAt     time.Time

	mu sync.Mutex
}

// NewSession creates an empty session owned by the given coordinator
// connection. The coordinator identity never changes afterwards.
func NewSession(coordinatorID string) *Session {
	return &Session{
		ID:            uuid.New().String(),
		CoordinatorID: coordinatorID,
		Students:      make(map[string]*Student),
		History:       make([]*PollResults, 0),
		CreatedAt:     time.Now(),
	}
}

// Lock acquires the session's mutation lock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's mutation lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// AddStudent upserts a student. A re-join under the same connection updates
// the display name but keeps the join time and the has-answered flag, so a
// reconnect cannot grant a second vote.
func (s *Session) AddStudent(id, name string) *Student {
	if st, ok := s.Students[id]; ok {
		st.Name = name
		return st
	}
	st := &Student{ID: id, Name: name, JoinedAt: time.Now()}
	s.Students[id] = st
	return st
}

// RemoveStudent deletes a student; no-op when absent.
func (s *Session) RemoveStudent(id string) bool {
	if _, ok := s.Students[id]; !ok {
		return false
	}
	delete(s.Students, id)
	return true
}

// AllAnswered reports whether every student has answered the current poll.
// Vacuously true for an empty session; auto-close callers must additionally
// require a non-empty student set.
func (s *Session) AllAnswered() bool {
	for _, st := range s.Students {
		if !st.HasAnswered {
			return false
		}
	}
	return true
}

// ResetAnswers clears every student's has-answered flag for a new poll.
func (s *Session) ResetAnswers() {
	for _, st := range s.Students {
		st.HasAnswered = false
	}
}

// StudentList returns value copies of the students ordered by join time.
// Copies, because roster payloads get marshaled after the session lock is
// released, while the live records keep mutating under it.
func (s *Session) StudentList() []Student {
	out := make([]Student, 0, len(s.Students))
	for _, st := range s.Students {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
