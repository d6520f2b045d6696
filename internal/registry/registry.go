package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Axshuman/live-polling-system/internal/models"
)

// Registry is the identity-keyed session store. It maps session ids to
// sessions and connection ids to their role within a session, so a disconnect
// resolves in O(1) without scanning every session.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*models.Session
	coordinators map[string]string // connection id -> session id
	students     map[string]string // connection id -> session id
	logger       *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		sessions:     make(map[string]*models.Session),
		coordinators: make(map[string]string),
		students:     make(map[string]string),
		logger:       logger,
	}
}

// Create makes a new session owned by the given coordinator connection.
func (r *Registry) Create(coordinatorID string) *models.Session {
	s := models.NewSession(coordinatorID)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.coordinators[coordinatorID] = s.ID
	r.mu.Unlock()
	r.logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("coordinator_id", coordinatorID),
	)
	return s
}

// Get returns the session or ErrSessionNotFound.
func (r *Registry) Get(sessionID string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return s, nil
}

// AuthorizeCoordinator checks that the caller owns the session. An unknown
// session yields ErrSessionNotFound; a known session with a different owner
// yields ErrNotCoordinator, so the caller can tell the two apart.
func (r *Registry) AuthorizeCoordinator(sessionID, callerID string) error {
	s, err := r.Get(sessionID)
	if err != nil {
		return err
	}
	if s.CoordinatorID != callerID {
		return models.ErrNotCoordinator
	}
	return nil
}

// Join adds the connection to the session as a student and returns the
// session and a copy of the student record; the live record stays behind the
// session lock.
func (r *Registry) Join(sessionID, connID, name string) (*models.Session, models.Student, error) {
	s, err := r.Get(sessionID)
	if err != nil {
		return nil, models.Student{}, err
	}
	r.mu.Lock()
	r.students[connID] = sessionID
	r.mu.Unlock()

	s.Lock()
	st := *s.AddStudent(connID, name)
	s.Unlock()
	r.logger.Info("student joined",
		zap.String("session_id", sessionID),
		zap.String("student_id", connID),
	)
	return s, st, nil
}

// Remove evicts a student from a session and returns the remaining roster.
// The caller is responsible for coordinator authorization.
func (r *Registry) Remove(sessionID, studentID string) ([]models.Student, error) {
	s, err := r.Get(sessionID)
	if err != nil {
		return nil, err
	}
	s.Lock()
	removed := s.RemoveStudent(studentID)
	roster := s.StudentList()
	s.Unlock()
	if !removed {
		return nil, models.ErrStudentNotFound
	}
	r.mu.Lock()
	delete(r.students, studentID)
	r.mu.Unlock()
	return roster, nil
}

// Disconnect describes what a departed connection was, so the gateway knows
// whom to notify. At most one of TornDown and Left is set.
type Disconnect struct {
	// TornDown is the session destroyed because the connection was its
	// coordinator. All of its students have been evicted.
	TornDown *models.Session
	// Left is the session the connection departed as a student, together
	// with the student record and the roster after removal.
	Left    *models.Session
	Student *models.Student
	Roster  []models.Student
}

// HandleDisconnect removes the connection from whatever it belonged to. A
// coordinator loss destroys the whole session; a student loss removes only
// that student. Unknown connections resolve to an empty result.
func (r *Registry) HandleDisconnect(connID string) Disconnect {
	r.mu.Lock()
	if sid, ok := r.coordinators[connID]; ok {
		s := r.sessions[sid]
		delete(r.sessions, sid)
		delete(r.coordinators, connID)
		for id, memberOf := range r.students {
			if memberOf == sid {
				delete(r.students, id)
			}
		}
		r.mu.Unlock()
		r.logger.Info("session torn down", zap.String("session_id", sid))
		return Disconnect{TornDown: s}
	}
	if sid, ok := r.students[connID]; ok {
		delete(r.students, connID)
		s := r.sessions[sid]
		r.mu.Unlock()
		if s == nil {
			return Disconnect{}
		}
		s.Lock()
		var st *models.Student
		if live, ok := s.Students[connID]; ok {
			cp := *live
			st = &cp
		}
		s.RemoveStudent(connID)
		roster := s.StudentList()
		s.Unlock()
		r.logger.Info("student left",
			zap.String("session_id", sid),
			zap.String("student_id", connID),
		)
		return Disconnect{Left: s, Student: st, Roster: roster}
	}
	r.mu.Unlock()
	return Disconnect{}
}

// SessionOf returns the session id the connection belongs to, in either role.
func (r *Registry) SessionOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sid, ok := r.coordinators[connID]; ok {
		return sid, true
	}
	if sid, ok := r.students[connID]; ok {
		return sid, true
	}
	return "", false
}
