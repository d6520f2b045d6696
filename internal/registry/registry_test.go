package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Axshuman/live-polling-system/internal/models"
)

func newTestRegistry() *Registry {
	return New(zap.NewNop())
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry()

	s := r.Create("teacher-conn")
	require.NotNil(t, s)
	assert.Equal(t, "teacher-conn", s.CoordinatorID)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestAuthorizeCoordinator(t *testing.T) {
	r := newTestRegistry()
	s := r.Create("teacher-conn")

	assert.NoError(t, r.AuthorizeCoordinator(s.ID, "teacher-conn"))
	assert.ErrorIs(t, r.AuthorizeCoordinator(s.ID, "someone-else"), models.ErrNotCoordinator)
	assert.ErrorIs(t, r.AuthorizeCoordinator("nope", "teacher-conn"), models.ErrSessionNotFound)
}

func TestJoinAndRemove(t *testing.T) {
	r := newTestRegistry()
	s := r.Create("teacher-conn")

	_, _, err := r.Join("nope", "a", "Alice")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	joined, st, err := r.Join(s.ID, "a", "Alice")
	require.NoError(t, err)
	assert.Same(t, s, joined)
	assert.Equal(t, "Alice", st.Name)

	sid, ok := r.SessionOf("a")
	require.True(t, ok)
	assert.Equal(t, s.ID, sid)

	roster, err := r.Remove(s.ID, "a")
	require.NoError(t, err)
	assert.Empty(t, roster)

	_, err = r.Remove(s.ID, "a")
	assert.ErrorIs(t, err, models.ErrStudentNotFound)

	_, ok = r.SessionOf("a")
	assert.False(t, ok)
}

func TestCoordinatorDisconnectTearsDown(t *testing.T) {
	r := newTestRegistry()
	s := r.Create("teacher-conn")
	_, _, err := r.Join(s.ID, "a", "Alice")
	require.NoError(t, err)
	_, _, err = r.Join(s.ID, "b", "Bob")
	require.NoError(t, err)

	res := r.HandleDisconnect("teacher-conn")
	require.NotNil(t, res.TornDown)
	assert.Equal(t, s.ID, res.TornDown.ID)
	assert.Nil(t, res.Left)

	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound, "session must be unreachable after teardown")
	_, ok := r.SessionOf("a")
	assert.False(t, ok, "students of a torn-down session must be evicted")
}

func TestStudentDisconnectLeavesSessionIntact(t *testing.T) {
	r := newTestRegistry()
	s := r.Create("teacher-conn")
	_, _, err := r.Join(s.ID, "a", "Alice")
	require.NoError(t, err)
	_, _, err = r.Join(s.ID, "b", "Bob")
	require.NoError(t, err)

	res := r.HandleDisconnect("a")
	require.NotNil(t, res.Left)
	assert.Nil(t, res.TornDown)
	assert.Equal(t, "Alice", res.Student.Name)
	require.Len(t, res.Roster, 1)
	assert.Equal(t, "Bob", res.Roster[0].Name)

	_, err = r.Get(s.ID)
	assert.NoError(t, err)
}

func TestUnknownDisconnectIsEmpty(t *testing.T) {
	r := newTestRegistry()
	res := r.HandleDisconnect("nobody")
	assert.Nil(t, res.TornDown)
	assert.Nil(t, res.Left)
}
