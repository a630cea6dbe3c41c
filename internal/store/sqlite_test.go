package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/orchestrator/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id string) *domain.Session {
	return &domain.Session{
		SessionID: id,
		Identity: domain.Identity{
			SubjectID:   "u1",
			DisplayName: "Dev User",
			Roles:       []string{"requester"},
			Teams:       []string{"IT"},
		},
		EstablishedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveAndLoadSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := testSession("ses_abc")
	require.NoError(t, s.SaveSession(ctx, session))

	loaded, err := s.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "ses_abc", loaded.SessionID)
	assert.Equal(t, "u1", loaded.Identity.SubjectID)
	assert.Equal(t, []string{"requester"}, loaded.Identity.Roles)
}

func TestLoadSessionEmpty(t *testing.T) {
	s := newTestStore(t)

	loaded, err := s.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveSessionReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, testSession("ses_first")))
	require.NoError(t, s.SaveSession(ctx, testSession("ses_second")))

	loaded, err := s.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	// Single-row mirror: the latest save wins.
	assert.Equal(t, "ses_second", loaded.SessionID)
}

func TestClearSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, testSession("ses_abc")))
	require.NoError(t, s.ClearSession(ctx))

	loaded, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Clearing an already-empty mirror is fine.
	require.NoError(t, s.ClearSession(ctx))
}
