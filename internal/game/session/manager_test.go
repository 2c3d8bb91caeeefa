package session

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerAdd(t *testing.T) {
	m := NewManager()

	sess, err := m.Add("sess-1", "alice", "default", 8)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, "alice", sess.UserID)
	assert.Equal(t, "default", sess.GameID)
	assert.NotNil(t, sess.Entity)
	assert.False(t, sess.ConnectedAt.IsZero())
	assert.Equal(t, 1, m.Count())
}

func TestManagerAddDuplicateID(t *testing.T) {
	m := NewManager()

	_, err := m.Add("sess-1", "alice", "default", 8)
	require.NoError(t, err)

	_, err = m.Add("sess-1", "bob", "default", 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, 1, m.Count())
}

func TestManagerRemove(t *testing.T) {
	m := NewManager()

	_, err := m.Add("sess-1", "alice", "default", 8)
	require.NoError(t, err)
	_, err = m.Add("sess-2", "bob", "default", 8)
	require.NoError(t, err)

	sess, roomEmpty, err := m.Remove("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.UserID)
	assert.False(t, roomEmpty)
	assert.True(t, sess.Entity.IsClosed())

	sess, roomEmpty, err = m.Remove("sess-2")
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.UserID)
	assert.True(t, roomEmpty)
	assert.Equal(t, 0, m.Count())
}

func TestManagerRemoveUnknown(t *testing.T) {
	m := NewManager()

	_, _, err := m.Remove("sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestManagerGet(t *testing.T) {
	m := NewManager()

	_, err := m.Add("sess-1", "alice", "default", 8)
	require.NoError(t, err)

	sess, ok := m.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, "alice", sess.UserID)

	_, ok = m.Get("sess-2")
	assert.False(t, ok)
}

func TestManagerInGame(t *testing.T) {
	m := NewManager()

	_, err := m.Add("sess-1", "alice", "default", 8)
	require.NoError(t, err)
	_, err = m.Add("sess-2", "bob", "default", 8)
	require.NoError(t, err)
	_, err = m.Add("sess-3", "carol", "other", 8)
	require.NoError(t, err)

	sessions := m.InGame("default")
	require.Len(t, sessions, 2)
	ids := []string{sessions[0].ID, sessions[1].ID}
	sort.Strings(ids)
	assert.Equal(t, []string{"sess-1", "sess-2"}, ids)

	assert.Empty(t, m.InGame("nonexistent"))
}

func TestManagerUsersInGameDistinct(t *testing.T) {
	m := NewManager()

	// alice has two sessions in the same game
	_, err := m.Add("sess-1", "alice", "default", 8)
	require.NoError(t, err)
	_, err = m.Add("sess-2", "alice", "default", 8)
	require.NoError(t, err)
	_, err = m.Add("sess-3", "bob", "default", 8)
	require.NoError(t, err)

	users := m.UsersInGame("default")
	sort.Strings(users)
	assert.Equal(t, []string{"alice", "bob"}, users)
}

func TestManagerActiveGames(t *testing.T) {
	m := NewManager()

	assert.Empty(t, m.ActiveGames())

	_, err := m.Add("sess-1", "alice", "default", 8)
	require.NoError(t, err)
	_, err = m.Add("sess-2", "bob", "other", 8)
	require.NoError(t, err)

	games := m.ActiveGames()
	sort.Strings(games)
	assert.Equal(t, []string{"default", "other"}, games)

	_, roomEmpty, err := m.Remove("sess-2")
	require.NoError(t, err)
	require.True(t, roomEmpty)
	assert.Equal(t, []string{"default"}, m.ActiveGames())
}

func TestPushEntityDelivery(t *testing.T) {
	e := NewPushEntity("sess-1", 2)

	require.NoError(t, e.Push([]byte("one")))
	require.NoError(t, e.Push([]byte("two")))

	// Buffer is full; Push must not block.
	err := e.Push([]byte("three"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buffer full")

	assert.Equal(t, []byte("one"), <-e.Events())
	assert.Equal(t, []byte("two"), <-e.Events())
}

func TestPushEntityClose(t *testing.T) {
	e := NewPushEntity("sess-1", 2)

	require.NoError(t, e.Push([]byte("one")))
	require.NoError(t, e.Close())
	assert.True(t, e.IsClosed())

	err := e.Push([]byte("two"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	// Buffered events drain, then the channel reports closed.
	assert.Equal(t, []byte("one"), <-e.Events())
	_, open := <-e.Events()
	assert.False(t, open)

	// Close is idempotent.
	require.NoError(t, e.Close())
}
