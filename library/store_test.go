package library

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "session.db")
	s, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStoreGetSetDelete(t *testing.T) {
	s, _ := tempStore(t)

	_, ok, err := s.Get("theme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("theme", "dark"))
	require.NoError(t, s.Set("theme", "light"))
	v, ok, err := s.Get("theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", v)

	require.NoError(t, s.Delete("theme", "missing"))
	_, ok, _ = s.Get("theme")
	assert.False(t, ok)
}

func TestStoreIdentitySurvivesReopen(t *testing.T) {
	s, path := tempStore(t)
	want := Identity{Username: "alice", FullName: "Alice Liddell", Role: RoleLibrarian}
	require.NoError(t, s.SaveIdentity(want))

	raw, _, _ := s.Get(KeyRole)
	assert.Equal(t, "ROLE_LIBRARIAN", raw, "role is persisted in wire form")
	require.NoError(t, s.Close())

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.LoadIdentity()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	username, err := reopened.Username()
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestStoreClearIdentity(t *testing.T) {
	s, _ := tempStore(t)
	require.NoError(t, s.SaveIdentity(Identity{Username: "bob", FullName: "Bob", Role: RoleMember}))
	require.NoError(t, s.Set("unrelated", "kept"))

	require.NoError(t, s.ClearIdentity())

	_, ok, err := s.LoadIdentity()
	require.NoError(t, err)
	assert.False(t, ok)
	for _, k := range identityKeys {
		_, present, _ := s.Get(k)
		assert.False(t, present, "key %s should be gone", k)
	}
	v, _, _ := s.Get("unrelated")
	assert.Equal(t, "kept", v)
}
