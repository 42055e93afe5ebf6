package library

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuth records calls and answers from canned values.
type fakeAuth struct {
	loginResp *LoginResponse
	loginErr  error
	info      *User
	infoErr   error
	updateErr error

	calls        []string
	infoIdentity string
}

func (f *fakeAuth) Login(_ context.Context, req LoginRequest) (*LoginResponse, error) {
	f.calls = append(f.calls, "login")
	return f.loginResp, f.loginErr
}

func (f *fakeAuth) Register(_ context.Context, req RegisterRequest) (*User, error) {
	f.calls = append(f.calls, "register")
	return &User{Username: req.Username, FullName: req.FullName}, nil
}

func (f *fakeAuth) GetUserInfo(ctx context.Context, username string) (*User, error) {
	f.calls = append(f.calls, "info")
	f.infoIdentity, _ = ctx.Value(identityKey{}).(string)
	return f.info, f.infoErr
}

func (f *fakeAuth) UpdateProfile(_ context.Context, req ProfileUpdateRequest) (string, error) {
	f.calls = append(f.calls, "update")
	return "Profile updated", f.updateErr
}

func (f *fakeAuth) ChangePassword(_ context.Context, req ChangePasswordRequest) (string, error) {
	f.calls = append(f.calls, "password")
	return "Password changed", nil
}

type recorder struct{ got []Notification }

func (r *recorder) Notify(n Notification) { r.got = append(r.got, n) }

func (r *recorder) last() Notification {
	if len(r.got) == 0 {
		return Notification{}
	}
	return r.got[len(r.got)-1]
}

func loadedSession(t *testing.T, store SessionStore, api AuthAPI, n Notifier) *Session {
	t.Helper()
	s := NewSession(store, api, n, nil)
	require.NoError(t, s.Load())
	return s
}

func TestSessionLoadingTransition(t *testing.T) {
	store, _ := tempStore(t)
	s := NewSession(store, &fakeAuth{}, nil, nil)

	assert.True(t, s.Loading())
	assert.False(t, s.Authenticated())
	require.NoError(t, s.Load())
	assert.False(t, s.Loading())
	require.NoError(t, s.Load())
}

func TestSessionLoginPersistsAcrossRestart(t *testing.T) {
	store, path := tempStore(t)
	api := &fakeAuth{
		loginResp: &LoginResponse{Username: "alice", Message: "Login successful", Role: "ROLE_MEMBER"},
		info:      &User{Username: "alice", FullName: "Alice Liddell", Role: "ROLE_LIBRARIAN"},
	}
	rec := &recorder{}
	s := loadedSession(t, store, api, rec)

	require.NoError(t, s.Login(context.Background(), LoginRequest{Username: "alice", Password: "pw"}))

	want := Identity{Username: "alice", FullName: "Alice Liddell", Role: RoleLibrarian}
	got, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, "alice", api.infoIdentity)
	assert.Equal(t, Notification{Kind: NotifySuccess, Title: "Signed in", Message: "Welcome alice"}, rec.last())
	assert.Equal(t, Capabilities{Member: true, Librarian: true}, s.Capabilities())

	// A new process over the same file sees the same identity.
	require.NoError(t, store.Close())
	reopened, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	restored := loadedSession(t, reopened, api, nil)
	got, ok = restored.Current()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestSessionLogoutPersistsAcrossRestart(t *testing.T) {
	store, _ := tempStore(t)
	require.NoError(t, store.SaveIdentity(Identity{Username: "bob", FullName: "Bob", Role: RoleAdmin}))

	rec := &recorder{}
	s := loadedSession(t, store, &fakeAuth{}, rec)
	require.True(t, s.Authenticated())

	s.Logout()
	assert.False(t, s.Authenticated())
	assert.Equal(t, Capabilities{}, s.Capabilities())
	assert.Equal(t, "Signed out", rec.last().Title)

	restored := loadedSession(t, store, &fakeAuth{}, nil)
	assert.False(t, restored.Authenticated())
	for _, k := range identityKeys {
		_, ok, err := store.Get(k)
		require.NoError(t, err)
		assert.False(t, ok, "key %q should be gone", k)
	}
}

func TestSessionLoginRejectedByServer(t *testing.T) {
	srv, _ := stubServer(t, http.StatusUnauthorized, "Bad credentials")
	store, _ := tempStore(t)
	client := NewClient(srv.URL, store)
	rec := &recorder{}
	s := loadedSession(t, store, client, rec)

	err := s.Login(context.Background(), LoginRequest{Username: "alice", Password: "wrong"})
	require.True(t, IsStatus(err, http.StatusUnauthorized))

	assert.False(t, s.Authenticated())
	_, ok, err := store.LoadIdentity()
	require.NoError(t, err)
	assert.False(t, ok)

	n := rec.last()
	assert.Equal(t, NotifyFailure, n.Kind)
	assert.Contains(t, n.Message, "Bad credentials")
}

func TestSessionLoginFallsBackToLoginRole(t *testing.T) {
	store, _ := tempStore(t)
	api := &fakeAuth{
		loginResp: &LoginResponse{Username: "carol", Role: "ROLE_ADMIN"},
		infoErr:   errors.New("boom"),
	}
	s := loadedSession(t, store, api, nil)

	require.NoError(t, s.Login(context.Background(), LoginRequest{Username: "carol", Password: "pw"}))
	got, _ := s.Current()
	assert.Equal(t, Identity{Username: "carol", FullName: "carol", Role: RoleAdmin}, got)
}

func TestSessionLoginDefaultsMissingFields(t *testing.T) {
	store, _ := tempStore(t)
	api := &fakeAuth{
		loginResp: &LoginResponse{},
		info:      &User{Username: "dave"},
	}
	s := loadedSession(t, store, api, nil)

	require.NoError(t, s.Login(context.Background(), LoginRequest{Username: "dave", Password: "pw"}))
	got, _ := s.Current()
	assert.Equal(t, Identity{Username: "dave", FullName: "dave", Role: RoleMember}, got)
}

func TestSessionValidationSkipsNetwork(t *testing.T) {
	store, _ := tempStore(t)
	api := &fakeAuth{}
	rec := &recorder{}
	s := loadedSession(t, store, api, rec)

	err := s.Login(context.Background(), LoginRequest{Username: "alice"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "password", ve.Field)

	err = s.Register(context.Background(), RegisterRequest{Username: "x", Password: "y"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "full name", ve.Field)

	assert.Empty(t, api.calls)
	assert.Equal(t, NotifyFailure, rec.last().Kind)
}

func TestSessionRegisterDoesNotSignIn(t *testing.T) {
	store, _ := tempStore(t)
	api := &fakeAuth{}
	s := loadedSession(t, store, api, nil)

	require.NoError(t, s.Register(context.Background(), RegisterRequest{Username: "eve", Password: "pw", FullName: "Eve"}))
	assert.Equal(t, []string{"register"}, api.calls)
	assert.False(t, s.Authenticated())
}

func TestSessionUpdateProfileRefreshesIdentity(t *testing.T) {
	store, _ := tempStore(t)
	require.NoError(t, store.SaveIdentity(Identity{Username: "bob", FullName: "Bob", Role: RoleMember}))
	s := loadedSession(t, store, &fakeAuth{}, nil)

	require.NoError(t, s.UpdateProfile(context.Background(), "  Robert  "))
	got, _ := s.Current()
	assert.Equal(t, "Robert", got.FullName)

	persisted, _, err := store.LoadIdentity()
	require.NoError(t, err)
	assert.Equal(t, "Robert", persisted.FullName)
}

func TestSessionUpdateProfileFailureKeepsIdentity(t *testing.T) {
	store, _ := tempStore(t)
	require.NoError(t, store.SaveIdentity(Identity{Username: "bob", FullName: "Bob", Role: RoleMember}))
	s := loadedSession(t, store, &fakeAuth{updateErr: errors.New("offline")}, nil)

	require.Error(t, s.UpdateProfile(context.Background(), "Robert"))
	got, _ := s.Current()
	assert.Equal(t, "Bob", got.FullName)
}

func TestSessionChangePasswordMismatch(t *testing.T) {
	store, _ := tempStore(t)
	require.NoError(t, store.SaveIdentity(Identity{Username: "bob", FullName: "Bob", Role: RoleMember}))
	api := &fakeAuth{}
	s := loadedSession(t, store, api, nil)

	err := s.ChangePassword(context.Background(), "old", "new", "neu")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "passwords do not match", ve.Message)
	assert.Empty(t, api.calls)

	require.NoError(t, s.ChangePassword(context.Background(), "old", "new", "new"))
	assert.Equal(t, []string{"password"}, api.calls)
}

func TestSessionSignedOutOperations(t *testing.T) {
	store, _ := tempStore(t)
	s := loadedSession(t, store, &fakeAuth{}, nil)

	assert.ErrorIs(t, s.UpdateProfile(context.Background(), "X"), ErrNotAuthenticated)
	assert.ErrorIs(t, s.ChangePassword(context.Background(), "a", "b", "b"), ErrNotAuthenticated)
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrNotAuthenticated)
	assert.ErrorIs(t, s.Require(RoleMember), ErrNotAuthenticated)
}

func TestSessionRequire(t *testing.T) {
	store, _ := tempStore(t)
	require.NoError(t, store.SaveIdentity(Identity{Username: "lib", FullName: "Lib", Role: RoleLibrarian}))
	s := loadedSession(t, store, &fakeAuth{}, nil)

	assert.NoError(t, s.Require(RoleMember))
	assert.NoError(t, s.Require(RoleLibrarian))

	err := s.Require(RoleAdmin)
	var fe *ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, RoleLibrarian, fe.Have)
	assert.Equal(t, "admin access required (signed in as librarian)", err.Error())
}

func TestSessionRefreshPicksUpPromotion(t *testing.T) {
	store, _ := tempStore(t)
	require.NoError(t, store.SaveIdentity(Identity{Username: "bob", FullName: "Bob", Role: RoleMember}))
	api := &fakeAuth{info: &User{Username: "bob", Role: "ROLE_ADMIN"}}
	s := loadedSession(t, store, api, nil)

	require.NoError(t, s.Refresh(context.Background()))
	got, _ := s.Current()
	assert.Equal(t, Identity{Username: "bob", FullName: "Bob", Role: RoleAdmin}, got)
}

func TestSessionClose(t *testing.T) {
	store, _ := tempStore(t)
	require.NoError(t, store.SaveIdentity(Identity{Username: "bob", FullName: "Bob", Role: RoleMember}))
	s := loadedSession(t, store, &fakeAuth{}, nil)

	s.Close()
	assert.False(t, s.Authenticated())
	assert.ErrorIs(t, s.Require(RoleMember), ErrSessionClosed)
	assert.ErrorIs(t, s.Login(context.Background(), LoginRequest{Username: "a", Password: "b"}), ErrSessionClosed)

	// Closing keeps the persisted identity for the next process.
	_, ok, err := store.LoadIdentity()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConfirmPassword(t *testing.T) {
	assert.NoError(t, ConfirmPassword("abc", "abc"))
	assert.Error(t, ConfirmPassword("abc", "abd"))
}

func TestWriterNotifier(t *testing.T) {
	var out, errOut strings.Builder
	n := WriterNotifier{Out: &out, Err: &errOut}

	n.Notify(Notification{Kind: NotifySuccess, Title: "Signed in", Message: "Welcome bob"})
	n.Notify(Notification{Kind: NotifyFailure, Title: "Login failed", Message: "Bad credentials"})
	n.Notify(Notification{Kind: NotifySuccess, Title: "Profile updated"})

	assert.Equal(t, "[ok] Signed in: Welcome bob\n[ok] Profile updated\n", out.String())
	assert.Equal(t, "[error] Login failed: Bad credentials\n", errOut.String())
}
