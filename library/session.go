package library

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// AuthAPI is the part of the remote API the session drives.
type AuthAPI interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	GetUserInfo(ctx context.Context, username string) (*User, error)
	UpdateProfile(ctx context.Context, req ProfileUpdateRequest) (string, error)
	ChangePassword(ctx context.Context, req ChangePasswordRequest) (string, error)
}

// SessionStore persists the signed-in identity across restarts.
type SessionStore interface {
	LoadIdentity() (Identity, bool, error)
	SaveIdentity(Identity) error
	ClearIdentity() error
}

// Session is the process-wide answer to "who is signed in and what can they
// do". Construct one with NewSession, call Load once at startup, and Close it
// on teardown.
type Session struct {
	store    SessionStore
	api      AuthAPI
	notifier Notifier
	logger   *slog.Logger

	mu       sync.RWMutex
	identity *Identity
	loading  bool
	closed   bool
}

// NewSession wires a session. notifier and logger may be nil.
func NewSession(store SessionStore, api AuthAPI, notifier Notifier, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		store:    store,
		api:      api,
		notifier: notifier,
		logger:   logger,
		loading:  true,
	}
}

// Load reads any persisted identity into memory. Loading flips to false after
// the first call, whether or not the read succeeded; later calls do nothing.
func (s *Session) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loading {
		return nil
	}
	defer func() { s.loading = false }()

	id, ok, err := s.store.LoadIdentity()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if ok {
		s.identity = &id
		s.logger.Debug("session restored", "username", id.Username, "role", id.Role)
	}
	return nil
}

// Loading is true until Load has run.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Current returns the signed-in identity.
func (s *Session) Current() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

func (s *Session) Authenticated() bool {
	_, ok := s.Current()
	return ok
}

// Capabilities derives the flag set for the signed-in role. Signed-out
// sessions have none.
func (s *Session) Capabilities() Capabilities {
	id, ok := s.Current()
	if !ok {
		return Capabilities{}
	}
	return CapabilitiesFor(id.Role)
}

// Require gates an action on a minimum role.
func (s *Session) Require(want Role) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.identity == nil {
		return ErrNotAuthenticated
	}
	if !s.identity.Role.Satisfies(want) {
		return &ForbiddenError{Have: s.identity.Role, Want: want}
	}
	return nil
}

// Login authenticates, resolves the full identity and persists it. Nothing is
// written when any step before persistence fails.
func (s *Session) Login(ctx context.Context, creds LoginRequest) error {
	const title = "Login failed"
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := requireFields(map[string]string{"username": creds.Username, "password": creds.Password}, "username", "password"); err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}

	resp, err := s.api.Login(ctx, creds)
	if err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}

	id := Identity{Username: resp.Username}
	if id.Username == "" {
		id.Username = creds.Username
	}

	// The secondary fetch must speak for the user who just signed in, not
	// whoever is still persisted from before.
	info, err := s.api.GetUserInfo(WithIdentity(ctx, id.Username), id.Username)
	if err != nil {
		s.logger.Warn("user info unavailable, using login response", "username", id.Username, "error", err)
		id.Role = ParseRole(resp.Role)
		id.FullName = id.Username
	} else {
		id.Role = ParseRole(info.Role)
		if id.Role == RoleNone {
			id.Role = RoleMember
		}
		id.FullName = info.FullName
		if id.FullName == "" {
			id.FullName = id.Username
		}
	}

	if err := s.store.SaveIdentity(id); err != nil {
		err = fmt.Errorf("persist session: %w", err)
		notifyErr(s.notifier, title, err)
		return err
	}

	s.mu.Lock()
	s.identity = &id
	s.mu.Unlock()

	s.logger.Info("signed in", "username", id.Username, "role", id.Role)
	notifyOK(s.notifier, "Signed in", "Welcome "+id.Username)
	return nil
}

// Register creates an account. It does not sign the new user in.
func (s *Session) Register(ctx context.Context, req RegisterRequest) error {
	const title = "Registration failed"
	if err := s.checkOpen(); err != nil {
		return err
	}
	fields := map[string]string{"username": req.Username, "password": req.Password, "full name": req.FullName}
	if err := requireFields(fields, "username", "password", "full name"); err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}

	if _, err := s.api.Register(ctx, req); err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}
	notifyOK(s.notifier, "Registered", "You can now sign in")
	return nil
}

// Logout forgets the identity in memory and in storage. It always succeeds;
// a storage failure is only logged.
func (s *Session) Logout() {
	if err := s.store.ClearIdentity(); err != nil {
		s.logger.Error("clear persisted session", "error", err)
	}
	s.mu.Lock()
	s.identity = nil
	s.mu.Unlock()
	notifyOK(s.notifier, "Signed out", "See you soon")
}

// UpdateProfile changes the full name server-side and refreshes the cached
// identity in place.
func (s *Session) UpdateProfile(ctx context.Context, fullName string) error {
	const title = "Profile update failed"
	id, err := s.signedIn()
	if err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		err := invalid("full name", "full name is required")
		notifyErr(s.notifier, title, err)
		return err
	}

	if _, err := s.api.UpdateProfile(ctx, ProfileUpdateRequest{Username: id.Username, FullName: fullName}); err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}

	id.FullName = fullName
	if err := s.replace(id); err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}
	notifyOK(s.notifier, "Profile updated", "")
	return nil
}

// ChangePassword checks the confirmation locally before calling the server.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword, confirm string) error {
	const title = "Password change failed"
	id, err := s.signedIn()
	if err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}
	fields := map[string]string{"current password": oldPassword, "new password": newPassword}
	if err := requireFields(fields, "current password", "new password"); err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}
	if err := ConfirmPassword(newPassword, confirm); err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}

	req := ChangePasswordRequest{Username: id.Username, OldPassword: oldPassword, NewPassword: newPassword}
	if _, err := s.api.ChangePassword(ctx, req); err != nil {
		notifyErr(s.notifier, title, err)
		return err
	}
	notifyOK(s.notifier, "Password changed", "")
	return nil
}

// Refresh re-reads the identity from the server, e.g. after a role change.
func (s *Session) Refresh(ctx context.Context) error {
	id, err := s.signedIn()
	if err != nil {
		return err
	}
	info, err := s.api.GetUserInfo(ctx, id.Username)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	if r := ParseRole(info.Role); r != RoleNone {
		id.Role = r
	}
	if info.FullName != "" {
		id.FullName = info.FullName
	}
	return s.replace(id)
}

// Close tears the session down. Persisted state is kept for the next process.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.identity = nil
}

func (s *Session) replace(id Identity) error {
	if err := s.store.SaveIdentity(id); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.mu.Lock()
	s.identity = &id
	s.mu.Unlock()
	return nil
}

func (s *Session) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) signedIn() (Identity, error) {
	if err := s.checkOpen(); err != nil {
		return Identity{}, err
	}
	id, ok := s.Current()
	if !ok {
		return Identity{}, ErrNotAuthenticated
	}
	return id, nil
}

// ConfirmPassword fails when the confirmation does not match.
func ConfirmPassword(password, confirm string) error {
	if password != confirm {
		return invalid("confirm password", "passwords do not match")
	}
	return nil
}

// requireFields checks fields in the given order so the first missing one is reported.
func requireFields(fields map[string]string, order ...string) error {
	for _, name := range order {
		if strings.TrimSpace(fields[name]) == "" {
			return invalid(name, name+" is required")
		}
	}
	return nil
}
