// Package devserver is a small SQLite-backed implementation of the library
// REST API. It backs local demos and end-to-end tests of the client.
package devserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"library-portal/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options tune the HTTP surface. Zero values disable rate limiting.
type Options struct {
	Prefix string
	Rate   float64
	Burst  int
}

// Server routes API calls to the Database.
type Server struct {
	db     *Database
	logger *slog.Logger
	router *mux.Router
}

// New builds the handler tree. logger may be nil.
func New(db *Database, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{db: db, logger: logger, router: mux.NewRouter()}

	api := s.router
	if p := strings.TrimRight(opts.Prefix, "/"); p != "" {
		api = s.router.PathPrefix(p).Subrouter()
	}
	api.Use(s.logRequests)
	if opts.Rate > 0 {
		api.Use(newClientLimiter(rate.Limit(opts.Rate), max(opts.Burst, 1), 10*time.Minute).middleware)
	}

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/change-password", s.authed(library.RoleMember, s.handleChangePassword)).Methods(http.MethodPost)
	api.HandleFunc("/auth/user/update", s.authed(library.RoleMember, s.handleUpdateProfile)).Methods(http.MethodPut)
	api.HandleFunc("/auth/user/{username}", s.authed(library.RoleMember, s.handleGetUser)).Methods(http.MethodGet)
	api.HandleFunc("/auth/admin/create", s.authed(library.RoleAdmin, s.handleCreateAdmin)).Methods(http.MethodPost)

	api.HandleFunc("/books/search", s.handleSearchBooks).Methods(http.MethodGet)
	api.HandleFunc("/books/{id:[0-9]+}", s.handleGetBook).Methods(http.MethodGet)
	api.HandleFunc("/books", s.authed(library.RoleLibrarian, s.handleAddBook)).Methods(http.MethodPost)
	api.HandleFunc("/books/{id:[0-9]+}", s.authed(library.RoleLibrarian, s.handleUpdateBook)).Methods(http.MethodPut)
	api.HandleFunc("/books/{id:[0-9]+}", s.authed(library.RoleLibrarian, s.handleDeleteBook)).Methods(http.MethodDelete)

	api.HandleFunc("/loans/request", s.authed(library.RoleMember, s.handleRequestLoan)).Methods(http.MethodPost)
	api.HandleFunc("/loans/approve", s.authed(library.RoleLibrarian, s.handleApproveLoan)).Methods(http.MethodPost)
	api.HandleFunc("/loans/return", s.authed(library.RoleMember, s.handleReturnLoan)).Methods(http.MethodPost)
	api.HandleFunc("/loans/my", s.authed(library.RoleMember, s.handleMyLoans)).Methods(http.MethodGet)
	api.HandleFunc("/loans/pending", s.authed(library.RoleLibrarian, s.handlePendingLoans)).Methods(http.MethodGet)
	api.HandleFunc("/loans/all", s.authed(library.RoleLibrarian, s.handleAllLoans)).Methods(http.MethodGet)

	api.HandleFunc("/admin/create-librarian", s.authed(library.RoleAdmin, s.handleCreateLibrarian)).Methods(http.MethodPost)
	api.HandleFunc("/admin/users", s.authed(library.RoleAdmin, s.handleListUsers)).Methods(http.MethodGet)
	api.HandleFunc("/admin/promote", s.authed(library.RoleAdmin, s.handlePromote)).Methods(http.MethodPost)
	api.HandleFunc("/admin/users/{username}", s.authed(library.RoleAdmin, s.handleDeleteUser)).Methods(http.MethodDelete)

	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "OK\n")
	}).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"user", r.Header.Get(library.HeaderUser),
			"request_id", r.Header.Get(library.HeaderRequestID),
			"duration", time.Since(start))
	})
}

type callerHandler func(w http.ResponseWriter, r *http.Request, caller *library.User)

// authed resolves the X-User claim and enforces a minimum role. The header is
// trusted as-is; this server performs no credential check beyond login.
func (s *Server) authed(want library.Role, h callerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.Header.Get(library.HeaderUser))
		if username == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		caller, err := s.db.GetUser(username)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "unknown user", http.StatusUnauthorized)
			return
		}
		if err != nil {
			s.fail(w, err)
			return
		}
		if !library.ParseRole(caller.Role).Satisfies(want) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		h(w, r, caller)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, msg)
}

// fail maps store errors onto HTTP statuses. The message body is what the
// client shows to the user.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("handler failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", ErrInvalid)
	}
	return nil
}

func formInt(r *http.Request, key string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(r.FormValue(key)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s", ErrInvalid, key)
	}
	return v, nil
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}
