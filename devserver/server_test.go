package devserver

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"library-portal/library"
)

func newTestServer(t *testing.T, opts Options) (*Database, *httptest.Server) {
	t.Helper()
	db := tempDB(t)
	srv := httptest.NewServer(New(db, nil, opts))
	t.Cleanup(srv.Close)
	return db, srv
}

func do(t *testing.T, method, target, user, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set(library.HeaderUser, user)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoleGating(t *testing.T) {
	db, srv := newTestServer(t, Options{Prefix: "/api"})
	db.CreateUser("mem", "Member", "pw", library.RoleMember)
	db.CreateUser("lib", "Librarian", "pw", library.RoleLibrarian)
	db.CreateUser("adm", "Admin", "pw", library.RoleAdmin)

	book := `{"title":"T","author":"A","genre":"G"}`
	tests := []struct {
		name   string
		method string
		path   string
		user   string
		ctype  string
		body   string
		want   int
	}{
		{"anonymous add book", http.MethodPost, "/api/books", "", "application/json", book, http.StatusUnauthorized},
		{"unknown user", http.MethodPost, "/api/books", "ghost", "application/json", book, http.StatusUnauthorized},
		{"member add book", http.MethodPost, "/api/books", "mem", "application/json", book, http.StatusForbidden},
		{"librarian add book", http.MethodPost, "/api/books", "lib", "application/json", book, http.StatusCreated},
		{"admin add book", http.MethodPost, "/api/books", "adm", "application/json", book, http.StatusCreated},
		{"member pending loans", http.MethodGet, "/api/loans/pending", "mem", "", "", http.StatusForbidden},
		{"librarian pending loans", http.MethodGet, "/api/loans/pending", "lib", "", "", http.StatusOK},
		{"librarian list users", http.MethodGet, "/api/admin/users", "lib", "", "", http.StatusForbidden},
		{"admin list users", http.MethodGet, "/api/admin/users", "adm", "", "", http.StatusOK},
		{"member reads other user", http.MethodGet, "/api/auth/user/lib", "mem", "", "", http.StatusForbidden},
		{"member reads self", http.MethodGet, "/api/auth/user/mem", "mem", "", "", http.StatusOK},
		{"anonymous search", http.MethodGet, "/api/books/search", "", "", "", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, tc.method, srv.URL+tc.path, tc.user, tc.ctype, tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestLoginAndErrors(t *testing.T) {
	db, srv := newTestServer(t, Options{Prefix: "/api"})
	db.CreateUser("mem", "Member", "pw", library.RoleMember)

	resp := do(t, http.MethodPost, srv.URL+"/api/auth/login", "", "application/json", `{"username":"mem","password":"nope"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/auth/login", "", "application/json", `{"username":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", resp.StatusCode)
	}

	form := url.Values{"username": {"mem"}, "bookId": {"abc"}}.Encode()
	resp = do(t, http.MethodPost, srv.URL+"/api/loans/request", "mem", "application/x-www-form-urlencoded", form)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad book id status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/books/42", "", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing book status = %d", resp.StatusCode)
	}
}

func TestDeleteBookHasNoContent(t *testing.T) {
	db, srv := newTestServer(t, Options{Prefix: "/api"})
	db.CreateUser("lib", "Librarian", "pw", library.RoleLibrarian)
	b, _ := db.AddBook(library.Book{Title: "T", Author: "A"})

	resp := do(t, http.MethodDelete, srv.URL+"/api/books/"+strconv.FormatInt(b.ID, 10), "lib", "", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	_, srv := newTestServer(t, Options{Prefix: "/api", Rate: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		if resp := do(t, http.MethodGet, srv.URL+"/api/books/search", "", "", ""); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d", i, resp.StatusCode)
		}
	}
	resp := do(t, http.MethodGet, srv.URL+"/api/books/search", "", "", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", resp.StatusCode)
	}

	// Buckets are per caller, so another identity still gets through.
	if resp := do(t, http.MethodGet, srv.URL+"/api/books/search", "someone", "", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("other caller status = %d", resp.StatusCode)
	}
}
