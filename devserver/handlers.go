package devserver

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"library-portal/library"
)

// ------------------ Auth ------------------

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req library.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	u, err := s.db.CreateUser(req.Username, req.FullName, req.Password, library.RoleMember)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req library.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	u, err := s.db.Authenticate(req.Username, req.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, library.LoginResponse{Username: u.Username, Message: "Login successful", Role: u.Role})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, caller *library.User) {
	var req library.ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Username != caller.Username {
		http.Error(w, "you can only change your own password", http.StatusForbidden)
		return
	}
	if err := s.db.ChangePassword(req.Username, req.OldPassword, req.NewPassword); err != nil {
		s.fail(w, err)
		return
	}
	writeText(w, "Password changed")
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, caller *library.User) {
	username := mux.Vars(r)["username"]
	if !s.selfOrStaff(w, caller, username) {
		return
	}
	u, err := s.db.GetUser(username)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, caller *library.User) {
	var req library.ProfileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Username != caller.Username {
		http.Error(w, "you can only update your own profile", http.StatusForbidden)
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		http.Error(w, "full name is required", http.StatusBadRequest)
		return
	}
	if err := s.db.UpdateFullName(req.Username, req.FullName); err != nil {
		s.fail(w, err)
		return
	}
	writeText(w, "Profile updated")
}

func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request, _ *library.User) {
	var req library.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	u, err := s.db.CreateUser(req.Username, req.FullName, req.Password, library.RoleAdmin)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// ------------------ Books ------------------

func (s *Server) handleSearchBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	books, err := s.db.SearchBooks(library.BookQuery{
		Title:  q.Get("title"),
		Author: q.Get("author"),
		Genre:  q.Get("genre"),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	b, err := s.db.GetBook(pathID(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request, _ *library.User) {
	var req library.Book
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	b, err := s.db.AddBook(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, _ *library.User) {
	var req library.Book
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	b, err := s.db.UpdateBook(pathID(r), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, _ *library.User) {
	if err := s.db.DeleteBook(pathID(r)); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ------------------ Loans ------------------

func (s *Server) handleRequestLoan(w http.ResponseWriter, r *http.Request, caller *library.User) {
	bookID, err := formInt(r, "bookId")
	if err != nil {
		s.fail(w, err)
		return
	}
	username := r.FormValue("username")
	if !s.selfOrStaff(w, caller, username) {
		return
	}
	l, err := s.db.RequestLoan(username, bookID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleApproveLoan(w http.ResponseWriter, r *http.Request, caller *library.User) {
	loanID, err := formInt(r, "loanId")
	if err != nil {
		s.fail(w, err)
		return
	}
	approver := strings.TrimSpace(r.FormValue("approver"))
	if approver == "" {
		approver = caller.Username
	}
	l, err := s.db.ApproveLoan(loanID, approver)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleReturnLoan(w http.ResponseWriter, r *http.Request, caller *library.User) {
	loanID, err := formInt(r, "loanId")
	if err != nil {
		s.fail(w, err)
		return
	}
	username := r.FormValue("username")
	if !s.selfOrStaff(w, caller, username) {
		return
	}
	l, err := s.db.ReturnLoan(loanID, username)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleMyLoans(w http.ResponseWriter, r *http.Request, caller *library.User) {
	username := r.URL.Query().Get("username")
	if username == "" {
		username = caller.Username
	}
	if !s.selfOrStaff(w, caller, username) {
		return
	}
	s.writeLoans(w)(s.db.LoansByUser(username))
}

func (s *Server) handlePendingLoans(w http.ResponseWriter, r *http.Request, _ *library.User) {
	s.writeLoans(w)(s.db.PendingLoans())
}

func (s *Server) handleAllLoans(w http.ResponseWriter, r *http.Request, _ *library.User) {
	s.writeLoans(w)(s.db.AllLoans())
}

func (s *Server) writeLoans(w http.ResponseWriter) func([]library.Loan, error) {
	return func(loans []library.Loan, err error) {
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, loans)
	}
}

// ------------------ Admin ------------------

func (s *Server) handleCreateLibrarian(w http.ResponseWriter, r *http.Request, _ *library.User) {
	u, err := s.db.CreateUser(r.FormValue("username"), r.FormValue("fullName"), r.FormValue("password"), library.RoleLibrarian)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ *library.User) {
	users, err := s.db.ListUsers()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request, _ *library.User) {
	username := r.FormValue("username")
	if err := s.db.SetRole(username, library.ParseRole(r.FormValue("newRole"))); err != nil {
		s.fail(w, err)
		return
	}
	u, err := s.db.GetUser(username)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, caller *library.User) {
	username := mux.Vars(r)["username"]
	if username == caller.Username {
		http.Error(w, "you cannot delete your own account", http.StatusConflict)
		return
	}
	if err := s.db.DeleteUser(username); err != nil {
		s.fail(w, err)
		return
	}
	writeText(w, "User deleted")
}

// selfOrStaff lets members act on their own records and librarians on anyone's.
func (s *Server) selfOrStaff(w http.ResponseWriter, caller *library.User, username string) bool {
	if username == caller.Username || library.ParseRole(caller.Role).Satisfies(library.RoleLibrarian) {
		return true
	}
	http.Error(w, "forbidden", http.StatusForbidden)
	return false
}
