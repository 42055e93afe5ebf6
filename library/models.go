package library

import (
	"strings"
	"time"
)

// User is an identity as the server knows it.
type User struct {
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Role     string `json:"role,omitempty"`
}

// Identity is the subset of User cached client-side for the session.
type Identity struct {
	Username string
	FullName string
	Role     Role
}

// Book represents catalog metadata and current availability of a book.
// Availability is owned by the server; the client only reads it.
type Book struct {
	ID        int64  `json:"id,omitempty"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Genre     string `json:"genre"`
	ISBN      string `json:"isbn,omitempty"`
	Available *bool  `json:"available,omitempty"`
}

// IsAvailable reports the availability flag, treating a missing flag as unavailable.
func (b *Book) IsAvailable() bool {
	return b.Available != nil && *b.Available
}

// Loan statuses as reported by the server.
const (
	LoanPending  = "pending"
	LoanApproved = "approved"
	LoanReturned = "returned"
)

// Loan is a borrowing record. Dates are kept exactly as the server sent them.
type Loan struct {
	ID         int64  `json:"id,omitempty"`
	BookID     int64  `json:"bookId"`
	Username   string `json:"username"`
	LoanDate   string `json:"loanDate,omitempty"`
	DueDate    string `json:"dueDate,omitempty"`
	ReturnDate string `json:"returnDate,omitempty"`
	Status     string `json:"status,omitempty"`
	Approved   *bool  `json:"approved,omitempty"`
	Approver   string `json:"approver,omitempty"`
	BookTitle  string `json:"bookTitle,omitempty"`
	BookAuthor string `json:"bookAuthor,omitempty"`
	BookGenre  string `json:"bookGenre,omitempty"`
}

// LoanState is how a loan is presented to its borrower.
type LoanState string

const (
	StatePending  LoanState = "pending"
	StateActive   LoanState = "active"
	StateOverdue  LoanState = "overdue"
	StateReturned LoanState = "returned"
)

// IsReturned reports whether the loan has been closed. A return date counts
// even when the server sent no status.
func (l *Loan) IsReturned() bool {
	return l.ReturnDate != "" || strings.EqualFold(l.Status, LoanReturned)
}

// IsPending reports whether the loan still awaits approval. Without a status
// the approved flag decides, and a loan with neither flag nor dates has not
// been approved yet.
func (l *Loan) IsPending() bool {
	if l.IsReturned() {
		return false
	}
	if l.Status != "" {
		return strings.EqualFold(l.Status, LoanPending)
	}
	if l.Approved != nil {
		return !*l.Approved
	}
	return l.LoanDate == "" && l.DueDate == ""
}

// Overdue reports whether an approved, unreturned loan is past its due date
// at now. Unparseable due dates are never overdue.
func (l *Loan) Overdue(now time.Time) bool {
	if l.IsReturned() || l.IsPending() {
		return false
	}
	due, ok := parseLoanDate(l.DueDate)
	return ok && due.Before(now)
}

// State derives the display state: returned, then pending, then overdue,
// otherwise active.
func (l *Loan) State(now time.Time) LoanState {
	switch {
	case l.IsReturned():
		return StateReturned
	case l.IsPending():
		return StatePending
	case l.Overdue(now):
		return StateOverdue
	}
	return StateActive
}

var loanDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseLoanDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range loanDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RegisterRequest is the payload for account creation.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// LoginRequest carries credentials for /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is what /auth/login answers with.
type LoginResponse struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Role     string `json:"role,omitempty"`
}

type ChangePasswordRequest struct {
	Username    string `json:"username"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type ProfileUpdateRequest struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// BookQuery filters a catalog search. Empty fields are not sent.
type BookQuery struct {
	Title  string
	Author string
	Genre  string
}
