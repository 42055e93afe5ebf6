package library

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ------------------ Auth ------------------

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	var u User
	if _, err := c.send(ctx, http.MethodPost, "/auth/register", req, ContentJSON, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if _, err := c.send(ctx, http.MethodPost, "/auth/login", req, ContentJSON, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangePassword returns the server's status text.
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) (string, error) {
	var msg string
	_, err := c.send(ctx, http.MethodPost, "/auth/change-password", req, ContentJSON, &msg)
	return msg, err
}

func (c *Client) GetUserInfo(ctx context.Context, username string) (*User, error) {
	var u User
	if _, err := c.send(ctx, http.MethodGet, "/auth/user/"+url.PathEscape(username), nil, ContentJSON, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req ProfileUpdateRequest) (string, error) {
	var msg string
	_, err := c.send(ctx, http.MethodPut, "/auth/user/update", req, ContentJSON, &msg)
	return msg, err
}

// CreateAdmin creates an administrator account. Privileged.
func (c *Client) CreateAdmin(ctx context.Context, req RegisterRequest) (*User, error) {
	var u User
	if _, err := c.send(ctx, http.MethodPost, "/auth/admin/create", req, ContentJSON, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ------------------ Books ------------------

// SearchBooks sends only the non-empty filters. An empty query lists the
// whole catalog.
func (c *Client) SearchBooks(ctx context.Context, q BookQuery) ([]Book, error) {
	path := "/books/search"
	if qs := q.encode(); qs != "" {
		path += "?" + qs
	}
	var books []Book
	if _, err := c.send(ctx, http.MethodGet, path, nil, ContentJSON, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// encode emits title, author, genre in that order, skipping empty ones.
func (q BookQuery) encode() string {
	var out string
	add := func(k, v string) {
		if v == "" {
			return
		}
		if out != "" {
			out += "&"
		}
		out += k + "=" + url.QueryEscape(v)
	}
	add("title", q.Title)
	add("author", q.Author)
	add("genre", q.Genre)
	return out
}

func (c *Client) GetBook(ctx context.Context, id int64) (*Book, error) {
	var b Book
	if _, err := c.send(ctx, http.MethodGet, bookPath(id), nil, ContentJSON, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) AddBook(ctx context.Context, book Book) (*Book, error) {
	var b Book
	if _, err := c.send(ctx, http.MethodPost, "/books", book, ContentJSON, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBook submits a full replacement of the book.
func (c *Client) UpdateBook(ctx context.Context, id int64, book Book) (*Book, error) {
	var b Book
	if _, err := c.send(ctx, http.MethodPut, bookPath(id), book, ContentJSON, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBook returns the server's status text, which is often empty.
func (c *Client) DeleteBook(ctx context.Context, id int64) (string, error) {
	var msg string
	_, err := c.send(ctx, http.MethodDelete, bookPath(id), nil, ContentJSON, &msg)
	return msg, err
}

func bookPath(id int64) string { return "/books/" + strconv.FormatInt(id, 10) }

// ------------------ Loans ------------------

func (c *Client) RequestLoan(ctx context.Context, username string, bookID int64) (*Loan, error) {
	form := url.Values{
		"username": {username},
		"bookId":   {strconv.FormatInt(bookID, 10)},
	}
	return c.postLoanForm(ctx, "/loans/request", form)
}

// ApproveLoan is a librarian action.
func (c *Client) ApproveLoan(ctx context.Context, loanID int64, approver string) (*Loan, error) {
	form := url.Values{
		"loanId":   {strconv.FormatInt(loanID, 10)},
		"approver": {approver},
	}
	return c.postLoanForm(ctx, "/loans/approve", form)
}

func (c *Client) ReturnLoan(ctx context.Context, loanID int64, username string) (*Loan, error) {
	form := url.Values{
		"loanId":   {strconv.FormatInt(loanID, 10)},
		"username": {username},
	}
	return c.postLoanForm(ctx, "/loans/return", form)
}

func (c *Client) postLoanForm(ctx context.Context, path string, form url.Values) (*Loan, error) {
	var l Loan
	if _, err := c.send(ctx, http.MethodPost, path, form, ContentForm, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *Client) MyLoans(ctx context.Context, username string) ([]Loan, error) {
	return c.listLoans(ctx, "/loans/my?username="+url.QueryEscape(username))
}

func (c *Client) PendingLoans(ctx context.Context) ([]Loan, error) {
	return c.listLoans(ctx, "/loans/pending")
}

func (c *Client) AllLoans(ctx context.Context) ([]Loan, error) {
	return c.listLoans(ctx, "/loans/all")
}

func (c *Client) listLoans(ctx context.Context, path string) ([]Loan, error) {
	var loans []Loan
	if _, err := c.send(ctx, http.MethodGet, path, nil, ContentJSON, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

// ------------------ Admin ------------------

func (c *Client) CreateLibrarian(ctx context.Context, req RegisterRequest) (*User, error) {
	form := url.Values{
		"username": {req.Username},
		"password": {req.Password},
		"fullName": {req.FullName},
	}
	var u User
	if _, err := c.send(ctx, http.MethodPost, "/admin/create-librarian", form, ContentForm, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if _, err := c.send(ctx, http.MethodGet, "/admin/users", nil, ContentJSON, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// PromoteUser assigns a new role. The role goes out in wire form. The answer
// body varies between servers and is not interpreted.
func (c *Client) PromoteUser(ctx context.Context, username string, role Role) error {
	form := url.Values{
		"username": {username},
		"newRole":  {role.Wire()},
	}
	_, err := c.send(ctx, http.MethodPost, "/admin/promote", form, ContentForm, nil)
	return err
}

func (c *Client) DeleteUser(ctx context.Context, username string) (string, error) {
	var msg string
	_, err := c.send(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(username), nil, ContentJSON, &msg)
	return msg, err
}
