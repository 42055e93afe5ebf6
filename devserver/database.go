package devserver

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"library-portal/library"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalid            = errors.New("invalid input")
)

// LoanPeriod is how long an approved loan runs before it is due.
const LoanPeriod = 14 * 24 * time.Hour

const dateLayout = "2006-01-02"

// Database provides high-level helpers around a SQLite connection.
type Database struct {
	db  *sql.DB
	now func() time.Time

	addBookStmt *sql.Stmt
	addUserStmt *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Enable busy_timeout and foreign keys.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db, now: time.Now}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.addBookStmt != nil {
		d.addBookStmt.Close()
	}
	if d.addUserStmt != nil {
		d.addUserStmt.Close()
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            full_name TEXT NOT NULL,
            password_hash TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'ROLE_MEMBER'
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            genre TEXT NOT NULL DEFAULT '',
            isbn TEXT NOT NULL DEFAULT '',
            available BOOLEAN NOT NULL DEFAULT 1
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            username TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'PENDING',
            loan_date TEXT NOT NULL DEFAULT '',
            due_date TEXT NOT NULL DEFAULT '',
            return_date TEXT NOT NULL DEFAULT '',
            approver TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loans_username ON loans(username);`,
		`CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, schemaVersion); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.addBookStmt, err = d.db.Prepare(`INSERT INTO books(title,author,genre,isbn) VALUES(?,?,?,?)`); err != nil {
		return err
	}
	if d.addUserStmt, err = d.db.Prepare(`INSERT INTO users(username,full_name,password_hash,role) VALUES(?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser stores a new account with a bcrypt password hash.
func (d *Database) CreateUser(username, fullName, password string, role library.Role) (*library.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalid)
	}
	if fullName == "" {
		fullName = username
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	res, err := d.addUserStmt.Exec(username, fullName, string(hash), role.Wire())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: username %q is already taken", ErrConflict, username)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &library.User{ID: id, Username: username, FullName: fullName, Role: role.Wire()}, nil
}

// EnsureAdmin creates the bootstrap administrator unless the username exists.
// It reports whether an account was created.
func (d *Database) EnsureAdmin(username, password string) (bool, error) {
	_, err := d.GetUser(username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if _, err := d.CreateUser(username, "Administrator", password, library.RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}

// Authenticate checks a password against the stored hash.
func (d *Database) Authenticate(username, password string) (*library.User, error) {
	u, hash, err := d.userWithHash(username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (d *Database) GetUser(username string) (*library.User, error) {
	u, _, err := d.userWithHash(username)
	return u, err
}

func (d *Database) userWithHash(username string) (*library.User, string, error) {
	var (
		u    library.User
		hash string
	)
	err := d.db.QueryRow(`SELECT id,username,full_name,role,password_hash FROM users WHERE username=?`, username).
		Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	if err != nil {
		return nil, "", err
	}
	return &u, hash, nil
}

// ListUsers returns all accounts ordered by id.
func (d *Database) ListUsers() ([]library.User, error) {
	rows, err := d.db.Query(`SELECT id,username,full_name,role FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []library.User{}
	for rows.Next() {
		var u library.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Role); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *Database) UpdateFullName(username, fullName string) error {
	return d.updateUser(username, `UPDATE users SET full_name=? WHERE username=?`, fullName)
}

// SetRole replaces a user's role.
func (d *Database) SetRole(username string, role library.Role) error {
	if role == library.RoleNone {
		return fmt.Errorf("%w: unknown role", ErrInvalid)
	}
	return d.updateUser(username, `UPDATE users SET role=? WHERE username=?`, role.Wire())
}

// ChangePassword verifies the old password before storing the new one.
func (d *Database) ChangePassword(username, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalid)
	}
	if _, err := d.Authenticate(username, oldPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return d.updateUser(username, `UPDATE users SET password_hash=? WHERE username=?`, string(hash))
}

func (d *Database) DeleteUser(username string) error {
	result, err := d.db.Exec(`DELETE FROM users WHERE username=?`, username)
	if err != nil {
		return err
	}
	return expectOneRow(result, fmt.Sprintf("user %q", username))
}

func (d *Database) updateUser(username, query, value string) error {
	result, err := d.db.Exec(query, value, username)
	if err != nil {
		return err
	}
	return expectOneRow(result, fmt.Sprintf("user %q", username))
}

func expectOneRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

// AddBook inserts a book. New books are always available.
func (d *Database) AddBook(b library.Book) (*library.Book, error) {
	if strings.TrimSpace(b.Title) == "" || strings.TrimSpace(b.Author) == "" {
		return nil, fmt.Errorf("%w: title and author are required", ErrInvalid)
	}
	res, err := d.addBookStmt.Exec(b.Title, b.Author, b.Genre, b.ISBN)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetBook(id)
}

func (d *Database) GetBook(id int64) (*library.Book, error) {
	b, err := scanBook(d.db.QueryRow(`SELECT id,title,author,genre,isbn,available FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: book %d", ErrNotFound, id)
	}
	return b, err
}

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchBooks matches each non-empty filter as a case-insensitive substring.
// An empty query returns the whole catalog.
func (d *Database) SearchBooks(q library.BookQuery) ([]library.Book, error) {
	var (
		where []string
		args  []any
	)
	for col, v := range map[string]string{"title": q.Title, "author": q.Author, "genre": q.Genre} {
		if v = strings.TrimSpace(v); v != "" {
			where = append(where, col+` LIKE ? ESCAPE '\'`)
			args = append(args, "%"+likeEscaper.Replace(v)+"%")
		}
	}
	query := `SELECT id,title,author,genre,isbn,available FROM books`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []library.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

// UpdateBook replaces a book's metadata. Availability is not client-writable.
func (d *Database) UpdateBook(id int64, b library.Book) (*library.Book, error) {
	if strings.TrimSpace(b.Title) == "" || strings.TrimSpace(b.Author) == "" {
		return nil, fmt.Errorf("%w: title and author are required", ErrInvalid)
	}
	result, err := d.db.Exec(`UPDATE books SET title=?, author=?, genre=?, isbn=? WHERE id=?`, b.Title, b.Author, b.Genre, b.ISBN, id)
	if err != nil {
		return nil, err
	}
	if err := expectOneRow(result, fmt.Sprintf("book %d", id)); err != nil {
		return nil, err
	}
	return d.GetBook(id)
}

func (d *Database) DeleteBook(id int64) error {
	result, err := d.db.Exec(`DELETE FROM books WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(result, fmt.Sprintf("book %d", id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(r rowScanner) (*library.Book, error) {
	var (
		b     library.Book
		avail bool
	)
	if err := r.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.ISBN, &avail); err != nil {
		return nil, err
	}
	b.Available = &avail
	return &b, nil
}

// ---------------------------------------------------------------------------
// Loans
// ---------------------------------------------------------------------------

const loanSelect = `SELECT l.id, l.book_id, l.username, l.status, l.loan_date, l.due_date, l.return_date, l.approver,
        b.title, b.author, b.genre
    FROM loans l JOIN books b ON b.id = l.book_id`

// RequestLoan records a pending loan. The book must exist and be available,
// and the member may not already hold an open loan for it.
func (d *Database) RequestLoan(username string, bookID int64) (*library.Loan, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var avail bool
	err = tx.QueryRow(`SELECT available FROM books WHERE id=?`, bookID).Scan(&avail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: book %d", ErrNotFound, bookID)
	}
	if err != nil {
		return nil, err
	}
	if !avail {
		return nil, fmt.Errorf("%w: book %d is not available", ErrConflict, bookID)
	}

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM loans WHERE book_id=? AND username=? AND status<>'RETURNED')`, bookID, username).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: you already have an open loan for this book", ErrConflict)
	}

	res, err := tx.Exec(`INSERT INTO loans(book_id,username) VALUES(?,?)`, bookID, username)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return d.GetLoan(id)
}

// ApproveLoan checks the book out to the borrower and starts the loan period.
// It fails if another loan has taken the copy in the meantime.
func (d *Database) ApproveLoan(loanID int64, approver string) (*library.Loan, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		bookID int64
		status string
	)
	err = tx.QueryRow(`SELECT book_id, status FROM loans WHERE id=?`, loanID).Scan(&bookID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: loan %d", ErrNotFound, loanID)
	}
	if err != nil {
		return nil, err
	}
	if status != "PENDING" {
		return nil, fmt.Errorf("%w: loan %d is %s", ErrConflict, loanID, strings.ToLower(status))
	}

	res, err := tx.Exec(`UPDATE books SET available=0 WHERE id=? AND available=1`, bookID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: book %d already checked out", ErrConflict, bookID)
	}

	now := d.now()
	if _, err := tx.Exec(`UPDATE loans SET status='APPROVED', approver=?, loan_date=?, due_date=? WHERE id=?`,
		approver, now.Format(dateLayout), now.Add(LoanPeriod).Format(dateLayout), loanID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return d.GetLoan(loanID)
}

// ReturnLoan closes an approved loan held by username and frees the book.
func (d *Database) ReturnLoan(loanID int64, username string) (*library.Loan, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		bookID   int64
		status   string
		borrower string
	)
	err = tx.QueryRow(`SELECT book_id, status, username FROM loans WHERE id=?`, loanID).Scan(&bookID, &status, &borrower)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: loan %d", ErrNotFound, loanID)
	}
	if err != nil {
		return nil, err
	}
	if borrower != username {
		return nil, fmt.Errorf("%w: loan %d belongs to another member", ErrConflict, loanID)
	}
	if status != "APPROVED" {
		return nil, fmt.Errorf("%w: loan %d is %s, not checked out", ErrConflict, loanID, strings.ToLower(status))
	}

	if _, err := tx.Exec(`UPDATE loans SET status='RETURNED', return_date=? WHERE id=?`, d.now().Format(dateLayout), loanID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`UPDATE books SET available=1 WHERE id=?`, bookID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return d.GetLoan(loanID)
}

func (d *Database) GetLoan(id int64) (*library.Loan, error) {
	l, err := scanLoan(d.db.QueryRow(loanSelect+` WHERE l.id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: loan %d", ErrNotFound, id)
	}
	return l, err
}

// LoansByUser returns a member's loans, newest first.
func (d *Database) LoansByUser(username string) ([]library.Loan, error) {
	return d.queryLoans(loanSelect+` WHERE l.username=? ORDER BY l.id DESC`, username)
}

// PendingLoans returns loans awaiting approval, oldest first.
func (d *Database) PendingLoans() ([]library.Loan, error) {
	return d.queryLoans(loanSelect + ` WHERE l.status='PENDING' ORDER BY l.id`)
}

func (d *Database) AllLoans() ([]library.Loan, error) {
	return d.queryLoans(loanSelect + ` ORDER BY l.id DESC`)
}

func (d *Database) queryLoans(query string, args ...any) ([]library.Loan, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := []library.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func scanLoan(r rowScanner) (*library.Loan, error) {
	var l library.Loan
	if err := r.Scan(&l.ID, &l.BookID, &l.Username, &l.Status, &l.LoanDate, &l.DueDate, &l.ReturnDate, &l.Approver,
		&l.BookTitle, &l.BookAuthor, &l.BookGenre); err != nil {
		return nil, err
	}
	approved := l.Status == "APPROVED" || l.Status == "RETURNED"
	l.Approved = &approved
	return &l, nil
}
