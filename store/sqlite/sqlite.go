/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Durable single-node persistence for the course ledger. The same schema
  maps onto PostgreSQL (see store/postgres) with minor dialect changes.

KEY TABLES:
  courses:     One row per course. Never deleted; is_active flips once.
  enrollments: One row per (course_id, student). Never deleted.
  balances:    Current balance per account, stored as decimal text.
  transfers:   Settled purchase payments, append-only.

INDEXES:
  - idx_courses_active:         Active listing in creation order
  - idx_courses_instructor:     Instructor's courses
  - idx_enrollments_student:    Student's courses in enrollment order
  - UNIQUE(course_id, student): Enforces a single enrollment per pair

AMOUNTS:
  Stored as TEXT decimal strings. SQLite REAL would lose the 18 fractional
  digits of the native unit.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for
  the whole *sql.Tx, so there is only ever one writer.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/course-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

var _ ledger.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, q: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		price TEXT NOT NULL,
		instructor TEXT NOT NULL,
		protected_resource TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_courses_active
		ON courses(id) WHERE is_active;
	CREATE INDEX IF NOT EXISTS idx_courses_instructor
		ON courses(instructor, id);

	CREATE TABLE IF NOT EXISTS enrollments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses(id),
		student TEXT NOT NULL,
		price TEXT NOT NULL,
		transfer_id TEXT NOT NULL,
		enrolled_at TEXT NOT NULL,
		UNIQUE(course_id, student)
	);

	CREATE INDEX IF NOT EXISTS idx_enrollments_student
		ON enrollments(student, seq);

	CREATE TABLE IF NOT EXISTS balances (
		account TEXT PRIMARY KEY,
		amount TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		from_account TEXT NOT NULL,
		to_account TEXT NOT NULL,
		amount TEXT NOT NULL,
		course_id INTEGER NOT NULL REFERENCES courses(id),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_course
		ON transfers(course_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED ACCESSORS (ledger.Store interface)
// =============================================================================

func (s *Store) InsertCourse(ctx context.Context, c ledger.Course) (ledger.CourseID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertCourse(ctx, c)
}

func (s *Store) GetCourse(ctx context.Context, id ledger.CourseID) (ledger.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetCourse(ctx, id)
}

func (s *Store) SetCourseActive(ctx context.Context, id ledger.CourseID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetCourseActive(ctx, id, active)
}

func (s *Store) ActiveCourseIDs(ctx context.Context) ([]ledger.CourseID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ActiveCourseIDs(ctx)
}

func (s *Store) InstructorCourseIDs(ctx context.Context, instructor ledger.Identity) ([]ledger.CourseID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.InstructorCourseIDs(ctx, instructor)
}

func (s *Store) StudentCourseIDs(ctx context.Context, student ledger.Identity) ([]ledger.CourseID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.StudentCourseIDs(ctx, student)
}

func (s *Store) InsertEnrollment(ctx context.Context, e ledger.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertEnrollment(ctx, e)
}

func (s *Store) HasEnrollment(ctx context.Context, id ledger.CourseID, student ledger.Identity) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.HasEnrollment(ctx, id, student)
}

func (s *Store) CourseEnrollments(ctx context.Context, id ledger.CourseID) ([]ledger.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.CourseEnrollments(ctx, id)
}

func (s *Store) Balance(ctx context.Context, account ledger.Identity) (ledger.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.Balance(ctx, account)
}

func (s *Store) AdjustBalance(ctx context.Context, account ledger.Identity, delta ledger.Amount) (ledger.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.AdjustBalance(ctx, account, delta)
}

func (s *Store) InsertTransfer(ctx context.Context, t ledger.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertTransfer(ctx, t)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). Course ids restart at 1.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transfers", "enrollments", "balances", "courses"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence")
	return err
}

// Transfers returns every settled transfer in settlement order.
func (s *Store) Transfers(ctx context.Context) ([]ledger.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.transfers(ctx)
}

// =============================================================================
// QUERIES - run against *sql.DB or *sql.Tx; callers hold Store.mu
// =============================================================================

type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db conn
}

func (q *queries) InsertCourse(ctx context.Context, c ledger.Course) (ledger.CourseID, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO courses (title, description, price, instructor, protected_resource, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Title, c.Description, c.Price.String(), string(c.Instructor),
		c.ProtectedResource, c.IsActive, formatTime(c.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert course: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read course id: %w", err)
	}
	return ledger.CourseID(id), nil
}

func (q *queries) GetCourse(ctx context.Context, id ledger.CourseID) (ledger.Course, error) {
	var (
		c          ledger.Course
		rawID      int64
		price      string
		instructor string
		createdAt  string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, title, description, price, instructor, protected_resource, is_active, created_at
		FROM courses WHERE id = ?`, int64(id),
	).Scan(&rawID, &c.Title, &c.Description, &price, &instructor, &c.ProtectedResource, &c.IsActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Course{}, fmt.Errorf("course %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Course{}, fmt.Errorf("failed to get course: %w", err)
	}

	c.ID = ledger.CourseID(rawID)
	c.Instructor = ledger.Identity(instructor)
	if c.Price, err = parseAmount(price); err != nil {
		return ledger.Course{}, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Course{}, err
	}
	return c, nil
}

func (q *queries) SetCourseActive(ctx context.Context, id ledger.CourseID, active bool) error {
	res, err := q.db.ExecContext(ctx, "UPDATE courses SET is_active = ? WHERE id = ?", active, int64(id))
	if err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("course %s: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (q *queries) ActiveCourseIDs(ctx context.Context) ([]ledger.CourseID, error) {
	return q.courseIDs(ctx, "SELECT id FROM courses WHERE is_active ORDER BY id")
}

func (q *queries) InstructorCourseIDs(ctx context.Context, instructor ledger.Identity) ([]ledger.CourseID, error) {
	return q.courseIDs(ctx, "SELECT id FROM courses WHERE instructor = ? ORDER BY id", string(instructor))
}

func (q *queries) StudentCourseIDs(ctx context.Context, student ledger.Identity) ([]ledger.CourseID, error) {
	return q.courseIDs(ctx, "SELECT course_id FROM enrollments WHERE student = ? ORDER BY seq", string(student))
}

func (q *queries) courseIDs(ctx context.Context, query string, args ...any) ([]ledger.CourseID, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	ids := []ledger.CourseID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan course id: %w", err)
		}
		ids = append(ids, ledger.CourseID(id))
	}
	return ids, rows.Err()
}

func (q *queries) InsertEnrollment(ctx context.Context, e ledger.Enrollment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO enrollments (course_id, student, price, transfer_id, enrolled_at)
		VALUES (?, ?, ?, ?, ?)`,
		int64(e.CourseID), string(e.Student), e.Price.String(), e.TransferID, formatTime(e.EnrolledAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrAlreadyEnrolled
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("course %s: %w", e.CourseID, ledger.ErrNotFound)
		}
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	return nil
}

func (q *queries) HasEnrollment(ctx context.Context, id ledger.CourseID, student ledger.Identity) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM enrollments WHERE course_id = ? AND student = ?",
		int64(id), string(student),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return count > 0, nil
}

func (q *queries) CourseEnrollments(ctx context.Context, id ledger.CourseID) ([]ledger.Enrollment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT course_id, student, price, transfer_id, enrolled_at
		FROM enrollments WHERE course_id = ? ORDER BY seq`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer rows.Close()

	result := []ledger.Enrollment{}
	for rows.Next() {
		var (
			e          ledger.Enrollment
			courseID   int64
			student    string
			price      string
			enrolledAt string
		)
		if err := rows.Scan(&courseID, &student, &price, &e.TransferID, &enrolledAt); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		e.CourseID = ledger.CourseID(courseID)
		e.Student = ledger.Identity(student)
		if e.Price, err = parseAmount(price); err != nil {
			return nil, err
		}
		if e.EnrolledAt, err = parseTime(enrolledAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (q *queries) Balance(ctx context.Context, account ledger.Identity) (ledger.Amount, error) {
	var raw string
	err := q.db.QueryRowContext(ctx, "SELECT amount FROM balances WHERE account = ?", string(account)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NewAmount(0), nil
	}
	if err != nil {
		return ledger.Amount{}, fmt.Errorf("failed to load balance: %w", err)
	}
	return parseAmount(raw)
}

// AdjustBalance is a read-modify-write. It is atomic because every caller
// holds the write lock.
func (q *queries) AdjustBalance(ctx context.Context, account ledger.Identity, delta ledger.Amount) (ledger.Amount, error) {
	current, err := q.Balance(ctx, account)
	if err != nil {
		return ledger.Amount{}, err
	}
	next := current.Add(delta)
	if next.IsNegative() {
		return ledger.Amount{}, &ledger.InsufficientFundsError{Account: account, Available: current, Required: delta.Neg()}
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO balances (account, amount) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET amount = excluded.amount`,
		string(account), next.String(),
	)
	if err != nil {
		return ledger.Amount{}, fmt.Errorf("failed to store balance: %w", err)
	}
	return next, nil
}

func (q *queries) InsertTransfer(ctx context.Context, t ledger.Transfer) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO transfers (id, from_account, to_account, amount, course_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.From), string(t.To), t.Amount.String(), int64(t.CourseID), formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

func (q *queries) transfers(ctx context.Context) ([]ledger.Transfer, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, from_account, to_account, amount, course_id, created_at
		FROM transfers ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	result := []ledger.Transfer{}
	for rows.Next() {
		var (
			t         ledger.Transfer
			from, to  string
			amount    string
			courseID  int64
			createdAt string
		)
		if err := rows.Scan(&t.ID, &from, &to, &amount, &courseID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		t.From, t.To, t.CourseID = ledger.Identity(from), ledger.Identity(to), ledger.CourseID(courseID)
		if t.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseAmount(s string) (ledger.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ledger.Amount{}, fmt.Errorf("corrupt amount %q: %w", s, err)
	}
	return ledger.Amount{Value: d}, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
