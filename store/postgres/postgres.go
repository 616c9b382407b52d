/*
Package postgres provides a PostgreSQL implementation of ledger.TxStore.

PURPOSE:
  Multi-process deployments share one PostgreSQL database. Unlike the
  SQLite store there is no process-local lock: isolation comes from
  SERIALIZABLE transactions and table constraints.

CONSTRAINTS DOING THE WORK:
  - enrollments UNIQUE(course_id, student): concurrent duplicate purchases
    cannot both commit (23505 maps to ledger.ErrAlreadyEnrolled)
  - balances CHECK(amount >= 0): a racing debit cannot overdraw
    (23514 maps to ledger.ErrInsufficientFunds)

RETRIES:
  WithTx retries the whole callback when PostgreSQL aborts it with a
  serialization failure (40001) or deadlock (40P01). Callers never see
  these codes. The callback must therefore be safe to re-run.

AMOUNTS:
  NUMERIC(78, 18), scanned into decimal.Decimal.

SEE ALSO:
  - store/sqlite/sqlite.go: Same schema for a single node
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"github.com/warp/course-ledger/ledger"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// MaxTxAttempts bounds WithTx retries on serialization failures.
const MaxTxAttempts = 5

const schema = `
create table if not exists courses (
	id bigserial primary key,
	title text not null,
	description text not null,
	price numeric(78, 18) not null check (price > 0),
	instructor text not null,
	protected_resource text not null,
	is_active boolean not null default true,
	created_at timestamptz not null
);

create index if not exists idx_courses_active on courses(id) where is_active;
create index if not exists idx_courses_instructor on courses(instructor, id);

create table if not exists enrollments (
	seq bigserial primary key,
	course_id bigint not null references courses(id),
	student text not null,
	price numeric(78, 18) not null,
	transfer_id text not null,
	enrolled_at timestamptz not null,
	unique (course_id, student)
);

create index if not exists idx_enrollments_student on enrollments(student, seq);

create table if not exists balances (
	account text primary key,
	amount numeric(78, 18) not null check (amount >= 0)
);

create table if not exists transfers (
	id text primary key,
	from_account text not null,
	to_account text not null,
	amount numeric(78, 18) not null,
	course_id bigint not null references courses(id),
	created_at timestamptz not null
);
`

// Store implements ledger.TxStore on PostgreSQL.
type Store struct {
	db *sql.DB
	q  queries
}

var _ ledger.TxStore = (*Store)(nil)

// Open connects through the pgx database/sql driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: queries{db: db}}
}

func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Reset removes every record and restarts course ids at 1.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `truncate transfers, enrollments, balances, courses restart identity`); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func (s *Store) InsertCourse(ctx context.Context, c ledger.Course) (ledger.CourseID, error) {
	return s.q.InsertCourse(ctx, c)
}

func (s *Store) GetCourse(ctx context.Context, id ledger.CourseID) (ledger.Course, error) {
	return s.q.GetCourse(ctx, id)
}

func (s *Store) SetCourseActive(ctx context.Context, id ledger.CourseID, active bool) error {
	return s.q.SetCourseActive(ctx, id, active)
}

func (s *Store) ActiveCourseIDs(ctx context.Context) ([]ledger.CourseID, error) {
	return s.q.ActiveCourseIDs(ctx)
}

func (s *Store) InstructorCourseIDs(ctx context.Context, instructor ledger.Identity) ([]ledger.CourseID, error) {
	return s.q.InstructorCourseIDs(ctx, instructor)
}

func (s *Store) StudentCourseIDs(ctx context.Context, student ledger.Identity) ([]ledger.CourseID, error) {
	return s.q.StudentCourseIDs(ctx, student)
}

func (s *Store) InsertEnrollment(ctx context.Context, e ledger.Enrollment) error {
	return s.q.InsertEnrollment(ctx, e)
}

func (s *Store) HasEnrollment(ctx context.Context, id ledger.CourseID, student ledger.Identity) (bool, error) {
	return s.q.HasEnrollment(ctx, id, student)
}

func (s *Store) CourseEnrollments(ctx context.Context, id ledger.CourseID) ([]ledger.Enrollment, error) {
	return s.q.CourseEnrollments(ctx, id)
}

func (s *Store) Balance(ctx context.Context, account ledger.Identity) (ledger.Amount, error) {
	return s.q.Balance(ctx, account)
}

func (s *Store) AdjustBalance(ctx context.Context, account ledger.Identity, delta ledger.Amount) (ledger.Amount, error) {
	return s.q.AdjustBalance(ctx, account, delta)
}

func (s *Store) InsertTransfer(ctx context.Context, t ledger.Transfer) error {
	return s.q.InsertTransfer(ctx, t)
}

// WithTx runs fn in a SERIALIZABLE transaction, retrying on
// serialization failures up to MaxTxAttempts times.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	var err error
	for attempt := 1; attempt <= MaxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("transaction aborted after %d attempts: %w", MaxTxAttempts, err)
}

func (s *Store) runTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// --- queries ---

type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db conn
}

func (q *queries) InsertCourse(ctx context.Context, c ledger.Course) (ledger.CourseID, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		insert into courses(title, description, price, instructor, protected_resource, is_active, created_at)
		values ($1,$2,$3,$4,$5,$6,$7) returning id
	`, c.Title, c.Description, c.Price.Value, string(c.Instructor), c.ProtectedResource, c.IsActive, c.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert course: %w", err)
	}
	return ledger.CourseID(id), nil
}

func (q *queries) GetCourse(ctx context.Context, id ledger.CourseID) (ledger.Course, error) {
	var (
		c          ledger.Course
		rawID      int64
		instructor string
	)
	err := q.db.QueryRowContext(ctx, `
		select id, title, description, price, instructor, protected_resource, is_active, created_at
		from courses where id=$1
	`, int64(id)).Scan(&rawID, &c.Title, &c.Description, &c.Price.Value, &instructor, &c.ProtectedResource, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Course{}, fmt.Errorf("course %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Course{}, fmt.Errorf("get course: %w", err)
	}
	c.ID = ledger.CourseID(rawID)
	c.Instructor = ledger.Identity(instructor)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (q *queries) SetCourseActive(ctx context.Context, id ledger.CourseID, active bool) error {
	res, err := q.db.ExecContext(ctx, `update courses set is_active=$2 where id=$1`, int64(id), active)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("course %s: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (q *queries) ActiveCourseIDs(ctx context.Context) ([]ledger.CourseID, error) {
	return q.courseIDs(ctx, `select id from courses where is_active order by id`)
}

func (q *queries) InstructorCourseIDs(ctx context.Context, instructor ledger.Identity) ([]ledger.CourseID, error) {
	return q.courseIDs(ctx, `select id from courses where instructor=$1 order by id`, string(instructor))
}

func (q *queries) StudentCourseIDs(ctx context.Context, student ledger.Identity) ([]ledger.CourseID, error) {
	return q.courseIDs(ctx, `select course_id from enrollments where student=$1 order by seq`, string(student))
}

func (q *queries) courseIDs(ctx context.Context, query string, args ...any) ([]ledger.CourseID, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	ids := []ledger.CourseID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, ledger.CourseID(id))
	}
	return ids, rows.Err()
}

func (q *queries) InsertEnrollment(ctx context.Context, e ledger.Enrollment) error {
	_, err := q.db.ExecContext(ctx, `
		insert into enrollments(course_id, student, price, transfer_id, enrolled_at)
		values ($1,$2,$3,$4,$5)
	`, int64(e.CourseID), string(e.Student), e.Price.Value, e.TransferID, e.EnrolledAt)
	switch pgCode(err) {
	case "":
		if err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
		return nil
	case codeUniqueViolation:
		return ledger.ErrAlreadyEnrolled
	case codeForeignKeyViolation:
		return fmt.Errorf("course %s: %w", e.CourseID, ledger.ErrNotFound)
	default:
		return fmt.Errorf("insert enrollment: %w", err)
	}
}

func (q *queries) HasEnrollment(ctx context.Context, id ledger.CourseID, student ledger.Identity) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		select exists(select 1 from enrollments where course_id=$1 and student=$2)
	`, int64(id), string(student)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

func (q *queries) CourseEnrollments(ctx context.Context, id ledger.CourseID) ([]ledger.Enrollment, error) {
	rows, err := q.db.QueryContext(ctx, `
		select course_id, student, price, transfer_id, enrolled_at
		from enrollments where course_id=$1 order by seq
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	res := []ledger.Enrollment{}
	for rows.Next() {
		var (
			e        ledger.Enrollment
			courseID int64
			student  string
		)
		if err := rows.Scan(&courseID, &student, &e.Price.Value, &e.TransferID, &e.EnrolledAt); err != nil {
			return nil, err
		}
		e.CourseID = ledger.CourseID(courseID)
		e.Student = ledger.Identity(student)
		e.EnrolledAt = e.EnrolledAt.UTC()
		res = append(res, e)
	}
	return res, rows.Err()
}

func (q *queries) Balance(ctx context.Context, account ledger.Identity) (ledger.Amount, error) {
	var amount decimal.Decimal
	err := q.db.QueryRowContext(ctx, `
		select coalesce((select amount from balances where account=$1), 0)
	`, string(account)).Scan(&amount)
	if err != nil {
		return ledger.Amount{}, fmt.Errorf("load balance: %w", err)
	}
	return ledger.Amount{Value: amount}, nil
}

// AdjustBalance applies delta with a single upsert. The CHECK constraint
// rejects an overdraft that slipped past the pre-check.
func (q *queries) AdjustBalance(ctx context.Context, account ledger.Identity, delta ledger.Amount) (ledger.Amount, error) {
	current, err := q.Balance(ctx, account)
	if err != nil {
		return ledger.Amount{}, err
	}
	if current.Add(delta).IsNegative() {
		return ledger.Amount{}, &ledger.InsufficientFundsError{Account: account, Available: current, Required: delta.Neg()}
	}

	var next decimal.Decimal
	err = q.db.QueryRowContext(ctx, `
		insert into balances(account, amount) values ($1,$2)
		on conflict (account) do update
		set amount = balances.amount + excluded.amount
		returning amount
	`, string(account), delta.Value).Scan(&next)
	if pgCode(err) == codeCheckViolation {
		return ledger.Amount{}, &ledger.InsufficientFundsError{Account: account, Available: current, Required: delta.Neg()}
	}
	if err != nil {
		return ledger.Amount{}, fmt.Errorf("adjust balance: %w", err)
	}
	return ledger.Amount{Value: next}, nil
}

func (q *queries) InsertTransfer(ctx context.Context, t ledger.Transfer) error {
	_, err := q.db.ExecContext(ctx, `
		insert into transfers(id, from_account, to_account, amount, course_id, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, t.ID, string(t.From), string(t.To), t.Amount.Value, int64(t.CourseID), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// --- helpers ---

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isRetryable(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
