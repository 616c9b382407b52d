/*
store.go - Ledger Store interface

PURPOSE:
  Defines the boundary between the engines and persistence. The store
  exclusively owns every course, enrollment, balance and transfer record.
  Engines hold only ids and identities between operations and re-query the
  store instead of caching authoritative state.

KEY INTERFACES:
  Store:   Reads and writes used by the engines
  TxStore: Store plus an all-or-nothing transaction boundary

NO DELETES:
  There is no DeleteCourse or DeleteEnrollment. Courses are deactivated
  with SetCourseActive; enrollments are permanent.

INDICES:
  ActiveCourseIDs, InstructorCourseIDs and StudentCourseIDs are derived
  from the course and enrollment sets. Implementations may maintain them
  incrementally (memory) or compute them with indexed queries (SQL), but
  must never let them disagree with the records.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory, for tests and single-process dev
  - store/sqlite/sqlite.go: SQLite, single node
  - store/postgres/postgres.go: PostgreSQL, serializable transactions

SEE ALSO:
  - ledger.go: Engines that drive the store
*/
package ledger

import "context"

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of ledger records.
type Store interface {
	// InsertCourse assigns the next unused CourseID and stores the course.
	InsertCourse(ctx context.Context, c Course) (CourseID, error)

	// GetCourse returns the full record or an error wrapping ErrNotFound.
	GetCourse(ctx context.Context, id CourseID) (Course, error)

	// SetCourseActive flips the active flag and keeps the active index in step.
	SetCourseActive(ctx context.Context, id CourseID, active bool) error

	// ActiveCourseIDs returns active courses in creation order.
	ActiveCourseIDs(ctx context.Context) ([]CourseID, error)

	// InstructorCourseIDs returns every course created by the instructor.
	InstructorCourseIDs(ctx context.Context, instructor Identity) ([]CourseID, error)

	// StudentCourseIDs returns every course the student is enrolled in,
	// in enrollment order.
	StudentCourseIDs(ctx context.Context, student Identity) ([]CourseID, error)

	// InsertEnrollment stores a new enrollment. Returns ErrAlreadyEnrolled
	// if the (course, student) pair already exists.
	InsertEnrollment(ctx context.Context, e Enrollment) error

	// HasEnrollment checks whether the (course, student) pair exists.
	HasEnrollment(ctx context.Context, id CourseID, student Identity) (bool, error)

	// CourseEnrollments returns the course roster in enrollment order.
	CourseEnrollments(ctx context.Context, id CourseID) ([]Enrollment, error)

	// Balance returns the account balance, zero for unknown accounts.
	Balance(ctx context.Context, account Identity) (Amount, error)

	// AdjustBalance adds delta to the balance and returns the new value.
	// Returns ErrInsufficientFunds if the result would be negative.
	AdjustBalance(ctx context.Context, account Identity, delta Amount) (Amount, error)

	// InsertTransfer records a settled transfer.
	InsertTransfer(ctx context.Context, t Transfer) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support. Every mutating ledger
// operation runs inside exactly one WithTx call.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Store passed to fn
	// is rolled back. If fn returns nil, the writes commit together.
	// Readers outside the transaction never observe a partial commit.
	WithTx(ctx context.Context, fn func(Store) error) error
}
