/*
ledger.go - The Ledger facade

PURPOSE:
  Ledger is the single owned object a process constructs at start-up and
  keeps for its lifetime. It wires one TxStore into the four engines and
  exposes their operations as one method set:

    Registry     CreateCourse, DeactivateCourse
    Enrollments  PurchaseCourse
    Gate         ProtectedResource, IsEnrolled
    Catalog      ActiveCourses, ActiveCourseInfos, CourseInfo,
                 StudentCourses, InstructorCourses, Roster
    Wallet       Deposit, Balance

ATOMICITY:
  Each mutating operation is exactly one TxStore.WithTx call. Either every
  write inside it commits or none does.

OPTIONS:
  WithClock      Time source for CreatedAt / EnrolledAt (tests pin it)
  WithEventSink  Receiver of CourseCreated events
  WithSettler    Fund transfer strategy for purchases
  WithIDs        Transfer id generator

SEE ALSO:
  - registry.go, enrollment.go, access.go, query.go, wallet.go
*/
package ledger

import (
	"time"

	"github.com/warp/course-ledger/ids"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	*Registry
	*Enrollments
	*Gate
	*Catalog
	*Wallet
}

// env is the shared wiring every engine receives.
type env struct {
	store   TxStore
	now     func() time.Time
	events  EventSink
	settler Settler
	newID   func() string
}

type Option func(*env)

func WithClock(now func() time.Time) Option {
	return func(e *env) { e.now = now }
}

func WithEventSink(sink EventSink) Option {
	return func(e *env) {
		if sink != nil {
			e.events = sink
		}
	}
}

func WithSettler(s Settler) Option {
	return func(e *env) {
		if s != nil {
			e.settler = s
		}
	}
}

func WithIDs(newID func() string) Option {
	return func(e *env) { e.newID = newID }
}

// New creates a Ledger over store.
func New(store TxStore, opts ...Option) *Ledger {
	e := &env{
		store:   store,
		now:     func() time.Time { return time.Now().UTC() },
		events:  discardSink{},
		settler: WalletSettler{},
		newID:   ids.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return &Ledger{
		Registry:    &Registry{env: e},
		Enrollments: &Enrollments{env: e},
		Gate:        &Gate{env: e},
		Catalog:     &Catalog{env: e},
		Wallet:      &Wallet{env: e},
	}
}
