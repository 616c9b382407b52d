/*
Package ledger provides the course registry and access-control ledger.

PURPOSE:
  This package is the authoritative state machine behind the course
  marketplace. Instructors create priced courses, students buy access, and
  a successful purchase unlocks the course's protected resource (a meeting
  link). Everything that decides "who may see what" lives here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A fixed-point quantity in the platform's native unit
  - Identity: An opaque, already-verified account identifier
  - Course / CourseInfo: The course record and its public projection
  - Enrollment: A permanent fact that a student paid for a course
  - Transfer: The fund movement settled as part of a purchase

DESIGN PRINCIPLES:
  1. Precision: Amounts use decimal.Decimal, never floats, never rounded
  2. Exact settlement: A purchase must tender exactly the course price
  3. Disclosure: CourseInfo has no resource field, so listings cannot leak it
  4. Permanence: Courses are deactivated, never deleted; enrollments are forever

USAGE:
  l := ledger.New(store.NewMemory())
  id, err := l.CreateCourse(ctx, "alice", ledger.CourseInput{
      Title:             "Go Concurrency",
      Description:       "Live session",
      Price:             ledger.NewAmount(10),
      ProtectedResource: "https://meet.example/abc",
  })

SEE ALSO:
  - store.go: Ledger Store interfaces
  - ledger.go: The Ledger facade and its options
  - errors.go: Error kinds returned by every operation
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Fixed-point quantity in the native unit
// =============================================================================

// NativeUnit is the display name of the platform currency.
const NativeUnit = "BDAG"

// NativePrecision is the number of fractional digits the native unit can
// express (1 BDAG = 10^18 base units).
const NativePrecision int32 = 18

// MaxIntegerDigits bounds the integer part of an amount so that its value
// in base units fits in 78 digits, the width of a uint256 count of base
// units and of the NUMERIC(78,18) column.
const MaxIntegerDigits = 60

type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value)}
}

// ParseAmount parses a decimal string such as "10" or "0.25".
// Values with more fractional digits than NativePrecision are rejected
// instead of being rounded, and so are values above the uint256 range.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, &InputError{Field: "amount", Reason: "not a decimal"}
	}
	a := Amount{Value: d}
	if !a.InRange() {
		return Amount{}, &InputError{Field: "amount", Reason: fmt.Sprintf("more than %d integer digits", MaxIntegerDigits)}
	}
	if !a.Exact() {
		return Amount{}, &InputError{Field: "amount", Reason: fmt.Sprintf("more than %d fractional digits", NativePrecision)}
	}
	return a, nil
}

// MustParseAmount is ParseAmount for literals in tests and scenarios.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount         { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount         { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount                 { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsPositive() bool            { return a.Value.IsPositive() }
func (a Amount) IsNegative() bool            { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                { return a.Value.IsZero() }
func (a Amount) Equal(b Amount) bool         { return a.Value.Equal(b.Value) }
func (a Amount) LessThan(b Amount) bool      { return a.Value.LessThan(b.Value) }
func (a Amount) GreaterThan(b Amount) bool   { return a.Value.GreaterThan(b.Value) }
func (a Amount) String() string              { return a.Value.String() }

// InRange reports whether the integer part has at most MaxIntegerDigits
// digits. It reads the coefficient and exponent only, so it never expands
// an exponent such as 1e2000000000.
func (a Amount) InRange() bool {
	if a.Value.IsZero() {
		return true
	}
	return int64(coefficientDigits(a.Value))+int64(a.Value.Exponent()) <= MaxIntegerDigits
}

// Exact reports whether the amount is in range and representable in base
// units.
func (a Amount) Exact() bool {
	if !a.InRange() {
		return false
	}
	exp := a.Value.Exponent()
	if exp >= -NativePrecision || a.Value.IsZero() {
		return true
	}
	// The dropped places hold the whole coefficient, which is non-zero.
	if int64(-NativePrecision)-int64(exp) >= int64(coefficientDigits(a.Value)) {
		return false
	}
	return a.Value.Equal(a.Value.Truncate(NativePrecision))
}

func coefficientDigits(d decimal.Decimal) int {
	c := d.Coefficient()
	return len(c.Abs(c).String())
}

// MarshalJSON encodes the amount as a decimal string so clients never see
// a float.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Value.String())
}

// UnmarshalJSON accepts either a decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = Amount{}
		return nil
	}
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = unq
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Identity is an opaque account identifier that an upstream collaborator
// has already verified. The ledger only compares identities for equality.
type Identity string

func (i Identity) IsZero() bool { return strings.TrimSpace(string(i)) == "" }

// CourseID is assigned by the store, starts at 1 and is never reused.
type CourseID uint64

func (id CourseID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseCourseID parses a decimal course identifier.
func ParseCourseID(s string) (CourseID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || v == 0 {
		return 0, &InputError{Field: "course_id", Reason: fmt.Sprintf("not a course id: %q", s)}
	}
	return CourseID(v), nil
}

// =============================================================================
// COURSE
// =============================================================================

// Course is the full stored record. Only the store and the access gate
// ever handle ProtectedResource.
type Course struct {
	ID                CourseID
	Title             string
	Description       string
	Price             Amount
	Instructor        Identity
	ProtectedResource string
	IsActive          bool
	CreatedAt         time.Time
}

// Info projects the course without its protected resource.
func (c Course) Info() CourseInfo {
	return CourseInfo{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Price:       c.Price,
		Instructor:  c.Instructor,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
	}
}

// CourseInfo is the public view of a course.
type CourseInfo struct {
	ID          CourseID
	Title       string
	Description string
	Price       Amount
	Instructor  Identity
	IsActive    bool
	CreatedAt   time.Time
}

// CourseInput carries the arguments of CreateCourse.
type CourseInput struct {
	Title             string
	Description       string
	Price             Amount
	ProtectedResource string
}

// Validate checks creation preconditions and returns the first violation.
func (in CourseInput) Validate(creator Identity) error {
	switch {
	case creator.IsZero():
		return &InputError{Field: "instructor", Reason: "is required"}
	case strings.TrimSpace(in.Title) == "":
		return &InputError{Field: "title", Reason: "is required"}
	case strings.TrimSpace(in.Description) == "":
		return &InputError{Field: "description", Reason: "is required"}
	case !in.Price.IsPositive():
		return &InputError{Field: "price", Reason: "must be greater than zero"}
	case !in.Price.InRange():
		return &InputError{Field: "price", Reason: fmt.Sprintf("more than %d integer digits", MaxIntegerDigits)}
	case !in.Price.Exact():
		return &InputError{Field: "price", Reason: fmt.Sprintf("more than %d fractional digits", NativePrecision)}
	case strings.TrimSpace(in.ProtectedResource) == "":
		return &InputError{Field: "protected_resource", Reason: "is required"}
	}
	return nil
}

// =============================================================================
// ENROLLMENT
// =============================================================================

// Enrollment records that Student paid for CourseID. It is created once
// and never deleted.
type Enrollment struct {
	CourseID   CourseID
	Student    Identity
	Price      Amount
	TransferID string
	EnrolledAt time.Time
}

// =============================================================================
// TRANSFER - Fund movement settled inside a purchase
// =============================================================================

type Transfer struct {
	ID        string
	From      Identity
	To        Identity
	Amount    Amount
	CourseID  CourseID
	CreatedAt time.Time
}

// =============================================================================
// EVENTS
// =============================================================================

// CourseCreated is emitted after a course creation commits.
type CourseCreated struct {
	EventID    string    `json:"event_id"`
	CourseID   CourseID  `json:"course_id"`
	Instructor Identity  `json:"instructor"`
	Price      Amount    `json:"price"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventSink receives CourseCreated events. Implementations must not block.
type EventSink interface {
	Publish(CourseCreated)
}

type discardSink struct{}

func (discardSink) Publish(CourseCreated) {}
