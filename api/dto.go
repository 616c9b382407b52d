/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts travel as decimal strings ("10", "0.25") in the native unit.
  Requests may also send a bare JSON number; it is parsed exactly and
  rejected if it has more than 18 fractional digits.

DISCLOSURE:
  CourseDTO is built from ledger.CourseInfo, which has no resource field.
  The protected resource only ever appears in ResourceDTO.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// COURSES
// =============================================================================

// CreateCourseRequest is the body of POST /api/courses. The instructor is
// the authenticated caller, never a body field.
type CreateCourseRequest struct {
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Price             ledger.Amount `json:"price"`
	ProtectedResource string        `json:"protected_resource"`
}

type CreateCourseResponse struct {
	CourseID ledger.CourseID `json:"course_id"`
}

// CourseDTO is the public view of a course.
type CourseDTO struct {
	ID          ledger.CourseID `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       ledger.Amount   `json:"price"`
	Unit        string          `json:"unit"`
	Instructor  ledger.Identity `json:"instructor"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CourseListResponse answers GET /api/courses. Courses is filled only
// when the caller asks for ?expand=true.
type CourseListResponse struct {
	CourseIDs []ledger.CourseID `json:"course_ids"`
	Courses   []CourseDTO       `json:"courses,omitempty"`
}

type DeactivateResponse struct {
	CourseID ledger.CourseID `json:"course_id"`
	IsActive bool            `json:"is_active"`
}

// ResourceDTO carries the protected resource to an authorized caller.
type ResourceDTO struct {
	CourseID          ledger.CourseID `json:"course_id"`
	ProtectedResource string          `json:"protected_resource"`
}

// =============================================================================
// ENROLLMENTS
// =============================================================================

// PurchaseRequest is the body of POST /api/courses/{id}/purchase.
// Amount must equal the course price exactly.
type PurchaseRequest struct {
	Amount ledger.Amount `json:"amount"`
}

type EnrollmentDTO struct {
	CourseID   ledger.CourseID `json:"course_id"`
	Student    ledger.Identity `json:"student"`
	Price      ledger.Amount   `json:"price"`
	TransferID string          `json:"transfer_id"`
	EnrolledAt time.Time       `json:"enrolled_at"`
}

type EnrollmentStatusDTO struct {
	CourseID ledger.CourseID `json:"course_id"`
	Account  ledger.Identity `json:"account"`
	Enrolled bool            `json:"enrolled"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountCoursesDTO struct {
	Account   ledger.Identity   `json:"account"`
	CourseIDs []ledger.CourseID `json:"course_ids"`
}

type DepositRequest struct {
	Amount ledger.Amount `json:"amount"`
}

type BalanceDTO struct {
	Account ledger.Identity `json:"account"`
	Balance ledger.Amount   `json:"balance"`
	Unit    string          `json:"unit"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Accounts    map[string]string `json:"accounts,omitempty"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCourseDTO(c ledger.CourseInfo) CourseDTO {
	return CourseDTO{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Price:       c.Price,
		Unit:        ledger.NativeUnit,
		Instructor:  c.Instructor,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
	}
}

func toEnrollmentDTO(e ledger.Enrollment) EnrollmentDTO {
	return EnrollmentDTO{
		CourseID:   e.CourseID,
		Student:    e.Student,
		Price:      e.Price,
		TransferID: e.TransferID,
		EnrolledAt: e.EnrolledAt,
	}
}
