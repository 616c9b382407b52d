/*
handlers.go - HTTP API handlers for the course ledger

PURPOSE:
  Exposes the course ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every decision to ledger.Ledger.

ENDPOINTS:
  Courses:
    POST   /api/courses                            Create course (caller = instructor)
    GET    /api/courses                            Active course ids (?expand=true adds info)
    GET    /api/courses/{id}                       Public course info
    POST   /api/courses/{id}/deactivate            Deactivate (instructor only)
    POST   /api/courses/{id}/purchase              Purchase with exact amount
    GET    /api/courses/{id}/resource              Protected resource (instructor or enrolled)
    GET    /api/courses/{id}/enrollments/{account} Enrollment check
    GET    /api/courses/{id}/roster                Enrollments (instructor only)

  Accounts:
    GET    /api/accounts/{account}/courses         Courses the account bought
    GET    /api/accounts/{account}/teaching        Courses the account created
    GET    /api/accounts/{account}/balance         Wallet balance
    POST   /api/accounts/{account}/deposits        Fund own wallet

  Events:
    GET    /api/events                             CourseCreated as Server-Sent Events

  Scenarios:
    GET    /api/scenarios                          List demo scenarios
    GET    /api/scenarios/current                  Loaded scenario, if any
    POST   /api/scenarios/load                     Load a demo scenario

REQUEST FLOW:
  1. Resolve caller identity (auth middleware)
  2. Parse path and body
  3. Call exactly one ledger operation
  4. Record metrics, write audit log for mutations
  5. Serialize response or map the error

ERROR HANDLING:
  See errors.go. 400 invalid input / payment mismatch, 401 no identity,
  402 insufficient funds, 403 unauthorized, 404 not found, 409 already
  enrolled, 500 otherwise.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/course-ledger/auth"
	"github.com/warp/course-ledger/events"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/obs"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears every ledger record. Demo scenarios need it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Deps are the collaborators of Handler. Only Ledger is required.
type Deps struct {
	Ledger   *ledger.Ledger
	Broker   *events.Broker
	Metrics  *obs.Metrics
	Logger   *zap.Logger
	Resetter Resetter
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger   *ledger.Ledger
	Broker   *events.Broker
	Metrics  *obs.Metrics
	Logger   *zap.Logger
	Resetter Resetter

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		Ledger:   d.Ledger,
		Broker:   d.Broker,
		Metrics:  d.Metrics,
		Logger:   d.Logger,
		Resetter: d.Resetter,
	}
	if h.Metrics == nil {
		h.Metrics = obs.NewMetrics()
	}
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	return h
}

// =============================================================================
// COURSE HANDLERS
// =============================================================================

// CreateCourse creates a course owned by the caller.
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req CreateCourseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := h.Ledger.CreateCourse(r.Context(), caller, ledger.CourseInput{
		Title:             req.Title,
		Description:       req.Description,
		Price:             req.Price,
		ProtectedResource: req.ProtectedResource,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	h.Metrics.CoursesCreated.Inc()
	h.audit(r, "course created",
		zap.Uint64("course_id", uint64(id)),
		zap.String("instructor", obs.RedactAccount(string(caller))),
		zap.String("price", req.Price.String()),
	)
	writeJSON(w, http.StatusCreated, CreateCourseResponse{CourseID: id})
}

// ListCourses returns the active course ids; ?expand=true adds their info.
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	expand, _ := strconv.ParseBool(r.URL.Query().Get("expand"))

	if !expand {
		ids, err := h.Ledger.ActiveCourses(ctx)
		if err != nil {
			h.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CourseListResponse{CourseIDs: ids})
		return
	}

	infos, err := h.Ledger.ActiveCourseInfos(ctx)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	resp := CourseListResponse{
		CourseIDs: make([]ledger.CourseID, 0, len(infos)),
		Courses:   make([]CourseDTO, 0, len(infos)),
	}
	for _, info := range infos {
		resp.CourseIDs = append(resp.CourseIDs, info.ID)
		resp.Courses = append(resp.Courses, toCourseDTO(info))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCourse returns the public info of one course.
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := courseIDParam(w, r)
	if !ok {
		return
	}
	info, err := h.Ledger.CourseInfo(r.Context(), id)
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseDTO(info))
}

// DeactivateCourse hides a course from the active listing.
func (h *Handler) DeactivateCourse(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := courseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.Ledger.DeactivateCourse(r.Context(), caller, id); err != nil {
		h.ledgerError(w, r, err)
		return
	}

	h.audit(r, "course deactivated",
		zap.Uint64("course_id", uint64(id)),
		zap.String("instructor", obs.RedactAccount(string(caller))),
	)
	writeJSON(w, http.StatusOK, DeactivateResponse{CourseID: id, IsActive: false})
}

// PurchaseCourse enrolls the caller against an exact payment.
func (h *Handler) PurchaseCourse(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := courseIDParam(w, r)
	if !ok {
		return
	}
	var req PurchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	enrollment, err := h.Ledger.PurchaseCourse(r.Context(), caller, id, req.Amount)
	h.Metrics.Purchases.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}

	h.audit(r, "course purchased",
		zap.Uint64("course_id", uint64(id)),
		zap.String("student", obs.RedactAccount(string(caller))),
		zap.String("amount", enrollment.Price.String()),
		zap.String("transfer_id", enrollment.TransferID),
	)
	writeJSON(w, http.StatusCreated, toEnrollmentDTO(enrollment))
}

// GetResource returns the protected resource to the instructor or an
// enrolled student.
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	id, ok := courseIDParam(w, r)
	if !ok {
		return
	}
	// Anonymous callers reach the gate with an empty identity and are denied.
	caller, _ := auth.IdentityFromContext(r.Context())

	resource, err := h.Ledger.ProtectedResource(r.Context(), caller, id)
	h.Metrics.ResourceReads.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, ResourceDTO{CourseID: id, ProtectedResource: resource})
}

// GetEnrollment reports whether an account is enrolled in a course.
func (h *Handler) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := courseIDParam(w, r)
	if !ok {
		return
	}
	account := ledger.Identity(chi.URLParam(r, "account"))

	enrolled, err := h.Ledger.IsEnrolled(r.Context(), id, account)
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EnrollmentStatusDTO{CourseID: id, Account: account, Enrolled: enrolled})
}

// GetRoster lists a course's enrollments for its instructor.
func (h *Handler) GetRoster(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := courseIDParam(w, r)
	if !ok {
		return
	}

	roster, err := h.Ledger.Roster(r.Context(), caller, id)
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}
	dtos := make([]EnrollmentDTO, len(roster))
	for i, e := range roster {
		dtos[i] = toEnrollmentDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// GetStudentCourses lists the courses an account is enrolled in.
func (h *Handler) GetStudentCourses(w http.ResponseWriter, r *http.Request) {
	account := ledger.Identity(chi.URLParam(r, "account"))
	ids, err := h.Ledger.StudentCourses(r.Context(), account)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountCoursesDTO{Account: account, CourseIDs: ids})
}

// GetInstructorCourses lists the courses an account created.
func (h *Handler) GetInstructorCourses(w http.ResponseWriter, r *http.Request) {
	account := ledger.Identity(chi.URLParam(r, "account"))
	ids, err := h.Ledger.InstructorCourses(r.Context(), account)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountCoursesDTO{Account: account, CourseIDs: ids})
}

// GetBalance returns an account's wallet balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := ledger.Identity(chi.URLParam(r, "account"))
	balance, err := h.Ledger.Balance(r.Context(), account)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{Account: account, Balance: balance, Unit: ledger.NativeUnit})
}

// Deposit funds the caller's own wallet.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	account := ledger.Identity(chi.URLParam(r, "account"))
	if account != caller {
		writeLedgerError(w, fmt.Errorf("deposits go to the caller's own account: %w", ledger.ErrUnauthorized))
		return
	}
	var req DepositRequest
	if !decodeBody(w, r, &req) {
		return
	}

	balance, err := h.Ledger.Deposit(r.Context(), account, req.Amount)
	if err != nil {
		h.ledgerError(w, r, err)
		return
	}

	h.audit(r, "deposit",
		zap.String("account", obs.RedactAccount(string(account))),
		zap.String("amount", req.Amount.String()),
	)
	writeJSON(w, http.StatusOK, BalanceDTO{Account: account, Balance: balance, Unit: ledger.NativeUnit})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func requireCaller(w http.ResponseWriter, r *http.Request) (ledger.Identity, bool) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeLedgerError(w, auth.ErrMissingIdentity)
		return "", false
	}
	return caller, true
}

func courseIDParam(w http.ResponseWriter, r *http.Request) (ledger.CourseID, bool) {
	id, err := ledger.ParseCourseID(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, ledger.ErrInvalidInput) {
			writeLedgerError(w, err)
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// ledgerError writes err and logs it if it is not the client's fault.
func (h *Handler) ledgerError(w http.ResponseWriter, r *http.Request, err error) {
	if !ledger.IsClientError(err) {
		h.Logger.Error("ledger operation failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeLedgerError(w, err)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.Logger.Error("query failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "Internal error", nil)
}

func (h *Handler) audit(r *http.Request, msg string, fields ...zap.Field) {
	fields = append(fields, zap.String("request_id", middleware.GetReqID(r.Context())))
	h.Logger.Info(msg, fields...)
}
