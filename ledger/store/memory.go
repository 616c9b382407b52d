// Package store provides in-process ledger.TxStore implementations.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every record and index in maps guarded by one RWMutex.
// WithTx holds the write lock for the whole transaction, so readers see
// either all of a mutation or none of it.
type Memory struct {
	mu    sync.RWMutex
	state *memoryState
}

type enrollmentKey struct {
	CourseID ledger.CourseID
	Student  ledger.Identity
}

type memoryState struct {
	lastID       ledger.CourseID
	courses      map[ledger.CourseID]ledger.Course
	active       []ledger.CourseID
	byInstructor map[ledger.Identity][]ledger.CourseID
	byStudent    map[ledger.Identity][]ledger.CourseID
	enrollments  map[enrollmentKey]ledger.Enrollment
	roster       map[ledger.CourseID][]ledger.Identity
	balances     map[ledger.Identity]ledger.Amount
	transfers    []ledger.Transfer
}

var _ ledger.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func newMemoryState() *memoryState {
	return &memoryState{
		courses:      make(map[ledger.CourseID]ledger.Course),
		byInstructor: make(map[ledger.Identity][]ledger.CourseID),
		byStudent:    make(map[ledger.Identity][]ledger.CourseID),
		enrollments:  make(map[enrollmentKey]ledger.Enrollment),
		roster:       make(map[ledger.CourseID][]ledger.Identity),
		balances:     make(map[ledger.Identity]ledger.Amount),
	}
}

// =============================================================================
// LOCKED ACCESSORS
// =============================================================================

func (m *Memory) InsertCourse(ctx context.Context, c ledger.Course) (ledger.CourseID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertCourse(ctx, c)
}

func (m *Memory) GetCourse(ctx context.Context, id ledger.CourseID) (ledger.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetCourse(ctx, id)
}

func (m *Memory) SetCourseActive(ctx context.Context, id ledger.CourseID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetCourseActive(ctx, id, active)
}

func (m *Memory) ActiveCourseIDs(ctx context.Context) ([]ledger.CourseID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ActiveCourseIDs(ctx)
}

func (m *Memory) InstructorCourseIDs(ctx context.Context, instructor ledger.Identity) ([]ledger.CourseID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.InstructorCourseIDs(ctx, instructor)
}

func (m *Memory) StudentCourseIDs(ctx context.Context, student ledger.Identity) ([]ledger.CourseID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.StudentCourseIDs(ctx, student)
}

func (m *Memory) InsertEnrollment(ctx context.Context, e ledger.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertEnrollment(ctx, e)
}

func (m *Memory) HasEnrollment(ctx context.Context, id ledger.CourseID, student ledger.Identity) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.HasEnrollment(ctx, id, student)
}

func (m *Memory) CourseEnrollments(ctx context.Context, id ledger.CourseID) ([]ledger.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CourseEnrollments(ctx, id)
}

func (m *Memory) Balance(ctx context.Context, account ledger.Identity) (ledger.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Balance(ctx, account)
}

func (m *Memory) AdjustBalance(ctx context.Context, account ledger.Identity, delta ledger.Amount) (ledger.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AdjustBalance(ctx, account, delta)
}

func (m *Memory) InsertTransfer(ctx context.Context, t ledger.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertTransfer(ctx, t)
}

// Transfers returns every settled transfer in settlement order.
func (m *Memory) Transfers() []ledger.Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.state.transfers)
}

// Reset clears all data (for testing/demo). Course ids restart at 1.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newMemoryState()
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		lastID:       s.lastID,
		courses:      make(map[ledger.CourseID]ledger.Course, len(s.courses)),
		active:       slices.Clone(s.active),
		byInstructor: make(map[ledger.Identity][]ledger.CourseID, len(s.byInstructor)),
		byStudent:    make(map[ledger.Identity][]ledger.CourseID, len(s.byStudent)),
		enrollments:  make(map[enrollmentKey]ledger.Enrollment, len(s.enrollments)),
		roster:       make(map[ledger.CourseID][]ledger.Identity, len(s.roster)),
		balances:     make(map[ledger.Identity]ledger.Amount, len(s.balances)),
		transfers:    slices.Clone(s.transfers),
	}
	for k, v := range s.courses {
		c.courses[k] = v
	}
	for k, v := range s.byInstructor {
		c.byInstructor[k] = slices.Clone(v)
	}
	for k, v := range s.byStudent {
		c.byStudent[k] = slices.Clone(v)
	}
	for k, v := range s.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range s.roster {
		c.roster[k] = slices.Clone(v)
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// =============================================================================
// UNLOCKED STATE - callers hold Memory.mu
// =============================================================================

func (s *memoryState) InsertCourse(_ context.Context, c ledger.Course) (ledger.CourseID, error) {
	s.lastID++
	c.ID = s.lastID
	s.courses[c.ID] = c
	if c.IsActive {
		s.active = append(s.active, c.ID)
	}
	s.byInstructor[c.Instructor] = append(s.byInstructor[c.Instructor], c.ID)
	return c.ID, nil
}

func (s *memoryState) GetCourse(_ context.Context, id ledger.CourseID) (ledger.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return ledger.Course{}, fmt.Errorf("course %s: %w", id, ledger.ErrNotFound)
	}
	return c, nil
}

func (s *memoryState) SetCourseActive(_ context.Context, id ledger.CourseID, active bool) error {
	c, ok := s.courses[id]
	if !ok {
		return fmt.Errorf("course %s: %w", id, ledger.ErrNotFound)
	}
	if c.IsActive == active {
		return nil
	}
	c.IsActive = active
	s.courses[id] = c

	if active {
		// Keep creation order: ids are allocated monotonically.
		i, _ := slices.BinarySearch(s.active, id)
		s.active = slices.Insert(s.active, i, id)
		return nil
	}
	if i, found := slices.BinarySearch(s.active, id); found {
		s.active = slices.Delete(s.active, i, i+1)
	}
	return nil
}

func (s *memoryState) ActiveCourseIDs(_ context.Context) ([]ledger.CourseID, error) {
	return slices.Clone(s.active), nil
}

func (s *memoryState) InstructorCourseIDs(_ context.Context, instructor ledger.Identity) ([]ledger.CourseID, error) {
	return slices.Clone(s.byInstructor[instructor]), nil
}

func (s *memoryState) StudentCourseIDs(_ context.Context, student ledger.Identity) ([]ledger.CourseID, error) {
	return slices.Clone(s.byStudent[student]), nil
}

func (s *memoryState) InsertEnrollment(_ context.Context, e ledger.Enrollment) error {
	if _, ok := s.courses[e.CourseID]; !ok {
		return fmt.Errorf("course %s: %w", e.CourseID, ledger.ErrNotFound)
	}
	k := enrollmentKey{CourseID: e.CourseID, Student: e.Student}
	if _, exists := s.enrollments[k]; exists {
		return ledger.ErrAlreadyEnrolled
	}
	s.enrollments[k] = e
	s.byStudent[e.Student] = append(s.byStudent[e.Student], e.CourseID)
	s.roster[e.CourseID] = append(s.roster[e.CourseID], e.Student)
	return nil
}

func (s *memoryState) HasEnrollment(_ context.Context, id ledger.CourseID, student ledger.Identity) (bool, error) {
	_, ok := s.enrollments[enrollmentKey{CourseID: id, Student: student}]
	return ok, nil
}

func (s *memoryState) CourseEnrollments(_ context.Context, id ledger.CourseID) ([]ledger.Enrollment, error) {
	students := s.roster[id]
	result := make([]ledger.Enrollment, 0, len(students))
	for _, student := range students {
		result = append(result, s.enrollments[enrollmentKey{CourseID: id, Student: student}])
	}
	return result, nil
}

func (s *memoryState) Balance(_ context.Context, account ledger.Identity) (ledger.Amount, error) {
	return s.balances[account], nil
}

func (s *memoryState) AdjustBalance(_ context.Context, account ledger.Identity, delta ledger.Amount) (ledger.Amount, error) {
	next := s.balances[account].Add(delta)
	if next.IsNegative() {
		return ledger.Amount{}, &ledger.InsufficientFundsError{
			Account:   account,
			Available: s.balances[account],
			Required:  delta.Neg(),
		}
	}
	s.balances[account] = next
	return next, nil
}

func (s *memoryState) InsertTransfer(_ context.Context, t ledger.Transfer) error {
	s.transfers = append(s.transfers, t)
	return nil
}
