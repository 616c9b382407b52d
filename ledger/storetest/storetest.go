// Package storetest holds the behavioral suite every ledger.TxStore
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) ledger.TxStore

var created = time.Date(2025, time.January, 2, 15, 4, 5, 0, time.UTC)

func sampleCourse(instructor ledger.Identity, title string) ledger.Course {
	return ledger.Course{
		Title:             title,
		Description:       title + " description",
		Price:             ledger.MustParseAmount("12.5"),
		Instructor:        instructor,
		ProtectedResource: "https://meet.example/" + title,
		IsActive:          true,
		CreatedAt:         created,
	}
}

// Run exercises newStore against the TxStore contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGetCourse", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("GetUnknownCourse", func(t *testing.T) { testGetUnknown(t, newStore(t)) })
	t.Run("ActiveIndex", func(t *testing.T) { testActiveIndex(t, newStore(t)) })
	t.Run("Enrollments", func(t *testing.T) { testEnrollments(t, newStore(t)) })
	t.Run("Balances", func(t *testing.T) { testBalances(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("CommitOnSuccess", func(t *testing.T) { testCommit(t, newStore(t)) })
	t.Run("ConcurrentDuplicatePurchase", func(t *testing.T) { ConcurrentDuplicatePurchase(t, newStore(t)) })
}

func testInsertAndGet(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()

	first, err := s.InsertCourse(ctx, sampleCourse("alice", "go"))
	require.NoError(t, err)
	second, err := s.InsertCourse(ctx, sampleCourse("alice", "sql"))
	require.NoError(t, err)

	assert.Equal(t, ledger.CourseID(1), first)
	assert.Equal(t, ledger.CourseID(2), second)

	got, err := s.GetCourse(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first, got.ID)
	assert.Equal(t, "go", got.Title)
	assert.Equal(t, "go description", got.Description)
	assert.Equal(t, "https://meet.example/go", got.ProtectedResource)
	assert.Equal(t, ledger.Identity("alice"), got.Instructor)
	assert.True(t, got.Price.Equal(ledger.MustParseAmount("12.5")), "price %s", got.Price)
	assert.True(t, got.IsActive)
	assert.True(t, got.CreatedAt.Equal(created), "created %s", got.CreatedAt)

	mine, err := s.InstructorCourseIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []ledger.CourseID{first, second}, mine)

	none, err := s.InstructorCourseIDs(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testGetUnknown(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()

	_, err := s.GetCourse(ctx, 404)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	err = s.SetCourseActive(ctx, 404, false)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func testActiveIndex(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()

	var ids []ledger.CourseID
	for _, title := range []string{"a", "b", "c"} {
		id, err := s.InsertCourse(ctx, sampleCourse("alice", title))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, s.SetCourseActive(ctx, ids[1], false))
	active, err := s.ActiveCourseIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ledger.CourseID{ids[0], ids[2]}, active)

	require.NoError(t, s.SetCourseActive(ctx, ids[1], false))
	require.NoError(t, s.SetCourseActive(ctx, ids[1], true))
	active, err = s.ActiveCourseIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids, active)

	mine, err := s.InstructorCourseIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, ids, mine)
}

func testEnrollments(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()

	id, err := s.InsertCourse(ctx, sampleCourse("alice", "go"))
	require.NoError(t, err)
	other, err := s.InsertCourse(ctx, sampleCourse("alice", "sql"))
	require.NoError(t, err)

	for _, e := range []ledger.Enrollment{
		{CourseID: other, Student: "bob", Price: ledger.NewAmount(1), TransferID: "t1", EnrolledAt: created},
		{CourseID: id, Student: "bob", Price: ledger.NewAmount(1), TransferID: "t2", EnrolledAt: created},
		{CourseID: id, Student: "carol", Price: ledger.NewAmount(1), TransferID: "t3", EnrolledAt: created},
	} {
		require.NoError(t, s.InsertEnrollment(ctx, e))
	}

	err = s.InsertEnrollment(ctx, ledger.Enrollment{CourseID: id, Student: "bob", Price: ledger.NewAmount(1), TransferID: "t4", EnrolledAt: created})
	assert.ErrorIs(t, err, ledger.ErrAlreadyEnrolled)

	has, err := s.HasEnrollment(ctx, id, "bob")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasEnrollment(ctx, id, "dave")
	require.NoError(t, err)
	assert.False(t, has)

	bobs, err := s.StudentCourseIDs(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []ledger.CourseID{other, id}, bobs)

	roster, err := s.CourseEnrollments(ctx, id)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, ledger.Identity("bob"), roster[0].Student)
	assert.Equal(t, "t2", roster[0].TransferID)
	assert.Equal(t, ledger.Identity("carol"), roster[1].Student)
}

func testBalances(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()

	zero, err := s.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	bal, err := s.AdjustBalance(ctx, "bob", ledger.MustParseAmount("0.000000000000000001"))
	require.NoError(t, err)
	assert.Equal(t, "0.000000000000000001", bal.String())

	bal, err = s.AdjustBalance(ctx, "bob", ledger.NewAmount(5))
	require.NoError(t, err)
	assert.Equal(t, "5.000000000000000001", bal.String())

	_, err = s.AdjustBalance(ctx, "bob", ledger.NewAmount(-6))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	after, err := s.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "5.000000000000000001", after.String())
}

func testRollback(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	boom := errors.New("boom")

	id, err := s.InsertCourse(ctx, sampleCourse("alice", "go"))
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.InsertCourse(ctx, sampleCourse("alice", "rolled-back")); err != nil {
			return err
		}
		if err := tx.SetCourseActive(ctx, id, false); err != nil {
			return err
		}
		if err := tx.InsertEnrollment(ctx, ledger.Enrollment{CourseID: id, Student: "bob", Price: ledger.NewAmount(1), TransferID: "t1", EnrolledAt: created}); err != nil {
			return err
		}
		if _, err := tx.AdjustBalance(ctx, "bob", ledger.NewAmount(9)); err != nil {
			return err
		}
		if err := tx.InsertTransfer(ctx, ledger.Transfer{ID: "t1", From: "bob", To: "alice", Amount: ledger.NewAmount(1), CourseID: id, CreatedAt: created}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	active, err := s.ActiveCourseIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ledger.CourseID{id}, active)

	mine, err := s.InstructorCourseIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []ledger.CourseID{id}, mine)

	has, err := s.HasEnrollment(ctx, id, "bob")
	require.NoError(t, err)
	assert.False(t, has)

	bal, err := s.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	// Ids keep increasing after a rollback.
	next, err := s.InsertCourse(ctx, sampleCourse("alice", "after"))
	require.NoError(t, err)
	assert.Greater(t, uint64(next), uint64(id))
}

func testCommit(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()

	var id ledger.CourseID
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		var err error
		id, err = tx.InsertCourse(ctx, sampleCourse("alice", "go"))
		if err != nil {
			return err
		}
		if err := tx.InsertEnrollment(ctx, ledger.Enrollment{CourseID: id, Student: "bob", Price: ledger.NewAmount(1), TransferID: "t1", EnrolledAt: created}); err != nil {
			return err
		}
		_, err = tx.AdjustBalance(ctx, "alice", ledger.NewAmount(1))
		return err
	})
	require.NoError(t, err)

	has, err := s.HasEnrollment(ctx, id, "bob")
	require.NoError(t, err)
	assert.True(t, has)

	bal, err := s.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1", bal.String())
}

// ConcurrentDuplicatePurchase races 32 identical purchases through a
// ledger backed by s. Exactly one may settle; the rest see
// ErrAlreadyEnrolled and move no funds.
func ConcurrentDuplicatePurchase(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	l := ledger.New(s)

	id, err := l.CreateCourse(ctx, "alice", ledger.CourseInput{
		Title:             "go",
		Description:       "race",
		Price:             ledger.NewAmount(10),
		ProtectedResource: "https://meet.example/go",
	})
	require.NoError(t, err)
	_, err = l.Deposit(ctx, "bob", ledger.NewAmount(1000))
	require.NoError(t, err)

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.PurchaseCourse(ctx, "bob", id, ledger.NewAmount(10))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ledger.ErrAlreadyEnrolled):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, dupes)

	roster, err := l.Roster(ctx, "alice", id)
	require.NoError(t, err)
	assert.Len(t, roster, 1)

	bob, err := l.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "990", bob.String())
	alice, err := l.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "10", alice.String())
}
