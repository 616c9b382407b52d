package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/ledger/storetest"
	"github.com/warp/course-ledger/ledger/store"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.TxStore { return store.NewMemory() })
}

func TestMemory_ReturnedSlicesAreCopies(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	id, err := m.InsertCourse(ctx, ledger.Course{Title: "go", Instructor: "alice", IsActive: true})
	require.NoError(t, err)

	active, err := m.ActiveCourseIDs(ctx)
	require.NoError(t, err)
	active[0] = 99

	again, err := m.ActiveCourseIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ledger.CourseID{id}, again)
}

func TestMemory_TransfersRecorded(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.InsertTransfer(ctx, ledger.Transfer{ID: "t1", From: "bob", To: "alice", Amount: ledger.NewAmount(3)}))

	transfers := m.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "t1", transfers[0].ID)
}
