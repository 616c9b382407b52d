package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/ledger/store"
)

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := b.Subscribe(ctx)
	second := b.Subscribe(ctx)
	require.Equal(t, 2, b.Subscribers())

	b.Publish(ledger.CourseCreated{CourseID: 7})

	for _, ch := range []<-chan ledger.CourseCreated{first, second} {
		select {
		case evt := <-ch:
			assert.Equal(t, ledger.CourseID(7), evt.CourseID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = b.Subscribe(ctx)
	for i := 0; i < SubscriberBuffer+5; i++ {
		b.Publish(ledger.CourseCreated{CourseID: ledger.CourseID(i + 1)})
	}

	assert.Equal(t, uint64(5), b.Dropped())
}

func TestBroker_UnsubscribeOnCancel(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroker_ReceivesLedgerEvents(t *testing.T) {
	b := NewBroker()
	l := ledger.New(store.NewMemory(), ledger.WithEventSink(b))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx)

	id, err := l.CreateCourse(ctx, "alice", ledger.CourseInput{
		Title: "Go", Description: "Live", Price: ledger.NewAmount(1), ProtectedResource: "https://meet.example/go",
	})
	require.NoError(t, err)

	select {
	case evt := <-ch:
		assert.Equal(t, id, evt.CourseID)
		assert.Equal(t, ledger.Identity("alice"), evt.Instructor)
	case <-time.After(time.Second):
		t.Fatal("CourseCreated not delivered")
	}
}

func TestBroker_CloseEndsSubscriptions(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := b.Subscribe(ctx)
	second := b.Subscribe(ctx)

	b.Close()
	b.Close()

	for _, ch := range []<-chan ledger.CourseCreated{first, second} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel should be closed")
		case <-time.After(time.Second):
			t.Fatal("channel not closed after Close")
		}
	}
	assert.Equal(t, 0, b.Subscribers())

	// Cancelling afterwards must not close the channels a second time
	cancel()

	late := b.Subscribe(context.Background())
	_, ok := <-late
	assert.False(t, ok, "subscribe after Close returns a closed channel")
	assert.Equal(t, 0, b.Subscribers())

	b.Publish(ledger.CourseCreated{CourseID: 1})
	assert.Equal(t, uint64(0), b.Dropped())
}
