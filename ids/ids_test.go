package ids

import (
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MonotonicAndParseable(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		_, err := ulid.Parse(next)
		require.NoError(t, err)
		assert.Less(t, prev, next, "ids must sort in generation order")
		prev = next
	}
}

func TestNewEvent_IsUUID(t *testing.T) {
	_, err := uuid.Parse(NewEvent())
	assert.NoError(t, err)
	assert.NotEqual(t, NewEvent(), NewEvent())
}
