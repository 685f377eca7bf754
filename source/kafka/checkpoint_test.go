package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_OutOfOrderAcks(t *testing.T) {
	tr := NewTracker(0)
	for _, off := range []int64{3, 4, 5} {
		tr.Track("t", 1, off)
	}
	tr.Track("t", 2, 9)

	_, advanced, found := tr.Resolve("t", 1, 5)
	assert.True(t, found)
	assert.False(t, advanced)

	mark, advanced, _ := tr.Resolve("t", 1, 3)
	assert.True(t, advanced)
	assert.Equal(t, int64(3), mark)

	mark, advanced, _ = tr.Resolve("t", 1, 4)
	assert.True(t, advanced)
	assert.Equal(t, int64(5), mark)
	assert.Equal(t, 1, tr.Pending())

	_, _, found = tr.Resolve("t", 1, 4)
	assert.False(t, found, "second ack of the same offset")
	_, _, found = tr.Resolve("other", 0, 1)
	assert.False(t, found)
}

func TestTracker_CommitDue(t *testing.T) {
	tr := NewTracker(time.Hour)
	assert.True(t, tr.CommitDue())
	assert.False(t, tr.CommitDue())

	always := NewTracker(0)
	assert.True(t, always.CommitDue())
}

func TestWindow_BlocksAtCapacity(t *testing.T) {
	w := NewWindow(1)
	require.NoError(t, w.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Acquire(ctx), context.DeadlineExceeded)

	got := make(chan error, 1)
	go func() { got <- w.Acquire(context.Background()) }()
	w.Release()
	select {
	case err := <-got:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire not woken by release")
	}
	assert.Equal(t, 1, w.InFlight())
}
