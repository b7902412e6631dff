package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "project-1:chat-42", Key("project-1", "chat-42"))
}

func TestMemoryLocker_SerializesSameKey(t *testing.T) {
	l := NewMemoryLocker()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := l.Lock(t.Context(), "p:c")
			assert.NoError(t, err)

			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}

			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 0, l.Len())
}

func TestMemoryLocker_IndependentKeys(t *testing.T) {
	l := NewMemoryLocker()

	unlockA, err := l.Lock(t.Context(), "p:a")
	require.NoError(t, err)

	unlockB, err := l.Lock(t.Context(), "p:b")
	require.NoError(t, err)

	assert.Equal(t, 2, l.Len())

	unlockA()
	unlockA()
	unlockB()

	assert.Equal(t, 0, l.Len())
}

func TestMemoryLocker_ContextCancelled(t *testing.T) {
	l := NewMemoryLocker()

	unlock, err := l.Lock(t.Context(), "p:c")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "p:c")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.Len())

	unlock()
	assert.Equal(t, 0, l.Len())
}
