package modules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCorrelator_ResolveBeforeDeadlineDelivers(t *testing.T) {
	c := NewCorrelator()
	done := make(chan struct{})

	go func() {
		reply, err := c.Await(context.Background(), "req-1", time.Second)
		assert.NoError(t, err)
		assert.Equal(t, 200, reply.Status)
		close(done)
	}()

	// Give Await a moment to register before resolving.
	time.Sleep(10 * time.Millisecond)
	c.Resolve("req-1", Reply{Status: 200, Payload: []byte(`{"ok":true}`)})
	<-done
}

func TestCorrelator_TimeoutWhenNeverResolved(t *testing.T) {
	c := NewCorrelator()
	_, err := c.Await(context.Background(), "req-2", 10*time.Millisecond)
	assert.True(t, IsTimeout(err))
}

func TestCorrelator_DoubleResolveIsIgnored(t *testing.T) {
	c := NewCorrelator()
	done := make(chan struct{})

	go func() {
		reply, err := c.Await(context.Background(), "req-3", time.Second)
		assert.NoError(t, err)
		assert.Equal(t, 1, reply.Status)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	c.Resolve("req-3", Reply{Status: 1})
	c.Resolve("req-3", Reply{Status: 2})
	<-done
}

func TestCorrelator_UnknownIDResolveIsNoop(t *testing.T) {
	c := NewCorrelator()
	assert.NotPanics(t, func() {
		c.Resolve("no-such-request", Reply{Status: 200})
	})
}

func TestCorrelator_ContextCancellationCompletesAwait(t *testing.T) {
	c := NewCorrelator()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		_, err := c.Await(ctx, "req-4", time.Second)
		assert.Error(t, err)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done
}

func TestCorrelator_EntryRemovedAfterCompletion(t *testing.T) {
	c := NewCorrelator()
	_, _ = c.Await(context.Background(), "req-5", time.Millisecond)
	c.mu.Lock()
	_, stillPending := c.pending["req-5"]
	c.mu.Unlock()
	assert.False(t, stillPending)
}
