package modules

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Reply is what a PendingRequest's reply-sink delivers (§3).
type Reply struct {
	Status      int
	ContentType string
	Payload     []byte
}

// PendingRequest is a single in-flight request awaiting a reply (§3).
// Exactly one of {response delivered, timeout fired} completes it;
// a timer owns the deletion on timeout, a matching response owns it
// otherwise, and whichever happens first wins — the other is a no-op.
type PendingRequest struct {
	id      string
	timer   *time.Timer
	done    chan struct{}
	once    sync.Once
	reply   Reply
	replyErr error
}

func (p *PendingRequest) complete(reply Reply, err error) {
	p.once.Do(func() {
		p.reply, p.replyErr = reply, err
		close(p.done)
	})
}

// Correlator is C6: a requestId -> PendingRequest map with per-entry
// deadline timers. No entry outlives deadline+grace (§4.6 memory
// invariant) because both completion paths remove the map entry.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*PendingRequest
}

func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]*PendingRequest)}
}

// Await registers a PendingRequest and blocks until it is completed by
// a matching Resolve or by the deadline elapsing, whichever is first.
func (c *Correlator) Await(ctx context.Context, id string, deadline time.Duration) (Reply, error) {
	p := &PendingRequest{id: id, done: make(chan struct{})}

	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()

	p.timer = time.AfterFunc(deadline, func() {
		c.remove(id)
		p.complete(Reply{}, errTimeout)
	})

	select {
	case <-p.done:
		p.timer.Stop()
		return p.reply, p.replyErr
	case <-ctx.Done():
		c.remove(id)
		p.timer.Stop()
		p.complete(Reply{}, ctx.Err())
		return p.reply, p.replyErr
	}
}

// Resolve fulfils a PendingRequest by id. Unknown ids are dropped
// silently (§4.6) — the instance may have replied to a request this
// core process no longer remembers, e.g. after a timeout.
func (c *Correlator) Resolve(id string, reply Reply) {
	p := c.remove(id)
	if p == nil {
		return
	}
	p.complete(reply, nil)
}

func (c *Correlator) remove(id string) *PendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

// errTimeout is returned by Await when the deadline elapses first.
var errTimeout = fmt.Errorf("modules: request timed out")

// IsTimeout reports whether err is the correlator's timeout sentinel.
func IsTimeout(err error) bool {
	return err == errTimeout
}
