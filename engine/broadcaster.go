package engine

import "sync"

// broadcaster is the single process-wide "something may have unblocked"
// notifier described by the spec: every store mutation that could
// satisfy a blocking waiter (list pushes, stream appends) calls signal,
// and waiters re-check their precondition on every wake rather than
// trusting the signal to mean their specific key changed. This is the
// idiomatic Go rendering of a single broadcasting tokio::Notify: a
// channel that is closed (waking every receiver) and replaced on each
// signal.
type broadcaster struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan struct{})}
}

// wait returns the channel to select on; it closes the next time signal
// is called.
func (b *broadcaster) wait() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

// signal wakes every current waiter.
func (b *broadcaster) signal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.ch)
	b.ch = make(chan struct{})
}
