package elemer

import (
	"sync"
	"time"

	"github.com/grid-x/elemer/internal/pool"
)

// The completion barrier is shared by all sessions of the process so that a
// coordinator can wait for a batch of independently running sessions.
var completion = newBarrier()

// BarrierReset discards all completions counted so far.
func BarrierReset() { completion.reset() }

// BarrierDone counts one completion.
func BarrierDone() { completion.done() }

// BarrierWait waits up to timeout until n completions are available and
// consumes them. It consumes nothing when it times out.
func BarrierWait(n int, timeout time.Duration) bool { return completion.wait(n, timeout) }

type barrier struct {
	mu      sync.Mutex
	count   int
	changed chan struct{}
}

func newBarrier() *barrier {
	return &barrier{changed: make(chan struct{})}
}

func (b *barrier) reset() {
	b.mu.Lock()
	b.count = 0
	b.mu.Unlock()
}

func (b *barrier) done() {
	b.mu.Lock()
	b.count++
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

func (b *barrier) wait(n int, timeout time.Duration) bool {
	t := pool.GetTimer(timeout)
	defer pool.PutTimer(t)

	for {
		b.mu.Lock()
		if b.count >= n {
			b.count -= n
			b.mu.Unlock()
			return true
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-changed:
		case <-t.C:
			return false
		}
	}
}
