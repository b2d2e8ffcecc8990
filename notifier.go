package elemer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grid-x/elemer/internal/pool"
)

// notifierCapacity bounds the permits a session can fall behind by.
const notifierCapacity = 32

var errWaitTimeout = errors.New("elemer: wait timeout")

type eventKind uint8

const (
	eventOpened eventKind = iota + 1
	eventClosed
	eventFrame
)

func (k eventKind) String() string {
	switch k {
	case eventOpened:
		return "opened"
	case eventClosed:
		return "closed"
	case eventFrame:
		return "frame"
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// linkEvent is one completed link operation. frame is owned by the receiver.
type linkEvent struct {
	kind  eventKind
	err   error
	frame []byte
}

// notifier is a counting semaphore whose permits carry the link operation
// that released them. Release never blocks.
type notifier struct {
	permits chan linkEvent
}

func newNotifier() *notifier {
	return &notifier{permits: make(chan linkEvent, notifierCapacity)}
}

// release adds a permit. It reports false when the permit was dropped
// because nobody consumed the earlier ones.
func (n *notifier) release(ev linkEvent) bool {
	select {
	case n.permits <- ev:
		return true
	default:
		return false
	}
}

// acquire waits up to timeout for a permit of the given kind. Permits of
// other kinds are stale by then and are passed to discard.
func (n *notifier) acquire(ctx context.Context, kind eventKind, timeout time.Duration, discard func(linkEvent)) (linkEvent, error) {
	t := pool.GetTimer(timeout)
	defer pool.PutTimer(t)

	for {
		select {
		case ev := <-n.permits:
			if ev.kind == kind {
				return ev, nil
			}
			if discard != nil {
				discard(ev)
			}
		case <-t.C:
			return linkEvent{}, errWaitTimeout
		case <-ctx.Done():
			return linkEvent{}, ctx.Err()
		}
	}
}

// drain takes every available permit and returns how many there were.
func (n *notifier) drain() int {
	for count := 0; ; count++ {
		select {
		case <-n.permits:
		default:
			return count
		}
	}
}
