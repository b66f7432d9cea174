package cancelable

import (
	"sync"
	"sync/atomic"

	"github.com/gordian-engine/cancelable/internal/cchan"
)

// entry is a single item in the proxy's log.
// Exactly one of val, err, or done is meaningful.
type entry[T any] struct {
	val  T
	err  error
	done bool
}

// listener is the proxy-side state of one downstream subscription.
// Its run method walks the proxy's log and sends to out.
type listener[T any] struct {
	id uint

	// Unbuffered, so that a halted listener
	// has delivered nothing the consumer did not receive.
	out chan Event[T]

	stop     chan struct{}
	stopOnce sync.Once

	// Closed when run returns, after out is closed.
	done chan struct{}

	// Set before halting due to a detach,
	// so that Listen can tell a detach apart from completion.
	detached atomic.Bool
}

func newListener[T any](id uint) *listener[T] {
	return &listener[T]{
		id: id,

		out:  make(chan Event[T]),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// halt stops delivery. It is safe to call more than once.
func (l *listener[T]) halt() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

// run delivers every entry from n onward, until it reaches a done entry
// or the listener is halted.
// pos is the log position of n.
// Error entries before position liveFrom were produced before
// this listener attached, so they are skipped;
// values before liveFrom are replayed.
//
// A nil n means there is nothing to deliver,
// and run returns immediately after closing out.
func (l *listener[T]) run(n *cchan.Multicast[entry[T]], pos, liveFrom uint64) {
	defer close(l.done)
	defer close(l.out)

	if n == nil {
		return
	}

	for ; ; pos++ {
		select {
		case <-l.stop:
			return
		case <-n.Ready:
		}

		e := n.Val
		n = n.Next

		if e.done {
			return
		}

		if e.err != nil && pos < liveFrom {
			continue
		}

		// Both channels may be ready at once,
		// and a halt must win over another delivery.
		select {
		case <-l.stop:
			return
		default:
		}

		select {
		case <-l.stop:
			return
		case l.out <- Event[T]{Val: e.val, Err: e.err}:
		}
	}
}
