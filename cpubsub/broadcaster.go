package cpubsub

import (
	"context"
	"sync"

	"github.com/gordian-engine/cancelable"
	"github.com/gordian-engine/cancelable/internal/cchan"
)

// item is a single published event.
type item[T any] struct {
	val  T
	err  error
	done bool
}

// Broadcaster is a [cancelable.Producer] with one publisher
// and any number of concurrent subscriptions.
//
// Each subscription follows a shared linked list of published items
// on its own goroutine, starting at the point it subscribed,
// so a slow subscriber delays only itself.
// A subscriber that never keeps up holds every item after its position,
// which is a memory leak; unsubscribe to release it.
type Broadcaster[T any] struct {
	mu sync.Mutex

	// tail is the next node to be set.
	// Once closed, tail is the node holding the done item.
	tail   *cchan.Multicast[item[T]]
	closed bool
}

var _ cancelable.Producer[int] = (*Broadcaster[int])(nil)

// NewBroadcaster returns an open Broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		tail: cchan.NewMulticast[item[T]](),
	}
}

func (b *Broadcaster[T]) Broadcast() bool { return true }

// Publish delivers v to every current subscription.
// Publish after Close is a no-op.
func (b *Broadcaster[T]) Publish(v T) {
	b.append(item[T]{val: v})
}

// Fail delivers err to every current subscription.
// The broadcaster remains open.
func (b *Broadcaster[T]) Fail(err error) {
	b.append(item[T]{err: err})
}

// Close completes every current and future subscription.
// Close is safe to call more than once.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	// Leave tail on the done node,
	// so late subscribers complete immediately.
	b.tail.Set(item[T]{done: true})
}

func (b *Broadcaster[T]) append(it item[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.tail.Set(it)
	b.tail = b.tail.Next
}

// Subscribe starts delivering items published from now on to obs.
// The context is unused, as subscribing never blocks.
func (b *Broadcaster[T]) Subscribe(
	_ context.Context, obs cancelable.Observer[T],
) (cancelable.Handle, error) {
	b.mu.Lock()
	n := b.tail
	b.mu.Unlock()

	return startFollower(func(stop <-chan struct{}) {
		followItems(n, obs, stop)
	}), nil
}

func followItems[T any](
	n *cchan.Multicast[item[T]],
	obs cancelable.Observer[T],
	stop <-chan struct{},
) {
	for {
		select {
		case <-stop:
			return
		case <-n.Ready:
		}

		it := n.Val
		n = n.Next

		switch {
		case it.done:
			obs.OnDone()
			return
		case it.err != nil:
			obs.OnError(it.err)
		default:
			obs.OnValue(it.val)
		}
	}
}
