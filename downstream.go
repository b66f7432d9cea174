package cancelable

import (
	"github.com/bits-and-blooms/bitset"
)

// downstream is the set of listeners attached to a [Proxy].
// The two implementations differ only in how many listeners they admit.
//
// All methods must be called with the owning Proxy's mutex held.
type downstream[T any] interface {
	// add registers and returns a new listener,
	// or returns an InvalidStateError if no more listeners are allowed.
	add() (*listener[T], error)

	// remove unregisters l, reporting whether it was registered.
	remove(l *listener[T]) bool

	// listeners returns the currently registered listeners.
	listeners() []*listener[T]

	len() int

	// close marks the downstream closed.
	// Registered listeners are left in place;
	// they stop on their own or when halted.
	close()
	closed() bool
}

// singleDownstream admits exactly one listener over its lifetime,
// matching a producer that can only be subscribed once.
type singleDownstream[T any] struct {
	used bool
	l    *listener[T]

	isClosed bool
}

func (d *singleDownstream[T]) add() (*listener[T], error) {
	if d.used {
		return nil, InvalidStateError{
			Reason: "single-subscription stream has already been listened to",
		}
	}

	d.used = true
	d.l = newListener[T](0)
	return d.l, nil
}

func (d *singleDownstream[T]) remove(l *listener[T]) bool {
	if d.l == nil || d.l != l {
		return false
	}
	d.l = nil
	return true
}

func (d *singleDownstream[T]) listeners() []*listener[T] {
	if d.l == nil {
		return nil
	}
	return []*listener[T]{d.l}
}

func (d *singleDownstream[T]) len() int {
	if d.l == nil {
		return 0
	}
	return 1
}

func (d *singleDownstream[T]) close()       { d.isClosed = true }
func (d *singleDownstream[T]) closed() bool { return d.isClosed }

// broadcastDownstream admits any number of concurrent listeners.
// Listener IDs are the lowest free bit in ids,
// so IDs of detached listeners are reused.
type broadcastDownstream[T any] struct {
	ids *bitset.BitSet
	ls  map[uint]*listener[T]

	isClosed bool
}

func newBroadcastDownstream[T any]() *broadcastDownstream[T] {
	return &broadcastDownstream[T]{
		ids: bitset.New(8),
		ls:  make(map[uint]*listener[T]),
	}
}

func (d *broadcastDownstream[T]) add() (*listener[T], error) {
	id, ok := d.ids.NextClear(0)
	if !ok {
		id = d.ids.Len()
	}
	d.ids.Set(id)

	l := newListener[T](id)
	d.ls[id] = l
	return l, nil
}

func (d *broadcastDownstream[T]) remove(l *listener[T]) bool {
	if d.ls[l.id] != l {
		return false
	}
	delete(d.ls, l.id)
	d.ids.Clear(l.id)
	return true
}

func (d *broadcastDownstream[T]) listeners() []*listener[T] {
	out := make([]*listener[T], 0, len(d.ls))
	for i, ok := d.ids.NextSet(0); ok; i, ok = d.ids.NextSet(i + 1) {
		out = append(out, d.ls[i])
	}
	return out
}

func (d *broadcastDownstream[T]) len() int {
	return int(d.ids.Count())
}

func (d *broadcastDownstream[T]) close()       { d.isClosed = true }
func (d *broadcastDownstream[T]) closed() bool { return d.isClosed }
