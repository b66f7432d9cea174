package cchan

// Multicast is a single node of an event-driven linked list.
// The list has a single writer and many readers.
// Readers can each walk the list at their own pace.
//
// A node is unset until [*Multicast.Set] closes Ready;
// only then may readers access Val and Next.
type Multicast[T any] struct {
	Ready chan struct{}
	Next  *Multicast[T]
	Val   T
}

// NewMulticast returns an initialized, unset node.
func NewMulticast[T any]() *Multicast[T] {
	return &Multicast[T]{
		Ready: make(chan struct{}),
	}
}

// Set assigns m's value and initializes m.Next.
// Then m.Ready is closed, notifying any observers that
// m.Val can now be safely read.
//
// If Set is called twice for the same m, Set panics.
func (m *Multicast[T]) Set(t T) {
	m.Val = t
	m.Next = NewMulticast[T]()
	close(m.Ready)
}

// IsSet reports whether m.Ready has been closed,
// without blocking.
func (m *Multicast[T]) IsSet() bool {
	select {
	case <-m.Ready:
		return true
	default:
		return false
	}
}
