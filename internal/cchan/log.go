package cchan

// Log is an append-only sequence of values built on [Multicast] nodes.
//
// Log itself is not safe for concurrent use;
// the owner must serialize calls to Append.
// Readers holding a node obtained from Head or Tail
// may walk the list concurrently with appends.
type Log[T any] struct {
	head, tail *Multicast[T]

	n uint64
}

// NewLog returns an empty Log.
func NewLog[T any]() *Log[T] {
	m := NewMulticast[T]()
	return &Log[T]{head: m, tail: m}
}

// Append publishes t as the next value in the log.
func (l *Log[T]) Append(t T) {
	l.tail.Set(t)
	l.tail = l.tail.Next
	l.n++
}

// Head returns the first node of the log.
// A reader starting at Head observes every appended value.
func (l *Log[T]) Head() *Multicast[T] {
	return l.head
}

// Tail returns the unset node where the next value will be appended.
// A reader starting at Tail observes only values appended from now on.
func (l *Log[T]) Tail() *Multicast[T] {
	return l.tail
}

// Len returns the number of values appended so far.
func (l *Log[T]) Len() uint64 {
	return l.n
}

// Truncate drops the log's reference to every appended value,
// so that the log retains only what readers still hold.
// Values appended afterward are only visible from the new Head.
func (l *Log[T]) Truncate() {
	l.head = l.tail
}
