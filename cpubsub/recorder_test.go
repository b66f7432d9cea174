package cpubsub_test

import (
	"sync"
)

// recorder is a cancelable.Observer that forwards events to channels.
type recorder[T any] struct {
	vals chan T
	errs chan error
	done chan struct{}

	doneOnce sync.Once
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{
		vals: make(chan T, 16),
		errs: make(chan error, 16),
		done: make(chan struct{}),
	}
}

func (r *recorder[T]) OnValue(v T) { r.vals <- v }
func (r *recorder[T]) OnError(err error) { r.errs <- err }
func (r *recorder[T]) OnDone() {
	r.doneOnce.Do(func() { close(r.done) })
}
