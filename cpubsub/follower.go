package cpubsub

import (
	"context"
	"sync"

	"github.com/gordian-engine/cancelable"
)

// startFollower runs fn on a new goroutine
// and returns a handle that stops it.
//
// The handle's Unsubscribe closes fn's stop channel
// and then waits for fn to return,
// so that no event is delivered after a successful Unsubscribe.
func startFollower(fn func(stop <-chan struct{})) cancelable.Handle {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		fn(stop)
	}()

	var once sync.Once
	return cancelable.HandleFunc(func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
		})

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	})
}
