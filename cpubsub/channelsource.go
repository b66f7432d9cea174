package cpubsub

import (
	"context"
	"sync/atomic"

	"github.com/gordian-engine/cancelable"
)

// ChannelSource is a single-subscription [cancelable.Producer]
// that delivers the values received from a channel.
// The subscription completes when the channel is closed.
type ChannelSource[T any] struct {
	ch <-chan T

	subscribed atomic.Bool
}

var _ cancelable.Producer[int] = (*ChannelSource[int])(nil)

// NewChannelSource returns a ChannelSource reading from ch.
// Nothing is read from ch until the source is subscribed.
func NewChannelSource[T any](ch <-chan T) *ChannelSource[T] {
	return &ChannelSource[T]{ch: ch}
}

func (s *ChannelSource[T]) Broadcast() bool { return false }

// Subscribe starts a goroutine that reads from the channel
// and delivers to obs.
// Only the first call succeeds;
// later calls return [ErrAlreadySubscribed].
func (s *ChannelSource[T]) Subscribe(
	_ context.Context, obs cancelable.Observer[T],
) (cancelable.Handle, error) {
	if !s.subscribed.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubscribed
	}

	return startFollower(func(stop <-chan struct{}) {
		runChannelSource(s.ch, obs, stop)
	}), nil
}

func runChannelSource[T any](
	ch <-chan T,
	obs cancelable.Observer[T],
	stop <-chan struct{},
) {
	for {
		select {
		case <-stop:
			return

		case v, ok := <-ch:
			if !ok {
				obs.OnDone()
				return
			}
			obs.OnValue(v)
		}
	}
}
