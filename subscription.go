package cancelable

import "context"

// Subscription is a single downstream listener on a [Proxy].
// Obtain one from [*Proxy.Attach] or [*Proxy.Listen].
type Subscription[T any] struct {
	p *Proxy[T]
	l *listener[T]
}

// Events returns the channel of values and errors for this subscription.
// The channel is closed when the stream completes,
// when the proxy is canceled, or after [*Subscription.Detach].
func (s *Subscription[T]) Events() <-chan Event[T] {
	return s.l.out
}

// Done returns a channel that is closed
// once no further events will be sent to this subscription.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.l.done
}

// Detach stops delivery to s.
// If s was the last listener on the proxy,
// the upstream subscription is ended,
// but the proxy is not canceled:
// a later attach on a broadcast proxy subscribes to the upstream again.
//
// Detach is safe to call more than once.
func (s *Subscription[T]) Detach(ctx context.Context) error {
	s.l.detached.Store(true)
	return s.p.detach(ctx, s.l)
}

// dispatch drains s's events into the callbacks in l.
func (s *Subscription[T]) dispatch(l Listener[T]) {
	for ev := range s.l.out {
		if ev.Err != nil {
			if l.OnError != nil {
				l.OnError(ev.Err)
			}
			continue
		}

		if l.OnValue != nil {
			l.OnValue(ev.Val)
		}
	}

	if !s.l.detached.Load() && l.OnDone != nil {
		l.OnDone()
	}
}
