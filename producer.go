package cancelable

import "context"

// Producer is an upstream source of values that a [Proxy] wraps.
//
// A Producer delivers values to an [Observer] until it terminates
// with either OnDone or, for producers that treat errors as terminal,
// OnError followed by OnDone.
// Calls to a single Observer must be serialized,
// and nothing may be delivered after OnDone.
type Producer[T any] interface {
	// Subscribe begins delivering events to obs.
	// Events may be delivered from any goroutine,
	// including the calling goroutine before Subscribe returns.
	//
	// The returned Handle is used to stop delivery.
	Subscribe(ctx context.Context, obs Observer[T]) (Handle, error)

	// Broadcast reports whether the producer accepts
	// multiple concurrent subscriptions.
	// The [Proxy] consults this once, in [Wrap].
	Broadcast() bool
}

// Observer receives the events of a single upstream subscription.
type Observer[T any] interface {
	OnValue(T)

	// OnError reports an error from the producer.
	// It is not terminal by itself;
	// the producer calls OnDone if it has stopped.
	OnError(error)

	OnDone()
}

// Handle is the ownership token for an active upstream subscription.
type Handle interface {
	// Unsubscribe asks the producer to stop delivering events.
	// Once Unsubscribe returns without error,
	// the producer must not call the Observer again.
	Unsubscribe(ctx context.Context) error
}

// HandleFunc adapts a plain function to the [Handle] interface.
type HandleFunc func(context.Context) error

func (f HandleFunc) Unsubscribe(ctx context.Context) error {
	return f(ctx)
}
