package cancelable

// Event is a single delivery to a downstream subscription.
// Exactly one of Val or Err is meaningful:
// if Err is nil, the event carries the value Val.
//
// Completion is not an Event;
// it is signaled by closing the events channel.
type Event[T any] struct {
	Val T
	Err error
}

// Listener is the callback form of a downstream subscription,
// used with [*Proxy.Listen].
// Any nil field is ignored.
//
// The callbacks are called sequentially from a single goroutine
// owned by the subscription.
// They may call [*Proxy.Cancel] or [*Subscription.Detach].
type Listener[T any] struct {
	OnValue func(T)
	OnError func(error)

	// OnDone is called once the stream completes,
	// either because the upstream finished or because the proxy was canceled.
	// It is not called after [*Subscription.Detach].
	OnDone func()
}
