// Package cancelable wraps a push-based stream of values
// with explicit, idempotent cancellation.
//
// A [Proxy] is created over an upstream [Producer] with [Wrap].
// Consumers attach to the proxy with [*Proxy.Attach] or [*Proxy.Listen];
// the upstream is subscribed only when the first listener attaches,
// and values observed before a listener attached are replayed to
// the listener that starts the next upstream subscription.
//
// [*Proxy.Cancel] unsubscribes from the upstream and completes every
// downstream subscription, exactly once, no matter how many callers
// request it or whether any listener was ever attached.
// Detaching the last listener with [*Subscription.Detach] also ends
// the upstream subscription, but leaves the proxy usable.
//
// Producers whose Broadcast method reports false may be listened to once;
// broadcast producers allow any number of concurrent listeners.
// See the cpubsub and cquic packages for producer implementations,
// and cancelabletest for a controllable fake.
package cancelable
