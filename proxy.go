package cancelable

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordian-engine/cancelable/internal/cchan"
	"golang.org/x/sync/singleflight"
)

type cancelState uint8

const (
	cancelNotStarted cancelState = iota
	cancelInProgress
	cancelCompleted
)

// Proxy sits between one upstream [Producer] and any number of
// downstream subscriptions, adding idempotent cancellation.
//
// The upstream is subscribed lazily, when the first listener attaches,
// and unsubscribed when the last listener detaches
// or when [*Proxy.Cancel] is called.
// Every upstream value is kept in a replay log,
// so the listener that starts a new upstream subscription
// first receives everything observed so far.
//
// Create a Proxy with [Wrap].
type Proxy[T any] struct {
	log *slog.Logger

	upstream  Producer[T]
	broadcast bool

	mu sync.Mutex

	down downstream[T]
	buf  *cchan.Log[entry[T]]

	// span identifies the current upstream subscription.
	// It is incremented whenever a subscription is retired,
	// so that events from a retired subscription are dropped.
	span uint64

	// Nil when there is no active upstream subscription.
	handle Handle

	// Non-nil while the current span's Subscribe call is in flight;
	// closed when that call returns.
	subscribing chan struct{}

	state     cancelState
	cancelErr error

	canceled chan struct{}

	flight singleflight.Group
}

// Wrap returns a new Proxy over upstream.
// If upstream reports that it supports broadcast,
// the proxy allows any number of concurrent listeners;
// otherwise the proxy can be listened to only once.
//
// Wrap does not subscribe to upstream.
func Wrap[T any](log *slog.Logger, upstream Producer[T]) *Proxy[T] {
	b := upstream.Broadcast()

	var down downstream[T]
	if b {
		down = newBroadcastDownstream[T]()
	} else {
		down = new(singleDownstream[T])
	}

	return &Proxy[T]{
		log: log,

		upstream:  upstream,
		broadcast: b,

		down: down,
		buf:  cchan.NewLog[entry[T]](),

		canceled: make(chan struct{}),
	}
}

// Broadcast reports whether p admits multiple concurrent listeners.
func (p *Proxy[T]) Broadcast() bool {
	return p.broadcast
}

// Canceled returns a channel that is closed
// once a call to [*Proxy.Cancel] has finished tearing down p.
func (p *Proxy[T]) Canceled() <-chan struct{} {
	return p.canceled
}

// Attach registers a new downstream subscription.
//
// If this is the only listener, the upstream is subscribed with ctx,
// and the new subscription first receives every value
// observed in earlier subscriptions, in order.
// Later listeners on a broadcast proxy receive only live events.
//
// If p is already canceled or its upstream has finished,
// the returned subscription is already complete.
//
// On a proxy over a single-subscription producer,
// any attach after the first returns an [InvalidStateError].
func (p *Proxy[T]) Attach(ctx context.Context) (*Subscription[T], error) {
	p.mu.Lock()

	l, err := p.down.add()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	sub := &Subscription[T]{p: p, l: l}

	if p.state != cancelNotStarted || p.down.closed() {
		p.down.remove(l)
		p.mu.Unlock()

		// Nothing to deliver; run closes the channels and returns.
		l.run(nil, 0, 0)
		return sub, nil
	}

	liveFrom := p.buf.Len()

	if p.down.len() > 1 {
		go l.run(p.buf.Tail(), liveFrom, liveFrom)
		p.mu.Unlock()
		return sub, nil
	}

	// First listener: replay the log from its head,
	// then continue with live entries from the new subscription.
	go l.run(p.buf.Head(), 0, liveFrom)

	p.span++
	span := p.span
	ready := make(chan struct{})
	p.subscribing = ready
	p.mu.Unlock()

	p.log.Debug("Subscribing to upstream", "span", span, "replay_len", liveFrom)
	h, err := p.upstream.Subscribe(ctx, spanObserver[T]{p: p, span: span})

	p.mu.Lock()
	if p.subscribing == ready {
		p.subscribing = nil
	}
	close(ready)

	if err != nil {
		err = fmt.Errorf("failed to subscribe to upstream: %w", err)

		p.down.remove(l)
		if span == p.span {
			p.span++

			// Listeners that joined during the subscribe
			// would otherwise wait forever on a span with no upstream.
			if p.down.len() > 0 && !p.down.closed() {
				p.buf.Append(entry[T]{err: err})
				p.buf.Append(entry[T]{done: true})
				p.down.close()
			}
		}
		p.mu.Unlock()

		l.halt()
		<-l.done
		return nil, err
	}

	if span != p.span {
		// The span was retired while Subscribe was in flight,
		// by a detach or by the upstream finishing,
		// so nobody else will release this handle.
		p.mu.Unlock()

		if err := h.Unsubscribe(ctx); err != nil {
			p.log.Info(
				"Failed to unsubscribe from retired upstream subscription",
				"span", span, "err", err,
			)
		}
		return sub, nil
	}

	p.handle = h
	p.mu.Unlock()

	return sub, nil
}

// Listen is like [*Proxy.Attach],
// but delivers events to the callbacks in l
// instead of through [*Subscription.Events].
//
// Callers must not read from the returned subscription's Events channel.
func (p *Proxy[T]) Listen(ctx context.Context, l Listener[T]) (*Subscription[T], error) {
	sub, err := p.Attach(ctx)
	if err != nil {
		return nil, err
	}

	go sub.dispatch(l)

	return sub, nil
}

// Cancel stops p permanently.
//
// The first call unsubscribes from the upstream, if subscribed,
// and then completes every downstream subscription.
// Values not yet received by a subscriber are dropped,
// and no event is sent on any subscription after Cancel returns.
// The replay log is released.
//
// Concurrent calls wait for the same teardown,
// and calls after it has finished return immediately.
// Every call observes the same result.
//
// Teardown is not interrupted by ctx;
// if ctx is done first, Cancel returns early with the context's cause
// while teardown continues in the background.
func (p *Proxy[T]) Cancel(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case cancelCompleted:
		err := p.cancelErr
		p.mu.Unlock()
		return err
	case cancelNotStarted:
		p.state = cancelInProgress
	}
	p.mu.Unlock()

	resCh := p.flight.DoChan("cancel", func() (any, error) {
		return nil, p.teardown(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case res := <-resCh:
		return res.Err
	}
}

// teardown performs the work of [*Proxy.Cancel].
// It is only called through p.flight.
func (p *Proxy[T]) teardown(ctx context.Context) error {
	p.mu.Lock()
	if p.state == cancelCompleted {
		// A caller that observed the in-progress state
		// started a new flight after the first one finished.
		err := p.cancelErr
		p.mu.Unlock()
		return err
	}
	ready := p.subscribing
	p.mu.Unlock()

	// The handle from an in-flight subscribe must not be missed.
	if ready != nil {
		<-ready
	}

	p.mu.Lock()
	h := p.handle
	p.handle = nil
	p.span++
	p.mu.Unlock()

	var err error
	if h != nil {
		p.log.Debug("Unsubscribing from upstream for cancellation")
		if uErr := h.Unsubscribe(ctx); uErr != nil {
			err = fmt.Errorf("failed to unsubscribe from upstream: %w", uErr)
		}
	}

	p.mu.Lock()
	ls := p.down.listeners()
	p.down.close()
	p.buf.Truncate()
	p.mu.Unlock()

	for _, l := range ls {
		l.halt()
	}
	for _, l := range ls {
		<-l.done
	}

	p.mu.Lock()
	p.state = cancelCompleted
	p.cancelErr = err
	p.mu.Unlock()

	close(p.canceled)

	if err != nil {
		p.log.Info("Proxy canceled with teardown error", "err", err)
	} else {
		p.log.Debug("Proxy canceled", "listeners", len(ls))
	}

	return err
}

// detach removes l, and ends the upstream subscription
// if l was the last listener.
func (p *Proxy[T]) detach(ctx context.Context, l *listener[T]) error {
	p.mu.Lock()
	removed := p.down.remove(l)

	var h Handle
	if removed && p.down.len() == 0 && p.state == cancelNotStarted {
		// If Subscribe is still in flight, handle is nil,
		// and retiring the span makes Attach release the handle instead.
		h = p.handle
		p.handle = nil
		p.span++
	}
	p.mu.Unlock()

	l.halt()

	var err error
	if h != nil {
		p.log.Debug("Last listener detached; unsubscribing from upstream")
		if uErr := h.Unsubscribe(ctx); uErr != nil {
			err = fmt.Errorf("failed to unsubscribe from upstream: %w", uErr)
		}
	}

	select {
	case <-l.done:
	case <-ctx.Done():
		if err == nil {
			err = context.Cause(ctx)
		}
	}

	return err
}

// publish appends e to the log, if span is still current.
func (p *Proxy[T]) publish(span uint64, e entry[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if span != p.span || p.down.closed() {
		return
	}

	p.buf.Append(e)
}

// finish handles upstream completion for span.
// Listeners still deliver what was already logged, then complete.
func (p *Proxy[T]) finish(span uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if span != p.span || p.down.closed() {
		return
	}

	p.span++
	p.handle = nil
	p.buf.Append(entry[T]{done: true})
	p.down.close()

	p.log.Debug("Upstream finished", "span", span, "logged", p.buf.Len())
}

// spanObserver is the [Observer] given to the upstream
// for a single subscription span.
type spanObserver[T any] struct {
	p    *Proxy[T]
	span uint64
}

func (o spanObserver[T]) OnValue(v T) {
	o.p.publish(o.span, entry[T]{val: v})
}

func (o spanObserver[T]) OnError(err error) {
	o.p.publish(o.span, entry[T]{err: err})
}

func (o spanObserver[T]) OnDone() {
	o.p.finish(o.span)
}
