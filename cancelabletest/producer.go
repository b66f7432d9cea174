// Package cancelabletest contains test doubles for the cancelable package.
package cancelabletest

import (
	"context"
	"sync"

	"github.com/gordian-engine/cancelable"
)

// Producer is a controllable [cancelable.Producer] for tests.
// It records every Subscribe and Unsubscribe call,
// and events are pushed synchronously from the goroutine
// calling [*Producer.Emit], [*Producer.Fail], or [*Producer.Finish].
type Producer[T any] struct {
	broadcast bool

	mu sync.Mutex

	subs []*subscription[T]

	subscribeCount, unsubscribeCount int

	subscribeErr, unsubscribeErr error

	subscribeGate, unsubscribeGate chan struct{}

	unsubscribing chan struct{}
}

type subscription[T any] struct {
	obs cancelable.Observer[T]

	retired  bool
	finished bool
}

// NewProducer returns a Producer whose Broadcast method returns broadcast.
func NewProducer[T any](broadcast bool) *Producer[T] {
	return &Producer[T]{
		broadcast: broadcast,

		// Buffered, and sent to without blocking,
		// so tests that don't watch it are unaffected.
		unsubscribing: make(chan struct{}, 64),
	}
}

var _ cancelable.Producer[int] = (*Producer[int])(nil)

func (p *Producer[T]) Broadcast() bool { return p.broadcast }

// Subscribe records the call and registers obs.
// If a subscribe gate is set, Subscribe blocks until it is released
// or ctx is done.
func (p *Producer[T]) Subscribe(
	ctx context.Context, obs cancelable.Observer[T],
) (cancelable.Handle, error) {
	p.mu.Lock()
	p.subscribeCount++
	gate := p.subscribeGate
	err := p.subscribeErr
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}

	if err != nil {
		return nil, err
	}

	s := &subscription[T]{obs: obs}

	p.mu.Lock()
	p.subs = append(p.subs, s)
	p.mu.Unlock()

	return cancelable.HandleFunc(func(ctx context.Context) error {
		return p.unsubscribe(ctx, s)
	}), nil
}

func (p *Producer[T]) unsubscribe(ctx context.Context, s *subscription[T]) error {
	p.mu.Lock()
	p.unsubscribeCount++
	gate := p.unsubscribeGate
	err := p.unsubscribeErr
	p.mu.Unlock()

	select {
	case p.unsubscribing <- struct{}{}:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}

	p.mu.Lock()
	s.retired = true
	p.mu.Unlock()

	return err
}

// Emit delivers v to every active subscription.
func (p *Producer[T]) Emit(v T) {
	for _, s := range p.snapshot(false) {
		s.obs.OnValue(v)
	}
}

// EmitRetired delivers v to every subscription that was unsubscribed
// but not finished, imitating a producer that does not honor
// unsubscription promptly.
func (p *Producer[T]) EmitRetired(v T) {
	for _, s := range p.snapshot(true) {
		s.obs.OnValue(v)
	}
}

// Fail delivers err to every active subscription.
// It does not finish them.
func (p *Producer[T]) Fail(err error) {
	for _, s := range p.snapshot(false) {
		s.obs.OnError(err)
	}
}

// Finish completes every active subscription.
func (p *Producer[T]) Finish() {
	subs := p.snapshot(false)

	p.mu.Lock()
	for _, s := range subs {
		s.finished = true
	}
	p.mu.Unlock()

	for _, s := range subs {
		s.obs.OnDone()
	}
}

func (p *Producer[T]) snapshot(retired bool) []*subscription[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*subscription[T]
	for _, s := range p.subs {
		if s.finished || s.retired != retired {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SubscribeCount returns the number of Subscribe calls so far.
func (p *Producer[T]) SubscribeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribeCount
}

// UnsubscribeCount returns the number of Unsubscribe calls so far.
func (p *Producer[T]) UnsubscribeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsubscribeCount
}

// ActiveCount returns the number of subscriptions
// neither unsubscribed nor finished.
func (p *Producer[T]) ActiveCount() int {
	return len(p.snapshot(false))
}

// Unsubscribing returns a channel that receives a value
// each time an Unsubscribe call begins.
func (p *Producer[T]) Unsubscribing() <-chan struct{} {
	return p.unsubscribing
}

// SetSubscribeError causes subsequent Subscribe calls to fail with err.
func (p *Producer[T]) SetSubscribeError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribeErr = err
}

// SetUnsubscribeError causes subsequent Unsubscribe calls to return err.
// The subscription is still retired.
func (p *Producer[T]) SetUnsubscribeError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsubscribeErr = err
}

// GateSubscribe makes subsequent Subscribe calls block
// until the returned release function is called.
func (p *Producer[T]) GateSubscribe() (release func()) {
	gate := make(chan struct{})

	p.mu.Lock()
	p.subscribeGate = gate
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.subscribeGate == gate {
				p.subscribeGate = nil
			}
			p.mu.Unlock()
			close(gate)
		})
	}
}

// GateUnsubscribe makes subsequent Unsubscribe calls block
// until the returned release function is called.
func (p *Producer[T]) GateUnsubscribe() (release func()) {
	gate := make(chan struct{})

	p.mu.Lock()
	p.unsubscribeGate = gate
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.unsubscribeGate == gate {
				p.unsubscribeGate = nil
			}
			p.mu.Unlock()
			close(gate)
		})
	}
}
