package cancelable_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gordian-engine/cancelable"
	"github.com/gordian-engine/cancelable/cancelabletest"
	"github.com/gordian-engine/cancelable/internal/ctest"
	"github.com/stretchr/testify/require"
)

func newProxy[T any](t *testing.T, broadcast bool) (
	*cancelable.Proxy[T], *cancelabletest.Producer[T],
) {
	t.Helper()

	up := cancelabletest.NewProducer[T](broadcast)
	return cancelable.Wrap(ctest.NewLogger(t), up), up
}

// collectValues reads every event from sub until its channel closes,
// failing on any error event.
func collectValues[T any](t *testing.T, sub *cancelable.Subscription[T]) []T {
	t.Helper()

	timer := time.NewTimer(time.Second)
	defer timer.Stop()

	var out []T
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			require.NoError(t, ev.Err)
			out = append(out, ev.Val)
		case <-timer.C:
			t.Fatalf("subscription did not complete; received %v so far", out)
		}
	}
}

func TestProxy_forwardsInOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, false)

	sub, err := p.Attach(ctx)
	require.NoError(t, err)

	go func() {
		for i := range 100 {
			up.Emit(i)
		}
		up.Finish()
	}()

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	require.Equal(t, want, collectValues(t, sub))
}

func TestProxy_lazySubscription(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)
	require.True(t, p.Broadcast())
	require.Zero(t, up.SubscribeCount())

	_, err := p.Attach(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, up.SubscribeCount())

	// Further broadcast listeners share the subscription.
	_, err = p.Attach(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, up.SubscribeCount())
}

func TestProxy_detachLastListenerUnsubscribes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, false)

	sub, err := p.Attach(ctx)
	require.NoError(t, err)

	require.NoError(t, sub.Detach(ctx))
	require.Equal(t, 1, up.UnsubscribeCount())
	ctest.ReceiveClosedSoon(t, sub.Events())
	ctest.ReceiveClosedSoon(t, sub.Done())

	// Detaching again does nothing.
	require.NoError(t, sub.Detach(ctx))
	require.Equal(t, 1, up.UnsubscribeCount())

	// The proxy is not canceled by the detach,
	// and canceling it now has no upstream to release.
	ctest.NotSending(t, p.Canceled())
	require.NoError(t, p.Cancel(ctx))
	require.Equal(t, 1, up.UnsubscribeCount())
}

func TestProxy_detachOneOfManyKeepsSubscription(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)

	a, err := p.Attach(ctx)
	require.NoError(t, err)
	b, err := p.Attach(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Detach(ctx))
	require.Zero(t, up.UnsubscribeCount())

	up.Emit(1)
	require.Equal(t, 1, ctest.ReceiveSoon(t, b.Events()).Val)

	require.NoError(t, b.Detach(ctx))
	require.Equal(t, 1, up.UnsubscribeCount())
}

func TestProxy_singleSubscription(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, false)
	require.False(t, p.Broadcast())

	sub, err := p.Attach(ctx)
	require.NoError(t, err)

	_, err = p.Attach(ctx)
	require.Error(t, err)
	require.True(t, cancelable.IsInvalidState(err))

	var ise cancelable.InvalidStateError
	require.ErrorAs(t, err, &ise)

	t.Run("still rejected after detach", func(t *testing.T) {
		require.NoError(t, sub.Detach(ctx))

		_, err := p.Listen(ctx, cancelable.Listener[int]{})
		require.True(t, cancelable.IsInvalidState(err))
	})

	require.Equal(t, 1, up.SubscribeCount())
}

func TestProxy_broadcastAllowsManyListeners(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)

	a, err := p.Attach(ctx)
	require.NoError(t, err)

	up.Emit(1)

	b, err := p.Attach(ctx)
	require.NoError(t, err)

	up.Emit(2)
	up.Finish()

	require.Equal(t, []int{1, 2}, collectValues(t, a))

	// b attached after 1 was delivered live to a,
	// and only the listener starting a subscription gets the replay.
	require.Equal(t, []int{2}, collectValues(t, b))
}

func TestProxy_replayToLateListener(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)

	a, err := p.Attach(ctx)
	require.NoError(t, err)

	up.Emit(1)
	up.Emit(2)
	require.Equal(t, 1, ctest.ReceiveSoon(t, a.Events()).Val)
	require.Equal(t, 2, ctest.ReceiveSoon(t, a.Events()).Val)

	require.NoError(t, a.Detach(ctx))
	require.Equal(t, 1, up.UnsubscribeCount())

	b, err := p.Attach(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, up.SubscribeCount())

	up.Emit(3)

	require.Equal(t, 1, ctest.ReceiveSoon(t, b.Events()).Val)
	require.Equal(t, 2, ctest.ReceiveSoon(t, b.Events()).Val)
	require.Equal(t, 3, ctest.ReceiveSoon(t, b.Events()).Val)
	ctest.NotSending(t, b.Events())
}

func TestProxy_upstreamErrorsAreForwardedVerbatim(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)

	a, err := p.Attach(ctx)
	require.NoError(t, err)

	errUpstream := errors.New("upstream hiccup")
	up.Fail(errUpstream)
	up.Emit(1)

	ev := ctest.ReceiveSoon(t, a.Events())
	require.Same(t, errUpstream, ev.Err)

	// Not terminal.
	ev = ctest.ReceiveSoon(t, a.Events())
	require.NoError(t, ev.Err)
	require.Equal(t, 1, ev.Val)

	t.Run("errors are not replayed", func(t *testing.T) {
		require.NoError(t, a.Detach(ctx))

		b, err := p.Attach(ctx)
		require.NoError(t, err)

		ev := ctest.ReceiveSoon(t, b.Events())
		require.NoError(t, ev.Err)
		require.Equal(t, 1, ev.Val)
		ctest.NotSending(t, b.Events())
	})
}

func TestProxy_upstreamCompletion(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)

	a, err := p.Attach(ctx)
	require.NoError(t, err)

	up.Emit(1)
	up.Emit(2)
	up.Finish()

	// Values published before completion are still delivered.
	require.Equal(t, []int{1, 2}, collectValues(t, a))

	t.Run("attach after completion", func(t *testing.T) {
		b, err := p.Attach(ctx)
		require.NoError(t, err)
		ctest.ReceiveClosedSoon(t, b.Events())
		require.Equal(t, 1, up.SubscribeCount())
	})

	// The upstream handle was retired by completion.
	require.NoError(t, p.Cancel(ctx))
	require.Zero(t, up.UnsubscribeCount())
}

func TestProxy_subscribeFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)

	errRefused := errors.New("refused")
	up.SetSubscribeError(errRefused)

	_, err := p.Attach(ctx)
	require.ErrorIs(t, err, errRefused)

	// With nobody else attached, a later attach may try again.
	up.SetSubscribeError(nil)

	sub, err := p.Attach(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, up.SubscribeCount())

	up.Emit(1)
	require.Equal(t, 1, ctest.ReceiveSoon(t, sub.Events()).Val)
}

func TestProxy_subscribeFailureCompletesOtherListeners(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)

	errRefused := errors.New("refused")
	up.SetSubscribeError(errRefused)
	release := up.GateSubscribe()

	attachErr := make(chan error, 1)
	go func() {
		_, err := p.Attach(ctx)
		attachErr <- err
	}()

	require.Eventually(t, func() bool {
		return up.SubscribeCount() == 1
	}, time.Second, time.Millisecond)

	// Joins the span whose subscribe is in flight.
	b, err := p.Attach(ctx)
	require.NoError(t, err)

	release()
	require.ErrorIs(t, ctest.ReceiveSoon(t, attachErr), errRefused)

	ev := ctest.ReceiveSoon(t, b.Events())
	require.ErrorIs(t, ev.Err, errRefused)
	ctest.ReceiveClosedSoon(t, b.Events())
}

func TestProxy_staleEventsAreDropped(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)

	a, err := p.Attach(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Detach(ctx))

	// The upstream ignores the unsubscription and keeps sending.
	require.NotPanics(t, func() {
		up.EmitRetired(1)
	})

	// A new span must not replay the stale value.
	b, err := p.Attach(ctx)
	require.NoError(t, err)
	ctest.NotSending(t, b.Events())

	require.NoError(t, p.Cancel(ctx))
	require.NotPanics(t, func() {
		up.EmitRetired(2)
	})
	ctest.ReceiveClosedSoon(t, b.Events())
}

func TestProxy_listen(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)

	vals := make(chan int, 4)
	errs := make(chan error, 4)
	done := make(chan struct{})

	_, err := p.Listen(ctx, cancelable.Listener[int]{
		OnValue: func(v int) { vals <- v },
		OnError: func(err error) { errs <- err },
		OnDone:  func() { close(done) },
	})
	require.NoError(t, err)

	errUpstream := errors.New("upstream hiccup")
	up.Emit(1)
	up.Fail(errUpstream)
	up.Finish()

	require.Equal(t, 1, ctest.ReceiveSoon(t, vals))
	require.Same(t, errUpstream, ctest.ReceiveSoon(t, errs))
	ctest.ReceiveClosedSoon(t, done)

	t.Run("detach does not call OnDone", func(t *testing.T) {
		p, _ := newProxy[int](t, true)

		done := make(chan struct{})
		sub, err := p.Listen(ctx, cancelable.Listener[int]{
			OnDone: func() { close(done) },
		})
		require.NoError(t, err)

		require.NoError(t, sub.Detach(ctx))
		ctest.NotSending(t, done)
	})
}

func TestProxy_concurrentListenersAndCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, up := newProxy[int](t, true)

	const nListeners = 8
	results := make(chan []int, nListeners)
	drain := func(sub *cancelable.Subscription[int]) {
		var got []int
		for ev := range sub.Events() {
			got = append(got, ev.Val)
		}
		results <- got
	}

	// One listener up front so the upstream is subscribed
	// no matter how the others are scheduled.
	first, err := p.Attach(ctx)
	require.NoError(t, err)
	go drain(first)

	for range nListeners - 1 {
		go func() {
			sub, err := p.Attach(ctx)
			if err != nil {
				t.Error(err)
				results <- nil
				return
			}
			drain(sub)
		}()
	}

	emitDone := make(chan struct{})
	go func() {
		defer close(emitDone)
		for i := range 1000 {
			up.Emit(i)
		}
	}()

	ctest.ReceiveClosedSoon(t, emitDone)
	require.NoError(t, p.Cancel(ctx))

	for range nListeners {
		got := ctest.ReceiveSoon(t, results)

		// Whatever each listener saw must be strictly increasing.
		for i := 1; i < len(got); i++ {
			require.Less(t, got[i-1], got[i])
		}
	}

	require.Equal(t, 1, up.SubscribeCount())
	require.Equal(t, 1, up.UnsubscribeCount())
}
