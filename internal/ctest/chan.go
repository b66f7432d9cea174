package ctest

import (
	"testing"
	"time"
)

// soonTimeout bounds how long the *Soon helpers wait
// before failing the test.
const soonTimeout = 500 * time.Millisecond

// notSendingWait is how long [NotSending] watches a channel.
// It is short, since a passing NotSending always takes this long.
const notSendingWait = 10 * time.Millisecond

// ReceiveSoon receives a value from ch,
// failing the test if no value arrives within a short timeout.
// A closed channel returns the zero value,
// so ReceiveSoon also works for done-style channels.
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(soonTimeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("no value received within %s", soonTimeout)
	}

	panic("unreachable")
}

// ReceiveClosedSoon fails the test unless ch is closed within a short timeout.
// Any values still pending on ch are a failure too.
func ReceiveClosedSoon[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	timer := time.NewTimer(soonTimeout)
	defer timer.Stop()

	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel, received %v", v)
		}
	case <-timer.C:
		t.Fatalf("channel not closed within %s", soonTimeout)
	}
}

// SendSoon sends v on ch,
// failing the test if the send does not complete within a short timeout.
func SendSoon[T any](t testing.TB, ch chan<- T, v T) {
	t.Helper()

	timer := time.NewTimer(soonTimeout)
	defer timer.Stop()

	select {
	case ch <- v:
		// Okay.
	case <-timer.C:
		t.Fatalf("send not completed within %s", soonTimeout)
	}
}

// IsSending asserts that ch is immediately readable,
// which also holds for a closed channel.
// The received value is returned.
func IsSending[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	default:
		t.Fatalf("channel was not sending")
	}

	panic("unreachable")
}

// NotSending asserts that ch does not become readable
// within a short period.
func NotSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	timer := time.NewTimer(notSendingWait)
	defer timer.Stop()

	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("channel unexpectedly sent %v", v)
		}
		t.Fatalf("channel unexpectedly closed")
	case <-timer.C:
		// Okay.
	}
}
