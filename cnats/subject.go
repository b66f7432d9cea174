package cnats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/cancelable"
	"github.com/nats-io/nats.go"
)

// DefaultFlushTimeout is the flush timeout used
// when the subscribe context has no deadline.
const DefaultFlushTimeout = 2 * time.Second

// SubjectConfig is the configuration for [NewSubject].
type SubjectConfig[T any] struct {
	// Connection to subscribe on. Required.
	Conn *nats.Conn

	// Subject to subscribe to. Wildcards are allowed. Required.
	Subject string

	// If set, subscriptions join this queue group,
	// so that each message goes to only one member of the group.
	Queue string

	// Decode converts a message payload into a value. Required.
	Decode func([]byte) (T, error)

	// Used to confirm a new subscription with the server
	// when the subscribe context has no deadline.
	// Defaults to [DefaultFlushTimeout].
	FlushTimeout time.Duration
}

// Subject is a broadcast [cancelable.Producer]
// of the messages published on a NATS subject.
//
// A payload that fails to decode is delivered as a non-terminal error.
// The subscription completes if NATS closes it,
// for instance when the connection is closed.
type Subject[T any] struct {
	log *slog.Logger

	nc      *nats.Conn
	subject string
	queue   string
	decode  func([]byte) (T, error)

	flushTimeout time.Duration
}

var _ cancelable.Producer[int] = (*Subject[int])(nil)

// NewSubject returns a Subject for cfg.
// It panics if a required field of cfg is unset.
func NewSubject[T any](log *slog.Logger, cfg SubjectConfig[T]) *Subject[T] {
	if cfg.Conn == nil {
		panic(errors.New("BUG: SubjectConfig.Conn must not be nil"))
	}
	if cfg.Subject == "" {
		panic(errors.New("BUG: SubjectConfig.Subject must not be empty"))
	}
	if cfg.Decode == nil {
		panic(errors.New("BUG: SubjectConfig.Decode must not be nil"))
	}

	ft := cfg.FlushTimeout
	if ft <= 0 {
		ft = DefaultFlushTimeout
	}

	return &Subject[T]{
		log: log.With("subject", cfg.Subject),

		nc:      cfg.Conn,
		subject: cfg.Subject,
		queue:   cfg.Queue,
		decode:  cfg.Decode,

		flushTimeout: ft,
	}
}

func (s *Subject[T]) Broadcast() bool { return true }

// Subscribe creates a NATS subscription delivering to obs.
// It returns once the server has acknowledged the subscription,
// so a message published after Subscribe returns is delivered.
//
// The handle's Unsubscribe waits for the subscription's delivery goroutine
// to finish, so it must not be called from within obs.
func (s *Subject[T]) Subscribe(
	ctx context.Context, obs cancelable.Observer[T],
) (cancelable.Handle, error) {
	// Set by the handle, or by a failed Subscribe.
	// Once set, nothing more is delivered to obs.
	var stopped atomic.Bool

	// Closed once Subscribe has either returned a handle or failed.
	settled := make(chan struct{})

	// Closed after the closed handler has run.
	// NATS runs message callbacks and the closed handler
	// on the same goroutine, so no callback is running after this.
	closed := make(chan struct{})

	handler := func(m *nats.Msg) {
		if stopped.Load() {
			return
		}

		v, err := s.decode(m.Data)
		if err != nil {
			s.log.Debug("Failed to decode message", "err", err)
			obs.OnError(fmt.Errorf("failed to decode message on %q: %w", m.Subject, err))
			return
		}

		obs.OnValue(v)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if s.queue == "" {
		sub, err = s.nc.Subscribe(s.subject, handler)
	} else {
		sub, err = s.nc.QueueSubscribe(s.subject, s.queue, handler)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	// Installed before the flush, so a connection closing from here on
	// either fails the flush or completes the subscription.
	sub.SetClosedHandler(func(string) {
		defer close(closed)

		<-settled
		if stopped.Load() {
			return
		}
		obs.OnDone()
	})

	if err := s.flush(ctx); err != nil {
		stopped.Store(true)
		close(settled)

		if uErr := sub.Unsubscribe(); uErr != nil && !isGone(uErr) {
			s.log.Info("Failed to unsubscribe after flush failure", "err", uErr)
		}
		return nil, fmt.Errorf("failed to confirm subscription: %w", err)
	}
	close(settled)

	return cancelable.HandleFunc(func(ctx context.Context) error {
		stopped.Store(true)

		if err := sub.Unsubscribe(); err != nil && !isGone(err) {
			return fmt.Errorf("failed to unsubscribe: %w", err)
		}

		select {
		case <-closed:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}), nil
}

// isGone reports whether err from Unsubscribe means
// the subscription was already closed.
func isGone(err error) bool {
	return errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription)
}

func (s *Subject[T]) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); ok {
		return s.nc.FlushWithContext(ctx)
	}
	return s.nc.FlushTimeout(s.flushTimeout)
}
