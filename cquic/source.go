package cquic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/cancelable"
	"github.com/quic-go/quic-go"
)

// SourceConfig is the configuration for [NewSource].
type SourceConfig[T any] struct {
	// The stream to read frames from. Required.
	Stream ReceiveStream

	// Decode converts a frame payload into a value. Required.
	// The payload slice is reused after Decode returns,
	// so Decode must copy anything it retains.
	Decode func([]byte) (T, error)

	// Largest accepted decoded payload.
	// Defaults to [DefaultMaxFrameSize].
	MaxFrameSize int

	// Error code sent to the peer when the subscription is ended
	// before the stream finishes.
	CancelCode quic.StreamErrorCode

	// If positive, a read deadline is set before reading each frame,
	// and a frame that does not arrive in time is a terminal error.
	ReadTimeout time.Duration
}

// Source is a single-subscription [cancelable.Producer]
// of the values framed on a QUIC receive stream.
//
// A payload that fails to decode is delivered as a non-terminal error.
// A clean end of stream completes the subscription.
// Any other read failure is delivered as an error,
// followed by completion.
type Source[T any] struct {
	log *slog.Logger

	s      ReceiveStream
	decode func([]byte) (T, error)

	maxFrameSize int
	cancelCode   quic.StreamErrorCode
	readTimeout  time.Duration

	subscribed atomic.Bool
}

var _ cancelable.Producer[int] = (*Source[int])(nil)

// NewSource returns a Source for cfg.
// It panics if cfg.Stream or cfg.Decode is nil.
func NewSource[T any](log *slog.Logger, cfg SourceConfig[T]) *Source[T] {
	if cfg.Stream == nil {
		panic(errors.New("BUG: SourceConfig.Stream must not be nil"))
	}
	if cfg.Decode == nil {
		panic(errors.New("BUG: SourceConfig.Decode must not be nil"))
	}

	maxSize := cfg.MaxFrameSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	return &Source[T]{
		log: log,

		s:      cfg.Stream,
		decode: cfg.Decode,

		maxFrameSize: maxSize,
		cancelCode:   cfg.CancelCode,
		readTimeout:  cfg.ReadTimeout,
	}
}

func (s *Source[T]) Broadcast() bool { return false }

// Subscribe starts reading frames on a background goroutine.
// Only the first call succeeds;
// later calls return [ErrAlreadySubscribed].
//
// Unsubscribing cancels the read side of the stream
// and waits for the reading goroutine to stop.
func (s *Source[T]) Subscribe(
	_ context.Context, obs cancelable.Observer[T],
) (cancelable.Handle, error) {
	if !s.subscribed.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubscribed
	}

	stop := make(chan struct{})
	done := make(chan struct{})

	go s.run(obs, stop, done)

	var once sync.Once
	return cancelable.HandleFunc(func(ctx context.Context) error {
		once.Do(func() {
			close(stop)

			// Unblocks a pending Read.
			s.s.CancelRead(s.cancelCode)
		})

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}), nil
}

func (s *Source[T]) run(
	obs cancelable.Observer[T],
	stop <-chan struct{},
	done chan<- struct{},
) {
	defer close(done)

	var dec frameDecoder

	for {
		if s.readTimeout > 0 {
			if err := s.s.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				s.fail(obs, stop, fmt.Errorf("failed to set read deadline: %w", err))
				return
			}
		}

		payload, err := dec.ReadFrame(s.s, s.maxFrameSize)
		if err != nil {
			if isStopped(stop) {
				// The read failed because we canceled it.
				return
			}

			if errors.Is(err, io.EOF) {
				s.log.Debug("Stream finished")
				obs.OnDone()
				return
			}

			s.fail(obs, stop, err)
			return
		}

		v, err := s.decode(payload)
		if isStopped(stop) {
			return
		}
		if err != nil {
			s.log.Debug("Failed to decode frame", "err", err)
			obs.OnError(fmt.Errorf("failed to decode frame: %w", err))
			continue
		}

		obs.OnValue(v)
	}
}

// fail reports a terminal error to obs.
func (s *Source[T]) fail(
	obs cancelable.Observer[T],
	stop <-chan struct{},
	err error,
) {
	s.log.Info("Failed to read from stream", "err", err)

	// Stop reading on our side too,
	// so the peer does not keep sending into a dead stream.
	s.s.CancelRead(s.cancelCode)

	if isStopped(stop) {
		return
	}

	obs.OnError(err)
	obs.OnDone()
}

func isStopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
