// Package cquictest contains test helpers for the cquic package.
package cquictest

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gordian-engine/cancelable/cquic"
	"github.com/quic-go/quic-go"
)

// ErrReadCanceled is returned from [*PipeReceiveStream.Read]
// after CancelRead has been called.
var ErrReadCanceled = errors.New("read canceled")

// PipeReceiveStream is an in-memory [cquic.ReceiveStream].
// Bytes written to the paired [io.PipeWriter] are read from the stream.
type PipeReceiveStream struct {
	r *io.PipeReader

	mu         sync.Mutex
	cancelCode *quic.StreamErrorCode
	deadlines  int
}

var _ cquic.ReceiveStream = (*PipeReceiveStream)(nil)

// NewPipeReceiveStream returns a receive stream
// and the writer that feeds it.
// Closing the writer ends the stream cleanly.
func NewPipeReceiveStream() (*PipeReceiveStream, *io.PipeWriter) {
	r, w := io.Pipe()
	return &PipeReceiveStream{r: r}, w
}

func (s *PipeReceiveStream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// CancelRead records code and fails any pending or future Read.
// Only the first code is kept.
func (s *PipeReceiveStream) CancelRead(code quic.StreamErrorCode) {
	s.mu.Lock()
	if s.cancelCode == nil {
		s.cancelCode = &code
	}
	s.mu.Unlock()

	_ = s.r.CloseWithError(ErrReadCanceled)
}

// SetReadDeadline only counts calls;
// the pipe has no deadline support.
func (s *PipeReceiveStream) SetReadDeadline(time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines++
	return nil
}

// CanceledWith reports the code passed to the first CancelRead call,
// and whether CancelRead has been called at all.
func (s *PipeReceiveStream) CanceledWith() (quic.StreamErrorCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelCode == nil {
		return 0, false
	}
	return *s.cancelCode, true
}

// DeadlineCalls returns the number of SetReadDeadline calls.
func (s *PipeReceiveStream) DeadlineCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadlines
}
