package cquictest

import (
	"io"
	"testing"

	"github.com/gordian-engine/cancelable/cquic"
)

// PipeWriterFramer writes string payloads as frames
// to the writer side of a [PipeReceiveStream].
type PipeWriterFramer struct {
	w   *io.PipeWriter
	enc cquic.FrameEncoder
}

// NewPipeWriterFramer returns a PipeWriterFramer writing to w.
func NewPipeWriterFramer(w *io.PipeWriter) *PipeWriterFramer {
	return &PipeWriterFramer{w: w}
}

// WriteFrame writes payload as a single frame.
// The write blocks until the stream has read the whole frame.
// Errors are reported with t.Error,
// so WriteFrame may be called from a goroutine other than the test's.
func (f *PipeWriterFramer) WriteFrame(t *testing.T, payload string) {
	if err := f.enc.WriteFrame(f.w, []byte(payload)); err != nil {
		t.Errorf("failed to write frame %q: %v", payload, err)
	}
}

// Close ends the stream cleanly.
func (f *PipeWriterFramer) Close(t *testing.T) {
	if err := f.w.Close(); err != nil {
		t.Errorf("failed to close pipe writer: %v", err)
	}
}
