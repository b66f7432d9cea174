package cquic

import (
	"time"

	"github.com/quic-go/quic-go"
)

// ReceiveStream is the subset of a quic-go receive stream
// that a [Source] uses.
// Receive streams accepted from a quic-go connection satisfy it directly.
type ReceiveStream interface {
	Read([]byte) (int, error)
	CancelRead(quic.StreamErrorCode)

	SetReadDeadline(time.Time) error
}
