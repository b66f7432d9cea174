package cquic

import (
	"errors"
	"fmt"
)

// ErrAlreadySubscribed is returned from [*Source.Subscribe]
// on every call after the first.
var ErrAlreadySubscribed = errors.New("quic source already subscribed")

// FrameTooLargeError is returned when a frame header
// declares a payload larger than the configured maximum.
type FrameTooLargeError struct {
	Size, Max int
}

func (e FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame size %d exceeds maximum %d", e.Size, e.Max)
}

// UnknownEncodingError is returned when a frame header
// has an unrecognized encoding byte.
type UnknownEncodingError struct {
	Encoding byte
}

func (e UnknownEncodingError) Error() string {
	return fmt.Sprintf("unknown frame encoding 0x%02x", e.Encoding)
}
