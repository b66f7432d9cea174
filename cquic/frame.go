package cquic

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

const (
	rawEncoding    byte = 0
	snappyEncoding byte = 1
)

// Encoding byte plus big endian uint32 length.
const frameHeaderSize = 5

// DefaultMaxFrameSize is the largest decoded payload
// a [Source] accepts when its config does not set one.
const DefaultMaxFrameSize = 1 << 20

// FrameEncoder writes frames to be read by a [Source].
// The zero value is ready to use.
//
// A FrameEncoder reuses an internal buffer between calls,
// so it must not be used concurrently.
type FrameEncoder struct {
	// DisableCompression forces every frame to use the raw encoding.
	// Otherwise each payload is snappy-compressed
	// if, and only if, that makes it smaller.
	DisableCompression bool

	buf []byte
}

// AppendFrame appends the frame for payload to dst
// and returns the extended slice.
func (e *FrameEncoder) AppendFrame(dst, payload []byte) []byte {
	if uint64(len(payload)) > 1<<32-1 {
		panic(fmt.Errorf(
			"BUG: frame payload must fit in 32 bits (got length %d)", len(payload),
		))
	}

	start := len(dst)

	if !e.DisableCompression {
		maxEnc := snappy.MaxEncodedLen(len(payload))
		if maxEnc > 0 {
			// Reserve the header and the worst case encoding,
			// then trim to what snappy actually produced.
			dst = grow(dst, frameHeaderSize+maxEnc)
			enc := snappy.Encode(dst[start+frameHeaderSize:], payload)
			if len(enc) < len(payload) {
				dst[start] = snappyEncoding
				binary.BigEndian.PutUint32(dst[start+1:], uint32(len(enc)))
				return dst[:start+frameHeaderSize+len(enc)]
			}
			dst = dst[:start]
		}
	}

	dst = grow(dst, frameHeaderSize+len(payload))
	dst[start] = rawEncoding
	binary.BigEndian.PutUint32(dst[start+1:], uint32(len(payload)))
	copy(dst[start+frameHeaderSize:], payload)
	return dst
}

// WriteFrame writes the frame for payload to w in a single Write call.
func (e *FrameEncoder) WriteFrame(w io.Writer, payload []byte) error {
	e.buf = e.AppendFrame(e.buf[:0], payload)
	if _, err := w.Write(e.buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// grow extends dst by n bytes, reallocating if needed.
func grow(dst []byte, n int) []byte {
	if cap(dst)-len(dst) < n {
		out := make([]byte, len(dst), len(dst)+n)
		copy(out, dst)
		dst = out
	}
	return dst[:len(dst)+n]
}

// frameDecoder reads frames written by a [FrameEncoder].
type frameDecoder struct {
	header [frameHeaderSize]byte

	// Holds the payload as read from the stream.
	encBuf []byte

	// Holds snappy-decoded payloads.
	decBuf []byte
}

// ReadFrame reads the next frame from r and returns its decoded payload.
// The returned slice is only valid until the next call to ReadFrame.
//
// ReadFrame returns [io.EOF] only if r ends cleanly on a frame boundary.
func (d *frameDecoder) ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if _, err := io.ReadFull(r, d.header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	enc := d.header[0]
	sz := binary.BigEndian.Uint32(d.header[1:])
	if uint64(sz) > uint64(maxSize) {
		// The encoder only chooses snappy when it is smaller,
		// so this bound holds for both encodings.
		return nil, FrameTooLargeError{Size: int(sz), Max: maxSize}
	}

	if enc != rawEncoding && enc != snappyEncoding {
		return nil, UnknownEncodingError{Encoding: enc}
	}

	if cap(d.encBuf) < int(sz) {
		d.encBuf = make([]byte, sz)
	} else {
		d.encBuf = d.encBuf[:sz]
	}

	if _, err := io.ReadFull(r, d.encBuf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}

	if enc == rawEncoding {
		return d.encBuf, nil
	}

	decSz, err := snappy.DecodedLen(d.encBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate snappy-decoded frame length: %w", err)
	}
	if decSz > maxSize {
		return nil, FrameTooLargeError{Size: decSz, Max: maxSize}
	}

	// snappy.Decode sizes decBuf as needed.
	db, err := snappy.Decode(d.decBuf[:cap(d.decBuf)], d.encBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snappy frame: %w", err)
	}

	d.decBuf = db

	return d.decBuf, nil
}
