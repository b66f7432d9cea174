// Package cquic adapts a QUIC receive stream
// into a single-subscription producer for the cancelable package.
//
// The stream carries a sequence of frames written by a [FrameEncoder].
// Each frame is a 1-byte encoding header, a 4-byte big endian length,
// and the payload, which is either raw or snappy-compressed.
// A [Source] reads frames, decodes each payload into a value,
// and delivers the values to its subscriber.
package cquic
