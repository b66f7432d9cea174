package cquic_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/cancelable"
	"github.com/gordian-engine/cancelable/cquic"
	"github.com/gordian-engine/cancelable/cquic/cquictest"
	"github.com/gordian-engine/cancelable/internal/ctest"
	"github.com/stretchr/testify/require"
)

func TestSource_loopback(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pair := cquictest.NewUniStreamPair(t, ctx)

	payloads := [][]byte{
		[]byte("hello"),
		ctest.CompressibleDataForTest(t, 8*1024),
		ctest.RandomDataForTest(t, 8*1024),
	}

	var enc cquic.FrameEncoder
	// The peer only sees the stream once something is written.
	require.NoError(t, enc.WriteFrame(pair.Send, payloads[0]))

	recv := pair.Accept(t, ctx)

	src := cquic.NewSource(ctest.NewLogger(t), cquic.SourceConfig[[]byte]{
		Stream: recv,
		Decode: func(b []byte) ([]byte, error) {
			return append([]byte(nil), b...), nil
		},
	})

	p := cancelable.Wrap(ctest.NewLogger(t), src)
	sub, err := p.Attach(ctx)
	require.NoError(t, err)

	for _, pl := range payloads[1:] {
		require.NoError(t, enc.WriteFrame(pair.Send, pl))
	}
	require.NoError(t, pair.Send.Close())

	for _, want := range payloads {
		ev := ctest.ReceiveSoon(t, sub.Events())
		require.NoError(t, ev.Err)
		require.Equal(t, want, ev.Val)
	}
	ctest.ReceiveClosedSoon(t, sub.Events())
}

func TestSource_loopbackCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pair := cquictest.NewUniStreamPair(t, ctx)

	var enc cquic.FrameEncoder
	require.NoError(t, enc.WriteFrame(pair.Send, []byte("first")))

	src := cquic.NewSource(ctest.NewLogger(t), cquic.SourceConfig[string]{
		Stream:     pair.Accept(t, ctx),
		Decode:     func(b []byte) (string, error) { return string(b), nil },
		CancelCode: 3,
	})

	p := cancelable.Wrap(ctest.NewLogger(t), src)
	sub, err := p.Attach(ctx)
	require.NoError(t, err)

	require.Equal(t, "first", ctest.ReceiveSoon(t, sub.Events()).Val)

	// The stream is still open; cancellation must not wait for the peer.
	require.NoError(t, p.Cancel(ctx))
	ctest.ReceiveClosedSoon(t, sub.Events())
	ctest.ReceiveClosedSoon(t, p.Canceled())
}
