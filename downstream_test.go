package cancelable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcastDownstream_reusesLowestFreeID(t *testing.T) {
	t.Parallel()

	d := newBroadcastDownstream[int]()

	var ls []*listener[int]
	for range 10 {
		l, err := d.add()
		require.NoError(t, err)
		ls = append(ls, l)
	}
	for i, l := range ls {
		require.Equal(t, uint(i), l.id)
	}
	require.Equal(t, 10, d.len())

	require.True(t, d.remove(ls[3]))
	require.True(t, d.remove(ls[7]))
	require.False(t, d.remove(ls[3]))
	require.Equal(t, 8, d.len())

	l, err := d.add()
	require.NoError(t, err)
	require.Equal(t, uint(3), l.id)

	l, err = d.add()
	require.NoError(t, err)
	require.Equal(t, uint(7), l.id)

	l, err = d.add()
	require.NoError(t, err)
	require.Equal(t, uint(10), l.id)

	got := d.listeners()
	require.Len(t, got, 11)
	for i, l := range got {
		require.Equal(t, uint(i), l.id)
	}

	// A stale listener with a reused ID is not removed.
	require.False(t, d.remove(ls[3]))
	require.Equal(t, 11, d.len())
}

func TestSingleDownstream_admitsOneListenerEver(t *testing.T) {
	t.Parallel()

	d := new(singleDownstream[int])

	l, err := d.add()
	require.NoError(t, err)
	require.Equal(t, 1, d.len())
	require.Equal(t, []*listener[int]{l}, d.listeners())

	_, err = d.add()
	require.True(t, IsInvalidState(err))

	require.True(t, d.remove(l))
	require.Zero(t, d.len())
	require.Empty(t, d.listeners())

	_, err = d.add()
	require.True(t, IsInvalidState(err))
}
