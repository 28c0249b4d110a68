package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/zput/zput_reactor/net/protocol"
)

func TestEncodeLayout(t *testing.T) {
	p := Encode(0x0403, []byte("hi"))
	want := []byte{1, 0, 0x04, 0x03, 0, 0, 0, 10, 'h', 'i'}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("encoded bytes (-want +got):\n%s", diff)
	}

	h, err := Decode(p)
	require.NoError(t, err)
	require.Equal(t, Header{Version: 1, Type: 0x0403, Length: 10}, h)

	require.NoError(t, SetType(p, 2))
	h, _ = Decode(p)
	require.EqualValues(t, 2, h.Type)

	_, err = Decode(p[:7])
	require.ErrorIs(t, err, protocol.ErrBadHeader)
}

func TestMessageSize(t *testing.T) {
	c := New(64)
	require.Equal(t, HeaderSize, c.HeaderSize())

	n, err := c.MessageSize(Encode(1, make([]byte, 20)))
	require.NoError(t, err)
	require.Equal(t, 28, n)

	bad := Encode(1, nil)
	bad[0] = 2
	_, err = c.MessageSize(bad)
	require.ErrorIs(t, err, protocol.ErrBadHeader)

	short := Encode(1, nil)
	Header{Version: 1, Length: 4}.Put(short)
	_, err = c.MessageSize(short)
	require.ErrorIs(t, err, protocol.ErrBadHeader)

	_, err = c.MessageSize(Encode(1, make([]byte, 100)))
	require.ErrorIs(t, err, protocol.ErrMessageTooLarge)

	n, err = New(0).MessageSize(Encode(1, make([]byte, 100)))
	require.NoError(t, err)
	require.Equal(t, 108, n)
}

func TestNewMessage(t *testing.T) {
	b := NewMessage(7, []byte("payload"))
	require.Equal(t, 15, b.Len())
	require.Zero(t, b.Cursor())
	require.False(t, b.Queued())
}
