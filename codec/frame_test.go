package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrame_RejectsOddCapacity(t *testing.T) {
	for _, c := range []int{-2, 0, 1, 7} {
		_, err := NewFrame(c)
		assert.ErrorIs(t, err, ErrOddCapacity, "capacity %d", c)
	}
	f, err := NewFrame(8)
	require.NoError(t, err)
	assert.Equal(t, 8, f.Cap())
	assert.Zero(t, f.Len())
}

func TestFrame_AppendBounds(t *testing.T) {
	f, err := NewFrame(8)
	require.NoError(t, err)

	require.NoError(t, f.AppendString("C1=net"))
	assert.ErrorIs(t, f.AppendString("xx"), ErrCapacity)
	assert.Equal(t, "C1=net", f.String(), "failed append must not change content")

	require.NoError(t, f.AppendString("\r"))
	assert.Equal(t, 7, f.Len())
	assert.ErrorIs(t, f.Pad(TxPad), ErrCapacity, "8 bytes exceed cap-1")
}

func TestFrame_Pad(t *testing.T) {
	f, err := NewFrame(16)
	require.NoError(t, err)

	require.NoError(t, f.AppendString("C1=net\r"))
	require.NoError(t, f.Pad(TxPad))
	assert.Equal(t, "C1=net\r\n", f.String())

	require.NoError(t, f.Pad(TxPad))
	assert.Equal(t, 8, f.Len(), "already aligned")
}

func TestFrame_Load(t *testing.T) {
	f, err := NewFrame(8)
	require.NoError(t, err)

	require.NoError(t, f.Load([]byte("S0\r")))
	assert.Equal(t, "S0\r", f.String())
	require.NoError(t, f.Load([]byte("Z0")))
	assert.Equal(t, "Z0", f.String())
	assert.Equal(t, []byte{'Z', '0', 0, 0, 0, 0, 0, 0}, f.Raw())
	assert.ErrorIs(t, f.Load(make([]byte, 8)), ErrCapacity)
}

func TestFrame_Filled(t *testing.T) {
	f, err := NewFrame(16)
	require.NoError(t, err)
	copy(f.Raw(), "stale stale stal")

	n := copy(f.Raw(), "\x15\x15\r\nOK\r\n")
	f.Filled(n, RxPad)

	assert.Equal(t, "\r\nOK\r\n", f.String())
	assert.Zero(t, f.Raw()[f.Len()])
}
