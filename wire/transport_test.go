package wire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"lautenbacher.net/wifinode/wire/wiremock"
)

// fakeLink plays the module side: it is ready while it has bytes to clock
// out, and records the chip select sequence.
type fakeLink struct {
	rx          []byte
	alwaysReady bool
	neverReady  bool
	selects     []bool
	sent        [][]byte
	txErr       error
}

func (f *fakeLink) Ready() bool {
	if f.neverReady {
		return false
	}
	return f.alwaysReady || len(f.rx) > 0
}

func (f *fakeLink) Select(active bool) error {
	f.selects = append(f.selects, active)
	return nil
}

func (f *fakeLink) Reset(bool) error { return nil }

func (f *fakeLink) Tx(w, r []byte) error {
	if f.txErr != nil {
		return f.txErr
	}
	if r == nil {
		f.sent = append(f.sent, append([]byte(nil), w...))
		return nil
	}
	n := copy(r, f.rx)
	f.rx = f.rx[n:]
	for i := n; i < len(r); i++ {
		r[i] = 0x15
	}
	return nil
}

func newFakeTransport(f *fakeLink) *Transport {
	return NewTransport(f, f, Options{Timeout: 50 * time.Millisecond, PollInterval: time.Millisecond})
}

func TestSend_ExactWireSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := wiremock.NewMockBus(ctrl)
	pins := wiremock.NewMockPins(ctrl)

	gomock.InOrder(
		pins.EXPECT().Ready().Return(false),
		pins.EXPECT().Ready().Return(true),
		pins.EXPECT().Select(true).Return(nil),
		bus.EXPECT().Tx([]byte("C1=net\r\n"), gomock.Nil()).Return(nil),
		pins.EXPECT().Select(false).Return(nil),
	)

	tr := NewTransport(bus, pins, Options{PollInterval: -1})
	require.NoError(t, tr.Send(context.Background(), []byte("C1=net\r\n")))
}

func TestSend_RejectsUnaligned(t *testing.T) {
	f := &fakeLink{alwaysReady: true}
	err := newFakeTransport(f).Send(context.Background(), []byte("C1=net\r"))

	assert.ErrorIs(t, err, ErrUnaligned)
	assert.Empty(t, f.selects, "nothing may reach the bus")
}

func TestWaitReady_Timeout(t *testing.T) {
	f := &fakeLink{neverReady: true}
	tr := newFakeTransport(f)

	start := time.Now()
	err := tr.WaitReady(context.Background())

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StatusTimeout, StatusOf(err))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitReady_ContextDeadlineWins(t *testing.T) {
	f := &fakeLink{neverReady: true}
	tr := NewTransport(f, f, Options{Timeout: time.Hour, PollInterval: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, tr.WaitReady(ctx), ErrTimeout)
}

func TestSend_TimeoutNeverSelects(t *testing.T) {
	f := &fakeLink{neverReady: true}
	err := newFakeTransport(f).Send(context.Background(), []byte("Z0\r\n"))

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, f.selects)
}

func TestReceive_ReadsWhileReady(t *testing.T) {
	f := &fakeLink{rx: []byte("\r\nOK\r\n> ")}
	buf := make([]byte, 32)

	n, err := newFakeTransport(f).Receive(context.Background(), buf)

	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "\r\nOK\r\n> ", string(buf[:n]))
	assert.Equal(t, []bool{true, false}, f.selects)
}

func TestReceive_OddResponseEndsInPadWord(t *testing.T) {
	f := &fakeLink{rx: []byte("OK!")}
	buf := make([]byte, 8)

	n, err := newFakeTransport(f).Receive(context.Background(), buf)

	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{'O', 'K', '!', 0x15}, buf[:n])
}

func TestReceive_Overflow(t *testing.T) {
	f := &fakeLink{alwaysReady: true}
	buf := make([]byte, 8)

	n, err := newFakeTransport(f).Receive(context.Background(), buf)

	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, StatusOverflow, StatusOf(err))
	assert.Equal(t, 6, n, "all but the terminator word are filled")
	assert.Equal(t, []bool{true, false}, f.selects, "select must be released on failure")
}

func TestReceive_ExactFitIsNotOverflow(t *testing.T) {
	f := &fakeLink{rx: []byte("ABCDEF")}
	buf := make([]byte, 8)

	n, err := newFakeTransport(f).Receive(context.Background(), buf)

	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Zero(t, buf[6])
}

func TestReceive_RejectsOddBuffer(t *testing.T) {
	f := &fakeLink{rx: []byte("OK")}
	_, err := newFakeTransport(f).Receive(context.Background(), make([]byte, 7))
	assert.ErrorIs(t, err, ErrUnaligned)
}

func TestReceive_BusError(t *testing.T) {
	f := &fakeLink{rx: []byte("OK"), txErr: errors.New("spi gone")}
	_, err := newFakeTransport(f).Receive(context.Background(), make([]byte, 8))

	assert.ErrorIs(t, err, ErrBus)
	assert.Equal(t, StatusBusError, StatusOf(err))
	assert.Equal(t, []bool{true, false}, f.selects)
}

func TestExchange_Directions(t *testing.T) {
	f := &fakeLink{}
	tr := newFakeTransport(f)

	f.alwaysReady = true
	n, err := tr.Exchange(context.Background(), Transmit, []byte("Z0\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, [][]byte{[]byte("Z0\r\n")}, f.sent)

	f.alwaysReady = false
	f.rx = []byte("OK")
	buf := make([]byte, 8)
	n, err = tr.Exchange(context.Background(), Receive, buf)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(buf[:n]))
}

func TestResetModule_PulsesResetLine(t *testing.T) {
	ctrl := gomock.NewController(t)
	pins := wiremock.NewMockPins(ctrl)

	gomock.InOrder(
		pins.EXPECT().Reset(true).Return(nil),
		pins.EXPECT().Reset(false).Return(nil),
	)

	tr := NewTransport(wiremock.NewMockBus(ctrl), pins, Options{ResetPulse: time.Millisecond, BootDelay: time.Millisecond})
	require.NoError(t, tr.ResetModule(context.Background()))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusHandshakeMismatch, StatusOf(NewError("banner", StatusHandshakeMismatch, nil)))
	assert.Equal(t, StatusOverflow, StatusOf(errors.Join(errors.New("ctx"), ErrOverflow)))
	assert.Equal(t, StatusProtocolError, StatusOf(errors.New("something else")))
	assert.Equal(t, "overflow", StatusOverflow.String())
}
