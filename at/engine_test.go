package at_test

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/wifinode/at"
	"lautenbacher.net/wifinode/codec"
	"lautenbacher.net/wifinode/sim"
	"lautenbacher.net/wifinode/wire"
)

func newEngine(t *testing.T, mod *sim.Module, rxSize int) *at.Engine {
	t.Helper()
	link := wire.NewTransport(mod, mod, wire.Options{
		Timeout:      100 * time.Millisecond,
		PollInterval: -1,
		ResetPulse:   time.Millisecond,
		BootDelay:    time.Millisecond,
	})
	e, err := at.NewEngine(link, 64, rxSize)
	require.NoError(t, err)
	return e
}

func TestSendCommand_PadsOddCommand(t *testing.T) {
	mod := sim.NewModule()
	e := newEngine(t, mod, 64)

	resp, err := e.SendCommand(context.Background(), at.Set(at.CodeSSID, "net"))

	require.NoError(t, err)
	assert.Equal(t, "\r\nOK\r\n> ", resp)
	require.Len(t, mod.Frames(), 1)
	assert.Equal(t, "C1=net\r\n", string(mod.Frames()[0]))
	assert.Equal(t, "net", mod.Setting(at.CodeSSID))
}

func TestSendCommand_EvenCommandIsNotPadded(t *testing.T) {
	mod := sim.NewModule()
	e := newEngine(t, mod, 64)

	_, err := e.SendCommand(context.Background(), at.Set(at.CodeSSID, "ne"))

	require.NoError(t, err)
	assert.Equal(t, "C1=ne\r", string(mod.Frames()[0]))
}

func TestSendCommand_FramesAreWordAligned(t *testing.T) {
	mod := sim.NewModule()
	e := newEngine(t, mod, 64)

	for _, cmd := range []string{at.CmdSoftReset, at.CmdVerboseOff, at.Set(at.CodeSecurity, 4), at.Set(at.CodeRemotePort, 6666)} {
		_, err := e.SendCommand(context.Background(), cmd)
		require.NoError(t, err, cmd)
	}
	for _, f := range mod.Frames() {
		assert.Zero(t, len(f)%codec.WordSize, "%q", f)
	}
	assert.Equal(t, []string{"Z0", "Z3=0", "C3=4", "P4=6666"}, mod.Commands())
}

func TestSendCommand_ErrorResponseIsReturned(t *testing.T) {
	mod := sim.NewModule()
	e := newEngine(t, mod, 64)

	resp, err := e.SendCommand(context.Background(), "XX=1")

	require.NoError(t, err, "an error marker is not a transport failure")
	assert.True(t, at.IsError(resp))

	err = at.CheckResponse("XX=1", resp)
	assert.ErrorIs(t, err, wire.ErrProtocol)
	assert.Equal(t, wire.StatusProtocolError, wire.StatusOf(err))
}

func TestSendCommand_StripsLeadingPadWords(t *testing.T) {
	mod := sim.NewModule(sim.WithLeadingPad(3))
	e := newEngine(t, mod, 64)

	resp, err := e.SendCommand(context.Background(), at.CmdSoftReset)

	require.NoError(t, err)
	assert.Equal(t, "\r\nOK\r\n> ", resp)
}

func TestSendCommand_OverflowIsReported(t *testing.T) {
	mod := sim.NewModule()
	e := newEngine(t, mod, 8)

	_, err := e.SendCommand(context.Background(), at.CmdSoftReset)

	assert.ErrorIs(t, err, wire.ErrOverflow)
	assert.Equal(t, wire.StatusOverflow, wire.StatusOf(err))

	mod.Script(at.CmdSoftReset, "OK")
	resp, err := e.SendCommand(context.Background(), at.CmdSoftReset)
	require.NoError(t, err, "the engine recovers on the next exchange")
	assert.Equal(t, "OK", resp)
}

func TestSendCommand_TooLongForFrame(t *testing.T) {
	mod := sim.NewModule()
	e := newEngine(t, mod, 64)

	_, err := e.SendCommand(context.Background(), at.Set(at.CodeSSID, string(make([]byte, 80))))

	assert.ErrorIs(t, err, codec.ErrCapacity)
	assert.Empty(t, mod.Frames(), "nothing reaches the wire")
}

func TestSendCommand_TimeoutWhileModuleHeldInReset(t *testing.T) {
	mod := sim.NewModule()
	e := newEngine(t, mod, 64)
	require.NoError(t, mod.Reset(true))

	_, err := e.SendCommand(context.Background(), at.CmdSoftReset)

	assert.ErrorIs(t, err, wire.ErrTimeout)
	assert.Empty(t, mod.Frames())
}

func TestSendData_RawBytesArePadded(t *testing.T) {
	mod := sim.NewModule()
	e := newEngine(t, mod, 64)

	raw := []byte(at.Set(at.CodeSendValue, 4) + at.Terminator)
	raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(21.5))

	_, err := e.SendData(context.Background(), raw)

	require.NoError(t, err)
	frame := mod.Frames()[0]
	assert.Len(t, frame, 10)
	assert.Equal(t, codec.TxPad, frame[9])
	assert.Equal(t, []float32{21.5}, mod.Values())
}

func TestReadBanner_AfterReset(t *testing.T) {
	mod := sim.NewModule()
	e := newEngine(t, mod, 64)
	require.NoError(t, e.Link().ResetModule(context.Background()))

	banner, err := e.ReadBanner(context.Background())

	require.NoError(t, err)
	assert.Equal(t, at.Banner, banner)
}

func TestObserver_SeesEveryExchange(t *testing.T) {
	mod := sim.NewModule()
	e := newEngine(t, mod, 64)

	var seen []at.Exchange
	e.Observe(func(x at.Exchange) { seen = append(seen, x) })

	_, _ = e.SendCommand(context.Background(), at.Set(at.CodeSSID, "net"))
	_, _ = e.SendCommand(context.Background(), "XX")

	require.Len(t, seen, 2)
	assert.Equal(t, at.KindCommand, seen[0].Kind)
	assert.Equal(t, "C1=net\r", string(seen[0].Request))
	assert.Equal(t, "\r\nOK\r\n> ", seen[0].Response)
	assert.NoError(t, seen[0].Err)
	assert.True(t, at.IsError(seen[1].Response))
}

func TestNewEngine_RejectsOddFrames(t *testing.T) {
	link := wire.NewTransport(sim.NewModule(), sim.NewModule(), wire.Options{})
	_, err := at.NewEngine(link, 63, 64)
	assert.ErrorIs(t, err, codec.ErrOddCapacity)
}

func TestSet(t *testing.T) {
	assert.Equal(t, "C1=net", at.Set(at.CodeSSID, "net"))
	assert.Equal(t, "P4=6666", at.Set(at.CodeRemotePort, 6666))
	assert.NoError(t, at.CheckResponse("Z0", "\r\nOK\r\n> "))
}
