package logging

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/wifinode/config"
)

// failingWriter is a helper for testing error propagation.
type failingWriter struct{}

func (fw *failingWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

type fakeUART struct {
	bytes.Buffer
	closed bool
}

func (u *fakeUART) Close() error {
	u.closed = true
	return nil
}

func TestMonitorMode(t *testing.T) {
	require.NoError(t, Init(true, config.LogConfig{Level: "DEBUG", Format: "text"}, config.SerialConfig{}))

	slog.Info("Initial log")

	var pane bytes.Buffer
	require.NoError(t, SetOutput(&pane))
	assert.Contains(t, pane.String(), "Initial log", "buffered lines are flushed")

	slog.Info("Live log")
	assert.Contains(t, pane.String(), "Live log")

	require.NoError(t, Close())
}

func TestMonitorMode_HeldLinesAreBounded(t *testing.T) {
	orig := maxHeld
	maxHeld = 256
	defer func() { maxHeld = orig }()

	require.NoError(t, Init(true, config.LogConfig{Level: "INFO", Format: "text"}, config.SerialConfig{}))
	for i := range 50 {
		slog.Info("Held", "n", i)
	}

	var pane bytes.Buffer
	require.NoError(t, SetOutput(&pane))
	require.NoError(t, Close())

	out := pane.String()
	assert.LessOrEqual(t, len(out), 256)
	assert.NotContains(t, out, "n=0\n")
	assert.Contains(t, out, "n=49\n", "the newest lines survive")
	assert.True(t, strings.HasPrefix(out, "time="), "only whole lines are kept")
}

func TestHeadlessMode_FileLogging(t *testing.T) {
	tempFile, err := os.CreateTemp("", "test.log")
	require.NoError(t, err)
	defer os.Remove(tempFile.Name())

	require.NoError(t, Init(false, config.LogConfig{Level: "INFO", Format: "json", File: tempFile.Name()}, config.SerialConfig{}))
	require.NoError(t, SetOutput(io.Discard))

	slog.Info("Node log", "key", "value")
	require.NoError(t, Close())

	content, err := os.ReadFile(tempFile.Name())
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"Node log"`)
	assert.Contains(t, string(content), `"key":"value"`)
}

func TestSerialConsole(t *testing.T) {
	uart := &fakeUART{}
	orig := openSerial
	openSerial = func(port string, baud int) (io.WriteCloser, error) {
		assert.Equal(t, "/dev/ttyUSB0", port)
		assert.Equal(t, 115200, baud)
		return uart, nil
	}
	defer func() { openSerial = orig }()

	require.NoError(t, Init(true, config.LogConfig{Level: "DEBUG"}, config.SerialConfig{Port: "/dev/ttyUSB0", Baud: 115200}))
	slog.Debug("Module answered", "cmd", "C0")
	require.NoError(t, Close())

	assert.Contains(t, uart.String(), "Module answered")
	assert.True(t, strings.HasSuffix(uart.String(), "\r\n"), "UART lines end in CRLF")
	assert.True(t, uart.closed)
}

func TestSerialConsole_OpenFails(t *testing.T) {
	orig := openSerial
	openSerial = func(string, int) (io.WriteCloser, error) { return nil, errors.New("no such port") }
	defer func() { openSerial = orig }()

	err := Init(false, config.LogConfig{}, config.SerialConfig{Port: "/dev/ttyS9", Baud: 9600})
	assert.ErrorContains(t, err, "/dev/ttyS9")
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init(true, config.LogConfig{Level: "WARN"}, config.SerialConfig{}))
	var pane bytes.Buffer
	require.NoError(t, SetOutput(&pane))

	slog.Info("hidden")
	SetLevel("DEBUG")
	assert.Equal(t, slog.LevelDebug, Level())
	slog.Debug("visible")

	assert.NotContains(t, pane.String(), "hidden")
	assert.Contains(t, pane.String(), "visible")
	require.NoError(t, Close())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestStderrFallback(t *testing.T) {
	require.NoError(t, Init(true, config.LogConfig{Level: "DEBUG", Format: "text"}, config.SerialConfig{}))

	slog.Info("Shutdown log")

	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	var wg sync.WaitGroup
	wg.Add(1)
	var capturedOutput string
	go func() {
		defer wg.Done()
		buf := make([]byte, 1024)
		n, _ := r.Read(buf)
		capturedOutput = string(buf[:n])
	}()

	require.NoError(t, Close())

	w.Close()
	wg.Wait()
	os.Stderr = oldStderr

	assert.Contains(t, capturedOutput, "Shutdown log")
}

func TestErrorPropagation(t *testing.T) {
	require.NoError(t, Init(false, config.LogConfig{Level: "INFO"}, config.SerialConfig{}))
	writer.live = &failingWriter{}

	_, err := writer.Write([]byte("This should fail\n"))
	assert.Error(t, err)
}
