// Package logging sets up slog for the node. While the terminal monitor
// owns the screen, log lines are held back and flushed once it is gone.
// Every line is also copied to the optional log file and debug UART.
package logging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.bug.st/serial"
	"lautenbacher.net/wifinode/config"
)

// sink is a secondary destination that always receives every line.
type sink struct {
	name string
	w    io.WriteCloser
	crlf bool
}

func (s sink) write(p []byte) error {
	if s.crlf {
		p = bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	}
	if _, err := s.w.Write(p); err != nil {
		return fmt.Errorf("log %s: %w", s.name, err)
	}
	return nil
}

// teeWriter sends lines to a live writer, or holds them while the live
// writer is unavailable, and copies them to all sinks.
type teeWriter struct {
	mu      sync.Mutex
	held    bool
	pending bytes.Buffer
	live    io.Writer
	file    *os.File
	sinks   []sink
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	switch {
	case w.held:
		w.hold(p)
	case w.live != nil:
		if _, err := w.live.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range w.sinks {
		errs = append(errs, s.write(p))
	}
	return len(p), errors.Join(errs...)
}

// hold appends p to the held lines. Beyond maxHeld bytes the oldest whole
// lines are dropped.
func (w *teeWriter) hold(p []byte) {
	w.pending.Write(p)
	over := w.pending.Len() - maxHeld
	if over <= 0 {
		return
	}
	w.pending.Next(over)
	if i := bytes.IndexByte(w.pending.Bytes(), '\n'); i >= 0 {
		w.pending.Next(i + 1)
	}
}

var (
	writer = &teeWriter{}
	level  = new(slog.LevelVar)

	// maxHeld bounds the memory used while the monitor owns the screen.
	maxHeld = 1 << 20
)

// openSerial opens the debug console UART.
var openSerial = func(port string, baud int) (io.WriteCloser, error) {
	return serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// Init installs the default logger. With hold set, output stays in memory
// until SetOutput names a destination; otherwise it goes to stderr.
func Init(hold bool, lc config.LogConfig, sc config.SerialConfig) error {
	w := &teeWriter{held: hold}
	if !hold {
		w.live = os.Stderr
	}

	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		w.file = f
		w.sinks = append(w.sinks, sink{name: "file", w: f})
	}
	if sc.Port != "" {
		port, err := openSerial(sc.Port, sc.Baud)
		if err != nil {
			if w.file != nil {
				w.file.Close()
			}
			return fmt.Errorf("failed to open serial console %s: %w", sc.Port, err)
		}
		w.sinks = append(w.sinks, sink{name: "uart", w: port, crlf: true})
	}
	writer = w

	SetLevel(lc.Level)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if strings.EqualFold(lc.Format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetLevel changes the level of the running logger. Unknown names select
// INFO.
func SetLevel(name string) {
	level.Set(ParseLevel(name))
}

// Level returns the active level.
func Level() slog.Level {
	return level.Level()
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels.
func ParseLevel(name string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// SetOutput flushes held lines to out and logs live from then on.
func SetOutput(out io.Writer) error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if _, err := writer.pending.WriteTo(out); err != nil {
		return err
	}
	writer.live = out
	writer.held = false
	return nil
}

// Close closes the sinks. Held lines that no log file has seen are
// flushed to stderr.
func Close() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	var errs []error
	if writer.file == nil && writer.pending.Len() > 0 {
		if _, err := writer.pending.WriteTo(os.Stderr); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range writer.sinks {
		errs = append(errs, s.w.Close())
	}
	writer.sinks = nil
	writer.file = nil
	writer.pending.Reset()
	return errors.Join(errs...)
}
