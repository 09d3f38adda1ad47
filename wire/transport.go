package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

const WordSize = 2

// Options tune a Transport. Zero values are replaced by the defaults.
type Options struct {
	// Timeout bounds one wait for readiness when the context carries no
	// deadline of its own.
	Timeout time.Duration
	// PollInterval is the pause between two samples of the readiness
	// line. A negative value spins.
	PollInterval time.Duration
	// ResetPulse is how long the reset line is held.
	ResetPulse time.Duration
	// BootDelay is the wait after releasing reset.
	BootDelay time.Duration
	// Filler is clocked out while receiving.
	Filler byte
}

var DefaultOptions = Options{
	Timeout:      5 * time.Second,
	PollInterval: 100 * time.Microsecond,
	ResetPulse:   10 * time.Millisecond,
	BootDelay:    500 * time.Millisecond,
	Filler:       '\n',
}

// Transport is the readiness gated link. It is owned by exactly one
// caller at a time and is not safe for concurrent use; the protocol
// allows a single exchange in flight.
type Transport struct {
	bus  Bus
	pins Pins
	opts Options
}

// NewTransport binds a bus and its sideband lines.
func NewTransport(bus Bus, pins Pins, opts Options) *Transport {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultOptions.PollInterval
	}
	if opts.ResetPulse <= 0 {
		opts.ResetPulse = DefaultOptions.ResetPulse
	}
	if opts.BootDelay < 0 {
		opts.BootDelay = 0
	}
	if opts.Filler == 0 {
		opts.Filler = DefaultOptions.Filler
	}
	return &Transport{bus: bus, pins: pins, opts: opts}
}

// Timeout returns the per phase timeout applied to contexts without a
// deadline.
func (t *Transport) Timeout() time.Duration { return t.opts.Timeout }

// Ready samples the readiness line.
func (t *Transport) Ready() bool { return t.pins.Ready() }

// WaitReady blocks until readiness asserts. It fails with ErrTimeout when
// the context ends first.
func (t *Transport) WaitReady(ctx context.Context) error {
	ctx, cancel := t.deadline(ctx)
	defer cancel()

	for !t.pins.Ready() {
		if err := ctx.Err(); err != nil {
			return NewError("wait ready", StatusTimeout, err)
		}
		t.pause()
	}
	return nil
}

// Exchange runs one gated transfer phase. For Transmit all of buf is sent
// and the returned count is len(buf). For Receive buf is filled and the
// count of received bytes is returned.
func (t *Transport) Exchange(ctx context.Context, dir Direction, buf []byte) (int, error) {
	if dir == Transmit {
		if err := t.Send(ctx, buf); err != nil {
			return 0, err
		}
		return len(buf), nil
	}
	return t.Receive(ctx, buf)
}

// Send waits for readiness, then clocks out p under chip select.
func (t *Transport) Send(ctx context.Context, p []byte) error {
	if len(p)%WordSize != 0 {
		return fmt.Errorf("send %d bytes: %w", len(p), ErrUnaligned)
	}
	if err := t.WaitReady(ctx); err != nil {
		return err
	}
	return t.selected("transmit", func() error {
		if err := t.bus.Tx(p, nil); err != nil {
			return NewError("transmit", StatusBusError, err)
		}
		return nil
	})
}

// Receive waits for readiness, then reads words into buf while the module
// keeps readiness asserted. The last word of buf is never written so the
// payload can always be terminated. If readiness is still asserted once
// that limit is reached the response did not fit and ErrOverflow is
// returned; a truncated response is never reported as success.
func (t *Transport) Receive(ctx context.Context, buf []byte) (int, error) {
	if len(buf) < WordSize || len(buf)%WordSize != 0 {
		return 0, fmt.Errorf("receive into %d bytes: %w", len(buf), ErrUnaligned)
	}
	if err := t.WaitReady(ctx); err != nil {
		return 0, err
	}

	ctx, cancel := t.deadline(ctx)
	defer cancel()

	clear(buf)
	limit := len(buf) - WordSize
	filler := []byte{t.opts.Filler, t.opts.Filler}
	n := 0

	err := t.selected("receive", func() error {
		for t.pins.Ready() {
			if n+WordSize > limit {
				return NewError("receive", StatusOverflow, fmt.Errorf("response exceeds %d bytes", limit))
			}
			if err := ctx.Err(); err != nil {
				return NewError("receive", StatusTimeout, err)
			}
			if err := t.bus.Tx(filler, buf[n:n+WordSize]); err != nil {
				return NewError("receive", StatusBusError, err)
			}
			n += WordSize
		}
		return nil
	})
	return n, err
}

// ResetModule pulses the reset line and waits for the module to boot.
func (t *Transport) ResetModule(ctx context.Context) error {
	slog.Debug("Resetting companion module", "pulse", t.opts.ResetPulse, "boot", t.opts.BootDelay)
	if err := t.pins.Reset(true); err != nil {
		return NewError("reset", StatusBusError, err)
	}
	if err := sleep(ctx, t.opts.ResetPulse); err != nil {
		_ = t.pins.Reset(false)
		return NewError("reset", StatusTimeout, err)
	}
	if err := t.pins.Reset(false); err != nil {
		return NewError("reset", StatusBusError, err)
	}
	if err := sleep(ctx, t.opts.BootDelay); err != nil {
		return NewError("reset", StatusTimeout, err)
	}
	return nil
}

// selected runs fn with chip select asserted and always releases it.
func (t *Transport) selected(op string, fn func() error) error {
	if err := t.pins.Select(true); err != nil {
		return NewError(op, StatusBusError, err)
	}
	err := fn()
	if serr := t.pins.Select(false); serr != nil {
		return errors.Join(err, NewError(op, StatusBusError, serr))
	}
	return err
}

func (t *Transport) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.opts.Timeout)
}

func (t *Transport) pause() {
	if t.opts.PollInterval < 0 {
		runtime.Gosched()
		return
	}
	time.Sleep(t.opts.PollInterval)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
