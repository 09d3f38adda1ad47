package at

import (
	"context"
	"fmt"
	"time"

	"lautenbacher.net/wifinode/codec"
	"lautenbacher.net/wifinode/wire"
)

// Kind tells a command exchange from a raw data exchange.
type Kind string

const (
	KindCommand Kind = "cmd"
	KindData    Kind = "data"
	KindBanner  Kind = "banner"
)

// Exchange describes one completed (or failed) handshake.
type Exchange struct {
	Kind     Kind
	Request  []byte
	Response string
	Elapsed  time.Duration
	Err      error
}

// Observer is told about every exchange. It runs on the caller's
// goroutine and must not call back into the engine.
type Observer func(Exchange)

// Engine runs command/response handshakes. It owns its transmit and
// receive frames; both are overwritten by every exchange. An Engine has a
// single owner and is not safe for concurrent use.
type Engine struct {
	link     *wire.Transport
	tx       *codec.Frame
	rx       *codec.Frame
	observer Observer
}

// NewEngine allocates the frames. Both sizes must be even.
func NewEngine(link *wire.Transport, txSize, rxSize int) (*Engine, error) {
	tx, err := codec.NewFrame(txSize)
	if err != nil {
		return nil, fmt.Errorf("transmit frame: %w", err)
	}
	rx, err := codec.NewFrame(rxSize)
	if err != nil {
		return nil, fmt.Errorf("receive frame: %w", err)
	}
	return &Engine{link: link, tx: tx, rx: rx}, nil
}

// Observe installs fn as the exchange observer. nil removes it.
func (e *Engine) Observe(fn Observer) {
	e.observer = fn
}

// Link returns the underlying transport.
func (e *Engine) Link() *wire.Transport { return e.link }

// SendCommand terminates cmd with a carriage return, pads it to whole
// words, sends it and returns the trimmed response.
func (e *Engine) SendCommand(ctx context.Context, cmd string) (string, error) {
	e.tx.Reset()
	if err := e.tx.AppendString(cmd + Terminator); err != nil {
		return "", fmt.Errorf("command %q: %w", cmd, err)
	}
	return e.roundTrip(ctx, KindCommand)
}

// SendData sends raw bytes, padded to whole words but otherwise untouched,
// and returns the trimmed response.
func (e *Engine) SendData(ctx context.Context, raw []byte) (string, error) {
	if err := e.tx.Load(raw); err != nil {
		return "", fmt.Errorf("data: %w", err)
	}
	return e.roundTrip(ctx, KindData)
}

// ReadBanner runs a receive only phase, used right after reset when the
// module speaks first.
func (e *Engine) ReadBanner(ctx context.Context) (string, error) {
	start := time.Now()
	resp, err := e.receive(ctx)
	e.notify(Exchange{Kind: KindBanner, Response: resp, Elapsed: time.Since(start), Err: err})
	return resp, err
}

func (e *Engine) roundTrip(ctx context.Context, kind Kind) (string, error) {
	start := time.Now()
	request := append([]byte(nil), e.tx.Bytes()...)

	resp, err := e.transmitThenReceive(ctx)
	e.notify(Exchange{Kind: kind, Request: request, Response: resp, Elapsed: time.Since(start), Err: err})
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", kind, request, err)
	}
	return resp, nil
}

func (e *Engine) transmitThenReceive(ctx context.Context) (string, error) {
	if err := e.tx.Pad(codec.TxPad); err != nil {
		return "", err
	}
	if err := e.link.Send(ctx, e.tx.Bytes()); err != nil {
		return "", err
	}
	return e.receive(ctx)
}

func (e *Engine) receive(ctx context.Context) (string, error) {
	n, err := e.link.Receive(ctx, e.rx.Raw())
	if err != nil {
		return "", err
	}
	e.rx.Filled(n, codec.RxPad)
	return e.rx.String(), nil
}

func (e *Engine) notify(x Exchange) {
	if e.observer != nil {
		e.observer(x)
	}
}
