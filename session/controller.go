// Package session sequences the companion module through its lifecycle,
// from hardware reset to streaming data to a server.
package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/netip"
	"strconv"
	"strings"

	"github.com/looplab/fsm"
	"lautenbacher.net/wifinode/at"
	"lautenbacher.net/wifinode/wire"
)

// State of a session. Transitions only move forward.
type State string

const (
	Uninitialized State = "uninitialized"
	Reset         State = "reset"
	PoweredUp     State = "powered-up"
	Configured    State = "configured"
	Joined        State = "joined"
	Connected     State = "connected"
	Streaming     State = "streaming"
	Closed        State = "closed"
)

const (
	evReset      = "reset"
	evPowerUp    = "power-up"
	evConfigure  = "configure"
	evJoin       = "join"
	evConnect    = "connect"
	evStream     = "stream"
	evDisconnect = "disconnect"
)

// ErrState is returned when an operation is called out of order.
var ErrState = errors.New("operation not allowed in this session state")

// StateObserver is told about every state change.
type StateObserver func(from, to State)

// Controller drives one module through its session. It exclusively owns
// the engine and the handle; none of its methods may be called
// concurrently.
type Controller struct {
	engine   *at.Engine
	handle   Handle
	banner   string
	machine  *fsm.FSM
	observer StateObserver
}

// Option configures a Controller.
type Option func(*Controller)

// WithBanner overrides the expected power-up banner.
func WithBanner(banner string) Option {
	return func(c *Controller) { c.banner = banner }
}

// WithStateObserver installs fn to be called after each transition.
func WithStateObserver(fn StateObserver) Option {
	return func(c *Controller) { c.observer = fn }
}

// NewController binds an engine to a network configuration.
func NewController(engine *at.Engine, handle Handle, opts ...Option) *Controller {
	c := &Controller{engine: engine, handle: handle, banner: at.Banner}
	for _, o := range opts {
		o(c)
	}
	c.machine = fsm.NewFSM(
		string(Uninitialized),
		fsm.Events{
			{Name: evReset, Src: []string{string(Uninitialized)}, Dst: string(Reset)},
			{Name: evPowerUp, Src: []string{string(Reset)}, Dst: string(PoweredUp)},
			{Name: evConfigure, Src: []string{string(PoweredUp)}, Dst: string(Configured)},
			{Name: evJoin, Src: []string{string(Configured)}, Dst: string(Joined)},
			{Name: evConnect, Src: []string{string(Joined)}, Dst: string(Connected)},
			{Name: evStream, Src: []string{string(Connected)}, Dst: string(Streaming)},
			{Name: evDisconnect, Src: []string{string(Connected), string(Streaming)}, Dst: string(Closed)},
		},
		fsm.Callbacks{
			"enter_state": c.onEnterState,
		},
	)
	return c
}

func (c *Controller) onEnterState(_ context.Context, e *fsm.Event) {
	slog.Info("Session state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
	if c.observer != nil {
		c.observer(State(e.Src), State(e.Dst))
	}
}

// State returns the current session state.
func (c *Controller) State() State {
	return State(c.machine.Current())
}

// Handle returns a copy of the network configuration including what the
// session learned so far.
func (c *Controller) Handle() Handle {
	return c.handle
}

// Start runs the session up to Connected.
func (c *Controller) Start(ctx context.Context, remote netip.AddrPort) error {
	steps := []func(context.Context) error{
		c.PowerUp,
		c.Configure,
		c.Join,
		func(ctx context.Context) error { return c.Connect(ctx, remote) },
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// PowerUp pulses the hardware reset, waits for the module and checks its
// banner. A failed banner check leaves the session in Reset, from where
// PowerUp may be called again.
func (c *Controller) PowerUp(ctx context.Context) error {
	if c.State() != Reset {
		if err := c.require("power up", evReset); err != nil {
			return err
		}
	}

	if err := c.engine.Link().ResetModule(ctx); err != nil {
		return fmt.Errorf("power up: %w", err)
	}
	if c.State() == Uninitialized {
		if err := c.fire(ctx, evReset); err != nil {
			return err
		}
	}

	banner, err := c.engine.ReadBanner(ctx)
	if err != nil {
		return fmt.Errorf("power up: %w", err)
	}
	if banner != c.banner {
		return wire.NewError("power up", wire.StatusHandshakeMismatch,
			fmt.Errorf("banner %q, want %q", banner, c.banner))
	}
	return c.fire(ctx, evPowerUp)
}

// Configure puts the module into its baseline mode.
func (c *Controller) Configure(ctx context.Context) error {
	if err := c.require("configure", evConfigure); err != nil {
		return err
	}
	for _, cmd := range []string{at.CmdVerboseOff, at.CmdSoftReset} {
		if _, err := c.command(ctx, cmd); err != nil {
			return fmt.Errorf("configure: %w", err)
		}
	}
	return c.fire(ctx, evConfigure)
}

// Join sends the network configuration and joins the network. With DHCP
// the assigned address is parsed from the join response; otherwise the
// static address is taken as assigned.
func (c *Controller) Join(ctx context.Context) error {
	if err := c.require("join", evJoin); err != nil {
		return err
	}

	h := c.handle
	cmds := []string{
		at.Set(at.CodeSSID, h.SSID),
		at.Set(at.CodePassphrase, h.Passphrase),
		at.Set(at.CodeSecurity, int(h.Security)),
		at.Set(at.CodeDHCP, boolFlag(h.DHCP)),
	}
	if !h.DHCP {
		cmds = append(cmds,
			at.Set(at.CodeIP, h.IP),
			at.Set(at.CodeMask, h.Mask),
			at.Set(at.CodeGateway, h.Gateway),
			at.Set(at.CodeDNS, h.DNS),
		)
	}
	for _, cmd := range cmds {
		if _, err := c.command(ctx, cmd); err != nil {
			return fmt.Errorf("join: %w", err)
		}
	}

	resp, err := c.command(ctx, at.CmdJoin)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}

	assigned := h.IP
	if h.DHCP {
		if assigned, err = ParseAssignedIP(resp); err != nil {
			return fmt.Errorf("join: %w", err)
		}
	}
	c.handle.AssignedIP = assigned
	slog.Info("Joined network", "ssid", h.SSID, "ip", assigned, "dhcp", h.DHCP)
	return c.fire(ctx, evJoin)
}

// Connect opens a client socket to remote.
func (c *Controller) Connect(ctx context.Context, remote netip.AddrPort) error {
	if err := c.require("connect", evConnect); err != nil {
		return err
	}
	cmds := []string{
		at.Set(at.CodeProtocol, int(c.handle.Protocol)),
		at.Set(at.CodeRemoteIP, remote.Addr()),
		at.Set(at.CodeRemotePort, remote.Port()),
		at.Set(at.CodeClient, 1),
	}
	for _, cmd := range cmds {
		if _, err := c.command(ctx, cmd); err != nil {
			return fmt.Errorf("connect %s: %w", remote, err)
		}
	}
	c.handle.Remote = remote
	return c.fire(ctx, evConnect)
}

// SendString writes s to the open socket: a 4 byte big endian length
// header first, then the payload, each announced by its write size.
func (c *Controller) SendString(ctx context.Context, s string) error {
	if err := c.requireOpen("send"); err != nil {
		return err
	}

	header := []byte(at.CmdSend + at.Terminator)
	header = binary.BigEndian.AppendUint32(header, uint32(len(s)))
	header = append(header, 0)

	if _, err := c.command(ctx, at.Set(at.CodeWriteSize, 4)); err != nil {
		return fmt.Errorf("send header size: %w", err)
	}
	if _, err := c.data(ctx, header); err != nil {
		return fmt.Errorf("send header: %w", err)
	}
	if _, err := c.command(ctx, at.Set(at.CodeWriteSize, len(s))); err != nil {
		return fmt.Errorf("send size: %w", err)
	}
	if _, err := c.data(ctx, []byte(at.CmdSend+at.Terminator+s)); err != nil {
		return fmt.Errorf("send %q: %w", s, err)
	}
	return c.streaming(ctx)
}

// SendValue writes v as 4 raw little endian bytes.
func (c *Controller) SendValue(ctx context.Context, v float32) error {
	if err := c.requireOpen("send value"); err != nil {
		return err
	}
	raw := []byte(at.Set(at.CodeSendValue, 4) + at.Terminator)
	raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
	if _, err := c.data(ctx, raw); err != nil {
		return fmt.Errorf("send value %v: %w", v, err)
	}
	return c.streaming(ctx)
}

// Disconnect closes the socket. The session cannot be used afterwards.
func (c *Controller) Disconnect(ctx context.Context) error {
	if err := c.require("disconnect", evDisconnect); err != nil {
		return err
	}
	if _, err := c.command(ctx, at.Set(at.CodeClient, 0)); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return c.fire(ctx, evDisconnect)
}

// ParseAssignedIP extracts the address between the first and second comma
// of a join response.
func ParseAssignedIP(resp string) (netip.Addr, error) {
	_, rest, ok := strings.Cut(resp, ",")
	if !ok {
		return netip.Addr{}, wire.NewError("parse join response", wire.StatusProtocolError, fmt.Errorf("no comma in %q", resp))
	}
	field, _, ok := strings.Cut(rest, ",")
	if !ok {
		return netip.Addr{}, wire.NewError("parse join response", wire.StatusProtocolError, fmt.Errorf("one comma in %q", resp))
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(field))
	if err != nil {
		return netip.Addr{}, wire.NewError("parse join response", wire.StatusProtocolError, err)
	}
	return addr, nil
}

// Retryable reports whether err is worth another attempt. Only timeouts
// are; everything else points at configuration or hardware.
func Retryable(err error) bool {
	return err != nil && wire.StatusOf(err) == wire.StatusTimeout
}

func (c *Controller) command(ctx context.Context, cmd string) (string, error) {
	resp, err := c.engine.SendCommand(ctx, cmd)
	if err != nil {
		return "", err
	}
	slog.Debug("Module answered", "cmd", cmd, "response", strconv.Quote(resp))
	return resp, at.CheckResponse(cmd, resp)
}

func (c *Controller) data(ctx context.Context, raw []byte) (string, error) {
	resp, err := c.engine.SendData(ctx, raw)
	if err != nil {
		return "", err
	}
	return resp, at.CheckResponse("data", resp)
}

func (c *Controller) streaming(ctx context.Context) error {
	if c.State() == Streaming {
		return nil
	}
	return c.fire(ctx, evStream)
}

func (c *Controller) requireOpen(op string) error {
	if s := c.State(); s != Connected && s != Streaming {
		return fmt.Errorf("%w: %s in state %s", ErrState, op, s)
	}
	return nil
}

func (c *Controller) require(op, event string) error {
	if !c.machine.Can(event) {
		return fmt.Errorf("%w: %s in state %s", ErrState, op, c.State())
	}
	return nil
}

func (c *Controller) fire(ctx context.Context, event string) error {
	if err := c.machine.Event(ctx, event); err != nil {
		return fmt.Errorf("%w: %v", ErrState, err)
	}
	return nil
}
