// Package sim provides in-process stand-ins for the hardware around the
// node: a companion WiFi module speaking the AT dialect over the simulated
// SPI link, and a set of drifting sensors.
package sim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"lautenbacher.net/wifinode/at"
	"lautenbacher.net/wifinode/codec"
)

const unknownCommand = "\r\nERROR: Unknown command\r\n> "

// Module simulates the companion module. It implements wire.Bus and
// wire.Pins. While chip select is released the module is ready, either to
// accept a command or because a response is waiting. While selected for a
// read it stays ready exactly as long as response words remain.
type Module struct {
	mu sync.Mutex

	ip         string
	leadingPad int

	resetting bool
	selected  bool
	reading   bool
	in        []byte
	out       []byte

	settings  map[string]string
	writeSize int
	joined    bool
	connected bool
	scripts   map[string][]string

	frames   [][]byte
	commands []string
	payloads [][]byte
	values   []float32
}

// Option configures a Module.
type Option func(*Module)

// WithIP sets the address handed out on a DHCP join.
func WithIP(ip string) Option {
	return func(m *Module) { m.ip = ip }
}

// WithLeadingPad prefixes every response with n pad words, as the module
// does when it is slow to fill its output FIFO.
func WithLeadingPad(n int) Option {
	return func(m *Module) { m.leadingPad = n }
}

// NewModule returns a powered, idle module.
func NewModule(opts ...Option) *Module {
	m := &Module{
		ip:       "192.168.1.50",
		settings: map[string]string{},
		scripts:  map[string][]string{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Script queues raw responses for a command code. Each one replaces the
// built-in answer once, in order; the command still takes effect.
func (m *Module) Script(code string, responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[code] = append(m.scripts[code], responses...)
}

// Ready implements wire.Pins.
func (m *Module) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetting {
		return false
	}
	if m.selected {
		return len(m.out) > 0
	}
	return true
}

// Select implements wire.Pins. Releasing select ends a transfer phase: a
// written frame is answered, an unread response remainder is dropped.
func (m *Module) Select(active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active {
		m.selected = true
		m.reading = false
		m.in = m.in[:0]
		return nil
	}
	m.selected = false
	switch {
	case m.reading:
		m.out = nil
	case len(m.in) > 0:
		m.handle(append([]byte(nil), m.in...))
	}
	m.in = m.in[:0]
	return nil
}

// Reset implements wire.Pins. Releasing reset boots the module, which
// then offers its banner.
func (m *Module) Reset(active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active {
		m.resetting = true
		m.out = nil
		m.joined, m.connected = false, false
		m.writeSize = 0
		clear(m.settings)
		return nil
	}
	if m.resetting {
		m.resetting = false
		m.respond(at.Banner)
	}
	return nil
}

// Tx implements wire.Bus.
func (m *Module) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.selected {
		return fmt.Errorf("transfer without chip select")
	}
	if r == nil {
		m.in = append(m.in, w...)
		return nil
	}
	m.reading = true
	n := copy(r, m.out)
	m.out = m.out[n:]
	for i := n; i < len(r); i++ {
		r[i] = codec.RxPad
	}
	return nil
}

// Frames returns every transmitted frame as it appeared on the wire.
func (m *Module) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	for i, f := range m.frames {
		out[i] = bytes.Clone(f)
	}
	return out
}

// Commands returns the text commands received, without terminator.
func (m *Module) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Payloads returns the data written to the open socket.
func (m *Module) Payloads() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.payloads))
	for i, p := range m.payloads {
		out[i] = bytes.Clone(p)
	}
	return out
}

// Values returns the binary float values written with S3.
func (m *Module) Values() []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float32(nil), m.values...)
}

// Connected reports whether a client socket is open.
func (m *Module) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Setting returns the last value stored for a code.
func (m *Module) Setting(code string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[code]
}

func (m *Module) handle(frame []byte) {
	m.frames = append(m.frames, frame)

	switch {
	case bytes.HasPrefix(frame, []byte(at.CmdSend+at.Terminator)):
		m.handleSend(frame[len(at.CmdSend+at.Terminator):])
		return
	case bytes.HasPrefix(frame, []byte(at.Set(at.CodeSendValue, 4)+at.Terminator)):
		m.handleValue(frame[len(at.Set(at.CodeSendValue, 4)+at.Terminator):])
		return
	}

	cmd, _, ok := strings.Cut(string(frame), at.Terminator)
	if !ok {
		slog.Debug("Simulated module got an unterminated frame", "frame", frame)
		m.respond(unknownCommand)
		return
	}
	m.commands = append(m.commands, cmd)
	code, value, _ := strings.Cut(cmd, "=")

	if resp, ok := m.scripted(code); ok {
		defer m.respond(resp)
	}

	switch code {
	case "Z3", at.CmdSoftReset:
		m.ok("")
	case at.CodeSSID, at.CodePassphrase, at.CodeSecurity, at.CodeDHCP,
		at.CodeIP, at.CodeMask, at.CodeGateway, at.CodeDNS,
		at.CodeProtocol, at.CodeRemoteIP, at.CodeRemotePort:
		m.settings[code] = value
		m.ok("")
	case at.CmdJoin:
		m.join()
	case at.CodeClient:
		m.client(value)
	case at.CodeWriteSize:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			m.fail("invalid size")
			return
		}
		m.writeSize = n
		m.ok("")
	default:
		m.respond(unknownCommand)
	}
}

func (m *Module) join() {
	ssid := m.settings[at.CodeSSID]
	if ssid == "" {
		m.fail("no SSID")
		return
	}
	ip := m.ip
	if m.settings[at.CodeDHCP] == "0" {
		ip = m.settings[at.CodeIP]
	}
	m.joined = true
	m.ok(fmt.Sprintf("[JOIN   ] %s,%s,0,0", ssid, ip))
}

func (m *Module) client(value string) {
	switch value {
	case "1":
		if !m.joined || m.settings[at.CodeRemoteIP] == "" || m.settings[at.CodeRemotePort] == "" {
			m.fail("connection refused")
			return
		}
		m.connected = true
		m.ok("")
	case "0":
		m.connected = false
		m.ok("")
	default:
		m.fail("invalid client mode")
	}
}

func (m *Module) handleSend(data []byte) {
	if m.writeSize > len(data) {
		m.fail("short write")
		return
	}
	if !m.connected {
		m.fail("not connected")
		return
	}
	payload := bytes.Clone(data[:m.writeSize])
	m.payloads = append(m.payloads, payload)
	m.ok(strconv.Itoa(len(payload)))
}

func (m *Module) handleValue(data []byte) {
	if len(data) < 4 {
		m.fail("short value")
		return
	}
	m.values = append(m.values, math.Float32frombits(binary.LittleEndian.Uint32(data)))
	m.ok("")
}

func (m *Module) scripted(code string) (string, bool) {
	queue := m.scripts[code]
	if len(queue) == 0 {
		return "", false
	}
	m.scripts[code] = queue[1:]
	return queue[0], true
}

func (m *Module) ok(body string) {
	if body == "" {
		m.respond("\r\n" + at.OK + "\r\n" + at.Prompt)
		return
	}
	m.respond("\r\n" + body + "\r\n" + at.OK + "\r\n" + at.Prompt)
}

func (m *Module) fail(reason string) {
	m.respond("\r\n" + at.Error + ": " + reason + "\r\n" + at.Prompt)
}

// respond queues a response as whole words, padded with RxPad.
func (m *Module) respond(s string) {
	out := bytes.Repeat([]byte{codec.RxPad}, m.leadingPad*codec.WordSize)
	out = append(out, codec.Pad([]byte(s), codec.RxPad)...)
	m.out = out
}
