package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"lautenbacher.net/wifinode/config"
)

// RPIOLink drives the module through the BCM2835 SPI0 block via
// /dev/gpiomem. The controller only moves bytes, so every 16 bit word is
// byte swapped on the way out and back to match a 16 bit word transfer.
type RPIOLink struct {
	mu    sync.Mutex
	buf   []byte
	ready rpio.Pin
	nss   rpio.Pin
	reset rpio.Pin
}

// OpenRPIO maps the GPIO registers and starts SPI0.
func OpenRPIO(hw config.HardwareConfig) (*RPIOLink, error) {
	slog.Info("Initialise GPIO and Spi...")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return nil, fmt.Errorf("failed to begin spi: %w", err)
	}
	rpio.SpiSpeed(hw.SPIFrequency)

	l := &RPIOLink{
		ready: rpio.Pin(hw.ReadyGPIO),
		nss:   rpio.Pin(hw.SelectGPIO),
		reset: rpio.Pin(hw.ResetGPIO),
	}
	l.ready.Input()
	l.ready.PullDown()
	l.nss.Output()
	l.nss.High()
	l.reset.Output()
	l.reset.High()
	return l, nil
}

// Tx implements wire.Bus.
func (l *RPIOLink) Tx(w, r []byte) error {
	if len(w)%2 != 0 {
		return fmt.Errorf("rpio transfer of %d bytes is not word aligned", len(w))
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = append(l.buf[:0], w...)
	swapWords(l.buf)
	rpio.SpiExchange(l.buf)
	if r != nil {
		swapWords(l.buf)
		copy(r, l.buf)
	}
	return nil
}

// Ready implements wire.Pins.
func (l *RPIOLink) Ready() bool {
	return l.ready.Read() == rpio.High
}

// Select implements wire.Pins.
func (l *RPIOLink) Select(active bool) error {
	drive(l.nss, !active)
	return nil
}

// Reset implements wire.Pins.
func (l *RPIOLink) Reset(active bool) error {
	drive(l.reset, !active)
	return nil
}

func drive(p rpio.Pin, high bool) {
	if high {
		p.High()
	} else {
		p.Low()
	}
}

// Close stops SPI0 and unmaps the registers.
func (l *RPIOLink) Close() error {
	rpio.SpiEnd(rpio.Spi0)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("failed to close rpio: %w", err)
	}
	return nil
}

// swapWords exchanges the two bytes of every 16 bit word in place.
func swapWords(p []byte) {
	for i := 0; i+1 < len(p); i += 2 {
		p[i], p[i+1] = p[i+1], p[i]
	}
}
