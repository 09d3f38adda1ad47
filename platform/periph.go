package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"lautenbacher.net/wifinode/config"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PeriphLink drives the module through Linux spidev with 16 bit words.
// Chip select and reset are active low GPIO outputs, readiness is an
// input pulled down so a missing module reads as not ready.
type PeriphLink struct {
	mu      sync.Mutex
	spiPort spi.PortCloser
	spiConn spi.Conn
	ready   gpio.PinIO
	nss     gpio.PinIO
	reset   gpio.PinIO
}

// OpenPeriph initialises periph.io and claims the bus and the pins.
func OpenPeriph(hw config.HardwareConfig) (*PeriphLink, error) {
	slog.Info("Initialise GPIO and Spi...")
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init periph: %w", err)
	}

	l := &PeriphLink{}
	var err error
	l.spiPort, err = spireg.Open(hw.SPIDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to open spi: %w", err)
	}

	l.spiConn, err = l.spiPort.Connect(physic.Frequency(hw.SPIFrequency)*physic.Hertz, spi.Mode0, 16)
	if err != nil {
		l.spiPort.Close()
		return nil, fmt.Errorf("failed to connect to spi device: %w", err)
	}

	if l.ready, err = pin(hw.ReadyGPIO); err == nil {
		err = l.ready.In(gpio.PullDown, gpio.NoEdge)
	}
	if err == nil {
		if l.nss, err = pin(hw.SelectGPIO); err == nil {
			err = l.nss.Out(gpio.High)
		}
	}
	if err == nil {
		if l.reset, err = pin(hw.ResetGPIO); err == nil {
			err = l.reset.Out(gpio.High)
		}
	}
	if err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func pin(n int) (gpio.PinIO, error) {
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
	if p == nil {
		return nil, fmt.Errorf("failed to find pin %d", n)
	}
	return p, nil
}

// Tx implements wire.Bus.
func (l *PeriphLink) Tx(w, r []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spiConn.Tx(w, r)
}

// Ready implements wire.Pins.
func (l *PeriphLink) Ready() bool {
	return l.ready.Read() == gpio.High
}

// Select implements wire.Pins.
func (l *PeriphLink) Select(active bool) error {
	return l.nss.Out(level(!active))
}

// Reset implements wire.Pins.
func (l *PeriphLink) Reset(active bool) error {
	return l.reset.Out(level(!active))
}

func level(high bool) gpio.Level {
	if high {
		return gpio.High
	}
	return gpio.Low
}

// Close releases the bus and the pins.
func (l *PeriphLink) Close() error {
	var errs []error
	if l.spiPort != nil {
		errs = append(errs, l.spiPort.Close())
		l.spiPort = nil
	}
	for _, p := range []gpio.PinIO{l.ready, l.nss, l.reset} {
		if p != nil {
			errs = append(errs, p.Halt())
		}
	}
	return errors.Join(errs...)
}
