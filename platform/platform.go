// Package platform opens the SPI link to the companion module on the
// selected backend: periph.io, go-rpio or the in-process simulation.
package platform

import (
	"fmt"
	"log/slog"
	"strings"

	"lautenbacher.net/wifinode/config"
	"lautenbacher.net/wifinode/sim"
	"lautenbacher.net/wifinode/wire"
)

// Link is an opened bus together with its sideband lines.
type Link interface {
	wire.Bus
	wire.Pins
	Close() error
}

// Open connects to the backend named in the hardware configuration.
func Open(hw config.HardwareConfig) (Link, error) {
	slog.Info("Opening module link", "backend", hw.Backend, "device", hw.SPIDevice, "frequency", hw.SPIFrequency)
	switch strings.ToLower(hw.Backend) {
	case config.BackendPeriph:
		l, err := OpenPeriph(hw)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.BackendRPIO:
		l, err := OpenRPIO(hw)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.BackendSim:
		return &simLink{Module: sim.NewModule()}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", hw.Backend)
	}
}

type simLink struct {
	*sim.Module
}

func (*simLink) Close() error { return nil }

// Simulation returns the simulated module behind a sim backend link.
func Simulation(l Link) (*sim.Module, bool) {
	s, ok := l.(*simLink)
	if !ok {
		return nil, false
	}
	return s.Module, true
}
