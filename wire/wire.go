// Package wire drives the half duplex SPI link to the companion module.
//
// Every transfer is gated by the module's readiness line and bracketed by
// the chip select line. Data moves in 16 bit words; a response is read word
// by word for as long as the module keeps readiness asserted.
package wire

//go:generate mockgen -destination=wiremock/mock_wire.go -package=wiremock lautenbacher.net/wifinode/wire Bus,Pins

// Bus moves raw bytes over SPI. len(w) and len(r) are equal when both are
// non nil; either may be nil for a one way transfer.
type Bus interface {
	Tx(w, r []byte) error
}

// Pins are the sideband lines of the link.
type Pins interface {
	// Ready reports whether the module asserts its readiness line.
	Ready() bool
	// Select asserts (true) or releases (false) chip select.
	Select(active bool) error
	// Reset holds the module in reset while active is true.
	Reset(active bool) error
}

// Direction of one transfer phase.
type Direction int

const (
	Transmit Direction = iota
	Receive
)

func (d Direction) String() string {
	if d == Transmit {
		return "transmit"
	}
	return "receive"
}
