package session

import (
	"fmt"
	"net/netip"
	"strings"
)

// Security is the WiFi security mode, numbered as the module expects it.
type Security int

const (
	Open Security = iota
	WEP
	WPA
	WPA2
	Mixed
)

var securityNames = map[Security]string{
	Open:  "open",
	WEP:   "wep",
	WPA:   "wpa",
	WPA2:  "wpa2",
	Mixed: "mixed",
}

func (s Security) String() string {
	if n, ok := securityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("security(%d)", int(s))
}

// ParseSecurity accepts the names printed by Security.String.
func ParseSecurity(s string) (Security, error) {
	for k, v := range securityNames {
		if strings.EqualFold(s, v) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown security mode %q", s)
}

// Protocol is the socket protocol, numbered as the module expects it.
type Protocol int

const (
	TCP Protocol = iota
	UDP
)

func (p Protocol) String() string {
	switch p {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	}
	return fmt.Sprintf("protocol(%d)", int(p))
}

// ParseProtocol accepts "tcp" or "udp".
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return TCP, nil
	case "udp":
		return UDP, nil
	}
	return 0, fmt.Errorf("unknown protocol %q", s)
}

// Handle is the module's network configuration. The static addresses are
// only used when DHCP is off. AssignedIP and Remote are filled in by the
// controller as the session progresses.
type Handle struct {
	SSID       string
	Passphrase string
	Security   Security
	DHCP       bool

	IP      netip.Addr
	Mask    netip.Addr
	Gateway netip.Addr
	DNS     netip.Addr

	Protocol Protocol

	AssignedIP netip.Addr
	Remote     netip.AddrPort
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}
