// Package at holds the command vocabulary of the companion module and the
// engine that runs one command/response handshake over the SPI link.
package at

import (
	"fmt"
	"strings"

	"lautenbacher.net/wifinode/wire"
)

const (
	// Terminator ends every formatted command.
	Terminator = "\r"

	OK     = "OK"
	Error  = "ERROR"
	Prompt = "> "

	// Banner is what the module says right after reset, after trimming.
	Banner = "\r\n> "
)

// Module commands. Codes taking a value are formatted with Set.
const (
	CmdVerboseOff = "Z3=0"
	CmdSoftReset  = "Z0"

	CodeSSID       = "C1"
	CodePassphrase = "C2"
	CodeSecurity   = "C3"
	CodeDHCP       = "C4"
	CodeIP         = "C6"
	CodeMask       = "C7"
	CodeGateway    = "C8"
	CodeDNS        = "C9"
	CmdJoin        = "C0"

	CodeProtocol   = "P1"
	CodeRemoteIP   = "P3"
	CodeRemotePort = "P4"
	CodeClient     = "P6"

	CodeWriteSize = "S1"
	CmdSend       = "S0"
	CodeSendValue = "S3"
)

// Set formats a key=value command.
func Set(code string, value any) string {
	return fmt.Sprintf("%s=%v", code, value)
}

// IsError reports whether a response carries the error marker.
func IsError(resp string) bool {
	return strings.Contains(resp, Error)
}

// CheckResponse turns an error response into a protocol error.
func CheckResponse(cmd, resp string) error {
	if IsError(resp) {
		return wire.NewError(cmd, wire.StatusProtocolError, fmt.Errorf("module answered %q", strings.TrimSpace(resp)))
	}
	return nil
}
