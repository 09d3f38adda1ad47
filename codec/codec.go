// Package codec converts between command payloads and the word aligned
// format spoken on the SPI link to the companion module.
//
// The link moves 16 bit words. Anything sent must therefore have an even
// byte count, and anything received arrives in whole words with idle words
// filled by a padding byte.
package codec

import "errors"

const (
	// WordSize is the number of bytes moved per bus transfer unit.
	WordSize = 2

	// TxPad fills the last word of an odd length transmission.
	TxPad byte = '\n'

	// RxPad is what the module clocks out while it has nothing to say.
	RxPad byte = 0x15
)

var (
	// ErrCapacity is returned when content does not fit a frame.
	ErrCapacity = errors.New("frame capacity exceeded")

	// ErrOddCapacity is returned when a frame is requested with a capacity
	// that is not a whole number of words.
	ErrOddCapacity = errors.New("frame capacity must be a positive multiple of the word size")
)

// PaddedLen returns the wire length of n content bytes.
func PaddedLen(n int) int {
	if n%WordSize != 0 {
		return n + 1
	}
	return n
}

// Pad returns p extended to a whole number of words. An odd length payload
// gets exactly one pad byte appended, an even length payload is returned
// as is. The input slice is never modified.
func Pad(p []byte, pad byte) []byte {
	out := make([]byte, len(p), PaddedLen(len(p)))
	copy(out, p)
	if len(p)%WordSize != 0 {
		out = append(out, pad)
	}
	return out
}

// Trim strips padding from a receive buffer in place and returns the length
// of the clean payload, which starts at buf[0].
//
// Everything from the first NUL on is treated as unused. Trailing pad bytes
// are replaced by NUL, leading pad bytes are removed by shifting the payload
// to the front. The byte after the payload (if any) is NUL, so Trim applied
// to its own output changes nothing.
func Trim(buf []byte, pad byte) int {
	end := len(buf)
	for i, b := range buf {
		if b == 0 {
			end = i
			break
		}
	}

	for end > 0 && buf[end-1] == pad {
		end--
		buf[end] = 0
	}

	start := 0
	for start < end && buf[start] == pad {
		start++
	}

	if start > 0 {
		n := copy(buf, buf[start:end])
		clear(buf[n:end])
		end = n
	}
	return end
}

// TrimString is Trim for callers holding a string.
func TrimString(s string, pad byte) string {
	buf := []byte(s)
	return string(buf[:Trim(buf, pad)])
}
