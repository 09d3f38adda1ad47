package codec

import "fmt"

// Frame is a fixed capacity byte buffer for one command or one response.
// The capacity is always a whole number of words, and the content never
// grows past Cap()-1 so a terminator or a pad byte always fits.
//
// A Frame is reused across exchanges but its content is fully overwritten
// by each one; callers must copy anything they want to keep.
type Frame struct {
	buf []byte
	n   int
}

// NewFrame allocates a frame with the given capacity.
func NewFrame(capacity int) (*Frame, error) {
	if capacity < WordSize || capacity%WordSize != 0 {
		return nil, fmt.Errorf("%w: %d", ErrOddCapacity, capacity)
	}
	return &Frame{buf: make([]byte, capacity)}, nil
}

// Cap returns the fixed capacity.
func (f *Frame) Cap() int { return len(f.buf) }

// Len returns the content length.
func (f *Frame) Len() int { return f.n }

// Bytes returns the content. The slice aliases the frame.
func (f *Frame) Bytes() []byte { return f.buf[:f.n] }

// String returns a copy of the content.
func (f *Frame) String() string { return string(f.buf[:f.n]) }

// Reset zeroes the whole buffer.
func (f *Frame) Reset() {
	clear(f.buf)
	f.n = 0
}

// Append adds p to the content. The frame is left untouched if p does not
// fit.
func (f *Frame) Append(p []byte) error {
	if f.n+len(p) > len(f.buf)-1 {
		return fmt.Errorf("%w: %d+%d bytes in a %d byte frame", ErrCapacity, f.n, len(p), len(f.buf))
	}
	f.n += copy(f.buf[f.n:], p)
	return nil
}

// AppendString is Append for strings.
func (f *Frame) AppendString(s string) error {
	return f.Append([]byte(s))
}

// Pad extends the content to a whole number of words using pad.
func (f *Frame) Pad(pad byte) error {
	if f.n%WordSize == 0 {
		return nil
	}
	return f.Append([]byte{pad})
}

// Load replaces the content with p.
func (f *Frame) Load(p []byte) error {
	if len(p) > len(f.buf)-1 {
		return fmt.Errorf("%w: %d bytes in a %d byte frame", ErrCapacity, len(p), len(f.buf))
	}
	f.Reset()
	f.n = copy(f.buf, p)
	return nil
}

// Raw exposes the complete buffer for a receive. The caller reports how
// many bytes it filled with Filled.
func (f *Frame) Raw() []byte { return f.buf }

// Filled records n received bytes and trims the padding, leaving the clean
// payload as content.
func (f *Frame) Filled(n int, pad byte) {
	if n < len(f.buf) {
		clear(f.buf[n:])
	}
	f.n = Trim(f.buf, pad)
}
