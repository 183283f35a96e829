package page

import (
	"encoding/binary"
	"fmt"
)

var ErrOutOfBounds = fmt.Errorf("read beyond page bounds")

// View is a bounds-checked reader over one raw page buffer. Page content
// is adversarial by default (that is the whole point of the checker), so
// every offset computed from page data goes through a View instead of
// straight slice indexing.
type View struct {
	buf []byte
}

func NewView(buf []byte) *View {
	return &View{buf: buf}
}

func (v *View) Len() int {
	return len(v.buf)
}

func (v *View) Byte(off int) (byte, error) {
	if off < 0 || off >= len(v.buf) {
		return 0, ErrOutOfBounds
	}
	return v.buf[off], nil
}

func (v *View) Uint16(off int) (uint16, error) {
	if off < 0 || off+2 > len(v.buf) {
		return 0, ErrOutOfBounds
	}
	return binary.BigEndian.Uint16(v.buf[off:]), nil
}

func (v *View) Uint32(off int) (uint32, error) {
	if off < 0 || off+4 > len(v.buf) {
		return 0, ErrOutOfBounds
	}
	return binary.BigEndian.Uint32(v.buf[off:]), nil
}

func (v *View) Int32(off int) (int32, error) {
	u, err := v.Uint32(off)
	return int32(u), err
}

func (v *View) Uint64(off int) (uint64, error) {
	if off < 0 || off+8 > len(v.buf) {
		return 0, ErrOutOfBounds
	}
	return binary.BigEndian.Uint64(v.buf[off:]), nil
}

// Slice returns n bytes starting at off, without copying.
func (v *View) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(v.buf) {
		return nil, ErrOutOfBounds
	}
	return v.buf[off : off+n], nil
}
