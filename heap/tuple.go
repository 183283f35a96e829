package heap

import (
	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/tuple"
)

/*
Heap tuple header
┌──────────────────────────────────────────────────────────────┐
| xmin (4 byte) | xmax (4 byte)                                |
| infomask (2 byte) | natts (2 byte) | hoff (1 byte)           |
| null bitmap (ceil(natts/8) byte, only with InfoHasNulls)     |
|─────────────────────────────────────────────────────────────-|
| attribute data starting at hoff                              |
└──────────────────────────────────────────────────────────────┘
*/
const (
	tupleHeaderSize = 13

	InfoHasNulls          = uint16(0x0001)
	InfoChainContinuation = uint16(0x0002)
	InfoUpdated           = uint16(0x0004)
)

type TupleHeader struct {
	Xmin     uint32
	Xmax     uint32
	Infomask uint16
	Natts    uint16
	Hoff     uint8
}

func ReadTupleHeader(v *page.View, off int) (*TupleHeader, error) {
	if _, err := v.Slice(off, tupleHeaderSize); err != nil {
		return nil, err
	}

	t := &TupleHeader{}
	t.Xmin, _ = v.Uint32(off)
	t.Xmax, _ = v.Uint32(off + 4)
	t.Infomask, _ = v.Uint16(off + 8)
	t.Natts, _ = v.Uint16(off + 10)
	hoff, _ := v.Byte(off + 12)
	t.Hoff = hoff
	return t, nil
}

func (t *TupleHeader) HasNulls() bool {
	return t.Infomask&InfoHasNulls != 0
}

// IsChainContinuation marks a tuple reachable only through a redirect
// chain, never referenced from an index on its own.
func (t *TupleHeader) IsChainContinuation() bool {
	return t.Infomask&InfoChainContinuation != 0
}

// NullBitmap returns the tuple's null bitmap, or nil when the header
// does not claim one or it does not fit the page.
func (t *TupleHeader) NullBitmap(v *page.View, off int) tuple.NullBitmap {
	if !t.HasNulls() {
		return nil
	}
	bits, err := v.Slice(off+tupleHeaderSize, tuple.BitmapLength(int(t.Natts)))
	if err != nil {
		return nil
	}
	return tuple.NullBitmap(bits)
}
