package btree

import (
	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/tuple"
)

/*
B-tree page layout on top of the common page format

	block 0           metapage, magic/version/root right after the header
	other blocks      index tuples + a 16 byte opaque area at 'special'

Opaque area
┌──────────────────────────────────────────────────────────────┐
| prev (4 byte) | next (4 byte)                                |
| level (4 byte) | flags (2 byte) | reserved (2 byte)          |
└──────────────────────────────────────────────────────────────┘

prev/next of 0 mean no sibling, so next == 0 identifies the rightmost
page of its level and prev == 0 the leftmost.
*/
const (
	MetaPageBlock = uint32(0)

	Magic   = uint32(0x00B7EE01)
	Version = uint32(2)

	OpaqueSize = 16

	FlagLeaf     = uint16(0x0001)
	FlagRoot     = uint16(0x0002)
	FlagDeleted  = uint16(0x0004)
	FlagHalfDead = uint16(0x0008)
)

type Meta struct {
	Magic     uint32
	Version   uint32
	Root      uint32
	Level     uint32
	FastRoot  uint32
	FastLevel uint32
}

func ReadMeta(v *page.View) (*Meta, error) {
	if _, err := v.Slice(page.HeaderSize, 24); err != nil {
		return nil, err
	}

	m := &Meta{}
	m.Magic, _ = v.Uint32(page.HeaderSize)
	m.Version, _ = v.Uint32(page.HeaderSize + 4)
	m.Root, _ = v.Uint32(page.HeaderSize + 8)
	m.Level, _ = v.Uint32(page.HeaderSize + 12)
	m.FastRoot, _ = v.Uint32(page.HeaderSize + 16)
	m.FastLevel, _ = v.Uint32(page.HeaderSize + 20)
	return m, nil
}

type Opaque struct {
	Prev  uint32
	Next  uint32
	Level uint32
	Flags uint16
}

func ReadOpaque(v *page.View, h *page.Header) (*Opaque, error) {
	off := int(h.Special)
	if _, err := v.Slice(off, OpaqueSize); err != nil {
		return nil, err
	}

	o := &Opaque{}
	o.Prev, _ = v.Uint32(off)
	o.Next, _ = v.Uint32(off + 4)
	o.Level, _ = v.Uint32(off + 8)
	o.Flags, _ = v.Uint16(off + 12)
	return o, nil
}

func (o *Opaque) IsLeaf() bool {
	return o.Flags&FlagLeaf != 0
}

func (o *Opaque) IsDeleted() bool {
	return o.Flags&FlagDeleted != 0
}

func (o *Opaque) IsLeftmost() bool {
	return o.Prev == 0
}

func (o *Opaque) IsRightmost() bool {
	return o.Next == 0
}

// FirstDataKey is the 1-based item index of the first real data key. All
// pages except the rightmost of their level store the high key in item 1.
func (o *Opaque) FirstDataKey() int {
	if o.IsRightmost() {
		return 1
	}
	return 2
}

/*
Index tuple header, 8 byte

	| heap page (4 byte) | heap slot (2 byte, 1-based) | info (2 byte) |

info packs a has-nulls bit (top bit) with the tuple size in the low 13
bits. An optional null bitmap follows the header, attribute data starts
at the 8-aligned end of header plus bitmap.
*/
const (
	indexTupleHeaderSize = 8

	infoHasNulls = uint16(0x8000)
	infoSizeMask = uint16(0x1FFF)
)

type IndexTuple struct {
	HeapPage uint32
	HeapSlot uint16
	Info     uint16
}

func ReadIndexTuple(v *page.View, off int) (*IndexTuple, error) {
	if _, err := v.Slice(off, indexTupleHeaderSize); err != nil {
		return nil, err
	}

	t := &IndexTuple{}
	t.HeapPage, _ = v.Uint32(off)
	t.HeapSlot, _ = v.Uint16(off + 4)
	t.Info, _ = v.Uint16(off + 6)
	return t, nil
}

func (t *IndexTuple) HasNulls() bool {
	return t.Info&infoHasNulls != 0
}

// Size is the total tuple length recorded in the header, it has to match
// the line pointer length.
func (t *IndexTuple) Size() int {
	return int(t.Info & infoSizeMask)
}

// DataOffset is the attribute data start relative to the tuple start.
func (t *IndexTuple) DataOffset(natts int) int {
	off := indexTupleHeaderSize
	if t.HasNulls() {
		off += tuple.BitmapLength(natts)
	}
	return (off + 7) &^ 7
}

// NullBitmap returns the tuple's null bitmap, nil when absent or
// unreadable.
func (t *IndexTuple) NullBitmap(v *page.View, off int, natts int) tuple.NullBitmap {
	if !t.HasNulls() {
		return nil
	}
	bits, err := v.Slice(off+indexTupleHeaderSize, tuple.BitmapLength(natts))
	if err != nil {
		return nil
	}
	return tuple.NullBitmap(bits)
}
