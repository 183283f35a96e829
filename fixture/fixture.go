package fixture

import (
	"encoding/binary"

	"github.com/tvondra/pg-check/btree"
	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/tuple"
)

// Builder assembles well formed pages byte by byte. Tests build a valid
// page first and then break the one field they are about, corrupt
// relation files for manual runs are generated the same way.
type Builder struct {
	pageSize    int
	version     int
	flags       uint16
	id          uint32
	special     int
	upper       int
	lps         []page.LinePointer
	tuples      map[int][]byte
	specialData []byte
}

func NewBuilder(pageSize uint32) *Builder {
	ps := int(pageSize)
	return &Builder{
		pageSize: ps,
		version:  page.CurrentLayoutVersion,
		special:  ps,
		upper:    ps,
		tuples:   map[int][]byte{},
	}
}

// WithSpecial reserves a special area at the page end. Must be called
// before any tuple is added.
func (b *Builder) WithSpecial(data []byte) *Builder {
	b.special = b.pageSize - len(data)
	b.upper = b.special
	b.specialData = data
	return b
}

func (b *Builder) WithVersion(v int) *Builder {
	b.version = v
	return b
}

func (b *Builder) WithFlags(f uint16) *Builder {
	b.flags = f
	return b
}

func (b *Builder) WithID(id uint32) *Builder {
	b.id = id
	return b
}

// AddTuple places data below the current upper boundary, 8-aligned the
// way a real writer places tuples, and appends a line pointer for it.
// Returns the 1-based item index.
func (b *Builder) AddTuple(status page.ItemStatus, data []byte) int {
	b.upper = (b.upper - len(data)) &^ 7
	b.lps = append(b.lps, page.LinePointer{
		Offset: uint16(b.upper),
		Status: status,
		Length: uint16(len(data)),
	})
	b.tuples[len(b.lps)-1] = data
	return len(b.lps)
}

// AddItem appends a raw line pointer without storage (unused, redirect,
// dead without storage). Returns the 1-based item index.
func (b *Builder) AddItem(lp page.LinePointer) int {
	b.lps = append(b.lps, lp)
	return len(b.lps)
}

// SetItem overwrites the line pointer of an existing item, keeping any
// stored tuple bytes in place.
func (b *Builder) SetItem(item int, lp page.LinePointer) {
	b.lps[item-1] = lp
}

// Bytes renders the page.
func (b *Builder) Bytes() []byte {
	buf := make([]byte, b.pageSize)

	lower := page.HeaderSize + len(b.lps)*page.LinePointerSize
	binary.BigEndian.PutUint32(buf[8:], b.id)
	binary.BigEndian.PutUint16(buf[12:], b.flags)
	binary.BigEndian.PutUint16(buf[14:], uint16(lower))
	binary.BigEndian.PutUint16(buf[16:], uint16(b.upper))
	binary.BigEndian.PutUint16(buf[18:], uint16(b.special))
	binary.BigEndian.PutUint16(buf[20:], uint16(b.pageSize)|uint16(b.version))

	for i, lp := range b.lps {
		binary.BigEndian.PutUint32(buf[page.HeaderSize+i*page.LinePointerSize:], page.EncodeLinePointer(lp))
	}
	for i, data := range b.tuples {
		copy(buf[b.lps[i].Offset:], data)
	}
	copy(buf[b.special:], b.specialData)

	return buf
}

// ChecksummedBytes renders the page with a valid CRC32 in the id field.
func (b *Builder) ChecksummedBytes() []byte {
	buf := b.Bytes()
	sum := page.ComputeChecksum(page.NewView(buf))
	binary.BigEndian.PutUint32(buf[8:], sum)
	return buf
}

// HeapTuple assembles a heap tuple: header, optional null bitmap,
// attribute data at the 8-aligned data offset.
func HeapTuple(infomask uint16, natts int, nullBitmap []byte, attrData []byte) []byte {
	hoff := (13 + len(nullBitmap) + 7) &^ 7
	buf := make([]byte, hoff+len(attrData))
	binary.BigEndian.PutUint16(buf[8:], infomask)
	binary.BigEndian.PutUint16(buf[10:], uint16(natts))
	buf[12] = byte(hoff)
	copy(buf[13:], nullBitmap)
	copy(buf[hoff:], attrData)
	return buf
}

// IndexTuple assembles an index tuple holding the given heap reference.
func IndexTuple(heapPage uint32, heapSlot uint16, natts int, nullBitmap []byte, attrData []byte) []byte {
	dataOff := 8
	info := uint16(0)
	if nullBitmap != nil {
		dataOff += len(nullBitmap)
		info |= 0x8000
	}
	dataOff = (dataOff + 7) &^ 7

	// index tuples end on an 8 byte boundary
	buf := make([]byte, (dataOff+len(attrData)+7)&^7)
	info |= uint16(len(buf)) & 0x1FFF

	binary.BigEndian.PutUint32(buf[0:], heapPage)
	binary.BigEndian.PutUint16(buf[4:], heapSlot)
	binary.BigEndian.PutUint16(buf[6:], info)
	copy(buf[8:], nullBitmap)
	copy(buf[dataOff:], attrData)
	return buf
}

// Opaque renders a B-tree special area.
func Opaque(prev, next, level uint32, flags uint16) []byte {
	buf := make([]byte, btree.OpaqueSize)
	binary.BigEndian.PutUint32(buf[0:], prev)
	binary.BigEndian.PutUint32(buf[4:], next)
	binary.BigEndian.PutUint32(buf[8:], level)
	binary.BigEndian.PutUint16(buf[12:], flags)
	return buf
}

// MetaPage renders a full B-tree metapage.
func MetaPage(pageSize uint32, m btree.Meta) []byte {
	buf := NewBuilder(pageSize).Bytes()
	binary.BigEndian.PutUint32(buf[page.HeaderSize:], m.Magic)
	binary.BigEndian.PutUint32(buf[page.HeaderSize+4:], m.Version)
	binary.BigEndian.PutUint32(buf[page.HeaderSize+8:], m.Root)
	binary.BigEndian.PutUint32(buf[page.HeaderSize+12:], m.Level)
	binary.BigEndian.PutUint32(buf[page.HeaderSize+16:], m.FastRoot)
	binary.BigEndian.PutUint32(buf[page.HeaderSize+20:], m.FastLevel)
	return buf
}

// ShortVarlena encodes payload in the short form (tag byte included in
// the length).
func ShortVarlena(payload []byte) []byte {
	return append([]byte{0x80 | byte(len(payload)+1)}, payload...)
}

// LongVarlena encodes payload in the long uncompressed form.
func LongVarlena(payload []byte) []byte {
	buf := make([]byte, 5+len(payload))
	buf[0] = 0x01
	binary.BigEndian.PutUint32(buf[1:], uint32(5+len(payload)))
	copy(buf[5:], payload)
	return buf
}

// Int4 renders one big-endian 4 byte attribute value.
func Int4(v int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf
}

// Desc builds a row descriptor out of fixed 4 byte integer attributes.
func Desc(natts int) tuple.RowDescriptor {
	desc := make(tuple.RowDescriptor, natts)
	for i := range desc {
		desc[i] = tuple.Attr{Len: 4, ByVal: true, Align: 4}
	}
	return desc
}
