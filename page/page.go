package page

import "fmt"

/*
Page layout
┌──────────────────────────────────────────────────────────────┐
| lsn (8 byte)                                                 |
| timeline/checksum (4 byte) | flags (2 byte) | lower (2 byte) |
| upper (2 byte) | special (2 byte) | sizeVersion | reserved   |
|─────────────────────24 byte header───────────────────────────|
| line pointers (4 byte each), growing up from the header      |
| ............................ free space .................... |
| tuple data, growing down from 'special'                      |
|──────────────────────────────────────────────────────────────|
| special space (index opaque data) up to the page end         |
└──────────────────────────────────────────────────────────────┘

sizeVersion packs the page size (a multiple of 256) with the layout
version in the low byte. The 4 byte id field holds the WAL timeline for
layouts before version 4 and a CRC32 checksum from version 4 on.
*/

const (
	DefaultPageSize = uint32(8192)
	HeaderSize      = 24
	LinePointerSize = 4

	// layout versions understood by the checker
	LayoutVersionMax     = 4
	CurrentLayoutVersion = 4

	// first layout version carrying a page checksum instead of the timeline
	ChecksumLayoutVersion = 4
)

// page flag bits, everything outside FlagMask is invalid
const (
	FlagHasFreeLines = uint16(0x0001)
	FlagPageFull     = uint16(0x0002)
	FlagAllVisible   = uint16(0x0004)

	FlagMask = FlagHasFreeLines | FlagPageFull | FlagAllVisible
)

// minTupleSize is the smallest storage a tuple with storage can take,
// used only to size the per-page slot capacity of the cross-check bitmap.
const minTupleSize = 16

// MaxItemsPerPage is the hard cap on line pointers a page of the given
// size can hold, assuming minimal tuples.
func MaxItemsPerPage(pageSize uint32) int {
	return int((pageSize - HeaderSize) / (LinePointerSize + minTupleSize))
}

type Header struct {
	LSN         uint64
	ID          uint32 // timeline or checksum, depending on the layout version
	Flags       uint16
	Lower       uint16
	Upper       uint16
	Special     uint16
	SizeVersion uint16
}

// ReadHeader decodes the fixed page header. It only fails when the buffer
// cannot hold a header at all, field values are validated separately by
// CheckHeader.
func ReadHeader(v *View) (*Header, error) {
	if v.Len() < HeaderSize {
		return nil, fmt.Errorf("page buffer of %d bytes is smaller than the %d byte header", v.Len(), HeaderSize)
	}

	h := &Header{}
	h.LSN, _ = v.Uint64(0)
	h.ID, _ = v.Uint32(8)
	h.Flags, _ = v.Uint16(12)
	h.Lower, _ = v.Uint16(14)
	h.Upper, _ = v.Uint16(16)
	h.Special, _ = v.Uint16(18)
	h.SizeVersion, _ = v.Uint16(20)
	return h, nil
}

func (h *Header) PageSize() uint32 {
	return uint32(h.SizeVersion &^ 0xFF)
}

func (h *Header) LayoutVersion() int {
	return int(h.SizeVersion & 0xFF)
}

// IsNew reports whether the page is a fresh all-zero page that was never
// initialized. Such pages are a valid state, not corruption.
func (h *Header) IsNew() bool {
	return h.Upper == 0
}

// ItemCount derives the number of line pointers from 'lower'. A corrupted
// 'lower' may imply more pointers than the buffer holds, readers must stay
// behind the view bounds.
func (h *Header) ItemCount() int {
	if h.Lower <= HeaderSize {
		return 0
	}
	return int(h.Lower-HeaderSize) / LinePointerSize
}
