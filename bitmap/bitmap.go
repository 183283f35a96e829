package bitmap

import (
	"fmt"
	"math/bits"
)

var (
	ErrOutOfRange    = fmt.Errorf("item outside bitmap dimensions")
	ErrShapeMismatch = fmt.Errorf("bitmap dimensions do not match")
)

// ItemBitmap is a dense occupancy bitmap over (page, slot) pairs, one bit
// per possible item. It is built once from a full heap scan and once per
// index from the leaf pages, then the two are compared bit for bit. Every
// page gets the same fixed slot capacity so the bit position of an item
// is a pure function of (page, slot).
type ItemBitmap struct {
	npages       uint32
	slotsPerPage int
	bytesPerPage int
	data         []byte

	// known items per page, bookkeeping for the diagnostics output
	counts []uint64
}

// New allocates a zeroed bitmap sized for npages pages of slotsPerPage
// slots each.
func New(npages uint32, slotsPerPage int) *ItemBitmap {
	bpp := (slotsPerPage + 7) / 8
	return &ItemBitmap{
		npages:       npages,
		slotsPerPage: slotsPerPage,
		bytesPerPage: bpp,
		data:         make([]byte, int(npages)*bpp),
		counts:       make([]uint64, npages),
	}
}

// CopyShape returns a new all-zero bitmap with the same dimensions,
// keeping the per-page counts. This is how every index gets a scratch
// bitmap matching the heap bitmap without re-deriving dimensions.
func (b *ItemBitmap) CopyShape() *ItemBitmap {
	c := New(b.npages, b.slotsPerPage)
	copy(c.counts, b.counts)
	return c
}

// Reset zeroes the bits but keeps dimensions and page counts, so one
// scratch bitmap serves all indexes of a table without reallocation.
func (b *ItemBitmap) Reset() {
	for i := range b.data {
		b.data[i] = 0
	}
}

func (b *ItemBitmap) Pages() uint32 {
	return b.npages
}

func (b *ItemBitmap) SlotsPerPage() int {
	return b.slotsPerPage
}

// byteIndex and bitIndex map (page, slot) to a position in the backing
// array, with explicit bounds checks - the inputs come from possibly
// corrupted index tuples.
func (b *ItemBitmap) byteIndex(page uint32, slot int) (int, error) {
	if page >= b.npages || slot < 0 || slot >= b.slotsPerPage {
		return 0, fmt.Errorf("%w: page %d slot %d (dimensions %dx%d)",
			ErrOutOfRange, page, slot, b.npages, b.slotsPerPage)
	}
	return int(page)*b.bytesPerPage + slot/8, nil
}

func bitIndex(slot int) uint {
	return uint(slot % 8)
}

func (b *ItemBitmap) Set(page uint32, slot int) error {
	idx, err := b.byteIndex(page, slot)
	if err != nil {
		return err
	}
	b.data[idx] |= 1 << bitIndex(slot)
	return nil
}

func (b *ItemBitmap) Clear(page uint32, slot int) error {
	idx, err := b.byteIndex(page, slot)
	if err != nil {
		return err
	}
	b.data[idx] &^= 1 << bitIndex(slot)
	return nil
}

func (b *ItemBitmap) Get(page uint32, slot int) (bool, error) {
	idx, err := b.byteIndex(page, slot)
	if err != nil {
		return false, err
	}
	return b.data[idx]&(1<<bitIndex(slot)) != 0, nil
}

// NoteItems records how many items a page scan registered, purely for
// the serialized diagnostics.
func (b *ItemBitmap) NoteItems(page uint32, n uint64) error {
	if page >= b.npages {
		return fmt.Errorf("%w: page %d (npages %d)", ErrOutOfRange, page, b.npages)
	}
	b.counts[page] += n
	return nil
}

// CountSet returns the total number of set bits.
func (b *ItemBitmap) CountSet() uint64 {
	total := uint64(0)
	for _, by := range b.data {
		total += uint64(bits.OnesCount8(by))
	}
	return total
}

// Compare counts the slots present in exactly one of the two bitmaps.
// Bitmaps of different shape are not comparable at all, that is an error
// for the caller to report, not a partial result.
func (b *ItemBitmap) Compare(other *ItemBitmap) (uint64, error) {
	if b.npages != other.npages || b.slotsPerPage != other.slotsPerPage {
		return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch,
			b.npages, b.slotsPerPage, other.npages, other.slotsPerPage)
	}

	ndiff := uint64(0)
	for i := range b.data {
		ndiff += uint64(bits.OnesCount8(b.data[i] ^ other.data[i]))
	}
	return ndiff, nil
}
