package btree

import (
	"fmt"

	"github.com/phuslu/log"

	"github.com/tvondra/pg-check/bitmap"
	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/report"
	"github.com/tvondra/pg-check/tuple"
)

// Checker validates B-tree index pages: the metapage, the per-page
// opaque area, and the index tuples with their attribute layout. Only
// individual pages are checked, cross-page invariants of the tree are
// out of scope.
type Checker struct {
	logger log.Logger
	desc   tuple.RowDescriptor
	opts   page.CheckOptions
}

func NewChecker(logger log.Logger, desc tuple.RowDescriptor, opts page.CheckOptions) *Checker {
	return &Checker{
		logger: logger,
		desc:   desc,
		opts:   opts,
	}
}

// CheckPage validates one raw index page. pageCount is the index's total
// page count, used for the metapage root plausibility check.
func (c *Checker) CheckPage(buf []byte, block uint32, pageCount uint32, sink report.Sink) uint32 {
	v := page.NewView(buf)

	h, err := page.ReadHeader(v)
	if err != nil {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning, Message: err.Error()})
		return 1
	}

	nerrs := page.CheckHeader(v, h, block, c.opts, sink)

	if h.LayoutVersion() != page.CurrentLayoutVersion || h.IsNew() {
		return nerrs
	}

	if block == MetaPageBlock {
		return nerrs + c.checkMetaPage(v, block, pageCount, sink)
	}

	opaque, n := c.checkOpaque(v, h, block, sink)
	nerrs += n
	if opaque == nil {
		return nerrs
	}

	lps := page.ReadLineTable(v, h)
	c.logger.Debug().Msgf("[%d] max number of tuples = %d", block, len(lps))

	nerrs += page.CheckLinePointers(lps, h, block, sink)

	for i, lp := range lps {
		if lp.Status != page.ItemNormal {
			continue
		}
		nerrs += c.checkTupleAttributes(v, opaque, lp, block, i+1, sink)
	}

	if nerrs > 0 {
		c.logger.Warn().Msgf("[%d] is probably corrupted, there were %d errors reported", block, nerrs)
	}

	return nerrs
}

func (c *Checker) checkMetaPage(v *page.View, block uint32, pageCount uint32, sink report.Sink) uint32 {
	nerrs := uint32(0)

	m, err := ReadMeta(v)
	if err != nil {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: "metapage data does not fit the page"})
		return 1
	}

	c.logger.Debug().Msgf("[%d] is a meta-page [magic=%#x, version=%d]", block, m.Magic, m.Version)

	if m.Magic != Magic {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("metapage contains invalid magic number %#x (should be %#x)", m.Magic, Magic)})
		nerrs++
	}

	if m.Version != Version {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("metapage contains invalid version %d (should be %d)", m.Version, Version)})
		nerrs++
	}

	// best effort plausibility of the root pointers, an empty index has
	// no root at all (root == 0)
	if m.Root >= pageCount {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("metapage root %d outside the index (%d pages)", m.Root, pageCount)})
		nerrs++
	}

	if m.FastRoot >= pageCount {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("metapage fast root %d outside the index (%d pages)", m.FastRoot, pageCount)})
		nerrs++
	}

	return nerrs
}

func (c *Checker) checkOpaque(v *page.View, h *page.Header, block uint32, sink report.Sink) (*Opaque, uint32) {
	nerrs := uint32(0)

	if uint32(h.Special)+OpaqueSize > c.opts.PageSize {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("not enough special space for index data (%d > %d)",
				OpaqueSize, int(c.opts.PageSize)-int(h.Special))})
		return nil, nerrs + 1
	}

	opaque, err := ReadOpaque(v, h)
	if err != nil {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: "opaque area does not fit the page"})
		return nil, nerrs + 1
	}

	// deleted pages reuse the level field for recycling bookkeeping, the
	// leaf/level invariant only holds for live pages
	if !opaque.IsDeleted() {
		if opaque.IsLeaf() && opaque.Level != 0 {
			sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
				Message: fmt.Sprintf("leaf page with level %d", opaque.Level)})
			nerrs++
		}
		if !opaque.IsLeaf() && opaque.Level == 0 {
			sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
				Message: "non-leaf page with level zero"})
			nerrs++
		}
	}

	return opaque, nerrs
}

func (c *Checker) checkTupleAttributes(v *page.View, opaque *Opaque, lp page.LinePointer, block uint32, item int, sink report.Sink) uint32 {
	off := int(lp.Offset)

	t, err := ReadIndexTuple(v, off)
	if err != nil {
		sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("index tuple header does not fit the page (offset %d)", off)})
		return 1
	}

	c.logger.Debug().Msgf("[%d:%d] off=%d len=%d tid=(%d,%d)",
		block, item, lp.Offset, lp.Length, t.HeapPage, t.HeapSlot)

	nerrs := uint32(0)

	if t.Size() != int(lp.Length) {
		sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("tuple size %d does not match item length %d", t.Size(), lp.Length)})
		nerrs++
	}

	// the first data key of a non-leaf page carries no attribute data,
	// only the downlink
	noPayload := opaque.IsLeftmost() && !opaque.IsLeaf() && item == opaque.FirstDataKey()

	opts := tuple.DecodeOptions{
		Natts:        len(c.desc),
		Desc:         c.desc,
		HasNullsFlag: t.HasNulls(),
		NoPayload:    noPayload,
		AlignEnd:     true,
	}
	if bm := t.NullBitmap(v, off, len(c.desc)); bm != nil {
		opts.IsNull = bm.IsNull
	}

	bounds := tuple.Bounds{
		DataStart: off + t.DataOffset(len(c.desc)),
		TupleEnd:  off + int(lp.Length),
	}

	return nerrs + tuple.CheckAttributes(v, bounds, opts, block, item, sink)
}

// PopulateLeafRefs records in target every heap reference of one leaf
// page, skipping the high key. A reference already present in the target
// is a duplicate - two index entries for the same heap slot - which is
// counted but deliberately not unmarked, the slot is still referenced.
// Non-leaf and meta pages contribute nothing.
func (c *Checker) PopulateLeafRefs(buf []byte, block uint32, target *bitmap.ItemBitmap, sink report.Sink) uint32 {
	nerrs := uint32(0)

	v := page.NewView(buf)
	h, err := page.ReadHeader(v)
	if err != nil || h.LayoutVersion() != page.CurrentLayoutVersion || h.IsNew() {
		return 0
	}

	if block == MetaPageBlock {
		return 0
	}

	opaque, err := ReadOpaque(v, h)
	if err != nil || !opaque.IsLeaf() || opaque.IsDeleted() {
		return 0
	}

	lps := page.ReadLineTable(v, h)

	for i, lp := range lps {
		item := i + 1
		if item < opaque.FirstDataKey() || lp.Status != page.ItemNormal {
			continue
		}

		t, err := ReadIndexTuple(v, int(lp.Offset))
		if err != nil {
			// already reported by the structure pass
			continue
		}

		if t.HeapSlot == 0 {
			sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
				Message: "heap reference with slot 0"})
			nerrs++
			continue
		}

		heapPage := t.HeapPage
		heapSlot := int(t.HeapSlot) - 1

		set, err := target.Get(heapPage, heapSlot)
		if err != nil {
			sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
				Message: fmt.Sprintf("heap reference (%d,%d) outside the table: %v", heapPage, t.HeapSlot, err)})
			nerrs++
			continue
		}

		if set {
			sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
				Message: fmt.Sprintf("duplicate reference to heap item (%d,%d)", heapPage, t.HeapSlot)})
			nerrs++
			continue
		}

		target.Set(heapPage, heapSlot)
	}

	return nerrs
}
