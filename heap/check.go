package heap

import (
	"fmt"

	"github.com/phuslu/log"

	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/report"
	"github.com/tvondra/pg-check/tuple"
)

// Checker validates heap pages of one table: page header, line pointers,
// then the attribute layout of every tuple with storage.
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

// CheckPage validates one raw heap page and returns the number of
// problems found. Corrupted pages are the expected input here - any
// sequence of bytes must come back with a count, never a panic.
func (c *Checker) CheckPage(buf []byte, block uint32, sink report.Sink) uint32 {
	v := page.NewView(buf)

	h, err := page.ReadHeader(v)
	if err != nil {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning, Message: err.Error()})
		return 1
	}

	c.logger.Debug().Msgf("[%d] header [lower=%d, upper=%d, special=%d, free=%d]",
		block, h.Lower, h.Upper, h.Special, int(h.Upper)-int(h.Lower))

	nerrs := page.CheckHeader(v, h, block, c.opts, sink)

	// tuple layout checks only make sense for the current format, and a
	// new page has no tuples at all
	if h.LayoutVersion() != page.CurrentLayoutVersion || h.IsNew() {
		return nerrs
	}

	lps := page.ReadLineTable(v, h)
	c.logger.Debug().Msgf("[%d] max number of tuples = %d", block, len(lps))

	nerrs += page.CheckLinePointers(lps, h, block, sink)

	for i, lp := range lps {
		if !lp.HasStorage() {
			continue
		}
		nerrs += c.checkTupleAttributes(v, lp, block, i+1, sink)
	}

	if nerrs > 0 {
		c.logger.Warn().Msgf("[%d] is probably corrupted, there were %d errors reported", block, nerrs)
	}

	return nerrs
}

func (c *Checker) checkTupleAttributes(v *page.View, lp page.LinePointer, block uint32, item int, sink report.Sink) uint32 {
	off := int(lp.Offset)

	th, err := ReadTupleHeader(v, off)
	if err != nil {
		sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("tuple header does not fit the page (offset %d)", off)})
		return 1
	}

	// the descriptor may have more attributes than an old on-disk tuple
	// (columns added later), the other direction is corruption
	if int(th.Natts) > len(c.desc) {
		sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("tuple has too many attributes, %d found, %d expected", th.Natts, len(c.desc))})
		return 1
	}

	minHoff := tupleHeaderSize
	if th.HasNulls() {
		minHoff += tuple.BitmapLength(int(th.Natts))
	}
	if int(th.Hoff) < minHoff || int(th.Hoff) > int(lp.Length) {
		sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("tuple data offset %d outside [%d,%d]", th.Hoff, minHoff, lp.Length)})
		return 1
	}

	c.logger.Debug().Msgf("[%d:%d] tuple has %d attributes (%d in relation)", block, item, th.Natts, len(c.desc))

	opts := tuple.DecodeOptions{
		Natts:        int(th.Natts),
		Desc:         c.desc,
		HasNullsFlag: th.HasNulls(),
	}
	if bm := th.NullBitmap(v, off); bm != nil {
		opts.IsNull = bm.IsNull
	}

	bounds := tuple.Bounds{
		DataStart: off + int(th.Hoff),
		TupleEnd:  off + int(lp.Length),
	}

	return tuple.CheckAttributes(v, bounds, opts, block, item, sink)
}
