package check

import (
	"context"
	"fmt"

	"github.com/phuslu/log"

	"github.com/tvondra/pg-check/bitmap"
	"github.com/tvondra/pg-check/btree"
	"github.com/tvondra/pg-check/heap"
	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/report"
)

var ErrBlockRangeWithIndexes = fmt.Errorf("index checking needs a full scan, not a block range")

// Options configures one check invocation. Nothing here is process-wide
// state, two concurrent invocations with different options do not
// interact.
type Options struct {
	PageSize        uint32
	CurrentTimeline uint32
	VerifyChecksum  bool

	// CheckIndexes also validates every index of the table, CrossCheck
	// additionally reconciles each B-tree index against the heap
	CheckIndexes bool
	CrossCheck   bool

	// half-open block range, only honored when BlockRangeSet
	BlockFrom     uint32
	BlockTo       uint32
	BlockRangeSet bool

	// Debug dumps the cross-check bitmaps in BitmapFormat
	Debug        bool
	BitmapFormat bitmap.Format
}

func (o Options) pageSize() uint32 {
	if o.PageSize == 0 {
		return page.DefaultPageSize
	}
	return o.PageSize
}

func (o Options) pageOptions() page.CheckOptions {
	return page.CheckOptions{
		PageSize:        o.pageSize(),
		CurrentTimeline: o.CurrentTimeline,
		VerifyChecksum:  o.VerifyChecksum,
	}
}

// Checker runs the page scans and aggregates error counts. Findings go
// to the sink as they are discovered, the returned count is the total.
type Checker struct {
	logger log.Logger
	sink   report.Sink
}

func New(logger log.Logger, sink report.Sink) *Checker {
	return &Checker{
		logger: logger,
		sink:   sink,
	}
}

// CheckTable scans the table page by page and optionally its indexes,
// returning the aggregate number of problems. The error return is for
// environmental failure (IO, cancellation, bad options) - corruption is
// never an error, only a count.
//
// When cross-checking, the heap scan completes before any index scan
// starts, the reconciliation bitmap needs the full heap first.
func (c *Checker) CheckTable(ctx context.Context, tbl Table, opts Options) (uint32, error) {
	if opts.BlockRangeSet && opts.CheckIndexes {
		return 0, ErrBlockRangeWithIndexes
	}

	from, to, err := blockRange(tbl, opts)
	if err != nil {
		return 0, err
	}

	var heapBM *bitmap.ItemBitmap
	if opts.CrossCheck && !opts.BlockRangeSet {
		heapBM = bitmap.New(tbl.PageCount(), page.MaxItemsPerPage(opts.pageSize()))
	}

	hc := heap.NewChecker(c.logger, tbl.RowDescriptor(), opts.pageOptions())

	nerrs := uint32(0)
	buf := make([]byte, opts.pageSize())

	for blk := from; blk < to; blk++ {
		if err := ctx.Err(); err != nil {
			return nerrs, err
		}
		if err := tbl.ReadPage(ctx, blk, buf); err != nil {
			return nerrs, fmt.Errorf("reading block %d of %s: %w", blk, tbl.Name(), err)
		}

		nerrs += hc.CheckPage(buf, blk, c.sink)

		if heapBM != nil {
			nerrs += heap.PopulateBitmap(heapBM, buf, blk, c.sink)
		}
	}

	if opts.Debug && heapBM != nil {
		c.logger.Debug().Msg(heapBM.Serialize(opts.BitmapFormat))
	}

	if opts.CheckIndexes {
		var idxBM *bitmap.ItemBitmap
		if heapBM != nil {
			idxBM = heapBM.CopyShape()
		}

		for _, idx := range tbl.Indexes() {
			if idxBM != nil {
				idxBM.Reset()
			}

			n, crossable, err := c.checkIndexPages(ctx, idx, Options{
				PageSize:        opts.pageSize(),
				CurrentTimeline: opts.CurrentTimeline,
				VerifyChecksum:  opts.VerifyChecksum,
			}, idxBM)
			nerrs += n
			if err != nil {
				return nerrs, err
			}

			if idxBM == nil || !crossable {
				continue
			}

			if opts.Debug {
				c.logger.Debug().Msg(idxBM.Serialize(opts.BitmapFormat))
			}

			ndiff, err := heapBM.Compare(idxBM)
			if err != nil {
				c.sink.Emit(report.Finding{Severity: report.SeverityWarning,
					Message: fmt.Sprintf("cross-check of %s impossible: %v", idx.Name(), err)})
				nerrs++
				continue
			}
			if ndiff > 0 {
				c.sink.Emit(report.Finding{Severity: report.SeverityWarning,
					Message: fmt.Sprintf("%d differences between the table and index %s", ndiff, idx.Name())})
				nerrs += uint32(ndiff)
			}
		}
	}

	return nerrs, nil
}

// CheckIndex validates a single index without any cross-check.
func (c *Checker) CheckIndex(ctx context.Context, idx Index, opts Options) (uint32, error) {
	nerrs, _, err := c.checkIndexPages(ctx, idx, opts, nil)
	return nerrs, err
}

// checkIndexPages scans one index. The validator is picked by access
// method: B-trees get the full page and tuple checks plus leaf reference
// collection, anything else only the generic page structure checks. The
// bool result tells whether the collected bitmap is usable for a
// cross-check.
func (c *Checker) checkIndexPages(ctx context.Context, idx Index, opts Options, bm *bitmap.ItemBitmap) (uint32, bool, error) {
	c.logger.Info().Msgf("checking index: %s", idx.Name())

	from, to, err := blockRange(idx, opts)
	if err != nil {
		return 0, false, err
	}

	var (
		bc        *btree.Checker
		crossable bool
	)
	switch idx.AccessMethod() {
	case AccessMethodBTree:
		bc = btree.NewChecker(c.logger, idx.RowDescriptor(), opts.pageOptions())
		crossable = true
	default:
		c.logger.Warn().Msgf("no check method for access method %q, falling back to page structure checks", idx.AccessMethod())
	}

	nerrs := uint32(0)
	buf := make([]byte, opts.pageSize())

	for blk := from; blk < to; blk++ {
		if err := ctx.Err(); err != nil {
			return nerrs, false, err
		}
		if err := idx.ReadPage(ctx, blk, buf); err != nil {
			return nerrs, false, fmt.Errorf("reading block %d of %s: %w", blk, idx.Name(), err)
		}

		if bc == nil {
			nerrs += c.checkGenericPage(buf, blk, opts)
			continue
		}

		nerrs += bc.CheckPage(buf, blk, idx.PageCount(), c.sink)

		if bm != nil {
			nerrs += bc.PopulateLeafRefs(buf, blk, bm, c.sink)
		}
	}

	return nerrs, crossable, nil
}

// checkGenericPage is the fallback for unsupported access methods, just
// the format independent page header validation.
func (c *Checker) checkGenericPage(buf []byte, block uint32, opts Options) uint32 {
	v := page.NewView(buf)
	h, err := page.ReadHeader(v)
	if err != nil {
		c.sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning, Message: err.Error()})
		return 1
	}
	return page.CheckHeader(v, h, block, opts.pageOptions(), c.sink)
}

func blockRange(rel Relation, opts Options) (uint32, uint32, error) {
	if !opts.BlockRangeSet {
		return 0, rel.PageCount(), nil
	}
	if opts.BlockFrom > opts.BlockTo {
		return 0, 0, fmt.Errorf("invalid block range %d..%d", opts.BlockFrom, opts.BlockTo)
	}
	to := opts.BlockTo
	if to > rel.PageCount() {
		to = rel.PageCount()
	}
	return opts.BlockFrom, to, nil
}
