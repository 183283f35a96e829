package heap

import (
	"fmt"

	"github.com/tvondra/pg-check/bitmap"
	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/report"
)

// PopulateBitmap marks in bm the items of one heap page a correct index
// should reference. The page is walked with a per-page scratch array
// first, so the unmark passes are order independent within the page:
//
//  1. normal and redirect items start out marked
//  2. redirect targets are unmarked, the chain root supersedes them
//  3. chain continuation tuples are unmarked, they are only reachable
//     through their chain
//
// Returns the number of problems found while decoding the page for this
// purpose (bad redirect targets, items beyond bitmap bounds).
func PopulateBitmap(bm *bitmap.ItemBitmap, buf []byte, block uint32, sink report.Sink) uint32 {
	nerrs := uint32(0)

	v := page.NewView(buf)
	h, err := page.ReadHeader(v)
	if err != nil || h.LayoutVersion() != page.CurrentLayoutVersion || h.IsNew() {
		// unreadable pages were already reported by the structure check,
		// for the cross-check they simply contribute no items
		return 0
	}

	lps := page.ReadLineTable(v, h)
	add := make([]bool, len(lps))

	for i, lp := range lps {
		if lp.Status == page.ItemNormal || lp.Status == page.ItemRedirect {
			add[i] = true
		}
	}

	for i, lp := range lps {
		if lp.Status != page.ItemRedirect {
			continue
		}
		target := lp.RedirectTarget()
		if target < 1 || target > len(lps) {
			sink.Emit(report.Finding{Block: block, Item: i + 1, Severity: report.SeverityWarning,
				Message: fmt.Sprintf("redirect target %d outside item range 1..%d", target, len(lps))})
			nerrs++
			continue
		}
		add[target-1] = false
	}

	for i, lp := range lps {
		if !lp.HasStorage() {
			continue
		}
		th, err := ReadTupleHeader(v, int(lp.Offset))
		if err != nil {
			// reported by the structure check already
			continue
		}
		if th.IsChainContinuation() {
			add[i] = false
		}
	}

	marked := uint64(0)
	for i, set := range add {
		if !set {
			continue
		}
		if err := bm.Set(block, i); err != nil {
			sink.Emit(report.Finding{Block: block, Item: i + 1, Severity: report.SeverityWarning,
				Message: err.Error()})
			nerrs++
			continue
		}
		marked++
	}
	bm.NoteItems(block, marked)

	return nerrs
}
