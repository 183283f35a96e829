package page

import (
	"fmt"

	"github.com/tvondra/pg-check/report"
)

type ItemStatus uint8

const (
	ItemUnused ItemStatus = iota
	ItemNormal
	ItemRedirect
	ItemDead
)

func (s ItemStatus) String() string {
	switch s {
	case ItemUnused:
		return "unused"
	case ItemNormal:
		return "normal"
	case ItemRedirect:
		return "redirect"
	case ItemDead:
		return "dead"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

/*
Each line pointer is a packed big-endian uint32

	| offset (15 bit) | status (2 bit) | length (15 bit) |

The line pointer array starts right after the page header and is indexed
1-based whenever an item is referenced from the outside (redirect targets,
index tuple references, findings).
*/
type LinePointer struct {
	Offset uint16
	Status ItemStatus
	Length uint16
}

// HasStorage reports whether the item claims actual tuple bytes on the
// page. Dead items may or may not have storage, depending on how far
// cleanup got.
func (lp LinePointer) HasStorage() bool {
	return lp.Status == ItemNormal || (lp.Status == ItemDead && lp.Length > 0)
}

// RedirectTarget is the 1-based item index a redirect points to. Only
// meaningful for ItemRedirect, where the offset field is reinterpreted.
func (lp LinePointer) RedirectTarget() int {
	return int(lp.Offset)
}

func decodeLinePointer(w uint32) LinePointer {
	return LinePointer{
		Offset: uint16(w >> 17),
		Status: ItemStatus((w >> 15) & 0x3),
		Length: uint16(w & 0x7FFF),
	}
}

// EncodeLinePointer packs a line pointer into its on-disk form. The
// checker itself never writes pages, this exists for fixture building.
func EncodeLinePointer(lp LinePointer) uint32 {
	return uint32(lp.Offset)<<17 | uint32(lp.Status)<<15 | uint32(lp.Length)&0x7FFF
}

// ReadLineTable decodes as many line pointers as 'lower' declares and the
// buffer actually holds. With a corrupted 'lower' the table is simply
// truncated at the page end.
func ReadLineTable(v *View, h *Header) []LinePointer {
	n := h.ItemCount()
	lps := make([]LinePointer, 0, n)
	for i := 0; i < n; i++ {
		w, err := v.Uint32(HeaderSize + i*LinePointerSize)
		if err != nil {
			break
		}
		lps = append(lps, decodeLinePointer(w))
	}
	return lps
}

// CheckLinePointers classifies every item and checks that items with
// storage stay inside the occupied region and do not overlap each other.
// Returns the number of problems found.
//
// The overlap test is O(n^2) on purpose - the item count per page is
// small (bounded by MaxItemsPerPage) and the quadratic pass keeps the
// pairing exact: each overlapping pair is counted exactly once, at the
// later of the two items.
func CheckLinePointers(lps []LinePointer, h *Header, block uint32, sink report.Sink) uint32 {
	nerrs := uint32(0)

	for i, lp := range lps {
		item := i + 1

		switch lp.Status {
		case ItemUnused:
			if lp.Length != 0 {
				sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
					Message: fmt.Sprintf("unused item with length != 0 (%d)", lp.Length)})
				nerrs++
			}
			continue

		case ItemRedirect:
			// the offset field holds the redirect target, so there is no
			// storage and the length has to be zero
			if lp.Length != 0 {
				sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
					Message: fmt.Sprintf("redirect item with length != 0 (%d)", lp.Length)})
				nerrs++
			}
			continue

		case ItemDead:
			if lp.Length == 0 {
				// dead without storage, nothing left to check
				continue
			}
		}

		// normal item, or dead item that still has storage
		if lp.Length == 0 {
			sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
				Message: "item with length = 0"})
			nerrs++
		}

		if lp.Offset == 0 {
			sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
				Message: "item with offset = 0"})
			nerrs++
		}

		if lp.Offset < h.Upper {
			sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
				Message: fmt.Sprintf("item offset %d below upper %d", lp.Offset, h.Upper)})
			nerrs++
		}

		if uint32(lp.Offset)+uint32(lp.Length) > uint32(h.Special) {
			sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
				Message: fmt.Sprintf("item end %d past special %d", uint32(lp.Offset)+uint32(lp.Length), h.Special)})
			nerrs++
		}

		// intersection against every earlier item with storage, intervals
		// are half open so touching ranges do not overlap
		a := uint32(lp.Offset)
		b := a + uint32(lp.Length)

		for j := 0; j < i; j++ {
			prev := lps[j]
			if !prev.HasStorage() {
				continue
			}

			c := uint32(prev.Offset)
			d := c + uint32(prev.Length)

			if (a < c && c < b) || (a < d && d < b) ||
				(c < a && a < d) || (c < b && b < d) {
				sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
					Message: fmt.Sprintf("item [%d,%d) intersects item %d [%d,%d)", a, b, j+1, c, d)})
				nerrs++
			}
		}
	}

	return nerrs
}
