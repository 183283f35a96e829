package tuple

import (
	"fmt"

	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/report"
)

// Bounds locates one tuple inside a page, all offsets absolute.
type Bounds struct {
	DataStart int // first attribute byte (header and null bitmap skipped)
	TupleEnd  int // exclusive end, from the line pointer
}

// DecodeOptions is everything the attribute walk needs besides the page
// itself. The same walk serves heap and index tuple formats, the format
// specific parts (header layout, null bitmap location, the B-tree
// leading-key exemption) are resolved by the caller.
type DecodeOptions struct {
	Natts int
	Desc  RowDescriptor

	// IsNull consults the tuple's null bitmap, nil when the tuple
	// carries none
	IsNull func(attnum int) bool

	// HasNullsFlag is the tuple header claim that a null bitmap exists,
	// cross-checked against the attributes actually skipped
	HasNullsFlag bool

	// NoPayload marks the first data key of a non-leaf B-tree page,
	// which carries no attribute data at all
	NoPayload bool

	// AlignEnd pads the final cursor to 8 bytes before the trailing
	// check, index tuples end on an aligned boundary
	AlignEnd bool
}

// CheckAttributes walks the tuple's attributes in declared order,
// validating each length against the tuple end. It returns the number of
// problems found and never mutates anything. An attribute whose length
// cannot be trusted (overflow, bad varlena header) stops the walk, the
// cursor position past it is unknowable.
func CheckAttributes(v *page.View, b Bounds, opts DecodeOptions, block uint32, item int, sink report.Sink) uint32 {
	nerrs := uint32(0)

	if opts.NoPayload {
		return 0
	}

	off := b.DataStart
	end := b.TupleEnd
	sawNull := false

	for j := 0; j < opts.Natts; j++ {
		attr := opts.Desc[j]

		if opts.IsNull != nil && opts.IsNull(j) {
			sawNull = true
			continue
		}

		off = alignAttr(v, off, attr)

		var length int
		switch attr.Len {
		case VarLena:
			vl, err := ReadVarlena(v, off)
			if err != nil {
				sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
					Message: fmt.Sprintf("attribute %d has unreadable varlena header at %d: %v", j, off, err)})
				nerrs++
				return nerrs
			}

			if vl.Length < 0 || vl.Length > MaxVarSize {
				sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
					Message: fmt.Sprintf("attribute %d has invalid length %d (should be between 0 and 1GB)", j, vl.Length)})
				nerrs++
				return nerrs
			}

			if vl.Compressed && (vl.RawSize < 0 || vl.RawSize > MaxVarSize) {
				// does not break the page structure, keep walking
				sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
					Message: fmt.Sprintf("attribute %d has invalid raw size %d (should be between 0 and 1GB)", j, vl.RawSize)})
				nerrs++
			}

			length = int(vl.Length)

		case CString:
			// unterminated strings come back as 'remaining space + 1',
			// so the overflow check below catches them
			length = cstringLength(v, off, end)

		default:
			length = int(attr.Len)
		}

		if off+length > end {
			sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
				Message: fmt.Sprintf("attribute %d (off=%d len=%d) overflows tuple end %d", j, off, length, end)})
			nerrs++
			return nerrs
		}

		off += length
	}

	if opts.HasNullsFlag && !sawNull {
		sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
			Message: "tuple header claims nulls but no attribute is null"})
		nerrs++
	}

	final := off
	if opts.AlignEnd {
		final = alignUp(off, 8)
	}
	if final > end {
		sink.Emit(report.Finding{Block: block, Item: item, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("last attribute ends at %d but the tuple ends at %d", final, end)})
		nerrs++
	}

	return nerrs
}

// alignAttr pads the cursor per the attribute's alignment rule. A packed
// varlena (nonzero first byte) starts right at the cursor, padding bytes
// are always zero.
func alignAttr(v *page.View, off int, attr Attr) int {
	switch attr.Len {
	case CString:
		return off
	case VarLena:
		if b, err := v.Byte(off); err == nil && b != 0 {
			return off
		}
		return alignUp(off, attr.Align)
	default:
		return alignUp(off, attr.Align)
	}
}

// cstringLength is the terminated length including the trailing zero,
// bounded by the tuple end.
func cstringLength(v *page.View, off, end int) int {
	for n := 0; off+n < end; n++ {
		b, err := v.Byte(off + n)
		if err != nil {
			break
		}
		if b == 0 {
			return n + 1
		}
	}
	return end - off + 1
}
