package page

import (
	"fmt"

	"github.com/tvondra/pg-check/report"
)

// CheckOptions carries the invocation-scoped configuration the header
// checks depend on. There is no process-wide state, callers pass this
// down from the orchestrator.
type CheckOptions struct {
	PageSize        uint32
	CurrentTimeline uint32
	VerifyChecksum  bool
}

// CheckHeader validates the fixed page header against the expected
// geometry. Findings go to the sink, the return value is the number of
// problems. A page with an unsupported layout version stops early - the
// remaining checks depend on the current format and cannot be trusted on
// a different one.
func CheckHeader(v *View, h *Header, block uint32, opts CheckOptions, sink report.Sink) uint32 {
	nerrs := uint32(0)

	if h.PageSize() != opts.PageSize {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("invalid page size %d (expected %d)", h.PageSize(), opts.PageSize)})
		nerrs++
	}

	if h.LayoutVersion() > LayoutVersionMax {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("invalid page layout version %d", h.LayoutVersion())})
		nerrs++
	} else if h.LayoutVersion() != CurrentLayoutVersion {
		// a known but obsolete layout, the format dependent checks below
		// would misread the page
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("obsolete page layout version %d (current %d)", h.LayoutVersion(), CurrentLayoutVersion)})
		return nerrs + 1
	}

	// an all-zero page that was allocated but never written is valid
	if h.IsNew() {
		return nerrs
	}

	if h.Lower < HeaderSize || uint32(h.Lower) > opts.PageSize {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("lower %d not between %d and %d", h.Lower, HeaderSize, opts.PageSize)})
		nerrs++
	}

	if h.Upper < HeaderSize || uint32(h.Upper) > opts.PageSize {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("upper %d not between %d and %d", h.Upper, HeaderSize, opts.PageSize)})
		nerrs++
	}

	if h.Special < HeaderSize || uint32(h.Special) > opts.PageSize {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("special %d not between %d and %d", h.Special, HeaderSize, opts.PageSize)})
		nerrs++
	}

	if h.Lower > h.Upper {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("lower > upper (%d > %d)", h.Lower, h.Upper)})
		nerrs++
	}

	if h.Upper > h.Special {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("upper > special (%d > %d)", h.Upper, h.Special)})
		nerrs++
	}

	// the id field changed meaning with the checksum era
	if h.LayoutVersion() >= ChecksumLayoutVersion {
		if opts.VerifyChecksum && h.ID != 0 && !VerifyChecksum(v, h) {
			sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
				Message: fmt.Sprintf("checksum mismatch (header %#08x, computed %#08x)", h.ID, ComputeChecksum(v))})
			nerrs++
		}
	} else if h.ID > opts.CurrentTimeline {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("timeline %d past current timeline %d", h.ID, opts.CurrentTimeline)})
		nerrs++
	}

	if h.Flags&^FlagMask != 0 {
		sink.Emit(report.Finding{Block: block, Severity: report.SeverityWarning,
			Message: fmt.Sprintf("invalid flag bits %#04x (valid mask %#04x)", h.Flags, FlagMask)})
		nerrs++
	}

	return nerrs
}
