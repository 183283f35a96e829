package report

import (
	"fmt"

	"github.com/phuslu/log"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Finding is one structural problem detected on a page. Item is the 1-based
// line pointer index, or 0 for page-level findings. The checker only builds
// these payloads, formatting is up to the sink.
type Finding struct {
	Block    uint32
	Item     int
	Severity Severity
	Message  string
}

type Sink interface {
	Emit(f Finding)
}

// LogSink forwards findings to a phuslu logger, one line per finding,
// in the same "[block:item] message" shape the checker uses for its
// debug traces.
type LogSink struct {
	Logger log.Logger
}

func (s *LogSink) Emit(f Finding) {
	e := s.Logger.Warn()
	if f.Severity == SeverityInfo {
		e = s.Logger.Info()
	}
	if f.Item > 0 {
		e.Msgf("[%d:%d] %s", f.Block, f.Item, f.Message)
	} else {
		e.Msgf("[%d] %s", f.Block, f.Message)
	}
}

// Collector keeps every finding in memory. Used by tests and by the CLI
// summary rendering.
type Collector struct {
	Findings []Finding
}

func (c *Collector) Emit(f Finding) {
	c.Findings = append(c.Findings, f)
}

// Tee fans a finding out to several sinks.
type Tee []Sink

func (t Tee) Emit(f Finding) {
	for _, s := range t {
		s.Emit(f)
	}
}

// Discard drops findings, for callers that only want the error counts.
type Discard struct{}

func (Discard) Emit(Finding) {}
