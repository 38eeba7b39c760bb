package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"driftwatch/internal/drift"

	"github.com/fatih/color"
)

// FilterDuplicate selects outcomes with a non-empty DuplicateOf in console
// filters, in addition to the drift.Kind values.
const FilterDuplicate = "duplicate"

type ConsoleSink struct {
	writer       io.Writer
	format       string // "text", "ndjson"
	mu           sync.Mutex
	allowedKinds map[string]bool
	counts       map[drift.Kind]int
	duplicates   int
}

func NewConsoleSink(w io.Writer, format string, filterKinds []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
		counts: make(map[drift.Kind]int),
	}

	if len(filterKinds) > 0 {
		s.allowedKinds = make(map[string]bool)
		for _, k := range filterKinds {
			s.allowedKinds[strings.ToLower(strings.TrimSpace(k))] = true
		}
	}

	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) allowed(o drift.Outcome) bool {
	if len(s.allowedKinds) == 0 {
		return true
	}
	if s.allowedKinds[string(o.Kind)] {
		return true
	}
	return o.Duplicate() && s.allowedKinds[FilterDuplicate]
}

func (s *ConsoleSink) writeLocked(v any) error {
	if o, ok := v.(drift.Outcome); ok {
		s.counts[o.Kind]++
		if o.Duplicate() {
			s.duplicates++
		}
		if !s.allowed(o) {
			return nil
		}
	}

	switch s.format {
	case "ndjson":
		encoder := json.NewEncoder(s.writer)
		switch t := v.(type) {
		case Event:
			if err := encoder.Encode(t); err != nil {
				return err
			}
			return flushConsole(s.writer)
		case drift.Outcome:
			if err := encoder.Encode(eventFromOutcome(t)); err != nil {
				return err
			}
			return flushConsole(s.writer)
		default:
			return nil
		}
	case "text":
		o, ok := v.(drift.Outcome)
		if !ok {
			// Ignore events in text mode.
			return nil
		}
		if _, err := fmt.Fprintln(s.writer, consoleLine(o)); err != nil {
			return err
		}
		return flushConsole(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

var (
	labelErrored   = color.New(color.FgRed, color.Bold)
	labelChanged   = color.New(color.FgYellow, color.Bold)
	labelFirstSeen = color.New(color.FgGreen)
	labelUnchanged = color.New(color.Faint)
	labelDuplicate = color.New(color.FgCyan)
)

func consoleLine(o drift.Outcome) string {
	var b strings.Builder
	switch o.Kind {
	case drift.KindErrored:
		fmt.Fprintf(&b, "%s %s - %s", labelErrored.Sprint("[ERROR]"), o.URL, singleLine(o.Reason))
		return b.String()
	case drift.KindChanged:
		fmt.Fprintf(&b, "%s %s - %s -> %s", labelChanged.Sprint("[CHANGED]"), o.URL, shortDigest(o.Previous), shortDigest(o.Digest))
	case drift.KindFirstSeen:
		fmt.Fprintf(&b, "%s %s - %s", labelFirstSeen.Sprint("[NEW]"), o.URL, shortDigest(o.Digest))
	default:
		fmt.Fprintf(&b, "%s %s - %s", labelUnchanged.Sprint("[UNCHANGED]"), o.URL, shortDigest(o.Digest))
	}
	if o.FinalURL != "" {
		fmt.Fprintf(&b, " (via %s)", o.FinalURL)
	}
	if o.Duplicate() {
		b.WriteString(" ")
		b.WriteString(labelDuplicate.Sprintf("duplicate of %s", strings.Join(o.DuplicateOf, ", ")))
	}
	return b.String()
}

// flushConsole pushes each line out immediately when the writer buffers, so
// ndjson consumers see outcomes as they are classified.
func flushConsole(w io.Writer) error {
	f, ok := w.(interface{ Flush() error })
	if !ok {
		return nil
	}
	return f.Flush()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "text" {
		total := 0
		for _, n := range s.counts {
			total += n
		}
		_, err := fmt.Fprintf(s.writer, "%d URLs: %d new, %d changed, %d unchanged, %d errored, %d duplicates\n",
			total,
			s.counts[drift.KindFirstSeen],
			s.counts[drift.KindChanged],
			s.counts[drift.KindUnchanged],
			s.counts[drift.KindErrored],
			s.duplicates,
		)
		if err != nil {
			return err
		}
		return flushConsole(s.writer)
	}
	if s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}
