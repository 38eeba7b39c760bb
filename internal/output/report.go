package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"driftwatch/internal/drift"
)

// FormatLine renders one run-output line. The format is pinned:
//
//	<url>: ERROR <reason>
//	<url>: OK <status> <digest> first-seen
//	<url>: OK <status> <digest> changed-from <previous>
//	<url>: OK <status> <digest> unchanged
//
// OK lines end with " duplicate-of <url>,<url>" when other URLs share the
// digest.
func FormatLine(o drift.Outcome) string {
	var b strings.Builder
	b.WriteString(o.URL)
	b.WriteString(": ")

	if o.Errored() {
		b.WriteString("ERROR ")
		b.WriteString(singleLine(o.Reason))
		return b.String()
	}

	fmt.Fprintf(&b, "OK %d %s ", o.Status, o.Digest)
	switch o.Kind {
	case drift.KindChanged:
		b.WriteString("changed-from ")
		b.WriteString(o.Previous)
	default:
		b.WriteString(string(o.Kind))
	}
	if o.Duplicate() {
		b.WriteString(" duplicate-of ")
		b.WriteString(strings.Join(o.DuplicateOf, ","))
	}
	return b.String()
}

func singleLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown error"
	}
	return strings.Join(strings.Fields(s), " ")
}

// ReportSink writes the run-output file: one line per URL, in input order.
//
// Nothing touches the destination until Close, which writes a temp file in
// the same directory and renames it into place, replacing the previous run's
// report.
type ReportSink struct {
	path     string
	mu       sync.Mutex
	outcomes []drift.Outcome
	done     bool
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	return &ReportSink{path: path}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := v.(drift.Outcome)
	if !ok {
		// Ignore lifecycle events.
		return nil
	}
	if s.done {
		return fmt.Errorf("report sink already closed")
	}
	s.outcomes = append(s.outcomes, o)
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil
	}
	s.done = true

	sort.SliceStable(s.outcomes, func(i, j int) bool { return s.outcomes[i].Index < s.outcomes[j].Index })

	var b strings.Builder
	for _, o := range s.outcomes {
		b.WriteString(FormatLine(o))
		b.WriteByte('\n')
	}
	return writeFileReplace(s.path, []byte(b.String()))
}

// Discard drops the buffered outcomes and leaves any previous report alone.
func (s *ReportSink) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.outcomes = nil
	return nil
}

func writeFileReplace(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close report file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("failed to set report file mode: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace report file: %w", err)
	}
	return nil
}
