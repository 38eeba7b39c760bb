package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"driftwatch/internal/drift"
)

// RunDocument is the --out json payload: one object per run.
type RunDocument struct {
	RunID    string          `json:"run_id,omitempty"`
	Store    string          `json:"store,omitempty"`
	URLs     int             `json:"urls"`
	Errored  int             `json:"errored"`
	Changed  int             `json:"changed"`
	ExitCode int             `json:"exit_code"`
	Outcomes []drift.Outcome `json:"outcomes"`
}

// FileSink writes structured output to --out.
//
// json: a RunDocument assembled from lifecycle events and outcomes, written
// on Close by replacing the destination.
// ndjson: Events streamed as they arrive.
type FileSink struct {
	path   string
	format string
	mu     sync.Mutex
	done   bool

	doc  RunDocument
	file *os.File // ndjson only
	enc  *json.Encoder
}

// InferFormat maps an --out extension to a format name.
func InferFormat(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return "json", nil
	case ".ndjson", ".jsonl":
		return "ndjson", nil
	default:
		return "", fmt.Errorf("cannot infer output format from file extension %q", ext)
	}
}

func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}
	if format == "" {
		f, err := InferFormat(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	s := &FileSink{path: path, format: format}
	if format == "ndjson" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		s.file = f
		s.enc = json.NewEncoder(f)
	}
	return s, nil
}

func (s *FileSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return fmt.Errorf("file sink already closed")
	}
	if s.format == "ndjson" {
		switch t := v.(type) {
		case Event:
			return s.enc.Encode(t)
		case drift.Outcome:
			return s.enc.Encode(eventFromOutcome(t))
		}
		return nil
	}

	switch t := v.(type) {
	case Event:
		switch t.Type {
		case "run.started":
			s.doc.RunID = t.RunID
			s.doc.Store = t.Store
			s.doc.URLs = t.URLs
		case "run.finished":
			if t.RunSummary != nil {
				s.doc.Errored = t.RunSummary.Errored
				s.doc.Changed = t.RunSummary.Changed
				s.doc.ExitCode = t.RunSummary.ExitCode
			}
		}
	case drift.Outcome:
		s.doc.Outcomes = append(s.doc.Outcomes, t)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil
	}
	s.done = true

	if s.format == "ndjson" {
		return s.file.Close()
	}

	doc := s.doc
	if doc.Outcomes == nil {
		doc.Outcomes = []drift.Outcome{}
	}
	sort.SliceStable(doc.Outcomes, func(i, j int) bool { return doc.Outcomes[i].Index < doc.Outcomes[j].Index })
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return writeFileReplace(s.path, append(b, '\n'))
}

// Discard leaves an existing json document in place. An ndjson stream is
// closed as is; its last event records the fatal exit code.
func (s *FileSink) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil
	}
	s.done = true
	s.doc = RunDocument{}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
