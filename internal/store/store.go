// Package store persists the append-only history of (url, digest) observations.
//
// The on-disk format is one record per line:
//
//	<url>: <digest>\n
//
// Records are never rewritten or removed. Everything that knows about the text
// format lives in this package (see record.go).
package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Observation is one historical record. Seq is the record's position in the
// log, oldest first.
type Observation struct {
	URL    string `json:"url"`
	Digest string `json:"digest"`
	Seq    int    `json:"seq"`
}

// Store owns the digest log for the duration of one run.
//
// All reads and writes are serialized through the Store, so callers may share
// it between goroutines; appends never interleave.
type Store struct {
	path string

	mu       sync.Mutex
	loaded   bool
	snapshot []Observation
	appended []Observation
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("digest store path required")
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the full log into memory, creating an empty log if none exists.
// The result becomes the start-of-run snapshot used for drift comparison.
//
// Load may be called repeatedly; it never writes to an existing log.
func (s *Store) Load() ([]Observation, error) {
	if s == nil {
		return nil, errors.New("Load: nil Store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	obs, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	s.snapshot = obs
	s.appended = nil
	s.loaded = true
	return cloneObservations(obs), nil
}

// Append adds one observation to the end of the log. The record is written
// with a single write and synced before Append returns, so a run aborted
// mid-flight leaves only complete records behind.
func (s *Store) Append(url, digest string) (Observation, error) {
	if s == nil {
		return Observation{}, errors.New("Append: nil Store")
	}
	line, err := formatRecord(url, digest)
	if err != nil {
		return Observation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return Observation{}, errors.New("Append: store not loaded (call Load first)")
	}

	if err := appendLine(s.path, line); err != nil {
		return Observation{}, err
	}

	o := Observation{URL: url, Digest: digest, Seq: len(s.snapshot) + len(s.appended)}
	s.appended = append(s.appended, o)
	return o, nil
}

// Snapshot returns the observations as loaded at the start of the run.
func (s *Store) Snapshot() []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneObservations(s.snapshot)
}

// Observations returns the loaded observations followed by everything
// appended since.
func (s *Store) Observations() []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observation, 0, len(s.snapshot)+len(s.appended))
	out = append(out, s.snapshot...)
	out = append(out, s.appended...)
	return out
}

// Appended returns only the observations written by this Store since Load.
func (s *Store) Appended() []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneObservations(s.appended)
}

// Load reads every observation from the log at path. A missing log is
// created empty.
func Load(path string) ([]Observation, error) {
	if path == "" {
		return nil, errors.New("digest store path required")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &IOError{Op: "create directory for", Path: path, Err: err}
		}
	}

	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	var out []Observation
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		raw, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, &IOError{Op: "read", Path: path, Err: err}
		}
		if raw == "" && errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.EOF) {
			// Data after the last newline is a record that was never completed.
			return nil, &CorruptError{Path: path, Line: lineNo, Text: raw, Reason: "missing trailing newline"}
		}

		o, perr := parseRecord(raw)
		if perr != nil {
			return nil, &CorruptError{Path: path, Line: lineNo, Text: trimNewline(raw), Reason: perr.Error()}
		}
		o.Seq = len(out)
		out = append(out, o)
	}
	return out, nil
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return &IOError{Op: "append to", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return &IOError{Op: "sync", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// LatestFor returns the digest of the most recent observation of url.
//
// Callers pass the start-of-run snapshot so that observations appended during
// the current run never count as "previous" content.
func LatestFor(obs []Observation, url string) (string, bool) {
	for i := len(obs) - 1; i >= 0; i-- {
		if obs[i].URL == url {
			return obs[i].Digest, true
		}
	}
	return "", false
}

// AnyMatching returns the distinct URLs whose digest equals digest, in order
// of first appearance.
func AnyMatching(obs []Observation, digest string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, o := range obs {
		if o.Digest != digest {
			continue
		}
		if _, ok := seen[o.URL]; ok {
			continue
		}
		seen[o.URL] = struct{}{}
		out = append(out, o.URL)
	}
	return out
}

// GroupByURL returns observations grouped by URL. URLs are ordered by first
// appearance; each group keeps log order.
func GroupByURL(obs []Observation) ([]string, map[string][]Observation) {
	var order []string
	groups := make(map[string][]Observation)
	for _, o := range obs {
		if _, ok := groups[o.URL]; !ok {
			order = append(order, o.URL)
		}
		groups[o.URL] = append(groups[o.URL], o)
	}
	return order, groups
}

func cloneObservations(in []Observation) []Observation {
	if in == nil {
		return nil
	}
	out := make([]Observation, len(in))
	copy(out, in)
	return out
}

// IOError reports a failure to read or write the log.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("digest store: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrStoreIO }

// CorruptError reports a log line that does not match the record format.
type CorruptError struct {
	Path   string
	Line   int
	Text   string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("digest store %s:%d: corrupt record %q: %s", e.Path, e.Line, e.Text, e.Reason)
}

func (e *CorruptError) Is(target error) bool { return target == ErrStoreCorrupt }

var (
	ErrStoreCorrupt = errors.New("digest store is corrupt")
	ErrStoreIO      = errors.New("digest store I/O failure")
)
