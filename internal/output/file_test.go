package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"driftwatch/internal/drift"
)

func TestInferFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "run.json", want: "json"},
		{path: "run.NDJSON", want: "ndjson"},
		{path: "run.jsonl", want: "ndjson"},
		{path: "run.txt", wantErr: true},
		{path: "run", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := InferFormat(tt.path)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "cannot infer output format") {
					t.Fatalf("expected inference error, got %q, %v", got, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("InferFormat(%q) = %q, %v; want %q", tt.path, got, err, tt.want)
			}
		})
	}
}

func TestNewFileSink_UnsupportedFormat_Errors(t *testing.T) {
	_, err := NewFileSink(filepath.Join(t.TempDir(), "out.json"), "xml")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported output format") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFileSink_JSON_BuildsRunDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")

	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("json output must not exist before Close, stat err=%v", err)
	}

	writes := []any{
		Event{Type: "run.started", RunID: "r1", URLs: 2, Store: "x.earlier"},
		drift.Outcome{Index: 1, URL: "http://b.test", Kind: drift.KindErrored, Reason: "http status 404"},
		drift.Outcome{Index: 0, URL: "http://a.test", Kind: drift.KindChanged, Status: 200, Digest: digestB, Previous: digestA},
		Event{Type: "run.finished", RunID: "r1", RunSummary: &RunSummary{Errored: 1, Changed: 1, ExitCode: 2}},
	}
	for _, w := range writes {
		if err := s.Write(w); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var doc RunDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v\nbody=%s", err, string(b))
	}
	if doc.RunID != "r1" || doc.Store != "x.earlier" || doc.URLs != 2 {
		t.Fatalf("unexpected run header: %+v", doc)
	}
	if doc.Errored != 1 || doc.Changed != 1 || doc.ExitCode != 2 {
		t.Fatalf("unexpected run totals: %+v", doc)
	}
	if len(doc.Outcomes) != 2 || doc.Outcomes[0].URL != "http://a.test" || doc.Outcomes[1].Reason != "http status 404" {
		t.Fatalf("outcomes must be in input order: %+v", doc.Outcomes)
	}
}

func TestFileSink_JSON_EmptyRunWritesEmptyOutcomes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	s, err := NewFileSink(path, "json")
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(b), `"outcomes": []`) {
		t.Fatalf("expected empty outcomes array, got %s", string(b))
	}
}

func TestFileSink_JSON_DiscardKeepsPreviousDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s, err := NewFileSink(path, "json")
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	if err := s.Write(drift.Outcome{URL: "http://a.test", Kind: drift.KindFirstSeen}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Discard(); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close after Discard failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(b) != "{}\n" {
		t.Fatalf("expected previous document to survive, got %q", string(b))
	}
}

func TestFileSink_NDJSON_StreamsEventsAndOutcomes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ndjson")

	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	if err := s.Write(Event{Type: "run.started"}); err != nil {
		t.Fatalf("Write event failed: %v", err)
	}
	if err := s.Write(drift.Outcome{URL: "http://a.test", Kind: drift.KindChanged, Status: 200, Digest: digestB, Previous: digestA}); err != nil {
		t.Fatalf("Write outcome failed: %v", err)
	}

	// Lines are on disk before Close.
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d\nbody=%s", len(lines), string(b))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var e1 Event
	if err := json.Unmarshal([]byte(lines[0]), &e1); err != nil {
		t.Fatalf("Unmarshal line 1 failed: %v", err)
	}
	if e1.Type != "run.started" {
		t.Fatalf("unexpected event type: %q", e1.Type)
	}

	var e2 Event
	if err := json.Unmarshal([]byte(lines[1]), &e2); err != nil {
		t.Fatalf("Unmarshal line 2 failed: %v", err)
	}
	if e2.Type != "url.result" || e2.Outcome == nil {
		t.Fatalf("unexpected url.result event: %#v", e2)
	}
	if e2.Outcome.Kind != drift.KindChanged || e2.Outcome.Previous != digestA {
		t.Fatalf("unexpected outcome payload: %#v", e2.Outcome)
	}

	if err := s.Write(Event{Type: "run.finished"}); err == nil {
		t.Fatalf("expected Write after Close to fail")
	}
}
