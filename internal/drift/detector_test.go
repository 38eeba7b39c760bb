package drift

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"driftwatch/internal/fetcher"
	"driftwatch/internal/fingerprint"
	"driftwatch/internal/store"
)

var (
	bodyA   = []byte("content a")
	bodyB   = []byte("content b")
	digestA = fingerprint.Digest(bodyA)
	digestB = fingerprint.Digest(bodyB)
)

func newLoadedStore(t *testing.T, contents string) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.txt.earlier")
	if contents != "" {
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	s, err := store.New(path)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func newDetector(t *testing.T, s *store.Store) *Detector {
	t.Helper()
	d, err := NewDetector(s)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return d
}

func ok(url string, body []byte) fetcher.Result {
	return fetcher.Result{URL: url, StatusCode: 200, Body: body}
}

func TestClassify(t *testing.T) {
	history := []store.Observation{
		{URL: "http://a.test", Digest: digestA, Seq: 0},
	}

	tests := []struct {
		name     string
		url      string
		digest   string
		wantKind Kind
		wantPrev string
		wantDups []string
	}{
		{name: "first_seen", url: "http://new.test", digest: digestB, wantKind: KindFirstSeen},
		{name: "changed", url: "http://a.test", digest: digestB, wantKind: KindChanged, wantPrev: digestA},
		{name: "unchanged", url: "http://a.test", digest: digestA, wantKind: KindUnchanged},
		{name: "first_seen_duplicate", url: "http://b.test", digest: digestA, wantKind: KindFirstSeen, wantDups: []string{"http://a.test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Classify(history, history, tt.url, tt.digest)
			if o.Kind != tt.wantKind {
				t.Fatalf("expected kind %s, got %s", tt.wantKind, o.Kind)
			}
			if o.Previous != tt.wantPrev {
				t.Fatalf("expected previous %q, got %q", tt.wantPrev, o.Previous)
			}
			if !reflect.DeepEqual(o.DuplicateOf, tt.wantDups) {
				t.Fatalf("expected duplicates %v, got %v", tt.wantDups, o.DuplicateOf)
			}
		})
	}
}

func TestClassify_UsesSnapshotForPreviousButHistoryForDuplicates(t *testing.T) {
	snapshot := []store.Observation{{URL: "http://a.test", Digest: digestA, Seq: 0}}
	history := append(append([]store.Observation(nil), snapshot...),
		store.Observation{URL: "http://a.test", Digest: digestB, Seq: 1},
		store.Observation{URL: "http://c.test", Digest: digestB, Seq: 2},
	)

	o := Classify(snapshot, history, "http://a.test", digestB)
	if o.Kind != KindChanged || o.Previous != digestA {
		t.Fatalf("expected changed from snapshot digest, got %+v", o)
	}
	if !reflect.DeepEqual(o.DuplicateOf, []string{"http://c.test"}) {
		t.Fatalf("expected same-run duplicate, got %v", o.DuplicateOf)
	}
}

func TestClassify_ExcludesSelfFromDuplicates(t *testing.T) {
	history := []store.Observation{
		{URL: "http://a.test", Digest: digestA, Seq: 0},
		{URL: "http://a.test", Digest: digestA, Seq: 1},
	}
	o := Classify(history, history, "http://a.test", digestA)
	if o.Duplicate() {
		t.Fatalf("a URL must not be a duplicate of itself: %v", o.DuplicateOf)
	}
}

func TestClassify_ThreeWayCollision(t *testing.T) {
	history := []store.Observation{
		{URL: "http://c.test", Digest: digestA, Seq: 0},
		{URL: "http://a.test", Digest: digestA, Seq: 1},
		{URL: "http://c.test", Digest: digestA, Seq: 2},
	}
	o := Classify(history, history, "http://b.test", digestA)
	want := []string{"http://c.test", "http://a.test"}
	if !reflect.DeepEqual(o.DuplicateOf, want) {
		t.Fatalf("expected %v, got %v", want, o.DuplicateOf)
	}
}

func TestNewDetector_NilStore(t *testing.T) {
	if _, err := NewDetector(nil); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestObserve_MissingStoreBootstrap(t *testing.T) {
	s := newLoadedStore(t, "")
	d := newDetector(t, s)

	for i, u := range []string{"http://a.test", "http://b.test"} {
		o, err := d.Observe(i, ok(u, []byte(u)))
		if err != nil {
			t.Fatalf("Observe returned error: %v", err)
		}
		if o.Kind != KindFirstSeen {
			t.Fatalf("expected first-seen for %s, got %s", u, o.Kind)
		}
		if o.Index != i || o.Status != 200 {
			t.Fatalf("unexpected outcome %+v", o)
		}
	}
}

func TestObserve_ErroredLeavesStoreUntouched(t *testing.T) {
	s := newLoadedStore(t, "http://a.test: "+digestA+"\n")
	d := newDetector(t, s)

	res := fetcher.Result{URL: "http://a.test", StatusCode: 503, Err: &fetcher.StatusError{Code: 503}}
	o, err := d.Observe(0, res)
	if err != nil {
		t.Fatalf("Observe returned error: %v", err)
	}
	if !o.Errored() || o.Reason != "http status 503" {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if o.Digest != "" || o.Duplicate() {
		t.Fatalf("errored outcomes carry no digest or duplicates: %+v", o)
	}
	if n := len(s.Observations()); n != 1 {
		t.Fatalf("expected store to be untouched, got %d records", n)
	}
}

// Store holds a.test -> A. a.test now serves B and b.test serves A.
func TestObserve_ChangedAndCrossURLDuplicateScenario(t *testing.T) {
	s := newLoadedStore(t, "http://a.test: "+digestA+"\n")
	d := newDetector(t, s)

	oa, err := d.Observe(0, ok("http://a.test", bodyB))
	if err != nil {
		t.Fatalf("Observe(a) returned error: %v", err)
	}
	if oa.Kind != KindChanged || oa.Previous != digestA || oa.Digest != digestB {
		t.Fatalf("expected a.test changed(A, B), got %+v", oa)
	}
	if oa.Duplicate() {
		t.Fatalf("a.test should have no duplicates, got %v", oa.DuplicateOf)
	}

	ob, err := d.Observe(1, ok("http://b.test", bodyA))
	if err != nil {
		t.Fatalf("Observe(b) returned error: %v", err)
	}
	if ob.Kind != KindFirstSeen || ob.Digest != digestA {
		t.Fatalf("expected b.test first-seen(A), got %+v", ob)
	}
	if !reflect.DeepEqual(ob.DuplicateOf, []string{"http://a.test"}) {
		t.Fatalf("expected b.test duplicate of a.test, got %v", ob.DuplicateOf)
	}

	reloaded, err := store.Load(s.Path())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(reloaded) != 3 {
		t.Fatalf("expected 3 records, got %d", len(reloaded))
	}
}

func TestObserve_UnchangedAcrossRuns(t *testing.T) {
	s := newLoadedStore(t, "")
	d := newDetector(t, s)
	if _, err := d.Observe(0, ok("http://a.test", bodyA)); err != nil {
		t.Fatalf("Observe returned error: %v", err)
	}

	// Next run.
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	d = newDetector(t, s)
	o, err := d.Observe(0, ok("http://a.test", bodyA))
	if err != nil {
		t.Fatalf("Observe returned error: %v", err)
	}
	if o.Kind != KindUnchanged || o.Digest != digestA {
		t.Fatalf("expected unchanged, got %+v", o)
	}
}

func TestObserve_SameURLTwiceInOneRun(t *testing.T) {
	s := newLoadedStore(t, "")
	d := newDetector(t, s)

	first, err := d.Observe(0, ok("http://a.test", bodyA))
	if err != nil {
		t.Fatalf("Observe returned error: %v", err)
	}
	second, err := d.Observe(1, ok("http://a.test", bodyB))
	if err != nil {
		t.Fatalf("Observe returned error: %v", err)
	}
	if first.Kind != KindFirstSeen || second.Kind != KindFirstSeen {
		t.Fatalf("same-run appends must not count as previous content: %s, %s", first.Kind, second.Kind)
	}
}

func TestObserve_RecordsFinalURLOnRedirect(t *testing.T) {
	s := newLoadedStore(t, "")
	d := newDetector(t, s)

	res := ok("http://a.test/old", bodyA)
	res.FinalURL = "http://a.test/new"
	o, err := d.Observe(0, res)
	if err != nil {
		t.Fatalf("Observe returned error: %v", err)
	}
	if o.FinalURL != "http://a.test/new" {
		t.Fatalf("expected final URL, got %q", o.FinalURL)
	}
	obs := s.Observations()
	if len(obs) != 1 || obs[0].URL != "http://a.test/old" {
		t.Fatalf("history must be keyed by the requested URL, got %v", obs)
	}
}

func TestObserve_StoreWriteFailureIsFatal(t *testing.T) {
	s := newLoadedStore(t, "")
	d := newDetector(t, s)

	// Replace the log with a directory so the append cannot open it.
	if err := os.Remove(s.Path()); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := os.Mkdir(s.Path(), 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	_, err := d.Observe(0, ok("http://a.test", bodyA))
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !errors.Is(err, store.ErrStoreIO) {
		t.Fatalf("expected ErrStoreIO, got %v", err)
	}
	if !strings.Contains(err.Error(), "http://a.test") {
		t.Fatalf("expected URL in error, got %v", err)
	}
}
