// Package drift classifies fetched content against the digest history.
package drift

import (
	"errors"
	"fmt"

	"driftwatch/internal/fetcher"
	"driftwatch/internal/fingerprint"
	"driftwatch/internal/store"
)

// Classify compares digest for url against the history.
//
// snapshot is the history as loaded at the start of the run and decides
// first-seen/changed/unchanged. history additionally includes this run's
// appends and decides DuplicateOf. The URL itself is never listed as its own
// duplicate.
func Classify(snapshot, history []store.Observation, url, digest string) Outcome {
	o := Outcome{URL: url, Digest: digest}

	prev, ok := store.LatestFor(snapshot, url)
	switch {
	case !ok:
		o.Kind = KindFirstSeen
	case prev != digest:
		o.Kind = KindChanged
		o.Previous = prev
	default:
		o.Kind = KindUnchanged
	}

	for _, u := range store.AnyMatching(history, digest) {
		if u == url {
			continue
		}
		o.DuplicateOf = append(o.DuplicateOf, u)
	}
	return o
}

// Detector turns fetch results into outcomes and records every successful
// fetch in the store. It is not safe for concurrent use; results must be
// observed in input order.
type Detector struct {
	store    *store.Store
	snapshot []store.Observation
}

// NewDetector captures the store's start-of-run snapshot. The store must
// already be loaded.
func NewDetector(s *store.Store) (*Detector, error) {
	if s == nil {
		return nil, errors.New("digest store is nil")
	}
	return &Detector{store: s, snapshot: s.Snapshot()}, nil
}

// Observe classifies res and appends its observation. A failed fetch becomes
// an errored outcome and leaves the store untouched. The returned error is
// always a store failure and is fatal for the run.
func (d *Detector) Observe(index int, res fetcher.Result) (Outcome, error) {
	if !res.OK() {
		return Outcome{
			Index:  index,
			URL:    res.URL,
			Kind:   KindErrored,
			Status: res.StatusCode,
			Reason: res.Reason(),
		}, nil
	}

	digest := fingerprint.Digest(res.Body)
	o := Classify(d.snapshot, d.store.Observations(), res.URL, digest)
	o.Index = index
	o.Status = res.StatusCode
	if res.FinalURL != "" && res.FinalURL != res.URL {
		o.FinalURL = res.FinalURL
	}

	if _, err := d.store.Append(res.URL, digest); err != nil {
		return Outcome{}, fmt.Errorf("record %s: %w", res.URL, err)
	}
	return o, nil
}
