package engine

import "driftwatch/internal/fetcher"

// FetchResult is one completed fetch, tagged with the position of its URL in
// the run's input list.
//
// It is emitted by the scheduler and consumed by the engine, which classifies
// it and records the digest.
type FetchResult struct {
	Index  int
	Result fetcher.Result
}
