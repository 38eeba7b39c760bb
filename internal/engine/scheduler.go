package engine

import (
	"context"
	"errors"
	"fmt"

	"driftwatch/internal/fetcher"

	"golang.org/x/sync/errgroup"
)

// FetchFunc performs one fetch. Failures are carried on the Result.
type FetchFunc func(ctx context.Context, url string) fetcher.Result

type Scheduler struct {
	fetch       FetchFunc
	concurrency int
}

func NewScheduler(fetch FetchFunc, concurrency int) (*Scheduler, error) {
	if fetch == nil {
		return nil, errors.New("fetch func is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{fetch: fetch, concurrency: concurrency}, nil
}

// Execute fetches urls with at most s.concurrency requests in flight and
// streams the results in input order.
//
// Channel semantics:
//   - In the normal (non-canceled) case, exactly one FetchResult is sent per URL,
//     with Index 0..len(urls)-1 in ascending order.
//   - A fetch failure is a result, not an error: it is carried on Result.Err.
//   - On context cancellation, the scheduler stops promptly; it may emit fewer
//     than len(urls) results, and ctx.Err() is sent on the error channel.
//   - The results channel and error channel are both closed reliably.
func (s *Scheduler) Execute(ctx context.Context, urls []string) (<-chan FetchResult, <-chan error) {
	resultsCh := make(chan FetchResult)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultsCh)
		defer close(errCh)

		trySendErr := func(err error) {
			if err == nil {
				return
			}
			select {
			case errCh <- err:
			default:
			}
		}

		if ctx == nil {
			trySendErr(errors.New("context is nil"))
			return
		}
		if s == nil {
			trySendErr(errors.New("scheduler is nil"))
			return
		}
		if s.fetch == nil {
			trySendErr(errors.New("scheduler fetch func is nil"))
			return
		}
		if s.concurrency <= 0 {
			trySendErr(fmt.Errorf("scheduler concurrency must be >= 1, got %d", s.concurrency))
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		// One buffered slot per URL so a worker never waits on the consumer.
		slots := make([]chan fetcher.Result, len(urls))
		for i := range slots {
			slots[i] = make(chan fetcher.Result, 1)
		}

		g := new(errgroup.Group)
		g.SetLimit(s.concurrency)

		dispatched := make(chan struct{})
		go func() {
			defer close(dispatched)
			for i, u := range urls {
				if runCtx.Err() != nil {
					return
				}
				g.Go(func() error {
					slots[i] <- s.fetch(runCtx, u)
					return nil
				})
			}
		}()

	consumeLoop:
		for i := range urls {
			var res fetcher.Result
			select {
			case res = <-slots[i]:
			case <-runCtx.Done():
				break consumeLoop
			}
			select {
			case resultsCh <- FetchResult{Index: i, Result: res}:
			case <-runCtx.Done():
				break consumeLoop
			}
		}

		cancel()
		<-dispatched
		_ = g.Wait()
		trySendErr(ctx.Err())
	}()

	return resultsCh, errCh
}
