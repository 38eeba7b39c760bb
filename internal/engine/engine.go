package engine

import (
	"context"
	"fmt"
	"os"

	"driftwatch/internal/config"
	"driftwatch/internal/drift"
	"driftwatch/internal/fetcher"
	"driftwatch/internal/logger"
	"driftwatch/internal/output"
	"driftwatch/internal/store"

	"github.com/google/uuid"
)

// Exit code contract:
// 0 = clean run, nothing drifted
// 1 = drift detected (at least one URL changed)
// 2 = partial failure (at least one URL errored)
// 3 = fatal error (usage, config, store, output or cancellation)
const (
	ExitClean   = 0
	ExitDrift   = 1
	ExitPartial = 2
	ExitFatal   = 3
)

func exitCodeForRun(fatal, partial, drifted bool) int {
	if fatal {
		return ExitFatal
	}
	if partial {
		return ExitPartial
	}
	if drifted {
		return ExitDrift
	}
	return ExitClean
}

func setupOutputManager(cfg *config.Config) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(nil, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilter)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink (the run-output file)
	rs, err := output.NewReportSink(cfg.Output.Path)
	if err != nil {
		outMgr.Close()
		return nil, err
	}
	if err := outMgr.AddSink(rs); err != nil {
		outMgr.Close()
		return nil, err
	}

	return outMgr, nil
}

type Engine struct {
	// fetch is a test seam. If nil, Engine builds a real fetcher from cfg.Fetch.
	fetch FetchFunc
}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) fetchFunc(cfg *config.Config) FetchFunc {
	if e.fetch != nil {
		return e.fetch
	}
	f := fetcher.NewFetcher(fetcher.Options{
		RequestTimeout: cfg.Fetch.RequestTimeout,
		MaxRedirects:   cfg.Fetch.MaxRedirects,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
		UserAgent:      cfg.Fetch.UserAgent,
		Budget:         fetcher.NewRequestBudget(cfg.Fetch.Rate, cfg.Fetch.Burst),
	})
	return f.Fetch
}

func (e *Engine) executeStream(ctx context.Context, cfg *config.Config) (<-chan FetchResult, <-chan error) {
	scheduler, err := NewScheduler(e.fetchFunc(cfg), cfg.Runtime.Concurrency)
	if err != nil {
		resCh := make(chan FetchResult)
		errCh := make(chan error, 1)
		close(resCh)
		errCh <- err
		close(errCh)
		return resCh, errCh
	}
	return scheduler.Execute(ctx, cfg.Targets.URLs)
}

func openStore(cfg *config.Config) (*store.Store, *drift.Detector, error) {
	st, err := store.New(cfg.StorePath())
	if err != nil {
		return nil, nil, err
	}
	if _, err := st.Load(); err != nil {
		return nil, nil, err
	}
	det, err := drift.NewDetector(st)
	if err != nil {
		return nil, nil, err
	}
	return st, det, nil
}

type runTally struct {
	errored int
	changed int
}

// observeStream classifies each fetched URL in input order, records its digest
// and forwards the outcome to the sinks. It stops classifying at the first
// store failure but keeps draining resCh so the scheduler can exit.
func writeEvent(outMgr *output.Manager, ev output.Event, log *logger.Logger) {
	if err := outMgr.Write(ev); err != nil {
		log.Warn().Err(err).Str("event", ev.Type).Msg("sink write failed")
	}
}

func observeStream(cancel context.CancelFunc, det *drift.Detector, resCh <-chan FetchResult, outMgr *output.Manager, log *logger.Logger) (runTally, error) {
	var tally runTally
	var fatalErr error
	for res := range resCh {
		if fatalErr != nil {
			continue
		}
		o, err := det.Observe(res.Index, res.Result)
		if err != nil {
			fatalErr = err
			cancel()
			continue
		}
		switch {
		case o.Errored():
			tally.errored++
		case o.Drifted():
			tally.changed++
		}
		log.Debug().Str("url", o.URL).Str("kind", string(o.Kind)).Int("index", o.Index).Msg("url classified")
		if err := outMgr.Write(o); err != nil {
			log.Warn().Err(err).Str("url", o.URL).Msg("sink write failed")
		}
	}
	return tally, fatalErr
}

// Run executes one check run and returns its exit code. cfg must already be
// validated.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	runID := uuid.NewString()
	ctx = logger.WithRun(ctx, runID)
	log := logger.C(ctx)

	ctx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
	defer cancel()

	st, det, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading digest store: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	log.Info().
		Str("store", st.Path()).
		Int("records", len(st.Snapshot())).
		Int("urls", len(cfg.Targets.URLs)).
		Msg("run started")

	outMgr, err := setupOutputManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	writeEvent(outMgr, output.Event{Type: "run.started", RunID: runID, URLs: len(cfg.Targets.URLs), Store: st.Path()}, log)

	resCh, errCh := e.executeStream(ctx, cfg)
	tally, fatalErr := observeStream(cancel, det, resCh, outMgr, log)

	// Drain scheduler errors; a store failure already canceled the run and
	// takes precedence over the resulting context error.
	for err := range errCh {
		if err != nil && fatalErr == nil {
			fatalErr = err
		}
	}

	if fatalErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", fatalErr)
		log.Error().Err(fatalErr).Int("recorded", len(st.Appended())).Msg("run aborted")
		writeEvent(outMgr, output.Event{
			Type:       "run.finished",
			RunID:      runID,
			RunSummary: &output.RunSummary{Errored: tally.errored, Changed: tally.changed, ExitCode: ExitFatal},
		}, log)
		if err := outMgr.Discard(); err != nil {
			log.Warn().Err(err).Msg("discard sinks failed")
		}
		return exitCodeForRun(true, false, false)
	}

	code := exitCodeForRun(false, tally.errored > 0, tally.changed > 0)
	writeEvent(outMgr, output.Event{
		Type:       "run.finished",
		RunID:      runID,
		RunSummary: &output.RunSummary{Errored: tally.errored, Changed: tally.changed, ExitCode: code},
	}, log)
	if err := outMgr.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing results: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	log.Info().Int("exit_code", code).Int("errored", tally.errored).Int("changed", tally.changed).Msg("run finished")
	return code
}
