package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"driftwatch/internal/config"
	"driftwatch/internal/engine"
	"driftwatch/internal/flags"
	"driftwatch/internal/logger"

	"github.com/spf13/cobra"
)

var cfg = config.New()

var checkCmd = &cobra.Command{
	Use:   "check [url...]",
	Short: "Fetch URLs and report which ones changed",
	Long: `Fetch each URL once, fingerprint the body and compare it with the digest
store.

Each URL is classified as:
	first-seen  no earlier digest for this URL
	unchanged   same digest as the latest earlier record
	changed     different digest from the latest earlier record
	errored     transport failure or a status other than 200

A URL whose body matches the digest of any other URL is additionally marked as
a duplicate. Only successful fetches are recorded in the store.

URLs come from the positional arguments followed by --urls-file. URLs are never
split on commas.

Output:
	The run-output file (--output, default test_results.txt) is rewritten every
	run with one line per URL, in input order:
	  <url>: OK <status> <digest> first-seen|unchanged|changed-from <digest>[ duplicate-of <url>,...]
	  <url>: ERROR <reason>
	The digest store defaults to <output>.earlier and is append-only.

	Console output is controlled by --console-format (default: text) and
	--console-filter. --out writes a run document object (json) or an NDJSON
	stream (ndjson).

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, url.result, run.finished).

Exit codes:
	0 = clean run, nothing changed
	1 = drift detected
	2 = partial failure (some URLs errored)
	3 = fatal error (bad usage, unreadable store, output failure, interrupted)

Examples:
	driftwatch check https://example.com/ https://example.com/about

	# Read URLs from a file, stream machine-readable events
	driftwatch check --urls-file urls.txt --console-format ndjson

	# Keep history somewhere else
	driftwatch check --store /var/lib/driftwatch/history https://example.com/
`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		code := runCheck(ctx, cmd.ErrOrStderr(), cfg, args, engine.NewEngine())
		stop()
		os.Exit(code)
	},
}

type runner interface {
	Run(ctx context.Context, cfg *config.Config) int
}

// runCheck resolves the URL list, validates cfg and runs the engine. It
// returns the process exit code.
func runCheck(ctx context.Context, stderr io.Writer, cfg *config.Config, args []string, eng runner) int {
	urls, err := collectURLs(args, cfg.Targets.URLsFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return engine.ExitFatal
	}
	cfg.Targets.URLs = urls

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if len(cfg.Targets.URLs) == 0 {
			fmt.Fprintln(stderr, "Usage: driftwatch check [url...] [--urls-file FILE]")
		}
		return engine.ExitFatal
	}

	logger.Init(cfg.LoggerOptions())
	return eng.Run(ctx, cfg)
}

func collectURLs(args []string, urlsFile string) ([]string, error) {
	urls := append([]string(nil), args...)
	if urlsFile == "" {
		return urls, nil
	}
	f, err := os.Open(urlsFile)
	if err != nil {
		return nil, fmt.Errorf("read --%s: %w", flags.FlagURLsFile, err)
	}
	defer f.Close()
	fromFile, err := config.ReadURLList(f)
	if err != nil {
		return nil, fmt.Errorf("read --%s: %w", flags.FlagURLsFile, err)
	}
	return append(urls, fromFile...), nil
}

func init() {
	rootCmd.AddCommand(checkCmd)

	// MAINTAINER NOTE: If you add/change/remove any check-affecting flags here,
	// keep internal/config/config.go (fields and Validate) in sync.

	// Targets
	checkCmd.Flags().StringVar(&cfg.Targets.URLsFile, flags.FlagURLsFile, "", "Read additional URLs from this file (one per line; '#' comments allowed)")

	// Store
	checkCmd.Flags().StringVar(&cfg.Store.Path, flags.FlagStore, "", "Digest store path (default: <output>.earlier)")

	// Fetch
	checkCmd.Flags().DurationVar(&cfg.Fetch.RequestTimeout, flags.FlagRequestTimeout, cfg.Fetch.RequestTimeout, "Timeout for a single request including the body")
	checkCmd.Flags().IntVar(&cfg.Fetch.MaxRedirects, flags.FlagMaxRedirects, cfg.Fetch.MaxRedirects, "Redirects to follow (0 = report 3xx as errors)")
	checkCmd.Flags().Int64Var(&cfg.Fetch.MaxBodyBytes, flags.FlagMaxBody, 0, "Maximum body size in bytes (0 = unlimited)")
	checkCmd.Flags().Float64Var(&cfg.Fetch.Rate, flags.FlagRate, 0, "Maximum requests per second across all workers (0 = unlimited)")
	checkCmd.Flags().IntVar(&cfg.Fetch.Burst, flags.FlagBurst, cfg.Fetch.Burst, "Burst size for --rate")
	checkCmd.Flags().StringVar(&cfg.Fetch.UserAgent, flags.FlagUserAgent, cfg.Fetch.UserAgent, "User-Agent header sent with every request")

	// Output
	checkCmd.Flags().StringVarP(&cfg.Output.Path, flags.FlagOutput, "o", cfg.Output.Path, "Run-output file, rewritten every run")
	checkCmd.Flags().StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|ndjson (default: text)")
	checkCmd.Flags().StringSliceVar(&cfg.Output.ConsoleFilter, flags.FlagConsoleFilter, nil, "Only print these kinds on the console: errored, first-seen, changed, unchanged, duplicate. Comma-separated.")
	checkCmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (the run-output file is still written)")
	checkCmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	checkCmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")

	// Runtime
	checkCmd.Flags().IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, cfg.Runtime.Concurrency, "Concurrent fetches")
	checkCmd.Flags().DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Timeout for the whole run")
}
