package flags

// Package flags defines canonical CLI flag names shared across the CLI and
// other code that needs to reference flags (validation messages, tests).
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Output.Path, flags.FlagOutput, "", "...")
//	arg := "--" + flags.FlagOutput
const (
	// Targets
	FlagURLsFile = "urls-file"

	// Store
	FlagStore = "store"

	// Fetch
	FlagRequestTimeout = "request-timeout"
	FlagMaxRedirects   = "max-redirects"
	FlagMaxBody        = "max-body"
	FlagRate           = "rate"
	FlagBurst          = "burst"
	FlagUserAgent      = "user-agent"

	// Output
	FlagOutput        = "output"
	FlagConsoleFormat = "console-format"
	FlagConsoleFilter = "console-filter"
	FlagNoConsole     = "no-console"
	FlagOut           = "out"
	FlagOutFormat     = "out-format"

	// Runtime
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagVerbose     = "verbose"
	FlagLogLevel    = "log-level"
	FlagLogFormat   = "log-format"
)
