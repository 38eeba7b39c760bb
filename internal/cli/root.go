package cli

import (
	"fmt"
	"os"

	"driftwatch/internal/flags"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "driftwatch",
	Short: "Detect content drift on a list of URLs",
	Long: `driftwatch fetches a list of URLs, fingerprints each response body with
SHA-256 and compares it against the digest recorded on earlier runs.

driftwatch is read-only towards the watched sites: one cache-bypassing GET per
URL per run, no retries. History lives in an append-only digest store next to
the run-output file.

Examples:
	# Show available commands and global flags
	driftwatch --help

	# Check two pages
	driftwatch check https://example.com/ https://example.com/pricing

	# Show what the digest store remembers
	driftwatch history

	# Print build info
	driftwatch version

Output:
	By default, commands write human-readable output to stdout.
	Diagnostics and logs go to stderr.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (debug level; one line per fetch)")
	rootCmd.PersistentFlags().StringVar(&cfg.Runtime.LogLevel, flags.FlagLogLevel, "", "Log level: debug|info|warn|error|disabled (default: $DRIFTWATCH_LOG_LEVEL or warn)")
	rootCmd.PersistentFlags().StringVar(&cfg.Runtime.LogFormat, flags.FlagLogFormat, "", "Log format: console|json (default: $DRIFTWATCH_LOG_FORMAT or console)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// Execute runs the root command. Command-line errors exit 3, like every
// other failure that prevents a run.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(3)
	}
}
