package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"driftwatch/internal/flags"
	"driftwatch/internal/logger"
	"driftwatch/internal/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyQuiet bool

var historyCmd = &cobra.Command{
	Use:   "history [url...]",
	Short: "Show the digests recorded in the digest store",
	Long: `Show what the digest store remembers, grouped by URL.

URLs are listed in the order they were first recorded. With arguments, only
those URLs are shown. The store is only read, never written.

Examples:
  driftwatch history
  driftwatch history https://example.com/
  driftwatch history --output nightly.txt -q

Output:
  A vertical list of URLs:
    ----------------------------------------
    URL: {URL}
    ----------------------------------------
      #{SEQ}  {DIGEST}  first-seen|unchanged|changed
    Also served by: {URL}, ...
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateStore(); err != nil {
			return err
		}
		if err := cfg.ValidateLogging(); err != nil {
			return err
		}
		logger.Init(cfg.LoggerOptions())
		return printHistory(cmd.OutOrStdout(), cfg.StorePath(), args, historyQuiet)
	},
}

func printHistory(w io.Writer, path string, only []string, quiet bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(w, "No history recorded at %s\n", path)
			return nil
		}
		return err
	}

	obs, err := store.Load(path)
	if err != nil {
		return err
	}
	order, groups := store.GroupByURL(obs)

	if len(only) > 0 {
		var missing []string
		var filtered []string
		for _, u := range only {
			u = strings.TrimSpace(u)
			if _, ok := groups[u]; !ok {
				missing = append(missing, u)
				continue
			}
			filtered = append(filtered, u)
		}
		if len(missing) > 0 {
			return fmt.Errorf("no history for: %s", strings.Join(missing, ", "))
		}
		order = filtered
	}

	for _, u := range order {
		if quiet {
			fmt.Fprintln(w, u)
			continue
		}
		printURLHistory(w, u, groups[u], obs)
	}
	return nil
}

func printURLHistory(w io.Writer, url string, records []store.Observation, all []store.Observation) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "URL: %s\n", url)
	fmt.Fprintln(w, "----------------------------------------")

	prev := ""
	for i, r := range records {
		kind := "unchanged"
		switch {
		case i == 0:
			kind = "first-seen"
		case r.Digest != prev:
			kind = "changed"
		}
		fmt.Fprintf(w, "  #%d  %s  %s\n", r.Seq, r.Digest, kind)
		prev = r.Digest
	}

	var others []string
	for _, u := range store.AnyMatching(all, prev) {
		if u != url {
			others = append(others, u)
		}
	}
	if len(others) > 0 {
		fmt.Fprintf(w, "Also served by: %s\n", strings.Join(others, ", "))
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolVarP(&historyQuiet, "quiet", "q", false, "Only print URLs")
	historyCmd.Flags().StringVarP(&cfg.Output.Path, flags.FlagOutput, "o", cfg.Output.Path, "Run-output file the store is derived from")
	historyCmd.Flags().StringVar(&cfg.Store.Path, flags.FlagStore, "", "Digest store path (default: <output>.earlier)")
}
