package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"driftwatch/internal/logger"
)

// StoreSuffix is appended to the run-output path to derive the digest store
// path when --store is not given.
const StoreSuffix = ".earlier"

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect a
	// check run, keep the CLI flags in internal/cli/check.go in sync.
	Targets Targets
	Store   Store
	Fetch   Fetch
	Output  Output
	Runtime Runtime
}

type Targets struct {
	// URLs are the addresses to fetch, in report order (positional arguments).
	// URLs are not split on commas; commas are legal inside URLs.
	URLs []string

	// URLsFile names a file with one URL per line (see --urls-file).
	// Blank lines and lines starting with '#' are ignored. Its URLs follow the
	// positional ones.
	URLsFile string
}

type Store struct {
	// Path is the digest store file (see --store).
	// Empty means Output.Path + StoreSuffix.
	Path string
}

type Fetch struct {
	// RequestTimeout bounds a single GET including reading the body (see --request-timeout).
	// Must be > 0.
	RequestTimeout time.Duration

	// MaxRedirects is how many redirects to follow before failing (see --max-redirects).
	// 0 disables following; the 3xx response is then reported as an HTTP status failure.
	MaxRedirects int

	// MaxBodyBytes caps how much of a body is read (see --max-body). 0 means unlimited.
	MaxBodyBytes int64

	// Rate limits requests per second across all workers (see --rate). 0 means unlimited.
	Rate float64

	// Burst is the limiter burst size when Rate > 0 (see --burst). Must be >= 1.
	Burst int

	// UserAgent is sent with every request (see --user-agent).
	UserAgent string
}

type Output struct {
	// Path is the run-output file, rewritten every run (see --output).
	Path string

	// ConsoleFormat controls the stdout sink (see --console-format).
	// Allowed values: text, ndjson.
	ConsoleFormat string

	// ConsoleFilter limits console lines to these outcome kinds (see --console-filter).
	// Allowed values: errored, first-seen, changed, unchanged, duplicate. Empty shows everything.
	// The summary line still counts every URL.
	ConsoleFilter []string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool

	// Out writes structured outcomes to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string
}

type Runtime struct {
	// Concurrency bounds how many fetches run at once (see --concurrency).
	// Must be >= 1.
	Concurrency int

	// Timeout bounds the whole run (see --timeout). Must be > 0.
	Timeout time.Duration

	// Verbose forces debug logging (see --verbose).
	Verbose bool

	// LogLevel is the zerolog level name (see --log-level). Empty defers to the environment.
	LogLevel string

	// LogFormat selects console or json log lines (see --log-format). Empty defers to the environment.
	LogFormat string
}

func New() *Config {
	return &Config{
		Fetch: Fetch{
			RequestTimeout: 30 * time.Second,
			MaxRedirects:   10,
			Burst:          1,
			UserAgent:      "driftwatch",
		},
		Output: Output{
			Path:          "test_results.txt",
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Concurrency: 5,
			Timeout:     10 * time.Minute,
		},
	}
}

// StorePath returns the digest store path, derived from the run-output path
// unless set explicitly.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return c.Output.Path + StoreSuffix
}

// LoggerOptions merges CLI logging settings over the environment defaults.
func (c *Config) LoggerOptions() logger.Options {
	opt := logger.FromEnv()
	if c.Runtime.LogLevel != "" {
		opt.Level = c.Runtime.LogLevel
	}
	if c.Runtime.LogFormat != "" {
		opt.Format = c.Runtime.LogFormat
	}
	if c.Runtime.Verbose {
		opt.Level = "debug"
	}
	return opt
}

// Validate normalizes the configuration and reports the first problem found.
// It validates everything needed for a check run; see ValidateStore for the
// subset used by read-only commands.
func (c *Config) Validate() error {
	c.Targets.URLs = normalizeURLs(c.Targets.URLs)
	if len(c.Targets.URLs) == 0 {
		return errors.New("at least one URL must be provided")
	}
	for _, u := range c.Targets.URLs {
		if strings.ContainsAny(u, "\r\n") {
			return fmt.Errorf("invalid URL %q: must not contain line breaks", u)
		}
	}

	if err := c.ValidateStore(); err != nil {
		return err
	}

	// Fetch validation
	if c.Fetch.RequestTimeout <= 0 {
		return errors.New("--request-timeout must be > 0")
	}
	if c.Fetch.MaxRedirects < 0 {
		return errors.New("--max-redirects must be >= 0")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return errors.New("--max-body must be >= 0")
	}
	if c.Fetch.Rate < 0 {
		return errors.New("--rate must be >= 0")
	}
	if c.Fetch.Rate > 0 && c.Fetch.Burst < 1 {
		return errors.New("--burst must be >= 1 when --rate is set")
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, ndjson)", c.Output.ConsoleFormat)
	}

	filter, err := normalizeConsoleFilter(c.Output.ConsoleFilter)
	if err != nil {
		return err
	}
	c.Output.ConsoleFilter = filter

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
		if samePath(c.Output.Out, c.Output.Path) || samePath(c.Output.Out, c.StorePath()) {
			return errors.New("--out must differ from --output and the digest store")
		}
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}

	return c.ValidateLogging()
}

// ValidateStore checks the output and store paths.
func (c *Config) ValidateStore() error {
	c.Output.Path = strings.TrimSpace(c.Output.Path)
	c.Store.Path = strings.TrimSpace(c.Store.Path)
	if c.Output.Path == "" {
		return errors.New("--output must not be empty")
	}
	if samePath(c.Output.Path, c.StorePath()) {
		return errors.New("--store must differ from --output (the run-output file is rewritten every run)")
	}
	return nil
}

// ValidateLogging checks the logging flags.
func (c *Config) ValidateLogging() error {
	c.Runtime.LogLevel = normalizeEnumValue(c.Runtime.LogLevel)
	if c.Runtime.LogLevel != "" && !logger.ValidLevel(c.Runtime.LogLevel) {
		return fmt.Errorf("unsupported --log-level: %s", c.Runtime.LogLevel)
	}
	c.Runtime.LogFormat = normalizeEnumValue(c.Runtime.LogFormat)
	if c.Runtime.LogFormat != "" && c.Runtime.LogFormat != "console" && c.Runtime.LogFormat != "json" {
		return fmt.Errorf("unsupported --log-format: %s (must be one of: console, json)", c.Runtime.LogFormat)
	}
	return nil
}

// ReadURLList reads one URL per line. Blank lines and '#' comments are skipped.
func ReadURLList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

var consoleFilterValues = map[string]bool{
	"errored":    true,
	"first-seen": true,
	"changed":    true,
	"unchanged":  true,
	"duplicate":  true,
}

func normalizeConsoleFilter(values []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			v := normalizeEnumValue(part)
			if v == "" {
				continue
			}
			if !consoleFilterValues[v] {
				return nil, fmt.Errorf("unsupported --console-filter value: %s (must be one of: errored, first-seen, changed, unchanged, duplicate)", v)
			}
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

func normalizeURLs(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return filepath.Clean(a) == filepath.Clean(b)
}
