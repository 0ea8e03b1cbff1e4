package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

// CLIArgs are the command-line arguments of a single dispatcher run.
type CLIArgs struct {
	// ConfigPath is the scan configuration file (YAML or JSON).
	ConfigPath string

	// Target overrides target.path from the configuration.
	Target string

	// ResultsDir receives the artifacts and summary.json.
	ResultsDir string

	// ScanID names the artifacts; generated when empty.
	ScanID string

	// Concurrency bounds parallel scanners; 0 means "use config default".
	Concurrency int

	// Timeout bounds each scanner; 0 means "use config default".
	Timeout time.Duration

	// Runtime overrides the container runtime CLI.
	Runtime string

	// HistoryPath, when set, records the run in a scan history database.
	HistoryPath string

	// ReportsDir, when set, receives HTML/PDF reports.
	ReportsDir string

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

type flagValues struct {
	configPath, target, results, scanID, runtime, history, reports *string
	concurrency                                                    *int
	timeout                                                        *time.Duration
}

func newFlagSet() (*flag.FlagSet, flagValues) {
	fs := flag.NewFlagSet("secscan", flag.ContinueOnError)
	v := flagValues{
		configPath:  fs.String("config", "", "Scan configuration file, YAML or JSON (required)"),
		target:      fs.String("target", "", "Path to scan (default: target.path from the config)"),
		results:     fs.String("results", "", "Results directory (required)"),
		scanID:      fs.String("scan-id", "", "Scan id used in artifact names (default: random)"),
		concurrency: fs.Int("concurrency", 0, "Parallel scanner invocations (0=number of CPUs)"),
		timeout:     fs.Duration("timeout", 0, "Per-scanner timeout, e.g. 30m (0=use default)"),
		runtime:     fs.String("runtime", "", "Container runtime CLI (default: docker)"),
		history:     fs.String("history", "", "Record the run in this SQLite history database"),
		reports:     fs.String("reports", "", "Write HTML/PDF reports below this directory"),
	}
	return fs, v
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs, v := newFlagSet()

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if strings.TrimSpace(*v.configPath) == "" {
		return nil, fmt.Errorf("missing required -config argument")
	}
	if strings.TrimSpace(*v.results) == "" {
		return nil, fmt.Errorf("missing required -results argument")
	}
	if *v.concurrency < 0 {
		return nil, fmt.Errorf("-concurrency must not be negative")
	}
	if *v.timeout < 0 {
		return nil, fmt.Errorf("-timeout must not be negative")
	}

	return &CLIArgs{
		ConfigPath:  *v.configPath,
		Target:      *v.target,
		ResultsDir:  *v.results,
		ScanID:      *v.scanID,
		Concurrency: *v.concurrency,
		Timeout:     *v.timeout,
		Runtime:     *v.runtime,
		HistoryPath: *v.history,
		ReportsDir:  *v.reports,
		RawArgs:     args,
	}, nil
}

// Usage prints the flag summary to w.
func Usage(w io.Writer) {
	fs, _ := newFlagSet()
	fs.SetOutput(w)
	fmt.Fprintln(w, "usage: secscan -config FILE -results DIR [flags]")
	fs.PrintDefaults()
}
