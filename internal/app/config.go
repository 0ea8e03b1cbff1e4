package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/raysh454/secscan/internal/model"
)

// Config holds the process-level settings shared by the CLI and the API
// server. Scan-level choices live in config.ScanConfiguration.
type Config struct {
	// StorageRoot keeps the history database and archived summaries.
	StorageRoot string

	// ResultsRoot holds one results directory per scan id.
	ResultsRoot string

	// ReportsRoot holds rendered reports, one directory per scan id.
	ReportsRoot string

	// BaseRoot, when set, confines API scan targets to this tree.
	BaseRoot string

	// Container runtime CLI and its socket (for trivy image scans).
	Runtime       string
	RuntimeSocket string

	CodeQLBinary string

	// MaxConcurrency bounds parallel scanner invocations within one run.
	MaxConcurrency int

	// ScannerTimeout bounds each scanner invocation unless the scan config
	// sets a per-scanner timeout.
	ScannerTimeout time.Duration

	// JobRetentionTime is how long finished jobs stay queryable in memory.
	JobRetentionTime time.Duration

	// Images overrides the default container image per scanner.
	Images map[model.ScannerID]string
}

// DefaultConfig returns a Config populated with local development defaults.
func DefaultConfig() *Config {
	return &Config{
		StorageRoot:      "~/.local/share/secscan",
		ResultsRoot:      "~/.local/share/secscan/results",
		ReportsRoot:      "~/.local/share/secscan/reports",
		Runtime:          "docker",
		RuntimeSocket:    "/var/run/docker.sock",
		CodeQLBinary:     "codeql",
		MaxConcurrency:   runtime.NumCPU(),
		ScannerTimeout:   60 * time.Minute,
		JobRetentionTime: 30 * time.Minute,
	}
}

// ApplyEnv overrides fields from environment variables. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("STORAGE_DIR", &c.StorageRoot)
	str("RESULTS_DIR", &c.ResultsRoot)
	str("REPORTS_DIR", &c.ReportsRoot)
	str("SCAN_BASE_ROOT", &c.BaseRoot)
	str("CONTAINER_RUNTIME", &c.Runtime)
	str("CONTAINER_RUNTIME_SOCKET", &c.RuntimeSocket)
	str("CODEQL_BINARY", &c.CodeQLBinary)

	if v := strings.TrimSpace(getenv("MAX_CONCURRENCY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("MAX_CONCURRENCY: want a positive integer, got %q", v)
		}
		c.MaxConcurrency = n
	}
	if v := strings.TrimSpace(getenv("SCANNER_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("SCANNER_TIMEOUT: want a positive duration, got %q", v)
		}
		c.ScannerTimeout = d
	}
	return nil
}

// Normalize expands "~" and makes every root absolute.
func (c *Config) Normalize() error {
	for _, p := range []*string{&c.StorageRoot, &c.ResultsRoot, &c.ReportsRoot, &c.BaseRoot} {
		if *p == "" {
			continue
		}
		v, err := expandPath(*p)
		if err != nil {
			return err
		}
		if v, err = filepath.Abs(v); err != nil {
			return err
		}
		*p = v
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = runtime.NumCPU()
	}
	return nil
}

// HistoryPath is the SQLite scan history file.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.StorageRoot, "history.db")
}

// BlobDir holds archived summary documents.
func (c *Config) BlobDir() string {
	return filepath.Join(c.StorageRoot, "blobs")
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
