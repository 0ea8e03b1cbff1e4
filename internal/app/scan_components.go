package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/raysh454/secscan/internal/dispatch"
	"github.com/raysh454/secscan/internal/inspect"
	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/runner"
	"github.com/raysh454/secscan/internal/scanner"
)

// ScanComponents are the collaborators built fresh for one scan id.
type ScanComponents struct {
	ResultsDir  string
	WorkDir     string
	Engine      *scanner.Engine
	Coordinator *dispatch.Coordinator
}

// NewScanComponents prepares resultsDir and wires an engine and coordinator
// for scanID. An empty resultsDir means ResultsRoot/<scanID>.
func NewScanComponents(cfg *Config, exec runner.Executor, scanID, resultsDir string, sink dispatch.OutcomeSink, logger logging.Logger) (*ScanComponents, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if exec == nil {
		exec = runner.NewExecExecutor(logger)
	}

	if resultsDir == "" {
		resultsDir = filepath.Join(cfg.ResultsRoot, scanID)
	}
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	workDir, err := os.MkdirTemp("", "secscan-"+scanID+"-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	eng := scanner.NewEngine(exec, scanner.Settings{
		Runtime:       cfg.Runtime,
		RuntimeSocket: cfg.RuntimeSocket,
		ResultsDir:    resultsDir,
		ScanID:        scanID,
		Images:        cfg.Images,
		Timeout:       cfg.ScannerTimeout,
		CodeQLBinary:  cfg.CodeQLBinary,
		WorkDir:       workDir,
	}, logger)

	coord := dispatch.New(eng, inspect.New(logger), logger, dispatch.Options{
		ScanID:         scanID,
		MaxConcurrency: cfg.MaxConcurrency,
		Sink:           sink,
	})

	return &ScanComponents{
		ResultsDir:  resultsDir,
		WorkDir:     workDir,
		Engine:      eng,
		Coordinator: coord,
	}, nil
}

// Close removes the scratch work directory. Artifacts are kept.
func (sc *ScanComponents) Close() error {
	if sc.WorkDir == "" {
		return nil
	}
	if err := os.RemoveAll(sc.WorkDir); err != nil {
		return fmt.Errorf("remove work dir: %w", err)
	}
	return nil
}
