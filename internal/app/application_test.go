package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/raysh454/secscan/internal/cli"
	"github.com/raysh454/secscan/internal/config"
	"github.com/raysh454/secscan/internal/dispatch"
	"github.com/raysh454/secscan/internal/model"
	"github.com/raysh454/secscan/internal/testutil"
)

type stubScanner struct {
	req    ScanRequest
	rep    *ScanReport
	err    error
	closed bool
}

func (s *stubScanner) RunScan(_ context.Context, req ScanRequest, _ dispatch.OutcomeSink) (*ScanReport, error) {
	s.req = req
	return s.rep, s.err
}

func (s *stubScanner) Close() { s.closed = true }

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "scan.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestApplication_ExitCodes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		rep  *ScanReport
		want int
	}{
		{"artifact produced", &ScanReport{ExitCode: 0, Status: model.RunCompleted}, ExitOK},
		{"no artifacts", &ScanReport{ExitCode: 1, Status: model.RunFailed}, ExitNoArtifacts},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			stub := &stubScanner{rep: tc.rep}
			args := &cli.CLIArgs{ConfigPath: writeConfig(t, "{}"), Target: "/src", ResultsDir: "/out", ScanID: "x"}
			a := NewApplication(DefaultConfig(), args, &testutil.DummyLogger{}, stub)

			code, _, err := a.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if code != tc.want {
				t.Errorf("exit = %d, want %d", code, tc.want)
			}
			if stub.req.ResultsDir != "/out" || stub.req.ScanID != "x" || stub.req.Target != "/src" {
				t.Errorf("request = %+v", stub.req)
			}
			if !stub.req.Config.AutoDetect {
				t.Error("empty config should resolve to auto-detect")
			}
		})
	}
}

func TestApplication_ConfigInvalid(t *testing.T) {
	t.Parallel()
	stub := &stubScanner{}
	args := &cli.CLIArgs{ConfigPath: writeConfig(t, "- just\n- a list\n"), ResultsDir: "/out"}
	a := NewApplication(DefaultConfig(), args, nil, stub)

	code, _, err := a.Run(context.Background())
	if code != ExitConfigInvalid || !errors.Is(err, config.ErrConfigInvalid) {
		t.Errorf("code=%d err=%v", code, err)
	}

	args.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	if code, _, _ := a.Run(context.Background()); code != ExitConfigInvalid {
		t.Errorf("missing file exit = %d", code)
	}
}

func TestApplication_TargetErrorFails(t *testing.T) {
	t.Parallel()
	stub := &stubScanner{err: ErrTargetNotFound}
	args := &cli.CLIArgs{ConfigPath: writeConfig(t, "{}"), ResultsDir: "/out"}
	a := NewApplication(DefaultConfig(), args, nil, stub)

	code, rep, err := a.Run(context.Background())
	if code != ExitNoArtifacts || rep != nil || !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("code=%d rep=%v err=%v", code, rep, err)
	}
}

func TestApplication_ShutdownClosesOrchestrator(t *testing.T) {
	t.Parallel()
	stub := &stubScanner{}
	a := NewApplication(DefaultConfig(), &cli.CLIArgs{}, nil, stub)
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !stub.closed {
		t.Error("orchestrator not closed")
	}
}

func TestApplication_NilIsRejected(t *testing.T) {
	t.Parallel()
	var a *Application
	if err := a.Shutdown(context.Background()); err == nil {
		t.Error("expected error for nil application")
	}
	if code, _, err := a.Run(context.Background()); err == nil || code != ExitConfigInvalid {
		t.Errorf("code=%d err=%v", code, err)
	}
}

// ─── Config ────────────────────────────────────────────────────────────

func TestConfig_ApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"RESULTS_DIR":       "/data/results",
		"STORAGE_DIR":       "/data/store",
		"SCAN_BASE_ROOT":    "/srv/code",
		"CONTAINER_RUNTIME": "podman",
		"MAX_CONCURRENCY":   "3",
		"SCANNER_TIMEOUT":   "90s",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}
	if cfg.ResultsRoot != "/data/results" || cfg.StorageRoot != "/data/store" || cfg.BaseRoot != "/srv/code" {
		t.Errorf("roots = %+v", cfg)
	}
	if cfg.Runtime != "podman" || cfg.MaxConcurrency != 3 || cfg.ScannerTimeout.Seconds() != 90 {
		t.Errorf("tuning = %+v", cfg)
	}
	if cfg.HistoryPath() != "/data/store/history.db" || cfg.BlobDir() != "/data/store/blobs" {
		t.Errorf("derived paths = %s %s", cfg.HistoryPath(), cfg.BlobDir())
	}
}

func TestConfig_ApplyEnvRejectsBadNumbers(t *testing.T) {
	t.Parallel()
	for key, val := range map[string]string{"MAX_CONCURRENCY": "zero", "SCANNER_TIMEOUT": "-5s"} {
		cfg := DefaultConfig()
		err := cfg.ApplyEnv(func(k string) string {
			if k == key {
				return val
			}
			return ""
		})
		if err == nil {
			t.Errorf("%s=%s accepted", key, val)
		}
	}
}

func TestConfig_Normalize(t *testing.T) {
	t.Parallel()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := DefaultConfig()
	cfg.MaxConcurrency = 0
	if err := cfg.Normalize(); err != nil {
		t.Fatal(err)
	}
	if cfg.StorageRoot != filepath.Join(home, ".local/share/secscan") {
		t.Errorf("storage root = %s", cfg.StorageRoot)
	}
	if cfg.MaxConcurrency <= 0 {
		t.Error("concurrency not defaulted")
	}
}
