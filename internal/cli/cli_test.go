package cli_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/secscan/internal/cli"
)

func TestParseArgs_Full(t *testing.T) {
	t.Parallel()
	args := []string{
		"-config", "scan.yaml", "-target", "./repo", "-results", "out",
		"-scan-id", "abc", "-concurrency", "3", "-timeout", "15m",
		"-runtime", "podman", "-history", "h.db", "-reports", "rep",
	}
	got, err := cli.ParseArgs(args)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if got.ConfigPath != "scan.yaml" || got.Target != "./repo" || got.ResultsDir != "out" || got.ScanID != "abc" {
		t.Errorf("paths = %+v", got)
	}
	if got.Concurrency != 3 || got.Timeout != 15*time.Minute || got.Runtime != "podman" {
		t.Errorf("tuning = %+v", got)
	}
	if got.HistoryPath != "h.db" || got.ReportsDir != "rep" || len(got.RawArgs) != len(args) {
		t.Errorf("extras = %+v", got)
	}
}

func TestParseArgs_Defaults(t *testing.T) {
	t.Parallel()
	got, err := cli.ParseArgs([]string{"-config", "c.json", "-results", "r"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Target != "" || got.ScanID != "" || got.Concurrency != 0 || got.Timeout != 0 || got.HistoryPath != "" {
		t.Errorf("unexpected defaults: %+v", got)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	t.Parallel()
	cases := map[string][]string{
		"missing config":       {"-results", "r"},
		"missing results":      {"-config", "c"},
		"negative concurrency": {"-config", "c", "-results", "r", "-concurrency", "-1"},
		"bad timeout":          {"-config", "c", "-results", "r", "-timeout", "soon"},
		"unknown flag":         {"-config", "c", "-results", "r", "-verbose"},
		"stray positional":     {"-config", "c", "-results", "r", "extra"},
	}
	for name, args := range cases {
		if _, err := cli.ParseArgs(args); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestUsage_ListsFlags(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	cli.Usage(&buf)
	for _, f := range []string{"-config", "-results", "-scan-id", "-history"} {
		if !strings.Contains(buf.String(), f) {
			t.Errorf("usage missing %s:\n%s", f, buf.String())
		}
	}
}
