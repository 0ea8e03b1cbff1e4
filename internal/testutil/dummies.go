// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real processes.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/runner"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns the number of warnings recorded so far.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── Executor ──────────────────────────────────────────────────────────

// FakeResponse scripts what a FakeExecutor does for one command.
type FakeResponse struct {
	// Result is returned as-is (Duration is filled in).
	Result runner.Result

	// WriteFiles maps absolute host paths to contents written before the
	// command "exits", standing in for artifacts the tool would produce.
	WriteFiles map[string]string

	// Delay blocks the call; cancellation of ctx during the delay yields a
	// Canceled result.
	Delay time.Duration

	// Panic, when non-nil, is raised from Run.
	Panic any
}

// FakeExecutor implements runner.Executor without starting processes.
// By default every command exits 0 and every binary is on PATH.
type FakeExecutor struct {
	mu    sync.Mutex
	Calls []runner.Command

	// Respond chooses the response for a command. Nil means exit 0.
	Respond func(cmd runner.Command) FakeResponse

	// Missing lists binaries LookPath should not find.
	Missing map[string]bool
}

func (f *FakeExecutor) LookPath(name string) (string, error) {
	if f.Missing[name] {
		return "", &os.PathError{Op: "lookpath", Path: name, Err: os.ErrNotExist}
	}
	return "/usr/bin/" + name, nil
}

func (f *FakeExecutor) Run(ctx context.Context, cmd runner.Command) runner.Result {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	respond := f.Respond
	f.mu.Unlock()

	var resp FakeResponse
	if respond != nil {
		resp = respond(cmd)
	}
	if resp.Panic != nil {
		panic(resp.Panic)
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return runner.Result{ExitCode: -1, Err: ctx.Err(), Canceled: true}
		}
	}
	for path, body := range resp.WriteFiles {
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		_ = os.WriteFile(path, []byte(body), 0o644)
	}
	res := resp.Result
	res.Duration = time.Millisecond
	return res
}

// CallLines returns every recorded command as "name arg1 arg2 ...".
func (f *FakeExecutor) CallLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, CommandLine(c))
	}
	return out
}

// CommandLine renders a command for matching in tests.
func CommandLine(c runner.Command) string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// ExitWith builds a result for a process exit code.
func ExitWith(code int) runner.Result {
	r := runner.Result{ExitCode: code}
	if code != 0 {
		r.Err = &exitError{code: code}
	}
	return r
}

type exitError struct{ code int }

func (e *exitError) Error() string { return "exit status " + strconv.Itoa(e.code) }
