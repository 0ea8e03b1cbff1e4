// Package runner executes external scanner processes.
package runner

import (
	"context"
	"time"
)

// Command is one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string

	// Timeout bounds the process; zero means only ctx bounds it.
	Timeout time.Duration

	// KillHook runs after the process was killed for timeout or cancellation.
	// It is used to stop containers the runtime client leaves behind.
	KillHook *Command
}

// Result is what happened to a Command. A non-nil Err with StartFailed set
// means the process never ran.
type Result struct {
	ExitCode    int
	Output      []byte
	Err         error
	StartFailed bool
	TimedOut    bool
	Canceled    bool
	Duration    time.Duration
}

// Succeeded reports a clean zero exit.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.ExitCode == 0 && !r.TimedOut && !r.Canceled
}

// Executor runs commands. ExecExecutor is the real implementation; tests use
// testutil.FakeExecutor.
type Executor interface {
	Run(ctx context.Context, cmd Command) Result
	LookPath(name string) (string, error)
}
