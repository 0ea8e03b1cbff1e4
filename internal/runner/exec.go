package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/raysh454/secscan/internal/logging"
)

// MaxOutputBytes caps how much combined output is kept for diagnostics. The
// tail is kept since that is where tools print their failure.
const MaxOutputBytes = 64 * 1024

const killHookTimeout = 30 * time.Second

// ExecExecutor runs commands with os/exec.
type ExecExecutor struct {
	logger logging.Logger
}

// NewExecExecutor returns an ExecExecutor.
func NewExecExecutor(logger logging.Logger) *ExecExecutor {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &ExecExecutor{logger: logger}
}

func (e *ExecExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes cmd and waits. The process is killed when ctx is done or the
// command timeout elapses.
func (e *ExecExecutor) Run(ctx context.Context, cmd Command) Result {
	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	c := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	out := &tailBuffer{max: MaxOutputBytes}
	c.Stdout = out
	c.Stderr = out
	c.WaitDelay = 5 * time.Second

	start := time.Now()
	err := c.Run()
	res := Result{Output: out.Bytes(), Duration: time.Since(start), ExitCode: -1}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		res.Err = err
	default:
		res.Err = err
		res.StartFailed = c.Process == nil
	}

	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			res.Canceled = true
		} else {
			res.TimedOut = true
		}
		if res.Err == nil {
			res.Err = runCtx.Err()
		}
		if cmd.KillHook != nil {
			e.runKillHook(*cmd.KillHook)
		}
	}
	return res
}

func (e *ExecExecutor) runKillHook(hook Command) {
	ctx, cancel := context.WithTimeout(context.Background(), killHookTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, hook.Name, hook.Args...).CombinedOutput()
	if err != nil {
		e.logger.Debug("kill hook failed",
			logging.F("command", hook.Name),
			logging.F("output", string(out)),
			logging.Err(err))
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf.Bytes()...)
}
