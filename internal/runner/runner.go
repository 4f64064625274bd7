package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ExitLaunchFailure is reported when a command could not be started at all.
const ExitLaunchFailure = -1

// ExitTimeout is reported when a command was killed by the runner timeout.
// It matches the status timeout(1) uses.
const ExitTimeout = 124

const (
	defaultTimeout = 10 * time.Second
	// waitDelay bounds how long output pipes held open by orphaned children
	// may outlive the killed process.
	waitDelay = 500 * time.Millisecond
	// exitNotRunnable is what a shell reports for a command it could not execute.
	exitNotRunnable = 127
)

// Command is an argument vector. It is never passed through a shell as a
// single string; see Script for the quoted rendering.
type Command struct {
	Name string
	Args []string
}

// Cmd builds a Command.
func Cmd(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

func (c Command) words() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command as a shell-quoted line, suitable for logs.
func (c Command) String() string {
	line, err := quoteWords(c.words())
	if err != nil {
		return fmt.Sprintf("%q", c.words())
	}
	return line
}

// Result is the merged stdout/stderr of a command and its exit status.
type Result struct {
	Output     string
	ExitStatus int
}

// OK reports whether the command exited with status zero.
func (r Result) OK() bool {
	return r.ExitStatus == 0
}

// ExecFunc executes a single command. Implementations must not return a
// zero status unless the command really succeeded.
type ExecFunc func(ctx context.Context, cmd Command) Result

// Runner executes external commands with a per-command timeout.
type Runner struct {
	timeout time.Duration
	execFn  ExecFunc
}

// New returns a Runner that executes commands directly, without a shell.
func New(timeout time.Duration) *Runner {
	return NewWithExec(timeout, execCommand)
}

// NewWithExec returns a Runner backed by fn.
func NewWithExec(timeout time.Duration, fn ExecFunc) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if fn == nil {
		fn = execCommand
	}
	return &Runner{timeout: timeout, execFn: fn}
}

// Run executes cmd and returns its combined output and exit status. It never
// fails: a command that cannot be launched yields empty output and
// ExitLaunchFailure, one that outlives the timeout yields ExitTimeout with
// whatever output it produced.
func (r *Runner) Run(ctx context.Context, cmd Command) Result {
	if strings.TrimSpace(cmd.Name) == "" {
		return Result{ExitStatus: ExitLaunchFailure}
	}
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := r.execFn(runCtx, cmd)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && !res.OK() {
		slog.Warn("command timed out", "cmd", cmd.String(), "timeout", r.timeout)
		res.ExitStatus = ExitTimeout
	}
	slog.Debug("command finished", "cmd", cmd.String(), "status", res.ExitStatus)
	return res
}

// RunChain runs cmds as a boolean-OR fallback chain: each command is tried
// only when the previous one exited non-zero. The chain is rendered with
// Script and interpreted in-process; every simple command is dispatched back
// through Run. The returned status is the status of the last command tried.
func (r *Runner) RunChain(ctx context.Context, cmds ...Command) Result {
	if len(cmds) == 0 {
		return Result{ExitStatus: ExitLaunchFailure}
	}
	script, err := Script(cmds...)
	if err != nil {
		slog.Warn("render command chain failed", "err", err)
		return Result{ExitStatus: ExitLaunchFailure}
	}
	file, err := syntax.NewParser().Parse(strings.NewReader(script), "")
	if err != nil {
		slog.Warn("parse command chain failed", "script", script, "err", err)
		return Result{ExitStatus: ExitLaunchFailure}
	}

	var out bytes.Buffer
	last := Result{ExitStatus: ExitLaunchFailure}
	shell, err := interp.New(
		interp.StdIO(nil, &out, &out),
		interp.ExecHandlers(func(interp.ExecHandlerFunc) interp.ExecHandlerFunc {
			return func(ctx context.Context, args []string) error {
				if len(args) == 0 {
					return nil
				}
				last = r.Run(ctx, Command{Name: args[0], Args: args[1:]})
				hc := interp.HandlerCtx(ctx)
				_, _ = io.WriteString(hc.Stdout, last.Output)
				return shellStatus(last)
			}
		}),
	)
	if err != nil {
		slog.Warn("create shell interpreter failed", "err", err)
		return Result{ExitStatus: ExitLaunchFailure}
	}
	_ = shell.Run(ctx, file)
	return Result{Output: out.String(), ExitStatus: last.ExitStatus}
}

// Script renders cmds as `a || b || c` with every word quoted.
func Script(cmds ...Command) (string, error) {
	parts := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		line, err := quoteWords(cmd.words())
		if err != nil {
			return "", err
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " || "), nil
}

// Quote quotes a single word for a POSIX-compatible shell.
func Quote(word string) (string, error) {
	return syntax.Quote(word, syntax.LangBash)
}

func quoteWords(words []string) (string, error) {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		q, err := Quote(w)
		if err != nil {
			return "", fmt.Errorf("quote %q: %w", w, err)
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " "), nil
}

func shellStatus(res Result) error {
	switch {
	case res.OK():
		return nil
	case res.ExitStatus < 0 || res.ExitStatus > 255:
		return interp.NewExitStatus(exitNotRunnable)
	default:
		return interp.NewExitStatus(uint8(res.ExitStatus))
	}
}

func execCommand(ctx context.Context, cmd Command) Result {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...) //nolint:gosec // argv invocation, no shell
	c.WaitDelay = waitDelay
	out, err := c.CombinedOutput()
	switch {
	case err == nil:
		return Result{Output: string(out)}
	case ctx.Err() != nil && c.ProcessState != nil:
		return Result{Output: string(out), ExitStatus: ExitTimeout}
	case errors.Is(err, exec.ErrWaitDelay) && c.ProcessState != nil:
		// The process exited; an orphaned child kept the pipes open.
		return Result{Output: string(out), ExitStatus: c.ProcessState.ExitCode()}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{Output: string(out), ExitStatus: exitErr.ExitCode()}
	}
	slog.Debug("command launch failed", "cmd", cmd.String(), "err", err)
	return Result{ExitStatus: ExitLaunchFailure}
}
