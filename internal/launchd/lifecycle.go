package launchd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/opus-domini/launchmon/internal/runner"
)

// Action is a lifecycle verb.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// ErrInvalidAction is returned by ParseAction for unknown verbs.
var ErrInvalidAction = errors.New("invalid action")

// ParseAction normalizes a user-supplied verb.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionStart:
		return ActionStart, nil
	case ActionStop:
		return ActionStop, nil
	case ActionRestart:
		return ActionRestart, nil
	default:
		return "", ErrInvalidAction
	}
}

const (
	defaultSettleTimeout = 3 * time.Second
	defaultSettleInitial = 100 * time.Millisecond
	defaultSettleMax     = time.Second
)

// ActionResult is what a lifecycle request observed. OK reflects only the
// exit status of the command chain; State is whatever launchd reported once
// the transition settled or the settle timeout elapsed.
type ActionResult struct {
	Label          string    `json:"label"`
	Action         Action    `json:"action"`
	OK             bool      `json:"ok"`
	Skipped        bool      `json:"skipped,omitempty"`
	DescriptorPath string    `json:"descriptorPath,omitempty"`
	Output         string    `json:"output,omitempty"`
	State          State     `json:"state"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

type pathLocator interface {
	Locate(ctx context.Context, label string) (string, bool)
	UserAgentPath(label string) string
}

type stateResolver interface {
	Resolve(ctx context.Context, label string) State
}

// ControllerOptions tunes the post-command settle polling.
type ControllerOptions struct {
	SettleTimeout time.Duration
	SettleInitial time.Duration
	SettleMax     time.Duration
}

// Controller issues start/stop/restart requests. launchd owns the real job
// state; the controller never tracks its own belief about it and never fails,
// it just reports what it saw afterwards.
type Controller struct {
	runner     commandRunner
	locator    pathLocator
	resolver   stateResolver
	opts       ControllerOptions
	uidFn      func() int
	nowFn      func() time.Time
	fileExists func(path string) bool
}

// NewController wires a Controller.
func NewController(r commandRunner, locator pathLocator, resolver stateResolver, opts ControllerOptions) *Controller {
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = defaultSettleTimeout
	}
	if opts.SettleInitial <= 0 {
		opts.SettleInitial = defaultSettleInitial
	}
	if opts.SettleMax <= 0 {
		opts.SettleMax = defaultSettleMax
	}
	return &Controller{
		runner:     r,
		locator:    locator,
		resolver:   resolver,
		opts:       opts,
		uidFn:      os.Getuid,
		nowFn:      time.Now,
		fileExists: regularFileExists,
	}
}

// Do dispatches action for label.
func (c *Controller) Do(ctx context.Context, action Action, label string) ActionResult {
	switch action {
	case ActionStop:
		return c.Stop(ctx, label)
	case ActionRestart:
		return c.Restart(ctx, label)
	default:
		return c.Start(ctx, label)
	}
}

// Start bootstraps the job's descriptor into the user domain, falling back
// to the legacy load verb. Without a known descriptor the conventional user
// agent path is tried; if that file is absent nothing is executed.
func (c *Controller) Start(ctx context.Context, label string) ActionResult {
	res := ActionResult{Label: label, Action: ActionStart, StartedAt: c.nowFn()}
	uid := c.uidFn()

	path, found := c.locator.Locate(ctx, label)
	if !found {
		guess := c.locator.UserAgentPath(label)
		if !c.fileExists(guess) {
			slog.Info("start skipped: no descriptor", "label", label, "guess", guess)
			res.Skipped = true
			res.State = c.resolver.Resolve(ctx, label)
			res.FinishedAt = c.nowFn()
			return res
		}
		path = guess
	}
	res.DescriptorPath = path

	out := c.runner.RunChain(ctx, bootstrapCommand(uid, path), loadCommand(path))
	res.OK = out.OK()
	res.Output = strings.TrimSpace(out.Output)
	if !res.OK {
		slog.Warn("start failed", "label", label, "path", path, "status", out.ExitStatus, "output", res.Output)
	}
	res.State = c.settle(ctx, label, res.OK, func(s State) bool { return s == StateRunning })
	res.FinishedAt = c.nowFn()
	return res
}

// Stop boots the job out of the user domain. With a descriptor the chain is
// bootout(path) || unload(path) || bootout(label); without one it is
// bootout(label) || remove(label).
func (c *Controller) Stop(ctx context.Context, label string) ActionResult {
	res := ActionResult{Label: label, Action: ActionStop, StartedAt: c.nowFn()}
	uid := c.uidFn()

	var chain []runner.Command
	if path, found := c.locator.Locate(ctx, label); found {
		res.DescriptorPath = path
		chain = []runner.Command{
			bootoutPathCommand(uid, path),
			unloadCommand(path),
			bootoutLabelCommand(uid, label),
		}
	} else {
		chain = []runner.Command{
			bootoutLabelCommand(uid, label),
			removeCommand(label),
		}
	}

	out := c.runner.RunChain(ctx, chain...)
	res.OK = out.OK()
	res.Output = strings.TrimSpace(out.Output)
	if !res.OK {
		slog.Warn("stop failed", "label", label, "status", out.ExitStatus, "output", res.Output)
	}
	res.State = c.settle(ctx, label, res.OK, func(s State) bool { return s != StateRunning })
	res.FinishedAt = c.nowFn()
	return res
}

// Restart is Stop followed by Start. It is not transactional: Start runs
// even when Stop failed, and the result is Start's.
func (c *Controller) Restart(ctx context.Context, label string) ActionResult {
	stopped := c.Stop(ctx, label)
	if !stopped.OK {
		slog.Info("restart: stop failed, starting anyway", "label", label)
	}
	res := c.Start(ctx, label)
	res.Action = ActionRestart
	res.StartedAt = stopped.StartedAt
	return res
}

// errNotSettled keeps the settle backoff polling.
var errNotSettled = errors.New("state not settled")

// settle polls the resolver with exponential backoff until done reports true
// or the settle timeout elapses, returning the last observed state. A failed
// command is resolved once without waiting.
func (c *Controller) settle(ctx context.Context, label string, issued bool, done func(State) bool) State {
	if !issued {
		return c.resolver.Resolve(ctx, label)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.SettleInitial
	bo.MaxInterval = c.opts.SettleMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	var state State
	poll := func() (State, error) {
		state = c.resolver.Resolve(ctx, label)
		if done(state) {
			return state, nil
		}
		return state, errNotSettled
	}
	if _, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(c.opts.SettleTimeout),
	); err != nil {
		slog.Debug("state did not settle", "label", label, "state", state, "timeout", c.opts.SettleTimeout, "err", err)
	}
	if state == "" {
		// Retry gave up on a cancelled context before the first poll.
		state = c.resolver.Resolve(ctx, label)
	}
	return state
}

func regularFileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
