package launchd

import (
	"context"
	"os"
	"strings"
)

// Resolver determines job run states. It never fails: anything it cannot
// establish is reported as StateStopped.
type Resolver struct {
	runner commandRunner
	uidFn  func() int
}

// NewResolver returns a Resolver querying the current user's GUI domain.
func NewResolver(r commandRunner) *Resolver {
	return &Resolver{runner: r, uidFn: os.Getuid}
}

// listing caches one `launchctl list` result for the duration of a batch.
type listing struct {
	loaded bool
	labels map[string]struct{}
}

// Resolve reports the state of a single label. A successful `launchctl print`
// in the user domain means RUNNING; otherwise the label's presence in
// `launchctl list` means RUNNING, and its absence STOPPED.
//
// The list fallback treats any loaded job as running, so a job that is
// loaded but idle also reads as RUNNING.
func (r *Resolver) Resolve(ctx context.Context, label string) State {
	return r.resolve(ctx, label, &listing{})
}

// ResolveAll resolves every label, running `launchctl list` at most once.
// The returned map is freshly allocated and owned by the caller.
func (r *Resolver) ResolveAll(ctx context.Context, labels []string) map[string]State {
	out := make(map[string]State, len(labels))
	batch := &listing{}
	for _, label := range labels {
		if _, done := out[label]; done {
			continue
		}
		out[label] = r.resolve(ctx, label, batch)
	}
	return out
}

func (r *Resolver) resolve(ctx context.Context, label string, batch *listing) State {
	label = strings.TrimSpace(label)
	if label == "" {
		return StateStopped
	}
	if res := r.runner.Run(ctx, printCommand(r.uidFn(), label)); res.OK() {
		return StateRunning
	}
	if !batch.loaded {
		batch.loaded = true
		batch.labels = make(map[string]struct{})
		if res := r.runner.Run(ctx, listCommand()); res.OK() {
			for _, e := range ParseList(res.Output) {
				batch.labels[e.Label] = struct{}{}
			}
		}
	}
	if _, ok := batch.labels[label]; ok {
		return StateRunning
	}
	return StateStopped
}
