package launchd

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opus-domini/launchmon/internal/runner"
)

const testUID = 501

// fakeLaunchctl answers commands by their joined argv prefix.
type fakeLaunchctl struct {
	mu      sync.Mutex
	calls   []string
	answers map[string]runner.Result
}

func newFakeLaunchctl(answers map[string]runner.Result) *fakeLaunchctl {
	return &fakeLaunchctl{answers: answers}
}

func (f *fakeLaunchctl) exec(_ context.Context, cmd runner.Command) runner.Result {
	line := strings.Join(append([]string{cmd.Name}, cmd.Args...), " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, line)
	best := ""
	for prefix := range f.answers {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return runner.Result{Output: "unexpected command", ExitStatus: 1}
	}
	return f.answers[best]
}

func (f *fakeLaunchctl) runner() *runner.Runner {
	return runner.NewWithExec(time.Second, f.exec)
}

func (f *fakeLaunchctl) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type stubLocator struct {
	paths map[string]string
	home  string
}

func (s stubLocator) Locate(_ context.Context, label string) (string, bool) {
	p, ok := s.paths[label]
	return p, ok
}

func (s stubLocator) Guess(label string) (string, bool) {
	p, ok := s.paths[label]
	return p, ok
}

func (s stubLocator) UserAgentPath(label string) string {
	return s.home + "/Library/LaunchAgents/" + label + ".plist"
}

// scriptedResolver returns states in order, repeating the last one.
type scriptedResolver struct {
	mu     sync.Mutex
	states []State
	calls  int
}

func (s *scriptedResolver) Resolve(context.Context, string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	s.calls++
	return s.states[i]
}

func newTestController(f *fakeLaunchctl, loc stubLocator, res stateResolver, exists func(string) bool) *Controller {
	c := NewController(f.runner(), loc, res, ControllerOptions{
		SettleTimeout: 50 * time.Millisecond,
		SettleInitial: time.Millisecond,
		SettleMax:     5 * time.Millisecond,
	})
	c.uidFn = func() int { return testUID }
	if exists != nil {
		c.fileExists = exists
	}
	return c
}

func TestParseList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "tabs with placeholder row",
			raw:  "PID\tStatus\tLabel\n123\t0\tcom.example.foo\n-\t-\t-\n",
			want: []string{"com.example.foo"},
		},
		{
			name: "irregular spaces",
			raw:  "PID   Status  Label\n-     0       com.apple.a\n  456  -9   com.example.b   \n\n",
			want: []string{"com.apple.a", "com.example.b"},
		},
		{
			name: "header only",
			raw:  "PID\tStatus\tLabel\n",
			want: []string{},
		},
		{
			name: "empty",
			raw:  "",
			want: []string{},
		},
		{
			name: "crlf",
			raw:  "PID\tStatus\tLabel\r\n1\t0\tcom.example.c\r\n",
			want: []string{"com.example.c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := []string{}
			for _, e := range ParseList(tt.raw) {
				got = append(got, e.Label)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseListColumns(t *testing.T) {
	t.Parallel()

	entries := ParseList("PID\tStatus\tLabel\n123\t-15\tcom.example.foo\n")
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{PID: "123", LastExit: "-15", Label: "com.example.foo"}, entries[0])
}

func TestDiscoveryListAll(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{
		"launchctl list": {Output: "PID\tStatus\tLabel\n123\t0\tcom.example.foo\n-\t0\tcom.example.bar\n-\t-\t-\n"},
	})
	d := NewDiscovery(f.runner(), stubLocator{paths: map[string]string{"com.example.foo": "/x/com.example.foo.plist"}})
	d.describeFn = func(path string) string { return "desc:" + path }

	services, err := d.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "com.example.foo", services[0].Label)
	assert.Equal(t, "desc:/x/com.example.foo.plist", services[0].Description)
	assert.Equal(t, "com.example.bar", services[1].Label)
	assert.Empty(t, services[1].Description)

	labels, err := d.Labels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"com.example.foo", "com.example.bar"}, labels)
}

func TestDiscoveryManagerUnavailable(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{
		"launchctl list": {ExitStatus: runner.ExitLaunchFailure},
	})
	_, err := NewDiscovery(f.runner(), nil).ListAll(context.Background())
	assert.True(t, errors.Is(err, ErrManagerUnavailable))
}

func TestDiscoveryTimeoutIsNotUnavailable(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{
		"launchctl list": {ExitStatus: runner.ExitTimeout},
	})
	_, err := NewDiscovery(f.runner(), nil).ListAll(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrManagerUnavailable))
	assert.Contains(t, err.Error(), "timed out")
}

func TestDiscoveryListFailure(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{
		"launchctl list": {Output: "denied", ExitStatus: 1},
	})
	_, err := NewDiscovery(f.runner(), nil).ListAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestResolve(t *testing.T) {
	t.Parallel()

	listing := "PID\tStatus\tLabel\n-\t0\tcom.example.listed\n"
	tests := []struct {
		name    string
		answers map[string]runner.Result
		label   string
		want    State
	}{
		{
			name:    "print succeeds",
			answers: map[string]runner.Result{"launchctl print gui/501/com.example.foo": {}},
			label:   "com.example.foo",
			want:    StateRunning,
		},
		{
			name: "listed fallback",
			answers: map[string]runner.Result{
				"launchctl print": {ExitStatus: 113},
				"launchctl list":  {Output: listing},
			},
			label: "com.example.listed",
			want:  StateRunning,
		},
		{
			name: "listing matches whole labels only",
			answers: map[string]runner.Result{
				"launchctl print": {ExitStatus: 113},
				"launchctl list":  {Output: listing},
			},
			label: "com.example",
			want:  StateStopped,
		},
		{
			name: "manager missing",
			answers: map[string]runner.Result{
				"launchctl": {ExitStatus: runner.ExitLaunchFailure},
			},
			label: "com.example.foo",
			want:  StateStopped,
		},
		{
			name:    "empty label",
			answers: map[string]runner.Result{},
			label:   " ",
			want:    StateStopped,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewResolver(newFakeLaunchctl(tt.answers).runner())
			r.uidFn = func() int { return testUID }
			got := r.Resolve(context.Background(), tt.label)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestResolveAllListsOnce(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{
		"launchctl print gui/501/com.example.a": {},
		"launchctl print":                       {ExitStatus: 113},
		"launchctl list":                        {Output: "PID\tStatus\tLabel\n-\t0\tcom.example.b\n"},
	})
	r := NewResolver(f.runner())
	r.uidFn = func() int { return testUID }

	got := r.ResolveAll(context.Background(), []string{"com.example.a", "com.example.b", "com.example.c", "com.example.b"})
	assert.Equal(t, map[string]State{
		"com.example.a": StateRunning,
		"com.example.b": StateRunning,
		"com.example.c": StateStopped,
	}, got)
	assert.Equal(t, 1, f.count("launchctl list"))
}

func TestStartWithDescriptor(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{
		"launchctl bootstrap": {Output: "Bootstrap failed: 5: Input/output error", ExitStatus: 5},
		"launchctl load":      {},
	})
	loc := stubLocator{paths: map[string]string{"com.example.foo": "/Users/me/Library/LaunchAgents/foo.plist"}}
	res := &scriptedResolver{states: []State{StateStopped, StateStopped, StateRunning}}
	c := newTestController(f, loc, res, nil)

	out := c.Start(context.Background(), "com.example.foo")
	assert.True(t, out.OK)
	assert.False(t, out.Skipped)
	assert.Equal(t, StateRunning, out.State)
	assert.Equal(t, "/Users/me/Library/LaunchAgents/foo.plist", out.DescriptorPath)
	assert.Equal(t, []string{
		"launchctl bootstrap gui/501 /Users/me/Library/LaunchAgents/foo.plist",
		"launchctl load /Users/me/Library/LaunchAgents/foo.plist",
	}, f.calls)
	assert.Equal(t, 3, res.calls)
}

func TestStartWithoutDescriptorOrGuessIsNoop(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{})
	res := &scriptedResolver{states: []State{StateStopped}}
	c := newTestController(f, stubLocator{home: "/Users/me"}, res, func(string) bool { return false })

	out := c.Start(context.Background(), "com.example.ghost")
	assert.True(t, out.Skipped)
	assert.False(t, out.OK)
	assert.Contains(t, []State{StateStopped, StateNotLoaded}, out.State)
	assert.Empty(t, f.calls)
}

func TestStartUsesUserAgentGuess(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{"launchctl bootstrap": {}})
	res := &scriptedResolver{states: []State{StateRunning}}
	var checked string
	c := newTestController(f, stubLocator{home: "/Users/me"}, res, func(p string) bool {
		checked = p
		return true
	})

	out := c.Start(context.Background(), "com.example.foo")
	assert.True(t, out.OK)
	assert.Equal(t, "/Users/me/Library/LaunchAgents/com.example.foo.plist", checked)
	assert.Equal(t, []string{"launchctl bootstrap gui/501 /Users/me/Library/LaunchAgents/com.example.foo.plist"}, f.calls)
}

func TestStopFallbacksWithDescriptor(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{
		"launchctl bootout gui/501 /p/foo.plist":    {ExitStatus: 5},
		"launchctl unload":                          {ExitStatus: 1},
		"launchctl bootout gui/501/com.example.foo": {},
	})
	loc := stubLocator{paths: map[string]string{"com.example.foo": "/p/foo.plist"}}
	c := newTestController(f, loc, &scriptedResolver{states: []State{StateStopped}}, nil)

	out := c.Stop(context.Background(), "com.example.foo")
	assert.True(t, out.OK)
	assert.Equal(t, StateStopped, out.State)
	assert.Equal(t, []string{
		"launchctl bootout gui/501 /p/foo.plist",
		"launchctl unload /p/foo.plist",
		"launchctl bootout gui/501/com.example.foo",
	}, f.calls)
}

func TestStopWithoutDescriptor(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{
		"launchctl bootout": {ExitStatus: 3},
		"launchctl remove":  {},
	})
	c := newTestController(f, stubLocator{}, &scriptedResolver{states: []State{StateStopped}}, nil)

	out := c.Stop(context.Background(), "com.example.foo")
	assert.True(t, out.OK)
	assert.Equal(t, []string{
		"launchctl bootout gui/501/com.example.foo",
		"launchctl remove com.example.foo",
	}, f.calls)
}

func TestStopFirstSuccessEndsChain(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{"launchctl bootout": {}})
	c := newTestController(f, stubLocator{}, &scriptedResolver{states: []State{StateRunning, StateStopped}}, nil)

	out := c.Stop(context.Background(), "com.example.foo")
	assert.True(t, out.OK)
	assert.Equal(t, StateStopped, out.State)
	assert.Len(t, f.calls, 1)
}

func TestRestartStartsOnceWhenStopFails(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{
		"launchctl bootout":   {ExitStatus: 5},
		"launchctl unload":    {ExitStatus: 1},
		"launchctl bootstrap": {},
	})
	loc := stubLocator{paths: map[string]string{"com.example.foo": "/p/foo.plist"}}
	c := newTestController(f, loc, &scriptedResolver{states: []State{StateRunning}}, nil)

	out := c.Restart(context.Background(), "com.example.foo")
	assert.Equal(t, ActionRestart, out.Action)
	assert.True(t, out.OK)
	assert.Equal(t, 1, f.count("launchctl bootstrap"))
	assert.Equal(t, 2, f.count("launchctl bootout"))
}

func TestRestartReportsStartFailure(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{
		"launchctl bootout":   {},
		"launchctl bootstrap": {ExitStatus: 5},
		"launchctl load":      {ExitStatus: 1},
	})
	loc := stubLocator{paths: map[string]string{"com.example.foo": "/p/foo.plist"}}
	c := newTestController(f, loc, &scriptedResolver{states: []State{StateStopped}}, nil)

	out := c.Restart(context.Background(), "com.example.foo")
	assert.False(t, out.OK)
	assert.Equal(t, StateStopped, out.State)
}

func TestSettleGivesUpAfterTimeout(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{"launchctl bootstrap": {}})
	loc := stubLocator{paths: map[string]string{"com.example.slow": "/p/slow.plist"}}
	res := &scriptedResolver{states: []State{StateStopped}}
	c := newTestController(f, loc, res, nil)

	start := time.Now()
	out := c.Start(context.Background(), "com.example.slow")
	assert.Equal(t, StateStopped, out.State)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Greater(t, res.calls, 2)
}

func TestSettleStopsPollingOnceStateIsReached(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{"launchctl bootstrap": {}})
	loc := stubLocator{paths: map[string]string{"com.example.foo": "/p/foo.plist"}}
	res := &scriptedResolver{states: []State{StateStopped, StateStopped, StateRunning, StateStopped}}
	c := newTestController(f, loc, res, nil)

	out := c.Start(context.Background(), "com.example.foo")
	assert.Equal(t, StateRunning, out.State)
	assert.Equal(t, 3, res.calls)
}

func TestSettleHonoursContextCancellation(t *testing.T) {
	t.Parallel()

	f := newFakeLaunchctl(map[string]runner.Result{"launchctl bootstrap": {}})
	loc := stubLocator{paths: map[string]string{"com.example.slow": "/p/slow.plist"}}
	c := NewController(f.runner(), loc, &scriptedResolver{states: []State{StateStopped}}, ControllerOptions{
		SettleTimeout: 10 * time.Second,
		SettleInitial: 5 * time.Millisecond,
		SettleMax:     20 * time.Millisecond,
	})
	c.uidFn = func() int { return testUID }

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	start := time.Now()
	out := c.Start(ctx, "com.example.slow")
	assert.Equal(t, StateStopped, out.State)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	a, err := ParseAction(" Restart ")
	require.NoError(t, err)
	assert.Equal(t, ActionRestart, a)
	_, err = ParseAction("kill")
	assert.ErrorIs(t, err, ErrInvalidAction)
}
