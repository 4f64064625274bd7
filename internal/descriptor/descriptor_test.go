package descriptor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/opus-domini/launchmon/internal/runner"
)

const agentXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%LABEL%</string>
	<key>ProgramArguments</key>
	<array>
		<string>/usr/local/bin/foo-daemon</string>
		<string>--serve</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`

func writeAgent(t *testing.T, dir, file, label string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(agentXML, "%LABEL%", label)), 0o644))
	return path
}

// noGrep simulates a host without grep so the native walk is exercised.
type noGrep struct{ calls int }

func (n *noGrep) Run(context.Context, runner.Command) runner.Result {
	n.calls++
	return runner.Result{ExitStatus: runner.ExitLaunchFailure}
}

type grepStub struct {
	output string
	args   [][]string
}

func (g *grepStub) Run(_ context.Context, cmd runner.Command) runner.Result {
	g.args = append(g.args, cmd.Args)
	if g.output == "" {
		return runner.Result{ExitStatus: 1}
	}
	return runner.Result{Output: g.output}
}

func TestDecodeXML(t *testing.T) {
	t.Parallel()

	d, err := Decode([]byte(strings.ReplaceAll(agentXML, "%LABEL%", "com.example.foo")))
	require.NoError(t, err)
	assert.Equal(t, "com.example.foo", d.Label)
	assert.True(t, d.RunAtLoad)
	assert.Equal(t, "foo-daemon", d.Describe())
}

func TestDecodeBinary(t *testing.T) {
	t.Parallel()

	data, err := plist.Marshal(Descriptor{Label: "com.example.bin", Program: "/opt/bin/worker"}, plist.BinaryFormat)
	require.NoError(t, err)
	d, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "com.example.bin", d.Label)
	assert.Equal(t, "worker", d.Describe())
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		d    Descriptor
		want string
	}{
		{"program wins", Descriptor{Program: "/a/b/prog", ProgramArguments: []string{"/x/other"}}, "prog"},
		{"first argument", Descriptor{ProgramArguments: []string{"/usr/bin/env", "python3"}}, "env"},
		{"bare name", Descriptor{ProgramArguments: []string{"node"}}, "node"},
		{"nothing", Descriptor{Label: "com.example.none"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.d.Describe())
		})
	}
}

func TestRenderBinaryAsXML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data, err := plist.Marshal(map[string]any{"Label": "com.example.render"}, plist.BinaryFormat)
	require.NoError(t, err)
	path := filepath.Join(dir, "render.plist")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, err := Render(path)
	require.NoError(t, err)
	assert.Contains(t, out, "<string>com.example.render</string>")
}

func TestRenderMissing(t *testing.T) {
	t.Parallel()

	_, err := Render(filepath.Join(t.TempDir(), "missing.plist"))
	assert.Error(t, err)
}

func TestLocateContentMatchWithDifferentFilename(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	paths := []SearchPath{{Dir: filepath.Join(home, "agents"), Scope: ScopeUserAgent}}
	want := writeAgent(t, filepath.Join(home, "agents", "nested"), "renamed.plist", "com.example.foo")
	writeAgent(t, filepath.Join(home, "agents"), "other.plist", "com.example.other")

	l := NewLocator(&noGrep{}, home, paths)
	got, ok := l.Locate(context.Background(), "com.example.foo")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLocatePriorityOrder(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	high := filepath.Join(home, "high")
	low := filepath.Join(home, "low")
	writeAgent(t, low, "com.example.foo.plist", "com.example.foo")
	want := writeAgent(t, high, "com.example.foo.plist", "com.example.foo")

	l := NewLocator(&noGrep{}, home, []SearchPath{
		{Dir: filepath.Join(home, "absent"), Scope: ScopeUserAgent},
		{Dir: high, Scope: ScopeAgent},
		{Dir: low, Scope: ScopeDaemon},
	})
	got, ok := l.Locate(context.Background(), "com.example.foo")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLocateFilenameFallback(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	dir := filepath.Join(home, "agents")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// The declared label differs, so only the filename guess can match.
	want := writeAgent(t, dir, "com.example.guess.plist", "com.example.declared")

	l := NewLocator(&noGrep{}, home, []SearchPath{{Dir: dir, Scope: ScopeUserAgent}})
	got, ok := l.Locate(context.Background(), "com.example.guess")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLocateUsesGrepCandidatesAndVerifies(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	dir := filepath.Join(home, "agents")
	decoy := writeAgent(t, dir, "decoy.plist", "com.example.decoy")
	want := writeAgent(t, dir, "real.plist", "com.example.foo")

	stub := &grepStub{output: decoy + "\n" + want + "\n"}
	l := NewLocator(stub, home, []SearchPath{{Dir: dir, Scope: ScopeUserAgent}})
	got, ok := l.Locate(context.Background(), "com.example.foo")
	require.True(t, ok)
	assert.Equal(t, want, got)
	require.Len(t, stub.args, 1)
	assert.Contains(t, stub.args[0], `<string>[[:space:]]*com\.example\.foo[[:space:]]*</string>`)
	assert.Equal(t, dir, stub.args[0][len(stub.args[0])-1])
}

// slowGrep simulates a grep that the runner killed on timeout.
type slowGrep struct{ calls int }

func (s *slowGrep) Run(context.Context, runner.Command) runner.Result {
	s.calls++
	return runner.Result{ExitStatus: runner.ExitTimeout}
}

func TestLocateTimedOutGrepSkipsNativeWalk(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	dir := filepath.Join(home, "agents")
	writeAgent(t, dir, "renamed.plist", "com.example.foo")
	want := writeAgent(t, dir, "com.example.bar.plist", "com.example.bar")

	grep := &slowGrep{}
	l := NewLocator(grep, home, []SearchPath{{Dir: dir, Scope: ScopeUserAgent}})

	// Only a walk could find the renamed descriptor.
	_, ok := l.Locate(context.Background(), "com.example.foo")
	assert.False(t, ok)

	got, ok := l.Locate(context.Background(), "com.example.bar")
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, 2, grep.calls)
}

func TestLocateNotFound(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	dir := filepath.Join(home, "agents")
	writeAgent(t, dir, "a.plist", "com.example.a")

	l := NewLocator(&grepStub{}, home, []SearchPath{{Dir: dir}, {Dir: filepath.Join(home, "none")}})
	_, ok := l.Locate(context.Background(), "com.example.missing")
	assert.False(t, ok)
	_, ok = l.Locate(context.Background(), "  ")
	assert.False(t, ok)
}

func TestInfoAndUserAgentPath(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	user := filepath.Join(home, "Library", "LaunchAgents")
	path := writeAgent(t, user, "com.example.foo.plist", "com.example.foo")

	l := NewLocator(nil, home, []SearchPath{{Dir: user, Scope: ScopeUserAgent}})
	info, ok := l.Info("com.example.foo")
	require.True(t, ok)
	assert.Equal(t, path, info.Path)
	assert.True(t, info.IsUserAgent())
	assert.False(t, info.ModTime.IsZero())
	assert.Equal(t, path, l.UserAgentPath("com.example.foo"))
}

func TestSearchPathsFromDirs(t *testing.T) {
	t.Parallel()

	got := SearchPathsFromDirs("/Users/me", []string{
		"~/Library/LaunchAgents",
		"/Library/LaunchDaemons",
		"",
		"/System/Library/LaunchAgents",
		"/System/Library/LaunchDaemons",
		"/opt/agents",
	})
	require.Len(t, got, 5)
	assert.Equal(t, SearchPath{Dir: "/Users/me/Library/LaunchAgents", Scope: ScopeUserAgent}, got[0])
	assert.Equal(t, ScopeDaemon, got[1].Scope)
	assert.Equal(t, ScopeSystemAgent, got[2].Scope)
	assert.Equal(t, ScopeSystemDaemon, got[3].Scope)
	assert.Equal(t, ScopeAgent, got[4].Scope)
}

func TestDefaultSearchPathsOrder(t *testing.T) {
	t.Parallel()

	got := DefaultSearchPaths("/Users/me")
	require.Len(t, got, 5)
	assert.Equal(t, "/Users/me/Library/LaunchAgents", got[0].Dir)
	assert.Equal(t, "/System/Library/LaunchDaemons", got[4].Dir)
}
