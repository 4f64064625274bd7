package descriptor

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opus-domini/launchmon/internal/runner"
)

// Scope classifies a search directory.
type Scope string

const (
	ScopeUserAgent    Scope = "user-agent"
	ScopeAgent        Scope = "agent"
	ScopeDaemon       Scope = "daemon"
	ScopeSystemAgent  Scope = "system-agent"
	ScopeSystemDaemon Scope = "system-daemon"
)

// SearchPath is a directory searched for descriptors.
type SearchPath struct {
	Dir   string
	Scope Scope
}

// DefaultSearchPaths returns the launchd directories in lookup priority order.
func DefaultSearchPaths(home string) []SearchPath {
	return []SearchPath{
		{Dir: filepath.Join(home, "Library", "LaunchAgents"), Scope: ScopeUserAgent},
		{Dir: "/Library/LaunchAgents", Scope: ScopeAgent},
		{Dir: "/Library/LaunchDaemons", Scope: ScopeDaemon},
		{Dir: "/System/Library/LaunchAgents", Scope: ScopeSystemAgent},
		{Dir: "/System/Library/LaunchDaemons", Scope: ScopeSystemDaemon},
	}
}

// SearchPathsFromDirs builds search paths from configured directories,
// keeping their order and inferring each scope from its location.
func SearchPathsFromDirs(home string, dirs []string) []SearchPath {
	out := make([]SearchPath, 0, len(dirs))
	for _, dir := range dirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		if strings.HasPrefix(dir, "~/") {
			dir = filepath.Join(home, dir[2:])
		}
		out = append(out, SearchPath{Dir: filepath.Clean(dir), Scope: inferScope(home, dir)})
	}
	return out
}

func inferScope(home, dir string) Scope {
	lower := strings.ToLower(dir)
	system := strings.HasPrefix(lower, "/system/")
	daemon := strings.Contains(lower, "launchdaemons")
	switch {
	case home != "" && strings.HasPrefix(dir, home):
		return ScopeUserAgent
	case system && daemon:
		return ScopeSystemDaemon
	case system:
		return ScopeSystemAgent
	case daemon:
		return ScopeDaemon
	default:
		return ScopeAgent
	}
}

// Info describes where a descriptor was found by filename.
type Info struct {
	Path    string
	Scope   Scope
	ModTime time.Time
}

// IsUserAgent reports whether the descriptor lives in the user's own directory.
func (i Info) IsUserAgent() bool {
	return i.Scope == ScopeUserAgent
}

type commandRunner interface {
	Run(ctx context.Context, cmd runner.Command) runner.Result
}

// Locator finds the descriptor file for a label. Results are never cached:
// descriptors may be added or removed outside of launchmon at any time.
type Locator struct {
	home   string
	paths  []SearchPath
	runner commandRunner
	statFn func(string) (os.FileInfo, error)
}

// NewLocator returns a Locator over paths. An empty paths slice selects
// DefaultSearchPaths.
func NewLocator(r commandRunner, home string, paths []SearchPath) *Locator {
	if len(paths) == 0 {
		paths = DefaultSearchPaths(home)
	}
	return &Locator{
		home:   home,
		paths:  paths,
		runner: r,
		statFn: os.Stat,
	}
}

// SearchPaths returns the directories in priority order.
func (l *Locator) SearchPaths() []SearchPath {
	out := make([]SearchPath, len(l.paths))
	copy(out, l.paths)
	return out
}

// Locate searches each directory in priority order. Within a directory a
// content match on the declared Label wins over a filename match; the first
// directory with either kind of hit ends the search.
func (l *Locator) Locate(ctx context.Context, label string) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	for _, sp := range l.paths {
		if !l.isDir(sp.Dir) {
			continue
		}
		if path, ok := l.searchContent(ctx, sp.Dir, label); ok {
			return path, true
		}
		if path, ok := l.guessIn(sp.Dir, label); ok {
			return path, true
		}
	}
	return "", false
}

// Guess checks only for `<dir>/<label>.plist` in each directory.
func (l *Locator) Guess(label string) (string, bool) {
	info, ok := l.Info(label)
	return info.Path, ok
}

// Info returns the filename match for label with its scope and modification time.
func (l *Locator) Info(label string) (Info, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Info{}, false
	}
	for _, sp := range l.paths {
		path := filepath.Join(sp.Dir, label+Extension)
		st, err := l.statFn(path)
		if err != nil || st.IsDir() {
			continue
		}
		return Info{Path: path, Scope: sp.Scope, ModTime: st.ModTime()}, true
	}
	return Info{}, false
}

// UserAgentPath is the conventional location of a per-user agent descriptor.
func (l *Locator) UserAgentPath(label string) string {
	return filepath.Join(l.home, "Library", "LaunchAgents", strings.TrimSpace(label)+Extension)
}

func (l *Locator) guessIn(dir, label string) (string, bool) {
	path := filepath.Join(dir, label+Extension)
	st, err := l.statFn(path)
	if err != nil || st.IsDir() {
		return "", false
	}
	return path, true
}

func (l *Locator) isDir(dir string) bool {
	st, err := l.statFn(dir)
	return err == nil && st.IsDir()
}

// searchContent asks grep for files whose text declares label, then confirms
// each candidate by decoding it. When grep cannot be launched the directory
// is walked and decoded natively, which also covers binary property lists.
func (l *Locator) searchContent(ctx context.Context, dir, label string) (string, bool) {
	if l.runner == nil {
		return walkForLabel(dir, label)
	}
	pattern := "<string>[[:space:]]*" + quoteERE(label) + "[[:space:]]*</string>"
	res := l.runner.Run(ctx, runner.Cmd("grep", "-R", "-l", "-E", "--include=*"+Extension, "-e", pattern, dir))
	if res.ExitStatus == runner.ExitLaunchFailure {
		return walkForLabel(dir, label)
	}
	for _, line := range strings.Split(res.Output, "\n") {
		candidate := strings.TrimSpace(line)
		if candidate == "" || !strings.HasSuffix(candidate, Extension) {
			continue
		}
		if declaresLabel(candidate, label) {
			return candidate, true
		}
	}
	return "", false
}

var errFound = errors.New("found")

func walkForLabel(dir, label string) (string, bool) {
	var match string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Extension) {
			return nil
		}
		if declaresLabel(path, label) {
			match = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		slog.Debug("descriptor walk failed", "dir", dir, "err", err)
	}
	return match, match != ""
}

func declaresLabel(path, label string) bool {
	d, err := ReadFile(path)
	if err != nil {
		return false
	}
	return strings.TrimSpace(d.Label) == label
}

func quoteERE(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.[]()*+?{}|^$`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
