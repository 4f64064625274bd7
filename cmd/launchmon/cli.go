package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/opus-domini/launchmon/internal/config"
	"github.com/opus-domini/launchmon/internal/descriptor"
	"github.com/opus-domini/launchmon/internal/launchd"
	"github.com/opus-domini/launchmon/internal/monitor"
	"github.com/opus-domini/launchmon/internal/registry"
	"github.com/opus-domini/launchmon/internal/service"
	"github.com/opus-domini/launchmon/internal/store"
)

var (
	serveFn          = serve
	loadConfigFn     = config.Load
	currentVersionFn = currentVersion
)

const (
	cmdHelp       = "help"
	flagHelpShort = "-h"
	flagHelpLong  = "--help"

	defaultHistoryLimit = 20
)

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

func runCLI(args []string, stdout, stderr io.Writer) int {
	ctx := commandContext{stdout: stdout, stderr: stderr}

	if len(args) == 0 {
		return serveFn()
	}

	switch args[0] {
	case "-v", "--version", "version":
		writef(stdout, "launchmon version %s\n", currentVersionFn())
		return 0
	case "serve":
		return runServeCommand(ctx, args[1:])
	case "list":
		return runListCommand(ctx, args[1:])
	case "discover":
		return runDiscoverCommand(ctx, args[1:])
	case "add":
		return runAddCommand(ctx, args[1:])
	case "remove":
		return runRemoveCommand(ctx, args[1:])
	case "rename":
		return runRenameCommand(ctx, args[1:])
	case "start", "stop", "restart":
		return runActionCommand(ctx, args[0], args[1:])
	case "status":
		return runStatusCommand(ctx, args[1:])
	case "locate":
		return runLocateCommand(ctx, args[1:])
	case "show":
		return runShowCommand(ctx, args[1:])
	case "history":
		return runHistoryCommand(ctx, args[1:])
	case "watch":
		return runWatchCommand(ctx, args[1:])
	case "agent":
		return runAgentCommand(ctx, args[1:])
	case "doctor":
		return runDoctorCommand(ctx, args[1:])
	case cmdHelp, flagHelpShort, flagHelpLong:
		printRootHelp(stdout)
		return 0
	default:
		writef(stderr, "unknown command: %s\n\n", args[0])
		printRootHelp(stderr)
		return 2
	}
}

// parseArgs parses fs allowing flags before and after positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// parseCommand handles -help and the positional argument count. maxArgs < 0
// means unbounded. When ok is false the caller returns code.
func parseCommand(ctx commandContext, fs *flag.FlagSet, args []string, minArgs, maxArgs int, usage func(io.Writer)) (positional []string, code int, ok bool) {
	fs.SetOutput(ctx.stderr)
	help := fs.Bool("help", false, "show help")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return nil, 2, false
	}
	if *help {
		usage(ctx.stdout)
		return nil, 0, false
	}
	if maxArgs >= 0 && len(positional) > maxArgs {
		writef(ctx.stderr, "unexpected argument(s): %s\n", strings.Join(positional[maxArgs:], " "))
		usage(ctx.stderr)
		return nil, 2, false
	}
	if len(positional) < minArgs {
		writeln(ctx.stderr, "missing argument")
		usage(ctx.stderr)
		return nil, 2, false
	}
	return positional, 0, true
}

// openApp loads config and wires the control plane for a one-shot command.
// Only warnings reach stderr unless debug logging is configured.
func openApp(ctx commandContext) (*app, bool) {
	cfg := loadConfigFn()
	if cfg.LogLevel == "debug" {
		initLogger("debug")
	} else {
		initLogger("warn")
	}
	a, err := newAppFn(cfg)
	if err != nil {
		writef(ctx.stderr, "init failed: %v\n", err)
		return nil, false
	}
	return a, true
}

// findItem resolves an item id or tracked label.
func findItem(ctx commandContext, a *app, ref string) (registry.Item, bool) {
	item, ok := a.monitor.Find(ref)
	if !ok {
		writef(ctx.stderr, "not tracked: %s\n", ref)
	}
	return item, ok
}

func runServeCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if _, code, ok := parseCommand(ctx, fs, args, 0, 0, printServeHelp); !ok {
		return code
	}
	return serveFn()
}

func runListCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	newest := fs.Bool("newest", false, "sort by date added, newest first")
	oldest := fs.Bool("oldest", false, "sort by date added, oldest first")
	if _, code, ok := parseCommand(ctx, fs, args, 0, 0, printListHelp); !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	a.monitor.Refresh(context.Background())
	snap := a.monitor.Snapshot()
	switch {
	case *newest:
		monitor.SortItems(snap.Items, true)
	case *oldest:
		monitor.SortItems(snap.Items, false)
	}
	if len(snap.Items) == 0 {
		writeln(ctx.stdout, "no services tracked")
		return 0
	}

	rows := make([][]string, 0, len(snap.Items))
	for _, it := range snap.Items {
		rows = append(rows, []string{
			it.ID.String(),
			it.Label,
			it.Name(),
			string(it.State),
			formatWhen(ctx.stdout, it.DateAdded.Time),
		})
	}
	printTable(ctx.stdout, []string{"ID", "LABEL", "NAME", "STATE", "ADDED"}, rows, 3)
	return 0
}

func runDiscoverCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	sortOrder := fs.String("sort", string(monitor.SortByName), "sort order: name|-name|date|-date")
	filter := fs.String("filter", "", "only services whose label or description contains this text")
	untracked := fs.Bool("untracked", false, "hide services that are already tracked")
	if _, code, ok := parseCommand(ctx, fs, args, 0, 0, printDiscoverHelp); !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	services, err := a.monitor.Discover(context.Background())
	if err != nil {
		if errors.Is(err, launchd.ErrManagerUnavailable) {
			writeln(ctx.stderr, "launchctl is not available")
			return 1
		}
		writef(ctx.stderr, "discover failed: %v\n", err)
		return 1
	}
	services = monitor.FilterServices(services, *filter)
	monitor.SortServices(services, monitor.ParseSortOrder(*sortOrder))

	rows := make([][]string, 0, len(services))
	for _, svc := range services {
		if *untracked && svc.Tracked {
			continue
		}
		tracked := ""
		if svc.Tracked {
			tracked = "yes"
		}
		pid := svc.PID
		if pid == "" {
			pid = "-"
		}
		rows = append(rows, []string{svc.Label, pid, tracked, svc.Description})
	}
	if len(rows) == 0 {
		writeln(ctx.stdout, "no services found")
		return 0
	}
	printTable(ctx.stdout, []string{"LABEL", "PID", "TRACKED", "DESCRIPTION"}, rows, -1)
	return 0
}

func runAddCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	name := fs.String("name", "", "display name (defaults to the label)")
	positional, code, ok := parseCommand(ctx, fs, args, 1, 1, printAddHelp)
	if !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	item, err := a.monitor.Add(context.Background(), positional[0], *name)
	switch {
	case errors.Is(err, registry.ErrEmptyLabel):
		writeln(ctx.stderr, "label is required")
		return 2
	case err != nil:
		writef(ctx.stderr, "add failed: %v\n", err)
		return 1
	}
	printNotice(ctx.stdout, "tracking "+item.Label)
	printRows(ctx.stdout, []outputRow{
		{Key: "id", Value: item.ID.String()},
		{Key: "label", Value: item.Label},
		{Key: "name", Value: item.Name()},
		{Key: "state", Value: string(a.monitor.Status(item.Label))},
	})
	return 0
}

func runRemoveCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	positional, code, ok := parseCommand(ctx, fs, args, 1, 1, printRemoveHelp)
	if !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	item, ok := findItem(ctx, a, positional[0])
	if !ok {
		return 1
	}
	if err := a.monitor.Remove(context.Background(), item.ID); err != nil {
		writef(ctx.stderr, "remove failed: %v\n", err)
		return 1
	}
	printNotice(ctx.stdout, "stopped tracking "+item.Label)
	return 0
}

func runRenameCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("rename", flag.ContinueOnError)
	positional, code, ok := parseCommand(ctx, fs, args, 2, -1, printRenameHelp)
	if !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	item, ok := findItem(ctx, a, positional[0])
	if !ok {
		return 1
	}
	renamed, err := a.monitor.Rename(item.ID, strings.Join(positional[1:], " "))
	if err != nil {
		writef(ctx.stderr, "rename failed: %v\n", err)
		return 1
	}
	printNotice(ctx.stdout, fmt.Sprintf("%s is now %q", renamed.Label, renamed.Name()))
	return 0
}

func runActionCommand(ctx commandContext, verb string, args []string) int {
	action, err := launchd.ParseAction(verb)
	if err != nil {
		writef(ctx.stderr, "invalid action: %s\n", verb)
		return 2
	}
	fs := flag.NewFlagSet(verb, flag.ContinueOnError)
	positional, code, ok := parseCommand(ctx, fs, args, 1, 1, func(w io.Writer) { printActionHelp(w, verb) })
	if !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	res, err := a.monitor.Act(context.Background(), action, positional[0])
	if err != nil {
		writef(ctx.stderr, "%s failed: %v\n", verb, err)
		return 1
	}
	if res.Skipped {
		writef(ctx.stderr, "no descriptor found for %s; nothing to %s\n", res.Label, verb)
		return 1
	}

	rows := []outputRow{
		{Key: "label", Value: res.Label},
		{Key: "action", Value: string(res.Action)},
		{Key: "ok", Value: strconv.FormatBool(res.OK)},
		{Key: "state", Value: string(res.State)},
	}
	if res.DescriptorPath != "" {
		rows = append(rows, outputRow{Key: "descriptor", Value: res.DescriptorPath})
	}
	if res.Output != "" {
		rows = append(rows, outputRow{Key: "output", Value: res.Output})
	}
	printRows(ctx.stdout, rows)
	if !res.OK {
		return 1
	}
	return 0
}

func runStatusCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	positional, code, ok := parseCommand(ctx, fs, args, 1, -1, printStatusHelp)
	if !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	rows := make([]outputRow, 0, len(positional))
	for _, ref := range positional {
		label := ref
		if item, found := a.monitor.Find(ref); found {
			label = item.Label
		}
		rows = append(rows, outputRow{Key: label, Value: string(a.monitor.ResolveNow(context.Background(), label))})
	}
	printRows(ctx.stdout, rows)
	return 0
}

func runLocateCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("locate", flag.ContinueOnError)
	positional, code, ok := parseCommand(ctx, fs, args, 1, 1, printLocateHelp)
	if !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	path, found := a.monitor.Locate(context.Background(), positional[0])
	if !found {
		writef(ctx.stderr, "no descriptor found for %s\n", positional[0])
		return 1
	}
	writeln(ctx.stdout, path)
	return 0
}

func runShowCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	positional, code, ok := parseCommand(ctx, fs, args, 1, 1, printShowHelp)
	if !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	view, err := a.monitor.Descriptor(context.Background(), positional[0])
	if err != nil {
		if errors.Is(err, descriptor.ErrNotFound) {
			writef(ctx.stderr, "no descriptor found for %s\n", positional[0])
			return 1
		}
		writef(ctx.stderr, "show failed: %v\n", err)
		return 1
	}
	printHeading(ctx.stdout, view.Path)
	writef(ctx.stdout, "%s", view.Content)
	if !strings.HasSuffix(view.Content, "\n") {
		writeln(ctx.stdout)
	}
	return 0
}

func runHistoryCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	label := fs.String("label", "", "only this label")
	limit := fs.Int("limit", defaultHistoryLimit, "maximum rows per section")
	actions := fs.Bool("actions", false, "list lifecycle actions instead of state transitions")
	if _, code, ok := parseCommand(ctx, fs, args, 0, 0, printHistoryHelp); !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()
	if a.history == nil {
		writeln(ctx.stderr, "history is disabled")
		return 1
	}

	bg := context.Background()
	if *actions {
		rows, err := a.history.ListActions(bg, *label, *limit)
		if err != nil {
			writef(ctx.stderr, "history failed: %v\n", err)
			return 1
		}
		printActionHistory(ctx.stdout, rows)
		return 0
	}
	rows, err := a.history.ListTransitions(bg, *label, *limit)
	if err != nil {
		writef(ctx.stderr, "history failed: %v\n", err)
		return 1
	}
	printTransitionHistory(ctx.stdout, rows)
	return 0
}

func printTransitionHistory(w io.Writer, transitions []store.Transition) {
	if len(transitions) == 0 {
		writeln(w, "no transitions recorded")
		return
	}
	rows := make([][]string, 0, len(transitions))
	for _, tr := range transitions {
		rows = append(rows, []string{formatWhen(w, tr.ObservedAt), tr.Label, tr.From, tr.To})
	}
	printTable(w, []string{"WHEN", "LABEL", "FROM", "TO"}, rows, 3)
}

func printActionHistory(w io.Writer, actions []store.Action) {
	if len(actions) == 0 {
		writeln(w, "no actions recorded")
		return
	}
	rows := make([][]string, 0, len(actions))
	for _, act := range actions {
		result := strconv.FormatBool(act.OK)
		if act.Skipped {
			result = "skipped"
		}
		rows = append(rows, []string{formatWhen(w, act.StartedAt), act.Label, act.Action, result, act.State})
	}
	printTable(w, []string{"WHEN", "LABEL", "ACTION", "OK", "STATE"}, rows, 4)
}

func runWatchCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	if _, code, ok := parseCommand(ctx, fs, args, 0, 0, printWatchHelp); !ok {
		return code
	}

	cfg := loadConfigFn()
	initLogger(cfg.LogLevel)
	a, err := newAppFn(cfg)
	if err != nil {
		writef(ctx.stderr, "init failed: %v\n", err)
		return 1
	}
	defer a.close()

	runCtx, stop := notifyContextFn()
	defer stop()
	a.pruneHistory(runCtx)

	a.monitor.Refresh(runCtx)
	snap := a.monitor.Snapshot()
	printHeading(ctx.stdout, fmt.Sprintf("watching %d service(s) every %s", len(snap.Items), cfg.RefreshInterval))
	for _, it := range snap.Items {
		writef(ctx.stdout, "%s\t%s\n", it.Label, it.State)
	}

	// The scheduler and the descriptor watcher report from separate goroutines.
	var printMu sync.Mutex
	bg := a.startBackground(runCtx, func(transitions []store.Transition) {
		printMu.Lock()
		defer printMu.Unlock()
		for _, tr := range transitions {
			writef(ctx.stdout, "%s\t%s\t%s -> %s\n", formatWhen(ctx.stdout, tr.ObservedAt), tr.Label, tr.From, tr.To)
		}
	}, true)
	<-runCtx.Done()
	bg.stop()
	return 0
}

func runAgentCommand(ctx commandContext, args []string) int {
	if len(args) == 0 {
		printAgentHelp(ctx.stderr)
		return 2
	}

	switch args[0] {
	case "install":
		return runAgentInstallCommand(ctx, args[1:])
	case "uninstall":
		return runAgentUninstallCommand(ctx, args[1:])
	case "status":
		return runAgentStatusCommand(ctx, args[1:])
	case cmdHelp, flagHelpShort, flagHelpLong:
		printAgentHelp(ctx.stdout)
		return 0
	default:
		writef(ctx.stderr, "unknown agent command: %s\n\n", args[0])
		printAgentHelp(ctx.stderr)
		return 2
	}
}

func runAgentInstallCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("agent install", flag.ContinueOnError)
	execPath := fs.String("exec", "", "path to the launchmon binary (defaults to current executable)")
	start := fs.Bool("start", true, "bootstrap the agent now")
	if _, code, ok := parseCommand(ctx, fs, args, 0, 0, printAgentHelp); !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	var env map[string]string
	if a.cfg.LogLevel != "" {
		env = map[string]string{"LAUNCHMON_LOG_LEVEL": a.cfg.LogLevel}
	}
	res, err := a.agent.Install(context.Background(), service.InstallOptions{
		ExecPath: *execPath,
		Start:    *start,
		Env:      env,
	})
	writef(ctx.stdout, "agent descriptor: %s\n", a.agent.DescriptorPath())
	if err != nil {
		writef(ctx.stderr, "agent install failed: %v\n", err)
		return 1
	}
	if *start {
		writef(ctx.stdout, "agent started: %s\n", res.State)
	} else {
		writeln(ctx.stdout, "agent installed (not started)")
	}
	return 0
}

func runAgentUninstallCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("agent uninstall", flag.ContinueOnError)
	stop := fs.Bool("stop", true, "boot the agent out")
	remove := fs.Bool("remove", true, "remove the agent descriptor")
	if _, code, ok := parseCommand(ctx, fs, args, 0, 0, printAgentHelp); !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	if err := a.agent.Uninstall(context.Background(), service.UninstallOptions{
		Stop:             *stop,
		RemoveDescriptor: *remove,
	}); err != nil {
		writef(ctx.stderr, "agent uninstall failed: %v\n", err)
		return 1
	}
	writeln(ctx.stdout, "agent uninstalled")
	return 0
}

func runAgentStatusCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("agent status", flag.ContinueOnError)
	if _, code, ok := parseCommand(ctx, fs, args, 0, 0, printAgentHelp); !ok {
		return code
	}

	a, ok := openApp(ctx)
	if !ok {
		return 1
	}
	defer a.close()

	st := a.agent.Status(context.Background())
	printRows(ctx.stdout, []outputRow{
		{Key: "label", Value: service.AgentLabel},
		{Key: "descriptor", Value: st.DescriptorPath},
		{Key: "installed", Value: strconv.FormatBool(st.DescriptorExists)},
		{Key: "state", Value: string(st.State)},
	})
	return 0
}

func runDoctorCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	if _, code, ok := parseCommand(ctx, fs, args, 0, 0, printDoctorHelp); !ok {
		return code
	}

	cfg := loadConfigFn()
	rows := []outputRow{
		{Key: "os", Value: runtime.GOOS + "/" + runtime.GOARCH},
		{Key: "supported host", Value: strconv.FormatBool(runtime.GOOS == "darwin")},
		{Key: "launchctl", Value: lookPathValue("launchctl")},
		{Key: "grep", Value: lookPathValue("grep")},
		{Key: "data dir", Value: cfg.DataDir},
		{Key: "settings", Value: cfg.SettingsPath()},
		{Key: "registry", Value: cfg.RegistryPath()},
		{Key: "history", Value: strconv.FormatBool(cfg.History)},
		{Key: "listen", Value: cfg.ListenAddr},
		{Key: "token required", Value: strconv.FormatBool(cfg.Token != "")},
		{Key: "webhook", Value: strconv.FormatBool(cfg.WebhookURL != "")},
		{Key: "refresh interval", Value: cfg.RefreshInterval.String()},
	}
	paths := descriptor.DefaultSearchPaths(cfg.Home)
	if len(cfg.SearchPaths) > 0 {
		paths = descriptor.SearchPathsFromDirs(cfg.Home, cfg.SearchPaths)
	}
	for _, sp := range paths {
		_, err := os.Stat(sp.Dir)
		rows = append(rows, outputRow{Key: "search " + string(sp.Scope), Value: sp.Dir + " (exists=" + strconv.FormatBool(err == nil) + ")"})
	}
	printHeading(ctx.stdout, "launchmon doctor report")
	printRows(ctx.stdout, rows)
	return 0
}

func lookPathValue(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return "not-found"
	}
	return path
}

func printRootHelp(w io.Writer) {
	writeln(w, "launchmon command-line interface")
	writeln(w, "")
	writeln(w, "Usage:")
	writeln(w, "  launchmon [serve]")
	writeln(w, "  launchmon <command> [flags] [args]")
	writeln(w, "")
	writeln(w, "Commands:")
	writeln(w, "  serve      Start the HTTP API with auto-refresh (default)")
	writeln(w, "  list       List tracked services with their state")
	writeln(w, "  discover   List every job launchd knows about")
	writeln(w, "  add        Track a service by label")
	writeln(w, "  remove     Stop tracking a service")
	writeln(w, "  rename     Change a tracked service's display name")
	writeln(w, "  start      Bootstrap a service")
	writeln(w, "  stop       Boot a service out")
	writeln(w, "  restart    Stop then start a service")
	writeln(w, "  status     Resolve the current state of labels")
	writeln(w, "  locate     Print the descriptor path for a label")
	writeln(w, "  show       Print the descriptor contents for a label")
	writeln(w, "  history    Show recorded state transitions and actions")
	writeln(w, "  watch      Print state transitions as they happen")
	writeln(w, "  agent      Manage the launchmon launchd agent")
	writeln(w, "  doctor     Check local environment and runtime config")
	writeln(w, "  version    Print the version")
}

func printServeHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon serve")
	writeln(w, "")
	writeln(w, "Starts the HTTP API using config file/env defaults.")
}

func printListHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon list [-newest|-oldest]")
}

func printDiscoverHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon discover [-sort name|-name|date|-date] [-filter TEXT] [-untracked]")
}

func printAddHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon add <label> [-name NAME]")
}

func printRemoveHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon remove <id|label>")
}

func printRenameHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon rename <id|label> <name>")
}

func printActionHelp(w io.Writer, verb string) {
	writeln(w, "Usage:")
	writef(w, "  launchmon %s <id|label>\n", verb)
}

func printStatusHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon status <id|label>...")
}

func printLocateHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon locate <label>")
}

func printShowHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon show <label>")
}

func printHistoryHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon history [-label LABEL] [-limit N] [-actions]")
}

func printWatchHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon watch")
	writeln(w, "")
	writeln(w, "Refreshes tracked services until interrupted and prints every state change.")
}

func printAgentHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon agent install [-exec PATH] [-start=true]")
	writeln(w, "  launchmon agent uninstall [-stop=true] [-remove=true]")
	writeln(w, "  launchmon agent status")
}

func printDoctorHelp(w io.Writer) {
	writeln(w, "Usage:")
	writeln(w, "  launchmon doctor")
}

func currentVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		if strings.TrimSpace(bi.Main.Version) != "" && bi.Main.Version != "(devel)" {
			return bi.Main.Version
		}
	}
	return "dev"
}
