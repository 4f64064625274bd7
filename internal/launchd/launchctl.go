// Package launchd discovers, resolves and controls launchd jobs by driving the
// launchctl command-line tool.
package launchd

import (
	"context"
	"fmt"

	"github.com/opus-domini/launchmon/internal/runner"
)

const launchctlBin = "launchctl"

// State is the observed run state of a job.
type State string

const (
	StateRunning   State = "RUNNING"
	StateStopped   State = "STOPPED"
	StateNotLoaded State = "NOT_LOADED"
)

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	switch s {
	case StateRunning, StateStopped, StateNotLoaded:
		return true
	default:
		return false
	}
}

// commandRunner is the subset of runner.Runner used by this package.
type commandRunner interface {
	Run(ctx context.Context, cmd runner.Command) runner.Result
	RunChain(ctx context.Context, cmds ...runner.Command) runner.Result
}

func domainTarget(uid int) string {
	return fmt.Sprintf("gui/%d", uid)
}

func serviceTarget(uid int, label string) string {
	return domainTarget(uid) + "/" + label
}

func listCommand() runner.Command {
	return runner.Cmd(launchctlBin, "list")
}

func printCommand(uid int, label string) runner.Command {
	return runner.Cmd(launchctlBin, "print", serviceTarget(uid, label))
}

func bootstrapCommand(uid int, path string) runner.Command {
	return runner.Cmd(launchctlBin, "bootstrap", domainTarget(uid), path)
}

func loadCommand(path string) runner.Command {
	return runner.Cmd(launchctlBin, "load", path)
}

func bootoutPathCommand(uid int, path string) runner.Command {
	return runner.Cmd(launchctlBin, "bootout", domainTarget(uid), path)
}

func unloadCommand(path string) runner.Command {
	return runner.Cmd(launchctlBin, "unload", path)
}

func bootoutLabelCommand(uid int, label string) runner.Command {
	return runner.Cmd(launchctlBin, "bootout", serviceTarget(uid, label))
}

// removeCommand is the legacy unload-by-label verb.
func removeCommand(label string) runner.Command {
	return runner.Cmd(launchctlBin, "remove", label)
}
