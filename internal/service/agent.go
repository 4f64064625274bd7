// Package service installs launchmon itself as a per-user launchd agent
// running `launchmon serve`.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"howett.net/plist"

	"github.com/opus-domini/launchmon/internal/launchd"
)

const (
	AgentLabel = "io.opusdomini.launchmon"

	agentFileName = AgentLabel + ".plist"
	logBaseName   = "launchmon"
)

type InstallOptions struct {
	// ExecPath defaults to the running executable.
	ExecPath string
	Start    bool
	// Env is written into EnvironmentVariables, e.g. LAUNCHMON_LOG_LEVEL.
	Env map[string]string
}

type UninstallOptions struct {
	Stop             bool
	RemoveDescriptor bool
}

type Status struct {
	DescriptorPath   string        `json:"descriptorPath"`
	DescriptorExists bool          `json:"descriptorExists"`
	State            launchd.State `json:"state"`
}

type lifecycle interface {
	Start(ctx context.Context, label string) launchd.ActionResult
	Stop(ctx context.Context, label string) launchd.ActionResult
}

type stateResolver interface {
	Resolve(ctx context.Context, label string) launchd.State
}

// Agent manages the launchmon agent descriptor in ~/Library/LaunchAgents.
type Agent struct {
	home       string
	lifecycle  lifecycle
	resolver   stateResolver
	executable func() (string, error)
}

func NewAgent(home string, lc lifecycle, res stateResolver) *Agent {
	return &Agent{
		home:       home,
		lifecycle:  lc,
		resolver:   res,
		executable: os.Executable,
	}
}

func (a *Agent) DescriptorPath() string {
	return filepath.Join(a.home, "Library", "LaunchAgents", agentFileName)
}

func (a *Agent) logPaths() (string, string, error) {
	logDir := filepath.Join(a.home, "Library", "Logs", logBaseName)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return "", "", fmt.Errorf("create log directory: %w", err)
	}
	return filepath.Join(logDir, logBaseName+".out.log"), filepath.Join(logDir, logBaseName+".err.log"), nil
}

// Install writes the agent descriptor and optionally bootstraps it. An
// already loaded agent is booted out first so the new descriptor applies.
func (a *Agent) Install(ctx context.Context, opts InstallOptions) (launchd.ActionResult, error) {
	execPath, err := a.resolveExecPath(opts.ExecPath)
	if err != nil {
		return launchd.ActionResult{}, err
	}
	stdoutPath, stderrPath, err := a.logPaths()
	if err != nil {
		return launchd.ActionResult{}, err
	}
	data, err := renderAgentDescriptor(execPath, stdoutPath, stderrPath, opts.Env)
	if err != nil {
		return launchd.ActionResult{}, err
	}

	path := a.DescriptorPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return launchd.ActionResult{}, fmt.Errorf("create launch agents directory: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return launchd.ActionResult{}, fmt.Errorf("write agent descriptor: %w", err)
	}
	if !opts.Start {
		return launchd.ActionResult{Label: AgentLabel, DescriptorPath: path, Skipped: true}, nil
	}

	if a.resolver.Resolve(ctx, AgentLabel) == launchd.StateRunning {
		_ = a.lifecycle.Stop(ctx, AgentLabel)
	}
	res := a.lifecycle.Start(ctx, AgentLabel)
	if !res.OK {
		return res, fmt.Errorf("bootstrap %s failed: %s", AgentLabel, strings.TrimSpace(res.Output))
	}
	return res, nil
}

// Uninstall boots the agent out and removes its descriptor, as requested.
func (a *Agent) Uninstall(ctx context.Context, opts UninstallOptions) error {
	if opts.Stop {
		_ = a.lifecycle.Stop(ctx, AgentLabel)
	}
	if opts.RemoveDescriptor {
		if err := os.Remove(a.DescriptorPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove agent descriptor: %w", err)
		}
	}
	return nil
}

func (a *Agent) Status(ctx context.Context) Status {
	st := Status{DescriptorPath: a.DescriptorPath()}
	if info, err := os.Stat(st.DescriptorPath); err == nil && !info.IsDir() {
		st.DescriptorExists = true
	}
	st.State = a.resolver.Resolve(ctx, AgentLabel)
	return st
}

func (a *Agent) resolveExecPath(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		exe, err := a.executable()
		if err != nil {
			return "", fmt.Errorf("resolve executable: %w", err)
		}
		raw = exe
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return abs, nil
}

type agentDescriptor struct {
	Label                string            `plist:"Label"`
	ProgramArguments     []string          `plist:"ProgramArguments"`
	RunAtLoad            bool              `plist:"RunAtLoad"`
	KeepAlive            bool              `plist:"KeepAlive"`
	StandardOutPath      string            `plist:"StandardOutPath"`
	StandardErrorPath    string            `plist:"StandardErrorPath"`
	EnvironmentVariables map[string]string `plist:"EnvironmentVariables,omitempty"`
}

func renderAgentDescriptor(execPath, stdoutPath, stderrPath string, env map[string]string) ([]byte, error) {
	desc := agentDescriptor{
		Label:                AgentLabel,
		ProgramArguments:     []string{execPath, "serve"},
		RunAtLoad:            true,
		KeepAlive:            true,
		StandardOutPath:      stdoutPath,
		StandardErrorPath:    stderrPath,
		EnvironmentVariables: env,
	}
	data, err := plist.MarshalIndent(desc, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encode agent descriptor: %w", err)
	}
	return data, nil
}
