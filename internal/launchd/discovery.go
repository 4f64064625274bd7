package launchd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opus-domini/launchmon/internal/descriptor"
	"github.com/opus-domini/launchmon/internal/runner"
)

const defaultDescribeConcurrency = 8

// ErrManagerUnavailable is returned when launchctl could not be executed.
var ErrManagerUnavailable = errors.New("launchctl unavailable")

// Entry is one row of `launchctl list`.
type Entry struct {
	PID      string `json:"pid,omitempty"`
	LastExit string `json:"lastExit,omitempty"`
	Label    string `json:"label"`
}

// Service is a discovered job with its best-effort description.
type Service struct {
	Entry
	Description string `json:"description,omitempty"`
}

// ParseList extracts jobs from `launchctl list` output. The first line is a
// header; every other non-empty line contributes its last whitespace-separated
// token as the label, except the "-" placeholder. Output order is preserved.
func ParseList(raw string) []Entry {
	lines := strings.Split(raw, "\n")
	if len(lines) <= 1 {
		return nil
	}
	entries := make([]Entry, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		label := fields[len(fields)-1]
		if label == "-" {
			continue
		}
		entry := Entry{Label: label}
		if len(fields) >= 3 {
			entry.PID = fields[0]
			entry.LastExit = fields[1]
		}
		entries = append(entries, entry)
	}
	return entries
}

type descriptorGuesser interface {
	Guess(label string) (string, bool)
}

// Discovery lists every job known to launchd.
type Discovery struct {
	runner      commandRunner
	locator     descriptorGuesser
	describeFn  func(path string) string
	concurrency int
}

// NewDiscovery returns a Discovery. locator may be nil, in which case no
// descriptions are derived.
func NewDiscovery(r commandRunner, locator descriptorGuesser) *Discovery {
	return &Discovery{
		runner:      r,
		locator:     locator,
		describeFn:  describeFile,
		concurrency: defaultDescribeConcurrency,
	}
}

// Labels returns just the labels from ListAll.
func (d *Discovery) Labels(ctx context.Context) ([]string, error) {
	services, err := d.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(services))
	for _, svc := range services {
		labels = append(labels, svc.Label)
	}
	return labels, nil
}

// ListAll runs `launchctl list` and returns the jobs in manager order. A
// description is attached where a descriptor can be found by filename;
// lookups that fail are simply left blank.
func (d *Discovery) ListAll(ctx context.Context) ([]Service, error) {
	res := d.runner.Run(ctx, listCommand())
	switch res.ExitStatus {
	case runner.ExitLaunchFailure:
		return nil, ErrManagerUnavailable
	case runner.ExitTimeout:
		return nil, errors.New("launchctl list timed out")
	}
	if !res.OK() {
		return nil, fmt.Errorf("launchctl list failed (status %d): %s", res.ExitStatus, strings.TrimSpace(res.Output))
	}

	entries := ParseList(res.Output)
	services := make([]Service, len(entries))
	for i, e := range entries {
		services[i] = Service{Entry: e}
	}
	if d.locator == nil {
		return services, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range services {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if path, ok := d.locator.Guess(services[i].Label); ok {
				services[i].Description = d.describeFn(path)
			}
			return nil
		})
	}
	_ = g.Wait()
	return services, nil
}

func describeFile(path string) string {
	desc, err := descriptor.ReadFile(path)
	if err != nil {
		return ""
	}
	return desc.Describe()
}
