package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opus-domini/launchmon/internal/descriptor"
	"github.com/opus-domini/launchmon/internal/events"
	"github.com/opus-domini/launchmon/internal/launchd"
)

// SortOrder orders discovered services for a picker.
type SortOrder string

const (
	SortByName     SortOrder = "name"
	SortByNameDesc SortOrder = "-name"
	SortByNewest   SortOrder = "date"
	SortByOldest   SortOrder = "-date"
)

// ParseSortOrder accepts the CLI/API spellings; anything else sorts by name.
func ParseSortOrder(raw string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case SortByNameDesc, "reverse":
		return SortByNameDesc
	case SortByNewest, "newest":
		return SortByNewest
	case SortByOldest, "oldest":
		return SortByOldest
	default:
		return SortByName
	}
}

// DiscoveredService is a launchd job as offered for tracking.
type DiscoveredService struct {
	launchd.Service
	Tracked        bool             `json:"tracked"`
	DescriptorPath string           `json:"descriptorPath,omitempty"`
	Scope          descriptor.Scope `json:"scope,omitempty"`
	ModTime        time.Time        `json:"modTime,omitzero"`
}

func (d DiscoveredService) userAgent() bool {
	return d.Scope == descriptor.ScopeUserAgent
}

// Discover lists every job launchd knows about, flagging the tracked ones.
func (m *Monitor) Discover(ctx context.Context) ([]DiscoveredService, error) {
	services, err := m.deps.Discovery.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DiscoveredService, 0, len(services))
	for _, svc := range services {
		ds := DiscoveredService{Service: svc, Tracked: m.deps.Registry.Tracks(svc.Label)}
		if info, ok := m.deps.Locator.Info(svc.Label); ok {
			ds.DescriptorPath = info.Path
			ds.Scope = info.Scope
			ds.ModTime = info.ModTime
		}
		out = append(out, ds)
	}
	m.publish(events.TypeDiscoveryCompleted, map[string]any{"count": len(out)})
	return out, nil
}

// FilterServices keeps services whose label or description contains query,
// case-insensitively. An empty query keeps everything.
func FilterServices(services []DiscoveredService, query string) []DiscoveredService {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return services
	}
	out := make([]DiscoveredService, 0, len(services))
	for _, svc := range services {
		if strings.Contains(strings.ToLower(svc.Label), query) ||
			strings.Contains(strings.ToLower(svc.Description), query) {
			out = append(out, svc)
		}
	}
	return out
}

// SortServices sorts in place. Date orders put the user's own agents first
// and fall back to the label for services without a descriptor.
func SortServices(services []DiscoveredService, order SortOrder) {
	sort.SliceStable(services, func(i, j int) bool {
		a, b := services[i], services[j]
		switch order {
		case SortByNameDesc:
			return strings.ToLower(a.Label) > strings.ToLower(b.Label)
		case SortByNewest, SortByOldest:
			if a.userAgent() != b.userAgent() {
				return a.userAgent()
			}
			if !a.ModTime.Equal(b.ModTime) {
				if order == SortByNewest {
					return a.ModTime.After(b.ModTime)
				}
				return a.ModTime.Before(b.ModTime)
			}
			return strings.ToLower(a.Label) < strings.ToLower(b.Label)
		default:
			return strings.ToLower(a.Label) < strings.ToLower(b.Label)
		}
	})
}

// DescriptorView is a located descriptor rendered as text.
type DescriptorView struct {
	Label   string `json:"label"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Locate returns the descriptor path for label.
func (m *Monitor) Locate(ctx context.Context, label string) (string, bool) {
	return m.deps.Locator.Locate(ctx, strings.TrimSpace(label))
}

// Descriptor locates and renders the descriptor for label.
func (m *Monitor) Descriptor(ctx context.Context, label string) (DescriptorView, error) {
	label = strings.TrimSpace(label)
	path, ok := m.deps.Locator.Locate(ctx, label)
	if !ok {
		return DescriptorView{}, fmt.Errorf("%s: %w", label, descriptor.ErrNotFound)
	}
	content, err := descriptor.Render(path)
	if err != nil {
		return DescriptorView{}, err
	}
	return DescriptorView{Label: label, Path: path, Content: content}, nil
}
