// Package monitor ties the registry, status resolution and lifecycle control
// together and exposes the result as snapshots plus change events.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opus-domini/launchmon/internal/descriptor"
	"github.com/opus-domini/launchmon/internal/events"
	"github.com/opus-domini/launchmon/internal/launchd"
	"github.com/opus-domini/launchmon/internal/registry"
	"github.com/opus-domini/launchmon/internal/store"
)

var ErrEmptyLabel = errors.New("label is required")

type statusResolver interface {
	ResolveAll(ctx context.Context, labels []string) map[string]launchd.State
}

type lifecycleController interface {
	Do(ctx context.Context, action launchd.Action, label string) launchd.ActionResult
}

type serviceLister interface {
	ListAll(ctx context.Context) ([]launchd.Service, error)
}

type descriptorLocator interface {
	Locate(ctx context.Context, label string) (string, bool)
	Info(label string) (descriptor.Info, bool)
}

type historyRecorder interface {
	InsertTransitions(ctx context.Context, transitions []store.Transition) error
	InsertAction(ctx context.Context, a store.Action) (int64, error)
}

type transitionNotifier interface {
	Notify(ctx context.Context, transitions []store.Transition) error
}

// Deps are the collaborators a Monitor drives. History and Notifier are
// optional.
type Deps struct {
	Registry   *registry.Registry
	Resolver   statusResolver
	Controller lifecycleController
	Discovery  serviceLister
	Locator    descriptorLocator
	Hub        *events.Hub
	History    historyRecorder
	Notifier   transitionNotifier
}

// ItemStatus is a tracked item with its last resolved state.
type ItemStatus struct {
	registry.Item
	State launchd.State `json:"state"`
}

// Snapshot is a consistent view of the registry and the status map.
type Snapshot struct {
	Items     []ItemStatus             `json:"items"`
	Statuses  map[string]launchd.State `json:"statuses"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

type statusMap struct {
	states    map[string]launchd.State
	updatedAt time.Time
}

// Monitor is safe for concurrent use. The status map is replaced wholesale
// on every refresh; readers never observe a partially updated map.
type Monitor struct {
	deps   Deps
	status atomic.Pointer[statusMap]
	// swapMu orders the read-diff-swap of concurrent refreshes.
	swapMu sync.Mutex
	nowFn  func() time.Time
}

func New(deps Deps) *Monitor {
	m := &Monitor{deps: deps, nowFn: time.Now}
	m.status.Store(&statusMap{states: map[string]launchd.State{}})
	return m
}

// Snapshot returns the tracked items in registry order with their states.
// Labels not resolved yet read as NOT_LOADED.
func (m *Monitor) Snapshot() Snapshot {
	current := m.status.Load()
	items := m.deps.Registry.Items()
	out := Snapshot{
		Items:     make([]ItemStatus, 0, len(items)),
		Statuses:  make(map[string]launchd.State, len(current.states)),
		UpdatedAt: current.updatedAt,
	}
	for k, v := range current.states {
		out.Statuses[k] = v
	}
	for _, it := range items {
		out.Items = append(out.Items, ItemStatus{Item: it, State: stateOf(current.states, it.Label)})
	}
	return out
}

// SortItems orders items by date added. Ties keep registry order.
func SortItems(items []ItemStatus, newestFirst bool) {
	sort.SliceStable(items, func(i, j int) bool {
		if newestFirst {
			return items[i].DateAdded.After(items[j].DateAdded.Time)
		}
		return items[i].DateAdded.Before(items[j].DateAdded.Time)
	})
}

// Status returns the last resolved state of label.
func (m *Monitor) Status(label string) launchd.State {
	return stateOf(m.status.Load().states, label)
}

// ResolveNow queries launchd for a single label without touching the
// status map. Useful for labels that are not tracked.
func (m *Monitor) ResolveNow(ctx context.Context, label string) launchd.State {
	label = strings.TrimSpace(label)
	return stateOf(m.deps.Resolver.ResolveAll(ctx, []string{label}), label)
}

// Refresh resolves every tracked label and swaps in the new status map.
// State changes against the previous map are returned, recorded and
// announced.
func (m *Monitor) Refresh(ctx context.Context) []store.Transition {
	labels := m.deps.Registry.Labels()
	states := m.deps.Resolver.ResolveAll(ctx, labels)
	if states == nil {
		states = map[string]launchd.State{}
	}
	return m.apply(ctx, states)
}

func (m *Monitor) apply(ctx context.Context, states map[string]launchd.State) []store.Transition {
	now := m.nowFn().UTC()

	m.swapMu.Lock()
	prev := m.status.Load()
	var transitions []store.Transition
	if !prev.updatedAt.IsZero() {
		for label, to := range states {
			from, known := prev.states[label]
			if !known || from == to {
				continue
			}
			transitions = append(transitions, store.Transition{
				Label:      label,
				From:       string(from),
				To:         string(to),
				ObservedAt: now,
			})
		}
	}
	m.status.Store(&statusMap{states: states, updatedAt: now})
	m.swapMu.Unlock()

	if len(transitions) > 0 {
		for _, tr := range transitions {
			slog.Info("status changed", "label", tr.Label, "from", tr.From, "to", tr.To)
		}
		if m.deps.History != nil {
			if err := m.deps.History.InsertTransitions(ctx, transitions); err != nil {
				slog.Warn("record transitions failed", "err", err)
			}
		}
		if m.deps.Notifier != nil {
			if err := m.deps.Notifier.Notify(ctx, transitions); err != nil {
				slog.Warn("notify transitions failed", "err", err)
			}
		}
	}

	m.publish(events.TypeStatusUpdated, map[string]any{
		"statuses": states,
		"changed":  len(transitions),
	})
	return transitions
}

// Add tracks label and refreshes. A persistence failure is returned but the
// item stays tracked.
func (m *Monitor) Add(ctx context.Context, label, displayName string) (registry.Item, error) {
	item, err := m.deps.Registry.Add(label, displayName)
	if err != nil && !errors.Is(err, registry.ErrPersist) {
		return registry.Item{}, err
	}
	m.publish(events.TypeRegistryUpdated, map[string]any{"op": "add", "id": item.ID.String(), "label": item.Label})
	m.Refresh(ctx)
	return item, err
}

// Remove untracks the item. Unknown ids are a no-op.
func (m *Monitor) Remove(ctx context.Context, id uuid.UUID) error {
	err := m.deps.Registry.Remove(id)
	m.publish(events.TypeRegistryUpdated, map[string]any{"op": "remove", "id": id.String()})
	m.Refresh(ctx)
	return err
}

// Rename changes an item's display name.
func (m *Monitor) Rename(id uuid.UUID, name string) (registry.Item, error) {
	item, err := m.deps.Registry.Rename(id, name)
	if errors.Is(err, registry.ErrNotFound) {
		return registry.Item{}, err
	}
	m.publish(events.TypeRegistryUpdated, map[string]any{"op": "rename", "id": id.String(), "displayName": item.DisplayName})
	return item, err
}

// Find resolves an item id or a tracked label.
func (m *Monitor) Find(ref string) (registry.Item, bool) {
	return m.deps.Registry.Find(ref)
}

// Act runs action against ref, which is an item id or a label. Labels need
// not be tracked. The status map is refreshed afterwards.
func (m *Monitor) Act(ctx context.Context, action launchd.Action, ref string) (launchd.ActionResult, error) {
	label := strings.TrimSpace(ref)
	if item, ok := m.deps.Registry.Find(label); ok {
		label = item.Label
	}
	if label == "" {
		return launchd.ActionResult{}, ErrEmptyLabel
	}

	res := m.deps.Controller.Do(ctx, action, label)
	slog.Info("action completed",
		"label", label,
		"action", res.Action,
		"ok", res.OK,
		"skipped", res.Skipped,
		"state", res.State,
		"elapsed", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond),
	)
	if m.deps.History != nil {
		if _, err := m.deps.History.InsertAction(ctx, toStoreAction(res)); err != nil {
			slog.Warn("record action failed", "label", label, "err", err)
		}
	}
	m.Refresh(ctx)
	m.publish(events.TypeActionCompleted, map[string]any{"result": res})
	return res, nil
}

func (m *Monitor) Start(ctx context.Context, ref string) (launchd.ActionResult, error) {
	return m.Act(ctx, launchd.ActionStart, ref)
}

func (m *Monitor) Stop(ctx context.Context, ref string) (launchd.ActionResult, error) {
	return m.Act(ctx, launchd.ActionStop, ref)
}

func (m *Monitor) Restart(ctx context.Context, ref string) (launchd.ActionResult, error) {
	return m.Act(ctx, launchd.ActionRestart, ref)
}

// Subscribe returns a channel of change events and its cancel func.
func (m *Monitor) Subscribe(buffer int) (<-chan events.Event, func()) {
	return m.deps.Hub.Subscribe(buffer)
}

// DescriptorsChanged is called when descriptor files change on disk. It
// refreshes and returns the transitions that refresh observed.
func (m *Monitor) DescriptorsChanged(ctx context.Context, paths []string) []store.Transition {
	m.publish(events.TypeDescriptorsChanged, map[string]any{"paths": paths})
	return m.Refresh(ctx)
}

func (m *Monitor) publish(eventType string, payload map[string]any) {
	m.deps.Hub.Publish(events.NewEvent(eventType, payload))
}

func stateOf(states map[string]launchd.State, label string) launchd.State {
	if s, ok := states[label]; ok && s.Valid() {
		return s
	}
	return launchd.StateNotLoaded
}

func toStoreAction(res launchd.ActionResult) store.Action {
	return store.Action{
		Label:          res.Label,
		Action:         string(res.Action),
		OK:             res.OK,
		Skipped:        res.Skipped,
		DescriptorPath: res.DescriptorPath,
		Output:         res.Output,
		State:          string(res.State),
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
	}
}
