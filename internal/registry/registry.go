// Package registry keeps the ordered set of tracked launchd jobs and
// persists it after every mutation.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("item not found")
	ErrEmptyLabel = errors.New("label is required")
	// ErrPersist wraps save failures. The in-memory change has been applied.
	ErrPersist = errors.New("persist registry")
)

// Store loads and saves the full item list.
type Store interface {
	Load() ([]Item, error)
	Save(items []Item) error
}

// Registry is safe for concurrent use. Mutations are serialized and each is
// followed by a full save.
type Registry struct {
	mu    sync.RWMutex
	items []Item
	store Store
	nowFn func() time.Time
	newID func() uuid.UUID
}

// New loads the registry from store. Load failures leave it empty.
func New(store Store) *Registry {
	r := &Registry{
		store: store,
		nowFn: time.Now,
		newID: uuid.New,
	}
	items, err := store.Load()
	if err != nil {
		slog.Warn("registry load failed, starting empty", "err", err)
	}
	r.items = items
	return r
}

// Add appends a new item. A blank displayName defaults to the label.
func (r *Registry) Add(label, displayName string) (Item, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Item{}, ErrEmptyLabel
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = label
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	item := Item{
		ID:          r.newID(),
		Label:       label,
		DisplayName: displayName,
		DateAdded:   Timestamp{Time: r.nowFn().UTC()},
	}
	r.items = append(r.items, item)
	return item, r.saveLocked()
}

// Remove deletes the item with id. Unknown ids are a no-op.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return nil
	}
	r.items = append(r.items[:idx:idx], r.items[idx+1:]...)
	return r.saveLocked()
}

// Rename changes an item's display name. A blank name resets it to the label.
func (r *Registry) Rename(id uuid.UUID, name string) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return Item{}, ErrNotFound
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.items[idx].Label
	}
	r.items[idx].DisplayName = name
	return r.items[idx], r.saveLocked()
}

// Items returns a copy of the items in insertion order.
func (r *Registry) Items() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of tracked items.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Labels returns the distinct tracked labels in first-seen order.
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.items))
	labels := make([]string, 0, len(r.items))
	for _, it := range r.items {
		if _, ok := seen[it.Label]; ok {
			continue
		}
		seen[it.Label] = struct{}{}
		labels = append(labels, it.Label)
	}
	return labels
}

// Tracks reports whether any item references label.
func (r *Registry) Tracks(label string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, it := range r.items {
		if it.Label == label {
			return true
		}
	}
	return false
}

// Sorted returns the items ordered by DateAdded.
func (r *Registry) Sorted(newestFirst bool) []Item {
	items := r.Items()
	sort.SliceStable(items, func(i, j int) bool {
		if newestFirst {
			return items[i].DateAdded.After(items[j].DateAdded.Time)
		}
		return items[i].DateAdded.Before(items[j].DateAdded.Time)
	})
	return items
}

// Find resolves ref as an item id, or failing that as a label. A label
// matches the first item carrying it.
func (r *Registry) Find(ref string) (Item, bool) {
	ref = strings.TrimSpace(ref)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, err := uuid.Parse(ref); err == nil {
		if idx := r.indexLocked(id); idx >= 0 {
			return r.items[idx], true
		}
	}
	for _, it := range r.items {
		if it.Label == ref {
			return it, true
		}
	}
	return Item{}, false
}

func (r *Registry) indexLocked(id uuid.UUID) int {
	for i, it := range r.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) saveLocked() error {
	if err := r.store.Save(r.items); err != nil {
		slog.Error("registry save failed", "err", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
