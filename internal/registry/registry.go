package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/loykin/crashwatch/internal/store"
)

// Registry owns the set of watched workload names.
// Mutations are serialized and each one persists the full set immediately.
// List does not take the mutation lock; the store guarantees it observes
// either the old or the new set.
type Registry struct {
	mu    sync.Mutex
	store store.Store
}

func New(s store.Store) *Registry { return &Registry{store: s} }

// Normalize trims surrounding whitespace and rejects empty names.
func Normalize(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", &ValidationError{Name: name, Reason: "must not be empty"}
	}
	if strings.ContainsAny(n, "\r\n") {
		return "", &ValidationError{Name: name, Reason: "must be a single line"}
	}
	return n, nil
}

// Add inserts name. Adding a name that is already present is not an error;
// added reports whether the set changed.
func (r *Registry) Add(ctx context.Context, name string) (added bool, err error) {
	n, err := Normalize(name)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	names, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	for _, existing := range names {
		if existing == n {
			return false, nil
		}
	}
	if err := r.save(ctx, append(names, n)); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes every occurrence of name, trimmed the same way Add trims it.
// Removing an unknown name is a no-op.
func (r *Registry) Remove(ctx context.Context, name string) (removed bool, err error) {
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	names, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	kept := names[:0]
	for _, existing := range names {
		if existing == name {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return false, nil
	}
	if err := r.save(ctx, kept); err != nil {
		return false, err
	}
	return true, nil
}

// List returns a snapshot of the current names in stable order.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	return r.load(ctx)
}

// Ping reports whether the backing store can be read.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.load(ctx)
	return err
}

func (r *Registry) Close() error { return r.store.Close() }

// load reads the store and collapses duplicates that may exist in a
// hand-edited store.
func (r *Registry) load(ctx context.Context) ([]string, error) {
	names, err := r.store.Load(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

func (r *Registry) save(ctx context.Context, names []string) error {
	if err := r.store.Save(ctx, names); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}
