package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// Factory constructs a fresh backend instance for one broker id.
type Factory func() Broker

// SettingsReader supplies the active-broker selector. Satisfied by the
// sqlite settings store.
type SettingsReader interface {
	GetSettings(ctx context.Context) (model.AppSettings, error)
}

// Registry is a factory map plus a singleton cache keyed by broker id.
// One instance per process per broker unless a caller explicitly asks
// for an uncached construction.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Broker
	order     []string // registration order, first is the default
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Broker),
	}
}

// Register installs a factory for a broker id. Re-registering an id
// replaces the factory and drops any cached instance.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; !exists {
		r.order = append(r.order, id)
	}
	r.factories[id] = f
	delete(r.instances, id)
}

// Unregister removes a broker and clears its cached instance.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, id)
	delete(r.instances, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Create returns the backend for id. With cache set, the singleton is
// returned (constructed on first use); without it a fresh instance is
// built and the cache left untouched.
func (r *Registry) Create(id string, cache bool) (Broker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBroker, id)
	}
	if cache {
		if b, hit := r.instances[id]; hit {
			return b, nil
		}
		b := f()
		r.instances[id] = b
		return b, nil
	}
	return f(), nil
}

// GetActive resolves the active broker from settings, falling back to
// the first-registered backend when the selector is unset.
func (r *Registry) GetActive(ctx context.Context, settings SettingsReader) (Broker, error) {
	id := ""
	if settings != nil {
		s, err := settings.GetSettings(ctx)
		if err != nil {
			return nil, fmt.Errorf("broker: read settings: %w", err)
		}
		id = s.ActiveBroker
	}
	if id == "" {
		r.mu.Lock()
		if len(r.order) > 0 {
			id = r.order[0]
		}
		r.mu.Unlock()
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no brokers registered", ErrUnknownBroker)
	}
	return r.Create(id, true)
}

// DefaultID returns the first-registered broker id, or "" when none.
func (r *Registry) DefaultID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

// ListAvailable returns the registered broker ids, sorted.
func (r *Registry) ListAvailable() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsRegistered reports whether id has a factory.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[id]
	return ok
}

// ClearInstances drops all cached singletons, forcing reconstruction
// on next Create. Factories stay registered.
func (r *Registry) ClearInstances() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[string]Broker)
}
