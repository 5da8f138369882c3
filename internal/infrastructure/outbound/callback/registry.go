package callback

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
)

var _ ports.ClassCallbacks = (*Registry)(nil)

// Registry holds in-process callbacks addressed by name from class callback actions.
type Registry struct {
	mu        sync.RWMutex
	responses map[string]ports.ResponseCallback
	forwards  map[string]ports.ForwardCallback
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		responses: make(map[string]ports.ResponseCallback),
		forwards:  make(map[string]ports.ForwardCallback),
	}
}

// RegisterResponse binds a response callback to name, replacing any previous one.
func (r *Registry) RegisterResponse(name string, cb ports.ResponseCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[name] = cb
}

// RegisterForward binds a forward callback to name, replacing any previous one.
func (r *Registry) RegisterForward(name string, cb ports.ForwardCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwards[name] = cb
}

func (r *Registry) ResponseCallback(name string) (ports.ResponseCallback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.responses[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ports.ErrUnknownCallback, name)
	}
	return cb, nil
}

func (r *Registry) ForwardCallback(name string) (ports.ForwardCallback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.forwards[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ports.ErrUnknownCallback, name)
	}
	return cb, nil
}

// Names returns the registered callback names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.responses)+len(r.forwards))
	for name := range r.responses {
		seen[name] = true
	}
	for name := range r.forwards {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
