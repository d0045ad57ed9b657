// Package child holds the code that runs inside the isolated process: the
// registry of computations, the executor that runs one of them and ships
// its result to the supervisor, and the process hardening applied first.
package child

import (
	"sort"
	"sync"

	pkgerrors "isolator/pkg/errors"
)

// Computation is the untrusted work run in the child. Whatever it returns
// is encoded and sent back.
type Computation func() (any, error)

// Registry maps computation names to computations. The parent and the child
// are the same executable, so both see the same registrations.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Computation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Computation)}
}

// Default is the registry used by Main and by Register.
var Default = NewRegistry()

// Register adds fn to the default registry. It panics on a duplicate name,
// which is a programming error caught at init time.
func Register(name string, fn Computation) {
	if err := Default.Add(name, fn); err != nil {
		panic(err)
	}
}

// Add registers fn under name.
func (r *Registry) Add(name string, fn Computation) error {
	if name == "" || fn == nil {
		return pkgerrors.New(pkgerrors.InvalidParams).WithDetail("name", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[name]; exists {
		return pkgerrors.Newf(pkgerrors.ComputationRegistered, "computation %q already registered", name)
	}
	r.byKey[name] = fn
	return nil
}

// Lookup returns the computation registered under name.
func (r *Registry) Lookup(name string) (Computation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.byKey[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byKey))
	for name := range r.byKey {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
