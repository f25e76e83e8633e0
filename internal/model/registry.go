package model

import (
	"sort"
	"sync"
)

// Registry tracks the models whose tables have been created, by table name.
//
// Models register themselves on Create and leave on Drop when built with
// Deps.Registry. All public methods are thread-safe.
type Registry struct {
	models map[string]*Model
	mu     sync.RWMutex // Protects models
	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*Model),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds m under its table name, replacing any model already there.
func (r *Registry) Register(m *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.models[m.name]; ok && prev != m {
		r.logger.Warn("replacing registered model", "table", m.name)
	}
	r.models[m.name] = m
}

// Unregister removes m. A different model registered under the same name
// is left alone.
func (r *Registry) Unregister(m *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.models[m.name] == m {
		delete(r.models, m.name)
	}
}

// Get returns the model for a table.
func (r *Registry) Get(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	return m, ok
}

// Names returns the registered table names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns the registered models sorted by table name.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
