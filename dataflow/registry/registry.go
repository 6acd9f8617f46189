package registry

import (
	"sync"

	"go.ncnr.nist.gov/dataflow/internal/logging"
)

// Registry holds the process-wide tables mapping module, datatype and
// instrument ids to their live definitions (spec.md §4.1, C1). Entries are
// created once at instrument-registration time and live for the process
// lifetime.
//
// The three maps are effectively append-only after startup; mutation is
// guarded by a single RWMutex rather than one lock per map, mirroring
// ActionRegistry's single-mutex shape.
type Registry struct {
	mu          sync.RWMutex
	modules     map[string]*Module
	datatypes   map[string]*DataType
	instruments map[string]*Instrument
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		modules:     make(map[string]*Module),
		datatypes:   make(map[string]*DataType),
		instruments: make(map[string]*Instrument),
	}
}

// RegisterModule adds m to the registry. Re-registering the same id with an
// equal definition is a no-op. Re-registering with a differing definition is
// also ignored, keeping the first registration — this is the
// specification-compatible choice documented as an Open Question in spec.md
// §9 (the source both raises and silently ignores depending on code path;
// this registry always keeps the first).
func (r *Registry) RegisterModule(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.modules[m.ID]
	if !ok {
		r.modules[m.ID] = m
		return
	}
	if existing.Equal(m) {
		logging.Logger.WithField("module", m.ID).Debug("module already registered with equal definition")
		return
	}
	logging.Logger.WithField("module", m.ID).Warn("module re-registered with a different definition; keeping first registration")
}

// LookupModule returns the live definition for id, or a *NotFoundError.
func (r *Registry) LookupModule(id string) (*Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[id]
	if !ok {
		return nil, &NotFoundError{Kind: "module", ID: id}
	}
	return m, nil
}

// RegisterDatatype adds d to the registry. Re-registering an existing,
// non-equal id fails with a *ConflictError (spec.md §4.1).
func (r *Registry) RegisterDatatype(d DataType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.datatypes[d.ID]
	if ok && !existing.Equal(d) {
		return &ConflictError{Kind: "datatype", ID: d.ID}
	}
	dc := d
	r.datatypes[d.ID] = &dc
	return nil
}

// LookupDatatype returns the live definition for id, or a *NotFoundError.
func (r *Registry) LookupDatatype(id string) (*DataType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.datatypes[id]
	if !ok {
		return nil, &NotFoundError{Kind: "datatype", ID: id}
	}
	return d, nil
}

// RegisterInstrument registers inst and implicitly registers all of its
// modules and datatypes.
func (r *Registry) RegisterInstrument(inst *Instrument) error {
	for _, m := range inst.Modules {
		r.RegisterModule(m)
	}
	for _, d := range inst.Datatypes {
		if err := r.RegisterDatatype(d); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.instruments[inst.ID] = inst
	r.mu.Unlock()
	return nil
}

// LookupInstrument returns the live definition for id, or a *NotFoundError.
func (r *Registry) LookupInstrument(id string) (*Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instruments[id]
	if !ok {
		return nil, &NotFoundError{Kind: "instrument", ID: id}
	}
	return inst, nil
}

// ListInstruments returns the ids of all registered instruments.
func (r *Registry) ListInstruments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.instruments))
	for id := range r.instruments {
		ids = append(ids, id)
	}
	return ids
}

// Default is the process-wide registry used by the package-level
// convenience functions below. Do not rely on package initialization order
// across compilation units to populate it (§9) — callers register their
// instruments explicitly, typically from an instrument package's init or
// from main.
var Default = New()

// RegisterModule registers m with the default registry.
func RegisterModule(m *Module) { Default.RegisterModule(m) }

// LookupModule looks up id in the default registry.
func LookupModule(id string) (*Module, error) { return Default.LookupModule(id) }

// RegisterDatatype registers d with the default registry.
func RegisterDatatype(d DataType) error { return Default.RegisterDatatype(d) }

// LookupDatatype looks up id in the default registry.
func LookupDatatype(id string) (*DataType, error) { return Default.LookupDatatype(id) }

// RegisterInstrument registers inst with the default registry.
func RegisterInstrument(inst *Instrument) error { return Default.RegisterInstrument(inst) }

// LookupInstrument looks up id in the default registry.
func LookupInstrument(id string) (*Instrument, error) { return Default.LookupInstrument(id) }
