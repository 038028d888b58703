package attr

import (
	"sync"

	"github.com/rotisserie/eris"
)

// Type is the static field list of one entity type.
type Type struct {
	name   string
	fields []*Descriptor
	byName map[string]*Descriptor
}

// Name returns the entity type name.
func (t *Type) Name() string { return t.name }

// Fields returns the descriptors in declaration order.
func (t *Type) Fields() []*Descriptor { return t.fields }

// Descriptor returns the descriptor for field.
func (t *Type) Descriptor(field string) (*Descriptor, error) {
	d, ok := t.byName[field]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownField, "attr: %s has no field %q", t.name, field)
	}
	return d, nil
}

// Registry maps entity type names to their declared fields. Types are
// registered once and never change afterwards.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register declares an entity type with its fields.
func (r *Registry) Register(name string, fields ...*Descriptor) (*Type, error) {
	t := &Type{
		name:   name,
		fields: fields,
		byName: make(map[string]*Descriptor, len(fields)),
	}
	for _, d := range fields {
		if d == nil {
			return nil, eris.Wrapf(ErrInvalidDescriptor, "attr: nil descriptor on %s", name)
		}
		if _, dup := t.byName[d.name]; dup {
			return nil, eris.Wrapf(ErrDuplicateField, "attr: %s.%s", name, d.name)
		}
		t.byName[d.name] = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.types[name]; dup {
		return nil, eris.Errorf("attr: type %s already registered", name)
	}
	r.types[name] = t
	r.order = append(r.order, name)
	return t, nil
}

// Type returns a registered type.
func (r *Registry) Type(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Types returns all registered types in registration order.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Type, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.types[n])
	}
	return out
}
