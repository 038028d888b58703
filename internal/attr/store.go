package attr

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bimattr/internal/decision"
)

// Record is the cached state of one field. While Status is
// StatusRequested, Decision is set and Value is nil.
type Record struct {
	Value    any
	Status   Status
	Source   Source
	Decision *decision.Decision
}

// Store holds the attribute records of one entity. It is owned by that
// entity and must not be used from more than one goroutine at a time.
type Store struct {
	typ       *Type
	entity    Entity
	records   map[string]*Record
	resolving map[string]bool
	// seeds holds sibling values of a running MultiCalc until the
	// sibling's own pipeline reaches it.
	seeds map[string]seed
}

type seed struct {
	owner *batch
	value any
}

// NewStore creates the store for e. Records are filled lazily.
func NewStore(t *Type, e Entity) *Store {
	return &Store{
		typ:       t,
		entity:    e,
		records:   make(map[string]*Record, len(t.fields)),
		resolving: make(map[string]bool),
		seeds:     make(map[string]seed),
	}
}

// Type returns the entity type the store was built for.
func (s *Store) Type() *Type { return s.typ }

// Fields returns the declared field names in order.
func (s *Store) Fields() []string {
	names := make([]string, len(s.typ.fields))
	for i, d := range s.typ.fields {
		names[i] = d.name
	}
	return names
}

func (s *Store) record(field string) (*Descriptor, *Record, error) {
	d, err := s.typ.Descriptor(field)
	if err != nil {
		return nil, nil, err
	}
	rec, ok := s.records[field]
	if !ok {
		rec = &Record{}
		s.records[field] = rec
	}
	return d, rec, nil
}

// Get returns the value of field. The boolean is false when the value is
// not known (yet); a known value may still be nil.
func (s *Store) Get(field string) (any, bool, error) {
	d, rec, err := s.record(field)
	if err != nil {
		return nil, false, err
	}

	switch rec.Status {
	case StatusAvailable:
		if rec.Decision != nil {
			return nil, false, eris.Wrapf(ErrInconsistentState, "attr: %s available with decision", field)
		}
		return rec.Value, true, nil

	case StatusNotAvailable:
		if rec.Decision != nil || rec.Value != nil {
			return nil, false, eris.Wrapf(ErrInconsistentState, "attr: %s not available with value or decision", field)
		}
		return nil, false, nil

	case StatusRequested:
		if rec.Decision == nil || rec.Value != nil {
			return nil, false, eris.Wrapf(ErrInconsistentState, "attr: %s requested without decision", field)
		}
		if !rec.Decision.Settled() {
			return nil, false, nil
		}
		raw, err := rec.Decision.Value()
		if err != nil {
			return nil, false, err
		}
		v, err := d.enforce(raw)
		if err != nil {
			return nil, false, eris.Wrapf(err, "attr: decision for %s", field)
		}
		*rec = Record{Value: v, Status: StatusAvailable, Source: SourceDecision}
		return v, true, nil

	case StatusUnknown:
		if rec.Decision != nil {
			return nil, false, eris.Wrapf(ErrInconsistentState, "attr: %s unresolved with decision", field)
		}
		if s.resolving[field] {
			return nil, false, eris.Wrapf(ErrNotFound, "attr: %s depends on itself", field)
		}
		s.resolving[field] = true
		res, err := d.Resolve(s.entity)
		delete(s.resolving, field)
		if err != nil {
			return nil, false, err
		}
		if !res.Found {
			*rec = Record{Status: StatusNotAvailable}
			return nil, false, nil
		}
		*rec = Record{Value: res.Value, Status: StatusAvailable, Source: res.Source}
		return res.Value, true, nil
	}
	return nil, false, eris.Wrapf(ErrInconsistentState, "attr: %s has status %d", field, int(rec.Status))
}

// Set writes v as the final value of field, converted to the field's unit.
func (s *Store) Set(field string, v any) error {
	return s.set(field, v, SourceSet)
}

// Restore writes a previously persisted value of field with its recorded
// source.
func (s *Store) Restore(field string, v any, src Source) error {
	return s.set(field, v, src)
}

func (s *Store) set(field string, v any, src Source) error {
	d, rec, err := s.record(field)
	if err != nil {
		return err
	}
	converted, err := d.enforce(v)
	if err != nil {
		return eris.Wrapf(err, "attr: set %s", field)
	}
	*rec = Record{Value: converted, Status: StatusAvailable, Source: src}
	return nil
}

// seedSibling offers v, computed by owner for field, to field's own
// pipeline. Fields that are already resolved or resolving are left alone.
// A field whose pipeline never reaches owner and finds nothing else takes
// v directly.
func (s *Store) seedSibling(field string, v any, owner *batch) error {
	_, rec, err := s.record(field)
	if err != nil {
		return err
	}
	if rec.Status != StatusUnknown || s.resolving[field] {
		return nil
	}

	s.seeds[field] = seed{owner: owner, value: v}
	_, _, err = s.Get(field)
	_, unused := s.seeds[field]
	delete(s.seeds, field)
	if err != nil {
		return err
	}
	if unused && v != nil && rec.Status == StatusNotAvailable {
		return s.set(field, v, SourceFunction)
	}
	return nil
}

// takeSeed returns and consumes the value owner seeded for field.
func (s *Store) takeSeed(field string, owner *batch) (any, bool) {
	sd, ok := s.seeds[field]
	if !ok || sd.owner != owner {
		return nil, false
	}
	delete(s.seeds, field)
	return sd.value, true
}

// Request escalates field to a decision if it cannot be resolved. It
// returns nil when the value is available and the existing decision when
// one was already requested.
func (s *Store) Request(field string) (*decision.Decision, error) {
	if _, _, err := s.Get(field); err != nil {
		return nil, err
	}
	d, rec, _ := s.record(field)

	switch rec.Status {
	case StatusAvailable:
		return nil, nil
	case StatusRequested:
		return rec.Decision, nil
	}

	dec := decision.New(s.question(d),
		decision.WithKey(s.DecisionKey(field)),
		decision.WithUnit(d.unit),
		decision.AllowSkip(d.allowSkip),
		decision.Persist(d.persist),
	)
	*rec = Record{Status: StatusRequested, Decision: dec}
	return dec, nil
}

// DecisionKey is the global key of the decision for field. It depends only
// on entity identity and field name so repeated runs address the same
// decision.
func (s *Store) DecisionKey(field string) string {
	return fmt.Sprintf("%s_%s.%s", s.typ.name, s.entity.GUID(), field)
}

func (s *Store) question(d *Descriptor) string {
	what := d.name
	if d.description != "" {
		what = d.description
	}
	q := fmt.Sprintf("Enter value for %s of %s %s", what, s.typ.name, s.entity.GUID())
	if src := s.entity.Source(); src != nil && src.Name() != "" {
		q += fmt.Sprintf(" (%s)", src.Name())
	}
	return q
}

// PendingDecisions returns the decisions of all requested fields in
// declaration order.
func (s *Store) PendingDecisions() []*decision.Decision {
	var out []*decision.Decision
	for _, d := range s.typ.fields {
		rec, ok := s.records[d.name]
		if ok && rec.Status == StatusRequested && rec.Decision != nil {
			out = append(out, rec.Decision)
		}
	}
	return out
}

// Status returns the status of field without resolving it.
func (s *Store) Status(field string) (Status, error) {
	_, rec, err := s.record(field)
	if err != nil {
		return StatusUnknown, err
	}
	return rec.Status, nil
}

// Record returns a copy of the record of field.
func (s *Store) Record(field string) (Record, error) {
	_, rec, err := s.record(field)
	if err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// ResolveAll gets every declared field.
func (s *Store) ResolveAll() error {
	for _, d := range s.typ.fields {
		if _, _, err := s.Get(d.name); err != nil {
			return err
		}
	}
	return nil
}

// RequestMissing requests every field that could not be resolved and
// returns the decisions created or already pending.
func (s *Store) RequestMissing() ([]*decision.Decision, error) {
	var out []*decision.Decision
	for _, d := range s.typ.fields {
		dec, err := s.Request(d.name)
		if err != nil {
			return nil, err
		}
		if dec != nil {
			out = append(out, dec)
		}
	}
	return out, nil
}
