// Package attr resolves typed engineering attributes of building entities.
//
// Every entity type declares its fields once as Descriptors in a Registry.
// Each entity owns a Store that resolves fields lazily by trying a fixed
// sequence of providers, caches the outcome per field and escalates fields
// nobody could supply to a decision.Decision.
package attr

import (
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bimattr/internal/source"
	"github.com/sells-group/bimattr/internal/units"
)

// Finder looks up tool-specific template locations.
type Finder interface {
	Find(typeName string, src source.Entity, field string) (any, error)
}

// Enrichment exposes values injected by the enrichment stage.
type Enrichment interface {
	Lookup(guid, field string) (any, bool)
}

// Entity is a domain object whose attributes a Store resolves.
type Entity interface {
	GUID() string
	TypeName() string
	// Source may return nil for entities not backed by a document.
	Source() source.Entity
	Finder() Finder
	Enrichment() Enrichment
	Attributes() *Store
}

// Func computes a field value from the entity. Returning (nil, nil) means
// the function has no value.
type Func func(e Entity, field string) (any, error)

// PostProcess transforms a raw provider value before unit enforcement.
type PostProcess func(raw any) (any, error)

// Descriptor is the immutable configuration of one field.
type Descriptor struct {
	name        string
	description string
	unitSymbol  string
	unit        units.Unit

	propertySet *propertyRef
	association *propertyRef
	patterns    []string
	functions   []Func
	defaultVal  any
	postProcess PostProcess

	allowSkip bool
	persist   bool

	providers []Provider
}

type propertyRef struct {
	table    string
	property string
}

// Option configures a Descriptor.
type Option func(*Descriptor)

// WithUnit declares the physical unit of the field.
func WithUnit(symbol string) Option {
	return func(d *Descriptor) { d.unitSymbol = symbol }
}

// WithDescription sets the human-readable description used in questions.
func WithDescription(desc string) Option {
	return func(d *Descriptor) { d.description = desc }
}

// FromPropertySet reads the field from table/property of the entity itself.
func FromPropertySet(table, property string) Option {
	return func(d *Descriptor) { d.propertySet = &propertyRef{table: table, property: property} }
}

// FromAssociation reads the field from table/property of the associated object.
func FromAssociation(table, property string) Option {
	return func(d *Descriptor) { d.association = &propertyRef{table: table, property: property} }
}

// WithPatterns scans every property table for names matching any pattern.
func WithPatterns(patterns ...string) Option {
	return func(d *Descriptor) { d.patterns = append(d.patterns, patterns...) }
}

// WithFunctions adds custom computations, tried in order.
func WithFunctions(fns ...Func) Option {
	return func(d *Descriptor) { d.functions = append(d.functions, fns...) }
}

// WithDefault sets the literal fallback value.
func WithDefault(v any) Option {
	return func(d *Descriptor) { d.defaultVal = v }
}

// WithPostProcess replaces the identity post-processing hook.
func WithPostProcess(fn PostProcess) Option {
	return func(d *Descriptor) { d.postProcess = fn }
}

// WithDecisionPolicy sets the flags passed to decisions for this field.
func WithDecisionPolicy(allowSkip, persist bool) Option {
	return func(d *Descriptor) {
		d.allowSkip = allowSkip
		d.persist = persist
	}
}

// NewDescriptor validates options and builds the provider pipeline. The
// pipeline order is fixed regardless of option order.
func NewDescriptor(name string, opts ...Option) (*Descriptor, error) {
	if name == "" {
		return nil, eris.Wrap(ErrInvalidDescriptor, "attr: descriptor without name")
	}
	d := &Descriptor{name: name, persist: true}
	for _, opt := range opts {
		opt(d)
	}

	if d.unitSymbol != "" {
		u, err := units.Parse(d.unitSymbol)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidDescriptor, "attr: field %s: %s", name, err.Error())
		}
		d.unit = u
	}

	if d.propertySet != nil {
		d.providers = append(d.providers, &propertySetProvider{ref: *d.propertySet})
	}
	if d.association != nil {
		d.providers = append(d.providers, &associationProvider{ref: *d.association})
	}
	d.providers = append(d.providers, finderProvider{})
	if len(d.patterns) > 0 {
		p := &patternProvider{unit: d.unit}
		for _, pat := range d.patterns {
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, eris.Wrapf(ErrInvalidDescriptor, "attr: field %s pattern %q: %s", name, pat, err.Error())
			}
			p.patterns = append(p.patterns, re)
		}
		d.providers = append(d.providers, p)
	}
	if len(d.functions) > 0 {
		d.providers = append(d.providers, &functionProvider{fns: d.functions})
	}
	d.providers = append(d.providers, enrichmentProvider{})
	if d.defaultVal != nil {
		d.providers = append(d.providers, &defaultProvider{value: d.defaultVal})
	}
	return d, nil
}

// MustDescriptor is NewDescriptor for static declarations; it panics on error.
func MustDescriptor(name string, opts ...Option) *Descriptor {
	d, err := NewDescriptor(name, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Descriptor) Name() string        { return d.name }
func (d *Descriptor) Description() string { return d.description }
func (d *Descriptor) Unit() units.Unit    { return d.unit }
func (d *Descriptor) Default() any        { return d.defaultVal }
func (d *Descriptor) AllowSkip() bool     { return d.allowSkip }
func (d *Descriptor) Persist() bool       { return d.persist }

// Sources lists the provider kinds in pipeline order.
func (d *Descriptor) Sources() []Source {
	out := make([]Source, len(d.providers))
	for i, p := range d.providers {
		out[i] = p.Source()
	}
	return out
}

// Result is the outcome of running the pipeline once. Found distinguishes
// "no provider had a value" from a resolved nil.
type Result struct {
	Value  any
	Source Source
	Found  bool
}

// Resolve runs the provider pipeline for e. Lookup misses and provider
// faults are handled here; unit mismatches and configuration errors are
// returned.
func (d *Descriptor) Resolve(e Entity) (Result, error) {
	for idx, p := range d.providers {
		v, err := p.Provide(e, d.name)
		if err != nil {
			if isFatal(err) {
				return Result{}, eris.Wrapf(err, "attr: resolve %s.%s", e.TypeName(), d.name)
			}
			if !IsMiss(err) {
				zap.L().Warn("attr: provider fault",
					zap.String("type", e.TypeName()),
					zap.String("guid", e.GUID()),
					zap.String("field", d.name),
					zap.String("source", string(p.Source())),
					zap.Int("provider", idx),
					zap.Error(err),
				)
			}
			continue
		}
		if v == nil {
			continue
		}

		v, err = d.finish(v)
		if err != nil {
			return Result{}, eris.Wrapf(err, "attr: resolve %s.%s from %s", e.TypeName(), d.name, p.Source())
		}
		return Result{Value: v, Source: p.Source(), Found: true}, nil
	}
	return Result{}, nil
}

// finish applies post-processing and unit enforcement to a provider value.
func (d *Descriptor) finish(v any) (any, error) {
	if d.postProcess != nil {
		var err error
		if v, err = d.postProcess(v); err != nil {
			return nil, eris.Wrap(err, "post-process")
		}
	}
	return d.enforce(v)
}

func (d *Descriptor) enforce(v any) (any, error) {
	return units.Attach(v, d.unit)
}
