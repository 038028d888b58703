package element

import (
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bimattr/internal/attr"
	"github.com/sells-group/bimattr/internal/enrich"
	"github.com/sells-group/bimattr/internal/finder"
	"github.com/sells-group/bimattr/internal/source"
)

// Element is a building entity with lazily resolved attributes.
type Element struct {
	id    int
	guid  string
	typ   *attr.Type
	src   source.Entity
	reg   *Registry
	attrs *attr.Store
}

// ID is the identifier allocated by the owning Registry.
func (e *Element) ID() int { return e.id }

func (e *Element) GUID() string          { return e.guid }
func (e *Element) TypeName() string      { return e.typ.Name() }
func (e *Element) Source() source.Entity { return e.src }
func (e *Element) Attributes() *attr.Store {
	return e.attrs
}

// Finder returns the shared template finder, or nil when none is loaded.
func (e *Element) Finder() attr.Finder {
	if e.reg.finder == nil {
		return nil
	}
	return e.reg.finder
}

// Enrichment returns the shared enrichment table, or nil when none is loaded.
func (e *Element) Enrichment() attr.Enrichment {
	if e.reg.enrichment == nil {
		return nil
	}
	return e.reg.enrichment
}

// Name returns the source name, if any.
func (e *Element) Name() string {
	if e.src == nil {
		return ""
	}
	return e.src.Name()
}

// Registry allocates element identifiers and owns the elements of one
// model. The finder and enrichment table are shared read-only by all
// elements.
type Registry struct {
	types      *attr.Registry
	finder     *finder.Finder
	enrichment *enrich.Table

	mu       sync.RWMutex
	nextID   int
	elements []*Element
	byGUID   map[string]*Element
}

// Option configures a Registry.
type Option func(*Registry)

// WithFinder shares f with every element.
func WithFinder(f *finder.Finder) Option {
	return func(r *Registry) { r.finder = f }
}

// WithEnrichment shares t with every element.
func WithEnrichment(t *enrich.Table) Option {
	return func(r *Registry) { r.enrichment = t }
}

// NewRegistry creates an empty element registry over the given types.
func NewRegistry(types *attr.Registry, opts ...Option) *Registry {
	r := &Registry{
		types:  types,
		byGUID: make(map[string]*Element),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Types returns the attribute type registry.
func (r *Registry) Types() *attr.Registry { return r.types }

// FinderTemplates returns the shared finder, which may be nil.
func (r *Registry) FinderTemplates() *finder.Finder { return r.finder }

// New creates an element of typeName backed by src. guid is taken from src
// when src is not nil.
func (r *Registry) New(typeName, guid string, src source.Entity) (*Element, error) {
	typ, ok := r.types.Type(typeName)
	if !ok {
		return nil, eris.Errorf("element: unknown type %q", typeName)
	}
	if src != nil {
		guid = src.GUID()
	}
	if guid == "" {
		return nil, eris.Errorf("element: %s without guid", typeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byGUID[guid]; dup {
		return nil, eris.Errorf("element: duplicate guid %s", guid)
	}
	r.nextID++
	e := &Element{id: r.nextID, guid: guid, typ: typ, src: src, reg: r}
	e.attrs = attr.NewStore(typ, e)
	r.elements = append(r.elements, e)
	r.byGUID[guid] = e
	return e, nil
}

// FromDocument creates elements for every document entity whose IFC class
// maps onto a registered type. Other entities are skipped.
func (r *Registry) FromDocument(doc *source.Document) ([]*Element, error) {
	var out []*Element
	for _, src := range doc.Elements() {
		typeName, ok := TypeForIfc(src.IfcType())
		if !ok {
			zap.L().Debug("element: skipping unmapped entity",
				zap.String("guid", src.GUID()),
				zap.String("ifc_type", src.IfcType()),
			)
			continue
		}
		e, err := r.New(typeName, "", src)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Elements returns all elements in creation order.
func (r *Registry) Elements() []*Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Element, len(r.elements))
	copy(out, r.elements)
	return out
}

// ByGUID returns the element with guid, or nil.
func (r *Registry) ByGUID(guid string) *Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byGUID[guid]
}
