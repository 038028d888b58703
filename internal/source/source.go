// Package source models the property tables of a parsed building-model
// document. Parsing IFC files happens upstream; this package
// reads an already-extracted YAML form.
package source

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bimattr/internal/units"
)

// ErrNotFound is returned by Property when the table or property is absent.
var ErrNotFound = eris.New("source: property not found")

// Property is one (table, name, value) triple of an entity.
type Property struct {
	Table string
	Name  string
	Value any
}

// Entity is the source-document side of a domain entity.
type Entity interface {
	GUID() string
	IfcType() string
	Name() string
	Tool() string
	// Property returns the value stored under table/name or ErrNotFound.
	Property(table, name string) (any, error)
	// Properties enumerates every property of every table, sorted by table
	// then name.
	Properties() []Property
	// Association returns the related secondary object (e.g. a material).
	Association() (Entity, bool)
	Footprint() (*geom.Polygon, bool)
}

// Element is the in-memory Entity implementation.
type Element struct {
	guid        string
	ifcType     string
	name        string
	tool        string
	tables      map[string]map[string]any
	association *Element
	footprint   *geom.Polygon
}

// NewElement builds an element from already-normalized tables.
func NewElement(guid, ifcType, name, tool string, tables map[string]map[string]any) *Element {
	e := &Element{
		guid:    guid,
		ifcType: ifcType,
		name:    name,
		tool:    tool,
		tables:  make(map[string]map[string]any, len(tables)),
	}
	for table, props := range tables {
		t := make(map[string]any, len(props))
		for k, v := range props {
			t[norm.NFC.String(k)] = v
		}
		e.tables[norm.NFC.String(table)] = t
	}
	return e
}

// WithAssociation links a secondary object and returns e.
func (e *Element) WithAssociation(a *Element) *Element {
	e.association = a
	return e
}

// WithFootprint attaches a footprint polygon and returns e.
func (e *Element) WithFootprint(p *geom.Polygon) *Element {
	e.footprint = p
	return e
}

func (e *Element) GUID() string    { return e.guid }
func (e *Element) IfcType() string { return e.ifcType }
func (e *Element) Name() string    { return e.name }
func (e *Element) Tool() string    { return e.tool }

func (e *Element) Property(table, name string) (any, error) {
	props, ok := e.tables[norm.NFC.String(table)]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "source: table %q on %s", table, e.guid)
	}
	v, ok := props[norm.NFC.String(name)]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "source: property %q.%q on %s", table, name, e.guid)
	}
	return v, nil
}

func (e *Element) Properties() []Property {
	var out []Property
	for table, props := range e.tables {
		for name, v := range props {
			out = append(out, Property{Table: table, Name: name, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (e *Element) Association() (Entity, bool) {
	if e.association == nil {
		return nil, false
	}
	return e.association, true
}

func (e *Element) Footprint() (*geom.Polygon, bool) {
	return e.footprint, e.footprint != nil
}

// Document is a loaded building model: the authoring tool plus its elements.
type Document struct {
	Tool     string
	elements []*Element
	byGUID   map[string]*Element
}

// Elements returns the elements in document order.
func (d *Document) Elements() []*Element {
	return d.elements
}

// Element returns the element with the given GUID, or nil.
func (d *Document) Element(guid string) *Element {
	return d.byGUID[guid]
}

type rawQuantity struct {
	Value float64 `yaml:"value"`
	Unit  string  `yaml:"unit"`
}

type rawElement struct {
	GUID         string                          `yaml:"guid"`
	IfcType      string                          `yaml:"ifc_type"`
	Name         string                          `yaml:"name"`
	PropertySets map[string]map[string]yaml.Node `yaml:"property_sets"`
	Association  *rawElement                     `yaml:"association"`
	Footprint    [][]float64                     `yaml:"footprint"`
}

type rawDocument struct {
	Tool     string       `yaml:"tool"`
	Elements []rawElement `yaml:"elements"`
}

// guidSpace is the namespace of GUIDs derived for elements that have none.
var guidSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/sells-group/bimattr/element"))

// DeriveGUID returns the GUID of an element that carries none. It depends
// only on the element's position in the document, its IFC class and its
// name, so loading the same document again yields the same GUID.
func DeriveGUID(position, ifcType, name string) string {
	return uuid.NewSHA1(guidSpace, []byte(fmt.Sprintf("%s/%s/%s", position, ifcType, name))).String()
}

// Load reads a document from a YAML file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read document %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML document.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "source: parse document")
	}

	doc := &Document{
		Tool:   raw.Tool,
		byGUID: make(map[string]*Element, len(raw.Elements)),
	}
	for i := range raw.Elements {
		el, err := buildElement(&raw.Elements[i], raw.Tool, strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		if _, dup := doc.byGUID[el.guid]; dup {
			return nil, eris.Errorf("source: duplicate guid %s", el.guid)
		}
		doc.elements = append(doc.elements, el)
		doc.byGUID[el.guid] = el
	}
	return doc, nil
}

// buildElement converts raw. position locates raw in the document and
// seeds its GUID when raw has none.
func buildElement(raw *rawElement, tool, position string) (*Element, error) {
	tables := make(map[string]map[string]any, len(raw.PropertySets))
	for table, props := range raw.PropertySets {
		t := make(map[string]any, len(props))
		for name, node := range props {
			v, err := decodeValue(&node)
			if err != nil {
				return nil, eris.Wrapf(err, "source: element %s property %s.%s", raw.GUID, table, name)
			}
			t[name] = v
		}
		tables[table] = t
	}

	guid := raw.GUID
	if guid == "" {
		guid = DeriveGUID(position, raw.IfcType, raw.Name)
	}
	el := NewElement(guid, raw.IfcType, raw.Name, tool, tables)
	if raw.Association != nil {
		assoc, err := buildElement(raw.Association, tool, guid+"/association")
		if err != nil {
			return nil, err
		}
		el.WithAssociation(assoc)
	}
	if len(raw.Footprint) > 0 {
		fp, err := polygon(raw.Footprint)
		if err != nil {
			return nil, eris.Wrapf(err, "source: element %s footprint", el.guid)
		}
		el.WithFootprint(fp)
	}
	return el, nil
}

// decodeValue turns a YAML node into a scalar, a list or a units.Quantity
// (for mappings of the form {value: ..., unit: ...}).
func decodeValue(node *yaml.Node) (any, error) {
	if node.Kind == yaml.MappingNode {
		var q rawQuantity
		if err := node.Decode(&q); err != nil {
			return nil, err
		}
		u, err := units.Parse(q.Unit)
		if err != nil {
			return nil, err
		}
		return units.New(q.Value, u), nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func polygon(coords [][]float64) (*geom.Polygon, error) {
	ring := make([]geom.Coord, 0, len(coords)+1)
	for _, c := range coords {
		if len(c) != 2 {
			return nil, eris.Errorf("coordinate %v is not 2D", c)
		}
		ring = append(ring, geom.Coord{c[0], c[1]})
	}
	if len(ring) < 3 {
		return nil, eris.New("footprint needs at least 3 points")
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] != last[0] || first[1] != last[1] {
		ring = append(ring, geom.Coord{first[0], first[1]})
	}
	return geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{ring})
}
