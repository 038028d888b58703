// Package finder corrects for authoring tools that store standard
// properties in non-standard places. Templates are keyed by tool, entity
// type and field name.
package finder

import (
	"os"
	"regexp"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bimattr/internal/source"
)

// ErrNotFound is returned by Find when no template rule applies or the
// referenced property is missing.
var ErrNotFound = eris.New("finder: no value")

// Rule points at the property holding a field for one tool and entity type.
type Rule struct {
	Table       string `yaml:"table"`
	Property    string `yaml:"property"`
	Association bool   `yaml:"association"`
}

// ToolConfig is the template set of one authoring tool.
type ToolConfig struct {
	Name      string                     `yaml:"name"`
	Match     []string                   `yaml:"match"`
	Templates map[string]map[string]Rule `yaml:"templates"`
}

type tool struct {
	name      string
	patterns  []*regexp.Regexp
	templates map[string]map[string]Rule
}

// Finder resolves template rules. It is safe for concurrent use.
type Finder struct {
	tools []*tool

	mu         sync.RWMutex
	classified map[string]string
	unknown    map[string]bool
}

// New compiles a Finder from tool configs.
func New(cfgs []ToolConfig) (*Finder, error) {
	f := &Finder{
		classified: make(map[string]string),
		unknown:    make(map[string]bool),
	}
	seen := make(map[string]bool, len(cfgs))
	for _, c := range cfgs {
		if c.Name == "" {
			return nil, eris.New("finder: tool without name")
		}
		if seen[c.Name] {
			return nil, eris.Errorf("finder: duplicate tool %q", c.Name)
		}
		seen[c.Name] = true

		t := &tool{name: c.Name, templates: c.Templates}
		for _, m := range c.Match {
			re, err := regexp.Compile(m)
			if err != nil {
				return nil, eris.Wrapf(err, "finder: tool %s pattern %q", c.Name, m)
			}
			t.patterns = append(t.patterns, re)
		}
		if t.templates == nil {
			t.templates = make(map[string]map[string]Rule)
		}
		f.tools = append(f.tools, t)
	}
	return f, nil
}

// Load reads tool templates from a YAML file with a top-level "tools" list.
func Load(path string) (*Finder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "finder: read templates %s", path)
	}
	var wrapper struct {
		Tools []ToolConfig `yaml:"tools"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "finder: parse templates")
	}
	return New(wrapper.Tools)
}

// Names returns the known template set names, sorted.
func (f *Finder) Names() []string {
	names := make([]string, 0, len(f.tools))
	for _, t := range f.tools {
		names = append(names, t.name)
	}
	sort.Strings(names)
	return names
}

// Classify maps an authoring-tool identifier onto a template set name.
func (f *Finder) Classify(toolID string) (string, bool) {
	f.mu.RLock()
	name, ok := f.classified[toolID]
	f.mu.RUnlock()
	if ok {
		return name, name != ""
	}

	for _, t := range f.tools {
		for _, re := range t.patterns {
			if re.MatchString(toolID) {
				name = t.name
				break
			}
		}
		if name != "" {
			break
		}
	}

	f.mu.Lock()
	f.classified[toolID] = name
	f.mu.Unlock()
	return name, name != ""
}

// MarkUnknown records toolID as unrecognized. It returns true only the first
// time a given tool is marked so callers ask about it once.
func (f *Finder) MarkUnknown(toolID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unknown[toolID] {
		return false
	}
	f.unknown[toolID] = true
	return true
}

// Alias binds toolID to the template set called name.
func (f *Finder) Alias(toolID, name string) error {
	if f.byName(name) == nil {
		return eris.Errorf("finder: unknown template set %q", name)
	}
	f.mu.Lock()
	f.classified[toolID] = name
	f.mu.Unlock()
	return nil
}

func (f *Finder) byName(name string) *tool {
	for _, t := range f.tools {
		if t.name == name {
			return t
		}
	}
	return nil
}

// Find returns the value the template for (src's tool, typeName, field)
// points at.
func (f *Finder) Find(typeName string, src source.Entity, field string) (any, error) {
	if src == nil {
		return nil, eris.Wrap(ErrNotFound, "finder: entity has no source")
	}
	name, ok := f.Classify(src.Tool())
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "finder: unknown tool %q", src.Tool())
	}
	rule, ok := f.byName(name).templates[typeName][field]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "finder: no template for %s.%s in %s", typeName, field, name)
	}

	target := src
	if rule.Association {
		assoc, ok := src.Association()
		if !ok {
			return nil, eris.Wrapf(ErrNotFound, "finder: %s has no association", src.GUID())
		}
		target = assoc
	}
	v, err := target.Property(rule.Table, rule.Property)
	if err != nil {
		return nil, eris.Wrapf(ErrNotFound, "finder: %s", err.Error())
	}
	return v, nil
}
