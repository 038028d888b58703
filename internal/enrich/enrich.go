// Package enrich holds supplementary attribute values produced by a separate
// enrichment stage, keyed by entity GUID and field name.
package enrich

import (
	"maps"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Table is read-only after construction.
type Table struct {
	entries map[string]map[string]any
}

// New copies entries into a Table.
func New(entries map[string]map[string]any) *Table {
	t := &Table{entries: make(map[string]map[string]any, len(entries))}
	for guid, fields := range entries {
		t.entries[guid] = maps.Clone(fields)
	}
	return t
}

// Load reads a YAML file of the form {guid: {field: value}}.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read %s", path)
	}
	var entries map[string]map[string]any
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrap(err, "enrich: parse")
	}
	return New(entries), nil
}

// Lookup returns the enrichment value for guid and field.
func (t *Table) Lookup(guid, field string) (any, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.entries[guid][field]
	return v, ok
}

// Len returns the number of enriched entities.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
