package enrich

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	src := map[string]map[string]any{"zone-1": {"usage": "office"}}
	tbl := New(src)
	src["zone-1"]["usage"] = "changed"

	v, ok := tbl.Lookup("zone-1", "usage")
	require.True(t, ok)
	assert.Equal(t, "office", v)

	_, ok = tbl.Lookup("zone-1", "height")
	assert.False(t, ok)
	_, ok = tbl.Lookup("zone-2", "usage")
	assert.False(t, ok)
	assert.Equal(t, 1, tbl.Len())
}

func TestLookup_NilTable(t *testing.T) {
	var tbl *Table
	_, ok := tbl.Lookup("a", "b")
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Len())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enrichment.yaml")
	require.NoError(t, os.WriteFile(path, []byte("zone-1:\n  year_of_construction: 1975\n"), 0o600))

	tbl, err := Load(path)
	require.NoError(t, err)
	v, ok := tbl.Lookup("zone-1", "year_of_construction")
	require.True(t, ok)
	assert.Equal(t, 1975, v)

	require.NoError(t, os.WriteFile(path, []byte("- not a map"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
