package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "registry.json"))
}

func TestRegistry_ExportAndLookup(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterExport("global", "mode", "kitchen", "Display mode"))

	info, ok := r.ExportOf("global", "mode")
	require.True(t, ok)
	assert.Equal(t, "kitchen", info.Owner)
	assert.Equal(t, "Display mode", info.FriendlyName)

	assert.True(t, r.IsExportedBy("mode", "kitchen"))
	assert.False(t, r.IsExportedBy("mode", "lounge"))
}

func TestRegistry_GroupScope(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterExport("upstairs", "mood", "north", ""))

	_, ok := r.ExportOf("global", "mood")
	assert.False(t, ok)

	info, ok := r.ExportOf("upstairs", "mood")
	require.True(t, ok)
	assert.Equal(t, "north", info.Owner)
}

func TestRegistry_ImportersTracking(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterExport("global", "mode", "kitchen", ""))
	require.NoError(t, r.RegisterImport("mode", "lounge", "kitchen_mode", SourceScope, "global"))
	require.NoError(t, r.RegisterImport("mode", "hall", "", SourceScope, "global"))

	importers := r.ImportersOf("mode")
	require.Len(t, importers, 2)

	byDest := map[string]ImportInfo{}
	for _, imp := range importers {
		byDest[imp.Destination] = imp.Info
	}
	assert.Equal(t, "kitchen_mode", byDest["lounge"].ImportedAs)
	// An empty alias defaults to the variable name.
	assert.Equal(t, "mode", byDest["hall"].ImportedAs)
}

func TestRegistry_RemoveExportReturnsImporters(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterExport("global", "mode", "kitchen", ""))
	require.NoError(t, r.RegisterImport("mode", "lounge", "m", SourceScope, "global"))

	dropped, err := r.RemoveExport("mode", "kitchen")
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, "lounge", dropped[0].Destination)

	_, ok := r.ExportOf("global", "mode")
	assert.False(t, ok)
}

func TestRegistry_RemoveExportIgnoresOtherOwners(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterExport("global", "mode", "kitchen", ""))

	_, err := r.RemoveExport("mode", "lounge")
	require.NoError(t, err)

	// Still exported; the remover did not own it.
	assert.True(t, r.IsExportedBy("mode", "kitchen"))
}

func TestRegistry_RemoveImport(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterImport("mode", "lounge", "m", SourceScope, "global"))
	require.NoError(t, r.RemoveImport("mode", "lounge"))
	assert.Empty(t, r.ImportersOf("mode"))
}

func TestRegistry_PersistenceRoundtrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "registry.json")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := New(path, WithClock(func() time.Time { return now }))
	require.NoError(t, r.RegisterExport("global", "mode", "kitchen", ""))
	require.NoError(t, r.RegisterImport("mode", "lounge", "m", SourceScope, "global"))

	reopened := New(path)
	info, ok := reopened.ExportOf("global", "mode")
	require.True(t, ok)
	assert.Equal(t, "kitchen", info.Owner)
	assert.Len(t, reopened.ImportersOf("mode"), 1)
}
