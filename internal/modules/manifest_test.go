package modules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, root, name string, deps []string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	m := Manifest{Name: name, Dependencies: deps}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644))
}

func TestRegistryScanAndResolve_DependencyOrder(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "base", nil)
	writeManifest(t, root, "mid", []string{"base"})
	writeManifest(t, root, "top", []string{"mid"})

	reg := NewRegistry(root)
	require.NoError(t, reg.Scan())

	result, err := reg.Resolve()
	require.NoError(t, err)
	assert.Empty(t, result.Skipped)

	pos := make(map[string]int, len(result.Sorted))
	for i, name := range result.Sorted {
		pos[name] = i
	}
	assert.Less(t, pos["base"], pos["mid"])
	assert.Less(t, pos["mid"], pos["top"])
}

func TestRegistryScan_NamespacedModule(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "@acme", "widget"), 0o755))
	m := Manifest{Name: "@acme/widget"}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "@acme", "widget", "manifest.json"), data, 0o644))

	reg := NewRegistry(root)
	require.NoError(t, reg.Scan())

	got, ok := reg.Get("@acme/widget")
	require.True(t, ok)
	assert.Equal(t, "@acme/widget", got.Name)
}

func TestRegistryScan_DuplicateNameIsFatal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	m := Manifest{Name: "dup"}
	data, _ := json.Marshal(m)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "manifest.json"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "manifest.json"), data, 0o644))

	reg := NewRegistry(root)
	err := reg.Scan()
	assert.Error(t, err)
}

func TestResolve_UnresolvedDependencySkipsTransitively(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "orphan", []string{"missing"})
	writeManifest(t, root, "depends-on-orphan", []string{"orphan"})
	writeManifest(t, root, "standalone", nil)

	reg := NewRegistry(root)
	require.NoError(t, reg.Scan())

	result, err := reg.Resolve()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"orphan", "depends-on-orphan"}, result.Skipped)
	assert.Equal(t, []string{"standalone"}, result.Sorted)
}

func TestResolve_CycleIsFatal(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "a", []string{"b"})
	writeManifest(t, root, "b", []string{"a"})

	reg := NewRegistry(root)
	require.NoError(t, reg.Scan())

	_, err := reg.Resolve()
	assert.Error(t, err)
}

func TestManifest_MultiInstanceDefaultsTrue(t *testing.T) {
	m := Manifest{Name: "x"}
	assert.True(t, m.MultiInstance())

	off := false
	m.MultiInstanceSpawning = &off
	assert.False(t, m.MultiInstance())
}

func TestManifest_EntryPointPathDefaultsToDistIndex(t *testing.T) {
	m := Manifest{Name: "x", Path: "/modules/x"}
	assert.Equal(t, filepath.Join("/modules/x", "dist/index.js"), m.EntryPointPath())

	m.EntryPoint = "server.js"
	assert.Equal(t, filepath.Join("/modules/x", "server.js"), m.EntryPointPath())
}
