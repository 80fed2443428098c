// Package modules implements the module plane: manifest discovery and
// dependency ordering (C1), child-process supervision (C2), the IPC
// transport (C3), the HTTP/WS route and command registry (C4), the load
// balancer (C5), the request correlator (C6), and the inter-module bus
// (C9). The Connection Hub (C7) and Auth Gate (C8) live in sibling
// packages; Plane implements the hub.Dispatcher interface to bridge C7
// into this package. hub does not import this package; this package
// imports hub only for Dispatcher and its CommandDescriptor.
package modules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/modplane/server/internal/logger"
)

const defaultEntryPoint = "dist/index.js"

// Manifest is a parsed manifest.json plus the directory it was found in
// (§3, "Manifest").
type Manifest struct {
	Name                  string   `json:"name"`
	Version               string   `json:"version,omitempty"`
	Author                string   `json:"author,omitempty"`
	Description           string   `json:"description,omitempty"`
	License               string   `json:"license,omitempty"`
	EntryPoint            string   `json:"entryPoint,omitempty"`
	Dependencies          []string `json:"dependencies,omitempty"`
	MultiInstanceSpawning *bool    `json:"multiInstanceSpawning,omitempty"`
	Repo                  string   `json:"repo,omitempty"`

	Path string `json:"-"`
}

// MultiInstance reports whether this module may run more than one
// instance; the manifest field defaults to true when absent.
func (m *Manifest) MultiInstance() bool {
	return m.MultiInstanceSpawning == nil || *m.MultiInstanceSpawning
}

// EntryPointPath resolves the manifest's entry point against its
// directory, defaulting to dist/index.js (§6.3).
func (m *Manifest) EntryPointPath() string {
	entry := m.EntryPoint
	if entry == "" {
		entry = defaultEntryPoint
	}
	return filepath.Join(m.Path, entry)
}

// Registry discovers manifests under a root directory and produces a
// dependency-ordered load list (C1).
type Registry struct {
	root      string
	manifests map[string]*Manifest
}

func NewRegistry(root string) *Registry {
	return &Registry{root: root, manifests: make(map[string]*Manifest)}
}

// Scan walks <root>/<module> and <root>/@ns/<module> directories. A
// directory qualifies iff it holds a manifest.json with a non-empty
// name. A name collision across directories is a fatal boot error
// (last-wins is explicitly rejected, not silently applied).
func (r *Registry) Scan() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("modules: reading root %q: %w", r.root, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(r.root, entry.Name())

		if strings.HasPrefix(entry.Name(), "@") {
			nsEntries, err := os.ReadDir(dirPath)
			if err != nil {
				logger.Component("modules").Warn().Err(err).Str("namespace", entry.Name()).Msg("skipping unreadable namespace directory")
				continue
			}
			for _, nsEntry := range nsEntries {
				if !nsEntry.IsDir() {
					continue
				}
				if err := r.loadDir(filepath.Join(dirPath, nsEntry.Name())); err != nil {
					return err
				}
			}
			continue
		}

		if err := r.loadDir(dirPath); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) loadDir(dir string) error {
	manifestPath := filepath.Join(dir, "manifest.json")
	data, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		logger.Component("modules").Warn().Err(err).Str("path", manifestPath).Msg("skipping unreadable manifest")
		return nil
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Component("modules").Warn().Err(err).Str("path", manifestPath).Msg("skipping malformed manifest")
		return nil
	}
	if m.Name == "" {
		return nil
	}
	m.Path = dir

	if existing, collides := r.manifests[m.Name]; collides {
		return fmt.Errorf("modules: duplicate module name %q at %q and %q", m.Name, existing.Path, dir)
	}
	r.manifests[m.Name] = &m
	return nil
}

// LoadResult is the output of dependency resolution (§4.1): the ordered
// load list and the set of modules omitted due to unresolved
// dependencies.
type LoadResult struct {
	Sorted  []string
	Skipped []string
}

// Resolve runs a depth-first topological sort over the scanned
// manifests. An unresolved dependency marks its dependent (and,
// transitively, that dependent's own dependents) as skipped — a
// deliberate implementer choice per §9 design note b, since one source
// variant recurses past a skip and this spec treats skip as contagious.
// A cycle is a fatal boot error; no partial load list is returned.
func (r *Registry) Resolve() (LoadResult, error) {
	const (
		unvisited = iota
		visiting
		visited
	)

	state := make(map[string]int, len(r.manifests))
	skipped := make(map[string]bool)
	var sorted []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("modules: circular dependency detected at %q", name)
		}

		m, ok := r.manifests[name]
		if !ok {
			return fmt.Errorf("modules: manifest %q missing during traversal", name)
		}

		state[name] = visiting
		for _, dep := range m.Dependencies {
			if _, known := r.manifests[dep]; !known {
				logger.Component("modules").Warn().Str("module", name).Str("dependency", dep).Msg("unresolved dependency, skipping module")
				skipped[name] = true
				state[name] = visited
				return nil
			}
			if err := visit(dep); err != nil {
				return err
			}
			if skipped[dep] {
				skipped[name] = true
				state[name] = visited
				return nil
			}
		}

		state[name] = visited
		if !skipped[name] {
			sorted = append(sorted, name)
		}
		return nil
	}

	names := make([]string, 0, len(r.manifests))
	for name := range r.manifests {
		names = append(names, name)
	}
	// Deterministic traversal order makes sorted/skipped reproducible
	// across runs for manifests with no relative ordering constraint.
	sort.Strings(names)

	for _, name := range names {
		if state[name] == unvisited {
			if err := visit(name); err != nil {
				return LoadResult{}, err
			}
		}
	}

	skippedList := make([]string, 0, len(skipped))
	for name := range skipped {
		skippedList = append(skippedList, name)
	}
	sort.Strings(skippedList)

	return LoadResult{Sorted: sorted, Skipped: skippedList}, nil
}

// Get returns the manifest for a loaded module name.
func (r *Registry) Get(name string) (*Manifest, bool) {
	m, ok := r.manifests[name]
	return m, ok
}
