package modules

import (
	"strings"
	"sync"
)

// RouteEntry is one registered HTTP handler (§3).
type RouteEntry struct {
	Method       string
	Path         string
	ModuleName   string
	HandlerID    string
	RequiresAuth bool
}

// CommandEntry is one registered WebSocket command handler (§3).
type CommandEntry struct {
	FullName     string
	ModuleName   string
	HandlerID    string
	Broadcast    bool
	RequiresAuth bool
}

type routeKey struct {
	method     string
	moduleName string
	path       string
}

// Router is C4: the process-wide, mutable route and command tables.
// Mutations (register on instance-ready, deregister on module death)
// must be atomic with respect to concurrent lookups (§5) — a single
// RWMutex guards both tables here since the tables are small and
// updated far less often than they are read.
type Router struct {
	mu sync.RWMutex

	routes   map[routeKey]RouteEntry
	commands map[string]CommandEntry

	// wildcards holds every registered prefix-wildcard route ("/files/*"),
	// keyed like routes; when an exact path lookup misses, LookupRoute
	// falls back to the longest matching prefix for that method and module.
	wildcards map[routeKey]RouteEntry

	// moduleRoutes and moduleCommands index entries by owning module so
	// a dying module's last instance can deregister in one pass.
	moduleRoutes   map[string]map[routeKey]struct{}
	moduleCommands map[string]map[string]struct{}
}

func NewRouter() *Router {
	return &Router{
		routes:         make(map[routeKey]RouteEntry),
		commands:       make(map[string]CommandEntry),
		wildcards:      make(map[routeKey]RouteEntry),
		moduleRoutes:   make(map[string]map[routeKey]struct{}),
		moduleCommands: make(map[string]map[string]struct{}),
	}
}

// RegisterRoute installs or replaces a route. Idempotent per
// (moduleName, path, method): a later registration from the same
// instance replaces an earlier one (§4.4).
func (r *Router) RegisterRoute(e RouteEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := routeKey{method: e.Method, moduleName: e.ModuleName, path: e.Path}
	target := r.routes
	if strings.HasSuffix(e.Path, "/*") {
		target = r.wildcards
	}
	target[key] = e

	if r.moduleRoutes[e.ModuleName] == nil {
		r.moduleRoutes[e.ModuleName] = make(map[routeKey]struct{})
	}
	r.moduleRoutes[e.ModuleName][key] = struct{}{}
}

// RegisterCommand installs or replaces a command handler, idempotent
// per command full name.
func (r *Router) RegisterCommand(e CommandEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands[e.FullName] = e
	if r.moduleCommands[e.ModuleName] == nil {
		r.moduleCommands[e.ModuleName] = make(map[string]struct{})
	}
	r.moduleCommands[e.ModuleName][e.FullName] = struct{}{}
}

// LookupRoute resolves (method, moduleName, subPath) to a RouteEntry.
// An exact match wins; otherwise the longest registered wildcard prefix
// for that module and method is used.
func (r *Router) LookupRoute(method, moduleName, subPath string) (RouteEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.routes[routeKey{method: method, moduleName: moduleName, path: subPath}]; ok {
		return e, true
	}

	var best RouteEntry
	found := false
	for key, e := range r.wildcards {
		if key.method != method || key.moduleName != moduleName {
			continue
		}
		prefix := strings.TrimSuffix(key.path, "*")
		if strings.HasPrefix(subPath, prefix) && (!found || len(prefix) > len(strings.TrimSuffix(best.Path, "*"))) {
			best, found = e, true
		}
	}
	return best, found
}

// LookupCommand resolves a full WS command name ("mod.cmd" or
// "@ns/mod.cmd") to its CommandEntry.
func (r *Router) LookupCommand(fullName string) (CommandEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.commands[fullName]
	return e, ok
}

// HasModule reports whether moduleName has at least one registered
// route or command, used to decide whether a request path even belongs
// to the module plane before falling through to fixed routes.
func (r *Router) HasModule(moduleName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, hasRoutes := r.moduleRoutes[moduleName]
	_, hasCommands := r.moduleCommands[moduleName]
	return hasRoutes || hasCommands
}

// Deregister removes every route and command owned by moduleName. Called
// by the Supervisor once a module has zero live instances (§4.2).
func (r *Router) Deregister(moduleName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.moduleRoutes[moduleName] {
		delete(r.routes, key)
		delete(r.wildcards, key)
	}
	delete(r.moduleRoutes, moduleName)

	for name := range r.moduleCommands[moduleName] {
		delete(r.commands, name)
	}
	delete(r.moduleCommands, moduleName)
}
