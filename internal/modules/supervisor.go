package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/modplane/server/internal/db"
	"github.com/modplane/server/internal/logger"
)

// ClientSender is the subset of the Connection Hub that module-initiated
// IPC ops (sendToClient, broadcastToClients, disconnectClient) need.
// Satisfied structurally by *hub.Hub; kept as an interface here so the
// Supervisor depends only on these three methods, not on the Hub type.
type ClientSender interface {
	SendToClient(clientID string, payload any) bool
	BroadcastToClients(payload any)
	DisconnectClient(clientID, reason string) bool
}

// Supervisor is C2: spawns, monitors, and reaps the child processes for
// every loaded module, and owns the single cleanup path every exit
// signal funnels through.
type Supervisor struct {
	registry     *Registry
	router       *Router
	balancer     *Balancer
	correlator   *Correlator
	bus          *Bus
	db           *db.Database
	clientSender ClientSender
	loadBalancing map[string]int

	mu        sync.RWMutex
	instances map[string][]*Instance
}

func NewSupervisor(registry *Registry, router *Router, balancer *Balancer, correlator *Correlator, database *db.Database, clientSender ClientSender, loadBalancing map[string]int) *Supervisor {
	s := &Supervisor{
		registry:      registry,
		router:        router,
		balancer:      balancer,
		correlator:    correlator,
		db:            database,
		clientSender:  clientSender,
		loadBalancing: loadBalancing,
		instances:     make(map[string][]*Instance),
	}
	s.bus = NewBus(s)
	return s
}

// Boot scans, resolves, and spawns every module in dependency order
// (§2 control flow). A cycle is returned as a fatal error for the
// caller to exit on; unresolved-dependency skips are logged and
// otherwise non-fatal.
func (s *Supervisor) Boot(ctx context.Context) error {
	if err := s.registry.Scan(); err != nil {
		return err
	}
	result, err := s.registry.Resolve()
	if err != nil {
		return err
	}
	if len(result.Skipped) > 0 {
		logger.Component("modules").Warn().Strs("skipped", result.Skipped).Msg("modules skipped due to unresolved dependencies")
	}

	for _, name := range result.Sorted {
		manifest, ok := s.registry.Get(name)
		if !ok {
			return fmt.Errorf("modules: sorted manifest %q missing from registry", name)
		}
		if err := s.spawnModule(ctx, manifest); err != nil {
			logger.Component("modules").Error().Err(err).Str("module", name).Msg("failed to spawn module, continuing without it")
		}
	}
	return nil
}

func (s *Supervisor) spawnModule(ctx context.Context, manifest *Manifest) error {
	desired := s.desiredInstanceCount(manifest)
	for i := 0; i < desired; i++ {
		if err := s.spawnInstance(ctx, manifest, i); err != nil {
			return fmt.Errorf("modules: spawning %s instance %d: %w", manifest.Name, i, err)
		}
	}
	return nil
}

// desiredInstanceCount implements §4.2: max(1, configured), capped at 1
// with a warning when the manifest forbids multi-instance spawning.
func (s *Supervisor) desiredInstanceCount(manifest *Manifest) int {
	configured := s.loadBalancing[manifest.Name]
	if configured < 1 {
		configured = 1
	}
	if !manifest.MultiInstance() && configured > 1 {
		logger.Component("modules").Warn().Str("module", manifest.Name).Int("configured", configured).Msg("module forbids multi-instance spawning, capping at 1")
		configured = 1
	}
	return configured
}

func (s *Supervisor) spawnInstance(ctx context.Context, manifest *Manifest, index int) error {
	cmd := launchCommand(manifest)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = moduleStderr{moduleName: manifest.Name}

	if err := cmd.Start(); err != nil {
		return err
	}

	transport := NewTransport(manifest.Name, fmt.Sprintf("%s-%d", manifest.Name, index), stdin, stdout)
	inst := newInstance(manifest.Name, index, cmd, transport)

	s.mu.Lock()
	s.instances[manifest.Name] = append(s.instances[manifest.Name], inst)
	s.mu.Unlock()

	transport.Start(stdout)

	go s.runInstance(ctx, inst)

	initBody := initPayload{InstanceID: inst.InstanceID, Env: os.Environ()}
	if err := transport.Send("init", initBody); err != nil {
		logger.Module(manifest.Name).Warn().Err(err).Msg("failed to send init message")
	}

	return nil
}

// launchCommand resolves how to execute a manifest's entry point.
// JavaScript entry points run under node (the ecosystem default for
// this manifest shape); anything else is executed directly, treating
// the entry point as a self-contained binary.
func launchCommand(manifest *Manifest) *exec.Cmd {
	entry := manifest.EntryPointPath()
	if strings.HasSuffix(entry, ".js") {
		return exec.Command("node", entry)
	}
	return exec.Command(entry)
}

type moduleStderr struct {
	moduleName string
}

func (w moduleStderr) Write(p []byte) (int, error) {
	logger.Module(w.moduleName).Warn().Str("stream", "stderr").Msg(string(p))
	return len(p), nil
}

// runInstance is the per-instance goroutine: it drains the transport's
// Inbound channel and reacts to each message type (§4.3), and unifies
// process exit with the other three cleanup triggers.
func (s *Supervisor) runInstance(ctx context.Context, inst *Instance) {
	defer s.cleanup(inst)

	go func() {
		_ = inst.cmd.Wait()
		inst.transport.Close()
	}()

	for msg := range inst.transport.Inbound {
		s.handleInbound(ctx, inst, msg)
	}
}

func (s *Supervisor) handleInbound(ctx context.Context, inst *Instance, msg Message) {
	switch msg.Type {
	case "register":
		s.handleRegister(inst, msg.Payload)
	case "response":
		s.handleResponse(msg.Payload)
	case "reply":
		s.handleReply(msg.Payload)
	case "log":
		s.handleLog(inst, msg.Payload)
	case "intermoduleMessage":
		s.bus.handleIntermoduleMessage(ctx, inst, msg.Payload)
	case "databaseQuery":
		s.handleDatabaseQuery(ctx, inst, msg.Payload)
	case "sendToClient":
		s.handleSendToClient(inst, msg.Payload)
	case "broadcast":
		s.handleBroadcast(inst, msg.Payload)
	case "disconnectClient":
		s.handleDisconnectClient(inst, msg.Payload)
	default:
		logger.Module(inst.ModuleName).Warn().Str("type", msg.Type).Msg("unrecognized IPC message type")
	}
}

func (s *Supervisor) handleRegister(inst *Instance, raw json.RawMessage) {
	var payload registerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Module(inst.ModuleName).Warn().Err(err).Msg("malformed register payload")
		return
	}

	for _, rd := range payload.Routes {
		s.router.RegisterRoute(RouteEntry{
			Method:       rd.Method,
			Path:         rd.Path,
			ModuleName:   inst.ModuleName,
			HandlerID:    rd.HandlerID,
			RequiresAuth: rd.RequiresAuth,
		})
	}
	for _, cd := range payload.Commands {
		s.router.RegisterCommand(CommandEntry{
			FullName:     fmt.Sprintf("%s.%s", inst.ModuleName, cd.Name),
			ModuleName:   inst.ModuleName,
			HandlerID:    cd.HandlerID,
			Broadcast:    cd.Broadcast,
			RequiresAuth: cd.RequiresAuth,
		})
	}

	inst.MarkReady()
}

func (s *Supervisor) handleResponse(raw json.RawMessage) {
	var payload responsePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	s.correlator.Resolve(payload.ID, Reply{Status: payload.Status, ContentType: payload.ContentType, Payload: payload.Payload})
}

func (s *Supervisor) handleReply(raw json.RawMessage) {
	var payload replyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	s.correlator.Resolve(payload.MsgID, Reply{ContentType: payload.ContentType, Payload: payload.Payload})
}

// handleSendToClient implements the module-initiated sendToClient IPC op
// (§4.7): an unsolicited push to one client, traversing the Hub
// symmetrically to the way a WS command invoke reaches an instance.
func (s *Supervisor) handleSendToClient(inst *Instance, raw json.RawMessage) {
	var payload sendToClientPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Module(inst.ModuleName).Warn().Err(err).Msg("malformed sendToClient payload")
		return
	}
	s.clientSender.SendToClient(payload.ClientID, json.RawMessage(payload.Payload))
}

// handleBroadcast implements the module-initiated broadcastToClients op,
// carried by the "broadcast" IPC message type.
func (s *Supervisor) handleBroadcast(inst *Instance, raw json.RawMessage) {
	var payload broadcastPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Module(inst.ModuleName).Warn().Err(err).Msg("malformed broadcast payload")
		return
	}
	s.clientSender.BroadcastToClients(json.RawMessage(payload.Payload))
}

// handleDisconnectClient implements the module-initiated disconnectClient
// IPC op: a graceful, server-initiated close carrying the given reason.
func (s *Supervisor) handleDisconnectClient(inst *Instance, raw json.RawMessage) {
	var payload disconnectClientPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Module(inst.ModuleName).Warn().Err(err).Msg("malformed disconnectClient payload")
		return
	}
	s.clientSender.DisconnectClient(payload.ClientID, payload.Reason)
}

func (s *Supervisor) handleLog(inst *Instance, raw json.RawMessage) {
	var payload logPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	evt := logger.Module(inst.ModuleName)
	switch strings.ToLower(payload.Level) {
	case "error":
		evt.Error().Msg(payload.Message)
	case "warn", "warning":
		evt.Warn().Msg(payload.Message)
	case "debug":
		evt.Debug().Msg(payload.Message)
	default:
		evt.Info().Msg(payload.Message)
	}
}

// cleanup is the single idempotent teardown path for all four exit
// signals (§4.2): normal exit, abnormal close, transport error, and
// explicit disconnect all end up here via runInstance's defer.
func (s *Supervisor) cleanup(inst *Instance) {
	if !inst.markCleanedUp() {
		return
	}

	s.mu.Lock()
	list := s.instances[inst.ModuleName]
	for idx, other := range list {
		if other == inst {
			list = append(list[:idx], list[idx+1:]...)
			break
		}
	}
	s.instances[inst.ModuleName] = list
	remaining := len(list)
	s.mu.Unlock()

	if remaining == 0 {
		s.router.Deregister(inst.ModuleName)
		logger.Component("modules").Info().Str("module", inst.ModuleName).Msg("last instance died, routes and commands deregistered")
	}
}

// instancesFor returns a module's current live instances.
func (s *Supervisor) instancesFor(moduleName string) []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.instances[moduleName]
	out := make([]*Instance, len(list))
	copy(out, list)
	return out
}

// pickInstance selects a live instance for moduleName via the balancer.
func (s *Supervisor) pickInstance(moduleName, shardKey string) (*Instance, bool) {
	list := s.instancesFor(moduleName)
	if len(list) == 0 {
		return nil, false
	}
	idx := s.balancer.Select(moduleName, len(list), shardKey)
	if idx < 0 {
		return nil, false
	}
	return list[idx], true
}
