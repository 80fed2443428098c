package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modplane/server/internal/db"
	apperrors "github.com/modplane/server/internal/errors"
	"github.com/modplane/server/internal/hub"
	"github.com/modplane/server/internal/logger"
	"github.com/modplane/server/internal/models"
)

const (
	httpTimeout      = 5 * time.Second
	multipartTimeout = 30 * time.Second
)

var _ hub.Dispatcher = (*Plane)(nil)

// Plane is the module plane's single entry point for the rest of the
// process: it owns C1-C6 and C9, and implements hub.Dispatcher so the
// Connection Hub (C7) can drive WS command dispatch without hub
// importing this package.
type Plane struct {
	registry   *Registry
	router     *Router
	balancer   *Balancer
	correlator *Correlator
	supervisor *Supervisor
}

// New constructs a Plane. clientSender is the Connection Hub, accepted
// through the ClientSender interface so this package never imports hub
// for anything but the Dispatcher contract it implements.
func New(modulesRoot string, database *db.Database, clientSender ClientSender, loadBalancing map[string]int) *Plane {
	registry := NewRegistry(modulesRoot)
	router := NewRouter()
	balancer := NewBalancer()
	correlator := NewCorrelator()
	supervisor := NewSupervisor(registry, router, balancer, correlator, database, clientSender, loadBalancing)

	return &Plane{
		registry:   registry,
		router:     router,
		balancer:   balancer,
		correlator: correlator,
		supervisor: supervisor,
	}
}

// Boot runs C1 scan/sort and C2 spawn-in-order. A returned error is
// boot-fatal (§7): the caller should exit non-zero without installing
// any HTTP routes.
func (p *Plane) Boot(ctx context.Context) error {
	return p.supervisor.Boot(ctx)
}

// LookupCommand implements hub.Dispatcher.
func (p *Plane) LookupCommand(fullName string) (hub.CommandDescriptor, bool) {
	e, ok := p.router.LookupCommand(fullName)
	if !ok {
		return hub.CommandDescriptor{}, false
	}
	return hub.CommandDescriptor{
		ModuleName:   e.ModuleName,
		HandlerID:    e.HandlerID,
		Broadcast:    e.Broadcast,
		RequiresAuth: e.RequiresAuth,
	}, true
}

// Invoke implements hub.Dispatcher: it selects a live instance via C5
// and runs the C3/C6 round trip for a WS command invocation.
func (p *Plane) Invoke(ctx context.Context, desc hub.CommandDescriptor, clientID string, payload json.RawMessage, identity *models.Identity, shardKey string) (any, error) {
	inst, ok := p.supervisor.pickInstance(desc.ModuleName, shardKey)
	if !ok {
		return nil, apperrors.Unavailable(desc.ModuleName)
	}

	id := clientID + ":" + desc.HandlerID + ":" + fmt.Sprint(time.Now().UnixNano())
	invoke := invokePayload{
		ID:        id,
		HandlerID: desc.HandlerID,
		Payload:   wsInvokePayload(payload, clientID, identity),
	}

	if err := inst.transport.Send("invoke", invoke); err != nil {
		return nil, err
	}

	reply, err := p.correlator.Await(ctx, id, httpTimeout)
	if err != nil {
		return nil, err
	}

	var decoded any
	if len(reply.Payload) > 0 {
		if err := json.Unmarshal(reply.Payload, &decoded); err != nil {
			return nil, err
		}
	}
	return decoded, nil
}

func wsInvokePayload(payload json.RawMessage, clientID string, identity *models.Identity) json.RawMessage {
	envelope := map[string]any{"payload": json.RawMessage(payload), "socketId": clientID}
	if identity != nil {
		envelope["user"] = identity
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return payload
	}
	return body
}

// NotifyClientConnect implements hub.Dispatcher: fire-and-forget
// clientConnect to every live instance of every module (§4.7).
func (p *Plane) NotifyClientConnect(clientID string) {
	p.broadcastClientEvent("clientConnect", clientID)
}

// NotifyClientDisconnect implements hub.Dispatcher.
func (p *Plane) NotifyClientDisconnect(clientID string) {
	p.broadcastClientEvent("clientDisconnect", clientID)
}

func (p *Plane) broadcastClientEvent(eventType, clientID string) {
	p.supervisor.mu.RLock()
	instances := make([]*Instance, 0)
	for _, list := range p.supervisor.instances {
		instances = append(instances, list...)
	}
	p.supervisor.mu.RUnlock()

	for _, inst := range instances {
		if err := inst.transport.Send(eventType, clientEventPayload{ClientID: clientID}); err != nil {
			logger.Module(inst.ModuleName).Debug().Err(err).Str("event", eventType).Msg("failed to deliver client event")
		}
	}
}

// HTTPResult is what DispatchHTTP returns on a successful round trip.
type HTTPResult struct {
	Status      int
	ContentType string
	Body        []byte
}

// HTTPRequest is the subset of an inbound request DispatchHTTP needs,
// framework-agnostic so cmd/server's Gin binding stays thin.
type HTTPRequest struct {
	Method      string
	ModuleName  string
	SubPath     string
	Query       map[string][]string
	Params      map[string]string
	Body        json.RawMessage
	Headers     map[string]string
	Identity    *models.Identity
	Multipart   bool
	ShardHeader string
}

// DispatchHTTP implements the C4 HTTP dispatch path (§4.4): route
// lookup, C5 instance selection, C6 correlation, and the 5s/30s timeout
// split between ordinary and multipart bodies.
func (p *Plane) DispatchHTTP(ctx context.Context, req HTTPRequest) (HTTPResult, error) {
	route, ok := p.router.LookupRoute(req.Method, req.ModuleName, req.SubPath)
	if !ok {
		return HTTPResult{}, apperrors.NotFound("route")
	}

	shardKey := shardKeyFor(req.Identity, req.ShardHeader)
	inst, ok := p.supervisor.pickInstance(req.ModuleName, shardKey)
	if !ok {
		return HTTPResult{}, apperrors.Unavailable(req.ModuleName)
	}

	id := fmt.Sprintf("%s-%d", req.ModuleName, time.Now().UnixNano())
	invokeBody := map[string]any{
		"query":   req.Query,
		"params":  req.Params,
		"body":    req.Body,
		"headers": req.Headers,
	}
	if req.Identity != nil {
		invokeBody["user"] = req.Identity
	}
	bodyJSON, err := json.Marshal(invokeBody)
	if err != nil {
		return HTTPResult{}, err
	}

	if err := inst.transport.Send("invoke", invokePayload{ID: id, HandlerID: route.HandlerID, Payload: bodyJSON}); err != nil {
		return HTTPResult{}, err
	}

	deadline := httpTimeout
	if req.Multipart {
		deadline = multipartTimeout
	}

	reply, err := p.correlator.Await(ctx, id, deadline)
	if err != nil {
		if IsTimeout(err) {
			return HTTPResult{}, apperrors.RequestTimeout()
		}
		return HTTPResult{}, err
	}

	status := reply.Status
	if status == 0 {
		status = 200
	}
	return HTTPResult{Status: status, ContentType: reply.ContentType, Body: reply.Payload}, nil
}

// shardKeyFor implements the §4.5 priority order: authenticated user id,
// then the x-shard-key header, then none.
func shardKeyFor(identity *models.Identity, headerValue string) string {
	if identity != nil && identity.UserID != "" {
		return identity.UserID
	}
	return headerValue
}

// HasModule reports whether moduleName has any live route or command,
// used by cmd/server to decide whether a request path belongs to the
// dynamic module surface before falling through to a plain 404.
func (p *Plane) HasModule(moduleName string) bool {
	return p.router.HasModule(moduleName)
}
