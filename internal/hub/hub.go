// Package hub implements the Connection Hub (C7): the WebSocket client
// registry, inbound frame dispatch, and self/targeted/broadcast reply
// routing described in §4.7 of the module plane design.
//
// Grounded on the teacher's internal/websocket Hub (register/unregister
// channels, per-client buffered send, ping/pong keepalive), stripped of
// its org/tenant scoping and retargeted at module commands instead of
// session broadcast events.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/modplane/server/internal/logger"
	"github.com/modplane/server/internal/models"
)

// CommandDescriptor is the subset of a registered CommandEntry (C4) the
// Hub needs to dispatch and route a reply.
type CommandDescriptor struct {
	ModuleName   string
	HandlerID    string
	Broadcast    bool
	RequiresAuth bool
}

// Dispatcher is the module plane's half of frame handling: command
// lookup and the C5/C6/C3 round trip that turns an invoke into a reply.
// Implemented by the modules package; kept as an interface here so hub
// has no import-time dependency on it.
type Dispatcher interface {
	LookupCommand(fullName string) (CommandDescriptor, bool)
	Invoke(ctx context.Context, desc CommandDescriptor, clientID string, payload json.RawMessage, identity *models.Identity, shardKey string) (any, error)
	NotifyClientConnect(clientID string)
	NotifyClientDisconnect(clientID string)
}

// Authenticator verifies a bearer token into an identity envelope.
// Satisfied by *auth.Gate.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
}

// Hub owns the client registry and the two indices described in §3: a
// set and a clientId-keyed map, updated together so they never diverge.
type Hub struct {
	dispatcher Dispatcher
	auth       Authenticator
	upgrader   websocket.Upgrader

	register   chan *Client
	unregister chan *Client

	mu       sync.RWMutex
	byID     map[string]*Client
	clientSet map[*Client]struct{}
}

func New(dispatcher Dispatcher, auth Authenticator, checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		dispatcher: dispatcher,
		auth:       auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		byID:       make(map[string]*Client),
		clientSet:  make(map[*Client]struct{}),
	}
}

// Run processes registration and teardown. It must be started once,
// before ServeWS is reachable, and runs for the process lifetime.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			h.byID[c.id] = c
			h.clientSet[c] = struct{}{}
			h.mu.Unlock()
			h.dispatcher.NotifyClientConnect(c.id)

		case c := <-h.unregister:
			h.mu.Lock()
			_, present := h.byID[c.id]
			delete(h.byID, c.id)
			delete(h.clientSet, c)
			h.mu.Unlock()
			if present {
				close(c.send)
				h.dispatcher.NotifyClientDisconnect(c.id)
			}
		}
	}
}

// ServeWS upgrades an HTTP request to a WebSocket and runs the
// connection until it closes. Call from a Gin (or plain net/http)
// handler once the upgrade is appropriate.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WebSocket().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(h, uuid.NewString(), conn)
	h.register <- client

	go client.writePump()
	client.readPump(h.handleFrame)
}

// handleFrame runs §4.7 steps 1-7 for a single inbound text frame.
func (h *Hub) handleFrame(c *Client, raw []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.WebSocket().Warn().Err(err).Msg("dropping malformed websocket frame")
		return
	}
	if frame.Command == "" {
		return
	}

	moduleName, _, ok := splitCommand(frame.Command)
	if !ok {
		return
	}

	desc, ok := h.dispatcher.LookupCommand(frame.Command)
	if !ok {
		return
	}

	if frame.ID == "" {
		frame.ID = uuid.NewString()
	}

	payload := scrubUser(frame.Payload)

	identity := h.resolveIdentity(c, frame.Token)
	if identity != nil {
		c.setIdentity(identity)
	}

	shardKey := ""
	if identity != nil {
		shardKey = identity.UserID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := h.dispatcher.Invoke(ctx, desc, c.id, payload, identity, shardKey)
	if err != nil {
		// Timeouts and dispatch failures are silent on the WS path
		// (§7): the client simply never receives a reply for this id.
		logger.WebSocket().Debug().Str("module", moduleName).Str("command", frame.Command).Err(err).Msg("command invoke failed")
		return
	}

	h.routeReply(c, frame.ID, frame.Target, desc.Broadcast, reply)
}

// resolveIdentity verifies a frame's token, if present; an invalid token
// is treated as anonymous rather than rejected (§4.7 step 5) — handlers
// that require auth reject the request themselves.
func (h *Hub) resolveIdentity(c *Client, token string) *models.Identity {
	if token == "" {
		return c.Identity()
	}
	identity, err := h.auth.Authenticate(context.Background(), token)
	if err != nil {
		return nil
	}
	return identity
}

// scrubUser strips any client-supplied "user" field from a payload
// before it reaches a module, so a client cannot spoof identity by
// embedding it directly in the frame (§4.7 step 4).
func scrubUser(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return payload
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return payload
	}
	if _, present := m["user"]; !present {
		return payload
	}
	delete(m, "user")
	cleaned, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return cleaned
}

// routeReply implements the §4.7.1 table.
func (h *Hub) routeReply(origin *Client, id, target string, broadcast bool, payload any) {
	body, err := json.Marshal(OutboundReply{ID: id, Payload: payload})
	if err != nil {
		logger.WebSocket().Error().Err(err).Msg("failed to marshal reply")
		return
	}

	t := target
	if t == "" {
		t = "self"
	}

	switch {
	case t == "broadcast" || broadcast:
		h.Broadcast(body)
	case t == "self" || t == origin.id:
		origin.enqueue(body)
	default:
		if dest, ok := h.client(t); ok {
			dest.enqueue(body)
		} else {
			origin.enqueue(body)
		}
	}
}

func (h *Hub) client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byID[id]
	return c, ok
}

// Broadcast sends payload to every client with an open socket, exactly
// once each (§8 testable property).
func (h *Hub) Broadcast(body []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clientSet))
	for c := range h.clientSet {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(body)
	}
}

// SendToClient implements the module-initiated sendToClient IPC op: an
// unsolicited push, not a reply, so it carries no correlation id.
func (h *Hub) SendToClient(clientID string, payload any) bool {
	c, ok := h.client(clientID)
	if !ok {
		return false
	}
	body, err := json.Marshal(OutboundPush{Type: "moduleMessage", Payload: payload})
	if err != nil {
		return false
	}
	return c.enqueue(body)
}

// BroadcastToClients implements the module-initiated broadcastToClients
// IPC op.
func (h *Hub) BroadcastToClients(payload any) {
	body, err := json.Marshal(OutboundPush{Type: "moduleMessage", Payload: payload})
	if err != nil {
		return
	}
	h.Broadcast(body)
}

// DisconnectClient implements the module-initiated disconnectClient IPC
// op: a graceful, server-initiated close carrying the given reason.
func (h *Hub) DisconnectClient(clientID, reason string) bool {
	c, ok := h.client(clientID)
	if !ok {
		return false
	}
	body, _ := json.Marshal(closeBody{Reason: reason})
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(body))
	c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
	return true
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}
