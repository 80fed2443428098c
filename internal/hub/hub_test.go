package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modplane/server/internal/models"
)

type fakeDispatcher struct {
	desc        CommandDescriptor
	found       bool
	reply       any
	connects    []string
	disconnects []string
}

func (f *fakeDispatcher) LookupCommand(fullName string) (CommandDescriptor, bool) {
	return f.desc, f.found
}

func (f *fakeDispatcher) Invoke(ctx context.Context, desc CommandDescriptor, clientID string, payload json.RawMessage, identity *models.Identity, shardKey string) (any, error) {
	return f.reply, nil
}

func (f *fakeDispatcher) NotifyClientConnect(clientID string)    { f.connects = append(f.connects, clientID) }
func (f *fakeDispatcher) NotifyClientDisconnect(clientID string) { f.disconnects = append(f.disconnects, clientID) }

type fakeAuthenticator struct{}

func (fakeAuthenticator) Authenticate(ctx context.Context, token string) (*models.Identity, error) {
	return nil, assert.AnError
}

func newTestHub() (*Hub, *fakeDispatcher) {
	d := &fakeDispatcher{found: true, desc: CommandDescriptor{ModuleName: "fake", HandlerID: "h1"}, reply: map[string]any{"x": 1}}
	h := New(d, fakeAuthenticator{}, func(r *http.Request) bool { return true })
	return h, d
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in         string
		mod, cmd   string
		ok         bool
	}{
		{"fake.echo", "fake", "echo", true},
		{"@ns/fake.echo", "@ns/fake", "echo", true},
		{"nodothere", "", "", false},
		{".echo", "", "", false},
		{"fake.", "", "", false},
	}
	for _, tc := range cases {
		mod, cmd, ok := splitCommand(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.mod, mod, tc.in)
			assert.Equal(t, tc.cmd, cmd, tc.in)
		}
	}
}

func TestScrubUser(t *testing.T) {
	in := json.RawMessage(`{"x":1,"user":{"id":"spoofed"}}`)
	out := scrubUser(in)

	var m map[string]json.RawMessage
	assert.NoError(t, json.Unmarshal(out, &m))
	_, present := m["user"]
	assert.False(t, present)
	assert.Contains(t, m, "x")
}

func TestScrubUser_NoUserField(t *testing.T) {
	in := json.RawMessage(`{"x":1}`)
	out := scrubUser(in)
	assert.JSONEq(t, string(in), string(out))
}

// TestClientIndexConsistency exercises the register/unregister path
// directly against the two indices without a live socket, mirroring the
// §8 invariant "membership in set<Client> iff membership in map".
func TestClientIndexConsistency(t *testing.T) {
	h, d := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := &Client{id: "client-1", hub: h, send: make(chan []byte, 1)}
	h.register <- c
	h.mu.RLock()
	_, inMap := h.byID["client-1"]
	_, inSet := h.clientSet[c]
	h.mu.RUnlock()
	assert.True(t, inMap)
	assert.True(t, inSet)
	assert.Equal(t, []string{"client-1"}, d.connects)

	h.unregister <- c
	// Drain synchronously: Run is single-goroutine FIFO over the channel,
	// so a second channel op after unregister has observably completed.
	probe := &Client{id: "probe", hub: h, send: make(chan []byte, 1)}
	h.register <- probe
	h.mu.RLock()
	_, stillInMap := h.byID["client-1"]
	_, stillInSet := h.clientSet[c]
	h.mu.RUnlock()
	assert.False(t, stillInMap)
	assert.False(t, stillInSet)
	assert.Equal(t, []string{"client-1"}, d.disconnects)
}

func TestBroadcastDeliversToEveryClientOnce(t *testing.T) {
	h := &Hub{byID: map[string]*Client{}, clientSet: map[*Client]struct{}{}}
	var clients []*Client
	for _, id := range []string{"a", "b", "c"} {
		c := &Client{id: id, hub: h, send: make(chan []byte, 4)}
		h.byID[id] = c
		h.clientSet[c] = struct{}{}
		clients = append(clients, c)
	}

	h.Broadcast([]byte(`{"id":"req-1","payload":{"x":1}}`))

	for _, c := range clients {
		assert.Len(t, c.send, 1)
	}
}

func TestRouteReply_SelfTarget(t *testing.T) {
	h := &Hub{byID: map[string]*Client{}, clientSet: map[*Client]struct{}{}}
	a := &Client{id: "a", hub: h, send: make(chan []byte, 1)}
	b := &Client{id: "b", hub: h, send: make(chan []byte, 1)}
	h.byID["a"], h.byID["b"] = a, b
	h.clientSet[a], h.clientSet[b] = struct{}{}, struct{}{}

	h.routeReply(a, "req-1", "self", false, map[string]any{"x": 1})

	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 0)
}

func TestRouteReply_TargetedClient(t *testing.T) {
	h := &Hub{byID: map[string]*Client{}, clientSet: map[*Client]struct{}{}}
	a := &Client{id: "a", hub: h, send: make(chan []byte, 1)}
	b := &Client{id: "b", hub: h, send: make(chan []byte, 1)}
	h.byID["a"], h.byID["b"] = a, b
	h.clientSet[a], h.clientSet[b] = struct{}{}, struct{}{}

	h.routeReply(a, "req-1", "b", false, map[string]any{"x": 1})

	assert.Len(t, a.send, 0)
	assert.Len(t, b.send, 1)
}

func TestRouteReply_UnknownTargetFallsBackToOrigin(t *testing.T) {
	h := &Hub{byID: map[string]*Client{}, clientSet: map[*Client]struct{}{}}
	a := &Client{id: "a", hub: h, send: make(chan []byte, 1)}
	h.byID["a"] = a
	h.clientSet[a] = struct{}{}

	h.routeReply(a, "req-1", "nonexistent", false, map[string]any{"x": 1})

	assert.Len(t, a.send, 1)
}

func TestRouteReply_BroadcastFlagOverridesTarget(t *testing.T) {
	h := &Hub{byID: map[string]*Client{}, clientSet: map[*Client]struct{}{}}
	a := &Client{id: "a", hub: h, send: make(chan []byte, 1)}
	b := &Client{id: "b", hub: h, send: make(chan []byte, 1)}
	h.byID["a"], h.byID["b"] = a, b
	h.clientSet[a], h.clientSet[b] = struct{}{}, struct{}{}

	h.routeReply(a, "req-1", "self", true, map[string]any{"x": 1})

	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 1)
}
