package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouter_RegisterAndLookupRoute_ExactMatch(t *testing.T) {
	r := NewRouter()
	r.RegisterRoute(RouteEntry{Method: "GET", Path: "/items", ModuleName: "shop", HandlerID: "listItems"})

	e, ok := r.LookupRoute("GET", "shop", "/items")
	assert.True(t, ok)
	assert.Equal(t, "listItems", e.HandlerID)
}

func TestRouter_RegisterRoute_IsIdempotentPerKey(t *testing.T) {
	r := NewRouter()
	r.RegisterRoute(RouteEntry{Method: "GET", Path: "/items", ModuleName: "shop", HandlerID: "v1"})
	r.RegisterRoute(RouteEntry{Method: "GET", Path: "/items", ModuleName: "shop", HandlerID: "v2"})

	e, ok := r.LookupRoute("GET", "shop", "/items")
	assert.True(t, ok)
	assert.Equal(t, "v2", e.HandlerID)
}

func TestRouter_WildcardPrefixMatch(t *testing.T) {
	r := NewRouter()
	r.RegisterRoute(RouteEntry{Method: "GET", Path: "/files/*", ModuleName: "drive", HandlerID: "serveFile"})

	e, ok := r.LookupRoute("GET", "drive", "/files/reports/q1.pdf")
	assert.True(t, ok)
	assert.Equal(t, "serveFile", e.HandlerID)

	_, ok = r.LookupRoute("GET", "drive", "/other")
	assert.False(t, ok)
}

func TestRouter_WildcardPrefersLongestPrefix(t *testing.T) {
	r := NewRouter()
	r.RegisterRoute(RouteEntry{Method: "GET", Path: "/files/*", ModuleName: "drive", HandlerID: "generic"})
	r.RegisterRoute(RouteEntry{Method: "GET", Path: "/files/reports/*", ModuleName: "drive", HandlerID: "reports"})

	e, ok := r.LookupRoute("GET", "drive", "/files/reports/q1.pdf")
	assert.True(t, ok)
	assert.Equal(t, "reports", e.HandlerID)
}

func TestRouter_CommandLookupByFullName(t *testing.T) {
	r := NewRouter()
	r.RegisterCommand(CommandEntry{FullName: "chat.send", ModuleName: "chat", HandlerID: "sendMessage"})

	e, ok := r.LookupCommand("chat.send")
	assert.True(t, ok)
	assert.Equal(t, "sendMessage", e.HandlerID)

	_, ok = r.LookupCommand("chat.unknown")
	assert.False(t, ok)
}

func TestRouter_HasModule(t *testing.T) {
	r := NewRouter()
	assert.False(t, r.HasModule("chat"))

	r.RegisterCommand(CommandEntry{FullName: "chat.send", ModuleName: "chat"})
	assert.True(t, r.HasModule("chat"))
}

func TestRouter_DeregisterRemovesRoutesAndCommands(t *testing.T) {
	r := NewRouter()
	r.RegisterRoute(RouteEntry{Method: "GET", Path: "/items", ModuleName: "shop", HandlerID: "listItems"})
	r.RegisterRoute(RouteEntry{Method: "GET", Path: "/files/*", ModuleName: "shop", HandlerID: "serveFile"})
	r.RegisterCommand(CommandEntry{FullName: "shop.buy", ModuleName: "shop", HandlerID: "buy"})

	r.Deregister("shop")

	_, ok := r.LookupRoute("GET", "shop", "/items")
	assert.False(t, ok)
	_, ok = r.LookupRoute("GET", "shop", "/files/anything")
	assert.False(t, ok)
	_, ok = r.LookupCommand("shop.buy")
	assert.False(t, ok)
	assert.False(t, r.HasModule("shop"))
}

func TestRouter_DeregisterOneModuleLeavesOthersIntact(t *testing.T) {
	r := NewRouter()
	r.RegisterRoute(RouteEntry{Method: "GET", Path: "/items", ModuleName: "shop", HandlerID: "listItems"})
	r.RegisterRoute(RouteEntry{Method: "GET", Path: "/rooms", ModuleName: "chat", HandlerID: "listRooms"})

	r.Deregister("shop")

	_, ok := r.LookupRoute("GET", "chat", "/rooms")
	assert.True(t, ok)
}
