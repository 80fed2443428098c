package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modplane/server/internal/logger"
)

const mpcTimeout = 10 * time.Second

// Bus is C9: module-to-module RPC. A caller's intermoduleMessage
// resolves a target module and instance via the Supervisor/Balancer,
// delivers an mpcRequest, and matches the eventual isResult=true
// intermoduleMessage back to the caller by id.
type Bus struct {
	supervisor *Supervisor
}

func NewBus(supervisor *Supervisor) *Bus {
	return &Bus{supervisor: supervisor}
}

// handleIntermoduleMessage processes one intermoduleMessage frame from
// an instance. isResult=true frames are answers to a call this core
// itself placed on the caller's behalf and are resolved through the
// shared correlator; isResult=false frames are new calls to route to a
// target module's MPC handler.
func (b *Bus) handleIntermoduleMessage(ctx context.Context, caller *Instance, raw json.RawMessage) {
	var msg intermoduleMessagePayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Module(caller.ModuleName).Warn().Err(err).Msg("malformed intermoduleMessage")
		return
	}

	if msg.IsResult {
		b.supervisor.correlator.Resolve(msg.ID, Reply{Payload: msg.Payload})
		return
	}

	target, ok := b.supervisor.pickInstance(msg.To, msg.ShardKey)
	if !ok {
		b.respondError(caller, msg.ID, fmt.Sprintf("module %q not loaded", msg.To))
		return
	}

	if err := target.transport.Send("mpcRequest", mpcPayload{ID: msg.ID, Payload: msg.Payload}); err != nil {
		b.respondError(caller, msg.ID, "target module unreachable")
		return
	}

	go b.awaitAndRelay(ctx, caller, msg.ID)
}

// awaitAndRelay blocks on the correlator for the mpcRequest's response
// and relays it back to the caller as an mpcResponse, or an error
// intermoduleMessage on timeout.
func (b *Bus) awaitAndRelay(ctx context.Context, caller *Instance, id string) {
	callCtx, cancel := context.WithTimeout(ctx, mpcTimeout)
	defer cancel()

	reply, err := b.supervisor.correlator.Await(callCtx, id, mpcTimeout)
	if err != nil {
		b.respondError(caller, id, "target module did not respond in time")
		return
	}

	if err := caller.transport.Send("mpcResponse", mpcPayload{ID: id, Payload: reply.Payload}); err != nil {
		logger.Module(caller.ModuleName).Warn().Err(err).Msg("failed to relay mpcResponse")
	}
}

func (b *Bus) respondError(caller *Instance, id, message string) {
	body, _ := json.Marshal(map[string]string{"error": message})
	_ = caller.transport.Send("intermoduleMessage", intermoduleMessagePayload{ID: id, Payload: body, IsResult: true})
}
