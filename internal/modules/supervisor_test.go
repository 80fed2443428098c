package modules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClientSender struct {
	sent        []sentMessage
	broadcasts  []any
	disconnects []disconnectCall
}

type sentMessage struct {
	clientID string
	payload  any
}

type disconnectCall struct {
	clientID string
	reason   string
}

func (f *fakeClientSender) SendToClient(clientID string, payload any) bool {
	f.sent = append(f.sent, sentMessage{clientID, payload})
	return true
}

func (f *fakeClientSender) BroadcastToClients(payload any) {
	f.broadcasts = append(f.broadcasts, payload)
}

func (f *fakeClientSender) DisconnectClient(clientID, reason string) bool {
	f.disconnects = append(f.disconnects, disconnectCall{clientID, reason})
	return true
}

func TestSupervisor_HandleSendToClient_ForwardsToClientSender(t *testing.T) {
	fake := &fakeClientSender{}
	s := &Supervisor{clientSender: fake}
	inst := &Instance{ModuleName: "chat"}

	raw, err := json.Marshal(sendToClientPayload{ClientID: "client-1", Payload: json.RawMessage(`{"text":"hi"}`)})
	require.NoError(t, err)

	s.handleSendToClient(inst, raw)

	require.Len(t, fake.sent, 1)
	assert.Equal(t, "client-1", fake.sent[0].clientID)
}

func TestSupervisor_HandleBroadcast_ForwardsToClientSender(t *testing.T) {
	fake := &fakeClientSender{}
	s := &Supervisor{clientSender: fake}
	inst := &Instance{ModuleName: "chat"}

	raw, err := json.Marshal(broadcastPayload{Payload: json.RawMessage(`{"text":"hi all"}`)})
	require.NoError(t, err)

	s.handleBroadcast(inst, raw)

	assert.Len(t, fake.broadcasts, 1)
}

func TestSupervisor_HandleDisconnectClient_ForwardsToClientSender(t *testing.T) {
	fake := &fakeClientSender{}
	s := &Supervisor{clientSender: fake}
	inst := &Instance{ModuleName: "chat"}

	raw, err := json.Marshal(disconnectClientPayload{ClientID: "client-1", Reason: "kicked"})
	require.NoError(t, err)

	s.handleDisconnectClient(inst, raw)

	require.Len(t, fake.disconnects, 1)
	assert.Equal(t, "client-1", fake.disconnects[0].clientID)
	assert.Equal(t, "kicked", fake.disconnects[0].reason)
}

func TestSupervisor_HandleSendToClient_MalformedPayloadIsIgnored(t *testing.T) {
	fake := &fakeClientSender{}
	s := &Supervisor{clientSender: fake}
	inst := &Instance{ModuleName: "chat"}

	assert.NotPanics(t, func() {
		s.handleSendToClient(inst, json.RawMessage(`not json`))
	})
	assert.Empty(t, fake.sent)
}
