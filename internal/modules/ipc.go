package modules

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/modplane/server/internal/logger"
)

// Message is the self-describing, newline-delimited JSON record carried
// in both directions over a child process's stdio pipes (§4.3). A single
// discriminated shape keeps framing trivial: one JSON value per line.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Instance-to-core payload shapes.
type registerPayload struct {
	Routes          []routeDecl   `json:"routes"`
	Commands        []commandDecl `json:"commands"`
	ConsoleSettings any           `json:"consoleSettings,omitempty"`
}

type routeDecl struct {
	Method       string `json:"method"`
	Path         string `json:"path"`
	HandlerID    string `json:"handlerId"`
	RequiresAuth bool   `json:"requiresAuth"`
}

type commandDecl struct {
	Name         string `json:"name"`
	HandlerID    string `json:"handlerId"`
	Broadcast    bool   `json:"broadcast"`
	RequiresAuth bool   `json:"requiresAuth"`
}

type responsePayload struct {
	ID          string          `json:"id"`
	Status      int             `json:"status,omitempty"`
	ContentType string          `json:"contentType,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

type replyPayload struct {
	MsgID       string          `json:"msgId"`
	Payload     json.RawMessage `json:"payload"`
	ContentType string          `json:"contentType,omitempty"`
}

type logPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type intermoduleMessagePayload struct {
	To       string          `json:"to"`
	ID       string          `json:"id"`
	Payload  json.RawMessage `json:"payload"`
	IsResult bool            `json:"isResult"`
	ShardKey string          `json:"shardKey,omitempty"`
}

type databaseQueryPayload struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// sendToClientPayload, broadcastPayload, and disconnectClientPayload are
// the instance-to-core shapes for the module-initiated client-send ops
// (§4.7), carried by the "sendToClient", "broadcast", and
// "disconnectClient" message types.
type sendToClientPayload struct {
	ClientID string          `json:"clientId"`
	Payload  json.RawMessage `json:"payload"`
}

type broadcastPayload struct {
	Payload json.RawMessage `json:"payload"`
}

type disconnectClientPayload struct {
	ClientID string `json:"clientId"`
	Reason   string `json:"reason"`
}

// Core-to-instance payload shapes.
type initPayload struct {
	InstanceID string   `json:"instanceId"`
	Env        []string `json:"env"`
}

type invokePayload struct {
	ID        string          `json:"id"`
	HandlerID string          `json:"handlerId"`
	Payload   json.RawMessage `json:"payload"`
}

type clientEventPayload struct {
	ClientID string `json:"clientId"`
}

type mpcPayload struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type databaseResultPayload struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type databaseErrorPayload struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
}

// Transport is the bidirectional framed channel between the core and one
// instance (C3). Writes are serialized; reads are delivered to Inbound.
// Ordering within one Transport is FIFO in each direction; no ordering
// is implied across transports (§5).
type Transport struct {
	moduleName string
	instanceID string

	writeMu sync.Mutex
	w       io.Writer
	enc     *json.Encoder

	Inbound chan Message

	closeOnce sync.Once
	closed    chan struct{}
}

// NewTransport wraps a child process's stdin (writer) and stdout
// (reader) as a Transport. The caller must call Start to begin the read
// pump.
func NewTransport(moduleName, instanceID string, w io.Writer, r io.Reader) *Transport {
	return &Transport{
		moduleName: moduleName,
		instanceID: instanceID,
		w:          w,
		enc:        json.NewEncoder(w),
		Inbound:    make(chan Message, 64),
		closed:     make(chan struct{}),
	}
}

// Start launches the read pump in a goroutine. Inbound is closed when
// the underlying reader reaches EOF or an unrecoverable decode error.
func (t *Transport) Start(r io.Reader) {
	go t.readLoop(r)
}

func (t *Transport) readLoop(r io.Reader) {
	defer close(t.Inbound)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			logger.Module(t.moduleName).Warn().Err(err).Msg("dropping malformed IPC frame")
			continue
		}
		select {
		case t.Inbound <- msg:
		case <-t.closed:
			return
		}
	}
}

// Send writes one framed message. Back-pressure on a slow instance
// blocks the caller, by design (§4.3): IPC writes happen from
// per-request work units so one blocked write never stalls unrelated
// traffic.
func (t *Transport) Send(msgType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("modules: marshaling %s payload: %w", msgType, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.enc.Encode(Message{Type: msgType, Payload: body})
}

// Close makes the read pump stop instead of delivering its next inbound
// message. It does not affect Send, and it does not close the underlying
// process, which is the Supervisor's job.
func (t *Transport) Close() {
	t.closeOnce.Do(func() { close(t.closed) })
}
