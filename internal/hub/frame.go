package hub

import "encoding/json"

// InboundFrame is the client-to-server WebSocket message shape (§6.2).
type InboundFrame struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ID      string          `json:"id,omitempty"`
	Token   string          `json:"token,omitempty"`
	Target  string          `json:"target,omitempty"`
}

// OutboundReply is the server-to-client reply shape for a matched command.
type OutboundReply struct {
	ID      string `json:"id"`
	Payload any    `json:"payload"`
}

// OutboundPush is an unsolicited module-originated message, distinct from
// a reply because it carries no correlating id.
type OutboundPush struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// closeBody is the JSON payload carried by server-initiated close frames.
type closeBody struct {
	Reason string `json:"reason"`
}

// splitCommand resolves a module name out of a WS command string using
// the dot-split rule only (§9 design note a): everything up to the first
// "." is the module name ("foo", or "@ns/foo" for namespaced modules);
// everything after is the command name. The slash-split variant seen in
// some source builds is not honoured — malformed commands are refused
// rather than guessed at.
func splitCommand(command string) (moduleName, cmdName string, ok bool) {
	for i := 0; i < len(command); i++ {
		if command[i] == '.' {
			moduleName, cmdName = command[:i], command[i+1:]
			return moduleName, cmdName, moduleName != "" && cmdName != ""
		}
	}
	return "", "", false
}
