// Package wire defines the JSON frame protocol exchanged over the tunnel
// relay's websocket connections, on both the agent-facing and client-facing
// legs. Frames are a closed, tagged union: the Type field selects which of
// the optional payload fields are populated.
package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// FrameType discriminates the Frame union. Values are wire-stable strings,
// not iota-based, since they cross process and language boundaries.
type FrameType string

const (
	// Agent -> relay
	FrameRegisterAgent FrameType = "register_agent"
	FrameTunnelData    FrameType = "tunnel_data"
	FrameTunnelClosed  FrameType = "tunnel_closed"
	FrameExecOutput    FrameType = "exec_output"
	FrameExecComplete  FrameType = "exec_complete"
	FrameExecError     FrameType = "exec_error"

	// Client -> relay
	FrameConnectClient  FrameType = "connect_client"
	FrameListAgents     FrameType = "list_agents"
	FrameStartTCPTunnel FrameType = "start_tcp_tunnel"
	FrameCloseTunnel    FrameType = "close_tunnel"
	FrameExecuteCommand FrameType = "execute_command"

	// Relay -> either side
	FrameRegistrationOK FrameType = "registration_ok"
	FrameConnectionOK   FrameType = "connection_ok"
	FrameTunnelStarted  FrameType = "tunnel_started"
	FrameExecStarted    FrameType = "exec_started"
	FrameError          FrameType = "error"
)

// hexBytes carries binary payloads as lowercase hex in JSON instead of
// encoding/json's default base64 []byte handling, matching the wire
// protocol's tunnel_data/exec_output convention.
type hexBytes []byte

func (h hexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *hexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = nil
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("wire: data field is not valid hex: %w", err)
	}
	*h = decoded
	return nil
}

// Frame is the single wire envelope used in both directions. Only the
// fields relevant to Type are populated; the rest are zero values and are
// omitted from the JSON encoding.
type Frame struct {
	Type FrameType `json:"type"`

	// AgentID identifies the endpoint agent a frame concerns: the
	// registering agent itself, or the target of a client-issued tunnel/exec
	// request. Travels as the "id" field on every frame type.
	AgentID string `json:"id,omitempty"`

	// TunnelID identifies a single TCP byte-stream tunnel for its lifetime,
	// chosen by the initiating client (conventionally "web-<uuid>").
	TunnelID string `json:"tunnel_id,omitempty"`

	// ExecID identifies a single command-execution session for its lifetime.
	ExecID string `json:"exec_id,omitempty"`

	// Data carries raw tunnel bytes or exec stdout/stderr chunks as
	// lowercase hex.
	Data hexBytes `json:"data,omitempty"`

	// Origin marks which leg sent a tunnel_data frame ("client" or
	// "agent"). The relay does not read it: it forwards a tunnel_data frame
	// by the connection it arrived on (agent leg to client, client leg to
	// agent).
	Origin string `json:"origin,omitempty"`

	// Host and Port are the dial target for start_tcp_tunnel.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// Service names the proxied service (ssh/vnc/rdp) for start_tcp_tunnel
	// and tunnel_started.
	Service string `json:"service,omitempty"`

	// ClientCN is the initiator's mTLS common name, recorded on the tunnel
	// and exec session records when the client leg is mTLS-authenticated.
	ClientCN string `json:"client_cn,omitempty"`

	// Command and Args are the argv for execute_command.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// ExitCode is populated on exec_complete.
	ExitCode int `json:"exit_code,omitempty"`

	// Message carries a human-readable detail for error frames; Agents
	// carries the agent ID list for list_agents responses.
	Message string   `json:"message,omitempty"`
	Agents  []string `json:"agents,omitempty"`

	// Hostname is the agent's own name, sent as "name" on register_agent.
	Hostname string `json:"name,omitempty"`

	// Info is the agent's free-form system info map, sent on register_agent.
	Info map[string]string `json:"info,omitempty"`

	// Services is the agent's service_name -> tcp_port map, sent on
	// register_agent.
	Services map[string]int `json:"services,omitempty"`

	// Mode distinguishes register_agent/connect_client session roles.
	Mode string `json:"mode,omitempty"`
}

// Encode marshals a Frame to a single JSON text message.
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Decode parses a single JSON text message into a Frame. Unknown extra
// fields in the payload are ignored; unknown Type values are left for the
// caller to handle (the relay logs and drops them, per forward-compatibility
// with future agent/client versions).
func Decode(raw []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(raw, &f)
	return f, err
}
