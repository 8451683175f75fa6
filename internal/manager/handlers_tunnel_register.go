package manager

import (
	"fmt"
	"net/http"
)

type tunnelRegisterRequest struct {
	AgentID  string            `json:"agent_id"`
	Hostname string            `json:"hostname"`
	Info     map[string]string `json:"info"`
	ServerIP string            `json:"server_ip,omitempty"`
}

type tunnelRegisterResponse struct {
	RelayURL string `json:"relay_url"`
}

// registerTunnel assigns the named agent to the least-loaded live relay and
// records the assignment in the agent directory. Agents call this (not
// browsers), so it is mounted under /v1/private without the bearer-token
// Authenticate middleware the rest of that prefix carries. When no relay
// has a live heartbeat, it falls back to this manager's own FQDN so the
// agent still has somewhere to dial.
func (h *handlers) registerTunnel(w http.ResponseWriter, r *http.Request) {
	var req tunnelRegisterRequest
	if err := decodeJSON(w, r, &req); err != nil || req.AgentID == "" {
		ErrBadRequest(w, "agent_id is required")
		return
	}

	relayURL := fmt.Sprintf("wss://%s/tunnel", h.cfg.FQDN)
	var relayID, internalURL string
	if relay, err := h.cfg.Relays.LeastLoaded(r.Context()); err == nil {
		relayID = relay.RelayID
		relayURL = relay.PublicURL
		internalURL = relay.InternalURL
	}

	if err := h.cfg.Agents.SetRelayAssignment(r.Context(), req.AgentID, relayID, relayURL, internalURL, req.ServerIP); err != nil {
		ErrUpstreamUnavailable(w, "agent directory unavailable")
		return
	}

	Ok(w, tunnelRegisterResponse{RelayURL: relayURL})
}
