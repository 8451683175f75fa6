// Package relay implements the tunnel relay (C5): the websocket server that
// endpoint agents dial into, and that the manager dials into on behalf of
// browser clients to bridge TCP tunnels and interactive command execution.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/redisdir"
	"github.com/migasfree/migasfree-swarm/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // tunnel_data frames carry chunks of proxied traffic
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns the relay's connection registry and routes frames between the
// agent-facing and client-facing websocket legs. Generalizes the
// single-writer-per-connection discipline of a push-only pub/sub hub to a
// bidirectional, session-routed protocol.
type Hub struct {
	registry       *Registry
	logger         *zap.Logger
	relayID        string
	agents         *redisdir.AgentDirectory
	maxConnections int
}

func NewHub(relayID string, agents *redisdir.AgentDirectory, maxConnections int, logger *zap.Logger) *Hub {
	return &Hub{
		registry:       NewRegistry(),
		logger:         logger,
		relayID:        relayID,
		agents:         agents,
		maxConnections: maxConnections,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

// ServeAgentWS upgrades an endpoint agent's connection and runs its pumps
// until it disconnects. The agent is expected to send a register_agent
// frame as its first message.
func (h *Hub) ServeAgentWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("agent websocket upgrade failed", zap.Error(err))
		return
	}

	go h.runAgentConn(conn)
}

func (h *Hub) runAgentConn(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var a *agentConn
	defer func() {
		if a != nil {
			h.registry.DeregisterAgent(a.agentID)
			for _, t := range h.registry.TunnelsForAgent(a.agentID) {
				h.sendToClient(t.client, wire.Frame{Type: wire.FrameTunnelClosed, TunnelID: t.tunnelID})
			}
			if h.agents != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := h.agents.Delete(ctx, a.agentID); err != nil {
					h.logger.Warn("removing agent directory entry failed", zap.String("agent_id", a.agentID), zap.Error(err))
				}
				cancel()
			}
			h.logger.Info("agent disconnected", zap.String("agent_id", a.agentID))
			close(a.send)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := wire.Decode(raw)
		if err != nil {
			h.logger.Debug("dropping malformed agent frame", zap.Error(err))
			continue
		}

		switch f.Type {
		case wire.FrameRegisterAgent:
			if a != nil {
				continue
			}
			if h.maxConnections > 0 && h.registry.AgentCount() >= h.maxConnections {
				errFrame, _ := wire.Encode(wire.Frame{Type: wire.FrameError, Message: "relay at capacity"})
				_ = conn.WriteMessage(websocket.TextMessage, errFrame)
				return
			}
			a = &agentConn{agentID: f.AgentID, hostname: f.Hostname, conn: conn, send: make(chan []byte, sendBufferSize)}
			h.registry.RegisterAgent(a)
			go h.agentWritePump(a)
			if h.agents != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := h.agents.PutRegistration(ctx, f.AgentID, h.relayID, f.Hostname, f.Info, f.Services); err != nil {
					h.logger.Warn("writing agent directory entry failed", zap.String("agent_id", f.AgentID), zap.Error(err))
				}
				cancel()
			}
			ok, _ := wire.Encode(wire.Frame{Type: wire.FrameRegistrationOK, AgentID: f.AgentID})
			a.send <- ok
			h.logger.Info("agent registered", zap.String("agent_id", f.AgentID), zap.String("hostname", f.Hostname))
		case wire.FrameTunnelData:
			if t, ok := h.registry.Tunnel(f.TunnelID); ok {
				h.sendToClient(t.client, f)
			}
		case wire.FrameTunnelClosed:
			if t, ok := h.registry.Tunnel(f.TunnelID); ok {
				h.sendToClient(t.client, f)
				h.registry.DeregisterTunnel(f.TunnelID)
			}
		case wire.FrameExecOutput, wire.FrameExecComplete, wire.FrameExecError:
			if e, ok := h.registry.Exec(f.ExecID); ok {
				h.sendToClient(e.client, f)
				if f.Type != wire.FrameExecOutput {
					h.registry.DeregisterExec(f.ExecID)
				}
			}
		default:
			h.logger.Debug("ignoring unknown agent frame type", zap.String("type", string(f.Type)))
		}
	}
}

func (h *Hub) agentWritePump(a *agentConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-a.send:
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = a.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := a.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendToClient pushes a frame to a client-leg connection. The relay holds
// no registry of client sends by design (a manager's relayclient leg
// handles its own write ordering); this writes directly since each
// tunnel/exec session is pinned to exactly one client connection for its
// lifetime and the relay never writes to it from more than one goroutine
// concurrently (tunnel_data frames for a given tunnel only ever arrive from
// that tunnel's single owning agent connection's read pump).
func (h *Hub) sendToClient(conn *websocket.Conn, f wire.Frame) {
	raw, err := wire.Encode(f)
	if err != nil {
		h.logger.Error("encoding frame to client", zap.Error(err))
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		h.logger.Debug("writing to client failed", zap.Error(err))
	}
}

// ServeClientWS upgrades a manager's connection (on behalf of a browser
// session) and handles connect_client / start_tcp_tunnel / execute_command /
// close_tunnel requests. The target agent is the one a frame names, or the
// one an earlier connect_client selected; the X-Agent-ID header is not read.
func (h *Hub) ServeClientWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("client websocket upgrade failed", zap.Error(err))
		return
	}
	go h.runClientConn(conn)
}

func (h *Hub) runClientConn(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var connectedAgent string

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := wire.Decode(raw)
		if err != nil {
			h.logger.Debug("dropping malformed client frame", zap.Error(err))
			continue
		}

		switch f.Type {
		case wire.FrameConnectClient:
			if _, ok := h.registry.Agent(f.AgentID); !ok {
				h.sendToClient(conn, wire.Frame{Type: wire.FrameError, Message: fmt.Sprintf("agent %s not connected", f.AgentID)})
				continue
			}
			connectedAgent = f.AgentID
			h.sendToClient(conn, wire.Frame{Type: wire.FrameConnectionOK, AgentID: f.AgentID})

		case wire.FrameListAgents:
			h.sendToClient(conn, wire.Frame{Type: wire.FrameListAgents, Agents: h.registry.AgentIDs()})

		case wire.FrameStartTCPTunnel:
			agentID := f.AgentID
			if agentID == "" {
				agentID = connectedAgent
			}
			a, ok := h.registry.Agent(agentID)
			if !ok {
				h.sendToClient(conn, wire.Frame{Type: wire.FrameError, Message: fmt.Sprintf("agent %s not connected", agentID)})
				continue
			}
			tunnelID := f.TunnelID
			if tunnelID == "" {
				h.sendToClient(conn, wire.Frame{Type: wire.FrameError, Message: "start_tcp_tunnel requires a tunnel_id"})
				continue
			}
			if _, exists := h.registry.Tunnel(tunnelID); exists {
				h.sendToClient(conn, wire.Frame{Type: wire.FrameError, Message: fmt.Sprintf("tunnel %s already exists", tunnelID)})
				continue
			}
			h.registry.RegisterTunnel(&tunnelConn{
				tunnelID: tunnelID, agentID: agentID, service: f.Service, clientCN: f.ClientCN,
				createdAt: time.Now(), client: conn,
			})
			forward := wire.Frame{
				Type: wire.FrameStartTCPTunnel, AgentID: agentID, TunnelID: tunnelID,
				Host: f.Host, Port: f.Port, Service: f.Service, ClientCN: f.ClientCN,
			}
			raw, _ := wire.Encode(forward)
			a.send <- raw
			h.sendToClient(conn, wire.Frame{Type: wire.FrameTunnelStarted, AgentID: agentID, TunnelID: tunnelID, Service: f.Service})

		case wire.FrameTunnelData:
			if t, ok := h.registry.Tunnel(f.TunnelID); ok {
				if a, ok := h.registry.Agent(t.agentID); ok {
					raw, _ := wire.Encode(f)
					a.send <- raw
				}
			}

		case wire.FrameCloseTunnel:
			if t, ok := h.registry.Tunnel(f.TunnelID); ok {
				h.registry.DeregisterTunnel(f.TunnelID)
				if a, ok := h.registry.Agent(t.agentID); ok {
					raw, _ := wire.Encode(f)
					a.send <- raw
				}
			}

		case wire.FrameExecuteCommand:
			agentID := f.AgentID
			if agentID == "" {
				agentID = connectedAgent
			}
			a, ok := h.registry.Agent(agentID)
			if !ok {
				h.sendToClient(conn, wire.Frame{Type: wire.FrameError, Message: fmt.Sprintf("agent %s not connected", agentID)})
				continue
			}
			execID := uuid.NewString()
			h.registry.RegisterExec(&execSession{execID: execID, agentID: agentID, client: conn})
			forward := wire.Frame{Type: wire.FrameExecuteCommand, ExecID: execID, Command: f.Command, Args: f.Args}
			raw, _ := wire.Encode(forward)
			a.send <- raw
			h.sendToClient(conn, wire.Frame{Type: wire.FrameExecStarted, ExecID: execID})

		default:
			h.logger.Debug("ignoring unknown client frame type", zap.String("type", string(f.Type)))
		}
	}
}

// HealthHandler answers the pre-upgrade health check.
func (h *Hub) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
