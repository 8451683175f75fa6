package manager

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/wire"
)

var defaultServicePorts = map[string]int{
	"vnc": 5900,
	"rdp": 3389,
}

var browserUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// tunnelWS bridges a browser's websocket connection to the relay's
// client-facing leg for the named agent. ssh gets its own PTY-proxying
// handshake (sshProxy); every other service (vnc, rdp, ...) still has to go
// through the relay's connect_client/start_tcp_tunnel handshake before any
// bytes flow, so this never skips straight to bridging raw frames.
func (h *handlers) tunnelWS(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	service := r.URL.Query().Get("service")

	if service == "ssh" {
		h.sshProxy(w, r, agentID)
		return
	}

	port := defaultServicePorts[service]
	if p := r.URL.Query().Get("port"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}
	if port == 0 {
		http.Error(w, "unknown or unspecified service", http.StatusBadRequest)
		return
	}

	logger := h.cfg.Logger.With(zap.String("agent_id", agentID), zap.String("service", service))

	browser, err := browserUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("browser websocket upgrade failed")
		return
	}
	defer browser.Close()

	relayConn, err := h.cfg.RelayDialer.Dial(r.Context(), agentID)
	if err != nil {
		_ = browser.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"no relay available"}`))
		return
	}
	defer relayConn.Close()

	if err := sendFrame(relayConn, wire.Frame{Type: wire.FrameConnectClient, AgentID: agentID}); err != nil {
		logger.Warn("sending connect_client frame failed", zap.Error(err))
		return
	}

	tunnelID := "web-" + uuid.NewString()
	if err := sendFrame(relayConn, wire.Frame{
		Type: wire.FrameStartTCPTunnel, AgentID: agentID, TunnelID: tunnelID,
		Host: "127.0.0.1", Port: port, Service: service,
	}); err != nil {
		logger.Warn("sending start_tcp_tunnel frame failed", zap.Error(err))
		return
	}

	ack, err := awaitTunnelStarted(relayConn, tunnelID)
	if err != nil {
		_ = browser.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"type":"error","message":%q}`, err.Error())))
		return
	}
	_ = ack

	tunnelBridge(browser, relayConn, tunnelID, logger)

	_ = sendFrame(relayConn, wire.Frame{Type: wire.FrameCloseTunnel, AgentID: agentID, TunnelID: tunnelID})
}

// awaitTunnelStarted blocks until the relay confirms the tunnel it was just
// asked to start, or reports an error instead.
func awaitTunnelStarted(relayConn *websocket.Conn, tunnelID string) (wire.Frame, error) {
	_ = relayConn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer relayConn.SetReadDeadline(time.Time{})

	for {
		_, raw, err := relayConn.ReadMessage()
		if err != nil {
			return wire.Frame{}, fmt.Errorf("relay connection closed before tunnel started: %w", err)
		}
		f, err := wire.Decode(raw)
		if err != nil {
			continue
		}
		switch f.Type {
		case wire.FrameTunnelStarted:
			if f.TunnelID == tunnelID {
				return f, nil
			}
		case wire.FrameError:
			return wire.Frame{}, fmt.Errorf("%s", f.Message)
		}
	}
}

// tunnelBridge shuttles raw bytes between the browser's binary websocket
// frames and the relay's tunnel_data frames for tunnelID, running until
// either side closes or errors.
func tunnelBridge(browser, relayConn *websocket.Conn, tunnelID string, logger *zap.Logger) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, raw, err := relayConn.ReadMessage()
			if err != nil {
				return
			}
			f, err := wire.Decode(raw)
			if err != nil {
				continue
			}
			switch f.Type {
			case wire.FrameTunnelData:
				if f.TunnelID != tunnelID {
					continue
				}
				if err := browser.WriteMessage(websocket.BinaryMessage, f.Data); err != nil {
					return
				}
			case wire.FrameTunnelClosed, wire.FrameError:
				return
			}
		}
	}()

	for {
		msgType, data, err := browser.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := sendFrame(relayConn, wire.Frame{Type: wire.FrameTunnelData, TunnelID: tunnelID, Data: data}); err != nil {
			logger.Debug("forwarding browser data to relay failed", zap.Error(err))
			break
		}
	}

	<-done
}
