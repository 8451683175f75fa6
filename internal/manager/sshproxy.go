package manager

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/wire"
)

// browserFrame is the simplified JSON shape the browser speaks for an
// interactive ssh session: data chunks and terminal resizes, both hex
// encoded so the payload round-trips through JSON without base64's padding
// quirks in the browser's own framing code.
type browserFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

const sshKillGrace = 2 * time.Second

// sshProxy implements spec §4.2 step 4: a local TCP listener tunnels bytes
// to the agent's sshd through the relay's tunnel_data frames, a local `ssh
// -tt` client dials that listener with a PTY attached, and the PTY master is
// bridged to the browser as hex data/resize frames.
func (h *handlers) sshProxy(w http.ResponseWriter, r *http.Request, agentID string) {
	username := r.URL.Query().Get("username")
	if username == "" {
		username = "root"
	}
	logger := h.cfg.Logger.With(zap.String("agent_id", agentID), zap.String("username", username))

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
		Host: "127.0.0.1", Port: 22,
	}); err != nil {
		logger.Warn("sending start_tcp_tunnel frame failed", zap.Error(err))
		return
	}
	if _, err := awaitTunnelStarted(relayConn, tunnelID); err != nil {
		_ = browser.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"type":"error","message":%q}`, err.Error())))
		return
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		logger.Warn("opening local ssh listener failed", zap.Error(err))
		return
	}
	defer listener.Close()
	localPort := listener.Addr().(*net.TCPAddr).Port

	tunnelDone := make(chan struct{})
	go relayToLocalBridge(listener, relayConn, tunnelID, logger, tunnelDone)

	sshCmd := exec.CommandContext(r.Context(), "ssh", "-tt", "-p", fmt.Sprintf("%d", localPort),
		fmt.Sprintf("%s@127.0.0.1", username))
	ptmx, err := pty.Start(sshCmd)
	if err != nil {
		logger.Warn("starting ssh PTY failed", zap.Error(err))
		_ = browser.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"could not start ssh session"}`))
		return
	}
	defer func() {
		_ = ptmx.Close()
		killWithGrace(sshCmd)
	}()

	_ = browser.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"status":"connected","tunnel_id":%q}`, tunnelID)))

	ptyDone := make(chan struct{})
	go func() {
		defer close(ptyDone)
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				frame := browserFrame{Type: "data", Data: hex.EncodeToString(buf[:n])}
				out, marshalErr := json.Marshal(frame)
				if marshalErr == nil {
					_ = browser.WriteMessage(websocket.TextMessage, out)
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		_, raw, err := browser.ReadMessage()
		if err != nil {
			break
		}
		var bf browserFrame
		if err := json.Unmarshal(raw, &bf); err != nil {
			continue
		}
		switch bf.Type {
		case "data":
			decoded, err := hex.DecodeString(bf.Data)
			if err != nil {
				continue
			}
			if _, err := ptmx.Write(decoded); err != nil {
				goto closed
			}
		case "resize":
			_ = pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(bf.Cols), Rows: uint16(bf.Rows)})
		}
	}
closed:

	killWithGrace(sshCmd)
	<-ptyDone
	close(tunnelDone)
	_ = sendFrame(relayConn, wire.Frame{Type: wire.FrameCloseTunnel, AgentID: agentID, TunnelID: tunnelID})
}

// relayToLocalBridge accepts the single local connection ssh makes to the
// ephemeral listener and shuttles bytes to/from the relay as tunnel_data
// frames until stop is closed or either side errs.
func relayToLocalBridge(listener net.Listener, relayConn *websocket.Conn, tunnelID string, logger *zap.Logger, stop <-chan struct{}) {
	conn, err := listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if sendErr := sendFrame(relayConn, wire.Frame{
					Type: wire.FrameTunnelData, TunnelID: tunnelID, Data: append([]byte(nil), buf[:n]...),
				}); sendErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-stop:
			return
		case <-readDone:
			return
		default:
		}
		_, raw, err := relayConn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := wire.Decode(raw)
		if err != nil {
			continue
		}
		switch frame.Type {
		case wire.FrameTunnelData:
			if _, err := conn.Write(frame.Data); err != nil {
				logger.Debug("writing to local ssh listener failed", zap.Error(err))
				return
			}
		case wire.FrameTunnelClosed, wire.FrameError:
			return
		}
	}
}

func sendFrame(conn *websocket.Conn, f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// killWithGrace asks the ssh process to exit with SIGTERM and escalates to
// SIGKILL if it hasn't within sshKillGrace, matching spec.md's "closing
// browser WS terminates the ssh process within 2s."
func killWithGrace(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(sshKillGrace):
		_ = cmd.Process.Kill()
	}
}
