package manager

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/migasfree/migasfree-swarm/internal/redisdir"
)

const relayDialTimeout = 10 * time.Second

// RelayClientDialer dials the specific relay an agent is actually attached
// to on behalf of a browser session, following the read/write pump
// structure used for the relay's own agent connections, generalized from a
// server-accept role to a client-dial role.
type RelayClientDialer struct {
	agents *redisdir.AgentDirectory
	relays *redisdir.RelayDirectory
	dialer *websocket.Dialer
}

func NewRelayClientDialer(agents *redisdir.AgentDirectory, relays *redisdir.RelayDirectory) *RelayClientDialer {
	return &RelayClientDialer{
		agents: agents,
		relays: relays,
		dialer: &websocket.Dialer{HandshakeTimeout: relayDialTimeout},
	}
}

// Dial looks up the relay the named agent is currently registered with and
// opens a websocket connection to that relay's client endpoint, with an
// X-Agent-ID sticky header naming the agent. The relay itself does not read
// that header; it takes the agent from the frames. If the relay's own heartbeat record
// has expired, it falls back to the internal address the agent's
// registration carried, per this system's degraded-mode fallback.
func (d *RelayClientDialer) Dial(ctx context.Context, agentID string) (*websocket.Conn, error) {
	agent, err := d.agents.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("manager: looking up agent %s: %w", agentID, err)
	}
	if agent.RelayID == "" {
		return nil, fmt.Errorf("manager: agent %s has no assigned relay", agentID)
	}

	internalAddr := agent.ServerIP
	relayID := agent.RelayID
	if relay, err := d.relays.Get(ctx, agent.RelayID); err == nil {
		internalAddr = relay.InternalURL
	} else if internalAddr == "" {
		return nil, fmt.Errorf("manager: relay %s for agent %s is unreachable: %w", agent.RelayID, agentID, err)
	}

	u := url.URL{Scheme: "ws", Host: internalAddr, Path: "/client/ws"}
	header := http.Header{}
	header.Set("X-Agent-ID", agentID)

	conn, _, err := d.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("manager: dialing relay %s: %w", relayID, err)
	}
	return conn, nil
}
