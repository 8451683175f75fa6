package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// agentConn is a registered endpoint agent's live websocket connection.
type agentConn struct {
	agentID  string
	hostname string
	conn     *websocket.Conn
	send     chan []byte
}

// tunnelConn is one TCP byte-stream tunnel's bookkeeping: which agent owns
// it and which client leg is bridging bytes to/from it.
type tunnelConn struct {
	tunnelID  string
	agentID   string
	service   string
	clientCN  string
	createdAt time.Time
	client    *websocket.Conn
}

// execSession is one command-execution session's bookkeeping.
type execSession struct {
	execID  string
	agentID string
	client  *websocket.Conn
}

// Registry is the relay's in-memory directory of connected agents, open
// tunnels, and open exec sessions, generalizing the single mutex-protected
// map pattern used elsewhere in this codebase's connection bookkeeping to
// three concurrent directories guarded by one lock.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*agentConn
	tunnels map[string]*tunnelConn
	execs   map[string]*execSession
}

func NewRegistry() *Registry {
	return &Registry{
		agents:  make(map[string]*agentConn),
		tunnels: make(map[string]*tunnelConn),
		execs:   make(map[string]*execSession),
	}
}

func (r *Registry) RegisterAgent(a *agentConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.agentID] = a
}

func (r *Registry) DeregisterAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

func (r *Registry) Agent(agentID string) (*agentConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	return a, ok
}

// AgentIDs returns a snapshot of connected agent IDs.
func (r *Registry) AgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) RegisterTunnel(t *tunnelConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tunnels[t.tunnelID] = t
}

func (r *Registry) DeregisterTunnel(tunnelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tunnels, tunnelID)
}

func (r *Registry) Tunnel(tunnelID string) (*tunnelConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tunnels[tunnelID]
	return t, ok
}

func (r *Registry) TunnelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tunnels)
}

func (r *Registry) RegisterExec(e *execSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs[e.execID] = e
}

func (r *Registry) DeregisterExec(execID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.execs, execID)
}

func (r *Registry) Exec(execID string) (*execSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.execs[execID]
	return e, ok
}

// TunnelsForAgent removes and returns every tunnel owned by agentID,
// used when an agent disconnects so its tunnels can be closed out cleanly.
func (r *Registry) TunnelsForAgent(agentID string) []*tunnelConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	var owned []*tunnelConn
	for id, t := range r.tunnels {
		if t.agentID == agentID {
			owned = append(owned, t)
			delete(r.tunnels, id)
		}
	}
	return owned
}
