// Package redisdir wraps the Redis keyspace shared by the manager and the
// tunnel relay: the connected-agent directory, the relay directory used for
// least-loaded relay selection, the saturation metrics store, and the sync
// admission queue.
package redisdir

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	agentTTL   = 300 * time.Second
	relayTTL   = 10 * time.Second
	historyMax = 720 // ~1h of 5s samples
)

// NewClient dials Redis from a URL, matching the construct-then-ping pattern
// used across the corpus for every external dependency.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redisdir: parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisdir: pinging redis: %w", err)
	}
	return client, nil
}

// AgentRecord describes one endpoint agent entry in agent:<id>.
type AgentRecord struct {
	AgentID string
	RelayID string

	Hostname string
	Info     map[string]string
	Services map[string]int

	// RelayURL is the relay's public URL. Only /v1/private/tunnel/register
	// writes it (together with relay_id, internal_url and server_ip).
	RelayURL string
	// InternalURL is the overlay-network address the Manager uses to reach
	// this agent's specific relay, bypassing the public ingress.
	InternalURL string
	// ServerIP is the relay container's internal address, used as a
	// fallback dial target when the relay's own heartbeat record is stale.
	ServerIP string
}

// AgentDirectory is the agent:<id> keyspace: which relay an agent is
// currently attached to, refreshed on a TTL so a crashed relay's agents
// silently expire out of the directory.
type AgentDirectory struct {
	rdb redis.UniversalClient
}

func NewAgentDirectory(rdb redis.UniversalClient) *AgentDirectory {
	return &AgentDirectory{rdb: rdb}
}

func agentKey(agentID string) string { return "agent:" + agentID }

// PutRegistration writes the fields an agent's own register_agent frame
// carries (hostname, info, services) without touching the relay_url/
// server_ip pair that only /v1/private/tunnel/register may set.
func (d *AgentDirectory) PutRegistration(ctx context.Context, agentID, relayID, hostname string, info map[string]string, services map[string]int) error {
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("redisdir: encoding agent info %s: %w", agentID, err)
	}
	servicesJSON, err := json.Marshal(services)
	if err != nil {
		return fmt.Errorf("redisdir: encoding agent services %s: %w", agentID, err)
	}

	key := agentKey(agentID)
	pipe := d.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"relay_id": relayID,
		"hostname": hostname,
		"info":     string(infoJSON),
		"services": string(servicesJSON),
	})
	pipe.Expire(ctx, key, agentTTL)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redisdir: registering agent %s: %w", agentID, err)
	}
	return nil
}

// Touch refreshes an agent's TTL without rewriting its payload, used by the
// relay's periodic re-registration heartbeat for already-connected agents.
func (d *AgentDirectory) Touch(ctx context.Context, agentID string) error {
	ok, err := d.rdb.Expire(ctx, agentKey(agentID), agentTTL).Result()
	if err != nil {
		return fmt.Errorf("redisdir: touch agent %s: %w", agentID, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SetRelayAssignment writes the fields /v1/private/tunnel/register owns
// (relay_url, internal_url, server_ip) without disturbing whatever
// hostname/info/services the agent's own register_agent frame already
// recorded.
func (d *AgentDirectory) SetRelayAssignment(ctx context.Context, agentID, relayID, relayURL, internalURL, serverIP string) error {
	key := agentKey(agentID)
	pipe := d.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"relay_id":     relayID,
		"relay_url":    relayURL,
		"internal_url": internalURL,
		"server_ip":    serverIP,
	})
	pipe.Expire(ctx, key, agentTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redisdir: assign relay for agent %s: %w", agentID, err)
	}
	return nil
}

// Get returns the current directory entry for an agent, or ErrNotFound if
// it has expired or was never registered.
func (d *AgentDirectory) Get(ctx context.Context, agentID string) (AgentRecord, error) {
	res, err := d.rdb.HGetAll(ctx, agentKey(agentID)).Result()
	if err != nil {
		return AgentRecord{}, fmt.Errorf("redisdir: get agent %s: %w", agentID, err)
	}
	if len(res) == 0 {
		return AgentRecord{}, ErrNotFound
	}

	rec := AgentRecord{
		AgentID:     agentID,
		RelayID:     res["relay_id"],
		Hostname:    res["hostname"],
		RelayURL:    res["relay_url"],
		InternalURL: res["internal_url"],
		ServerIP:    res["server_ip"],
	}
	if v := res["info"]; v != "" {
		_ = json.Unmarshal([]byte(v), &rec.Info)
	}
	if v := res["services"]; v != "" {
		_ = json.Unmarshal([]byte(v), &rec.Services)
	}
	return rec, nil
}

// Delete removes an agent's directory entry, used when an agent
// disconnects cleanly.
func (d *AgentDirectory) Delete(ctx context.Context, agentID string) error {
	if err := d.rdb.Del(ctx, agentKey(agentID)).Err(); err != nil {
		return fmt.Errorf("redisdir: delete agent %s: %w", agentID, err)
	}
	return nil
}

// List scans the full agent:* keyspace. Used when Redis is reachable; when
// it is not, callers fall back to a relay's local in-memory registry per
// the degraded-mode behavior this system specifies.
func (d *AgentDirectory) List(ctx context.Context) ([]AgentRecord, error) {
	var records []AgentRecord
	iter := d.rdb.Scan(ctx, 0, "agent:*", 100).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len("agent:"):]
		rec, err := d.Get(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisdir: scanning agents: %w", err)
	}
	return records, nil
}

// RelayRecord is one relay's heartbeat entry in tunnel:<relay_uuid>.
type RelayRecord struct {
	RelayID        string
	PublicURL      string
	InternalURL    string
	Hostname       string
	AgentCount     int
	TunnelCount    int
	MaxConnections int
}

// RelayDirectory is the tunnel:<relay_uuid> keyspace, refreshed every
// RELAY_HEARTBEAT_INTERVAL_SECONDS and expiring after the fixed relayTTL
// (10s) so a dead relay drops out automatically.
type RelayDirectory struct {
	rdb redis.UniversalClient
}

func NewRelayDirectory(rdb redis.UniversalClient) *RelayDirectory {
	return &RelayDirectory{rdb: rdb}
}

func relayKey(relayID string) string { return "tunnel:" + relayID }

// Heartbeat publishes a relay's current load, refreshing its TTL.
func (d *RelayDirectory) Heartbeat(ctx context.Context, rec RelayRecord) error {
	key := relayKey(rec.RelayID)
	pipe := d.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"public_url":      rec.PublicURL,
		"internal_url":    rec.InternalURL,
		"hostname":        rec.Hostname,
		"agent_count":     rec.AgentCount,
		"tunnel_count":    rec.TunnelCount,
		"max_connections": rec.MaxConnections,
	})
	pipe.Expire(ctx, key, relayTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redisdir: relay heartbeat %s: %w", rec.RelayID, err)
	}
	return nil
}

// Get returns a single relay's current directory entry, or
// ErrNoRelaysAvailable if its heartbeat has expired or it was never
// registered.
func (d *RelayDirectory) Get(ctx context.Context, relayID string) (RelayRecord, error) {
	res, err := d.rdb.HGetAll(ctx, relayKey(relayID)).Result()
	if err != nil {
		return RelayRecord{}, fmt.Errorf("redisdir: get relay %s: %w", relayID, err)
	}
	if len(res) == 0 {
		return RelayRecord{}, ErrNoRelaysAvailable
	}
	return recordFromHash(relayID, res), nil
}

// List returns all live relays.
func (d *RelayDirectory) List(ctx context.Context) ([]RelayRecord, error) {
	var out []RelayRecord
	iter := d.rdb.Scan(ctx, 0, "tunnel:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		res, err := d.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redisdir: reading relay %s: %w", key, err)
		}
		if len(res) == 0 {
			continue
		}
		out = append(out, recordFromHash(key[len("tunnel:"):], res))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisdir: scanning relays: %w", err)
	}
	return out, nil
}

func recordFromHash(relayID string, res map[string]string) RelayRecord {
	return RelayRecord{
		RelayID:        relayID,
		PublicURL:      res["public_url"],
		InternalURL:    res["internal_url"],
		Hostname:       res["hostname"],
		AgentCount:     atoiSafe(res["agent_count"]),
		TunnelCount:    atoiSafe(res["tunnel_count"]),
		MaxConnections: atoiSafe(res["max_connections"]),
	}
}

// LeastLoaded picks the relay with the fewest combined agents+tunnels,
// breaking ties lexicographically on relay ID for determinism.
func (d *RelayDirectory) LeastLoaded(ctx context.Context) (RelayRecord, error) {
	relays, err := d.List(ctx)
	if err != nil {
		return RelayRecord{}, err
	}
	if len(relays) == 0 {
		return RelayRecord{}, ErrNoRelaysAvailable
	}
	sort.Slice(relays, func(i, j int) bool {
		li := relays[i].AgentCount + relays[i].TunnelCount
		lj := relays[j].AgentCount + relays[j].TunnelCount
		if li != lj {
			return li < lj
		}
		return relays[i].RelayID < relays[j].RelayID
	})
	return relays[0], nil
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
