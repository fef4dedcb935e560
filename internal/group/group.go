// Package group implements C1, the Replication Group: one Raft-backed
// consensus instance per (topic, partition-id), exposing append and drain
// over a replicated pending-queries queue (spec.md §4.1).
package group

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"go.uber.org/zap"

	"github.com/adithya5768/distributed-message-queue/internal/transport"
)

// Config describes one Replication Group.
type Config struct {
	Topic     string
	Partition string // this broker's broker-id, as a string

	// LocalAddr is this broker's raft address (host:raft-port). It
	// doubles as the raft.ServerID, since peers are named only by their
	// raft port in spec.md's ReplicaHandle transaction.
	LocalAddr string
	// PeerAddrs are the raft addresses of the other replicas of this
	// partition, as supplied by ReplicaHandle.
	PeerAddrs []string

	DataDir string
	Hub     *transport.Hub
	Logger  *zap.Logger

	// ApplyTimeout bounds how long Append/Drain wait to enqueue a command
	// before giving up with ErrConsensusTimeout. Zero selects a default.
	ApplyTimeout time.Duration
}

// Group is one replicated log for a single (topic, partition-id).
type Group struct {
	topic     string
	partition string
	logger    *zap.Logger

	raft      *raft.Raft
	transport *raft.NetworkTransport
	fsm       *fsm

	applyTimeout time.Duration

	mu         sync.RWMutex
	leaderAddr string

	// Drain's pop is a replicated command and so can only be submitted on
	// the leader (raft.Apply on a follower just returns ErrNotLeader).
	// hub/fwdKey/fwdUnregister expose a second, non-raft side channel
	// riding the same multiplexed peer connection so a follower's Drain
	// can forward the request to the current leader and get back the
	// records the leader's own local drain produced, the Go equivalent of
	// PySyncObj automatically forwarding a @replicated call made on a
	// follower to its leader.
	hub           *transport.Hub
	fwdKey        string
	fwdUnregister func()

	forwardMu sync.Mutex
	fwdConn   net.Conn
	fwdLeader string
}

// New creates and bootstraps a Replication Group. Bootstrap is a no-op
// (returns raft.ErrCantBootstrap, swallowed) if this group was already
// bootstrapped in a prior process lifetime sharing the same data dir.
func New(cfg Config) (*Group, error) {
	groupKey := transport.GroupKey(cfg.Topic, cfg.Partition)
	dir := filepath.Join(cfg.DataDir, "raft", cfg.Topic, cfg.Partition)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("group: create data dir: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(dir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("group: open log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(dir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("group: open stable store: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(dir, 2, io.Discard)
	if err != nil {
		return nil, fmt.Errorf("group: open snapshot store: %w", err)
	}

	streamLayer := transport.NewStreamLayer(cfg.Hub, groupKey)
	// Pool size 1: the Hub already multiplexes every group's traffic over
	// one physical socket per peer, so raft pooling more than one virtual
	// connection per (group, peer) would race against the dial-side
	// registry that routes replies back to the conn that sent the
	// request (internal/transport.peerLink.dialConns is keyed by group,
	// one entry at a time).
	trans := raft.NewNetworkTransport(streamLayer, 1, 2*time.Second, io.Discard)

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.LocalAddr)
	raftConfig.HeartbeatTimeout = 100 * time.Millisecond
	raftConfig.ElectionTimeout = 100 * time.Millisecond
	raftConfig.LeaderLeaseTimeout = 50 * time.Millisecond
	raftConfig.CommitTimeout = 10 * time.Millisecond
	// raftConfig.Logger is left at hashicorp/raft's own hclog default; zap
	// logs only our own decisions (leader changes, shutdown errors, etc).

	machine := newFSM()

	ra, err := raft.NewRaft(raftConfig, machine, logStore, stableStore, snapshotStore, trans)
	if err != nil {
		return nil, fmt.Errorf("group: create raft: %w", err)
	}

	servers := []raft.Server{{ID: raft.ServerID(cfg.LocalAddr), Address: raft.ServerAddress(cfg.LocalAddr)}}
	for _, peer := range cfg.PeerAddrs {
		servers = append(servers, raft.Server{ID: raft.ServerID(peer), Address: raft.ServerAddress(peer)})
	}
	future := ra.BootstrapCluster(raft.Configuration{Servers: servers})
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return nil, fmt.Errorf("group: bootstrap: %w", err)
	}

	applyTimeout := cfg.ApplyTimeout
	if applyTimeout == 0 {
		applyTimeout = 2 * time.Second
	}

	fwdKey := groupKey + "#drain"
	fwdAccept, fwdUnregister := cfg.Hub.RegisterGroup(fwdKey)

	g := &Group{
		topic:         cfg.Topic,
		partition:     cfg.Partition,
		logger:        cfg.Logger,
		raft:          ra,
		transport:     trans,
		fsm:           machine,
		applyTimeout:  applyTimeout,
		hub:           cfg.Hub,
		fwdKey:        fwdKey,
		fwdUnregister: fwdUnregister,
	}
	go g.serveDrainForwards(fwdAccept)
	return g, nil
}

// Append submits record to consensus and returns once a majority commits
// it (spec.md §4.1).
func (g *Group) Append(ctx context.Context, record string) error {
	return g.apply(ctx, command{Op: opAppend, Record: record}, nil)
}

// Drain atomically returns and removes the current prefix of
// committed-but-undrained records, oldest first. The pop is a replicated
// command, so on a follower it is forwarded to the current leader rather
// than attempted locally (raft.Apply on a follower only fails).
func (g *Group) Drain(ctx context.Context) ([]string, error) {
	if g.raft.State() == raft.Leader {
		return g.localDrain(ctx)
	}

	leaderAddr, _ := g.raft.LeaderWithID()
	if leaderAddr == "" {
		return nil, ErrNotReady
	}
	return g.forwardDrain(ctx, string(leaderAddr))
}

// localDrain submits the replicated pop command directly; only the leader
// can call this (raft.Apply fails otherwise).
func (g *Group) localDrain(ctx context.Context) ([]string, error) {
	var records []string
	err := g.apply(ctx, command{Op: opDrain}, &records)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []string{}
	}
	return records, nil
}

// drainForwardResponse is the wire shape for the follower-to-leader drain
// side channel: a plain JSON message, framed with a 4-byte length prefix
// since it rides a byte stream rather than the discrete-frame accept path
// raft's own RPCs get from NetworkTransport.
type drainForwardResponse struct {
	Records []string `json:"records"`
	Error   string   `json:"error,omitempty"`
}

// forwardDrain asks leaderAddr's Group to perform the replicated drain and
// returns its result. The connection is dialed once per leader and reused
// across calls, serialized by forwardMu so only one request is ever
// in-flight on it at a time.
func (g *Group) forwardDrain(ctx context.Context, leaderAddr string) ([]string, error) {
	g.forwardMu.Lock()
	defer g.forwardMu.Unlock()

	conn, err := g.dialForwardLocked(leaderAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConsensusTimeout, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(g.applyTimeout)
	}
	conn.SetDeadline(deadline)

	if err := writeForwardMsg(conn, nil); err != nil {
		g.resetForwardLocked()
		return nil, fmt.Errorf("%w: %v", ErrConsensusTimeout, err)
	}
	data, err := readForwardMsg(conn)
	if err != nil {
		g.resetForwardLocked()
		return nil, fmt.Errorf("%w: %v", ErrConsensusTimeout, err)
	}

	var resp drainForwardResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConsensusTimeout, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrConsensusTimeout, resp.Error)
	}
	if resp.Records == nil {
		resp.Records = []string{}
	}
	return resp.Records, nil
}

func (g *Group) dialForwardLocked(leaderAddr string) (net.Conn, error) {
	if g.fwdConn != nil && g.fwdLeader == leaderAddr {
		return g.fwdConn, nil
	}
	g.resetForwardLocked()

	conn, err := g.hub.Dial(leaderAddr, g.fwdKey, g.applyTimeout)
	if err != nil {
		return nil, err
	}
	g.fwdConn = conn
	g.fwdLeader = leaderAddr
	return conn, nil
}

func (g *Group) resetForwardLocked() {
	if g.fwdConn != nil {
		g.fwdConn.Close()
		g.fwdConn = nil
	}
	g.fwdLeader = ""
}

// serveDrainForwards answers this group's drain-forward side channel for
// as long as the group lives; only meaningful while this instance is
// leader, but it listens unconditionally since leadership can change
// between a follower resolving the leader address and connecting to it.
func (g *Group) serveDrainForwards(accept <-chan net.Conn) {
	for conn := range accept {
		go g.handleDrainForwardConn(conn)
	}
}

func (g *Group) handleDrainForwardConn(conn net.Conn) {
	defer conn.Close()

	for {
		if _, err := readForwardMsg(conn); err != nil {
			return
		}

		var resp drainForwardResponse
		if g.raft.State() != raft.Leader {
			resp.Error = ErrNotLeader.Error()
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), g.applyTimeout)
			records, err := g.localDrain(ctx)
			cancel()
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.Records = records
			}
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		if err := writeForwardMsg(conn, data); err != nil {
			return
		}
	}
}

func (g *Group) apply(ctx context.Context, cmd command, out *[]string) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("group: encode fsm command: %w", err)
	}

	future := g.raft.Apply(data, g.applyTimeout)

	errCh := make(chan error, 1)
	go func() { errCh <- future.Error() }()

	select {
	case err := <-errCh:
		if err != nil {
			return translateApplyErr(err)
		}
		if out != nil {
			if records, ok := future.Response().([]string); ok {
				*out = records
			}
		}
		return nil
	case <-ctx.Done():
		return ErrNotReady
	}
}

func translateApplyErr(err error) error {
	switch {
	case err == nil:
		return nil
	case err == raft.ErrNotLeader, err == raft.ErrLeader:
		return ErrNotLeader
	case err == raft.ErrLeadershipLost, err == raft.ErrAbortedByRestore:
		return ErrConflict
	case err == raft.ErrRaftShutdown:
		return ErrNotReady
	case err == raft.ErrEnqueueTimeout:
		return ErrConsensusTimeout
	default:
		return fmt.Errorf("%w: %v", ErrConsensusTimeout, err)
	}
}

// Tick refreshes this group's cached leader snapshot. Unlike a hand-rolled
// consensus core, hashicorp/raft drives its own election/heartbeat timers
// internally on a per-instance goroutine; the shared loop's per-group tick
// is therefore bookkeeping (spec.md §4.1, §4.2), not the consensus step
// itself — the step happens inside the library.
func (g *Group) Tick() {
	leaderAddr, _ := g.raft.LeaderWithID()
	g.mu.Lock()
	g.leaderAddr = string(leaderAddr)
	g.mu.Unlock()
}

// HasLeader reports whether this group last observed a leader.
func (g *Group) HasLeader() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.leaderAddr != ""
}

// Topic and Partition identify this group.
func (g *Group) Topic() string     { return g.topic }
func (g *Group) Partition() string { return g.partition }

// Shutdown stops the underlying raft instance.
func (g *Group) Shutdown() error {
	g.fwdUnregister()
	g.forwardMu.Lock()
	g.resetForwardLocked()
	g.forwardMu.Unlock()
	return g.raft.Shutdown().Error()
}
