// Package transport implements C2, the shared transport and poller: one
// TCP listener and one outbound connection per peer, carrying every Raft
// group's traffic in this process, demultiplexed by a group-key envelope
// (spec.md §4.2).
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// tickConcurrency bounds how many groups are ticked at once per pass, the
// same limited-parallelism shape as ParallelRaftEngine.Tick.
const tickConcurrency = 8

// Tickable is anything the Hub's loop thread drives once per pass. group.Group
// implements it; the Hub deliberately has no import-time dependency on the
// group package.
type Tickable interface {
	Tick()
}

// Registry hands the Hub a point-in-time snapshot of the groups it should
// tick. The snapshot-per-pass contract is what makes ReplicaHandle
// additions during an iteration safe (spec.md §9).
type Registry interface {
	Snapshot() []Tickable
}

// Hub is the process-wide shared transport singleton.
type Hub struct {
	logger   *zap.Logger
	selfAddr addr
	listener net.Listener

	peersMu sync.Mutex
	peers   map[string]*peerLink

	groupsMu sync.Mutex
	groups   map[string]chan net.Conn
}

// NewHub starts listening on raftAddr for inbound peer connections.
func NewHub(raftAddr string, logger *zap.Logger) (*Hub, error) {
	ln, err := net.Listen("tcp", raftAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", raftAddr, err)
	}

	// A wildcard port (":0", used by tests) only resolves once the
	// listener is bound; substitute the actual port so SelfAddr is dialable.
	selfAddr := raftAddr
	if strings.HasSuffix(raftAddr, ":0") {
		if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
			selfAddr = raftAddr[:len(raftAddr)-len(":0")] + ":" + strconv.Itoa(tcpAddr.Port)
		}
	}

	h := &Hub{
		logger:   logger,
		selfAddr: addr(selfAddr),
		listener: ln,
		peers:    make(map[string]*peerLink),
		groups:   make(map[string]chan net.Conn),
	}

	go h.acceptLoop()
	return h, nil
}

// SelfAddr is this broker's raft address, as dialed by peers.
func (h *Hub) SelfAddr() string { return string(h.selfAddr) }

// Close stops accepting new peer connections.
func (h *Hub) Close() error {
	return h.listener.Close()
}

// Run is the single dedicated loop thread C2 requires: it ticks every
// currently registered group, once per interval, over a fresh snapshot
// taken at the start of each pass (spec.md §4.2, §9). Inbound frame
// demultiplexing happens independently in per-connection goroutines
// (acceptLoop/demux), so this loop never blocks on network I/O — the
// closest Go idiom to "poll transport with zero timeout, then tick every
// group" without hand-rolling a single-threaded event loop.
func (h *Hub) Run(ctx context.Context, registry Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := registry.Snapshot()
			if len(snapshot) == 0 {
				continue
			}

			g, _ := errgroup.WithContext(ctx)
			g.SetLimit(tickConcurrency)
			for _, tickable := range snapshot {
				tickable := tickable
				g.Go(func() error {
					tickable.Tick()
					return nil
				})
			}
			g.Wait()
		}
	}
}

// RegisterGroup returns the channel a StreamLayer.Accept for groupKey
// should read newly-demultiplexed inbound connections from, plus an
// unregister func to call on teardown.
func (h *Hub) RegisterGroup(groupKey string) (accept <-chan net.Conn, unregister func()) {
	ch := make(chan net.Conn, 4)

	h.groupsMu.Lock()
	h.groups[groupKey] = ch
	h.groupsMu.Unlock()

	return ch, func() {
		h.groupsMu.Lock()
		delete(h.groups, groupKey)
		h.groupsMu.Unlock()
	}
}

// Dial opens (or reuses) the outbound connection to peerAddr and returns a
// virtual connection scoped to groupKey over it. The returned conn is
// registered on the link so replies arriving on the shared socket are
// routed back to it rather than treated as a fresh inbound stream.
func (h *Hub) Dial(peerAddr, groupKey string, timeout time.Duration) (net.Conn, error) {
	link, err := h.peerLinkFor(peerAddr, timeout)
	if err != nil {
		return nil, err
	}

	vc := newVirtualConn(groupKey, h.selfAddr, addr(peerAddr), link)
	link.registerDial(groupKey, vc)
	vc.closeHook = func() { link.unregisterDial(groupKey) }
	return vc, nil
}

func (h *Hub) peerLinkFor(peerAddr string, timeout time.Duration) (*peerLink, error) {
	h.peersMu.Lock()
	link, ok := h.peers[peerAddr]
	h.peersMu.Unlock()
	if ok {
		return link, nil
	}

	conn, err := net.DialTimeout("tcp", peerAddr, timeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", peerAddr, err)
	}

	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	if existing, ok := h.peers[peerAddr]; ok {
		conn.Close()
		return existing, nil
	}
	link = &peerLink{conn: conn}
	h.peers[peerAddr] = link
	go h.demux(conn, addr(peerAddr), link)
	return link, nil
}

func (h *Hub) acceptLoop() {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			return
		}
		go h.demux(conn, addr(conn.RemoteAddr().String()), nil)
	}
}

// demux reads frames off one physical connection for the lifetime of that
// connection. dialLink is non-nil when this physical connection is one
// this broker dialed out (peerLinkFor): the socket is bidirectional, so
// replies to requests we sent arrive here and must be routed back to the
// virtualConn Dial returned for that group, via dialLink's registry,
// rather than synthesized as a new inbound stream.
//
// When dialLink is nil (acceptLoop's inbound connections), a connection
// may still carry frames for many groups; the first frame seen for a
// given group on this connection creates that group's virtual connection
// and hands it to the group's Accept channel.
func (h *Hub) demux(conn net.Conn, remote addr, dialLink *peerLink) {
	conns := make(map[string]*virtualConn)
	writeLink := dialLink
	if writeLink == nil {
		writeLink = &peerLink{conn: conn}
	}

	defer func() {
		conn.Close()
		for _, vc := range conns {
			vc.Close()
		}
	}()

	for {
		groupKey, payload, err := readFrame(conn)
		if err != nil {
			return
		}

		if dialLink != nil {
			vc, ok := dialLink.dialConn(groupKey)
			if !ok {
				h.logger.Warn("transport: reply for unregistered dialed group, dropping frame",
					zap.String("group", groupKey))
				continue
			}
			vc.deliver(payload)
			continue
		}

		vc, ok := conns[groupKey]
		if !ok {
			h.groupsMu.Lock()
			acceptCh, known := h.groups[groupKey]
			h.groupsMu.Unlock()
			if !known {
				// No ReplicaHandle for this group yet; drop. The peer's
				// Raft instance will retry.
				continue
			}

			vc = newVirtualConn(groupKey, h.selfAddr, remote, writeLink)
			conns[groupKey] = vc

			select {
			case acceptCh <- vc:
			default:
				h.logger.Warn("transport: accept channel full, dropping connection",
					zap.String("group", groupKey))
				vc.Close()
				delete(conns, groupKey)
				continue
			}
		}

		vc.deliver(payload)
	}
}
