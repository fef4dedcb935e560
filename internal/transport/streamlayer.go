package transport

import (
	"net"
	"time"

	"github.com/hashicorp/raft"
)

// StreamLayer implements raft.StreamLayer for one Raft group, riding on the
// Hub's shared peer connections.
type StreamLayer struct {
	hub        *Hub
	groupKey   string
	accept     <-chan net.Conn
	unregister func()
}

// NewStreamLayer registers groupKey with hub and returns the per-group
// raft.StreamLayer.
func NewStreamLayer(hub *Hub, groupKey string) *StreamLayer {
	accept, unregister := hub.RegisterGroup(groupKey)
	return &StreamLayer{hub: hub, groupKey: groupKey, accept: accept, unregister: unregister}
}

func (s *StreamLayer) Accept() (net.Conn, error) {
	conn, ok := <-s.accept
	if !ok {
		return nil, net.ErrClosed
	}
	return conn, nil
}

func (s *StreamLayer) Close() error {
	s.unregister()
	return nil
}

func (s *StreamLayer) Addr() net.Addr {
	return addr(s.hub.SelfAddr())
}

func (s *StreamLayer) Dial(address raft.ServerAddress, timeout time.Duration) (net.Conn, error) {
	return s.hub.Dial(string(address), s.groupKey, timeout)
}
