package group

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"go.uber.org/zap"

	"github.com/adithya5768/distributed-message-queue/internal/transport"
)

func newSingleNodeGroup(t *testing.T, raftPort string) *Group {
	t.Helper()

	dir, err := os.MkdirTemp("", "group-test-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	hub, err := transport.NewHub("127.0.0.1:"+raftPort, zap.NewNop())
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	t.Cleanup(func() { hub.Close() })

	g, err := New(Config{
		Topic:        "orders",
		Partition:    "1",
		LocalAddr:    "127.0.0.1:" + raftPort,
		DataDir:      dir,
		Hub:          hub,
		Logger:       zap.NewNop(),
		ApplyTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new group: %v", err)
	}
	t.Cleanup(func() { g.Shutdown() })

	waitForLeader(t, g)
	return g
}

func waitForLeader(t *testing.T, g *Group) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		g.Tick()
		if g.HasLeader() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("group never acquired a leader")
}

func TestGroupAppendThenDrain(t *testing.T) {
	g := newSingleNodeGroup(t, "19101")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := g.Append(ctx, "record-1"); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := g.Append(ctx, "record-2"); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	records, err := g.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(records) != 2 || records[0] != "record-1" || records[1] != "record-2" {
		t.Fatalf("unexpected drained records: %v", records)
	}

	again, err := g.Drain(ctx)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected empty second drain, got %v", again)
	}
}

// newCluster starts a three-node Replication Group for (orders, 1) on
// loopback raft ports base, base+1, base+2 and waits for a leader.
func newCluster(t *testing.T, base int) []*Group {
	t.Helper()

	addrs := make([]string, 3)
	for i := range addrs {
		addrs[i] = "127.0.0.1:" + strconv.Itoa(base+i)
	}

	groups := make([]*Group, 3)
	for i, self := range addrs {
		dir, err := os.MkdirTemp("", "group-cluster-test-*")
		if err != nil {
			t.Fatalf("mkdir temp: %v", err)
		}
		t.Cleanup(func() { os.RemoveAll(dir) })

		hub, err := transport.NewHub(self, zap.NewNop())
		if err != nil {
			t.Fatalf("new hub %s: %v", self, err)
		}
		t.Cleanup(func() { hub.Close() })

		var peers []string
		for _, a := range addrs {
			if a != self {
				peers = append(peers, a)
			}
		}

		g, err := New(Config{
			Topic:        "orders",
			Partition:    "1",
			LocalAddr:    self,
			PeerAddrs:    peers,
			DataDir:      dir,
			Hub:          hub,
			Logger:       zap.NewNop(),
			ApplyTimeout: 2 * time.Second,
		})
		if err != nil {
			t.Fatalf("new group %s: %v", self, err)
		}
		t.Cleanup(func() { g.Shutdown() })

		groups[i] = g
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		for _, g := range groups {
			g.Tick()
		}
		leaderCount := 0
		for _, g := range groups {
			if g.raft.State() == raft.Leader {
				leaderCount++
			}
		}
		if leaderCount == 1 {
			return groups
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("cluster never elected exactly one leader")
	return nil
}

// TestGroupDrainForwardsFromFollowerToLeader exercises the drain-forward
// side channel directly: appends go through whichever node is leader, and
// GetUpdates (Drain) is called on a different node, which must forward to
// the leader rather than fail.
func TestGroupDrainForwardsFromFollowerToLeader(t *testing.T) {
	groups := newCluster(t, 19200)

	var leader, follower *Group
	for _, g := range groups {
		if g.raft.State() == raft.Leader {
			leader = g
		} else if follower == nil {
			follower = g
		}
	}
	if leader == nil || follower == nil {
		t.Fatal("expected one leader and at least one follower")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := leader.Append(ctx, "record-1"); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := follower.Drain(ctx)
	if err != nil {
		t.Fatalf("drain on follower: %v", err)
	}
	if len(records) != 1 || records[0] != "record-1" {
		t.Fatalf("unexpected drained records from follower: %v", records)
	}

	again, err := leader.Drain(ctx)
	if err != nil {
		t.Fatalf("second drain on leader: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected empty drain after follower already drained, got %v", again)
	}
}

func TestGroupDrainOrderingAcrossMultipleAppends(t *testing.T) {
	g := newSingleNodeGroup(t, "19102")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for _, rec := range []string{"a", "b", "c"} {
		if err := g.Append(ctx, rec); err != nil {
			t.Fatalf("append %s: %v", rec, err)
		}
	}

	records, err := g.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, rec := range want {
		if records[i] != rec {
			t.Fatalf("record %d: got %q want %q", i, records[i], rec)
		}
	}
}
