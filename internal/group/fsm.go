package group

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

const (
	opAppend = "append"
	opDrain  = "drain"
)

// command is the payload raft.Log.Data carries. append pushes one
// canonical record to the tail of the pending queue; drain pops and
// returns every record currently in the queue. Both are applied in log
// order, which is what makes drain itself a replicated operation
// (spec.md §4.1): every replica advances its drain cursor identically.
type command struct {
	Op     string `json:"op"`
	Record string `json:"record,omitempty"`
}

// fsm is the Raft finite state machine backing one Replication Group's
// pending-queries queue.
type fsm struct {
	mu      sync.Mutex
	pending []string
}

func newFSM() *fsm {
	return &fsm{}
}

func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("group: decode fsm command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opAppend:
		f.pending = append(f.pending, cmd.Record)
		return nil
	case opDrain:
		drained := make([]string, len(f.pending))
		copy(drained, f.pending)
		f.pending = f.pending[:0]
		return drained
	default:
		return fmt.Errorf("group: unknown fsm command %q", cmd.Op)
	}
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pending := make([]string, len(f.pending))
	copy(pending, f.pending)
	return &fsmSnapshot{pending: pending}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var pending []string
	if err := json.NewDecoder(rc).Decode(&pending); err != nil {
		return fmt.Errorf("group: restore snapshot: %w", err)
	}

	f.mu.Lock()
	f.pending = pending
	f.mu.Unlock()
	return nil
}

type fsmSnapshot struct {
	pending []string
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	data, err := json.Marshal(s.pending)
	if err != nil {
		sink.Cancel()
		return err
	}
	if _, err := sink.Write(data); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
