package group

import "errors"

// Errors returned by Append/Drain, per spec.md §4.1.
var (
	// ErrNotReady means the group has no leader within the caller's
	// timeout.
	ErrNotReady = errors.New("group: not ready")
	// ErrNotLeader means this node is not leader. Append does not forward
	// to the leader; Drain does (see Group.forwardDrain).
	ErrNotLeader = errors.New("group: not leader")
	// ErrConflict means a concurrent reconfiguration aborted the command.
	ErrConflict = errors.New("group: conflict")
	// ErrConsensusTimeout means the consensus library itself reported a
	// timeout applying the command.
	ErrConsensusTimeout = errors.New("group: consensus timeout")
)
