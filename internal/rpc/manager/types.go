// Package manager is the hand-assembled gRPC client surface for
// ManagerService, the controller's API this broker consumes
// (spec.md §4.4, §6). The controller process itself is an external
// collaborator; the server-side plumbing in this package is used only by
// test doubles that stand in for it.
package manager

// HeartBeat is the HealthCheck request.
type HeartBeat struct {
	BrokerID int64 `msgpack:"broker_id"`
}

// Ack is the HealthCheck response. Its presence (no RPC error) is the
// signal; it carries no fields of its own.
type Ack struct{}

// BrokerDetails is the RegisterBroker request.
type BrokerDetails struct {
	Host     string `msgpack:"host"`
	Port     string `msgpack:"port"`
	Token    string `msgpack:"token"`
	RaftPort string `msgpack:"raft_port"`
}

// RegisterStatus is the RegisterBroker response.
type RegisterStatus struct {
	Status bool `msgpack:"status"`
}
