// Package broker is the hand-assembled gRPC surface for BrokerService:
// SendTransaction and GetUpdates, exactly as spec.md §6 describes them.
// There is no .proto file — the wire payloads are already opaque
// byte/string blobs in the spec, so the messages below are plain structs
// carried over the msgpack codec in internal/wire, and the service
// plumbing below is written in the same shape protoc-gen-go-grpc would
// generate from one.
package broker

// TransactionRequest carries a self-describing, JSON-encoded transaction
// object as its Data payload (spec.md §6).
type TransactionRequest struct {
	Data []byte `msgpack:"data"`
}

// TransactionResponse carries the Processor's JSON-encoded response.
// Errors are carried in the body, never as a transport error (spec.md §4.5).
type TransactionResponse struct {
	Data []byte `msgpack:"data"`
}

// UpdatesRequest names the replication group to drain.
type UpdatesRequest struct {
	Topic     string `msgpack:"topic"`
	Partition string `msgpack:"partition"`
}

// Query is one committed canonical record, streamed in commit order.
type Query struct {
	Query string `msgpack:"query"`
}
