package broker

// storedMessage mirrors one entry of a partition's in-memory message
// buffer, kept for observability only — the durable record of a publish
// is the pair of canonical INSERT strings appended to the owning
// Replication Group, not this buffer (spec.md §3, §9).
type storedMessage struct {
	Message     string `json:"message"`
	Subscribers int    `json:"subscribers"`
}

// partitionBuffer is one (topic, partition-id)'s non-replicated scratch
// buffer, installed wholesale by Init and appended to by a local publish.
type partitionBuffer struct {
	Messages []storedMessage `json:"messages"`
}

// envelope reads only the transaction discriminator; the rest of the
// payload is re-unmarshaled into a kind-specific struct once the
// discriminator is known (spec.md §4.3).
type envelope struct {
	Req string `json:"req"`
}

type initPayload struct {
	BrokerID int64                               `json:"broker_id"`
	Topics   map[string]map[string]partitionBuffer `json:"topics"`
	Producers map[string]producerBinding          `json:"producers"`
}

type producerBinding struct {
	Topic string `json:"topic"`
}

type createTopicPayload struct {
	Topic string `json:"topic"`
}

type producerRegisterPayload struct {
	Topic      string `json:"topic"`
	ProducerID int64  `json:"producer_id"`
}

type replicaHandlePayload struct {
	TopicPartitions [][2]string `json:"topic_partitions"`
	OtherRaftports  [][]string  `json:"other_raftports"`
}

type enqueuePayload struct {
	ProducerID int64  `json:"producer_id"`
	Topic      string `json:"topic"`
	Message    string `json:"message"`
}

// txnResult is the JSON shape every transaction response takes. Omitted
// fields marshal to `{}`, matching process_transaction's bare success
// return for Init/CreateTopic/ProducerRegister/ReplicaHandle.
type txnResult struct {
	Status  string   `json:"status,omitempty"`
	Message string   `json:"message,omitempty"`
	Topics  []string `json:"topics,omitempty"`
}

func successResult(message string) txnResult {
	return txnResult{Status: "success", Message: message}
}

func failureResult(message string) txnResult {
	return txnResult{Status: "failure", Message: message}
}
