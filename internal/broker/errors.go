package broker

// Kind names one of the error taxonomy entries from spec.md §7. The kind
// itself is never serialized to the caller — only Message is, which is
// why the literal text below is load-bearing for producer clients.
type Kind string

const (
	KindLockBusy           Kind = "LockBusy"
	KindNoSuchTopic        Kind = "NoSuchTopic"
	KindNoSuchProducer     Kind = "NoSuchProducer"
	KindWrongTopic         Kind = "WrongTopic"
	KindGroupNotReady      Kind = "GroupNotReady"
	KindConsensusTimeout   Kind = "ConsensusTimeout"
	KindInvalidTransaction Kind = "InvalidTransaction"
)

// Error is a typed, user-facing publish/transaction failure. Its Message
// is exactly what reaches the wire in the response body's "message" field.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func errLockBusy() *Error {
	return &Error{Kind: KindLockBusy, Message: "Lock cannot be acquired."}
}

func errNoSuchTopic(topic string) *Error {
	return &Error{Kind: KindNoSuchTopic, Message: "Topic " + topic + " doesn't exist."}
}

func errNoSuchProducer() *Error {
	return &Error{Kind: KindNoSuchProducer, Message: "Producer doesn't exist."}
}

func errWrongTopic(topic string) *Error {
	return &Error{Kind: KindWrongTopic, Message: "Producer cannot publish to " + topic + "."}
}

func errGroupNotReady() *Error {
	return &Error{Kind: KindGroupNotReady, Message: "Raft Instance not ready."}
}

func errConsensusTimeout(detail string) *Error {
	return &Error{Kind: KindConsensusTimeout, Message: detail}
}

func errInvalidTransaction() *Error {
	return &Error{Kind: KindInvalidTransaction, Message: "Invalid transaction request."}
}
