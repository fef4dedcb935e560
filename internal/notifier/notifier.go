// Package notifier implements C7, the Commit Notifier: after a
// Replication Group commits a canonical record, forward it to an external
// Kafka-compatible sink so a downstream materializer can turn the
// SQL-shaped strings into actual rows. spec.md explicitly defers durable
// materialization to "a downstream component"; this is the broker-side
// half of that contract (SPEC_FULL.md §4.7), grounded in TriggerManager's
// franz-go usage.
package notifier

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Notifier forwards committed canonical records to a WAL-sink topic named
// "<topic>.<partition>.wal". Disabled (nil client) when no broker list is
// configured; Publish is then a no-op.
type Notifier struct {
	logger *zap.Logger
	client *kgo.Client
}

// New connects to brokers if any are given. An empty broker list yields a
// Notifier whose Publish calls are all no-ops, matching spec.md's "Non-
// goal: persistent materialization" without forcing every deployment to
// run a Kafka-compatible broker.
func New(brokers []string, logger *zap.Logger) (*Notifier, error) {
	if len(brokers) == 0 {
		return &Notifier{logger: logger}, nil
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("notifier: create client: %w", err)
	}
	return &Notifier{logger: logger, client: client}, nil
}

// Publish is advisory and fire-and-forget from the caller's perspective:
// a failure here never undoes or retries the already-committed record, it
// is only logged by the caller.
func (n *Notifier) Publish(ctx context.Context, topic, partition, record string) error {
	if n.client == nil {
		return nil
	}

	sinkTopic := topic + "." + partition + ".wal"
	rec := &kgo.Record{
		Topic: sinkTopic,
		Key:   []byte(partition),
		Value: []byte(record),
	}
	return n.client.ProduceSync(ctx, rec).FirstErr()
}

// Close releases the underlying client, if one was created.
func (n *Notifier) Close() {
	if n.client != nil {
		n.client.Close()
	}
}
