package broker

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/adithya5768/distributed-message-queue/internal/transport"
)

func newTestProcessor(t *testing.T, raftPort string) *Processor {
	t.Helper()

	dir, err := os.MkdirTemp("", "broker-processor-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	hub, err := transport.NewHub("127.0.0.1:"+raftPort, zap.NewNop())
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	t.Cleanup(func() { hub.Close() })

	p := New(Config{
		DataDir:       dir,
		Hub:           hub,
		Logger:        zap.NewNop(),
		RaftHost:      "127.0.0.1",
		LocalRaftPort: raftPort,
		ApplyTimeout:  2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx, p, 10*time.Millisecond)

	return p
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func decodeResult(t *testing.T, data []byte) txnResult {
	t.Helper()
	var r txnResult
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("unmarshal result %s: %v", data, err)
	}
	return r
}

func isEmptyResult(r txnResult) bool {
	return r.Status == "" && r.Message == "" && len(r.Topics) == 0
}

// waitForLeader polls until the single-node group for (topic, partition)
// has observed itself as leader, mirroring node_test.go's wait loop.
func waitForLeader(t *testing.T, p *Processor, topic, partition string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.RLock()
		g, ok := p.groups[transport.GroupKey(topic, partition)]
		p.mu.RUnlock()
		if ok {
			g.Tick()
			if g.HasLeader() {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("group for (%s,%s) never acquired a leader", topic, partition)
}

func TestProcessorBasicPublishThenGetUpdates(t *testing.T) {
	p := newTestProcessor(t, "19001")

	resp := p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req":       "Init",
		"broker_id": 1,
		"topics":    map[string]interface{}{},
		"producers": map[string]interface{}{},
	}))
	if !isEmptyResult(decodeResult(t, resp)) {
		t.Fatalf("Init: unexpected result %s", resp)
	}

	resp = p.Process(context.Background(), mustJSON(t, replicaHandlePayload{
		TopicPartitions: [][2]string{{"orders", "1"}},
		OtherRaftports:  [][]string{{}},
	}.withReq("ReplicaHandle")))
	if !isEmptyResult(decodeResult(t, resp)) {
		t.Fatalf("ReplicaHandle: unexpected result %s", resp)
	}

	waitForLeader(t, p, "orders", "1")

	resp = p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req":         "ProducerRegister",
		"topic":       "orders",
		"producer_id": 42,
	}))
	if !isEmptyResult(decodeResult(t, resp)) {
		t.Fatalf("ProducerRegister: unexpected result %s", resp)
	}

	resp = p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req":         "Enqueue",
		"producer_id": 42,
		"topic":       "orders",
		"message":     "hello",
	}))
	result := decodeResult(t, resp)
	if result.Status != "success" {
		t.Fatalf("Enqueue: expected success, got %+v (%s)", result, resp)
	}

	records, err := p.GetUpdates(context.Background(), "orders", "1")
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 committed records, got %d: %v", len(records), records)
	}
	if !strings.HasPrefix(records[0], "INSERT INTO topic(topic_name, partition_id, bias) SELECT 'orders','1'") {
		t.Fatalf("unexpected first record: %s", records[0])
	}
	if !strings.HasPrefix(records[1], "INSERT INTO message(message, topic_name, partition_id, subscribers) VALUES('hello', 'orders', 1, 0)") {
		t.Fatalf("unexpected second record: %s", records[1])
	}

	again, err := p.GetUpdates(context.Background(), "orders", "1")
	if err != nil {
		t.Fatalf("second GetUpdates: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected drain to be empty on second call, got %v", again)
	}
}

func TestProcessorWrongTopic(t *testing.T) {
	p := newTestProcessor(t, "19002")
	setupOrdersTopic(t, p, "19002")

	resp := p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req":         "Enqueue",
		"producer_id": 42,
		"topic":       "invoices",
		"message":     "x",
	}))
	result := decodeResult(t, resp)
	if result.Status != "failure" || !strings.Contains(result.Message, "Producer cannot publish to invoices") {
		t.Fatalf("expected wrong-topic failure, got %+v", result)
	}
}

func TestProcessorLockContention(t *testing.T) {
	p := newTestProcessor(t, "19003")
	setupOrdersTopic(t, p, "19003")

	// Hold the publish lock directly to force the second caller into the
	// LockBusy path deterministically.
	p.publishMu.Lock()
	resp := p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req":         "Enqueue",
		"producer_id": 42,
		"topic":       "orders",
		"message":     "x",
	}))
	p.publishMu.Unlock()

	result := decodeResult(t, resp)
	if result.Status != "failure" || !strings.Contains(result.Message, "Lock cannot be acquired.") {
		t.Fatalf("expected lock-busy failure, got %+v", result)
	}
}

func TestProcessorUnknownProducer(t *testing.T) {
	p := newTestProcessor(t, "19004")
	setupOrdersTopic(t, p, "19004")

	resp := p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req":         "Enqueue",
		"producer_id": 99,
		"topic":       "orders",
		"message":     "x",
	}))
	result := decodeResult(t, resp)
	if result.Status != "failure" || !strings.Contains(result.Message, "Producer doesn't exist.") {
		t.Fatalf("expected unknown-producer failure, got %+v", result)
	}
}

func TestProcessorGroupNotReady(t *testing.T) {
	p := newTestProcessor(t, "19005")

	p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req": "CreateTopic", "topic": "orders",
	}))
	p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req": "ProducerRegister", "topic": "orders", "producer_id": 42,
	}))

	resp := p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req":         "Enqueue",
		"producer_id": 42,
		"topic":       "orders",
		"message":     "x",
	}))
	result := decodeResult(t, resp)
	if result.Status != "failure" || !strings.Contains(result.Message, "Raft Instance not ready.") {
		t.Fatalf("expected group-not-ready failure, got %+v", result)
	}
}

func TestProcessorInvalidTransaction(t *testing.T) {
	p := newTestProcessor(t, "19006")

	resp := p.Process(context.Background(), mustJSON(t, map[string]interface{}{"req": "DoesNotExist"}))
	result := decodeResult(t, resp)
	if result.Status != "failure" || result.Message != "Invalid transaction request." {
		t.Fatalf("expected invalid-transaction failure, got %+v", result)
	}
}

func TestProcessorConcurrentPublishesExactlyOneSucceeds(t *testing.T) {
	p := newTestProcessor(t, "19007")
	setupOrdersTopic(t, p, "19007")

	const attempts = 8
	results := make([]txnResult, attempts)
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		i := i
		go func() {
			defer wg.Done()
			resp := p.Process(context.Background(), mustJSON(t, map[string]interface{}{
				"req":         "Enqueue",
				"producer_id": 42,
				"topic":       "orders",
				"message":     "x",
			}))
			results[i] = decodeResult(t, resp)
		}()
	}
	wg.Wait()

	successes := 0
	for _, r := range results {
		if r.Status == "success" {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one concurrent publish to succeed, got %d", successes)
	}
}

func setupOrdersTopic(t *testing.T, p *Processor, raftPort string) {
	t.Helper()

	p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req": "CreateTopic", "topic": "orders",
	}))
	p.Process(context.Background(), mustJSON(t, map[string]interface{}{
		"req": "ProducerRegister", "topic": "orders", "producer_id": 42,
	}))
	p.Process(context.Background(), mustJSON(t, replicaHandlePayload{
		TopicPartitions: [][2]string{{"orders", "0"}},
		OtherRaftports:  [][]string{{}},
	}.withReq("ReplicaHandle")))

	waitForLeader(t, p, "orders", "0")
}

func (r replicaHandlePayload) withReq(req string) map[string]interface{} {
	return map[string]interface{}{
		"req":              req,
		"topic_partitions": r.TopicPartitions,
		"other_raftports":  r.OtherRaftports,
	}
}
