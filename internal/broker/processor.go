// Package broker implements C3 (Transaction Processor) and C6 (Publish
// Serializer): the in-memory topic/producer state a broker process holds,
// dispatch of controller-issued transactions against it, and the
// non-blocking publish path described in spec.md §4.3, §4.6.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adithya5768/distributed-message-queue/internal/group"
	"github.com/adithya5768/distributed-message-queue/internal/transport"
)

// Notifier is C7's broker-facing contract: forward one committed
// canonical record to a downstream sink. Implementations must not block
// the publish path; Processor calls it off the critical section.
type Notifier interface {
	Publish(ctx context.Context, topic, partition, record string) error
}

// Config configures a Processor.
type Config struct {
	DataDir       string
	Hub           *transport.Hub
	Logger        *zap.Logger
	RaftHost      string // defaults to "localhost", matching the original TCPNode('localhost:'+port) addressing
	LocalRaftPort string
	Notifier      Notifier
	ApplyTimeout  time.Duration
}

// Processor holds one broker process's topic/producer/group state and
// serializes publishes through C6.
type Processor struct {
	mu        sync.RWMutex
	brokerID  int64
	topics    map[string]map[string]partitionBuffer
	producers map[string]string // producer-id (string) -> bound topic
	groups    map[string]*group.Group

	publishMu sync.Mutex

	hub          *transport.Hub
	dataDir      string
	raftHost     string
	localAddr    string
	logger       *zap.Logger
	notifier     Notifier
	applyTimeout time.Duration
}

// New constructs a Processor with empty state, awaiting an Init
// transaction from the controller.
func New(cfg Config) *Processor {
	host := cfg.RaftHost
	if host == "" {
		host = "localhost"
	}
	return &Processor{
		topics:       make(map[string]map[string]partitionBuffer),
		producers:    make(map[string]string),
		groups:       make(map[string]*group.Group),
		hub:          cfg.Hub,
		dataDir:      cfg.DataDir,
		raftHost:     host,
		localAddr:    host + ":" + cfg.LocalRaftPort,
		logger:       cfg.Logger,
		notifier:     cfg.Notifier,
		applyTimeout: cfg.ApplyTimeout,
	}
}

// Process dispatches one transaction envelope and returns its
// JSON-encoded response. It never returns a transport-level error — every
// outcome, success or failure, is carried in the body (spec.md §4.3).
func (p *Processor) Process(ctx context.Context, data []byte) []byte {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return p.marshal(failureResult(errInvalidTransaction().Message))
	}

	var result txnResult
	switch env.Req {
	case "Enqueue", "EnqueueWithPartition":
		var payload enqueuePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			result = failureResult(errInvalidTransaction().Message)
			break
		}
		result = p.publish(ctx, payload)
	case "CreateTopic":
		var payload createTopicPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			result = failureResult(errInvalidTransaction().Message)
			break
		}
		result = p.handleCreateTopic(payload)
	case "ProducerRegister":
		var payload producerRegisterPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			result = failureResult(errInvalidTransaction().Message)
			break
		}
		result = p.handleProducerRegister(payload)
	case "Init":
		var payload initPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			result = failureResult(errInvalidTransaction().Message)
			break
		}
		result = p.handleInit(payload)
	case "ReplicaHandle":
		var payload replicaHandlePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			result = failureResult(errInvalidTransaction().Message)
			break
		}
		result = p.handleReplicaHandle(payload)
	case "ListTopics":
		result = p.handleListTopics()
	default:
		result = failureResult(errInvalidTransaction().Message)
	}

	return p.marshal(result)
}

func (p *Processor) marshal(result txnResult) []byte {
	data, err := json.Marshal(result)
	if err != nil {
		p.logger.Error("broker: failed to encode transaction response", zap.Error(err))
		return []byte(`{"status":"failure","message":"internal error"}`)
	}
	return data
}

func (p *Processor) handleInit(payload initPayload) txnResult {
	p.mu.Lock()

	oldGroups := p.groups
	p.brokerID = payload.BrokerID
	p.groups = make(map[string]*group.Group)

	topics := make(map[string]map[string]partitionBuffer, len(payload.Topics))
	for topic, partitions := range payload.Topics {
		pm := make(map[string]partitionBuffer, len(partitions))
		for pid, buf := range partitions {
			pm[pid] = buf
		}
		topics[topic] = pm
	}
	p.topics = topics

	producers := make(map[string]string, len(payload.Producers))
	for pid, binding := range payload.Producers {
		producers[pid] = binding.Topic
	}
	p.producers = producers

	p.mu.Unlock()

	for _, g := range oldGroups {
		g := g
		go func() {
			if err := g.Shutdown(); err != nil {
				p.logger.Warn("broker: error shutting down replaced replication group",
					zap.String("topic", g.Topic()), zap.String("partition", g.Partition()), zap.Error(err))
			}
		}()
	}

	p.logger.Info("broker: installed controller state", zap.Int64("broker_id", payload.BrokerID))
	return txnResult{}
}

func (p *Processor) handleCreateTopic(payload createTopicPayload) txnResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.topics[payload.Topic]; !ok {
		p.topics[payload.Topic] = map[string]partitionBuffer{
			strconv.FormatInt(p.brokerID, 10): {},
		}
	}
	return txnResult{}
}

func (p *Processor) handleProducerRegister(payload producerRegisterPayload) txnResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.topics[payload.Topic]; !ok {
		p.topics[payload.Topic] = map[string]partitionBuffer{
			strconv.FormatInt(p.brokerID, 10): {},
		}
	}
	pid := strconv.FormatInt(payload.ProducerID, 10)
	if _, ok := p.producers[pid]; !ok {
		p.producers[pid] = payload.Topic
	}
	return txnResult{}
}

// handleListTopics answers the producer front-end's plain GET /topics
// query. It has no transaction counterpart in the original broker's
// process_transaction switch — that HTTP endpoint was served by a
// separate, undistilled layer of the original system — so it is added
// here as a read-only extension of the same dispatch table.
func (p *Processor) handleListTopics() txnResult {
	p.mu.RLock()
	defer p.mu.RUnlock()

	topics := make([]string, 0, len(p.topics))
	for topic := range p.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return txnResult{Topics: topics}
}

func (p *Processor) handleReplicaHandle(payload replicaHandlePayload) txnResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, pair := range payload.TopicPartitions {
		topic, partition := pair[0], pair[1]
		key := transport.GroupKey(topic, partition)
		if _, exists := p.groups[key]; exists {
			continue
		}

		var peers []string
		if i < len(payload.OtherRaftports) {
			for _, port := range payload.OtherRaftports[i] {
				peers = append(peers, p.raftHost+":"+port)
			}
		}

		g, err := group.New(group.Config{
			Topic:        topic,
			Partition:    partition,
			LocalAddr:    p.localAddr,
			PeerAddrs:    peers,
			DataDir:      p.dataDir,
			Hub:          p.hub,
			Logger:       p.logger,
			ApplyTimeout: p.applyTimeout,
		})
		if err != nil {
			p.logger.Error("broker: failed to create replication group",
				zap.String("topic", topic), zap.String("partition", partition), zap.Error(err))
			continue
		}
		p.groups[key] = g
	}
	return txnResult{}
}

func (p *Processor) publish(ctx context.Context, payload enqueuePayload) txnResult {
	if !p.publishMu.TryLock() {
		return failureResult(errLockBusy().Message)
	}
	defer p.publishMu.Unlock()

	p.mu.RLock()
	_, topicExists := p.topics[payload.Topic]
	boundTopic, producerExists := p.producers[strconv.FormatInt(payload.ProducerID, 10)]
	brokerID := p.brokerID
	p.mu.RUnlock()

	if !producerExists {
		return failureResult(errNoSuchProducer().Message)
	}
	if boundTopic != payload.Topic {
		return failureResult(errWrongTopic(payload.Topic).Message)
	}
	if !topicExists {
		return failureResult(errNoSuchTopic(payload.Topic).Message)
	}

	partition := strconv.FormatInt(brokerID, 10)
	groupKey := transport.GroupKey(payload.Topic, partition)

	p.mu.Lock()
	buf := p.topics[payload.Topic][partition]
	buf.Messages = append(buf.Messages, storedMessage{Message: payload.Message, Subscribers: 0})
	p.topics[payload.Topic][partition] = buf
	g, hasGroup := p.groups[groupKey]
	p.mu.Unlock()

	if !hasGroup {
		return failureResult(errGroupNotReady().Message)
	}

	topicRecord := fmt.Sprintf(
		"INSERT INTO topic(topic_name, partition_id, bias) SELECT '%s','%s', '0' WHERE NOT EXISTS (SELECT topic_name, partition_id FROM topic WHERE topic_name = '%s' and partition_id =%s);",
		payload.Topic, partition, payload.Topic, partition,
	)
	messageRecord := fmt.Sprintf(
		"INSERT INTO message(message, topic_name, partition_id, subscribers) VALUES('%s', '%s', %s, %d);",
		payload.Message, payload.Topic, partition, 0,
	)

	if err := p.appendAndNotify(ctx, payload.Topic, partition, g, topicRecord); err != nil {
		return failureResult(translatePublishErr(err).Message)
	}
	if err := p.appendAndNotify(ctx, payload.Topic, partition, g, messageRecord); err != nil {
		return failureResult(translatePublishErr(err).Message)
	}

	return successResult("Message added successfully.")
}

func (p *Processor) appendAndNotify(ctx context.Context, topic, partition string, g *group.Group, record string) error {
	if err := g.Append(ctx, record); err != nil {
		return err
	}
	if p.notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.notifier.Publish(nctx, topic, partition, record); err != nil {
				p.logger.Warn("notifier: failed to forward committed record",
					zap.String("topic", topic), zap.String("partition", partition), zap.Error(err))
			}
		}()
	}
	return nil
}

func translatePublishErr(err error) *Error {
	switch {
	case errors.Is(err, group.ErrNotReady), errors.Is(err, group.ErrNotLeader):
		return errGroupNotReady()
	default:
		return errConsensusTimeout(err.Error())
	}
}

// GetUpdates drains and returns every committed-but-undelivered record for
// (topic, partition), in commit order.
func (p *Processor) GetUpdates(ctx context.Context, topic, partition string) ([]string, error) {
	p.mu.RLock()
	g, ok := p.groups[transport.GroupKey(topic, partition)]
	p.mu.RUnlock()
	if !ok {
		return nil, errGroupNotReady()
	}
	return g.Drain(ctx)
}

// Snapshot implements transport.Registry, handing the shared loop thread
// every currently-registered group to tick.
func (p *Processor) Snapshot() []transport.Tickable {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]transport.Tickable, 0, len(p.groups))
	for _, g := range p.groups {
		out = append(out, g)
	}
	return out
}
