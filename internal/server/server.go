// Package server implements C5, the Broker RPC Surface: a grpc.Server
// exposing BrokerService, dispatching onto the Transaction Processor
// through a bounded worker pool (spec.md §4.5).
package server

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/adithya5768/distributed-message-queue/internal/broker"
	rpcbroker "github.com/adithya5768/distributed-message-queue/internal/rpc/broker"
	"github.com/adithya5768/distributed-message-queue/internal/wire"
)

// DefaultPoolSize is the concurrency cap used when Server isn't given one
// explicitly, grounded in ParallelRaftEngine.Tick's errgroup.SetLimit(8).
const DefaultPoolSize = 8

// Server is the BrokerService implementation, one per broker process.
type Server struct {
	processor *broker.Processor
	logger    *zap.Logger
	sem       chan struct{}
}

// New wraps processor behind a bounded worker pool of the given size
// (DefaultPoolSize if poolSize <= 0).
func New(processor *broker.Processor, poolSize int, logger *zap.Logger) *Server {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &Server{
		processor: processor,
		logger:    logger,
		sem:       make(chan struct{}, poolSize),
	}
}

// NewGRPCServer builds a *grpc.Server with the msgpack wire codec forced
// and BrokerService registered against s.
func NewGRPCServer(s *Server) *grpc.Server {
	gs := grpc.NewServer(grpc.ForceServerCodec(wire.Codec{}))
	rpcbroker.RegisterServer(gs, s)
	return gs
}

func (s *Server) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) release() { <-s.sem }

// SendTransaction dispatches one transaction to the Processor. The
// Processor never returns a Go error for a business-logic failure —
// errors ride in the response body (spec.md §4.3) — so a non-nil error
// here is strictly transport-/pool-level.
func (s *Server) SendTransaction(ctx context.Context, req *rpcbroker.TransactionRequest) (*rpcbroker.TransactionResponse, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	data := s.processor.Process(ctx, req.Data)
	return &rpcbroker.TransactionResponse{Data: data}, nil
}

// GetUpdates streams every committed-but-undelivered record for
// (topic, partition), draining them from the owning Replication Group.
func (s *Server) GetUpdates(req *rpcbroker.UpdatesRequest, stream rpcbroker.GetUpdatesServer) error {
	ctx := stream.Context()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	records, err := s.processor.GetUpdates(ctx, req.Topic, req.Partition)
	if err != nil {
		return err
	}

	for _, record := range records {
		if err := stream.Send(&rpcbroker.Query{Query: record}); err != nil {
			return err
		}
	}
	return nil
}
