// Command broker runs one broker process: the Transaction Processor, its
// Replication Groups, the shared transport, the gRPC surface, and the
// Manager Link, wired together the way cmd/server/main.go wires a cluster
// node.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/adithya5768/distributed-message-queue/internal/broker"
	"github.com/adithya5768/distributed-message-queue/internal/config"
	"github.com/adithya5768/distributed-message-queue/internal/managerlink"
	"github.com/adithya5768/distributed-message-queue/internal/notifier"
	"github.com/adithya5768/distributed-message-queue/internal/server"
	"github.com/adithya5768/distributed-message-queue/internal/transport"
)

func main() {
	configPath := flag.String("config", "./broker.json", "path to the broker config file")
	port := flag.String("port", "8001", "port this broker's BrokerService listens on")
	raftPort := flag.String("raft-port", "9001", "port this broker's Raft transport listens on")
	poolSize := flag.Int("pool-size", server.DefaultPoolSize, "bounded worker pool size for the RPC surface")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	raftAddr := "localhost:" + *raftPort
	hub, err := transport.NewHub(raftAddr, logger)
	if err != nil {
		logger.Fatal("failed to start transport hub", zap.Error(err))
	}
	defer hub.Close()

	wal, err := notifier.New(cfg.NotifierBrokers, logger)
	if err != nil {
		logger.Fatal("failed to start commit notifier", zap.Error(err))
	}
	defer wal.Close()

	processor := broker.New(broker.Config{
		DataDir:       cfg.DataDir,
		Hub:           hub,
		Logger:        logger,
		RaftHost:      "localhost",
		LocalRaftPort: *raftPort,
		Notifier:      wal,
		ApplyTimeout:  2 * time.Second,
	})

	go hub.Run(ctx, processor, 50*time.Millisecond)

	rpcServer := server.New(processor, *poolSize, logger)
	grpcServer := server.NewGRPCServer(rpcServer)

	lis, err := net.Listen("tcp", ":"+*port)
	if err != nil {
		logger.Fatal("failed to listen for gRPC", zap.Error(err))
	}
	go func() {
		logger.Info("broker listening", zap.String("host", cfg.Host), zap.String("port", *port))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	link, err := managerlink.Dial(cfg.ManagerAddr(), managerlink.Details{
		Host:     cfg.Host,
		Port:     *port,
		Token:    cfg.Token,
		RaftPort: *raftPort,
	}, logger)
	if err != nil {
		logger.Fatal("failed to dial controller", zap.Error(err))
	}
	defer link.Close()

	go link.Run(ctx, time.Second)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	grpcServer.GracefulStop()
	cancel()
}
