// Command producerfront runs C8, the standalone Producer Front-End HTTP
// adapter in front of a single broker's BrokerService.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/adithya5768/distributed-message-queue/internal/producerfront"
	rpcbroker "github.com/adithya5768/distributed-message-queue/internal/rpc/broker"
	"github.com/adithya5768/distributed-message-queue/internal/wire"
)

func main() {
	httpAddr := flag.String("http-addr", ":8000", "address the producer HTTP interface listens on")
	brokerAddr := flag.String("broker-addr", "localhost:8001", "address of the broker's BrokerService")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	conn, err := grpc.Dial(*brokerAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wire.Codec{})),
	)
	if err != nil {
		logger.Fatal("failed to dial broker", zap.Error(err))
	}
	defer conn.Close()

	front := producerfront.New(rpcbroker.NewClient(conn), logger)

	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: front.Handler(),
	}

	go func() {
		logger.Info("producer front-end listening", zap.String("addr", *httpAddr), zap.String("broker", *brokerAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
}
