// Package managerlink implements C4, the Manager Link: a heartbeat probe
// and register-if-required loop run against the external controller
// (spec.md §4.4), grounded in the original ManagerConnection.health_check /
// register_broker_if_required pair.
package managerlink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/adithya5768/distributed-message-queue/internal/rpc/manager"
	"github.com/adithya5768/distributed-message-queue/internal/wire"
)

// Details is this broker's self-description, sent on every registration
// attempt.
type Details struct {
	Host     string
	Port     string
	Token    string
	RaftPort string
}

// Link owns the connection to the controller and tracks whether this
// broker is currently registered with it.
type Link struct {
	logger  *zap.Logger
	client  *manager.Client
	conn    *grpc.ClientConn
	details Details

	mu         sync.Mutex
	registered bool
	connected  bool
}

// Dial opens the (lazy, auto-reconnecting) channel to the controller at
// addr. Dialing itself never blocks on controller availability — the same
// tolerance the original's grpc.insecure_channel has.
func Dial(addr string, details Details, logger *zap.Logger) (*Link, error) {
	conn, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wire.Codec{})),
	)
	if err != nil {
		return nil, err
	}
	return &Link{
		logger:  logger,
		client:  manager.NewClient(conn),
		conn:    conn,
		details: details,
	}, nil
}

// Close tears down the controller channel.
func (l *Link) Close() error {
	return l.conn.Close()
}

// Registered reports whether the last register-if-required pass succeeded
// and no subsequent heartbeat has failed.
func (l *Link) Registered() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registered
}

// Run drives the serial heartbeat-then-register loop until ctx is
// cancelled. Heartbeat failures are tolerated indefinitely — there is no
// deadline, matching spec.md §4.4's "retried indefinitely" contract.
func (l *Link) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		l.registerIfRequired(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Link) registerIfRequired(ctx context.Context) {
	l.healthCheck(ctx)

	l.mu.Lock()
	already := l.registered
	l.mu.Unlock()
	if already {
		return
	}

	l.logger.Info("managerlink: registering with controller")
	status, err := l.client.RegisterBroker(ctx, &manager.BrokerDetails{
		Host:     l.details.Host,
		Port:     l.details.Port,
		Token:    l.details.Token,
		RaftPort: l.details.RaftPort,
	})
	if err != nil {
		l.logger.Warn("managerlink: register attempt failed", zap.Error(err))
		return
	}

	l.mu.Lock()
	l.registered = status.Status
	l.mu.Unlock()

	if status.Status {
		l.logger.Info("managerlink: registered successfully")
	} else {
		l.logger.Warn("managerlink: controller rejected registration")
	}
}

func (l *Link) healthCheck(ctx context.Context) {
	_, err := l.client.HealthCheck(ctx, &manager.HeartBeat{BrokerID: 0})

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		if l.connected {
			l.logger.Warn("managerlink: controller disconnected, retrying", zap.Error(err))
		}
		l.connected = false
		l.registered = false
		return
	}

	if !l.connected {
		l.logger.Info("managerlink: controller connected")
	}
	l.connected = true
}
