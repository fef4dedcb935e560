// Package producerfront implements C8, the Producer Front-End: a thin
// gin HTTP server translating the four producer HTTP endpoints from
// spec.md §6 into BrokerService.SendTransaction gRPC calls (grounded in
// pkg/api/server.go's gin.Engine wiring, but with none of its query/
// collection surface — this is a pass-through, not a query API).
package producerfront

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	rpcbroker "github.com/adithya5768/distributed-message-queue/internal/rpc/broker"
)

// Front is the producer-facing HTTP adapter. It holds no broker state of
// its own beyond a producer-id allocator; every other question is
// answered by the broker it is paired with.
type Front struct {
	client *rpcbroker.Client
	logger *zap.Logger
	engine *gin.Engine
	nextID int64
}

// New builds a Front talking to the broker over client.
func New(client *rpcbroker.Client, logger *zap.Logger) *Front {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	f := &Front{client: client, logger: logger, engine: engine}
	f.setupRoutes()
	return f
}

func (f *Front) setupRoutes() {
	f.engine.POST("/producer/register", f.handleRegister)
	f.engine.GET("/topics", f.handleTopics)
	f.engine.POST("/producer/produce", f.handleProduce)
}

// Handler returns the HTTP handler to mount on an *http.Server.
func (f *Front) Handler() http.Handler {
	return f.engine
}

type registerRequest struct {
	Topic string `json:"topic"`
}

func (f *Front) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	producerID := atomic.AddInt64(&f.nextID, 1)
	result, err := f.sendTransaction(c.Request.Context(), map[string]interface{}{
		"req":         "ProducerRegister",
		"topic":       req.Topic,
		"producer_id": producerID,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if result.Status == "failure" {
		c.JSON(http.StatusBadRequest, gin.H{"message": result.Message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"producer_id": producerID})
}

func (f *Front) handleTopics(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		f.handleListTopics(c)
		return
	}
	f.handleCreateTopic(c, name)
}

func (f *Front) handleListTopics(c *gin.Context) {
	result, err := f.sendTransaction(c.Request.Context(), map[string]interface{}{"req": "ListTopics"})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	topics := result.Topics
	if topics == nil {
		topics = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

func (f *Front) handleCreateTopic(c *gin.Context, name string) {
	result, err := f.sendTransaction(c.Request.Context(), map[string]interface{}{
		"req": "CreateTopic", "topic": name,
	})
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "failure", "message": err.Error()})
		return
	}
	if result.Status == "failure" {
		c.JSON(http.StatusOK, gin.H{"status": "failure", "message": result.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

type produceRequest struct {
	Topic      string `json:"topic"`
	ProducerID int64  `json:"producer_id"`
	Message    string `json:"message"`
	Partition  int64  `json:"partition"`
}

func (f *Front) handleProduce(c *gin.Context) {
	var req produceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	reqType := "Enqueue"
	if req.Partition != 0 {
		reqType = "EnqueueWithPartition"
	}

	// On a 400 whose body contains "Lock cannot be acquired", the original
	// producer client retries up to 30 times itself; this endpoint must
	// not swallow or rewrite that substring (spec.md §6).
	result, err := f.sendTransaction(c.Request.Context(), map[string]interface{}{
		"req": reqType, "producer_id": req.ProducerID, "topic": req.Topic, "message": req.Message,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if result.Status != "success" {
		c.JSON(http.StatusBadRequest, gin.H{"message": result.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": result.Message})
}

type transactionResult struct {
	Status  string   `json:"status,omitempty"`
	Message string   `json:"message,omitempty"`
	Topics  []string `json:"topics,omitempty"`
}

func (f *Front) sendTransaction(ctx context.Context, txn map[string]interface{}) (transactionResult, error) {
	data, err := json.Marshal(txn)
	if err != nil {
		return transactionResult{}, err
	}

	resp, err := f.client.SendTransaction(ctx, &rpcbroker.TransactionRequest{Data: data})
	if err != nil {
		return transactionResult{}, err
	}

	var result transactionResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return transactionResult{}, err
	}
	return result, nil
}
