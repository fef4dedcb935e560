package notifier

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNotifierDisabledWithoutBrokersIsNoOp(t *testing.T) {
	n, err := New(nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if err := n.Publish(context.Background(), "orders", "1", "INSERT INTO topic(...);"); err != nil {
		t.Fatalf("expected disabled notifier Publish to be a no-op, got %v", err)
	}
}
