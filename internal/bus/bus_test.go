package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// collector gathers delivered messages behind a mutex and signals arrival.
type collector struct {
	mu       sync.Mutex
	messages []*domain.Message
	arrived  chan struct{}
}

func newCollector() *collector {
	return &collector{arrived: make(chan struct{}, 100)}
}

func (c *collector) handle(ctx context.Context, msg *domain.Message) error {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	c.arrived <- struct{}{}
	return nil
}

func (c *collector) waitFor(t *testing.T, n int) []*domain.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-c.arrived:
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages", n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*domain.Message(nil), c.messages...)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func TestChannelBusPublishSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("DeliversToSubscriber", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		col := newCollector()
		if _, err := b.Subscribe(ctx, "tenant-001", domain.TopicDecision, col.handle); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		if err := b.Publish(ctx, "tenant-001", domain.TopicDecision, []byte("payload")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		msgs := col.waitFor(t, 1)
		msg := msgs[0]
		if msg.TenantID != "tenant-001" || msg.Topic != domain.TopicDecision {
			t.Errorf("unexpected message: %+v", msg)
		}
		if string(msg.Payload) != "payload" {
			t.Errorf("payload mismatch: %s", msg.Payload)
		}
		if msg.ID == "" {
			t.Error("expected message ID")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		col := newCollector()
		_, _ = b.Subscribe(ctx, "tenant-001", domain.TopicDecision, col.handle)

		if err := b.Publish(ctx, "tenant-002", domain.TopicDecision, []byte("x")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(50 * time.Millisecond)
		if col.count() != 0 {
			t.Errorf("expected no cross-tenant delivery, got %d", col.count())
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		decisions := newCollector()
		usage := newCollector()
		_, _ = b.Subscribe(ctx, "tenant-001", domain.TopicDecision, decisions.handle)
		_, _ = b.Subscribe(ctx, "tenant-001", domain.TopicUsage, usage.handle)

		_ = b.Publish(ctx, "tenant-001", domain.TopicUsage, []byte("x"))

		usage.waitFor(t, 1)
		if decisions.count() != 0 {
			t.Errorf("decision subscriber received usage message")
		}
	})

	t.Run("MultipleSubscribersEachReceive", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		a := newCollector()
		c := newCollector()
		_, _ = b.Subscribe(ctx, "tenant-001", domain.TopicDecision, a.handle)
		_, _ = b.Subscribe(ctx, "tenant-001", domain.TopicDecision, c.handle)

		_ = b.Publish(ctx, "tenant-001", domain.TopicDecision, []byte("x"))

		a.waitFor(t, 1)
		c.waitFor(t, 1)
	})

	t.Run("UnsubscribeStopsDelivery", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		col := newCollector()
		sub, err := b.Subscribe(ctx, "tenant-001", domain.TopicDecision, col.handle)
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		if sub.Topic() != domain.TopicDecision {
			t.Errorf("unexpected topic: %s", sub.Topic())
		}

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("Unsubscribe failed: %v", err)
		}

		_ = b.Publish(ctx, "tenant-001", domain.TopicDecision, []byte("x"))
		time.Sleep(50 * time.Millisecond)
		if col.count() != 0 {
			t.Errorf("expected no delivery after unsubscribe, got %d", col.count())
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		if err := b.Publish(ctx, "", domain.TopicDecision, nil); err == nil {
			t.Error("expected error for empty tenantID on Publish")
		}
		if _, err := b.Subscribe(ctx, "", domain.TopicDecision, func(context.Context, *domain.Message) error { return nil }); err == nil {
			t.Error("expected error for empty tenantID on Subscribe")
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	ctx := context.Background()

	b := NewChannelBus(10)
	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := b.Ping(ctx); err == nil {
		t.Error("expected Ping to fail after close")
	}
	if err := b.Publish(ctx, "tenant-001", domain.TopicDecision, nil); err == nil {
		t.Error("expected Publish to fail after close")
	}
	if _, err := b.Subscribe(ctx, "tenant-001", domain.TopicDecision, func(context.Context, *domain.Message) error { return nil }); err == nil {
		t.Error("expected Subscribe to fail after close")
	}

	// Close is idempotent.
	if err := b.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestNewFactory(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()
		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected *ChannelBus, got %T", b)
		}
	})

	t.Run("UnknownTypeRejected", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
