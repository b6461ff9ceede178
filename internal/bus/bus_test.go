package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/creditlens/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		msgs := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, tenantID, domain.TopicReportIngested, func(ctx context.Context, msg *domain.Message) error {
			msgs <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		event := domain.ReportIngestedEvent{TenantID: tenantID, SubjectID: "subj-1", Bureau: domain.BureauCIBIL, DataHash: "abc"}
		if err := PublishJSON(ctx, bus, tenantID, domain.TopicReportIngested, event); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case msg := <-msgs:
			if msg.TenantID != tenantID {
				t.Errorf("expected tenantID %q, got %q", tenantID, msg.TenantID)
			}
			if msg.ID == "" {
				t.Error("expected message ID")
			}
			if msg.Metadata["source"] != "creditlens" {
				t.Errorf("expected source metadata, got %v", msg.Metadata)
			}
			var got domain.ReportIngestedEvent
			if err := json.Unmarshal(msg.Payload, &got); err != nil {
				t.Fatalf("payload decode failed: %v", err)
			}
			if got != event {
				t.Errorf("expected %+v, got %+v", event, got)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		var received1, received2 atomic.Int32

		bus.Subscribe(ctx, "tenant-a", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received1.Add(1)
			return nil
		})
		bus.Subscribe(ctx, "tenant-b", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received2.Add(1)
			return nil
		})

		bus.Publish(ctx, "tenant-a", "isolation.topic", []byte("msg1"))
		waitFor(t, func() bool { return received1.Load() == 1 })
		time.Sleep(20 * time.Millisecond)

		if received2.Load() != 0 {
			t.Errorf("tenant-b should receive 0 messages, got %d", received2.Load())
		}
	})

	t.Run("AllTenantsSubscription", func(t *testing.T) {
		var mu sync.Mutex
		seen := map[string]bool{}

		_, err := bus.Subscribe(ctx, AllTenants, "wildcard.topic", func(ctx context.Context, msg *domain.Message) error {
			mu.Lock()
			seen[msg.TenantID] = true
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		bus.Publish(ctx, "tenant-x", "wildcard.topic", nil)
		bus.Publish(ctx, "tenant-y", "wildcard.topic", nil)

		waitFor(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return seen["tenant-x"] && seen["tenant-y"]
		})
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "topic", []byte("data")); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if err := bus.Publish(ctx, AllTenants, "topic", []byte("data")); err == nil {
			t.Error("expected error publishing to all tenants")
		}
		_, err := bus.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, tenantID, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg1"))
		waitFor(t, func() bool { return count.Load() == 1 })

		sub.Unsubscribe()

		bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg2"))
		time.Sleep(30 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}

		bus.mu.RLock()
		_, ok := bus.subscriptions[makeKey(tenantID, "unsub.topic")]
		bus.mu.RUnlock()
		if ok {
			t.Error("expected subscription to be removed")
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32

		bus.Subscribe(ctx, tenantID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count1.Add(1)
			return nil
		})
		bus.Subscribe(ctx, tenantID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count2.Add(1)
			return nil
		})

		bus.Publish(ctx, tenantID, "multi.topic", []byte("broadcast"))
		waitFor(t, func() bool { return count1.Load() == 1 && count2.Load() == 1 })
	})

	t.Run("Request", func(t *testing.T) {
		_, err := bus.Subscribe(ctx, tenantID, "echo.topic", func(ctx context.Context, msg *domain.Message) error {
			return bus.Publish(ctx, msg.TenantID, msg.Metadata["reply_to"], append([]byte("re:"), msg.Payload...))
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		reply, err := bus.Request(reqCtx, tenantID, "echo.topic", []byte("ping"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if string(reply) != "re:ping" {
			t.Errorf("expected 're:ping', got %q", reply)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, tenantID, domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if sub.Topic() != domain.TopicAnalysisCompleted {
			t.Errorf("expected topic %q, got %q", domain.TopicAnalysisCompleted, sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	bus.Subscribe(ctx, "tenant-001", "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
	if err := bus.Publish(ctx, "tenant-001", "close.topic", []byte("data")); err == nil {
		t.Error("expected error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestMakeSubject(t *testing.T) {
	tests := []struct {
		tenant, topic, want string
	}{
		{"acme", domain.TopicReportIngested, "creditlens.acme.creditlens.report.ingested"},
		{AllTenants, domain.TopicReportIngested, "creditlens.*.creditlens.report.ingested"},
		{"acme.bank", "t", "creditlens.acme_bank.t"},
		{"a>b", "t", "creditlens.a_b.t"},
	}
	for _, tt := range tests {
		if got := makeSubject(tt.tenant, tt.topic); got != tt.want {
			t.Errorf("makeSubject(%q, %q) = %q, want %q", tt.tenant, tt.topic, got, tt.want)
		}
	}
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-load"

	var received atomic.Int32
	const messageCount = 100

	bus.Subscribe(ctx, tenantID, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		return nil
	})

	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, tenantID, "load.topic", []byte("msg"))
	}

	waitFor(t, func() bool { return received.Load() == messageCount })
}
