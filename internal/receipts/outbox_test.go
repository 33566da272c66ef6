package receipts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/masterco/lahza-server/internal/payments"
)

type stubNotifier struct {
	mu    sync.Mutex
	sent  []string
	fails int
}

func (s *stubNotifier) Send(_ context.Context, rec payments.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, rec.Reference)
	return nil
}

func (s *stubNotifier) sentRefs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func TestOutbox_DeliversQueuedReceipts(t *testing.T) {
	notifier := &stubNotifier{}
	outbox := NewOutbox(notifier, OutboxConfig{QueueSize: 4, MaxAttempts: 1})
	outbox.Start()

	if !outbox.Enqueue(payments.Record{Reference: "BF-1", Email: "a@example.com"}) {
		t.Fatal("Enqueue returned false")
	}
	if !outbox.Enqueue(payments.Record{Reference: "BF-2", Email: "b@example.com"}) {
		t.Fatal("Enqueue returned false")
	}
	if err := outbox.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sent := notifier.sentRefs()
	if len(sent) != 2 || sent[0] != "BF-1" || sent[1] != "BF-2" {
		t.Errorf("sent = %v, want [BF-1 BF-2]", sent)
	}
}

func TestOutbox_RetriesThenSucceeds(t *testing.T) {
	notifier := &stubNotifier{fails: 1}
	outbox := NewOutbox(notifier, OutboxConfig{QueueSize: 4, MaxAttempts: 2, RetryInterval: time.Millisecond})
	outbox.Start()

	outbox.Enqueue(payments.Record{Reference: "CK-1", Email: "a@example.com"})
	_ = outbox.Close()

	if sent := notifier.sentRefs(); len(sent) != 1 {
		t.Errorf("sent = %v, want one delivery after retry", sent)
	}
}

func TestOutbox_GivesUpAfterMaxAttempts(t *testing.T) {
	notifier := &stubNotifier{fails: 10}
	outbox := NewOutbox(notifier, OutboxConfig{QueueSize: 4, MaxAttempts: 2, RetryInterval: time.Millisecond})
	outbox.Start()

	outbox.Enqueue(payments.Record{Reference: "CK-2", Email: "a@example.com"})
	_ = outbox.Close()

	if sent := notifier.sentRefs(); len(sent) != 0 {
		t.Errorf("sent = %v, want abandoned delivery", sent)
	}
}

func TestOutbox_FullQueueDropsWithoutBlocking(t *testing.T) {
	// Worker never started, so the queue cannot drain.
	outbox := NewOutbox(&stubNotifier{}, OutboxConfig{QueueSize: 1, MaxAttempts: 1})

	if !outbox.Enqueue(payments.Record{Reference: "BF-1"}) {
		t.Fatal("first Enqueue should fit")
	}

	done := make(chan bool, 1)
	go func() {
		done <- outbox.Enqueue(payments.Record{Reference: "BF-2"})
	}()

	select {
	case accepted := <-done:
		if accepted {
			t.Error("Enqueue accepted a receipt past capacity")
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestOutbox_EnqueueAfterClose(t *testing.T) {
	outbox := NewOutbox(&stubNotifier{}, OutboxConfig{})
	outbox.Start()
	_ = outbox.Close()

	if outbox.Enqueue(payments.Record{Reference: "BF-3"}) {
		t.Error("Enqueue accepted a receipt after Close")
	}
}
