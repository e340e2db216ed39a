package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --- Unit Tests ---

func TestValidateSubject(t *testing.T) {
	tests := []struct {
		subject string
		wantErr bool
	}{
		{"tasks", false},
		{"tasks.resolved", false},
		{"tasks.resolved.t-1", false},
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateSubject(tt.subject)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSubject(%q) = %v, wantErr %v", tt.subject, err, tt.wantErr)
		}
	}
}

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"tasks.resolved.t-1", "tasks.resolved.t-1", true},
		{"tasks.resolved.t-1", "tasks.resolved.t-2", false},
		{"tasks.resolved.*", "tasks.resolved.t-1", true},
		{"tasks.resolved.*", "tasks.resolved", false},
		{"tasks.resolved.*", "tasks.resolved.t-1.extra", false},
		{"tasks.*.t-1", "tasks.resolved.t-1", true},
		{"*", "tasks", true},
		{"*", "tasks.resolved", false},
	}

	for _, tt := range tests {
		got := subjectMatches(tt.pattern, tt.subject)
		if got != tt.want {
			t.Errorf("subjectMatches(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
		}
	}
}

func TestMemoryBus_Publish(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	// Publish without subscribers should not error
	err := bus.Publish("tasks.resolved.t-1", []byte("hello"))
	if err != nil {
		t.Errorf("Publish error: %v", err)
	}
}

func TestMemoryBus_PubSub(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	sub, err := bus.Subscribe("tasks.resolved.t-1")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	if err := bus.Publish("tasks.resolved.t-1", []byte("done")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if string(msg.Data) != "done" {
			t.Errorf("got %q, want done", msg.Data)
		}
		if msg.Subject != "tasks.resolved.t-1" {
			t.Errorf("got subject %q", msg.Subject)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryBus_WildcardSubscription(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	sub, err := bus.Subscribe(ResolutionSubjectAll)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	bus.Publish(ResolutionSubject("t-1"), []byte("a"))
	bus.Publish(ResolutionSubject("t-2"), []byte("b"))
	bus.Publish("files.uploaded", []byte("c"))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.Messages():
			got[msg.Subject] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for wildcard messages")
		}
	}

	if !got["tasks.resolved.t-1"] || !got["tasks.resolved.t-2"] {
		t.Errorf("wildcard subscription missed subjects: %v", got)
	}

	select {
	case msg := <-sub.Messages():
		t.Errorf("unexpected extra message on %s", msg.Subject)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	sub1, _ := bus.Subscribe("tasks.resolved.t-1")
	sub2, _ := bus.Subscribe("tasks.resolved.t-1")

	bus.Publish("tasks.resolved.t-1", []byte("done"))

	for i, sub := range []Subscription{sub1, sub2} {
		select {
		case msg := <-sub.Messages():
			if string(msg.Data) != "done" {
				t.Errorf("sub%d got %q", i+1, msg.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub%d timed out", i+1)
		}
	}
}

func TestMemoryBus_QueueSubscribe(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	var count1, count2 atomic.Int64
	sub1, _ := bus.QueueSubscribe(ResolutionSubjectAll, "notifiers")
	sub2, _ := bus.QueueSubscribe(ResolutionSubjectAll, "notifiers")

	var wg sync.WaitGroup
	wg.Add(2)
	drain := func(sub Subscription, count *atomic.Int64) {
		defer wg.Done()
		for range sub.Messages() {
			count.Add(1)
		}
	}
	go drain(sub1, &count1)
	go drain(sub2, &count2)

	const n = 20
	for i := 0; i < n; i++ {
		bus.Publish(ResolutionSubject(fmt.Sprintf("t-%d", i)), []byte("done"))
	}

	time.Sleep(100 * time.Millisecond)
	bus.Close()
	wg.Wait()

	total := count1.Load() + count2.Load()
	if total != n {
		t.Errorf("queue group delivered %d messages, want %d", total, n)
	}
}

func TestMemoryBus_QueueSubscribe_EmptyQueue(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	_, err := bus.QueueSubscribe("tasks.resolved.t-1", "")
	if err != ErrInvalidSubject {
		t.Errorf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	sub, _ := bus.Subscribe("tasks.resolved.t-1")
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe error: %v", err)
	}

	// Channel should be closed
	if _, ok := <-sub.Messages(); ok {
		t.Error("expected closed channel after Unsubscribe")
	}

	// Publishing after unsubscribe should not panic
	if err := bus.Publish("tasks.resolved.t-1", []byte("done")); err != nil {
		t.Errorf("Publish after Unsubscribe error: %v", err)
	}

	// Double unsubscribe is a no-op
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("second Unsubscribe error: %v", err)
	}
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())

	sub, _ := bus.Subscribe("tasks.resolved.t-1")

	if err := bus.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if _, ok := <-sub.Messages(); ok {
		t.Error("expected closed channel after bus Close")
	}

	if err := bus.Publish("tasks.resolved.t-1", []byte("x")); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe("tasks.resolved.t-1"); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Idempotent
	if err := bus.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
}

// --- Resolution event helpers ---

func TestPublishResolution_RoundTrip(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	sub, _ := bus.Subscribe(ResolutionSubjectAll)

	ev := &ResolutionEvent{
		TaskID:     "t-1",
		Status:     "completed",
		StopReason: "finish",
		Source:     "webhook",
		ResolvedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := PublishResolution(bus, ev); err != nil {
		t.Fatalf("PublishResolution error: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		decoded, err := DecodeResolution(msg)
		if err != nil {
			t.Fatalf("DecodeResolution error: %v", err)
		}
		if decoded.TaskID != "t-1" || decoded.Status != "completed" {
			t.Errorf("decoded = %+v", decoded)
		}
		if decoded.Source != "webhook" {
			t.Errorf("source = %q, want webhook", decoded.Source)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolution event")
	}
}

func TestPublishResolution_Invalid(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	if err := PublishResolution(bus, nil); err == nil {
		t.Error("expected error for nil event")
	}
	if err := PublishResolution(bus, &ResolutionEvent{}); err == nil {
		t.Error("expected error for missing task ID")
	}
}

func TestDecodeResolution_WrongSubject(t *testing.T) {
	msg := &Message{Subject: "files.uploaded", Data: []byte("{}")}
	if _, err := DecodeResolution(msg); err == nil {
		t.Error("expected error for non-resolution subject")
	}
}
