package events

import (
	"testing"
	"time"
)

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	// Must not panic.
	b.Publish(Event{Source: SourceLoop, Kind: KindLLMCall})
}

func TestNilBusSubscriberCount(t *testing.T) {
	var b *Bus
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() on nil bus = %d, want 0", got)
	}
}

func TestPublishSingleSubscriber(t *testing.T) {
	b := New()
	ch := b.Subscribe(8)
	defer b.Unsubscribe(ch)

	b.Publish(Event{
		Source: SourceMemory,
		Kind:   KindCompaction,
		Data:   map[string]any{"before": 40, "after": 5},
	})

	select {
	case got := <-ch:
		if got.Source != SourceMemory || got.Kind != KindCompaction {
			t.Errorf("got %s/%s, want %s/%s", got.Source, got.Kind, SourceMemory, KindCompaction)
		}
		if got.Data["before"] != 40 {
			t.Errorf("before = %v, want 40", got.Data["before"])
		}
		if got.Timestamp.IsZero() {
			t.Error("Publish should stamp a zero Timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishMultipleSubscribers(t *testing.T) {
	b := New()
	const n = 3
	channels := make([]<-chan Event, n)
	for i := range n {
		channels[i] = b.Subscribe(8)
	}
	defer func() {
		for _, ch := range channels {
			b.Unsubscribe(ch)
		}
	}()

	b.Publish(Event{Source: SourcePipeline, Kind: KindPhaseStart})

	for i, ch := range channels {
		select {
		case got := <-ch:
			if got.Kind != KindPhaseStart {
				t.Errorf("subscriber %d: kind = %s", i, got.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	// Fill the buffer, then overflow it. Publish must not block.
	b.Publish(Event{Source: SourceLoop, Kind: KindLLMCall})
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Source: SourceLoop, Kind: KindLLMResponse})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	b.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Error("channel should be closed after Unsubscribe")
	}
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}

	// Double unsubscribe is a no-op.
	b.Unsubscribe(ch)
}
