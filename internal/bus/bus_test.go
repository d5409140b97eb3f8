package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Publish(Event{Kind: SessionStatusChanged, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != SessionStatusChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, SessionStatusChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: MetaReceived})
	b.Publish(Event{Kind: MessageUpdated})

	select {
	case evt := <-ch:
		if evt.Kind != MessageUpdated {
			t.Errorf("got kind %q, want %s", evt.Kind, MessageUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the meta event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()

	b.Publish(Event{Kind: SessionStatusChanged})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	if n := b.Publish(Event{Kind: "test.one"}); n != 1 {
		t.Fatalf("delivered to %d, want 1", n)
	}
	if n := b.Publish(Event{Kind: "test.two"}); n != 0 {
		t.Fatalf("delivered to %d on full buffer, want 0", n)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestSubscribersAndDoubleUnsubscribe(t *testing.T) {
	b := New()
	_, unsubA := b.Subscribe("", 1)
	_, unsubB := b.Subscribe("meta.", 1)
	if got := b.Subscribers(); got != 2 {
		t.Fatalf("Subscribers() = %d, want 2", got)
	}
	unsubA()
	unsubA()
	if got := b.Subscribers(); got != 1 {
		t.Errorf("Subscribers() = %d after unsubscribe, want 1", got)
	}
	unsubB()
	if got := b.Subscribers(); got != 0 {
		t.Errorf("Subscribers() = %d, want 0", got)
	}
}

func TestEmitStampsEvent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	before := time.Now()
	b.Emit(MessageAdded, 42)

	select {
	case evt := <-ch:
		if evt.Kind != MessageAdded {
			t.Errorf("got kind %q, want %s", evt.Kind, MessageAdded)
		}
		if evt.Timestamp.Before(before) {
			t.Errorf("timestamp %v before emit", evt.Timestamp)
		}
		if evt.Payload != 42 {
			t.Errorf("payload = %v, want 42", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEmitOnNilBus(t *testing.T) {
	var b *Bus
	b.Emit(MetaReceived, nil)
}
