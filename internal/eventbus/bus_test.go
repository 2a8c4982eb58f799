package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: QueueEnqueued, Data: ItemData{EventID: "1_2_9_bottom"}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != QueueEnqueued || e.Time.IsZero() {
				t.Fatalf("event = %+v", e)
			}
			if got := e.Data.(ItemData).EventID; got != "1_2_9_bottom" {
				t.Fatalf("EventID = %q", got)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: EventSeen})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if got := b.Dropped(); got != 9 {
		t.Fatalf("Dropped = %d, want 9", got)
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	t.Parallel()
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		_, unsub := b.Subscribe(1)
		wg.Add(2)
		go func() { defer wg.Done(); b.Publish(Event{Type: PublishSent}) }()
		go func() { defer wg.Done(); unsub(); unsub() }()
	}
	wg.Wait()
}

func TestNopBus(t *testing.T) {
	t.Parallel()
	var bus Bus = Nop{}
	bus.Publish(Event{Type: PollFailed})
	ch, unsub := bus.Subscribe(1)
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("Nop subscription should be closed")
	}
}

func TestObserverSeesEveryEvent(t *testing.T) {
	t.Parallel()
	b := New()
	var got []string
	remove := b.Observe(func(e Event) { got = append(got, e.Type) })
	_, unsub := b.Subscribe(1)
	defer unsub()

	for _, typ := range []string{EventSeen, QueueEnqueued, QueueEnriched} {
		b.Publish(Event{Type: typ})
	}
	if len(got) != 3 || got[2] != QueueEnriched {
		t.Fatalf("observed %v, want all three events", got)
	}
	if b.Dropped() != 2 {
		t.Fatalf("Dropped = %d, want 2", b.Dropped())
	}

	remove()
	b.Publish(Event{Type: EventSeen})
	if len(got) != 3 {
		t.Fatalf("observer called after remove: %v", got)
	}
}
