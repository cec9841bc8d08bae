package events

import (
	"fmt"
	"strings"
	"testing"
)

func TestBus_MonotonicIDs(t *testing.T) {
	b := NewBus(10)

	for i := 1; i <= 5; i++ {
		evt, err := b.Emit("page.completed", map[string]any{"page": i - 1})
		if err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
		if evt.ID != int64(i) {
			t.Errorf("emit %d returned id %d, want %d", i, evt.ID, i)
		}
	}
}

func TestBus_ReplayAfterID(t *testing.T) {
	b := NewBus(10)
	for i := 0; i < 6; i++ {
		b.Emit("e", map[string]any{"n": i})
	}

	t.Run("replay from middle", func(t *testing.T) {
		replay, _, cancel := b.Subscribe(3)
		defer cancel()

		if len(replay) != 3 {
			t.Fatalf("got %d replayed events, want 3", len(replay))
		}
		for i, evt := range replay {
			if evt.ID != int64(4+i) {
				t.Errorf("replay[%d].ID = %d, want %d", i, evt.ID, 4+i)
			}
		}
	})

	t.Run("replay all with zero", func(t *testing.T) {
		replay, _, cancel := b.Subscribe(0)
		defer cancel()
		if len(replay) != 6 {
			t.Errorf("got %d replayed events, want 6", len(replay))
		}
	})
}

func TestBus_RingEviction(t *testing.T) {
	b := NewBus(3)
	for i := 0; i < 10; i++ {
		b.Emit("e", nil)
	}

	// Oldest buffered id is 8; asking for everything after 1 yields a
	// gap at the front, replay starts from the oldest surviving event.
	replay, _, cancel := b.Subscribe(1)
	defer cancel()

	if len(replay) != 3 {
		t.Fatalf("got %d replayed events, want 3", len(replay))
	}
	if replay[0].ID != 8 || replay[2].ID != 10 {
		t.Errorf("replay ids = [%d..%d], want [8..10]", replay[0].ID, replay[2].ID)
	}
}

func TestBus_LiveDelivery(t *testing.T) {
	b := NewBus(10)

	_, ch, cancel := b.Subscribe(0)
	defer cancel()

	b.Emit("job.started", map[string]any{"total_pages": 3})
	b.Emit("page.completed", map[string]any{"page": 0})

	evt := <-ch
	if evt.Name != "job.started" || evt.ID != 1 {
		t.Errorf("first live event = %s/%d, want job.started/1", evt.Name, evt.ID)
	}
	evt = <-ch
	if evt.Name != "page.completed" || evt.ID != 2 {
		t.Errorf("second live event = %s/%d, want page.completed/2", evt.Name, evt.ID)
	}
}

func TestBus_MultipleSubscribersSeeSameOrder(t *testing.T) {
	b := NewBus(20)

	_, ch1, cancel1 := b.Subscribe(0)
	_, ch2, cancel2 := b.Subscribe(0)
	defer cancel1()
	defer cancel2()

	for i := 0; i < 5; i++ {
		b.Emit("e", map[string]any{"n": i})
	}
	b.Close()

	collect := func(ch <-chan Event) []int64 {
		var ids []int64
		for evt := range ch {
			ids = append(ids, evt.ID)
		}
		return ids
	}

	ids1 := collect(ch1)
	ids2 := collect(ch2)
	if len(ids1) != 5 || len(ids2) != 5 {
		t.Fatalf("subscribers saw %d and %d events, want 5 each", len(ids1), len(ids2))
	}
	for i := range ids1 {
		if ids1[i] != int64(i+1) || ids2[i] != int64(i+1) {
			t.Errorf("position %d: ids %d/%d, want %d", i, ids1[i], ids2[i], i+1)
		}
	}
}

func TestBus_Close(t *testing.T) {
	b := NewBus(10)
	b.Emit("job.started", nil)

	_, ch, _ := b.Subscribe(0)
	b.Close()

	if _, ok := <-ch; ok {
		t.Error("expected live channel closed after bus close")
	}

	if _, err := b.Emit("e", nil); err != ErrBusClosed {
		t.Errorf("Emit after close = %v, want ErrBusClosed", err)
	}

	// Late subscribers still replay the buffer, then see termination.
	replay, late, _ := b.Subscribe(0)
	if len(replay) != 1 {
		t.Errorf("late subscriber got %d replayed events, want 1", len(replay))
	}
	if _, ok := <-late; ok {
		t.Error("late subscriber channel should be closed")
	}

	select {
	case <-b.Done():
	default:
		t.Error("Done() should be closed")
	}
}

func TestBus_SlowConsumerEvicted(t *testing.T) {
	b := NewBus(2)

	_, ch, cancel := b.Subscribe(0)
	defer cancel()

	// Channel capacity equals the ring size (2); the third emit cannot
	// be delivered and must evict the subscriber instead of blocking.
	b.Emit("e", nil)
	b.Emit("e", nil)
	b.Emit("e", nil)

	var got int
	for range ch {
		got++
	}
	if got != 2 {
		t.Errorf("evicted subscriber drained %d events, want 2", got)
	}
}

func TestEvent_Encode(t *testing.T) {
	evt := Event{ID: 7, Name: "page.completed", Data: map[string]any{"page": 3}}
	enc := evt.Encode()

	want := "id: 7\nevent: page.completed\ndata: {\"page\":3}\n\n"
	if enc != want {
		t.Errorf("Encode() = %q, want %q", enc, want)
	}
	if !strings.HasSuffix(enc, "\n\n") {
		t.Error("SSE record must end with a blank line")
	}
}

func TestHub_ReplaceDiscardsOldBus(t *testing.T) {
	h := NewHub(10)

	b1 := h.GetOrCreate("job1")
	b1.Emit("job.started", nil)

	b2 := h.Replace("job1")
	if b2 == b1 {
		t.Fatal("Replace returned the same bus")
	}
	if !b1.Closed() {
		t.Error("old bus should be closed after Replace")
	}
	if b2.LastID() != 0 {
		t.Error("new bus should start with a fresh id sequence")
	}
	if h.Get("job1") != b2 {
		t.Error("hub should return the replacement bus")
	}
}

func TestHub_Remove(t *testing.T) {
	h := NewHub(10)
	b := h.GetOrCreate("job1")
	h.Remove("job1")

	if !b.Closed() {
		t.Error("removed bus should be closed")
	}
	if h.Get("job1") != nil {
		t.Error("removed bus should be forgotten")
	}
}

func TestBus_ConcurrentEmitIDsUnique(t *testing.T) {
	b := NewBus(200)
	done := make(chan struct{})

	for w := 0; w < 4; w++ {
		go func() {
			for i := 0; i < 25; i++ {
				b.Emit("e", nil)
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < 4; w++ {
		<-done
	}

	replay, _, cancel := b.Subscribe(0)
	defer cancel()

	seen := make(map[int64]bool)
	for _, evt := range replay {
		if seen[evt.ID] {
			t.Fatalf("duplicate event id %d", evt.ID)
		}
		seen[evt.ID] = true
	}
	if len(replay) != 100 {
		t.Errorf("got %d events, want 100", len(replay))
	}
	for i, evt := range replay {
		if evt.ID != int64(i+1) {
			t.Fatalf("replay out of order at %d: %s", i, fmt.Sprint(evt.ID))
		}
	}
}
