package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"kingo/internal/storage"
)

type recordingSubscriber struct {
	mu   sync.Mutex
	recv []Snapshot
	fail bool
}

func (r *recordingSubscriber) Send(s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("sink failed")
	}
	r.recv = append(r.recv, s)
	return nil
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recv)
}

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(100 * time.Millisecond)
	sub := &recordingSubscriber{}
	bus.Subscribe(sub)

	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusDownloading, Timestamp: time.Now()})

	if sub.count() != 1 {
		t.Fatalf("count = %d, want 1", sub.count())
	}
}

func TestBus_ThrottlesNonTerminalUpdates(t *testing.T) {
	bus := NewBus(100 * time.Millisecond)
	sub := &recordingSubscriber{}
	bus.Subscribe(sub)

	base := time.Now()
	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusDownloading, Timestamp: base})
	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusDownloading, Downloaded: 10, Timestamp: base.Add(10 * time.Millisecond)})

	if sub.count() != 1 {
		t.Errorf("count = %d, want 1 (second update within throttle window)", sub.count())
	}

	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusDownloading, Downloaded: 20, Timestamp: base.Add(200 * time.Millisecond)})
	if sub.count() != 2 {
		t.Errorf("count = %d, want 2 (third update past throttle window)", sub.count())
	}
}

func TestBus_NeverThrottlesTerminalTransitions(t *testing.T) {
	bus := NewBus(time.Hour)
	sub := &recordingSubscriber{}
	bus.Subscribe(sub)

	base := time.Now()
	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusDownloading, Timestamp: base})
	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusCompleted, Timestamp: base.Add(time.Millisecond)})

	if sub.count() != 2 {
		t.Errorf("count = %d, want 2 (terminal transition bypasses throttle)", sub.count())
	}
}

func TestBus_FirstDownloadingBypassesThrottle(t *testing.T) {
	bus := NewBus(time.Hour)
	sub := &recordingSubscriber{}
	bus.Subscribe(sub)

	base := time.Now()
	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusPending, Timestamp: base})
	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusDownloading, Timestamp: base.Add(time.Millisecond)})

	if sub.count() != 2 {
		t.Errorf("count = %d, want 2 (first DOWNLOADING bypasses throttle)", sub.count())
	}
}

func TestBus_SubscribeReplaysLatestSnapshot(t *testing.T) {
	bus := NewBus(100 * time.Millisecond)
	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusDownloading, Downloaded: 50, Timestamp: time.Now()})

	sub := &recordingSubscriber{}
	bus.Subscribe(sub)

	if sub.count() != 1 {
		t.Fatalf("count = %d, want 1 (replay on subscribe)", sub.count())
	}
}

func TestBus_DropsFailingSubscriber(t *testing.T) {
	bus := NewBus(100 * time.Millisecond)
	failing := &recordingSubscriber{fail: true}
	bus.Subscribe(failing)

	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusDownloading, Timestamp: time.Now()})
	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusCompleted, Timestamp: time.Now()})

	bus.mu.Lock()
	n := len(bus.subs)
	bus.mu.Unlock()
	if n != 0 {
		t.Errorf("subs len = %d, want 0 after failure", n)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(100 * time.Millisecond)
	sub := &recordingSubscriber{}
	id := bus.Subscribe(sub)
	bus.Unsubscribe(id)

	bus.Publish(Snapshot{JobID: "j1", Status: storage.StatusDownloading, Timestamp: time.Now()})

	if sub.count() != 0 {
		t.Errorf("count = %d, want 0 after unsubscribe", sub.count())
	}
}
