// Package progress fans out job progress snapshots to subscribers, throttling
// non-terminal updates per job so a fast job doesn't flood a slow sink.
package progress

import (
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"kingo/internal/constants"
	"kingo/internal/storage"
)

// Snapshot is an immutable view of a job's state at publish time.
type Snapshot struct {
	JobID      string        `json:"jobId"`
	Status     storage.Status `json:"status"`
	Downloaded int64         `json:"downloaded"`
	TotalSize  int64         `json:"totalSize"`
	SpeedBps   float64       `json:"speedBps"`
	Timestamp  time.Time     `json:"timestamp"`
	Error      string        `json:"error,omitempty"`
}

// Subscriber receives published snapshots. Send returning an error during
// Publish causes the Bus to drop the subscriber once that publish has been
// delivered to every sink.
type Subscriber interface {
	Send(Snapshot) error
}

// terminalStatus reports whether s is a status the Bus never throttles.
func terminalStatus(s storage.Status) bool {
	switch s {
	case storage.StatusCompleted, storage.StatusError, storage.StatusCancelled, storage.StatusPaused:
		return true
	}
	return false
}

type subscription struct {
	id   string
	sink Subscriber
}

type jobState struct {
	last        Snapshot
	lastSent    time.Time
	everStarted bool // true once a DOWNLOADING snapshot has been delivered
}

// Bus is a multi-subscriber progress fan-out, one per download manager.
type Bus struct {
	mu            sync.Mutex
	subs          []subscription
	jobs          map[string]*jobState
	throttle      time.Duration
}

// NewBus creates a Bus. throttle is the minimum interval between two
// non-terminal snapshots for the same job (spec's ws_throttle).
func NewBus(throttle time.Duration) *Bus {
	if throttle <= 0 {
		throttle = constants.DefaultWSThrottle
	}
	return &Bus{
		jobs:     make(map[string]*jobState),
		throttle: throttle,
	}
}

// Subscribe registers sink and replays the latest known snapshot for every
// active job once. Returns an id usable with Unsubscribe.
func (b *Bus) Subscribe(sink Subscriber) string {
	id := ksuid.New().String()

	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, sink: sink})
	snapshots := make([]Snapshot, 0, len(b.jobs))
	for _, js := range b.jobs {
		switch js.last.Status {
		case storage.StatusCompleted, storage.StatusError, storage.StatusCancelled:
			continue
		}
		snapshots = append(snapshots, js.last)
	}
	b.mu.Unlock()

	for _, snap := range snapshots {
		_ = sink.Send(snap)
	}
	return id
}

// Unsubscribe removes the subscriber registered under id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers snap to every subscriber, unless it's a non-terminal
// update arriving within the throttle window of the previous one for the
// same job. Delivery is best-effort: a sink that errors is dropped.
func (b *Bus) Publish(snap Snapshot) {
	b.mu.Lock()

	js, ok := b.jobs[snap.JobID]
	if !ok {
		js = &jobState{}
		b.jobs[snap.JobID] = js
	}

	isFirstDownloading := snap.Status == storage.StatusDownloading && !js.everStarted
	bypassThrottle := terminalStatus(snap.Status) || isFirstDownloading

	if !bypassThrottle && !js.lastSent.IsZero() && snap.Timestamp.Sub(js.lastSent) < b.throttle {
		js.last = snap
		b.mu.Unlock()
		return
	}

	js.last = snap
	js.lastSent = snap.Timestamp
	if snap.Status == storage.StatusDownloading {
		js.everStarted = true
	}

	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	var failed []string
	for _, s := range subs {
		if err := s.sink.Send(snap); err != nil {
			failed = append(failed, s.id)
		}
	}
	if len(failed) > 0 {
		b.dropFailed(failed)
	}
}

func (b *Bus) dropFailed(ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dead := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		dead[id] = struct{}{}
	}
	kept := b.subs[:0]
	for _, s := range b.subs {
		if _, isDead := dead[s.id]; !isDead {
			kept = append(kept, s)
		}
	}
	b.subs = kept
}
