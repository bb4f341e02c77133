package downloader

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"kingo/internal/config"
	"kingo/internal/metadata"
	"kingo/internal/progress"
	"kingo/internal/storage"
)

// stubProvider resolves a fixed set of job_ids to canned metadata, or fails
// for ids not present in its table.
type stubProvider struct {
	mu    sync.Mutex
	table map[string]metadata.Metadata
	calls int
}

func newStubProvider() *stubProvider {
	return &stubProvider{table: make(map[string]metadata.Metadata)}
}

func (p *stubProvider) set(jobID string, m metadata.Metadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table[jobID] = m
}

func (p *stubProvider) Resolve(ctx context.Context, jobID string) (metadata.Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	m, ok := p.table[jobID]
	if !ok {
		return metadata.Metadata{}, errors.New("unknown job id")
	}
	return m, nil
}

type recordingSink struct {
	mu   sync.Mutex
	snap []progress.Snapshot
}

func (s *recordingSink) Send(snap progress.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = append(s.snap, snap)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snap)
}

func newTestManager(t *testing.T, provider metadata.Provider) *Manager {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "kingo.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	repo := storage.NewJobRepository(db)
	cfg := config.Default()
	cfg.Update(func(c *config.Config) {
		c.DownloadRoot = t.TempDir()
	})

	m := NewManager(repo, provider, cfg)
	t.Cleanup(m.Shutdown)
	return m
}

func TestManager_StartCreatesPendingRecord(t *testing.T) {
	provider := newStubProvider()
	provider.set("job-1", metadata.Metadata{
		Title:    "Some Title",
		Subtitle: "Episode One",
		StreamURLs: []metadata.StreamURL{
			{Quality: "480p", URL: "https://example.com/480"},
			{Quality: "1080p", URL: "https://example.com/1080"},
		},
	})

	m := newTestManager(t, provider)
	res := m.Start(context.Background(), "job-1", false)
	if !res.OK {
		t.Fatalf("Start failed: %s", res.Message)
	}

	rec, err := m.store.Get("job-1")
	if err != nil || rec == nil {
		t.Fatalf("expected persisted record, err=%v", err)
	}
	if rec.URL != "https://example.com/1080" {
		t.Errorf("URL = %q, want highest quality stream", rec.URL)
	}
	if rec.Filename != "job-1_Episode One.mp4" {
		t.Errorf("Filename = %q", rec.Filename)
	}
}

func TestManager_StartUnknownJobFails(t *testing.T) {
	provider := newStubProvider()
	m := newTestManager(t, provider)

	res := m.Start(context.Background(), "missing", false)
	if res.OK {
		t.Fatal("expected failure for unresolved job id")
	}
}

func TestManager_StartRefusesDuplicateWithoutForce(t *testing.T) {
	provider := newStubProvider()
	provider.set("job-1", metadata.Metadata{
		Title:      "T",
		StreamURLs: []metadata.StreamURL{{Quality: "720p", URL: "https://example.com/a"}},
	})
	m := newTestManager(t, provider)

	first := m.Start(context.Background(), "job-1", false)
	if !first.OK {
		t.Fatalf("first start failed: %s", first.Message)
	}

	second := m.Start(context.Background(), "job-1", false)
	if second.OK || second.Existing == nil {
		t.Fatal("expected duplicate start to report the existing record")
	}
}

func TestManager_PauseResumeUnknownJobReturnsFalse(t *testing.T) {
	m := newTestManager(t, newStubProvider())
	if m.Pause("nope") {
		t.Error("Pause on unknown job should return false")
	}
	if m.Resume("nope") {
		t.Error("Resume on unknown job should return false")
	}
	if m.Cancel("nope") {
		t.Error("Cancel on unknown job should return false")
	}
}

func TestManager_RetryRefusesWhenQuotaExhausted(t *testing.T) {
	provider := newStubProvider()
	m := newTestManager(t, provider)

	if err := m.store.Create(&storage.Job{
		JobID:      "job-x",
		Filename:   "job-x.mp4",
		URL:        "https://example.com/x",
		Status:     storage.StatusError,
		RetryCount: 3,
		MaxRetries: 3,
	}); err != nil {
		t.Fatal(err)
	}

	if m.Retry("job-x") {
		t.Fatal("expected Retry to refuse once retry_count == max_retries")
	}
}

func TestManager_DeleteRemovesRecord(t *testing.T) {
	provider := newStubProvider()
	m := newTestManager(t, provider)

	if err := m.store.Create(&storage.Job{
		JobID:    "job-d",
		Filename: "job-d.mp4",
		URL:      "https://example.com/d",
		Status:   storage.StatusPending,
	}); err != nil {
		t.Fatal(err)
	}

	if !m.Delete("job-d") {
		t.Fatal("expected Delete to succeed")
	}
	if rec, _ := m.store.Get("job-d"); rec != nil {
		t.Error("expected record to be gone after Delete")
	}
}

func TestManager_ListHistoryReturnsNewestFirst(t *testing.T) {
	m := newTestManager(t, newStubProvider())
	for _, id := range []string{"a", "b", "c"} {
		if err := m.store.Create(&storage.Job{JobID: id, Filename: id + ".mp4", URL: "https://example.com/" + id, Status: storage.StatusPending}); err != nil {
			t.Fatal(err)
		}
	}

	hist, err := m.ListHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("len(hist) = %d, want 3", len(hist))
	}
	for i := 0; i < len(hist)-1; i++ {
		if hist[i].CreatedAt.Before(hist[i+1].CreatedAt) {
			t.Errorf("ListHistory() should order newest first: %q before %q", hist[i].JobID, hist[i+1].JobID)
		}
	}
}

func TestManager_SubscribeReceivesPublishedSnapshots(t *testing.T) {
	m := newTestManager(t, newStubProvider())
	sink := &recordingSink{}
	id := m.Subscribe(sink)
	defer m.Unsubscribe(id)

	m.bus.Publish(progress.Snapshot{JobID: "job-z", Status: storage.StatusDownloading})
	if sink.count() == 0 {
		t.Fatal("expected subscriber to receive at least one snapshot")
	}
}
