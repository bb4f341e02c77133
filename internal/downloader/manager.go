// Package downloader is the public facade over the download engine: it owns
// every live Job Controller and implements start/pause/resume/cancel/retry/
// delete/list_history/subscribe exactly as spec'd.
package downloader

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"kingo/internal/config"
	apperr "kingo/internal/errors"
	"kingo/internal/httpclient"
	"kingo/internal/job"
	"kingo/internal/metadata"
	"kingo/internal/progress"
	"kingo/internal/storage"
	"kingo/internal/validate"
	"kingo/internal/worker"
)

// Result is returned by Start: a status report the caller surfaces to the
// user, never an error — resolve failures are reported here, not returned.
type Result struct {
	OK       bool
	Message  string
	Existing *storage.Job
}

// Manager is the download engine's single entrypoint. One Manager owns every
// active Job Controller, the shared HTTP client pool, and the file writer.
type Manager struct {
	store    *storage.JobRepository
	bus      *progress.Bus
	pool     *httpclient.Pool
	fw       *worker.FileWriter
	bw       *job.BandwidthTracker
	provider metadata.Provider
	cfg      *config.Config

	mu          sync.RWMutex
	controllers map[string]*job.Controller
	running     map[string]chan struct{} // closed when Run returns
}

// NewManager wires a Manager from its dependencies. provider resolves job_id
// into source metadata; cfg supplies every tunable.
func NewManager(store *storage.JobRepository, provider metadata.Provider, cfg *config.Config) *Manager {
	c := cfg.Get()
	return &Manager{
		store:       store,
		bus:         progress.NewBus(c.WSThrottle),
		pool:        httpclient.NewPool(c.PoolPerHost, c.Keepalive, c.RequestTimeout, proxyURLOf(c)),
		fw:          worker.NewFileWriter(),
		bw:          job.NewBandwidthTracker(10),
		provider:    provider,
		cfg:         cfg,
		controllers: make(map[string]*job.Controller),
		running:     make(map[string]chan struct{}),
	}
}

func proxyURLOf(c config.Config) *url.URL {
	if !c.UseProxy || c.ProxyURL == "" {
		return nil
	}
	u, err := url.Parse(c.ProxyURL)
	if err != nil {
		return nil
	}
	return u
}

// RecoverOnStartup re-materialises DOWNLOADING and PAUSED jobs persisted
// from a prior run. DOWNLOADING jobs resume automatically; PAUSED jobs wait
// for an explicit Resume.
func (m *Manager) RecoverOnStartup() {
	active, err := m.store.ListActive()
	if err != nil {
		log.Error().Err(err).Msg("failed to list active jobs for recovery")
		return
	}
	for _, j := range active {
		m.spawn(j.JobID, j.URL, j.Filename, true, j.TotalSize, j.Downloaded)
		if j.Status == storage.StatusPaused {
			m.mu.RLock()
			ctrl, ok := m.controllers[j.JobID]
			m.mu.RUnlock()
			if ok {
				ctrl.Pause()
			}
		}
	}
}

// Start resolves job_id's metadata, persists a new record, and spawns its
// controller. If a record already exists and force=false, returns it
// unmutated. If force=true, the existing job is deleted first.
func (m *Manager) Start(ctx context.Context, jobID string, force bool) Result {
	existing, err := m.store.Get(jobID)
	if err == nil && existing != nil {
		if !force {
			return Result{OK: false, Message: "job already exists", Existing: existing}
		}
		m.Delete(jobID)
	}

	meta, err := m.provider.Resolve(ctx, jobID)
	if err != nil {
		return Result{OK: false, Message: apperr.WrapWithMessage("downloader.Start", apperr.ErrResolveFailed, err.Error()).Error()}
	}

	chosen, ok := metadata.Pick(meta.StreamURLs)
	if !ok {
		return Result{OK: false, Message: "no stream URLs available"}
	}

	title := meta.Subtitle
	if title == "" {
		title = meta.Title
	}
	filename := validate.Filename(jobID + "_" + title + ".mp4")

	record := &storage.Job{
		JobID:      jobID,
		Filename:   filename,
		Title:      meta.Title,
		CoverURL:   meta.CoverURL,
		URL:        chosen.URL,
		Status:     storage.StatusPending,
		MaxRetries: m.cfg.Get().MaxRetries,
	}
	if err := m.store.Create(record); err != nil {
		return Result{OK: false, Message: apperr.WrapWithMessage("downloader.Start", apperr.ErrStore, err.Error()).Error()}
	}
	m.bus.Publish(progress.Snapshot{JobID: jobID, Status: storage.StatusPending, Timestamp: time.Now()})

	m.spawn(jobID, chosen.URL, filename, false, 0, 0)
	return Result{OK: true, Message: "started"}
}

// Pause transitions DOWNLOADING -> PAUSED. Idempotent.
func (m *Manager) Pause(jobID string) bool {
	m.mu.RLock()
	ctrl, ok := m.controllers[jobID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	ctrl.Pause()
	return true
}

// Resume transitions PAUSED -> DOWNLOADING. Idempotent.
func (m *Manager) Resume(jobID string) bool {
	m.mu.RLock()
	ctrl, ok := m.controllers[jobID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	ctrl.Resume()
	return true
}

// Cancel sets the job's cancellation flag; the file is left on disk.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.RLock()
	ctrl, done := m.controllers[jobID], m.running[jobID]
	m.mu.RUnlock()
	if ctrl == nil {
		return false
	}
	ctrl.Cancel()
	if done != nil {
		ctrl.Wait(1*time.Second, done)
	}
	return true
}

// Retry is permitted only while retry_count < max_retries. It clears
// error_message, increments retry_count, and respawns with resume=true so
// existing bytes are preserved.
func (m *Manager) Retry(jobID string) bool {
	rec, err := m.store.Get(jobID)
	if err != nil || rec == nil {
		return false
	}
	if rec.RetryCount >= rec.MaxRetries {
		_ = m.store.MarkError(jobID, "retry quota exhausted")
		return false
	}

	rec.RetryCount++
	rec.ErrorMessage = ""
	rec.Status = storage.StatusDownloading
	if err := m.store.Update(rec); err != nil {
		return false
	}
	m.bus.Publish(progress.Snapshot{JobID: jobID, Status: storage.StatusDownloading, Downloaded: rec.Downloaded, TotalSize: rec.TotalSize, Timestamp: time.Now()})

	m.spawn(jobID, rec.URL, rec.Filename, true, rec.TotalSize, rec.Downloaded)
	return true
}

// Delete cancels an active job (waiting briefly for unwind), removes the
// on-disk file best-effort, and removes the persistent record.
func (m *Manager) Delete(jobID string) bool {
	m.Cancel(jobID)

	rec, err := m.store.Get(jobID)
	if err == nil && rec != nil {
		path := filepath.Join(m.cfg.Get().DownloadRoot, rec.Filename)
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("job_id", jobID).Msg("failed to remove file on delete")
		}
	}

	m.mu.Lock()
	delete(m.controllers, jobID)
	delete(m.running, jobID)
	m.mu.Unlock()

	if err := m.store.Delete(jobID); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to delete job record")
		return false
	}
	return true
}

// ListHistory returns every persisted record, newest first.
func (m *Manager) ListHistory() ([]*storage.Job, error) {
	return m.store.ListHistoryDesc()
}

// Subscribe registers sink on the Progress Bus.
func (m *Manager) Subscribe(sink progress.Subscriber) string {
	return m.bus.Subscribe(sink)
}

// Unsubscribe removes a previously-registered subscriber.
func (m *Manager) Unsubscribe(id string) {
	m.bus.Unsubscribe(id)
}

// Shutdown closes every pooled HTTP client and open file handle.
func (m *Manager) Shutdown() {
	m.pool.CloseAll()
	m.fw.CloseAll()
}

func (m *Manager) spawn(jobID, url, filename string, resume bool, totalSizeHint, downloadedHint int64) {
	cfg := m.cfg.Get()
	path := filepath.Join(cfg.DownloadRoot, filename)

	ctrl := job.New(jobID, url, path, resume, m.store, m.bus, m.pool, m.fw, m.bw, cfg)

	m.mu.Lock()
	m.controllers[jobID] = ctrl
	done := make(chan struct{})
	m.running[jobID] = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ctrl.Run(totalSizeHint, downloadedHint)
	}()
}
