// Package job implements the Job Controller: the state machine that takes a
// single download from PENDING through to COMPLETED, CANCELLED, or ERROR.
package job

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"kingo/internal/config"
	apperr "kingo/internal/errors"
	"kingo/internal/httpclient"
	"kingo/internal/planner"
	"kingo/internal/progress"
	"kingo/internal/storage"
	"kingo/internal/worker"
)

// Controller orchestrates one job's lifecycle. It owns that job's segment
// state, pause gate, and cancellation — nothing else touches them.
type Controller struct {
	jobID    string
	url      string
	filePath string
	resume   bool

	store *storage.JobRepository
	bus   *progress.Bus
	pool  *httpclient.Pool
	fw    *worker.FileWriter
	bw    *BandwidthTracker
	cfg   config.Config

	ctx    context.Context
	cancel context.CancelFunc
	gate   *worker.PauseGate

	mu         sync.Mutex
	segments   []*worker.SegmentState
	resumeBase int64
	startedAt  time.Time
}

// New creates a Controller for jobID. resume=true preserves existing bytes
// (used by retry and crash recovery); resume=false starts fresh.
func New(
	jobID, url, filePath string,
	resume bool,
	store *storage.JobRepository,
	bus *progress.Bus,
	pool *httpclient.Pool,
	fw *worker.FileWriter,
	bw *BandwidthTracker,
	cfg config.Config,
) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		jobID:    jobID,
		url:      url,
		filePath: filePath,
		resume:   resume,
		store:    store,
		bus:      bus,
		pool:     pool,
		fw:       fw,
		bw:       bw,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		gate:     worker.NewPauseGate(),
	}
}

// Pause parks every active worker at its next suspension point.
func (c *Controller) Pause() {
	c.gate.Pause()
	_ = c.store.UpdateStatus(c.jobID, storage.StatusPaused)
	c.publish(storage.StatusPaused, c.currentDownloaded(), "")
}

// Resume unblocks parked workers.
func (c *Controller) Resume() {
	c.gate.Resume()
	_ = c.store.UpdateStatus(c.jobID, storage.StatusDownloading)
	c.publish(storage.StatusDownloading, c.currentDownloaded(), "")
}

// Cancel sets the cancellation flag and unparks any paused workers so they
// observe it. The partially written file is left on disk.
func (c *Controller) Cancel() {
	c.cancel()
	c.gate.Resume()
}

// Wait blocks until Run has returned, or the grace period elapses.
func (c *Controller) Wait(grace time.Duration, done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(grace):
	}
}

// Run drives the job from PENDING to a terminal status. It returns once the
// job reaches COMPLETED, CANCELLED, or ERROR.
func (c *Controller) Run(totalSizeHint, downloadedHint int64) {
	c.startedAt = time.Now()
	c.resumeBase = downloadedHint

	client, err := c.pool.Get(c.url)
	if err != nil {
		c.fail(apperr.ErrTransportFailed, err.Error())
		return
	}

	totalSize := totalSizeHint
	rangeSupport := false
	if totalSize <= 0 || c.resume {
		if limiter, lerr := c.pool.HeadLimiter(c.url); lerr == nil {
			limiter.Wait()
		}
		res, err := probe(c.ctx, client, c.url, c.cfg.RequestTimeout)
		if err != nil {
			c.fail(apperr.ErrHeadFailed, "could not determine transfer size")
			return
		}
		totalSize = res.TotalSize
		rangeSupport = res.RangeSupport
	}

	if !c.resume {
		if info, err := os.Stat(c.filePath); err == nil && info.Size() == totalSize {
			c.complete(totalSize)
			return
		}
	}

	_ = c.store.UpdateTotalSize(c.jobID, totalSize)

	useSegmented := rangeSupport && totalSize > 2*c.cfg.MinSegmentSize

	if useSegmented {
		c.runSegmented(client, totalSize)
	} else {
		c.runSingleStream(client, totalSize)
	}
}

func (c *Controller) runSegmented(client *http.Client, totalSize int64) {
	if err := c.fw.PreAllocate(c.filePath, totalSize); err != nil {
		c.fail(apperr.ErrFilesystem, "could not pre-allocate target file")
		return
	}

	var ranges []planner.Segment
	if c.resume {
		downloaded := c.currentDownloaded()
		ranges = planner.PlanResume(downloaded, totalSize)
		if ranges == nil {
			c.complete(totalSize)
			return
		}
	} else {
		n := planner.OptimalSegments(totalSize, c.cfg.MaxSegments, c.cfg.MinSegmentSize, c.bw.Samples())
		ranges = planner.Partition(totalSize, n)
	}

	c.mu.Lock()
	c.segments = make([]*worker.SegmentState, len(ranges))
	for i, r := range ranges {
		c.segments[i] = worker.NewSegmentState(r)
	}
	segments := c.segments
	c.mu.Unlock()

	sem := semaphore.NewWeighted(int64(len(segments)))
	wcfg := worker.SegmentWorkerConfig{
		ChunkRead:   c.cfg.ChunkRead,
		WriteBuffer: c.cfg.WriteBuffer,
		MaxRetries:  c.cfg.MaxRetries,
	}

	emitterDone := make(chan struct{})
	go c.runEmitter(totalSize, emitterDone)

	var wg sync.WaitGroup
	var failed bool
	var failedMu sync.Mutex

	for _, seg := range segments {
		if err := sem.Acquire(c.ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(seg *worker.SegmentState) {
			defer wg.Done()
			defer sem.Release(1)
			if err := worker.RunSegment(c.ctx, client, c.fw, c.gate, c.url, c.filePath, seg, wcfg); err != nil {
				if !apperr.IsCancelled(err) {
					failedMu.Lock()
					failed = true
					failedMu.Unlock()
				}
			}
		}(seg)
	}
	wg.Wait()
	close(emitterDone)

	if c.ctx.Err() != nil {
		_ = c.store.UpdateStatus(c.jobID, storage.StatusCancelled)
		c.publish(storage.StatusCancelled, c.currentDownloaded(), "")
		return
	}
	if failed {
		c.fail(apperr.ErrSegmentFailed, "partial segment failure")
		return
	}
	c.complete(totalSize)
}

func (c *Controller) runSingleStream(client *http.Client, totalSize int64) {
	downloaded := int64(0)
	if c.resume {
		if info, err := os.Stat(c.filePath); err == nil {
			downloaded = info.Size()
		}
	}

	wcfg := worker.SegmentWorkerConfig{
		ChunkRead:   c.cfg.ChunkRead,
		WriteBuffer: c.cfg.WriteBuffer,
		MaxRetries:  c.cfg.MaxRetries,
	}

	onProgress := func(n int64) {
		_ = c.store.UpdateProgress(c.jobID, n)
		c.publish(storage.StatusDownloading, n, "")
	}

	final, err := worker.RunStream(c.ctx, client, c.fw, c.gate, c.url, c.filePath, downloaded, totalSize, c.resume, wcfg, onProgress)
	if c.ctx.Err() != nil {
		_ = c.store.UpdateStatus(c.jobID, storage.StatusCancelled)
		c.publish(storage.StatusCancelled, final, "")
		return
	}
	if err != nil {
		c.fail(apperr.ErrSegmentFailed, "stream failed")
		return
	}
	c.complete(totalSize)
}

// runEmitter persists and broadcasts progress every progress_interval until
// done is closed.
func (c *Controller) runEmitter(totalSize int64, done <-chan struct{}) {
	interval := c.cfg.ProgressInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTime := time.Now()
	var lastDownloaded int64

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			downloaded := c.currentDownloaded()
			elapsed := now.Sub(lastTime).Seconds()
			var speed float64
			if elapsed > 0 {
				speed = float64(downloaded-lastDownloaded) / elapsed
			}
			lastTime = now
			lastDownloaded = downloaded

			_ = c.store.UpdateProgress(c.jobID, downloaded)
			c.bus.Publish(progress.Snapshot{
				JobID:      c.jobID,
				Status:     storage.StatusDownloading,
				Downloaded: downloaded,
				TotalSize:  totalSize,
				SpeedBps:   speed,
				Timestamp:  now,
			})
		}
	}
}

func (c *Controller) currentDownloaded() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.resumeBase
	for _, seg := range c.segments {
		total += seg.Downloaded.Load()
	}
	return total
}

func (c *Controller) complete(totalSize int64) {
	now := time.Now()
	if err := c.store.MarkCompleted(c.jobID, now); err != nil {
		log.Error().Err(err).Str("job_id", c.jobID).Msg("failed to persist completion")
	}
	if totalSize > 0 {
		elapsed := time.Since(c.startedAt).Seconds()
		if elapsed <= 0 {
			elapsed = 0.001
		}
		c.bw.Record(float64(totalSize) / elapsed)
	}
	c.publish(storage.StatusCompleted, totalSize, "")
}

func (c *Controller) fail(kind error, message string) {
	if err := c.store.MarkError(c.jobID, message); err != nil {
		log.Error().Err(err).Str("job_id", c.jobID).Msg("failed to persist error")
	}
	log.Warn().Err(kind).Str("job_id", c.jobID).Str("message", message).Msg("job failed")
	c.publish(storage.StatusError, c.currentDownloaded(), message)
}

func (c *Controller) publish(status storage.Status, downloaded int64, errMsg string) {
	c.bus.Publish(progress.Snapshot{
		JobID:      c.jobID,
		Status:     status,
		Downloaded: downloaded,
		Timestamp:  time.Now(),
		Error:      errMsg,
	})
}
