// Package worker implements the segment and single-stream transfer workers:
// the goroutines that actually move bytes from an HTTP response onto disk.
package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	apperr "kingo/internal/errors"
	"kingo/internal/planner"
)

// SegmentState is the live, mutable state of one planned segment. Downloaded
// is updated atomically so the job controller's progress emitter can read
// it without locking.
type SegmentState struct {
	planner.Segment
	Downloaded atomic.Int64
	Status     atomic.Value // string: "pending" | "downloading" | "completed" | "error"
}

// NewSegmentState wraps seg in a fresh, pending SegmentState.
func NewSegmentState(seg planner.Segment) *SegmentState {
	s := &SegmentState{Segment: seg}
	s.Status.Store("pending")
	return s
}

// SegmentWorkerConfig bundles the tunables a segment worker needs per spec's
// §4.5 contract.
type SegmentWorkerConfig struct {
	ChunkRead   int64
	WriteBuffer int64
	MaxRetries  int
}

// RunSegment downloads seg.Start+seg.Downloaded..seg.End inclusive into
// filePath at the matching absolute offsets, honouring gate and ctx at every
// suspension point, retrying transient failures with exponential backoff.
func RunSegment(
	ctx context.Context,
	client *http.Client,
	fw *FileWriter,
	gate *PauseGate,
	url, filePath string,
	seg *SegmentState,
	cfg SegmentWorkerConfig,
) error {
	seg.Status.Store("downloading")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 1.5
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	for {
		if err := gate.Wait(ctx); err != nil {
			return apperr.Wrap("worker.RunSegment", apperr.ErrCancelled)
		}

		actualStart := seg.Start + seg.Downloaded.Load()
		if actualStart > seg.End {
			seg.Status.Store("completed")
			return nil
		}

		err := attemptSegment(ctx, client, fw, gate, url, filePath, seg, actualStart, cfg)
		if err == nil {
			seg.Status.Store("completed")
			return nil
		}
		if apperr.IsCancelled(err) {
			return err
		}

		attempt++
		if attempt > cfg.MaxRetries {
			seg.Status.Store("error")
			return apperr.WrapWithMessage("worker.RunSegment", apperr.ErrSegmentFailed, err.Error())
		}

		delay := b.NextBackOff()
		log.Debug().Str("url", url).Int("attempt", attempt).Dur("backoff", delay).Msg("segment retry")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return apperr.Wrap("worker.RunSegment", apperr.ErrCancelled)
		}
	}
}

// attemptSegment performs a single ranged GET attempt, returning a transient
// error on any I/O/HTTP failure so the caller's retry loop can back off.
func attemptSegment(
	ctx context.Context,
	client *http.Client,
	fw *FileWriter,
	gate *PauseGate,
	url, filePath string,
	seg *SegmentState,
	actualStart int64,
	cfg SegmentWorkerConfig,
) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Wrap("worker.attemptSegment", apperr.ErrTransportFailed)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", actualStart, seg.End))
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Connection", "keep-alive")

	resp, err := client.Do(req)
	if err != nil {
		return apperr.WrapWithMessage("worker.attemptSegment", apperr.ErrTransportFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return apperr.WrapWithMessage("worker.attemptSegment", apperr.ErrTransportFailed,
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	offset := actualStart
	buf := make([]byte, cfg.ChunkRead)
	pending := make([]byte, 0, cfg.WriteBuffer)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := fw.WriteAt(filePath, pending, offset); err != nil {
			return err
		}
		offset += int64(len(pending))
		seg.Downloaded.Add(int64(len(pending)))
		pending = pending[:0]
		return nil
	}

	for {
		if err := gate.Wait(ctx); err != nil {
			return apperr.Wrap("worker.attemptSegment", apperr.ErrCancelled)
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if int64(len(pending)) >= cfg.WriteBuffer {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			if err := flush(); err != nil {
				return err
			}
			return nil
		}
		if readErr != nil {
			return apperr.WrapWithMessage("worker.attemptSegment", apperr.ErrTransportFailed, readErr.Error())
		}
	}
}
