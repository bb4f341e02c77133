package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	apperr "kingo/internal/errors"
)

// StreamProgress reports byte-count progress from RunStream so the caller
// can persist it at the ≥1%-advance cadence spec's §4.6 requires.
type StreamProgress func(downloaded int64)

// RunStream downloads url into filePath as a single non-ranged (or
// resumed-ranged) stream, for servers that don't advertise byte-range
// support. resume, when true and downloaded > 0, issues Range:
// bytes={downloaded}- to pick up where a prior attempt left off.
func RunStream(
	ctx context.Context,
	client *http.Client,
	fw *FileWriter,
	gate *PauseGate,
	url, filePath string,
	downloaded, totalSize int64,
	resume bool,
	cfg SegmentWorkerConfig,
	onProgress StreamProgress,
) (int64, error) {
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
			return downloaded, apperr.Wrap("worker.RunStream", apperr.ErrCancelled)
		}

		n, err := attemptStream(ctx, client, fw, gate, url, filePath, downloaded, totalSize, resume && downloaded > 0, cfg, onProgress)
		downloaded = n
		if err == nil {
			if totalSize > 0 && downloaded != totalSize {
				err = apperr.WrapWithMessage("worker.RunStream", apperr.ErrTransportFailed,
					"stream ended before reaching total_size")
			} else {
				return downloaded, nil
			}
		}
		if apperr.IsCancelled(err) {
			return downloaded, err
		}

		attempt++
		if attempt > cfg.MaxRetries {
			return downloaded, apperr.WrapWithMessage("worker.RunStream", apperr.ErrSegmentFailed, err.Error())
		}

		delay := b.NextBackOff()
		log.Debug().Str("url", url).Int("attempt", attempt).Dur("backoff", delay).Msg("stream retry")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return downloaded, apperr.Wrap("worker.RunStream", apperr.ErrCancelled)
		}
		resume = true
	}
}

func attemptStream(
	ctx context.Context,
	client *http.Client,
	fw *FileWriter,
	gate *PauseGate,
	url, filePath string,
	downloaded, totalSize int64,
	resume bool,
	cfg SegmentWorkerConfig,
	onProgress StreamProgress,
) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return downloaded, apperr.Wrap("worker.attemptStream", apperr.ErrTransportFailed)
	}
	if resume {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", downloaded))
	}

	resp, err := client.Do(req)
	if err != nil {
		return downloaded, apperr.WrapWithMessage("worker.attemptStream", apperr.ErrTransportFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return downloaded, apperr.WrapWithMessage("worker.attemptStream", apperr.ErrTransportFailed,
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	offset := downloaded
	buf := make([]byte, cfg.ChunkRead)
	pending := make([]byte, 0, cfg.WriteBuffer)
	lastReportedPercent := percentOf(offset, totalSize)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := fw.WriteAt(filePath, pending, offset); err != nil {
			return err
		}
		offset += int64(len(pending))
		pending = pending[:0]

		if totalSize > 0 {
			p := percentOf(offset, totalSize)
			if p-lastReportedPercent >= 1.0 {
				lastReportedPercent = p
				if onProgress != nil {
					onProgress(offset)
				}
			}
		}
		return nil
	}

	for {
		if err := gate.Wait(ctx); err != nil {
			return offset, apperr.Wrap("worker.attemptStream", apperr.ErrCancelled)
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if int64(len(pending)) >= cfg.WriteBuffer {
				if err := flush(); err != nil {
					return offset, err
				}
			}
		}
		if readErr == io.EOF {
			if err := flush(); err != nil {
				return offset, err
			}
			if onProgress != nil {
				onProgress(offset)
			}
			return offset, nil
		}
		if readErr != nil {
			return offset, apperr.WrapWithMessage("worker.attemptStream", apperr.ErrTransportFailed, readErr.Error())
		}
	}
}

func percentOf(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
