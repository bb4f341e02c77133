// Package planner decides how many byte-range segments a download should
// use, and how to partition the file across them.
package planner

import (
	"math"

	"kingo/internal/constants"
)

// Segment is a half-open-at-neither-end byte range [Start, End], inclusive
// on both sides, matching HTTP's Range header semantics.
type Segment struct {
	Start int64
	End   int64
}

// Size returns the number of bytes the segment covers.
func (s Segment) Size() int64 {
	return s.End - s.Start + 1
}

// OptimalSegments picks a segment count for fileSize, biased upward when
// recent bandwidth samples run hot and downward when they run cold.
// maxSegments and minSegmentSize come from config; samples is the rolling
// bandwidth window (bytes/sec), capped at constants.BandwidthWindowSize by
// the caller.
func OptimalSegments(fileSize int64, maxSegments int, minSegmentSize int64, samples []float64) int {
	if minSegmentSize <= 0 {
		minSegmentSize = constants.DefaultMinSegmentSize
	}
	if maxSegments <= 0 {
		maxSegments = constants.DefaultMaxSegments
	}

	baseSegments := int(fileSize / minSegmentSize)
	if baseSegments < 1 {
		baseSegments = 1
	}
	if baseSegments > maxSegments {
		baseSegments = maxSegments
	}

	if len(samples) < constants.SegmentAdjustThreshold {
		return baseSegments
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	avgBandwidth := sum / float64(len(samples))

	const baseBandwidth = 5 * 1024 * 1024 // 5 MiB/s reference point
	bandwidthFactor := avgBandwidth / baseBandwidth
	if bandwidthFactor > 2.0 {
		bandwidthFactor = 2.0
	}
	if bandwidthFactor < 0.5 {
		bandwidthFactor = 0.5
	}

	adjusted := int(math.Round(float64(baseSegments) * bandwidthFactor))
	if adjusted < 1 {
		adjusted = 1
	}
	if adjusted > maxSegments {
		adjusted = maxSegments
	}
	return adjusted
}

// Partition splits [0, totalSize) into numSegments byte ranges. The first
// ceil(numSegments/3) segments are sized at 0.8x even size so they finish
// sooner and keep the pipeline fed; the remaining segments split what's left
// evenly. The very last segment absorbs any rounding remainder so the ranges
// always cover the file exactly with no gap or overlap.
func Partition(totalSize int64, numSegments int) []Segment {
	if numSegments < 1 {
		numSegments = 1
	}
	if totalSize <= 0 {
		return []Segment{{Start: 0, End: -1}}
	}

	evenSize := math.Ceil(float64(totalSize) / float64(numSegments))

	frontCount := (numSegments + 2) / 3
	if frontCount < 1 {
		frontCount = 1
	}
	if frontCount > numSegments {
		frontCount = numSegments
	}
	frontSize := evenSize * 0.8
	totalFrontSize := frontSize * float64(frontCount)

	backCount := numSegments - frontCount
	remainingSize := float64(totalSize) - totalFrontSize
	backSize := evenSize * 1.1
	if backCount > 0 {
		backSize = remainingSize / float64(backCount)
	}

	segments := make([]Segment, 0, numSegments)
	var allocated int64

	for i := 0; i < frontCount; i++ {
		start := allocated
		size := int64(frontSize)
		if i == frontCount-1 {
			size = int64(totalFrontSize) - allocated
		}
		end := start + size - 1
		if i == frontCount-1 && backCount == 0 {
			end = totalSize - 1
		}
		if end > totalSize-1 {
			end = totalSize - 1
		}
		segments = append(segments, Segment{Start: start, End: end})
		allocated = end + 1
	}

	for i := 0; i < backCount; i++ {
		start := allocated
		size := int64(backSize)
		var end int64
		if i == backCount-1 {
			end = totalSize - 1
		} else {
			end = start + size - 1
			if end > totalSize-1 {
				end = totalSize - 1
			}
		}
		segments = append(segments, Segment{Start: start, End: end})
		allocated += size
	}

	return segments
}

// PlanResume builds a single contiguous segment covering the unfinished
// tail of a file, [downloaded, totalSize). Segments are never persisted
// across restarts, so resuming (explicit retry/resume, or crash recovery)
// always rebuilds from the store's downloaded counter rather than
// re-deriving the original N-way split.
func PlanResume(downloaded, totalSize int64) []Segment {
	if downloaded >= totalSize {
		return nil
	}
	return []Segment{{Start: downloaded, End: totalSize - 1}}
}
