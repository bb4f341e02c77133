// Package constants defines application-wide constants and magic strings.
// Centralizing these values improves maintainability and reduces typos.
package constants

import "time"

// Application metadata
const (
	AppName    = "Kingo"
	AppID      = "com.kingo.downloader"
	AppVersion = "2.0.0-beta"
	ConfigFile = "kingo.yaml"
	DBFile     = "kingo.db"
)

// Transfer tunables (defaults; overridable via config)
const (
	DefaultChunkRead        = 4 * 1024 * 1024  // 4 MiB
	DefaultWriteBuffer      = 8 * 1024 * 1024  // 8 MiB
	DefaultMinSegmentSize   = 64 * 1024 * 1024 // 64 MiB
	DefaultMaxSegments      = 8
	DefaultMaxRetries       = 5
	DefaultRequestTimeout   = 10 * time.Second
	DefaultProgressInterval = 200 * time.Millisecond
	DefaultWSThrottle       = 100 * time.Millisecond
	DefaultKeepalive        = 60 * time.Second
	DefaultPoolPerHost      = 20

	// SegmentAdjustThreshold is how many bandwidth samples must accumulate
	// before the planner adjusts segment count from measured throughput
	// instead of file size alone.
	SegmentAdjustThreshold = 5

	// BandwidthWindowSize caps the rolling bandwidth-sample window.
	BandwidthWindowSize = 10

	// CancelGracePeriod is how long Cancel waits for a worker to observe
	// its cancellation token before returning.
	CancelGracePeriod = 1 * time.Second

	// BackoffInitial and BackoffMax bound the segment/stream retry backoff.
	BackoffInitial    = 1 * time.Second
	BackoffMax        = 30 * time.Second
	BackoffMultiplier = 1.5

	// ProgressPercentStep is the minimum percentage advance before a
	// single-stream worker persists its downloaded counter.
	ProgressPercentStep = 1.0
)

// Queue settings
const (
	MaxQueueSize            = 100
	MaxHistoryItems         = 100
	MaxHistoryItemsAbsolute = 500
)

// MaxFilenameLength is the maximum length for generated filenames.
const MaxFilenameLength = 200

// Job status values, matching the downloads table's status column.
const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusPaused      = "paused"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusError       = "error"
)

// QualityPriority ranks stream qualities when a job's metadata exposes more
// than one; lower values win.
var QualityPriority = map[string]int{
	"1080p": 1,
	"720p":  2,
	"480p":  3,
	"360p":  4,
	"240p":  5,
}

// DefaultQualityPriority is used for qualities absent from QualityPriority.
const DefaultQualityPriority = 999
