package job

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperr "kingo/internal/errors"
)

// probeResult is what resolving a URL's transfer characteristics yields.
type probeResult struct {
	TotalSize    int64
	RangeSupport bool
}

// probe learns total_size and range support via HEAD, falling back to a
// small ranged GET and finally a full GET read of headers only.
func probe(ctx context.Context, client *http.Client, url string, requestTimeout time.Duration) (probeResult, error) {
	headTimeout := requestTimeout
	if headTimeout > 5*time.Second {
		headTimeout = 5 * time.Second
	}

	if res, ok := probeHead(ctx, client, url, headTimeout); ok {
		return res, nil
	}
	if res, ok := probeRangedGet(ctx, client, url, requestTimeout); ok {
		return res, nil
	}
	if res, ok := probeFullGetHeaders(ctx, client, url, requestTimeout); ok {
		return res, nil
	}
	return probeResult{}, apperr.Wrap("job.probe", apperr.ErrHeadFailed)
}

func probeHead(ctx context.Context, client *http.Client, url string, timeout time.Duration) (probeResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return probeResult{}, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return probeResult{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return probeResult{}, false
	}
	if resp.ContentLength <= 0 {
		return probeResult{}, false
	}
	return probeResult{
		TotalSize:    resp.ContentLength,
		RangeSupport: acceptsRanges(resp.Header),
	}, true
}

func probeRangedGet(ctx context.Context, client *http.Client, url string, timeout time.Duration) (probeResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return probeResult{}, false
	}
	req.Header.Set("Range", "bytes=0-8191")

	resp, err := client.Do(req)
	if err != nil {
		return probeResult{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return probeResult{}, false
	}

	total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if !ok {
		return probeResult{}, false
	}
	return probeResult{TotalSize: total, RangeSupport: true}, true
}

func probeFullGetHeaders(ctx context.Context, client *http.Client, url string, timeout time.Duration) (probeResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return probeResult{}, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return probeResult{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return probeResult{}, false
	}
	return probeResult{
		TotalSize:    resp.ContentLength,
		RangeSupport: acceptsRanges(resp.Header),
	}, true
}

func acceptsRanges(h http.Header) bool {
	return strings.EqualFold(h.Get("Accept-Ranges"), "bytes")
}

// parseContentRangeTotal parses "bytes 0-8191/123456" into 123456.
func parseContentRangeTotal(contentRange string) (int64, bool) {
	idx := strings.LastIndex(contentRange, "/")
	if idx < 0 || idx == len(contentRange)-1 {
		return 0, false
	}
	totalStr := contentRange[idx+1:]
	if totalStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}
