package fetcher

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sdpower/ccstatusbar-go/internal/logger"
	"github.com/sdpower/ccstatusbar-go/internal/types"
)

// Probe is the outcome of one connection test against a source URL.
type Probe struct {
	URL        string        `json:"url"`
	Success    bool          `json:"success"`
	StatusCode int           `json:"status"`
	Latency    time.Duration `json:"latency"`
	Bytes      int64         `json:"bytes"`
	Error      string        `json:"error,omitempty"`
}

func (p Probe) Message() string {
	if p.Success {
		return fmt.Sprintf("连接成功 (%dms)", p.Latency.Milliseconds())
	}
	return "连接失败: " + p.Error
}

// Probe fetches the page once, bypassing the cache and retries, and reports
// status, latency and body size.
func (f *Fetcher) Probe(ctx context.Context, sourceURL string, opts Options) Probe {
	p := Probe{URL: logger.SafeURL(sourceURL)}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := f.get(ctx, sourceURL, opts.Headers)
	if err != nil {
		p.Latency = time.Since(start)
		p.Error = err.Error()
		return p
	}
	defer resp.Body.Close()

	p.StatusCode = resp.StatusCode
	p.Bytes, err = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageSize))
	p.Latency = time.Since(start)
	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		p.Error = (&types.HTTPError{URL: p.URL, StatusCode: resp.StatusCode}).Error()
	case err != nil:
		p.Error = fmt.Sprintf("failed to read body: %v", err)
	default:
		p.Success = true
	}
	return p
}
