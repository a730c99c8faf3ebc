// Package fetch downloads remote resources to local storage with resume
// support. An interrupted transfer leaves a partial-suffixed file behind;
// the next attempt continues from its size using a Range request.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/tkhr/ragdex/pkg/retry"
)

// PartialSuffix marks an in-progress download on disk. The suffixed file
// always means "incomplete".
const PartialSuffix = ".part"

const blockSize = 10 * 1024

type FetcherConfig struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	Retry     retry.Config
	Logger    *slog.Logger
}

type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWithConfig(config FetcherConfig) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.Default()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Fetcher{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
		logger:  config.Logger,
	}
}

// Fetch downloads rawURL to dest, retrying transient failures. On success
// dest exists and no partial file remains; on failure the partial file is
// left as the resume point and dest must be treated as absent.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string) error {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return retry.Permanent(fmt.Errorf("invalid url %q: %w", rawURL, err))
	}

	cfg := f.config.Retry
	cfg.Logger = f.logger
	err := retry.Do(ctx, "download", cfg, func(ctx context.Context) error {
		start := time.Now()
		if err := f.download(ctx, rawURL, dest); err != nil {
			return err
		}
		info, err := os.Stat(dest)
		if err != nil {
			return err
		}
		f.logger.Info("downloaded file",
			"dest", dest, "bytes", info.Size(), "elapsed", time.Since(start))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to download file from url: %w", err)
	}
	return nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	partial := dest + PartialSuffix
	var offset int64
	if info, err := os.Stat(partial); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		// resuming where we left off
	case resp.StatusCode == http.StatusOK:
		// server ignored the range header, start over
		offset = 0
	default:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return retry.Permanent(err)
	}

	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(out, resp.Body, buf); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	// Rename drops the partial suffix, marking the download complete.
	return os.Rename(partial, dest)
}
