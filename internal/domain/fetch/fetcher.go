package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"solarlab-server-go/internal/domain/metrics"
	"solarlab-server-go/internal/platform/config"
	perrors "solarlab-server-go/internal/platform/errors"
	"solarlab-server-go/internal/platform/logging"
)

// Fetcher downloads the current frame, trying the primary source first and
// the fallback exactly once if the primary fails or answers non-2xx.
type Fetcher struct {
	cfg       config.SourceConfig
	pool      *Pool
	collector *metrics.Collector
	logger    *logging.Logger
}

// NewFetcher wires a fetcher onto an existing connection pool.
func NewFetcher(cfg config.SourceConfig, pool *Pool, collector *metrics.Collector, logger *logging.Logger) *Fetcher {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = config.DefaultConfig().Source.FetchTimeout
	}
	return &Fetcher{
		cfg:       cfg,
		pool:      pool,
		collector: collector,
		logger:    logger,
	}
}

// Fetch returns the raw encoded bytes of the latest frame. The whole attempt,
// pool acquisition included, runs under one hard deadline so a stalled source
// can never hold a round open past its timeout.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	const op = "fetch.Fetcher.Fetch"

	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	c, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer f.pool.Release(c)

	data, primaryErr := f.get(ctx, c, f.cfg.PrimaryURL)
	if primaryErr == nil {
		f.collector.RecordDownload(int64(len(data)))
		f.logger.DebugTag("FETCH", "downloaded %d bytes from primary", len(data))
		return data, nil
	}

	if f.cfg.FallbackURL == "" {
		return nil, perrors.Wrap(perrors.KindDownload, op, "primary source failed and no fallback is configured", primaryErr)
	}

	f.logger.WarnTag("FETCH", "primary source failed, trying fallback: %v", primaryErr)

	data, fallbackErr := f.get(ctx, c, f.cfg.FallbackURL)
	if fallbackErr != nil {
		return nil, perrors.Wrap(perrors.KindDownload, op,
			fmt.Sprintf("both sources failed (primary: %v)", primaryErr), fallbackErr)
	}

	f.collector.RecordDownload(int64(len(data)))
	f.logger.DebugTag("FETCH", "downloaded %d bytes from fallback", len(data))
	return data, nil
}

// get performs one GET attempt and buffers the full body. Any non-2xx status
// counts as a failed attempt.
func (f *Fetcher) get(ctx context.Context, c *conn, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s answered %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", url, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s answered an empty body", url)
	}

	f.logger.DebugTag("FETCH", "GET %s: %d bytes in %s", url, len(data), time.Since(start).Round(time.Millisecond))
	return data, nil
}
