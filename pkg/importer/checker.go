package importer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Checker verifies that every registered import source is still reachable:
// HEAD requests for remote feeds, a stat for local ones.
type Checker struct {
	sources  *SourceDB
	logger   *slog.Logger
	interval time.Duration
	client   *http.Client
}

// NewChecker creates a Checker that will verify source URLs every interval.
func NewChecker(sources *SourceDB, logger *slog.Logger, interval time.Duration) *Checker {
	return &Checker{
		sources:  sources,
		logger:   logger,
		interval: interval,
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Start runs an immediate check then repeats every interval until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	c.CheckAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

// CheckResult is the outcome of one source check.
type CheckResult struct {
	AdapterID string
	URL       string
	Status    int
	Err       string
}

// OK reports a 2xx/3xx answer (or an existing local file).
func (r CheckResult) OK() bool { return r.Status >= 200 && r.Status < 400 }

// CheckAll checks every source with a URL and persists the result.
func (c *Checker) CheckAll(ctx context.Context) []CheckResult {
	sources, err := c.sources.ListSources()
	if err != nil {
		c.logger.Error("source check: cannot list sources", "error", err)
		return nil
	}

	var results []CheckResult
	var ok, failed int
	for _, src := range sources {
		if ctx.Err() != nil {
			return results
		}
		if src.SourceURL == "" {
			continue
		}

		status, checkErr := c.checkOne(ctx, src.SourceURL)
		errMsg := ""
		if checkErr != nil {
			errMsg = checkErr.Error()
		}

		if err := c.sources.UpdateCheck(src.AdapterID, status, errMsg); err != nil {
			c.logger.Error("source check: update failed", "adapter", src.AdapterID, "error", err)
		}

		res := CheckResult{AdapterID: src.AdapterID, URL: src.SourceURL, Status: status, Err: errMsg}
		results = append(results, res)
		observeCheck(res)
		if res.OK() {
			ok++
		} else {
			failed++
			c.logger.Warn("source unreachable",
				"adapter", src.AdapterID,
				"url", src.SourceURL,
				"status", status,
				"error", errMsg,
			)
		}
	}

	c.logger.Info("source check complete", "total", ok+failed, "ok", ok, "failed", failed)
	return results
}

// checkOne returns the HTTP status of a HEAD request, or of a one-byte
// ranged GET when the server refuses HEAD. On network error, status is 0.
// Local files report 200 when they exist and 404 otherwise.
func (c *Checker) checkOne(ctx context.Context, url string) (int, error) {
	if p, local := localPath(url); local {
		if _, err := os.Stat(p); err != nil {
			return http.StatusNotFound, err
		}
		return http.StatusOK, nil
	}

	status, err := c.probe(ctx, http.MethodHead, url)
	if err != nil || (status != http.StatusMethodNotAllowed && status != http.StatusNotImplemented) {
		return status, err
	}
	return c.probe(ctx, http.MethodGet, url)
}

func (c *Checker) probe(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, url, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
