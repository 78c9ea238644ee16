package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slipway-sh/slipway/internal/logging"
)

// probeHTTP polls the given URL until it answers with a 2xx status or the
// timeout elapses. Used after cutover to confirm the new container serves
// traffic on the mapped host port.
func probeHTTP(ctx context.Context, url string, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	client := &http.Client{Timeout: interval * 4}
	deadline := time.Now().Add(timeout)

	var lastErr error
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build probe request: %w", err)
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				logging.Get().Debug().Str("url", url).Int("status", resp.StatusCode).Msg("probe succeeded")
				return nil
			}
			lastErr = fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
		} else {
			lastErr = fmt.Errorf("probe %s: %w", url, err)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("verification timed out after %s: %w", timeout, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
