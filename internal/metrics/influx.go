package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slipway-sh/slipway/internal/logging"
)

// StartInfluxPusher starts a background loop pushing the metrics snapshot to
// an InfluxDB v2 write endpoint using line protocol. Returns when the
// context is cancelled.
func StartInfluxPusher(ctx context.Context, url, token, org, bucket string, interval time.Duration) {
	if url == "" || bucket == "" {
		return
	}
	logging.Get().Info().Str("url", url).Dur("interval", interval).Msg("starting influxdb pusher")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	writeURL := fmt.Sprintf("%s/api/v2/write?org=%s&bucket=%s&precision=s", strings.TrimRight(url, "/"), org, bucket)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pushToInflux(ctx, client, writeURL, token)
		}
	}
}

func pushToInflux(ctx context.Context, client *http.Client, url, token string) {
	s := GetSnapshot()

	// Line protocol: measurement field=value,... timestamp
	line := fmt.Sprintf(
		"slipway deploys=%di,deploys_failed=%di,pushes_success=%di,pushes_failure=%di,last_deploy=%di %d",
		s.Deploys, s.DeploysFailed, s.PushesSuccess, s.PushesFailure, s.LastDeploy, time.Now().Unix(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(line)))
	if err != nil {
		logging.Get().Error().Err(err).Msg("influxdb request creation failed")
		return
	}
	req.Header.Set("Authorization", "Token "+token)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		logging.Get().Error().Err(err).Msg("influxdb push failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logging.Get().Warn().Int("status", resp.StatusCode).Msg("influxdb rejected metrics")
	}
}
