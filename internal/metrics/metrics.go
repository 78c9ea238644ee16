// Package metrics provides counters, Prometheus collectors, and HTTP
// handlers for exporting slipway runtime metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Internal state (source of truth for the JSON snapshot)
var (
	deploys       int64
	deploysFailed int64
	pushesSuccess int64
	pushesFailure int64
	lastDeploy    int64
)

// Prometheus collectors
var (
	promDeploys = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slipway_deploys_total",
			Help: "Total successful deployments",
		},
	)
	promDeploysFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slipway_deploys_failed_total",
			Help: "Total failed deployment attempts",
		},
	)
	promStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slipway_step_failures_total",
			Help: "Pipeline failures by step",
		},
		[]string{"step"},
	)
	promPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slipway_image_pushes_total",
			Help: "Total image push attempts",
		},
		[]string{"status"},
	)
	promDeployDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "slipway_deploy_duration_seconds",
			Help: "Duration of full pipeline runs",
			Buckets: []float64{
				1,
				5,
				10,
				30,
				60,
				120,
				300,
				600,
			},
		},
	)
	promCutoverDowntime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "slipway_cutover_downtime_seconds",
			Help: "Gap between stopping the old container and starting the new one",
			Buckets: []float64{
				0.1,
				0.5,
				1,
				2,
				5,
				10,
				30,
			},
		},
	)
	promLastDeploy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slipway_last_deploy_timestamp_seconds",
			Help: "Unix timestamp of the last successful deployment",
		},
	)
)

func init() {
	prometheus.MustRegister(
		promDeploys,
		promDeploysFailed,
		promStepFailures,
		promPushes,
		promDeployDuration,
		promCutoverDowntime,
		promLastDeploy,
	)
}

// IncDeploy increments the number of successful deployments.
func IncDeploy() {
	atomic.AddInt64(&deploys, 1)
	promDeploys.Inc()
}

// IncDeployFailed increments the counter for failed deployment attempts.
func IncDeployFailed() {
	atomic.AddInt64(&deploysFailed, 1)
	promDeploysFailed.Inc()
}

// IncStepFailure records a pipeline failure attributed to the named step.
func IncStepFailure(step string) {
	promStepFailures.WithLabelValues(step).Inc()
}

// IncPushSuccess increments the counter for successful image pushes.
func IncPushSuccess() {
	atomic.AddInt64(&pushesSuccess, 1)
	promPushes.WithLabelValues("success").Inc()
}

// IncPushFailure increments the counter for failed image pushes.
func IncPushFailure() {
	atomic.AddInt64(&pushesFailure, 1)
	promPushes.WithLabelValues("failure").Inc()
}

// ObserveDeployDuration records the duration (in seconds) of a pipeline run.
func ObserveDeployDuration(seconds float64) {
	promDeployDuration.Observe(seconds)
}

// ObserveCutoverDowntime records the availability gap (in seconds) between
// removing the old container and starting its replacement.
func ObserveCutoverDowntime(seconds float64) {
	promCutoverDowntime.Observe(seconds)
}

// SetLastDeploy stores the provided time as the last successful deployment
// timestamp and updates the corresponding Prometheus gauge.
func SetLastDeploy(t time.Time) {
	atomic.StoreInt64(&lastDeploy, t.Unix())
	promLastDeploy.Set(float64(t.Unix()))
}

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	Deploys         int64  `json:"deploys"`
	DeploysFailed   int64  `json:"deploys_failed"`
	PushesSuccess   int64  `json:"pushes_success"`
	PushesFailure   int64  `json:"pushes_failure"`
	LastDeploy      int64  `json:"last_deploy_timestamp"`
	LastDeployHuman string `json:"last_deploy_human"`
}

// GetSnapshot returns a StatsSnapshot with the current values of all
// internal counters and timestamps.
func GetSnapshot() StatsSnapshot {
	ts := atomic.LoadInt64(&lastDeploy)
	return StatsSnapshot{
		Deploys:         atomic.LoadInt64(&deploys),
		DeploysFailed:   atomic.LoadInt64(&deploysFailed),
		PushesSuccess:   atomic.LoadInt64(&pushesSuccess),
		PushesFailure:   atomic.LoadInt64(&pushesFailure),
		LastDeploy:      ts,
		LastDeployHuman: time.Unix(ts, 0).Format(time.RFC3339),
	}
}

// PromHandler returns an HTTP handler that exposes Prometheus metrics.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler returns an HTTP handler that serves the current metrics as
// a JSON-encoded StatsSnapshot.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
