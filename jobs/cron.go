package jobs

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"encore.dev/cron"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"encore.app/pkg/config"
	"encore.app/pkg/metrics"
	cartapi "encore.app/svc/cart"
)

//encore:service
type Service struct{}

func initService() (*Service, error) { return &Service{}, nil }

//encore:api private
func RunIdleStoreEviction(ctx context.Context) (*cartapi.EvictResponse, error) {
	return cartapi.EvictIdleStores(ctx)
}

var _ = cron.NewJob("cart-idle-eviction", cron.JobConfig{
	Title:    "Evict idle in-memory cart stores",
	Every:    15 * cron.Minute,
	Endpoint: RunIdleStoreEviction,
})

//encore:api private
func RunSnapshotCleanup(ctx context.Context) (*cartapi.CleanupResponse, error) {
	return cartapi.CleanupSnapshots(ctx)
}

var _ = cron.NewJob("cart-snapshot-cleanup", cron.JobConfig{
	Title:    "Remove expired cart snapshots",
	Every:    6 * cron.Hour,
	Endpoint: RunSnapshotCleanup,
})

// statusRecorder captures the status code written by a wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

//encore:api public raw method=GET path=/metrics
func Metrics(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	promhttp.Handler().ServeHTTP(rec, r)
	metrics.ObserveHTTPRequest(r.Method, "/metrics", strconv.Itoa(rec.status), started)
}

// HealthResponse reports service liveness and build identity.
type HealthResponse struct {
	Status  string `json:"status"`
	App     string `json:"app"`
	Version string `json:"version"`
}

//encore:api public method=GET path=/health
func Health(ctx context.Context) (*HealthResponse, error) {
	resp := &HealthResponse{Status: "ok"}
	if settings := config.GetSettings(); settings != nil {
		resp.App = settings.AppName
		resp.Version = settings.AppVersion
		if settings.AppMaintenanceMode {
			resp.Status = "maintenance"
		}
	}
	return resp, nil
}

// Admin endpoints to trigger the jobs manually in local environments.

type RunAllCronResponse struct {
	IdleEviction    string                   `json:"idle_eviction"`
	SnapshotCleanup string                   `json:"snapshot_cleanup"`
	EvictionStats   *cartapi.EvictResponse   `json:"eviction_stats,omitempty"`
	CleanupStats    *cartapi.CleanupResponse `json:"cleanup_stats,omitempty"`
}

//encore:api public method=POST path=/admin/cron/run-all
func RunAllCronJobs(ctx context.Context) (*RunAllCronResponse, error) {
	out := &RunAllCronResponse{}

	if resp, err := RunIdleStoreEviction(ctx); err != nil {
		out.IdleEviction = err.Error()
	} else {
		out.IdleEviction = "ok"
		out.EvictionStats = resp
	}

	if resp, err := RunSnapshotCleanup(ctx); err != nil {
		out.SnapshotCleanup = err.Error()
	} else {
		out.SnapshotCleanup = "ok"
		out.CleanupStats = resp
	}

	return out, nil
}
