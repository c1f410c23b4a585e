package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mimir-run/mimir/internal/observability"
	"github.com/mimir-run/mimir/internal/repoconfig"
)

// ErrBusy is returned by RunNow when a manual or webhook-triggered
// ingestion run is already in flight.
var ErrBusy = errors.New("ingest: a run is already in progress")

// Coordinator wraps Run with the single-flight "ingestionBusy" guard
// spec.md §5/§6 describes: RunNow executes synchronously for the manual
// POST /ingest route (returning ErrBusy if a run is already underway), and
// TriggerAsync enqueues a run for the webhook route without blocking its
// response. Both entry points share one busy flag, mirroring the teacher's
// statusMu-guarded SyncStatus.SyncInProgress field
// (internal/connectors/github.Connector) generalized to a process-wide
// flag per spec.md §6.
type Coordinator struct {
	pipeline        Pipeline
	repos           []repoconfig.RepoConfig
	excludePatterns []string

	busy  atomic.Bool
	queue chan struct{}

	logger  *observability.Logger
	metrics *observability.MetricsCollector
}

// NewCoordinator builds a Coordinator and starts its background worker,
// which drains webhook-triggered runs until ctx is cancelled.
func NewCoordinator(ctx context.Context, pipeline Pipeline, repos []repoconfig.RepoConfig, excludePatterns []string) *Coordinator {
	c := &Coordinator{
		pipeline:        pipeline,
		repos:           repos,
		excludePatterns: excludePatterns,
		queue:           make(chan struct{}, 1),
		logger:          pipeline.Logger,
		metrics:         pipeline.Metrics,
	}
	go c.loop(ctx)
	return c
}

func (c *Coordinator) loop(ctx context.Context) {
	for {
		select {
		case <-c.queue:
			c.run(ctx, "webhook")
		case <-ctx.Done():
			return
		}
	}
}

// IngestionBusy reports whether a run is currently executing, for
// GET /health's ingestionBusy field.
func (c *Coordinator) IngestionBusy() bool {
	return c.busy.Load()
}

// TriggerAsync implements webhook.Trigger: it enqueues a run if none is
// already running or already queued, returning whether it accepted the
// request. A full queue (run already pending) or an in-flight run both
// return false; the caller (internal/webhook.Handler) still reports 202 to
// GitHub either way, since the event isn't lost, just coalesced.
func (c *Coordinator) TriggerAsync() bool {
	if c.busy.Load() {
		return false
	}
	select {
	case c.queue <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunNow executes one ingestion run synchronously for the manual
// POST /ingest route. Returns ErrBusy without running anything if a
// manual or webhook-triggered run is already in flight.
func (c *Coordinator) RunNow(ctx context.Context) (Result, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer c.busy.Store(false)

	start := time.Now()
	result, err := Run(ctx, c.pipeline, c.repos, c.excludePatterns)
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordIngestRun("manual", status, time.Since(start))
	}
	return result, err
}

func (c *Coordinator) run(ctx context.Context, trigger string) {
	if !c.busy.CompareAndSwap(false, true) {
		return
	}
	defer c.busy.Store(false)

	start := time.Now()
	_, err := Run(ctx, c.pipeline, c.repos, c.excludePatterns)
	duration := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		if c.logger != nil {
			c.logger.Error("triggered ingestion run failed", "trigger", trigger, "error", err, "duration_ms", duration.Milliseconds())
		}
	}
	if c.metrics != nil {
		c.metrics.RecordIngestRun(trigger, status, duration)
	}
}
