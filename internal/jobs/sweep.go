package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/marketplace/internal/cache"
	"github.com/onnwee/marketplace/internal/listing"
	"github.com/onnwee/marketplace/internal/tracing"
)

// DefaultSweepInterval is the default interval between expiry sweeps.
const DefaultSweepInterval = time.Minute

// DefaultSweepTimeout is the default timeout for a single sweep.
const DefaultSweepTimeout = 30 * time.Second

// ListingSource lists approved listings for the sweep.
type ListingSource interface {
	Approved(ctx context.Context, f listing.Filter) ([]listing.Listing, error)
}

// JobMetrics receives per-run job metrics. *Metrics satisfies it.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// ExpirySweepConfig configures the featured expiry sweep.
type ExpirySweepConfig struct {
	// Interval is the duration between sweeps.
	Interval time.Duration
	// Timeout bounds a single sweep.
	Timeout time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// JobMetrics for centralized background job tracking.
	JobMetrics JobMetrics
	// Clock decides which windows have lapsed. Defaults to time.Now.
	Clock func() time.Time
}

// SweepResult describes one sweep.
type SweepResult struct {
	// Checked is the number of approved listings inspected.
	Checked int
	// Lapsed holds the IDs whose featured window closed since the previous sweep.
	Lapsed []string
	// Invalidated is true when the ranking cache was dropped.
	Invalidated bool
}

// ExpirySweep drops cached rankings once featured windows close.
//
// Cached ranked lists embed the featured boost that applied when they were
// computed. A window that closes does not write to the listing source, so
// nothing else would invalidate them.
type ExpirySweep struct {
	config ExpirySweepConfig
	source ListingSource
	cache  cache.RankCache

	// sweepMu serializes sweeps and guards lastSweep.
	sweepMu   sync.Mutex
	lastSweep time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewExpirySweep creates a sweep over source that invalidates rc.
// The first sweep treats every window closed before it as newly lapsed.
func NewExpirySweep(config ExpirySweepConfig, source ListingSource, rc cache.RankCache) *ExpirySweep {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultSweepTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &ExpirySweep{
		config: config,
		source: source,
		cache:  rc,
	}
}

// Start begins sweeping in a background goroutine. Returns immediately.
func (j *ExpirySweep) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the sweep to stop and waits for it to finish.
func (j *ExpirySweep) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *ExpirySweep) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *ExpirySweep) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("expiry sweep stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("expiry sweep stopping due to stop signal")
			return
		case <-ticker.C:
			// Errors are logged and counted inside.
			_, _ = j.SweepNow(ctx)
		}
	}
}

// SweepNow runs one sweep immediately.
// The sweep window only advances when the sweep succeeds, so a failed
// sweep is retried over the same range next time.
func (j *ExpirySweep) SweepNow(parentCtx context.Context) (result SweepResult, err error) {
	j.sweepMu.Lock()
	defer j.sweepMu.Unlock()

	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	ctx, endSpan := tracing.StartSpan(ctx, "jobs."+JobTypeFeaturedExpiry)
	defer func() { endSpan(err) }()

	start := time.Now()
	now := j.config.Clock()

	defer func() {
		status := StatusSuccess
		if err != nil {
			status = StatusFailure
		}
		j.record(JobTypeFeaturedExpiry, status, time.Since(start))
	}()

	listings, err := j.source.Approved(ctx, listing.Filter{})
	if err != nil {
		j.countError(ctx, JobTypeFeaturedExpiry, ErrorTypeSource)
		j.config.Logger.Error("expiry sweep failed to list listings", "error", err)
		return SweepResult{}, fmt.Errorf("failed to list approved listings: %w", err)
	}

	result.Checked = len(listings)
	for _, l := range listings {
		if l.FeaturedUntil == nil {
			continue
		}
		if l.FeaturedUntil.After(j.lastSweep) && !l.FeaturedUntil.After(now) {
			result.Lapsed = append(result.Lapsed, l.ID)
		}
	}

	if len(result.Lapsed) > 0 && j.cache != nil {
		invalidateStart := time.Now()
		if err := j.cache.Invalidate(ctx); err != nil {
			j.countError(ctx, JobTypeCacheInvalidate, ErrorTypeCache)
			j.record(JobTypeCacheInvalidate, StatusFailure, time.Since(invalidateStart))
			j.config.Logger.Error("expiry sweep failed to invalidate ranking cache",
				"lapsed", len(result.Lapsed),
				"error", err)
			return result, fmt.Errorf("failed to invalidate ranking cache: %w", err)
		}
		j.record(JobTypeCacheInvalidate, StatusSuccess, time.Since(invalidateStart))
		result.Invalidated = true
	}

	j.lastSweep = now

	tracing.SetAttributes(ctx,
		attribute.Int("sweep.checked", result.Checked),
		attribute.Int("sweep.lapsed", len(result.Lapsed)),
	)

	if len(result.Lapsed) > 0 {
		j.config.Logger.Info("featured windows lapsed",
			"listings", result.Lapsed,
			"cache_invalidated", result.Invalidated,
			"duration_seconds", time.Since(start).Seconds())
	} else {
		j.config.Logger.Debug("expiry sweep completed",
			"checked", result.Checked)
	}
	return result, nil
}

// LastSweep returns the instant the last successful sweep covered up to.
func (j *ExpirySweep) LastSweep() time.Time {
	j.sweepMu.Lock()
	defer j.sweepMu.Unlock()
	return j.lastSweep
}

func (j *ExpirySweep) record(jobType, status string, d time.Duration) {
	if j.config.JobMetrics == nil {
		return
	}
	j.config.JobMetrics.IncJobsTotal(jobType, status)
	j.config.JobMetrics.ObserveJobDuration(jobType, d.Seconds())
}

// countError labels deadline overruns as timeouts regardless of where they surfaced.
func (j *ExpirySweep) countError(ctx context.Context, jobType, errorType string) {
	if j.config.JobMetrics == nil {
		return
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		errorType = ErrorTypeTimeout
	}
	j.config.JobMetrics.IncJobErrors(jobType, errorType)
}
