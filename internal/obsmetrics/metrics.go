// Package obsmetrics exposes the pipeline's aggregate OpenTelemetry
// instruments: counters and histograms describing fleet-wide behavior,
// independent of the per-task/per-session TaskMetrics and SessionMetrics
// values delivered to the host application.
package obsmetrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments the orchestrator updates as tasks and
// sessions move through the pipeline.
type Metrics struct {
	tasksSubmitted    metric.Int64Counter
	tasksCompleted    metric.Int64Counter
	tasksFailed       metric.Int64Counter
	tasksCancelled    metric.Int64Counter
	memoryCacheHits   metric.Int64Counter
	sessionsCreated   metric.Int64Counter
	sessionsCoalesced metric.Int64Counter
	networkDuration   metric.Float64Histogram
	decodeDuration    metric.Float64Histogram
	downloadedBytes   metric.Int64Counter
}

// New builds instruments on the given meter. meter may be the global
// no-op meter, in which case every recorded value is discarded cheaply.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.tasksSubmitted, err = meter.Int64Counter("imagepipeline.tasks.submitted"); err != nil {
		return nil, err
	}
	if m.tasksCompleted, err = meter.Int64Counter("imagepipeline.tasks.completed"); err != nil {
		return nil, err
	}
	if m.tasksFailed, err = meter.Int64Counter("imagepipeline.tasks.failed"); err != nil {
		return nil, err
	}
	if m.tasksCancelled, err = meter.Int64Counter("imagepipeline.tasks.cancelled"); err != nil {
		return nil, err
	}
	if m.memoryCacheHits, err = meter.Int64Counter("imagepipeline.tasks.memory_cache_hits"); err != nil {
		return nil, err
	}
	if m.sessionsCreated, err = meter.Int64Counter("imagepipeline.sessions.created"); err != nil {
		return nil, err
	}
	if m.sessionsCoalesced, err = meter.Int64Counter("imagepipeline.sessions.coalesced_subscribers"); err != nil {
		return nil, err
	}
	if m.networkDuration, err = meter.Float64Histogram("imagepipeline.network.duration_seconds"); err != nil {
		return nil, err
	}
	if m.decodeDuration, err = meter.Float64Histogram("imagepipeline.decode.duration_seconds"); err != nil {
		return nil, err
	}
	if m.downloadedBytes, err = meter.Int64Counter("imagepipeline.network.downloaded_bytes"); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) TaskSubmitted(ctx context.Context)            { m.tasksSubmitted.Add(ctx, 1) }
func (m *Metrics) TaskCompleted(ctx context.Context)            { m.tasksCompleted.Add(ctx, 1) }
func (m *Metrics) TaskFailed(ctx context.Context)               { m.tasksFailed.Add(ctx, 1) }
func (m *Metrics) TaskCancelled(ctx context.Context)            { m.tasksCancelled.Add(ctx, 1) }
func (m *Metrics) MemoryCacheHit(ctx context.Context)           { m.memoryCacheHits.Add(ctx, 1) }
func (m *Metrics) SessionCreated(ctx context.Context)           { m.sessionsCreated.Add(ctx, 1) }
func (m *Metrics) SessionCoalesced(ctx context.Context)         { m.sessionsCoalesced.Add(ctx, 1) }
func (m *Metrics) DownloadedBytes(ctx context.Context, n int64) { m.downloadedBytes.Add(ctx, n) }

func (m *Metrics) ObserveNetworkDuration(ctx context.Context, seconds float64) {
	m.networkDuration.Record(ctx, seconds)
}

func (m *Metrics) ObserveDecodeDuration(ctx context.Context, seconds float64) {
	m.decodeDuration.Record(ctx, seconds)
}
