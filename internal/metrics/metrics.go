// Package metrics holds the OpenTelemetry instruments of the format engine
// and its #() job cache.
//
// Instruments come from the global MeterProvider, so they are no-ops until
// Setup installs a provider. All methods are nil-safe.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "go-tmux"

// Metrics holds the counters. All counters are cumulative.
type Metrics struct {
	// Job cache counters.
	JobRuns       metric.Int64Counter
	JobKills      metric.Int64Counter
	JobReuse      metric.Int64Counter
	JobSpawnFails metric.Int64Counter
	JobNotReady   metric.Int64Counter
	JobReaped     metric.Int64Counter

	// Expansions counts top-level template expansions by caller.
	Expansions metric.Int64Counter
}

// New creates all instruments against the current global MeterProvider.
func New() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.JobRuns, err = meter.Int64Counter("format.jobs.runs",
		metric.WithDescription("Number of #() commands started"),
		metric.WithUnit("{job}"))
	if err != nil {
		return nil, err
	}

	m.JobKills, err = meter.Int64Counter("format.jobs.kills",
		metric.WithDescription("Number of running #() commands killed for a restart or cleanup"),
		metric.WithUnit("{job}"))
	if err != nil {
		return nil, err
	}

	m.JobReuse, err = meter.Int64Counter("format.jobs.reuse",
		metric.WithDescription("Number of #() lookups answered from cached output"))
	if err != nil {
		return nil, err
	}

	m.JobSpawnFails, err = meter.Int64Counter("format.jobs.spawn_failures",
		metric.WithDescription("Number of #() commands that failed to start"))
	if err != nil {
		return nil, err
	}

	m.JobNotReady, err = meter.Int64Counter("format.jobs.not_ready",
		metric.WithDescription("Number of #() lookups that reported a job with no output yet"))
	if err != nil {
		return nil, err
	}

	m.JobReaped, err = meter.Int64Counter("format.jobs.reaped",
		metric.WithDescription("Number of idle #() cache entries removed"))
	if err != nil {
		return nil, err
	}

	m.Expansions, err = meter.Int64Counter("format.expansions",
		metric.WithDescription("Number of top-level template expansions partitioned by caller"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// JobEvent identifies one job cache counter.
type JobEvent int

const (
	JobRun JobEvent = iota
	JobKill
	JobReuse
	JobSpawnFail
	JobNotReady
	JobReaped
)

// RecordJob adds n to the counter for ev.
func (m *Metrics) RecordJob(ctx context.Context, ev JobEvent, n int64) {
	if m == nil || n == 0 {
		return
	}
	var c metric.Int64Counter
	switch ev {
	case JobRun:
		c = m.JobRuns
	case JobKill:
		c = m.JobKills
	case JobReuse:
		c = m.JobReuse
	case JobSpawnFail:
		c = m.JobSpawnFails
	case JobNotReady:
		c = m.JobNotReady
	case JobReaped:
		c = m.JobReaped
	default:
		return
	}
	c.Add(ctx, n)
}

// RecordExpansion counts one top-level expansion by caller (status,
// display, list, names).
func (m *Metrics) RecordExpansion(ctx context.Context, caller string) {
	if m == nil {
		return
	}
	m.Expansions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("format.caller", caller),
	))
}
