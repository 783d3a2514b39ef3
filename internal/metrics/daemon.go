package metrics

import (
	"time"

	"rmlines/internal/diag"
)

// Daemon holds the metrics rmlinesd reports.
type Daemon struct {
	registry *Registry
	started  time.Time

	ParsesTotal      *Counter
	UnchangedTotal   *Counter
	RejectedTotal    *Counter
	ErrorsTotal      *Counter
	UnreadableBlocks *Counter
	SnapshotsTotal   *Counter

	TrackedFiles  *Gauge
	UptimeSeconds *Gauge

	ParseDuration *Histogram
	FileSize      *Histogram
}

// NewDaemon registers the rmlinesd metrics in registry.
func NewDaemon(registry *Registry) *Daemon {
	return &Daemon{
		registry: registry,
		started:  time.Now(),

		ParsesTotal: registry.Counter("parses_total",
			"Scene files parsed and recorded", nil),
		UnchangedTotal: registry.Counter("unchanged_total",
			"Files skipped because the catalog already has their content", nil),
		RejectedTotal: registry.Counter("rejected_total",
			"Files that are not v6 scene files", nil),
		ErrorsTotal: registry.Counter("errors_total",
			"Files that could not be read or recorded", nil),
		UnreadableBlocks: registry.Counter("unreadable_blocks_total",
			"Blocks kept undecoded", nil),
		SnapshotsTotal: registry.Counter("snapshots_total",
			"Snapshots written to the export directory", nil),

		TrackedFiles: registry.Gauge("tracked_files",
			"Files the watcher has hashed", nil),
		UptimeSeconds: registry.Gauge("uptime_seconds",
			"Seconds since the daemon started", nil),

		ParseDuration: registry.Histogram("parse_duration_seconds",
			"Time to parse one scene file", nil, DurationBuckets),
		FileSize: registry.Histogram("file_size_bytes",
			"Size of parsed scene files", nil, SizeBuckets),
	}
}

// Registry returns the registry the metrics live in.
func (d *Daemon) Registry() *Registry {
	return d.registry
}

// Diagnostics counts the diagnostics of one parse by kind.
func (d *Daemon) Diagnostics(diags []diag.Diagnostic) {
	for _, dg := range diags {
		d.registry.Counter("diagnostics_total",
			"Recovered parse problems by kind", Labels{"kind": string(dg.Kind)}).Inc()
	}
}

// Tick refreshes the gauges that are not updated by events.
func (d *Daemon) Tick(tracked int) {
	d.TrackedFiles.Set(int64(tracked))
	d.UptimeSeconds.Set(int64(time.Since(d.started).Seconds()))
}
