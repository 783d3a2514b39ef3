package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rmlines/internal/export"
	"rmlines/internal/logging"
	"rmlines/internal/metrics"
	"rmlines/internal/rmfile"
	"rmlines/internal/store"
	"rmlines/internal/watcher"
)

// processor parses the files reported by the watcher and records them.
type processor struct {
	store     *store.Store
	logger    *logging.Logger
	exportDir string
	format    export.Format
	metrics   *metrics.Daemon
}

// Outcome of handling one event.
type outcome int

const (
	outcomeRecorded outcome = iota
	outcomeUnchanged
	outcomeRejected
)

// handle parses the file of ev and records the result. Files whose content
// is already in the catalog are skipped.
func (p *processor) handle(ev watcher.Event) (outcome, error) {
	o, err := p.process(ev)
	switch {
	case err != nil:
		p.metrics.ErrorsTotal.Inc()
	case o == outcomeUnchanged:
		p.metrics.UnchangedTotal.Inc()
	case o == outcomeRejected:
		p.metrics.RejectedTotal.Inc()
	}
	return o, err
}

func (p *processor) process(ev watcher.Event) (outcome, error) {
	current, err := p.store.IsCurrent(ev.Path, ev.Hash)
	if err != nil {
		return outcomeRejected, err
	}
	if current {
		p.logger.Debug("unchanged", slog.String("path", ev.Path))
		return outcomeUnchanged, nil
	}

	data, err := os.ReadFile(ev.Path)
	if err != nil {
		return outcomeRejected, fmt.Errorf("read %s: %w", ev.Path, err)
	}
	// The file may have changed since it was hashed.
	hash := watcher.HashBytes(data)

	start := time.Now()
	doc, err := rmfile.Parse(data)
	p.metrics.ParseDuration.ObserveDuration(time.Since(start))
	if err != nil {
		p.logger.Warn("not a scene file",
			slog.String("path", ev.Path),
			slog.String("error", err.Error()),
		)
		return outcomeRejected, nil
	}

	rec := store.NewParseRecord(ev.Path, hash, int64(len(data)), doc, ev.Timestamp)
	file, err := p.store.RecordParse(rec)
	if err != nil {
		return outcomeRejected, err
	}

	p.logger.Info("parsed",
		slog.String("path", ev.Path),
		slog.Int("blocks", file.BlockCount),
		slog.Int("unreadable", file.UnreadableCount),
		slog.Int("paragraphs", file.ParagraphCount),
		slog.Int("diagnostics", file.DiagnosticCount),
	)
	p.logger.Diagnostics(ev.Path, doc.Diagnostics)

	p.metrics.ParsesTotal.Inc()
	p.metrics.FileSize.Observe(float64(len(data)))
	p.metrics.UnreadableBlocks.Add(uint64(file.UnreadableCount))
	p.metrics.Diagnostics(doc.Diagnostics)

	if p.exportDir != "" {
		out, err := p.writeSnapshot(ev.Path, doc)
		if err != nil {
			return outcomeRecorded, err
		}
		p.metrics.SnapshotsTotal.Inc()
		p.logger.Debug("snapshot written", slog.String("path", out))
	}
	return outcomeRecorded, nil
}

// snapshotPath names the snapshot of a scene file. Pages of different
// notebooks share file names, so the parent directory is kept in the name.
func (p *processor) snapshotPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if parent := filepath.Base(filepath.Dir(path)); parent != "." && parent != string(filepath.Separator) {
		base = parent + "_" + base
	}
	return filepath.Join(p.exportDir, base+p.format.Extension())
}

func (p *processor) writeSnapshot(path string, doc *rmfile.Document) (string, error) {
	out := p.snapshotPath(path)
	tmp := out + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	if err := export.Encode(f, export.Build(doc, path), p.format); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return out, nil
}

// stats counts handled events for the shutdown summary.
type stats struct {
	started   time.Time
	recorded  int
	unchanged int
	rejected  int
}

func (s *stats) add(o outcome) {
	switch o {
	case outcomeRecorded:
		s.recorded++
	case outcomeUnchanged:
		s.unchanged++
	default:
		s.rejected++
	}
}
