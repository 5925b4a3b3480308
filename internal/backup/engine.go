// Package backup orchestrates dump streaming from a database
// connection into artifact storage, plus scheduled runs and retention.
package backup

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/localrivet/dbkeeper/internal/config"
	"github.com/localrivet/dbkeeper/internal/metrics"
	"github.com/localrivet/dbkeeper/internal/notify"
	"github.com/localrivet/dbkeeper/internal/storage"
	"github.com/localrivet/dbkeeper/pkg/database"
)

type Engine struct {
	cfg      *config.Config
	provider *storage.Provider
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	lastRun   time.Time
	lastError error
}

func NewEngine(cfg *config.Config, provider *storage.Provider, notifier *notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		provider: provider,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

type Result struct {
	// Name is the stored artifact name, e.g. mydb_20240101020000.sql.gz.
	Name       string
	Timestamp  time.Time
	Size       int64
	StoredSize int64
	Duration   time.Duration
	Error      error
}

// ArtifactName builds the storage name for a backup of the configured
// database taken at the given time.
func (e *Engine) ArtifactName(at time.Time) string {
	base := e.cfg.Database.Name
	if base == "" {
		base = "backup"
	}
	name := storage.TimestampName(base, at) + ".sql"
	if e.cfg.Compression == "gzip" {
		name += ".gz"
	}
	return name
}

// Run takes one backup: it connects to the configured database,
// streams the dump through optional gzip compression directly into
// storage, and reports the outcome.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	startTime := time.Now()
	result := &Result{
		Name:      e.ArtifactName(startTime),
		Timestamp: startTime,
	}

	e.logger.Info("starting backup", "artifact", result.Name, "engine", e.cfg.Database.Engine)

	conn, err := database.NewConnection(ctx, e.cfg.Database.ConnectionConfig())
	if err != nil {
		return e.fail(result, fmt.Errorf("failed to open database connection: %w", err))
	}
	defer conn.Close()

	if meta, err := conn.Metadata(ctx); err != nil {
		e.logger.Warn("failed to resolve server metadata", "error", err)
	} else {
		e.logger.Info("resolved server", "engine", meta.Engine, "version", meta.Version)
	}

	sink, err := e.provider.CreateWriter(ctx, result.Name)
	if err != nil {
		return e.fail(result, fmt.Errorf("failed to create storage writer: %w", err))
	}

	stored := &countingWriter{w: sink}
	var dump *countingWriter
	var gz *gzip.Writer
	if e.cfg.Compression == "gzip" {
		gz = gzip.NewWriter(stored)
		dump = &countingWriter{w: gz}
	} else {
		dump = stored
	}

	if err := conn.Backup(ctx, dump); err != nil {
		if gz != nil {
			gz.Close()
		}
		sink.Close()
		if derr := e.provider.Delete(context.WithoutCancel(ctx), result.Name); derr != nil {
			e.logger.Warn("failed to remove partial artifact", "artifact", result.Name, "error", derr)
		}
		return e.fail(result, fmt.Errorf("database dump failed: %w", err))
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			sink.Close()
			return e.fail(result, fmt.Errorf("compression failed: %w", err))
		}
	}
	if err := sink.Close(); err != nil {
		return e.fail(result, fmt.Errorf("failed to finalize artifact: %w", err))
	}

	result.Size = dump.n
	result.StoredSize = stored.n
	result.Duration = time.Since(startTime)

	e.lastRun = startTime
	e.lastError = nil

	e.logger.Info("backup completed",
		"artifact", result.Name,
		"size", result.Size,
		"stored_size", result.StoredSize,
		"duration", result.Duration,
	)

	if e.metrics != nil {
		e.metrics.RecordBackupSuccess(result.Duration, result.StoredSize)
	}
	if e.notifier != nil {
		e.notifier.NotifySuccess(result.Name, result.StoredSize, result.Duration)
	}

	return result, nil
}

// Cleanup applies the configured retention window and reports how
// many artifacts and bytes were removed.
func (e *Engine) Cleanup(ctx context.Context, dryRun bool) (int, int64, error) {
	e.logger.Info("running retention cleanup", "retention_days", e.cfg.Retention.Days, "dry_run", dryRun)

	count, bytes, err := e.provider.Cleanup(ctx, e.cfg.Retention.Days, dryRun)
	if err != nil {
		return count, bytes, fmt.Errorf("retention cleanup failed: %w", err)
	}

	e.logger.Info("cleanup completed", "deleted", count, "bytes", bytes, "dry_run", dryRun)
	if e.metrics != nil && !dryRun {
		e.metrics.RecordCleanup(count, bytes)
	}
	return count, bytes, nil
}

// ListBackups returns stored artifacts, newest first.
func (e *Engine) ListBackups(ctx context.Context) ([]storage.Entry, error) {
	return e.provider.List(ctx)
}

func (e *Engine) LastRun() time.Time {
	return e.lastRun
}

func (e *Engine) LastError() error {
	return e.lastError
}

func (e *Engine) fail(result *Result, err error) (*Result, error) {
	result.Error = err
	result.Duration = time.Since(result.Timestamp)
	e.lastError = err
	e.logger.Error("backup failed", "artifact", result.Name, "error", err)

	if e.metrics != nil {
		e.metrics.RecordBackupFailure()
	}
	if e.notifier != nil {
		e.notifier.NotifyFailure(result.Name, err)
	}
	return result, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
