// Package restore replays stored backup artifacts into a live
// database through the engine's client utilities.
package restore

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
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

type Options struct {
	// Artifact names the stored backup to replay. Empty selects the
	// most recent artifact.
	Artifact string
	// TargetDB overrides the configured database name.
	TargetDB string
	// DropDatabaseFirst drops and recreates the target database
	// before replaying the dump.
	DropDatabaseFirst bool
	DryRun            bool
}

type Result struct {
	Artifact string
	TargetDB string
	Size     int64
	Duration time.Duration
	Success  bool
	Error    error
}

// Run replays one backup artifact into the configured database. The
// artifact bytes stream straight from storage through optional gzip
// decompression into the engine's restore utility.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	startTime := time.Now()
	result := &Result{Artifact: opts.Artifact, TargetDB: opts.TargetDB}

	entry, err := e.resolveArtifact(ctx, opts.Artifact)
	if err != nil {
		return e.fail(result, err)
	}
	result.Artifact = entry.Path
	result.Size = entry.Size

	dbCfg := e.cfg.Database.ConnectionConfig()
	if opts.TargetDB != "" {
		dbCfg.Database = opts.TargetDB
	}
	result.TargetDB = dbCfg.Database

	e.logger.Info("starting restore",
		"artifact", result.Artifact,
		"target_db", result.TargetDB,
		"drop_first", opts.DropDatabaseFirst,
		"dry_run", opts.DryRun,
	)

	if opts.DryRun {
		e.logger.Info("dry run: would restore artifact",
			"artifact", result.Artifact,
			"size", entry.Size,
			"target_db", result.TargetDB,
		)
		result.Success = true
		result.Duration = time.Since(startTime)
		return result, nil
	}

	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return e.fail(result, fmt.Errorf("failed to open database connection: %w", err))
	}
	defer conn.Close()

	reader, err := e.provider.CreateReader(ctx, entry.Path)
	if err != nil {
		return e.fail(result, fmt.Errorf("failed to open artifact: %w", err))
	}
	defer reader.Close()

	var src io.Reader = reader
	if strings.HasSuffix(entry.Path, ".gz") {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return e.fail(result, fmt.Errorf("failed to open gzip stream: %w", err))
		}
		defer gz.Close()
		src = gz
	}

	restoreOpts := database.RestoreOptions{DropDatabaseFirst: opts.DropDatabaseFirst}
	if err := conn.RestoreWithOptions(ctx, src, restoreOpts); err != nil {
		return e.fail(result, fmt.Errorf("restore failed: %w", err))
	}

	result.Success = true
	result.Duration = time.Since(startTime)

	e.logger.Info("restore completed",
		"artifact", result.Artifact,
		"target_db", result.TargetDB,
		"duration", result.Duration,
	)

	if e.metrics != nil {
		e.metrics.RecordRestoreSuccess()
	}
	if e.notifier != nil {
		e.notifier.NotifyRestoreSuccess(result.Artifact, result.Duration)
	}

	return result, nil
}

func (e *Engine) resolveArtifact(ctx context.Context, name string) (storage.Entry, error) {
	if name == "" {
		entries, err := e.provider.ListWithOptions(ctx, storage.ListOptions{LatestOnly: true})
		if err != nil {
			if errors.Is(err, storage.ErrNoEntries) {
				return storage.Entry{}, fmt.Errorf("no backup artifacts found")
			}
			return storage.Entry{}, fmt.Errorf("failed to find latest artifact: %w", err)
		}
		return entries[0], nil
	}

	entry, err := e.provider.Stat(ctx, name)
	if err != nil {
		return storage.Entry{}, fmt.Errorf("artifact not found: %s", name)
	}
	return entry, nil
}

func (e *Engine) fail(result *Result, err error) (*Result, error) {
	result.Error = err
	e.logger.Error("restore failed", "artifact", result.Artifact, "error", err)

	if e.metrics != nil {
		e.metrics.RecordRestoreFailure()
	}
	if e.notifier != nil {
		e.notifier.NotifyRestoreFailure(result.Artifact, err)
	}
	return result, err
}
