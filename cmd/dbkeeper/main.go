package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/localrivet/dbkeeper/internal/backup"
	"github.com/localrivet/dbkeeper/internal/config"
	"github.com/localrivet/dbkeeper/internal/mcp"
	"github.com/localrivet/dbkeeper/internal/mcp/oauth"
	"github.com/localrivet/dbkeeper/internal/metrics"
	"github.com/localrivet/dbkeeper/internal/notify"
	"github.com/localrivet/dbkeeper/internal/restore"
	"github.com/localrivet/dbkeeper/internal/storage"
	"github.com/localrivet/dbkeeper/pkg/database"
)

var (
	cfgFile  string
	logger   *slog.Logger
	cfg      *config.Config
	provider *storage.Provider
	notifier *notify.Notifier
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dbkeeper",
	Short: "Database backup and restore for PostgreSQL, MySQL and SQLite",
	Long: `dbkeeper takes scheduled or one-shot backups of a database, streams
them into local or S3 storage, prunes old artifacts by age and can
restore any stored artifact back into a database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		provider, err = storage.NewProvider(cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}

		notifier = notify.NewNotifier(cfg.Monitoring.WebhookURL, logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(healthCmd)

	restoreCmd.Flags().String("target-db", "", "restore into this database instead of the configured one")
	restoreCmd.Flags().Bool("drop", false, "drop and recreate the target database before restoring")
	restoreCmd.Flags().Bool("dry-run", false, "resolve the artifact and show what would happen without restoring")
	cleanupCmd.Flags().Bool("dry-run", false, "show what would be deleted without deleting")
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the backup scheduler with health and metrics endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := metrics.New("dbkeeper")
		engine := backup.NewEngine(cfg, provider, notifier, m, logger)
		scheduler := backup.NewScheduler(engine, cfg.Schedule, logger)

		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer scheduler.Stop()

		logger.Info("scheduler started",
			"schedule", cfg.Schedule,
			"next_run", scheduler.NextRun().Format(time.RFC3339))

		mux := http.NewServeMux()
		mux.HandleFunc("/health", healthHandler(scheduler))
		mux.Handle("/metrics", metrics.Handler())

		baseURL := os.Getenv("DBKEEPER_BASE_URL")
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://localhost:%d", cfg.Monitoring.HealthPort)
		}
		mcpHandler := mcp.NewHandler(cfg, provider, notifier, m, logger, baseURL)
		if mcpHandler.Enabled() {
			mux.Handle("/mcp", mcpHandler)
			oauth.NewHandler(baseURL).RegisterRoutes(mux)
			logger.Info("mcp endpoint enabled", "path", "/mcp")
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Monitoring.HealthPort),
			Handler: mux,
		}
		go func() {
			logger.Info("health server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server failed", "error", err)
			}
		}()

		var metricsSrv *http.Server
		if cfg.Monitoring.MetricsPort != cfg.Monitoring.HealthPort {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", metrics.Handler())
			metricsSrv = &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Monitoring.MetricsPort),
				Handler: metricsMux,
			}
			go func() {
				logger.Info("metrics server listening", "addr", metricsSrv.Addr)
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server failed", "error", err)
				}
			}()
		}

		go alertMonitor(ctx, engine, m)

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("health server shutdown failed", "error", err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", "error", err)
			}
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Take a backup now",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := backup.NewEngine(cfg, provider, notifier, nil, logger)
		result, err := engine.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Backup complete: %s (%s dumped, %s stored, %s)\n",
			result.Name,
			formatBytes(result.Size),
			formatBytes(result.StoredSize),
			result.Duration.Round(time.Millisecond))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backup artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := provider.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No backups found")
			return nil
		}
		fmt.Printf("%-50s %-20s %10s\n", "NAME", "TAKEN", "SIZE")
		for _, e := range entries {
			if !e.IsFile {
				continue
			}
			taken := "-"
			if ts, err := storage.ExtractTimestamp(e.Name); err == nil {
				taken = ts.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-50s %-20s %10s\n", e.Name, taken, formatBytes(e.Size))
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [artifact]",
	Short: "Restore a backup into the database",
	Long: `Restore replays a stored backup artifact into the configured
database. With no argument the most recent artifact is used. Pass
--drop to drop and recreate the target database first; without it the
dump is applied on top of the existing contents.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := restore.Options{}
		if len(args) == 1 {
			opts.Artifact = args[0]
		}
		opts.TargetDB, _ = cmd.Flags().GetString("target-db")
		opts.DropDatabaseFirst, _ = cmd.Flags().GetBool("drop")
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")

		engine := restore.NewEngine(cfg, provider, notifier, nil, logger)
		result, err := engine.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if opts.DryRun {
			fmt.Printf("Would restore %s (%s) into %s\n",
				result.Artifact, formatBytes(result.Size), result.TargetDB)
			return nil
		}
		fmt.Printf("Restore complete: %s into %s (%s)\n",
			result.Artifact, result.TargetDB, result.Duration.Round(time.Millisecond))
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete backups older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		deleted, bytes, err := provider.Cleanup(cmd.Context(), cfg.Retention.Days, dryRun)
		if err != nil {
			return err
		}
		verb := "Deleted"
		if dryRun {
			verb = "Would delete"
		}
		fmt.Printf("%s %d backup(s), %s\n", verb, deleted, formatBytes(bytes))
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Aliases: []string{"test"},
	Short:   "Check database and storage connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := provider.Test(ctx); err != nil {
			return fmt.Errorf("storage check failed: %w", err)
		}
		fmt.Println("Storage: OK")

		conn, err := database.NewConnection(ctx, cfg.Database.ConnectionConfig())
		if err != nil {
			return fmt.Errorf("database check failed: %w", err)
		}
		defer conn.Close()
		if ok, err := conn.Test(ctx); !ok {
			return fmt.Errorf("database check failed: %w", err)
		}
		fmt.Println("Database: OK")
		return nil
	},
}

func healthHandler(scheduler *backup.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine := scheduler.Engine()
		status := map[string]any{
			"status":   "ok",
			"running":  scheduler.IsRunning(),
			"next_run": scheduler.NextRun().Format(time.RFC3339),
		}
		if last := engine.LastRun(); !last.IsZero() {
			status["last_run"] = last.Format(time.RFC3339)
		}
		if err := engine.LastError(); err != nil {
			status["status"] = "degraded"
			status["last_error"] = err.Error()
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}

// alertMonitor periodically refreshes the storage usage gauge and
// fires a webhook when no successful backup has landed within the
// configured alert window.
func alertMonitor(ctx context.Context, engine *backup.Engine, m *metrics.Metrics) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		entries, err := engine.ListBackups(ctx)
		if err != nil {
			logger.Warn("alert monitor: listing backups failed", "error", err)
			continue
		}

		var total int64
		var newest time.Time
		for _, e := range entries {
			if !e.IsFile {
				continue
			}
			total += e.Size
			if ts, err := storage.ExtractTimestamp(e.Name); err == nil && ts.After(newest) {
				newest = ts
			}
		}
		m.SetStorageUsed(total)

		window := cfg.AlertDuration()
		if window <= 0 {
			continue
		}
		if newest.IsZero() || time.Since(newest) > window {
			notifier.NotifyAlert(fmt.Sprintf(
				"no successful backup in the last %s (newest artifact: %s)",
				window, newestLabel(newest)))
		}
	}
}

func newestLabel(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return t.Format(time.RFC3339)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for x := n / unit; x >= unit; x /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
