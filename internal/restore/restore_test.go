package restore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/localrivet/dbkeeper/internal/config"
	"github.com/localrivet/dbkeeper/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	provider, err := storage.NewProvider(storage.Config{Backend: "local", Path: dir}, logger)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Engine: "postgres",
			Host:   "localhost",
			Port:   5432,
			Name:   "appdb",
			User:   "app",
		},
	}
	return NewEngine(cfg, provider, nil, nil, logger), dir
}

func seedArtifact(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRun_DryRunSelectsLatest(t *testing.T) {
	e, dir := newTestEngine(t)
	seedArtifact(t, dir, "appdb_20240101000000.sql", "old dump")
	seedArtifact(t, dir, "appdb_20240201000000.sql", "new dump")

	result, err := e.Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Error("dry run should report success")
	}
	if result.Artifact != "appdb_20240201000000.sql" {
		t.Errorf("artifact = %q, want appdb_20240201000000.sql", result.Artifact)
	}
	if result.TargetDB != "appdb" {
		t.Errorf("target db = %q, want appdb", result.TargetDB)
	}
	if result.Size != int64(len("new dump")) {
		t.Errorf("size = %d, want %d", result.Size, len("new dump"))
	}
}

func TestRun_DryRunNamedArtifact(t *testing.T) {
	e, dir := newTestEngine(t)
	seedArtifact(t, dir, "appdb_20240101000000.sql", "old dump")
	seedArtifact(t, dir, "appdb_20240201000000.sql", "new dump")

	result, err := e.Run(context.Background(), Options{
		Artifact: "appdb_20240101000000.sql",
		DryRun:   true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Artifact != "appdb_20240101000000.sql" {
		t.Errorf("artifact = %q, want the named one", result.Artifact)
	}
}

func TestRun_DryRunTargetOverride(t *testing.T) {
	e, dir := newTestEngine(t)
	seedArtifact(t, dir, "appdb_20240101000000.sql", "dump")

	result, err := e.Run(context.Background(), Options{
		TargetDB: "appdb_staging",
		DryRun:   true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TargetDB != "appdb_staging" {
		t.Errorf("target db = %q, want appdb_staging", result.TargetDB)
	}
}

func TestRun_NoArtifacts(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Run(context.Background(), Options{DryRun: true})
	if err == nil {
		t.Fatal("expected error with empty storage")
	}
	if !strings.Contains(err.Error(), "no backup artifacts") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRun_MissingNamedArtifact(t *testing.T) {
	e, dir := newTestEngine(t)
	seedArtifact(t, dir, "appdb_20240101000000.sql", "dump")

	_, err := e.Run(context.Background(), Options{
		Artifact: "appdb_20991231000000.sql",
		DryRun:   true,
	})
	if err == nil {
		t.Fatal("expected error for missing artifact")
	}
	if !strings.Contains(err.Error(), "artifact not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRun_IgnoresEntriesWithoutTimestamps(t *testing.T) {
	e, dir := newTestEngine(t)
	seedArtifact(t, dir, "zzz-manual-export.sql", "manual")
	seedArtifact(t, dir, "appdb_20240101000000.sql", "dump")

	result, err := e.Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Artifact != "appdb_20240101000000.sql" {
		t.Errorf("artifact = %q, want appdb_20240101000000.sql", result.Artifact)
	}
}
