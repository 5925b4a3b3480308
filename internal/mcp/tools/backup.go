package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/localrivet/dbkeeper/internal/restore"
	"github.com/localrivet/dbkeeper/internal/storage"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Input/Output types for tools

type EmptyInput struct{}

type BackupNowOutput struct {
	Artifact   string `json:"artifact"`
	Timestamp  string `json:"timestamp"`
	SizeBytes  int64  `json:"size_bytes"`
	StoredSize int64  `json:"stored_size"`
	DurationMs int64  `json:"duration_ms"`
}

type ListBackupsInput struct {
	Limit      int  `json:"limit,omitempty" jsonschema:"Maximum number of backups to return (default: 20)"`
	LatestOnly bool `json:"latest_only,omitempty" jsonschema:"If true, return only the most recent backup"`
}

type BackupItem struct {
	Artifact     string `json:"artifact"`
	Timestamp    string `json:"timestamp,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	LastModified string `json:"last_modified"`
}

type ListBackupsOutput struct {
	Count   int          `json:"count"`
	Backups []BackupItem `json:"backups"`
}

type RestoreBackupInput struct {
	Artifact          string `json:"artifact,omitempty" jsonschema:"The backup artifact to restore. Empty selects the most recent backup"`
	TargetDB          string `json:"target_db,omitempty" jsonschema:"Optional: restore to a different database name"`
	DropDatabaseFirst bool   `json:"drop_database_first,omitempty" jsonschema:"If true, drop and recreate the target database before restoring"`
	DryRun            bool   `json:"dry_run,omitempty" jsonschema:"If true, resolve the artifact without applying changes"`
}

type RestoreBackupOutput struct {
	Artifact string `json:"artifact"`
	TargetDB string `json:"target_db"`
	Success  bool   `json:"success"`
	DryRun   bool   `json:"dry_run"`
}

type CleanupInput struct {
	DryRun bool `json:"dry_run,omitempty" jsonschema:"If true, report what would be deleted without deleting"`
}

type CleanupOutput struct {
	DeletedCount int    `json:"deleted_count"`
	DeletedBytes int64  `json:"deleted_bytes"`
	DryRun       bool   `json:"dry_run"`
	Message      string `json:"message"`
}

type BackupStatusOutput struct {
	Status       string `json:"status"`
	TotalBackups int    `json:"total_backups"`
	StorageBytes int64  `json:"storage_bytes"`
	LastBackup   string `json:"last_backup,omitempty"`
	LastRun      string `json:"last_run,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// RegisterBackupTools registers all backup-related tools with the MCP server.
func RegisterBackupTools(server *mcp.Server, toolCtx *ToolContext) {
	// backup_now - Trigger an immediate backup
	mcp.AddTool(server, &mcp.Tool{
		Name:        "backup_now",
		Description: "Trigger an immediate database backup",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, BackupNowOutput, error) {
		result, err := toolCtx.BackupEngine.Run(ctx)
		if err != nil {
			return nil, BackupNowOutput{}, err
		}

		return nil, BackupNowOutput{
			Artifact:   result.Name,
			Timestamp:  result.Timestamp.Format(time.RFC3339),
			SizeBytes:  result.Size,
			StoredSize: result.StoredSize,
			DurationMs: result.Duration.Milliseconds(),
		}, nil
	})

	// list_backups - List stored backup artifacts
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_backups",
		Description: "List stored database backup artifacts, newest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ListBackupsInput) (*mcp.CallToolResult, ListBackupsOutput, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 20
		}

		entries, err := toolCtx.Provider.ListWithOptions(ctx, storage.ListOptions{
			LatestOnly: input.LatestOnly,
		})
		if err != nil {
			return nil, ListBackupsOutput{}, err
		}

		if len(entries) > limit {
			entries = entries[:limit]
		}

		items := make([]BackupItem, len(entries))
		for i, e := range entries {
			items[i] = BackupItem{
				Artifact:     e.Path,
				SizeBytes:    e.Size,
				LastModified: e.LastModified.Format(time.RFC3339),
			}
			if ts, err := storage.ExtractTimestamp(e.Name); err == nil {
				items[i].Timestamp = ts.Format(time.RFC3339)
			}
		}

		return nil, ListBackupsOutput{
			Count:   len(items),
			Backups: items,
		}, nil
	})

	// restore_backup - Restore from a backup artifact
	mcp.AddTool(server, &mcp.Tool{
		Name:        "restore_backup",
		Description: "Restore the database from a backup artifact. Use with caution!",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input RestoreBackupInput) (*mcp.CallToolResult, RestoreBackupOutput, error) {
		result, err := toolCtx.RestoreEngine.Run(ctx, restore.Options{
			Artifact:          input.Artifact,
			TargetDB:          input.TargetDB,
			DropDatabaseFirst: input.DropDatabaseFirst,
			DryRun:            input.DryRun,
		})
		if err != nil {
			return nil, RestoreBackupOutput{}, err
		}

		return nil, RestoreBackupOutput{
			Artifact: result.Artifact,
			TargetDB: result.TargetDB,
			Success:  result.Success,
			DryRun:   input.DryRun,
		}, nil
	})

	// backup_status - Get current backup system status
	mcp.AddTool(server, &mcp.Tool{
		Name:        "backup_status",
		Description: "Get the current status of the backup system",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, BackupStatusOutput, error) {
		entries, err := toolCtx.Provider.List(ctx)
		if err != nil {
			return nil, BackupStatusOutput{}, err
		}

		var totalSize int64
		var lastBackup time.Time
		for _, e := range entries {
			totalSize += e.Size
			if ts, err := storage.ExtractTimestamp(e.Name); err == nil && ts.After(lastBackup) {
				lastBackup = ts
			}
		}

		status := "healthy"
		if len(entries) == 0 {
			status = "warning: no backups found"
		} else if time.Since(lastBackup) > toolCtx.Config.AlertDuration() {
			status = "warning: backup overdue"
		}

		lastRun := toolCtx.BackupEngine.LastRun()
		lastErr := toolCtx.BackupEngine.LastError()

		output := BackupStatusOutput{
			Status:       status,
			TotalBackups: len(entries),
			StorageBytes: totalSize,
		}

		if !lastBackup.IsZero() {
			output.LastBackup = lastBackup.Format(time.RFC3339)
		}
		if !lastRun.IsZero() {
			output.LastRun = lastRun.Format(time.RFC3339)
		}
		if lastErr != nil {
			output.LastError = lastErr.Error()
		}

		return nil, output, nil
	})

	// cleanup_backups - Apply the retention policy
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cleanup_backups",
		Description: "Remove backups older than the configured retention window",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CleanupInput) (*mcp.CallToolResult, CleanupOutput, error) {
		count, bytes, err := toolCtx.BackupEngine.Cleanup(ctx, input.DryRun)
		if err != nil {
			return nil, CleanupOutput{}, err
		}

		verb := "Cleaned up"
		if input.DryRun {
			verb = "Would clean up"
		}
		return nil, CleanupOutput{
			DeletedCount: count,
			DeletedBytes: bytes,
			DryRun:       input.DryRun,
			Message:      fmt.Sprintf("%s %d old backups (%d bytes)", verb, count, bytes),
		}, nil
	})
}
