package tools

import (
	"log/slog"

	"github.com/localrivet/dbkeeper/internal/backup"
	"github.com/localrivet/dbkeeper/internal/config"
	"github.com/localrivet/dbkeeper/internal/restore"
	"github.com/localrivet/dbkeeper/internal/storage"
)

// ToolContext carries shared state for all MCP tools.
type ToolContext struct {
	Config        *config.Config
	Provider      *storage.Provider
	BackupEngine  *backup.Engine
	RestoreEngine *restore.Engine
	Logger        *slog.Logger
}
