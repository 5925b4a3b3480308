package mcp

import (
	"log/slog"

	"github.com/localrivet/dbkeeper/internal/backup"
	"github.com/localrivet/dbkeeper/internal/config"
	"github.com/localrivet/dbkeeper/internal/mcp/tools"
	"github.com/localrivet/dbkeeper/internal/metrics"
	"github.com/localrivet/dbkeeper/internal/notify"
	"github.com/localrivet/dbkeeper/internal/restore"
	"github.com/localrivet/dbkeeper/internal/storage"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer creates a new MCP server with all backup tools registered.
func NewServer(cfg *config.Config, provider *storage.Provider, notifier *notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "dbkeeper",
		Version: "1.0.0",
	}, nil)

	toolCtx := &tools.ToolContext{
		Config:        cfg,
		Provider:      provider,
		BackupEngine:  backup.NewEngine(cfg, provider, notifier, m, logger),
		RestoreEngine: restore.NewEngine(cfg, provider, notifier, m, logger),
		Logger:        logger,
	}

	tools.RegisterBackupTools(server, toolCtx)

	return server
}
