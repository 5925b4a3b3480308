package database

import (
	"context"
	"fmt"
	"io"

	"github.com/localrivet/dbkeeper/pkg/tunnel"
)

// Connection drives backup and restore for one database engine by
// orchestrating the engine's own dump/restore utilities over piped
// subprocess streams. Implementations own their client pool and, when
// configured, an SSH tunnel; both are released by Close. At most one
// backup or restore may be in flight per Connection, this is a caller
// contract and is not enforced internally.
type Connection interface {
	Engine() string
	Metadata(ctx context.Context) (*Metadata, error)
	Test(ctx context.Context) (bool, error)
	Backup(ctx context.Context, w io.Writer) error
	Restore(ctx context.Context, r io.Reader) error
	RestoreWithOptions(ctx context.Context, r io.Reader, opts RestoreOptions) error
	Close() error
}

// Config carries the validated connection settings for one engine.
// When Tunnel is set, the effective host and port are rewritten to the
// tunnel's loopback endpoint during construction; the configured remote
// endpoint survives only inside the tunnel itself.
type Config struct {
	Engine   string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Path     string // sqlite file path
	BinDir   string // optional override for utility resolution
	Tunnel   *tunnel.Config
}

// Metadata is the engine-tagged server version, fetched live per
// operation that needs utility resolution. It is deliberately not
// cached: the server version can change between calls.
type Metadata struct {
	Engine  string
	Version Version
}

// RestoreOptions controls the restore path. DropDatabaseFirst replaces
// the target database before replaying the dump; Restore enables it by
// default, callers that want an in-place replay go through
// RestoreWithOptions.
type RestoreOptions struct {
	DropDatabaseFirst bool
}

const (
	EnginePostgres = "postgres"
	EngineMySQL    = "mysql"
	EngineSQLite   = "sqlite"
)

// NewConnection builds the engine-specific Connection for cfg,
// establishing the client pool (and tunnel, when configured) eagerly so
// configuration problems surface at construction.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	switch cfg.Engine {
	case EnginePostgres, "postgresql", "pg", "":
		return NewPostgresConnection(ctx, cfg)
	case EngineMySQL, "mariadb":
		return NewMySQLConnection(ctx, cfg)
	case EngineSQLite, "sqlite3":
		return NewSQLiteConnection(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database engine: %s", cfg.Engine)
	}
}
