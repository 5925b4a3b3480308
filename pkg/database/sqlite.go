package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite"
)

// SQLiteConnection drives the sqlite3 shell against a database file.
// There is no server and no tunnel; the pool opens the file read-only
// for metadata queries.
type SQLiteConnection struct {
	cfg      Config
	db       *sql.DB
	resolver *Resolver
}

func NewSQLiteConnection(ctx context.Context, cfg Config) (*SQLiteConnection, error) {
	path := cfg.Path
	if path == "" {
		path = cfg.Database
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite connection requires a database file path")
	}
	cfg.Path = path

	if _, err := os.Stat(path); err != nil {
		return nil, &ConnectionError{Engine: EngineSQLite, Err: err}
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, &ConnectionError{Engine: EngineSQLite, Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, poolAcquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &ConnectionError{Engine: EngineSQLite, Err: err}
	}

	return &SQLiteConnection{
		cfg:      cfg,
		db:       db,
		resolver: &Resolver{Engine: EngineSQLite, BinDir: cfg.BinDir},
	}, nil
}

func (c *SQLiteConnection) Engine() string {
	return EngineSQLite
}

func (c *SQLiteConnection) Metadata(ctx context.Context) (*Metadata, error) {
	var raw string
	if err := c.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&raw); err != nil {
		return nil, &ConnectionError{Engine: EngineSQLite, Err: err}
	}

	version, err := parseNumericVersion(EngineSQLite, raw)
	if err != nil {
		return nil, err
	}

	return &Metadata{Engine: EngineSQLite, Version: version}, nil
}

func (c *SQLiteConnection) Test(ctx context.Context) (bool, error) {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, &ConnectionError{Engine: EngineSQLite, Err: err}
	}
	return true, nil
}

func (c *SQLiteConnection) Backup(ctx context.Context, w io.Writer) error {
	shellPath, err := c.resolveUtility(ctx, "sqlite3")
	if err != nil {
		return err
	}

	cmd := newCommand(ctx, shellPath, []string{c.cfg.Path, ".dump"})
	return streamOutput(cmd, w)
}

func (c *SQLiteConnection) Restore(ctx context.Context, r io.Reader) error {
	return c.RestoreWithOptions(ctx, r, RestoreOptions{DropDatabaseFirst: true})
}

// RestoreWithOptions replays r through the sqlite3 shell. With
// DropDatabaseFirst the existing file is moved aside first so the dump
// rebuilds the database from scratch; the previous file is kept as
// <path>.bak until the replay succeeds.
func (c *SQLiteConnection) RestoreWithOptions(ctx context.Context, r io.Reader, opts RestoreOptions) error {
	shellPath, err := c.resolveUtility(ctx, "sqlite3")
	if err != nil {
		return err
	}

	backupPath := c.cfg.Path + ".bak"
	if opts.DropDatabaseFirst {
		if _, err := os.Stat(c.cfg.Path); err == nil {
			if err := os.Rename(c.cfg.Path, backupPath); err != nil {
				return fmt.Errorf("failed to move existing database aside: %w", err)
			}
		}
	}

	cmd := newCommand(ctx, shellPath, []string{c.cfg.Path})
	if err := streamInput(cmd, r); err != nil {
		return err
	}

	if opts.DropDatabaseFirst {
		os.Remove(backupPath)
	}
	return nil
}

func (c *SQLiteConnection) Close() error {
	return c.db.Close()
}

func (c *SQLiteConnection) resolveUtility(ctx context.Context, name string) (string, error) {
	meta, err := c.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return c.resolver.Resolve(name, meta.Version)
}
