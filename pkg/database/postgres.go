package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/localrivet/dbkeeper/pkg/tunnel"
)

const poolAcquireTimeout = 30 * time.Second

// PostgresConnection is the reference Connection implementation. The
// client pool targets the maintenance database so administrative
// commands keep working while the target database is dropped and
// recreated during a restore.
type PostgresConnection struct {
	cfg      Config
	db       *sql.DB
	resolver *Resolver
	tunnel   *tunnel.Tunnel
}

// NewPostgresConnection opens the pool (and the SSH tunnel when
// configured, rewriting the effective host and port to its loopback
// endpoint) and verifies connectivity within the acquire timeout.
func NewPostgresConnection(ctx context.Context, cfg Config) (*PostgresConnection, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("postgres connection requires a database name")
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}

	var tn *tunnel.Tunnel
	if cfg.Tunnel != nil {
		var err error
		tn, err = tunnel.Open(*cfg.Tunnel, cfg.Host, cfg.Port)
		if err != nil {
			return nil, fmt.Errorf("failed to open SSH tunnel: %w", err)
		}
		cfg.Host = "127.0.0.1"
		cfg.Port = tn.LocalPort
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=postgres sslmode=disable",
		cfg.Host, cfg.Port, cfg.User)
	if cfg.Password != "" {
		dsn += " password=" + cfg.Password
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		if tn != nil {
			tn.Close()
		}
		return nil, &ConnectionError{Engine: EnginePostgres, Err: err}
	}
	db.SetMaxOpenConns(5)

	pingCtx, cancel := context.WithTimeout(ctx, poolAcquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		if tn != nil {
			tn.Close()
		}
		return nil, &ConnectionError{Engine: EnginePostgres, Err: err}
	}

	return &PostgresConnection{
		cfg:      cfg,
		db:       db,
		resolver: &Resolver{Engine: EnginePostgres, BinDir: cfg.BinDir},
		tunnel:   tn,
	}, nil
}

func (c *PostgresConnection) Engine() string {
	return EnginePostgres
}

// Metadata queries the live server version and parses it. The result
// is fetched fresh on every call.
func (c *PostgresConnection) Metadata(ctx context.Context) (*Metadata, error) {
	var raw string
	if err := c.db.QueryRowContext(ctx, "SELECT version()").Scan(&raw); err != nil {
		return nil, &ConnectionError{Engine: EnginePostgres, Err: err}
	}

	version, err := parsePostgresVersion(raw)
	if err != nil {
		return nil, err
	}

	return &Metadata{Engine: EnginePostgres, Version: version}, nil
}

func (c *PostgresConnection) Test(ctx context.Context) (bool, error) {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, &ConnectionError{Engine: EnginePostgres, Err: err}
	}
	return true, nil
}

// Backup streams a full plain-format dump of the target database into
// w. Internal schemas are excluded and ownership stripped so the dump
// replays cleanly into a fresh database.
func (c *PostgresConnection) Backup(ctx context.Context, w io.Writer) error {
	dumpPath, err := c.resolveUtility(ctx, "pg_dump")
	if err != nil {
		return err
	}

	args := append(c.hostArgs(),
		"-d", c.cfg.Database,
		"--format=plain",
		"--encoding=UTF8",
		"--schema=*",
		"--clean",
		"--if-exists",
		"--no-owner",
		"--blobs",
		"--exclude-schema=information_schema",
		"--exclude-schema=pg_catalog",
		"--exclude-schema=pg_toast",
		"--exclude-schema=pg_temp*",
		"--exclude-schema=pg_toast_temp*",
	)

	cmd := newCommand(ctx, dumpPath, args, c.passwordEnv()...)
	return streamOutput(cmd, w)
}

func (c *PostgresConnection) Restore(ctx context.Context, r io.Reader) error {
	return c.RestoreWithOptions(ctx, r, RestoreOptions{DropDatabaseFirst: true})
}

// RestoreWithOptions force-terminates other sessions on the target
// database, optionally drops and recreates it, then replays r through
// psql's stdin. Every administrative step is checked independently and
// a failure aborts the operation before later steps run.
func (c *PostgresConnection) RestoreWithOptions(ctx context.Context, r io.Reader, opts RestoreOptions) error {
	psqlPath, err := c.resolveUtility(ctx, "psql")
	if err != nil {
		return err
	}

	terminate := fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid();",
		c.cfg.Database)
	if err := c.runAdmin(ctx, psqlPath, terminate); err != nil {
		return fmt.Errorf("failed to terminate active sessions: %w", err)
	}

	if opts.DropDatabaseFirst {
		drop := fmt.Sprintf("DROP DATABASE IF EXISTS %q;", c.cfg.Database)
		if err := c.runAdmin(ctx, psqlPath, drop); err != nil {
			return fmt.Errorf("failed to drop database: %w", err)
		}

		create := fmt.Sprintf("CREATE DATABASE %q;", c.cfg.Database)
		if err := c.runAdmin(ctx, psqlPath, create); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	args := append(c.hostArgs(), "-d", c.cfg.Database)
	cmd := newCommand(ctx, psqlPath, args, c.passwordEnv()...)
	return streamInput(cmd, r)
}

// Close releases the pool and then the tunnel, in that order; nothing
// may outlive the connection.
func (c *PostgresConnection) Close() error {
	err := c.db.Close()
	if c.tunnel != nil {
		if terr := c.tunnel.Close(); err == nil {
			err = terr
		}
	}
	return err
}

// runAdmin executes one SQL statement through psql against the
// maintenance database.
func (c *PostgresConnection) runAdmin(ctx context.Context, psqlPath, statement string) error {
	args := append(c.hostArgs(), "-d", "postgres", "-c", statement)
	return runCommand(newCommand(ctx, psqlPath, args, c.passwordEnv()...))
}

// resolveUtility picks the utility build matching the server version
// detected at call time.
func (c *PostgresConnection) resolveUtility(ctx context.Context, name string) (string, error) {
	meta, err := c.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return c.resolver.Resolve(name, meta.Version)
}

func (c *PostgresConnection) hostArgs() []string {
	return []string{
		"-h", c.cfg.Host,
		"-p", strconv.Itoa(c.cfg.Port),
		"-U", c.cfg.User,
	}
}

// passwordEnv supplies credentials through the environment, never argv.
func (c *PostgresConnection) passwordEnv() []string {
	if c.cfg.Password == "" {
		return nil
	}
	return []string{"PGPASSWORD=" + c.cfg.Password}
}
