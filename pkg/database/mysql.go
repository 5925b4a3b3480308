package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"

	_ "github.com/go-sql-driver/mysql"

	"github.com/localrivet/dbkeeper/pkg/tunnel"
)

// MySQLConnection drives mysqldump and the mysql client. Administrative
// work (session termination, drop/create) goes through the pool, which
// is not bound to the target database.
type MySQLConnection struct {
	cfg      Config
	db       *sql.DB
	resolver *Resolver
	tunnel   *tunnel.Tunnel
}

func NewMySQLConnection(ctx context.Context, cfg Config) (*MySQLConnection, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("mysql connection requires a database name")
	}
	if cfg.Port == 0 {
		cfg.Port = 3306
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

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/", cfg.User, cfg.Password, cfg.Host, cfg.Port)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		if tn != nil {
			tn.Close()
		}
		return nil, &ConnectionError{Engine: EngineMySQL, Err: err}
	}
	db.SetMaxOpenConns(5)

	pingCtx, cancel := context.WithTimeout(ctx, poolAcquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		if tn != nil {
			tn.Close()
		}
		return nil, &ConnectionError{Engine: EngineMySQL, Err: err}
	}

	return &MySQLConnection{
		cfg:      cfg,
		db:       db,
		resolver: &Resolver{Engine: EngineMySQL, BinDir: cfg.BinDir},
		tunnel:   tn,
	}, nil
}

func (c *MySQLConnection) Engine() string {
	return EngineMySQL
}

func (c *MySQLConnection) Metadata(ctx context.Context) (*Metadata, error) {
	var raw string
	if err := c.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&raw); err != nil {
		return nil, &ConnectionError{Engine: EngineMySQL, Err: err}
	}

	version, err := parseNumericVersion(EngineMySQL, raw)
	if err != nil {
		return nil, err
	}

	return &Metadata{Engine: EngineMySQL, Version: version}, nil
}

func (c *MySQLConnection) Test(ctx context.Context) (bool, error) {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, &ConnectionError{Engine: EngineMySQL, Err: err}
	}
	return true, nil
}

// Backup streams a mysqldump of the target database into w. The dump
// carries drop statements so it replays cleanly over an existing
// schema.
func (c *MySQLConnection) Backup(ctx context.Context, w io.Writer) error {
	dumpPath, err := c.resolveUtility(ctx, "mysqldump")
	if err != nil {
		return err
	}

	args := append(c.hostArgs(),
		"--single-transaction",
		"--quick",
		"--routines",
		"--triggers",
		"--events",
		"--add-drop-table",
		c.cfg.Database,
	)

	cmd := newCommand(ctx, dumpPath, args, c.passwordEnv()...)
	return streamOutput(cmd, w)
}

func (c *MySQLConnection) Restore(ctx context.Context, r io.Reader) error {
	return c.RestoreWithOptions(ctx, r, RestoreOptions{DropDatabaseFirst: true})
}

func (c *MySQLConnection) RestoreWithOptions(ctx context.Context, r io.Reader, opts RestoreOptions) error {
	clientPath, err := c.resolveUtility(ctx, "mysql")
	if err != nil {
		return err
	}

	if err := c.terminateSessions(ctx); err != nil {
		return fmt.Errorf("failed to terminate active sessions: %w", err)
	}

	if opts.DropDatabaseFirst {
		if _, err := c.db.ExecContext(ctx, "DROP DATABASE IF EXISTS `"+c.cfg.Database+"`"); err != nil {
			return fmt.Errorf("failed to drop database: %w", err)
		}
		if _, err := c.db.ExecContext(ctx, "CREATE DATABASE `"+c.cfg.Database+"`"); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	args := append(c.hostArgs(), c.cfg.Database)
	cmd := newCommand(ctx, clientPath, args, c.passwordEnv()...)
	return streamInput(cmd, r)
}

// terminateSessions kills every other connection bound to the target
// database so the restore holds it exclusively.
func (c *MySQLConnection) terminateSessions(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id FROM information_schema.processlist WHERE db = ? AND id <> CONNECTION_ID()",
		c.cfg.Database)
	if err != nil {
		return err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		// The session may already be gone, that is fine.
		c.db.ExecContext(ctx, fmt.Sprintf("KILL %d", id))
	}
	return nil
}

func (c *MySQLConnection) Close() error {
	err := c.db.Close()
	if c.tunnel != nil {
		if terr := c.tunnel.Close(); err == nil {
			err = terr
		}
	}
	return err
}

func (c *MySQLConnection) resolveUtility(ctx context.Context, name string) (string, error) {
	meta, err := c.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return c.resolver.Resolve(name, meta.Version)
}

func (c *MySQLConnection) hostArgs() []string {
	return []string{
		"-h", c.cfg.Host,
		"-P", strconv.Itoa(c.cfg.Port),
		"-u", c.cfg.User,
	}
}

func (c *MySQLConnection) passwordEnv() []string {
	if c.cfg.Password == "" {
		return nil
	}
	return []string{"MYSQL_PWD=" + c.cfg.Password}
}
