package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/localrivet/dbkeeper/internal/storage"
	"github.com/localrivet/dbkeeper/pkg/database"
	"github.com/localrivet/dbkeeper/pkg/tunnel"
)

type Config struct {
	Database    DatabaseConfig   `yaml:"database"`
	Schedule    string           `yaml:"schedule"`
	Storage     storage.Config   `yaml:"storage"`
	Retention   RetentionConfig  `yaml:"retention"`
	Compression string           `yaml:"compression"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
}

type DatabaseConfig struct {
	Engine   string    `yaml:"engine"`
	Host     string    `yaml:"host"`
	Port     int       `yaml:"port"`
	Name     string    `yaml:"name"`
	User     string    `yaml:"user"`
	Password string    `yaml:"password"`
	Path     string    `yaml:"path"`
	BinDir   string    `yaml:"bin_dir"`
	SSH      SSHConfig `yaml:"ssh"`
}

// SSHConfig describes an optional SSH tunnel to the database host. A
// non-empty Host enables tunneling.
type SSHConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	KeyPath       string `yaml:"key_path"`
	KeyPassphrase string `yaml:"key_passphrase"`
}

type RetentionConfig struct {
	Days int `yaml:"days"`
}

type MonitoringConfig struct {
	MetricsPort     int    `yaml:"metrics_port"`
	HealthPort      int    `yaml:"health_port"`
	WebhookURL      string `yaml:"webhook_url"`
	AlertAfterHours int    `yaml:"alert_after_hours"`
}

// ConnectionConfig translates the database section into the form the
// connection layer consumes.
func (d *DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Engine:   d.Engine,
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Name,
		User:     d.User,
		Password: d.Password,
		Path:     d.Path,
		BinDir:   d.BinDir,
	}
	if d.SSH.Host != "" {
		cfg.Tunnel = &tunnel.Config{
			Host:          d.SSH.Host,
			Port:          d.SSH.Port,
			User:          d.SSH.User,
			Password:      d.SSH.Password,
			KeyPath:       d.SSH.KeyPath,
			KeyPassphrase: d.SSH.KeyPassphrase,
		}
	}
	return cfg
}

func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Engine: "postgres",
			Host:   "localhost",
			Port:   5432,
		},
		Schedule:    "0 2 * * *",
		Compression: "gzip",
		Storage: storage.Config{
			Backend: "local",
			Path:    "/backups",
		},
		Retention: RetentionConfig{
			Days: 90,
		},
		Monitoring: MonitoringConfig{
			MetricsPort:     9090,
			HealthPort:      8080,
			AlertAfterHours: 26,
		},
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("DBKEEPER_DB_ENGINE"); v != "" {
		c.Database.Engine = v
	}
	if v := os.Getenv("DBKEEPER_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DBKEEPER_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DBKEEPER_DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("DBKEEPER_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DBKEEPER_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DBKEEPER_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DBKEEPER_DB_BIN_DIR"); v != "" {
		c.Database.BinDir = v
	}

	if v := os.Getenv("DBKEEPER_SSH_HOST"); v != "" {
		c.Database.SSH.Host = v
	}
	if v := os.Getenv("DBKEEPER_SSH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.SSH.Port = port
		}
	}
	if v := os.Getenv("DBKEEPER_SSH_USER"); v != "" {
		c.Database.SSH.User = v
	}
	if v := os.Getenv("DBKEEPER_SSH_PASSWORD"); v != "" {
		c.Database.SSH.Password = v
	}
	if v := os.Getenv("DBKEEPER_SSH_KEY_PATH"); v != "" {
		c.Database.SSH.KeyPath = v
	}
	if v := os.Getenv("DBKEEPER_SSH_KEY_PASSPHRASE"); v != "" {
		c.Database.SSH.KeyPassphrase = v
	}

	if v := os.Getenv("DBKEEPER_SCHEDULE"); v != "" {
		c.Schedule = v
	}

	if v := os.Getenv("DBKEEPER_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("DBKEEPER_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	if v := os.Getenv("DBKEEPER_S3_BUCKET"); v != "" {
		c.Storage.S3.Bucket = v
	}
	if v := os.Getenv("DBKEEPER_S3_ENDPOINT"); v != "" {
		c.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("DBKEEPER_S3_REGION"); v != "" {
		c.Storage.S3.Region = v
	}
	if v := os.Getenv("DBKEEPER_S3_PREFIX"); v != "" {
		c.Storage.S3.Prefix = v
	}
	if v := os.Getenv("DBKEEPER_S3_ACCESS_KEY"); v != "" {
		c.Storage.S3.AccessKey = v
	}
	if v := os.Getenv("DBKEEPER_S3_SECRET_KEY"); v != "" {
		c.Storage.S3.SecretKey = v
	}
	if v := os.Getenv("DBKEEPER_S3_USE_SSL"); v != "" {
		c.Storage.S3.UseSSL = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("DBKEEPER_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retention.Days = n
		}
	}

	if v := os.Getenv("DBKEEPER_COMPRESSION"); v != "" {
		c.Compression = v
	}

	if v := os.Getenv("DBKEEPER_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Monitoring.MetricsPort = port
		}
	}
	if v := os.Getenv("DBKEEPER_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Monitoring.HealthPort = port
		}
	}
	if v := os.Getenv("DBKEEPER_WEBHOOK_URL"); v != "" {
		c.Monitoring.WebhookURL = v
	}
	if v := os.Getenv("DBKEEPER_ALERT_AFTER_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Monitoring.AlertAfterHours = n
		}
	}
}

func (c *Config) validate() error {
	engine := strings.ToLower(c.Database.Engine)
	if engine == "" {
		engine = "postgres"
	}

	switch engine {
	case "postgres", "postgresql", "pg":
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required for PostgreSQL")
		}
	case "mysql", "mariadb":
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required for MySQL")
		}
	case "sqlite", "sqlite3":
		if c.Database.Path == "" && c.Database.Name == "" {
			return fmt.Errorf("database path is required for SQLite")
		}
		if c.Database.SSH.Host != "" {
			return fmt.Errorf("SSH tunneling does not apply to SQLite")
		}
	default:
		return fmt.Errorf("unsupported database engine: %s (supported: postgres, mysql, sqlite)", c.Database.Engine)
	}

	if c.Database.SSH.Host != "" {
		if c.Database.SSH.User == "" {
			return fmt.Errorf("SSH user is required when SSH host is set")
		}
		if c.Database.SSH.Password == "" && c.Database.SSH.KeyPath == "" {
			return fmt.Errorf("SSH password or key path is required when SSH host is set")
		}
	}

	switch c.Storage.Backend {
	case "local", "fs":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when using S3 storage")
		}
		if c.Storage.S3.AccessKey == "" || c.Storage.S3.SecretKey == "" {
			return fmt.Errorf("S3 access key and secret key are required")
		}
	default:
		return fmt.Errorf("storage backend must be 'local' or 's3'")
	}

	if c.Compression != "gzip" && c.Compression != "none" {
		return fmt.Errorf("compression must be 'gzip' or 'none'")
	}

	if c.Retention.Days < 0 {
		return fmt.Errorf("retention days must not be negative")
	}

	return nil
}

func (c *Config) AlertDuration() time.Duration {
	return time.Duration(c.Monitoring.AlertAfterHours) * time.Hour
}
