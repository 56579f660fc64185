package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverMySQL  Driver = "mysql"
)

type QueuePolicy string

const (
	QueuePolicyQueue  QueuePolicy = "queue"
	QueuePolicyReject QueuePolicy = "reject"
)

const (
	DefaultCommitTimeout = "10s"
	DefaultLogLevel      = "info"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Reorder  ReorderConfig  `toml:"reorder"`
}

type DatabaseConfig struct {
	Driver Driver      `toml:"driver"`
	Path   string      `toml:"path"`
	MySQL  MySQLConfig `toml:"mysql"`
}

type MySQLConfig struct {
	User string `toml:"user"`
	Host string `toml:"host"`
	Port int    `toml:"port"`
	Name string `toml:"name"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ReorderConfig struct {
	// CommitTimeout is a Go duration string such as "10s" or "1500ms".
	CommitTimeout string      `toml:"commit_timeout"`
	QueuePolicy   QueuePolicy `toml:"queue_policy"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   dbPath,
			MySQL: MySQLConfig{
				User: "root",
				Host: "127.0.0.1",
				Port: 3306,
				Name: "deskboard",
			},
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".deskboard/log",
			},
		},
		Reorder: ReorderConfig{
			CommitTimeout: DefaultCommitTimeout,
			QueuePolicy:   QueuePolicyQueue,
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) normalize() {
	c.Database.Driver = Driver(strings.TrimSpace(strings.ToLower(string(c.Database.Driver))))
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	c.Logging.Level = strings.TrimSpace(strings.ToLower(c.Logging.Level))
	c.Reorder.QueuePolicy = QueuePolicy(strings.TrimSpace(strings.ToLower(string(c.Reorder.QueuePolicy))))
	c.Reorder.CommitTimeout = strings.TrimSpace(c.Reorder.CommitTimeout)
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, "":
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database path is required")
		}
	case DriverMySQL:
		if strings.TrimSpace(c.Database.MySQL.Host) == "" {
			return errors.New("database.mysql.host is required")
		}
		if c.Database.MySQL.Port <= 0 || c.Database.MySQL.Port > 65535 {
			return fmt.Errorf("database.mysql.port out of range: %d", c.Database.MySQL.Port)
		}
		if strings.TrimSpace(c.Database.MySQL.Name) == "" {
			return errors.New("database.mysql.name is required")
		}
	default:
		return fmt.Errorf("invalid database.driver: %q", c.Database.Driver)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if _, err := c.CommitTimeout(); err != nil {
		return err
	}
	switch c.Reorder.QueuePolicy {
	case "", QueuePolicyQueue, QueuePolicyReject:
	default:
		return fmt.Errorf("invalid reorder.queue_policy: %q", c.Reorder.QueuePolicy)
	}

	return nil
}

// CommitTimeout parses reorder.commit_timeout. Empty means the default.
func (c Config) CommitTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Reorder.CommitTimeout)
	if raw == "" {
		raw = DefaultCommitTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid reorder.commit_timeout %q: %w", c.Reorder.CommitTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("reorder.commit_timeout must be > 0, got %q", c.Reorder.CommitTimeout)
	}
	return d, nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
