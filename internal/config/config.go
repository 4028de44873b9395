// Package config loads application settings from the environment, an
// optional .env file (loaded in main) and an optional config file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BartekS5/movielens-etl/pkg/database"
	"github.com/pkg/errors"
)

type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	Objects ObjectsConfig `mapstructure:"objects"`
	ETL     ETLConfig     `mapstructure:"etl"`
	Log     LogConfig     `mapstructure:"log"`
	HTTP    HTTPConfig    `mapstructure:"http"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	PoolMin         int           `mapstructure:"pool_min"`
	PoolMax         int           `mapstructure:"pool_max"`
	AcquireTimeout  time.Duration `mapstructure:"acquire_timeout"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type ObjectsConfig struct {
	Backend string       `mapstructure:"backend"`
	S3      S3Config     `mapstructure:"s3"`
	GridFS  GridFSConfig `mapstructure:"gridfs"`
	Dir     DirConfig    `mapstructure:"dir"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type GridFSConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	Bucket   string `mapstructure:"bucket"`
}

type DirConfig struct {
	Root string `mapstructure:"root"`
}

type ETLConfig struct {
	BatchSize      int           `mapstructure:"batch_size"`
	BatchPolicy    string        `mapstructure:"batch_policy"`
	ProgressEvery  int           `mapstructure:"progress_every"`
	ScoreMin       int           `mapstructure:"score_min"`
	ScoreMax       int           `mapstructure:"score_max"`
	ConnectRetries int           `mapstructure:"connect_retries"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadConfig reads settings from the environment and, when configFile is not
// empty, from that file. Environment variables win over the file.
func LoadConfig(configFile string) (*Config, error) {
	v := newViper()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file '%s'", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the ETL cannot run with.
func (c *Config) Validate() error {
	if _, err := database.LookupDialect(c.DB.Driver); err != nil {
		return err
	}
	if c.DB.PoolMin < 0 || c.DB.PoolMax <= 0 || c.DB.PoolMin > c.DB.PoolMax {
		return errors.Errorf("invalid pool bounds min=%d max=%d", c.DB.PoolMin, c.DB.PoolMax)
	}
	switch c.Objects.Backend {
	case BackendS3:
		if c.Objects.S3.Bucket == "" {
			return errors.New("objects.s3.bucket must be set")
		}
	case BackendGridFS:
		if c.Objects.GridFS.URI == "" {
			return errors.New("objects.gridfs.uri must be set")
		}
	case BackendDir:
		if c.Objects.Dir.Root == "" {
			return errors.New("objects.dir.root must be set")
		}
	default:
		return errors.Errorf("unsupported object store backend %q", c.Objects.Backend)
	}
	if c.ETL.BatchSize <= 0 {
		return errors.Errorf("etl.batch_size must be positive, got %d", c.ETL.BatchSize)
	}
	switch c.ETL.BatchPolicy {
	case "atomic", "per-row":
	default:
		return errors.Errorf("unsupported batch policy %q", c.ETL.BatchPolicy)
	}
	if c.ETL.ScoreMin > c.ETL.ScoreMax {
		return errors.Errorf("invalid score range [%d, %d]", c.ETL.ScoreMin, c.ETL.ScoreMax)
	}
	return nil
}

// Dialect resolves the configured relational dialect.
func (c *Config) Dialect() *database.Dialect {
	d, err := database.LookupDialect(c.DB.Driver)
	if err != nil {
		return database.Postgres
	}
	return d
}

// DataSourceName returns db.dsn, or builds one from the discrete settings.
func (c *Config) DataSourceName() string {
	if c.DB.DSN != "" {
		return c.DB.DSN
	}
	switch c.Dialect() {
	case database.SQLServer:
		q := url.Values{}
		q.Set("database", c.DB.Name)
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.DB.User, c.DB.Password),
			Host:     fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
			RawQuery: q.Encode(),
		}
		return u.String()
	case database.SQLite:
		name := c.DB.Name
		if !strings.HasSuffix(name, ".db") {
			name += ".db"
		}
		return "file:" + name + "?_foreign_keys=on"
	default:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.DB.User, c.DB.Password),
			Host:     fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
			Path:     "/" + c.DB.Name,
			RawQuery: "sslmode=" + url.QueryEscape(c.DB.SSLMode),
		}
		return u.String()
	}
}

// Pool returns the connection pool bounds.
func (c *Config) Pool() database.PoolConfig {
	return database.PoolConfig{
		Min:             c.DB.PoolMin,
		Max:             c.DB.PoolMax,
		AcquireTimeout:  c.DB.AcquireTimeout,
		ConnMaxLifetime: c.DB.ConnMaxLifetime,
	}
}
