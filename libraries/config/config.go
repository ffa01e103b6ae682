// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config reads the YAML configuration of connection pools, backend
// drivers and logging.
package config

import (
	"os"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/dolthub/rowstream/libraries/connsrc"
	"github.com/dolthub/rowstream/libraries/mysql"
	"github.com/dolthub/rowstream/libraries/postgres"
	"github.com/dolthub/rowstream/libraries/sqlite"
)

const (
	DefaultLogLevel       = logrus.InfoLevel
	DefaultLogFormat      = LogFormatText
	DefaultMaxConnections = 10
	DefaultCacheCapacity  = 100
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// PoolYAMLConfig bounds the connections of each backend pool.
type PoolYAMLConfig struct {
	MaxConnections       *int   `yaml:"max_connections,omitempty"`
	AcquireTimeoutMillis *int64 `yaml:"acquire_timeout_millis,omitempty"`
}

type PostgresYAMLConfig struct {
	URL                    *string `yaml:"url,omitempty"`
	StatementCacheCapacity *int    `yaml:"statement_cache_capacity,omitempty"`
}

type MySQLYAMLConfig struct {
	DSN                    *string `yaml:"dsn,omitempty"`
	StatementCacheCapacity *int    `yaml:"statement_cache_capacity,omitempty"`
	// DeprecateEOF must match the capabilities negotiated by the
	// connector's handshake.
	DeprecateEOF *bool `yaml:"deprecate_eof,omitempty"`
}

type SQLiteYAMLConfig struct {
	StatementCacheCapacity *int `yaml:"statement_cache_capacity,omitempty"`
}

type MetricsYAMLConfig struct {
	Namespace *string           `yaml:"namespace,omitempty"`
	Labels    prometheus.Labels `yaml:"labels,omitempty"`
}

// YAMLConfig is the top level configuration.
type YAMLConfig struct {
	LogLevelStr    *string            `yaml:"log_level,omitempty"`
	LogFormatStr   *string            `yaml:"log_format,omitempty"`
	PoolConfig     PoolYAMLConfig     `yaml:"pool,omitempty"`
	PostgresConfig PostgresYAMLConfig `yaml:"postgres,omitempty"`
	MySQLConfig    MySQLYAMLConfig    `yaml:"mysql,omitempty"`
	SQLiteConfig   SQLiteYAMLConfig   `yaml:"sqlite,omitempty"`
	MetricsConfig  MetricsYAMLConfig  `yaml:"metrics,omitempty"`
}

// NewYamlConfig parses |data|. Unknown keys are an error.
func NewYamlConfig(data []byte) (*YAMLConfig, error) {
	var cfg YAMLConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.LogLevelStr != nil {
		level := strings.ToLower(*cfg.LogLevelStr)
		cfg.LogLevelStr = &level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// YamlConfigFromFile reads and validates the config file at |path|.
func YamlConfigFromFile(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file '%s'", path)
	}
	cfg, err := NewYamlConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file '%s'", path)
	}
	return cfg, nil
}

// Validate checks values that only fail once used, such as connection
// strings.
func (cfg *YAMLConfig) Validate() error {
	if _, err := cfg.LogLevel(); err != nil {
		return err
	}
	switch cfg.LogFormat() {
	case LogFormatText, LogFormatJSON:
	default:
		return errors.Errorf("unknown log_format '%s'", cfg.LogFormat())
	}
	if cfg.MaxConnections() <= 0 {
		return errors.Errorf("pool.max_connections must be positive, got %d", cfg.MaxConnections())
	}
	if cfg.AcquireTimeout() < 0 {
		return errors.New("pool.acquire_timeout_millis must not be negative")
	}
	if cfg.PostgresConfig.URL != nil {
		if _, err := cfg.PostgresConnConfig(); err != nil {
			return err
		}
	}
	if cfg.MySQLConfig.DSN != nil {
		if _, err := cfg.MySQLConnConfig(); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *YAMLConfig) LogLevel() (logrus.Level, error) {
	if cfg.LogLevelStr == nil {
		return DefaultLogLevel, nil
	}
	level, err := logrus.ParseLevel(*cfg.LogLevelStr)
	if err != nil {
		return 0, errors.Wrap(err, "invalid log_level")
	}
	return level, nil
}

func (cfg *YAMLConfig) LogFormat() LogFormat {
	if cfg.LogFormatStr == nil {
		return DefaultLogFormat
	}
	return LogFormat(strings.ToLower(*cfg.LogFormatStr))
}

// NewLogger returns a logger with the configured level and format.
func (cfg *YAMLConfig) NewLogger() (*logrus.Entry, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	if cfg.LogFormat() == LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrus.NewEntry(logger), nil
}

func (cfg *YAMLConfig) MaxConnections() int {
	if cfg.PoolConfig.MaxConnections == nil {
		return DefaultMaxConnections
	}
	return *cfg.PoolConfig.MaxConnections
}

// AcquireTimeout returns how long a pool checkout may wait. Zero waits until
// the caller gives up.
func (cfg *YAMLConfig) AcquireTimeout() time.Duration {
	if cfg.PoolConfig.AcquireTimeoutMillis == nil {
		return 0
	}
	return time.Duration(*cfg.PoolConfig.AcquireTimeoutMillis) * time.Millisecond
}

// PoolOptions returns the options for a backend pool. A nil |metrics|
// disables them.
func (cfg *YAMLConfig) PoolOptions(log *logrus.Entry, metrics *connsrc.PoolMetrics) connsrc.PoolOptions {
	return connsrc.PoolOptions{
		MaxConnections: cfg.MaxConnections(),
		AcquireTimeout: cfg.AcquireTimeout(),
		Metrics:        metrics,
		Log:            log,
	}
}

func (cfg *YAMLConfig) MetricsNamespace() string {
	if cfg.MetricsConfig.Namespace == nil {
		return "rowstream"
	}
	return *cfg.MetricsConfig.Namespace
}

// PoolMetrics returns pool metrics for |backend| carrying the configured
// labels.
func (cfg *YAMLConfig) PoolMetrics(backend string) *connsrc.PoolMetrics {
	labels := prometheus.Labels{"backend": backend}
	for k, v := range cfg.MetricsConfig.Labels {
		labels[k] = v
	}
	return connsrc.NewPoolMetrics(cfg.MetricsNamespace(), labels)
}

func cacheCapacity(n *int) int {
	if n == nil {
		return DefaultCacheCapacity
	}
	return *n
}

// PostgresConnConfig parses the configured Postgres URL.
func (cfg *YAMLConfig) PostgresConnConfig() (*pgconn.Config, error) {
	if cfg.PostgresConfig.URL == nil {
		return nil, errors.New("postgres.url is not set")
	}
	pgcfg, err := pgconn.ParseConfig(*cfg.PostgresConfig.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid postgres.url")
	}
	return pgcfg, nil
}

func (cfg *YAMLConfig) PostgresOptions(log *logrus.Entry) postgres.Options {
	return postgres.Options{
		StatementCacheCapacity: cacheCapacity(cfg.PostgresConfig.StatementCacheCapacity),
		Log:                    log,
	}
}

// MySQLConnConfig parses the configured MySQL DSN.
func (cfg *YAMLConfig) MySQLConnConfig() (*gomysql.Config, error) {
	if cfg.MySQLConfig.DSN == nil {
		return nil, errors.New("mysql.dsn is not set")
	}
	mycfg, err := gomysql.ParseDSN(*cfg.MySQLConfig.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mysql.dsn")
	}
	return mycfg, nil
}

func (cfg *YAMLConfig) MySQLOptions(log *logrus.Entry) mysql.Options {
	return mysql.Options{
		StatementCacheCapacity: cacheCapacity(cfg.MySQLConfig.StatementCacheCapacity),
		DeprecateEOF:           cfg.MySQLConfig.DeprecateEOF != nil && *cfg.MySQLConfig.DeprecateEOF,
		Log:                    log,
	}
}

func (cfg *YAMLConfig) SQLiteOptions(log *logrus.Entry) sqlite.Options {
	return sqlite.Options{
		StatementCacheCapacity: cacheCapacity(cfg.SQLiteConfig.StatementCacheCapacity),
		Log:                    log,
	}
}
