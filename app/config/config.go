package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Server    HTTPServerConfig
	Store     StoreConfig
	Mongo     MongoConfig
	Postgres  PostgresConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	LogLevel  string
}

type HTTPServerConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	StatsPushInterval time.Duration
}

type StoreConfig struct {
	Driver string // mongo, postgres, memory
}

type MongoConfig struct {
	URI      string
	Database string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type RateLimitConfig struct {
	RedisAddr string // empty means in-process limiting
	Limit     int
	Window    time.Duration
}

type MetricsConfig struct {
	Addr string
}

func Default() *Config {
	return &Config{
		Server: HTTPServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			StatsPushInterval: 5 * time.Second,
		},
		Store: StoreConfig{Driver: StoreMongo},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "jobtracker",
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Limit:  60,
			Window: time.Minute,
		},
		Metrics:  MetricsConfig{Addr: ":2112"},
		LogLevel: "info",
	}
}

// Load builds the config from defaults, then the optional HCL file at path,
// then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return fmt.Errorf("mongo uri and database are required")
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fileConfig mirrors the HCL layout. Every attribute is optional and only
// non-zero values override the defaults.
type fileConfig struct {
	LogLevel  string          `hcl:"log_level,optional"`
	Server    *serverBlock    `hcl:"server,block"`
	Store     *storeBlock     `hcl:"store,block"`
	Mongo     *mongoBlock     `hcl:"mongo,block"`
	Postgres  *postgresBlock  `hcl:"postgres,block"`
	Auth      *authBlock      `hcl:"auth,block"`
	RateLimit *rateLimitBlock `hcl:"rate_limit,block"`
	Metrics   *metricsBlock   `hcl:"metrics,block"`
}

type serverBlock struct {
	Host              string `hcl:"host,optional"`
	Port              int    `hcl:"port,optional"`
	ReadTimeout       string `hcl:"read_timeout,optional"`
	WriteTimeout      string `hcl:"write_timeout,optional"`
	StatsPushInterval string `hcl:"stats_push_interval,optional"`
}

type storeBlock struct {
	Driver string `hcl:"driver,optional"`
}

type mongoBlock struct {
	URI      string `hcl:"uri,optional"`
	Database string `hcl:"database,optional"`
}

type postgresBlock struct {
	DSN             string `hcl:"dsn,optional"`
	MaxOpenConns    int    `hcl:"max_open_conns,optional"`
	MaxIdleConns    int    `hcl:"max_idle_conns,optional"`
	ConnMaxLifetime string `hcl:"conn_max_lifetime,optional"`
}

type authBlock struct {
	JWTSecret string `hcl:"jwt_secret,optional"`
}

type rateLimitBlock struct {
	RedisAddr string `hcl:"redis_addr,optional"`
	Limit     int    `hcl:"limit,optional"`
	Window    string `hcl:"window,optional"`
}

type metricsBlock struct {
	Addr string `hcl:"addr,optional"`
}

func (c *Config) loadFile(path string) error {
	var fc fileConfig
	if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}

	setString(&c.LogLevel, fc.LogLevel)
	if b := fc.Server; b != nil {
		setString(&c.Server.Host, b.Host)
		setInt(&c.Server.Port, b.Port)
		if err := setDuration(&c.Server.ReadTimeout, "server.read_timeout", b.ReadTimeout); err != nil {
			return err
		}
		if err := setDuration(&c.Server.WriteTimeout, "server.write_timeout", b.WriteTimeout); err != nil {
			return err
		}
		if err := setDuration(&c.Server.StatsPushInterval, "server.stats_push_interval", b.StatsPushInterval); err != nil {
			return err
		}
	}
	if b := fc.Store; b != nil {
		setString(&c.Store.Driver, b.Driver)
	}
	if b := fc.Mongo; b != nil {
		setString(&c.Mongo.URI, b.URI)
		setString(&c.Mongo.Database, b.Database)
	}
	if b := fc.Postgres; b != nil {
		setString(&c.Postgres.DSN, b.DSN)
		setInt(&c.Postgres.MaxOpenConns, b.MaxOpenConns)
		setInt(&c.Postgres.MaxIdleConns, b.MaxIdleConns)
		if err := setDuration(&c.Postgres.ConnMaxLifetime, "postgres.conn_max_lifetime", b.ConnMaxLifetime); err != nil {
			return err
		}
	}
	if b := fc.Auth; b != nil {
		setString(&c.Auth.JWTSecret, b.JWTSecret)
	}
	if b := fc.RateLimit; b != nil {
		setString(&c.RateLimit.RedisAddr, b.RedisAddr)
		setInt(&c.RateLimit.Limit, b.Limit)
		if err := setDuration(&c.RateLimit.Window, "rate_limit.window", b.Window); err != nil {
			return err
		}
	}
	if b := fc.Metrics; b != nil {
		setString(&c.Metrics.Addr, b.Addr)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DB", c.Mongo.Database)
	c.Postgres.DSN = getEnv("POSTGRES_DSN", c.Postgres.DSN)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.RateLimit.RedisAddr = getEnv("REDIS_ADDR", c.RateLimit.RedisAddr)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	var err error
	if c.Server.Port, err = getInt("SERVER_PORT", c.Server.Port); err != nil {
		return err
	}
	if c.RateLimit.Limit, err = getInt("RATE_LIMIT", c.RateLimit.Limit); err != nil {
		return err
	}
	if c.RateLimit.Window, err = getDuration("RATE_WINDOW", c.RateLimit.Window); err != nil {
		return err
	}
	if c.Server.StatsPushInterval, err = getDuration("STATS_PUSH_INTERVAL", c.Server.StatsPushInterval); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}
