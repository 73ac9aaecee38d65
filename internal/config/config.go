// Package config loads the ingestion engine's configuration from the
// environment, following the shape of the teacher's indexer config:
// DefaultConfig(), LoadFromEnv(), Validate().
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/agentindexer/internal/uriqueue"
	"github.com/R3E-Network/agentindexer/internal/verify"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

// Backend selects the Store Gateway implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// SourceMode selects which chainsource producer(s) the engine runs.
type SourceMode string

const (
	SourcePoller    SourceMode = "poller"
	SourceWebsocket SourceMode = "websocket"
	SourceBoth      SourceMode = "both"
)

// Config holds every setting the engine needs to start, assembled from
// AGENTINDEXER_-prefixed environment variables (isolated from any other
// service sharing the same host, same convention as the teacher's
// INDEXER_-prefixed indexer config).
type Config struct {
	Backend    Backend
	SQLitePath string

	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	RPCURL     string
	RPCTimeout time.Duration
	WSURL      string
	SourceMode SourceMode
	StartSlot  uint64

	Poller      PollerSettings
	URIQueue    uriqueue.Config
	Verify      verify.Config
	Logging     LoggingConfig
	MetricsAddr string
}

type PollerSettings struct {
	Interval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// DefaultConfig returns a Config with production-reasonable defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:    BackendSQLite,
		SQLitePath: "agentindexer.db",

		PostgresPort:    5432,
		PostgresDB:      "agentindexer",
		PostgresUser:    "postgres",
		PostgresSSLMode: "require",

		SourceMode: SourcePoller,
		StartSlot:  0,
		RPCTimeout: 10 * time.Second,

		Poller:   PollerSettings{Interval: 2 * time.Second},
		URIQueue: uriqueue.DefaultConfig(),
		Verify:   verify.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		MetricsAddr: ":9100",
	}
}

// LoadFromEnv loads a .env file if present (teacher's cmd/ entrypoints do
// the same via godotenv before resolving process environment), then reads
// AGENTINDEXER_-prefixed variables over DefaultConfig's baseline.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	cfg := DefaultConfig()

	if backend := os.Getenv("AGENTINDEXER_BACKEND"); backend != "" {
		cfg.Backend = Backend(strings.ToLower(backend))
	}
	if path := os.Getenv("AGENTINDEXER_SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	if host := os.Getenv("AGENTINDEXER_POSTGRES_HOST"); host != "" {
		cfg.PostgresHost = host
	}
	if port := os.Getenv("AGENTINDEXER_POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.PostgresPort = p
		}
	}
	if db := os.Getenv("AGENTINDEXER_POSTGRES_DB"); db != "" {
		cfg.PostgresDB = db
	}
	if user := os.Getenv("AGENTINDEXER_POSTGRES_USER"); user != "" {
		cfg.PostgresUser = user
	}
	if pass := os.Getenv("AGENTINDEXER_POSTGRES_PASSWORD"); pass != "" {
		cfg.PostgresPassword = pass
	}
	if ssl := os.Getenv("AGENTINDEXER_POSTGRES_SSLMODE"); ssl != "" {
		cfg.PostgresSSLMode = ssl
	}

	cfg.RPCURL = os.Getenv("AGENTINDEXER_RPC_URL")
	cfg.WSURL = os.Getenv("AGENTINDEXER_WS_URL")
	if timeout := os.Getenv("AGENTINDEXER_RPC_TIMEOUT_MS"); timeout != "" {
		if ms, err := strconv.Atoi(timeout); err == nil {
			cfg.RPCTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if mode := os.Getenv("AGENTINDEXER_SOURCE_MODE"); mode != "" {
		cfg.SourceMode = SourceMode(strings.ToLower(mode))
	}
	if start := os.Getenv("AGENTINDEXER_START_SLOT"); start != "" {
		if s, err := strconv.ParseUint(start, 10, 64); err == nil {
			cfg.StartSlot = s
		}
	}

	if interval := os.Getenv("AGENTINDEXER_POLL_INTERVAL_MS"); interval != "" {
		if ms, err := strconv.Atoi(interval); err == nil {
			cfg.Poller.Interval = time.Duration(ms) * time.Millisecond
		}
	}

	if mode := os.Getenv("AGENTINDEXER_URI_QUEUE_MODE"); mode != "" {
		switch strings.ToLower(mode) {
		case "off":
			cfg.URIQueue.Mode = uriqueue.ModeOff
		case "full":
			cfg.URIQueue.Mode = uriqueue.ModeFull
		default:
			cfg.URIQueue.Mode = uriqueue.ModeNormal
		}
	}
	if conc := os.Getenv("AGENTINDEXER_URI_QUEUE_CONCURRENCY"); conc != "" {
		if c, err := strconv.Atoi(conc); err == nil {
			cfg.URIQueue.Concurrency = c
		}
	}

	if depth := os.Getenv("AGENTINDEXER_VERIFY_SAFETY_DEPTH"); depth != "" {
		if d, err := strconv.ParseUint(depth, 10, 64); err == nil {
			cfg.Verify.SafetyDepth = d
		}
	}
	if interval := os.Getenv("AGENTINDEXER_VERIFY_INTERVAL_SEC"); interval != "" {
		if s, err := strconv.Atoi(interval); err == nil {
			cfg.Verify.Interval = time.Duration(s) * time.Second
		}
	}

	if level := os.Getenv("AGENTINDEXER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("AGENTINDEXER_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if addr := os.Getenv("AGENTINDEXER_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	return cfg, nil
}

// Validate checks the configuration is internally consistent before the
// engine starts.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("AGENTINDEXER_SQLITE_PATH required for sqlite backend")
		}
	case BackendPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("AGENTINDEXER_POSTGRES_HOST required for postgres backend")
		}
		if c.PostgresPassword == "" {
			return fmt.Errorf("AGENTINDEXER_POSTGRES_PASSWORD required for postgres backend")
		}
	default:
		return fmt.Errorf("invalid backend: %s (must be sqlite or postgres)", c.Backend)
	}

	switch c.SourceMode {
	case SourcePoller, SourceWebsocket, SourceBoth:
	default:
		return fmt.Errorf("invalid source mode: %s (must be poller, websocket, or both)", c.SourceMode)
	}

	if (c.SourceMode == SourcePoller || c.SourceMode == SourceBoth) && c.RPCURL == "" {
		return fmt.Errorf("AGENTINDEXER_RPC_URL required for poller source")
	}
	if (c.SourceMode == SourceWebsocket || c.SourceMode == SourceBoth) && c.WSURL == "" {
		return fmt.Errorf("AGENTINDEXER_WS_URL required for websocket source")
	}

	if c.URIQueue.Concurrency < 0 {
		return fmt.Errorf("uri queue concurrency must be >= 0")
	}
	if c.Verify.SafetyDepth == 0 {
		return fmt.Errorf("verify safety depth must be > 0")
	}

	return nil
}

// GetPostgresDSN returns the PostgreSQL connection string for lib/pq.
func (c *Config) GetPostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresDB,
		c.PostgresUser, c.PostgresPassword, c.PostgresSSLMode,
	)
}

// LoggerConfig adapts Logging into pkg/logger's LoggingConfig shape.
func (c *Config) LoggerConfig() logger.LoggingConfig {
	return logger.LoggingConfig{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}
