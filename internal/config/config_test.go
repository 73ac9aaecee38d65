package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend != BackendSQLite {
		t.Errorf("expected sqlite backend, got %s", cfg.Backend)
	}
	if cfg.PostgresPort != 5432 {
		t.Errorf("expected port 5432, got %d", cfg.PostgresPort)
	}
	if cfg.SourceMode != SourcePoller {
		t.Errorf("expected poller source, got %s", cfg.SourceMode)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("AGENTINDEXER_BACKEND", "postgres")
	os.Setenv("AGENTINDEXER_POSTGRES_HOST", "db.test")
	os.Setenv("AGENTINDEXER_POSTGRES_PASSWORD", "testpass")
	os.Setenv("AGENTINDEXER_RPC_URL", "https://rpc.test")
	defer func() {
		os.Unsetenv("AGENTINDEXER_BACKEND")
		os.Unsetenv("AGENTINDEXER_POSTGRES_HOST")
		os.Unsetenv("AGENTINDEXER_POSTGRES_PASSWORD")
		os.Unsetenv("AGENTINDEXER_RPC_URL")
	}()

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.Backend != BackendPostgres {
		t.Errorf("wrong backend: %s", cfg.Backend)
	}
	if cfg.PostgresHost != "db.test" {
		t.Errorf("wrong postgres host: %s", cfg.PostgresHost)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.RPCURL = "https://rpc.test"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid sqlite", func(c *Config) {}, false},
		{"postgres missing password", func(c *Config) {
			c.Backend = BackendPostgres
			c.PostgresHost = "h"
		}, true},
		{"postgres valid", func(c *Config) {
			c.Backend = BackendPostgres
			c.PostgresHost = "h"
			c.PostgresPassword = "p"
		}, false},
		{"bad backend", func(c *Config) { c.Backend = "mysql" }, true},
		{"poller without rpc url", func(c *Config) { c.RPCURL = "" }, true},
		{"websocket without ws url", func(c *Config) { c.SourceMode = SourceWebsocket }, true},
		{"negative concurrency", func(c *Config) { c.URIQueue.Concurrency = -1 }, true},
		{"zero safety depth", func(c *Config) { c.Verify.SafetyDepth = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetPostgresDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PostgresHost = "db.test"
	cfg.PostgresPassword = "secret"
	dsn := cfg.GetPostgresDSN()
	if dsn == "" {
		t.Fatal("expected non-empty DSN")
	}
}
