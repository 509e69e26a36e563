package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sharddb/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	topo, err := cfg.Topology()
	require.NoError(t, err)
	require.Equal(t, 2, topo.Len())
	require.Equal(t, types.ShardID("shard1"), topo.At(0).ID)
	require.Equal(t, types.ShardID("shard2"), topo.At(1).ID)

	s, err := cfg.Strategy()
	require.NoError(t, err)
	require.Equal(t, "parity", s.Name())
}

func TestLoadMissingFileUsesDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
logger:
  level: debug
  json: true
http-server:
  port: 9090
sharding:
  strategy: hash
shards:
  - id: a
    driver: postgres
    dsn: postgres://localhost/a?sslmode=disable
    schema: users_a
  - id: b
    driver: mysql
    dsn: root@tcp(localhost:3306)/b
  - id: c
    driver: http
    dsn: http://localhost:8082
executor:
  parallelism: 2
  timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.True(t, cfg.Logger.JSON)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "hash", cfg.Sharding.Strategy)
	require.Len(t, cfg.Shards, 3)
	require.Equal(t, types.Descriptor{
		ID:     "a",
		Driver: "postgres",
		DSN:    "postgres://localhost/a?sslmode=disable",
		Schema: "users_a",
	}, cfg.Shards[0])
	require.Equal(t, 2, cfg.Executor.Parallelism)
	require.Equal(t, 3*time.Second, cfg.Executor.Timeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
sharding:
  strategy: parity
shards:
  - id: only
    driver: mem
    dsn: mem:only
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"bad level", func(c *Config) { c.Logger.Level = "loud" }, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, false},
		{"unknown strategy", func(c *Config) { c.Sharding.Strategy = "random" }, false},
		{"negative parallelism", func(c *Config) { c.Executor.Parallelism = -1 }, false},
		{"no shards", func(c *Config) { c.Shards = nil }, false},
		{"duplicate shard", func(c *Config) { c.Shards[1].ID = c.Shards[0].ID }, false},
		{"node shard known", func(c *Config) { c.Node.Shard = "shard2" }, true},
		{"node shard unknown", func(c *Config) { c.Node.Shard = "shard9" }, false},
		{"zookeeper without shards", func(c *Config) {
			c.ZooKeeper.Servers = []string{"localhost:2181"}
			c.Shards = nil
		}, true},
		{"zookeeper publish without shards", func(c *Config) {
			c.ZooKeeper.Servers = []string{"localhost:2181"}
			c.ZooKeeper.Publish = true
			c.Shards = nil
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
