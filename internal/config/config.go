package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"sharddb/pkg/cluster"
	"sharddb/pkg/sharding"
	"sharddb/pkg/types"
)

// Config - root of the application configuration, read from YAML.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Server    ServerConfig    `yaml:"http-server"`
	Sharding  ShardingConfig  `yaml:"sharding"`
	Shards    []ShardConfig   `yaml:"shards"`
	Executor  ExecutorConfig  `yaml:"executor"`
	ZooKeeper ZooKeeperConfig `yaml:"zookeeper"`
	Node      NodeConfig      `yaml:"node"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ShardingConfig selects the routing strategy.
type ShardingConfig struct {
	Strategy     string `yaml:"strategy"`
	RingReplicas int    `yaml:"ring_replicas"`
}

// ShardConfig is one entry of the static topology.
type ShardConfig = types.Descriptor

type ExecutorConfig struct {
	// Parallelism caps concurrent shards per fan-out; 0 means unbounded.
	Parallelism int           `yaml:"parallelism"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ZooKeeperConfig enables loading the topology from ZooKeeper instead of
// the static shards list.
type ZooKeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	Root           string        `yaml:"root"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	// Publish seeds ZooKeeper with the static shards list on startup.
	Publish bool `yaml:"publish"`
}

// NodeConfig turns the process into a shard node serving one local shard.
type NodeConfig struct {
	Shard types.ShardID `yaml:"shard"`
}

// Default returns a baseline development config: two in-memory shards
// routed by ID parity.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 5 * time.Second,
		},
		Sharding: ShardingConfig{
			Strategy:     "parity",
			RingReplicas: sharding.DefaultRingReplicas,
		},
		Shards: []ShardConfig{
			{ID: "shard1", Driver: "mem", DSN: "mem:shard1"},
			{ID: "shard2", Driver: "mem", DSN: "mem:shard2"},
		},
		ZooKeeper: ZooKeeperConfig{
			Root:           "/sharddb",
			SessionTimeout: 5 * time.Second,
		},
	}
}

// Load reads path over the defaults. A missing file yields Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for values that cannot work.
func (c Config) Validate() error {
	var errs []error

	if _, err := c.Logger.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("http-server.port %d out of range", c.Server.Port))
	}
	if _, err := c.Strategy(); err != nil {
		errs = append(errs, err)
	}
	if c.Executor.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("executor.parallelism must be >= 0"))
	}
	if c.Executor.Timeout < 0 {
		errs = append(errs, fmt.Errorf("executor.timeout must be >= 0"))
	}

	switch {
	case len(c.ZooKeeper.Servers) > 0:
		if c.ZooKeeper.Root == "" {
			errs = append(errs, fmt.Errorf("zookeeper.root is required"))
		}
		if c.ZooKeeper.Publish {
			if _, err := c.Topology(); err != nil {
				errs = append(errs, fmt.Errorf("shards to publish: %w", err))
			}
		}
	default:
		topo, err := c.Topology()
		if err != nil {
			errs = append(errs, fmt.Errorf("shards: %w", err))
			break
		}
		if s, err := c.Strategy(); err == nil {
			if err := s.Check(topo.Len()); err != nil {
				errs = append(errs, err)
			}
		}
		if c.Node.Shard != "" {
			if _, ok := topo.Get(c.Node.Shard); !ok {
				errs = append(errs, fmt.Errorf("node.shard %q is not in shards", c.Node.Shard))
			}
		}
	}

	return errors.Join(errs...)
}

// SlogLevel parses the configured level.
func (l LoggerConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logger.level: %w", err)
	}
	return level, nil
}

// Topology builds the static topology from the shards list.
func (c Config) Topology() (*cluster.Topology, error) {
	return cluster.NewTopology(c.Shards...)
}

// Strategy resolves the configured routing strategy.
func (c Config) Strategy() (sharding.Strategy, error) {
	return sharding.Lookup(c.Sharding.Strategy, sharding.Options{RingReplicas: c.Sharding.RingReplicas})
}
