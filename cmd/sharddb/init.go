package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"sharddb/internal/config"
	"sharddb/pkg/cluster"
	"sharddb/pkg/store"
	"sharddb/pkg/store/memstore"
	"sharddb/pkg/store/remote"
	"sharddb/pkg/store/sqlstore"
)

// initConfig loads the YAML config. A missing file yields config.Default().
func initConfig(path string) (config.Config, error) {
	return config.Load(path)
}

// initLogger sets up the global slog.Logger (JSON or text).
func initLogger(cfg *config.Config) *slog.Logger {
	level, err := cfg.Logger.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", level.String(), "json", cfg.Logger.JSON)
	return logger
}

// initBackend registers every backing store a descriptor can name.
func initBackend() (*store.Mux, error) {
	mux := store.NewMux().
		Register(memstore.Driver, memstore.New()).
		Register(remote.Driver, remote.New(nil))

	for _, driver := range []string{"postgres", "mysql"} {
		backend, err := sqlstore.New(driver)
		if err != nil {
			return nil, err
		}
		mux.Register(driver, backend)
	}
	return mux, nil
}

// initTopology returns the static topology, or the one published in
// ZooKeeper when servers are configured.
func initTopology(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cluster.Topology, error) {
	zkCfg := cfg.ZooKeeper
	if len(zkCfg.Servers) == 0 {
		return cfg.Topology()
	}

	zkTopo, err := cluster.NewZKTopology(zkCfg.Servers, zkCfg.Root, zkCfg.SessionTimeout, logger)
	if err != nil {
		return nil, err
	}
	defer zkTopo.Close()

	if zkCfg.Publish {
		static, err := cfg.Topology()
		if err != nil {
			return nil, err
		}
		switch err := zkTopo.Publish(ctx, static); {
		case errors.Is(err, cluster.ErrTopologyPublished):
			logger.Info("topology already in zookeeper, keeping it", "root", zkCfg.Root)
		case err != nil:
			return nil, fmt.Errorf("publish topology: %w", err)
		}
	}

	topo, err := zkTopo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load topology: %w", err)
	}
	return topo, nil
}
