package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	ihttp "sharddb/internal/http"
	"sharddb/pkg/cluster"
	"sharddb/pkg/executor"
	"sharddb/pkg/store/remote"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		slog.Error("sharddb failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := initConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := initLogger(&cfg)

	backend, err := initBackend()
	if err != nil {
		return err
	}
	topo, err := initTopology(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	strategy, err := cfg.Strategy()
	if err != nil {
		return err
	}
	router, err := cluster.NewRouter(topo, strategy, logger)
	if err != nil {
		return err
	}

	exec := executor.New(backend,
		executor.WithLogger(logger),
		executor.WithTimeout(cfg.Executor.Timeout))
	db := cluster.NewShardedDB(router, exec,
		cluster.WithParallelism(cfg.Executor.Parallelism),
		cluster.WithLogger(logger))

	opts := []ihttp.ServerOption{
		ihttp.WithServerLogger(logger),
		ihttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if cfg.Node.Shard != "" {
		shard, ok := topo.Get(cfg.Node.Shard)
		if !ok {
			return fmt.Errorf("%w: node shard %s", cluster.ErrUnknownShard, cfg.Node.Shard)
		}
		if shard.Driver == remote.Driver {
			return fmt.Errorf("node shard %s must be local, got driver %q", shard.ID, shard.Driver)
		}
		opts = append(opts, ihttp.WithLocalShard(backend, shard))
	}

	server := ihttp.NewServer(db, strconv.Itoa(cfg.Server.Port), opts...)
	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("sharddb started",
		"shards", topo.Len(),
		"strategy", strategy.Name(),
		"node_shard", cfg.Node.Shard)

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	logger.Info("sharddb stopped")
	return nil
}
