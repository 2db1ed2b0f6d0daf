package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asynctest/asynctest/internal/agent"
	"github.com/asynctest/asynctest/internal/config"
	"github.com/asynctest/asynctest/internal/logger"
	"github.com/asynctest/asynctest/internal/monitor"
	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/server"

	// Node executors register themselves on import.
	_ "github.com/asynctest/asynctest/internal/executor"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the executor service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd.Context())
		},
	}
}

func runStart(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var logOpts []logger.Option
	if cfg.Debug {
		logOpts = append(logOpts, logger.WithDebug())
	}
	ctx = logger.WithLogger(ctx, logger.NewLogger(logOpts...))
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := record.NewClient(ctx, record.ClientConfig{Connection: cfg.RedisConnection})
	if err != nil {
		return err
	}
	defer client.Close()

	lua, err := record.NewLuaManager(ctx, client, cfg.LuaScriptsDir)
	if err != nil {
		return err
	}

	ag := agent.New(cfg, client, lua)
	reader := record.NewReader(client, ag.Backup())
	srv := server.New(cfg, ag, reader)

	if watch, err := monitor.Self(cfg.MemoryLimitMB, cfg.WaitKillTime); err == nil {
		go watch.Watch(ctx)
	} else {
		logger.Warnf(ctx, "memory monitor unavailable: %v", err)
	}

	logger.Infof(ctx, "listening on %s", cfg.ListenAddr())
	return srv.ListenAndServe(ctx)
}
