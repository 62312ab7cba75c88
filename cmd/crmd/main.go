package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/insites-io/module-ai/internal/backend"
	"github.com/insites-io/module-ai/internal/cache"
	"github.com/insites-io/module-ai/internal/config"
	"github.com/insites-io/module-ai/internal/logx"
	"github.com/insites-io/module-ai/internal/metrics"
	"github.com/insites-io/module-ai/internal/server"
	"github.com/insites-io/module-ai/internal/stream"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ServerConfig
	cfg.BindFlags()
	flag.Parse()
	if *showVersion {
		fmt.Printf("crmd version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config file")
		}
	}
	logx.SetLevel(cfg.LogLevel)

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	var c *cache.Cache
	if cfg.RedisAddr != "" {
		var err error
		c, err = cache.New(cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			logx.Log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("cache unavailable, continuing without it")
			c = nil
		} else {
			defer func() { _ = c.Close() }()
			logx.Log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.CacheTTL).Msg("response cache enabled")
		}
	}

	client := backend.New(cfg.BackendURL, cfg.RequestTimeout)
	reg := stream.NewRegistry()
	sub := stream.NewSubmitter(reg, client, c, cfg.RequestTimeout)
	handler := server.New(cfg, reg, sub, client, c)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logx.Log.Info().Int("port", cfg.Port).Str("backend", cfg.BackendURL).Msg("gateway starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
