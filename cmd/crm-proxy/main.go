package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insites-io/module-ai/internal/backend"
	"github.com/insites-io/module-ai/internal/config"
	"github.com/insites-io/module-ai/internal/logx"
	"github.com/insites-io/module-ai/internal/metrics"
	"github.com/insites-io/module-ai/internal/proxy"
	"github.com/insites-io/module-ai/internal/rpc"
	"github.com/insites-io/module-ai/internal/secret"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ProxyConfig
	cfg.BindFlags()
	flag.Parse()
	if *showVersion {
		fmt.Printf("crm-proxy version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config file")
		}
	}
	logx.SetLevel(cfg.LogLevel)

	if cfg.ServerURL == "" {
		logx.Log.Fatal().Msg("SERVER_URL (execution service URL) is not set")
	}

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetBuildInfo(version, buildSHA, buildDate)
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logx.Log.Error().Err(err).Msg("metrics listener")
			}
		}()
	}

	logx.Log.Info().
		Str("server_url", cfg.ServerURL).
		Str("instance_url", cfg.InstanceURL).
		Str("instance_api_key", secret.Mask(cfg.InstanceAPIKey)).
		Msg("proxy starting")

	client := backend.New(cfg.ServerURL, cfg.RequestTimeout)
	d := rpc.NewDispatcher(os.Stdin, os.Stdout)
	proxy.New(cfg, client).Register(d)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logx.Log.Fatal().Err(err).Msg("proxy exited")
	}
	logx.Log.Info().Msg("end of input, shutting down")
}
