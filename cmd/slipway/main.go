package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slipway-sh/slipway/internal/config"
	"github.com/slipway-sh/slipway/internal/docker"
	"github.com/slipway-sh/slipway/internal/logging"
	"github.com/slipway-sh/slipway/internal/metrics"
	"github.com/slipway-sh/slipway/internal/pipeline"
	"github.com/slipway-sh/slipway/internal/server"
)

func main() {
	cfgFile := flag.String("config", "", "Path to config file")
	runOnce := flag.Bool("run-once", false, "run one deployment and exit instead of serving webhooks")
	dryRun := flag.Bool("dry-run", false, "checkout, authenticate and build, but skip publish and cutover")
	revision := flag.String("revision", "", "commit to deploy (defaults to the branch head)")
	flag.Parse()

	cfg := loadConfig(*cfgFile)
	if *dryRun {
		cfg.DryRun = true
	}

	cleanup := initLogging()
	defer cleanup()

	initMetricsAndInflux(cfg)
	ensureDockerSocketAccessible()

	cli, err := docker.NewClient(cfg.RegistryUser, cfg.RegistryPass)
	if err != nil {
		logging.Get().Fatal().Err(err).Msg("failed to create docker client")
	}

	p := pipeline.New(cfg, cli)
	if *runOnce {
		runOnceAndExit(p, *revision)
		return
	}
	serveAndWait(cfg, p, *revision)
}

// loadConfig layers defaults, optional file, and env overrides.
func loadConfig(path string) *config.Config {
	cfg := config.DefaultConfig()
	if path != "" {
		c, err := config.LoadConfigFromFile(path)
		if err != nil {
			log.Fatalf("failed loading config: %v", err)
		}
		cfg = c
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		log.Fatalf("invalid environment configuration: %v", err)
	}
	return cfg
}

// initLogging initializes the log subsystem from env and returns a cleanup func.
func initLogging() func() {
	logLevel := os.Getenv("SLIPWAY_LOG_LEVEL")
	logFile := os.Getenv("SLIPWAY_LOG_FILE")
	cleanup, err := logging.Init(logFile, logLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	return cleanup
}

// initMetricsAndInflux starts the optional metrics server and Influx pusher.
func initMetricsAndInflux(cfg *config.Config) {
	if cfg.MetricsEnabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.PromHandler())
			mux.Handle("/stats", metrics.JSONHandler())
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			logging.Get().Info().Str("addr", addr).Msg("starting metrics server")
			_ = http.ListenAndServe(addr, mux)
		}()
	}
	if cfg.InfluxURL != "" {
		go metrics.StartInfluxPusher(context.Background(), cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, cfg.InfluxInterval.Std())
	}
}

// checkDockerSocketAccess verifies the socket exists and is openable for
// read/write. A missing socket is not fatal here; Docker may listen on TCP.
func checkDockerSocketAccess(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return err
		}
		_ = f.Close()
		return nil
	}
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func ensureDockerSocketAccessible() {
	if err := checkDockerSocketAccess("/var/run/docker.sock"); err != nil {
		if os.IsPermission(err) {
			logging.Get().Fatal().Msg("permission denied accessing /var/run/docker.sock: ensure the user has docker group access")
		} else {
			logging.Get().Warn().Err(err).Msg("problem accessing /var/run/docker.sock; continuing but operations may fail")
		}
	}
}

// runOnceAndExit performs a single deployment and exits non-zero on failure.
func runOnceAndExit(p *pipeline.Pipeline, revision string) {
	logging.Get().Info().Msg("run-once: performing a single deployment")
	ctx := context.Background()
	_, err := p.Run(ctx, revision)

	notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if werr := p.Notifier().Wait(notifyCtx); werr != nil {
		logging.Get().Warn().Err(werr).Msg("timed out waiting for notifiers to finish")
	}
	if err != nil {
		os.Exit(1)
	}
}

// serveAndWait runs the webhook listener until a shutdown signal arrives.
func serveAndWait(cfg *config.Config, p *pipeline.Pipeline, revision string) {
	runner := pipeline.NewRunner(p)
	srv := server.New(cfg, runner)

	go func() {
		if err := srv.Start(); err != nil {
			logging.Get().Fatal().Err(err).Msg("webhook listener failed")
		}
	}()

	// Deploy immediately on startup when a revision was requested
	if revision != "" {
		runner.Trigger(context.Background(), revision)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logging.Get().Info().Msg("shutdown signal received, waiting for active deployment to complete")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Get().Warn().Err(err).Msg("server shutdown failed")
	}
	if err := runner.Wait(shutdownCtx); err != nil {
		logging.Get().Warn().Err(err).Msg("shutdown timeout exceeded, deployment may be incomplete")
	}
	notifyCtx, ncancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ncancel()
	if err := p.Notifier().Wait(notifyCtx); err != nil {
		logging.Get().Warn().Err(err).Msg("timed out waiting for notifiers to finish")
	}
}
