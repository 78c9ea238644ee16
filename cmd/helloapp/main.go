package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/slipway-sh/slipway/internal/hello"
	"github.com/slipway-sh/slipway/internal/logging"
)

const defaultPort = 5000

func main() {
	cleanup, err := logging.Init(os.Getenv("SLIPWAY_LOG_FILE"), os.Getenv("SLIPWAY_LOG_LEVEL"))
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	port := defaultPort
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			logging.Get().Fatal().Str("port", v).Msg("invalid PORT value")
		}
		port = p
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           hello.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Get().Info().Str("addr", srv.Addr).Msg("helloapp listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Get().Fatal().Err(err).Msg("server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logging.Get().Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Get().Warn().Err(err).Msg("shutdown failed")
	}
}
