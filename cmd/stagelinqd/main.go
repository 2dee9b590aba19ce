// SPDX-License-Identifier: MIT

// Command stagelinqd runs the StagelinQ discovery/connection engine and
// exposes the currently-audible track plus Prometheus metrics over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sl-cache/stagelinq-cache/internal/config"
	"github.com/sl-cache/stagelinq-cache/internal/log"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/audibility"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/engine"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/token"
	"github.com/sl-cache/stagelinq-cache/internal/version"
)

const shutdownTimeout = 5 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	httpAddr := flag.String("http", ":9191", "address to serve /track and /metrics on")
	flag.Parse()

	if *showVersion {
		fmt.Println("stagelinqd " + version.String())
		os.Exit(0)
	}

	log.Configure(log.Config{Level: "info", Service: "stagelinqd", Version: version.Version})
	logger := log.WithComponent("stagelinqd")

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	self, err := token.Generate()
	if err != nil {
		logger.Fatal().Err(err).Msg("generate device token")
	}

	selector := audibility.NewSelector()
	selector.SetMixmode(cfg.Audibility.AudibilityMixmode())
	selector.SetDeckSkip(cfg.Audibility.DeckSkip)
	selector.SetAudibleThreshold(cfg.Audibility.AudibleThreshold)

	eng := engine.New(self, selector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/track", func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		reqCtx := log.ContextWithRequestID(r.Context(), reqID)
		reqLog := log.WithComponentFromContext(reqCtx, "http.track")

		track := selector.GetPlayingTrack()
		w.Header().Set("X-Request-Id", reqID)
		w.Header().Set("Content-Type", "application/json")
		if track == nil {
			w.WriteHeader(http.StatusNoContent)
			reqLog.Debug().Msg("no track currently audible")
			return
		}
		if err := json.NewEncoder(w).Encode(track); err != nil {
			reqLog.Error().Err(err).Msg("encode track response")
		}
	})

	srv := &http.Server{Addr: *httpAddr, Handler: mux}
	go func() {
		logger.Info().Str("addr", *httpAddr).Msg("serving /track and /metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("device", cfg.Discovery.DeviceName).Msg("starting StagelinQ engine")
	if err := eng.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("engine stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
