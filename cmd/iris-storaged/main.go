// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command iris-storaged runs the Iris storage core as a standalone
// daemon: no ingestion RPC or query API here, just the storage
// component wired to a Prometheus /metrics endpoint and a clean
// shutdown path, a minimal harness for exercising the core directly.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	iris "github.com/ablate-ai/iris"
)

func main() {
	dbPath := flag.String("db-path", "", "bbolt file path; empty runs in-memory")
	listenAddr := flag.String("listen-addr", ":9090", "address for the /metrics endpoint")
	batchSize := flag.Int("batch-size", 0, "BatchWriter row count trigger (0 = default)")
	batchTimeout := flag.Duration("batch-timeout", 0, "BatchWriter time trigger (0 = default)")
	retentionDays := flag.Int("retention-days", 0, "age-based retention window in days (0 = off)")
	maxRecords := flag.Int("max-records-per-agent", 0, "per-agent retention cap (0 = default)")
	disableCleanup := flag.Bool("disable-cleanup", false, "turn off the retention sweeper entirely")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	storage, err := iris.NewStorage(iris.Config{
		DBPath:             *dbPath,
		BatchSize:          *batchSize,
		BatchTimeout:       *batchTimeout,
		RetentionDays:      *retentionDays,
		MaxRecordsPerAgent: *maxRecords,
		DisableCleanup:     *disableCleanup,
		Logger:             log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start storage core")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: *listenAddr, Handler: mux}

	go func() {
		log.Info().Str("addr", *listenAddr).Msg("serving /metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown error")
	}
	if err := storage.Shutdown(); err != nil {
		log.Error().Err(err).Msg("storage shutdown error")
	}
}
