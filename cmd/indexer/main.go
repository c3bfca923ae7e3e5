/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command indexer runs the live ingestion pipeline: subscribe to the
// launchpad program's log stream, decode and route events, persist them,
// broadcast them, and periodically flush derived fields. It reads all
// configuration from the environment and has no required flags.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Aditya-1304/pumpfun-indexer/internal/broadcast"
	"github.com/Aditya-1304/pumpfun-indexer/internal/config"
	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
	"github.com/Aditya-1304/pumpfun-indexer/internal/flusher"
	"github.com/Aditya-1304/pumpfun-indexer/internal/health"
	"github.com/Aditya-1304/pumpfun-indexer/internal/ingest"
	"github.com/Aditya-1304/pumpfun-indexer/internal/persist"
	"github.com/Aditya-1304/pumpfun-indexer/internal/price"
	"github.com/Aditya-1304/pumpfun-indexer/internal/router"
	"github.com/Aditya-1304/pumpfun-indexer/internal/solanarpc"
	"github.com/Aditya-1304/pumpfun-indexer/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("failed to load configuration")
	}

	logLevel, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(logLevel).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("indexer exited with error")
	}
}

// errOracleNotConfigured marks the placeholder oracle wired until a concrete
// HTTP price feed endpoint is available.
var errOracleNotConfigured = errors.New("indexer: price oracle endpoint not configured")

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	persistStore, err := persist.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer persistStore.Close()

	publisher, err := broadcast.NewPublisher(cfg.PubsubURL)
	if err != nil {
		return err
	}
	defer publisher.Close()

	priceCell := price.NewCell()

	// The primary/fallback oracle endpoints are an external collaborator.
	// The PriceFeed wired here always fails, whether or not ORACLE_API_KEY
	// is set, and no fallback is configured, so the cell never receives a
	// reading and market caps stay base-currency-only, which is the
	// documented behavior for "no reading has succeeded since start."
	primaryOracle := &solanarpc.PriceFeed{Fetch: func(ctx context.Context) (decimal.Decimal, error) {
		return decimal.Zero, errOracleNotConfigured
	}}
	poller := price.NewPoller(primaryOracle, nil, priceCell, log.With().Str("component", "price").Logger())
	go poller.Run(ctx)

	stateStore := state.New(priceCell)

	existing, err := persistStore.LoadAllTokens(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to rebuild state from the relational store, starting empty")
	}
	for _, tok := range existing {
		stateStore.Load(tok)
	}
	log.Info().Int("tokens_loaded", len(existing)).Msg("rebuilt in-memory state from persistence")

	rt := router.New(stateStore, persistStore, publisher, log.With().Str("component", "router").Logger())

	chainClient, err := solanarpc.New(os.Getenv("RPC_HTTP_URL"), os.Getenv("RPC_WS_URL"), cfg.ProgramID)
	if err != nil {
		return err
	}

	runner := ingest.NewRunner(chainClient, log.With().Str("component", "ingest").Logger())
	records := make(chan events.LogRecord, 256)
	go runner.Run(ctx, records)
	go func() {
		for rec := range records {
			rt.HandleLogRecord(ctx, rec)
		}
	}()

	fl := flusher.New(stateStore, persistStore, log.With().Str("component", "flusher").Logger())
	go fl.Run(ctx)

	// The health aggregator is queried synchronously by the external query
	// surface; constructing it here ties its lifetime to the process.
	_ = health.New(persistStore, publisher, runner, stateStore, time.Now())

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining")
	return nil
}
