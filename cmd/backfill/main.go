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

// Command backfill replays historical transactions through the same router
// the live indexer feeds, in one of two mutually exclusive modes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Aditya-1304/pumpfun-indexer/internal/backfill"
	"github.com/Aditya-1304/pumpfun-indexer/internal/broadcast"
	"github.com/Aditya-1304/pumpfun-indexer/internal/config"
	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
	"github.com/Aditya-1304/pumpfun-indexer/internal/persist"
	"github.com/Aditya-1304/pumpfun-indexer/internal/price"
	"github.com/Aditya-1304/pumpfun-indexer/internal/router"
	"github.com/Aditya-1304/pumpfun-indexer/internal/solanarpc"
	"github.com/Aditya-1304/pumpfun-indexer/internal/state"
)

func main() {
	var (
		tokensOnly  bool
		tradesOnly  bool
		before      string
		maxTxs      int
		batchSize   int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay historical launchpad transactions through the indexing pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokensOnly == tradesOnly {
				return fmt.Errorf("backfill: exactly one of --tokens-only or --trades-only is required")
			}
			mode := backfill.ModeTokensOnly
			if tradesOnly {
				mode = backfill.ModeTradesOnly
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := zerolog.New(os.Stdout).With().Timestamp().Str("component", "backfill").Logger()

			return run(ctx, cfg, log, backfill.Config{
				ProgramID:   cfg.ProgramID,
				Mode:        mode,
				Before:      before,
				MaxTxs:      maxTxs,
				BatchSize:   batchSize,
				Concurrency: concurrency,
			})
		},
	}

	cmd.Flags().BoolVar(&tokensOnly, "tokens-only", false, "apply only creation events, skipping trades and completions")
	cmd.Flags().BoolVar(&tradesOnly, "trades-only", false, "apply only trade and completion events, skipping creations")
	cmd.Flags().StringVar(&before, "before", "", "resume cursor: the oldest signature already processed")
	cmd.Flags().IntVar(&maxTxs, "max-txs", 0, "stop after this many transactions (0 = unbounded)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 1000, "signatures requested per page")
	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "concurrent transaction fetches per page")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger, bcfg backfill.Config) error {
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
	stateStore := state.New(priceCell)

	existing, err := persistStore.LoadAllTokens(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to rebuild state from the relational store, starting empty")
	}
	for _, tok := range existing {
		stateStore.Load(tok)
	}

	rt := router.New(stateStore, persistStore, publisher, log.With().Str("component", "router").Logger())

	chainClient, err := solanarpc.New(os.Getenv("RPC_HTTP_URL"), os.Getenv("RPC_WS_URL"), cfg.ProgramID)
	if err != nil {
		return err
	}

	allow := backfill.KindAllowed(bcfg.Mode)
	sink := func(ctx context.Context, rec events.LogRecord) {
		rt.HandleLogRecordFiltered(ctx, rec, allow)
	}

	driver := backfill.NewDriver(chainClient, sink, log)
	progress, err := driver.Run(ctx, bcfg)
	if err != nil {
		return err
	}

	log.Info().
		Int("pages", progress.PagesWalked).
		Int("transactions", progress.TransactionsFetched).
		Str("cursor", progress.OldestSignature).
		Msg("backfill complete")
	return nil
}
