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

// Package solanarpc is the concrete chain-facing adapter: it implements
// ingest.LiveSource and backfill.SignatureWalker against an RPC/WebSocket
// endpoint, and adapts a caller-supplied fetch function to price.Oracle
// (PriceFeed). Nothing upstream of
// this package imports gagliardetto/solana-go directly.
package solanarpc

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/shopspring/decimal"

	"github.com/Aditya-1304/pumpfun-indexer/internal/errs"
	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
)

// Client wraps a JSON-RPC endpoint and a WebSocket endpoint against the same
// cluster, and the program address being indexed.
type Client struct {
	rpcClient *rpc.Client
	wsURL     string
	programID solana.PublicKey
}

// New builds a Client. rpcURL and wsURL are typically the http(s) and
// ws(s) endpoints of the same cluster node.
func New(rpcURL, wsURL, programID string) (*Client, error) {
	pk, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("solanarpc: parse program id: %w", err)
	}
	return &Client{
		rpcClient: rpc.New(rpcURL),
		wsURL:     wsURL,
		programID: pk,
	}, nil
}

// Subscribe implements ingest.LiveSource. It opens a logsSubscribe stream
// scoped to the program address and translates each notification into a
// events.LogRecord. The returned channel is closed when the subscription
// ends, whether cleanly or due to an error; the caller (internal/ingest.Runner)
// treats closure as "reconnect."
func (c *Client) Subscribe(ctx context.Context) (<-chan events.LogRecord, error) {
	wsClient, err := ws.Connect(ctx, c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connect websocket: %v", errs.ErrTransientTransport, err)
	}

	sub, err := wsClient.LogsSubscribeMentions(c.programID, rpc.CommitmentConfirmed)
	if err != nil {
		wsClient.Close()
		return nil, fmt.Errorf("%w: logsSubscribe: %v", errs.ErrTransientTransport, err)
	}

	out := make(chan events.LogRecord)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		defer wsClient.Close()

		for {
			got, err := sub.Recv(ctx)
			if err != nil {
				return
			}
			rec := logRecordFromNotification(got)
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// logRecordFromNotification keeps only the "Program data:" lines of a
// successful transaction; a failed transaction keeps all of its logs.
func logRecordFromNotification(n *ws.LogResult) events.LogRecord {
	failed := n.Value.Err != nil
	logs := n.Value.Logs
	if !failed {
		logs = make([]string, 0, len(n.Value.Logs))
		for _, l := range n.Value.Logs {
			if containsProgramData([]string{l}) {
				logs = append(logs, l)
			}
		}
	}
	return events.LogRecord{
		Transaction: events.Transaction{
			Signature:       n.Value.Signature.String(),
			Slot:            n.Context.Slot,
			Success:         !failed,
			LogMessageCount: len(n.Value.Logs),
			HasProgramData:  containsProgramData(n.Value.Logs),
		},
		LogMessages: logs,
	}
}

func containsProgramData(logs []string) bool {
	for _, l := range logs {
		if len(l) >= len(programDataPrefix) && l[:len(programDataPrefix)] == programDataPrefix {
			return true
		}
	}
	return false
}

const programDataPrefix = "Program data: "

// ListSignatures implements backfill.SignatureWalker, paging backward from
// before (exclusive) via getSignaturesForAddress.
func (c *Client) ListSignatures(ctx context.Context, programID, before string, limit int) ([]string, error) {
	pk, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("solanarpc: parse program id: %w", err)
	}

	opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit}
	if before != "" {
		sig, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, fmt.Errorf("solanarpc: parse cursor signature: %w", err)
		}
		opts.Before = sig
	}

	results, err := c.rpcClient.GetSignaturesForAddressWithOpts(ctx, pk, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: getSignaturesForAddress: %v", errs.ErrTransientTransport, err)
	}

	sigs := make([]string, 0, len(results))
	for _, r := range results {
		sigs = append(sigs, r.Signature.String())
	}
	return sigs, nil
}

// FetchTransaction implements backfill.SignatureWalker.
func (c *Client) FetchTransaction(ctx context.Context, signature string) (events.LogRecord, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return events.LogRecord{}, fmt.Errorf("solanarpc: parse signature: %w", err)
	}

	maxVersion := uint64(0)
	tx, err := c.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return events.LogRecord{}, fmt.Errorf("%w: getTransaction %s: %v", errs.ErrTransientTransport, signature, err)
	}
	if tx == nil || tx.Meta == nil {
		return events.LogRecord{}, fmt.Errorf("solanarpc: empty transaction response for %s", signature)
	}

	failed := tx.Meta.Err != nil
	var blockTime time.Time
	if tx.BlockTime != nil {
		blockTime = tx.BlockTime.Time()
	}

	return events.LogRecord{
		Transaction: events.Transaction{
			Signature:       signature,
			Slot:            tx.Slot,
			BlockTime:       blockTime,
			Success:         !failed,
			Fee:             tx.Meta.Fee,
			LogMessageCount: len(tx.Meta.LogMessages),
			HasProgramData:  containsProgramData(tx.Meta.LogMessages),
			ComputeUnits:    derefOrZero(tx.Meta.ComputeUnitsConsumed),
		},
		LogMessages: tx.Meta.LogMessages,
	}, nil
}

func derefOrZero(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}

// PriceFeed adapts a fetch function to price.Oracle, for use as either the
// primary or fallback reference-price source. It performs no I/O of its own;
// whatever Fetch does is the whole of it.
type PriceFeed struct {
	Fetch func(ctx context.Context) (decimal.Decimal, error)
}

// FetchPrice implements price.Oracle.
func (p *PriceFeed) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	return p.Fetch(ctx)
}
