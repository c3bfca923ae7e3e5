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

// Package broadcast publishes serialized event records to the three named
// pub/sub channels over Redis.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Aditya-1304/pumpfun-indexer/internal/events"
	"github.com/Aditya-1304/pumpfun-indexer/internal/protocol"
)

// Publisher publishes JSON-serialized event records to Redis channels.
type Publisher struct {
	client *redis.Client
}

// NewPublisher builds a Publisher against a Redis connection string
// (PUBSUB_URL).
func NewPublisher(pubsubURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(pubsubURL)
	if err != nil {
		return nil, fmt.Errorf("broadcast: parse pubsub url: %w", err)
	}
	return &Publisher{client: redis.NewClient(opts)}, nil
}

// Close releases the underlying Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Ping reports whether Redis is reachable, for the health aggregator.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Publisher) publish(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("broadcast: marshal %s payload: %w", channel, err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("broadcast: publish to %s: %w", channel, err)
	}
	return nil
}

// NewToken publishes a freshly created token on the tokens channel.
func (p *Publisher) NewToken(ctx context.Context, c events.Creation) error {
	return p.publish(ctx, protocol.ChannelNewTokens, c)
}

// Trade publishes an accepted trade on the trades channel. The router calls
// this only after a successful insert, never after a DatabaseConflict.
func (p *Publisher) Trade(ctx context.Context, tr events.Trade) error {
	return p.publish(ctx, protocol.ChannelTrades, tr)
}

// Completion publishes a graduation event on the completions channel.
func (p *Publisher) Completion(ctx context.Context, c events.Completion) error {
	return p.publish(ctx, protocol.ChannelCompletions, c)
}
