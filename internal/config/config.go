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

// Package config loads the main binary's configuration from the
// environment. There is no flag parsing and no file-based config here: the
// backfill binary's bounded, explicit flag surface is parsed separately with
// cobra in cmd/backfill.
package config

import (
	"fmt"
	"os"

	"github.com/Aditya-1304/pumpfun-indexer/internal/protocol"
)

// Config holds every environment-sourced setting the main binary needs.
type Config struct {
	DatabaseURL  string
	PubsubURL    string
	OracleAPIKey string // optional
	APIPort      string
	LogLevel     string
	ProgramID    string
}

const (
	defaultAPIPort  = "8080"
	defaultLogLevel = "info"
)

// Load reads Config from the environment, applying defaults for everything
// that has one. DATABASE_URL and PUBSUB_URL have no default and are
// required.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		PubsubURL:    os.Getenv("PUBSUB_URL"),
		OracleAPIKey: os.Getenv("ORACLE_API_KEY"),
		APIPort:      getOrDefault("API_PORT", defaultAPIPort),
		LogLevel:     getOrDefault("LOG_LEVEL", defaultLogLevel),
		ProgramID:    getOrDefault("PROGRAM_ID", protocol.DefaultProgramID),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.PubsubURL == "" {
		return Config{}, fmt.Errorf("config: PUBSUB_URL is required")
	}

	return cfg, nil
}

func getOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
