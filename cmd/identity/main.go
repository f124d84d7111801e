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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"ramp-quote-go/internal/common"
	"ramp-quote-go/internal/config"
	"ramp-quote-go/internal/database"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/store"

	"go.uber.org/zap"
)

func validateProvider(provider string, known []string) error {
	if provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}
	if !slices.Contains(known, provider) {
		return fmt.Errorf("unknown provider %q (known: %s)", provider, strings.Join(known, ", "))
	}
	return nil
}

func printItems(w io.Writer, provider string, items []models.StoredItem) {
	common.Section(w, "Provider: "+provider, common.DefaultWidth, fmt.Sprintf("Items: %d", len(items)))
	for i, item := range items {
		fmt.Fprintf(w, "%s %-20s: %s (updated: %s)\n",
			common.BoxPrefix(i == len(items)-1),
			item.Key,
			common.Abbreviate(item.Value, 12),
			item.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

func printEvents(w io.Writer, events []models.FlowEvent) {
	for i, event := range events {
		isLast := i == len(events)-1
		fmt.Fprintf(w, "%s %-24s flow: %s, order: %s\n",
			common.BoxPrefix(isLast),
			event.Event,
			common.Abbreviate(event.FlowId, 8),
			common.Abbreviate(event.OrderId, 12))
		fmt.Fprintf(w, "%s   %s %s / %s %s at %s\n",
			common.BoxDetailPrefix(isLast),
			event.FiatAmount.String(),
			event.FiatCurrencyCode,
			event.CryptoAmount.String(),
			event.CryptoAsset,
			event.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

// rotate deletes a stored identity so the adapter mints a fresh one on next use.
func rotate(ctx context.Context, dbService *database.Service, provider, key string) error {
	err := dbService.DeleteItem(ctx, provider+":"+key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no item %q stored for %s", key, provider)
	}
	return err
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	providerFlag := flag.String("provider", "", "Provider whose stored identity to show (banxa, moonpay, paybis, simplex, revolut)")
	rotateFlag := flag.String("rotate", "", "Delete the named item so a fresh identity is created on next use (optional)")
	eventsFlag := flag.Int("events", 0, "Also show this many recent flow events for the provider (optional)")
	flag.Parse()

	provider := strings.ToLower(strings.TrimSpace(*providerFlag))
	if err := validateProvider(provider, common.DefaultRegistry().IDs()); err != nil {
		logger.Fatal("Invalid provider", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	if *rotateFlag != "" {
		if err := rotate(ctx, dbService, provider, *rotateFlag); err != nil {
			logger.Fatal("Failed to rotate identity", zap.Error(err))
		}
		logger.Info("Identity item removed",
			zap.String("provider", provider),
			zap.String("key", *rotateFlag))
	}

	common.Header(os.Stdout, "PROVIDER IDENTITY REPORT", common.DefaultWidth)

	items, err := dbService.GetProviderItems(ctx, provider)
	if err != nil {
		logger.Fatal("Failed to read provider items", zap.Error(err))
	}
	printItems(os.Stdout, provider, items)

	if *eventsFlag > 0 {
		events, err := dbService.GetRecentProviderEvents(ctx, provider, *eventsFlag)
		if err != nil {
			logger.Fatal("Failed to read flow events", zap.Error(err))
		}
		common.Header(os.Stdout, "RECENT FLOW EVENTS", common.DefaultWidth)
		printEvents(os.Stdout, events)
	}

	common.Footer(os.Stdout, fmt.Sprintf("%d items stored for %s", len(items), provider), common.DefaultWidth)
}
