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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/store"

	"go.uber.org/zap"
)

// splitKey turns a scoped "provider:key" into its parts. Unscoped keys land
// under the empty provider.
func splitKey(scoped string) (string, string) {
	provider, key, found := strings.Cut(scoped, ":")
	if !found {
		return "", scoped
	}
	return provider, key
}

func (s *Service) GetItem(ctx context.Context, scopedKey string) (string, error) {
	provider, key := splitKey(scopedKey)
	if key == "" {
		return "", store.ErrEmptyKey
	}

	var value string
	err := s.db.QueryRowContext(ctx, queryGetItem, provider, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		zap.L().Error("Failed to query item", zap.String("provider", provider), zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("unable to query item: %w", err)
	}
	return value, nil
}

func (s *Service) SetItem(ctx context.Context, scopedKey, value string) error {
	provider, key := splitKey(scopedKey)
	if key == "" {
		return store.ErrEmptyKey
	}

	if _, err := s.db.ExecContext(ctx, queryUpsertItem, provider, key, value); err != nil {
		zap.L().Error("Failed to store item", zap.String("provider", provider), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("unable to store item: %w", err)
	}

	zap.L().Debug("Stored item", zap.String("provider", provider), zap.String("key", key))
	return nil
}

// SetIfAbsent inserts value only when the key is new and returns whatever
// the key holds afterwards.
func (s *Service) SetIfAbsent(ctx context.Context, scopedKey, value string) (string, error) {
	provider, key := splitKey(scopedKey)
	if key == "" {
		return "", store.ErrEmptyKey
	}

	if _, err := s.db.ExecContext(ctx, queryInsertItemIfAbsent, provider, key, value); err != nil {
		zap.L().Error("Failed to insert item", zap.String("provider", provider), zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("unable to insert item: %w", err)
	}
	return s.GetItem(ctx, scopedKey)
}

func (s *Service) DeleteItem(ctx context.Context, scopedKey string) error {
	provider, key := splitKey(scopedKey)
	result, err := s.db.ExecContext(ctx, queryDeleteItem, provider, key)
	if err != nil {
		return fmt.Errorf("unable to delete item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to read affected rows: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Service) ListItems(ctx context.Context, provider string) (map[string]string, error) {
	items, err := s.GetProviderItems(ctx, provider)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		out[item.Key] = item.Value
	}
	return out, nil
}

func (s *Service) GetProviderItems(ctx context.Context, provider string) ([]models.StoredItem, error) {
	rows, err := s.db.QueryContext(ctx, queryListProviderItems, provider)
	if err != nil {
		zap.L().Error("Failed to query provider items", zap.String("provider", provider), zap.Error(err))
		return nil, fmt.Errorf("unable to query provider items: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var items []models.StoredItem
	for rows.Next() {
		var item models.StoredItem
		if err := rows.Scan(&item.Provider, &item.Key, &item.Value, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}
