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
	"fmt"
	"time"

	"ramp-quote-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordFlowEvent appends one approval-flow milestone to the audit log.
func (s *Service) RecordFlowEvent(ctx context.Context, event models.FlowEvent) error {
	if event.Id == "" {
		event.Id = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, queryInsertFlowEvent,
		event.Id, event.FlowId, event.Provider, string(event.Direction), event.Event, event.State, event.OrderId,
		event.FiatCurrencyCode, event.FiatAmount, event.CryptoAsset, event.CryptoAmount, event.TxId, event.Detail,
		event.CreatedAt)
	if err != nil {
		zap.L().Error("Failed to record flow event",
			zap.String("flow_id", event.FlowId),
			zap.String("event", event.Event),
			zap.Error(err))
		return fmt.Errorf("unable to record flow event: %w", err)
	}

	zap.L().Info("Flow event recorded",
		zap.String("flow_id", event.FlowId),
		zap.String("provider", event.Provider),
		zap.String("event", event.Event),
		zap.String("order_id", event.OrderId))
	return nil
}

func (s *Service) GetFlowEvents(ctx context.Context, flowId string) ([]models.FlowEvent, error) {
	rows, err := s.db.QueryContext(ctx, queryGetFlowEvents, flowId)
	if err != nil {
		return nil, fmt.Errorf("unable to query flow events: %w", err)
	}
	return scanFlowEvents(rows)
}

func (s *Service) GetRecentProviderEvents(ctx context.Context, provider string, limit int) ([]models.FlowEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, queryGetRecentProviderEvents, provider, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query provider events: %w", err)
	}
	return scanFlowEvents(rows)
}

func scanFlowEvents(rows *sql.Rows) ([]models.FlowEvent, error) {
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var events []models.FlowEvent
	for rows.Next() {
		var e models.FlowEvent
		var direction string
		err := rows.Scan(&e.Id, &e.FlowId, &e.Provider, &direction, &e.Event, &e.State, &e.OrderId,
			&e.FiatCurrencyCode, &e.FiatAmount, &e.CryptoAsset, &e.CryptoAmount, &e.TxId, &e.Detail, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan flow event row: %w", err)
		}
		e.Direction = models.Direction(direction)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flow event rows: %w", err)
	}
	return events, nil
}
