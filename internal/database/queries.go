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

const (
	// Item queries
	queryGetItem = `
		SELECT value
		FROM kv_items
		WHERE provider = ? AND key = ?`

	queryUpsertItem = `
		INSERT INTO kv_items (provider, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(provider, key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`

	queryInsertItemIfAbsent = `
		INSERT INTO kv_items (provider, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(provider, key) DO NOTHING`

	queryDeleteItem = `
		DELETE FROM kv_items
		WHERE provider = ? AND key = ?`

	queryListProviderItems = `
		SELECT provider, key, value, created_at, updated_at
		FROM kv_items
		WHERE provider = ?
		ORDER BY key`

	// Flow event queries
	queryInsertFlowEvent = `
		INSERT INTO flow_events (id, flow_id, provider, direction, event, state, order_id,
			fiat_currency_code, fiat_amount, crypto_asset, crypto_amount, tx_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetFlowEvents = `
		SELECT id, flow_id, provider, direction, event, state, order_id,
			fiat_currency_code, fiat_amount, crypto_asset, crypto_amount, tx_id, detail, created_at
		FROM flow_events
		WHERE flow_id = ?
		ORDER BY created_at, rowid`

	queryGetRecentProviderEvents = `
		SELECT id, flow_id, provider, direction, event, state, order_id,
			fiat_currency_code, fiat_amount, crypto_asset, crypto_amount, tx_id, detail, created_at
		FROM flow_events
		WHERE provider = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`
)
