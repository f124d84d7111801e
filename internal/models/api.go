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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteRequestBody is the JSON body accepted by POST /v1/quotes
type QuoteRequestBody struct {
	Direction           string `json:"direction" validate:"required,oneof=buy sell"`
	Region              string `json:"region" validate:"required"`
	Asset               string `json:"asset" validate:"required"`
	FiatCurrencyCode    string `json:"fiat_currency_code" validate:"required"`
	DisplayCurrencyCode string `json:"display_currency_code"`
	AmountType          string `json:"amount_type" validate:"required,oneof=fiat crypto"`
	Amount              string `json:"amount,omitempty" validate:"required_without=Max,excluded_with=Max"`
	Max                 bool   `json:"max,omitempty"`
	MaxCap              string `json:"max_cap,omitempty" validate:"excluded_without=Max"`
	ReceiveAddress      string `json:"receive_address,omitempty"`
	PromoCode           string `json:"promo_code,omitempty"`
	Platform            string `json:"platform,omitempty" validate:"omitempty,oneof=ios android web"`
}

// ApproveRequestBody is the JSON body accepted by POST /v1/quotes/{id}/approve
type ApproveRequestBody struct {
	ReceiveAddress string `json:"receive_address" validate:"required"`
}

// QuoteView is the JSON representation of a quote
type QuoteView struct {
	Id                  string          `json:"id"`
	Provider            string          `json:"provider"`
	Direction           Direction       `json:"direction"`
	PaymentType         PaymentType     `json:"payment_type"`
	FiatCurrencyCode    string          `json:"fiat_currency_code"`
	FiatAmount          decimal.Decimal `json:"fiat_amount"`
	DisplayCurrencyCode string          `json:"display_currency_code"`
	CryptoAmount        decimal.Decimal `json:"crypto_amount"`
	IsEstimate          bool            `json:"is_estimate"`
	ExpiresAt           time.Time       `json:"expires_at"`
	SettlementMin       string          `json:"settlement_min"`
	SettlementMax       string          `json:"settlement_max"`
}

// QuotesResponse is returned by POST /v1/quotes
type QuotesResponse struct {
	Quotes   []QuoteView       `json:"quotes"`
	Failures map[string]string `json:"failures,omitempty"`
}

// ProviderView describes one configured provider
type ProviderView struct {
	Id          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Directions  []Direction `json:"directions"`
}

// SupportView reports one provider's answer to a support check
type SupportView struct {
	Provider    string       `json:"provider"`
	Supported   bool         `json:"supported"`
	AmountTypes []AmountType `json:"amount_types,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ApproveResponse is returned by POST /v1/quotes/{id}/approve
type ApproveResponse struct {
	QuoteId     string `json:"quote_id"`
	FlowId      string `json:"flow_id"`
	State       string `json:"state"`
	CheckoutURL string `json:"checkout_url"`
}

// FlowView reports an approval flow and its recorded milestones
type FlowView struct {
	Id       string      `json:"id"`
	Provider string      `json:"provider"`
	State    string      `json:"state"`
	Detail   string      `json:"detail,omitempty"`
	TxId     string      `json:"tx_id,omitempty"`
	Live     bool        `json:"live"`
	Events   []FlowEvent `json:"events,omitempty"`
}

// ErrorResponse is the JSON body of every non-2xx API reply
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Bound  string `json:"bound,omitempty"`
	Detail string `json:"detail,omitempty"`
}
