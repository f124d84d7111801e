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

package banxa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ramp-quote-go/internal/constraints"
	"ramp-quote-go/internal/httpclient"
	"ramp-quote-go/internal/metrics"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"
	"ramp-quote-go/internal/settlement"
	"ramp-quote-go/internal/store"
	"ramp-quote-go/internal/support"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ProviderID    = "banxa"
	defaultAPIURL = "https://edge.banxa.com"

	configTTL        = 2 * time.Minute
	quoteExpiry      = 50 * time.Second
	sellPollInterval = 3 * time.Second

	identityKey = "username"

	// testnetAddress receives sandbox BTC orders.
	testnetAddress = "bc1qv752cnr3rcht3yyfq2nn6nv7zwczqjmcm80y6w"
)

type Provider struct {
	deps     providers.Deps
	client   *httpclient.Client
	apiKey   string
	secret   string
	testnet  bool
	now      func() time.Time
	kv       store.KeyValueStore
	engine   *constraints.Engine
	catalog  *models.AssetCatalog
	recorder metrics.Recorder

	pollInterval  time.Duration
	chainToPlugin map[string]string
	cache         *support.Cache[*supportData]
}

var _ providers.Provider = (*Provider)(nil)

func New(deps providers.Deps) (*Provider, error) {
	cfg := deps.Config
	if cfg.APIKey == "" {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "api key", Reason: "missing"}
	}
	if cfg.Secret == "" {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "hmac secret", Reason: "missing"}
	}

	client := deps.Client(defaultAPIURL)
	p := &Provider{
		deps:     deps,
		client:   client,
		apiKey:   cfg.APIKey,
		secret:   cfg.Secret,
		testnet:  strings.Contains(client.BaseURL(), "sandbox"),
		now:      deps.Clock(),
		kv:       deps.KV(),
		engine:   deps.Engine(),
		catalog:  deps.Catalog(),
		recorder: deps.Metrics(),
	}
	p.chainToPlugin = chainPlugins(p.testnet)

	interval, err := time.ParseDuration(cfg.Option("sell_poll_interval", sellPollInterval.String()))
	if err != nil || interval <= 0 {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "sell_poll_interval", Reason: "must be a positive duration"}
	}
	p.pollInterval = interval
	p.cache = support.NewCache(ProviderID, configTTL, p.fetchSupport,
		support.WithClock(p.now),
		support.WithRecorder(p.recorder))

	zap.L().Info("Banxa provider initialized",
		zap.String("api_url", client.BaseURL()),
		zap.Bool("testnet", p.testnet))
	return p, nil
}

func (p *Provider) Info() providers.Info {
	return providers.Info{
		ID:          ProviderID,
		DisplayName: "Banxa",
		Directions:  []models.Direction{models.DirectionBuy, models.DirectionSell},
	}
}

// Warm refreshes the support cache when it is stale.
func (p *Provider) Warm(ctx context.Context) error {
	return p.cache.Warm(ctx)
}

func (p *Provider) CheckSupport(ctx context.Context, req providers.SupportRequest) (providers.SupportResult, error) {
	types := allowedPaymentTypes[req.Direction]
	if len(types) == 0 || !p.engine.AllowAny(req.Params(ProviderID), types) {
		return providers.Unsupported(), nil
	}

	data, err := p.cache.Get(ctx)
	if err != nil {
		return providers.SupportResult{}, err
	}
	if _, _, ok := p.resolve(data, req); !ok {
		return providers.Unsupported(), nil
	}
	return providers.Supported(models.AmountTypeFiat, models.AmountTypeCrypto), nil
}

// resolve checks region, fiat and asset support and returns the Banxa coin
// and chain for the asset.
func (p *Provider) resolve(data *supportData, req providers.SupportRequest) (coin, string, bool) {
	matrix, ok := data.matrices[req.Direction]
	if !ok || !data.regions.Supports(req.Region) || !matrix.HasFiat(req.Fiat) {
		return coin{}, "", false
	}
	c, ok := matrix.FindCrypto(req.Asset)
	if !ok {
		return coin{}, "", false
	}
	chain, ok := p.chainFor(c, req.Asset)
	return c, chain, ok
}

func (p *Provider) FetchQuotes(ctx context.Context, req providers.QuoteRequest) ([]*providers.Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	data, err := p.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	c, chain, ok := p.resolve(data, req.SupportRequest())
	if !ok {
		return nil, nil
	}

	username, err := store.IdentityToken(ctx, p.kv, identityKey)
	if err != nil {
		return nil, err
	}

	fiat := models.NormalizeFiat(req.Fiat)
	methods := p.methodsFor(ctx, data, req, fiat, c.CoinCode)

	attempts := providers.NewAttempts(ProviderID, p.recorder)
	for _, method := range methods {
		attempts.Go(ctx, method.Type, func(ctx context.Context) ([]*providers.Quote, error) {
			q, err := p.quoteMethod(ctx, req, quoteContext{
				method:   method,
				coin:     c.CoinCode,
				chain:    chain,
				fiat:     fiat,
				username: username,
			})
			if err != nil {
				return nil, err
			}
			return []*providers.Quote{q}, nil
		})
	}
	return attempts.Wait()
}

// methodsFor returns one Banxa method per allowed payment type. Sell methods
// missing from the cached map are refetched once for the specific coin.
func (p *Provider) methodsFor(ctx context.Context, data *supportData, req providers.QuoteRequest, fiat, coinCode string) []methodLimit {
	var allowed []models.PaymentType
	for _, pt := range allowedPaymentTypes[req.Direction] {
		if p.engine.Allow(req.Params(ProviderID, pt)) {
			allowed = append(allowed, pt)
		}
	}

	collect := func() ([]methodLimit, bool) {
		var out []methodLimit
		missing := false
		for _, pt := range allowed {
			if m, ok := data.lookup(req.Direction, fiat, coinCode, pt); ok {
				out = append(out, m)
			} else {
				missing = true
			}
		}
		return out, missing
	}

	methods, missing := collect()
	if !missing || req.Direction != models.DirectionSell {
		return methods
	}

	fetched, err := p.fetchPaymentMethods(ctx, url.Values{"source": {coinCode}})
	if err != nil {
		zap.L().Warn("Unable to fetch Banxa sell payment methods",
			zap.String("coin", coinCode),
			zap.Error(err))
		return methods
	}
	data.addPaymentMethods(models.DirectionSell, fetched)
	methods, _ = collect()
	return methods
}

type quoteContext struct {
	method   methodLimit
	coin     string
	chain    string
	fiat     string
	username string
}

func (p *Provider) quoteMethod(ctx context.Context, req providers.QuoteRequest, qc quoteContext) (*providers.Quote, error) {
	method := qc.method
	limit := method.limit()

	amount := req.Amount.Exact
	if req.Amount.Max {
		if req.AmountType == models.AmountTypeFiat {
			amount = providers.ResolveAmount(req.Amount, method.Max)
		} else {
			maxCrypto, err := p.maxCrypto(ctx, req.Direction, qc)
			if err != nil {
				return nil, err
			}
			amount = providers.ResolveAmount(req.Amount, maxCrypto)
		}
	}

	query := url.Values{
		"account_reference": {qc.username},
		"payment_method_id": {strconvID(method.ID)},
	}
	var amountKey string
	if req.Direction == models.DirectionBuy {
		query.Set("source", qc.fiat)
		query.Set("target", qc.coin)
		amountKey = "target_amount"
		if req.AmountType == models.AmountTypeFiat {
			amountKey = "source_amount"
		}
	} else {
		query.Set("source", qc.coin)
		query.Set("target", qc.fiat)
		amountKey = "source_amount"
		if req.AmountType == models.AmountTypeFiat {
			amountKey = "target_amount"
		}
	}
	query.Set(amountKey, amount.String())

	if req.AmountType == models.AmountTypeFiat {
		if err := p.checkLimit(amount, limit, qc.fiat, method.Type); err != nil {
			return nil, err
		}
	}

	row, err := p.price(ctx, query, method.ID, qc.coin, qc.fiat)
	if err != nil {
		return nil, err
	}
	if err := p.checkLimit(row.FiatAmount, limit, qc.fiat, method.Type); err != nil {
		return nil, err
	}

	quote := &providers.Quote{
		Provider:            ProviderID,
		Direction:           req.Direction,
		Region:              req.Region,
		Asset:               req.Asset,
		FiatCurrencyCode:    qc.fiat,
		FiatAmount:          row.FiatAmount,
		DisplayCurrencyCode: req.DisplayCode(),
		CryptoAmount:        row.CoinAmount,
		PaymentType:         method.Type,
		IsEstimate:          false,
		ExpiresAt:           p.now().Add(quoteExpiry),
		SettlementRange:     settlement.Estimate(method.Type, req.Direction),
	}

	order := orderParams{
		methodID:  method.ID,
		username:  qc.username,
		source:    query.Get("source"),
		target:    query.Get("target"),
		chain:     qc.chain,
		amountKey: amountKey,
		amount:    amount.String(),
	}
	return quote.Bind(p.deps.Orchestrator, req.Wallet, p.prepareApproval(quote, order)), nil
}

func (p *Provider) checkLimit(amount decimal.Decimal, limit models.PaymentLimit, fiat string, pt models.PaymentType) error {
	err := providers.CheckLimit(ProviderID, fiat, amount, limit)
	var limitErr *providers.LimitError
	if errors.As(err, &limitErr) {
		limitErr.PaymentType = pt
	}
	return err
}

// maxCrypto prices the method's maximum fiat amount and returns the coin
// amount it buys or sells.
func (p *Provider) maxCrypto(ctx context.Context, direction models.Direction, qc quoteContext) (decimal.Decimal, error) {
	query := url.Values{
		"account_reference": {qc.username},
		"payment_method_id": {strconvID(qc.method.ID)},
	}
	if direction == models.DirectionBuy {
		query.Set("source", qc.fiat)
		query.Set("target", qc.coin)
		query.Set("source_amount", qc.method.Max.String())
	} else {
		query.Set("source", qc.coin)
		query.Set("target", qc.fiat)
		query.Set("target_amount", qc.method.Max.String())
	}
	row, err := p.price(ctx, query, qc.method.ID, qc.coin, qc.fiat)
	if err != nil {
		return decimal.Zero, err
	}
	return row.CoinAmount, nil
}

// price returns the price row for exactly this method, coin and fiat.
func (p *Provider) price(ctx context.Context, query url.Values, methodID int64, coinCode, fiat string) (priceRow, error) {
	var resp pricesResponse
	if err := p.call(ctx, http.MethodGet, "api/prices", query, nil, "prices", &resp); err != nil {
		return priceRow{}, err
	}
	for _, row := range resp.Data.Prices {
		if row.PaymentMethodID == methodID && row.CoinCode == coinCode && row.FiatCode == fiat {
			return row, nil
		}
	}
	return priceRow{}, &providers.ParseError{
		Provider:  ProviderID,
		Operation: "prices",
		Err:       fmt.Errorf("no price for payment method %d %s/%s", methodID, fiat, coinCode),
	}
}

func strconvID(id int64) string {
	return strconv.FormatInt(id, 10)
}
