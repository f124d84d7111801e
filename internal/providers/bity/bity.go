// Package bity prices SEPA trades on Bity within its no-KYC allowance.
// Bity settles against bank details the user types in and a SEPA transfer,
// with no hosted checkout to hand off to, so its quotes are not approvable.
package bity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ramp-quote-go/internal/constraints"
	"ramp-quote-go/internal/httpclient"
	"ramp-quote-go/internal/metrics"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"
	"ramp-quote-go/internal/settlement"
	"ramp-quote-go/internal/support"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ProviderID    = "bity"
	defaultAPIURL = "https://exchange.api.bity.com"

	configTTL   = time.Hour
	maxTTL      = 2 * time.Minute
	quoteExpiry = 50 * time.Second

	errAmountTooLarge = "amount_too_large"
)

// noKYCLimit is the largest fiat value Bity trades without verification.
var noKYCLimit = decimal.NewFromInt(1000)

var offeredTypes = []models.PaymentType{models.PaymentTypeSepa}

type supportData struct {
	fiats   map[string]currency
	cryptos map[models.CryptoAsset]currency
}

type Provider struct {
	deps     providers.Deps
	client   *httpclient.Client
	now      func() time.Time
	catalog  *models.AssetCatalog
	engine   *constraints.Engine
	recorder metrics.Recorder
	regions  support.ExactRegions

	cache *support.Cache[*supportData]
	maxes *support.Memo[string, decimal.Decimal]
}

var _ providers.Provider = (*Provider)(nil)

// New needs no credentials; Bity's estimate endpoint is public.
func New(deps providers.Deps) (*Provider, error) {
	p := &Provider{
		deps:     deps,
		client:   deps.Client(defaultAPIURL),
		now:      deps.Clock(),
		catalog:  deps.Catalog(),
		engine:   deps.Engine(),
		recorder: deps.Metrics(),
	}
	for _, country := range countries {
		p.regions.AllowCountry(country)
	}
	p.cache = support.NewCache(ProviderID, configTTL, p.fetchSupport,
		support.WithClock(p.now),
		support.WithRecorder(p.recorder))
	p.maxes = support.NewMemo[string, decimal.Decimal](maxTTL, p.now)
	return p, nil
}

func (p *Provider) Info() providers.Info {
	return providers.Info{
		ID:          ProviderID,
		DisplayName: "Bity",
		Directions:  []models.Direction{models.DirectionBuy, models.DirectionSell},
	}
}

func (p *Provider) Warm(ctx context.Context) error {
	return p.cache.Warm(ctx)
}

func (p *Provider) fetchSupport(ctx context.Context) (*supportData, error) {
	data, err := p.client.Do(ctx, httpclient.Request{
		Method:    http.MethodGet,
		Path:      "v2/currencies",
		Operation: "currencies",
	})
	if err != nil {
		return nil, err
	}
	var resp currenciesResponse
	if err := providers.DecodeJSON(ProviderID, "currencies", data, &resp); err != nil {
		return nil, err
	}

	out := &supportData{
		fiats:   make(map[string]currency),
		cryptos: make(map[models.CryptoAsset]currency),
	}
	for _, c := range resp.Currencies {
		if c.isFiat() {
			out.fiats[models.NormalizeFiat(c.Code)] = c
			continue
		}
		if !c.has("crypto") {
			continue
		}
		asset, ok := p.asset(c)
		if !ok {
			zap.L().Debug("Skipping unmapped Bity crypto", zap.String("code", c.Code))
			continue
		}
		if !noKYC[models.DirectionBuy][asset] && !noKYC[models.DirectionSell][asset] {
			continue
		}
		out.cryptos[asset] = c
	}

	zap.L().Info("Bity currencies loaded",
		zap.Int("fiats", len(out.fiats)),
		zap.Int("cryptos", len(out.cryptos)))
	return out, nil
}

// asset maps a Bity crypto to an asset. Tokens resolve through the catalog
// and are dropped when it does not know them.
func (p *Provider) asset(c currency) (models.CryptoAsset, bool) {
	pluginID, ok := c.pluginID()
	if !ok {
		return models.CryptoAsset{}, false
	}
	if !c.isToken() {
		return models.CryptoAsset{PluginID: pluginID}, true
	}
	asset, ok := p.catalog.Resolve(pluginID, c.Code)
	if !ok || asset.IsNative() {
		return models.CryptoAsset{}, false
	}
	return asset, true
}

// offered is the local check shared by support and quoting.
func (p *Provider) offered(direction models.Direction, region models.RegionCode, asset models.CryptoAsset) bool {
	return p.regions.Supports(region) && noKYC[direction][asset]
}

// CheckSupport treats a failed currency refresh as unsupported rather than
// an error.
func (p *Provider) CheckSupport(ctx context.Context, req providers.SupportRequest) (providers.SupportResult, error) {
	if !p.offered(req.Direction, req.Region, req.Asset) || !p.engine.AllowAny(req.Params(ProviderID), offeredTypes) {
		return providers.Unsupported(), nil
	}
	data, err := p.cache.Get(ctx)
	if err != nil {
		zap.L().Warn("Bity currencies unavailable", zap.Error(err))
		return providers.Unsupported(), nil
	}
	if _, _, ok := data.resolve(req.Asset, req.Fiat); !ok {
		return providers.Unsupported(), nil
	}
	return providers.Supported(), nil
}

func (d *supportData) resolve(asset models.CryptoAsset, fiat string) (currency, currency, bool) {
	c, ok := d.cryptos[asset]
	if !ok {
		return currency{}, currency{}, false
	}
	f, ok := d.fiats[models.NormalizeFiat(fiat)]
	if !ok {
		return currency{}, currency{}, false
	}
	return c, f, true
}

// pair is one direction of a fiat/crypto trade in Bity's terms.
type pair struct {
	direction models.Direction
	crypto    currency
	fiat      currency
}

func (tp pair) fiatCode() string {
	return models.NormalizeFiat(tp.fiat.Code)
}

// reverse is true when the requested amount sits on the output leg.
func (tp pair) reverse(amountType models.AmountType) bool {
	buy := tp.direction == models.DirectionBuy
	return (buy && amountType == models.AmountTypeCrypto) || (!buy && amountType == models.AmountTypeFiat)
}

func (tp pair) request(amountType models.AmountType, amount decimal.Decimal) estimateRequest {
	in, out := tp.fiat.Code, tp.crypto.Code
	if tp.direction == models.DirectionSell {
		in, out = out, in
	}
	req := estimateRequest{Input: side{Currency: in}, Output: side{Currency: out}}
	if tp.reverse(amountType) {
		req.Output.Amount = &amount
	} else {
		req.Input.Amount = &amount
	}
	return req
}

func (tp pair) fiatLeg(e estimate) estimateLeg {
	if tp.direction == models.DirectionBuy {
		return e.Input
	}
	return e.Output
}

func (tp pair) cryptoLeg(e estimate) estimateLeg {
	if tp.direction == models.DirectionBuy {
		return e.Output
	}
	return e.Input
}

func (tp pair) leg(e estimate, amountType models.AmountType) estimateLeg {
	if amountType == models.AmountTypeFiat {
		return tp.fiatLeg(e)
	}
	return tp.cryptoLeg(e)
}

func (tp pair) amountCurrency(amountType models.AmountType) string {
	if amountType == models.AmountTypeFiat {
		return tp.fiatCode()
	}
	return strings.ToUpper(tp.crypto.Code)
}

func (tp pair) digits(amountType models.AmountType) int32 {
	if amountType == models.AmountTypeFiat {
		return tp.fiat.DecimalDigits
	}
	return tp.crypto.DecimalDigits
}

func (p *Provider) FetchQuotes(ctx context.Context, req providers.QuoteRequest) ([]*providers.Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !p.offered(req.Direction, req.Region, req.Asset) {
		return nil, nil
	}
	types := p.engine.Filter(req.Params(ProviderID, ""), offeredTypes)
	if len(types) == 0 {
		return nil, nil
	}
	data, err := p.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	c, f, ok := data.resolve(req.Asset, req.Fiat)
	if !ok {
		return nil, nil
	}
	tp := pair{direction: req.Direction, crypto: c, fiat: f}

	amount, err := p.requestAmount(ctx, req, tp)
	var limitErr *providers.LimitError
	if errors.As(err, &limitErr) {
		return providers.FailAll(ProviderID, p.recorder, types, err)
	}
	if err != nil {
		return nil, err
	}

	attempts := providers.NewAttempts(ProviderID, p.recorder)
	for _, pt := range types {
		attempts.Go(ctx, pt, func(ctx context.Context) ([]*providers.Quote, error) {
			q, err := p.quote(ctx, req, pt, tp, amount)
			if err != nil {
				return nil, err
			}
			return []*providers.Quote{q}, nil
		})
	}
	return attempts.Wait()
}

// requestAmount resolves max to the no-KYC allowance, priced in crypto when
// the request is, and remembered briefly so repeated max requests agree.
// Exact amounts are cut to the currency's precision; a fiat amount over the
// allowance is a limit violation.
func (p *Provider) requestAmount(ctx context.Context, req providers.QuoteRequest, tp pair) (decimal.Decimal, error) {
	if !req.Amount.Max {
		amount := req.Amount.Exact.Truncate(tp.digits(req.AmountType))
		if req.AmountType == models.AmountTypeFiat && amount.GreaterThan(noKYCLimit) {
			return decimal.Zero, &providers.LimitError{Provider: ProviderID, Kind: providers.OverLimit, Bound: noKYCLimit, Currency: tp.fiatCode()}
		}
		return amount, nil
	}

	key := strings.Join([]string{string(req.Direction), tp.fiat.Code, tp.crypto.Code, string(req.AmountType)}, "-")
	max, ok := p.maxes.Get(key)
	if !ok {
		max = noKYCLimit
		if req.AmountType == models.AmountTypeCrypto {
			equivalent, err := p.cryptoAllowance(ctx, tp)
			if err != nil {
				return decimal.Zero, err
			}
			max = equivalent
		}
		p.maxes.Set(key, max)
	}
	return providers.ResolveAmount(req.Amount, max), nil
}

// cryptoAllowance prices the no-KYC fiat allowance in crypto.
func (p *Provider) cryptoAllowance(ctx context.Context, tp pair) (decimal.Decimal, error) {
	e, err := p.estimate(ctx, tp.request(models.AmountTypeFiat, noKYCLimit))
	if err != nil {
		return decimal.Zero, err
	}
	return tp.cryptoLeg(e).Amount, nil
}

func (p *Provider) quote(ctx context.Context, req providers.QuoteRequest, pt models.PaymentType, tp pair, amount decimal.Decimal) (*providers.Quote, error) {
	e, err := p.estimate(ctx, tp.request(req.AmountType, amount))
	var estErr *estimateError
	if errors.As(err, &estErr) {
		return nil, estErr.classify(pt, tp)
	}
	if err != nil {
		return nil, err
	}

	code := tp.amountCurrency(req.AmountType)
	requested := e.Input
	if tp.reverse(req.AmountType) {
		requested = e.Output
	}
	if minimum := requested.MinimumAmount; minimum.Valid && amount.LessThan(minimum.Decimal) {
		return nil, &providers.LimitError{Provider: ProviderID, Kind: providers.UnderLimit, Bound: minimum.Decimal, Currency: code, PaymentType: pt}
	}

	if !req.Amount.Max && req.AmountType == models.AmountTypeCrypto {
		allowance, err := p.cryptoAllowance(ctx, tp)
		if err != nil {
			return nil, err
		}
		if allowance.LessThan(amount) {
			return nil, &providers.LimitError{Provider: ProviderID, Kind: providers.OverLimit, Bound: allowance, Currency: code, PaymentType: pt}
		}
	}

	// Bity quietly prices less than asked when the amount exceeds what it will trade.
	if priced := tp.leg(e, req.AmountType).Amount; priced.LessThan(amount) {
		return nil, &providers.LimitError{Provider: ProviderID, Kind: providers.OverLimit, Bound: priced, Currency: code, PaymentType: pt}
	}

	fiatAmount, cryptoAmount := tp.fiatLeg(e).Amount, tp.cryptoLeg(e).Amount
	if !fiatAmount.IsPositive() || !cryptoAmount.IsPositive() {
		return nil, &providers.ParseError{
			Provider:  ProviderID,
			Operation: "estimate",
			Err:       fmt.Errorf("non-positive amounts %s/%s", fiatAmount, cryptoAmount),
		}
	}

	quote := &providers.Quote{
		Provider:            ProviderID,
		Direction:           req.Direction,
		Region:              req.Region,
		Asset:               req.Asset,
		FiatCurrencyCode:    tp.fiatCode(),
		FiatAmount:          fiatAmount,
		DisplayCurrencyCode: req.DisplayCode(),
		CryptoAmount:        cryptoAmount,
		PaymentType:         pt,
		ExpiresAt:           p.now().Add(quoteExpiry),
		SettlementRange:     settlement.BityRange,
	}
	return quote.Bind(p.deps.Orchestrator, req.Wallet, nil), nil
}

// estimateError is an estimate Bity refused with its own error list.
type estimateError struct {
	errors []apiError
	err    error
}

func (e *estimateError) Error() string {
	return fmt.Sprintf("bity estimate: %s: %v", e.errors[0].Message, e.err)
}

func (e *estimateError) Unwrap() error {
	return e.err
}

// classify turns a refusal into a limit violation when Bity says the amount
// is too large, and a rejection otherwise.
func (e *estimateError) classify(pt models.PaymentType, tp pair) error {
	for _, apiErr := range e.errors {
		if apiErr.Code == errAmountTooLarge {
			return &providers.LimitError{Provider: ProviderID, Kind: providers.OverLimit, Bound: noKYCLimit, Currency: tp.fiatCode(), PaymentType: pt}
		}
	}
	return &providers.RejectedError{Provider: ProviderID, PaymentType: pt, Reason: e.errors[0].Message}
}

func (p *Provider) estimate(ctx context.Context, body estimateRequest) (estimate, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return estimate{}, fmt.Errorf("unable to encode estimate request: %w", err)
	}
	data, err := p.client.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		Path:      "v2/orders/estimate",
		Body:      payload,
		Operation: "estimate",
	})
	if err != nil {
		var transportErr *providers.TransportError
		if errors.As(err, &transportErr) && len(data) > 0 {
			var resp errorResponse
			if json.Unmarshal(data, &resp) == nil && len(resp.Errors) > 0 {
				return estimate{}, &estimateError{errors: resp.Errors, err: err}
			}
		}
		return estimate{}, err
	}
	var out estimate
	if err := providers.DecodeJSON(ProviderID, "estimate", data, &out); err != nil {
		return estimate{}, err
	}
	return out, nil
}
