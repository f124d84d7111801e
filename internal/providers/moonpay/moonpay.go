package moonpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
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
	"golang.org/x/sync/errgroup"
)

const (
	ProviderID    = "moonpay"
	defaultAPIURL = "https://api.moonpay.com"

	defaultBuyWidgetURL  = "https://buy.moonpay.com"
	defaultSellWidgetURL = "https://sell.moonpay.com"

	configTTL   = 2 * time.Minute
	quoteExpiry = 8 * time.Second

	identityKey     = "external_customer_id"
	excludedCountry = "GB"
)

// errMethodUnsupported marks a quote rejected because the payment method does
// not accept the fiat currency. Such methods are skipped, not failed.
var errMethodUnsupported = errors.New("payment method does not support fiat")

type supportData struct {
	regions  map[models.Direction]*support.ExactRegions
	matrices map[models.Direction]*support.Matrix[currency]
	fiats    map[string]currency
}

type Provider struct {
	deps     providers.Deps
	client   *httpclient.Client
	apiKey   string
	now      func() time.Time
	kv       store.KeyValueStore
	engine   *constraints.Engine
	recorder metrics.Recorder

	buyWidgetURL  string
	sellWidgetURL string
	cache         *support.Cache[*supportData]
}

var _ providers.Provider = (*Provider)(nil)

func New(deps providers.Deps) (*Provider, error) {
	cfg := deps.Config
	if cfg.APIKey == "" {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "api key", Reason: "missing"}
	}

	p := &Provider{
		deps:          deps,
		client:        deps.Client(defaultAPIURL),
		apiKey:        cfg.APIKey,
		now:           deps.Clock(),
		kv:            deps.KV(),
		engine:        deps.Engine(),
		recorder:      deps.Metrics(),
		buyWidgetURL:  cfg.Option("buy_widget_url", defaultBuyWidgetURL),
		sellWidgetURL: cfg.Option("sell_widget_url", defaultSellWidgetURL),
	}
	p.cache = support.NewCache(ProviderID, configTTL, p.fetchSupport,
		support.WithClock(p.now),
		support.WithRecorder(p.recorder))
	return p, nil
}

func (p *Provider) Info() providers.Info {
	return providers.Info{
		ID:          ProviderID,
		DisplayName: "Moonpay",
		Directions:  []models.Direction{models.DirectionBuy, models.DirectionSell},
	}
}

func (p *Provider) Warm(ctx context.Context) error {
	return p.cache.Warm(ctx)
}

func (p *Provider) fetchSupport(ctx context.Context) (*supportData, error) {
	data := &supportData{
		regions: map[models.Direction]*support.ExactRegions{
			models.DirectionBuy:  {},
			models.DirectionSell: {},
		},
		matrices: map[models.Direction]*support.Matrix[currency]{
			models.DirectionBuy:  support.NewMatrix[currency](),
			models.DirectionSell: support.NewMatrix[currency](),
		},
		fiats: make(map[string]currency),
	}

	var currencies []currency
	var countries []country
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.get(gctx, "v3/currencies", nil, "currencies", &currencies)
	})
	g.Go(func() error {
		return p.get(gctx, "v3/countries", nil, "countries", &countries)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range currencies {
		if c.Type == "fiat" {
			code := models.NormalizeFiat(c.Code)
			data.fiats[code] = c
			for _, m := range data.matrices {
				m.AddFiat(code)
			}
			continue
		}
		if c.Metadata == nil {
			continue
		}
		pluginID, ok := networkPlugins[c.Metadata.NetworkCode]
		if !ok {
			continue
		}
		asset := models.CryptoAsset{PluginID: pluginID, TokenID: c.Metadata.tokenID()}
		data.matrices[models.DirectionBuy].AddCrypto(asset, c)
		if c.IsSellSupported {
			data.matrices[models.DirectionSell].AddCrypto(asset, c)
		}
	}

	for _, c := range countries {
		if !c.IsAllowed {
			continue
		}
		if c.States == nil {
			if c.IsBuyAllowed {
				data.regions[models.DirectionBuy].AllowCountry(c.Alpha2)
			}
			if c.IsSellAllowed {
				data.regions[models.DirectionSell].AllowCountry(c.Alpha2)
			}
			continue
		}
		for _, s := range c.States {
			if !s.IsAllowed {
				continue
			}
			if s.IsBuyAllowed {
				data.regions[models.DirectionBuy].AllowState(c.Alpha2, s.Code)
			}
			if s.IsSellAllowed {
				data.regions[models.DirectionSell].AllowState(c.Alpha2, s.Code)
			}
		}
	}
	for _, r := range data.regions {
		r.RemoveCountry(excludedCountry)
	}

	zap.L().Info("Moonpay support data loaded",
		zap.Int("currencies", len(currencies)),
		zap.Int("fiats", len(data.fiats)),
		zap.Int("buy_countries", data.regions[models.DirectionBuy].Countries()))
	return data, nil
}

// resolve returns the Moonpay crypto and fiat currencies for a request.
// Suspended assets and assets Moonpay does not offer in the US are treated
// as unsupported.
func (p *Provider) resolve(data *supportData, req providers.SupportRequest) (currency, currency, bool) {
	regions, ok := data.regions[req.Direction]
	if !ok || !regions.Supports(req.Region) {
		return currency{}, currency{}, false
	}
	fiat, ok := data.fiats[models.NormalizeFiat(req.Fiat)]
	if !ok {
		return currency{}, currency{}, false
	}
	crypto, ok := data.matrices[req.Direction].FindCrypto(req.Asset)
	if !ok || crypto.IsSuspended {
		return currency{}, currency{}, false
	}
	if req.Region.CountryCode == "US" && crypto.IsSupportedInUS != nil && !*crypto.IsSupportedInUS {
		return currency{}, currency{}, false
	}
	return crypto, fiat, true
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

func (p *Provider) FetchQuotes(ctx context.Context, req providers.QuoteRequest) ([]*providers.Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	data, err := p.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	crypto, fiat, ok := p.resolve(data, req.SupportRequest())
	if !ok {
		return nil, nil
	}

	customerID, err := store.IdentityToken(ctx, p.kv, identityKey)
	if err != nil {
		return nil, err
	}

	types := p.engine.Filter(req.Params(ProviderID, ""), allowedPaymentTypes[req.Direction])
	if len(types) == 0 {
		return nil, nil
	}
	amount, err := p.requestAmount(req, crypto, fiat)
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
			q, err := p.quoteMethod(ctx, req, quoteContext{
				paymentType: pt,
				method:      paymentMethods[pt],
				crypto:      crypto,
				fiat:        fiat,
				amount:      amount,
				customerID:  customerID,
			})
			if errors.Is(err, errMethodUnsupported) {
				zap.L().Debug("Moonpay payment method skipped",
					zap.String("payment_type", string(pt)),
					zap.Error(err))
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return []*providers.Quote{q}, nil
		})
	}
	return attempts.Wait()
}

// requestAmount resolves a max request from the currency limits and checks an
// exact one against them. Limits are per currency, shared by every method.
func (p *Provider) requestAmount(req providers.QuoteRequest, crypto, fiat currency) (decimal.Decimal, error) {
	limitCurrency, limitCode := fiat, models.NormalizeFiat(fiat.Code)
	if req.AmountType == models.AmountTypeCrypto {
		limitCurrency, limitCode = crypto, strings.ToUpper(crypto.Code)
	}
	limit := limitCurrency.limit(req.Direction)

	if req.Amount.Max {
		if !limit.Max.IsPositive() {
			return decimal.Zero, &providers.ParseError{
				Provider:  ProviderID,
				Operation: "currencies",
				Err:       fmt.Errorf("no maximum %s amount published for %s", req.Direction, limitCode),
			}
		}
		return providers.ResolveAmount(req.Amount, limit.Max), nil
	}
	if err := providers.CheckLimit(ProviderID, limitCode, req.Amount.Exact, limit); err != nil {
		return decimal.Zero, err
	}
	return req.Amount.Exact, nil
}

type quoteContext struct {
	paymentType models.PaymentType
	method      string
	crypto      currency
	fiat        currency
	amount      decimal.Decimal
	customerID  string
}

// amountParam names the query parameter carrying the requested amount. Buy
// quotes are fiat base and crypto quote; sell quotes are the reverse.
func amountParam(direction models.Direction, amountType models.AmountType) string {
	fiatSide := amountType == models.AmountTypeFiat
	if (direction == models.DirectionBuy) == fiatSide {
		return "baseCurrencyAmount"
	}
	return "quoteCurrencyAmount"
}

func (p *Provider) quoteMethod(ctx context.Context, req providers.QuoteRequest, qc quoteContext) (*providers.Quote, error) {
	fiatCode := strings.ToLower(models.NormalizeFiat(qc.fiat.Code))
	query := url.Values{"areFeesIncluded": {"true"}}
	query.Set(amountParam(req.Direction, req.AmountType), qc.amount.String())

	var path string
	if req.Direction == models.DirectionBuy {
		path = "v3/currencies/" + url.PathEscape(qc.crypto.Code) + "/buy_quote"
		query.Set("quoteCurrencyCode", qc.crypto.Code)
		query.Set("baseCurrencyCode", fiatCode)
		query.Set("paymentMethod", qc.method)
	} else {
		path = "v3/currencies/" + url.PathEscape(qc.crypto.Code) + "/sell_quote"
		query.Set("quoteCurrencyCode", fiatCode)
		query.Set("payoutMethod", qc.method)
	}

	var resp quoteResponse
	err := p.get(ctx, path, query, "quote", &resp)
	if err != nil {
		if strings.Contains(err.Error(), "is not supported for "+fiatCode) {
			return nil, fmt.Errorf("%w: %s %s", errMethodUnsupported, qc.method, fiatCode)
		}
		return nil, err
	}

	fiatAmount := resp.QuoteCurrencyAmount
	cryptoAmount := resp.BaseCurrencyAmount
	if req.Direction == models.DirectionBuy {
		fiatAmount = resp.TotalAmount.Decimal
		cryptoAmount = resp.QuoteCurrencyAmount
		if !resp.TotalAmount.Valid {
			return nil, &providers.ParseError{Provider: ProviderID, Operation: "quote", Err: errors.New("buy quote missing totalAmount")}
		}
	}

	if req.AmountType == models.AmountTypeFiat {
		err = providers.CheckLimit(ProviderID, models.NormalizeFiat(qc.fiat.Code), fiatAmount, qc.fiat.limit(req.Direction))
	} else {
		err = providers.CheckLimit(ProviderID, strings.ToUpper(qc.crypto.Code), cryptoAmount, qc.crypto.limit(req.Direction))
	}
	if err != nil {
		var limitErr *providers.LimitError
		if errors.As(err, &limitErr) {
			limitErr.PaymentType = qc.paymentType
		}
		return nil, err
	}

	quote := &providers.Quote{
		Provider:            ProviderID,
		Direction:           req.Direction,
		Region:              req.Region,
		Asset:               req.Asset,
		FiatCurrencyCode:    models.NormalizeFiat(qc.fiat.Code),
		FiatAmount:          fiatAmount,
		DisplayCurrencyCode: req.DisplayCode(),
		CryptoAmount:        cryptoAmount,
		PaymentType:         qc.paymentType,
		ExpiresAt:           p.now().Add(quoteExpiry),
		SettlementRange:     settlement.MoonpayRange,
	}
	return quote.Bind(p.deps.Orchestrator, req.Wallet, p.prepareApproval(quote, req.AmountType, qc, resp)), nil
}

// get performs an API-key authenticated GET and decodes the response.
func (p *Provider) get(ctx context.Context, path string, query url.Values, operation string, out any) error {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("apiKey", p.apiKey)

	data, err := p.client.Do(ctx, httpclient.Request{
		Method:    http.MethodGet,
		Path:      path,
		Query:     q,
		Operation: operation,
	})
	if err != nil {
		var transportErr *providers.TransportError
		if errors.As(err, &transportErr) && len(data) > 0 {
			var apiErr errorResponse
			if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
				return fmt.Errorf("moonpay %s: %s: %w", operation, apiErr.Message, err)
			}
		}
		return err
	}
	return providers.DecodeJSON(ProviderID, operation, data, out)
}
