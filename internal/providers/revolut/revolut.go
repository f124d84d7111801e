package revolut

import (
	"context"
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
)

const (
	ProviderID    = "revolut"
	defaultAPIURL = "https://ramp-partners.revolut.com"

	configTTL   = time.Hour
	maxTTL      = 2 * time.Minute
	quoteExpiry = 60 * time.Second

	identityKey = "order_reference"
)

var offeredTypes = []models.PaymentType{models.PaymentTypeRevolut}

type supportData struct {
	countries  map[string]bool
	fiats      map[string]fiat
	cryptos    map[models.CryptoAsset]crypto
	revolutPay bool
}

type Provider struct {
	deps     providers.Deps
	client   *httpclient.Client
	apiKey   string
	now      func() time.Time
	kv       store.KeyValueStore
	engine   *constraints.Engine
	recorder metrics.Recorder

	cache *support.Cache[*supportData]
	maxes *support.Memo[string, decimal.Decimal]
}

var _ providers.Provider = (*Provider)(nil)

func New(deps providers.Deps) (*Provider, error) {
	cfg := deps.Config
	if cfg.APIKey == "" {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "api key", Reason: "missing"}
	}

	p := &Provider{
		deps:     deps,
		client:   deps.Client(defaultAPIURL),
		apiKey:   cfg.APIKey,
		now:      deps.Clock(),
		kv:       deps.KV(),
		engine:   deps.Engine(),
		recorder: deps.Metrics(),
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
		DisplayName: "Revolut",
		Directions:  []models.Direction{models.DirectionBuy},
	}
}

func (p *Provider) Warm(ctx context.Context) error {
	return p.cache.Warm(ctx)
}

func (p *Provider) fetchSupport(ctx context.Context) (*supportData, error) {
	var cfg config
	if err := p.get(ctx, "partners/api/2.0/config", nil, "config", &cfg); err != nil {
		return nil, err
	}

	data := &supportData{
		countries: make(map[string]bool, len(cfg.Countries)),
		fiats:     make(map[string]fiat, len(cfg.Fiat)),
		cryptos:   make(map[models.CryptoAsset]crypto, len(cfg.Crypto)),
	}
	for _, c := range cfg.Countries {
		data.countries[strings.ToUpper(c)] = true
	}
	for _, f := range cfg.Fiat {
		data.fiats[models.NormalizeFiat(f.Currency)] = f
	}
	for _, c := range cfg.Crypto {
		asset, ok := c.asset()
		if !ok {
			zap.L().Debug("Skipping unknown Revolut crypto",
				zap.String("currency", c.Currency),
				zap.String("blockchain", c.Blockchain))
			continue
		}
		data.cryptos[asset] = c
	}
	for _, m := range cfg.PaymentMethods {
		if m == paymentMethod {
			data.revolutPay = true
		}
	}

	zap.L().Info("Revolut config loaded",
		zap.String("version", cfg.Version),
		zap.Int("countries", len(data.countries)),
		zap.Int("cryptos", len(data.cryptos)),
		zap.Bool("revolut_pay", data.revolutPay))
	return data, nil
}

func resolve(data *supportData, req providers.SupportRequest) (crypto, fiat, bool) {
	if req.Direction != models.DirectionBuy || !data.revolutPay || !data.countries[req.Region.CountryCode] {
		return crypto{}, fiat{}, false
	}
	f, ok := data.fiats[models.NormalizeFiat(req.Fiat)]
	if !ok {
		return crypto{}, fiat{}, false
	}
	c, ok := data.cryptos[req.Asset]
	if !ok {
		return crypto{}, fiat{}, false
	}
	return c, f, true
}

func (p *Provider) CheckSupport(ctx context.Context, req providers.SupportRequest) (providers.SupportResult, error) {
	if req.Direction != models.DirectionBuy || !p.engine.AllowAny(req.Params(ProviderID), offeredTypes) {
		return providers.Unsupported(), nil
	}
	data, err := p.cache.Get(ctx)
	if err != nil {
		return providers.SupportResult{}, err
	}
	if _, _, ok := resolve(data, req); !ok {
		return providers.Unsupported(), nil
	}
	return providers.Supported(models.AmountTypeFiat), nil
}

func (p *Provider) FetchQuotes(ctx context.Context, req providers.QuoteRequest) ([]*providers.Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// Revolut prices fiat amounts only.
	if req.Direction != models.DirectionBuy || req.AmountType != models.AmountTypeFiat {
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
	c, f, ok := resolve(data, req.SupportRequest())
	if !ok {
		return nil, nil
	}

	amount, err := p.requestAmount(req, c, f)
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
			q, err := p.quote(ctx, req, pt, c, f, amount)
			if err != nil {
				return nil, err
			}
			return []*providers.Quote{q}, nil
		})
	}
	return attempts.Wait()
}

// requestAmount resolves max to the fiat max_limit, remembered briefly so
// repeated max requests agree. Exact amounts outside the fiat limits are
// limit violations.
func (p *Provider) requestAmount(req providers.QuoteRequest, c crypto, f fiat) (decimal.Decimal, error) {
	limit := models.PaymentLimit{Min: f.MinLimit, Max: f.MaxLimit}
	if !req.Amount.Max {
		if err := providers.CheckLimit(ProviderID, models.NormalizeFiat(f.Currency), req.Amount.Exact, limit); err != nil {
			return decimal.Zero, err
		}
		return req.Amount.Exact, nil
	}

	key := strings.Join([]string{"buy", f.Currency, c.ID, "fiat"}, "-")
	max, ok := p.maxes.Get(key)
	if !ok {
		if !f.MaxLimit.IsPositive() {
			return decimal.Zero, &providers.ParseError{
				Provider:  ProviderID,
				Operation: "config",
				Err:       fmt.Errorf("no max_limit for %s", f.Currency),
			}
		}
		max = f.MaxLimit
		p.maxes.Set(key, max)
	}
	return providers.ResolveAmount(req.Amount, max), nil
}

func (p *Provider) quote(ctx context.Context, req providers.QuoteRequest, pt models.PaymentType, c crypto, f fiat, amount decimal.Decimal) (*providers.Quote, error) {
	var resp quoteResponse
	err := p.get(ctx, "partners/api/2.0/quote", url.Values{
		"fiat":    {f.Currency},
		"amount":  {amount.String()},
		"crypto":  {c.ID},
		"payment": {paymentMethod},
		"region":  {req.Region.CountryCode},
	}, "quote", &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Crypto.Amount.IsPositive() {
		return nil, &providers.ParseError{
			Provider:  ProviderID,
			Operation: "quote",
			Err:       fmt.Errorf("non-positive crypto amount %s", resp.Crypto.Amount),
		}
	}

	quote := &providers.Quote{
		Provider:            ProviderID,
		Direction:           req.Direction,
		Region:              req.Region,
		Asset:               req.Asset,
		FiatCurrencyCode:    models.NormalizeFiat(f.Currency),
		FiatAmount:          amount,
		DisplayCurrencyCode: req.DisplayCode(),
		CryptoAmount:        resp.Crypto.Amount,
		PaymentType:         pt,
		ExpiresAt:           p.now().Add(quoteExpiry),
		SettlementRange:     settlement.RevolutRange,
	}
	return quote.Bind(p.deps.Orchestrator, req.Wallet, p.prepareApproval(quote, f, resp.Crypto.CurrencyID)), nil
}

func (p *Provider) get(ctx context.Context, path string, query url.Values, operation string, out any) error {
	data, err := p.client.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
		Header: http.Header{
			"Accept":    {"application/json"},
			"X-Api-Key": {p.apiKey},
		},
		Operation: operation,
	})
	if err != nil {
		return err
	}
	return providers.DecodeJSON(ProviderID, operation, data, out)
}
