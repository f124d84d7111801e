package simplex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
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

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ProviderID           = "simplex"
	defaultAPIURL        = "https://api.simplexcc.com/v2"
	defaultPartnerAPIURL = "https://partner.simplex.com"
	defaultWidgetURL     = "https://partner.simplex.com"

	configTTL   = 24 * time.Hour
	quoteExpiry = 8 * time.Second

	identityKey     = "simplex_user_id"
	excludedCountry = "GB"
)

var (
	defaultMaxFiat   = decimal.NewFromInt(50000)
	defaultMaxCrypto = decimal.NewFromInt(100)

	limitPattern = regexp.MustCompile(`The (.*) amount must be between (.*) and (.*)`)
)

type supportData struct {
	regions support.ExactRegions
	fiats   map[string]fiatCurrency
}

type Provider struct {
	deps     providers.Deps
	client   *httpclient.Client
	partners *httpclient.Client
	partner  string
	apiKey   string
	secret   []byte
	widget   string
	now      func() time.Time
	kv       store.KeyValueStore
	engine   *constraints.Engine
	recorder metrics.Recorder

	cache *support.Cache[*supportData]
}

var _ providers.Provider = (*Provider)(nil)

// New builds the adapter. APIKey is the Simplex public key and Secret signs
// the quote and checkout tokens.
func New(deps providers.Deps) (*Provider, error) {
	cfg := deps.Config
	if cfg.APIKey == "" {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "public key", Reason: "missing"}
	}
	if cfg.Secret == "" {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "secret", Reason: "missing"}
	}
	partner := cfg.Option("partner", "")
	if partner == "" {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "partner", Reason: "missing"}
	}

	p := &Provider{
		deps:     deps,
		client:   deps.Client(defaultAPIURL),
		partners: deps.ClientFor(ProviderID, cfg.Option("partner_api_url", ""), defaultPartnerAPIURL),
		partner:  partner,
		apiKey:   cfg.APIKey,
		secret:   []byte(cfg.Secret),
		widget:   strings.TrimRight(cfg.Option("widget_url", defaultWidgetURL), "/"),
		now:      deps.Clock(),
		kv:       deps.KV(),
		engine:   deps.Engine(),
		recorder: deps.Metrics(),
	}
	p.cache = support.NewCache(ProviderID, configTTL, p.fetchSupport,
		support.WithClock(p.now),
		support.WithRecorder(p.recorder))
	return p, nil
}

func (p *Provider) Info() providers.Info {
	return providers.Info{
		ID:          ProviderID,
		DisplayName: "Simplex",
		Directions:  []models.Direction{models.DirectionBuy},
	}
}

func (p *Provider) Warm(ctx context.Context) error {
	return p.cache.Warm(ctx)
}

// paymentTypes is card plus the wallet-pay method of the platform.
func paymentTypes(platform models.Platform) []models.PaymentType {
	switch platform {
	case models.PlatformIOS:
		return []models.PaymentType{models.PaymentTypeCredit, models.PaymentTypeApplePay}
	case models.PlatformAndroid:
		return []models.PaymentType{models.PaymentTypeCredit, models.PaymentTypeGooglePay}
	}
	return []models.PaymentType{models.PaymentTypeCredit}
}

func (p *Provider) fetchSupport(ctx context.Context) (*supportData, error) {
	var fiats []fiatCurrency
	var countries []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.get(gctx, "supported_fiat_currencies", nil, "fiat_currencies", &fiats)
	})
	g.Go(func() error {
		return p.get(gctx, "supported_countries", url.Values{"payment_methods": {"credit_card"}}, "countries", &countries)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := &supportData{fiats: make(map[string]fiatCurrency, len(fiats))}
	for _, f := range fiats {
		data.fiats[models.NormalizeFiat(f.TickerSymbol)] = f
	}
	for _, c := range countries {
		country, state, _ := strings.Cut(c, "-")
		if state == "" {
			data.regions.AllowCountry(country)
		} else {
			data.regions.AllowState(country, state)
		}
	}
	data.regions.RemoveCountry(excludedCountry)

	zap.L().Info("Simplex support data loaded",
		zap.Int("fiats", len(data.fiats)),
		zap.Int("countries", data.regions.Countries()))
	return data, nil
}

// resolve returns the Simplex crypto code and fiat for a request. Only buys
// of native assets are offered.
func resolve(data *supportData, req providers.SupportRequest) (string, fiatCurrency, bool) {
	if req.Direction != models.DirectionBuy || !req.Asset.IsNative() {
		return "", fiatCurrency{}, false
	}
	code, ok := currencyCodes[req.Asset.PluginID]
	if !ok || !data.regions.Supports(req.Region) {
		return "", fiatCurrency{}, false
	}
	fiat, ok := data.fiats[models.NormalizeFiat(req.Fiat)]
	if !ok {
		return "", fiatCurrency{}, false
	}
	return code, fiat, true
}

func (p *Provider) CheckSupport(ctx context.Context, req providers.SupportRequest) (providers.SupportResult, error) {
	if req.Direction != models.DirectionBuy || !req.Asset.IsNative() {
		return providers.Unsupported(), nil
	}
	if _, ok := currencyCodes[req.Asset.PluginID]; !ok {
		return providers.Unsupported(), nil
	}
	if !p.engine.AllowAny(req.Params(ProviderID), paymentTypes(req.Platform)) {
		return providers.Unsupported(), nil
	}
	data, err := p.cache.Get(ctx)
	if err != nil {
		return providers.SupportResult{}, err
	}
	if _, _, ok := resolve(data, req); !ok {
		return providers.Unsupported(), nil
	}
	return providers.Supported(models.AmountTypeFiat, models.AmountTypeCrypto), nil
}

// FetchQuotes prices the request once; the price is shared by every allowed
// payment method.
func (p *Provider) FetchQuotes(ctx context.Context, req providers.QuoteRequest) ([]*providers.Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	types := p.engine.Filter(req.Params(ProviderID, ""), paymentTypes(req.Platform))
	if len(types) == 0 {
		return nil, nil
	}
	data, err := p.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	cryptoCode, fiat, ok := resolve(data, req.SupportRequest())
	if !ok {
		return nil, nil
	}
	fiatCode := models.NormalizeFiat(fiat.TickerSymbol)

	userID, err := store.IdentityToken(ctx, p.kv, identityKey)
	if err != nil {
		return nil, err
	}

	amount, err := requestAmount(req, fiat)
	if err != nil {
		return p.failRequest(types, err)
	}

	source, target := fiatCode, cryptoCode
	if req.AmountType == models.AmountTypeCrypto {
		source, target = cryptoCode, fiatCode
	}
	token, err := p.sign(jwt.MapClaims{
		"euid": userID,
		"ts":   p.now().Unix(),
		"soam": json.Number(amount.String()),
		"socn": source,
		"tacn": target,
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.quote(ctx, token)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return p.failRequest(types, quoteError(resp, amount, source))
	}
	if resp.DigitalMoney == nil || resp.FiatMoney == nil {
		return nil, &providers.ParseError{Provider: ProviderID, Operation: "quote", Err: errors.New("quote missing amounts")}
	}
	fiatAmount, cryptoAmount := resp.FiatMoney.Amount, resp.DigitalMoney.Amount

	// Simplex prices amounts below an asset's minimum at zero. The minimum
	// is unpublished; all that is known is that it is above the amount.
	if !fiatAmount.IsPositive() || !cryptoAmount.IsPositive() {
		return p.failRequest(types, &providers.LimitError{Provider: ProviderID, Kind: providers.UnderLimit, Bound: amount, Currency: source})
	}
	if req.AmountType == models.AmountTypeFiat {
		if err := providers.CheckLimit(ProviderID, fiatCode, fiatAmount, fiatLimit(fiat)); err != nil {
			return p.failRequest(types, err)
		}
	}

	quotes := make([]*providers.Quote, 0, len(types))
	for _, pt := range types {
		quote := &providers.Quote{
			Provider:            ProviderID,
			Direction:           req.Direction,
			Region:              req.Region,
			Asset:               req.Asset,
			FiatCurrencyCode:    fiatCode,
			FiatAmount:          fiatAmount,
			DisplayCurrencyCode: req.DisplayCode(),
			CryptoAmount:        cryptoAmount,
			PaymentType:         pt,
			ExpiresAt:           p.now().Add(quoteExpiry),
			SettlementRange:     settlement.Estimate(pt, req.Direction),
		}
		quotes = append(quotes, quote.Bind(p.deps.Orchestrator, req.Wallet, p.prepareApproval(quote, userID, cryptoCode, fiatCode)))
	}
	return quotes, nil
}

// failRequest reports a limit violation as the failure of every payment
// type, since one price serves them all. Other errors pass through.
func (p *Provider) failRequest(types []models.PaymentType, err error) ([]*providers.Quote, error) {
	var limitErr *providers.LimitError
	if errors.As(err, &limitErr) {
		return providers.FailAll(ProviderID, p.recorder, types, err)
	}
	return nil, err
}

func fiatLimit(fiat fiatCurrency) models.PaymentLimit {
	return models.PaymentLimit{Min: fiat.MinAmount, Max: fiat.MaxAmount}
}

// requestAmount resolves a max request and checks an exact fiat amount
// against the published fiat limits.
func requestAmount(req providers.QuoteRequest, fiat fiatCurrency) (decimal.Decimal, error) {
	if req.Amount.Max {
		max := defaultMaxCrypto
		if req.AmountType == models.AmountTypeFiat {
			max = defaultMaxFiat
			if fiat.MaxAmount.IsPositive() {
				max = fiat.MaxAmount
			}
		}
		return providers.ResolveAmount(req.Amount, max), nil
	}
	if req.AmountType == models.AmountTypeFiat {
		if err := providers.CheckLimit(ProviderID, models.NormalizeFiat(fiat.TickerSymbol), req.Amount.Exact, fiatLimit(fiat)); err != nil {
			return decimal.Zero, err
		}
	}
	return req.Amount.Exact, nil
}

// quoteError converts a Simplex quote error into a limit violation where the
// message names the bounds. currency is the one amount is denominated in.
func quoteError(resp quoteResponse, amount decimal.Decimal, currency string) error {
	switch resp.Type {
	case errInvalidAmountLimit, errAmountLimitExceeded:
		m := limitPattern.FindStringSubmatch(resp.Error)
		if m == nil {
			break
		}
		lower, minErr := decimal.NewFromString(strings.TrimSpace(m[2]))
		upper, maxErr := decimal.NewFromString(strings.TrimSpace(m[3]))
		if minErr != nil || maxErr != nil {
			break
		}
		if amount.GreaterThan(upper) {
			return &providers.LimitError{Provider: ProviderID, Kind: providers.OverLimit, Bound: upper, Currency: m[1]}
		}
		if amount.LessThan(lower) {
			return &providers.LimitError{Provider: ProviderID, Kind: providers.UnderLimit, Bound: lower, Currency: m[1]}
		}
	case errQuote:
		// Fees eat the whole amount, so the minimum lies above it.
		if strings.Contains(resp.Error, "fees for this transaction exceed") {
			return &providers.LimitError{Provider: ProviderID, Kind: providers.UnderLimit, Bound: amount, Currency: currency}
		}
	}
	return fmt.Errorf("simplex quote error: %s", resp.Error)
}

// sign issues an HS256 token over claims.
func (p *Provider) sign(claims jwt.MapClaims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("unable to sign simplex token: %w", err)
	}
	return token, nil
}

func (p *Provider) quote(ctx context.Context, token string) (quoteResponse, error) {
	var resp quoteResponse
	data, err := p.partners.Do(ctx, httpclient.Request{
		Method:    http.MethodGet,
		Path:      "api/quote",
		Query:     url.Values{"partner": {p.partner}, "t": {token}},
		Operation: "quote",
	})
	if err != nil {
		// Limit errors arrive with a non-2xx status.
		var transportErr *providers.TransportError
		if errors.As(err, &transportErr) && json.Unmarshal(data, &resp) == nil && resp.Error != "" {
			return resp, nil
		}
		return resp, err
	}
	if err := providers.DecodeJSON(ProviderID, "quote", data, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func (p *Provider) get(ctx context.Context, path string, query url.Values, operation string, out any) error {
	q := url.Values{"public_key": {p.apiKey}}
	for k, v := range query {
		q[k] = v
	}
	data, err := p.client.Do(ctx, httpclient.Request{
		Method:    http.MethodGet,
		Path:      path,
		Query:     q,
		Operation: operation,
	})
	if err != nil {
		return err
	}
	return providers.DecodeJSON(ProviderID, operation, data, out)
}
