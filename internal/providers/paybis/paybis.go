package paybis

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
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
	ProviderID    = "paybis"
	defaultAPIURL = "https://widget-api.paybis.com"

	defaultWidgetURL = "https://widget.paybis.com"
	sandboxWidgetURL = "https://widget.sandbox.paybis.com"

	pairsTTL    = time.Hour
	maxTTL      = 2 * time.Minute
	quoteExpiry = 60 * time.Second

	identityKey = "partnerUserId"

	fiatDecimals   = 2
	cryptoDecimals = 8

	signatureHeader = "x-request-signature"
)

var (
	defaultMaxFiat   = decimal.NewFromInt(10000)
	defaultMaxCrypto = decimal.NewFromInt(10)

	// promoLimitUSD is the largest first purchase a promo code applies to.
	promoLimitUSD = decimal.NewFromInt(1000)
)

// excludedStates lists the states Paybis does not serve. Countries not
// listed are served everywhere.
var excludedStates = map[string]map[string]bool{
	"US": {"HI": true, "NY": true},
}

const excludedCountry = "GB"

var testnetPlugins = map[string]bool{
	"bitcointestnet": true,
}

type supportData struct {
	// methods holds one matrix per direction and payment type. The matrix
	// metadata is the Paybis currency code of the asset.
	methods map[models.Direction]map[models.PaymentType]*support.Matrix[string]
}

func (d *supportData) matrix(direction models.Direction, pt models.PaymentType) *support.Matrix[string] {
	m, ok := d.methods[direction][pt]
	if !ok {
		m = support.NewMatrix[string]()
		d.methods[direction][pt] = m
	}
	return m
}

type Provider struct {
	deps       providers.Deps
	client     *httpclient.Client
	apiKey     string
	privateKey *rsa.PrivateKey
	widgetURL  string
	now        func() time.Time
	kv         store.KeyValueStore
	engine     *constraints.Engine
	recorder   metrics.Recorder

	cache *support.Cache[*supportData]
	maxes *support.Memo[string, decimal.Decimal]
}

var _ providers.Provider = (*Provider)(nil)

// New builds the adapter. The private key is a base64 encoded PEM RSA key
// used to sign order requests.
func New(deps providers.Deps) (*Provider, error) {
	cfg := deps.Config
	if cfg.APIKey == "" {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "api key", Reason: "missing"}
	}
	if cfg.PrivateKey == "" {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "private key", Reason: "missing"}
	}
	pemBytes, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
	if err != nil {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "private key", Reason: "not base64: " + err.Error()}
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, &providers.ConfigError{Provider: ProviderID, Field: "private key", Reason: err.Error()}
	}

	p := &Provider{
		deps:       deps,
		client:     deps.Client(defaultAPIURL),
		apiKey:     cfg.APIKey,
		privateKey: key,
		widgetURL:  cfg.Option("widget_url", defaultWidgetURL),
		now:        deps.Clock(),
		kv:         deps.KV(),
		engine:     deps.Engine(),
		recorder:   deps.Metrics(),
	}
	p.cache = support.NewCache(ProviderID, pairsTTL, p.fetchSupport,
		support.WithClock(p.now),
		support.WithRecorder(p.recorder))
	p.maxes = support.NewMemo[string, decimal.Decimal](maxTTL, p.now)
	return p, nil
}

func (p *Provider) Info() providers.Info {
	return providers.Info{
		ID:          ProviderID,
		DisplayName: "Paybis",
		Directions:  []models.Direction{models.DirectionBuy, models.DirectionSell},
	}
}

func (p *Provider) Warm(ctx context.Context) error {
	return p.cache.Warm(ctx)
}

func regionSupported(region models.RegionCode) bool {
	if region.CountryCode == excludedCountry {
		return false
	}
	return !excludedStates[region.CountryCode][region.StateProvinceCode]
}

func (p *Provider) fetchSupport(ctx context.Context) (*supportData, error) {
	var buy buyPairsResponse
	var sell sellPairsResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.get(gctx, "v2/public/currency/pairs/buy-crypto", "buy_pairs", &buy)
	})
	g.Go(func() error {
		return p.get(gctx, "v2/public/currency/pairs/sell-crypto", "sell_pairs", &sell)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := &supportData{methods: map[models.Direction]map[models.PaymentType]*support.Matrix[string]{
		models.DirectionBuy:  {},
		models.DirectionSell: {},
	}}

	for _, method := range buy.Data {
		names := []string{method.Name}
		// Card pairs also back the wallet-pay methods.
		if method.Name == "method-id-credit-card" {
			names = append(names, "fake-id-googlepay", "fake-id-applepay")
		}
		for _, name := range names {
			pt, ok := paymentTypes[name]
			if !ok {
				continue
			}
			m := data.matrix(models.DirectionBuy, pt)
			for _, pair := range method.Pairs {
				m.AddFiat(pair.From)
				for _, to := range pair.To {
					if asset, ok := currencies[to.CurrencyCode]; ok {
						m.AddCrypto(asset, to.CurrencyCode)
					}
				}
			}
		}
	}

	for _, method := range sell.Data {
		pt, ok := paymentTypes[method.Name]
		if !ok {
			continue
		}
		m := data.matrix(models.DirectionSell, pt)
		for _, pair := range method.Pairs {
			asset, ok := currencies[pair.FromAssetID]
			if !ok {
				continue
			}
			m.AddCrypto(asset, pair.FromAssetID)
			for _, fiat := range pair.To {
				m.AddFiat(fiat)
			}
		}
	}

	zap.L().Info("Paybis currency pairs loaded",
		zap.Int("buy_methods", len(data.methods[models.DirectionBuy])),
		zap.Int("sell_methods", len(data.methods[models.DirectionSell])))
	return data, nil
}

// supportedTypes returns the payment types whose pairs cover the request,
// along with the Paybis currency code of the asset.
func supportedTypes(data *supportData, req providers.SupportRequest, types []models.PaymentType) ([]models.PaymentType, string) {
	var out []models.PaymentType
	var code string
	for _, pt := range types {
		m, ok := data.methods[req.Direction][pt]
		if !ok || !m.HasFiat(req.Fiat) {
			continue
		}
		if c, ok := m.FindCrypto(req.Asset); ok {
			out = append(out, pt)
			code = c
		}
	}
	return out, code
}

func (p *Provider) CheckSupport(ctx context.Context, req providers.SupportRequest) (providers.SupportResult, error) {
	if !regionSupported(req.Region) {
		return providers.Unsupported(), nil
	}
	types := p.engine.Filter(req.Params(ProviderID), allowedPaymentTypes[req.Direction])
	if len(types) == 0 {
		return providers.Unsupported(), nil
	}
	data, err := p.cache.Get(ctx)
	if err != nil {
		return providers.SupportResult{}, err
	}
	if supported, _ := supportedTypes(data, req, types); len(supported) == 0 {
		return providers.Unsupported(), nil
	}
	return providers.Supported(models.AmountTypeFiat, models.AmountTypeCrypto), nil
}

func (p *Provider) FetchQuotes(ctx context.Context, req providers.QuoteRequest) ([]*providers.Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !regionSupported(req.Region) {
		return nil, nil
	}
	data, err := p.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	types := p.engine.Filter(req.Params(ProviderID, ""), allowedPaymentTypes[req.Direction])
	types, cryptoCode := supportedTypes(data, req.SupportRequest(), types)
	if len(types) == 0 {
		return nil, nil
	}

	userID, err := store.IdentityToken(ctx, p.kv, identityKey)
	if err != nil {
		return nil, err
	}
	promoCode := p.promoCode(ctx, req, userID)

	attempts := providers.NewAttempts(ProviderID, p.recorder)
	for _, pt := range types {
		method, ok := quoteMethods[req.Direction][pt]
		if !ok {
			continue
		}
		attempts.Go(ctx, pt, func(ctx context.Context) ([]*providers.Quote, error) {
			q, err := p.quoteMethod(ctx, req, quoteContext{
				paymentType: pt,
				method:      method,
				cryptoCode:  cryptoCode,
				fiat:        models.NormalizeFiat(req.Fiat),
				userID:      userID,
				promoCode:   promoCode,
			})
			if err != nil {
				return nil, err
			}
			return []*providers.Quote{q}, nil
		})
	}
	return attempts.Wait()
}

// promoCode returns the promo code to apply, which Paybis honours only on a
// user's first purchase of at most 1000 USD.
func (p *Provider) promoCode(ctx context.Context, req providers.QuoteRequest, userID string) string {
	if req.PromoCode == "" || req.Amount.Max {
		return ""
	}
	// Amounts are compared at face value.
	if req.Amount.Exact.GreaterThan(promoLimitUSD) {
		return ""
	}
	var status userStatus
	if err := p.get(ctx, "v2/public/user/"+url.PathEscape(userID)+"/status", "user_status", &status); err != nil {
		zap.L().Warn("Unable to read Paybis user status, promo code not applied", zap.Error(err))
		return ""
	}
	if status.HasTransactions {
		return ""
	}
	return req.PromoCode
}

var (
	betweenPattern = regexp.MustCompile(`(?i)between\s+([0-9]+(?:\.[0-9]+)?)\s+and\s+([0-9]+(?:\.[0-9]+)?)`)
	boundPattern   = regexp.MustCompile(`(?i)\b(min(?:imum)?|max(?:imum)?)\b\D*?([0-9]+(?:\.[0-9]+)?)`)
)

// rejection types a payment method error. A reason naming a bound the
// requested amount violates is a limit error; anything else is a rejection.
func rejection(qc quoteContext, currency string, amount decimal.Decimal, reason string) error {
	limit := func(kind providers.LimitKind, bound string) error {
		return &providers.LimitError{
			Provider:    ProviderID,
			Kind:        kind,
			Bound:       decimal.RequireFromString(bound),
			Currency:    currency,
			PaymentType: qc.paymentType,
		}
	}
	if m := betweenPattern.FindStringSubmatch(reason); m != nil {
		switch {
		case amount.LessThan(decimal.RequireFromString(m[1])):
			return limit(providers.UnderLimit, m[1])
		case amount.GreaterThan(decimal.RequireFromString(m[2])):
			return limit(providers.OverLimit, m[2])
		}
	} else if m := boundPattern.FindStringSubmatch(reason); m != nil {
		if strings.HasPrefix(strings.ToLower(m[1]), "min") {
			return limit(providers.UnderLimit, m[2])
		}
		return limit(providers.OverLimit, m[2])
	}
	return &providers.RejectedError{Provider: ProviderID, PaymentType: qc.paymentType, Reason: reason}
}

type quoteContext struct {
	paymentType models.PaymentType
	method      string
	cryptoCode  string
	fiat        string
	userID      string
	promoCode   string
}

// requestAmount resolves a max request from the remembered maximum, falling
// back to the default for the denomination. Exact amounts are rounded to the
// precision Paybis accepts.
func (p *Provider) requestAmount(req providers.QuoteRequest, qc quoteContext) decimal.Decimal {
	if !req.Amount.Max {
		if req.AmountType == models.AmountTypeFiat {
			return req.Amount.Exact.Round(fiatDecimals)
		}
		return req.Amount.Exact.Round(cryptoDecimals)
	}
	max, ok := p.maxes.Get(qc.maxKey(req))
	if !ok {
		max = defaultMaxCrypto
		if req.AmountType == models.AmountTypeFiat {
			max = defaultMaxFiat
		}
		p.maxes.Set(qc.maxKey(req), max)
	}
	return providers.ResolveAmount(req.Amount, max)
}

func (qc quoteContext) maxKey(req providers.QuoteRequest) string {
	return strings.Join([]string{string(req.Direction), qc.fiat, qc.cryptoCode, string(req.AmountType), qc.method}, "-")
}

// directionChange reports whether the requested amount is the amount paid
// ("from") or received ("to").
func directionChange(direction models.Direction, amountType models.AmountType) string {
	fiatSide := amountType == models.AmountTypeFiat
	if (direction == models.DirectionBuy) == fiatSide {
		return "from"
	}
	return "to"
}

func (p *Provider) quoteMethod(ctx context.Context, req providers.QuoteRequest, qc quoteContext) (*providers.Quote, error) {
	amount := p.requestAmount(req, qc)
	change := directionChange(req.Direction, req.AmountType)

	body := quoteRequest{
		Amount:           amount.String(),
		DirectionChange:  change,
		IsReceivedAmount: change == "to",
	}
	if req.Direction == models.DirectionBuy {
		body.CurrencyCodeFrom = qc.fiat
		body.CurrencyCodeTo = qc.cryptoCode
		body.PaymentMethod = qc.method
	} else {
		body.CurrencyCodeFrom = qc.cryptoCode
		body.CurrencyCodeTo = qc.fiat
		body.PayoutMethod = qc.method
	}

	var resp quoteResponse
	if err := p.post(ctx, "v2/public/quote", qc.promoCode, body, false, "quote", &resp); err != nil {
		return nil, err
	}

	methods, rejections := resp.PaymentMethods, resp.PaymentMethodErrors
	if req.Direction == models.DirectionSell {
		methods, rejections = resp.PayoutMethods, resp.PayoutMethodErrors
	}
	if len(rejections) > 0 {
		currency := qc.fiat
		if req.AmountType == models.AmountTypeCrypto {
			currency = qc.cryptoCode
		}
		return nil, rejection(qc, currency, amount, rejections[0].Error.Message)
	}
	if len(methods) != 1 {
		return nil, &providers.ParseError{
			Provider:  ProviderID,
			Operation: "quote",
			Err:       fmt.Errorf("expected one priced method, got %d", len(methods)),
		}
	}
	priced := methods[0]

	requested := priced.AmountFrom.Amount
	if change == "to" {
		requested = priced.AmountTo.Amount
	}
	if !requested.Equal(amount) {
		return nil, &providers.ParseError{
			Provider:  ProviderID,
			Operation: "quote",
			Err:       fmt.Errorf("quoted %s for requested amount %s", requested, amount),
		}
	}

	fiatAmount, cryptoAmount := priced.AmountFrom.Amount, priced.AmountTo.Amount
	if req.Direction == models.DirectionSell {
		fiatAmount, cryptoAmount = priced.AmountTo.Amount, priced.AmountFrom.Amount
	}

	quote := &providers.Quote{
		Provider:            ProviderID,
		Direction:           req.Direction,
		Region:              req.Region,
		Asset:               req.Asset,
		FiatCurrencyCode:    qc.fiat,
		FiatAmount:          fiatAmount,
		DisplayCurrencyCode: req.DisplayCode(),
		CryptoAmount:        cryptoAmount,
		PaymentType:         qc.paymentType,
		ExpiresAt:           p.now().Add(quoteExpiry),
		SettlementRange:     settlement.PaybisRange,
	}
	return quote.Bind(p.deps.Orchestrator, req.Wallet, p.prepareApproval(quote, qc, resp.ID)), nil
}

// sign returns the base64 RSA-SHA512 signature of body.
func (p *Provider) sign(body []byte) (string, error) {
	sig, err := jwt.SigningMethodRS512.Sign(string(body), p.privateKey)
	if err != nil {
		return "", fmt.Errorf("unable to sign paybis request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (p *Provider) query(promoCode string) url.Values {
	q := url.Values{"apikey": {p.apiKey}}
	if promoCode != "" {
		q.Set("promoCode", promoCode)
	}
	return q
}

func (p *Provider) get(ctx context.Context, path, operation string, out any) error {
	data, err := p.client.Do(ctx, httpclient.Request{
		Method:    http.MethodGet,
		Path:      path,
		Query:     p.query(""),
		Operation: operation,
	})
	if err != nil {
		return apiError(operation, data, err)
	}
	return providers.DecodeJSON(ProviderID, operation, data, out)
}

func (p *Provider) post(ctx context.Context, path, promoCode string, in any, signed bool, operation string, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("unable to encode paybis %s request: %w", operation, err)
	}
	header := http.Header{"Content-Type": {"application/json"}}
	if signed {
		sig, err := p.sign(body)
		if err != nil {
			return err
		}
		header.Set(signatureHeader, sig)
	}

	data, err := p.client.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		Path:      path,
		Query:     p.query(promoCode),
		Header:    header,
		Body:      body,
		Operation: operation,
	})
	if err != nil {
		return apiError(operation, data, err)
	}
	return providers.DecodeJSON(ProviderID, operation, data, out)
}

// apiError adds the message from a Paybis error body to a transport error.
func apiError(operation string, data []byte, err error) error {
	var transportErr *providers.TransportError
	if !errors.As(err, &transportErr) || len(data) == 0 {
		return err
	}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return fmt.Errorf("paybis %s: %s: %w", operation, body.Message, err)
	}
	return err
}
