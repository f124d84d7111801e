package simplex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"
	"ramp-quote-go/internal/settlement"
	"ramp-quote-go/internal/store"
	"ramp-quote-go/internal/wallet"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

const (
	testKey     = "pk_simplex"
	testSecret  = "simplex-secret"
	testPartner = "ramp"
	testAddress = "0x52908400098527886E0F7030069857D2E4169EE7"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var prices = map[string]decimal.Decimal{
	"ETH": decimal.NewFromInt(2000),
	"BTC": decimal.NewFromInt(50000),
	"FTM": decimal.Zero,
}

func parseToken(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithJSONNumber())
	return claims, err
}

type fakeSimplex struct {
	t      *testing.T
	server *httptest.Server

	mutex  sync.Mutex
	claims []jwt.MapClaims
}

func newFakeSimplex(t *testing.T) *fakeSimplex {
	f := &fakeSimplex{t: t}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSimplex) quoteClaims() []jwt.MapClaims {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]jwt.MapClaims(nil), f.claims...)
}

func (f *fakeSimplex) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch r.URL.Path {
	case "/supported_fiat_currencies":
		if q.Get("public_key") != testKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `[{"ticker_symbol":"USD","min_amount":"50","max_amount":"20000"},
			{"ticker_symbol":"EUR","min_amount":"50","max_amount":"15000"}]`)
	case "/supported_countries":
		if q.Get("public_key") != testKey || q.Get("payment_methods") != "credit_card" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `["US-CA","US-TX","FR","GB"]`)
	case "/api/quote":
		claims, err := parseToken(q.Get("t"))
		if err != nil || q.Get("partner") != testPartner {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"bad token","type":"auth"}`)
			return
		}
		f.mutex.Lock()
		f.claims = append(f.claims, claims)
		f.mutex.Unlock()
		f.quote(w, claims)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeSimplex) quote(w http.ResponseWriter, claims jwt.MapClaims) {
	soam := decimal.RequireFromString(string(claims["soam"].(json.Number)))
	socn, tacn := claims["socn"].(string), claims["tacn"].(string)

	if socn == "BTC" && (soam.GreaterThan(decimal.NewFromInt(10)) || soam.LessThan(decimal.RequireFromString("0.001"))) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"The BTC amount must be between 0.001 and 10","type":"invalidAmountLimit"}`)
		return
	}
	if soam.Equal(decimal.NewFromInt(51)) {
		fmt.Fprint(w, `{"error":"The fees for this transaction exceed its amount","type":"quote_error"}`)
		return
	}

	fiatCode, cryptoCode := socn, tacn
	if _, ok := prices[socn]; ok {
		fiatCode, cryptoCode = tacn, socn
	}
	price := prices[cryptoCode]
	var fiat, crypto decimal.Decimal
	switch {
	case price.IsZero():
	case fiatCode == socn:
		fiat, crypto = soam, soam.Div(price)
	default:
		fiat, crypto = soam.Mul(price), soam
	}
	fmt.Fprintf(w, `{"digital_money":{"currency":%q,"amount":%s},"fiat_money":{"currency":%q,"amount":%s}}`,
		cryptoCode, crypto, fiatCode, fiat)
}

func newProvider(t *testing.T, f *fakeSimplex, orch *approval.Orchestrator) *Provider {
	t.Helper()
	p, err := New(providers.Deps{
		Config: models.ProviderConfig{
			ID:     ProviderID,
			APIURL: f.server.URL,
			APIKey: testKey,
			Secret: testSecret,
			Options: map[string]string{
				"partner":         testPartner,
				"partner_api_url": f.server.URL,
				"widget_url":      "https://widget.test/",
			},
		},
		HTTP:         f.server.Client(),
		Store:        store.NewMemory(),
		Orchestrator: orch,
		ReturnURL:    "https://deep.test",
		Now:          func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

var california = models.RegionCode{CountryCode: "US", StateProvinceCode: "CA"}

func request(pluginID string, amountType models.AmountType, amount string) providers.QuoteRequest {
	req := providers.QuoteRequest{
		Direction:  models.DirectionBuy,
		Region:     california,
		Asset:      models.CryptoAsset{PluginID: pluginID},
		Fiat:       "iso:USD",
		AmountType: amountType,
		Amount:     models.MaxAmount(),
		Platform:   models.PlatformIOS,
	}
	if amount != "" {
		req.Amount = models.ExactAmount(decimal.RequireFromString(amount))
	}
	return req
}

func TestNew_RequiresConfig(t *testing.T) {
	tests := []struct {
		name   string
		config models.ProviderConfig
	}{
		{"missing public key", models.ProviderConfig{Secret: testSecret, Options: map[string]string{"partner": testPartner}}},
		{"missing secret", models.ProviderConfig{APIKey: testKey, Options: map[string]string{"partner": testPartner}}},
		{"missing partner", models.ProviderConfig{APIKey: testKey, Secret: testSecret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(providers.Deps{Config: tt.config})
			var configErr *providers.ConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
		})
	}
}

func TestCheckSupport(t *testing.T) {
	f := newFakeSimplex(t)
	p := newProvider(t, f, nil)

	eth := models.CryptoAsset{PluginID: "ethereum"}
	tests := []struct {
		name      string
		direction models.Direction
		region    models.RegionCode
		fiat      string
		asset     models.CryptoAsset
		want      bool
	}{
		{"listed state", models.DirectionBuy, california, "USD", eth, true},
		{"unlisted state", models.DirectionBuy, models.RegionCode{CountryCode: "US", StateProvinceCode: "NY"}, "USD", eth, false},
		{"listed country", models.DirectionBuy, models.RegionCode{CountryCode: "FR"}, "iso:EUR", eth, true},
		{"GB excluded", models.DirectionBuy, models.RegionCode{CountryCode: "GB"}, "USD", eth, false},
		{"sell", models.DirectionSell, california, "USD", eth, false},
		{"token", models.DirectionBuy, california, "USD", models.CryptoAsset{PluginID: "ethereum", TokenID: "a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"}, false},
		{"unknown chain", models.DirectionBuy, california, "USD", models.CryptoAsset{PluginID: "monero"}, false},
		{"unknown fiat", models.DirectionBuy, california, "JPY", eth, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.CheckSupport(context.Background(), providers.SupportRequest{
				Direction: tt.direction,
				Region:    tt.region,
				Fiat:      tt.fiat,
				Asset:     tt.asset,
				Platform:  models.PlatformWeb,
			})
			if err != nil {
				t.Fatalf("CheckSupport failed: %v", err)
			}
			if got.Supported != tt.want {
				t.Errorf("Expected supported=%v, got %v", tt.want, got.Supported)
			}
		})
	}
}

func TestFetchQuotes_PlatformMethods(t *testing.T) {
	tests := []struct {
		platform models.Platform
		want     []models.PaymentType
	}{
		{models.PlatformIOS, []models.PaymentType{models.PaymentTypeCredit, models.PaymentTypeApplePay}},
		{models.PlatformAndroid, []models.PaymentType{models.PaymentTypeCredit, models.PaymentTypeGooglePay}},
		{models.PlatformWeb, []models.PaymentType{models.PaymentTypeCredit}},
	}
	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			f := newFakeSimplex(t)
			p := newProvider(t, f, nil)

			req := request("ethereum", models.AmountTypeFiat, "100")
			req.Platform = tt.platform
			quotes, err := p.FetchQuotes(context.Background(), req)
			if err != nil {
				t.Fatalf("FetchQuotes failed: %v", err)
			}
			if len(quotes) != len(tt.want) {
				t.Fatalf("Expected %d quotes, got %d", len(tt.want), len(quotes))
			}
			for i, q := range quotes {
				if q.PaymentType != tt.want[i] {
					t.Errorf("Expected %s at %d, got %s", tt.want[i], i, q.PaymentType)
				}
				if !q.FiatAmount.Equal(decimal.NewFromInt(100)) || !q.CryptoAmount.Equal(decimal.RequireFromString("0.05")) {
					t.Errorf("Unexpected amounts %s / %s", q.FiatAmount, q.CryptoAmount)
				}
				if !q.ExpiresAt.Equal(testNow.Add(8 * time.Second)) {
					t.Errorf("Unexpected expiry %v", q.ExpiresAt)
				}
				if q.SettlementRange != settlement.Estimate(q.PaymentType, models.DirectionBuy) {
					t.Errorf("Unexpected settlement range %v", q.SettlementRange)
				}
			}

			claims := f.quoteClaims()
			if len(claims) != 1 {
				t.Fatalf("Expected one priced call, got %d", len(claims))
			}
			c := claims[0]
			if c["socn"] != "USD" || c["tacn"] != "ETH" || c["soam"] != json.Number("100") || c["euid"] == "" {
				t.Errorf("Unexpected quote claims %v", c)
			}
		})
	}
}

func TestFetchQuotes_Limits(t *testing.T) {
	tests := []struct {
		name       string
		pluginID   string
		amountType models.AmountType
		amount     string
		kind       providers.LimitKind
		bound      string
		priced     bool
	}{
		{"fiat under published minimum", "ethereum", models.AmountTypeFiat, "20", providers.UnderLimit, "50", false},
		{"fiat over published maximum", "ethereum", models.AmountTypeFiat, "30000", providers.OverLimit, "20000", false},
		{"crypto over parsed maximum", "bitcoin", models.AmountTypeCrypto, "20", providers.OverLimit, "10", true},
		{"crypto under parsed minimum", "bitcoin", models.AmountTypeCrypto, "0.0001", providers.UnderLimit, "0.001", true},
		{"fees exceed amount", "ethereum", models.AmountTypeFiat, "51", providers.UnderLimit, "51", true},
		{"zero priced", "fantom", models.AmountTypeFiat, "100", providers.UnderLimit, "100", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeSimplex(t)
			p := newProvider(t, f, nil)

			_, err := p.FetchQuotes(context.Background(), request(tt.pluginID, tt.amountType, tt.amount))
			var aggErr *providers.AggregateError
			if !errors.As(err, &aggErr) {
				t.Fatalf("Expected AggregateError, got %v", err)
			}
			limitErrs := aggErr.LimitErrors()
			if len(limitErrs) == 0 || len(limitErrs) != len(aggErr.Failures) {
				t.Fatalf("Expected every failure to be a limit violation, got %v", err)
			}
			for _, limitErr := range limitErrs {
				if limitErr.Kind != tt.kind || !limitErr.Bound.Equal(decimal.RequireFromString(tt.bound)) {
					t.Errorf("Unexpected limit error %+v", limitErr)
				}
				if limitErr.Currency == "" || limitErr.PaymentType == "" {
					t.Errorf("Expected currency and payment type on %+v", limitErr)
				}
			}
			if priced := len(f.quoteClaims()) > 0; priced != tt.priced {
				t.Errorf("Expected priced=%v, got %v", tt.priced, priced)
			}
		})
	}
}

func TestFetchQuotes_MaxAmounts(t *testing.T) {
	capped := models.MaxAmount()
	capped.Cap = decimal.NewNullDecimal(decimal.NewFromInt(5))

	tests := []struct {
		name       string
		amountType models.AmountType
		amount     models.Amount
		want       string
	}{
		{"fiat uses published maximum", models.AmountTypeFiat, models.MaxAmount(), "20000"},
		{"crypto default", models.AmountTypeCrypto, models.MaxAmount(), "100"},
		{"crypto capped", models.AmountTypeCrypto, capped, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeSimplex(t)
			p := newProvider(t, f, nil)

			req := request("ethereum", tt.amountType, "")
			req.Amount = tt.amount
			if _, err := p.FetchQuotes(context.Background(), req); err != nil {
				t.Fatalf("FetchQuotes failed: %v", err)
			}
			claims := f.quoteClaims()
			if len(claims) != 1 || claims[0]["soam"] != json.Number(tt.want) {
				t.Errorf("Expected soam %s, got %v", tt.want, claims)
			}
		})
	}
}

func TestResolveDeeplink(t *testing.T) {
	tests := []struct {
		query string
		want  approval.State
		order string
	}{
		{"status=success&orderId=o-1", approval.StateCompleted, "o-1"},
		{"status=success%3F&orderId=o-1", approval.StateCompleted, "o-1"},
		{"status=failure&orderId=o-1", approval.StateFailed, "o-1"},
		{"status=pending", approval.StateFailed, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got := resolveDeeplink(approval.Link{Direction: models.DirectionBuy, ProviderID: ProviderID, Query: q})
			if got.State != tt.want || got.OrderID != tt.order {
				t.Errorf("Expected %s/%q, got %s/%q", tt.want, tt.order, got.State, got.OrderID)
			}
		})
	}
}

func TestBuyApproval_SignedWidget(t *testing.T) {
	f := newFakeSimplex(t)
	surface := &approval.Handoff{}
	orch := approval.NewOrchestrator(approval.OrchestratorConfig{Surface: surface})
	p := newProvider(t, f, orch)

	quotes, err := p.FetchQuotes(context.Background(), request("ethereum", models.AmountTypeFiat, "100"))
	if err != nil || len(quotes) == 0 {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	flow, err := quotes[0].Approve(context.Background(), wallet.AddressOnly{Address: testAddress})
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	if !strings.HasPrefix(surface.URL(), "https://widget.test/?") {
		t.Fatalf("Unexpected widget url %s", surface.URL())
	}
	widget, _ := url.Parse(surface.URL())
	if widget.Query().Get("partner") != testPartner {
		t.Errorf("Expected partner %s in %s", testPartner, surface.URL())
	}
	claims, err := parseToken(widget.Query().Get("t"))
	if err != nil {
		t.Fatalf("Invalid checkout token: %v", err)
	}
	if claims["crad"] != testAddress || claims["crcn"] != "ETH" || claims["ficn"] != "USD" || claims["fiam"] != json.Number("100") {
		t.Errorf("Unexpected checkout claims %v", claims)
	}
	if claims["euid"] != f.quoteClaims()[0]["euid"] {
		t.Errorf("Expected the quote user id on the checkout token")
	}

	link, _ := url.Parse("https://deep.test/ramp/buy/simplex?orderId=o-9&status=success")
	parsed, err := approval.ParseLink("buy", ProviderID, link)
	if err != nil {
		t.Fatalf("ParseLink failed: %v", err)
	}
	if err := orch.Registry().Dispatch(context.Background(), parsed); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if state, err := flow.Wait(ctx); err != nil || state != approval.StateCompleted {
		t.Errorf("Expected Completed, got %s %v", state, err)
	}
}
