package paybis

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
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
	"ramp-quote-go/internal/store"
	"ramp-quote-go/internal/wallet"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

const (
	testKey     = "paybis-test"
	testAddress = "0x52908400098527886E0F7030069857D2E4169EE7"
	depositAddr = "0x00000000219ab540356cBB839Cbe05303d7705Fa"
)

var (
	signingKeyOnce sync.Once
	signingKey     *rsa.PrivateKey
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	signingKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("Unable to generate key: %v", err)
		}
		signingKey = key
	})
	return signingKey
}

func encodedKey(key *rsa.PrivateKey) string {
	block := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return base64.StdEncoding.EncodeToString(block)
}

var fiatCodes = map[string]bool{"USD": true, "EUR": true, "BRL": true}

type fakePaybis struct {
	server *httptest.Server
	key    *rsa.PublicKey

	mutex           sync.Mutex
	requests        map[string]int
	quotes          []quoteRequest
	promoCodes      []string
	orders          []publicRequest
	hasTransactions bool
	reject          string
	rejectMessage   string
	skew            bool
}

func newFakePaybis(t *testing.T) *fakePaybis {
	f := &fakePaybis{key: &rsaKey(t).PublicKey, requests: make(map[string]int)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePaybis) count(path string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.requests[path]
}

func (f *fakePaybis) quoteBodies() ([]quoteRequest, []string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]quoteRequest(nil), f.quotes...), append([]string(nil), f.promoCodes...)
}

func (f *fakePaybis) orderBodies() []publicRequest {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]publicRequest(nil), f.orders...)
}

func (f *fakePaybis) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("apikey") != testKey {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"bad api key"}`)
		return
	}
	body, _ := io.ReadAll(r.Body)

	f.mutex.Lock()
	f.requests[r.URL.Path]++
	f.mutex.Unlock()

	switch {
	case r.URL.Path == "/v2/public/currency/pairs/buy-crypto":
		fmt.Fprint(w, `{"data":[
			{"name":"method-id-credit-card","pairs":[{"from":"USD","to":[
				{"currency":"Ethereum","currencyCode":"ETH"},
				{"currency":"Bitcoin Testnet","currencyCode":"BTC-TESTNET"},
				{"currency":"Unknown","currencyCode":"NOPE"}]}]},
			{"name":"method-id_bridgerpay_revolutpay","pairs":[{"from":"EUR","to":[{"currencyCode":"ETH"}]}]},
			{"name":"method-id-unknown","pairs":[{"from":"USD","to":[{"currencyCode":"SOL"}]}]}]}`)
	case r.URL.Path == "/v2/public/currency/pairs/sell-crypto":
		fmt.Fprint(w, `{"data":[
			{"name":"method-id-credit-card-out","pairs":[{"fromAssetId":"ETH","to":["USD","EUR"]}]},
			{"name":"method-id_bridgerpay_directa24_pix_payout","pairs":[{"fromAssetId":"XRP","to":["BRL"]}]}]}`)
	case strings.HasPrefix(r.URL.Path, "/v2/public/user/") && strings.HasSuffix(r.URL.Path, "/status"):
		f.mutex.Lock()
		fmt.Fprintf(w, `{"hasTransactions":%t}`, f.hasTransactions)
		f.mutex.Unlock()
	case r.URL.Path == "/v2/public/quote":
		f.quote(w, r, body)
	case r.URL.Path == "/v2/public/request":
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get(signatureHeader))
		if err != nil || jwt.SigningMethodRS512.Verify(string(body), sig, f.key) != nil {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"bad signature"}`)
			return
		}
		var order publicRequest
		_ = json.Unmarshal(body, &order)
		f.mutex.Lock()
		f.orders = append(f.orders, order)
		f.mutex.Unlock()
		fmt.Fprint(w, `{"requestId":"req-1","oneTimeToken":"ott-1"}`)
	case r.URL.Path == "/v2/request/req-1/payment-details":
		fmt.Fprintf(w, `{"assetId":"ETH","blockchain":"ethereum","network":"mainnet","depositAddress":"%s","currencyCode":"ETH","amount":"0.05"}`, depositAddr)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"not found"}`)
	}
}

// quote prices every crypto at 2000 of any fiat.
func (f *fakePaybis) quote(w http.ResponseWriter, r *http.Request, body []byte) {
	var req quoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mutex.Lock()
	f.quotes = append(f.quotes, req)
	f.promoCodes = append(f.promoCodes, r.URL.Query().Get("promoCode"))
	reject, rejectMessage, skew := f.reject, f.rejectMessage, f.skew
	f.mutex.Unlock()
	if rejectMessage == "" {
		rejectMessage = "not available"
	}

	method, methodsKey, errorsKey := req.PaymentMethod, "paymentMethods", "paymentMethodErrors"
	if method == "" {
		method, methodsKey, errorsKey = req.PayoutMethod, "payoutMethods", "payoutMethodErrors"
	}
	if method == reject {
		fmt.Fprintf(w, `{"id":"quote-1","currencyCodeFrom":%q,"currencyCodeTo":%q,%q:[],%q:[{"paymentMethod":%q,"error":{"message":%q}}]}`,
			req.CurrencyCodeFrom, req.CurrencyCodeTo, methodsKey, errorsKey, method, rejectMessage)
		return
	}

	rate := decimal.NewFromInt(2000)
	amount := decimal.RequireFromString(req.Amount)
	var from, to decimal.Decimal
	if req.DirectionChange == "from" {
		from = amount
		if fiatCodes[req.CurrencyCodeFrom] {
			to = amount.Div(rate)
		} else {
			to = amount.Mul(rate)
		}
	} else {
		to = amount
		if fiatCodes[req.CurrencyCodeFrom] {
			from = amount.Mul(rate)
		} else {
			from = amount.Div(rate)
		}
	}
	if skew {
		from = from.Add(decimal.NewFromInt(1))
		to = to.Add(decimal.NewFromInt(1))
	}
	fmt.Fprintf(w, `{"id":"quote-1","currencyCodeFrom":%q,"currencyCodeTo":%q,"requestedAmountType":%q,%q:[
		{"id":%q,"amountFrom":{"amount":"%s","currencyCode":%q},"amountTo":{"amount":"%s","currencyCode":%q}}]}`,
		req.CurrencyCodeFrom, req.CurrencyCodeTo, req.DirectionChange, methodsKey,
		method, from, req.CurrencyCodeFrom, to, req.CurrencyCodeTo)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newProvider(t *testing.T, f *fakePaybis, orch *approval.Orchestrator) *Provider {
	t.Helper()
	p, err := New(providers.Deps{
		Config: models.ProviderConfig{
			ID:         ProviderID,
			APIURL:     f.server.URL,
			APIKey:     testKey,
			PrivateKey: encodedKey(rsaKey(t)),
			Options:    map[string]string{"widget_url": "https://widget.test"},
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

var (
	california = models.RegionCode{CountryCode: "US", StateProvinceCode: "CA"}
	germany    = models.RegionCode{CountryCode: "DE"}
	ethereum   = models.CryptoAsset{PluginID: "ethereum"}
)

func request(direction models.Direction, region models.RegionCode, fiat string, amountType models.AmountType, amount string) providers.QuoteRequest {
	req := providers.QuoteRequest{
		Direction:  direction,
		Region:     region,
		Asset:      ethereum,
		Fiat:       fiat,
		AmountType: amountType,
		Amount:     models.MaxAmount(),
		Platform:   models.PlatformIOS,
	}
	if amount != "" {
		req.Amount = models.ExactAmount(decimal.RequireFromString(amount))
	}
	return req
}

func TestNew_Config(t *testing.T) {
	key := encodedKey(rsaKey(t))
	tests := []struct {
		name   string
		config models.ProviderConfig
	}{
		{"missing api key", models.ProviderConfig{PrivateKey: key}},
		{"missing private key", models.ProviderConfig{APIKey: testKey}},
		{"key not base64", models.ProviderConfig{APIKey: testKey, PrivateKey: "%%%"}},
		{"key not pem", models.ProviderConfig{APIKey: testKey, PrivateKey: base64.StdEncoding.EncodeToString([]byte("nope"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.ID = ProviderID
			_, err := New(providers.Deps{Config: tt.config})
			var configErr *providers.ConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
		})
	}
}

func TestCheckSupport(t *testing.T) {
	f := newFakePaybis(t)
	p := newProvider(t, f, nil)

	tests := []struct {
		name      string
		direction models.Direction
		region    models.RegionCode
		fiat      string
		asset     models.CryptoAsset
		want      bool
	}{
		{"card buy", models.DirectionBuy, california, "iso:USD", ethereum, true},
		{"excluded state", models.DirectionBuy, models.RegionCode{CountryCode: "US", StateProvinceCode: "NY"}, "USD", ethereum, false},
		{"excluded island state", models.DirectionBuy, models.RegionCode{CountryCode: "US", StateProvinceCode: "HI"}, "USD", ethereum, false},
		{"excluded country", models.DirectionBuy, models.RegionCode{CountryCode: "GB"}, "USD", ethereum, false},
		{"revolut pay buy", models.DirectionBuy, germany, "EUR", ethereum, true},
		{"no pair", models.DirectionBuy, california, "USD", models.CryptoAsset{PluginID: "solana"}, false},
		{"no card sell in US", models.DirectionSell, california, "USD", ethereum, false},
		{"card sell", models.DirectionSell, germany, "EUR", ethereum, true},
		{"pix sell", models.DirectionSell, models.RegionCode{CountryCode: "BR"}, "BRL", models.CryptoAsset{PluginID: "ripple"}, true},
		{"pix outside Brazil", models.DirectionSell, germany, "BRL", models.CryptoAsset{PluginID: "ripple"}, false},
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

	if n := f.count("/v2/public/currency/pairs/buy-crypto"); n != 1 {
		t.Errorf("Expected pairs to be fetched once, got %d", n)
	}
}

func TestFetchQuotes_CardBuy(t *testing.T) {
	f := newFakePaybis(t)
	p := newProvider(t, f, nil)

	quotes, err := p.FetchQuotes(context.Background(), request(models.DirectionBuy, california, "iso:USD", models.AmountTypeFiat, "100"))
	if err != nil {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	got := map[models.PaymentType]*providers.Quote{}
	for _, q := range quotes {
		got[q.PaymentType] = q
	}
	// Google Pay is not offered on iOS.
	if len(got) != 2 || got[models.PaymentTypeCredit] == nil || got[models.PaymentTypeApplePay] == nil {
		t.Fatalf("Expected credit and applepay quotes, got %v", got)
	}

	q := got[models.PaymentTypeCredit]
	if !q.FiatAmount.Equal(decimal.NewFromInt(100)) || !q.CryptoAmount.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Unexpected amounts %s / %s", q.FiatAmount, q.CryptoAmount)
	}
	if q.FiatCurrencyCode != "USD" {
		t.Errorf("Expected USD, got %s", q.FiatCurrencyCode)
	}
	if !q.ExpiresAt.Equal(testNow.Add(60 * time.Second)) {
		t.Errorf("Unexpected expiry %v", q.ExpiresAt)
	}
	if q.SettlementRange.Min != 5*time.Minute || q.SettlementRange.Max != 24*time.Hour {
		t.Errorf("Unexpected settlement range %v", q.SettlementRange)
	}

	bodies, _ := f.quoteBodies()
	for _, b := range bodies {
		if b.CurrencyCodeFrom != "USD" || b.CurrencyCodeTo != "ETH" || b.Amount != "100" ||
			b.DirectionChange != "from" || b.IsReceivedAmount || b.PaymentMethod != "method-id-credit-card" {
			t.Errorf("Unexpected quote body %+v", b)
		}
	}
}

func TestFetchQuotes_RejectedMethodRecorded(t *testing.T) {
	f := newFakePaybis(t)
	f.reject = "method-id_bridgerpay_revolutpay"
	p := newProvider(t, f, nil)

	quotes, err := p.FetchQuotes(context.Background(), request(models.DirectionBuy, germany, "EUR", models.AmountTypeFiat, "100"))
	if len(quotes) != 0 {
		t.Errorf("Expected no quotes, got %d", len(quotes))
	}
	var aggErr *providers.AggregateError
	if !errors.As(err, &aggErr) {
		t.Fatalf("Expected AggregateError, got %v", err)
	}
	var rejected *providers.RejectedError
	if !errors.As(err, &rejected) || rejected.Reason != "not available" || rejected.Provider != ProviderID {
		t.Errorf("Expected the rejection reason to survive, got %v", err)
	}
}

func TestFetchQuotes_EveryMethodRejected(t *testing.T) {
	f := newFakePaybis(t)
	f.reject = "method-id-credit-card"
	p := newProvider(t, f, nil)

	quotes, err := p.FetchQuotes(context.Background(), request(models.DirectionBuy, california, "USD", models.AmountTypeFiat, "100"))
	if len(quotes) != 0 {
		t.Errorf("Expected no quotes, got %d", len(quotes))
	}
	var aggErr *providers.AggregateError
	if !errors.As(err, &aggErr) {
		t.Fatalf("Expected AggregateError when every attempt is rejected, got %v", err)
	}
	bodies, _ := f.quoteBodies()
	if len(bodies) == 0 || len(aggErr.Failures) != len(bodies) {
		t.Errorf("Expected one failure per attempt (%d), got %d", len(bodies), len(aggErr.Failures))
	}
	for _, failure := range aggErr.Failures {
		var rejected *providers.RejectedError
		if !errors.As(failure.Err, &rejected) {
			t.Errorf("Expected RejectedError for %s, got %v", failure.PaymentType, failure.Err)
		}
	}
}

func TestFetchQuotes_RejectionNamesBound(t *testing.T) {
	tests := []struct {
		name    string
		message string
		amount  string
		kind    providers.LimitKind
		bound   string
	}{
		{"between under", "Amount must be between 15 and 20000", "10", providers.UnderLimit, "15"},
		{"between over", "Amount must be between 15 and 20000", "25000", providers.OverLimit, "20000"},
		{"minimum", "Minimum amount is 20.5 EUR", "10", providers.UnderLimit, "20.5"},
		{"maximum", "Max amount exceeded: 5000", "6000", providers.OverLimit, "5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePaybis(t)
			f.reject = "method-id_bridgerpay_revolutpay"
			f.rejectMessage = tt.message
			p := newProvider(t, f, nil)

			_, err := p.FetchQuotes(context.Background(), request(models.DirectionBuy, germany, "EUR", models.AmountTypeFiat, tt.amount))
			var limitErr *providers.LimitError
			if !errors.As(err, &limitErr) {
				t.Fatalf("Expected LimitError, got %v", err)
			}
			if limitErr.Kind != tt.kind || limitErr.Bound.String() != tt.bound || limitErr.Currency != "EUR" {
				t.Errorf("Unexpected limit %+v", limitErr)
			}
		})
	}
}

func TestFetchQuotes_AmountMismatch(t *testing.T) {
	f := newFakePaybis(t)
	f.skew = true
	p := newProvider(t, f, nil)

	_, err := p.FetchQuotes(context.Background(), request(models.DirectionBuy, germany, "EUR", models.AmountTypeFiat, "100"))
	var parseErr *providers.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Expected ParseError, got %v", err)
	}
}

func TestFetchQuotes_CryptoAmountRounded(t *testing.T) {
	f := newFakePaybis(t)
	p := newProvider(t, f, nil)

	quotes, err := p.FetchQuotes(context.Background(), request(models.DirectionBuy, germany, "EUR", models.AmountTypeCrypto, "0.123456789"))
	if err != nil || len(quotes) != 1 {
		t.Fatalf("FetchQuotes failed: %v (%d quotes)", err, len(quotes))
	}
	if !quotes[0].CryptoAmount.Equal(decimal.RequireFromString("0.12345679")) {
		t.Errorf("Expected crypto rounded to 8 places, got %s", quotes[0].CryptoAmount)
	}
	bodies, _ := f.quoteBodies()
	if len(bodies) != 1 || bodies[0].Amount != "0.12345679" || bodies[0].DirectionChange != "to" || !bodies[0].IsReceivedAmount {
		t.Errorf("Unexpected quote body %+v", bodies)
	}
}

func TestFetchQuotes_MaxDefaults(t *testing.T) {
	capped := models.MaxAmount()
	capped.Cap = decimal.NewNullDecimal(decimal.NewFromInt(500))

	tests := []struct {
		name       string
		amountType models.AmountType
		amount     models.Amount
		want       string
	}{
		{"fiat", models.AmountTypeFiat, models.MaxAmount(), "10000"},
		{"crypto", models.AmountTypeCrypto, models.MaxAmount(), "10"},
		{"capped", models.AmountTypeFiat, capped, "500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePaybis(t)
			p := newProvider(t, f, nil)

			req := request(models.DirectionBuy, germany, "EUR", tt.amountType, "")
			req.Amount = tt.amount
			if _, err := p.FetchQuotes(context.Background(), req); err != nil {
				t.Fatalf("FetchQuotes failed: %v", err)
			}
			bodies, _ := f.quoteBodies()
			if len(bodies) != 1 || bodies[0].Amount != tt.want {
				t.Errorf("Expected amount %s, got %+v", tt.want, bodies)
			}
		})
	}
}

func TestFetchQuotes_PromoCode(t *testing.T) {
	tests := []struct {
		name            string
		amount          string
		hasTransactions bool
		want            string
		statusCalls     int
	}{
		{"first purchase", "100", false, "WELCOME", 1},
		{"returning user", "100", true, "", 1},
		{"over promo limit", "2000", false, "", 0},
		{"max amount", "", false, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePaybis(t)
			f.hasTransactions = tt.hasTransactions
			p := newProvider(t, f, nil)

			req := request(models.DirectionBuy, germany, "EUR", models.AmountTypeFiat, tt.amount)
			req.PromoCode = "WELCOME"
			if _, err := p.FetchQuotes(context.Background(), req); err != nil {
				t.Fatalf("FetchQuotes failed: %v", err)
			}
			_, promos := f.quoteBodies()
			if len(promos) != 1 || promos[0] != tt.want {
				t.Errorf("Expected promo %q, got %v", tt.want, promos)
			}

			statusCalls := 0
			f.mutex.Lock()
			for path, n := range f.requests {
				if strings.HasSuffix(path, "/status") {
					statusCalls += n
				}
			}
			f.mutex.Unlock()
			if statusCalls != tt.statusCalls {
				t.Errorf("Expected %d status calls, got %d", tt.statusCalls, statusCalls)
			}
		})
	}
}

func TestBuyApproval_SignedRequestAndDeeplink(t *testing.T) {
	f := newFakePaybis(t)
	surface := &approval.Handoff{}
	orch := approval.NewOrchestrator(approval.OrchestratorConfig{Surface: surface})
	p := newProvider(t, f, orch)

	quotes, err := p.FetchQuotes(context.Background(), request(models.DirectionBuy, germany, "EUR", models.AmountTypeFiat, "100"))
	if err != nil || len(quotes) != 1 {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	flow, err := quotes[0].Approve(context.Background(), wallet.AddressOnly{Address: testAddress})
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	orders := f.orderBodies()
	if len(orders) != 1 {
		t.Fatalf("Expected one signed order request, got %d", len(orders))
	}
	order := orders[0]
	if order.Flow != flowBuy || order.QuoteID != "quote-1" || order.PaymentMethod != "method-id_bridgerpay_revolutpay" ||
		order.CryptoWalletAddress == nil || order.CryptoWalletAddress.Address != testAddress || order.PartnerUserID == "" {
		t.Errorf("Unexpected order body %+v", order)
	}

	widget, err := url.Parse(surface.URL())
	if err != nil {
		t.Fatalf("Invalid widget url: %v", err)
	}
	q := widget.Query()
	if widget.Host != "widget.test" || q.Get("requestId") != "req-1" || q.Get("oneTimeToken") != "ott-1" {
		t.Errorf("Unexpected widget url %s", surface.URL())
	}
	if q.Get("successReturnURL") != "https://deep.test/ramp/buy/paybis?transactionStatus=success" {
		t.Errorf("Unexpected success return %s", q.Get("successReturnURL"))
	}

	link, _ := url.Parse(q.Get("successReturnURL"))
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

func TestBuyApproval_TestnetUsesSandboxWidget(t *testing.T) {
	f := newFakePaybis(t)
	surface := &approval.Handoff{}
	orch := approval.NewOrchestrator(approval.OrchestratorConfig{Surface: surface})
	p := newProvider(t, f, orch)

	req := request(models.DirectionBuy, california, "USD", models.AmountTypeFiat, "100")
	req.Asset = models.CryptoAsset{PluginID: "bitcointestnet"}
	quotes, err := p.FetchQuotes(context.Background(), req)
	if err != nil || len(quotes) == 0 {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	flow, err := quotes[0].Approve(context.Background(), wallet.AddressOnly{Address: "tb1qtestaddress"})
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	defer flow.Close()

	if !strings.HasPrefix(surface.URL(), sandboxWidgetURL+"?") {
		t.Errorf("Expected sandbox widget, got %s", surface.URL())
	}
}

type sellWallet struct {
	mutex sync.Mutex
	sent  []wallet.SendRequest
}

func (w *sellWallet) ReceiveAddress(context.Context, models.CryptoAsset) (string, error) {
	return testAddress, nil
}

func (w *sellWallet) Balance(context.Context, models.CryptoAsset) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func (w *sellWallet) Send(_ context.Context, req wallet.SendRequest) (string, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.sent = append(w.sent, req)
	return "0xtx", nil
}

func startSell(t *testing.T) (*fakePaybis, *approval.Handoff, *approval.Flow, *sellWallet) {
	t.Helper()
	f := newFakePaybis(t)
	surface := &approval.Handoff{}
	orch := approval.NewOrchestrator(approval.OrchestratorConfig{Surface: surface})
	p := newProvider(t, f, orch)

	quotes, err := p.FetchQuotes(context.Background(), request(models.DirectionSell, germany, "EUR", models.AmountTypeFiat, "100"))
	if err != nil || len(quotes) != 1 {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	if quotes[0].PaymentType != models.PaymentTypeCredit || !quotes[0].CryptoAmount.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("Unexpected sell quote %+v", quotes[0])
	}

	w := &sellWallet{}
	flow, err := quotes[0].Approve(context.Background(), w)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	return f, surface, flow, w
}

func TestSellApproval_PaymentDetails(t *testing.T) {
	f, surface, flow, w := startSell(t)

	orders := f.orderBodies()
	if len(orders) != 1 || orders[0].Flow != flowSell || orders[0].CryptoPaymentMethod != partnerControlled ||
		orders[0].DepositCallbackURL != "https://deep.test/redirect/payment" || orders[0].CryptoWalletAddress != nil {
		t.Errorf("Unexpected order body %+v", orders)
	}
	widget, _ := url.Parse(surface.URL())
	if widget.Query().Get("successReturnURL") != "https://deep.test/redirect/success" ||
		widget.Query().Get("failureReturnURL") != "https://deep.test/redirect/fail" {
		t.Errorf("Unexpected sell widget %s", surface.URL())
	}

	surface.Navigate("https://widget.test/kyc")
	surface.Navigate("https://deep.test/redirect/payment?requestId=req-1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := flow.Wait(ctx)
	if err != nil || state != approval.StateCompleted {
		t.Fatalf("Expected Completed, got %s %v (%s)", state, err, flow.Detail())
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()
	if len(w.sent) != 1 {
		t.Fatalf("Expected one send, got %d", len(w.sent))
	}
	sent := w.sent[0]
	if sent.Address != depositAddr || !sent.Amount.Equal(decimal.RequireFromString("0.05")) || sent.OrderID != "req-1" || sent.Memo != nil {
		t.Errorf("Unexpected send %+v", sent)
	}
}

func TestSellApproval_FailureRedirect(t *testing.T) {
	_, surface, flow, w := startSell(t)

	surface.Navigate("https://deep.test/redirect/fail?reason=kyc")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if state, err := flow.Wait(ctx); err != nil || state != approval.StateFailed {
		t.Errorf("Expected Failed, got %s %v", state, err)
	}
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if len(w.sent) != 0 {
		t.Errorf("Expected no send after a failed checkout")
	}
}
