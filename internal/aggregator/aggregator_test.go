package aggregator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ramp-quote-go/internal/constraints"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"

	"github.com/shopspring/decimal"
)

type fakeProvider struct {
	id           string
	directions   []models.Direction
	unsupported  bool
	amountTypes  []models.AmountType
	paymentTypes []models.PaymentType
	err          error
	supportErr   error
	warmErr      error
	delay        time.Duration
	panics       bool

	supportCalls atomic.Int32
	fetchCalls   atomic.Int32
	warmCalls    atomic.Int32
}

func (f *fakeProvider) Info() providers.Info {
	dirs := f.directions
	if dirs == nil {
		dirs = []models.Direction{models.DirectionBuy, models.DirectionSell}
	}
	return providers.Info{ID: f.id, DisplayName: strings.ToUpper(f.id), Directions: dirs}
}

func (f *fakeProvider) CheckSupport(context.Context, providers.SupportRequest) (providers.SupportResult, error) {
	f.supportCalls.Add(1)
	if f.supportErr != nil {
		return providers.SupportResult{}, f.supportErr
	}
	if f.unsupported {
		return providers.Unsupported(), nil
	}
	return providers.Supported(f.amountTypes...), nil
}

func (f *fakeProvider) FetchQuotes(ctx context.Context, req providers.QuoteRequest) ([]*providers.Quote, error) {
	f.fetchCalls.Add(1)
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	quotes := make([]*providers.Quote, 0, len(f.paymentTypes))
	for _, pt := range f.paymentTypes {
		quotes = append(quotes, &providers.Quote{
			Provider:     f.id,
			Direction:    req.Direction,
			PaymentType:  pt,
			FiatAmount:   req.Amount.Exact,
			CryptoAmount: decimal.RequireFromString("0.05"),
		})
	}
	return quotes, nil
}

func (f *fakeProvider) Warm(context.Context) error {
	f.warmCalls.Add(1)
	return f.warmErr
}

func buyRequest() providers.QuoteRequest {
	return providers.QuoteRequest{
		Direction:  models.DirectionBuy,
		Region:     models.RegionCode{CountryCode: "US", StateProvinceCode: "CA"},
		Asset:      models.CryptoAsset{PluginID: "ethereum"},
		Fiat:       "iso:USD",
		AmountType: models.AmountTypeFiat,
		Amount:     models.ExactAmount(decimal.NewFromInt(100)),
		Platform:   models.PlatformWeb,
	}
}

func newAggregator(engine *constraints.Engine, timeout time.Duration, ps ...*fakeProvider) *Aggregator {
	list := make([]providers.Provider, len(ps))
	for i, p := range ps {
		list[i] = p
	}
	return New(Config{Providers: list, Constraints: engine, Timeout: timeout})
}

func TestFetchQuotes_OrderAndIsolation(t *testing.T) {
	limitErr := &providers.LimitError{Provider: "beta", Kind: providers.OverLimit, Bound: decimal.NewFromInt(50), Currency: "USD"}
	aggErr := &providers.AggregateError{Provider: "gamma", Failures: []providers.Failure{
		{PaymentType: models.PaymentTypeCredit, Err: errors.New("bad gateway")},
	}}

	alpha := &fakeProvider{id: "alpha", paymentTypes: []models.PaymentType{models.PaymentTypeSepa, models.PaymentTypeCredit}}
	beta := &fakeProvider{id: "beta", err: limitErr}
	gamma := &fakeProvider{id: "gamma", err: aggErr}
	delta := &fakeProvider{id: "delta", unsupported: true}
	epsilon := &fakeProvider{id: "epsilon", paymentTypes: []models.PaymentType{models.PaymentTypeApplePay}}

	a := newAggregator(nil, time.Second, alpha, beta, gamma, delta, epsilon)
	result, err := a.FetchQuotes(context.Background(), buyRequest())
	if err != nil {
		t.Fatalf("FetchQuotes failed: %v", err)
	}

	var got []string
	for _, q := range result.Quotes {
		got = append(got, q.Provider+"/"+string(q.PaymentType))
	}
	want := []string{"alpha/credit", "alpha/sepa", "epsilon/applepay"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected quotes %v, got %v", want, got)
	}

	if len(result.Failures) != 2 {
		t.Fatalf("Expected 2 failures, got %d", len(result.Failures))
	}
	if result.Failures[0].Provider != "beta" || result.Failures[0].Err != error(limitErr) {
		t.Errorf("Expected beta's limit error passed through, got %+v", result.Failures[0])
	}
	if result.Failures[1].Provider != "gamma" || result.Failures[1].Err != error(aggErr) {
		t.Errorf("Expected gamma's aggregate error passed through, got %+v", result.Failures[1])
	}
	if delta.fetchCalls.Load() != 0 {
		t.Errorf("Expected unsupported provider not to be asked for quotes")
	}
}

func TestFetchQuotes_PreFilter(t *testing.T) {
	deny := constraints.Rule{Name: "no-beta-in-ny", Eval: func(p constraints.Params) constraints.Verdict {
		if p.Provider == "beta" && p.Region.StateProvinceCode == "NY" {
			return constraints.Deny
		}
		return constraints.Skip
	}}
	alpha := &fakeProvider{id: "alpha", paymentTypes: []models.PaymentType{models.PaymentTypeCredit}}
	beta := &fakeProvider{id: "beta", paymentTypes: []models.PaymentType{models.PaymentTypeCredit}}
	buyOnly := &fakeProvider{id: "buyonly", directions: []models.Direction{models.DirectionBuy}}

	a := newAggregator(constraints.NewEngine(deny), time.Second, alpha, beta, buyOnly)

	req := buyRequest()
	req.Region = models.RegionCode{CountryCode: "US", StateProvinceCode: "NY"}
	if _, err := a.FetchQuotes(context.Background(), req); err != nil {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	if beta.supportCalls.Load() != 0 || beta.fetchCalls.Load() != 0 {
		t.Errorf("Expected denied provider not to be contacted")
	}
	if alpha.fetchCalls.Load() != 1 {
		t.Errorf("Expected alpha to be asked once, got %d", alpha.fetchCalls.Load())
	}

	req.Direction = models.DirectionSell
	if _, err := a.FetchQuotes(context.Background(), req); err != nil {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	if buyOnly.supportCalls.Load() != 1 {
		t.Errorf("Expected buy-only provider to be skipped for sell, got %d support calls", buyOnly.supportCalls.Load())
	}
}

func TestFetchQuotes_AmountTypeNotOffered(t *testing.T) {
	fiatOnly := &fakeProvider{id: "fiatonly", amountTypes: []models.AmountType{models.AmountTypeFiat},
		paymentTypes: []models.PaymentType{models.PaymentTypeCredit}}
	a := newAggregator(nil, time.Second, fiatOnly)

	req := buyRequest()
	req.AmountType = models.AmountTypeCrypto
	result, err := a.FetchQuotes(context.Background(), req)
	if err != nil {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	if len(result.Quotes) != 0 || len(result.Failures) != 0 || fiatOnly.fetchCalls.Load() != 0 {
		t.Errorf("Expected crypto request to skip a fiat-only provider")
	}
}

func TestFetchQuotes_TimeoutAndPanic(t *testing.T) {
	slow := &fakeProvider{id: "slow", delay: time.Minute, paymentTypes: []models.PaymentType{models.PaymentTypeCredit}}
	broken := &fakeProvider{id: "broken", panics: true}
	fast := &fakeProvider{id: "fast", paymentTypes: []models.PaymentType{models.PaymentTypeCredit}}

	a := newAggregator(nil, 50*time.Millisecond, slow, broken, fast)
	start := time.Now()
	result, err := a.FetchQuotes(context.Background(), buyRequest())
	if err != nil {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Expected the per-provider timeout to bound the call")
	}
	if len(result.Quotes) != 1 || result.Quotes[0].Provider != "fast" {
		t.Errorf("Expected only the fast provider's quote, got %d", len(result.Quotes))
	}
	if len(result.Failures) != 2 {
		t.Fatalf("Expected 2 failures, got %d", len(result.Failures))
	}
	if !errors.Is(result.Failures[0].Err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded for slow provider, got %v", result.Failures[0].Err)
	}
	if !strings.Contains(result.Failures[1].Err.Error(), "panicked") {
		t.Errorf("Expected panic to be reported, got %v", result.Failures[1].Err)
	}
}

func TestFetchQuotes_InvalidRequest(t *testing.T) {
	a := newAggregator(nil, time.Second, &fakeProvider{id: "alpha"})
	req := buyRequest()
	req.Region = models.RegionCode{}
	if _, err := a.FetchQuotes(context.Background(), req); err == nil {
		t.Fatal("Expected validation error")
	}
}

func TestCheckSupport(t *testing.T) {
	transport := errors.New("connection refused")
	a := newAggregator(nil, time.Second,
		&fakeProvider{id: "alpha"},
		&fakeProvider{id: "beta", unsupported: true},
		&fakeProvider{id: "gamma", supportErr: transport},
		&fakeProvider{id: "delta", directions: []models.Direction{models.DirectionSell}},
	)
	answers := a.CheckSupport(context.Background(), buyRequest().SupportRequest())

	tests := []struct {
		provider  string
		supported bool
		err       error
	}{
		{"alpha", true, nil},
		{"beta", false, nil},
		{"gamma", false, transport},
		{"delta", false, nil},
	}
	if len(answers) != len(tests) {
		t.Fatalf("Expected %d answers, got %d", len(tests), len(answers))
	}
	for i, tt := range tests {
		got := answers[i]
		if got.Provider != tt.provider || got.Result.Supported != tt.supported || got.Err != tt.err {
			t.Errorf("Answer %d: expected %s/%v/%v, got %s/%v/%v",
				i, tt.provider, tt.supported, tt.err, got.Provider, got.Result.Supported, got.Err)
		}
	}
}

func TestWarm(t *testing.T) {
	ok := &fakeProvider{id: "ok"}
	failing := &fakeProvider{id: "failing", warmErr: errors.New("unavailable")}
	a := newAggregator(nil, time.Second, ok, failing)

	err := a.Warm(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failing: unavailable") {
		t.Errorf("Expected failing provider in warm error, got %v", err)
	}
	if ok.warmCalls.Load() != 1 || failing.warmCalls.Load() != 1 {
		t.Errorf("Expected every provider to be warmed once")
	}
}

func TestProviderLookup(t *testing.T) {
	a := newAggregator(nil, time.Second, &fakeProvider{id: "alpha"}, &fakeProvider{id: "beta"})
	if p, ok := a.Provider("beta"); !ok || p.Info().ID != "beta" {
		t.Errorf("Expected to find beta")
	}
	if _, ok := a.Provider("zeta"); ok {
		t.Errorf("Expected zeta to be unknown")
	}
	if infos := a.Providers(); len(infos) != 2 || infos[0].ID != "alpha" {
		t.Errorf("Expected providers in registration order, got %v", infos)
	}
}
