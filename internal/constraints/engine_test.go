package constraints

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ramp-quote-go/internal/httpclient"
	"ramp-quote-go/internal/models"
)

func usParams(pt models.PaymentType) Params {
	return Params{
		Provider:    "banxa",
		Direction:   models.DirectionBuy,
		Region:      models.RegionCode{CountryCode: "US", StateProvinceCode: "CA"},
		Fiat:        "iso:usd",
		Asset:       models.CryptoAsset{PluginID: "ethereum"},
		PaymentType: pt,
	}
}

func TestStaticRules(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name   string
		mutate func(*Params)
		want   bool
	}{
		{"credit anywhere", func(p *Params) { p.PaymentType = models.PaymentTypeCredit }, true},
		{"ach in US with USD", func(p *Params) { p.PaymentType = models.PaymentTypeACH }, true},
		{"ach with EUR", func(p *Params) { p.PaymentType = models.PaymentTypeACH; p.Fiat = "EUR" }, false},
		{"pix in BR", func(p *Params) {
			p.PaymentType = models.PaymentTypePix
			p.Region = models.RegionCode{CountryCode: "BR"}
			p.Fiat = "BRL"
		}, true},
		{"pix in US", func(p *Params) { p.PaymentType = models.PaymentTypePix }, false},
		{"sepa with EUR", func(p *Params) {
			p.PaymentType = models.PaymentTypeSepa
			p.Region = models.RegionCode{CountryCode: "DE"}
			p.Fiat = "EUR"
		}, true},
		{"sepa with USD", func(p *Params) { p.PaymentType = models.PaymentTypeSepa }, false},
		{"interac in CA", func(p *Params) {
			p.PaymentType = models.PaymentTypeInterac
			p.Region = models.RegionCode{CountryCode: "CA", StateProvinceCode: "ON"}
			p.Fiat = "CAD"
		}, true},
		{"payid in NZ", func(p *Params) {
			p.PaymentType = models.PaymentTypePayID
			p.Region = models.RegionCode{CountryCode: "NZ"}
			p.Fiat = "AUD"
		}, false},
		{"venmo with EUR", func(p *Params) { p.PaymentType = models.PaymentTypeVenmo; p.Fiat = "EUR" }, false},
		{"paypal in US", func(p *Params) { p.PaymentType = models.PaymentTypePaypal }, true},
		{"applepay unknown platform", func(p *Params) { p.PaymentType = models.PaymentTypeApplePay }, true},
		{"applepay on android", func(p *Params) {
			p.PaymentType = models.PaymentTypeApplePay
			p.Platform = models.PlatformAndroid
		}, false},
		{"googlepay on android", func(p *Params) {
			p.PaymentType = models.PaymentTypeGooglePay
			p.Platform = models.PlatformAndroid
		}, true},
		{"paybis card sell in US", func(p *Params) {
			p.Provider = "paybis"
			p.Direction = models.DirectionSell
			p.PaymentType = models.PaymentTypeCredit
		}, false},
		{"paybis card buy in US", func(p *Params) {
			p.Provider = "paybis"
			p.PaymentType = models.PaymentTypeCredit
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := usParams("")
			tt.mutate(&p)
			if got := engine.Allow(p); got != tt.want {
				t.Errorf("Allow(%+v) = %v, want %v", p, got, tt.want)
			}
		})
	}
}

func TestPredicateVetoesEverything(t *testing.T) {
	engine := NewEngine()
	calls := 0
	engine.SetPredicate(PredicateFunc(func(p Params) bool {
		calls++
		return p.Provider != "moonpay"
	}))

	p := usParams(models.PaymentTypeCredit)
	p.Provider = "moonpay"
	if engine.Allow(p) {
		t.Error("Expected predicate veto")
	}

	p.Provider = "banxa"
	if !engine.Allow(p) {
		t.Error("Expected allow when predicate passes")
	}
	if calls != 2 {
		t.Errorf("Expected predicate evaluated twice, got %d", calls)
	}

	engine.SetPredicate(nil)
	p.Provider = "moonpay"
	if !engine.Allow(p) {
		t.Error("Expected allow after clearing predicate")
	}
}

func TestShortCircuit(t *testing.T) {
	evaluated := false
	engine := NewEngine(
		Rule{Name: "deny", Eval: func(Params) Verdict { return Deny }},
		Rule{Name: "never", Eval: func(Params) Verdict { evaluated = true; return Allow }},
	)
	if engine.Allow(Params{}) {
		t.Error("Expected deny")
	}
	if evaluated {
		t.Error("Expected evaluation to stop at first deny")
	}
}

func TestFilterAndAllowAny(t *testing.T) {
	engine := NewEngine()
	p := usParams("")
	types := []models.PaymentType{models.PaymentTypePix, models.PaymentTypeCredit, models.PaymentTypeSepa, models.PaymentTypeACH}

	got := engine.Filter(p, types)
	if len(got) != 2 || got[0] != models.PaymentTypeCredit || got[1] != models.PaymentTypeACH {
		t.Errorf("Unexpected filter result %v", got)
	}

	if !engine.AllowAny(p, types) {
		t.Error("Expected AllowAny true")
	}
	if engine.AllowAny(p, []models.PaymentType{models.PaymentTypePix, models.PaymentTypeSepa}) {
		t.Error("Expected AllowAny false when every method is denied")
	}
	if !engine.AllowAny(p, nil) {
		t.Error("Expected AllowAny true with no candidate methods")
	}
}

const sampleRules = `
deny:
  - provider: moonpay
    country: US
    state: NY
  - payment_type: paypal
    fiat: iso:eur
  - plugin: ethereum
    token: dac17f958d2ee523a2206206994597c13d831ec7
    direction: sell
`

func TestRuleSet(t *testing.T) {
	rs, err := ParseRuleSet([]byte(sampleRules))
	if err != nil {
		t.Fatalf("ParseRuleSet failed: %v", err)
	}

	engine := NewEngine()
	engine.SetPredicate(rs)

	ny := usParams(models.PaymentTypeCredit)
	ny.Provider = "moonpay"
	ny.Region.StateProvinceCode = "NY"
	if engine.Allow(ny) {
		t.Error("Expected moonpay NY denied")
	}

	ca := ny
	ca.Region.StateProvinceCode = "CA"
	if !engine.Allow(ca) {
		t.Error("Expected moonpay CA allowed")
	}

	usdt := usParams(models.PaymentTypeCredit)
	usdt.Direction = models.DirectionSell
	usdt.Asset = models.CryptoAsset{PluginID: "ethereum", TokenID: "dac17f958d2ee523a2206206994597c13d831ec7"}
	if engine.Allow(usdt) {
		t.Error("Expected USDT sell denied")
	}
	usdt.Direction = models.DirectionBuy
	if !engine.Allow(usdt) {
		t.Error("Expected USDT buy allowed")
	}
}

func TestParseRuleSet_Invalid(t *testing.T) {
	tests := []string{
		"deny: [{}]",
		"deny:\n  - direction: sideways\n",
		"deny: {",
	}
	for _, input := range tests {
		if _, err := ParseRuleSet([]byte(input)); err == nil {
			t.Errorf("Expected error for %q", input)
		}
	}
}

func TestFetchRuleSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRules))
	}))
	defer server.Close()

	client := httpclient.New("rules", server.URL, server.Client())
	rs, err := FetchRuleSet(context.Background(), client, "/rules.yaml")
	if err != nil {
		t.Fatalf("FetchRuleSet failed: %v", err)
	}
	if len(rs.Deny) != 3 {
		t.Errorf("Expected 3 deny entries, got %d", len(rs.Deny))
	}
}
